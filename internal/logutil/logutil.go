// Package logutil keeps secrets and oversized user text out of log lines.
package logutil

import (
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

const redacted = "[REDACTED]"

// sensitiveMarkers are matched against keys with case, '-' and '_' removed.
var sensitiveMarkers = []string{
	"auth", "token", "secret", "password", "apikey", "accesskey", "dsn", "cookie",
}

// IsSensitiveLogField reports whether a header, JSON field or env var name
// likely holds a credential.
func IsSensitiveLogField(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.NewReplacer("-", "", "_", "").Replace(k)
	if k == "databaseurl" || strings.HasSuffix(k, "key") {
		return true
	}
	for _, m := range sensitiveMarkers {
		if strings.Contains(k, m) {
			return true
		}
	}
	return false
}

// RedactHeaderValue returns value, or a placeholder when key is sensitive.
func RedactHeaderValue(key, value string) string {
	if IsSensitiveLogField(key) {
		return redacted
	}
	return value
}

// FormatHeadersForLog renders headers as `name="v1, v2"` pairs sorted by
// name, with sensitive values replaced.
func FormatHeadersForLog(headers http.Header) string {
	if len(headers) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(headers))
	for _, name := range slices.Sorted(maps.Keys(headers)) {
		values := headers.Values(name)
		lower := strings.ToLower(name)
		if len(values) == 0 {
			parts = append(parts, lower+"=<empty>")
			continue
		}
		shown := make([]string, len(values))
		for i, v := range values {
			shown[i] = RedactHeaderValue(name, v)
		}
		parts = append(parts, lower+"="+strconv.Quote(strings.Join(shown, ", ")))
	}
	return strings.Join(parts, "; ")
}

// RedactBodyForLog replaces sensitive fields at any depth of a JSON body.
// Bodies that are not JSON, or do not parse, come back unchanged.
func RedactBodyForLog(contentType string, body []byte) string {
	if !strings.Contains(strings.ToLower(contentType), "json") {
		return string(body)
	}
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return string(body)
	}
	redactValue(payload)
	out, err := json.Marshal(payload)
	if err != nil {
		return string(body)
	}
	return string(out)
}

func redactValue(v any) {
	switch typed := v.(type) {
	case map[string]any:
		for k, child := range typed {
			if IsSensitiveLogField(k) {
				typed[k] = redacted
				continue
			}
			redactValue(child)
		}
	case []any:
		for _, child := range typed {
			redactValue(child)
		}
	}
}

// FormatBodyForLog cuts body to maxBytes (0 means no limit) and redacts it.
// truncated marks a body the caller already cut.
func FormatBodyForLog(contentType string, body []byte, maxBytes int, truncated bool) string {
	if len(body) == 0 {
		return ""
	}
	if maxBytes > 0 && len(body) > maxBytes {
		body = body[:maxBytes]
		truncated = true
	}
	text := RedactBodyForLog(contentType, body)
	if truncated {
		text += " [truncated]"
	}
	return text
}

// TruncateForLog returns a single-line preview of a user-supplied value such
// as a note title or tag, at most maxChars runes before the marker.
func TruncateForLog(value string, maxChars int) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	v = strings.NewReplacer("\r", "\\r", "\n", "\\n").Replace(v)
	if maxChars <= 0 || utf8.RuneCountInString(v) <= maxChars {
		return v
	}
	return string([]rune(v)[:maxChars]) + "... [truncated]"
}

// TruncateListForLog renders values as a bracketed list of previews.
func TruncateListForLog(values []string, maxChars int) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = TruncateForLog(v, maxChars)
	}
	return "[" + strings.Join(out, ", ") + "]"
}
