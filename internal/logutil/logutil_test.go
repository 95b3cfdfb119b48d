package logutil

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestIsSensitiveLogField(t *testing.T) {
	for _, key := range []string{"Authorization", "X-Api-Key", "AWS_SECRET_ACCESS_KEY", "AWS_ACCESS_KEY_ID", "DATABASE_KEY", "DATABASE_URL", "mysql_dsn", "Cookie", "redis_password"} {
		require.True(t, IsSensitiveLogField(key), key)
	}
	for _, key := range []string{"Content-Type", "X-Request-Id", "title", "tags", "Accept"} {
		require.False(t, IsSensitiveLogField(key), key)
	}
}

func TestFormatHeadersForLog_RedactsAndSorts(t *testing.T) {
	headers := http.Header{}
	headers.Set("X-Request-Id", "req-1")
	headers.Set("Authorization", "Bearer secret")
	headers.Set("Content-Type", "application/json")

	got := FormatHeadersForLog(headers)
	require.Equal(t, `authorization="[REDACTED]"; content-type="application/json"; x-request-id="req-1"`, got)
	require.Equal(t, "{}", FormatHeadersForLog(nil))
}

func TestFormatBodyForLog_RedactsJSON(t *testing.T) {
	body := []byte(`{"title":"hi","password":"hunter2"}`)
	got := FormatBodyForLog("application/json", body, 0, false)
	require.NotContains(t, got, "hunter2")
	require.Contains(t, got, `"title":"hi"`)

	got = FormatBodyForLog("text/plain", []byte("abcdef"), 3, false)
	require.Equal(t, "abc [truncated]", got)
}

func testTruncateForLog_BoundedAndValid(t *rapid.T) {
	value := rapid.String().Draw(t, "value")
	maxChars := rapid.IntRange(1, 40).Draw(t, "maxChars")

	got := TruncateForLog(value, maxChars)
	if !utf8.ValidString(value) {
		return
	}
	if !utf8.ValidString(got) {
		t.Fatalf("TruncateForLog produced invalid UTF-8: %q", got)
	}
	if strings.ContainsAny(got, "\r\n") {
		t.Fatalf("TruncateForLog kept a line break: %q", got)
	}
	body := strings.TrimSuffix(got, "... [truncated]")
	if utf8.RuneCountInString(body) > maxChars {
		t.Fatalf("TruncateForLog(%q, %d) too long: %q", value, maxChars, got)
	}
}

func TestTruncateForLog_BoundedAndValid(t *testing.T) {
	rapid.Check(t, testTruncateForLog_BoundedAndValid)
}

func TestTruncateListForLog(t *testing.T) {
	require.Equal(t, "[food, urge... [truncated]]", TruncateListForLog([]string{"food", "urgent"}, 4))
	require.Equal(t, "[]", TruncateListForLog(nil, 4))
}
