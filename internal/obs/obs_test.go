package obs

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var event map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &event), "log line: %s", line)
		events = append(events, event)
	}
	return events
}

func TestRequestContextMiddleware_GeneratesAndEchoesRequestID(t *testing.T) {
	var seen string
	handler := RequestContextMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notes", nil))
	require.True(t, strings.HasPrefix(seen, "req-"), "generated id %q", seen)
	require.Equal(t, seen, rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("X-Request-Id", "client-abc")
	handler.ServeHTTP(rec, req)
	require.Equal(t, "client-abc", seen)
	require.Equal(t, "client-abc", rec.Header().Get("X-Request-Id"))
}

func TestRequestContextMiddleware_UsesTraceparent(t *testing.T) {
	var corr Correlation
	handler := RequestContextMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr = CorrelationFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", "00-4BF92F3577B34DA6A3CE929D0E0E4736-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", corr.TraceID)
	require.Equal(t, corr.TraceID, corr.RequestID)
}

func testExtractTraceID_RejectsMalformed(t *rapid.T) {
	junk := rapid.StringMatching(`[0-9a-zA-Z\-]{0,60}`).Draw(t, "junk")
	got := extractTraceID(junk)
	if got == "" {
		return
	}
	if len(got) != 32 || got == strings.Repeat("0", 32) {
		t.Fatalf("extractTraceID(%q) returned invalid id %q", junk, got)
	}
	if strings.ToLower(got) != got {
		t.Fatalf("extractTraceID(%q) not lowercased: %q", junk, got)
	}
}

func TestExtractTraceID_RejectsMalformed(t *testing.T) {
	rapid.Check(t, testExtractTraceID_RejectsMalformed)
}

func TestAccessLogMiddleware_EmitsEventWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	handler := RequestContextMiddleware(AccessLogMiddleware("api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("hello"))
	})))

	req := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader("{}"))
	req.Header.Set("X-Request-Id", "req-test-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	events := decodeLogLines(t, &buf)
	require.Len(t, events, 1)
	event := events[0]
	require.Equal(t, "http_access", event["msg"])
	require.Equal(t, "req-test-1", event["request_id"])
	require.Equal(t, "api", event["pkg"])
	require.Equal(t, "POST", event["method"])
	require.EqualValues(t, http.StatusCreated, event["status"])
	require.EqualValues(t, 5, event["resp_bytes"])
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel(" error "))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestResponseRecorder_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped, recorder := NewResponseRecorder(rec)
	wrapped.WriteHeader(http.StatusNoContent)
	wrapped.WriteHeader(http.StatusInternalServerError)
	require.Equal(t, http.StatusNoContent, recorder.StatusCode())
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, isFlusher := wrapped.(http.Flusher)
	require.True(t, isFlusher, "flusher must be preserved for httptest.ResponseRecorder")
}
