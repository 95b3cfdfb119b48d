package obs

import (
	"net/http"
	"strings"
	"time"
)

// maxRequestIDLen bounds client-supplied request ids echoed into logs and headers.
const maxRequestIDLen = 128

// ResponseRecorder remembers the status and body size of a response.
// The first WriteHeader wins, as with a real connection.
type ResponseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
	sent   bool
}

func (r *ResponseRecorder) WriteHeader(code int) {
	if r.sent {
		return
	}
	r.status, r.sent = code, true
	r.ResponseWriter.WriteHeader(code)
}

func (r *ResponseRecorder) Write(p []byte) (int, error) {
	if !r.sent {
		r.status, r.sent = http.StatusOK, true
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *ResponseRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (r *ResponseRecorder) StatusCode() int { return r.status }

func (r *ResponseRecorder) RespBytes() int64 { return r.bytes }

type flushingRecorder struct{ *ResponseRecorder }

func (f flushingRecorder) Flush() { f.ResponseWriter.(http.Flusher).Flush() }

// NewResponseRecorder wraps w. The returned writer implements http.Flusher
// exactly when w does.
func NewResponseRecorder(w http.ResponseWriter) (http.ResponseWriter, *ResponseRecorder) {
	rec := &ResponseRecorder{ResponseWriter: w, status: http.StatusOK}
	if _, ok := w.(http.Flusher); ok {
		return flushingRecorder{rec}, rec
	}
	return rec, rec
}

// RequestContextMiddleware puts request correlation into the context and
// echoes the request id as X-Request-Id. The id comes from the client's
// X-Request-Id, else the W3C traceparent trace id, else a fresh one.
func RequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent := strings.TrimSpace(r.Header.Get("traceparent"))
		traceID := extractTraceID(traceparent)

		requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if len(requestID) > maxRequestIDLen {
			requestID = ""
		}
		switch {
		case requestID != "":
		case traceID != "":
			requestID = traceID
		default:
			requestID = newRequestID()
		}
		w.Header().Set("X-Request-Id", requestID)

		ctx := WithCorrelation(r.Context(), Correlation{
			RequestID:   requestID,
			TraceID:     traceID,
			Traceparent: traceparent,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccessLogMiddleware logs one http_access event per request once the
// response is complete.
func AccessLogMiddleware(pkg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped, rec := NewResponseRecorder(w)
		next.ServeHTTP(wrapped, r)

		From(r.Context()).With("pkg", pkg).Info("http_access",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.StatusCode(),
			"dur_ms", float64(time.Since(start).Microseconds())/1000.0,
			"req_bytes", max(r.ContentLength, 0),
			"resp_bytes", rec.RespBytes(),
		)
	})
}

// extractTraceID returns the lowercased trace id of a version-trace-parent-flags
// traceparent, or "" when it is malformed or all zeros.
func extractTraceID(traceparent string) string {
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return ""
	}
	id := strings.ToLower(strings.TrimSpace(parts[1]))
	if len(id) != 32 || strings.Trim(id, "0") == "" {
		return ""
	}
	if strings.IndexFunc(id, func(c rune) bool {
		return (c < '0' || c > '9') && (c < 'a' || c > 'f')
	}) >= 0 {
		return ""
	}
	return id
}
