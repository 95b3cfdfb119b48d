package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newRegistered(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	m := New()
	reg := prometheus.NewRegistry()
	m.RegisterCollectors(reg)
	return m, reg
}

func TestObserveOp(t *testing.T) {
	m, _ := newRegistered(t)

	m.ObserveOp("create", "ok", 3*time.Millisecond)
	m.ObserveOp("create", "ok", 5*time.Millisecond)
	m.ObserveOp("create", "invalid_input", time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Operations.WithLabelValues("create", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("create", "invalid_input")))
	require.Equal(t, 1, testutil.CollectAndCount(m.OpDuration))
}

func TestObserveCache(t *testing.T) {
	m, _ := newRegistered(t)

	m.ObserveCache("note", true)
	m.ObserveCache("note", false)
	m.ObserveCache("note", false)
	m.ObserveCache("tags", true)

	require.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("note", "hit")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("note", "miss")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("tags", "hit")))
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m, _ := newRegistered(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /notes/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := m.Middleware(mux)

	for _, path := range []string{"/notes/1", "/notes/2", "/notes/3"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Equal(t, 3.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "GET /notes/{id}", "404")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")))
	require.Equal(t, 2, testutil.CollectAndCount(m.HTTPRequests))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m, reg := newRegistered(t)
	m.ObserveOp("get", "not_found", time.Millisecond)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	require.True(t, strings.Contains(text, `tagnotes_note_operations_total{code="not_found",op="get"} 1`), text)
	require.Contains(t, text, "tagnotes_note_operation_duration_seconds_bucket")
}
