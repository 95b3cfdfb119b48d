package api

import (
	"context"
	"net/http"
	"time"

	"github.com/kuitang/tagnotes/internal/metrics"
	"github.com/kuitang/tagnotes/internal/notes"
	"github.com/kuitang/tagnotes/internal/obs"
	"github.com/kuitang/tagnotes/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
)

// Pinger reports backend health. *db.Store and *cache.RedisCache satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the HTTP layer. Only Notes is required.
type Deps struct {
	Notes    *notes.Service
	Health   map[string]Pinger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Limiter  *ratelimit.RateLimiter
}

// NewRouter builds the full handler chain:
// request context, access log, metrics, rate limit, CORS, routes.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()
	NewHandler(d.Notes).RegisterRoutes(mux)
	mux.HandleFunc("GET /healthz", healthHandler(d.Health))
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(d.Gatherer))
	}

	var h http.Handler = corsMiddleware(mux)
	if d.Limiter != nil {
		h = ratelimit.RateLimitMiddleware(d.Limiter, nil)(h)
	}
	if d.Metrics != nil {
		h = d.Metrics.Middleware(h)
	}
	h = obs.AccessLogMiddleware("api", h)
	return obs.RequestContextMiddleware(h)
}

// corsMiddleware allows any origin; preflight requests end here with 204.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("Access-Control-Allow-Origin", "*")
		hdr.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		hdr.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
		hdr.Set("Access-Control-Expose-Headers", "X-Request-Id, Retry-After")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: map[string]string{}}
		status := http.StatusOK
		for name, p := range checks {
			if err := p.Ping(ctx); err != nil {
				obs.From(r.Context()).Warn("health check failed", "check", name, "error", err)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		writeJSON(w, status, resp)
	}
}
