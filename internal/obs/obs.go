// Package obs owns the process logger and per-request correlation.
package obs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Correlation identifies the request a log line belongs to.
type Correlation struct {
	RequestID   string
	TraceID     string
	Traceparent string
}

type correlationKey struct{}

var (
	mu     sync.RWMutex
	logger *slog.Logger
	level  = new(slog.LevelVar)
)

// Init installs the JSON logger as the slog default. Later calls only
// change the level.
func Init(lvl string) {
	level.Set(ParseLevel(lvl))

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = newLogger(os.Stderr)
		slog.SetDefault(logger)
	}
}

// ParseLevel maps debug, info, warn(ing) and error to slog levels.
// Anything else is info.
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetOutputForTests sends all logging to w at debug level until the
// returned func is called.
func SetOutputForTests(w io.Writer) func() {
	mu.Lock()
	prevLogger, prevLevel := logger, level.Level()
	level.Set(slog.LevelDebug)
	logger = newLogger(w)
	slog.SetDefault(logger)
	mu.Unlock()

	return func() {
		mu.Lock()
		defer mu.Unlock()
		level.Set(prevLevel)
		logger = prevLogger
		if logger == nil {
			logger = newLogger(os.Stderr)
		}
		slog.SetDefault(logger)
	}
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if t, ok := a.Value.Any().(time.Time); ok && a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, t.UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	}))
}

func current() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l == nil {
		Init("")
		mu.RLock()
		l = logger
		mu.RUnlock()
	}
	return l
}

// Pkg returns the logger tagged with a package name.
func Pkg(pkg string) *slog.Logger {
	return current().With("pkg", pkg)
}

// From returns the logger carrying the request and trace ids found in ctx.
func From(ctx context.Context) *slog.Logger {
	l := current()
	corr := CorrelationFromContext(ctx)
	if corr.RequestID != "" {
		l = l.With("request_id", corr.RequestID)
	}
	if corr.TraceID != "" {
		l = l.With("trace_id", corr.TraceID)
	}
	return l
}

// WithCorrelation merges the non-empty fields of corr into ctx.
func WithCorrelation(ctx context.Context, corr Correlation) context.Context {
	merged := CorrelationFromContext(ctx)
	if corr.RequestID != "" {
		merged.RequestID = corr.RequestID
	}
	if corr.TraceID != "" {
		merged.TraceID = corr.TraceID
	}
	if corr.Traceparent != "" {
		merged.Traceparent = corr.Traceparent
	}
	return context.WithValue(ctx, correlationKey{}, merged)
}

func CorrelationFromContext(ctx context.Context) Correlation {
	if ctx == nil {
		return Correlation{}
	}
	corr, _ := ctx.Value(correlationKey{}).(Correlation)
	return corr
}

// RequestIDFromContext returns the request id, or "" outside a request.
func RequestIDFromContext(ctx context.Context) string {
	return CorrelationFromContext(ctx).RequestID
}

func newRequestID() string {
	return "req-" + uuid.NewString()
}
