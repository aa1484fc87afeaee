package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/otel/trace"
)

// NewLogger configures a zerolog logger writing to stdout using the provided format and level.
func NewLogger(format, level string) zerolog.Logger {
	return NewLoggerTo(os.Stdout, format, level)
}

// NewLoggerTo configures a zerolog logger writing to w.
func NewLoggerTo(w io.Writer, format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	out := w
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// RequestLogger installs a request-scoped logger, reachable through
// zerolog.Ctx, and writes one access line per request once it completes.
type RequestLogger struct {
	Logger zerolog.Logger
}

func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	access := hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		if status == 0 {
			status = http.StatusOK
		}
		evt := hlog.FromRequest(r).WithLevel(levelForStatus(status)).
			Str("method", r.Method).
			Str("route", routeOf(r, r.URL.Path)).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", size).
			Int64("duration_ms", d.Milliseconds())
		for field, value := range map[string]string{
			"idempotency_key": r.Header.Get("Idempotency-Key"),
			"remote_addr":     r.RemoteAddr,
			"user_agent":      r.UserAgent(),
		} {
			if value = strings.TrimSpace(value); value != "" {
				evt = evt.Str(field, value)
			}
		}
		evt.Msg("http_request")
	})
	return hlog.NewHandler(l.Logger)(correlate(access(next)))
}

// correlate tags the request logger with the chi request id and the active
// span so handler logs line up with traces.
func correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.GetReqID(r.Context())
		spanCtx := trace.SpanContextFromContext(r.Context())
		if reqID != "" || spanCtx.IsValid() {
			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				if reqID != "" {
					c = c.Str("request_id", reqID)
				}
				if spanCtx.IsValid() {
					c = c.Str("trace_id", spanCtx.TraceID().String()).Str("span_id", spanCtx.SpanID().String())
				}
				return c
			})
		}
		next.ServeHTTP(w, r)
	})
}

func levelForStatus(status int) zerolog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}
