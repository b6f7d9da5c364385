package httpadapter

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"gaproadmap/internal/logging"
	"gaproadmap/internal/metrics"
)

// accessLog logs every request and records its duration under the matched
// route pattern.
func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			duration := time.Since(start)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			metrics.RecordHTTPRequestDuration(r.Method, route, strconv.Itoa(status), duration)

			log := logging.WithRequest(r.Context(), logger)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", duration),
			}
			switch {
			case status >= 500:
				log.Error("Request failed", fields...)
			case route == "/healthz" || route == "/readyz" || route == "/metrics":
				log.Debug("Request handled", fields...)
			default:
				log.Info("Request handled", fields...)
			}
		})
	}
}
