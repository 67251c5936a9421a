package logging

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Middleware returns a middleware that logs the start and end of each
// request and stores a request-scoped logger in the request context.
func Middleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			requestLogger := logger.With(
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
			)
			requestLogger.Debug("request started")

			next.ServeHTTP(ww, r.WithContext(WithContext(r.Context(), requestLogger)))

			latency := time.Since(start)
			fields := []zap.Field{
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", latency),
				zap.String("user_agent", r.UserAgent()),
				zap.String("protocol", r.Proto),
			}
			if ww.Status() >= http.StatusBadRequest {
				fields = append(fields, zap.String("error", http.StatusText(ww.Status())))
			}
			requestLogger.Info("request completed", fields...)
		})
	}
}
