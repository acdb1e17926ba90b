package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRequestLogger logs one line per request after it completes.
func NewRequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("requestId", middleware.GetReqID(r.Context())),
					zap.String("remoteAddr", r.RemoteAddr),
				}
				if status >= http.StatusInternalServerError {
					log.Warn("http request", fields...)
					return
				}
				log.Info("http request", fields...)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
