package server

import (
	"net/http"

	"go.uber.org/zap"
)

// LoggingMiddleware logs every request and echoes the Origin header back
// so local dashboards can read the cache endpoints cross-origin.
func LoggingMiddleware(next http.Handler) http.Handler {
	logger := zap.L()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		next.ServeHTTP(w, r)
	})
}
