package http

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/mkrupp/mediapipe/internal/infra/logging"
)

// RescueingMiddleware turns a handler panic into a logged 500 response.
func RescueingMiddleware(next http.Handler, log logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				log.ErrorContext(r.Context(), "request panic", slog.Group("http",
					"uri", r.RequestURI,
					"method", r.Method,
				), slog.Group("error",
					"panic", p,
					"stack", string(debug.Stack()),
				))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
