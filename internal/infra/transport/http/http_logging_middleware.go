package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mkrupp/mediapipe/internal/infra/logging"
)

// responseRecorder captures the status and size of a response.
type responseRecorder struct {
	http.ResponseWriter
	status    int
	bytesSent int
}

func (w *responseRecorder) WriteHeader(code int) {
	w.ResponseWriter.WriteHeader(code)
	w.status = code
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytesSent += n

	if err != nil {
		return n, fmt.Errorf("write: %w", err)
	}

	return n, nil
}

// LoggingMiddleware logs every response at a level chosen by its status:
// ERROR for 5xx, WARN for 4xx and DEBUG otherwise, since the ops endpoints
// are scraped often.
func LoggingMiddleware(next http.Handler, log logging.Logger) http.Handler {
	//nolint:varnamelen
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		level := logging.LevelDebug

		switch {
		case rec.status >= http.StatusInternalServerError:
			level = logging.LevelError
		case rec.status >= http.StatusBadRequest:
			level = logging.LevelWarn
		}

		log.Log(r.Context(), level, "response", slog.Group("http",
			"uri", r.RequestURI,
			"method", r.Method,
			"status", rec.status,
			"bytes_sent", rec.bytesSent,
			"duration", time.Since(started).String(),
		))
	})
}
