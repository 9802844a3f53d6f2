package http

import (
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	context_ "github.com/mkrupp/mediapipe/internal/infra/context"
)

const (
	TraceIDHeader = "X-Request-ID"

	tracerName = "github.com/mkrupp/mediapipe/internal/infra/transport/http"
)

// TracingMiddleware starts a server span per request and stores the request
// ID in the context. The ID comes from the X-Request-ID header if present
// and is echoed in the response.
func TracingMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := getTraceID(r)

		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.request_id", traceID),
			),
		)
		defer span.End()

		if traceID != "" {
			w.Header().Set(TraceIDHeader, traceID)
		}

		next.ServeHTTP(w, r.WithContext(context_.WithTraceID(ctx, traceID)))
	})
}

func getTraceID(r *http.Request) string {
	if traceID := r.Header.Get(TraceIDHeader); traceID != "" {
		return traceID
	}

	return strings.ToLower(ulid.Make().String())
}
