package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports whether a dependency of the service is usable.
type HealthCheck func(ctx context.Context) error

// NewOpsHandler serves Prometheus metrics on /metrics and the named health
// checks on /healthz. /healthz answers 503 if any check fails.
func NewOpsHandler(checks map[string]HealthCheck) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}

		sort.Strings(names)

		status := http.StatusOK
		report := make(map[string]string, len(checks))

		for _, name := range names {
			if err := checks[name](r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = err.Error()
			} else {
				report[name] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report) //nolint:errchkjson
	})

	return mux
}
