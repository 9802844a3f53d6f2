package http_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/mediapipe/internal/infra/logging"
	transport "github.com/mkrupp/mediapipe/internal/infra/transport/http"
)

func TestOpsHandler_Healthz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		checks map[string]transport.HealthCheck
		status int
		body   string
	}{
		{
			name:   "no checks",
			status: http.StatusOK,
			body:   "{}\n",
		},
		{
			name: "healthy",
			checks: map[string]transport.HealthCheck{
				"journal": func(context.Context) error { return nil },
			},
			status: http.StatusOK,
			body:   `{"journal":"ok"}` + "\n",
		},
		{
			name: "unhealthy",
			checks: map[string]transport.HealthCheck{
				"journal": func(context.Context) error { return errors.New("locked") },
				"cdn":     func(context.Context) error { return nil },
			},
			status: http.StatusServiceUnavailable,
			body:   `{"cdn":"ok","journal":"locked"}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			transport.NewOpsHandler(tt.checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestOpsHandler_Metrics(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	transport.NewOpsHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	handler := transport.TracingMiddleware(transport.LoggingMiddleware(
		transport.RescueingMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}), logging.NewNopLogger()),
		logging.NewNopLogger(),
	))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(transport.TraceIDHeader, "req-1")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(transport.TraceIDHeader))
}

func TestServe_StopsOnCancel(t *testing.T) {
	t.Parallel()

	sock, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- transport.Serve(ctx, sock, transport.NewOpsHandler(nil), transport.HTTPTransportConfig{
			ReadHeaderTimeout: time.Second,
			ShutdownTimeout:   time.Second,
		})
	}()

	var resp *http.Response

	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + sock.Addr().String() + "/healthz") //nolint:noctx

		return err == nil
	}, time.Second, 10*time.Millisecond)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "{}\n", string(body))

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
