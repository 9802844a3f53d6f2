package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mkrupp/mediapipe/internal/infra/logging"
)

// HTTPTransportConfig contains configuration parameters for HTTP servers.
type HTTPTransportConfig struct {
	// ServerAddr is the network address to listen on
	ServerAddr string `env:"SERVER_ADDR" default:":9090"`
	// ReadHeaderTimeout is the timeout for reading request headers
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" default:"5s"`

	ReadTimeout     time.Duration `env:"READ_TIMEOUT" default:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"5s"`
}

// ListenAndServe serves handler until ctx is done, then shuts the server
// down gracefully. Requests pass the tracing, logging and panic recovery
// middleware.
func ListenAndServe(ctx context.Context, handler http.Handler, cfg HTTPTransportConfig) error {
	sock, err := net.Listen("tcp", cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	return Serve(ctx, sock, handler, cfg)
}

// Serve is ListenAndServe on an existing listener.
func Serve(ctx context.Context, sock net.Listener, handler http.Handler, cfg HTTPTransportConfig) error {
	log := logging.GetLogger("infra.transport.http")

	handler = RescueingMiddleware(handler, log)
	handler = LoggingMiddleware(handler, log)
	handler = TracingMiddleware(handler)

	//nolint:exhaustruct
	server := &http.Server{
		Handler:           handler,
		ErrorLog:          logging.GetLogLogger(log, logging.LevelError),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	stopped := make(chan error, 1)

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()

		stopped <- server.Shutdown(shutdownCtx)
	}()

	log.DebugContext(ctx, "listening", "addr", sock.Addr().String())

	if err := server.Serve(sock); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}

	if err := <-stopped; err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.DebugContext(ctx, "stopped", "addr", sock.Addr().String())

	return nil
}
