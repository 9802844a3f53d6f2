package cdnsvc

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/infra/metrics"
)

// ServerConfig holds configuration for the Server CDN.
type ServerConfig struct {
	// Path is the public base URL the storage root is served under
	Path string `env:"PATH" default:"/uploads/media"`
}

// Server serves files straight from the origin. There is no cache to
// invalidate, so every flush completes immediately.
type Server struct {
	cfg ServerConfig
}

var _ CDN = (*Server)(nil)

// NewServer creates a Server CDN.
func NewServer(cfg ServerConfig) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) FlushPaths(_ context.Context, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", ErrNoPaths
	}

	metrics.RecordCDNFlush("server", len(paths), nil)

	return ulid.Make().String(), nil
}

func (s *Server) FlushByString(ctx context.Context, path string) (string, error) {
	return s.FlushPaths(ctx, []string{path})
}

func (s *Server) Path(relative string, _ bool) string {
	return joinURL(s.cfg.Path, relative)
}

func (s *Server) FlushStatus(_ context.Context, _ string) (domain.CDNStatus, error) {
	return domain.CDNStatusFlushed, nil
}
