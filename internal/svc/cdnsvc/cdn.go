package cdnsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mkrupp/mediapipe/internal/domain"
)

// ErrNoPaths is returned when a flush is requested without paths.
var ErrNoPaths = errors.New("no paths to flush")

// CDN publishes stored files and invalidates cached copies.
type CDN interface {
	// FlushPaths invalidates all paths in one batch and returns an opaque
	// flush identifier.
	FlushPaths(ctx context.Context, paths []string) (string, error)

	// FlushByString invalidates a single path or wildcard expression.
	FlushByString(ctx context.Context, path string) (string, error)

	// Path returns the public URL of a stored file.
	Path(relative string, flushable bool) string

	// FlushStatus reports the state of a flush submitted earlier.
	FlushStatus(ctx context.Context, id string) (domain.CDNStatus, error)
}

// Config selects and configures the CDN backend.
type Config struct {
	// Kind is one of "server", "cloudfront" or "fallback"
	Kind       string           `env:"KIND" default:"server"`
	Server     ServerConfig     `envPrefix:"SERVER_"`
	CloudFront CloudFrontConfig `envPrefix:"CLOUDFRONT_"`
	// Fallback serves flushable paths while a cloudfront invalidation is pending
	Fallback ServerConfig `envPrefix:"FALLBACK_"`
}

// New builds the configured CDN.
func New(ctx context.Context, cfg Config) (CDN, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", "server":
		return NewServer(cfg.Server), nil
	case "cloudfront":
		return NewCloudFrontFromConfig(ctx, cfg.CloudFront)
	case "fallback":
		primary, err := NewCloudFrontFromConfig(ctx, cfg.CloudFront)
		if err != nil {
			return nil, err
		}

		return NewFallback(primary, NewServer(cfg.Fallback)), nil
	default:
		return nil, fmt.Errorf("unknown cdn kind %q", cfg.Kind)
	}
}

func joinURL(base, relative string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(relative, "/")
}
