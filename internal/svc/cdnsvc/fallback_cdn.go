package cdnsvc

import (
	"context"

	"github.com/mkrupp/mediapipe/internal/domain"
)

// Fallback flushes through a primary CDN and serves flushable paths, whose
// cached copies may still be stale, from a fallback CDN.
type Fallback struct {
	primary  CDN
	fallback CDN
}

var _ CDN = (*Fallback)(nil)

// NewFallback creates a Fallback CDN.
func NewFallback(primary CDN, fallback CDN) *Fallback {
	return &Fallback{primary: primary, fallback: fallback}
}

func (f *Fallback) FlushPaths(ctx context.Context, paths []string) (string, error) {
	//nolint:wrapcheck
	return f.primary.FlushPaths(ctx, paths)
}

func (f *Fallback) FlushByString(ctx context.Context, path string) (string, error) {
	//nolint:wrapcheck
	return f.primary.FlushByString(ctx, path)
}

func (f *Fallback) Path(relative string, flushable bool) string {
	if flushable {
		return f.fallback.Path(relative, flushable)
	}

	return f.primary.Path(relative, flushable)
}

func (f *Fallback) FlushStatus(ctx context.Context, id string) (domain.CDNStatus, error) {
	//nolint:wrapcheck
	return f.primary.FlushStatus(ctx, id)
}
