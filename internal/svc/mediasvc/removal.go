package mediasvc

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/infra/metrics"
)

// Removal carries the pre-delete snapshot of a media from PreRemove to
// PostRemove. It is consumed by the first PostRemove.
type Removal struct {
	token    string
	snapshot atomic.Pointer[domain.Media]
	started  time.Time
}

// Token returns the identity token of the media being removed.
func (r *Removal) Token() string {
	return r.token
}

// Started returns when PreRemove ran.
func (r *Removal) Started() time.Time {
	return r.started
}

// Pending reports whether PostRemove has not consumed the snapshot yet.
func (r *Removal) Pending() bool {
	return r.snapshot.Load() != nil
}

func (r *Removal) take() *domain.Media {
	return r.snapshot.Swap(nil)
}

// PreRemove snapshots the media and deletes its thumbnails right away, while
// the inputs to their paths are still intact. Thumbnails deleted here are not
// restored if the removal is abandoned later.
func (p *Provider) PreRemove(ctx context.Context, media *domain.Media) (removal *Removal, err error) {
	ctx, span := p.startSpan(ctx, "Provider.PreRemove", media)
	defer func() { endSpan(span, err) }()

	log := p.mediaLogger(media)

	defer func() {
		metrics.RecordRemoval("pre", metrics.Status(err))

		if err != nil {
			log.ErrorContext(ctx, "media pre-remove failed", "error", err)
		} else {
			log.DebugContext(ctx, "media pre-removed")
		}
	}()

	removal = &Removal{
		token:   media.Token(),
		started: p.now(),
	}
	removal.snapshot.Store(media.Clone())

	if p.RequireThumbnails() {
		if err := p.RemoveThumbnails(ctx, media); err != nil {
			return nil, err
		}
	}

	return removal, nil
}

// PostRemove deletes the reference file recorded in the removal's snapshot.
// Calling it without a pending removal does nothing; a missing reference
// file is not an error.
func (p *Provider) PostRemove(ctx context.Context, removal *Removal) (err error) {
	var snapshot *domain.Media
	if removal != nil {
		snapshot = removal.take()
	}

	if snapshot == nil {
		metrics.RecordRemoval("post", metrics.StatusSkipped)
		p.log.DebugContext(ctx, "media post-remove skipped, no pending snapshot")

		return nil
	}

	ctx, span := p.startSpan(ctx, "Provider.PostRemove", snapshot)
	defer func() { endSpan(span, err) }()

	log := p.mediaLogger(snapshot)

	defer func() {
		metrics.RecordRemoval("post", metrics.Status(err))

		if err != nil {
			log.ErrorContext(ctx, "media post-remove failed", "error", err)
		} else {
			log.DebugContext(ctx, "media post-removed")
		}
	}()

	key, err := p.ReferencePath(snapshot)
	if err != nil {
		return fmt.Errorf("reference path: %w", err)
	}

	if err := p.deleteIfExists(ctx, key); err != nil {
		return fmt.Errorf("delete reference: %w", err)
	}

	return nil
}
