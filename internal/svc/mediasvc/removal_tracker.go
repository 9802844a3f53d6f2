package mediasvc

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/infra/logging"
	"github.com/mkrupp/mediapipe/internal/infra/metrics"
)

// RemovalTrackerConfig bounds the removals a RemovalTracker keeps pending.
type RemovalTrackerConfig struct {
	// Size is the maximum number of pending removals
	Size int `env:"SIZE" default:"1024"`
	// TTL is how long a removal waits for its post-remove step
	TTL time.Duration `env:"TTL" default:"10m"`
}

// RemovalTracker adapts the explicit Removal flow to callers that only pass
// the media to both hooks. Pending removals are keyed by the media's
// identity token, so PostRemove finds the snapshot even when called with a
// different copy or after the ID was cleared. Removals that never see their
// post-remove step expire after the TTL or are evicted when the tracker is
// full.
type RemovalTracker struct {
	provider *Provider
	pending  *expirable.LRU[string, *Removal]
	log      logging.Logger
}

// NewRemovalTracker creates a RemovalTracker for provider.
func NewRemovalTracker(provider *Provider, cfg RemovalTrackerConfig) *RemovalTracker {
	if cfg.Size <= 0 {
		cfg.Size = 1024
	}

	tracker := &RemovalTracker{
		provider: provider,
		log:      logging.GetLogger("svc.mediasvc.removal_tracker").With(logging.Group("provider", "name", provider.Name())),
	}

	tracker.pending = expirable.NewLRU[string, *Removal](cfg.Size, tracker.evicted, cfg.TTL)

	return tracker
}

func (t *RemovalTracker) evicted(token string, removal *Removal) {
	if !removal.Pending() {
		return
	}

	metrics.RecordSnapshotEvicted()
	t.log.Warn("removal snapshot dropped before post-remove",
		"token", token,
		"age", time.Since(removal.Started()).String(),
	)
}

// PreRemove runs the provider's PreRemove and keeps the removal pending.
func (t *RemovalTracker) PreRemove(ctx context.Context, media *domain.Media) error {
	removal, err := t.provider.PreRemove(ctx, media)
	if err != nil {
		return err
	}

	t.pending.Add(removal.Token(), removal)

	return nil
}

// PostRemove completes the pending removal of the media. Without one it
// does nothing.
func (t *RemovalTracker) PostRemove(ctx context.Context, media *domain.Media) error {
	token := media.Token()

	removal, ok := t.pending.Get(token)
	if !ok {
		t.log.DebugContext(ctx, "no pending removal", "token", token)

		return t.provider.PostRemove(ctx, nil) //nolint:wrapcheck
	}

	// the snapshot is consumed before the entry leaves the cache so that
	// the eviction callback does not count it as dropped
	err := t.provider.PostRemove(ctx, removal)
	t.pending.Remove(token)

	//nolint:wrapcheck
	return err
}

// Len returns the number of pending removals.
func (t *RemovalTracker) Len() int {
	return t.pending.Len()
}
