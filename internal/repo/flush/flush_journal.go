package flush

import (
	"context"
	"time"

	"github.com/mkrupp/mediapipe/internal/domain"
)

// Journal defines persistence for submitted CDN flush batches.
type Journal interface {
	// Record adds a new flush batch.
	// Returns ErrFlushExists if the identifier is already recorded.
	Record(ctx context.Context, flush domain.CDNFlush) error

	// Get retrieves a flush batch by its identifier.
	// Returns ErrFlushNotFound if it does not exist.
	Get(ctx context.Context, id string) (*domain.CDNFlush, error)

	// UpdateStatus stores a new status for the flush batch.
	// Returns ErrFlushNotFound if it does not exist.
	UpdateStatus(ctx context.Context, id string, status domain.CDNStatus, at time.Time) error

	// Pending lists the batches whose status is not terminal, oldest first.
	Pending(ctx context.Context) ([]domain.CDNFlush, error)

	// Close releases any resources held by the journal.
	Close() error
}

// JournalFactory is a function that creates a new Journal instance.
type JournalFactory func() (Journal, error)
