package cdnsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/infra/logging"
	"github.com/mkrupp/mediapipe/internal/repo/flush"
)

// Journaled records every flush batch of the wrapped CDN in a journal and
// answers status queries for finished batches from it.
type Journaled struct {
	cdn     CDN
	backend string
	journal flush.Journal
	now     func() time.Time
	log     logging.Logger
}

var _ CDN = (*Journaled)(nil)

// NewJournaled wraps cdn. backend names the wrapped CDN in journal entries.
func NewJournaled(cdn CDN, backend string, journal flush.Journal) *Journaled {
	return &Journaled{
		cdn:     cdn,
		backend: backend,
		journal: journal,
		now:     time.Now,
		log:     logging.GetLogger("svc.cdnsvc.journaled").With(logging.Group("cdn", "backend", backend)),
	}
}

// FlushPaths flushes through the wrapped CDN and records the batch. A journal
// failure is logged; the flush itself has already been submitted.
func (j *Journaled) FlushPaths(ctx context.Context, paths []string) (string, error) {
	id, err := j.cdn.FlushPaths(ctx, paths)
	if err != nil {
		//nolint:wrapcheck
		return "", err
	}

	now := j.now()

	if err := j.journal.Record(ctx, domain.CDNFlush{
		ID:        id,
		Backend:   j.backend,
		Paths:     paths,
		Status:    domain.CDNStatusToFlush,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		j.log.WarnContext(ctx, "flush not journaled", "id", id, "error", err)
	}

	return id, nil
}

func (j *Journaled) FlushByString(ctx context.Context, path string) (string, error) {
	return j.FlushPaths(ctx, []string{path})
}

func (j *Journaled) Path(relative string, flushable bool) string {
	return j.cdn.Path(relative, flushable)
}

// FlushStatus returns terminal states from the journal and asks the wrapped
// CDN otherwise, storing any change.
func (j *Journaled) FlushStatus(ctx context.Context, id string) (domain.CDNStatus, error) {
	entry, err := j.journal.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrFlushNotFound) {
		return domain.CDNStatusError, fmt.Errorf("get flush: %w", err)
	}

	if entry != nil && entry.Status.Terminal() {
		return entry.Status, nil
	}

	status, err := j.cdn.FlushStatus(ctx, id)
	if err != nil {
		//nolint:wrapcheck
		return status, err
	}

	if entry != nil && entry.Status != status {
		if err := j.journal.UpdateStatus(ctx, id, status, j.now()); err != nil {
			return status, fmt.Errorf("update flush: %w", err)
		}
	}

	return status, nil
}

// Refresh polls the wrapped CDN for every pending batch and returns the
// number of batches whose status changed.
func (j *Journaled) Refresh(ctx context.Context) (changed int, err error) {
	defer func() {
		if err != nil {
			j.log.ErrorContext(ctx, "flush refresh failed", "error", err)
		} else {
			j.log.DebugContext(ctx, "flush refreshed", "changed", changed)
		}
	}()

	pending, err := j.journal.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}

	var errs []error

	for _, entry := range pending {
		status, err := j.cdn.FlushStatus(ctx, entry.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", entry.ID, err))

			continue
		}

		if status == entry.Status {
			continue
		}

		if err := j.journal.UpdateStatus(ctx, entry.ID, status, j.now()); err != nil {
			errs = append(errs, fmt.Errorf("update flush %s: %w", entry.ID, err))

			continue
		}

		changed++
	}

	return changed, errors.Join(errs...)
}
