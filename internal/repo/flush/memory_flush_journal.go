package flush

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mkrupp/mediapipe/internal/domain"
)

// MemoryJournal implements Journal in process memory.
type MemoryJournal struct {
	flushes map[string]domain.CDNFlush
	m       sync.Mutex
}

var _ Journal = (*MemoryJournal)(nil)

// NewMemoryJournal creates an empty MemoryJournal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{flushes: make(map[string]domain.CDNFlush)}
}

func (j *MemoryJournal) Record(_ context.Context, flush domain.CDNFlush) error {
	j.m.Lock()
	defer j.m.Unlock()

	if _, ok := j.flushes[flush.ID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrFlushExists, flush.ID)
	}

	flush.Paths = slices.Clone(flush.Paths)
	j.flushes[flush.ID] = flush

	return nil
}

func (j *MemoryJournal) Get(_ context.Context, id string) (*domain.CDNFlush, error) {
	j.m.Lock()
	defer j.m.Unlock()

	flush, ok := j.flushes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrFlushNotFound, id)
	}

	flush.Paths = slices.Clone(flush.Paths)

	return &flush, nil
}

func (j *MemoryJournal) UpdateStatus(_ context.Context, id string, status domain.CDNStatus, at time.Time) error {
	j.m.Lock()
	defer j.m.Unlock()

	flush, ok := j.flushes[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrFlushNotFound, id)
	}

	flush.Status = status
	flush.UpdatedAt = at
	j.flushes[id] = flush

	return nil
}

func (j *MemoryJournal) Pending(_ context.Context) ([]domain.CDNFlush, error) {
	j.m.Lock()
	defer j.m.Unlock()

	var pending []domain.CDNFlush

	for _, flush := range j.flushes {
		if !flush.Status.Terminal() {
			flush.Paths = slices.Clone(flush.Paths)
			pending = append(pending, flush)
		}
	}

	sort.Slice(pending, func(a, b int) bool {
		if pending[a].CreatedAt.Equal(pending[b].CreatedAt) {
			return pending[a].ID < pending[b].ID
		}

		return pending[a].CreatedAt.Before(pending[b].CreatedAt)
	})

	return pending, nil
}

func (j *MemoryJournal) Close() error {
	return nil
}
