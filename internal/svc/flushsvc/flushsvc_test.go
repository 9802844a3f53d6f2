package flushsvc_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/svc/flushsvc"
)

var errUnavailable = errors.New("unavailable")

type fakeStatusSource map[string]domain.CDNStatus

func (f fakeStatusSource) FlushStatus(_ context.Context, id string) (domain.CDNStatus, error) {
	status, ok := f[id]
	if !ok {
		return domain.CDNStatusError, errUnavailable
	}

	return status, nil
}

func flushable(id string, flushID string) *domain.Media {
	media := domain.NewMedia("news", "a.jpg", nil)
	media.ID = domain.MediaID(id)
	media.CdnIsFlushable = true
	media.CdnFlushIdentifier = flushID
	media.CdnStatus = domain.CDNStatusToFlush

	return media
}

func TestReconciler_Reconcile(t *testing.T) {
	t.Parallel()

	source := fakeStatusSource{
		"f-waiting": domain.CDNStatusWaiting,
		"f-done":    domain.CDNStatusFlushed,
		"f-failed":  domain.CDNStatusError,
		"f-same":    domain.CDNStatusToFlush,
	}

	waiting := flushable("1", "f-waiting")
	done := flushable("2", "f-done")
	failed := flushable("3", "f-failed")
	same := flushable("4", "f-same")
	unknown := flushable("5", "f-unknown")

	idle := domain.NewMedia("news", "b.jpg", nil)
	idle.CdnFlushIdentifier = "f-done"

	changed, err := flushsvc.NewReconciler(source).Reconcile(
		context.Background(),
		[]*domain.Media{waiting, done, failed, same, unknown, idle},
	)
	require.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, []*domain.Media{waiting, done, failed}, changed)

	assert.Equal(t, domain.CDNStatusWaiting, waiting.CdnStatus)
	assert.True(t, waiting.CdnIsFlushable)
	assert.Equal(t, "f-waiting", waiting.CdnFlushIdentifier)

	for _, media := range []*domain.Media{done, failed} {
		assert.False(t, media.CdnIsFlushable)
		assert.Empty(t, media.CdnFlushIdentifier)
	}

	assert.Equal(t, domain.CDNStatusFlushed, done.CdnStatus)
	assert.Equal(t, domain.CDNStatusError, failed.CdnStatus)

	assert.Equal(t, domain.CDNStatusToFlush, unknown.CdnStatus)
	assert.Equal(t, domain.CDNStatusNotFlushed, idle.CdnStatus)
}

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) Refresh(context.Context) (int, error) {
	r.calls.Add(1)

	return 1, r.err
}

func TestWorker_Run(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{name: "refreshes"},
		{name: "keeps running on error", err: errUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			refresher := &countingRefresher{err: tt.err}
			worker := flushsvc.NewWorker(flushsvc.WorkerConfig{Interval: 5 * time.Millisecond}, refresher)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)

			go func() { done <- worker.Run(ctx) }()

			require.Eventually(t, func() bool { return refresher.calls.Load() >= 3 }, time.Second, time.Millisecond)

			cancel()

			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(time.Second):
				t.Fatal("worker did not stop")
			}
		})
	}
}
