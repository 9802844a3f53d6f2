package flushsvc

import (
	"context"
	"time"

	"github.com/mkrupp/mediapipe/internal/infra/logging"
)

// WorkerConfig holds the polling settings of the refresh worker.
type WorkerConfig struct {
	// Interval between two journal refreshes
	Interval time.Duration `env:"INTERVAL" default:"30s"`
}

// Refresher polls the pending flushes of a journal.
type Refresher interface {
	Refresh(ctx context.Context) (int, error)
}

// Worker refreshes pending CDN flushes periodically.
type Worker struct {
	cfg       WorkerConfig
	refresher Refresher
	log       logging.Logger
}

// NewWorker creates a Worker.
func NewWorker(cfg WorkerConfig, refresher Refresher) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}

	return &Worker{
		cfg:       cfg,
		refresher: refresher,
		log:       logging.GetLogger("svc.flushsvc.worker"),
	}
}

// Run refreshes once right away and then at every interval until ctx is
// done. Refresh errors are logged and do not stop the worker.
func (w *Worker) Run(ctx context.Context) error {
	w.log.InfoContext(ctx, "cdn flush worker started", "interval", w.cfg.Interval.String())

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		w.refresh(ctx)

		select {
		case <-ctx.Done():
			w.log.InfoContext(ctx, "cdn flush worker stopped")

			return nil
		case <-ticker.C:
		}
	}
}

func (w *Worker) refresh(ctx context.Context) {
	changed, err := w.refresher.Refresh(ctx)
	if err != nil {
		w.log.WarnContext(ctx, "cdn flush refresh incomplete", "error", err, "changed", changed)

		return
	}

	if changed > 0 {
		w.log.InfoContext(ctx, "cdn flushes updated", "changed", changed)
	}
}
