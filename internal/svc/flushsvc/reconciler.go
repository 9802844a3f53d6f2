package flushsvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/infra/logging"
	"github.com/mkrupp/mediapipe/internal/infra/metrics"
)

// StatusSource answers the state of a submitted flush.
type StatusSource interface {
	FlushStatus(ctx context.Context, id string) (domain.CDNStatus, error)
}

// Reconciler brings the CDN fields of flushed media up to date.
type Reconciler struct {
	cdn StatusSource
	log logging.Logger
}

// NewReconciler creates a Reconciler querying cdn.
func NewReconciler(cdn StatusSource) *Reconciler {
	return &Reconciler{
		cdn: cdn,
		log: logging.GetLogger("svc.flushsvc.reconciler"),
	}
}

// Reconcile queries the flush status of every flushable media and updates
// CdnStatus on change. Once a flush is finished, successfully or not, the
// media leaves the flushable state so that its next write flushes again.
// Failed flushes are not resubmitted.
//
// The returned media are the ones the caller has to persist. A failed query
// skips the media and is reported in the joined error.
func (r *Reconciler) Reconcile(ctx context.Context, medias []*domain.Media) (changed []*domain.Media, err error) {
	defer func() {
		if err != nil {
			r.log.ErrorContext(ctx, "reconcile failed", "error", err, "changed", len(changed))
		} else {
			r.log.DebugContext(ctx, "reconciled", "media", len(medias), "changed", len(changed))
		}
	}()

	var errs []error

	for _, media := range medias {
		if !media.CdnIsFlushable || media.CdnFlushIdentifier == "" {
			continue
		}

		status, err := r.cdn.FlushStatus(ctx, media.CdnFlushIdentifier)
		if err != nil {
			errs = append(errs, fmt.Errorf("flush status %s of media %s: %w", media.CdnFlushIdentifier, media.ID, err))

			continue
		}

		if status == media.CdnStatus {
			continue
		}

		media.CdnStatus = status

		if status.Terminal() {
			media.CdnIsFlushable = false
			media.CdnFlushIdentifier = ""
		}

		metrics.RecordReconcileChange(status.String())
		changed = append(changed, media)
	}

	return changed, errors.Join(errs...)
}
