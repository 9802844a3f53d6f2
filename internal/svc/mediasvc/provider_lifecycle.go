package mediasvc

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/infra/logging"
	"github.com/mkrupp/mediapipe/internal/infra/metrics"
	"github.com/mkrupp/mediapipe/internal/svc/thumbsvc"
)

// Transform derives the stored representation from the media's pending
// binary content and schedules a CDN flush. Without pending content it does
// nothing. A derivation failure aborts before any flush.
func (p *Provider) Transform(ctx context.Context, media *domain.Media) (err error) {
	if !media.HasBinaryContent() {
		metrics.RecordTransform(p.Name(), metrics.StatusSkipped)

		return nil
	}

	ctx, span := p.startSpan(ctx, "Provider.Transform", media)
	defer func() { endSpan(span, err) }()

	log := p.mediaLogger(media)

	defer func() {
		metrics.RecordTransform(p.Name(), metrics.Status(err))

		if err != nil {
			log.ErrorContext(ctx, "media transform failed", "error", err)
		} else {
			log.DebugContext(ctx, "media transformed", "reference", media.ProviderReference)
		}
	}()

	if media.ProviderName == "" {
		media.ProviderName = p.Name()
	}

	if err := p.kind.Derive(ctx, media); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransformFailed, err)
	}

	return p.FlushCDN(ctx, media)
}

// FlushCDN submits one CDN invalidation for all paths of the media's formats.
// It acts only on persisted media of a thumbnail-deriving provider that is
// not flushable yet. On failure the media's flush fields stay unset.
func (p *Provider) FlushCDN(ctx context.Context, media *domain.Media) (err error) {
	if media.ID.IsZero() || !p.RequireThumbnails() || media.CdnIsFlushable {
		return nil
	}

	log := p.mediaLogger(media)

	var paths []string

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "cdn flush failed", "error", err, "paths", len(paths))
		} else if len(paths) > 0 {
			log.DebugContext(ctx, "cdn flush scheduled", "paths", len(paths), "flush_id", media.CdnFlushIdentifier)
		}
	}()

	for _, format := range p.FormatNames() {
		if !thumbsvc.AppliesTo(media, format) {
			continue
		}

		key, err := p.PrivateURL(media, format)
		if err != nil {
			return fmt.Errorf("private url %s: %w", format, err)
		}

		entry, err := p.storage.Get(ctx, domain.BlobID(key), true)
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}

		paths = append(paths, entry.Key())
	}

	if len(paths) == 0 {
		return nil
	}

	id, err := p.cdn.FlushPaths(ctx, paths)
	if err != nil {
		if !errors.Is(err, domain.ErrCDNFlushFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrCDNFlushFailed, err)
		}

		return err
	}

	media.CdnFlushIdentifier = id
	media.CdnIsFlushable = true
	media.CdnStatus = domain.CDNStatusToFlush
	media.CdnFlushAt = p.now()

	return nil
}

// PrePersist stamps a new media before its first save.
func (p *Provider) PrePersist(_ context.Context, media *domain.Media) error {
	now := p.now()

	media.CreatedAt = now
	media.UpdatedAt = now

	return nil
}

// PreUpdate stamps a media before it is saved again.
func (p *Provider) PreUpdate(_ context.Context, media *domain.Media) error {
	media.UpdatedAt = p.now()

	return nil
}

// PostPersist stores the reference file of a newly saved media and derives
// its thumbnails, then drops the pending content.
func (p *Provider) PostPersist(ctx context.Context, media *domain.Media) (err error) {
	if !media.HasBinaryContent() {
		return nil
	}

	ctx, span := p.startSpan(ctx, "Provider.PostPersist", media)
	defer func() { endSpan(span, err) }()

	if err := p.writeReference(ctx, media); err != nil {
		return err
	}

	if p.RequireThumbnails() {
		if err := p.GenerateThumbnails(ctx, media); err != nil {
			return err
		}
	}

	media.ResetBinaryContent()

	return nil
}

// PostUpdate stores replaced content of a saved media, removes the file of
// the replaced reference and regenerates thumbnails.
func (p *Provider) PostUpdate(ctx context.Context, media *domain.Media) (err error) {
	if !media.HasBinaryContent() {
		return nil
	}

	ctx, span := p.startSpan(ctx, "Provider.PostUpdate", media)
	defer func() { endSpan(span, err) }()

	if err := p.writeReference(ctx, media); err != nil {
		return err
	}

	if previous := media.PreviousProviderReference; previous != "" && previous != media.ProviderReference {
		key, err := p.referencePath(media, previous)
		if err != nil {
			return fmt.Errorf("previous reference path: %w", err)
		}

		if err := p.deleteIfExists(ctx, key); err != nil {
			return fmt.Errorf("delete previous reference: %w", err)
		}

		media.PreviousProviderReference = ""
	}

	if p.RequireThumbnails() {
		if err := p.GenerateThumbnails(ctx, media); err != nil {
			return err
		}
	}

	media.ResetBinaryContent()

	return nil
}

func (p *Provider) writeReference(ctx context.Context, media *domain.Media) (err error) {
	key, err := p.ReferencePath(media)
	if err != nil {
		return fmt.Errorf("reference path: %w", err)
	}

	log := p.mediaLogger(media).With(logging.Group("blob", "key", key))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "reference write failed", "error", err)
		} else {
			log.DebugContext(ctx, "reference written")
		}
	}()

	unlock, err := p.storage.Lock(ctx, domain.BlobID(key), true)
	if err != nil {
		return fmt.Errorf("lock reference: %w", err)
	}
	defer unlock()

	if err := p.storage.Store(ctx, domain.NewBlob(domain.BlobID(key), media.BinaryContent)); err != nil {
		return fmt.Errorf("store reference: %w", err)
	}

	return nil
}

func (p *Provider) deleteIfExists(ctx context.Context, key string) error {
	exists, err := p.storage.Exists(ctx, domain.BlobID(key))
	if err != nil {
		return fmt.Errorf("exists: %w", err)
	}

	if !exists {
		return nil
	}

	if err := p.storage.Delete(ctx, domain.BlobID(key)); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	return nil
}

func (p *Provider) mediaLogger(media *domain.Media) logging.Logger {
	return p.log.With(logging.Group("media",
		"id", media.ID,
		"context", media.Context,
		"token", media.Token(),
	))
}

func (p *Provider) startSpan(ctx context.Context, name string, media *domain.Media) (context.Context, trace.Span) {
	//nolint:spancheck
	return p.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("media.id", media.ID.String()),
		attribute.String("media.context", media.Context),
		attribute.String("provider.name", p.Name()),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}
