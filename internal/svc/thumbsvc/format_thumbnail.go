package thumbsvc

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/infra/logging"
	"github.com/mkrupp/mediapipe/internal/infra/metrics"
)

// FormatThumbnailConfig holds configuration for FormatThumbnail.
type FormatThumbnailConfig struct {
	// Concurrency bounds the number of formats resized in parallel
	Concurrency int `env:"CONCURRENCY" default:"4"`
}

// FormatThumbnail stores one file per format next to the reference file,
// named thumb_<id>_<format>.<ext>.
type FormatThumbnail struct {
	cfg FormatThumbnailConfig
	log logging.Logger
}

var _ Thumbnail = (*FormatThumbnail)(nil)

// NewFormatThumbnail creates a FormatThumbnail.
func NewFormatThumbnail(cfg FormatThumbnailConfig) *FormatThumbnail {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	return &FormatThumbnail{
		cfg: cfg,
		log: logging.GetLogger("svc.thumbsvc.format_thumbnail"),
	}
}

// AppliesTo reports whether a format belongs to the media: the admin format
// always does, other formats when their name starts with the media's context.
func AppliesTo(media *domain.Media, format string) bool {
	return format == domain.FormatAdmin || strings.HasPrefix(format, media.Context)
}

func (thumb *FormatThumbnail) PrivateURL(provider Provider, media *domain.Media, format string) (string, error) {
	if format == domain.FormatReference {
		//nolint:wrapcheck
		return provider.ReferencePath(media)
	}

	dir, err := provider.GeneratePath(media)
	if err != nil {
		return "", fmt.Errorf("generate path: %w", err)
	}

	return path.Join(dir, fmt.Sprintf("thumb_%s_%s.%s", media.ID, format, extension(provider, media, format))), nil
}

func (thumb *FormatThumbnail) Generate(ctx context.Context, provider Provider, media *domain.Media) (err error) {
	log := thumb.log.With(logging.Group("media", "id", media.ID, "context", media.Context))

	defer func() {
		metrics.RecordThumbnail("generate", err)

		if err != nil {
			log.ErrorContext(ctx, "thumbnail generate failed", "error", err)
		} else {
			log.DebugContext(ctx, "thumbnails generated")
		}
	}()

	resizer := provider.Resizer()
	if resizer == nil {
		return nil
	}

	data, err := referenceContent(ctx, provider, media)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(thumb.cfg.Concurrency)

	for _, name := range sortedFormats(provider) {
		if !AppliesTo(media, name) {
			continue
		}

		format, _ := provider.Format(name)

		group.Go(func() error {
			return thumb.generateFormat(groupCtx, provider, resizer, media, data, name, format)
		})
	}

	//nolint:wrapcheck
	return group.Wait()
}

func (thumb *FormatThumbnail) generateFormat(
	ctx context.Context,
	provider Provider,
	resizer Resizer,
	media *domain.Media,
	data []byte,
	name string,
	format domain.Format,
) error {
	key, err := thumb.PrivateURL(provider, media, name)
	if err != nil {
		return err
	}

	resized, err := resizer.Resize(ctx, media, data, extension(provider, media, name), format)
	if err != nil {
		return fmt.Errorf("resize %s: %w", name, err)
	}

	storage := provider.Storage()

	unlock, err := storage.Lock(ctx, domain.BlobID(key), true)
	if err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	defer unlock()

	if err := storage.Store(ctx, domain.NewBlob(domain.BlobID(key), resized)); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}

	return nil
}

func (thumb *FormatThumbnail) Delete(
	ctx context.Context,
	provider Provider,
	media *domain.Media,
	formats ...string,
) (err error) {
	log := thumb.log.With(logging.Group("media", "id", media.ID, "context", media.Context))

	defer func() {
		metrics.RecordThumbnail("delete", err)

		if err != nil {
			log.ErrorContext(ctx, "thumbnail delete failed", "error", err)
		} else {
			log.DebugContext(ctx, "thumbnails deleted", "formats", len(formats))
		}
	}()

	if len(formats) == 0 {
		formats = sortedFormats(provider)
	}

	storage := provider.Storage()

	var errs []error

	for _, name := range formats {
		key, err := thumb.PrivateURL(provider, media, name)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		exists, err := storage.Exists(ctx, domain.BlobID(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("exists %s: %w", key, err))

			continue
		}

		if !exists {
			continue
		}

		if err := storage.Delete(ctx, domain.BlobID(key)); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func extension(provider Provider, media *domain.Media, name string) string {
	format, _ := provider.Format(name)

	return format.Extension(media.Extension())
}

func sortedFormats(provider Provider) []string {
	formats := provider.Formats()

	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// referenceContent returns the pending content of the media, or the stored
// reference file once the pending content has been written and dropped.
func referenceContent(ctx context.Context, provider Provider, media *domain.Media) ([]byte, error) {
	if media.HasBinaryContent() {
		return media.BinaryContent, nil
	}

	key, err := provider.ReferencePath(media)
	if err != nil {
		return nil, fmt.Errorf("reference path: %w", err)
	}

	reference, err := provider.Storage().Fetch(ctx, domain.BlobID(key))
	if err != nil {
		return nil, fmt.Errorf("fetch reference: %w", err)
	}

	return reference.Bytes(), nil
}
