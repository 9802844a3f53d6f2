package thumbsvc

import (
	"context"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/repo/blob"
)

// Resizer derives one representation of a media for a format.
type Resizer interface {
	// Resize scales data, the media's reference content, into format and
	// encodes the result as ext.
	Resize(ctx context.Context, media *domain.Media, data []byte, ext string, format domain.Format) ([]byte, error)
}

// Provider is the view of a media provider the thumbnail generator works on.
type Provider interface {
	// Formats returns a snapshot of the registered formats.
	Formats() map[string]domain.Format
	Format(name string) (domain.Format, bool)
	Storage() blob.Repository
	GeneratePath(media *domain.Media) (string, error)
	ReferencePath(media *domain.Media) (string, error)
	// Resizer returns nil when the provider does not derive thumbnails.
	Resizer() Resizer
}

// Thumbnail produces and removes the derived representations of a media.
type Thumbnail interface {
	// Generate derives and stores one representation per format applying to
	// the media's context.
	Generate(ctx context.Context, provider Provider, media *domain.Media) error

	// Delete removes stored representations, restricted to the given format
	// names if any are passed. Missing representations are skipped.
	Delete(ctx context.Context, provider Provider, media *domain.Media, formats ...string) error

	// PrivateURL returns the storage key of the media in the given format.
	PrivateURL(provider Provider, media *domain.Media, format string) (string, error)
}
