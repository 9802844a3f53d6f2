package mediasvc

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"

	"github.com/mkrupp/mediapipe/internal/domain"
)

// FileKind stores uploads as plain files after checking their extension and
// detected content type.
type FileKind struct {
	cfg FileKindConfig
}

var _ Kind = (*FileKind)(nil)

// NewFileKind creates a FileKind.
func NewFileKind(cfg FileKindConfig) *FileKind {
	return &FileKind{cfg: cfg}
}

func (kind *FileKind) Derive(_ context.Context, media *domain.Media) error {
	ext, detected, err := kind.check(media)
	if err != nil {
		return err
	}

	kind.apply(media, ext, detected)

	return nil
}

// check validates the pending content and returns the accepted extension.
func (kind *FileKind) check(media *domain.Media) (string, *mimetype.MIME, error) {
	size := int64(len(media.BinaryContent))
	if kind.cfg.MaxSize > 0 && size > kind.cfg.MaxSize {
		return "", nil, fmt.Errorf("%w: %d exceeds %d", domain.ErrMediaTooLarge, size, kind.cfg.MaxSize)
	}

	detected := mimetype.Detect(media.BinaryContent)

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(media.Name), "."))
	if ext == "" {
		ext = strings.TrimPrefix(detected.Extension(), ".")
	}

	if !slices.Contains(kind.cfg.AllowedExtensions, ext) {
		return "", nil, fmt.Errorf("%w: extension %q", domain.ErrFileTypeNotAllowed, ext)
	}

	if !slices.ContainsFunc(kind.cfg.AllowedMIMETypes, detected.Is) {
		return "", nil, fmt.Errorf("%w: content type %q", domain.ErrFileTypeNotAllowed, detected.String())
	}

	return ext, detected, nil
}

// apply assigns a new provider reference and the content metadata.
func (kind *FileKind) apply(media *domain.Media, ext string, detected *mimetype.MIME) {
	size := int64(len(media.BinaryContent))

	if media.Name == "" {
		media.Name = strings.ToLower(ulid.Make().String()) + "." + ext
	}

	media.SetProviderReference(newReference(ext))
	media.ContentType = contentType(detected)
	media.Size = size
	media.ProviderStatus = domain.ProviderStatusOK

	if media.ProviderMetadata == nil {
		media.ProviderMetadata = make(map[string]string)
	}

	media.ProviderMetadata["filename"] = media.Name
	media.ProviderMetadata["size"] = strconv.FormatInt(size, 10)
}

func newReference(ext string) string {
	return strings.ToLower(ulid.Make().String()) + "." + ext
}

// contentType strips parameters such as charset from a detected type.
func contentType(detected *mimetype.MIME) string {
	ctype, _, _ := strings.Cut(detected.String(), ";")

	return ctype
}
