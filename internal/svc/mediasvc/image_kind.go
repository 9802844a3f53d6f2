package mediasvc

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/svc/imagesvc"
)

// ImageKind stores uploaded images and records their dimensions. The file
// extension must agree with the image header.
type ImageKind struct {
	file *FileKind
}

var _ Kind = (*ImageKind)(nil)

// NewImageKind creates an ImageKind.
func NewImageKind(cfg ImageKindConfig) *ImageKind {
	return &ImageKind{file: NewFileKind(FileKindConfig(cfg))}
}

func (kind *ImageKind) Derive(_ context.Context, media *domain.Media) error {
	ext, detected, err := kind.file.check(media)
	if err != nil {
		return err
	}

	if _, err := imagesvc.CheckHeader(ext, media.BinaryContent); err != nil {
		return fmt.Errorf("check header: %w", err)
	}

	width, height, err := imagesvc.Dimensions(media.BinaryContent, ext)
	if err != nil {
		return fmt.Errorf("dimensions: %w", err)
	}

	kind.file.apply(media, ext, detected)

	media.Width = width
	media.Height = height
	media.ProviderMetadata["width"] = strconv.Itoa(width)
	media.ProviderMetadata["height"] = strconv.Itoa(height)

	return nil
}
