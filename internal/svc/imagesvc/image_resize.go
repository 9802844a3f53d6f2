package imagesvc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"golang.org/x/image/draw"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/infra/logging"
)

var (
	// ErrUnknownInterpolator is returned when an unsupported interpolation method is specified.
	ErrUnknownInterpolator = errors.New("unknown interpolator")

	// ErrUnsupportedMIMEType is returned when trying to process an unsupported image format.
	ErrUnsupportedMIMEType = errors.New("unsupported MIME type")

	// ErrInvalidBox is returned when a format defines neither width nor height.
	ErrInvalidBox = errors.New("format needs a width or a height")
)

//nolint:gochecknoglobals
var (
	// interpolMap maps interpolator names to their implementations.
	// Supported values: "nearestneighbor", "catmullrom", "bilinear", "approxbilinear".
	interpolMap = map[string]draw.Interpolator{
		"nearestneighbor": draw.NearestNeighbor,
		"catmullrom":      draw.CatmullRom,
		"bilinear":        draw.BiLinear,
		"approxbilinear":  draw.ApproxBiLinear,
	}
)

// Resizer derives thumbnails from image content.
type Resizer struct {
	interpol draw.Interpolator
	cfg      ImageConfig
	log      logging.Logger
}

// NewResizer creates a Resizer. Returns ErrUnknownInterpolator for an
// unsupported interpolator name.
func NewResizer(cfg ImageConfig) (*Resizer, error) {
	interpol, err := getInterpolatorByName(cfg.Interpolator)
	if err != nil {
		return nil, fmt.Errorf("get interpolator: %w", err)
	}

	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 80
	}

	return &Resizer{
		interpol: interpol,
		cfg:      cfg,
		log:      logging.GetLogger("svc.imagesvc.resizer"),
	}, nil
}

// Resize scales the media content into the box described by format and
// encodes it as ext.
//
// With only a width or a height set, the other side follows the aspect ratio.
// With both set, Constraint keeps the whole image inside the box; otherwise
// the image is scaled to cover the box and center-cropped.
func (r *Resizer) Resize(
	ctx context.Context,
	media *domain.Media,
	data []byte,
	ext string,
	format domain.Format,
) (resized []byte, err error) {
	log := r.log.With(logging.Group("image",
		"id", media.ID,
		"source", media.Extension(),
		logging.Group("target", "width", format.Width, "height", format.Height, "ext", ext),
	))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "image resize failed", "error", err)
		} else {
			log.DebugContext(ctx, "image resized", "size", len(resized))
		}
	}()

	srcType, err := MIMETypeByExtension(media.Extension())
	if err != nil {
		return nil, err
	}

	dstType, err := MIMETypeByExtension(ext)
	if err != nil {
		return nil, err
	}

	original, err := decodeImage(bytes.NewReader(data), srcType)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bitmap, err := r.scale(original, format)
	if err != nil {
		return nil, err
	}

	quality := format.Quality
	if quality <= 0 || quality > 100 {
		quality = r.cfg.Quality
	}

	resized, err = encodeImage(bitmap, dstType, quality)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	return resized, nil
}

func (r *Resizer) scale(original image.Image, format domain.Format) (*image.RGBA, error) {
	src := original.Bounds()

	width, height, crop, err := box(src.Dx(), src.Dy(), format)
	if err != nil {
		return nil, err
	}

	bitmap := image.NewRGBA(image.Rect(0, 0, width, height))
	r.interpol.Scale(bitmap, bitmap.Bounds(), original, crop.Add(src.Min), draw.Over, nil)

	return bitmap, nil
}

// box computes the target size and the source rectangle to sample from.
func box(srcW, srcH int, format domain.Format) (width int, height int, crop image.Rectangle, err error) {
	crop = image.Rect(0, 0, srcW, srcH)

	if srcW <= 0 || srcH <= 0 {
		return 0, 0, crop, fmt.Errorf("%w: empty image", domain.ErrImageDecode)
	}

	switch {
	case format.Width <= 0 && format.Height <= 0:
		return 0, 0, crop, ErrInvalidBox
	case format.Height <= 0:
		width = format.Width
		height = max(1, srcH*width/srcW)
	case format.Width <= 0:
		height = format.Height
		width = max(1, srcW*height/srcH)
	case format.Constraint:
		width, height = format.Width, format.Height
		if srcW*height > srcH*width {
			height = max(1, srcH*width/srcW)
		} else {
			width = max(1, srcW*height/srcH)
		}
	default:
		width, height = format.Width, format.Height
		// cover: trim the source to the target aspect ratio
		if srcW*height > srcH*width {
			cropW := srcH * width / height
			x0 := (srcW - cropW) / 2
			crop = image.Rect(x0, 0, x0+cropW, srcH)
		} else {
			cropH := srcW * height / width
			y0 := (srcH - cropH) / 2
			crop = image.Rect(0, y0, srcW, y0+cropH)
		}
	}

	return width, height, crop, nil
}

func getInterpolatorByName(name string) (draw.Interpolator, error) {
	interpol, ok := interpolMap[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInterpolator, name)
	}

	return interpol, nil
}

// decodeImage decodes a binary image into a Go image.Image object.
func decodeImage(reader io.Reader, ctype string) (image.Image, error) {
	decoder, err := getDecoderByType(ctype)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMIMEType, ctype)
	}

	img, err := decoder(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrImageDecode, err)
	}

	return img, nil
}

// encodeImage encodes a Go image.Image object into binary format.
func encodeImage(bitmap image.Image, ctype string, quality int) ([]byte, error) {
	var writer bytes.Buffer

	encoder, err := getEncoderByType(ctype)
	if err != nil {
		return nil, fmt.Errorf("get encoder: %w", err)
	}

	if err := encoder(&writer, bitmap, quality); err != nil {
		return nil, err
	}

	return writer.Bytes(), nil
}
