package imagesvc

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/mkrupp/mediapipe/internal/domain"
)

const (
	MIMETypeJPEG = "image/jpeg"
	MIMETypePNG  = "image/png"
	MIMETypeGIF  = "image/gif"
	MIMETypeTIFF = "image/tiff"
	MIMETypeWEBP = "image/webp"
)

//nolint:gochecknoglobals
var (
	imageExtTypes = map[string]string{
		"jpg":  MIMETypeJPEG,
		"jpeg": MIMETypeJPEG,
		"png":  MIMETypePNG,
		"gif":  MIMETypeGIF,
		"tiff": MIMETypeTIFF,
		"tif":  MIMETypeTIFF,
		"webp": MIMETypeWEBP,
	}

	imageExtHeaders = map[string][]string{
		MIMETypeJPEG: {"\xFF\xD8"},
		MIMETypePNG:  {"\x89\x50\x4E\x47\x0D\x0A\x1A\x0A"},
		MIMETypeGIF:  {"GIF87a", "GIF89a"},
		MIMETypeTIFF: {"\x49\x49\x2A\x00", "\x4D\x4D\x00\x2A"},
		MIMETypeWEBP: {"RIFF"},
	}

	imageDecoders = map[string]func(io.Reader) (image.Image, error){
		MIMETypeJPEG: jpeg.Decode,
		MIMETypePNG:  png.Decode,
		MIMETypeGIF:  gif.Decode,
		MIMETypeTIFF: tiff.Decode,
		MIMETypeWEBP: webp.Decode,
	}

	imageConfigDecoders = map[string]func(io.Reader) (image.Config, error){
		MIMETypeJPEG: jpeg.DecodeConfig,
		MIMETypePNG:  png.DecodeConfig,
		MIMETypeGIF:  gif.DecodeConfig,
		MIMETypeTIFF: tiff.DecodeConfig,
		MIMETypeWEBP: webp.DecodeConfig,
	}

	// webp has no encoder in x/image
	imageEncoders = map[string]func(io.Writer, image.Image, int) error{
		MIMETypeJPEG: func(w io.Writer, i image.Image, q int) error {
			return jpeg.Encode(w, i, &jpeg.Options{Quality: q})
		},
		MIMETypePNG: func(w io.Writer, i image.Image, _ int) error { return png.Encode(w, i) },
		MIMETypeGIF: func(w io.Writer, i image.Image, _ int) error { return gif.Encode(w, i, nil) },
		MIMETypeTIFF: func(w io.Writer, i image.Image, _ int) error {
			return tiff.Encode(w, i, &tiff.Options{Compression: tiff.Deflate})
		},
	}
)

// MIMETypeByExtension returns the image MIME type for a file extension
// (with or without leading dot).
func MIMETypeByExtension(ext string) (string, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))

	mimeType, ok := imageExtTypes[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrImageTypeNotSupported, ext)
	}

	return mimeType, nil
}

// CheckHeader verifies that the content starts with a magic header matching
// the extension.
func CheckHeader(ext string, data []byte) (string, error) {
	mimeType, err := MIMETypeByExtension(ext)
	if err != nil {
		return "", err
	}

	for _, header := range imageExtHeaders[mimeType] {
		if bytes.HasPrefix(data, []byte(header)) {
			return mimeType, nil
		}
	}

	return "", fmt.Errorf("%w: %q", domain.ErrImageTypeMismatch, ext)
}

// Dimensions decodes only the image header and returns its size.
func Dimensions(data []byte, ext string) (width int, height int, err error) {
	mimeType, err := MIMETypeByExtension(ext)
	if err != nil {
		return 0, 0, err
	}

	cfg, err := imageConfigDecoders[mimeType](bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", domain.ErrImageDecode, err)
	}

	return cfg.Width, cfg.Height, nil
}

func getDecoderByType(mimeType string) (func(io.Reader) (image.Image, error), error) {
	decoder, ok := imageDecoders[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrImageTypeNotSupported, mimeType)
	}

	return decoder, nil
}

func getEncoderByType(mimeType string) (func(io.Writer, image.Image, int) error, error) {
	encoder, ok := imageEncoders[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrImageTypeNotSupported, mimeType)
	}

	return encoder, nil
}
