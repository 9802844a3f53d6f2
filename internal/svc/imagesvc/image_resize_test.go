package imagesvc

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/mediapipe/internal/domain"
)

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return buf.Bytes()
}

func TestBox(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		srcW, srcH int
		format     domain.Format
		wantW      int
		wantH      int
		wantCrop   image.Rectangle
		wantErr    error
	}{
		{
			name: "width only keeps ratio",
			srcW: 200, srcH: 100,
			format: domain.Format{Width: 100},
			wantW:  100, wantH: 50,
			wantCrop: image.Rect(0, 0, 200, 100),
		},
		{
			name: "height only keeps ratio",
			srcW: 200, srcH: 100,
			format: domain.Format{Height: 25},
			wantW:  50, wantH: 25,
			wantCrop: image.Rect(0, 0, 200, 100),
		},
		{
			name: "constraint fits inside box",
			srcW: 200, srcH: 100,
			format: domain.Format{Width: 50, Height: 50, Constraint: true},
			wantW:  50, wantH: 25,
			wantCrop: image.Rect(0, 0, 200, 100),
		},
		{
			name: "cover crops center",
			srcW: 200, srcH: 100,
			format: domain.Format{Width: 50, Height: 50},
			wantW:  50, wantH: 50,
			wantCrop: image.Rect(50, 0, 150, 100),
		},
		{
			name:    "no box",
			srcW:    10, srcH: 10,
			format:  domain.Format{},
			wantErr: ErrInvalidBox,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			width, height, crop, err := box(tt.srcW, tt.srcH, tt.format)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantW, width)
			assert.Equal(t, tt.wantH, height)
			assert.Equal(t, tt.wantCrop, crop)
		})
	}
}

func TestResizer_Resize(t *testing.T) {
	t.Parallel()

	resizer, err := NewResizer(ImageConfig{Interpolator: "bilinear", Quality: 90})
	require.NoError(t, err)

	media := domain.NewMedia("news", "a.png", nil)
	media.ProviderReference = "ref.png"

	tests := []struct {
		name    string
		ext     string
		format  domain.Format
		wantW   int
		wantH   int
		wantErr error
	}{
		{name: "png to jpg", ext: "jpg", format: domain.Format{Width: 32}, wantW: 32, wantH: 16},
		{name: "png to png", ext: "png", format: domain.Format{Height: 8}, wantW: 16, wantH: 8},
		{name: "webp cannot be encoded", ext: "webp", format: domain.Format{Width: 10}, wantErr: domain.ErrImageTypeNotSupported},
		{name: "unknown extension", ext: "bmp", format: domain.Format{Width: 10}, wantErr: domain.ErrImageTypeNotSupported},
	}

	data := testPNG(t, 64, 32)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := resizer.Resize(context.Background(), media, data, tt.ext, tt.format)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)

			width, height, err := Dimensions(out, tt.ext)
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, width)
			assert.Equal(t, tt.wantH, height)
		})
	}
}

func TestNewResizer_UnknownInterpolator(t *testing.T) {
	t.Parallel()

	_, err := NewResizer(ImageConfig{Interpolator: "lanczos"})
	require.ErrorIs(t, err, ErrUnknownInterpolator)
}

func TestCheckHeader(t *testing.T) {
	t.Parallel()

	data := testPNG(t, 2, 2)

	mimeType, err := CheckHeader(".PNG", data)
	require.NoError(t, err)
	assert.Equal(t, MIMETypePNG, mimeType)

	_, err = CheckHeader("jpg", data)
	require.ErrorIs(t, err, domain.ErrImageTypeMismatch)

	_, err = CheckHeader("exe", data)
	require.ErrorIs(t, err, domain.ErrImageTypeNotSupported)
}
