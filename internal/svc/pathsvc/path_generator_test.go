package pathsvc_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/svc/pathsvc"
)

func TestShardedGenerator(t *testing.T) {
	t.Parallel()

	gen := pathsvc.ShardedGenerator{}

	media := domain.NewMedia("news", "a.jpg", nil)
	media.ID = "42"

	first, err := gen.GeneratePath(media)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^news/[0-9a-z]{2}/[0-9a-z]{2}$`), first)

	clone := media.Clone()
	second, err := gen.GeneratePath(clone)
	require.NoError(t, err)
	assert.Equal(t, first, second, "path must be deterministic")

	other := domain.NewMedia("news", "b.jpg", nil)
	other.ID = "43"
	third, err := gen.GeneratePath(other)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)

	_, err = gen.GeneratePath(domain.NewMedia("news", "c.jpg", nil))
	require.ErrorIs(t, err, domain.ErrNoMediaID)
}

func TestNumericGenerator(t *testing.T) {
	t.Parallel()

	gen := pathsvc.NumericGenerator{FirstLevel: 100000, SecondLevel: 1000}

	tests := []struct {
		id      domain.MediaID
		want    string
		wantErr error
	}{
		{id: "1", want: "default/0001/01"},
		{id: "1001", want: "default/0001/02"},
		{id: "100001", want: "default/0002/01"},
		{id: "abc", wantErr: pathsvc.ErrNonNumericID},
		{id: "", wantErr: domain.ErrNoMediaID},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			t.Parallel()

			media := domain.NewMedia("default", "x", nil)
			media.ID = tt.id

			got, err := gen.GeneratePath(media)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	gen, err := pathsvc.New("", pathsvc.NumericGenerator{})
	require.NoError(t, err)
	assert.IsType(t, pathsvc.ShardedGenerator{}, gen)

	gen, err = pathsvc.New("numeric", pathsvc.NumericGenerator{})
	require.NoError(t, err)
	assert.IsType(t, pathsvc.NumericGenerator{}, gen)

	_, err = pathsvc.New("odm", pathsvc.NumericGenerator{})
	require.Error(t, err)
}
