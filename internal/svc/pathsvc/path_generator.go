package pathsvc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strconv"

	"github.com/zeebo/blake3"

	"github.com/mkrupp/mediapipe/internal/domain"
)

// ErrNonNumericID is returned by NumericGenerator for IDs that are not integers.
var ErrNonNumericID = errors.New("media id is not numeric")

// Generator maps a media to the storage directory holding its files.
// Implementations are pure functions of the media's ID and context.
type Generator interface {
	GeneratePath(media *domain.Media) (string, error)
}

// ShardedGenerator spreads media over two directory levels taken from the
// hex BLAKE3 digest of the ID: <context>/<aa>/<bb>.
type ShardedGenerator struct{}

var _ Generator = ShardedGenerator{}

func (ShardedGenerator) GeneratePath(media *domain.Media) (string, error) {
	if media.ID.IsZero() {
		return "", domain.ErrNoMediaID
	}

	sum := blake3.Sum256([]byte(media.ID))
	shard := hex.EncodeToString(sum[:2])

	return path.Join(media.Context, shard[0:2], shard[2:4]), nil
}

// NumericGenerator groups sequential numeric IDs into buckets:
// <context>/<first level %04d>/<second level %02d>.
type NumericGenerator struct {
	FirstLevel  int64 `env:"FIRST_LEVEL" default:"100000"`
	SecondLevel int64 `env:"SECOND_LEVEL" default:"1000"`
}

var _ Generator = NumericGenerator{}

func (gen NumericGenerator) GeneratePath(media *domain.Media) (string, error) {
	if media.ID.IsZero() {
		return "", domain.ErrNoMediaID
	}

	id, err := strconv.ParseInt(media.ID.String(), 10, 64)
	if err != nil || id < 0 {
		return "", fmt.Errorf("%w: %q", ErrNonNumericID, media.ID)
	}

	firstLevel, secondLevel := gen.FirstLevel, gen.SecondLevel
	if firstLevel <= 0 {
		firstLevel = 100000
	}

	if secondLevel <= 0 {
		secondLevel = 1000
	}

	first := id / firstLevel
	second := (id - first*firstLevel) / secondLevel

	return fmt.Sprintf("%s/%04d/%02d", media.Context, first+1, second+1), nil
}

// New returns the generator for the given kind ("sharded" or "numeric").
func New(kind string, numeric NumericGenerator) (Generator, error) {
	switch kind {
	case "", "sharded":
		return ShardedGenerator{}, nil
	case "numeric":
		return numeric, nil
	default:
		return nil, fmt.Errorf("unknown path generator %q", kind)
	}
}
