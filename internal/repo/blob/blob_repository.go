package blob

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/mkrupp/mediapipe/internal/domain"
)

var (
	// ErrBlobNotFound is returned when a blob is required but absent.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrInvalidKey is returned for keys that resolve outside the repository.
	ErrInvalidKey = errors.New("invalid blob key")
)

// Repository defines the storage operations used by media providers.
// Keys are slash-separated paths; implementations normalize them with
// domain.NormalizeBlobID.
type Repository interface {
	// Lock acquires a lock on the blob with the given key.
	// If exclusive is true, acquires a write lock, otherwise a read lock.
	// Returns a function to release the lock, and any error encountered.
	Lock(ctx context.Context, id domain.BlobID, exclusive bool) (func(), error)

	// Exists checks if a blob with the given key exists. It has no side effects.
	Exists(ctx context.Context, id domain.BlobID) (bool, error)

	// Get resolves a key to a blob handle without loading its content.
	// With force set, the handle is returned even if nothing is stored under
	// the key yet; otherwise ErrBlobNotFound is returned for absent blobs.
	Get(ctx context.Context, id domain.BlobID, force bool) (*domain.Blob, error)

	// Store persists a blob in the repository, overwriting existing content.
	Store(ctx context.Context, blob *domain.Blob) error

	// Fetch retrieves a blob with its content.
	// Returns ErrBlobNotFound if the blob does not exist.
	Fetch(ctx context.Context, id domain.BlobID) (*domain.Blob, error)

	// Delete removes a blob. Deleting an absent blob is not an error.
	Delete(ctx context.Context, id domain.BlobID) error

	// DeleteAll removes all blobs whose key starts with prefix and whose
	// remainder matches the glob pattern.
	DeleteAll(ctx context.Context, prefix domain.BlobID, pattern string) error
}

// RepositoryFactory creates a Repository rooted at the given name
// (a subdirectory or key prefix, depending on the backend).
type RepositoryFactory func(
	ctx context.Context,
	name string,
) (Repository, error)

// matchKey reports whether key starts with prefix and the rest matches pattern.
func matchKey(key, prefix domain.BlobID, pattern string) bool {
	rest, ok := strings.CutPrefix(string(key), string(prefix))
	if !ok {
		return false
	}

	matched, err := path.Match(pattern, rest)

	return err == nil && matched
}
