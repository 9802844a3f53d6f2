package blob

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mkrupp/mediapipe/internal/domain"
)

// MemoryRepository implements Repository in process memory.
// It backs dry runs and tests.
type MemoryRepository struct {
	blobs map[domain.BlobID][]byte
	locks map[domain.BlobID]*sync.RWMutex
	m     *sync.Mutex
}

var _ Repository = (*MemoryRepository)(nil)

// MemoryBlobRepositoryFactory returns a factory handing out one shared
// MemoryRepository per name.
func MemoryBlobRepositoryFactory() RepositoryFactory {
	var (
		m     sync.Mutex
		repos = make(map[string]*MemoryRepository)
	)

	return func(_ context.Context, name string) (Repository, error) {
		m.Lock()
		defer m.Unlock()

		repo, ok := repos[name]
		if !ok {
			repo = NewMemoryRepository()
			repos[name] = repo
		}

		return repo, nil
	}
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		blobs: make(map[domain.BlobID][]byte),
		locks: make(map[domain.BlobID]*sync.RWMutex),
		m:     new(sync.Mutex),
	}
}

func (mem *MemoryRepository) Lock(_ context.Context, id domain.BlobID, exclusive bool) (func(), error) {
	key := domain.NormalizeBlobID(string(id))

	mem.m.Lock()
	lock, ok := mem.locks[key]
	if !ok {
		lock = new(sync.RWMutex)
		mem.locks[key] = lock
	}
	mem.m.Unlock()

	if exclusive {
		lock.Lock()

		return lock.Unlock, nil
	}

	lock.RLock()

	return lock.RUnlock, nil
}

func (mem *MemoryRepository) Exists(_ context.Context, id domain.BlobID) (bool, error) {
	mem.m.Lock()
	defer mem.m.Unlock()

	_, ok := mem.blobs[domain.NormalizeBlobID(string(id))]

	return ok, nil
}

func (mem *MemoryRepository) Get(ctx context.Context, id domain.BlobID, force bool) (*domain.Blob, error) {
	key := domain.NormalizeBlobID(string(id))
	if key == "" || key == "." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, id)
	}

	if !force {
		if ok, _ := mem.Exists(ctx, key); !ok {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
		}
	}

	//nolint:exhaustruct
	return &domain.Blob{ID: key}, nil
}

func (mem *MemoryRepository) Store(_ context.Context, blob *domain.Blob) error {
	key := domain.NormalizeBlobID(string(blob.ID))
	if key == "" || key == "." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, blob.ID)
	}

	mem.m.Lock()
	defer mem.m.Unlock()

	mem.blobs[key] = append([]byte{}, blob.Body...)

	return nil
}

func (mem *MemoryRepository) Fetch(_ context.Context, id domain.BlobID) (*domain.Blob, error) {
	key := domain.NormalizeBlobID(string(id))

	mem.m.Lock()
	defer mem.m.Unlock()

	body, ok := mem.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
	}

	return domain.NewBlob(key, append([]byte{}, body...)), nil
}

func (mem *MemoryRepository) Delete(_ context.Context, id domain.BlobID) error {
	mem.m.Lock()
	defer mem.m.Unlock()

	delete(mem.blobs, domain.NormalizeBlobID(string(id)))

	return nil
}

func (mem *MemoryRepository) DeleteAll(_ context.Context, prefix domain.BlobID, pattern string) error {
	mem.m.Lock()
	defer mem.m.Unlock()

	for key := range mem.blobs {
		if matchKey(key, prefix, pattern) {
			delete(mem.blobs, key)
		}
	}

	return nil
}

// Keys returns all stored keys in lexical order.
func (mem *MemoryRepository) Keys() []domain.BlobID {
	mem.m.Lock()
	defer mem.m.Unlock()

	keys := make([]domain.BlobID, 0, len(mem.blobs))
	for key := range mem.blobs {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	return keys
}
