package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/infra/logging"
	"github.com/mkrupp/mediapipe/internal/infra/metrics"
)

var (
	ErrBytesWrittenMismatch = errors.New("bytes written mismatch")
	ErrBytesReadMismatch    = errors.New("bytes read mismatch")
)

const lockSuffix = ".lock"

// FileSystemBlobRepositoryConfig holds configuration for the filesystem-based blob repository.
type FileSystemBlobRepositoryConfig struct {
	// Basedir is the root directory for blob storage
	Basedir string `env:"BASEDIR" default:"var/storage/media"`
}

// FileSystemBlobRepositoryFactory creates a factory function that returns a new FileSystemRepository.
// The factory function implements the RepositoryFactory type.
func FileSystemBlobRepositoryFactory(cfg FileSystemBlobRepositoryConfig) RepositoryFactory {
	return func(ctx context.Context, subdir string) (Repository, error) {
		return NewFileSystemBlobRepository(ctx, subdir, cfg)
	}
}

// NewFileSystemBlobRepository creates a new FileSystemRepository storing blobs
// below <Basedir>/<subdir>. Returns an error if the directory cannot be created.
func NewFileSystemBlobRepository(
	ctx context.Context,
	subdir string,
	cfg FileSystemBlobRepositoryConfig,
) (*FileSystemRepository, error) {
	log := logging.GetLogger("repo.blob.filesystem_repository").With(
		logging.Group("repo",
			"basedir", cfg.Basedir,
			"subdir", subdir,
		),
	)

	repo := &FileSystemRepository{
		root: filepath.Join(cfg.Basedir, filepath.FromSlash(subdir)),
		cfg:  cfg,
		log:  log,
	}

	if err := repo.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}

	return repo, nil
}

// FileSystemRepository implements Repository using the local filesystem.
// Keys map directly onto relative file paths below the repository root.
type FileSystemRepository struct {
	root string
	cfg  FileSystemBlobRepositoryConfig
	log  logging.Logger
}

var _ Repository = (*FileSystemRepository)(nil)

func (fsRepo *FileSystemRepository) Lock(ctx context.Context, id domain.BlobID, exclusive bool) (func(), error) {
	filename, err := fsRepo.GetFilename(id)
	if err != nil {
		return nil, err
	}

	mode := syscall.LOCK_SH
	if exclusive {
		mode = syscall.LOCK_EX
	}

	release, err := fsRepo.flock(ctx, filename, mode)
	if err != nil {
		return nil, fmt.Errorf("flock: %w", err)
	}

	return release, nil
}

func (fsRepo *FileSystemRepository) Exists(_ context.Context, id domain.BlobID) (bool, error) {
	filename, err := fsRepo.GetFilename(id)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("stat: %w", err)
	}

	return !info.IsDir(), nil
}

func (fsRepo *FileSystemRepository) Get(ctx context.Context, id domain.BlobID, force bool) (*domain.Blob, error) {
	key := domain.NormalizeBlobID(string(id))

	if _, err := fsRepo.GetFilename(key); err != nil {
		return nil, err
	}

	if !force {
		exists, err := fsRepo.Exists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("exists: %w", err)
		}

		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
		}
	}

	//nolint:exhaustruct
	return &domain.Blob{ID: key}, nil
}

func (fsRepo *FileSystemRepository) Delete(ctx context.Context, id domain.BlobID) error {
	if err := fsRepo.deleteBlob(ctx, id); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}

	return nil
}

func (fsRepo *FileSystemRepository) DeleteAll(ctx context.Context, prefix domain.BlobID, pattern string) error {
	if err := fsRepo.deleteBlobPattern(ctx, prefix, pattern); err != nil {
		return fmt.Errorf("delete blob pattern: %w", err)
	}

	return nil
}

func (fsRepo *FileSystemRepository) Fetch(ctx context.Context, id domain.BlobID) (*domain.Blob, error) {
	blob, err := fsRepo.fetchBlob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch blob: %w", err)
	}

	return blob, nil
}

func (fsRepo *FileSystemRepository) Store(ctx context.Context, blob *domain.Blob) error {
	if err := fsRepo.storeBlob(ctx, blob); err != nil {
		return fmt.Errorf("store blob: %w", err)
	}

	return nil
}

// GetFilename returns the full filesystem path for a blob with the given key.
func (fsRepo *FileSystemRepository) GetFilename(id domain.BlobID) (string, error) {
	key := domain.NormalizeBlobID(string(id))
	if key == "" || key == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, id)
	}

	return filepath.Join(fsRepo.root, filepath.FromSlash(string(key))), nil
}

func (fsRepo *FileSystemRepository) initStorage(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			fsRepo.log.ErrorContext(ctx, "init storage failed", "error", err)
		} else {
			fsRepo.log.DebugContext(ctx, "init storage")
		}
	}()

	if err := os.MkdirAll(fsRepo.root, 0o755); err != nil {
		return fmt.Errorf("mkdir all: %w", err)
	}

	return nil
}

func (fsRepo *FileSystemRepository) flock(ctx context.Context, filename string, mode int) (release func(), err error) {
	lockfile := filename + lockSuffix
	log := fsRepo.log.With(logging.Group("blob", "lockfile", lockfile))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "lock failed", "error", err)
		} else {
			log.DebugContext(ctx, "lock acquired")
		}
	}()

	if err := os.MkdirAll(filepath.Dir(lockfile), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir all: %w", err)
	}

	file, err := os.OpenFile(lockfile, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), mode); err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("flock: %w", err)
	}

	return func() {
		_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		_ = file.Close()
		_ = os.Remove(lockfile)

		log.DebugContext(ctx, "lock released")
	}, nil
}

func (fsRepo *FileSystemRepository) storeBlob(ctx context.Context, blob *domain.Blob) (err error) {
	done := metrics.TimeStorageOperation("fs", "store")
	defer func() { done(err) }()

	filename, err := fsRepo.GetFilename(blob.ID)
	if err != nil {
		return err
	}

	defer func() {
		log := fsRepo.log.With(logging.Group("blob", "id", blob.ID, "filename", filename))
		if err != nil {
			log.ErrorContext(ctx, "blob store failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob stored", "size", blob.Size())
		}
	}()

	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("mkdir all: %w", err)
	}

	// Write to a sibling temp file and rename so readers never see partial content
	tmp, err := os.CreateTemp(filepath.Dir(filename), "."+filepath.Base(filename)+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}

	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	written, err := blob.WriteTo(tmp)
	if err != nil {
		_ = tmp.Close()

		return fmt.Errorf("write: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("sync: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	if written != blob.Size() {
		return fmt.Errorf("%w: expected %d, got %d", ErrBytesWrittenMismatch, blob.Size(), written)
	}

	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	return nil
}

func (fsRepo *FileSystemRepository) fetchBlob(
	ctx context.Context,
	blobID domain.BlobID,
) (blob *domain.Blob, err error) {
	done := metrics.TimeStorageOperation("fs", "fetch")
	defer func() { done(err) }()

	filename, err := fsRepo.GetFilename(blobID)
	if err != nil {
		return nil, err
	}

	defer func() {
		log := fsRepo.log.With(logging.Group("blob", "id", blobID, "filename", filename))
		if err != nil {
			log.ErrorContext(ctx, "blob fetch failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob fetched")
		}
	}()

	file, err := os.OpenFile(filename, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, blobID)
		}

		return nil, fmt.Errorf("open: %w", err)
	}
	defer file.Close()

	//nolint:exhaustruct
	data := &domain.Blob{ID: domain.NormalizeBlobID(string(blobID))}
	if n, err := data.ReadFrom(file); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	} else if info, err := file.Stat(); err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	} else if n != info.Size() || n != data.Size() {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrBytesReadMismatch, info.Size(), n)
	}

	return data, nil
}

func (fsRepo *FileSystemRepository) deleteBlob(ctx context.Context, id domain.BlobID) (err error) {
	done := metrics.TimeStorageOperation("fs", "delete")
	defer func() { done(err) }()

	filename, err := fsRepo.GetFilename(id)
	if err != nil {
		return err
	}

	defer func() {
		log := fsRepo.log.With(logging.Group("blob", "id", id, "filename", filename))
		if err != nil {
			log.ErrorContext(ctx, "blob delete failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob deleted")
		}
	}()

	if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove: %w", err)
	}

	return nil
}

func (fsRepo *FileSystemRepository) deleteBlobPattern(
	ctx context.Context,
	prefix domain.BlobID,
	pattern string,
) (err error) {
	defer func() {
		log := fsRepo.log.With(logging.Group("blob", "prefix", prefix, "pattern", pattern))
		if err != nil {
			log.ErrorContext(ctx, "blob delete pattern failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob pattern deleted")
		}
	}()

	filenames, err := fsRepo.getFilenames(prefix, pattern)
	if err != nil {
		return fmt.Errorf("get filenames: %w", err)
	}

	for _, filename := range filenames {
		if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove: %w", err)
		}
	}

	return nil
}

func (fsRepo *FileSystemRepository) getFilenames(prefix domain.BlobID, pattern string) (filenames []string, err error) {
	basename, err := fsRepo.GetFilename(prefix)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(basename)
	if strings.HasSuffix(string(prefix), "/") {
		dir = basename
		basename += string(filepath.Separator)
	}

	pattern = basename + pattern

	err = filepath.Walk(dir, func(file string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}

			return err
		}

		if info.IsDir() || strings.HasSuffix(file, lockSuffix) {
			return nil
		}

		if matched, err := filepath.Match(pattern, file); err != nil {
			return fmt.Errorf("match: %w", err)
		} else if matched {
			filenames = append(filenames, file)
		}

		return nil
	})

	return filenames, err
}
