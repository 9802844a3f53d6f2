package flush

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/infra/logging"
)

// SQLiteJournalConfig holds configuration for the SQLite flush journal.
type SQLiteJournalConfig struct {
	// DatabasePath is the filesystem path to the SQLite database file
	DatabasePath string `env:"DATABASE_PATH" default:"var/storage/cdn_flush.db"`
}

// SQLiteJournal implements Journal using SQLite as the storage backend.
type SQLiteJournal struct {
	db        *sql.DB
	log       logging.Logger
	writeLock *sync.Mutex // go-sqlite does not support concurrent writes
}

var _ Journal = (*SQLiteJournal)(nil)

// SQLiteJournalFactory creates a factory function that returns a new SQLiteJournal.
func SQLiteJournalFactory(cfg SQLiteJournalConfig) JournalFactory {
	return func() (Journal, error) {
		return NewSQLiteJournal(cfg)
	}
}

// NewSQLiteJournal opens the database and creates the schema if needed.
func NewSQLiteJournal(cfg SQLiteJournalConfig) (*SQLiteJournal, error) {
	log := logging.GetLogger("repo.flush.sqlite_journal").With(
		logging.Group("db", "path", cfg.DatabasePath),
	)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir all: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := initializeDB(db); err != nil {
		return nil, fmt.Errorf("initialize db: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteJournal{
		db:        db,
		log:       log,
		writeLock: new(sync.Mutex),
	}, nil
}

func initializeDB(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cdn_flushes (
			id         TEXT    PRIMARY KEY,
			backend    TEXT    NOT NULL,
			paths      TEXT    NOT NULL,
			status     TEXT    NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS cdn_flushes_status ON cdn_flushes (status, created_at);
	`); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Record implements Journal.Record using SQLite.
func (j *SQLiteJournal) Record(ctx context.Context, flush domain.CDNFlush) (err error) {
	defer func() {
		log := j.log.With(logging.Group("flush", "id", flush.ID, "paths", len(flush.Paths)))
		if err != nil {
			log.ErrorContext(ctx, "flush record failed", "error", err)
		} else {
			log.DebugContext(ctx, "flush recorded")
		}
	}()

	paths, err := json.Marshal(flush.Paths)
	if err != nil {
		return fmt.Errorf("marshal paths: %w", err)
	}

	j.writeLock.Lock()
	defer j.writeLock.Unlock()

	_, err = j.db.ExecContext(ctx,
		"INSERT INTO cdn_flushes (id, backend, paths, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		flush.ID,
		flush.Backend,
		string(paths),
		flush.Status.String(),
		flush.CreatedAt.UnixMilli(),
		flush.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		var liteErr *sqlite.Error
		if errors.As(err, &liteErr) {
			switch liteErr.Code() {
			case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
				fallthrough
			case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
				err = errors.Join(domain.ErrFlushExists, err)
			default:
				break
			}
		}

		return fmt.Errorf("insert flush: %w", err)
	}

	return nil
}

// Get implements Journal.Get using SQLite.
func (j *SQLiteJournal) Get(ctx context.Context, id string) (*domain.CDNFlush, error) {
	row := j.db.QueryRowContext(ctx,
		"SELECT id, backend, paths, status, created_at, updated_at FROM cdn_flushes WHERE id = ?",
		id,
	)

	flush, err := scanFlush(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = errors.Join(domain.ErrFlushNotFound, err)
		}

		return nil, fmt.Errorf("query flush: %w", err)
	}

	return flush, nil
}

// UpdateStatus implements Journal.UpdateStatus using SQLite.
func (j *SQLiteJournal) UpdateStatus(ctx context.Context, id string, status domain.CDNStatus, at time.Time) error {
	j.writeLock.Lock()
	defer j.writeLock.Unlock()

	res, err := j.db.ExecContext(ctx,
		"UPDATE cdn_flushes SET status = ?, updated_at = ? WHERE id = ?",
		status.String(),
		at.UnixMilli(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update flush: %w", err)
	}

	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("update flush: %w: %s", domain.ErrFlushNotFound, id)
	}

	return nil
}

// Pending implements Journal.Pending using SQLite.
func (j *SQLiteJournal) Pending(ctx context.Context) ([]domain.CDNFlush, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT id, backend, paths, status, created_at, updated_at FROM cdn_flushes "+
			"WHERE status NOT IN (?, ?) ORDER BY created_at, id",
		domain.CDNStatusFlushed.String(),
		domain.CDNStatusError.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var flushes []domain.CDNFlush

	for rows.Next() {
		flush, err := scanFlush(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flush: %w", err)
		}

		flushes = append(flushes, *flush)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending: %w", err)
	}

	return flushes, nil
}

// Close implements Journal.Close by closing the database connection.
func (j *SQLiteJournal) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFlush(row scanner) (*domain.CDNFlush, error) {
	var (
		flush                domain.CDNFlush
		paths, status        string
		createdAt, updatedAt int64
	)

	if err := row.Scan(&flush.ID, &flush.Backend, &paths, &status, &createdAt, &updatedAt); err != nil {
		return nil, err //nolint:wrapcheck
	}

	if err := json.Unmarshal([]byte(paths), &flush.Paths); err != nil {
		return nil, fmt.Errorf("unmarshal paths: %w", err)
	}

	parsed, err := domain.ParseCDNStatus(status)
	if err != nil {
		return nil, err
	}

	flush.Status = parsed
	flush.CreatedAt = time.UnixMilli(createdAt)
	flush.UpdatedAt = time.UnixMilli(updatedAt)

	return &flush, nil
}
