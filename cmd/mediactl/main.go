package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mkrupp/mediapipe/internal/infra/config"
	"github.com/mkrupp/mediapipe/internal/infra/logging"
	"github.com/mkrupp/mediapipe/internal/infra/transport/http"
	"github.com/mkrupp/mediapipe/internal/repo/blob"
	"github.com/mkrupp/mediapipe/internal/repo/flush"
	"github.com/mkrupp/mediapipe/internal/svc/cdnsvc"
	"github.com/mkrupp/mediapipe/internal/svc/flushsvc"
	"github.com/mkrupp/mediapipe/internal/svc/imagesvc"
	"github.com/mkrupp/mediapipe/internal/svc/mediasvc"
	"github.com/mkrupp/mediapipe/internal/svc/pathsvc"
	"github.com/mkrupp/mediapipe/internal/svc/thumbsvc"
)

const (
	appName = "mediapipe"
	svcName = "mediactl"
)

type Config struct {
	config.EnvConfig

	Log       logging.LoggerConfig           `envPrefix:"LOG_"`
	Storage   StorageConfig                  `envPrefix:"STORAGE_"`
	CDN       cdnsvc.Config                  `envPrefix:"CDN_"`
	Journal   JournalConfig                  `envPrefix:"JOURNAL_"`
	Paths     PathsConfig                    `envPrefix:"PATHS_"`
	Image     imagesvc.ImageConfig           `envPrefix:"IMAGE_"`
	FileKind  mediasvc.FileKindConfig        `envPrefix:"FILE_KIND_"`
	ImageKind mediasvc.ImageKindConfig       `envPrefix:"IMAGE_KIND_"`
	Thumbnail thumbsvc.FormatThumbnailConfig `envPrefix:"THUMBNAIL_"`
	Tracker   mediasvc.RemovalTrackerConfig  `envPrefix:"REMOVAL_TRACKER_"`
	Worker    flushsvc.WorkerConfig          `envPrefix:"WORKER_"`
	HTTP      http.HTTPTransportConfig       `envPrefix:"HTTP_"`

	// PoolFile is the YAML file defining contexts and formats
	PoolFile string `env:"POOL_FILE" default:"config/media.yaml"`
}

// StorageConfig selects the blob backend holding reference files and thumbnails.
type StorageConfig struct {
	// Kind is one of "filesystem", "s3" or "memory"
	Kind string `env:"KIND" default:"filesystem"`
	// Name is the storage subdirectory or key prefix
	Name string `env:"NAME" default:"media"`

	FileSystem blob.FileSystemBlobRepositoryConfig `envPrefix:"FS_"`
	S3         blob.S3BlobRepositoryConfig         `envPrefix:"S3_"`
}

// JournalConfig selects where CDN flush batches are recorded.
type JournalConfig struct {
	// Kind is one of "sqlite" or "memory"
	Kind   string                    `env:"KIND" default:"sqlite"`
	SQLite flush.SQLiteJournalConfig `envPrefix:"SQLITE_"`
}

type PathsConfig struct {
	// Kind is one of "sharded" or "numeric"
	Kind    string                   `env:"KIND" default:"sharded"`
	Numeric pathsvc.NumericGenerator `envPrefix:"NUMERIC_"`
}

func main() {
	var (
		cfg Config
		ctx = context.Background()

		configPrefix = strings.ToUpper(strings.Join([]string{appName, svcName}, "_"))
		loggerName   = strings.ToLower(strings.Join([]string{appName, svcName}, "."))
	)

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logging.Configure(ctx, cfg.Log, loggerName)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(cfg).ExecuteContext(ctx); err != nil {
		logging.GetLogger("cmd.mediactl").ErrorContext(ctx, "command failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1) //nolint:gocritic
	}
}
