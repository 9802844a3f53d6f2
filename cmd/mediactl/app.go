package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mkrupp/mediapipe/internal/domain"
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

var (
	errUnknownKind = errors.New("unknown kind")
	errMissingID   = errors.New("--id is required for new media")
)

// app wires the media pipeline from the configuration.
type app struct {
	cfg      Config
	storage  blob.Repository
	journal  flush.Journal
	cdn      *cdnsvc.Journaled
	pool     *mediasvc.Pool
	trackers map[string]*mediasvc.RemovalTracker
	log      logging.Logger
}

func newApp(ctx context.Context, cfg Config) (_ *app, err error) {
	a := &app{
		cfg:      cfg,
		trackers: make(map[string]*mediasvc.RemovalTracker),
		log:      logging.GetLogger("cmd.mediactl"),
	}

	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.storage, err = newStorage(ctx, cfg.Storage); err != nil {
		return nil, fmt.Errorf("new storage: %w", err)
	}

	if a.journal, err = newJournal(cfg.Journal); err != nil {
		return nil, fmt.Errorf("new journal: %w", err)
	}

	cdn, err := cdnsvc.New(ctx, cfg.CDN)
	if err != nil {
		return nil, fmt.Errorf("new cdn: %w", err)
	}

	a.cdn = cdnsvc.NewJournaled(cdn, cfg.CDN.Kind, a.journal)

	paths, err := pathsvc.New(cfg.Paths.Kind, cfg.Paths.Numeric)
	if err != nil {
		return nil, fmt.Errorf("new path generator: %w", err)
	}

	resizer, err := imagesvc.NewResizer(cfg.Image)
	if err != nil {
		return nil, fmt.Errorf("new resizer: %w", err)
	}

	thumbnail := thumbsvc.NewFormatThumbnail(cfg.Thumbnail)

	providers := []*mediasvc.Provider{
		mediasvc.NewProvider("file", mediasvc.NewFileKind(cfg.FileKind), a.storage, a.cdn, paths, thumbnail,
			mediasvc.WithTemplates(map[string]string{
				"helper_thumbnail": "provider/thumbnail.html",
				"helper_view":      "provider/view_file.html",
			}),
		),
		mediasvc.NewProvider("image", mediasvc.NewImageKind(cfg.ImageKind), a.storage, a.cdn, paths, thumbnail,
			mediasvc.WithResizer(resizer),
			mediasvc.WithTemplates(map[string]string{
				"helper_thumbnail": "provider/thumbnail.html",
				"helper_view":      "provider/view_image.html",
			}),
		),
	}

	poolCfg, err := mediasvc.LoadPoolConfig(cfg.PoolFile)
	if err != nil {
		return nil, fmt.Errorf("load pool config: %w", err)
	}

	if a.pool, err = mediasvc.NewPool(*poolCfg, providers...); err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	for _, provider := range providers {
		a.trackers[provider.Name()] = mediasvc.NewRemovalTracker(provider, cfg.Tracker)
	}

	return a, nil
}

func newStorage(ctx context.Context, cfg StorageConfig) (blob.Repository, error) {
	var factory blob.RepositoryFactory

	switch strings.ToLower(cfg.Kind) {
	case "", "filesystem":
		factory = blob.FileSystemBlobRepositoryFactory(cfg.FileSystem)
	case "s3":
		factory = blob.S3BlobRepositoryFactory(cfg.S3)
	case "memory":
		factory = blob.MemoryBlobRepositoryFactory()
	default:
		return nil, fmt.Errorf("storage %w: %q", errUnknownKind, cfg.Kind)
	}

	return factory(ctx, cfg.Name)
}

func newJournal(cfg JournalConfig) (flush.Journal, error) {
	var factory flush.JournalFactory

	switch strings.ToLower(cfg.Kind) {
	case "", "sqlite":
		factory = flush.SQLiteJournalFactory(cfg.SQLite)
	case "memory":
		factory = func() (flush.Journal, error) { return flush.NewMemoryJournal(), nil }
	default:
		return nil, fmt.Errorf("journal %w: %q", errUnknownKind, cfg.Kind)
	}

	return factory()
}

func (a *app) Close() {
	if a == nil || a.journal == nil {
		return
	}

	if err := a.journal.Close(); err != nil {
		a.log.Warn("journal close failed", "error", err)
	}
}

func (a *app) healthChecks() map[string]http.HealthCheck {
	return map[string]http.HealthCheck{
		"journal": func(ctx context.Context) error {
			_, err := a.journal.Pending(ctx)

			return err //nolint:wrapcheck
		},
		"storage": func(ctx context.Context) error {
			_, err := a.storage.Exists(ctx, "healthz")

			return err //nolint:wrapcheck
		},
	}
}

type transformOptions struct {
	provider string
	context  string
	id       string
	name     string
	content  []byte
	// existing is the stored record when replacing the content of a media
	existing *domain.Media
}

// transform runs the persist or update hook sequence for new content.
func (a *app) transform(ctx context.Context, opts transformOptions) (*domain.Media, error) {
	media := opts.existing
	if media == nil {
		media = domain.NewMedia(opts.context, opts.name, opts.content)
		media.ID = domain.MediaID(opts.id)
		media.ProviderName = opts.provider
	} else {
		media.BinaryContent = opts.content

		if opts.name != "" {
			media.Name = opts.name
		}
	}

	if media.Context == "" {
		media.Context = a.pool.DefaultContext()
	}

	provider, err := a.pool.ProviderFor(media)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	if opts.existing == nil {
		return media, a.persist(ctx, provider, media)
	}

	return media, a.update(ctx, provider, media)
}

func (a *app) persist(ctx context.Context, provider *mediasvc.Provider, media *domain.Media) error {
	if err := provider.PrePersist(ctx, media); err != nil {
		return fmt.Errorf("pre persist: %w", err)
	}

	if err := provider.Transform(ctx, media); err != nil {
		return fmt.Errorf("transform: %w", err)
	}

	if err := provider.PostPersist(ctx, media); err != nil {
		return fmt.Errorf("post persist: %w", err)
	}

	return nil
}

func (a *app) update(ctx context.Context, provider *mediasvc.Provider, media *domain.Media) error {
	if err := provider.PreUpdate(ctx, media); err != nil {
		return fmt.Errorf("pre update: %w", err)
	}

	// a new upload invalidates the previous flush
	media.CdnIsFlushable = false
	media.CdnFlushIdentifier = ""

	if err := provider.Transform(ctx, media); err != nil {
		return fmt.Errorf("transform: %w", err)
	}

	if err := provider.PostUpdate(ctx, media); err != nil {
		return fmt.Errorf("post update: %w", err)
	}

	return nil
}

// remove runs the removal hooks of the media's provider.
func (a *app) remove(ctx context.Context, media *domain.Media) error {
	if _, err := a.pool.ProviderFor(media); err != nil {
		return err //nolint:wrapcheck
	}

	tracker := a.trackers[media.ProviderName]

	if err := tracker.PreRemove(ctx, media); err != nil {
		return fmt.Errorf("pre remove: %w", err)
	}

	// the record is deleted between the hooks and loses its ID
	media.ID = ""

	if err := tracker.PostRemove(ctx, media); err != nil {
		return fmt.Errorf("post remove: %w", err)
	}

	return nil
}

type mediaURLs struct {
	Format  string `json:"format"`
	Private string `json:"private"`
	Public  string `json:"public"`
}

// urls resolves the storage key and public URL of the media in a format.
func (a *app) urls(media *domain.Media, format string) (*mediaURLs, error) {
	provider, err := a.pool.ProviderFor(media)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	name := provider.FormatName(media, format)

	private, err := provider.PrivateURL(media, name)
	if err != nil {
		return nil, fmt.Errorf("private url: %w", err)
	}

	public, err := provider.PublicURL(media, name)
	if err != nil {
		return nil, fmt.Errorf("public url: %w", err)
	}

	return &mediaURLs{Format: name, Private: private, Public: public}, nil
}

func (a *app) reconcile(ctx context.Context, medias []*domain.Media) ([]*domain.Media, error) {
	//nolint:wrapcheck
	return flushsvc.NewReconciler(a.cdn).Reconcile(ctx, medias)
}
