package mediasvc

import (
	"context"
	"fmt"
	"maps"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/infra/logging"
	"github.com/mkrupp/mediapipe/internal/repo/blob"
	"github.com/mkrupp/mediapipe/internal/svc/cdnsvc"
	"github.com/mkrupp/mediapipe/internal/svc/pathsvc"
	"github.com/mkrupp/mediapipe/internal/svc/thumbsvc"
)

const tracerName = "github.com/mkrupp/mediapipe/internal/svc/mediasvc"

// Kind derives the stored representation of a media from its pending
// binary content. Variants exist per media kind (files, images).
type Kind interface {
	// Derive validates the pending content and sets the provider reference
	// and content metadata. It must not write to storage.
	Derive(ctx context.Context, media *domain.Media) error
}

// Metadata describes a provider for listings.
type Metadata struct {
	Title       string
	Description string
	Domain      string
	Options     map[string]string
}

// Provider orchestrates the transform and publish pipeline of one media
// kind: derivation, reference and thumbnail storage, CDN invalidation and
// the removal lifecycle.
type Provider struct {
	name      string
	kind      Kind
	storage   blob.Repository
	cdn       cdnsvc.CDN
	paths     pathsvc.Generator
	thumbnail thumbsvc.Thumbnail
	resizer   thumbsvc.Resizer

	formats   map[string]domain.Format
	templates map[string]string
	m         sync.RWMutex

	now    func() time.Time
	tracer trace.Tracer
	log    logging.Logger
}

var _ thumbsvc.Provider = (*Provider)(nil)

// Option configures optional Provider collaborators.
type Option func(*Provider)

// WithResizer enables thumbnail derivation.
func WithResizer(resizer thumbsvc.Resizer) Option {
	return func(p *Provider) {
		p.resizer = resizer
	}
}

// WithTemplates sets the provider's view templates.
func WithTemplates(templates map[string]string) Option {
	return func(p *Provider) {
		p.templates = maps.Clone(templates)
	}
}

// WithClock replaces the time source used for lifecycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// NewProvider creates a Provider. Without WithResizer the provider stores
// only reference files.
func NewProvider(
	name string,
	kind Kind,
	storage blob.Repository,
	cdn cdnsvc.CDN,
	paths pathsvc.Generator,
	thumbnail thumbsvc.Thumbnail,
	opts ...Option,
) *Provider {
	provider := &Provider{
		name:      name,
		kind:      kind,
		storage:   storage,
		cdn:       cdn,
		paths:     paths,
		thumbnail: thumbnail,
		formats:   make(map[string]domain.Format),
		templates: make(map[string]string),
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
		log:       logging.GetLogger("svc.mediasvc.provider").With(logging.Group("provider", "name", name)),
	}

	for _, opt := range opts {
		opt(provider)
	}

	return provider
}

func (p *Provider) Name() string {
	p.m.RLock()
	defer p.m.RUnlock()

	return p.name
}

func (p *Provider) SetName(name string) {
	p.m.Lock()
	defer p.m.Unlock()

	p.name = name
}

// Metadata returns the provider's listing metadata.
func (p *Provider) Metadata() Metadata {
	name := p.Name()

	return Metadata{
		Title:       name,
		Description: name + ".description",
		Domain:      "mediapipe",
		Options:     map[string]string{"class": "fa fa-file"},
	}
}

// AddFormat registers a format, replacing any format with the same name.
func (p *Provider) AddFormat(name string, format domain.Format) {
	p.m.Lock()
	defer p.m.Unlock()

	p.formats[name] = format
}

// Format returns the named format. The boolean is false for unknown names.
func (p *Provider) Format(name string) (domain.Format, bool) {
	p.m.RLock()
	defer p.m.RUnlock()

	format, ok := p.formats[name]

	return format, ok
}

// Formats returns a copy of the format registry.
func (p *Provider) Formats() map[string]domain.Format {
	p.m.RLock()
	defer p.m.RUnlock()

	return maps.Clone(p.formats)
}

// FormatNames returns the registered format names in lexical order.
func (p *Provider) FormatNames() []string {
	formats := p.Formats()

	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// FormatName qualifies a format name with the media's context. The reserved
// admin and reference formats are never qualified.
func (p *Provider) FormatName(media *domain.Media, format string) string {
	if format == domain.FormatAdmin || format == domain.FormatReference {
		return format
	}

	baseName := media.Context + "_"
	if strings.HasPrefix(format, baseName) {
		return format
	}

	return baseName + format
}

func (p *Provider) SetTemplates(templates map[string]string) {
	p.m.Lock()
	defer p.m.Unlock()

	p.templates = maps.Clone(templates)
}

func (p *Provider) Templates() map[string]string {
	p.m.RLock()
	defer p.m.RUnlock()

	return maps.Clone(p.templates)
}

// Template returns the named template, if set.
func (p *Provider) Template(name string) (string, bool) {
	p.m.RLock()
	defer p.m.RUnlock()

	template, ok := p.templates[name]

	return template, ok
}

// Resizer returns the configured resizer, or nil.
func (p *Provider) Resizer() thumbsvc.Resizer {
	return p.resizer
}

// RequireThumbnails reports whether the provider derives thumbnails.
func (p *Provider) RequireThumbnails() bool {
	return p.resizer != nil
}

func (p *Provider) Storage() blob.Repository {
	return p.storage
}

func (p *Provider) CDN() cdnsvc.CDN {
	return p.cdn
}

// GeneratePath returns the storage directory of the media.
func (p *Provider) GeneratePath(media *domain.Media) (string, error) {
	dir, err := p.paths.GeneratePath(media)
	if err != nil {
		return "", fmt.Errorf("generate path: %w", err)
	}

	return dir, nil
}

// ReferencePath returns the storage key of the original file.
func (p *Provider) ReferencePath(media *domain.Media) (string, error) {
	return p.referencePath(media, media.ProviderReference)
}

func (p *Provider) referencePath(media *domain.Media, reference string) (string, error) {
	if reference == "" {
		return "", domain.ErrNoProviderReference
	}

	dir, err := p.GeneratePath(media)
	if err != nil {
		return "", err
	}

	return path.Join(dir, reference), nil
}

// PrivateURL returns the storage key of the media in the given format.
func (p *Provider) PrivateURL(media *domain.Media, format string) (string, error) {
	//nolint:wrapcheck
	return p.thumbnail.PrivateURL(p, media, format)
}

// PublicURL returns the CDN URL of the media in the given format.
func (p *Provider) PublicURL(media *domain.Media, format string) (string, error) {
	private, err := p.PrivateURL(media, format)
	if err != nil {
		return "", err
	}

	return p.CdnPath(private, media.CdnIsFlushable), nil
}

// CdnPath resolves a storage key to its public URL.
func (p *Provider) CdnPath(relative string, flushable bool) string {
	return p.cdn.Path(relative, flushable)
}

// GenerateThumbnails derives and stores all formats applying to the media.
func (p *Provider) GenerateThumbnails(ctx context.Context, media *domain.Media) error {
	if err := p.thumbnail.Generate(ctx, p, media); err != nil {
		return fmt.Errorf("generate thumbnails: %w", err)
	}

	return nil
}

// RemoveThumbnails deletes stored thumbnails, restricted to formats if given.
func (p *Provider) RemoveThumbnails(ctx context.Context, media *domain.Media, formats ...string) error {
	if err := p.thumbnail.Delete(ctx, p, media, formats...); err != nil {
		return fmt.Errorf("delete thumbnails: %w", err)
	}

	return nil
}
