package mediasvc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mkrupp/mediapipe/internal/domain"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrUnknownContext  = errors.New("unknown context")
)

// ContextConfig lists the providers and formats of one context.
type ContextConfig struct {
	Providers []string                 `yaml:"providers"`
	Formats   map[string]domain.Format `yaml:"formats"`
}

// PoolConfig is the YAML layout of the context definitions:
//
//	default_context: default
//	admin_format: {width: 200, quality: 90, format: jpg}
//	contexts:
//	  news:
//	    providers: [image]
//	    formats:
//	      small: {width: 100, quality: 70}
type PoolConfig struct {
	DefaultContext string                   `yaml:"default_context"`
	AdminFormat    domain.Format            `yaml:"admin_format"`
	Contexts       map[string]ContextConfig `yaml:"contexts"`
}

// ParsePoolConfig decodes a PoolConfig and fills in format defaults.
func ParsePoolConfig(reader io.Reader) (*PoolConfig, error) {
	var cfg PoolConfig

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode pool config: %w", err)
	}

	if cfg.DefaultContext == "" {
		cfg.DefaultContext = "default"
	}

	if cfg.AdminFormat == (domain.Format{}) {
		cfg.AdminFormat = domain.Format{Width: 200, Quality: 90, Format: "jpg", Constraint: true}
	}

	cfg.AdminFormat = withFormatDefaults(cfg.AdminFormat)

	for name, context := range cfg.Contexts {
		for formatName, format := range context.Formats {
			context.Formats[formatName] = withFormatDefaults(format)
		}

		cfg.Contexts[name] = context
	}

	return &cfg, nil
}

// LoadPoolConfig reads a PoolConfig from a YAML file.
func LoadPoolConfig(filename string) (*PoolConfig, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open pool config: %w", err)
	}
	defer file.Close()

	return ParsePoolConfig(file)
}

func withFormatDefaults(format domain.Format) domain.Format {
	if format.Quality == 0 {
		format.Quality = 80
	}

	if format.Format == "" {
		format.Format = "jpg"
	}

	return format
}

// Pool holds the providers by name and the contexts using them.
type Pool struct {
	providers map[string]*Provider
	contexts  map[string]ContextConfig
	cfg       PoolConfig
}

// NewPool registers the formats of every context on the providers it names,
// as <context>_<format>, and the admin format on every provider.
func NewPool(cfg PoolConfig, providers ...*Provider) (*Pool, error) {
	pool := &Pool{
		providers: make(map[string]*Provider, len(providers)),
		contexts:  make(map[string]ContextConfig, len(cfg.Contexts)),
		cfg:       cfg,
	}

	for _, provider := range providers {
		provider.AddFormat(domain.FormatAdmin, cfg.AdminFormat)
		pool.providers[provider.Name()] = provider
	}

	for name, context := range cfg.Contexts {
		for _, providerName := range context.Providers {
			provider, ok := pool.providers[providerName]
			if !ok {
				return nil, fmt.Errorf("context %q: %w: %q", name, ErrUnknownProvider, providerName)
			}

			for formatName, format := range context.Formats {
				provider.AddFormat(name+"_"+formatName, format)
			}
		}

		pool.contexts[name] = context
	}

	return pool, nil
}

// Provider returns the named provider.
func (pool *Pool) Provider(name string) (*Provider, error) {
	provider, ok := pool.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	return provider, nil
}

// ProviderFor returns the provider handling the media, checking that the
// media's context allows it.
func (pool *Pool) ProviderFor(media *domain.Media) (*Provider, error) {
	context, ok := pool.contexts[media.Context]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContext, media.Context)
	}

	if !slices.Contains(context.Providers, media.ProviderName) {
		return nil, fmt.Errorf("context %q: %w: %q", media.Context, ErrUnknownProvider, media.ProviderName)
	}

	return pool.Provider(media.ProviderName)
}

// Context returns the configuration of the named context.
func (pool *Pool) Context(name string) (ContextConfig, bool) {
	context, ok := pool.contexts[name]

	return context, ok
}

// DefaultContext returns the context used when none is given.
func (pool *Pool) DefaultContext() string {
	return pool.cfg.DefaultContext
}

// Providers returns the registered provider names in lexical order.
func (pool *Pool) Providers() []string {
	names := make([]string, 0, len(pool.providers))
	for name := range pool.providers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
