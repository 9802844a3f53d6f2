package domain

import (
	"errors"
	"maps"
	"path"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ErrMediaTooLarge       = errors.New("media too large")
	ErrNoProviderReference = errors.New("no provider reference")
	ErrTransformFailed     = errors.New("transform failed")
	ErrFileTypeNotAllowed  = errors.New("file type not allowed")
)

// ProviderStatus describes the processing state of a media on its provider.
type ProviderStatus int

const (
	ProviderStatusOK ProviderStatus = iota + 1
	ProviderStatusSending
	ProviderStatusPending
	ProviderStatusError
	ProviderStatusEncoding
)

// Media is a single uploaded asset.
//
// BinaryContent is transient: it is set between upload and a successful
// transform/persist cycle and is never serialized.
type Media struct {
	ID                        MediaID           `json:"id,omitempty"`
	Name                      string            `json:"name"`
	Description               string            `json:"description,omitempty"`
	Context                   string            `json:"context"`
	Enabled                   bool              `json:"enabled"`
	ProviderName              string            `json:"providerName"`
	ProviderReference         string            `json:"providerReference"`
	PreviousProviderReference string            `json:"-"`
	ProviderStatus            ProviderStatus    `json:"providerStatus"`
	ProviderMetadata          map[string]string `json:"providerMetadata,omitempty"`
	ContentType               string            `json:"contentType"`
	Size                      int64             `json:"size"`
	Width                     int               `json:"width,omitempty"`
	Height                    int               `json:"height,omitempty"`
	BinaryContent             []byte            `json:"-"`
	CdnStatus                 CDNStatus         `json:"cdnStatus"`
	CdnFlushIdentifier        string            `json:"cdnFlushIdentifier,omitempty"`
	CdnFlushAt                time.Time         `json:"cdnFlushAt,omitzero"`
	CdnIsFlushable            bool              `json:"cdnIsFlushable"`
	CreatedAt                 time.Time         `json:"createdAt,omitzero"`
	UpdatedAt                 time.Time         `json:"updatedAt,omitzero"`

	token string
}

// NewMedia creates a media in the given context holding pending binary content.
func NewMedia(context string, name string, content []byte) *Media {
	media := &Media{
		Name:          name,
		Context:       context,
		Enabled:       true,
		BinaryContent: content,
		CdnStatus:     CDNStatusNotFlushed,
	}

	media.Token()

	return media
}

// Token returns the runtime identity token of the media, assigning one on
// first use. The token survives Clone and struct copies but is never
// persisted, so it identifies one in-memory entity across lifecycle hooks
// even after ID is cleared.
func (m *Media) Token() string {
	if m.token == "" {
		m.token = newToken()
	}

	return m.token
}

// HasBinaryContent reports whether the media carries content awaiting transform.
func (m *Media) HasBinaryContent() bool {
	return m.BinaryContent != nil
}

// ResetBinaryContent drops the transient content.
func (m *Media) ResetBinaryContent() {
	m.BinaryContent = nil
}

// Extension returns the lowercase extension of the provider reference without dot.
func (m *Media) Extension() string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(m.ProviderReference), "."))
}

// SetProviderReference replaces the provider reference and remembers the old one
// so that the stored file can be cleaned up on update.
func (m *Media) SetProviderReference(reference string) {
	if m.ProviderReference != "" && m.ProviderReference != reference {
		m.PreviousProviderReference = m.ProviderReference
	}

	m.ProviderReference = reference
}

// Clone returns a deep copy of the media. The copy shares the identity token.
func (m *Media) Clone() *Media {
	m.Token()

	clone := *m
	clone.ProviderMetadata = maps.Clone(m.ProviderMetadata)

	if m.BinaryContent != nil {
		clone.BinaryContent = append([]byte(nil), m.BinaryContent...)
	}

	return &clone
}

func newToken() string {
	return strings.ToLower(ulid.Make().String())
}
