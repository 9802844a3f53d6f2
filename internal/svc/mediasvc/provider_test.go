package mediasvc_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/repo/blob"
	"github.com/mkrupp/mediapipe/internal/svc/mediasvc"
	"github.com/mkrupp/mediapipe/internal/svc/pathsvc"
	"github.com/mkrupp/mediapipe/internal/svc/thumbsvc"
)

var (
	errDerive = errors.New("derive failed")
	errFlush  = errors.New("cdn down")
)

type spyStorage struct {
	*blob.MemoryRepository

	m     sync.Mutex
	calls map[string]int
}

func newSpyStorage() *spyStorage {
	return &spyStorage{
		MemoryRepository: blob.NewMemoryRepository(),
		calls:            make(map[string]int),
	}
}

func (s *spyStorage) record(op string) {
	s.m.Lock()
	defer s.m.Unlock()

	s.calls[op]++
}

func (s *spyStorage) count(op string) int {
	s.m.Lock()
	defer s.m.Unlock()

	return s.calls[op]
}

func (s *spyStorage) total() int {
	s.m.Lock()
	defer s.m.Unlock()

	total := 0
	for _, n := range s.calls {
		total += n
	}

	return total
}

func (s *spyStorage) Exists(ctx context.Context, id domain.BlobID) (bool, error) {
	s.record("exists")

	return s.MemoryRepository.Exists(ctx, id)
}

func (s *spyStorage) Get(ctx context.Context, id domain.BlobID, force bool) (*domain.Blob, error) {
	s.record("get")

	return s.MemoryRepository.Get(ctx, id, force)
}

func (s *spyStorage) Store(ctx context.Context, b *domain.Blob) error {
	s.record("store")

	return s.MemoryRepository.Store(ctx, b)
}

func (s *spyStorage) Delete(ctx context.Context, id domain.BlobID) error {
	s.record("delete")

	return s.MemoryRepository.Delete(ctx, id)
}

func (s *spyStorage) has(t *testing.T, key string) bool {
	t.Helper()

	exists, err := s.MemoryRepository.Exists(context.Background(), domain.BlobID(key))
	require.NoError(t, err)

	return exists
}

func (s *spyStorage) put(t *testing.T, key string) {
	t.Helper()

	require.NoError(t, s.MemoryRepository.Store(context.Background(), domain.NewBlob(domain.BlobID(key), []byte("data"))))
}

type spyCDN struct {
	m       sync.Mutex
	batches [][]string
	err     error
}

func (c *spyCDN) FlushPaths(_ context.Context, paths []string) (string, error) {
	c.m.Lock()
	defer c.m.Unlock()

	c.batches = append(c.batches, append([]string{}, paths...))

	if c.err != nil {
		return "", c.err
	}

	return "flush-1", nil
}

func (c *spyCDN) FlushByString(ctx context.Context, path string) (string, error) {
	return c.FlushPaths(ctx, []string{path})
}

func (c *spyCDN) Path(relative string, flushable bool) string {
	if flushable {
		return "https://origin.example.com/" + relative
	}

	return "https://cdn.example.com/" + relative
}

func (c *spyCDN) FlushStatus(_ context.Context, _ string) (domain.CDNStatus, error) {
	return domain.CDNStatusFlushed, nil
}

func (c *spyCDN) calls() int {
	c.m.Lock()
	defer c.m.Unlock()

	return len(c.batches)
}

type stubKind struct {
	err   error
	calls int
}

func (k *stubKind) Derive(_ context.Context, media *domain.Media) error {
	k.calls++

	if k.err != nil {
		return k.err
	}

	media.SetProviderReference("ref.jpg")

	return nil
}

type stubResizer struct{}

func (stubResizer) Resize(_ context.Context, _ *domain.Media, _ []byte, _ string, _ domain.Format) ([]byte, error) {
	return []byte("thumb"), nil
}

type fixture struct {
	provider *mediasvc.Provider
	storage  *spyStorage
	cdn      *spyCDN
	kind     *stubKind
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newFixture(withResizer bool) *fixture {
	fix := &fixture{
		storage: newSpyStorage(),
		cdn:     &spyCDN{},
		kind:    &stubKind{},
	}

	opts := []mediasvc.Option{mediasvc.WithClock(func() time.Time { return testNow })}
	if withResizer {
		opts = append(opts, mediasvc.WithResizer(stubResizer{}))
	}

	fix.provider = mediasvc.NewProvider(
		"image",
		fix.kind,
		fix.storage,
		fix.cdn,
		pathsvc.NumericGenerator{},
		thumbsvc.NewFormatThumbnail(thumbsvc.FormatThumbnailConfig{Concurrency: 2}),
		opts...,
	)

	fix.provider.AddFormat(domain.FormatAdmin, domain.Format{Width: 100})
	fix.provider.AddFormat("news_thumb", domain.Format{Width: 200})
	fix.provider.AddFormat("blog_thumb", domain.Format{Width: 300})

	return fix
}

func persistedMedia() *domain.Media {
	media := domain.NewMedia("news", "photo.jpg", nil)
	media.ID = "1"
	media.ProviderReference = "ref.jpg"

	return media
}

func TestProvider_FormatName(t *testing.T) {
	t.Parallel()

	provider := newFixture(false).provider
	media := domain.NewMedia("news", "a.jpg", nil)

	tests := []struct {
		format string
		want   string
	}{
		{format: "admin", want: "admin"},
		{format: "reference", want: "reference"},
		{format: "news_small", want: "news_small"},
		{format: "small", want: "news_small"},
		{format: "newsletter", want: "news_newsletter"},
		{format: "blog_small", want: "news_blog_small"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, provider.FormatName(media, tt.format))
		})
	}
}

func TestProvider_FormatRegistry(t *testing.T) {
	t.Parallel()

	provider := newFixture(false).provider

	format, ok := provider.Format("missing")
	assert.False(t, ok)
	assert.Equal(t, domain.Format{}, format)

	provider.AddFormat("news_thumb", domain.Format{Width: 250})

	format, ok = provider.Format("news_thumb")
	require.True(t, ok)
	assert.Equal(t, 250, format.Width)

	formats := provider.Formats()
	delete(formats, "news_thumb")

	_, ok = provider.Format("news_thumb")
	assert.True(t, ok, "Formats must return a copy")
	assert.Equal(t, []string{"admin", "blog_thumb", "news_thumb"}, provider.FormatNames())
}

func TestProvider_TransformWithoutBinaryContent(t *testing.T) {
	t.Parallel()

	fix := newFixture(true)
	media := persistedMedia()

	for range 2 {
		require.NoError(t, fix.provider.Transform(context.Background(), media))
	}

	assert.Zero(t, fix.kind.calls)
	assert.Zero(t, fix.storage.total())
	assert.Zero(t, fix.cdn.calls())
	assert.False(t, media.CdnIsFlushable)
}

func TestProvider_TransformFailureAbortsFlush(t *testing.T) {
	t.Parallel()

	fix := newFixture(true)
	fix.kind.err = errDerive

	media := persistedMedia()
	media.BinaryContent = []byte("raw")

	err := fix.provider.Transform(context.Background(), media)
	require.ErrorIs(t, err, domain.ErrTransformFailed)
	require.ErrorIs(t, err, errDerive)

	assert.Zero(t, fix.cdn.calls())
	assert.False(t, media.CdnIsFlushable)
	assert.Empty(t, media.CdnFlushIdentifier)
}

func TestProvider_TransformFlushes(t *testing.T) {
	t.Parallel()

	fix := newFixture(true)

	media := persistedMedia()
	media.BinaryContent = []byte("raw")

	require.NoError(t, fix.provider.Transform(context.Background(), media))

	assert.Equal(t, 1, fix.kind.calls)
	assert.Equal(t, "image", media.ProviderName)
	assert.Equal(t, 1, fix.cdn.calls())
	assert.Equal(t, domain.CDNStatusToFlush, media.CdnStatus)
}

func TestProvider_FlushCDNGuards(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		withResizer bool
		prepare     func(media *domain.Media)
	}{
		{
			name:        "media without id",
			withResizer: true,
			prepare:     func(media *domain.Media) { media.ID = "" },
		},
		{
			name:        "provider without thumbnails",
			withResizer: false,
			prepare:     func(*domain.Media) {},
		},
		{
			name:        "media already flushable",
			withResizer: true,
			prepare: func(media *domain.Media) {
				media.CdnIsFlushable = true
				media.CdnFlushIdentifier = "earlier"
				media.CdnStatus = domain.CDNStatusWaiting
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fix := newFixture(tt.withResizer)
			media := persistedMedia()
			tt.prepare(media)
			before := *media

			require.NoError(t, fix.provider.FlushCDN(context.Background(), media))

			assert.Zero(t, fix.cdn.calls())
			assert.Zero(t, fix.storage.total())
			assert.Equal(t, before.CdnFlushIdentifier, media.CdnFlushIdentifier)
			assert.Equal(t, before.CdnStatus, media.CdnStatus)
			assert.Equal(t, before.CdnIsFlushable, media.CdnIsFlushable)
		})
	}
}

func TestProvider_FlushCDNScopesToContext(t *testing.T) {
	t.Parallel()

	fix := newFixture(true)
	media := persistedMedia()

	require.NoError(t, fix.provider.FlushCDN(context.Background(), media))

	require.Equal(t, 1, fix.cdn.calls())
	assert.Equal(t, []string{
		"news/0001/01/thumb_1_admin.jpg",
		"news/0001/01/thumb_1_news_thumb.jpg",
	}, fix.cdn.batches[0])

	// paths are resolved even though no thumbnail exists yet
	assert.Equal(t, 2, fix.storage.count("get"))

	assert.Equal(t, "flush-1", media.CdnFlushIdentifier)
	assert.True(t, media.CdnIsFlushable)
	assert.Equal(t, domain.CDNStatusToFlush, media.CdnStatus)
	assert.Equal(t, testNow, media.CdnFlushAt)

	// a second call is guarded by the flushable flag
	require.NoError(t, fix.provider.FlushCDN(context.Background(), media))
	assert.Equal(t, 1, fix.cdn.calls())
}

func TestProvider_FlushCDNFailureLeavesFieldsUnset(t *testing.T) {
	t.Parallel()

	fix := newFixture(true)
	fix.cdn.err = errFlush

	media := persistedMedia()

	err := fix.provider.FlushCDN(context.Background(), media)
	require.ErrorIs(t, err, domain.ErrCDNFlushFailed)
	require.ErrorIs(t, err, errFlush)

	assert.Empty(t, media.CdnFlushIdentifier)
	assert.False(t, media.CdnIsFlushable)
	assert.Equal(t, domain.CDNStatusNotFlushed, media.CdnStatus)

	// the next write may try again
	fix.cdn.err = nil
	require.NoError(t, fix.provider.FlushCDN(context.Background(), media))
	assert.True(t, media.CdnIsFlushable)
}

func TestProvider_PrePersistAndPreUpdate(t *testing.T) {
	t.Parallel()

	fix := newFixture(false)
	media := domain.NewMedia("news", "a.jpg", nil)

	require.NoError(t, fix.provider.PrePersist(context.Background(), media))
	assert.Equal(t, testNow, media.CreatedAt)
	assert.Equal(t, testNow, media.UpdatedAt)

	media.CreatedAt = testNow.Add(-time.Hour)
	require.NoError(t, fix.provider.PreUpdate(context.Background(), media))
	assert.Equal(t, testNow.Add(-time.Hour), media.CreatedAt)
	assert.Equal(t, testNow, media.UpdatedAt)
}

func TestProvider_PostPersist(t *testing.T) {
	t.Parallel()

	fix := newFixture(true)
	media := persistedMedia()
	media.BinaryContent = []byte("raw")

	require.NoError(t, fix.provider.PostPersist(context.Background(), media))

	assert.True(t, fix.storage.has(t, "news/0001/01/ref.jpg"))
	assert.True(t, fix.storage.has(t, "news/0001/01/thumb_1_admin.jpg"))
	assert.True(t, fix.storage.has(t, "news/0001/01/thumb_1_news_thumb.jpg"))
	assert.False(t, fix.storage.has(t, "news/0001/01/thumb_1_blog_thumb.jpg"))
	assert.False(t, media.HasBinaryContent())

	// nothing pending, nothing to do
	stores := fix.storage.count("store")
	require.NoError(t, fix.provider.PostPersist(context.Background(), media))
	assert.Equal(t, stores, fix.storage.count("store"))
}

func TestProvider_PostPersistWithoutID(t *testing.T) {
	t.Parallel()

	fix := newFixture(false)
	media := domain.NewMedia("news", "a.jpg", []byte("raw"))
	media.ProviderReference = "ref.jpg"

	err := fix.provider.PostPersist(context.Background(), media)
	require.ErrorIs(t, err, domain.ErrNoMediaID)
	assert.True(t, media.HasBinaryContent())
}

func TestProvider_PostUpdateReplacesReference(t *testing.T) {
	t.Parallel()

	fix := newFixture(false)
	media := persistedMedia()
	fix.storage.put(t, "news/0001/01/ref.jpg")

	media.BinaryContent = []byte("new")
	media.SetProviderReference("ref2.jpg")

	require.NoError(t, fix.provider.PostUpdate(context.Background(), media))

	assert.False(t, fix.storage.has(t, "news/0001/01/ref.jpg"))
	assert.True(t, fix.storage.has(t, "news/0001/01/ref2.jpg"))
	assert.Empty(t, media.PreviousProviderReference)
	assert.False(t, media.HasBinaryContent())
}

func TestProvider_URLs(t *testing.T) {
	t.Parallel()

	fix := newFixture(true)
	media := persistedMedia()

	private, err := fix.provider.PrivateURL(media, domain.FormatReference)
	require.NoError(t, err)
	assert.Equal(t, "news/0001/01/ref.jpg", private)

	public, err := fix.provider.PublicURL(media, "news_thumb")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/news/0001/01/thumb_1_news_thumb.jpg", public)

	media.CdnIsFlushable = true

	public, err = fix.provider.PublicURL(media, "news_thumb")
	require.NoError(t, err)
	assert.Equal(t, "https://origin.example.com/news/0001/01/thumb_1_news_thumb.jpg", public)

	_, err = fix.provider.ReferencePath(domain.NewMedia("news", "x", nil))
	require.ErrorIs(t, err, domain.ErrNoProviderReference)
}

func TestProvider_MetadataAndTemplates(t *testing.T) {
	t.Parallel()

	fix := newFixture(false)
	fix.provider.SetName("file")

	metadata := fix.provider.Metadata()
	assert.Equal(t, "file", metadata.Title)
	assert.Equal(t, "file.description", metadata.Description)

	fix.provider.SetTemplates(map[string]string{"helper_view": "view.html"})

	template, ok := fix.provider.Template("helper_view")
	require.True(t, ok)
	assert.Equal(t, "view.html", template)

	_, ok = fix.provider.Template("helper_thumbnail")
	assert.False(t, ok)
}
