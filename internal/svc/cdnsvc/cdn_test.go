package cdnsvc_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/repo/flush"
	"github.com/mkrupp/mediapipe/internal/svc/cdnsvc"
)

var errAPI = errors.New("api unavailable")

type mockCloudFrontAPI struct {
	m        sync.Mutex
	batches  []*types.InvalidationBatch
	statuses map[string]string
	err      error
}

func (api *mockCloudFrontAPI) CreateInvalidation(
	_ context.Context,
	in *cloudfront.CreateInvalidationInput,
	_ ...func(*cloudfront.Options),
) (*cloudfront.CreateInvalidationOutput, error) {
	api.m.Lock()
	defer api.m.Unlock()

	if api.err != nil {
		return nil, api.err
	}

	api.batches = append(api.batches, in.InvalidationBatch)

	return &cloudfront.CreateInvalidationOutput{
		Invalidation: &types.Invalidation{Id: aws.String("I1"), Status: aws.String("InProgress")},
	}, nil
}

func (api *mockCloudFrontAPI) GetInvalidation(
	_ context.Context,
	in *cloudfront.GetInvalidationInput,
	_ ...func(*cloudfront.Options),
) (*cloudfront.GetInvalidationOutput, error) {
	api.m.Lock()
	defer api.m.Unlock()

	status, ok := api.statuses[aws.ToString(in.Id)]
	if !ok {
		return nil, errAPI
	}

	return &cloudfront.GetInvalidationOutput{
		Invalidation: &types.Invalidation{Id: in.Id, Status: aws.String(status)},
	}, nil
}

func TestServer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	server := cdnsvc.NewServer(cdnsvc.ServerConfig{Path: "/uploads/media/"})

	assert.Equal(t, "/uploads/media/news/a.jpg", server.Path("/news/a.jpg", false))
	assert.Equal(t, "/uploads/media/news/a.jpg", server.Path("news/a.jpg", true))

	id, err := server.FlushPaths(ctx, []string{"news/a.jpg"})
	require.NoError(t, err)
	_, err = ulid.Parse(id)
	require.NoError(t, err)

	status, err := server.FlushStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.CDNStatusFlushed, status)

	_, err = server.FlushPaths(ctx, nil)
	require.ErrorIs(t, err, cdnsvc.ErrNoPaths)
}

func TestCloudFront_FlushPaths(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	api := &mockCloudFrontAPI{}
	cdn := cdnsvc.NewCloudFront(api, cdnsvc.CloudFrontConfig{
		Path:           "https://cdn.example.com",
		DistributionID: "DIST",
	})

	id, err := cdn.FlushPaths(ctx, []string{"news/a.jpg", "/admin/b.png"})
	require.NoError(t, err)
	assert.Equal(t, "I1", id)

	require.Len(t, api.batches, 1)
	assert.Equal(t, int32(2), aws.ToInt32(api.batches[0].Paths.Quantity))
	assert.Equal(t, []string{"/news/a.jpg", "/admin/b.png"}, api.batches[0].Paths.Items)
	assert.NotEmpty(t, aws.ToString(api.batches[0].CallerReference))

	assert.Equal(t, "https://cdn.example.com/news/a.jpg", cdn.Path("news/a.jpg", true))

	api.err = errAPI
	_, err = cdn.FlushPaths(ctx, []string{"x"})
	require.ErrorIs(t, err, domain.ErrCDNFlushFailed)
	require.ErrorIs(t, err, errAPI)
}

func TestCloudFront_FlushStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	api := &mockCloudFrontAPI{statuses: map[string]string{
		"A": "InProgress",
		"B": "Completed",
		"C": "Bogus",
	}}
	cdn := cdnsvc.NewCloudFront(api, cdnsvc.CloudFrontConfig{DistributionID: "DIST"})

	tests := []struct {
		id      string
		want    domain.CDNStatus
		wantErr error
	}{
		{id: "A", want: domain.CDNStatusWaiting},
		{id: "B", want: domain.CDNStatusFlushed},
		{id: "C", want: domain.CDNStatusError, wantErr: domain.ErrUnknownCDNStatus},
		{id: "D", want: domain.CDNStatusError, wantErr: errAPI},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()

			status, err := cdn.FlushStatus(ctx, tt.id)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.want, status)
		})
	}
}

func TestFallback(t *testing.T) {
	t.Parallel()

	primary := cdnsvc.NewServer(cdnsvc.ServerConfig{Path: "https://cdn.example.com"})
	fallback := cdnsvc.NewServer(cdnsvc.ServerConfig{Path: "https://origin.example.com"})
	cdn := cdnsvc.NewFallback(primary, fallback)

	assert.Equal(t, "https://origin.example.com/a.jpg", cdn.Path("a.jpg", true))
	assert.Equal(t, "https://cdn.example.com/a.jpg", cdn.Path("a.jpg", false))

	_, err := cdn.FlushByString(context.Background(), "a/*")
	require.NoError(t, err)
}

func TestJournaled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	api := &mockCloudFrontAPI{statuses: map[string]string{"I1": "InProgress"}}
	journal := flush.NewMemoryJournal()
	cdn := cdnsvc.NewJournaled(
		cdnsvc.NewCloudFront(api, cdnsvc.CloudFrontConfig{DistributionID: "DIST"}),
		"cloudfront",
		journal,
	)

	id, err := cdn.FlushPaths(ctx, []string{"news/a.jpg"})
	require.NoError(t, err)

	entry, err := journal.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.CDNStatusToFlush, entry.Status)
	assert.Equal(t, "cloudfront", entry.Backend)
	assert.Equal(t, []string{"news/a.jpg"}, entry.Paths)

	changed, err := cdn.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	changed, err = cdn.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	api.statuses["I1"] = "Completed"

	status, err := cdn.FlushStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.CDNStatusFlushed, status)

	// terminal states come from the journal
	delete(api.statuses, "I1")

	status, err = cdn.FlushStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.CDNStatusFlushed, status)

	pending, err := journal.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestJournaled_FlushErrorIsNotJournaled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	journal := flush.NewMemoryJournal()
	cdn := cdnsvc.NewJournaled(
		cdnsvc.NewCloudFront(&mockCloudFrontAPI{err: errAPI}, cdnsvc.CloudFrontConfig{DistributionID: "DIST"}),
		"cloudfront",
		journal,
	)

	_, err := cdn.FlushPaths(ctx, []string{"a.jpg"})
	require.ErrorIs(t, err, domain.ErrCDNFlushFailed)

	pending, err := journal.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestNew(t *testing.T) {
	t.Parallel()

	cdn, err := cdnsvc.New(context.Background(), cdnsvc.Config{Kind: "server"})
	require.NoError(t, err)
	assert.IsType(t, &cdnsvc.Server{}, cdn)

	_, err = cdnsvc.New(context.Background(), cdnsvc.Config{Kind: "cloudfront"})
	require.ErrorIs(t, err, cdnsvc.ErrCloudFrontNotConfigured)

	_, err = cdnsvc.New(context.Background(), cdnsvc.Config{Kind: "akamai"})
	require.Error(t, err)
}
