package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentdir/iconfetch/internal/assets"
	catalogmemory "github.com/agentdir/iconfetch/internal/catalog/memory"
	"github.com/agentdir/iconfetch/internal/hash/sha256"
	publishermemory "github.com/agentdir/iconfetch/internal/publisher/memory"
	storagememory "github.com/agentdir/iconfetch/internal/storage/memory"
)

func testConfig() Config {
	return Config{
		MaxRounds:      3,
		BackoffBase:    time.Millisecond,
		BackoffMax:     4 * time.Millisecond,
		AttemptTimeout: time.Second,
		Topic:          "asset-events",
	}
}

type pipelineDeps struct {
	blobs     *storagememory.BlobStore
	catalog   *catalogmemory.Store
	publisher *publishermemory.Publisher
}

func newTestPipeline(fetcher assets.Fetcher, cfg Config) (*Pipeline, pipelineDeps) {
	deps := pipelineDeps{
		blobs:     storagememory.NewBlobStore(),
		catalog:   catalogmemory.NewStore(),
		publisher: publishermemory.New(),
	}
	p := New(
		fetcher,
		nil,
		deps.blobs,
		deps.catalog,
		deps.publisher,
		sha256.New(),
		nil,
		cfg,
		zap.NewNop(),
	)
	return p, deps
}

func TestRun_SuccessUpdatesCatalog(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{
		succeedOn: assets.SourceGoogleS2,
		body:      []byte("png-bytes"),
	}
	p, deps := newTestPipeline(fetcher, testConfig())
	deps.catalog.Seed(assets.Entity{ID: "42"})

	result := p.Run(context.Background(), assets.FetchJob{EntityID: "42", WebsiteURL: "example.com"})

	require.Equal(t, assets.JobStatusSucceeded, result.Status)
	require.Equal(t, "memory://42.png", result.AssetURL)
	require.Equal(t, assets.SourceGoogleS2, result.Source)
	require.NotEmpty(t, result.ContentHash)

	entity, err := deps.catalog.GetEntity(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, "memory://42.png", entity.IconURL)
	require.Empty(t, entity.FetchError)

	data, ok := deps.blobs.Object("42.png")
	require.True(t, ok)
	require.Equal(t, []byte("png-bytes"), data)

	require.Len(t, deps.publisher.Messages(), 1)
	require.Equal(t, 1, fetcher.calls, "first success must short-circuit")
}

func TestRun_PlaceholderURLSkipsWithoutNetworkOrWrites(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{}
	p, deps := newTestPipeline(fetcher, testConfig())

	result := p.Run(context.Background(), assets.FetchJob{EntityID: "7", WebsiteURL: "#"})

	require.Equal(t, assets.JobStatusSkipped, result.Status)
	require.Equal(t, "invalid URL format", result.Reason)
	require.Empty(t, result.AssetURL)
	require.Zero(t, fetcher.calls)
	require.Zero(t, deps.blobs.Len())

	_, err := deps.catalog.GetEntity(context.Background(), "7")
	require.Error(t, err, "skip must not touch the catalog")
}

func TestRun_SkipPublishesOutcomeEvent(t *testing.T) {
	t.Parallel()

	p, deps := newTestPipeline(&stubFetcher{}, testConfig())

	result := p.Run(context.Background(), assets.FetchJob{EntityID: "7", WebsiteURL: "#"})
	require.Equal(t, assets.JobStatusSkipped, result.Status)

	msgs := deps.publisher.Messages()
	require.Len(t, msgs, 1, "skips are terminal and must reach event consumers")
	require.Equal(t, "asset-events", msgs[0].Topic)

	payload, ok := msgs[0].Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, string(assets.JobStatusSkipped), payload["status"])
	require.Equal(t, "invalid URL format", payload["reason"])
	require.Empty(t, payload["asset_url"])
}

func TestRun_MissingParametersSkips(t *testing.T) {
	t.Parallel()

	p, _ := newTestPipeline(&stubFetcher{}, testConfig())

	result := p.Run(context.Background(), assets.FetchJob{WebsiteURL: "example.com"})
	require.Equal(t, assets.JobStatusSkipped, result.Status)
	require.Equal(t, "missing parameters", result.Reason)

	result = p.Run(context.Background(), assets.FetchJob{EntityID: "9"})
	require.Equal(t, assets.JobStatusSkipped, result.Status)
	require.Equal(t, "missing parameters", result.Reason)
}

func TestRun_ExhaustionRecordsFailureOnce(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{err: errors.New("connect: connection timed out")}
	p, deps := newTestPipeline(fetcher, testConfig())

	result := p.Run(context.Background(), assets.FetchJob{EntityID: "13", WebsiteURL: "example.com"})

	require.Equal(t, assets.JobStatusFailed, result.Status)
	require.Equal(t, "no source produced a valid image", result.Reason)
	require.Equal(t, 15, fetcher.calls, "3 rounds x 5 candidates")
	require.Zero(t, deps.blobs.Len())

	entity, err := deps.catalog.GetEntity(context.Background(), "13")
	require.NoError(t, err)
	require.Equal(t, 1, entity.FetchRetries)
	require.Equal(t, "no source produced a valid image", entity.FetchError)
}

func TestRun_UploadFailureReportsFailed(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{succeedOn: assets.SourceGoogleS2, body: []byte("icon")}
	catalog := catalogmemory.NewStore()
	p := New(
		fetcher,
		nil,
		&failingBlobStore{},
		catalog,
		nil,
		sha256.New(),
		nil,
		testConfig(),
		zap.NewNop(),
	)

	result := p.Run(context.Background(), assets.FetchJob{EntityID: "42", WebsiteURL: "example.com"})
	require.Equal(t, assets.JobStatusFailed, result.Status)
	require.Equal(t, "failed to upload icon", result.Reason)

	entity, err := catalog.GetEntity(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, 1, entity.FetchRetries)
}

func TestRun_JobDeadlineBoundsWallClock(t *testing.T) {
	t.Parallel()

	fetcher := &stallingFetcher{}
	p, deps := newTestPipeline(fetcher, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	result := p.Run(ctx, assets.FetchJob{EntityID: "55", WebsiteURL: "example.com"})

	require.Equal(t, assets.JobStatusFailed, result.Status)
	require.Equal(t, "job timeout", result.Reason)
	require.Less(t, time.Since(start), 2*time.Second)

	entity, err := deps.catalog.GetEntity(context.Background(), "55")
	require.NoError(t, err)
	require.Equal(t, 1, entity.FetchRetries)
}

func TestRun_PanicContained(t *testing.T) {
	t.Parallel()

	p, deps := newTestPipeline(&panickyFetcher{}, testConfig())

	result := p.Run(context.Background(), assets.FetchJob{EntityID: "66", WebsiteURL: "example.com"})
	require.Equal(t, assets.JobStatusFailed, result.Status)
	require.Contains(t, result.Reason, "internal error")

	entity, err := deps.catalog.GetEntity(context.Background(), "66")
	require.NoError(t, err)
	require.Equal(t, 1, entity.FetchRetries)
}

func TestRun_ScreenshotStoredAlongsideIcon(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{succeedOn: assets.SourceGoogleS2, body: []byte("icon")}
	deps := pipelineDeps{
		blobs:     storagememory.NewBlobStore(),
		catalog:   catalogmemory.NewStore(),
		publisher: publishermemory.New(),
	}
	p := New(
		fetcher,
		&stubScreenshotter{shot: []byte("page-bytes")},
		deps.blobs,
		deps.catalog,
		deps.publisher,
		sha256.New(),
		nil,
		testConfig(),
		zap.NewNop(),
	)

	result := p.Run(context.Background(), assets.FetchJob{
		EntityID:   "42",
		WebsiteURL: "example.com",
		Screenshot: true,
	})

	require.Equal(t, assets.JobStatusSucceeded, result.Status)
	require.Equal(t, "memory://42-page.png", result.ScreenshotURL)
	data, ok := deps.blobs.Object("42-page.png")
	require.True(t, ok)
	require.Equal(t, []byte("page-bytes"), data)
}

func TestRun_ScreenshotFailureDoesNotDemoteSuccess(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{succeedOn: assets.SourceGoogleS2, body: []byte("icon")}
	deps := pipelineDeps{
		blobs:     storagememory.NewBlobStore(),
		catalog:   catalogmemory.NewStore(),
		publisher: publishermemory.New(),
	}
	p := New(
		fetcher,
		&stubScreenshotter{err: errors.New("browser crashed")},
		deps.blobs,
		deps.catalog,
		deps.publisher,
		sha256.New(),
		nil,
		testConfig(),
		zap.NewNop(),
	)

	result := p.Run(context.Background(), assets.FetchJob{
		EntityID:   "42",
		WebsiteURL: "example.com",
		Screenshot: true,
	})

	require.Equal(t, assets.JobStatusSucceeded, result.Status)
	require.Empty(t, result.ScreenshotURL)
	require.Equal(t, "memory://42.png", result.AssetURL)
}

// --- fakes ---

type stubFetcher struct {
	succeedOn string
	body      []byte
	err       error
	calls     int
}

func (f *stubFetcher) Fetch(_ context.Context, req assets.FetchRequest) (assets.FetchResponse, error) {
	f.calls++
	if f.succeedOn != "" && req.Source == f.succeedOn {
		return assets.FetchResponse{
			URL:         req.URL,
			StatusCode:  200,
			ContentType: "image/png",
			Body:        f.body,
		}, nil
	}
	if f.err != nil {
		return assets.FetchResponse{}, f.err
	}
	return assets.FetchResponse{}, errors.New("no image")
}

type stallingFetcher struct{}

func (f *stallingFetcher) Fetch(ctx context.Context, _ assets.FetchRequest) (assets.FetchResponse, error) {
	<-ctx.Done()
	return assets.FetchResponse{}, ctx.Err()
}

type panickyFetcher struct{}

func (f *panickyFetcher) Fetch(context.Context, assets.FetchRequest) (assets.FetchResponse, error) {
	panic("fetcher exploded")
}

type failingBlobStore struct{}

func (s *failingBlobStore) PutObject(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("quota exceeded")
}

func (s *failingBlobStore) PublicURL(string) string { return "" }

type stubScreenshotter struct {
	shot []byte
	err  error
}

func (s *stubScreenshotter) Capture(context.Context, string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.shot, nil
}
