// Package pipeline implements the icon acquisition pipeline: validate the
// URL, probe the candidate chain, persist the winning image and report the
// outcome to the catalog.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agentdir/iconfetch/internal/assets"
	"github.com/agentdir/iconfetch/internal/metrics"
)

// IconContentType is the content type every stored icon is uploaded with.
// Aggregator sources normalize to PNG; direct .ico probes are stored as-is
// under a .png key, matching what browsers and the catalog UI accept.
const IconContentType = "image/png"

// Config controls pipeline behavior.
type Config struct {
	MaxRounds      int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	AttemptTimeout time.Duration
	Topic          string
}

// Pipeline runs one fetch job end to end. It is the single place where
// pipeline outcomes become externally visible state: all components below it
// communicate through typed return values only.
type Pipeline struct {
	prober        *assets.Prober
	screenshotter assets.Screenshotter
	blobs         assets.BlobStore
	catalog       assets.CatalogStore
	publisher     assets.Publisher
	hasher        assets.Hasher
	clock         assets.Clock
	cfg           Config
	logger        *zap.Logger
}

// New constructs a Pipeline. screenshotter and publisher may be nil; the
// corresponding features are then disabled.
func New(
	fetcher assets.Fetcher,
	screenshotter assets.Screenshotter,
	blobs assets.BlobStore,
	catalog assets.CatalogStore,
	publisher assets.Publisher,
	hasher assets.Hasher,
	clock assets.Clock,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		prober: assets.NewProber(fetcher, assets.ProberConfig{
			MaxRounds:      cfg.MaxRounds,
			BackoffBase:    cfg.BackoffBase,
			BackoffMax:     cfg.BackoffMax,
			AttemptTimeout: cfg.AttemptTimeout,
		}, logger.Named("prober")),
		screenshotter: screenshotter,
		blobs:         blobs,
		catalog:       catalog,
		publisher:     publisher,
		hasher:        hasher,
		clock:         clock,
		cfg:           cfg,
		logger:        logger,
	}
}

// Run executes one fetch job and always returns a JobResult: every failure
// mode, including panics, is captured as a typed outcome. One bad entity
// must never take down the worker processing it.
func (p *Pipeline) Run(ctx context.Context, job assets.FetchJob) (result assets.JobResult) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("pipeline panic recovered",
				zap.String("entity_id", job.EntityID),
				zap.Any("panic", rec),
			)
			result = p.failed(ctx, job, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	if job.EntityID == "" || job.WebsiteURL == "" {
		return p.skipped(ctx, job, "missing parameters")
	}

	normalized, err := assets.NormalizeURL(job.WebsiteURL)
	if err != nil {
		p.logger.Info("skipping unusable url",
			zap.String("entity_id", job.EntityID),
			zap.String("raw_url", job.WebsiteURL),
		)
		return p.skipped(ctx, job, "invalid URL format")
	}

	candidates, err := assets.BuildCandidates(normalized)
	if err != nil {
		return p.skipped(ctx, job, "invalid URL format")
	}

	probe, err := p.prober.Probe(ctx, candidates)
	if err != nil {
		if ctx.Err() != nil {
			return p.failed(ctx, job, "job timeout")
		}
		p.logger.Warn("probe exhausted",
			zap.String("entity_id", job.EntityID),
			zap.String("url", normalized),
			zap.Error(err),
		)
		return p.failed(ctx, job, assets.ErrNoValidImage.Error())
	}

	stored, err := p.storeIcon(ctx, job.EntityID, probe)
	if err != nil {
		p.logger.Error("icon upload failed",
			zap.String("entity_id", job.EntityID),
			zap.String("source", probe.Winner.Source),
			zap.Error(err),
		)
		return p.failed(ctx, job, "failed to upload icon")
	}

	if err := p.catalog.UpdateIconURL(ctx, job.EntityID, stored.PublicURL); err != nil {
		p.logger.Error("catalog update failed",
			zap.String("entity_id", job.EntityID),
			zap.Error(err),
		)
		return p.failed(ctx, job, "catalog update failed")
	}

	result = assets.JobResult{
		EntityID:    job.EntityID,
		Status:      assets.JobStatusSucceeded,
		AssetURL:    stored.PublicURL,
		ContentHash: stored.ContentHash,
		Source:      probe.Winner.Source,
	}

	if job.Screenshot {
		result.ScreenshotURL = p.captureScreenshot(ctx, job.EntityID, normalized)
	}

	p.logger.Info("job succeeded",
		zap.String("entity_id", job.EntityID),
		zap.String("source", probe.Winner.Source),
		zap.String("asset_url", stored.PublicURL),
		zap.Int("round", probe.Round),
		zap.Int("attempts", probe.Attempts),
	)
	metrics.ObserveJob(string(assets.JobStatusSucceeded))
	p.publish(ctx, result)
	return result
}

func (p *Pipeline) storeIcon(ctx context.Context, entityID string, probe assets.ProbeResult) (assets.StoredAsset, error) {
	hash := ""
	if p.hasher != nil {
		h, err := p.hasher.Hash(probe.Body)
		if err != nil {
			return assets.StoredAsset{}, fmt.Errorf("hash icon: %w", err)
		}
		hash = h
	}

	key := assets.IconKey(entityID)
	uri, err := p.blobs.PutObject(ctx, key, IconContentType, probe.Body)
	if err != nil {
		return assets.StoredAsset{}, fmt.Errorf("put object: %w", err)
	}

	return assets.StoredAsset{
		Key:         key,
		URI:         uri,
		PublicURL:   p.blobs.PublicURL(key),
		ContentType: IconContentType,
		ContentHash: hash,
		Size:        len(probe.Body),
		StoredAt:    p.now(),
	}, nil
}

// captureScreenshot is best-effort: a screenshot failure never demotes a job
// whose icon already succeeded.
func (p *Pipeline) captureScreenshot(ctx context.Context, entityID string, pageURL string) string {
	if p.screenshotter == nil {
		return ""
	}
	shot, err := p.screenshotter.Capture(ctx, pageURL)
	if err != nil {
		p.logger.Warn("screenshot capture failed",
			zap.String("entity_id", entityID),
			zap.String("url", pageURL),
			zap.Error(err),
		)
		metrics.ObserveScreenshot("failed")
		return ""
	}
	key := assets.ScreenshotKey(entityID)
	if _, err := p.blobs.PutObject(ctx, key, IconContentType, shot); err != nil {
		p.logger.Warn("screenshot upload failed",
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
		metrics.ObserveScreenshot("failed")
		return ""
	}
	metrics.ObserveScreenshot("success")
	return p.blobs.PublicURL(key)
}

// skipped reports a job with nothing to do. The catalog asset field is left
// untouched: many entities legitimately lack a usable URL. Skips are still
// terminal outcomes, so downstream consumers get an event for them too.
func (p *Pipeline) skipped(ctx context.Context, job assets.FetchJob, reason string) assets.JobResult {
	result := assets.JobResult{
		EntityID: job.EntityID,
		Status:   assets.JobStatusSkipped,
		Reason:   reason,
	}
	metrics.ObserveJob(string(assets.JobStatusSkipped))
	p.publish(ctx, result)
	return result
}

// failed records the failure on the catalog row (incrementing its retry
// counter for the external scheduler) and reports the compact reason.
func (p *Pipeline) failed(ctx context.Context, job assets.FetchJob, reason string) assets.JobResult {
	if job.EntityID != "" {
		reportCtx := ctx
		if ctx.Err() != nil {
			var cancel context.CancelFunc
			reportCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
		}
		if err := p.catalog.RecordFailure(reportCtx, job.EntityID, reason); err != nil {
			p.logger.Error("record failure failed",
				zap.String("entity_id", job.EntityID),
				zap.Error(err),
			)
		}
	}
	result := assets.JobResult{
		EntityID: job.EntityID,
		Status:   assets.JobStatusFailed,
		Reason:   reason,
	}
	metrics.ObserveJob(string(assets.JobStatusFailed))
	p.publish(ctx, result)
	return result
}

func (p *Pipeline) publish(ctx context.Context, result assets.JobResult) {
	if p.publisher == nil || p.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"entity_id":    result.EntityID,
		"status":       string(result.Status),
		"asset_url":    result.AssetURL,
		"content_hash": result.ContentHash,
		"source":       result.Source,
		"reason":       result.Reason,
		"timestamp":    p.now().Format(time.RFC3339),
	}
	pubCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	if _, err := p.publisher.Publish(pubCtx, p.cfg.Topic, payload); err != nil {
		p.logger.Warn("outcome publish failed",
			zap.String("entity_id", result.EntityID),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) now() time.Time {
	if p.clock != nil {
		return p.clock.Now()
	}
	return time.Now().UTC()
}
