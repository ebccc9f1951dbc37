// Package worker implements the fetch job execution loop.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/agentdir/iconfetch/internal/assets"
	"github.com/agentdir/iconfetch/internal/metrics"
	queuememory "github.com/agentdir/iconfetch/internal/queue/memory"
)

// Runner executes one fetch job and returns its terminal result.
type Runner interface {
	Run(ctx context.Context, job assets.FetchJob) assets.JobResult
}

// Config controls Worker behavior.
type Config struct {
	// JobTimeout bounds one job's wall-clock time, covering every probe
	// round, backoff sleep and the upload.
	JobTimeout time.Duration
}

// Worker consumes queue items and executes the pipeline, one job at a time.
// Concurrency comes from running several workers over one queue.
type Worker struct {
	queue    assets.Queue
	jobStore assets.JobStore
	runner   Runner
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker.
func New(
	queue assets.Queue,
	jobStore assets.JobStore,
	runner Runner,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    queue,
		jobStore: jobStore,
		runner:   runner,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queuememory.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job",
			zap.String("job_id", item.JobID),
			zap.String("entity_id", item.Job.EntityID),
		)
		w.processItem(ctx, item)
	}
}

func (w *Worker) processItem(ctx context.Context, item assets.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	// A failed queued->running transition still runs the job: the record is
	// bookkeeping, and the final UpdateJob below writes the terminal status.
	if err := w.jobStore.UpdateJob(ctx, item.JobID, assets.JobStatusRunning, "", nil); err != nil {
		w.logger.Error("job status update failed", zap.String("job_id", item.JobID), zap.Error(err))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	result := w.runner.Run(jobCtx, item.Job)

	status, errText := terminalStatus(ctx, result)
	if err := w.jobStore.UpdateJob(ctx, item.JobID, status, errText, &result); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", item.JobID), zap.Error(err))
	}
}

// terminalStatus maps a pipeline result onto the persisted job record.
// Shutdown mid-job is recorded as canceled rather than failed so the
// external scheduler resubmits without burning a retry budget.
func terminalStatus(ctx context.Context, result assets.JobResult) (assets.JobStatus, string) {
	if ctx.Err() != nil && result.Status == assets.JobStatusFailed {
		return assets.JobStatusCanceled, result.Reason
	}
	switch result.Status {
	case assets.JobStatusSucceeded:
		return assets.JobStatusSucceeded, ""
	case assets.JobStatusSkipped:
		return assets.JobStatusSkipped, result.Reason
	default:
		return assets.JobStatusFailed, result.Reason
	}
}
