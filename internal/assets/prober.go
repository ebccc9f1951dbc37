package assets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agentdir/iconfetch/internal/metrics"
)

// ErrNoValidImage is returned when every candidate failed in every round.
// The last observed fetch error is wrapped underneath for diagnostics.
var ErrNoValidImage = errors.New("no source produced a valid image")

// ProbeResult carries the winning bytes plus attribution for one probe run.
type ProbeResult struct {
	Body        []byte
	ContentType string
	Winner      Candidate
	Round       int
	Attempts    int
}

// ProberConfig controls retry behavior across candidate rounds.
type ProberConfig struct {
	MaxRounds      int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	AttemptTimeout time.Duration
}

// Prober drives a Fetcher across the candidate chain over multiple retry
// rounds with exponential backoff, stopping at the first success.
//
// Candidates are probed sequentially within a job: provider load stays
// predictable and error attribution stays simple. Concurrency belongs one
// level up, across jobs.
type Prober struct {
	fetcher Fetcher
	cfg     ProberConfig
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *zap.Logger
}

// NewProber constructs a Prober with defaults filled in.
func NewProber(fetcher Fetcher, cfg ProberConfig, logger *zap.Logger) *Prober {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 8 * time.Second
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 8 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{
		fetcher: fetcher,
		cfg:     cfg,
		sleep:   sleepContext,
		logger:  logger,
	}
}

// Backoff returns the wait duration applied after the given round. The
// schedule is deliberately jitter-free: candidates are probed serially per
// job and the doubling delay is part of the pipeline's observable contract.
func (p *Prober) Backoff(round int) time.Duration {
	delay := p.cfg.BackoffBase << round
	if delay > p.cfg.BackoffMax || delay <= 0 {
		delay = p.cfg.BackoffMax
	}
	return delay
}

// Probe walks the candidate chain for up to MaxRounds rounds and returns the
// first validated image. When all rounds exhaust it returns ErrNoValidImage
// wrapping the last observed fetch error.
func (p *Prober) Probe(ctx context.Context, candidates []Candidate) (ProbeResult, error) {
	if len(candidates) == 0 {
		return ProbeResult{}, errors.New("no candidates to probe")
	}

	var (
		attempts int
		lastErr  error
	)
	for round := 0; round < p.cfg.MaxRounds; round++ {
		for _, candidate := range candidates {
			if err := ctx.Err(); err != nil {
				return ProbeResult{}, fmt.Errorf("probe canceled: %w", err)
			}
			attempts++
			resp, err := p.fetchOne(ctx, candidate)
			if err != nil {
				lastErr = err
				p.logger.Debug("candidate failed",
					zap.String("source", candidate.Source),
					zap.String("url", candidate.URL),
					zap.Int("round", round),
					zap.Error(err),
				)
				continue
			}
			p.logger.Info("candidate succeeded",
				zap.String("source", candidate.Source),
				zap.Int("round", round),
				zap.Int("attempts", attempts),
			)
			return ProbeResult{
				Body:        resp.Body,
				ContentType: resp.ContentType,
				Winner:      candidate,
				Round:       round,
				Attempts:    attempts,
			}, nil
		}

		if round < p.cfg.MaxRounds-1 {
			delay := p.Backoff(round)
			p.logger.Debug("round exhausted, backing off",
				zap.Int("round", round),
				zap.Duration("delay", delay),
			)
			metrics.ObserveBackoffSleep()
			if err := p.sleep(ctx, delay); err != nil {
				return ProbeResult{}, fmt.Errorf("backoff interrupted: %w", err)
			}
		}
	}

	if lastErr != nil {
		return ProbeResult{}, fmt.Errorf("%w: last error: %w", ErrNoValidImage, lastErr)
	}
	return ProbeResult{}, ErrNoValidImage
}

func (p *Prober) fetchOne(ctx context.Context, candidate Candidate) (FetchResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()

	return p.fetcher.Fetch(attemptCtx, FetchRequest{
		Source: candidate.Source,
		URL:    candidate.URL,
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
