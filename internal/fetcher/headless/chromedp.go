// Package headless captures rendered page screenshots via headless Chrome.
package headless

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/agentdir/iconfetch/internal/metrics"
)

// Config controls the behavior of the screenshotter.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
}

// Screenshotter captures full-page screenshots using chromedp. A shared
// allocator keeps one browser process across captures; MaxParallel bounds
// concurrent tabs.
type Screenshotter struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a Screenshotter backed by chromedp.
func NewChromedp(cfg Config) (*Screenshotter, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 25 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Screenshotter{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context, tearing down the browser.
func (s *Screenshotter) Close() {
	s.allocCancel()
}

// Capture navigates to the URL, waits for the body to render and returns a
// full-page PNG.
func (s *Screenshotter) Capture(ctx context.Context, url string) ([]byte, error) {
	if err := s.acquire(ctx); err != nil {
		metrics.ObserveScreenshot("slot_wait_canceled")
		return nil, err
	}
	defer s.release()

	taskCtx, taskCancel := chromedp.NewContext(s.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, s.cfg.NavigationTimeout)
	defer cancel()

	var buf []byte
	actions := []chromedp.Action{
		s.emulationSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.FullScreenshot(&buf, 90),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		metrics.ObserveScreenshot("error")
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	if len(buf) == 0 {
		metrics.ObserveScreenshot("empty")
		return nil, fmt.Errorf("headless capture produced no image for %s", url)
	}
	metrics.ObserveScreenshot("ok")
	return buf, nil
}

func (s *Screenshotter) emulationSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (s *Screenshotter) acquire(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	select {
	case s.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (s *Screenshotter) release() {
	if s.limiter == nil {
		return
	}
	select {
	case <-s.limiter:
	default:
	}
}
