// Package collyfetcher implements assets.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/agentdir/iconfetch/internal/assets"
	"github.com/agentdir/iconfetch/internal/metrics"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher issues single bounded GETs against icon provider URLs. A response
// only counts as a success when the status is 2xx, the declared content type
// contains "image" and the body is non-empty after a full read.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

// New builds a Fetcher with a pooled transport shared across probes.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true // icon endpoints, single GET per candidate

	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Fetch executes one GET for a candidate and validates the image response.
func (f *Fetcher) Fetch(ctx context.Context, request assets.FetchRequest) (assets.FetchResponse, error) {
	start := time.Now()
	resp, err := f.fetch(ctx, request, start)
	outcome := "success"
	if err != nil {
		outcome = classifyOutcome(err)
	}
	metrics.ObserveFetchAttempt(request.Source, outcome, time.Since(start))
	return resp, err
}

func (f *Fetcher) fetch(ctx context.Context, request assets.FetchRequest, start time.Time) (assets.FetchResponse, error) {
	var (
		result   assets.FetchResponse
		fetchErr error
	)
	collector := f.buildCollector(request, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return assets.FetchResponse{}, err
	}
	if !strings.Contains(strings.ToLower(result.ContentType), "image") {
		return assets.FetchResponse{}, fmt.Errorf("wrong content type %q", result.ContentType)
	}
	if len(result.Body) == 0 {
		return assets.FetchResponse{}, errors.New("empty body")
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	request assets.FetchRequest,
	start time.Time,
	result *assets.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.IgnoreRobotsTxt = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 8 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(f.transport)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "image/*")
		for key, values := range request.Header {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			*fetchErr = fmt.Errorf("unexpected status %d", r.StatusCode)
			return
		}
		*result = assets.FetchResponse{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			*fetchErr = fmt.Errorf("unexpected status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})

	return collector
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("fetch failed: %w", *fetchErr)
		}
		return nil
	}
}

func classifyOutcome(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case strings.Contains(err.Error(), "unexpected status"):
		return "bad_status"
	case strings.Contains(err.Error(), "wrong content type"):
		return "wrong_content_type"
	case strings.Contains(err.Error(), "empty body"):
		return "empty_body"
	default:
		return "transport_error"
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
