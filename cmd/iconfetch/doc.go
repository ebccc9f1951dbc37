// Package main hosts the icon fetch service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, a synchronous
//     /v1/assets/fetch endpoint that runs the pipeline inline, and async job
//     submission/polling under /v1/assets/jobs. Business failures on the sync
//     endpoint return 200 with a null assetUrl so database triggers never
//     retry unfixable inputs.
//   - Dispatcher & queue: async jobs flow through a bounded in-memory queue
//     sized by config.Pipeline.QueueDepth and are fanned out to a fixed worker
//     pool sized by config.Pipeline.Concurrency. Context cancellation stops
//     workers cleanly on shutdown.
//   - Fetch pipeline: each job normalizes the site URL, builds an ordered
//     chain of icon provider candidates (Google s2, site favicons, icon.horse,
//     gstatic faviconV2), and probes them with the Colly-based fetcher under
//     a bounded retry policy with exponential backoff. The first valid image
//     wins. An optional Chromedp screenshotter captures the rendered page.
//   - Persistence & fanout: winning images are written to the configured
//     BlobStore (memory/local/GCS) under a stable per-entity key, the catalog
//     row is updated via Postgres (or a memory store for development), and a
//     compact Pub/Sub outcome event is published when a topic is configured.
//   - Configuration & plumbing: Viper populates config from env/files with
//     the ICONFETCH_ prefix; zap provides structured logging; Prometheus
//     metrics are exported via the /metrics handler. The service is stateless
//     across requests, suitable for Cloud Run scale-out.
//
// Run locally: go run ./cmd/iconfetch -config config.yaml (or rely solely on
// env overrides).
package main
