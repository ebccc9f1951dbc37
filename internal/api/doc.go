// Package api hosts the HTTP server, middleware, and REST handlers for the
// icon fetch service. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/assets/fetch for synchronous single-entity fetches.
//   - POST /v1/assets/jobs and GET /v1/assets/jobs/{job_id} for asynchronous
//     submission and status polling.
package api
