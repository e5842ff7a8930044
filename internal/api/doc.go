// Package api hosts the HTTP server, middleware, and REST handlers for the
// fetch service. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scans for batch URL submission.
//   - GET /v1/scans/{id}/status and /v1/scans/{id}/results for progress and
//     cursor-paginated result pages.
package api
