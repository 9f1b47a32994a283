// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET/POST /v1/runs to list crawl runs or start one.
//   - GET /v1/tools/{name} and /v1/tools/{name}/history for inventory lookups.
//   - GET/POST/DELETE /v1/targets to manage crawl targets.
package api
