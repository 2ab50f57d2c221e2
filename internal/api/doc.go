// Package api hosts the HTTP server, middleware, and REST handlers. Routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/resolve to resolve and save one identifier.
//   - GET /v1/mirrors to list the mirrors still in rotation.
package api
