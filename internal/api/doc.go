// Package api hosts the read-only HTTP browsing API. Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/topics for topics ordered by page count.
//   - GET /v1/topics/{name}/pages for the pages filed under a topic.
//   - GET /v1/jobs for recent crawl jobs.
//
// List routes accept an optional limit query parameter.
package api
