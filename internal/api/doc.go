// Package api hosts the HTTP server, middleware, and handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /api/scraper/start, /start-range and /stop for run control.
//   - GET /api/scraper/status, /runs and /runs/{run_id} for run history.
//   - GET /ws/scrape-progress streaming progress events over a WebSocket.
package api
