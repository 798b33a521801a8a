// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/sources for live source snapshots from the monitor.
//   - GET /api/transfers and /api/transfers/{transfer_id} for transfer
//     history via the TransferRepository interface.
//   - GET /api/events to stream progress events over a websocket.
package api
