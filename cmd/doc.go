// Package cmd defines and implements the CLI commands for the progmon executable.
//
// Architecture overview:
//   - Monitor: internal/progress.Monitor owns registered sources and listeners. Instrumented I/O
//     (internal/meteredio) creates a Source per metered operation; the source coalesces raw byte
//     counts into at most one notification per threshold bucket and the monitor fans events out
//     synchronously, in subscription order, outside its locks.
//   - Metering: config.metering builds a metering.RulesPolicy (method and host allow lists plus the
//     bucket threshold). With metering.watch the policy is reloaded on config file changes; running
//     sources keep the threshold they were created with.
//   - Listeners: the websocket EventStream, the OpenTelemetry SpanListener and the async Hub are all
//     plain listeners. The Hub queues without blocking and batches to sinks (zap log, Prometheus,
//     transfer history in memory or Postgres, Pub/Sub) from one goroutine.
//   - API: chi router with /healthz, /readyz, /metrics, /api/sources, /api/transfers and
//     /api/events. Middleware adds request IDs, zap request logs, panic recovery, HTTP metrics and
//     an optional API key on /api.
//
// Commands:
//   - serve: runs the API until SIGINT/SIGTERM, then drains the hub and closes stores.
//   - fetch URL [-o DEST]: downloads through the metered transport and draws a progress bar.
//   - upload FILE DEST: PUTs to an http(s) URL or writes to a gs:// URI or local path.
//
// Quick checklist:
//   - Configure env vars with the PROGMON_ prefix, e.g. PROGMON_SERVER_PORT,
//     PROGMON_METERING_THRESHOLD, PROGMON_DB_DRIVER=postgres and PROGMON_DB_DSN. A .env file in
//     the working directory is exported first.
//   - Run locally: go run . serve --config config.yaml (or rely solely on env overrides).
package cmd
