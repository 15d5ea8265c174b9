// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz for probes and GET /metrics for Prometheus scraping.
//   - POST /v1/runs to trigger a run or a multi-partition batch.
//   - GET /v1/runs and /v1/runs/{job_id}[/items] for status and history.
//   - POST /v1/runs/{job_id}/{pause|resume|stop|cancel} for job control;
//     409 when the job's status does not allow the action.
//   - POST /v1/reparse, GET /v1/batches/{batch_id} and
//     GET /v1/listings/unqueued-count.
package api
