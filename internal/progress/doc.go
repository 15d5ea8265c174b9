// Package progress provides the run event type, a non-blocking batching hub
// and the Sink interface. The orchestrator emits; sinks turn batches into
// log lines and metrics.
package progress
