// Package progress carries run and per-source lifecycle events from the
// orchestrator to pluggable sinks (logs, Prometheus, run history). The Hub
// batches events on a background goroutine so emitters never block.
package progress
