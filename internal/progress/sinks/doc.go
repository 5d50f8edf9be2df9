// Package sinks provides progress.Sink implementations for logs, Prometheus
// and the run history store.
package sinks
