// Package store declares the run-history repository shared by the progress
// sinks, the pipeline and the HTTP API.
package store
