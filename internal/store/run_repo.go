package store

import (
	"context"
	"errors"
	"time"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the runs.status column.
type RunStatus string

// Run statuses persisted in runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Counts tallies what one run did to the corpus.
type Counts struct {
	New       int `json:"new"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Dropped   int `json:"dropped"`
	Matched   int `json:"matched"`
}

// Run models one pipeline invocation for API responses.
type Run struct {
	ID         string        `json:"run_id"`
	Mode       string        `json:"mode"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Status     RunStatus     `json:"status"`
	Counts     Counts        `json:"counts"`
	Error      string        `json:"error,omitempty"`
	Outcomes   []rfp.Outcome `json:"outcomes"`
}

// RunRepository persists run history.
type RunRepository interface {
	// StartRun inserts the run in running state; repeated calls are no-ops.
	StartRun(ctx context.Context, runID, mode string, startedAt time.Time) error
	// RecordOutcome upserts one source outcome for the run.
	RecordOutcome(ctx context.Context, runID string, outcome rfp.Outcome) error
	// FinishRun marks the run finished with its counts and optional error.
	FinishRun(ctx context.Context, runID string, finishedAt time.Time, counts Counts, errText string) error
	// LatestRun returns the most recently started run or ErrNotFound.
	LatestRun(ctx context.Context) (Run, error)
}
