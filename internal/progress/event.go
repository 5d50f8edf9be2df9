package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// Stage denotes the lifecycle milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageSourceStart Stage = "SOURCE_START"
	StageSourceDone  Stage = "SOURCE_DONE"
	StageRunDone     Stage = "RUN_DONE"
)

// Event captures one run milestone.
type Event struct {
	// RunID identifies the pipeline run.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Mode is the run mode, set on RUN_START.
	Mode string
	// Source scopes SOURCE_* events.
	Source rfp.Source
	// Status is the source outcome for SOURCE_DONE.
	Status rfp.OutcomeStatus
	// Reason carries the classified failure text for failed sources.
	Reason string
	Records  int
	Dropped  int
	Attempts int
	// Dur is the source call latency or the whole fetch stage for RUN_DONE.
	Dur time.Duration
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageSourceStart:
		if e.Source == "" {
			return errors.New("source start requires source")
		}
	case StageSourceDone:
		if e.Source == "" {
			return errors.New("source done requires source")
		}
		if e.Status == "" {
			return errors.New("source done requires status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// SourceDone builds the SOURCE_DONE event for an outcome.
func SourceDone(runID string, ts time.Time, o rfp.Outcome) Event {
	return Event{
		RunID:    runID,
		TS:       ts,
		Stage:    StageSourceDone,
		Source:   o.Source,
		Status:   o.Status,
		Reason:   o.Reason,
		Records:  o.Records,
		Dropped:  o.Dropped,
		Attempts: o.Attempts,
		Dur:      o.Duration,
	}
}

// Outcome converts a SOURCE_DONE event back to the report form.
func (e Event) Outcome() rfp.Outcome {
	return rfp.Outcome{
		Source:   e.Source,
		Status:   e.Status,
		Reason:   e.Reason,
		Records:  e.Records,
		Dropped:  e.Dropped,
		Attempts: e.Attempts,
		Duration: e.Dur,
	}
}
