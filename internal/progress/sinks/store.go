package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/scottlangford2/research-scraper/internal/progress"
	"github.com/scottlangford2/research-scraper/internal/store"
)

// StoreSink persists run starts and per-source outcomes to the run history
// repository. Run completion is written by the pipeline, which owns the
// final counts.
type StoreSink struct {
	repo store.RunRepository
}

// NewStoreSink wires a run repository into the progress hub.
func NewStoreSink(repo store.RunRepository) *StoreSink {
	return &StoreSink{repo: repo}
}

// Consume writes each relevant event. Every event is attempted; the joined
// error reports all failures.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s.repo == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.StartRun(ctx, evt.RunID, evt.Mode, evt.TS); err != nil {
				errs = append(errs, fmt.Errorf("start run %s: %w", evt.RunID, err))
			}
		case progress.StageSourceDone:
			if err := s.repo.RecordOutcome(ctx, evt.RunID, evt.Outcome()); err != nil {
				errs = append(errs, fmt.Errorf("record outcome %s/%s: %w", evt.RunID, evt.Source, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
