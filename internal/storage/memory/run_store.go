package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/scottlangford2/research-scraper/internal/rfp"
	"github.com/scottlangford2/research-scraper/internal/store"
)

// RunStore provides an in-memory store.RunRepository.
type RunStore struct {
	mu       sync.RWMutex
	runs     map[string]store.Run
	outcomes map[string]map[rfp.Source]rfp.Outcome
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:     make(map[string]store.Run),
		outcomes: make(map[string]map[rfp.Source]rfp.Outcome),
	}
}

// StartRun stores a new run in running status.
func (s *RunStore) StartRun(_ context.Context, runID, mode string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[runID]; exists {
		return nil
	}
	s.runs[runID] = store.Run{ID: runID, Mode: mode, StartedAt: startedAt, Status: store.RunRunning}
	s.outcomes[runID] = make(map[rfp.Source]rfp.Outcome)
	return nil
}

// RecordOutcome replaces the outcome for one source of a run.
func (s *RunStore) RecordOutcome(_ context.Context, runID string, outcome rfp.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byRun, ok := s.outcomes[runID]
	if !ok {
		return errors.New("run not started")
	}
	byRun[outcome.Source] = outcome
	return nil
}

// FinishRun marks the run terminal.
func (s *RunStore) FinishRun(_ context.Context, runID string, finishedAt time.Time, counts store.Counts, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	run.FinishedAt = &finishedAt
	run.Counts = counts
	run.Error = errText
	run.Status = store.RunSuccess
	if errText != "" {
		run.Status = store.RunError
	}
	s.runs[runID] = run
	return nil
}

// LatestRun returns the most recently started run with its outcomes.
func (s *RunStore) LatestRun(_ context.Context) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		latest store.Run
		found  bool
	)
	for _, run := range s.runs {
		if !found || run.StartedAt.After(latest.StartedAt) {
			latest, found = run, true
		}
	}
	if !found {
		return store.Run{}, store.ErrNotFound
	}
	for _, o := range s.outcomes[latest.ID] {
		latest.Outcomes = append(latest.Outcomes, o)
	}
	sort.Slice(latest.Outcomes, func(i, j int) bool { return latest.Outcomes[i].Source < latest.Outcomes[j].Source })
	return latest, nil
}
