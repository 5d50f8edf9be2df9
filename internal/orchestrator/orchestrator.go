// Package orchestrator fans adapter calls out to a bounded worker pool,
// isolates per-source failures and normalizes what comes back.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/progress"
	"github.com/scottlangford2/research-scraper/internal/rfp"
)

const (
	defaultConcurrency   = 4
	defaultSourceTimeout = 2 * time.Minute
	defaultRetryBackoff  = 2 * time.Second
	tracerName           = "github.com/scottlangford2/research-scraper/internal/orchestrator"
)

// Config controls fan-out and per-call parameters.
type Config struct {
	// Mode labels the run on RUN_START (run, report, backfill).
	Mode        string
	Concurrency int
	// SourceTimeout bounds each adapter independently.
	SourceTimeout time.Duration
	// RunTimeout bounds the whole fetch stage; zero means unbounded.
	RunTimeout time.Duration
	// Sources restricts the run to these sources when non-empty.
	Sources     []rfp.Source
	Credentials map[rfp.Source]string
	Region      rfp.Region
	Historical  bool
}

// Deps are the collaborators the orchestrator calls into.
type Deps struct {
	Hasher   rfp.Hasher
	Clock    rfp.Clock
	Retry    rfp.RetryPolicy
	Progress progress.Emitter
	Tracer   trace.Tracer
	Logger   *zap.Logger
}

// Result is one source's contribution to a run. Err is a
// *rfp.SourceFetchError when the source failed.
type Result struct {
	Outcome rfp.Outcome
	Records []rfp.Record
	Err     error
}

// Orchestrator runs adapters concurrently.
type Orchestrator struct {
	cfg      Config
	hasher   rfp.Hasher
	clock    rfp.Clock
	retry    rfp.RetryPolicy
	progress progress.Emitter
	tracer   trace.Tracer
	logger   *zap.Logger
}

// New validates deps and fills defaults.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Hasher == nil {
		return nil, errors.New("orchestrator requires a hasher")
	}
	if deps.Clock == nil {
		return nil, errors.New("orchestrator requires a clock")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = defaultSourceTimeout
	}
	if deps.Retry == nil {
		deps.Retry = rfp.NewRetryOncePolicy(defaultRetryBackoff)
	}
	if deps.Progress == nil {
		deps.Progress = progress.Nop{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		hasher:   deps.Hasher,
		clock:    deps.Clock,
		retry:    deps.Retry,
		progress: deps.Progress,
		tracer:   deps.Tracer,
		logger:   deps.Logger,
	}, nil
}

// Run fetches every selected adapter and returns the union of normalized
// records from successful sources plus the outcome report. The report
// covers every selected source even when all of them fail.
func (o *Orchestrator) Run(ctx context.Context, runID string, adapters []rfp.Adapter) ([]rfp.Record, rfp.Report) {
	report := rfp.Report{
		RunID:     runID,
		StartedAt: o.clock.Now(),
		Outcomes:  make(map[rfp.Source]rfp.Outcome),
	}
	var records []rfp.Record
	for res := range o.Stream(ctx, runID, adapters) {
		report.Outcomes[res.Outcome.Source] = res.Outcome
		records = append(records, res.Records...)
	}
	report.FinishedAt = o.clock.Now()
	return records, report
}

// Stream delivers one Result per selected source as sources finish. The
// channel closes once every source has reported.
func (o *Orchestrator) Stream(ctx context.Context, runID string, adapters []rfp.Adapter) <-chan Result {
	selected := o.selectAdapters(adapters)
	out := make(chan Result, len(selected))
	started := o.clock.Now()
	scrapedAt := started.UTC()
	wallStart := time.Now()

	o.progress.Emit(progress.Event{
		RunID: runID,
		TS:    started,
		Stage: progress.StageRunStart,
		Mode:  o.cfg.Mode,
	})
	o.logger.Info("fetch stage starting",
		zap.String("run_id", runID),
		zap.Int("sources", len(selected)),
		zap.Int("concurrency", o.cfg.Concurrency),
	)

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if o.cfg.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
	}

	tasks := make(chan rfp.Adapter, len(selected))
	for _, a := range selected {
		tasks <- a
	}
	close(tasks)

	workers := o.cfg.Concurrency
	if workers > len(selected) {
		workers = len(selected)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range tasks {
				out <- o.fetchSource(runCtx, runID, scrapedAt, a)
			}
		}()
	}

	go func() {
		wg.Wait()
		cancel()
		o.progress.Emit(progress.Event{
			RunID: runID,
			TS:    o.clock.Now(),
			Stage: progress.StageRunDone,
			Dur:   time.Since(wallStart),
		})
		close(out)
	}()
	return out
}

// selectAdapters applies the allow-list and drops nil or repeated sources.
func (o *Orchestrator) selectAdapters(adapters []rfp.Adapter) []rfp.Adapter {
	allow := make(map[rfp.Source]bool, len(o.cfg.Sources))
	for _, s := range o.cfg.Sources {
		allow[s] = true
	}
	seen := make(map[rfp.Source]bool, len(adapters))
	selected := make([]rfp.Adapter, 0, len(adapters))
	for _, a := range adapters {
		if a == nil {
			continue
		}
		src := a.Source()
		if len(allow) > 0 && !allow[src] {
			continue
		}
		if seen[src] {
			o.logger.Warn("duplicate adapter for source ignored", zap.String("source", string(src)))
			continue
		}
		seen[src] = true
		selected = append(selected, a)
	}
	return selected
}
