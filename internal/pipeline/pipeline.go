// Package pipeline sequences one batch job: fetch, resolve, classify,
// persist, analyze, then notify collaborators.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/analyze"
	"github.com/scottlangford2/research-scraper/internal/dedup"
	"github.com/scottlangford2/research-scraper/internal/metrics"
	"github.com/scottlangford2/research-scraper/internal/orchestrator"
	"github.com/scottlangford2/research-scraper/internal/rfp"
	"github.com/scottlangford2/research-scraper/internal/store"
)

// Mode names a run mode.
type Mode string

// Run modes.
const (
	ModeRun      Mode = "run"
	ModeReport   Mode = "report"
	ModeBackfill Mode = "backfill"
)

// Default notification topics.
const (
	DefaultRunTopic    = "rfp-runs"
	DefaultRecordTopic = "rfp-records"
)

// Fetcher streams per-source results.
type Fetcher interface {
	Stream(ctx context.Context, runID string, adapters []rfp.Adapter) <-chan orchestrator.Result
}

// Resolver is the dedup store lifecycle.
type Resolver interface {
	Open(ctx context.Context) error
	Resolve(r rfp.Record) (dedup.Resolution, error)
	Staged() []dedup.Claim
	Commit(ctx context.Context) (dedup.Changes, error)
	Discard()
}

// Classifier annotates a record in place.
type Classifier interface {
	Apply(r *rfp.Record) error
}

// Dataset persists and reads the corpus.
type Dataset interface {
	Commit(ctx context.Context, changed []rfp.Record) (int, error)
	All(ctx context.Context) ([]rfp.Record, error)
}

// Analyzer builds the corpus report.
type Analyzer interface {
	Analyze(ctx context.Context, corpus []rfp.Record) (analyze.Report, error)
}

// EventPublisher sends one message per changed record.
type EventPublisher interface {
	PublishAll(ctx context.Context, topic string, payloads []any) (int, error)
}

// Indexer mirrors changed records into a search index.
type Indexer interface {
	IndexRecords(ctx context.Context, records []rfp.Record) (int, error)
}

// Digester sends the email digests.
type Digester interface {
	SyncForm(ctx context.Context) (int, error)
	Daily(ctx context.Context) (int, error)
	Team(ctx context.Context) (int, error)
}

// Config controls optional stages.
type Config struct {
	Mode        Mode
	RunTopic    string
	RecordTopic string
	// Digest enables the daily and team emails after a run.
	Digest bool
}

// Deps are the stage implementations. Optional collaborators may be nil.
type Deps struct {
	Fetcher    Fetcher
	Adapters   []rfp.Adapter
	Resolver   Resolver
	Classifier Classifier
	Dataset    Dataset
	Analyzer   Analyzer
	Runs       store.RunRepository
	Notifier   rfp.Publisher
	Events     EventPublisher
	Index      Indexer
	Digest     Digester
	IDs        rfp.IDGenerator
	Clock      rfp.Clock
	Logger     *zap.Logger
}

// Summary describes a finished pipeline invocation.
type Summary struct {
	RunID       string          `json:"run_id"`
	Mode        Mode            `json:"mode"`
	Report      rfp.Report      `json:"report"`
	Counts      store.Counts    `json:"counts"`
	DatasetRows int             `json:"dataset_rows"`
	Analysis    *analyze.Report `json:"-"`
}

// RecordEvent is the per-record message for NEW and UPDATED records.
type RecordEvent struct {
	RunID       string       `json:"run_id"`
	Status      dedup.Status `json:"status"`
	ContentHash string       `json:"content_hash"`
	Source      rfp.Source   `json:"source"`
	Region      rfp.Region   `json:"region"`
	SourceID    string       `json:"source_id"`
	Title       string       `json:"title"`
	Agency      string       `json:"agency,omitempty"`
	URL         string       `json:"url,omitempty"`
	CloseDate   string       `json:"close_date,omitempty"`
	Matched     []string     `json:"matched_keywords"`
	Changed     []string     `json:"changed_fields,omitempty"`
}

// MessageKey partitions record events by content hash.
func (e RecordEvent) MessageKey() string { return e.ContentHash }

// RunNotification announces a completed run.
type RunNotification struct {
	RunID       string        `json:"run_id"`
	Mode        Mode          `json:"mode"`
	FinishedAt  time.Time     `json:"finished_at"`
	Counts      store.Counts  `json:"counts"`
	DatasetRows int           `json:"dataset_rows"`
	Outcomes    []rfp.Outcome `json:"outcomes"`
}

// MessageKey keys run notifications by run id.
func (n RunNotification) MessageKey() string { return n.RunID }

// Pipeline runs the batch job.
type Pipeline struct {
	cfg  Config
	deps Deps
}

// New validates the required stages.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Dataset == nil:
		return nil, errors.New("pipeline requires a dataset")
	case deps.Clock == nil:
		return nil, errors.New("pipeline requires a clock")
	case deps.IDs == nil:
		return nil, errors.New("pipeline requires an id generator")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeRun
	}
	if cfg.RunTopic == "" {
		cfg.RunTopic = DefaultRunTopic
	}
	if cfg.RecordTopic == "" {
		cfg.RecordTopic = DefaultRecordTopic
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, deps: deps}, nil
}

// Run executes fetch through notify. Source failures are isolated in the
// report; a dataset or seen-set write failure aborts the run with a
// *rfp.PersistenceError and leaves the seen set uncommitted.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	if p.deps.Fetcher == nil || p.deps.Resolver == nil || p.deps.Classifier == nil {
		return Summary{}, errors.New("run mode requires a fetcher, resolver and classifier")
	}
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := p.deps.Logger.With(zap.String("run_id", runID), zap.String("mode", string(p.cfg.Mode)))
	sum := Summary{RunID: runID, Mode: p.cfg.Mode}
	p.start(ctx, logger, sum)

	if err := p.deps.Resolver.Open(ctx); err != nil {
		return sum, p.fail(ctx, logger, sum, fmt.Errorf("open dedup store: %w", err))
	}

	sum.Report = p.resolve(ctx, logger, runID, &sum.Counts)
	logOutcomes(logger, sum.Report)

	changed, events := p.classify(logger, runID, &sum.Counts)

	rows, err := p.deps.Dataset.Commit(ctx, changed)
	metrics.ObserveDatasetCommit(rows, err)
	if err != nil {
		p.deps.Resolver.Discard()
		return sum, p.fail(ctx, logger, sum, err)
	}
	sum.DatasetRows = rows
	if _, err := p.deps.Resolver.Commit(ctx); err != nil {
		return sum, p.fail(ctx, logger, sum, err)
	}
	p.finish(ctx, logger, sum, "")

	p.analyze(ctx, logger, &sum)
	p.notify(ctx, logger, sum, changed, events)
	p.digest(ctx, logger)

	logger.Info("run complete",
		zap.Int("new", sum.Counts.New),
		zap.Int("updated", sum.Counts.Updated),
		zap.Int("unchanged", sum.Counts.Unchanged),
		zap.Int("dropped", sum.Counts.Dropped),
		zap.Int("matched", sum.Counts.Matched),
		zap.Int("dataset_rows", sum.DatasetRows),
	)
	return sum, nil
}

// Report skips fetching and rebuilds the analysis and digests from the
// stored dataset.
func (p *Pipeline) Report(ctx context.Context) (Summary, error) {
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := p.deps.Logger.With(zap.String("run_id", runID), zap.String("mode", string(ModeReport)))
	sum := Summary{RunID: runID, Mode: ModeReport}
	p.start(ctx, logger, sum)
	corpus, err := p.deps.Dataset.All(ctx)
	if err != nil {
		return sum, p.fail(ctx, logger, sum, fmt.Errorf("read dataset: %w", err))
	}
	sum.DatasetRows = len(corpus)
	p.analyzeCorpus(ctx, logger, &sum, corpus)
	p.finish(ctx, logger, sum, "")
	p.digest(ctx, logger)
	return sum, nil
}

// resolve drains the fetch stream on this goroutine, so every Resolve call
// has a single writer.
func (p *Pipeline) resolve(ctx context.Context, logger *zap.Logger, runID string, counts *store.Counts) rfp.Report {
	report := rfp.Report{
		RunID:     runID,
		StartedAt: p.deps.Clock.Now(),
		Outcomes:  make(map[rfp.Source]rfp.Outcome),
	}
	for res := range p.deps.Fetcher.Stream(ctx, runID, p.deps.Adapters) {
		report.Outcomes[res.Outcome.Source] = res.Outcome
		counts.Dropped += res.Outcome.Dropped
		if res.Err != nil {
			logger.Warn("source failed", zap.Error(res.Err))
		}
		for _, r := range res.Records {
			resolution, err := p.deps.Resolver.Resolve(r)
			if err != nil {
				counts.Dropped++
				logger.Warn("record not resolvable",
					zap.String("source", string(r.Source)),
					zap.String("source_id", r.SourceID),
					zap.Error(err),
				)
				continue
			}
			metrics.ObserveResolution(string(resolution.Status))
		}
	}
	report.FinishedAt = p.deps.Clock.Now()
	return report
}

// classify annotates the NEW and UPDATED winners of the run.
func (p *Pipeline) classify(logger *zap.Logger, runID string, counts *store.Counts) ([]rfp.Record, []any) {
	var (
		changed []rfp.Record
		events  []any
	)
	for _, claim := range p.deps.Resolver.Staged() {
		switch claim.Resolution.Status {
		case dedup.StatusUnchanged:
			counts.Unchanged++
			continue
		case dedup.StatusUpdated:
			counts.Updated++
		default:
			counts.New++
		}
		r := claim.Record
		if err := p.deps.Classifier.Apply(&r); err != nil {
			logger.Warn("classification failed, persisting without annotations", zap.Error(err))
		}
		if r.KeywordMatch {
			counts.Matched++
		}
		changed = append(changed, r)
		events = append(events, recordEvent(runID, claim, r))
	}
	metrics.ObserveMatches(counts.Matched)
	return changed, events
}

func recordEvent(runID string, claim dedup.Claim, r rfp.Record) RecordEvent {
	ev := RecordEvent{
		RunID:       runID,
		Status:      claim.Resolution.Status,
		ContentHash: r.ContentHash,
		Source:      r.Source,
		Region:      r.Region,
		SourceID:    r.SourceID,
		Title:       r.Title,
		Agency:      r.Agency,
		URL:         r.URL,
		CloseDate:   rfp.FormatDate(r.CloseDate),
		Matched:     r.MatchedKeywords,
	}
	if prior := claim.Resolution.Prior; prior != nil {
		ev.Changed = prior.Fields.Changed(dedup.SnapshotOf(r))
	}
	return ev
}

func (p *Pipeline) analyze(ctx context.Context, logger *zap.Logger, sum *Summary) {
	if p.deps.Analyzer == nil {
		return
	}
	corpus, err := p.deps.Dataset.All(ctx)
	if err != nil {
		logger.Error("read dataset for analysis failed", zap.Error(err))
		return
	}
	p.analyzeCorpus(ctx, logger, sum, corpus)
}

func (p *Pipeline) analyzeCorpus(ctx context.Context, logger *zap.Logger, sum *Summary, corpus []rfp.Record) {
	if p.deps.Analyzer == nil {
		return
	}
	rep, err := p.deps.Analyzer.Analyze(ctx, corpus)
	if err != nil {
		logger.Error("keyword analysis failed", zap.Error(err))
		return
	}
	sum.Analysis = &rep
}

// notify publishes the run notification, the record events and the search
// mirror. Failures are logged; the run has already been persisted.
func (p *Pipeline) notify(ctx context.Context, logger *zap.Logger, sum Summary, changed []rfp.Record, events []any) {
	if p.deps.Notifier != nil {
		n := RunNotification{
			RunID:       sum.RunID,
			Mode:        sum.Mode,
			FinishedAt:  sum.Report.FinishedAt,
			Counts:      sum.Counts,
			DatasetRows: sum.DatasetRows,
			Outcomes:    sum.Report.Sorted(),
		}
		if _, err := p.deps.Notifier.Publish(ctx, p.cfg.RunTopic, n); err != nil {
			logger.Warn("run notification failed", zap.Error(err))
		}
	}
	if p.deps.Events != nil && len(events) > 0 {
		sent, err := p.deps.Events.PublishAll(ctx, p.cfg.RecordTopic, events)
		if err != nil {
			logger.Warn("record events partially failed", zap.Int("sent", sent), zap.Int("total", len(events)), zap.Error(err))
		} else {
			logger.Info("record events published", zap.Int("sent", sent))
		}
	}
	if p.deps.Index != nil && len(changed) > 0 {
		indexed, err := p.deps.Index.IndexRecords(ctx, changed)
		if err != nil {
			logger.Warn("search mirror failed", zap.Int("indexed", indexed), zap.Error(err))
		}
	}
}

func (p *Pipeline) digest(ctx context.Context, logger *zap.Logger) {
	if !p.cfg.Digest || p.deps.Digest == nil {
		return
	}
	if _, err := p.deps.Digest.SyncForm(ctx); err != nil {
		logger.Warn("keyword form sync failed", zap.Error(err))
	}
	if _, err := p.deps.Digest.Daily(ctx); err != nil {
		logger.Error("daily digest failed", zap.Error(err))
	}
	if _, err := p.deps.Digest.Team(ctx); err != nil {
		logger.Error("team digest failed", zap.Error(err))
	}
}

// start records the run before any stage can fail. StartRun is idempotent,
// so the RUN_START progress event may record it again.
func (p *Pipeline) start(ctx context.Context, logger *zap.Logger, sum Summary) {
	if p.deps.Runs == nil {
		return
	}
	if err := p.deps.Runs.StartRun(ctx, sum.RunID, string(sum.Mode), p.deps.Clock.Now()); err != nil {
		logger.Warn("run history start failed", zap.Error(err))
	}
}

func (p *Pipeline) finish(ctx context.Context, logger *zap.Logger, sum Summary, errText string) {
	if p.deps.Runs == nil {
		return
	}
	if err := p.deps.Runs.FinishRun(ctx, sum.RunID, p.deps.Clock.Now(), sum.Counts, errText); err != nil {
		logger.Warn("run history finish failed", zap.Error(err))
	}
}

func (p *Pipeline) fail(ctx context.Context, logger *zap.Logger, sum Summary, err error) error {
	logger.Error("run failed", zap.Error(err))
	p.finish(context.WithoutCancel(ctx), logger, sum, err.Error())
	return err
}

func logOutcomes(logger *zap.Logger, report rfp.Report) {
	for _, o := range report.Sorted() {
		logger.Info("source outcome",
			zap.String("source", string(o.Source)),
			zap.String("status", string(o.Status)),
			zap.String("reason", o.Reason),
			zap.Int("records", o.Records),
			zap.Int("dropped", o.Dropped),
			zap.Int("attempts", o.Attempts),
			zap.Duration("duration", o.Duration),
		)
	}
	logger.Info("fetch stage report",
		zap.Int("sources", len(report.Outcomes)),
		zap.Int("success", report.Count(rfp.OutcomeSuccess)),
		zap.Int("empty", report.Count(rfp.OutcomeEmpty)),
		zap.Int("timeout", report.Count(rfp.OutcomeTimeout)),
		zap.Int("error", report.Count(rfp.OutcomeError)),
	)
}
