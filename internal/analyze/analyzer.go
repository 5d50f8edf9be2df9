package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/classify"
	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// Default object names under the analyzer prefix.
const (
	ReportObject   = "keyword_analysis.txt"
	SnapshotObject = "top_terms.json"
	DefaultWindow  = 7 * 24 * time.Hour
)

// Config wires an Analyzer.
type Config struct {
	Blobs   rfp.BlobStore
	Matcher *classify.Matcher
	Clock   rfp.Clock
	// Window is the trending window; zero uses DefaultWindow.
	Window time.Duration
	// Prefix is the blob directory for the report and snapshot.
	Prefix string
	Logger *zap.Logger
}

// Analyzer runs Build over the dataset and persists the derived report.
type Analyzer struct {
	blobs   rfp.BlobStore
	matcher *classify.Matcher
	clock   rfp.Clock
	window  time.Duration
	prefix  string
	logger  *zap.Logger
}

// New validates cfg.
func New(cfg Config) (*Analyzer, error) {
	if cfg.Blobs == nil {
		return nil, errors.New("analyzer requires a blob store")
	}
	if cfg.Clock == nil {
		return nil, errors.New("analyzer requires a clock")
	}
	if cfg.Matcher == nil {
		cfg.Matcher = classify.NewMatcher(classify.DefaultPhrases)
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Analyzer{
		blobs:   cfg.Blobs,
		matcher: cfg.Matcher,
		clock:   cfg.Clock,
		window:  cfg.Window,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		logger:  cfg.Logger,
	}, nil
}

// Trending ranks the corpus terms over window ending now.
func (a *Analyzer) Trending(corpus []rfp.Record, window time.Duration) []TermScore {
	return Trending(corpus, window, a.clock.Now())
}

// Analyze builds the report, diffs it against the previous snapshot and
// writes both the text report and the new snapshot. An empty corpus is
// reported but nothing is written.
func (a *Analyzer) Analyze(ctx context.Context, corpus []rfp.Record) (Report, error) {
	rep := Build(corpus, a.matcher, a.window, a.clock.Now())
	if rep.Total == 0 {
		a.logger.Info("keyword analysis skipped, no data")
		rep.Diff = Diff{Baseline: true}
		return rep, nil
	}

	prev, err := a.LoadSnapshot(ctx)
	if err != nil {
		a.logger.Warn("previous top terms unreadable, treating run as baseline", zap.Error(err))
		prev = nil
	}
	snap := SnapshotOf(rep)
	rep.Diff = Compare(prev, snap)

	var text bytes.Buffer
	if err := WriteText(&text, rep); err != nil {
		return rep, err
	}
	if _, err := a.blobs.PutObject(ctx, a.object(ReportObject), "text/plain; charset=utf-8", &text); err != nil {
		return rep, &rfp.PersistenceError{Op: "analysis report", Err: err}
	}
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return rep, fmt.Errorf("encode top terms: %w", err)
	}
	if _, err := a.blobs.PutObject(ctx, a.object(SnapshotObject), "application/json", bytes.NewReader(payload)); err != nil {
		return rep, &rfp.PersistenceError{Op: "top terms", Err: err}
	}
	a.logger.Info(Summary(rep))
	return rep, nil
}

// LoadSnapshot reads the previous snapshot. A missing object returns nil.
func (a *Analyzer) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	data, err := a.blobs.GetObject(ctx, a.object(SnapshotObject))
	if errors.Is(err, rfp.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read top terms: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode top terms: %w", err)
	}
	return &snap, nil
}

func (a *Analyzer) object(name string) string {
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

// Summary is the one-line log form of rep.
func Summary(rep Report) string {
	top := "n/a"
	if len(rep.TopTerms) > 0 {
		top = rep.TopTerms[0].Term
	}
	parts := []string{
		fmt.Sprintf("Keyword analysis: %d RFPs", rep.Total),
		"top TF-IDF: " + top,
		fmt.Sprintf("gap candidates: %d", len(rep.Gaps)),
	}
	if n := len(rep.Diff.New); n > 0 && !rep.Diff.Baseline {
		parts = append(parts, fmt.Sprintf("new terms: %d", n))
	}
	return strings.Join(parts, " | ")
}
