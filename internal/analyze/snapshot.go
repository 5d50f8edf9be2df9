package analyze

import (
	"sort"
	"time"
)

const (
	risingThreshold = 0.10
	maxRising       = 15
)

// Snapshot is the persisted top-terms state diffed by the next run.
type Snapshot struct {
	Timestamp   time.Time          `json:"timestamp"`
	TopTFIDF    map[string]float64 `json:"top_tfidf"`
	GapTerms    map[string]float64 `json:"gap_terms"`
	RakePhrases []string           `json:"rake_phrases"`
}

// Rise is a top term whose score grew by more than 10% since the previous run.
type Rise struct {
	Term     string  `json:"term"`
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
}

// Growth is the relative score increase.
func (r Rise) Growth() float64 {
	return (r.Current - r.Previous) / r.Previous
}

// Diff compares this run's snapshot against the previous one.
type Diff struct {
	// Baseline is set when no previous snapshot existed.
	Baseline   bool      `json:"baseline"`
	PreviousAt time.Time `json:"previous_at,omitempty"`
	New        []Term    `json:"new"`
	Dropped    []string  `json:"dropped"`
	Rising     []Rise    `json:"rising"`
	NewGaps    []Term    `json:"new_gaps"`
	NewRake    []string  `json:"new_rake"`
}

// SnapshotOf extracts the diffable state of rep.
func SnapshotOf(rep Report) Snapshot {
	snap := Snapshot{
		Timestamp:   rep.GeneratedAt,
		TopTFIDF:    make(map[string]float64, len(rep.TopTerms)),
		GapTerms:    make(map[string]float64, len(rep.Gaps)),
		RakePhrases: make([]string, 0, len(rep.RakePhrases)),
	}
	for _, t := range rep.TopTerms {
		snap.TopTFIDF[t.Term] = t.Score
	}
	for _, t := range rep.Gaps {
		snap.GapTerms[t.Term] = t.Score
	}
	for _, t := range rep.RakePhrases {
		snap.RakePhrases = append(snap.RakePhrases, t.Term)
	}
	return snap
}

// Compare diffs cur against prev. A nil or empty prev marks cur as the baseline.
func Compare(prev *Snapshot, cur Snapshot) Diff {
	if prev == nil || len(prev.TopTFIDF) == 0 {
		return Diff{Baseline: true}
	}
	d := Diff{PreviousAt: prev.Timestamp}
	for term, score := range cur.TopTFIDF {
		old, ok := prev.TopTFIDF[term]
		if !ok {
			d.New = append(d.New, Term{Term: term, Score: score})
			continue
		}
		if old > 0 && (score-old)/old > risingThreshold {
			d.Rising = append(d.Rising, Rise{Term: term, Previous: old, Current: score})
		}
	}
	for term := range prev.TopTFIDF {
		if _, ok := cur.TopTFIDF[term]; !ok {
			d.Dropped = append(d.Dropped, term)
		}
	}
	for term, score := range cur.GapTerms {
		if _, ok := prev.GapTerms[term]; !ok {
			d.NewGaps = append(d.NewGaps, Term{Term: term, Score: score})
		}
	}
	prevRake := make(map[string]bool, len(prev.RakePhrases))
	for _, p := range prev.RakePhrases {
		prevRake[p] = true
	}
	for _, p := range cur.RakePhrases {
		if !prevRake[p] {
			d.NewRake = append(d.NewRake, p)
		}
	}

	byTerm := func(ts []Term) {
		sort.Slice(ts, func(i, j int) bool { return ts[i].Term < ts[j].Term })
	}
	byTerm(d.New)
	byTerm(d.NewGaps)
	sort.Strings(d.Dropped)
	sort.Strings(d.NewRake)
	sort.Slice(d.Rising, func(i, j int) bool {
		gi, gj := d.Rising[i].Growth(), d.Rising[j].Growth()
		if gi != gj {
			return gi > gj
		}
		return d.Rising[i].Term < d.Rising[j].Term
	})
	if len(d.Rising) > maxRising {
		d.Rising = d.Rising[:maxRising]
	}
	return d
}
