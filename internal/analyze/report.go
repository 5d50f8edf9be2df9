// Package analyze computes corpus-level term statistics over the persisted
// dataset: trending key terms, TF-IDF vocabulary reports, corpus RAKE
// phrases, gaps against the curated phrase list and run-over-run drift.
package analyze

import (
	"sort"
	"strings"
	"time"

	"github.com/scottlangford2/research-scraper/internal/classify"
	"github.com/scottlangford2/research-scraper/internal/rfp"
)

const (
	topOverall     = 50
	topPerGroup    = 20
	topRake        = 50
	topGaps        = 30
	topEnriched    = 20
	topCurated     = 20
	minGroupSize   = 5
	minGapScore    = 0.001
	maxTrendingLen = 50
)

// Group is the top terms of one region or source.
type Group struct {
	Name  string `json:"name"`
	Size  int    `json:"size"`
	Terms []Term `json:"terms"`
}

// Report is the full corpus analysis for one run.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Total       int       `json:"total"`
	Regions     int       `json:"regions"`
	Sources     int       `json:"sources"`
	Matched     int       `json:"matched"`

	// Vocabulary is zero when no term survived the document-frequency bounds.
	Vocabulary int     `json:"vocabulary"`
	TopTerms   []Term  `json:"top_terms"`
	ByRegion   []Group `json:"by_region"`
	BySource   []Group `json:"by_source"`

	// Enrichment is only computed with at least five matched and five
	// unmatched records.
	MatchedEnriched   []Term `json:"matched_enriched"`
	UnmatchedEnriched []Term `json:"unmatched_enriched"`

	RakeEligible int    `json:"rake_eligible"`
	RakePhrases  []Term `json:"rake_phrases"`

	CuratedCount   int      `json:"curated_count"`
	Gaps           []Term   `json:"gaps"`
	CuratedFound   []Term   `json:"curated_found"`
	CuratedMissing []string `json:"curated_missing"`

	Window   time.Duration `json:"window"`
	Trending []TermScore   `json:"trending"`

	Diff Diff `json:"diff"`
}

// Build analyzes corpus. It never fails: degenerate corpora produce empty
// sections.
func Build(corpus []rfp.Record, matcher *classify.Matcher, window time.Duration, now time.Time) Report {
	rep := Report{
		GeneratedAt: now.UTC(),
		Total:       len(corpus),
		Window:      window,
		TopTerms:    []Term{},
		Trending:    Trending(corpus, window, now),
	}
	if len(rep.Trending) > maxTrendingLen {
		rep.Trending = rep.Trending[:maxTrendingLen]
	}
	if len(corpus) == 0 {
		return rep
	}

	regions := make(map[string][]string)
	sources := make(map[string][]string)
	texts := make([]string, len(corpus))
	var matchedTexts, unmatchedTexts []string
	for i, r := range corpus {
		texts[i] = documentText(r)
		regions[string(r.Region)] = append(regions[string(r.Region)], texts[i])
		sources[string(r.Source)] = append(sources[string(r.Source)], texts[i])
		if r.KeywordMatch {
			rep.Matched++
			matchedTexts = append(matchedTexts, texts[i])
		} else {
			unmatchedTexts = append(unmatchedTexts, texts[i])
		}
	}
	rep.Regions = len(regions)
	rep.Sources = len(sources)
	rep.RakePhrases, rep.RakeEligible = corpusPhrases(texts, topRake)

	if matcher != nil {
		rep.CuratedCount = matcher.Len()
	}

	v := fitVectorizer(texts)
	if v == nil {
		if matcher != nil {
			rep.CuratedMissing = matcher.Phrases()
		}
		return rep
	}
	rep.Vocabulary = len(v.vocab)
	means := v.meanScores(texts)
	rep.TopTerms = v.ranked(means, topOverall, nil)
	rep.ByRegion = groupTerms(v, regions)
	rep.BySource = groupTerms(v, sources)

	if len(matchedTexts) >= minGroupSize && len(unmatchedTexts) >= minGroupSize {
		m := v.meanScores(matchedTexts)
		u := v.meanScores(unmatchedTexts)
		diff := make([]float64, len(m))
		for i := range m {
			diff[i] = m[i] - u[i]
		}
		rep.MatchedEnriched = v.ranked(diff, topEnriched, func(s float64) bool { return s > 0 })
		neg := make([]float64, len(diff))
		for i, d := range diff {
			neg[i] = -d
		}
		for _, t := range v.ranked(neg, topEnriched, func(s float64) bool { return s > 0 }) {
			rep.UnmatchedEnriched = append(rep.UnmatchedEnriched, Term{Term: t.Term, Score: -t.Score})
		}
	}

	if matcher != nil {
		rep.Gaps, rep.CuratedFound, rep.CuratedMissing = gapAnalysis(v, means, matcher)
	}
	return rep
}

// documentText joins title, description and agency, skipping a description
// that only repeats the title.
func documentText(r rfp.Record) string {
	desc := r.Description
	if strings.EqualFold(strings.TrimSpace(desc), strings.TrimSpace(r.Title)) {
		desc = ""
	}
	return strings.TrimSpace(strings.Join([]string{r.Title, desc, r.Agency}, " "))
}

func groupTerms(v *vectorizer, groups map[string][]string) []Group {
	names := make([]string, 0, len(groups))
	for name, texts := range groups {
		if len(texts) >= minGroupSize {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]Group, 0, len(names))
	for _, name := range names {
		texts := groups[name]
		out = append(out, Group{
			Name:  name,
			Size:  len(texts),
			Terms: v.ranked(v.meanScores(texts), topPerGroup, func(s float64) bool { return s > 0 }),
		})
	}
	return out
}

// gapAnalysis returns high-scoring vocabulary terms no curated phrase
// covers, plus which curated phrases appear in the vocabulary.
func gapAnalysis(v *vectorizer, means []float64, matcher *classify.Matcher) (gaps, found []Term, missing []string) {
	gaps = []Term{}
	for _, t := range v.ranked(means, 0, func(s float64) bool { return s >= minGapScore }) {
		if matcher.Covers(t.Term) {
			continue
		}
		gaps = append(gaps, t)
		if len(gaps) == topGaps {
			break
		}
	}
	for _, phrase := range matcher.Phrases() {
		key := strings.Join(classify.Tokens(phrase), " ")
		if i, ok := v.index[key]; ok {
			found = append(found, Term{Term: key, Score: means[i]})
			continue
		}
		missing = append(missing, phrase)
	}
	sortTerms(found)
	if len(found) > topCurated {
		found = found[:topCurated]
	}
	return gaps, found, missing
}
