package analyze

import (
	"math"
	"sort"
	"time"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// TermScore ranks one term by how much more prominent it is inside the
// recent window than across the whole corpus.
type TermScore struct {
	Term       string  `json:"term"`
	Score      float64 `json:"score"`
	WindowMean float64 `json:"window_mean"`
	CorpusMean float64 `json:"corpus_mean"`
	Lift       float64 `json:"lift"`
	DocFreq    int     `json:"doc_freq"`
}

// Trending scores the terms of the records scraped within window before
// now. Each record contributes one document made of its key terms and
// matched keywords. Scores are windowMean * lift where lift is windowMean
// over corpusMean. A non-positive window covers the whole corpus. An empty
// corpus or window yields an empty ranking.
func Trending(corpus []rfp.Record, window time.Duration, now time.Time) []TermScore {
	out := []TermScore{}
	n := len(corpus)
	if n == 0 {
		return out
	}

	docs := make([]map[string]float64, n)
	df := make(map[string]int)
	for i, r := range corpus {
		docs[i] = termDocument(r)
		for term := range docs[i] {
			df[term]++
		}
	}

	idf := make(map[string]float64, len(df))
	for term, d := range df {
		idf[term] = smoothIDF(n, d)
	}

	cutoff := now.Add(-window)
	corpusSum := make(map[string]float64, len(df))
	windowSum := make(map[string]float64)
	windowDocs := 0
	for i, doc := range docs {
		inWindow := window <= 0 || !corpus[i].ScrapedAt.Before(cutoff)
		if inWindow {
			windowDocs++
		}
		for term, tf := range doc {
			w := tf * idf[term]
			corpusSum[term] += w
			if inWindow {
				windowSum[term] += w
			}
		}
	}
	if windowDocs == 0 {
		return out
	}

	for term, sum := range windowSum {
		windowMean := sum / float64(windowDocs)
		corpusMean := corpusSum[term] / float64(n)
		if windowMean <= 0 || corpusMean <= 0 {
			continue
		}
		lift := windowMean / corpusMean
		out = append(out, TermScore{
			Term:       term,
			Score:      windowMean * lift,
			WindowMean: windowMean,
			CorpusMean: corpusMean,
			Lift:       lift,
			DocFreq:    df[term],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// termDocument maps each normalized term of r to its relative frequency.
func termDocument(r rfp.Record) map[string]float64 {
	counts := make(map[string]float64, len(r.KeyTerms)+len(r.MatchedKeywords))
	total := 0.0
	add := func(raw string) {
		term := rfp.NormalizeText(raw)
		if term == "" {
			return
		}
		counts[term]++
		total++
	}
	for _, kt := range r.KeyTerms {
		add(kt.Term)
	}
	for _, kw := range r.MatchedKeywords {
		add(kw)
	}
	for term := range counts {
		counts[term] /= total
	}
	return counts
}

// smoothIDF is ln((1+n)/(1+df)) + 1, finite for every n >= 1.
func smoothIDF(n, df int) float64 {
	return math.Log(float64(1+n)/float64(1+df)) + 1
}
