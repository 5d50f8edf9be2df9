package analyze

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/scottlangford2/research-scraper/internal/classify"
)

const (
	maxFeatures = 5000
	minDocFreq  = 2
	maxDocRatio = 0.85
)

var tokenPattern = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)

// Term is one scored term or phrase.
type Term struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
}

// vectorizer is a fitted unigram+bigram TF-IDF model.
type vectorizer struct {
	vocab []string
	index map[string]int
	idf   []float64
}

// analyzeText lowercases text, keeps alphabetic tokens of three or more
// letters, drops stop words and returns unigrams followed by bigrams.
func analyzeText(text string) []string {
	var words []string
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if classify.IsStopWord(tok) {
			continue
		}
		words = append(words, tok)
	}
	grams := make([]string, 0, 2*len(words))
	grams = append(grams, words...)
	for i := 0; i+1 < len(words); i++ {
		grams = append(grams, words[i]+" "+words[i+1])
	}
	return grams
}

// fitVectorizer learns the vocabulary of texts: terms in at least two
// documents and at most 85% of them, capped at the most frequent 5000. It
// returns nil when nothing survives.
func fitVectorizer(texts []string) *vectorizer {
	n := len(texts)
	if n == 0 {
		return nil
	}
	df := make(map[string]int)
	tf := make(map[string]int)
	for _, text := range texts {
		seen := make(map[string]bool)
		for _, g := range analyzeText(text) {
			tf[g]++
			if !seen[g] {
				seen[g] = true
				df[g]++
			}
		}
	}
	maxDocs := maxDocRatio * float64(n)
	var vocab []string
	for term, d := range df {
		if d < minDocFreq || float64(d) > maxDocs {
			continue
		}
		vocab = append(vocab, term)
	}
	if len(vocab) == 0 {
		return nil
	}
	if len(vocab) > maxFeatures {
		sort.Slice(vocab, func(i, j int) bool {
			if tf[vocab[i]] != tf[vocab[j]] {
				return tf[vocab[i]] > tf[vocab[j]]
			}
			return vocab[i] < vocab[j]
		})
		vocab = vocab[:maxFeatures]
	}
	sort.Strings(vocab)

	v := &vectorizer{
		vocab: vocab,
		index: make(map[string]int, len(vocab)),
		idf:   make([]float64, len(vocab)),
	}
	for i, term := range vocab {
		v.index[term] = i
		v.idf[i] = smoothIDF(n, df[term])
	}
	return v
}

// meanScores transforms texts into L2-normalized TF-IDF rows and averages
// them per vocabulary term.
func (v *vectorizer) meanScores(texts []string) []float64 {
	means := make([]float64, len(v.vocab))
	if len(texts) == 0 {
		return means
	}
	for _, text := range texts {
		row := make(map[int]float64)
		for _, g := range analyzeText(text) {
			if i, ok := v.index[g]; ok {
				row[i]++
			}
		}
		var norm float64
		for i, c := range row {
			w := c * v.idf[i]
			row[i] = w
			norm += w * w
		}
		if norm == 0 {
			continue
		}
		norm = math.Sqrt(norm)
		for i, w := range row {
			means[i] += w / norm
		}
	}
	for i := range means {
		means[i] /= float64(len(texts))
	}
	return means
}

// ranked pairs scores with the vocabulary, ordered by score descending then
// term. Only scores passing keep are returned, at most limit of them
// (limit <= 0 means all).
func (v *vectorizer) ranked(scores []float64, limit int, keep func(float64) bool) []Term {
	out := make([]Term, 0, len(scores))
	for i, s := range scores {
		if keep != nil && !keep(s) {
			continue
		}
		out = append(out, Term{Term: v.vocab[i], Score: s})
	}
	sortTerms(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortTerms(terms []Term) {
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Score != terms[j].Score {
			return terms[i].Score > terms[j].Score
		}
		return terms[i].Term < terms[j].Term
	})
}
