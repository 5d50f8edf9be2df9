package analyze

import (
	"sort"
	"strings"

	"github.com/scottlangford2/research-scraper/internal/classify"
)

const (
	rakeMinTextLen = 80
	rakeMinDocs    = 5
	rakeMinWords   = 2
	rakeMaxWords   = 4
)

// corpusPhrases extracts multi-word RAKE phrases from the text-rich
// documents, merged into one text. Phrases that are permutations of a
// higher ranked phrase are dropped. It also returns how many texts
// qualified; fewer than five yields no phrases.
func corpusPhrases(texts []string, limit int) ([]Term, int) {
	var rich []string
	for _, t := range texts {
		if len(t) >= rakeMinTextLen {
			rich = append(rich, t)
		}
	}
	if len(rich) < rakeMinDocs {
		return nil, len(rich)
	}

	var candidates [][]string
	for _, c := range classify.Candidates(strings.Join(rich, " . ")) {
		if len(c) >= rakeMinWords && len(c) <= rakeMaxWords {
			candidates = append(candidates, c)
		}
	}
	freq := make(map[string]float64)
	degree := make(map[string]float64)
	for _, c := range candidates {
		for _, w := range c {
			freq[w]++
			degree[w] += float64(len(c))
		}
	}
	scores := make(map[string]float64)
	for _, c := range candidates {
		label := strings.Join(c, " ")
		if _, ok := scores[label]; ok {
			continue
		}
		var s float64
		for _, w := range c {
			s += degree[w] / freq[w]
		}
		scores[label] = s
	}
	ranked := make([]Term, 0, len(scores))
	for label, s := range scores {
		ranked = append(ranked, Term{Term: label, Score: s})
	}
	sortTerms(ranked)

	seen := make(map[string]bool, len(ranked))
	out := make([]Term, 0, limit)
	for _, t := range ranked {
		key := permutationKey(t.Term)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out, len(rich)
}

func permutationKey(phrase string) string {
	words := strings.Fields(phrase)
	sort.Strings(words)
	return strings.Join(words, " ")
}
