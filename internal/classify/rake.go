package classify

import (
	"sort"
	"strings"
	"unicode"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// MinWordLen is the shortest token kept inside a candidate phrase.
const MinWordLen = 3

// Candidates splits text into RAKE candidate phrases. Punctuation, stop
// words, digit-only tokens and tokens shorter than MinWordLen all end the
// current phrase; hyphens and apostrophes only separate words.
func Candidates(text string) [][]string {
	var (
		phrases [][]string
		current []string
		word    strings.Builder
	)
	flushWord := func() {
		if word.Len() == 0 {
			return
		}
		w := word.String()
		word.Reset()
		if len([]rune(w)) < MinWordLen || isDigits(w) || IsStopWord(w) {
			flushPhrase(&phrases, &current)
			return
		}
		current = append(current, w)
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '\'' || r == '’':
			flushWord()
		default:
			flushWord()
			flushPhrase(&phrases, &current)
		}
	}
	flushWord()
	flushPhrase(&phrases, &current)
	return phrases
}

func flushPhrase(phrases *[][]string, current *[]string) {
	if len(*current) > 0 {
		*phrases = append(*phrases, *current)
		*current = nil
	}
}

// Rake scores each distinct candidate phrase of text as the sum of its word
// scores, where a word scores degree/frequency over all candidates. Results
// are ranked by score descending with ties broken lexically; k <= 0 returns
// every phrase.
func Rake(text string, k int) []rfp.KeyTerm {
	candidates := Candidates(text)
	if len(candidates) == 0 {
		return nil
	}
	freq := make(map[string]float64)
	degree := make(map[string]float64)
	for _, c := range candidates {
		for _, w := range c {
			freq[w]++
			degree[w] += float64(len(c))
		}
	}
	scores := make(map[string]float64, len(candidates))
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
	out := make([]rfp.KeyTerm, 0, len(scores))
	for term, score := range scores {
		out = append(out, rfp.KeyTerm{Term: term, Score: score})
	}
	SortKeyTerms(out)
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// SortKeyTerms orders terms by score descending, then term ascending.
func SortKeyTerms(terms []rfp.KeyTerm) {
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Score != terms[j].Score {
			return terms[i].Score > terms[j].Score
		}
		return terms[i].Term < terms[j].Term
	})
}
