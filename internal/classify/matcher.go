package classify

import (
	"slices"
	"sort"
	"strings"
)

// phrase is a curated entry compiled to its token sequence. A trailing "*"
// in the curated text turns the last token into a stem that matches any
// token it prefixes.
type phrase struct {
	label  string
	tokens []string
	stem   bool
}

// Matcher finds curated phrases as whole token sequences inside text.
type Matcher struct {
	byFirst map[string][]phrase
	stems   []phrase
	size    int
}

// NewMatcher compiles phrases. Blank entries and duplicates (after
// lowercasing) are dropped; the input order does not matter.
func NewMatcher(phrases []string) *Matcher {
	m := &Matcher{byFirst: make(map[string][]phrase)}
	seen := make(map[string]struct{}, len(phrases))
	for _, raw := range phrases {
		label := strings.ToLower(strings.Join(strings.Fields(raw), " "))
		stem := strings.HasSuffix(label, "*")
		tokens := Tokens(label)
		if len(tokens) == 0 {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		p := phrase{label: strings.TrimSuffix(label, "*"), tokens: tokens, stem: stem}
		if stem && len(tokens) == 1 {
			m.stems = append(m.stems, p)
		} else {
			m.byFirst[tokens[0]] = append(m.byFirst[tokens[0]], p)
		}
		m.size++
	}
	return m
}

// Len reports how many distinct phrases the matcher holds.
func (m *Matcher) Len() int { return m.size }

// Phrases returns the compiled phrase labels in sorted order.
func (m *Matcher) Phrases() []string {
	out := make([]string, 0, m.size)
	for _, ps := range m.byFirst {
		for _, p := range ps {
			out = append(out, p.label)
		}
	}
	for _, p := range m.stems {
		out = append(out, p.label)
	}
	sort.Strings(out)
	return out
}

// Match returns the sorted set of phrases found in any of texts. Texts are
// matched independently so a phrase never spans two fields.
func (m *Matcher) Match(texts ...string) []string {
	found := make(map[string]struct{})
	for _, text := range texts {
		tokens := Tokens(text)
		for i, tok := range tokens {
			for _, p := range m.byFirst[tok] {
				if p.matchAt(tokens, i) {
					found[p.label] = struct{}{}
				}
			}
			for _, p := range m.stems {
				if strings.HasPrefix(tok, p.tokens[0]) {
					found[p.label] = struct{}{}
				}
			}
		}
	}
	out := make([]string, 0, len(found))
	for label := range found {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Any reports whether at least one phrase occurs in texts.
func (m *Matcher) Any(texts ...string) bool {
	return len(m.Match(texts...)) > 0
}

// Covers reports whether term overlaps a curated phrase in either
// direction, token-wise.
func (m *Matcher) Covers(term string) bool {
	tt := Tokens(term)
	if len(tt) == 0 {
		return false
	}
	for _, label := range m.Phrases() {
		pt := Tokens(label)
		if containsSeq(pt, tt) || containsSeq(tt, pt) {
			return true
		}
	}
	return false
}

func (p phrase) matchAt(tokens []string, i int) bool {
	if i+len(p.tokens) > len(tokens) {
		return false
	}
	last := len(p.tokens) - 1
	for j, want := range p.tokens {
		got := tokens[i+j]
		if j == last && p.stem {
			if !strings.HasPrefix(got, want) {
				return false
			}
			continue
		}
		if got != want {
			return false
		}
	}
	return true
}

func containsSeq(haystack, needle []string) bool {
	if len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if slices.Equal(haystack[i:i+len(needle)], needle) {
			return true
		}
	}
	return false
}
