package classify

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// DefaultTopK is the number of key terms kept per record.
const DefaultTopK = 5

var errInvalidUTF8 = errors.New("text is not valid UTF-8")

// Result is the annotation computed for one record.
type Result struct {
	Match    bool
	Matched  []string
	KeyTerms []rfp.KeyTerm
}

// Config tunes a Classifier. Nil phrase slices select the defaults; an
// empty non-nil slice disables that list.
type Config struct {
	Phrases    []string
	Exclusions []string
	TopK       int
}

// Classifier runs the deductive and inductive passes.
type Classifier struct {
	phrases    *Matcher
	exclusions *Matcher
	topK       int
}

// New builds a Classifier from cfg.
func New(cfg Config) *Classifier {
	phrases := cfg.Phrases
	if phrases == nil {
		phrases = DefaultPhrases
	}
	exclusions := cfg.Exclusions
	if exclusions == nil {
		exclusions = DefaultExclusions
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Classifier{
		phrases:    NewMatcher(phrases),
		exclusions: NewMatcher(exclusions),
		topK:       topK,
	}
}

// Matcher exposes the curated phrase matcher.
func (c *Classifier) Matcher() *Matcher { return c.phrases }

// Match runs the deductive pass over title and agency. Excluded listings
// never match.
func (c *Classifier) Match(title, agency string) (bool, []string) {
	if c.exclusions.Any(title, agency) {
		return false, []string{}
	}
	matched := c.phrases.Match(title, agency)
	return len(matched) > 0, matched
}

// KeyTerms runs RAKE over the title and description. A description that
// only repeats the title is ignored.
func (c *Classifier) KeyTerms(title, description string) []rfp.KeyTerm {
	text := title
	if d := strings.TrimSpace(description); d != "" && !strings.EqualFold(d, strings.TrimSpace(title)) {
		text = title + ". " + d
	}
	return Rake(text, c.topK)
}

// Classify annotates r. Malformed text yields an empty Result and a
// *rfp.ClassificationError; the caller still persists the record.
func (c *Classifier) Classify(r rfp.Record) (res Result, err error) {
	empty := Result{Matched: []string{}}
	defer func() {
		if p := recover(); p != nil {
			res = empty
			err = &rfp.ClassificationError{ContentHash: r.ContentHash, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	for _, s := range []string{r.Title, r.Agency, r.Description} {
		if !utf8.ValidString(s) {
			return empty, &rfp.ClassificationError{ContentHash: r.ContentHash, Err: errInvalidUTF8}
		}
	}
	match, matched := c.Match(r.Title, r.Agency)
	return Result{
		Match:    match,
		Matched:  matched,
		KeyTerms: c.KeyTerms(r.Title, r.Description),
	}, nil
}

// Apply classifies r in place. On error the classification fields are
// cleared and the error is returned for logging.
func (c *Classifier) Apply(r *rfp.Record) error {
	res, err := c.Classify(*r)
	r.KeywordMatch = res.Match
	r.MatchedKeywords = res.Matched
	r.KeyTerms = res.KeyTerms
	return err
}
