package classify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

func TestClassifyMatchFlagConsistency(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	records := []rfp.Record{
		{Title: ""},
		{Title: "Economic Development Impact Study for Rural Broadband"},
		{Title: "Roofing replacement", Agency: "Economic Development Board"},
		{Title: "Janitorial services", Description: "economic impact"},
		{Title: "Pension actuarial review", Agency: "Retirement System"},
		{Title: "   ", Agency: "   "},
	}
	for _, r := range records {
		res, err := c.Classify(r)
		require.NoError(t, err)
		require.Equal(t, len(res.Matched) > 0, res.Match, r.Title)
		require.NotNil(t, res.Matched)
	}
}

func TestClassifyDefaultPhrases(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	res, err := c.Classify(rfp.Record{Title: "Economic Development Impact Study for Rural Broadband"})
	require.NoError(t, err)
	require.True(t, res.Match)
	require.Contains(t, res.Matched, "economic development")
	require.Contains(t, res.Matched, "impact study")
}

func TestClassifyExclusionVetoes(t *testing.T) {
	t.Parallel()

	c := New(Config{Phrases: []string{"economic impact"}})
	res, err := c.Classify(rfp.Record{Title: "Economic impact of highway construction"})
	require.NoError(t, err)
	require.False(t, res.Match)
	require.Empty(t, res.Matched)
}

func TestClassifyIgnoresDescriptionForMatching(t *testing.T) {
	t.Parallel()

	c := New(Config{Phrases: []string{"pension"}, Exclusions: []string{}})
	res, err := c.Classify(rfp.Record{Title: "Actuarial services", Description: "Review of the pension fund"})
	require.NoError(t, err)
	require.False(t, res.Match)
	require.NotEmpty(t, res.KeyTerms)
}

func TestKeyTermsSkipDuplicateDescription(t *testing.T) {
	t.Parallel()

	c := New(Config{TopK: 10})
	withCopy := c.KeyTerms("Transit ridership survey", "transit ridership survey ")
	titleOnly := c.KeyTerms("Transit ridership survey", "")
	require.Equal(t, titleOnly, withCopy)
}

func TestClassifyInvalidUTF8(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	r := rfp.Record{ContentHash: "abc", Title: "Economic impact \xff\xfe"}
	err := c.Apply(&r)
	var classErr *rfp.ClassificationError
	require.True(t, errors.As(err, &classErr))
	require.Equal(t, "abc", classErr.ContentHash)
	require.False(t, r.KeywordMatch)
	require.Empty(t, r.MatchedKeywords)
	require.Empty(t, r.KeyTerms)
}

func TestApplySetsFields(t *testing.T) {
	t.Parallel()

	c := New(Config{TopK: 3})
	r := rfp.Record{Title: "Opioid settlement fund program evaluation", Agency: "Department of Health"}
	require.NoError(t, c.Apply(&r))
	require.True(t, r.KeywordMatch)
	require.Equal(t, []string{"opioid", "program evaluation"}, r.MatchedKeywords)
	require.LessOrEqual(t, len(r.KeyTerms), 3)
}
