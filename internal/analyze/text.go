package analyze

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const (
	rule      = "======================================================================"
	maxListed = 30
)

// WriteText renders rep as the plain-text keyword analysis report.
func WriteText(w io.Writer, rep Report) error {
	b := bufio.NewWriter(w)
	p := func(format string, args ...any) {
		fmt.Fprintf(b, format+"\n", args...)
	}

	p("%s", rule)
	p("RESEARCH SCRAPER KEYWORD ANALYSIS REPORT")
	p("Generated: %s", rep.GeneratedAt.Format("2006-01-02 15:04:05"))
	p("Total RFPs: %d", rep.Total)
	p("Regions: %d", rep.Regions)
	p("Sources: %d", rep.Sources)
	if rep.Total > 0 {
		p("Keyword matches: %d (%.1f%%)", rep.Matched, float64(rep.Matched)/float64(rep.Total)*100)
	}
	p("%s", rule)

	p("%s", rule)
	p("TF-IDF ANALYSIS")
	p("%s", rule)
	if rep.Vocabulary == 0 {
		p("\nTF-IDF skipped: no term appears in at least two documents.")
	} else {
		p("\n--- Top %d Terms (Overall Corpus) ---", topOverall)
		rankedTable(p, "Term", rep.TopTerms)
		p("\n--- Top %d Terms by Region ---", topPerGroup)
		groups(p, rep.ByRegion)
		p("\n--- Top %d Terms by Source ---", topPerGroup)
		groups(p, rep.BySource)
		if rep.MatchedEnriched != nil || rep.UnmatchedEnriched != nil {
			p("\n--- Matched vs. Unmatched Comparison ---")
			p("\n  Terms enriched in MATCHED RFPs:")
			for _, t := range rep.MatchedEnriched {
				p("    %-40s +%.6f", t.Term, t.Score)
			}
			p("\n  Terms enriched in UNMATCHED RFPs:")
			for _, t := range rep.UnmatchedEnriched {
				p("    %-40s %.6f", t.Term, t.Score)
			}
		}
	}

	p("\n%s", rule)
	p("RAKE ANALYSIS (text-rich RFPs only)")
	p("%s", rule)
	p("\nRFPs with text >= %d chars: %d of %d total", rakeMinTextLen, rep.RakeEligible, rep.Total)
	if len(rep.RakePhrases) == 0 {
		p("Too few text-rich RFPs for meaningful RAKE analysis.")
	} else {
		p("\n--- Top %d RAKE Keyphrases ---", topRake)
		p("%-6s %-50s %-10s", "Rank", "Phrase", "Score")
		p("%s", strings.Repeat("-", 66))
		for i, t := range rep.RakePhrases {
			p("%-6d %-50s %.2f", i+1, t.Term, t.Score)
		}
	}

	p("\n%s", rule)
	p("GAP ANALYSIS: Discovered Terms vs. Curated Keywords")
	p("%s", rule)
	p("\nCurated keyword list: %d terms", rep.CuratedCount)
	p("TF-IDF vocabulary: %d terms", rep.Vocabulary)
	if rep.Vocabulary > 0 {
		p("\n--- Top %d High-Scoring Terms NOT in Curated Keywords ---", topGaps)
		rankedTable(p, "Term", rep.Gaps)
		p("\n  Found in corpus: %d of %d", rep.CuratedCount-len(rep.CuratedMissing), rep.CuratedCount)
		if len(rep.CuratedFound) > 0 {
			p("\n  Top %d most active curated keywords:", topCurated)
			for _, t := range rep.CuratedFound {
				p("    %-40s %.6f", t.Term, t.Score)
			}
		}
	}
	if n := len(rep.CuratedMissing); n > 0 {
		p("\n  Not found in corpus (%d keywords):", n)
		for i, kw := range rep.CuratedMissing {
			if i == maxListed {
				p("    ... and %d more", n-maxListed)
				break
			}
			p("    %s", kw)
		}
	}

	if len(rep.Trending) > 0 {
		p("\n%s", rule)
		p("TRENDING KEY TERMS (window %s)", rep.Window)
		p("%s", rule)
		p("%-6s %-40s %-10s %-10s", "Rank", "Term", "Score", "Lift")
		for i, t := range rep.Trending {
			p("%-6d %-40s %.6f   %.2f", i+1, t.Term, t.Score, t.Lift)
		}
	}

	p("\n%s", rule)
	p("NEW TERM DETECTION (vs. previous run)")
	p("%s", rule)
	writeDiff(p, rep.Diff)

	if err := b.Flush(); err != nil {
		return fmt.Errorf("write analysis report: %w", err)
	}
	return nil
}

func rankedTable(p func(string, ...any), label string, terms []Term) {
	p("%-6s %-40s %-12s", "Rank", label, "TF-IDF Score")
	p("%s", strings.Repeat("-", 58))
	for i, t := range terms {
		p("%-6d %-40s %.6f", i+1, t.Term, t.Score)
	}
}

func groups(p func(string, ...any), gs []Group) {
	for _, g := range gs {
		p("\n  %s (%d RFPs):", g.Name, g.Size)
		for _, t := range g.Terms {
			p("    %-40s %.6f", t.Term, t.Score)
		}
	}
}

func writeDiff(p func(string, ...any), d Diff) {
	if d.Baseline {
		p("\n  No previous run data; this is the baseline.")
		return
	}
	p("\n  Previous run: %s", d.PreviousAt.Format("2006-01-02 15:04:05"))
	if len(d.New) == 0 {
		p("\n  No new terms in top %d TF-IDF.", topOverall)
	} else {
		p("\n  NEW in top %d TF-IDF terms (%d):", topOverall, len(d.New))
		for _, t := range d.New {
			p("    + %-40s %.6f", t.Term, t.Score)
		}
	}
	if len(d.Dropped) > 0 {
		p("\n  DROPPED from top %d (%d):", topOverall, len(d.Dropped))
		for _, term := range d.Dropped {
			p("    - %s", term)
		}
	}
	if len(d.Rising) > 0 {
		p("\n  RISING terms (>10%% score increase, %d):", len(d.Rising))
		for _, r := range d.Rising {
			p("    %-40s %.6f -> %.6f  (+%.0f%%)", r.Term, r.Previous, r.Current, r.Growth()*100)
		}
	}
	if len(d.NewGaps) > 0 {
		p("\n  NEW gap candidates (%d):", len(d.NewGaps))
		for _, t := range d.NewGaps {
			p("    + %-40s %.6f", t.Term, t.Score)
		}
	}
	if len(d.NewRake) > 0 {
		p("\n  NEW RAKE phrases (%d):", len(d.NewRake))
		for _, phrase := range d.NewRake {
			p("    + %s", phrase)
		}
	}
}
