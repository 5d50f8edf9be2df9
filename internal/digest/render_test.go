package digest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

func TestSummaryCountsOrder(t *testing.T) {
	t.Parallel()

	records := []rfp.Record{
		{Region: "OK"}, {Region: "TX"}, {Region: rfp.RegionFederal},
		{Region: "TX"}, {Region: "AL"}, {Region: rfp.RegionFederal}, {Region: "TX"},
	}
	require.Equal(t, "2 Federal, 3 Texas, 1 Alabama, 1 Oklahoma", SummaryCounts(records))
	require.Equal(t, "0", SummaryCounts(nil))
}

func TestRenderDailyEscapesAndGroups(t *testing.T) {
	t.Parallel()

	records := []rfp.Record{
		{Region: "TX", Title: "Survey <script>", URL: "https://tx/1"},
		{Region: rfp.RegionFederal, Title: "Impact Study", SourceID: "F-9"},
	}
	msg, err := RenderDaily(records, now, Links{Feedback: "https://forms.example/feedback"})
	require.NoError(t, err)
	require.Equal(t, "RFP Alert: 2 New Matches - April 10, 2026", msg.Subject)
	require.Contains(t, msg.HTML, "Survey &lt;script&gt;")
	require.Contains(t, msg.HTML, "<h3>Federal (1)</h3>")
	require.Less(t, strings.Index(msg.HTML, "Federal (1)"), strings.Index(msg.HTML, "Texas (1)"))
	require.Contains(t, msg.HTML, `<a href="https://tx/1">View</a>`)
	require.Contains(t, msg.Text, "[TX] Survey <script>")
	require.Contains(t, msg.Text, "ID: F-9  |  Agency: -")
	require.Contains(t, msg.Text, "Share feedback: https://forms.example/feedback")
}

func TestRenderTeamPersonalizes(t *testing.T) {
	t.Parallel()

	m := Member{Name: "Ana Ruiz", Email: "ana@example.edu"}
	phrases := []string{"a", "b", "c", "d", "e", "f", "g"}
	msg, err := RenderTeam(m, phrases, []rfp.Record{{Region: "NY", Title: "Transit Plan"}}, now,
		Links{Unsubscribe: "owner@example.edu"})
	require.NoError(t, err)
	require.Equal(t, "Weekly RFP Digest: 1 Matches for Ana - April 10, 2026", msg.Subject)
	require.Contains(t, msg.HTML, "Hi Ana,")
	require.Contains(t, msg.HTML, "Your keyword domains: a, b, c, d, e, f, ...")
	require.Contains(t, msg.HTML, "mailto:owner@example.edu?")
	require.Contains(t, msg.Text, `To unsubscribe: email owner@example.edu with subject "Unsubscribe"`)
}
