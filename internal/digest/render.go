package digest

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

const missing = "-"

// groupOrder is the region order of digest tables; other regions follow
// alphabetically.
var groupOrder = []rfp.Region{
	rfp.RegionFederal, "TX", "NY", "CA", "FL", "IL", "PA", "OH", "GA", "NC",
	"MI", "NJ", "VA", "WA", "AZ", "MA", "TN", "IN", "MO", "MD",
}

// Message is a rendered email.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// Links are the footer links of every digest.
type Links struct {
	Feedback    string
	Dashboard   string
	Repository  string
	Unsubscribe string
}

type row struct {
	ID     string
	Title  string
	Agency string
	Status string
	Posted string
	Closes string
	URL    string
}

type group struct {
	Region rfp.Region
	Label  string
	Rows   []row
}

type view struct {
	Heading  string
	Greeting string
	Count    int
	Noun     string
	Summary  string
	Groups   []group
	Links    Links
	Phrases  string
	Unsub    string
}

var pageTemplate = template.Must(template.New("digest").Parse(digestHTMLTemplate))

func grouped(records []rfp.Record) []group {
	byRegion := make(map[rfp.Region][]rfp.Record)
	for _, r := range records {
		byRegion[r.Region] = append(byRegion[r.Region], r)
	}
	order := append([]rfp.Region(nil), groupOrder...)
	var rest []rfp.Region
	for region := range byRegion {
		known := false
		for _, o := range groupOrder {
			if o == region {
				known = true
				break
			}
		}
		if !known {
			rest = append(rest, region)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	order = append(order, rest...)

	var out []group
	for _, region := range order {
		rs := byRegion[region]
		if len(rs) == 0 {
			continue
		}
		g := group{Region: region, Label: region.Label()}
		for _, r := range rs {
			g.Rows = append(g.Rows, rowOf(r))
		}
		out = append(out, g)
	}
	return out
}

func rowOf(r rfp.Record) row {
	return row{
		ID:     orMissing(r.SourceID),
		Title:  orMissing(r.Title),
		Agency: orMissing(r.Agency),
		Status: orMissing(r.Status),
		Posted: orMissing(rfp.FormatDate(r.PostedDate)),
		Closes: orMissing(rfp.FormatDate(r.CloseDate)),
		URL:    r.URL,
	}
}

func orMissing(s string) string {
	if strings.TrimSpace(s) == "" {
		return missing
	}
	return s
}

// SummaryCounts renders per-region counts such as "5 Federal, 3 Texas".
func SummaryCounts(records []rfp.Record) string {
	gs := grouped(records)
	if len(gs) == 0 {
		return "0"
	}
	parts := make([]string, 0, len(gs))
	for _, g := range gs {
		parts = append(parts, fmt.Sprintf("%d %s", len(g.Rows), g.Label))
	}
	return strings.Join(parts, ", ")
}

// RenderDaily builds the catch-all digest of one day's matches.
func RenderDaily(records []rfp.Record, day time.Time, links Links) (Message, error) {
	date := day.Format("January 02, 2006")
	v := view{
		Heading: "Daily RFP Summary - " + date,
		Count:   len(records),
		Noun:    "new RFPs matching your keywords",
		Summary: SummaryCounts(records),
		Groups:  grouped(records),
		Links:   links,
	}
	html, err := execute(v)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Subject: fmt.Sprintf("RFP Alert: %d New Matches - %s", len(records), date),
		Text:    plainText(v, records, fmt.Sprintf("%d new matches", len(records))),
		HTML:    html,
	}, nil
}

// RenderTeam builds one member's weekly digest.
func RenderTeam(m Member, phrases []string, records []rfp.Record, day time.Time, links Links) (Message, error) {
	date := day.Format("January 02, 2006")
	shown := phrases
	if len(shown) > 6 {
		shown = shown[:6]
	}
	v := view{
		Heading:  "Weekly RFP Digest - " + date,
		Greeting: "Hi " + m.FirstName() + ",",
		Count:    len(records),
		Noun:     "RFPs matching your research interests",
		Summary:  SummaryCounts(records),
		Groups:   grouped(records),
		Links:    links,
		Phrases:  strings.Join(shown, ", "),
	}
	if links.Unsubscribe != "" {
		q := url.Values{}
		q.Set("subject", "Unsubscribe from RFP Digest")
		q.Set("body", fmt.Sprintf("Please remove %s (%s) from the weekly RFP digest.", m.Name, m.Email))
		v.Unsub = "mailto:" + links.Unsubscribe + "?" + strings.ReplaceAll(q.Encode(), "+", "%20")
	}
	html, err := execute(v)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Subject: fmt.Sprintf("Weekly RFP Digest: %d Matches for %s - %s", len(records), m.FirstName(), date),
		Text:    plainText(v, records, fmt.Sprintf("%d RFPs matching your interests", len(records))),
		HTML:    html,
	}, nil
}

func execute(v view) (string, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return buf.String(), nil
}

func plainText(v view, records []rfp.Record, count string) string {
	var sb strings.Builder
	sb.WriteString(v.Heading + "\n")
	if v.Greeting != "" {
		sb.WriteString(v.Greeting + "\n\n")
	}
	sb.WriteString(count + "\n\n")
	for _, r := range records {
		row := rowOf(r)
		title := r.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&sb, "[%s] %s\n", r.Region, title)
		fmt.Fprintf(&sb, "  ID: %s  |  Agency: %s\n", row.ID, row.Agency)
		fmt.Fprintf(&sb, "  Status: %s  |  Closes: %s\n", row.Status, row.Closes)
		fmt.Fprintf(&sb, "  %s\n\n", r.URL)
	}
	sb.WriteString("---\n")
	if v.Links.Feedback != "" {
		sb.WriteString("Share feedback: " + v.Links.Feedback + "\n")
	}
	if v.Links.Dashboard != "" {
		sb.WriteString("Dashboard: " + v.Links.Dashboard + "\n")
	}
	if v.Links.Repository != "" {
		sb.WriteString("GitHub: " + v.Links.Repository + "\n")
	}
	if v.Unsub != "" {
		fmt.Fprintf(&sb, "To unsubscribe: email %s with subject \"Unsubscribe\"\n", v.Links.Unsubscribe)
	}
	return sb.String()
}
