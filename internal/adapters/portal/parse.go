package portal

import (
	"io"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

var (
	datePattern   = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)
	amountPattern = regexp.MustCompile(`\$[\d,.]+`)
	idPatterns    = []*regexp.Regexp{
		regexp.MustCompile(`[Ii]d=(\w+)`),
		regexp.MustCompile(`bid[Ii]d=(\w+)`),
		regexp.MustCompile(`solicitation[Ii]d=(\w+)`),
		regexp.MustCompile(`doc[Ii]d=(\w+)`),
		regexp.MustCompile(`number=(\w+)`),
	}
	linkHints = []string{"solicitation", "bid", "opportunity", "rfp", "procurement", "contract"}
	navWords  = map[string]struct{}{
		"home": {}, "login": {}, "register": {}, "about": {}, "contact": {},
		"faq": {}, "help": {}, "search": {}, "back": {}, "menu": {},
	}
)

const (
	minTitleRow  = 5
	minTitleLink = 10
	maxIDLen     = 30
)

// parseListing extracts solicitations from a rendered listing page. Table
// rows are preferred; pages without usable rows fall back to solicitation
// links.
func parseListing(r io.Reader, p Portal) ([]rfp.Record, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, &rfp.ParseError{Err: err}
	}
	base, err := url.Parse(p.URL)
	if err != nil {
		return nil, &rfp.ParseError{Err: err}
	}

	var records []rfp.Record
	for _, tr := range findAll(doc, isElement("tr")) {
		if !hasAncestor(tr, "tbody") {
			continue
		}
		if rec, ok := fromRow(tr, p, base); ok {
			records = append(records, rec)
		}
	}
	if len(records) > 0 {
		return records, nil
	}
	return fromLinks(doc, p, base), nil
}

func fromRow(tr *html.Node, p Portal, base *url.URL) (rfp.Record, bool) {
	cells := findAll(tr, isElement("td"))
	if len(cells) < 2 {
		return rfp.Record{}, false
	}
	texts := make([]string, len(cells))
	for i, c := range cells {
		texts[i] = textOf(c)
	}

	var href, title string
	if links := findAll(tr, isLink); len(links) > 0 {
		href = attr(links[0], "href")
		title = textOf(links[0])
	}
	if title == "" {
		for _, t := range texts {
			if len(t) > len(title) {
				title = t
			}
		}
	}
	if len(title) < minTitleRow {
		return rfp.Record{}, false
	}

	var id string
	for _, t := range texts {
		if t != "" && len(t) < maxIDLen && t != title {
			id = t
			break
		}
	}
	if id == "" && href != "" {
		id = idFromURL(href)
	}

	var agency string
	for _, t := range texts {
		if t != title && t != id && len(t) > 3 && !datePattern.MatchString(t) {
			agency = t
			break
		}
	}

	var dates []string
	var amount *float64
	for _, t := range texts {
		if m := datePattern.FindString(t); m != "" {
			dates = append(dates, m)
		}
		if amount == nil {
			if m := amountPattern.FindString(t); m != "" {
				amount = rfp.ParseAmount(m)
			}
		}
	}
	rec := rfp.Record{
		SourceID:    id,
		Region:      p.Region,
		Title:       title,
		Agency:      agency,
		Status:      "Open",
		URL:         absolute(base, href),
		Description: title,
		Amount:      amount,
	}
	// With several dates the first is the posting date; the last is always
	// the closing date.
	if len(dates) > 1 {
		rec.PostedDate, _ = rfp.ParseDate(dates[0])
	}
	if len(dates) > 0 {
		rec.CloseDate, _ = rfp.ParseDate(dates[len(dates)-1])
	}
	return rec, true
}

func fromLinks(doc *html.Node, p Portal, base *url.URL) []rfp.Record {
	seen := make(map[string]struct{})
	var records []rfp.Record
	for _, a := range findAll(doc, isLink) {
		href := attr(a, "href")
		if !hinted(href) {
			continue
		}
		text := textOf(a)
		if len(text) < minTitleLink {
			continue
		}
		if _, nav := navWords[strings.ToLower(text)]; nav {
			continue
		}
		if _, dup := seen[href]; dup {
			continue
		}
		seen[href] = struct{}{}
		records = append(records, rfp.Record{
			SourceID:    idFromURL(href),
			Region:      p.Region,
			Title:       text,
			Status:      "Open",
			URL:         absolute(base, href),
			Description: text,
		})
	}
	return records
}

func hinted(href string) bool {
	lower := strings.ToLower(href)
	for _, h := range linkHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

func idFromURL(href string) string {
	for _, re := range idPatterns {
		if m := re.FindStringSubmatch(href); m != nil {
			return m[1]
		}
	}
	parts := strings.Split(strings.TrimRight(href, "/"), "/")
	last, _, _ := strings.Cut(parts[len(parts)-1], "?")
	if last == "default.aspx" || last == "index.html" {
		return ""
	}
	return last
}

func absolute(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func isElement(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == tag }
}

func isLink(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "a" && attr(n, "href") != ""
}

func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func hasAncestor(n *html.Node, tag string) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == tag {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
