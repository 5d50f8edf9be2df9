package classify

var englishStopWords = []string{
	"a", "an", "the", "and", "or", "but", "in", "on", "at", "to", "for", "of",
	"is", "it", "its", "by", "from", "with", "as", "be", "was", "were", "been",
	"being", "have", "has", "had", "do", "does", "did", "will", "would",
	"shall", "should", "may", "might", "can", "could", "this", "that", "these",
	"those", "am", "are", "not", "no", "nor", "so", "if", "then", "than", "too",
	"very", "each", "every", "all", "any", "both", "few", "more", "most",
	"other", "some", "such", "only", "own", "same", "just", "about", "above",
	"after", "again", "against", "before", "below", "between", "during", "into",
	"out", "over", "through", "under", "until", "up", "also", "how", "what",
	"which", "who", "whom", "why", "where", "when", "there", "here", "their",
	"them", "they", "he", "she", "her", "his", "him", "we", "our", "us", "you",
	"your", "me", "my",
}

var procurementStopWords = []string{
	"rfp", "rfq", "rfi", "ifb", "solicitation", "bid", "bids", "proposal",
	"proposals", "contract", "contracts", "amendment", "addendum", "addenda",
	"vendor", "vendors", "supplier", "suppliers", "bidder", "bidders",
	"services", "service", "provide", "providing", "provided", "provision",
	"procurement", "purchase", "purchasing", "request", "requests", "notice",
	"notices", "invitation", "invitations", "due", "date", "state", "county",
	"city", "town", "village", "district", "department", "dept", "division",
	"office", "agency", "bureau", "board", "commission", "authority",
	"university", "college", "school", "number", "num", "fiscal", "year",
	"month", "annual", "quarterly", "per", "new", "open", "closed", "awarded",
	"public", "issued", "release", "released", "issuing", "response",
	"responses", "submission", "submit", "submitted", "deadline", "period",
	"effective", "expiration", "renewal", "section", "item", "items", "page",
	"pages", "attachment", "exhibit", "appendix", "scope", "work", "required",
	"requirements", "requirement", "include", "includes", "including",
	"included", "shall", "must", "may", "general", "description",
	"specifications", "specification",
}

// StopWords is the union of English and procurement boilerplate stop words.
var StopWords = func() map[string]struct{} {
	set := make(map[string]struct{}, len(englishStopWords)+len(procurementStopWords))
	for _, w := range englishStopWords {
		set[w] = struct{}{}
	}
	for _, w := range procurementStopWords {
		set[w] = struct{}{}
	}
	return set
}()

// IsStopWord reports whether the lowercase token w is a stop word.
func IsStopWord(w string) bool {
	_, ok := StopWords[w]
	return ok
}
