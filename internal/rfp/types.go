package rfp

import (
	"fmt"
	"sort"
	"time"
)

// Source names one of the known procurement providers.
type Source string

// Known sources.
const (
	SourceSAMGov          Source = "sam_gov"
	SourceGrantsGov       Source = "grants_gov"
	SourceSBIR            Source = "sbir"
	SourceNIHReporter     Source = "nih_reporter"
	SourceNSFAwards       Source = "nsf_awards"
	SourceFederalRegister Source = "federal_register"
	SourceUSASpending     Source = "usaspending"
	SourceProPublica      Source = "propublica"
	SourceSocrata         Source = "socrata"
	SourceBidNet          Source = "bidnet"
	SourceDemandStar      Source = "demandstar"
	SourceTexasESBD       Source = "texas_esbd"
	SourceNCEVP           Source = "nc_evp"
	SourceNYNYSCR         Source = "ny_nyscr"
	SourceBuySpeed        Source = "buyspeed"
	SourceJaggaer         Source = "jaggaer"
	SourceStatePortals    Source = "state_portals"
)

// Method describes how an adapter reaches its source.
type Method string

// Adapter access methods.
const (
	MethodHTTP    Method = "http"
	MethodBrowser Method = "browser"
)

// SourceInfo is static metadata about a known source.
type SourceInfo struct {
	Source  Source
	Label   string
	Method  Method
	Federal bool
}

var sourceTable = []SourceInfo{
	{SourceSAMGov, "SAM.gov", MethodHTTP, true},
	{SourceGrantsGov, "Grants.gov", MethodHTTP, true},
	{SourceSBIR, "SBIR.gov", MethodHTTP, true},
	{SourceNIHReporter, "NIH RePORTER", MethodHTTP, true},
	{SourceNSFAwards, "NSF Awards", MethodHTTP, true},
	{SourceFederalRegister, "Federal Register", MethodHTTP, true},
	{SourceUSASpending, "USAspending", MethodHTTP, true},
	{SourceProPublica, "ProPublica Nonprofits", MethodHTTP, true},
	{SourceSocrata, "Socrata Open Data", MethodHTTP, false},
	{SourceBidNet, "BidNet Direct", MethodBrowser, false},
	{SourceDemandStar, "DemandStar", MethodBrowser, false},
	{SourceTexasESBD, "Texas ESBD", MethodHTTP, false},
	{SourceNCEVP, "NC eVP", MethodBrowser, false},
	{SourceNYNYSCR, "NY Contract Reporter", MethodHTTP, false},
	{SourceBuySpeed, "BuySpeed", MethodBrowser, false},
	{SourceJaggaer, "Jaggaer", MethodBrowser, false},
	{SourceStatePortals, "State Portals", MethodBrowser, false},
}

// Sources lists every known source in registration order.
func Sources() []SourceInfo {
	return append([]SourceInfo(nil), sourceTable...)
}

// Info returns the metadata for s.
func (s Source) Info() (SourceInfo, bool) {
	for _, info := range sourceTable {
		if info.Source == s {
			return info, true
		}
	}
	return SourceInfo{}, false
}

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	_, ok := s.Info()
	return ok
}

// ParseSource validates a configured source name.
func ParseSource(name string) (Source, error) {
	s := Source(name)
	if !s.Valid() {
		return "", fmt.Errorf("unknown source %q", name)
	}
	return s, nil
}

// KeyTerm is one extracted salient phrase with its relevance score.
type KeyTerm struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
}

// Record is the canonical Opportunity Record.
type Record struct {
	SourceID       string
	Source         Source
	Region         Region
	Title          string
	Agency         string
	Description    string
	Status         string
	PostedDate     time.Time
	CloseDate      time.Time
	URL            string
	Amount         *float64
	Recipient      string
	RecipientState string
	PIName         string

	ContentHash     string
	KeywordMatch    bool
	MatchedKeywords []string
	KeyTerms        []KeyTerm

	FirstSeen time.Time
	ScrapedAt time.Time
}

// FetchParams is the per-call run configuration handed to an adapter.
type FetchParams struct {
	Timeout    time.Duration
	Credential string
	Region     Region
	Historical bool
}

// OutcomeStatus is the per-source result class in a run report.
type OutcomeStatus string

// Outcome statuses.
const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeTimeout OutcomeStatus = "timeout"
	OutcomeError   OutcomeStatus = "error"
	OutcomeEmpty   OutcomeStatus = "empty"
)

// Outcome summarizes one adapter invocation.
type Outcome struct {
	Source   Source        `json:"source"`
	Status   OutcomeStatus `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Records  int           `json:"records"`
	Dropped  int           `json:"dropped"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// Report is the outcome report of one fetch run.
type Report struct {
	RunID      string             `json:"run_id"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Outcomes   map[Source]Outcome `json:"outcomes"`
}

// Sorted returns the outcomes ordered by source name.
func (r Report) Sorted() []Outcome {
	out := make([]Outcome, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Count returns how many sources finished with status.
func (r Report) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}
