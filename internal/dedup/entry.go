package dedup

import (
	"time"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// Status is the outcome of resolving one record.
type Status string

// Resolution statuses.
const (
	StatusNew       Status = "NEW"
	StatusUnchanged Status = "UNCHANGED"
	StatusUpdated   Status = "UPDATED"
)

// Snapshot holds the mutable fields of a record as last persisted.
type Snapshot struct {
	Agency      string   `json:"agency,omitempty"`
	Status      string   `json:"status,omitempty"`
	PostedDate  string   `json:"posted_date,omitempty"`
	CloseDate   string   `json:"close_date,omitempty"`
	URL         string   `json:"url,omitempty"`
	Description string   `json:"description,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
}

// SnapshotOf captures the mutable fields of r.
func SnapshotOf(r rfp.Record) Snapshot {
	return Snapshot{
		Agency:      r.Agency,
		Status:      r.Status,
		PostedDate:  rfp.FormatDate(r.PostedDate),
		CloseDate:   rfp.FormatDate(r.CloseDate),
		URL:         r.URL,
		Description: r.Description,
		Amount:      r.Amount,
	}
}

// Changed lists the names of fields that differ between s and next.
func (s Snapshot) Changed(next Snapshot) []string {
	var out []string
	if s.Agency != next.Agency {
		out = append(out, "agency")
	}
	if s.Status != next.Status {
		out = append(out, "status")
	}
	if s.PostedDate != next.PostedDate {
		out = append(out, "posted_date")
	}
	if s.CloseDate != next.CloseDate {
		out = append(out, "close_date")
	}
	if s.URL != next.URL {
		out = append(out, "url")
	}
	if s.Description != next.Description {
		out = append(out, "description")
	}
	switch {
	case s.Amount == nil && next.Amount == nil:
	case s.Amount == nil || next.Amount == nil || *s.Amount != *next.Amount:
		out = append(out, "amount")
	}
	return out
}

// Entry is the persisted metadata for one content hash.
type Entry struct {
	Hash        string     `json:"hash"`
	Source      rfp.Source `json:"source"`
	SourceID    string     `json:"source_id,omitempty"`
	Region      rfp.Region `json:"region"`
	Title       string     `json:"title"`
	FirstSeen   time.Time  `json:"first_seen"`
	LastSeen    time.Time  `json:"last_seen"`
	Fingerprint string     `json:"fingerprint"`
	Fields      Snapshot   `json:"fields"`
}

// intact reports whether e can serve as a prior for key.
func (e Entry) intact(key string) bool {
	return e.Hash == key && e.Fingerprint != "" && !e.FirstSeen.IsZero()
}

// Resolution is the dedup verdict for one record. Prior is set for UPDATED.
type Resolution struct {
	Status   Status
	Prior    *Entry
	Conflict bool
}

// Claim is a record staged for commit together with its verdict.
type Claim struct {
	Record      rfp.Record
	Fingerprint string
	Resolution  Resolution
}

func (c Claim) less(other Claim) bool {
	if c.Record.Source != other.Record.Source {
		return c.Record.Source < other.Record.Source
	}
	if c.Record.SourceID != other.Record.SourceID {
		return c.Record.SourceID < other.Record.SourceID
	}
	return c.Fingerprint < other.Fingerprint
}
