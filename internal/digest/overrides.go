package digest

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// DefaultOverridesPath is the overrides object name in the blob store.
const DefaultOverridesPath = "state/keyword_overrides.json"

// Form response columns: timestamp, email, two survey answers, then the
// phrases to add and remove.
const (
	colTimestamp = 0
	colEmail     = 1
	colAdd       = 4
	colRemove    = 5
)

// Change is one applied keyword request.
type Change struct {
	Timestamp string   `json:"timestamp"`
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	RawAdd    string   `json:"raw_add"`
	RawRemove string   `json:"raw_remove"`
}

// MemberOverrides are the persisted phrase edits of one member.
type MemberOverrides struct {
	Additions []string `json:"additions"`
	Removals  []string `json:"removals"`
	History   []Change `json:"history"`
}

// Overrides is the persisted overlay on top of the team file.
type Overrides struct {
	LastProcessed string                      `json:"last_processed_timestamp"`
	Members       map[string]*MemberOverrides `json:"members"`
}

// NewOverrides returns an empty overlay.
func NewOverrides() *Overrides {
	return &Overrides{Members: make(map[string]*MemberOverrides)}
}

// Apply records additions and removals for email. Adding a phrase cancels a
// pending removal of it and vice versa.
func (o *Overrides) Apply(email string, c Change) {
	key := strings.ToLower(strings.TrimSpace(email))
	mo, ok := o.Members[key]
	if !ok {
		mo = &MemberOverrides{}
		o.Members[key] = mo
	}
	adds := toSet(mo.Additions)
	rems := toSet(mo.Removals)
	for _, p := range c.Added {
		adds[p] = struct{}{}
		delete(rems, p)
	}
	for _, p := range c.Removed {
		rems[p] = struct{}{}
		delete(adds, p)
	}
	mo.Additions = sortedKeys(adds)
	mo.Removals = sortedKeys(rems)
	mo.History = append(mo.History, c)
}

// Effective is the member's base phrases plus additions minus removals.
// Members without overrides get their base list unchanged.
func (o *Overrides) Effective(m Member) []string {
	mo, ok := o.Members[m.key()]
	if !ok || mo == nil {
		return m.Phrases
	}
	set := make(map[string]struct{}, len(m.Phrases)+len(mo.Additions))
	for _, p := range m.Phrases {
		set[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
	}
	for _, p := range mo.Additions {
		set[p] = struct{}{}
	}
	for _, p := range mo.Removals {
		delete(set, p)
	}
	return sortedKeys(set)
}

// ApplyForm processes form response rows newer than LastProcessed. Rows from
// addresses that are not team members (after aliases) are skipped. It
// returns how many rows changed a member's phrases.
func (o *Overrides) ApplyForm(r io.Reader, members []Member, aliases map[string]string, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	team := make(map[string]struct{}, len(members))
	for _, m := range members {
		team[m.key()] = struct{}{}
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("read form header: %w", err)
	}

	newest := o.LastProcessed
	applied := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return applied, fmt.Errorf("read form row: %w", err)
		}
		if len(row) <= colRemove {
			continue
		}
		ts := strings.TrimSpace(row[colTimestamp])
		if ts <= o.LastProcessed {
			continue
		}
		if ts > newest {
			newest = ts
		}
		email, ok := resolveEmail(row[colEmail], team, aliases)
		if !ok {
			logger.Warn("form response from unknown address", zap.String("email", row[colEmail]))
			continue
		}
		rawAdd := strings.TrimSpace(row[colAdd])
		rawRemove := strings.TrimSpace(row[colRemove])
		c := Change{
			Timestamp: ts,
			Added:     splitPhrases(rawAdd),
			Removed:   splitPhrases(rawRemove),
			RawAdd:    rawAdd,
			RawRemove: rawRemove,
		}
		if len(c.Added) == 0 && len(c.Removed) == 0 {
			continue
		}
		o.Apply(email, c)
		applied++
		logger.Info("keyword update",
			zap.String("email", email),
			zap.Int("added", len(c.Added)),
			zap.Int("removed", len(c.Removed)),
		)
	}
	o.LastProcessed = newest
	return applied, nil
}

func resolveEmail(raw string, team map[string]struct{}, aliases map[string]string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := team[email]; ok {
		return email, true
	}
	for from, to := range aliases {
		if strings.ToLower(from) != email {
			continue
		}
		target := strings.ToLower(strings.TrimSpace(to))
		if _, ok := team[target]; ok {
			return target, true
		}
	}
	return "", false
}

// splitPhrases splits on commas when present, otherwise on newlines.
func splitPhrases(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	sep := "\n"
	if strings.Contains(raw, ",") {
		sep = ","
	}
	var out []string
	for _, p := range strings.Split(raw, sep) {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func toSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, s := range in {
		out[s] = struct{}{}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// OverrideStore keeps the overlay as one JSON object in a blob store.
type OverrideStore struct {
	blobs  rfp.BlobStore
	path   string
	logger *zap.Logger
}

// NewOverrideStore stores overrides at path (DefaultOverridesPath when empty).
func NewOverrideStore(blobs rfp.BlobStore, path string, logger *zap.Logger) *OverrideStore {
	if path == "" {
		path = DefaultOverridesPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverrideStore{blobs: blobs, path: path, logger: logger}
}

// Load reads the overlay. Missing or corrupt objects start fresh.
func (s *OverrideStore) Load(ctx context.Context) (*Overrides, error) {
	data, err := s.blobs.GetObject(ctx, s.path)
	if errors.Is(err, rfp.ErrNotFound) {
		return NewOverrides(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	o := NewOverrides()
	if err := json.Unmarshal(data, o); err != nil {
		s.logger.Warn("corrupt keyword overrides, starting fresh", zap.String("path", s.path), zap.Error(err))
		return NewOverrides(), nil
	}
	if o.Members == nil {
		o.Members = make(map[string]*MemberOverrides)
	}
	return o, nil
}

// Save rewrites the overlay.
func (s *OverrideStore) Save(ctx context.Context, o *Overrides) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("encode overrides: %w", err)
	}
	if _, err := s.blobs.PutObject(ctx, s.path, "application/json", bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}
