package rfp

import (
	"strconv"
	"strings"
)

const fieldSep = "\x1f"

// NormalizeText lowercases, collapses whitespace and trims.
func NormalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// IdentityKey is the normalized (region, source_id or title, title) tuple.
func IdentityKey(r Record) string {
	id := NormalizeText(r.SourceID)
	title := NormalizeText(r.Title)
	if id == "" {
		id = title
	}
	return strings.Join([]string{strings.ToLower(string(r.Region)), id, title}, fieldSep)
}

// ContentHash derives the stable identity hash of r.
func ContentHash(h Hasher, r Record) (string, error) {
	return h.Hash([]byte(IdentityKey(r)))
}

// MutableKey joins the fields whose change makes a record UPDATED.
func MutableKey(r Record) string {
	amount := ""
	if r.Amount != nil {
		amount = strconv.FormatFloat(*r.Amount, 'f', 2, 64)
	}
	return strings.Join([]string{
		NormalizeText(r.Agency),
		NormalizeText(r.Status),
		FormatDate(r.PostedDate),
		FormatDate(r.CloseDate),
		strings.TrimSpace(r.URL),
		NormalizeText(r.Description),
		amount,
	}, fieldSep)
}

// Fingerprint hashes the mutable fields of r.
func Fingerprint(h Hasher, r Record) (string, error) {
	return h.Hash([]byte(MutableKey(r)))
}
