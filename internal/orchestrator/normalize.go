package orchestrator

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// normalize trims fields, canonicalizes regions and stamps identity on the
// raw adapter output. Records without a usable region, or with neither an
// id nor a title, are dropped and counted.
func (o *Orchestrator) normalize(src rfp.Source, raw []rfp.Record, scrapedAt time.Time) ([]rfp.Record, int) {
	info, _ := src.Info()
	out := make([]rfp.Record, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		r.SourceID = strings.TrimSpace(r.SourceID)
		r.Title = strings.TrimSpace(r.Title)
		r.Agency = strings.TrimSpace(r.Agency)
		r.Description = strings.TrimSpace(r.Description)
		r.Status = strings.TrimSpace(r.Status)
		r.URL = strings.TrimSpace(r.URL)
		r.Recipient = strings.TrimSpace(r.Recipient)
		r.RecipientState = strings.TrimSpace(r.RecipientState)
		r.PIName = strings.TrimSpace(r.PIName)

		if r.SourceID == "" && r.Title == "" {
			dropped++
			continue
		}
		region, ok := canonicalRegion(r.Region, info.Federal)
		if !ok {
			o.logger.Debug("dropping record with unknown region",
				zap.String("source", string(src)),
				zap.String("region", string(r.Region)),
				zap.String("source_id", r.SourceID),
			)
			dropped++
			continue
		}
		r.Region = region
		r.Source = src
		r.ScrapedAt = scrapedAt

		// Derived fields are owned by later stages.
		r.KeywordMatch = false
		r.MatchedKeywords = nil
		r.KeyTerms = nil
		r.FirstSeen = time.Time{}

		hash, err := rfp.ContentHash(o.hasher, r)
		if err != nil {
			o.logger.Warn("content hash failed", zap.String("source", string(src)), zap.Error(err))
			dropped++
			continue
		}
		r.ContentHash = hash
		out = append(out, r)
	}
	return out, dropped
}

// canonicalRegion resolves raw; federal sources default to Federal when the
// adapter left the region blank.
func canonicalRegion(raw rfp.Region, federal bool) (rfp.Region, bool) {
	if raw.Valid() {
		return raw, true
	}
	if strings.TrimSpace(string(raw)) == "" {
		if federal {
			return rfp.RegionFederal, true
		}
		return "", false
	}
	region, err := rfp.ParseRegion(string(raw))
	if err != nil {
		return "", false
	}
	return region, true
}
