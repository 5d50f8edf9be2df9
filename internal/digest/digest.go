// Package digest emails keyword matches: a daily catch-all summary and a
// weekly per-member digest filtered by each member's phrases.
package digest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	mail "gopkg.in/mail.v2"

	"github.com/scottlangford2/research-scraper/internal/classify"
	"github.com/scottlangford2/research-scraper/internal/clock/system"
	"github.com/scottlangford2/research-scraper/internal/dataset"
	collyfetcher "github.com/scottlangford2/research-scraper/internal/fetcher/colly"
	"github.com/scottlangford2/research-scraper/internal/metrics"
	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// DefaultWindowDays is the team digest lookback.
const DefaultWindowDays = 7

// Sender delivers composed messages. *mail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*mail.Message) error
}

// RecordSource reads the dataset.
type RecordSource interface {
	Query(ctx context.Context, f dataset.Filter) ([]rfp.Record, error)
}

// Fetcher downloads the published form responses.
type Fetcher interface {
	Do(ctx context.Context, req collyfetcher.Request) (collyfetcher.Response, error)
}

// SMTPConfig configures NewDialer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// NewDialer builds an SMTP sender with STARTTLS negotiated by the server.
func NewDialer(cfg SMTPConfig) *mail.Dialer {
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	d := mail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password)
	d.Timeout = 10 * time.Second
	return d
}

// Config controls recipients and content.
type Config struct {
	From       string
	DailyTo    string
	WindowDays int
	Links      Links
	// FormCSVURL is the published form response sheet; empty disables sync.
	FormCSVURL string
	// Aliases maps form sign-in addresses to team file addresses.
	Aliases map[string]string
}

// Deps are the collaborators of a Digest.
type Deps struct {
	Sender    Sender
	Records   RecordSource
	Team      []Member
	Overrides *OverrideStore
	Form      Fetcher
	Clock     rfp.Clock
	Logger    *zap.Logger
}

// Digest composes and sends both digests.
type Digest struct {
	cfg  Config
	deps Deps
}

// New validates deps and applies defaults.
func New(cfg Config, deps Deps) (*Digest, error) {
	if deps.Sender == nil {
		return nil, errors.New("digest: sender is required")
	}
	if deps.Records == nil {
		return nil, errors.New("digest: record source is required")
	}
	if cfg.From == "" {
		return nil, errors.New("digest: from address must be set")
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = DefaultWindowDays
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	return &Digest{cfg: cfg, deps: deps}, nil
}

// Daily sends today's matches to the catch-all recipient. It returns the
// number of records included; nothing is sent when there are none.
func (d *Digest) Daily(ctx context.Context) (int, error) {
	if d.cfg.DailyTo == "" {
		d.deps.Logger.Warn("daily digest recipient not set, skipping")
		return 0, nil
	}
	today := d.deps.Clock.Now().UTC()
	matched := true
	records, err := d.deps.Records.Query(ctx, dataset.Filter{From: today, To: today, Matched: &matched})
	if err != nil {
		return 0, fmt.Errorf("read today's matches: %w", err)
	}
	if len(records) == 0 {
		d.deps.Logger.Info("no keyword matches today, skipping daily digest")
		return 0, nil
	}
	msg, err := RenderDaily(records, today, d.cfg.Links)
	if err != nil {
		return 0, err
	}
	err = d.send(d.cfg.DailyTo, msg)
	metrics.ObserveDigestEmail("daily", err)
	if err != nil {
		return 0, fmt.Errorf("send daily digest: %w", err)
	}
	d.deps.Logger.Info("daily digest sent", zap.String("to", d.cfg.DailyTo), zap.Int("records", len(records)))
	return len(records), nil
}

// Team sends each member the window's matches that hit their effective
// phrases. A failed delivery is logged and does not stop the others. It
// returns how many members were emailed.
func (d *Digest) Team(ctx context.Context) (int, error) {
	if len(d.deps.Team) == 0 {
		d.deps.Logger.Info("no team members configured, skipping team digest")
		return 0, nil
	}
	now := d.deps.Clock.Now().UTC()
	matched := true
	records, err := d.deps.Records.Query(ctx, dataset.Filter{
		From:    now.AddDate(0, 0, -d.cfg.WindowDays),
		To:      now,
		Matched: &matched,
	})
	if err != nil {
		return 0, fmt.Errorf("read window matches: %w", err)
	}
	if len(records) == 0 {
		d.deps.Logger.Info("no keyword matches in window, skipping team digest", zap.Int("window_days", d.cfg.WindowDays))
		return 0, nil
	}

	overrides, err := d.loadOverrides(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	var errs []error
	for _, m := range d.deps.Team {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		phrases := overrides.Effective(m)
		matcher := classify.NewMatcher(phrases)
		var personal []rfp.Record
		for _, r := range records {
			if matcher.Any(r.Title, r.Description, r.Agency) {
				personal = append(personal, r)
			}
		}
		logger := d.deps.Logger.With(zap.String("member", m.Name), zap.String("email", m.Email))
		if len(personal) == 0 {
			logger.Info("no matches for member, skipping")
			continue
		}
		msg, err := RenderTeam(m, phrases, personal, now, d.cfg.Links)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		err = d.send(m.Email, msg)
		metrics.ObserveDigestEmail("team", err)
		if err != nil {
			logger.Error("team digest delivery failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("send to %s: %w", m.Email, err))
			continue
		}
		sent++
		logger.Info("team digest sent", zap.Int("records", len(personal)))
	}
	if sent == 0 && len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return sent, nil
}

// SyncForm folds new form responses into the persisted overrides and
// returns how many rows were applied.
func (d *Digest) SyncForm(ctx context.Context) (int, error) {
	if d.cfg.FormCSVURL == "" || d.deps.Form == nil || d.deps.Overrides == nil {
		return 0, nil
	}
	resp, err := d.deps.Form.Do(ctx, collyfetcher.Request{URL: d.cfg.FormCSVURL})
	if err != nil {
		return 0, fmt.Errorf("fetch form responses: %w", err)
	}
	overrides, err := d.deps.Overrides.Load(ctx)
	if err != nil {
		return 0, err
	}
	n, err := overrides.ApplyForm(bytes.NewReader(resp.Body), d.deps.Team, d.cfg.Aliases, d.deps.Logger)
	if err != nil {
		return n, err
	}
	if err := d.deps.Overrides.Save(ctx, overrides); err != nil {
		return n, err
	}
	if n > 0 {
		d.deps.Logger.Info("processed keyword updates", zap.Int("responses", n))
	}
	return n, nil
}

func (d *Digest) loadOverrides(ctx context.Context) (*Overrides, error) {
	if d.deps.Overrides == nil {
		return NewOverrides(), nil
	}
	return d.deps.Overrides.Load(ctx)
}

func (d *Digest) send(to string, msg Message) error {
	m := mail.NewMessage()
	m.SetHeader("From", d.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)
	return d.deps.Sender.DialAndSend(m)
}
