// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/scottlangford2/research-scraper/internal/adapters/portal"
	"github.com/scottlangford2/research-scraper/internal/adapters/socrata"
	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// EnvPrefix prefixes every bound environment variable.
const EnvPrefix = "RFP"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Orchestrator  OrchestratorConfig  `mapstructure:"orchestrator"`
	Dedup         DedupConfig         `mapstructure:"dedup"`
	Classifier    ClassifierConfig    `mapstructure:"classifier"`
	Analyzer      AnalyzerConfig      `mapstructure:"analyzer"`
	Sources       SourcesConfig       `mapstructure:"sources"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Headless      HeadlessConfig      `mapstructure:"headless"`
	PubSub        PubSubConfig        `mapstructure:"pubsub"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Email         EmailConfig         `mapstructure:"email"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Progress      ProgressConfig      `mapstructure:"progress"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port                  int    `mapstructure:"port"`
	APIKey                string `mapstructure:"api_key"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// StorageConfig selects the blob backend holding the dataset, seen set and reports.
type StorageConfig struct {
	// Backend is memory, local or gcs.
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	Bucket      string `mapstructure:"bucket"`
	Prefix      string `mapstructure:"prefix"`
	DatasetPath string `mapstructure:"dataset_path"`
	SeenPath    string `mapstructure:"seen_path"`
	ReportDir   string `mapstructure:"report_dir"`
}

// DatabaseConfig enables the Postgres seen set and run history when DSN is set.
type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn"`
	SeenTable              string `mapstructure:"seen_table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// OrchestratorConfig governs the fetch fan-out.
type OrchestratorConfig struct {
	Concurrency          int      `mapstructure:"concurrency"`
	SourceTimeoutSeconds int      `mapstructure:"source_timeout_seconds"`
	RunTimeoutSeconds    int      `mapstructure:"run_timeout_seconds"`
	RetryBackoffMs       int      `mapstructure:"retry_backoff_ms"`
	Sources              []string `mapstructure:"sources"`
	Region               string   `mapstructure:"region"`
}

// DedupConfig sets seen-set retention.
type DedupConfig struct {
	TTLDays         int `mapstructure:"ttl_days"`
	BackfillTTLDays int `mapstructure:"backfill_ttl_days"`
}

// ClassifierConfig overrides the curated lists. Empty lists keep the defaults.
type ClassifierConfig struct {
	Phrases    []string `mapstructure:"phrases"`
	Exclusions []string `mapstructure:"exclusions"`
	TopK       int      `mapstructure:"top_k"`
}

// AnalyzerConfig tunes the corpus report.
type AnalyzerConfig struct {
	WindowDays int `mapstructure:"window_days"`
}

// SourcesConfig carries the per-adapter settings.
type SourcesConfig struct {
	SAMGov          SAMGovConfig          `mapstructure:"sam_gov"`
	GrantsGov       GrantsGovConfig       `mapstructure:"grants_gov"`
	FederalRegister FederalRegisterConfig `mapstructure:"federal_register"`
	Socrata         SocrataConfig         `mapstructure:"socrata"`
	Portals         []portal.Portal       `mapstructure:"portals"`
}

// SAMGovConfig configures the SAM.gov opportunities adapter.
type SAMGovConfig struct {
	APIKey         string `mapstructure:"api_key"`
	LookbackDays   int    `mapstructure:"lookback_days"`
	HistoricalDays int    `mapstructure:"historical_days"`
	ChunkDays      int    `mapstructure:"chunk_days"`
	PageSize       int    `mapstructure:"page_size"`
}

// GrantsGovConfig configures the Grants.gov search adapter.
type GrantsGovConfig struct {
	Queries  []string `mapstructure:"queries"`
	Rows     int      `mapstructure:"rows"`
	MaxPages int      `mapstructure:"max_pages"`
}

// FederalRegisterConfig configures the Federal Register adapter.
type FederalRegisterConfig struct {
	Terms          []string `mapstructure:"terms"`
	LookbackDays   int      `mapstructure:"lookback_days"`
	HistoricalDays int      `mapstructure:"historical_days"`
}

// SocrataConfig configures the state open-data adapter.
type SocrataConfig struct {
	Datasets     []socrata.Dataset `mapstructure:"datasets"`
	LookbackDays int               `mapstructure:"lookback_days"`
	PageSize     int               `mapstructure:"page_size"`
}

// HTTPConfig configures the shared HTTP fetcher.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
}

// RateLimitConfig sets per-host politeness.
type RateLimitConfig struct {
	DefaultRPS   float64            `mapstructure:"default_rps"`
	DefaultBurst int                `mapstructure:"default_burst"`
	Hosts        map[string]float64 `mapstructure:"hosts"`
}

// HeadlessConfig configures the browser renderer for portal adapters.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	SettleMs      int  `mapstructure:"settle_ms"`
}

// PubSubConfig holds the run notification topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// KafkaConfig enables run notifications and per-record events on Kafka.
type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	RunTopic    string   `mapstructure:"run_topic"`
	RecordTopic string   `mapstructure:"record_topic"`
	MaxAttempts int      `mapstructure:"max_attempts"`
}

// ElasticsearchConfig enables the search mirror when Addresses is set.
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
}

// EmailConfig configures the digests.
type EmailConfig struct {
	Enabled       bool              `mapstructure:"enabled"`
	SMTPHost      string            `mapstructure:"smtp_host"`
	SMTPPort      int               `mapstructure:"smtp_port"`
	SMTPUser      string            `mapstructure:"smtp_user"`
	SMTPPassword  string            `mapstructure:"smtp_password"`
	From          string            `mapstructure:"from"`
	To            string            `mapstructure:"to"`
	WindowDays    int               `mapstructure:"window_days"`
	TeamFile      string            `mapstructure:"team_file"`
	FormCSVURL    string            `mapstructure:"form_csv_url"`
	OverridesPath string            `mapstructure:"overrides_path"`
	Aliases       map[string]string `mapstructure:"aliases"`
	FeedbackURL   string            `mapstructure:"feedback_url"`
	DashboardURL  string            `mapstructure:"dashboard_url"`
	RepositoryURL string            `mapstructure:"repository_url"`
	Unsubscribe   string            `mapstructure:"unsubscribe"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	Enabled           bool  `mapstructure:"enabled"`
	LogEnabled        bool  `mapstructure:"log_enabled"`
	PrometheusEnabled bool  `mapstructure:"prometheus_enabled"`
	BufferSize        int   `mapstructure:"buffer_size"`
	Batch             Batch `mapstructure:"batch"`
	SinkTimeoutMs     int   `mapstructure:"sink_timeout_ms"`
}

// Batch bounds one progress flush.
type Batch struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// envAliases binds the environment names the deployment already uses.
var envAliases = map[string][]string{
	"sources.sam_gov.api_key": {"SAM_GOV_API_KEY"},
	"email.smtp_host":         {"SMTP_HOST"},
	"email.smtp_port":         {"SMTP_PORT"},
	"email.smtp_user":         {"SMTP_USER"},
	"email.smtp_password":     {"SMTP_PASS"},
	"email.from":              {"EMAIL_FROM"},
	"email.to":                {"EMAIL_TO"},
	"email.form_csv_url":      {"FORM_RESPONSES_CSV_URL"},
	"database.dsn":            {"DATABASE_URL"},
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindAliases(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func bindAliases(v *viper.Viper) error {
	for key, aliases := range envAliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		names := append([]string{key, prefixed}, aliases...)
		if err := v.BindEnv(names...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", ".")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.dataset_path", "data/rfps.parquet")
	v.SetDefault("storage.seen_path", "state/seen_hashes.json")
	v.SetDefault("storage.report_dir", "reports")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.seen_table", "rfp_seen")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime_minutes", 30)
	v.SetDefault("orchestrator.concurrency", 4)
	v.SetDefault("orchestrator.source_timeout_seconds", 120)
	v.SetDefault("orchestrator.run_timeout_seconds", 0)
	v.SetDefault("orchestrator.retry_backoff_ms", 2000)
	v.SetDefault("orchestrator.sources", []string{})
	v.SetDefault("orchestrator.region", "")
	v.SetDefault("dedup.ttl_days", 90)
	v.SetDefault("dedup.backfill_ttl_days", 36500)
	v.SetDefault("classifier.phrases", []string{})
	v.SetDefault("classifier.exclusions", []string{})
	v.SetDefault("classifier.top_k", 5)
	v.SetDefault("analyzer.window_days", 7)
	v.SetDefault("sources.sam_gov.api_key", "")
	v.SetDefault("sources.sam_gov.lookback_days", 7)
	v.SetDefault("sources.sam_gov.historical_days", 365)
	v.SetDefault("sources.sam_gov.chunk_days", 30)
	v.SetDefault("sources.sam_gov.page_size", 1000)
	v.SetDefault("sources.grants_gov.queries", []string{})
	v.SetDefault("sources.grants_gov.rows", 100)
	v.SetDefault("sources.grants_gov.max_pages", 0)
	v.SetDefault("sources.federal_register.terms", []string{})
	v.SetDefault("sources.federal_register.lookback_days", 30)
	v.SetDefault("sources.federal_register.historical_days", 365)
	v.SetDefault("sources.socrata.lookback_days", 30)
	v.SetDefault("sources.socrata.page_size", 1000)
	v.SetDefault("http.user_agent", "research-scraper/1.0")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_body_bytes", 32<<20)
	v.SetDefault("http.respect_robots", true)
	v.SetDefault("rate_limit.default_rps", 2.0)
	v.SetDefault("rate_limit.default_burst", 2)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.settle_ms", 1500)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.run_topic", "rfp-runs")
	v.SetDefault("kafka.record_topic", "rfp-records")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("elasticsearch.addresses", []string{})
	v.SetDefault("elasticsearch.index", "rfps")
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.smtp_user", "")
	v.SetDefault("email.smtp_password", "")
	v.SetDefault("email.from", "")
	v.SetDefault("email.to", "")
	v.SetDefault("email.window_days", 7)
	v.SetDefault("email.team_file", "team.toml")
	v.SetDefault("email.form_csv_url", "")
	v.SetDefault("email.overrides_path", "state/keyword_overrides.json")
	v.SetDefault("email.feedback_url", "")
	v.SetDefault("email.dashboard_url", "")
	v.SetDefault("email.repository_url", "")
	v.SetDefault("email.unsubscribe", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_enabled", true)
	v.SetDefault("progress.prometheus_enabled", true)
	v.SetDefault("progress.buffer_size", 256)
	v.SetDefault("progress.batch.max_events", 32)
	v.SetDefault("progress.batch.max_wait_ms", 500)
	v.SetDefault("progress.sink_timeout_ms", 2000)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "research-scraper")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Storage.Backend {
	case "memory", "local":
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs")
	}
	if c.Storage.DatasetPath == "" || c.Storage.SeenPath == "" {
		return fmt.Errorf("storage.dataset_path and storage.seen_path must be set")
	}
	if c.Orchestrator.Concurrency <= 0 {
		return fmt.Errorf("orchestrator.concurrency must be > 0")
	}
	if c.Orchestrator.SourceTimeoutSeconds <= 0 {
		return fmt.Errorf("orchestrator.source_timeout_seconds must be > 0")
	}
	if _, err := c.SourceList(); err != nil {
		return fmt.Errorf("orchestrator.sources must name known sources: %w", err)
	}
	if c.Orchestrator.Region != "" {
		if _, err := rfp.ParseRegion(c.Orchestrator.Region); err != nil {
			return fmt.Errorf("orchestrator.region must be a state or federal: %w", err)
		}
	}
	if c.Dedup.TTLDays <= 0 || c.Dedup.BackfillTTLDays <= 0 {
		return fmt.Errorf("dedup.ttl_days and dedup.backfill_ttl_days must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.RateLimit.DefaultRPS < 0 {
		return fmt.Errorf("rate_limit.default_rps must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.Email.Enabled {
		if c.Email.SMTPHost == "" || c.Email.From == "" {
			return fmt.Errorf("email.smtp_host and email.from must be set when email is enabled")
		}
		if c.Email.WindowDays <= 0 {
			return fmt.Errorf("email.window_days must be > 0")
		}
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
	}
	return nil
}

// SourceList parses orchestrator.sources. Empty means every source.
func (c Config) SourceList() ([]rfp.Source, error) {
	out := make([]rfp.Source, 0, len(c.Orchestrator.Sources))
	for _, name := range c.Orchestrator.Sources {
		src, err := rfp.ParseSource(name)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

// RegionFilter returns the canonical region restriction, or "".
func (c Config) RegionFilter() rfp.Region {
	if c.Orchestrator.Region == "" {
		return ""
	}
	r, _ := rfp.ParseRegion(c.Orchestrator.Region)
	return r
}

// SourceTimeout is the per-adapter budget.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Orchestrator.SourceTimeoutSeconds) * time.Second
}

// DedupTTL is the retention for the given mode.
func (c Config) DedupTTL(backfill bool) time.Duration {
	days := c.Dedup.TTLDays
	if backfill {
		days = c.Dedup.BackfillTTLDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// HTTPTimeout is the per-request budget of the shared fetcher.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
