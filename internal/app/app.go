// Package app builds the long-lived services from configuration and runs
// the pipeline modes and the HTTP API on top of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/adapters"
	"github.com/scottlangford2/research-scraper/internal/adapters/federalregister"
	"github.com/scottlangford2/research-scraper/internal/adapters/grantsgov"
	"github.com/scottlangford2/research-scraper/internal/adapters/portal"
	"github.com/scottlangford2/research-scraper/internal/adapters/samgov"
	"github.com/scottlangford2/research-scraper/internal/adapters/socrata"
	"github.com/scottlangford2/research-scraper/internal/analyze"
	"github.com/scottlangford2/research-scraper/internal/api"
	"github.com/scottlangford2/research-scraper/internal/classify"
	"github.com/scottlangford2/research-scraper/internal/clock/system"
	"github.com/scottlangford2/research-scraper/internal/config"
	"github.com/scottlangford2/research-scraper/internal/dataset"
	"github.com/scottlangford2/research-scraper/internal/dedup"
	"github.com/scottlangford2/research-scraper/internal/digest"
	collyfetcher "github.com/scottlangford2/research-scraper/internal/fetcher/colly"
	headlessfetcher "github.com/scottlangford2/research-scraper/internal/fetcher/headless"
	"github.com/scottlangford2/research-scraper/internal/hash/sha256"
	"github.com/scottlangford2/research-scraper/internal/id/uuid"
	"github.com/scottlangford2/research-scraper/internal/metrics"
	"github.com/scottlangford2/research-scraper/internal/orchestrator"
	"github.com/scottlangford2/research-scraper/internal/pipeline"
	"github.com/scottlangford2/research-scraper/internal/policy/ratelimit"
	"github.com/scottlangford2/research-scraper/internal/policy/robots"
	"github.com/scottlangford2/research-scraper/internal/progress"
	progresssinks "github.com/scottlangford2/research-scraper/internal/progress/sinks"
	"github.com/scottlangford2/research-scraper/internal/publisher"
	kafkapublisher "github.com/scottlangford2/research-scraper/internal/publisher/kafka"
	memorypublisher "github.com/scottlangford2/research-scraper/internal/publisher/memory"
	gcppublisher "github.com/scottlangford2/research-scraper/internal/publisher/pubsub"
	"github.com/scottlangford2/research-scraper/internal/rfp"
	"github.com/scottlangford2/research-scraper/internal/search/elasticsearch"
	gcsstorage "github.com/scottlangford2/research-scraper/internal/storage/gcs"
	localstorage "github.com/scottlangford2/research-scraper/internal/storage/local"
	memorystorage "github.com/scottlangford2/research-scraper/internal/storage/memory"
	pgstore "github.com/scottlangford2/research-scraper/internal/storage/postgres"
	"github.com/scottlangford2/research-scraper/internal/store"
	"github.com/scottlangford2/research-scraper/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// App holds the services shared by every run mode.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  rfp.Clock

	blobs     rfp.BlobStore
	gcsClient *storage.Client
	pool      *pgxpool.Pool
	runs      store.RunRepository
	seen      dedup.SeenStore

	http     *collyfetcher.Fetcher
	browser  *headlessfetcher.Fetcher
	renderer headlessfetcher.Renderer

	pubsubClient *pubsub.Client
	pubsub       *gcppublisher.Publisher
	kafka        *kafkapublisher.Publisher
	notifier     *publisher.Fanout
	search       *elasticsearch.Client

	hub     *progress.Hub
	emitter progress.Emitter

	data       *dataset.Store
	classifier *classify.Classifier
	analyzer   *analyze.Analyzer
	digest     *digest.Digest

	tracer *sdktrace.TracerProvider
}

// Build creates every dependency named by cfg. Optional integrations
// (Postgres, Pub/Sub, Kafka, Elasticsearch, SMTP, Chrome) are skipped when
// their settings are empty or disabled.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger, clock: system.New()}
	logger.Info("building application dependencies",
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("postgres", cfg.Database.DSN != ""),
		zap.Bool("email", cfg.Email.Enabled),
		zap.Bool("headless", cfg.Headless.Enabled),
	)

	steps := []func(context.Context) error{
		a.setupTelemetry,
		a.setupStorage,
		a.setupDatabase,
		a.setupFetchers,
		a.setupPublishers,
		a.setupSearch,
		a.setupProgress,
		a.setupCorpus,
		a.setupDigest,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			a.closeInfrastructure(context.WithoutCancel(ctx))
			return nil, err
		}
	}
	return a, nil
}

// Run executes one pipeline mode. Report mode skips fetching.
func (a *App) Run(ctx context.Context, mode pipeline.Mode, sendDigest bool) (pipeline.Summary, error) {
	p, err := a.Pipeline(mode, sendDigest)
	if err != nil {
		return pipeline.Summary{}, err
	}
	if mode == pipeline.ModeReport {
		return p.Report(ctx)
	}
	return p.Run(ctx)
}

// Pipeline assembles a pipeline for mode. The dedup store and orchestrator
// are per-invocation because backfill widens both.
func (a *App) Pipeline(mode pipeline.Mode, sendDigest bool) (*pipeline.Pipeline, error) {
	backfill := mode == pipeline.ModeBackfill
	hasher := sha256.New()
	sources, err := a.cfg.SourceList()
	if err != nil {
		return nil, fmt.Errorf("source list: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Mode:          string(mode),
		Concurrency:   a.cfg.Orchestrator.Concurrency,
		SourceTimeout: a.cfg.SourceTimeout(),
		RunTimeout:    time.Duration(a.cfg.Orchestrator.RunTimeoutSeconds) * time.Second,
		Sources:       sources,
		Credentials:   map[rfp.Source]string{rfp.SourceSAMGov: a.cfg.Sources.SAMGov.APIKey},
		Region:        a.cfg.RegionFilter(),
		Historical:    backfill,
	}, orchestrator.Deps{
		Hasher:   hasher,
		Clock:    a.clock,
		Retry:    rfp.NewRetryOncePolicy(time.Duration(a.cfg.Orchestrator.RetryBackoffMs) * time.Millisecond),
		Progress: a.emitter,
		Logger:   a.logger.Named("orchestrator"),
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}

	resolver, err := dedup.New(dedup.Config{
		Backend: a.seen,
		Hasher:  hasher,
		Clock:   a.clock,
		TTL:     a.cfg.DedupTTL(backfill),
		Logger:  a.logger.Named("dedup"),
	})
	if err != nil {
		return nil, fmt.Errorf("dedup init failed: %w", err)
	}

	built := a.adapters()
	if missing := adapters.Missing(sources, built); len(missing) > 0 {
		a.logger.Warn("requested sources have no adapter", zap.Any("sources", missing))
	}

	deps := pipeline.Deps{
		Fetcher:    orch,
		Adapters:   built,
		Resolver:   resolver,
		Classifier: a.classifier,
		Dataset:    a.data,
		Analyzer:   a.analyzer,
		Runs:       a.runs,
		Notifier:   a.notifier,
		IDs:        uuid.New(),
		Clock:      a.clock,
		Logger:     a.logger.Named("pipeline"),
	}
	if a.kafka != nil {
		deps.Events = a.kafka
	}
	if a.search != nil {
		deps.Index = a.search
	}
	if a.digest != nil {
		deps.Digest = a.digest
	}
	return pipeline.New(pipeline.Config{
		Mode:        mode,
		RunTopic:    a.runTopic(),
		RecordTopic: a.cfg.Kafka.RecordTopic,
		Digest:      sendDigest && a.digest != nil,
	}, deps)
}

// APIServer builds the HTTP API over the dataset and latest analysis.
func (a *App) APIServer() *api.Server {
	deps := api.Deps{
		Records: a.data,
		Trends:  a.analyzer,
		Runs:    a.runs,
		Logger:  a.logger.Named("api"),
	}
	if a.search != nil {
		deps.Search = a.search
	}
	return api.NewServer(api.Config{
		APIKey:         a.cfg.Server.APIKey,
		RequestTimeout: time.Duration(a.cfg.Server.RequestTimeoutSeconds) * time.Second,
	}, deps)
}

// Serve runs the HTTP API until ctx is canceled or a signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.APIServer().Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases every client and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		stats := a.hub.Stats()
		a.logger.Info("progress hub closed",
			zap.Int64("accepted", stats.Accepted),
			zap.Int64("dropped", stats.Dropped),
			zap.Int64("flushes", stats.Flushes),
		)
	}
	if a.pubsub != nil {
		a.pubsub.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.logger.Warn("kafka writer close failed", zap.Error(err))
		}
	}
	if a.browser != nil {
		a.browser.Close()
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
}

func (a *App) setupTelemetry(ctx context.Context) error {
	if !a.cfg.Telemetry.Enabled {
		return nil
	}
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: a.cfg.Telemetry.ServiceName,
		SampleRatio: a.cfg.Telemetry.SampleRatio,
		Logger:      a.logger.Named("trace"),
	})
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracer = tp
	return nil
}

func (a *App) setupStorage(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Backend {
	case "gcs":
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.Bucket))
		a.gcsClient, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.blobs, err = gcsstorage.New(a.gcsClient, gcsstorage.Config{
			Bucket: a.cfg.Storage.Bucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
	case "local":
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.BaseDir))
		a.blobs, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
	default:
		a.logger.Info("using in-memory storage backend")
		a.blobs = memorystorage.NewBlobStore()
	}
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.Database.DSN == "" {
		a.logger.Info("no database DSN, keeping seen set in blob storage and run history in memory",
			zap.String("seen_path", a.cfg.Storage.SeenPath))
		a.runs = memorystorage.NewRunStore()
		a.seen = dedup.NewBlobSeenStore(a.blobs, a.cfg.Storage.SeenPath)
		return nil
	}
	var err error
	a.pool, err = pgstore.Connect(ctx, pgstore.Config{
		DSN:             a.cfg.Database.DSN,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: time.Duration(a.cfg.Database.MaxConnLifetimeMinutes) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("postgres init failed: %w", err)
	}
	runs, err := pgstore.NewRunStore(a.pool)
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	seen, err := pgstore.NewSeenStore(a.pool, a.cfg.Database.SeenTable)
	if err != nil {
		return fmt.Errorf("seen store init failed: %w", err)
	}
	a.runs, a.seen = runs, seen
	a.logger.Info("postgres stores initialized", zap.String("seen_table", a.cfg.Database.SeenTable))
	return nil
}

func (a *App) setupFetchers(context.Context) error {
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.RateLimit.DefaultRPS,
		DefaultBurst: a.cfg.RateLimit.DefaultBurst,
		Hosts:        a.cfg.RateLimit.Hosts,
	})
	a.http = collyfetcher.New(collyfetcher.Config{
		UserAgent:   a.cfg.HTTP.UserAgent,
		Timeout:     a.cfg.HTTPTimeout(),
		MaxBodySize: a.cfg.HTTP.MaxBodyBytes,
	}, limiter)
	a.logger.Info("http fetcher ready",
		zap.String("user_agent", a.cfg.HTTP.UserAgent),
		zap.Float64("default_rps", a.cfg.RateLimit.DefaultRPS),
	)

	if !a.cfg.Headless.Enabled {
		a.logger.Info("headless renderer disabled, browser sources will report errors")
		a.renderer = headlessfetcher.NewNoop()
		return nil
	}
	browser, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       a.cfg.Headless.MaxParallel,
		UserAgent:         a.cfg.HTTP.UserAgent,
		NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
		Settle:            time.Duration(a.cfg.Headless.SettleMs) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("headless renderer init failed: %w", err)
	}
	a.browser, a.renderer = browser, browser
	a.logger.Info("using headless renderer", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
	return nil
}

func (a *App) setupPublishers(ctx context.Context) error {
	var backends []publisher.Backend
	if a.cfg.PubSub.ProjectID != "" {
		var err error
		a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsub = gcppublisher.New(a.pubsubClient, a.cfg.PubSub.TopicName)
		backends = append(backends, publisher.Backend{Name: "pubsub", Publisher: a.pubsub})
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.TopicName),
		)
	}
	if len(a.cfg.Kafka.Brokers) > 0 {
		var err error
		a.kafka, err = kafkapublisher.New(kafkapublisher.Config{
			Brokers:     a.cfg.Kafka.Brokers,
			MaxAttempts: a.cfg.Kafka.MaxAttempts,
		})
		if err != nil {
			return fmt.Errorf("kafka publisher init failed: %w", err)
		}
		backends = append(backends, publisher.Backend{Name: "kafka", Publisher: a.kafka})
		a.logger.Info("kafka publisher initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	}
	if len(backends) == 0 {
		a.logger.Warn("no messaging backend configured, using in-memory publisher")
		backends = append(backends, publisher.Backend{Name: "memory", Publisher: memorypublisher.New()})
	}
	a.notifier = publisher.NewFanout(a.logger.Named("publisher"), backends...)
	return nil
}

func (a *App) setupSearch(ctx context.Context) error {
	if len(a.cfg.Elasticsearch.Addresses) == 0 {
		return nil
	}
	client, err := elasticsearch.New(a.cfg.Elasticsearch.Addresses, a.cfg.Elasticsearch.Index, a.logger.Named("search"))
	if err != nil {
		return fmt.Errorf("elasticsearch init failed: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		a.logger.Warn("elasticsearch unreachable, indexing will be retried each run", zap.Error(err))
	}
	a.search = client
	return nil
}

func (a *App) setupProgress(ctx context.Context) error {
	a.emitter = progress.Nop{}
	if !a.cfg.Progress.Enabled {
		a.logger.Info("progress tracking disabled")
		return nil
	}
	sinkList := []progress.Sink{progresssinks.NewStoreSink(a.runs)}
	if a.cfg.Progress.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	if a.cfg.Progress.PrometheusEnabled {
		promSink, err := progresssinks.NewPrometheusSink(nil)
		if err != nil {
			return fmt.Errorf("progress prometheus sink: %w", err)
		}
		sinkList = append(sinkList, promSink)
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(a.cfg.Progress.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(a.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.emitter = a.hub
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

func (a *App) setupCorpus(context.Context) error {
	a.data = dataset.New(a.blobs, a.cfg.Storage.DatasetPath, a.logger.Named("dataset"))
	a.classifier = classify.New(classify.Config{
		Phrases:    nonEmpty(a.cfg.Classifier.Phrases),
		Exclusions: nonEmpty(a.cfg.Classifier.Exclusions),
		TopK:       a.cfg.Classifier.TopK,
	})
	var err error
	a.analyzer, err = analyze.New(analyze.Config{
		Blobs:   a.blobs,
		Matcher: a.classifier.Matcher(),
		Clock:   a.clock,
		Window:  time.Duration(a.cfg.Analyzer.WindowDays) * 24 * time.Hour,
		Prefix:  a.cfg.Storage.ReportDir,
		Logger:  a.logger.Named("analyzer"),
	})
	if err != nil {
		return fmt.Errorf("analyzer init failed: %w", err)
	}
	return nil
}

func (a *App) setupDigest(context.Context) error {
	if !a.cfg.Email.Enabled {
		return nil
	}
	team, err := digest.LoadTeam(a.cfg.Email.TeamFile)
	if err != nil {
		return fmt.Errorf("team file: %w", err)
	}
	email := a.cfg.Email
	a.digest, err = digest.New(digest.Config{
		From:       email.From,
		DailyTo:    email.To,
		WindowDays: email.WindowDays,
		FormCSVURL: email.FormCSVURL,
		Aliases:    email.Aliases,
		Links: digest.Links{
			Feedback:    email.FeedbackURL,
			Dashboard:   email.DashboardURL,
			Repository:  email.RepositoryURL,
			Unsubscribe: email.Unsubscribe,
		},
	}, digest.Deps{
		Sender: digest.NewDialer(digest.SMTPConfig{
			Host:     email.SMTPHost,
			Port:     email.SMTPPort,
			Username: email.SMTPUser,
			Password: email.SMTPPassword,
		}),
		Records:   a.data,
		Team:      team,
		Overrides: digest.NewOverrideStore(a.blobs, email.OverridesPath, a.logger.Named("overrides")),
		Form:      a.http,
		Clock:     a.clock,
		Logger:    a.logger.Named("digest"),
	})
	if err != nil {
		return fmt.Errorf("digest init failed: %w", err)
	}
	a.logger.Info("email digest enabled", zap.Int("team_members", len(team)))
	return nil
}

func (a *App) adapters() []rfp.Adapter {
	src := a.cfg.Sources
	return adapters.Build(adapters.Settings{
		SAMGov: samgov.Config{
			LookbackDays:   src.SAMGov.LookbackDays,
			HistoricalDays: src.SAMGov.HistoricalDays,
			ChunkDays:      src.SAMGov.ChunkDays,
			PageSize:       src.SAMGov.PageSize,
		},
		GrantsGov: grantsgov.Config{
			Queries:  src.GrantsGov.Queries,
			Rows:     src.GrantsGov.Rows,
			MaxPages: src.GrantsGov.MaxPages,
		},
		FederalRegister: federalregister.Config{
			Terms:          src.FederalRegister.Terms,
			LookbackDays:   src.FederalRegister.LookbackDays,
			HistoricalDays: src.FederalRegister.HistoricalDays,
		},
		Socrata: socrata.Config{
			Datasets:     src.Socrata.Datasets,
			LookbackDays: src.Socrata.LookbackDays,
			PageSize:     src.Socrata.PageSize,
		},
		Portal: portal.Config{Portals: src.Portals},
	}, adapters.Deps{
		HTTP:    a.http,
		Browser: a.renderer,
		Robots:  robots.New(a.http, a.cfg.HTTP.RespectRobots, a.cfg.HTTP.UserAgent, a.logger.Named("robots")),
		Clock:   a.clock,
		Logger:  a.logger.Named("adapters"),
	})
}

func (a *App) runTopic() string {
	if a.cfg.PubSub.TopicName != "" {
		return a.cfg.PubSub.TopicName
	}
	return a.cfg.Kafka.RunTopic
}

func nonEmpty(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	return list
}
