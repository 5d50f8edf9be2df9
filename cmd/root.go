// Package cmd defines the research-scraper CLI: one subcommand per run mode
// plus the HTTP API server.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/app"
	"github.com/scottlangford2/research-scraper/internal/config"
	"github.com/scottlangford2/research-scraper/internal/logging"
	"github.com/scottlangford2/research-scraper/internal/pipeline"
)

const serviceName = "research-scraper"

// Runner is what the subcommands need from the application.
type Runner interface {
	Run(ctx context.Context, mode pipeline.Mode, sendDigest bool) (pipeline.Summary, error)
	Serve(ctx context.Context) error
	Close(ctx context.Context) error
}

// newApp is the application factory. Tests replace it with a fake.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	return app.Build(ctx, cfg, logger)
}

type appKeyType struct{}

type rootOptions struct {
	configFile string
	envFile    string
	sources    []string
	region     string
}

// NewRootCmd creates the root command and its subcommands.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   serviceName,
		Short: "Aggregates public research RFPs into a deduplicated, keyword-classified dataset.",
		Long: `research-scraper polls federal and state procurement sources, deduplicates
the opportunities it has already seen, flags the ones matching the curated
research keyword list, and keeps a single dataset plus a keyword analysis
report up to date. Matches are announced over Pub/Sub or Kafka and emailed
as daily and per-member team digests.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKeyType{}, runner))
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "path to a YAML config file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before configuration")
	flags.StringSliceVar(&opts.sources, "source", nil, "restrict the run to these sources (repeatable)")
	flags.StringVar(&opts.region, "region", "", "restrict region-aware sources to one state")

	cmd.AddCommand(
		newModeCmd(pipeline.ModeRun, "Fetch, deduplicate, classify, persist, analyze and notify"),
		newModeCmd(pipeline.ModeBackfill, "Run in historical mode with widened date ranges and no seen-set pruning"),
		newModeCmd(pipeline.ModeReport, "Rebuild the keyword analysis and digests from the stored dataset"),
		newServeCmd(),
	)
	return cmd
}

func (o *rootOptions) build(ctx context.Context) (Runner, error) {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if len(o.sources) > 0 {
		cfg.Orchestrator.Sources = o.sources
	}
	if o.region != "" {
		cfg.Orchestrator.Region = o.region
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	}, serviceName)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	runner, err := newApp(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	return runner, nil
}

// withApp hands the application built in PersistentPreRunE to fn and
// closes it afterwards, whether or not fn failed.
func withApp(ctx context.Context, fn func(Runner) error) (err error) {
	runner, ok := ctx.Value(appKeyType{}).(Runner)
	if !ok || runner == nil {
		return errors.New("application services not initialized")
	}
	defer func() {
		err = errors.Join(err, runner.Close(context.WithoutCancel(ctx)))
	}()
	return fn(runner)
}

func writeSummary(w io.Writer, sum pipeline.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// Execute runs the CLI and returns the command error.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
