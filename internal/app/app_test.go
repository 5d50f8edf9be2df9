package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/scottlangford2/research-scraper/internal/app"
	"github.com/scottlangford2/research-scraper/internal/config"
	"github.com/scottlangford2/research-scraper/internal/pipeline"
	"github.com/scottlangford2/research-scraper/internal/store"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Backend = "memory"
	cfg.Progress.PrometheusEnabled = false
	cfg.Progress.LogEnabled = false
	return cfg
}

func TestBuildReportModeRecordsRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	core, logs := observer.New(zap.InfoLevel)
	a, err := app.Build(ctx, baseConfig(t), zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })

	sum, err := a.Run(ctx, pipeline.ModeReport, true)
	require.NoError(t, err)
	require.Equal(t, pipeline.ModeReport, sum.Mode)
	require.NotEmpty(t, sum.RunID)
	require.Zero(t, sum.DatasetRows)
	require.Equal(t, 1, logs.FilterMessage("using in-memory storage backend").Len())

	rec := httptest.NewRecorder()
	a.APIServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var run store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	require.Equal(t, sum.RunID, run.ID)
	require.Equal(t, "report", run.Mode)
	require.Equal(t, store.RunSuccess, run.Status)
}

func TestBuildLocalStorageWithDigest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	teamFile := filepath.Join(dir, "team.toml")
	require.NoError(t, os.WriteFile(teamFile, []byte(`
[[member]]
name = "Dana Reyes"
email = "dana@example.com"
phrases = ["economic impact", "cost-benefit"]
`), 0o600))

	cfg := baseConfig(t)
	cfg.Storage.Backend = "local"
	cfg.Storage.BaseDir = dir
	cfg.Email.Enabled = true
	cfg.Email.SMTPHost = "smtp.example.com"
	cfg.Email.From = "rfp@example.com"
	cfg.Email.TeamFile = teamFile
	cfg.Orchestrator.Sources = []string{"sam_gov"}

	core, logs := observer.New(zap.InfoLevel)
	a, err := app.Build(context.Background(), cfg, zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })

	entries := logs.FilterMessage("email digest enabled").All()
	require.Len(t, entries, 1)
	require.EqualValues(t, 1, entries[0].ContextMap()["team_members"])

	p, err := a.Pipeline(pipeline.ModeBackfill, true)
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestBuildRejectsBadTeamFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	teamFile := filepath.Join(dir, "team.toml")
	require.NoError(t, os.WriteFile(teamFile, []byte("[[member]]\nname = \"No Email\"\n"), 0o600))

	cfg := baseConfig(t)
	cfg.Email.Enabled = true
	cfg.Email.SMTPHost = "smtp.example.com"
	cfg.Email.From = "rfp@example.com"
	cfg.Email.TeamFile = teamFile

	_, err := app.Build(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "team file")
}

func TestBuildRejectsBadDSN(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Database.DSN = "postgres://user:pass@%zz/db"

	_, err := app.Build(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "postgres init failed")
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Server.Port = 18089
	a, err := app.Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:18089/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
