package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/huntforge/huntforge/internal/attack"
	"github.com/huntforge/huntforge/internal/configfile"
	"github.com/huntforge/huntforge/internal/gateway/github"
	"github.com/huntforge/huntforge/internal/hunts"
	"github.com/huntforge/huntforge/internal/llm"
	"github.com/huntforge/huntforge/internal/pipeline"
)

// maxFetchBytes caps how much of a linked source the extract stage will
// pull down.
const maxFetchBytes = 1 << 20

var processCmd = &cobra.Command{
	Use:   "process <ticket>...",
	Short: "Run the pipeline on one or more submission tickets",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		orch, repo, err := buildOrchestrator(cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		for _, arg := range args {
			ticket, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("ticket must be a number, got %q", arg)
			}
			if err := orch.Process(cmd.Context(), ticket); err != nil {
				return fmt.Errorf("processing ticket %d: %w", ticket, err)
			}
		}
		return nil
	},
}

// buildOrchestrator wires the gateway, hunt repository, generator, and
// stage executors from config and environment.
func buildOrchestrator(cfg *configfile.Config) (*pipeline.Orchestrator, *hunts.FallbackRepository, error) {
	owner, name, err := cfg.SplitRepo()
	if err != nil {
		return nil, nil, err
	}
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return nil, nil, fmt.Errorf("GITHUB_TOKEN is required")
	}
	gw := github.NewClient(token, owner, name)

	repo := hunts.NewRepository(cfg.Database, cfg.HuntDirs, logger)

	gen, err := llm.NewAnthropicGenerator(os.Getenv("ANTHROPIC_API_KEY"), cfg.Model)
	if err != nil {
		return nil, nil, err
	}

	runner := &pipeline.Runner{
		Gateway:     gw,
		Logger:      logger,
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   time.Duration(cfg.BaseDelaySeconds) * time.Second,
	}
	orch := pipeline.NewOrchestrator(runner,
		&pipeline.ExtractStage{Fetcher: &httpFetcher{}},
		&pipeline.ValidateStage{Resolver: attack.NewStaticResolver()},
		&pipeline.GenerateStage{Generator: gen},
		&pipeline.ReviewStage{Repository: repo},
		&pipeline.CommitStage{
			Gateway:      gw,
			Repository:   repo,
			TriggerLabel: cfg.TriggerLabel,
			ReadyLabel:   cfg.ReadyLabel,
		},
	)
	return orch, repo, nil
}

// httpFetcher pulls linked CTI content over plain HTTP.
type httpFetcher struct {
	client *http.Client
}

func (f *httpFetcher) Fetch(ctx context.Context, url string) (string, error) {
	client := f.client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "huntforge")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetching %s: HTTP %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
