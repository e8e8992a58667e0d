package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/akhaire21/marktools/internal/catalog"
	"github.com/akhaire21/marktools/internal/config"
	"github.com/akhaire21/marktools/internal/marketplace"
	"github.com/akhaire21/marktools/internal/search"
	"github.com/akhaire21/marktools/internal/session"
	"github.com/akhaire21/marktools/pkg/models"
)

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Catalog.Path = filepath.Join("..", "..", "data", "workflows.json")
	cfg.Scorer.Provider = "lexical"
	cfg.Decomposer.Provider = "heuristic"
	cfg.Embedding.Provider = "hash"
	cfg.Index.Backend = "memory"
	cfg.Session.Backend = "sqlite"
	cfg.Session.SQLitePath = filepath.Join(t.TempDir(), "state", "sessions.db")
	cfg.Search.Parallel = false
	return cfg
}

func TestNewApp_Offline(t *testing.T) {
	cfg := offlineConfig(t)
	ctx := context.Background()

	a, err := newApp(ctx, cfg)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()

	if a.catalog.Len() != 6 {
		t.Errorf("expected 6 workflows, got %d", a.catalog.Len())
	}

	plan, err := a.market.Search(ctx, "Upgrade our PostgreSQL database to a new major version", search.DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if plan.Empty() {
		t.Fatal("expected at least one workflow")
	}

	resp, err := a.market.Estimate(ctx, marketplace.EstimateRequest{Query: "Upgrade our PostgreSQL database to a new major version"})
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	if resp.NumSolutions == 0 || resp.SessionID == "" {
		t.Fatalf("expected solutions and a session, got %d solutions, session %q", resp.NumSolutions, resp.SessionID)
	}

	// A separate process buys from the same session file.
	buyer, err := newPurchaseApp(cfg)
	if err != nil {
		t.Fatalf("newPurchaseApp failed: %v", err)
	}
	defer buyer.Close()

	receipt, err := buyer.market.Buy(ctx, resp.SessionID, resp.Solutions[0].SolutionID)
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if receipt.TokensCharged != resp.Solutions[0].Pricing.TotalCostTokens {
		t.Errorf("expected %d tokens charged, got %d", resp.Solutions[0].Pricing.TotalCostTokens, receipt.TokensCharged)
	}

	if _, err := buyer.market.Buy(ctx, resp.SessionID, resp.Solutions[0].SolutionID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("expected session to be consumed, got %v", err)
	}
}

func TestNewApp_ReloadKeepsSearching(t *testing.T) {
	for _, backend := range []string{"memory", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			cfg := offlineConfig(t)
			cfg.Session.Backend = "memory"
			cfg.Index.Backend = backend
			cfg.Index.SQLitePath = filepath.Join(t.TempDir(), "index", "index.db")
			ctx := context.Background()

			a, err := newApp(ctx, cfg)
			if err != nil {
				t.Fatalf("newApp failed: %v", err)
			}
			defer a.Close()

			before := a.index
			var postgres []*models.Workflow
			for _, wf := range a.catalog.All() {
				if wf.WorkflowID == "postgres_major_upgrade" {
					postgres = append(postgres, wf)
				}
			}
			cat, err := catalog.New(postgres)
			if err != nil {
				t.Fatalf("catalog.New failed: %v", err)
			}

			if err := a.reload(ctx, cat); err != nil {
				t.Fatalf("reload failed: %v", err)
			}
			if backend == "sqlite" && a.index != before {
				t.Error("sqlite index should be replaced in place")
			}
			if backend == "memory" && a.index == before {
				t.Error("memory index should be rebuilt into a fresh instance")
			}
			if got := a.search.Catalog().Len(); got != 1 {
				t.Errorf("expected 1 workflow after reload, got %d", got)
			}

			plan, err := a.market.Search(ctx, "Upgrade postgres to a new major version", search.DefaultSearchOptions())
			if err != nil {
				t.Fatalf("Search after reload failed: %v", err)
			}
			for _, wf := range plan.Workflows {
				if wf.WorkflowID != "postgres_major_upgrade" {
					t.Errorf("workflow %s survived the reload", wf.WorkflowID)
				}
			}
		})
	}
}

func TestNewApp_UnknownBackends(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{name: "index", modify: func(c *config.Config) { c.Index.Backend = "redis" }},
		{name: "session", modify: func(c *config.Config) { c.Session.Backend = "redis" }},
		{name: "scorer", modify: func(c *config.Config) { c.Scorer.Provider = "magic" }},
		{name: "embedding", modify: func(c *config.Config) { c.Embedding.Provider = "magic" }},
		{name: "postgres without dsn", modify: func(c *config.Config) { c.Index.Backend = "postgres" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := offlineConfig(t)
			tt.modify(cfg)
			if _, err := newApp(context.Background(), cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadConfig_Flags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("catalog:\n  path: from-file.json\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	configPath, catalogPath, offline = path, "", true
	defer func() { configPath, catalogPath, offline = "", "", false }()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Catalog.Path != "from-file.json" {
		t.Errorf("expected catalog path from file, got %q", cfg.Catalog.Path)
	}
	if cfg.Scorer.Provider != "lexical" || cfg.Decomposer.Provider != "heuristic" || cfg.Embedding.Provider != "hash" {
		t.Errorf("expected offline providers, got %q %q %q", cfg.Scorer.Provider, cfg.Decomposer.Provider, cfg.Embedding.Provider)
	}

	catalogPath = "override.json"
	cfg, err = loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Catalog.Path != "override.json" {
		t.Errorf("expected --catalog to win, got %q", cfg.Catalog.Path)
	}
}

func TestConfigValues(t *testing.T) {
	t.Setenv(config.EnvAnthropicKey, "")
	cfg := config.Default()

	tests := []struct {
		key   string
		value string
		want  string
	}{
		{key: "search.max_depth", value: "3", want: "3"},
		{key: "search.max_depth_limit", value: "4", want: "4"},
		{key: "index.vector_weight", value: "0.5", want: "0.5"},
		{key: "session.ttl", value: "30m", want: "30m0s"},
		{key: "catalog.watch", value: "true", want: "true"},
		{key: "anthropic.api_key", value: "sk-ant-api03-abcdefghijkl", want: "sk-ant-...ijkl (config_file)"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if err := setConfigValue(cfg, tt.key, tt.value); err != nil {
				t.Fatalf("setConfigValue failed: %v", err)
			}
			got, err := getConfigValue(cfg, tt.key)
			if err != nil {
				t.Fatalf("getConfigValue failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	if err := setConfigValue(cfg, "index.vector_weight", "2"); err == nil {
		t.Error("expected out of range vector weight to fail")
	}
	if err := setConfigValue(cfg, "search.max_depth_limit", "-1"); err == nil {
		t.Error("expected negative depth limit to fail")
	}
	if _, err := getConfigValue(cfg, "nope.key"); err == nil {
		t.Error("expected unknown key error")
	}
	for _, key := range configKeys {
		if _, err := getConfigValue(cfg, key); err != nil {
			t.Errorf("listed key %q is not readable: %v", key, err)
		}
	}
}

func TestWriteEstimate(t *testing.T) {
	resp := &marketplace.EstimateResponse{
		PlanType:     "direct",
		NumSolutions: 1,
		SessionID:    "session_0123456789abcdef",
		Solutions: []marketplace.SolutionSummary{{
			SolutionID: "sol_1",
			Strategy:   "direct",
			Pricing:    marketplace.SolutionPricing{TotalCostTokens: 1200, SavingsTokens: 7800, SavingsPercentage: 87},
			WorkflowsSummary: []marketplace.WorkflowSummary{
				{WorkflowID: "ohio_w2_itemized_2024", WorkflowTitle: "Ohio 2024", TokenCost: 1200},
			},
		}},
	}

	var buf bytes.Buffer
	writeEstimate(&buf, resp)
	out := buf.String()

	for _, want := range []string{"sol_1", "ohio_w2_itemized_2024", "saves 7800 (87%)", "marktools buy session_0123456789abcdef"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestWritePlan_ShowsPricing(t *testing.T) {
	ohio := &models.Workflow{WorkflowID: "ohio_w2_itemized_2024", Title: "Ohio 2024", DownloadCost: 200, ExecutionCost: 800}
	plan := &models.SearchPlan{
		PlanType: models.PlanTypeComposite,
		Subtasks: []models.Subtask{{Text: "wages"}, {Text: "deductions"}},
		Bindings: []models.Binding{
			{Subtask: models.Subtask{Text: "wages"}, Workflow: ohio, Score: 0.9},
			{Subtask: models.Subtask{Text: "deductions"}, Workflow: ohio, Score: 0.8},
		},
	}
	plan.Recompute()

	var buf bytes.Buffer
	writePlan(&buf, plan)

	want := "Total 1800 tokens (download 200, execution 1600)"
	if !strings.Contains(buf.String(), want) {
		t.Errorf("expected output to contain %q, got:\n%s", want, buf.String())
	}
}

func TestEnsureParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "file.db")
	if err := ensureParentDir(path); err != nil {
		t.Fatalf("ensureParentDir failed: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("expected directory to exist: %v", err)
	}
}
