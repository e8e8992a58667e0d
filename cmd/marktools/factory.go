package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/akhaire21/marktools/internal/catalog"
	"github.com/akhaire21/marktools/internal/config"
	"github.com/akhaire21/marktools/internal/decompose"
	"github.com/akhaire21/marktools/internal/embed"
	"github.com/akhaire21/marktools/internal/index"
	"github.com/akhaire21/marktools/internal/llm"
	"github.com/akhaire21/marktools/internal/logging"
	"github.com/akhaire21/marktools/internal/marketplace"
	"github.com/akhaire21/marktools/internal/pricing"
	"github.com/akhaire21/marktools/internal/scorer"
	"github.com/akhaire21/marktools/internal/search"
	"github.com/akhaire21/marktools/internal/session"
)

// app holds the components built from configuration for one command.
type app struct {
	cfg      *config.Config
	log      *logging.DebugLogger
	catalog  *catalog.Catalog
	embedder embed.Embedder
	index    index.Index
	search   *search.Orchestrator
	market   *marketplace.Marketplace
	sessions session.Store

	closers []func() error
}

// loadConfig loads configuration and applies global flag overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if catalogPath != "" {
		cfg.Catalog.Path = catalogPath
	}
	if verbose {
		cfg.Logging.Verbose = true
	}
	if offline {
		cfg.Scorer.Provider = "lexical"
		cfg.Decomposer.Provider = "heuristic"
		cfg.Embedding.Provider = "hash"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.DebugLogger, error) {
	if cfg.Logging.Verbose {
		return logging.NewWriterLogger(os.Stderr), nil
	}
	return logging.NewDebugLogger(cfg.Logging.DebugFile)
}

// newApp builds every component needed to search and sell workflows.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, closers: []func() error{log.Close}}

	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// newPurchaseApp builds an app for commands that only read sessions. Its
// searcher runs offline over an empty index, so no API key, network access
// or index rebuild is needed.
func newPurchaseApp(cfg *config.Config) (*app, error) {
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, closers: []func() error{log.Close}}

	if err := a.initPurchase(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) initPurchase() error {
	cat, err := catalog.New(nil)
	if err != nil {
		return err
	}
	a.catalog = cat
	a.index = index.NewMemoryIndex(a.cfg.Index.VectorWeight)
	a.search, err = search.New(search.RequiredConfig{
		Catalog:    cat,
		Index:      a.index,
		Scorer:     scorer.NewLexicalScorer(),
		Decomposer: decompose.NewHeuristicDecomposer(a.cfg.Search.SubtasksMax),
	}, search.WithLogger(a.log))
	if err != nil {
		return fmt.Errorf("create search orchestrator: %w", err)
	}
	return a.initMarket()
}

func (a *app) init(ctx context.Context) error {
	cat, err := catalog.Load(a.cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	a.catalog = cat
	a.log.Log("[factory] loaded %d workflows from %s", cat.Len(), a.cfg.Catalog.Path)

	if a.embedder, err = newEmbedder(a.cfg); err != nil {
		return err
	}
	if a.index, err = a.buildIndex(ctx, cat); err != nil {
		return err
	}

	sc, dc, err := a.newJudges()
	if err != nil {
		return err
	}

	s := a.cfg.Search
	a.search, err = search.New(search.RequiredConfig{
		Catalog:    cat,
		Index:      a.index,
		Scorer:     sc,
		Decomposer: dc,
	},
		search.WithEmbedder(a.embedder),
		search.WithLogger(a.log),
		search.WithScoreThresholdGood(s.ScoreThresholdGood),
		search.WithImprovementEpsilon(s.ScoreImprovementEpsilon),
		search.WithMinAcceptableScore(s.MinAcceptableScore),
		search.WithMaxDepth(s.MaxDepth),
		search.WithMaxDepthLimit(s.MaxDepthLimit),
		search.WithTopK(a.cfg.Index.TopK),
		search.WithSubtaskTopK(s.SubtaskTopK),
		search.WithSubtaskBounds(s.SubtasksMin, s.SubtasksMax),
		search.WithParallel(s.Parallel),
		search.WithTimeout(s.Timeout),
	)
	if err != nil {
		return fmt.Errorf("create search orchestrator: %w", err)
	}
	return a.initMarket()
}

// initMarket opens the session store and builds the marketplace over a.search.
func (a *app) initMarket() error {
	var err error
	if a.sessions, err = newSessionStore(a.cfg.Session); err != nil {
		return err
	}
	a.closers = append(a.closers, a.sessions.Close)

	p := a.cfg.Pricing
	a.market, err = marketplace.New(marketplace.Config{
		Searcher: a.search,
		Sessions: a.sessions,
		Pricing: pricing.NewEngine(pricing.Config{
			MinPrice:       p.MinPrice,
			MaxPrice:       p.MaxPrice,
			BasePercentage: p.BasePercentage,
			MarketVariance: p.MarketVariance,
		}),
		Logger: a.log,
	})
	if err != nil {
		return fmt.Errorf("create marketplace: %w", err)
	}
	return nil
}

func newEmbedder(full *config.Config) (embed.Embedder, error) {
	cfg := full.Embedding
	switch cfg.Provider {
	case "", "hash":
		return embed.NewHashEmbedder(cfg.Dimensions), nil
	case "http":
		key, err := config.GetEmbeddingAPIKey(full)
		if err != nil {
			return nil, err
		}
		e, err := embed.NewHTTPEmbedder(embed.HTTPConfig{
			Endpoint:   cfg.Endpoint,
			APIKey:     key,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		return embed.NewCachedEmbedder(e), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// buildIndex opens the configured index backend and fills it from cat.
func (a *app) buildIndex(ctx context.Context, cat *catalog.Catalog) (index.Index, error) {
	idx, err := a.openIndex(ctx)
	if err != nil {
		return nil, err
	}
	if err := index.Build(ctx, idx, cat, a.embedder, a.log); err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	return idx, nil
}

// writableIndex is an index that Build can fill.
type writableIndex interface {
	index.Index
	index.Writer
}

func (a *app) openIndex(ctx context.Context) (writableIndex, error) {
	cfg := a.cfg.Index
	switch cfg.Backend {
	case "", "memory":
		return index.NewMemoryIndex(cfg.VectorWeight), nil
	case "sqlite":
		if err := ensureParentDir(cfg.SQLitePath); err != nil {
			return nil, err
		}
		idx, err := index.NewSQLiteIndex(cfg.SQLitePath, cfg.VectorWeight)
		if err != nil {
			return nil, fmt.Errorf("open sqlite index: %w", err)
		}
		a.closers = append(a.closers, idx.Close)
		return idx, nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, errors.New("index.postgres_dsn is required for the postgres backend")
		}
		idx, err := index.NewPostgresIndex(ctx, cfg.PostgresDSN, cfg.VectorWeight)
		if err != nil {
			return nil, fmt.Errorf("open postgres index: %w", err)
		}
		a.closers = append(a.closers, func() error { idx.Close(); return nil })
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}

// newJudges builds the relevance scorer and query decomposer. Both share
// one LLM client when either needs it.
func (a *app) newJudges() (scorer.Scorer, decompose.Decomposer, error) {
	var client *llm.Client
	getClient := func() (*llm.Client, error) {
		if client != nil {
			return client, nil
		}
		c, err := newLLMClient(a.cfg)
		if err != nil {
			return nil, err
		}
		client = c
		return c, nil
	}

	var sc scorer.Scorer
	switch a.cfg.Scorer.Provider {
	case "lexical":
		sc = scorer.NewLexicalScorer()
	case "", "llm":
		c, err := getClient()
		if err != nil {
			return nil, nil, err
		}
		sc = scorer.NewLLMScorer(c)
	default:
		return nil, nil, fmt.Errorf("unknown scorer provider %q", a.cfg.Scorer.Provider)
	}

	s := a.cfg.Search
	var dc decompose.Decomposer
	switch a.cfg.Decomposer.Provider {
	case "heuristic":
		dc = decompose.NewHeuristicDecomposer(s.SubtasksMax)
	case "", "llm":
		c, err := getClient()
		if err != nil {
			return nil, nil, err
		}
		dc = decompose.NewLLMDecomposer(c, s.SubtasksMin, s.SubtasksMax)
	default:
		return nil, nil, fmt.Errorf("unknown decomposer provider %q", a.cfg.Decomposer.Provider)
	}
	return sc, dc, nil
}

func newLLMClient(full *config.Config) (*llm.Client, error) {
	cfg := full.Anthropic
	cc := llm.ClientConfig{
		Model:         cfg.Model,
		MaxTokens:     int64(cfg.MaxTokens),
		UseAWSBedrock: cfg.UseBedrock,
		AWSRegion:     cfg.AWSRegion,
		AWSProfile:    cfg.AWSProfile,
	}
	if !cfg.UseBedrock {
		key, err := config.GetAPIKey(full)
		if err != nil {
			return nil, fmt.Errorf("%w (set ANTHROPIC_API_KEY or run with --offline)", err)
		}
		cc.APIKey = key
	}
	client, err := llm.NewClient(cc)
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}
	return client, nil
}

func newSessionStore(cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Backend {
	case "memory":
		return session.NewMemoryStore(cfg.TTL), nil
	case "", "sqlite":
		if err := ensureParentDir(cfg.SQLitePath); err != nil {
			return nil, err
		}
		store, err := session.NewSQLiteStore(cfg.SQLitePath, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// reload rebuilds the index for a changed catalog and swaps both into the
// orchestrator. Memory indexes are rebuilt into a fresh instance.
// Persistent backends are replaced in place in one transaction by Build.
func (a *app) reload(ctx context.Context, cat *catalog.Catalog) error {
	idx := a.index
	if _, ok := idx.(*index.MemoryIndex); ok {
		idx = index.NewMemoryIndex(a.cfg.Index.VectorWeight)
	}
	w, ok := idx.(index.Writer)
	if !ok {
		return fmt.Errorf("index backend %q cannot be rebuilt", a.cfg.Index.Backend)
	}
	if err := index.Build(ctx, w, cat, a.embedder, a.log); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	a.index = idx
	a.catalog = cat
	a.search.Reload(cat, idx)
	return nil
}

// Close releases every opened resource in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
