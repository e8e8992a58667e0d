// Package config handles configuration loading and management for marktools.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for marktools.
type Config struct {
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Index      IndexConfig      `mapstructure:"index"`
	Search     SearchConfig     `mapstructure:"search"`
	Scorer     ProviderConfig   `mapstructure:"scorer"`
	Decomposer ProviderConfig   `mapstructure:"decomposer"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Session    SessionConfig    `mapstructure:"session"`
	Pricing    PricingConfig    `mapstructure:"pricing"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// AnthropicConfig holds Anthropic API settings used by the relevance
// scorer and the query decomposer.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxTokens  int    `mapstructure:"max_tokens"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "hash" (offline, deterministic) or "http".
	Provider   string        `mapstructure:"provider"`
	Endpoint   string        `mapstructure:"endpoint"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// IndexConfig selects the hybrid search backend.
type IndexConfig struct {
	// Backend is "memory", "sqlite" or "postgres".
	Backend     string `mapstructure:"backend"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	// VectorWeight is the share of the semantic score in the hybrid score.
	VectorWeight float64 `mapstructure:"vector_weight"`
	TopK         int     `mapstructure:"top_k"`
}

// SearchConfig holds the orchestrator thresholds.
type SearchConfig struct {
	ScoreThresholdGood      float64       `mapstructure:"score_threshold_good"`
	ScoreImprovementEpsilon float64       `mapstructure:"score_improvement_epsilon"`
	MinAcceptableScore      float64       `mapstructure:"min_acceptable_score"`
	MaxDepth                int           `mapstructure:"max_depth"`
	MaxDepthLimit           int           `mapstructure:"max_depth_limit"`
	SubtasksMin             int           `mapstructure:"subtasks_min"`
	SubtasksMax             int           `mapstructure:"subtasks_max"`
	SubtaskTopK             int           `mapstructure:"subtask_top_k"`
	Parallel                bool          `mapstructure:"parallel"`
	Timeout                 time.Duration `mapstructure:"timeout"`
}

// ProviderConfig selects between the LLM-backed and offline implementation
// of a component.
type ProviderConfig struct {
	// Provider is "llm" or an offline alternative ("lexical", "heuristic").
	Provider string `mapstructure:"provider"`
}

// CatalogConfig locates the workflow catalog.
type CatalogConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

// SessionConfig configures the estimate to buy session cache.
type SessionConfig struct {
	// Backend is "memory" or "sqlite".
	Backend    string        `mapstructure:"backend"`
	SQLitePath string        `mapstructure:"sqlite_path"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// PricingConfig holds the pricing engine parameters.
type PricingConfig struct {
	MinPrice       int     `mapstructure:"min_price"`
	MaxPrice       int     `mapstructure:"max_price"`
	BasePercentage float64 `mapstructure:"base_percentage"`
	MarketVariance float64 `mapstructure:"market_variance"`
}

// LoggingConfig holds debug logging settings.
type LoggingConfig struct {
	DebugFile string `mapstructure:"debug_file"`
	Verbose   bool   `mapstructure:"verbose"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, JINA_API_KEY, MARKTOOLS_POSTGRES_DSN)
// 2. Project config (.marktools.yaml in current directory or parent)
// 3. User config (~/.config/marktools/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()
	v.SetEnvPrefix("")

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("embedding.api_key", "JINA_API_KEY")
	v.BindEnv("index.postgres_dsn", "MARKTOOLS_POSTGRES_DSN")
	v.BindEnv("catalog.path", "MARKTOOLS_CATALOG")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references in secrets and paths.
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Embedding.APIKey = expandEnv(cfg.Embedding.APIKey)
	cfg.Index.PostgresDSN = expandEnv(cfg.Index.PostgresDSN)
	cfg.Catalog.Path = expandEnv(cfg.Catalog.Path)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("embedding.provider", cfg.Embedding.Provider)
	v.Set("embedding.endpoint", cfg.Embedding.Endpoint)
	v.Set("embedding.api_key", cfg.Embedding.APIKey)
	v.Set("embedding.model", cfg.Embedding.Model)
	v.Set("embedding.dimensions", cfg.Embedding.Dimensions)
	v.Set("embedding.timeout", cfg.Embedding.Timeout.String())
	v.Set("index.backend", cfg.Index.Backend)
	v.Set("index.sqlite_path", cfg.Index.SQLitePath)
	v.Set("index.postgres_dsn", cfg.Index.PostgresDSN)
	v.Set("index.vector_weight", cfg.Index.VectorWeight)
	v.Set("index.top_k", cfg.Index.TopK)
	v.Set("search.score_threshold_good", cfg.Search.ScoreThresholdGood)
	v.Set("search.score_improvement_epsilon", cfg.Search.ScoreImprovementEpsilon)
	v.Set("search.min_acceptable_score", cfg.Search.MinAcceptableScore)
	v.Set("search.max_depth", cfg.Search.MaxDepth)
	v.Set("search.max_depth_limit", cfg.Search.MaxDepthLimit)
	v.Set("search.subtasks_min", cfg.Search.SubtasksMin)
	v.Set("search.subtasks_max", cfg.Search.SubtasksMax)
	v.Set("search.subtask_top_k", cfg.Search.SubtaskTopK)
	v.Set("search.parallel", cfg.Search.Parallel)
	v.Set("search.timeout", cfg.Search.Timeout.String())
	v.Set("scorer.provider", cfg.Scorer.Provider)
	v.Set("decomposer.provider", cfg.Decomposer.Provider)
	v.Set("catalog.path", cfg.Catalog.Path)
	v.Set("catalog.watch", cfg.Catalog.Watch)
	v.Set("session.backend", cfg.Session.Backend)
	v.Set("session.sqlite_path", cfg.Session.SQLitePath)
	v.Set("session.ttl", cfg.Session.TTL.String())
	v.Set("pricing.min_price", cfg.Pricing.MinPrice)
	v.Set("pricing.max_price", cfg.Pricing.MaxPrice)
	v.Set("pricing.base_percentage", cfg.Pricing.BasePercentage)
	v.Set("pricing.market_variance", cfg.Pricing.MarketVariance)
	v.Set("logging.debug_file", cfg.Logging.DebugFile)
	v.Set("logging.verbose", cfg.Logging.Verbose)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", d.Anthropic.Model)
	v.SetDefault("anthropic.max_tokens", d.Anthropic.MaxTokens)
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", d.Anthropic.AWSRegion)
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.endpoint", d.Embedding.Endpoint)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.timeout", "30s")

	v.SetDefault("index.backend", d.Index.Backend)
	v.SetDefault("index.sqlite_path", d.Index.SQLitePath)
	v.SetDefault("index.postgres_dsn", "")
	v.SetDefault("index.vector_weight", d.Index.VectorWeight)
	v.SetDefault("index.top_k", d.Index.TopK)

	v.SetDefault("search.score_threshold_good", d.Search.ScoreThresholdGood)
	v.SetDefault("search.score_improvement_epsilon", d.Search.ScoreImprovementEpsilon)
	v.SetDefault("search.min_acceptable_score", d.Search.MinAcceptableScore)
	v.SetDefault("search.max_depth", d.Search.MaxDepth)
	v.SetDefault("search.max_depth_limit", d.Search.MaxDepthLimit)
	v.SetDefault("search.subtasks_min", d.Search.SubtasksMin)
	v.SetDefault("search.subtasks_max", d.Search.SubtasksMax)
	v.SetDefault("search.subtask_top_k", d.Search.SubtaskTopK)
	v.SetDefault("search.parallel", d.Search.Parallel)
	v.SetDefault("search.timeout", "2m")

	v.SetDefault("scorer.provider", d.Scorer.Provider)
	v.SetDefault("decomposer.provider", d.Decomposer.Provider)

	v.SetDefault("catalog.path", d.Catalog.Path)
	v.SetDefault("catalog.watch", false)

	v.SetDefault("session.backend", d.Session.Backend)
	v.SetDefault("session.sqlite_path", d.Session.SQLitePath)
	v.SetDefault("session.ttl", "1h")

	v.SetDefault("pricing.min_price", d.Pricing.MinPrice)
	v.SetDefault("pricing.max_price", d.Pricing.MaxPrice)
	v.SetDefault("pricing.base_percentage", d.Pricing.BasePercentage)
	v.SetDefault("pricing.market_variance", d.Pricing.MarketVariance)

	v.SetDefault("logging.debug_file", "")
	v.SetDefault("logging.verbose", false)
}

// getUserConfigDir returns the XDG config directory for marktools.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "marktools")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "marktools")
	}
	return filepath.Join(home, ".config", "marktools")
}

// getUserDataDir returns the directory holding local databases.
func getUserDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "marktools")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".marktools")
	}
	return filepath.Join(home, ".local", "share", "marktools")
}

// findProjectConfig searches for .marktools.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".marktools.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	dataDir := getUserDataDir()
	return &Config{
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 2048,
			AWSRegion: "us-west-2",
		},
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			Endpoint:   "https://api.jina.ai/v1/embeddings",
			Model:      "jina-embeddings-v3",
			Dimensions: 256,
			Timeout:    30 * time.Second,
		},
		Index: IndexConfig{
			Backend:      "memory",
			SQLitePath:   filepath.Join(dataDir, "index.db"),
			VectorWeight: 0.7,
			TopK:         5,
		},
		Search: SearchConfig{
			ScoreThresholdGood:      0.85,
			ScoreImprovementEpsilon: 0.1,
			MinAcceptableScore:      0.6,
			MaxDepth:                2,
			MaxDepthLimit:           5,
			SubtasksMin:             2,
			SubtasksMax:             8,
			SubtaskTopK:             3,
			Parallel:                true,
			Timeout:                 2 * time.Minute,
		},
		Scorer:     ProviderConfig{Provider: "llm"},
		Decomposer: ProviderConfig{Provider: "llm"},
		Catalog: CatalogConfig{
			Path: "workflows.json",
		},
		Session: SessionConfig{
			Backend:    "sqlite",
			SQLitePath: filepath.Join(dataDir, "sessions.db"),
			TTL:        time.Hour,
		},
		Pricing: PricingConfig{
			MinPrice:       50,
			MaxPrice:       2000,
			BasePercentage: 0.15,
			MarketVariance: 0.30,
		},
	}
}
