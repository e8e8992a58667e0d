package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/akhaire21/marktools/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify marktools configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/marktools/config.yaml
Project-specific overrides can be placed in .marktools.yaml`,
	Args: cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// configKeys lists the keys shown by 'marktools config', in display order.
var configKeys = []string{
	"anthropic.api_key",
	"anthropic.model",
	"anthropic.use_bedrock",
	"embedding.provider",
	"embedding.api_key",
	"embedding.model",
	"embedding.dimensions",
	"index.backend",
	"index.sqlite_path",
	"index.postgres_dsn",
	"index.vector_weight",
	"index.top_k",
	"search.score_threshold_good",
	"search.min_acceptable_score",
	"search.max_depth",
	"search.max_depth_limit",
	"search.parallel",
	"search.timeout",
	"scorer.provider",
	"decomposer.provider",
	"catalog.path",
	"catalog.watch",
	"session.backend",
	"session.ttl",
	"pricing.min_price",
	"pricing.max_price",
	"logging.debug_file",
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Printf("%s: %s\n", key, value)
	}

	if config.RequiresAPIKey(cfg) {
		if _, err := config.GetAPIKey(cfg); err != nil {
			fmt.Println()
			printStatus("⚠", config.EnvAnthropicKey+" not set: set anthropic.api_key or run with --offline", color.FgYellow)
		}
	}
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

func masked(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	return "****"
}

// keyDisplay masks a resolved key and names where it came from.
func keyDisplay(key string, src config.KeySource) string {
	if src == config.KeySourceNone {
		return "(not set)"
	}
	return fmt.Sprintf("%s (%s)", config.MaskAPIKey(key), src)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		key, _ := config.GetAPIKey(cfg)
		return keyDisplay(key, config.APIKeySource(cfg)), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "embedding.provider":
		return cfg.Embedding.Provider, nil
	case "embedding.api_key":
		key, _ := config.GetEmbeddingAPIKey(cfg)
		return keyDisplay(key, config.EmbeddingKeySource(cfg)), nil
	case "embedding.model":
		return cfg.Embedding.Model, nil
	case "embedding.dimensions":
		return strconv.Itoa(cfg.Embedding.Dimensions), nil
	case "index.backend":
		return cfg.Index.Backend, nil
	case "index.sqlite_path":
		return cfg.Index.SQLitePath, nil
	case "index.postgres_dsn":
		return masked(cfg.Index.PostgresDSN), nil
	case "index.vector_weight":
		return strconv.FormatFloat(cfg.Index.VectorWeight, 'f', -1, 64), nil
	case "index.top_k":
		return strconv.Itoa(cfg.Index.TopK), nil
	case "search.score_threshold_good":
		return strconv.FormatFloat(cfg.Search.ScoreThresholdGood, 'f', -1, 64), nil
	case "search.min_acceptable_score":
		return strconv.FormatFloat(cfg.Search.MinAcceptableScore, 'f', -1, 64), nil
	case "search.max_depth":
		return strconv.Itoa(cfg.Search.MaxDepth), nil
	case "search.max_depth_limit":
		return strconv.Itoa(cfg.Search.MaxDepthLimit), nil
	case "search.parallel":
		return strconv.FormatBool(cfg.Search.Parallel), nil
	case "search.timeout":
		return cfg.Search.Timeout.String(), nil
	case "scorer.provider":
		return cfg.Scorer.Provider, nil
	case "decomposer.provider":
		return cfg.Decomposer.Provider, nil
	case "catalog.path":
		return cfg.Catalog.Path, nil
	case "catalog.watch":
		return strconv.FormatBool(cfg.Catalog.Watch), nil
	case "session.backend":
		return cfg.Session.Backend, nil
	case "session.ttl":
		return cfg.Session.TTL.String(), nil
	case "pricing.min_price":
		return strconv.Itoa(cfg.Pricing.MinPrice), nil
	case "pricing.max_price":
		return strconv.Itoa(cfg.Pricing.MaxPrice), nil
	case "logging.debug_file":
		return cfg.Logging.DebugFile, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for use_bedrock: %w", err)
		}
		cfg.Anthropic.UseBedrock = b
	case "embedding.provider":
		cfg.Embedding.Provider = value
	case "embedding.api_key":
		cfg.Embedding.APIKey = value
	case "embedding.model":
		cfg.Embedding.Model = value
	case "embedding.dimensions":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
		}
		cfg.Embedding.Dimensions = n
	case "index.backend":
		cfg.Index.Backend = value
	case "index.sqlite_path":
		cfg.Index.SQLitePath = value
	case "index.postgres_dsn":
		cfg.Index.PostgresDSN = value
	case "index.vector_weight":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 || f > 1 {
			return fmt.Errorf("invalid value for index.vector_weight: must be between 0 and 1")
		}
		cfg.Index.VectorWeight = f
	case "index.top_k":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for index.top_k: %w", err)
		}
		cfg.Index.TopK = n
	case "search.score_threshold_good":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for search.score_threshold_good: %w", err)
		}
		cfg.Search.ScoreThresholdGood = f
	case "search.min_acceptable_score":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for search.min_acceptable_score: %w", err)
		}
		cfg.Search.MinAcceptableScore = f
	case "search.max_depth":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for search.max_depth: %w", err)
		}
		cfg.Search.MaxDepth = n
	case "search.max_depth_limit":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid value for search.max_depth_limit: %q", value)
		}
		cfg.Search.MaxDepthLimit = n
	case "search.parallel":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for search.parallel: %w", err)
		}
		cfg.Search.Parallel = b
	case "search.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for search.timeout: %w", err)
		}
		cfg.Search.Timeout = d
	case "scorer.provider":
		cfg.Scorer.Provider = value
	case "decomposer.provider":
		cfg.Decomposer.Provider = value
	case "catalog.path":
		cfg.Catalog.Path = value
	case "catalog.watch":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for catalog.watch: %w", err)
		}
		cfg.Catalog.Watch = b
	case "session.backend":
		cfg.Session.Backend = value
	case "session.ttl":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for session.ttl: %w", err)
		}
		cfg.Session.TTL = d
	case "pricing.min_price":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for pricing.min_price: %w", err)
		}
		cfg.Pricing.MinPrice = n
	case "pricing.max_price":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for pricing.max_price: %w", err)
		}
		cfg.Pricing.MaxPrice = n
	case "logging.debug_file":
		cfg.Logging.DebugFile = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
