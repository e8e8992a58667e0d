package config

import (
	"errors"
	"os"
	"strings"
)

var (
	// ErrNoAPIKey is returned when no Anthropic API key is configured.
	ErrNoAPIKey = errors.New("no Anthropic API key configured")
	// ErrNoEmbeddingKey is returned when the http embedding provider has no key.
	ErrNoEmbeddingKey = errors.New("no embedding API key configured")
)

// Environment variables that override keys in the config file.
const (
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvEmbeddingKey = "JINA_API_KEY"
)

// KeySource represents where a key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// resolveKey prefers the environment variable, then the configured value.
// Configured values may reference other variables as ${VAR}; a reference
// that does not expand counts as unset.
func resolveKey(env, configured string) (string, KeySource) {
	if key := os.Getenv(env); key != "" {
		return key, KeySourceEnv
	}
	if configured == "" {
		return "", KeySourceNone
	}
	key := os.ExpandEnv(configured)
	if key == "" || strings.HasPrefix(key, "${") {
		return "", KeySourceNone
	}
	return key, KeySourceConfig
}

// GetAPIKey returns the Anthropic key used by the LLM scorer and decomposer.
func GetAPIKey(cfg *Config) (string, error) {
	var configured string
	if cfg != nil {
		configured = cfg.Anthropic.APIKey
	}
	key, _ := resolveKey(EnvAnthropicKey, configured)
	if key == "" {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// GetEmbeddingAPIKey returns the key for the http embedding provider.
func GetEmbeddingAPIKey(cfg *Config) (string, error) {
	var configured string
	if cfg != nil {
		configured = cfg.Embedding.APIKey
	}
	key, _ := resolveKey(EnvEmbeddingKey, configured)
	if key == "" {
		return "", ErrNoEmbeddingKey
	}
	return key, nil
}

// APIKeySource reports where the Anthropic key comes from.
func APIKeySource(cfg *Config) KeySource {
	if cfg == nil {
		_, src := resolveKey(EnvAnthropicKey, "")
		return src
	}
	_, src := resolveKey(EnvAnthropicKey, cfg.Anthropic.APIKey)
	return src
}

// EmbeddingKeySource reports where the embedding key comes from.
func EmbeddingKeySource(cfg *Config) KeySource {
	if cfg == nil {
		_, src := resolveKey(EnvEmbeddingKey, "")
		return src
	}
	_, src := resolveKey(EnvEmbeddingKey, cfg.Embedding.APIKey)
	return src
}

// MaskAPIKey returns a display form of key showing only its prefix and
// last four characters.
func MaskAPIKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 15:
		return "***"
	}
	prefix := 4
	if strings.HasPrefix(key, "sk-ant-") {
		prefix = 7
	}
	return key[:prefix] + "..." + key[len(key)-4:]
}

// RequiresAPIKey reports whether the configuration uses a component that
// calls the Anthropic API directly.
func RequiresAPIKey(cfg *Config) bool {
	if cfg == nil || cfg.Anthropic.UseBedrock {
		return false
	}
	return cfg.Scorer.Provider == "llm" || cfg.Decomposer.Provider == "llm"
}
