// Package config provides YAML-based configuration for paperflow.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. PAPERFLOW_CONFIG environment variable
//  3. ~/.paperflow/config.yaml
//  4. ./paperflow.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Agent configures the reasoning chat model (routing, query generation,
	// answer writing).
	Agent ModelConfig `yaml:"agent"`

	// Critic configures the reviewing chat model (debate critiques).
	Critic ModelConfig `yaml:"critic"`

	// Extractor configures the vision chat model (PDF metadata extraction).
	Extractor ModelConfig `yaml:"extractor"`

	// Embedding configures the embedding provider for the paper index.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the Qdrant vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Search configures the Tavily web search client.
	Search SearchConfig `yaml:"search"`

	// Checkpoints configures graph run state persistence.
	Checkpoints CheckpointConfig `yaml:"checkpoints"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds the settings for one chat model role.
type ModelConfig struct {
	// Provider selects the backend: openai, ollama, ark, gemini.
	Provider string `yaml:"provider"`

	// Model is the model name.
	Model string `yaml:"model"`

	// BaseURL is the API endpoint (vendor selector for openai-compatible backends).
	BaseURL string `yaml:"base_url"`

	// APIKey is the credential. Prefer the role env var (AGENT_API_KEY etc.).
	APIKey string `yaml:"api_key"`

	// Temperature is the default sampling temperature for this role.
	Temperature float32 `yaml:"temperature"`
}

// EmbeddingConfig holds embedding provider settings for the paper index.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (openai, ollama).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// BaseURL is the embedding API endpoint.
	BaseURL string `yaml:"base_url"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// SearchConfig holds Tavily web search settings.
type SearchConfig struct {
	// APIKey is the Tavily API key. Prefer env var TAVILY_API_KEY.
	APIKey string `yaml:"api_key"`
	// MaxResults caps results per query.
	MaxResults int `yaml:"max_results"`
}

// CheckpointConfig holds graph run persistence settings.
type CheckpointConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"AGENT_PROVIDER", func(c *Config) string { return c.Agent.Provider }},
	{"AGENT_MODEL_NAME", func(c *Config) string { return c.Agent.Model }},
	{"AGENT_BASE_URL", func(c *Config) string { return c.Agent.BaseURL }},
	{"AGENT_API_KEY", func(c *Config) string { return c.Agent.APIKey }},
	{"AGENT_TEMPERATURE", func(c *Config) string { return float32Str(c.Agent.Temperature) }},
	{"CRITIC_PROVIDER", func(c *Config) string { return c.Critic.Provider }},
	{"CRITIC_MODEL_NAME", func(c *Config) string { return c.Critic.Model }},
	{"CRITIC_BASE_URL", func(c *Config) string { return c.Critic.BaseURL }},
	{"CRITIC_API_KEY", func(c *Config) string { return c.Critic.APIKey }},
	{"CRITIC_TEMPERATURE", func(c *Config) string { return float32Str(c.Critic.Temperature) }},
	{"EXTRACTOR_PROVIDER", func(c *Config) string { return c.Extractor.Provider }},
	{"EXTRACTOR_MODEL_NAME", func(c *Config) string { return c.Extractor.Model }},
	{"EXTRACTOR_BASE_URL", func(c *Config) string { return c.Extractor.BaseURL }},
	{"EXTRACTOR_API_KEY", func(c *Config) string { return c.Extractor.APIKey }},
	{"EXTRACTOR_TEMPERATURE", func(c *Config) string { return float32Str(c.Extractor.Temperature) }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_BASE_URL", func(c *Config) string { return c.Embedding.BaseURL }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"TAVILY_API_KEY", func(c *Config) string { return c.Search.APIKey }},
	{"TAVILY_MAX_RESULTS", func(c *Config) string { return intStr(c.Search.MaxResults) }},
	{"PAPERFLOW_CHECKPOINT_DB", func(c *Config) string { return c.Checkpoints.DBPath }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("PAPERFLOW_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".paperflow", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("paperflow.yaml"); err == nil {
		return "paperflow.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
