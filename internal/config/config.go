// Package config provides YAML-based configuration for recall.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. RECALL_CONFIG environment variable
//  3. ~/.recall/config.yaml
//  4. ./recall.yaml
//
// If no file is found the system runs entirely from env vars (backwards compatible).
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
	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Cache configures the two-tier embedding cache.
	Cache CacheConfig `yaml:"cache"`

	// RateLimit is the embedding API budget in requests per minute.
	RateLimit int `yaml:"rate_limit"`

	// Chunking configures document segmentation.
	Chunking ChunkingConfig `yaml:"chunking"`

	// Retrieval configures query defaults.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Knowledge configures the knowledge base store.
	Knowledge KnowledgeConfig `yaml:"knowledge"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure, gemini).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	// Dir is the on-disk cache directory.
	Dir string `yaml:"dir"`
	// MaxEntries bounds the in-memory cache size.
	MaxEntries int `yaml:"max_entries"`
}

// ChunkingConfig holds document segmentation settings.
type ChunkingConfig struct {
	// Strategy selects the chunking strategy: semantic, paragraph, simple.
	Strategy string `yaml:"strategy"`
	// Size is the maximum characters per chunk.
	Size int `yaml:"size"`
	// Overlap is the characters shared between consecutive chunks.
	Overlap int `yaml:"overlap"`
	// MaxPerDocument caps the chunks produced from one document.
	MaxPerDocument int `yaml:"max_per_document"`
}

// RetrievalConfig holds query defaults.
type RetrievalConfig struct {
	// TopK is the default result count.
	TopK int `yaml:"top_k"`
	// MinScore is the default minimum similarity for results.
	MinScore float64 `yaml:"min_score"`
}

// KnowledgeConfig holds knowledge base settings.
type KnowledgeConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable persistence.
	DBPath string `yaml:"db_path"`
	// SimilarityThreshold is the minimum score for knowledge search hits.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// TitleWeight and ContentWeight blend field scores in combined search.
	TitleWeight   float64 `yaml:"title_weight"`
	ContentWeight float64 `yaml:"content_weight"`
	// DedupThreshold is the similarity above which entries count as duplicates.
	DedupThreshold float64 `yaml:"dedup_threshold"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// RateLimit is the per-client request budget in requests per second.
	RateLimit float64 `yaml:"rate_limit"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"RECALL_CACHE_DIR", func(c *Config) string { return c.Cache.Dir }},
	{"RECALL_CACHE_MAX_ENTRIES", func(c *Config) string { return intStr(c.Cache.MaxEntries) }},
	{"RECALL_RATE_LIMIT", func(c *Config) string { return intStr(c.RateLimit) }},
	{"CHUNK_STRATEGY", func(c *Config) string { return c.Chunking.Strategy }},
	{"CHUNK_SIZE", func(c *Config) string { return intStr(c.Chunking.Size) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Chunking.Overlap) }},
	{"CHUNK_MAX_PER_DOC", func(c *Config) string { return intStr(c.Chunking.MaxPerDocument) }},
	{"RECALL_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"RECALL_MIN_SCORE", func(c *Config) string { return floatStr(c.Retrieval.MinScore) }},
	{"RECALL_KNOWLEDGE_DB", func(c *Config) string { return c.Knowledge.DBPath }},
	{"SIMILARITY_THRESHOLD", func(c *Config) string { return floatStr(c.Knowledge.SimilarityThreshold) }},
	{"TITLE_WEIGHT", func(c *Config) string { return floatStr(c.Knowledge.TitleWeight) }},
	{"CONTENT_WEIGHT", func(c *Config) string { return floatStr(c.Knowledge.ContentWeight) }},
	{"DEDUP_THRESHOLD", func(c *Config) string { return floatStr(c.Knowledge.DedupThreshold) }},
	{"RECALL_HOST", func(c *Config) string { return c.Server.Host }},
	{"RECALL_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"RECALL_SERVER_RATE_LIMIT", func(c *Config) string { return floatStr(c.Server.RateLimit) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
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
		if yamlVal == "" || yamlVal == "0" {
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

	if envPath := os.Getenv("RECALL_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".recall", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("recall.yaml"); err == nil {
		return "recall.yaml"
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

// floatStr converts a float64 to string, returning "" for zero values.
func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}
