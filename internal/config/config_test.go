package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
embedding:
  provider: ollama
  model: nomic-embed-text
  dimensions: 768
cache:
  dir: /var/cache/recall
  max_entries: 500
rate_limit: 30
chunking:
  strategy: semantic
  size: 1200
  overlap: 150
retrieval:
  top_k: 3
  min_score: 0.25
knowledge:
  db_path: /var/lib/recall/knowledge.db
  similarity_threshold: 0.6
  title_weight: 0.4
  content_weight: 0.6
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS",
		"RECALL_CACHE_DIR", "RECALL_CACHE_MAX_ENTRIES", "RECALL_RATE_LIMIT",
		"CHUNK_STRATEGY", "CHUNK_SIZE", "CHUNK_OVERLAP",
		"RECALL_TOP_K", "RECALL_MIN_SCORE",
		"RECALL_KNOWLEDGE_DB", "SIMILARITY_THRESHOLD", "TITLE_WEIGHT", "CONTENT_WEIGHT",
		"LOG_LEVEL", "LOG_FORMAT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"EMBEDDING_PROVIDER":       "ollama",
		"EMBEDDING_MODEL":          "nomic-embed-text",
		"EMBEDDING_DIMENSIONS":     "768",
		"RECALL_CACHE_DIR":         "/var/cache/recall",
		"RECALL_CACHE_MAX_ENTRIES": "500",
		"RECALL_RATE_LIMIT":        "30",
		"CHUNK_STRATEGY":           "semantic",
		"CHUNK_SIZE":               "1200",
		"CHUNK_OVERLAP":            "150",
		"RECALL_TOP_K":             "3",
		"RECALL_MIN_SCORE":         "0.25",
		"RECALL_KNOWLEDGE_DB":      "/var/lib/recall/knowledge.db",
		"SIMILARITY_THRESHOLD":     "0.6",
		"TITLE_WEIGHT":             "0.4",
		"CONTENT_WEIGHT":           "0.6",
		"LOG_LEVEL":                "debug",
		"LOG_FORMAT":               "text",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
embedding:
  provider: ollama
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Set env var BEFORE loading — it should NOT be overwritten.
	t.Setenv("EMBEDDING_PROVIDER", "openai")

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("EMBEDDING_PROVIDER"); got != "openai" {
		t.Errorf("EMBEDDING_PROVIDER: expected env override %q, got %q", "openai", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestFloatStr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float64
		want string
	}{
		{0.0, ""},
		{0.2, "0.2"},
		{0.85, "0.85"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := floatStr(tt.in); got != tt.want {
			t.Errorf("floatStr(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
