package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("unexpected host: %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("unexpected port: %d", cfg.Server.Port)
	}
	if cfg.Server.Addr() != "0.0.0.0:8000" {
		t.Errorf("unexpected addr: %s", cfg.Server.Addr())
	}
	if cfg.LLM.Provider != "gemini" {
		t.Errorf("unexpected provider: %s", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "gemini-2.0-flash" {
		t.Errorf("unexpected model: %s", cfg.LLM.Model)
	}
	if cfg.LLM.RetryDelay != 2*time.Second {
		t.Errorf("unexpected retry delay: %v", cfg.LLM.RetryDelay)
	}
	if cfg.Embedding.Provider != "openai" {
		t.Errorf("unexpected embedding provider: %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("unexpected embedding model: %s", cfg.Embedding.Model)
	}
	if cfg.Vector.Driver != "qdrant" {
		t.Errorf("unexpected vector driver: %s", cfg.Vector.Driver)
	}
	if cfg.Vector.Collection != "hackrx-documents" {
		t.Errorf("unexpected collection: %s", cfg.Vector.Collection)
	}
	if cfg.Vector.Dimension != 1536 {
		t.Errorf("unexpected dimension: %d", cfg.Vector.Dimension)
	}
	if cfg.Vector.ExistsPolicy != "proceed" {
		t.Errorf("unexpected exists policy: %s", cfg.Vector.ExistsPolicy)
	}
	if cfg.Pipeline.ChunkSize != 1000 || cfg.Pipeline.ChunkOverlap != 200 {
		t.Errorf("unexpected chunking: %d/%d", cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap)
	}
	if cfg.Pipeline.TopK != 8 {
		t.Errorf("unexpected top_k: %d", cfg.Pipeline.TopK)
	}
	if cfg.Pipeline.BatchSize != 100 {
		t.Errorf("unexpected batch size: %d", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.FetchTimeout != 30*time.Second {
		t.Errorf("unexpected fetch timeout: %v", cfg.Pipeline.FetchTimeout)
	}
	if cfg.QA.Concurrency != 1 {
		t.Errorf("unexpected concurrency: %d", cfg.QA.Concurrency)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("unexpected log format: %s", cfg.Log.Format)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9000
llm:
  provider: none
vector:
  driver: memory
  dimension: 3
qa:
  concurrency: 4
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("unexpected port: %d", cfg.Server.Port)
	}
	if cfg.LLM.Provider != "none" {
		t.Errorf("unexpected provider: %s", cfg.LLM.Provider)
	}
	if cfg.Vector.Driver != "memory" {
		t.Errorf("unexpected driver: %s", cfg.Vector.Driver)
	}
	if cfg.Vector.Dimension != 3 {
		t.Errorf("unexpected dimension: %d", cfg.Vector.Dimension)
	}
	if cfg.QA.Concurrency != 4 {
		t.Errorf("unexpected concurrency: %d", cfg.QA.Concurrency)
	}
	// Untouched keys keep their defaults
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host, got %s", cfg.Server.Host)
	}
	if cfg.Pipeline.ChunkSize != 1000 {
		t.Errorf("expected default chunk size, got %d", cfg.Pipeline.ChunkSize)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DOCQA_SERVER_PORT", "9999")
	t.Setenv("DOCQA_VECTOR_EXISTS_POLICY", "strict")
	t.Setenv("DOCQA_LLM_RETRY_DELAY", "5s")
	t.Setenv("DOCQA_PIPELINE_BATCH_SIZE", "25")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("unexpected port: %d", cfg.Server.Port)
	}
	if cfg.Vector.ExistsPolicy != "strict" {
		t.Errorf("unexpected exists policy: %s", cfg.Vector.ExistsPolicy)
	}
	if cfg.LLM.RetryDelay != 5*time.Second {
		t.Errorf("unexpected retry delay: %v", cfg.LLM.RetryDelay)
	}
	if cfg.Pipeline.BatchSize != 25 {
		t.Errorf("unexpected batch size: %d", cfg.Pipeline.BatchSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := &Config{
		LLM: LLMConfig{Provider: "gemini"},
	}
	warnings := cfg.Validate()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "api_key") && strings.Contains(w, "gemini") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected warning about missing api_key")
	}
}

func TestValidate_NoneProvider(t *testing.T) {
	// "none" provider with no API key should not warn
	cfg := &Config{
		LLM:    LLMConfig{Provider: "none"},
		Vector: VectorConfig{Dimension: 1536},
	}
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "LLM provider") {
			t.Errorf("'none' provider should not warn about missing api_key: %s", w)
		}
	}
}

func TestValidate_DefaultServerKey(t *testing.T) {
	cfg := &Config{Server: ServerConfig{APIKey: "default_api_key"}}
	found := false
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "insecure default") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about default server api_key")
	}
}

func TestValidate_ZeroDimension(t *testing.T) {
	cfg := &Config{}
	found := false
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "dimension") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about vector dimension")
	}
}

func TestValidate_FallbackEqualsPrimary(t *testing.T) {
	cfg := &Config{
		Vector: VectorConfig{Driver: "qdrant", FallbackDriver: "qdrant", Dimension: 1536},
	}
	found := false
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "fallback_driver") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about fallback driver")
	}
}

func TestValidate_UnknownExistsPolicy(t *testing.T) {
	cfg := &Config{
		Vector: VectorConfig{ExistsPolicy: "maybe", Dimension: 1536},
	}
	found := false
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "exists_policy") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about exists policy")
	}
}

func TestValidate_OverlapNotSmallerThanChunk(t *testing.T) {
	cfg := &Config{
		Pipeline: PipelineConfig{ChunkSize: 100, ChunkOverlap: 100},
		Vector:   VectorConfig{Dimension: 1536},
	}
	found := false
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "chunk_overlap") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about chunk overlap")
	}
}

func TestValidate_NonPositiveBatchSize(t *testing.T) {
	cfg := &Config{
		Vector:   VectorConfig{Dimension: 1536},
		Pipeline: PipelineConfig{ChunkSize: 1000, ChunkOverlap: 200},
	}
	found := false
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "batch_size") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about batch size")
	}
}

func TestValidate_CleanConfig(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{APIKey: "secret"},
		LLM:    LLMConfig{Provider: "gemini", APIKey: "k1"},
		Embedding: EmbeddingConfig{
			Provider: "openai", APIKey: "k2",
		},
		Vector: VectorConfig{
			Driver: "qdrant", Dimension: 1536, ExistsPolicy: "proceed",
		},
		Pipeline: PipelineConfig{ChunkSize: 1000, ChunkOverlap: 200, BatchSize: 100},
	}
	if warnings := cfg.Validate(); len(warnings) != 0 {
		t.Errorf("expected no warnings, got %v", warnings)
	}
}
