// Package llmutil wires LLM providers from service configuration.
package llmutil

import (
	"fmt"

	"github.com/hackrx/docqa/internal/config"
	"github.com/hackrx/docqa/internal/llm"
)

// Providers bundles the two provider roles the pipeline needs. Completion
// generates answers; Embedding turns text into vectors. They are often
// different services (Gemini for answers, OpenAI for embeddings), so they
// are configured and created independently.
type Providers struct {
	Completion llm.Provider
	Embedding  llm.Provider
}

// Build creates both providers named by cfg. A provider spelled "" or
// "none" comes back nil, which callers treat as explicitly disabled.
func Build(cfg *config.Config) (*Providers, error) {
	factory := llm.NewFactory()
	RegisterDefaultProviders(factory)

	completion, err := factory.Create(llm.ProviderConfig{
		Provider:   cfg.LLM.Provider,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		BaseURL:    cfg.LLM.BaseURL,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
		RetryDelay: cfg.LLM.RetryDelay,
		RateLimit:  cfg.LLM.RateLimit,
		Burst:      cfg.LLM.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("creating completion provider: %w", err)
	}

	// Embedding requests reuse the default timeout and retry settings;
	// they are short calls and do not need per-deployment tuning.
	embedCfg := llm.DefaultProviderConfig()
	embedCfg.Provider = cfg.Embedding.Provider
	embedCfg.APIKey = cfg.Embedding.APIKey
	embedCfg.Model = cfg.Embedding.Model
	embedCfg.EmbedModel = cfg.Embedding.Model
	embedCfg.BaseURL = cfg.Embedding.BaseURL

	embedding, err := factory.Create(embedCfg)
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	return &Providers{Completion: completion, Embedding: embedding}, nil
}
