package llmutil

import (
	"github.com/hackrx/docqa/internal/llm"
	"github.com/hackrx/docqa/internal/llm/gemini"
	"github.com/hackrx/docqa/internal/llm/openai"
)

// RegisterDefaultProviders registers all built-in LLM provider constructors
// (gemini, openai, and all OpenAI-compatible providers) into factory.
// The serve command and the CLI tools both call this to avoid duplicating
// registration logic.
func RegisterDefaultProviders(factory *llm.ProviderFactory) {
	factory.Register("gemini", func(c llm.ProviderConfig) (llm.Provider, error) {
		return gemini.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	// All OpenAI-compatible providers
	for _, p := range []struct{ name, url string }{
		{"groq", llm.KnownProviders["groq"]},
		{"ollama", llm.KnownProviders["ollama"]},
		{"together", llm.KnownProviders["together"]},
		{"deepseek", llm.KnownProviders["deepseek"]},
		{"custom", ""},
	} {
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			return openai.New(c.APIKey, c.Model, base, c.EmbedModel), nil
		})
	}
}
