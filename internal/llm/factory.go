package llm

import (
	"fmt"
	"time"
)

// ProviderConfig holds all configuration needed to create any LLM provider.
type ProviderConfig struct {
	Provider   string // "gemini", "openai", "groq", "ollama", "custom", ...
	APIKey     string
	Model      string
	BaseURL    string // Override for self-hosted / custom endpoints
	EmbedModel string // Embedding model, for providers that support Embed

	// Timeout and retry configuration
	Timeout    time.Duration // Per-request timeout (default: 30s)
	MaxRetries int           // Max retry attempts (default: 3)
	RetryDelay time.Duration // Initial retry delay for exponential backoff (default: 1s)

	// Client-side rate limiting (0 = unlimited)
	RateLimit float64 // Requests per second allowed against the API
	Burst     int     // Burst size for the limiter (default: 1)
}

// DefaultProviderConfig returns a config with sensible defaults.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
	}
}

// ProviderFactory creates Provider instances from config.
type ProviderFactory struct {
	constructors map[string]ProviderConstructor
}

// ProviderConstructor builds a Provider from config.
type ProviderConstructor func(cfg ProviderConfig) (Provider, error)

// NewFactory creates an empty factory; call Register to add constructors.
func NewFactory() *ProviderFactory {
	return &ProviderFactory{
		constructors: make(map[string]ProviderConstructor),
	}
}

// Register adds a provider constructor under the given name.
func (f *ProviderFactory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds a Provider from config. Returns nil (no error) when provider
// is empty or "none", which lets tests and offline tooling run without an
// API. The returned provider is wrapped with rate limiting and retry logic
// when configured; the limiter sits inside the retry loop so every attempt
// waits for clearance.
func (f *ProviderFactory) Create(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return nil, nil
	}

	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q — registered: %v", cfg.Provider, f.names())
	}

	provider, err := ctor(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.RateLimit > 0 {
		provider = WithRateLimit(provider, &RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit,
			Burst:             cfg.Burst,
		})
	}

	if cfg.Timeout > 0 || cfg.MaxRetries > 0 {
		return WrapWithRetry(provider, cfg), nil
	}

	return provider, nil
}

func (f *ProviderFactory) names() []string {
	var out []string
	for k := range f.constructors {
		out = append(out, k)
	}
	return out
}

// KnownProviders documents the built-in provider presets.
// Gemini speaks its own REST API; everything else is served by the
// OpenAI-compatible client with a preset base_url.
//
// Presets with default base URLs:
//
//	gemini     → https://generativelanguage.googleapis.com/v1beta
//	openai     → https://api.openai.com/v1
//	groq       → https://api.groq.com/openai/v1
//	ollama     → http://localhost:11434/v1
//	together   → https://api.together.xyz/v1
//	deepseek   → https://api.deepseek.com/v1
var KnownProviders = map[string]string{
	"gemini":   "https://generativelanguage.googleapis.com/v1beta",
	"openai":   "https://api.openai.com/v1",
	"groq":     "https://api.groq.com/openai/v1",
	"ollama":   "http://localhost:11434/v1",
	"together": "https://api.together.xyz/v1",
	"deepseek": "https://api.deepseek.com/v1",
}
