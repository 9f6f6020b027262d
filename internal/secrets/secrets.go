// Package secrets resolves service credentials from environment variables, a
// local JSON file, or HashiCorp Vault behind one interface. Configuration
// stays in the config package; this package only supplies the values that
// should never be written into a config file.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// SecretKey identifies the credentials the service consumes.
type SecretKey string

const (
	SecretLLMAPIKey       SecretKey = "llm_api_key"
	SecretEmbeddingAPIKey SecretKey = "embedding_api_key"
	SecretVectorAPIKey    SecretKey = "vector_api_key"
	SecretServerAPIKey    SecretKey = "server_api_key"
	SecretPostgresDSN     SecretKey = "postgres_dsn"
)

// Provider is one secret backend.
type Provider interface {
	// Get retrieves a secret by key.
	Get(ctx context.Context, key string) (string, error)
	// Set stores a secret. Not every backend supports writes.
	Set(ctx context.Context, key, value string) error
	// Delete removes a secret. Not every backend supports deletes.
	Delete(ctx context.Context, key string) error
	// Name returns the backend name.
	Name() string
}

// Config selects and configures the secrets backend.
type Config struct {
	// Provider is the backend to use: "env", "file" or "vault".
	Provider string
	// VaultConfig configures the HashiCorp Vault backend.
	VaultConfig *VaultConfig
	// FileConfig configures the local file backend.
	FileConfig *FileConfig
	// EnvPrefix is prepended to upper-cased keys when reading the
	// environment. Defaults to "DOCQA_", so the key llm_api_key reads the
	// same DOCQA_LLM_API_KEY variable the config layer accepts.
	EnvPrefix string
}

// DefaultConfig returns the env-backed configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:  "env",
		EnvPrefix: "DOCQA_",
	}
}

// Manager resolves secrets through a primary backend with the environment as
// fallback, caching every hit.
type Manager struct {
	primary  Provider
	fallback Provider

	mu       sync.RWMutex
	cache    map[string]string
	useCache bool
}

// NewManager creates a Manager for the configured backend.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var primary Provider
	var err error
	switch cfg.Provider {
	case "vault":
		if cfg.VaultConfig == nil {
			return nil, fmt.Errorf("vault config required for vault provider")
		}
		primary, err = NewVaultProvider(cfg.VaultConfig)
		if err != nil {
			return nil, fmt.Errorf("create vault provider: %w", err)
		}
	case "file":
		if cfg.FileConfig == nil {
			return nil, fmt.Errorf("file config required for file provider")
		}
		primary, err = NewFileProvider(cfg.FileConfig)
		if err != nil {
			return nil, fmt.Errorf("create file provider: %w", err)
		}
	case "env", "":
		primary = NewEnvProvider(cfg.EnvPrefix)
	default:
		return nil, fmt.Errorf("unknown secrets provider: %s", cfg.Provider)
	}

	return &Manager{
		primary:  primary,
		fallback: NewEnvProvider(cfg.EnvPrefix),
		cache:    make(map[string]string),
		useCache: true,
	}, nil
}

// Get resolves a secret, trying the primary backend, then the environment.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	if val, ok := m.cache[key]; ok && m.useCache {
		m.mu.RUnlock()
		return val, nil
	}
	m.mu.RUnlock()

	val, err := m.primary.Get(ctx, key)
	if err == nil && val != "" {
		m.cacheSet(key, val)
		return val, nil
	}

	if m.fallback != nil {
		val, err = m.fallback.Get(ctx, key)
		if err == nil && val != "" {
			m.cacheSet(key, val)
			return val, nil
		}
	}

	return "", fmt.Errorf("secret not found: %s", key)
}

// GetOrDefault resolves a secret or returns defaultVal when it is missing.
func (m *Manager) GetOrDefault(ctx context.Context, key, defaultVal string) string {
	val, err := m.Get(ctx, key)
	if err != nil || val == "" {
		return defaultVal
	}
	return val
}

// MustGet resolves a secret or panics. Reserved for startup paths where a
// missing credential makes the process useless.
func (m *Manager) MustGet(ctx context.Context, key string) string {
	val, err := m.Get(ctx, key)
	if err != nil {
		panic(fmt.Sprintf("required secret not found: %s", key))
	}
	return val
}

// Set writes a secret through the primary backend.
func (m *Manager) Set(ctx context.Context, key, value string) error {
	if err := m.primary.Set(ctx, key, value); err != nil {
		return err
	}
	m.cacheSet(key, value)
	return nil
}

// Delete removes a secret from the primary backend.
func (m *Manager) Delete(ctx context.Context, key string) error {
	if err := m.primary.Delete(ctx, key); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.cache, key)
	m.mu.Unlock()
	return nil
}

// ClearCache drops every cached value.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	m.cache = make(map[string]string)
	m.mu.Unlock()
}

// DisableCache makes every Get hit the backend.
func (m *Manager) DisableCache() {
	m.mu.Lock()
	m.useCache = false
	m.mu.Unlock()
}

func (m *Manager) cacheSet(key, value string) {
	m.mu.Lock()
	if m.useCache {
		m.cache[key] = value
	}
	m.mu.Unlock()
}

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment-backed provider. An empty prefix
// falls back to "DOCQA_".
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = "DOCQA_"
	}
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

// Get reads the prefixed variable first, then the bare upper-cased key.
func (p *EnvProvider) Get(ctx context.Context, key string) (string, error) {
	envKey := p.prefix + strings.ToUpper(key)
	if val := os.Getenv(envKey); val != "" {
		return val, nil
	}
	if val := os.Getenv(strings.ToUpper(key)); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("env var not found: %s", envKey)
}

func (p *EnvProvider) Set(ctx context.Context, key, value string) error {
	return os.Setenv(p.prefix+strings.ToUpper(key), value)
}

func (p *EnvProvider) Delete(ctx context.Context, key string) error {
	return os.Unsetenv(p.prefix + strings.ToUpper(key))
}

var (
	globalManager *Manager
	globalErr     error
	managerOnce   sync.Once
)

// Init initializes the global manager. The first call wins; later calls
// return the outcome of the first.
func Init(cfg *Config) error {
	managerOnce.Do(func() {
		globalManager, globalErr = NewManager(cfg)
	})
	return globalErr
}

// Get resolves a secret through the global manager, initializing it with
// defaults on first use.
func Get(ctx context.Context, key string) (string, error) {
	if err := Init(nil); err != nil {
		return "", err
	}
	return globalManager.Get(ctx, key)
}

// GetOrDefault resolves a secret through the global manager or returns
// defaultVal.
func GetOrDefault(ctx context.Context, key, defaultVal string) string {
	if Init(nil) != nil {
		return defaultVal
	}
	return globalManager.GetOrDefault(ctx, key, defaultVal)
}

// MustGet resolves a secret through the global manager or panics.
func MustGet(ctx context.Context, key string) string {
	if err := Init(nil); err != nil {
		panic(fmt.Sprintf("secrets manager unavailable: %v", err))
	}
	return globalManager.MustGet(ctx, key)
}
