package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// VaultConfig configures the HashiCorp Vault provider.
type VaultConfig struct {
	// Address is the Vault server address (e.g. "http://localhost:8200").
	Address string
	// Token is the Vault authentication token.
	Token string
	// MountPath is the KV v2 secrets engine mount (default "secret").
	MountPath string
	// SecretPath is the path under the mount holding the service's secrets
	// (default "docqa"). All keys live in this single KV entry.
	SecretPath string
	// Timeout bounds each Vault API request.
	Timeout time.Duration
}

// DefaultVaultConfig returns the local-development Vault configuration.
func DefaultVaultConfig() *VaultConfig {
	return &VaultConfig{
		Address:    "http://localhost:8200",
		MountPath:  "secret",
		SecretPath: "docqa",
		Timeout:    10 * time.Second,
	}
}

// VaultProvider reads and writes secrets in a HashiCorp Vault KV v2 engine.
type VaultProvider struct {
	config *VaultConfig
	client *http.Client
}

// NewVaultProvider creates a Vault provider. Address and Token are required.
func NewVaultProvider(config *VaultConfig) (*VaultProvider, error) {
	if config == nil {
		config = DefaultVaultConfig()
	}
	if config.Address == "" {
		return nil, fmt.Errorf("vault address required")
	}
	if config.Token == "" {
		return nil, fmt.Errorf("vault token required")
	}
	if config.MountPath == "" {
		config.MountPath = "secret"
	}
	if config.SecretPath == "" {
		config.SecretPath = "docqa"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &VaultProvider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

func (p *VaultProvider) Name() string { return "vault" }

func (p *VaultProvider) Get(ctx context.Context, key string) (string, error) {
	data, err := p.readData(ctx)
	if err != nil {
		return "", err
	}

	val, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key not found in vault: %s", key)
	}
	if strVal, ok := val.(string); ok {
		return strVal, nil
	}
	return fmt.Sprintf("%v", val), nil
}

// Set rewrites the KV entry with the key added. Vault KV v2 replaces the
// whole entry per write, so the existing keys are read first and carried
// over.
func (p *VaultProvider) Set(ctx context.Context, key, value string) error {
	data, err := p.readData(ctx)
	if err != nil {
		// A missing path is fine, the write below creates it.
		data = make(map[string]interface{})
	}
	data[key] = value
	return p.writeData(ctx, data)
}

// Delete rewrites the KV entry with the key removed.
func (p *VaultProvider) Delete(ctx context.Context, key string) error {
	data, err := p.readData(ctx)
	if err != nil {
		data = make(map[string]interface{})
	}
	delete(data, key)
	return p.writeData(ctx, data)
}

// secretURL builds the KV v2 data endpoint for the configured path.
func (p *VaultProvider) secretURL() string {
	return fmt.Sprintf("%s/v1/%s/data/%s",
		strings.TrimSuffix(p.config.Address, "/"),
		p.config.MountPath,
		p.config.SecretPath,
	)
}

func (p *VaultProvider) readData(ctx context.Context) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.secretURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", p.config.Token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("secret path not found: %s", p.config.SecretPath)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vault error %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Data struct {
			Data map[string]interface{} `json:"data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if result.Data.Data == nil {
		result.Data.Data = make(map[string]interface{})
	}
	return result.Data.Data, nil
}

func (p *VaultProvider) writeData(ctx context.Context, data map[string]interface{}) error {
	body, err := json.Marshal(map[string]interface{}{"data": data})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.secretURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", p.config.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("vault request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vault error %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
