package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileConfig configures the file-backed provider.
type FileConfig struct {
	// Path is the JSON secrets file.
	Path string
	// CreateIfMissing writes an empty file when Path does not exist.
	CreateIfMissing bool
}

// FileProvider keeps secrets in a local JSON file. It exists for development
// machines without Vault access; production deployments use env or vault.
type FileProvider struct {
	path string

	mu   sync.RWMutex
	data map[string]string
}

// NewFileProvider creates a file-backed provider and loads the file.
func NewFileProvider(config *FileConfig) (*FileProvider, error) {
	if config == nil || config.Path == "" {
		return nil, fmt.Errorf("file path required")
	}

	p := &FileProvider{
		path: config.Path,
		data: make(map[string]string),
	}

	if err := p.load(); err != nil {
		if os.IsNotExist(err) && config.CreateIfMissing {
			if err := p.save(); err != nil {
				return nil, fmt.Errorf("create secrets file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load secrets file: %w", err)
		}
	}

	return p, nil
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Get(ctx context.Context, key string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	val, ok := p.data[key]
	if !ok {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	return val, nil
}

func (p *FileProvider) Set(ctx context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.data[key] = value
	return p.save()
}

func (p *FileProvider) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.data, key)
	return p.save()
}

// Reload replaces in-memory state with the file's current content.
func (p *FileProvider) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load()
}

func (p *FileProvider) load() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &p.data)
}

// save writes the file with owner-only permissions.
func (p *FileProvider) save() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	data, err := json.MarshalIndent(p.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}
	return os.WriteFile(p.path, data, 0600)
}
