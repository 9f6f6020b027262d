package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hackrx/docqa/internal/llm"
	"github.com/hackrx/docqa/internal/vector"
)

// ServiceName identifies the API in health responses.
const ServiceName = "hackrx-api"

// checkTimeout bounds how long a single health pass may take.
const checkTimeout = 5 * time.Second

// CheckResult is the outcome of one named dependency probe.
type CheckResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse is the payload served on GET /health. Checks are only
// reported when at least one probe fails.
type HealthResponse struct {
	Status  string        `json:"status"`
	Service string        `json:"service"`
	Checks  []CheckResult `json:"checks,omitempty"`
}

// HealthChecker probes a single dependency. A nil error means healthy.
type HealthChecker func(ctx context.Context) error

// HealthRegistry holds named health checks and runs them on demand.
type HealthRegistry struct {
	mu     sync.RWMutex
	checks map[string]HealthChecker
}

func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{checks: make(map[string]HealthChecker)}
}

// RegisterCheck adds or replaces a named health check.
func (r *HealthRegistry) RegisterCheck(name string, checker HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = checker
}

// Run executes every registered check under a shared timeout and reports
// whether all of them passed. Results are ordered by check name so the
// payload is stable across calls.
func (r *HealthRegistry) Run(ctx context.Context) (bool, []CheckResult) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	r.mu.RLock()
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthChecker, len(r.checks))
	for name, checker := range r.checks {
		checks[name] = checker
	}
	r.mu.RUnlock()

	sort.Strings(names)

	healthy := true
	results := make([]CheckResult, 0, len(names))
	for _, name := range names {
		result := CheckResult{Name: name, Status: "healthy"}
		if err := checks[name](ctx); err != nil {
			healthy = false
			result.Status = "unhealthy"
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return healthy, results
}

// VectorHealthChecker probes the vector store with a cheap existence
// query against a document ID that is never indexed.
func VectorHealthChecker(repo vector.Repository) HealthChecker {
	return func(ctx context.Context) error {
		if repo == nil {
			return fmt.Errorf("no vector store configured")
		}
		_, err := repo.Exists(ctx, "health-probe")
		return err
	}
}

// LLMHealthChecker verifies that a completion provider is configured.
// Providers are not exercised with a live request on every health pass.
func LLMHealthChecker(provider llm.Provider) HealthChecker {
	return func(ctx context.Context) error {
		if provider == nil {
			return fmt.Errorf("no LLM provider configured")
		}
		return nil
	}
}
