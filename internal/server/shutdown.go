package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hackrx/docqa/internal/observability"
	"github.com/hackrx/docqa/internal/vector"
)

// Shutdown priorities. Lower values run first, so the HTTP listener
// stops accepting work before the stores behind it are closed.
const (
	PriorityHTTPServer  = 10
	PriorityTracing     = 80
	PriorityVectorStore = 90
	PriorityAuditLog    = 95
)

// ShutdownHook is a named cleanup step with an execution priority.
type ShutdownHook struct {
	Name     string
	Priority int
	Hook     func(ctx context.Context) error
}

// ShutdownHandler coordinates graceful termination. Hooks are run in
// priority order once a signal arrives or Shutdown is called.
type ShutdownHandler struct {
	mu         sync.Mutex
	hooks      []ShutdownHook
	timeout    time.Duration
	logger     *slog.Logger
	shutdownCh chan struct{}
	doneCh     chan struct{}
	once       sync.Once
}

// NewShutdownHandler creates a handler that allows each hook up to
// timeout to finish.
func NewShutdownHandler(timeout time.Duration, logger *slog.Logger) *ShutdownHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ShutdownHandler{
		timeout:    timeout,
		logger:     logger,
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// RegisterHook adds a cleanup step, keeping hooks sorted by priority.
func (h *ShutdownHandler) RegisterHook(hook ShutdownHook) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := len(h.hooks)
	for i, existing := range h.hooks {
		if hook.Priority < existing.Priority {
			idx = i
			break
		}
	}
	h.hooks = append(h.hooks, ShutdownHook{})
	copy(h.hooks[idx+1:], h.hooks[idx:])
	h.hooks[idx] = hook
}

// Start begins listening for SIGTERM and SIGINT in the background.
func (h *ShutdownHandler) Start() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigCh:
			h.logger.Info("shutdown signal received", "signal", sig.String())
			h.shutdown()
		case <-h.shutdownCh:
		}
	}()
}

// Shutdown triggers the hook sequence without waiting for a signal.
func (h *ShutdownHandler) Shutdown() {
	h.shutdown()
}

func (h *ShutdownHandler) shutdown() {
	h.once.Do(func() {
		close(h.shutdownCh)

		h.mu.Lock()
		hooks := make([]ShutdownHook, len(h.hooks))
		copy(hooks, h.hooks)
		h.mu.Unlock()

		for _, hook := range hooks {
			ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
			start := time.Now()
			if err := hook.Hook(ctx); err != nil {
				h.logger.Error("shutdown hook failed", "hook", hook.Name, "error", err)
			} else {
				h.logger.Info("shutdown hook finished", "hook", hook.Name, "duration", time.Since(start))
			}
			cancel()
		}

		close(h.doneCh)
	})
}

// Wait blocks until all hooks have run.
func (h *ShutdownHandler) Wait() {
	<-h.doneCh
}

// WaitWithTimeout blocks until shutdown completes or the duration passes.
func (h *ShutdownHandler) WaitWithTimeout(d time.Duration) error {
	select {
	case <-h.doneCh:
		return nil
	case <-time.After(d):
		return fmt.Errorf("shutdown did not complete within %s", d)
	}
}

// Done reports completion of the hook sequence.
func (h *ShutdownHandler) Done() <-chan struct{} {
	return h.doneCh
}

// ShutdownCh closes as soon as shutdown begins, before hooks run.
func (h *ShutdownHandler) ShutdownCh() <-chan struct{} {
	return h.shutdownCh
}

// Shutdowner is anything that stops against a deadline, such as the
// HTTP server.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// HTTPServerShutdownHook stops the HTTP listener first so no new
// requests reach dependencies that later hooks close.
func HTTPServerShutdownHook(srv Shutdowner) ShutdownHook {
	return ShutdownHook{
		Name:     "http-server",
		Priority: PriorityHTTPServer,
		Hook: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	}
}

// TracingShutdownHook flushes buffered spans to the OTLP endpoint.
func TracingShutdownHook(shutdown func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{
		Name:     "tracing",
		Priority: PriorityTracing,
		Hook: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	}
}

// VectorStoreShutdownHook closes the vector store connection.
func VectorStoreShutdownHook(repo vector.Repository) ShutdownHook {
	return ShutdownHook{
		Name:     "vector-store",
		Priority: PriorityVectorStore,
		Hook: func(ctx context.Context) error {
			if repo == nil {
				return nil
			}
			return repo.Close()
		},
	}
}

// AuditLoggerShutdownHook closes the audit log last so every earlier
// hook can still emit events.
func AuditLoggerShutdownHook(logger *observability.AuditLogger) ShutdownHook {
	return ShutdownHook{
		Name:     "audit-log",
		Priority: PriorityAuditLog,
		Hook: func(ctx context.Context) error {
			if logger == nil {
				return nil
			}
			return logger.Close()
		},
	}
}
