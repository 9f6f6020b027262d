package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hackrx/docqa/internal/config"
	"github.com/hackrx/docqa/internal/document"
	"github.com/hackrx/docqa/internal/ingest"
	"github.com/hackrx/docqa/internal/llm"
	"github.com/hackrx/docqa/internal/llmutil"
	"github.com/hackrx/docqa/internal/observability"
	"github.com/hackrx/docqa/internal/qa"
	"github.com/hackrx/docqa/internal/secrets"
	"github.com/hackrx/docqa/internal/server"
	"github.com/hackrx/docqa/internal/tui"
	"github.com/hackrx/docqa/internal/vector"
	"github.com/hackrx/docqa/internal/vectorutil"
)

func main() {
	// .env is optional; real deployments set environment variables directly.
	_ = godotenv.Load()
	initSecrets()

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "docqa",
		Short: "Document question answering over PDF documents",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")

	var addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, addr)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")

	var ingestURL string
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch and index a document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(configPath, ingestURL)
		},
	}
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "Document URL")
	_ = ingestCmd.MarkFlagRequired("url")

	var (
		askURL     string
		jsonOutput bool
	)
	askCmd := &cobra.Command{
		Use:   "ask [questions...]",
		Short: "Answer questions against a document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(configPath, askURL, args, jsonOutput)
		},
	}
	askCmd.Flags().StringVar(&askURL, "url", "", "Document URL")
	askCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output answers as JSON")
	_ = askCmd.MarkFlagRequired("url")

	var (
		chatURL        string
		transcriptPath string
	)
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat against a document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(configPath, chatURL, transcriptPath)
		},
	}
	chatCmd.Flags().StringVar(&chatURL, "url", "", "Document URL")
	chatCmd.Flags().StringVar(&transcriptPath, "transcript", "", "Write session transcript JSON to this path")
	_ = chatCmd.MarkFlagRequired("url")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-14s %s\n", name, url)
			}
			fmt.Println("  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println("  none           (disable a provider role)")
			fmt.Println()
			fmt.Println("Configure in docqa.yaml or via environment:")
			fmt.Println("  DOCQA_LLM_PROVIDER=gemini")
			fmt.Println("  DOCQA_LLM_API_KEY=AIza...")
			fmt.Println("  DOCQA_LLM_MODEL=gemini-2.0-flash")
			fmt.Println("  DOCQA_EMBEDDING_PROVIDER=openai")
			fmt.Println("  DOCQA_EMBEDDING_API_KEY=sk-...")
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and report warnings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(configPath)
		},
	}

	rootCmd.AddCommand(serveCmd, ingestCmd, askCmd, chatCmd, providersCmd, validateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads configuration, fills missing credentials from the secrets
// backend and prints validation warnings to stderr.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	resolveSecrets(context.Background(), cfg)
	for _, w := range cfg.Validate() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
	return cfg, nil
}

// initSecrets selects the secrets backend. The default env backend needs no
// setup; the file and vault backends are opted into through the environment
// so credentials never have to live in the config file.
func initSecrets() {
	cfg := secrets.DefaultConfig()
	switch provider := os.Getenv("DOCQA_SECRETS_PROVIDER"); provider {
	case "", "env":
	case "file":
		cfg.Provider = "file"
		cfg.FileConfig = &secrets.FileConfig{Path: os.Getenv("DOCQA_SECRETS_FILE")}
	case "vault":
		vcfg := secrets.DefaultVaultConfig()
		if addr := os.Getenv("VAULT_ADDR"); addr != "" {
			vcfg.Address = addr
		}
		vcfg.Token = os.Getenv("VAULT_TOKEN")
		cfg.Provider = "vault"
		cfg.VaultConfig = vcfg
	default:
		fmt.Fprintf(os.Stderr, "Warning: unknown secrets provider %q, using env\n", provider)
	}
	if err := secrets.Init(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: secrets backend unavailable: %v\n", err)
	}
}

// resolveSecrets fills credential fields the config left empty. Explicit
// config and environment values always win; the secrets backend only
// supplies what is missing.
func resolveSecrets(ctx context.Context, cfg *config.Config) {
	fill := func(dst *string, key secrets.SecretKey) {
		if *dst == "" {
			*dst = secrets.GetOrDefault(ctx, string(key), "")
		}
	}
	fill(&cfg.LLM.APIKey, secrets.SecretLLMAPIKey)
	fill(&cfg.Embedding.APIKey, secrets.SecretEmbeddingAPIKey)
	fill(&cfg.Vector.APIKey, secrets.SecretVectorAPIKey)
	fill(&cfg.Vector.PostgresDSN, secrets.SecretPostgresDSN)

	// The bearer token ships with an insecure default rather than empty, so
	// it stays replaceable while still set.
	if cfg.Server.APIKey == config.DefaultServerAPIKey {
		cfg.Server.APIKey = secrets.GetOrDefault(ctx, string(secrets.SecretServerAPIKey), cfg.Server.APIKey)
	}
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// pipeline bundles the wired service collaborators.
type pipeline struct {
	providers *llmutil.Providers
	store     vector.Repository
	ingestor  *ingest.Pipeline
	answerer  *qa.Answerer
	service   *qa.Service
}

func (p *pipeline) Close() {
	if p.store != nil {
		_ = p.store.Close()
	}
}

func buildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	providers, err := llmutil.Build(cfg)
	if err != nil {
		return nil, err
	}
	if providers.Completion == nil {
		return nil, fmt.Errorf("an LLM provider is required (set DOCQA_LLM_PROVIDER)")
	}
	if providers.Embedding == nil {
		return nil, fmt.Errorf("an embedding provider is required (set DOCQA_EMBEDDING_PROVIDER)")
	}

	store, err := vectorutil.Open(ctx, vector.Config{
		Driver:         cfg.Vector.Driver,
		FallbackDriver: cfg.Vector.FallbackDriver,
		URL:            cfg.Vector.URL,
		APIKey:         cfg.Vector.APIKey,
		Collection:     cfg.Vector.Collection,
		Dimension:      cfg.Vector.Dimension,
		PostgresDSN:    cfg.Vector.PostgresDSN,
		BatchSize:      cfg.Pipeline.BatchSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	ingestor, err := ingest.New(ingest.Config{
		Fetcher:      document.NewFetcher(cfg.Pipeline.FetchTimeout),
		Extractor:    document.NewExtractor(),
		Chunker:      document.NewChunker(cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap),
		Embedder:     providers.Embedding,
		Store:        store,
		ExistsPolicy: ingest.ExistsPolicy(cfg.Vector.ExistsPolicy),
		Logger:       logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	answerer, err := qa.NewAnswerer(qa.AnswererConfig{
		Provider: providers.Completion,
		Embedder: providers.Embedding,
		Store:    store,
		Model:    cfg.LLM.Model,
		TopK:     cfg.Pipeline.TopK,
		Logger:   logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	service, err := qa.NewService(qa.ServiceConfig{
		Ingestor:    ingestor,
		Answerer:    answerer,
		Concurrency: cfg.QA.Concurrency,
		Logger:      logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &pipeline{
		providers: providers,
		store:     store,
		ingestor:  ingestor,
		answerer:  answerer,
		service:   service,
	}, nil
}

func runServe(configPath, addrOverride string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)
	ctx := context.Background()

	var tracerShutdown func(context.Context) error
	if cfg.Observability.TracingEnabled {
		tcfg := observability.DefaultTracingConfig()
		tcfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
		tcfg.SampleRate = cfg.Observability.SampleRate
		tp, err := observability.InitTracing(ctx, tcfg)
		if err != nil {
			logger.Warn("tracing init failed", "error", err)
		} else {
			tracerShutdown = tp.Shutdown
		}
	}

	if cfg.Observability.AuditLog != "" {
		err := observability.InitGlobalAuditLogger(&observability.AuditConfig{
			Enabled:    true,
			OutputPath: cfg.Observability.AuditLog,
		})
		if err != nil {
			logger.Warn("audit log init failed", "error", err)
		}
	}

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}

	health := server.NewHealthRegistry()
	health.RegisterCheck("vector_store", server.VectorHealthChecker(p.store))
	health.RegisterCheck("llm", server.LLMHealthChecker(p.providers.Completion))

	srv := server.New(p.service, health, server.Config{
		APIKey: cfg.Server.APIKey,
		Logger: logger,
	})

	shutdown := server.NewShutdownHandler(30*time.Second, logger)
	shutdown.RegisterHook(server.HTTPServerShutdownHook(srv))
	if tracerShutdown != nil {
		shutdown.RegisterHook(server.TracingShutdownHook(tracerShutdown))
	}
	shutdown.RegisterHook(server.VectorStoreShutdownHook(p.store))
	shutdown.RegisterHook(server.AuditLoggerShutdownHook(observability.Audit()))
	shutdown.Start()

	addr := cfg.Server.Addr()
	if addrOverride != "" {
		addr = addrOverride
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdown.Shutdown()
			shutdown.Wait()
			return fmt.Errorf("server: %w", err)
		}
	case <-shutdown.ShutdownCh():
	}

	shutdown.Wait()
	logger.Info("shutdown complete")
	return nil
}

func runIngest(configPath, url string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)
	ctx := context.Background()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	fmt.Printf("Indexing %s\n", url)
	start := time.Now()
	docID, err := p.ingestor.Ingest(ctx, url)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	fmt.Printf("Indexed document %s in %v\n", docID, time.Since(start).Round(time.Millisecond))
	return nil
}

func runAsk(configPath, url string, questions []string, jsonOut bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)
	ctx := context.Background()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	answers, err := p.service.Run(ctx, url, questions)
	if err != nil {
		return err
	}

	if jsonOut {
		data, err := json.MarshalIndent(map[string][]string{"answers": answers}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	for i, q := range questions {
		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("Q: %s\n", q)
		fmt.Printf("A: %s\n", answers[i])
	}
	return nil
}

func runChat(configPath, url, transcriptPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// The TUI owns the terminal, so pipeline logs are discarded.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	session := tui.NewChatSession(url)
	final, err := tui.RunChat(session, p.ingestor, p.answerer)
	if err != nil {
		return err
	}

	if transcriptPath != "" && len(final.Messages) > 0 {
		if err := tui.SaveTranscript(final, transcriptPath); err != nil {
			return err
		}
		fmt.Printf("Transcript written to %s\n", transcriptPath)
	}
	return nil
}

func runValidate(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	resolveSecrets(context.Background(), cfg)

	warnings := cfg.Validate()
	if len(warnings) > 0 {
		fmt.Printf("%d warning(s):\n", len(warnings))
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	} else {
		fmt.Println("Configuration OK")
	}

	fmt.Printf("  server:    %s\n", cfg.Server.Addr())
	fmt.Printf("  llm:       %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Printf("  embedding: %s (%s)\n", cfg.Embedding.Provider, cfg.Embedding.Model)
	fmt.Printf("  vector:    %s (collection %s, dim %d)\n", cfg.Vector.Driver, cfg.Vector.Collection, cfg.Vector.Dimension)
	fmt.Printf("  pipeline:  chunk %d/%d, top_k %d\n", cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap, cfg.Pipeline.TopK)
	return nil
}
