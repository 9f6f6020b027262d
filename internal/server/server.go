// Package server exposes the document QA pipeline over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hackrx/docqa/internal/ingest"
	"github.com/hackrx/docqa/internal/observability"
)

// RunRequest is the body of POST /hackrx/run: one document URL and the
// questions to answer against it.
type RunRequest struct {
	Documents string   `json:"documents"`
	Questions []string `json:"questions"`
}

// RunResponse carries one answer per question, in question order.
type RunResponse struct {
	Answers []string `json:"answers"`
}

// Runner executes the full ingest-and-answer flow for one request.
type Runner interface {
	Run(ctx context.Context, url string, questions []string) ([]string, error)
}

// Config carries the server's own settings. Pipeline configuration
// lives with the collaborators behind Runner.
type Config struct {
	APIKey  string
	Metrics *observability.ServiceMetrics
	Logger  *slog.Logger
}

// Server is the HTTP front door: bearer-authenticated QA runs plus
// unauthenticated root, health and metrics endpoints.
type Server struct {
	echo    *echo.Echo
	runner  Runner
	health  *HealthRegistry
	apiKey  string
	metrics *observability.ServiceMetrics
	logger  *slog.Logger
}

func New(runner Runner, health *HealthRegistry, cfg Config) *Server {
	if health == nil {
		health = NewHealthRegistry()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.Metrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		runner:  runner,
		health:  health,
		apiKey:  cfg.APIKey,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}

	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"*"},
	}))
	e.Use(s.requestMetrics)

	e.GET("/", s.handleRoot)
	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	e.POST("/hackrx/run", s.handleRun, s.requireBearer)

	return s
}

// Start listens on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "HackRx Document QA API is running",
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	healthy, results := s.health.Run(c.Request().Context())
	if healthy {
		return c.JSON(http.StatusOK, HealthResponse{
			Status:  "healthy",
			Service: ServiceName,
		})
	}
	return c.JSON(http.StatusServiceUnavailable, HealthResponse{
		Status:  "unhealthy",
		Service: ServiceName,
		Checks:  results,
	})
}

func (s *Server) handleRun(c echo.Context) error {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Documents) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "documents URL is required")
	}
	if len(req.Questions) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one question is required")
	}

	requestID := uuid.NewString()
	ctx := observability.WithRequestID(c.Request().Context(), requestID)
	docID := ingest.DocumentID(req.Documents)
	start := time.Now()

	s.logger.Info("run started",
		"request_id", requestID,
		"document_id", docID,
		"questions", len(req.Questions))
	observability.Audit().LogRunStart(ctx, requestID, docID, len(req.Questions))

	answers, err := s.runner.Run(ctx, req.Documents, req.Questions)
	if err != nil {
		observability.Audit().LogRunEnd(ctx, requestID, docID, false, time.Since(start), 0)
		return echo.NewHTTPError(http.StatusInternalServerError,
			fmt.Sprintf("Error processing request: %v", err))
	}

	s.logger.Info("run finished",
		"request_id", requestID,
		"document_id", docID,
		"answers", len(answers),
		"duration", time.Since(start))
	observability.Audit().LogRunEnd(ctx, requestID, docID, true, time.Since(start), len(answers))

	return c.JSON(http.StatusOK, RunResponse{Answers: answers})
}

// requireBearer rejects requests whose Authorization header does not
// carry the configured API key. Failed requests never reach the
// pipeline.
func (s *Server) requireBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.apiKey)) != 1 {
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authentication credentials")
		}
		return next(c)
	}
}

// bearerToken extracts the credential from an Authorization header.
// The scheme match is case-insensitive.
func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

// requestMetrics records request counts and latency per route. Errors
// are resolved into a response here so the recorded status is final.
func (s *Server) requestMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		path := c.Path()
		if path == "" {
			path = c.Request().URL.Path
		}
		s.metrics.RecordHTTPRequest(path, c.Request().Method, c.Response().Status, time.Since(start))
		return nil
	}
}

// errorHandler renders every error as {"detail": ...}, matching the
// error shape of the rest of the API.
func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	detail := "Internal Server Error"

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		detail = fmt.Sprint(he.Message)
	}

	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"status", code,
			"error", err)
	}

	if c.Response().Committed {
		return
	}
	if jsonErr := c.JSON(code, map[string]string{"detail": detail}); jsonErr != nil {
		s.logger.Error("error response write failed", "error", jsonErr)
	}
}
