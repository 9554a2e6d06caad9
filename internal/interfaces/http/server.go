// Package http exposes the form workflow over a JSON API.
// It translates requests into application service calls and nothing more.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/formflow/internal/domain/event"
)

const requestIDHeader = "X-Request-ID"

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	verifier   *TokenVerifier
	adminRole  string
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, svc Services, verifier *TokenVerifier, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	adminRole := verifier.cfg.AdminRole
	if adminRole == "" {
		adminRole = "Admin"
	}

	server := &Server{
		config:    config,
		router:    gin.New(),
		handlers:  NewHandlers(svc, logger),
		verifier:  verifier,
		adminRole: adminRole,
		logger:    logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(s.recoveryHandler))
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

// requestIDMiddleware tags each request with an id that also becomes the
// correlation id of events emitted while serving it
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(event.WithCorrelationID(c.Request.Context(), id))
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"request_id", event.CorrelationID(c.Request.Context()),
			"actor_id", actorFrom(c).ID,
		)
	}
}

func (s *Server) recoveryHandler(c *gin.Context, recovered interface{}) {
	s.logger.Error("Panic while serving request", "panic", fmt.Sprint(recovered), "path", c.Request.URL.Path)
	c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
		Success: false,
		Error:   "internal server error",
	})
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := s.handlers
	admin := requireRole(s.adminRole)

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api")
	api.Use(authMiddleware(s.verifier))
	{
		// Templates
		api.GET("/templates", h.ListTemplates)
		api.POST("/template", admin, h.CreateTemplate)
		api.PUT("/templates/:id", admin, h.UpdateTemplate)

		// Workflow definitions
		api.GET("/workflows", h.ListWorkflows)
		api.POST("/workflow", admin, h.CreateWorkflow)
		api.PUT("/workflows/:id", admin, h.UpdateWorkflow)

		// Submissions
		api.POST("/submit-form", h.SubmitForm)
		api.GET("/my-submissions", h.MySubmissions)
		api.GET("/submissions/export", admin, h.ExportSubmissions)
		api.GET("/submissions/:id", h.GetSubmission)
		api.GET("/submissions/:id/history", h.SubmissionHistory)

		// Transitions
		api.GET("/pending-approvals", h.PendingApprovals)
		api.GET("/transitions/:submission_id", h.AvailableTransitions)
		api.POST("/transition", h.RequestTransition)
	}
}

// Start serves until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
