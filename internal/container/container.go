package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/formflow/internal/application/dispatcher"
	"github.com/garyjia/formflow/internal/application/port"
	"github.com/garyjia/formflow/internal/application/service"
	"github.com/garyjia/formflow/internal/application/workflow"
	"github.com/garyjia/formflow/internal/infrastructure/persistence/sqlite"
	httpapi "github.com/garyjia/formflow/internal/interfaces/http"
	"github.com/garyjia/formflow/pkg/database"
	"github.com/garyjia/formflow/pkg/utils"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure
	conn         *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Application
	dispatcher dispatcher.Dispatcher
	engine     workflow.Engine
	query      workflow.Query
	services   *ServiceBundle

	// Interface
	server *httpapi.Server

	// Lifecycle
	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Template   port.TemplateRepository
	Definition port.DefinitionRepository
	Submission port.SubmissionRepository
	Approval   port.ApprovalRepository
	Audit      port.AuditRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Template   service.TemplateService
	Definition service.DefinitionService
	Submission service.SubmissionService
	Export     service.ExportService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// 1. Database, migrations and repositories
// 2. Event dispatcher
// 3. Transition engine and query
// 4. Application services
// 5. HTTP server
// Components built before a failing step are closed again.
func (c *Container) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	if err := c.start(); err != nil {
		c.teardown()
		return err
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

func (c *Container) start() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.conn = dbBundle.Conn
	c.db = dbBundle.TransactionMgr

	c.repositories, err = ProvideRepositories(c.db, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}
	c.logger.Info("Database initialized", zap.String("path", c.config.Database.Path))

	c.dispatcher, err = ProvideDispatcher(c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}

	c.engine, c.query, err = ProvideWorkflow(&WorkflowDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize workflow: %w", err)
	}
	c.logger.Info("Dispatcher and workflow engine initialized")

	c.services, err = ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	verifier, err := ProvideTokenVerifier(&c.config.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	srv := c.config.Server
	c.server = httpapi.NewServer(httpapi.ServerConfig{
		Host:            srv.Host,
		Port:            srv.Port,
		ReadTimeout:     srv.ReadTimeout,
		WriteTimeout:    srv.WriteTimeout,
		ShutdownTimeout: srv.ShutdownTimeout,
	}, httpapi.Services{
		Templates:   c.services.Template,
		Definitions: c.services.Definition,
		Submissions: c.services.Submission,
		Export:      c.services.Export,
		Engine:      c.engine,
		Query:       c.query,
		Health: func() (bool, interface{}) {
			h := c.Health()
			return h.Overall, h.Components
		},
	}, verifier, utils.SugarAdapter{Logger: c.logger.Named("http")})
	c.logger.Info("HTTP server initialized", zap.String("address", c.server.Address()))

	return nil
}

// Close gracefully shuts down all components in reverse order.
// The HTTP server is stopped by whoever runs it.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() []error {
	var errs []error

	// Async event handlers may still be running; let them finish before the database goes.
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
		c.dispatcher = nil
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.conn = nil
	}

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	check := func(name string, ok bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: ok, Message: msg}
		if !ok {
			status.Overall = false
		}
	}

	switch {
	case c.conn == nil:
		check("database", false, "not initialized")
	default:
		if err := c.conn.Ping(); err != nil {
			check("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			check("database", true, "")
		}
	}

	if c.dispatcher != nil {
		check("dispatcher", true, fmt.Sprintf("handlers: %d", len(c.dispatcher.ListHandlers(""))))
	} else {
		check("dispatcher", false, "not initialized")
	}

	check("repositories", c.repositories != nil, messageIf(c.repositories == nil, "not initialized"))
	check("workflow", c.engine != nil, messageIf(c.engine == nil, "not initialized"))

	return status
}

func messageIf(cond bool, msg string) string {
	if cond {
		return msg
	}
	return ""
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Engine returns the transition engine.
func (c *Container) Engine() workflow.Engine {
	return c.engine
}

// Query returns the workflow query surface.
func (c *Container) Query() workflow.Query {
	return c.query
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Server returns the HTTP server.
func (c *Container) Server() *httpapi.Server {
	return c.server
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// Run serves HTTP until ctx is cancelled.
func (c *Container) Run(ctx context.Context) error {
	if !c.ready.Load() {
		return fmt.Errorf("container is not started")
	}
	return c.server.Start(ctx)
}
