package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/formflow/internal/application/dispatcher"
	"github.com/garyjia/formflow/internal/application/port"
	"github.com/garyjia/formflow/internal/application/service"
	"github.com/garyjia/formflow/internal/application/workflow"
	"github.com/garyjia/formflow/internal/domain/event"
	"github.com/garyjia/formflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/formflow/internal/infrastructure/persistence/sqlite"
	httpapi "github.com/garyjia/formflow/internal/interfaces/http"
	"github.com/garyjia/formflow/pkg/database"
	"github.com/garyjia/formflow/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the database and runs pending migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(conn, logger)
	if err := migrator.RunMigrations(database.MigrationsFS(cfg.MigrationsDir)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories on top of the transaction manager.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Template:   repository.NewTemplateRepository(db, logger),
		Definition: repository.NewDefinitionRepository(db, logger),
		Submission: repository.NewSubmissionRepository(db, logger),
		Approval:   repository.NewApprovalRepository(db, logger),
		Audit:      repository.NewAuditRepository(db, logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher and subscribes the
// event log handler to every event type.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	d := dispatcher.NewDispatcher(dispatcher.WithLogger(utils.SugarAdapter{Logger: logger}))
	d.SubscribeAll("event-log", eventLogHandler(logger.Named("events")))
	return d, nil
}

// eventLogHandler writes every domain event as a structured log line
func eventLogHandler(logger *zap.Logger) dispatcher.Handler {
	return func(_ context.Context, evt *event.Event) error {
		logger.Info("Domain event",
			zap.String("event_id", evt.ID),
			zap.String("type", evt.Type.String()),
			zap.Int64("submission_id", evt.SubmissionID),
			zap.String("correlation_id", evt.CorrelationID),
			zap.Any("payload", evt.Payload),
		)
		return nil
	}
}

// WorkflowDeps holds dependencies for the transition engine and query.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideWorkflow creates the transition engine and the read-side query.
func ProvideWorkflow(deps *WorkflowDeps) (workflow.Engine, workflow.Query, error) {
	if deps == nil || deps.Repos == nil || deps.TxManager == nil {
		return nil, nil, fmt.Errorf("repositories and transaction manager are required")
	}
	if deps.Logger == nil {
		return nil, nil, fmt.Errorf("logger is required")
	}

	engine := workflow.NewEngine(
		deps.Repos.Submission,
		deps.Repos.Definition,
		deps.Repos.Approval,
		deps.Repos.Audit,
		deps.TxManager,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(utils.SugarAdapter{Logger: deps.Logger.Named("engine")}),
	)
	query := workflow.NewQuery(deps.Repos.Submission, deps.Repos.Definition, deps.Repos.Approval)

	return engine, query, nil
}

// ServiceDeps holds dependencies for application services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil || deps.TxManager == nil {
		return nil, fmt.Errorf("repositories and transaction manager are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	r := deps.Repos
	logger := utils.SugarAdapter{Logger: deps.Logger.Named("service")}

	return &ServiceBundle{
		Template:   service.NewTemplateService(r.Template, deps.TxManager, logger),
		Definition: service.NewDefinitionService(r.Template, r.Definition, deps.TxManager, logger),
		Submission: service.NewSubmissionService(r.Template, r.Definition, r.Submission, r.Audit,
			deps.TxManager, deps.Dispatcher, logger),
		Export: service.NewExportService(r.Template, r.Submission, r.Audit, logger),
	}, nil
}

// ProvideTokenVerifier builds the bearer token verifier from auth settings.
func ProvideTokenVerifier(cfg *AuthConfig) (*httpapi.TokenVerifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("auth config is required")
	}

	authCfg := httpapi.AuthConfig{
		Issuer:    cfg.Issuer,
		Audience:  cfg.Audience,
		AdminRole: cfg.AdminRole,
	}
	if cfg.PublicKeyPath != "" {
		key, err := httpapi.LoadPublicKey(cfg.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		authCfg.PublicKey = key
	} else {
		authCfg.Secret = []byte(cfg.JWTSecret)
	}

	return httpapi.NewTokenVerifier(authCfg)
}
