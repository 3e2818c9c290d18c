package container

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	database "github.com/FACorreiaa/go-ohms-auth/app/db"
	"github.com/FACorreiaa/go-ohms-auth/config"
	"github.com/FACorreiaa/go-ohms-auth/internal/api/admin"
	"github.com/FACorreiaa/go-ohms-auth/internal/api/auth"
	"github.com/FACorreiaa/go-ohms-auth/internal/api/records"
	"github.com/FACorreiaa/go-ohms-auth/internal/mailer"
	"github.com/FACorreiaa/go-ohms-auth/internal/router"
)

// Container holds all application dependencies
type Container struct {
	Config         *config.Config
	Logger         *slog.Logger
	Pool           *pgxpool.Pool
	Mailer         *mailer.AsyncNotifier
	AuthService    *auth.AuthServiceImpl
	AuthHandler    *auth.HandlerImpl
	AdminHandler   *admin.HandlerImpl
	RecordsHandler *records.HandlerImpl
}

// NewContainer initializes and returns a new dependency container
func NewContainer(cfg *config.Config, logger *slog.Logger) (*Container, error) {
	dbConfig, err := database.NewDatabaseConfig(cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		return nil, err
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		return nil, err
	}

	c := Build(cfg, pool, logger)
	c.Pool = pool
	return c, nil
}

// Build wires repositories, services and handlers on top of an existing pool.
func Build(cfg *config.Config, pool database.Pool, logger *slog.Logger) *Container {
	var transport mailer.EmailNotifier
	if cfg.Mail.Enabled {
		transport = mailer.NewSMTPNotifier(cfg.Mail, logger)
	} else {
		logger.Warn("SMTP disabled, reset emails will only be logged")
		transport = mailer.NewLogNotifier(logger)
	}
	notifier := mailer.NewAsyncNotifier(transport, cfg.Mail.Workers, cfg.Mail.Queue, logger)

	// Repositories
	authRepo := auth.NewPostgresAuthRepo(pool, logger)
	integrityRepo := records.NewPostgresIntegrityRepo(pool, logger)
	adminRepo := admin.NewPostgresAdminRepo(pool, logger)

	// Services
	creds := auth.NewCredentialStore(cfg.Auth.BcryptCost, cfg.Auth.HashWorkers, logger)
	authService := auth.NewAuthService(authRepo, creds, notifier, cfg.Auth, cfg.Server.PublicURL, logger)
	recordsService := records.NewRecordsService(integrityRepo, logger)
	adminService := admin.NewAdminService(adminRepo, recordsService, logger)

	return &Container{
		Config:         cfg,
		Logger:         logger,
		Mailer:         notifier,
		AuthService:    authService,
		AuthHandler:    auth.NewHandlerImpl(authService, cfg.Auth, logger),
		AdminHandler:   admin.NewHandlerImpl(adminService, logger),
		RecordsHandler: records.NewHandlerImpl(recordsService, logger),
	}
}

// Router returns the application routes with session resolution applied.
func (c *Container) Router() http.Handler {
	return router.SetupRouter(&router.Config{
		AuthHandler:    c.AuthHandler,
		AdminHandler:   c.AdminHandler,
		RecordsHandler: c.RecordsHandler,
		Authenticate:   auth.Authenticate(c.AuthService, c.Config.Auth, c.Logger),
		AllowedOrigins: c.Config.Server.AllowedOrigins,
		RateLimit:      c.Config.Auth.RateLimit,
		RateWindow:     c.Config.Auth.RateWindow,
		Logger:         c.Logger,
	})
}

// Close releases all resources held by the container. Pending reset tokens
// are issued and queued mail is delivered before the pool closes.
func (c *Container) Close() {
	if c.AuthService != nil {
		c.AuthService.WaitPendingResets()
	}
	if c.Mailer != nil {
		c.Mailer.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// WaitForDB waits for the database to be ready
func (c *Container) WaitForDB(ctx context.Context) bool {
	maxWait := time.Duration(c.Config.Repositories.Postgres.MaxConWaitingTime) * time.Second
	return database.WaitForDB(ctx, c.Pool, maxWait, c.Logger)
}
