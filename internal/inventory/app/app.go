package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/assetops/stocktake/internal/inventory/http"
	"github.com/assetops/stocktake/internal/inventory/service"
	"github.com/assetops/stocktake/internal/inventory/store"
	"github.com/assetops/stocktake/internal/inventory/store/drivers/sqlite"
	"github.com/assetops/stocktake/pkg/cryptox"
	"github.com/assetops/stocktake/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the inventory service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db   store.Store
	gate *service.Gate

	sessions            *service.SessionSigner
	settingsService     *service.SettingsService
	authService         *service.AuthService
	ssoService          *service.SSOService
	totpService         *service.TOTPService
	approvalService     *service.ApprovalService
	auditService        *service.AuditService
	snapshotService     *service.SnapshotService
	bootstrapService    *service.BootstrapService
	userService         *service.UserService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "stocktake",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := app.initServices(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("inventory service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down inventory service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("inventory service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initServices(ctx context.Context) error {
	app.gate = &service.Gate{}

	app.settingsService = &service.SettingsService{
		Store: app.db,
		Gate:  app.gate,
	}
	if err := app.settingsService.Load(ctx); err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	secret := []byte(app.cfg.SessionSecret)
	if len(secret) == 0 {
		// Fine for a single instance: every restart invalidates sessions.
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("failed to generate session secret: %w", err)
		}
		app.logger.Warn("no session secret configured, using an ephemeral one")
	}
	app.sessions = &service.SessionSigner{
		Secret: secret,
		Issuer: app.cfg.SessionIssuer,
		TTL:    app.cfg.SessionTTL,
		Epoch:  app.settingsService.SessionEpoch,
	}

	app.userService = &service.UserService{Store: app.db, Gate: app.gate}
	app.authService = &service.AuthService{
		Store:    app.db,
		Settings: app.settingsService,
		Sessions: app.sessions,
		Gate:     app.gate,
	}
	app.ssoService = &service.SSOService{
		Store:           app.db,
		Settings:        app.settingsService,
		Sessions:        app.sessions,
		Gate:            app.gate,
		AssertionSecret: []byte(app.cfg.SSOAssertionSecret),
		TrustedIssuer:   app.cfg.SSOTrustedIssuer,
	}
	app.totpService = &service.TOTPService{
		Store:    app.db,
		Sessions: app.sessions,
		Gate:     app.gate,
		Issuer:   app.cfg.TOTPIssuer,
	}
	app.approvalService = &service.ApprovalService{Store: app.db, Gate: app.gate}
	app.auditService = &service.AuditService{Store: app.db}
	app.bootstrapService = &service.BootstrapService{
		Store:         app.db,
		AdminUsername: app.cfg.AdminUsername,
		AdminPassword: app.cfg.AdminPassword,
	}
	app.snapshotService = &service.SnapshotService{
		Store:     app.db,
		Gate:      app.gate,
		Settings:  app.settingsService,
		Bootstrap: app.bootstrapService,
	}

	bootCtx := slogx.WithContext(ctx, app.logger)
	if err := app.bootstrapService.EnsureAdmin(bootCtx); err != nil {
		return fmt.Errorf("failed to seed bootstrap admin: %w", err)
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)

	return nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.sessions,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.AuthService = app.authService
	router.SSOService = app.ssoService
	router.TOTPService = app.totpService
	router.ApprovalService = app.approvalService
	router.AuditService = app.auditService
	router.SnapshotService = app.snapshotService
	router.SettingsService = app.settingsService
	router.UserService = app.userService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
