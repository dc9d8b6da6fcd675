package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpapi "github.com/quorumsec/gatehouse/internal/identity/http"
	"github.com/quorumsec/gatehouse/internal/identity/service"
	"github.com/quorumsec/gatehouse/internal/identity/store"
	"github.com/quorumsec/gatehouse/internal/identity/store/drivers/sqlite"
	"github.com/quorumsec/gatehouse/pkg/cryptox"
	"github.com/quorumsec/gatehouse/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the store, services, background workers, and HTTP server
// together and owns their lifecycle.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	ticketService  *service.TicketService
	codeService    *service.CodeService
	loginService   *service.LoginService
	accountService *service.AccountService
	mfaService     *service.MFAService
	roleService    *service.RoleService
	notifyQueue    *service.NotifyQueue
	housekeeper    *service.Housekeeper

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gatehouse",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the workers and the HTTP server, then blocks until shutdown is
// requested or the server fails.
func (app *Application) Run() error {
	ctx := slogx.WithContext(context.Background(), app.logger)

	if err := app.roleService.EnsureDefaultRoles(ctx); err != nil {
		return fmt.Errorf("ensure default roles: %w", err)
	}

	app.notifyQueue.Start(ctx)
	app.housekeeper.Start(ctx)

	app.logger.Info("gatehouse starting", "port", app.cfg.Port, "version", BuildVersion)

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

// Shutdown stops the HTTP server, drains the workers, and closes the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gatehouse...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeeper.Stop()
	app.notifyQueue.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("gatehouse stopped")
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

func (app *Application) initServices() {
	app.notifyQueue = service.NewNotifyQueue(service.LogSender{}, app.cfg.NotifyQueueCapacity)

	app.ticketService = &service.TicketService{
		Store:          app.db,
		ActivityWindow: app.cfg.ActivityWindow,
	}
	app.codeService = &service.CodeService{
		Store: app.db,
		Queue: app.notifyQueue,
	}
	app.loginService = &service.LoginService{
		Store:             app.db,
		Tickets:           app.ticketService,
		Codes:             app.codeService,
		Verifier:          service.Argon2Verifier{},
		MaxFailedAttempts: app.cfg.MaxFailedAttempts,
		LockoutWindow:     app.cfg.LockoutWindow,
		SessionTTL:        app.cfg.SessionTTL,
	}
	app.accountService = &service.AccountService{
		Store:       app.db,
		Codes:       app.codeService,
		Tickets:     app.ticketService,
		Verifier:    service.Argon2Verifier{},
		Queue:       app.notifyQueue,
		TokenSecret: app.cfg.TokenSecret,
	}
	app.mfaService = &service.MFAService{
		Store:  app.db,
		Issuer: app.cfg.Issuer,
	}
	app.roleService = &service.RoleService{Store: app.db}

	app.housekeeper = service.NewHousekeeper(app.db, app.cfg.HousekeepingInterval)
}

func (app *Application) initHTTP() {
	app.router = httpapi.NewRouter(BuildVersion, app.db, app.logger)
	app.router.LoginService = app.loginService
	app.router.TicketService = app.ticketService
	app.router.AccountService = app.accountService
	app.router.MFAService = app.mfaService
	app.router.RoleService = app.roleService
	app.router.ApplyRoutes()

	app.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.cfg.Port),
		Handler: app.router,
	}
}
