package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/maidrobe/internal/auth/http"
	"github.com/aussiebroadwan/maidrobe/internal/auth/service"
	"github.com/aussiebroadwan/maidrobe/internal/auth/store"
	"github.com/aussiebroadwan/maidrobe/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/maidrobe/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/maidrobe/internal/auth/telemetry"
	"github.com/aussiebroadwan/maidrobe/pkg/authsdk"
	"github.com/aussiebroadwan/maidrobe/pkg/cryptox"
	"github.com/aussiebroadwan/maidrobe/pkg/slogx"
	"github.com/jonboulle/clockwork"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// BuildVersion should be set at build time via ldflags.
var BuildVersion = "v0.1.0"

const serviceName = "maidrobe-auth"

// Options overrides parts of the wiring. The zero value is production.
type Options struct {
	Clock     clockwork.Clock
	Navigator service.Navigator // Default logs that the login screen is required
	LogOutput io.Writer         // Default stdout
}

// Application encapsulates the auth core with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger
	clock  clockwork.Clock

	// Core dependencies
	db           store.Store
	backend      *authsdk.SDKClient
	metrics      *telemetry.Metrics
	otelProvider *sdklog.LoggerProvider
	emitter      telemetry.Emitter

	// Services
	State         *service.SessionState
	Persistence   *service.SessionPersistence
	Limiter       *service.AttemptLimiter
	Refresh       *service.RefreshManager
	Monitor       *service.ConnectivityMonitor
	Login         *service.LoginService
	Logout        *service.LogoutService
	PasswordReset *service.PasswordResetService
	Verification  *service.VerificationService

	// Status server, nil unless METRICS_ADDR is set
	server *http.Server
	router *httpapi.Router

	started bool
}

// New creates an Application with every dependency initialised.
func New(cfg Config, opts Options) (*Application, error) {
	logCfg := slogx.Config{
		Service: serviceName,
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	}
	if opts.LogOutput != nil {
		logCfg.Output = opts.LogOutput
	}

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	app := &Application{
		cfg:    cfg,
		logger: slogx.New(logCfg),
		clock:  clock,
	}

	ctx := context.Background()

	if err := app.initStore(ctx); err != nil {
		return nil, err
	}

	if err := app.initTelemetry(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices(opts.Navigator)
	app.initHTTP()

	return app, nil
}

// Config returns the configuration the application was built with.
func (app *Application) Config() Config { return app.cfg }

// Logger returns the application logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Metrics returns the metrics emitter.
func (app *Application) Metrics() *telemetry.Metrics { return app.metrics }

// Restore hydrates the session state from the stored bundle. It reports
// whether a session was found.
func (app *Application) Restore(ctx context.Context) bool {
	_, ok := app.Persistence.Restore(ctx, app.State)
	return ok
}

// VerifySession asks the Auth API who the stored access token belongs to.
// The token comes from the refresh manager's token source, so an expired
// token is refreshed first.
func (app *Application) VerifySession(ctx context.Context) (*authsdk.User, error) {
	return app.backend.WithTokenSource(app.Refresh.TokenSource()).GetUser(ctx)
}

// Start begins connectivity probing and proactive refresh.
func (app *Application) Start(ctx context.Context) {
	if app.started {
		return
	}
	app.started = true
	app.Monitor.Start()
	app.Refresh.Start(ctx)
}

// Run starts the background workers and the status server (if configured)
// and blocks until a shutdown signal or a server failure.
func (app *Application) Run() error {
	ctx := context.Background()
	app.Restore(ctx)
	app.Start(ctx)

	app.logger.Info("auth core starting",
		"version", BuildVersion,
		"store", app.cfg.StoreDriver,
		"status_addr", app.cfg.MetricsAddr,
	)

	serverErrors := make(chan error, 1)
	if app.server != nil {
		go func() {
			serverErrors <- app.server.ListenAndServe()
		}()
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("status server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
	}

	if err := app.Shutdown(); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// Shutdown stops the workers, flushes telemetry and closes the store. It is
// safe to call on an application that was never started.
func (app *Application) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if app.server != nil {
		if err := app.server.Shutdown(ctx); err != nil {
			app.logger.Error("graceful server shutdown failed", "error", err)
			if err := app.server.Close(); err != nil {
				app.logger.Error("error closing server", "error", err)
			}
		}
	}

	if app.started {
		app.Refresh.Stop()
		app.Monitor.Stop()
		app.started = false
	}

	drainCtx, drainCancel := context.WithTimeout(ctx, telemetry.ShutdownDrainDuration)
	if err := telemetry.Drain(drainCtx); err != nil {
		app.logger.Warn("telemetry drain incomplete", "error", err)
	}
	drainCancel()

	if app.otelProvider != nil {
		if err := app.otelProvider.Shutdown(ctx); err != nil {
			app.logger.Warn("otel provider shutdown failed", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Debug("auth core stopped")
	return nil
}

// initStore opens the device store. With the sqlite driver secure items are
// sealed with a key derived from the device secret; the memory driver never
// leaves the process and is used as is.
func (app *Application) initStore(ctx context.Context) error {
	if app.cfg.StoreDriver == StoreDriverMemory {
		app.db = memory.NewStore()
		app.logger.Warn("using in-memory store; sessions will not survive a restart")
		return nil
	}

	if err := os.MkdirAll(app.cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", app.cfg.DatabaseFile())
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.logger.Debug("database migrations applied successfully")

	secret, err := cryptox.LoadOrCreateDeviceSecret(app.cfg.DeviceKeyFile)
	if err != nil {
		_ = db.Close()
		return err
	}
	salt, err := store.LoadOrCreateSalt(ctx, db, cryptox.NewSalt)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to load device salt: %w", err)
	}
	sealer, err := cryptox.NewSealer(secret, salt)
	if err != nil {
		_ = db.Close()
		return err
	}

	app.db = &sealedStore{Store: db, secure: store.NewSealedKV(db.SecureItems(), sealer)}
	return nil
}

// sealedStore serves secure items through the sealing wrapper.
type sealedStore struct {
	store.Store
	secure store.KV
}

func (s *sealedStore) SecureItems() store.KV { return s.secure }

// initTelemetry builds the event fan-out: console log and metrics always,
// OTLP forwarding when enabled.
func (app *Application) initTelemetry(ctx context.Context) error {
	app.metrics = telemetry.NewMetrics()
	sinks := []telemetry.Emitter{
		telemetry.NewSlogEmitter(app.logger),
		app.metrics,
	}

	if app.cfg.TelemetryEnabled {
		provider, err := telemetry.NewLoggerProvider(ctx, app.cfg.OTLPEndpoint, serviceName, app.cfg.OTLPInsecure)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		app.otelProvider = provider
		sinks = append(sinks, telemetry.NewOTelEmitter(provider, app.cfg.TelemetryRate, app.cfg.TelemetryBurst))
		app.logger.Info("telemetry forwarding enabled", "endpoint", app.cfg.OTLPEndpoint)
	}

	app.emitter = telemetry.Fanout(sinks...)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices(navigator service.Navigator) {
	app.backend = authsdk.NewSDKClient(app.cfg.SupabaseURL, app.cfg.SupabaseAnonKey)
	app.backend.HTTPClient.Timeout = app.cfg.RequestTimeout

	if navigator == nil {
		navigator = service.NavigatorFunc(func(reason string) {
			app.logger.Info("login required", "reason", reason)
		})
	}

	app.State = service.NewSessionState()
	app.Persistence = &service.SessionPersistence{
		Store:   app.db.SecureItems(),
		Emitter: app.emitter,
		Logger:  app.logger,
		Clock:   app.clock,
	}
	app.Limiter = &service.AttemptLimiter{
		Store:  app.db.LocalItems(),
		Clock:  app.clock,
		Logger: app.logger,
	}

	app.Monitor = service.NewConnectivityMonitor(app.backend, app.cfg.ConnectivityProbeInterval)
	app.Monitor.Emitter = app.emitter
	app.Monitor.Logger = app.logger
	app.Monitor.Clock = app.clock

	app.Refresh = &service.RefreshManager{
		Backend:      app.backend,
		State:        app.State,
		Persistence:  app.Persistence,
		Connectivity: app.Monitor,
		Navigator:    navigator,
		Emitter:      app.emitter,
		Logger:       app.logger,
		Clock:        app.clock,
	}

	app.Login = &service.LoginService{
		Backend:     app.backend,
		Limiter:     app.Limiter,
		State:       app.State,
		Persistence: app.Persistence,
		Emitter:     app.emitter,
		Logger:      app.logger,
		Clock:       app.clock,
	}
	app.Logout = &service.LogoutService{
		Backend:     app.backend,
		State:       app.State,
		Persistence: app.Persistence,
		Navigator:   navigator,
		Emitter:     app.emitter,
		Logger:      app.logger,
		Clock:       app.clock,
	}
	app.PasswordReset = &service.PasswordResetService{
		Backend:     app.backend,
		Limiter:     app.Limiter,
		Emitter:     app.emitter,
		Logger:      app.logger,
		Clock:       app.clock,
		RedirectURL: app.cfg.PasswordResetRedirectURL,
	}
	app.Verification = &service.VerificationService{
		Backend:     app.backend,
		Emitter:     app.emitter,
		Logger:      app.logger,
		Clock:       app.clock,
		RedirectURL: app.cfg.EmailRedirectURL,
	}
}

// initHTTP initializes the status router and server when an address is set.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)
	router.State = app.State
	router.Scheduler = app.Refresh
	router.Connectivity = app.Monitor
	router.Metrics = app.metrics.Handler()
	router.Clock = app.clock
	router.ApplyRoutes()

	app.router = router

	if app.cfg.MetricsAddr == "" {
		return
	}
	app.server = &http.Server{
		Addr:              app.cfg.MetricsAddr,
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Handler returns the status router. It is built even when no server is
// configured so it can be served in tests.
func (app *Application) Handler() http.Handler { return app.router }
