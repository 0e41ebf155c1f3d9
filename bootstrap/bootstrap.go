// Package bootstrap wires all dependencies and starts the application.
// Configuration comes from an optional YAML file plus ACTIONKIT_*
// environment overrides.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artpar/actionkit/adapters/auth"
	"github.com/artpar/actionkit/adapters/clock"
	"github.com/artpar/actionkit/adapters/hasher"
	apihttp "github.com/artpar/actionkit/adapters/http"
	"github.com/artpar/actionkit/adapters/idgen"
	"github.com/artpar/actionkit/adapters/memory"
	"github.com/artpar/actionkit/adapters/metrics"
	"github.com/artpar/actionkit/adapters/throttle"
	"github.com/artpar/actionkit/app"
	"github.com/artpar/actionkit/config"
	"github.com/artpar/actionkit/core/action"
	"github.com/artpar/actionkit/core/formatter"
	"github.com/artpar/actionkit/core/registry"
	"github.com/artpar/actionkit/domain/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// sweepInterval is how often expired throttle windows are dropped.
const sweepInterval = time.Minute

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string
	Commit  string
}

// Options configure New.
type Options struct {
	// ConfigPath is the YAML file to load. Empty means environment only.
	ConfigPath string
	Build      BuildInfo
	// LogOutput receives log lines. Defaults to os.Stdout.
	LogOutput io.Writer
	// Clock drives tokens and throttling. Defaults to the real clock.
	Clock clock.Clock
}

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder
	Registry   *registry.Registry
	Executor   *action.Executor
	Router     http.Handler
	HTTPServer *http.Server
	Metrics    *metrics.Collector
	Tokens     *auth.TokenService

	// Gatherer exposes the application's metrics registry.
	Gatherer prometheus.Gatherer

	clock         clock.Clock
	throttleStore *throttle.MemoryStore
	notes         *memory.NoteStore
}

// New creates and initializes the application.
func New(opts Options) (*App, error) {
	initial, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stdout
	}
	logger := NewLogger(initial.Logging, opts.LogOutput)

	holder, err := config.NewHolder(opts.ConfigPath, logger)
	if err != nil {
		return nil, err
	}
	cfg := holder.Get()

	logger.Info().
		Str("version", opts.Build.Version).
		Str("config", holder.Path()).
		Msg("initializing actionkit")

	a := &App{
		Logger:        logger,
		Config:        holder,
		clock:         clock.OrReal(opts.Clock),
		throttleStore: throttle.NewMemoryStore(0),
		notes:         memory.NewNoteStore(),
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Gatherer = promRegistry
	if cfg.Metrics.Enabled {
		a.Metrics = metrics.NewWithRegistry(promRegistry)
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	holder.OnChange(a.applyReload)
	if a.Metrics != nil {
		holder.ObserveReloads(a.Metrics.ConfigReloaded)
	}

	if err := a.initPipeline(cfg); err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}
	if err := a.initHTTPServer(cfg, opts.Build); err != nil {
		return nil, fmt.Errorf("init http server: %w", err)
	}
	return a, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

// initPipeline builds the formatters, the global filters, the registry
// with the application views and the executor.
func (a *App) initPipeline(cfg *config.Config) error {
	parsers, err := formatter.Parsers(cfg.Negotiation.Parsers...)
	if err != nil {
		return fmt.Errorf("negotiation.parsers: %w", err)
	}
	renderers, err := formatter.Renderers(cfg.Negotiation.Renderers...)
	if err != nil {
		return fmt.Errorf("negotiation.renderers: %w", err)
	}

	if cfg.Auth.JWT.Secret == "" {
		a.Logger.Warn().Msg("auth.jwt.secret not set; issued tokens will not survive a restart")
	}
	a.Tokens = auth.NewTokenService(auth.TokenConfig{
		Secret:     cfg.Auth.JWT.Secret,
		Issuer:     cfg.Auth.JWT.Issuer,
		Expiration: cfg.Auth.JWT.Expiration,
		Clock:      a.clock,
	})

	users := make(map[string]auth.User, len(cfg.Auth.Users))
	for name, u := range cfg.Auth.Users {
		users[name] = auth.User{PasswordHash: u.PasswordHash, Roles: u.Roles}
	}

	global := []action.Filter{
		auth.JWTFilter(a.Tokens, cfg.Auth.Realm),
		auth.BasicFilter(cfg.Auth.Realm, users, hasher.NewBcrypt(0)),
	}
	if cfg.Throttle.Enabled {
		opts := throttle.Options{
			Rate:       cfg.Throttle.Rate(),
			RateSource: a.throttleRate,
			Store:      a.throttleStore,
			Clock:      a.clock,
		}
		if a.Metrics != nil {
			opts.OnReject = a.Metrics.ThrottleRejected
		}
		f, err := throttle.Filter(opts)
		if err != nil {
			return fmt.Errorf("throttle: %w", err)
		}
		global = append(global, f)
		a.Logger.Info().
			Int("limit", cfg.Throttle.Limit).
			Dur("window", cfg.Throttle.Window).
			Int("burst", cfg.Throttle.Burst).
			Msg("throttling enabled")
	}

	a.Registry = registry.New(global...)
	views := []registry.View{
		app.NewNotesService(a.notes, idgen.UUID{}, a.clock, cfg.Auth.Realm).View(),
		app.NewTokenEndpoints(a.Tokens, cfg.Auth.Realm).View(),
	}
	for _, v := range views {
		if err := a.Registry.Register(v); err != nil {
			return fmt.Errorf("register view %s: %w", v.Name, err)
		}
	}

	settings := action.Settings{
		Parsers:   parsers,
		Renderers: renderers,
		Debug:     cfg.Debug,
		Logger:    a.Logger,
	}
	if a.Metrics != nil {
		settings.Observer = a.Metrics
	}
	a.Executor, err = action.NewExecutor(settings)
	return err
}

func (a *App) initHTTPServer(cfg *config.Config, build BuildInfo) error {
	router, err := apihttp.NewRouter(apihttp.RouterConfig{
		Registry: a.Registry,
		Executor: a.Executor,
		Health: apihttp.NewHealthHandler(map[string]apihttp.HealthChecker{
			"config": a.Config,
			"notes":  a.notes,
		}),
		Version:     apihttp.VersionResponse{Version: build.Version, Commit: build.Commit},
		Metrics:     a.Metrics,
		MetricsPath: cfg.Metrics.Path,
		Gatherer:    a.Gatherer,
		Timeout:     cfg.Server.RequestTimeout,
	}, a.Logger)
	if err != nil {
		return err
	}
	a.Router = router

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return nil
}

// throttleRate reads the current rate so reloads apply without a restart.
func (a *App) throttleRate() ratelimit.Config {
	return a.Config.Get().Throttle.Rate()
}

// applyReload applies the reloadable settings of a new configuration.
func (a *App) applyReload(cfg *config.Config) {
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	a.Logger.Info().
		Str("log_level", cfg.Logging.Level).
		Int("throttle_limit", cfg.Throttle.Limit).
		Msg("configuration applied")
}

// Run starts the HTTP server and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the HTTP server and blocks until ctx is done or the
// server fails, then shuts down gracefully.
func (a *App) RunContext(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.HTTPServer.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is RunContext on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	bgCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.Config.Path() != "" {
		if err := a.Config.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watching disabled")
		}
	}
	a.Config.WatchSignals()
	go a.throttleStore.RunSweeper(bgCtx, sweepInterval, a.clock)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", ln.Addr().String()).
			Msg("starting http server")
		if err := a.HTTPServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.Config.Stop()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		a.Logger.Info().Msg("shutting down")
	}
	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Get().Server.ShutdownTimeout)
	defer cancel()

	a.Config.Stop()

	var err error
	if a.HTTPServer != nil {
		if err = a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return err
}

// NewLogger builds the application logger and sets the global level.
func NewLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}
