// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mberezin/tubedigest/internal/config"
	"github.com/mberezin/tubedigest/internal/digest"
	digestpostgres "github.com/mberezin/tubedigest/internal/digest/postgres"
	"github.com/mberezin/tubedigest/internal/digest/youtube"
	"github.com/mberezin/tubedigest/internal/domain"
	"github.com/mberezin/tubedigest/internal/identity"
	"github.com/mberezin/tubedigest/internal/identity/jwt"
	identitypostgres "github.com/mberezin/tubedigest/internal/identity/postgres"
	"github.com/mberezin/tubedigest/internal/mail"
	"github.com/mberezin/tubedigest/internal/pkg/ctxlog"
	"github.com/mberezin/tubedigest/internal/pkg/httputil"
	"github.com/mberezin/tubedigest/internal/pkg/metrics"
	"github.com/mberezin/tubedigest/internal/pkg/postgres"
	"github.com/mberezin/tubedigest/internal/subscriptions"
	subscriptionspostgres "github.com/mberezin/tubedigest/internal/subscriptions/postgres"
	"github.com/mberezin/tubedigest/internal/version"
	"github.com/mberezin/tubedigest/migrations"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	scheduler     *digest.Scheduler
}

// New creates a new application instance: connects to the database, applies
// migrations, ensures the bootstrap admin, and wires the HTTP surface.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := postgres.Migrate(cfg.Database.URL, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	prometheus.MustRegister(metrics.NewPoolCollector(db))

	app := &App{
		config: cfg,
		logger: logger,
		db:     db,
	}

	router, err := app.setup(connectCtx)
	if err != nil {
		db.Close()
		return nil, err
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers and, when enabled, the digest scheduler.
func (a *App) Run() error {
	if a.scheduler != nil {
		a.scheduler.Start()
	}

	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	// Stop the scheduler first so no new batch starts mid-shutdown.
	if a.scheduler != nil {
		a.scheduler.Stop(ctx)
	}

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setup(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>TubeDigest API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	subscriptionsRepo := subscriptionspostgres.NewRepository(a.db)
	subscriptionsService := subscriptions.NewService(subscriptionsRepo)
	subscriptionsHandler := subscriptions.NewHandler(subscriptionsService)

	sender, err := mail.NewSender(mail.Config{
		Enabled:      a.config.Mail.Enabled,
		SMTPHost:     a.config.Mail.SMTPHost,
		SMTPPort:     a.config.Mail.SMTPPort,
		SMTPUser:     a.config.Mail.SMTPUser,
		SMTPPassword: a.config.Mail.SMTPPassword,
		FromAddress:  a.config.Mail.FromAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("create mail sender: %w", err)
	}
	if !a.config.Mail.Enabled {
		slog.Warn("mail sender is disabled: digests and confirmations will not be sent")
	}

	identityRepo := identitypostgres.NewRepository(a.db)
	jwtAuth := jwt.NewAuthenticator(jwt.Config{
		SecretKey:            a.config.JWT.SecretKey,
		AccessTokenDuration:  a.config.JWT.AccessTokenDuration,
		RefreshTokenDuration: a.config.JWT.RefreshTokenDuration,
	}, identityRepo)
	identityService := identity.NewService(identityRepo, jwtAuth, subscriptionsService, mail.NewConfirmation(sender))
	identityHandler := identity.NewHandler(identityService, identity.CookieSettings{
		Secure:               a.config.Cookie.Secure,
		Domain:               a.config.Cookie.Domain,
		AccessTokenDuration:  a.config.JWT.AccessTokenDuration,
		RefreshTokenDuration: a.config.JWT.RefreshTokenDuration,
	})

	if err := identityService.EnsureAdmin(ctx,
		a.config.Admin.Email,
		a.config.Admin.Password,
		a.config.Admin.DisplayName,
	); err != nil {
		return nil, fmt.Errorf("ensure admin account: %w", err)
	}

	resolver := youtube.NewResolver(nil, youtube.Config{
		FeedBaseURL: a.config.Digest.FeedBaseURL,
		Lookback:    a.config.Digest.Lookback,
		RateLimit:   a.config.Digest.ResolverRateLimit,
	}, a.logger)

	renderer, err := digest.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("create digest renderer: %w", err)
	}

	digestRepo := digestpostgres.NewRepository(a.db)
	runner := digest.NewRunner(subscriptionsRepo, resolver, sender, renderer, digestRepo, digest.RunnerConfig{
		ChannelConcurrency: a.config.Digest.ChannelConcurrency,
		EmailConcurrency:   a.config.Digest.EmailConcurrency,
		RequestTimeout:     a.config.Digest.RequestTimeout,
	}, a.logger)

	var digestSender digest.EmailSender
	if a.config.Mail.Enabled {
		digestSender = sender
	}
	digestService := digest.NewService(runner, digestSender, renderer, digestRepo, subscriptionsRepo, identityRepo, a.logger)
	digestHandler := digest.NewHandler(digestService, subscriptionsService)

	if a.config.Digest.Scheduler.Enabled && a.config.Mail.Enabled {
		scheduler, err := digest.NewScheduler(runner, a.config.Digest.Scheduler.Location, a.logger)
		if err != nil {
			return nil, fmt.Errorf("create digest scheduler: %w", err)
		}
		a.scheduler = scheduler
	}

	r.Route("/api/v1", func(r chi.Router) {
		identityHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(identityService))

			identityHandler.RegisterProtectedRoutes(r)
			subscriptionsHandler.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleAdmin))
				digestHandler.RegisterRoutes(r)
			})
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Get())
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
