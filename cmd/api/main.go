// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/admin"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/auth"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/clock"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/config"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/core"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/health"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/keys"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/middleware"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/migrations"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/server"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/stream"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/token"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/user"
)

const (
	drainDelay = 5 * time.Second

	adminRequestsPerMinute = 60
	adminBurst             = 10
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"session_store", cfg.Session.Store,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeWith(logger, "database", db.Close)
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	if cfg.Database.Migrate {
		if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	rdb, err := core.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeWith(logger, "redis", rdb.Close)
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	clk := clock.Real()

	keyManager, err := loadKeys(ctx, cfg.JWT, clk, logger)
	if err != nil {
		return err
	}

	authenticator, err := newAuthenticator(cfg.JWT, keyManager, clk)
	if err != nil {
		return err
	}

	signer := token.NewSigner(keyManager, token.SignerConfig{
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		TTL:      cfg.JWT.AccessTokenExpire,
	})

	var refreshRepo auth.Repository
	switch cfg.Session.Store {
	case config.StoreMemory:
		refreshRepo = auth.NewMemoryRepository()
		logger.Warn("refresh sessions are held in memory and lost on restart")
	default:
		refreshRepo = auth.NewRepository(db.DB)
	}

	store := auth.NewStore(refreshRepo, auth.StoreConfig{
		RefreshTTL:       cfg.Session.RefreshTokenExpire,
		ExpiredRetention: cfg.Session.ExpiredRetention,
		RevokedRetention: cfg.Session.RevokedRetention,
		Timeout:          cfg.Database.StoreTimeout,
	}, auth.NewRedisIncidentReporter(rdb, auth.DefaultIncidentStream, logger), logger)

	userSvc := user.NewService(user.NewRepository(db.DB))
	authSvc := auth.NewService(store, signer, userSvc, clk, logger)
	sweeper := auth.NewSweeper(store, keyManager, clk, cfg.Session.SweepInterval, logger)

	authHandler := auth.NewHandler(authSvc, clk)
	userHandler := user.NewHandler(userSvc, authSvc)
	adminHandler := admin.NewHandler(admin.HandlerConfig{
		Keys:       keyManager,
		Sweeper:    sweeper,
		DBStats:    db.Stats,
		RedisStats: rdb.PoolStats,
	})

	healthHandler := health.NewHandler().
		Register("database", db).
		Register("redis", core.RedisPinger{Client: rdb}).
		Register("signing_key", health.CheckerFunc(func(context.Context) error {
			_, err := keyManager.CurrentKeyID()
			return err
		}))

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))

	healthHandler.RegisterRoutes(router)

	router.Get("/.well-known/jwks.json", keyManager.JWKSHandler())

	requireAuth := middleware.Authenticator(authenticator)
	throttle := credentialThrottle(rdb, cfg.RateLimit)
	adminOnly := adminGuard(rdb)

	router.Route("/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, requireAuth, throttle)
		userHandler.RegisterRoutes(r, requireAuth)
		userHandler.RegisterAdminRoutes(r, requireAuth, adminOnly)
		adminHandler.RegisterRoutes(r, requireAuth, adminOnly)
	})

	grpcServer := stream.NewServer(
		cfg.GRPC.Address(),
		stream.NewBridge(authenticator, logger),
		stream.NewNotifications(stream.RedisSubscriber{Client: rdb}, logger),
		logger,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	g.Go(func() error {
		return grpcServer.Run(gctx)
	})

	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
		)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
			logger.Error("server shutdown error", "error", err)
		}

		if telemetry != nil {
			if err := telemetry.Shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown error", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("application stopped")
	return nil
}

// loadKeys installs the configured signing key and keeps older keys
// verifying for one rotation grace window from startup.
func loadKeys(
	ctx context.Context,
	cfg config.JWTConfig,
	clk clock.Clock,
	logger *slog.Logger,
) (*keys.Manager, error) {
	km := keys.NewManager(clk, cfg.RotationGrace, logger)

	retiresAt := clk.Now().Add(cfg.RotationGrace)
	for _, path := range cfg.PreviousKeyPaths {
		priv, err := keys.LoadPEM(path)
		if err != nil {
			return nil, fmt.Errorf("load previous key %s: %w", path, err)
		}
		if _, err := km.InstallRetiring(priv, retiresAt); err != nil {
			return nil, fmt.Errorf("install previous key %s: %w", path, err)
		}
	}

	priv, err := keys.LoadPEM(cfg.PrivateKeyPath)
	if err != nil {
		return nil, err
	}
	active, err := km.Install(priv)
	if err != nil {
		return nil, err
	}

	if _, err := km.CurrentSigningKey(); err != nil {
		return nil, fmt.Errorf("key manager: %w", err)
	}

	logger.InfoContext(ctx, "signing keys loaded",
		"algorithm", "ES256",
		"key_id", active.ID,
		"verification_keys", len(km.VerificationKeys()),
	)

	return km, nil
}

func newAuthenticator(
	cfg config.JWTConfig,
	km *keys.Manager,
	clk clock.Clock,
) (*token.Authenticator, error) {
	issuers := cfg.TrustedIssuers

	var extra []token.Source
	if cfg.Legacy.Secret != "" {
		extra = append(extra, token.NewHMACSource(cfg.Legacy.Issuer, []byte(cfg.Legacy.Secret)))
		issuers = appendMissing(issuers, cfg.Legacy.Issuer)
	}

	sources := token.KeyRingSources{Keys: km, Extra: extra}
	if len(sources.TrustSources()) == 0 {
		return nil, core.ErrNoTrustSourceConfigured
	}

	validator := token.NewValidator(token.ValidatorConfig{
		TrustedIssuers: issuers,
		Audience:       []string{cfg.Audience},
		ClockSkew:      cfg.ClockSkew,
	}, clk)

	return token.NewAuthenticator(token.NewVerifier(sources), validator), nil
}

func credentialThrottle(
	rdb *redis.Client,
	cfg config.RateLimitConfig,
) func(next http.Handler) http.Handler {
	return middleware.NewRateLimiter(rdb, middleware.RateLimitConfig{
		Limit:    middleware.Limit(cfg.Requests, cfg.Burst, cfg.Window),
		KeyFunc:  middleware.KeyByIPAndEndpoint,
		FailOpen: true,
	}).Handler
}

// adminGuard checks the admin role, then throttles per admin subject.
func adminGuard(rdb *redis.Client) func(next http.Handler) http.Handler {
	limiter := middleware.NewRateLimiter(rdb, middleware.RateLimitConfig{
		Limit:    middleware.Limit(adminRequestsPerMinute, adminBurst, time.Minute),
		KeyFunc:  middleware.KeyByUser,
		FailOpen: true,
	})
	return func(next http.Handler) http.Handler {
		return middleware.RequireAdmin(limiter.Handler(next))
	}
}

func appendMissing(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(append([]string(nil), list...), v)
}

func closeWith(logger *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Error(name+" close error", "error", err)
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
