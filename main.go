package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-projections/migrations"
	"github.com/ekaya-inc/ekaya-projections/pkg/auth"
	"github.com/ekaya-inc/ekaya-projections/pkg/config"
	"github.com/ekaya-inc/ekaya-projections/pkg/database"
	"github.com/ekaya-inc/ekaya-projections/pkg/handlers"
	"github.com/ekaya-inc/ekaya-projections/pkg/logging"
	"github.com/ekaya-inc/ekaya-projections/pkg/middleware"
	"github.com/ekaya-inc/ekaya-projections/pkg/registry"
	"github.com/ekaya-inc/ekaya-projections/pkg/repositories"
	"github.com/ekaya-inc/ekaya-projections/pkg/retry"
	"github.com/ekaya-inc/ekaya-projections/pkg/services"
	"github.com/ekaya-inc/ekaya-projections/ui"
)

// Version is set at build time via ldflags
var Version = "dev"

// devSessionSecret signs flash cookies in local development only.
const devSessionSecret = "ekaya-projections-local-dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ekaya-projections: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(Version)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ResolveServiceHosts()

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("registry", cfg.Registry.BaseURL))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, database.ConfigFromSettings(&cfg.Database))
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %s", logging.SanitizeError(err))
	}
	defer db.Close()

	if err := migrate(cfg, logger); err != nil {
		return err
	}

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %s", logging.SanitizeError(err))
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	reg := newRegistry(cfg, redisClient, logger)

	projectionRepo := repositories.NewProjectionRepository()
	projectionService := services.NewProjectionService(
		projectionRepo,
		repositories.NewSpatialRefSysRepository(),
		reg,
		logger,
	)

	if cfg.SeedFile != "" {
		if err := seed(ctx, db, projectionService, projectionRepo, cfg.SeedFile, logger); err != nil {
			return err
		}
	}

	jwksClient, err := auth.NewJWKSClient(ctx, &auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize JWKS client: %w", err)
	}
	defer jwksClient.Close()
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(jwksClient, logger), logger)

	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		if !cfg.IsLocal() {
			return errors.New("SESSION_SECRET must be set outside local development")
		}
		logger.Warn("SESSION_SECRET not set, using development secret")
		sessionSecret = devSessionSecret
	}
	flashes := auth.NewFlashStore(sessionSecret, auth.DeriveCookieSettings(cfg.BaseURL, cfg.CookieDomain))

	views, err := handlers.NewViews(ui.Templates())
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)

	projectionsHandler := handlers.NewProjectionsHandler(
		projectionService, views, flashes, handlers.DefaultBasePath, logger)
	projectionsHandler.RegisterRoutes(mux, authMiddleware, cfg.Auth.AdminRole, database.WithScope(db, logger))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, handlers.DefaultBasePath+"/list", http.StatusFound)
	})

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout(registryConfig(cfg)),
		IdleTimeout:       2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-projections",
			zap.String("addr", server.Addr),
			zap.Bool("tls", cfg.TLSCertPath != ""),
			zap.String("version", cfg.Version))

		var err error
		if cfg.TLSCertPath != "" {
			err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsLocal() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func migrate(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %s", logging.SanitizeError(err))
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, migrations.FS, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %s", logging.SanitizeError(err))
	}
	return nil
}

func registryConfig(cfg *config.Config) registry.Config {
	return registry.Config{
		BaseURL:    cfg.Registry.BaseURL,
		Timeout:    cfg.Registry.Timeout,
		MaxRetries: cfg.Registry.MaxRetries,
		UserAgent:  handlers.ServiceName + "/" + cfg.Version,
	}
}

// writeTimeout leaves room for the slowest import response. Zero, meaning
// no write deadline, when registry requests are unbounded.
func writeTimeout(rc registry.Config) time.Duration {
	d, ok := rc.MaxImportDuration()
	if !ok {
		return 0
	}
	return d + 10*time.Second
}

// newRegistry builds the registry importer, cached in Redis when Redis is configured.
func newRegistry(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) registry.Registry {
	client := registry.NewClient(registryConfig(cfg), logger)

	var reg registry.Registry = registry.NewImporter(client, client, logger)
	if redisClient != nil {
		reg = registry.NewCachedRegistry(reg, registry.NewRedisCache(redisClient), cfg.Registry.CacheTTL, logger)
	}
	return reg
}

func seed(
	ctx context.Context,
	db *database.DB,
	svc services.ProjectionService,
	repo repositories.ProjectionRepository,
	path string,
	logger *zap.Logger,
) error {
	scopedCtx, cleanup, err := database.NewScopeProvider(db).WithScope(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for seeding: %w", err)
	}
	defer cleanup()

	if _, err := services.SeedProjections(scopedCtx, svc, repo, path, logger); err != nil {
		return fmt.Errorf("failed to seed projections: %w", err)
	}
	return nil
}
