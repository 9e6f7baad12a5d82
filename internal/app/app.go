package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/sundayezeilo/urlappender/internal/config"
	"github.com/sundayezeilo/urlappender/internal/events"
	"github.com/sundayezeilo/urlappender/internal/idgen"
	"github.com/sundayezeilo/urlappender/internal/links"
	"github.com/sundayezeilo/urlappender/internal/links/migrations"
	"github.com/sundayezeilo/urlappender/internal/server"
)

// App holds the application dependencies and configuration.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	DBPool    *pgxpool.Pool
	Redis     *redis.Client
	Publisher events.Publisher
	Server    *server.Server
	Handler   *links.Handler
}

// New initializes and returns a new App instance with all dependencies wired up.
func New(ctx context.Context) (*App, error) {
	cfg, logger, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	logger.Info("starting application",
		"env", cfg.App.Environment,
		"version", cfg.Observability.ServiceVersion,
	)

	return Build(ctx, cfg, logger)
}

// LoadConfig reads the environment (and .env outside production) and
// returns the validated configuration with a logger set to its level.
func LoadConfig() (*config.Config, *slog.Logger, error) {
	if err := loadEnv(); err != nil {
		return nil, nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, setupLogger(cfg.App.LogLevel), nil
}

// Build wires every dependency from an already loaded configuration.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	ids, err := idgen.FromFormat(idgen.Format(cfg.Links.IDFormat), cfg.Links.IDLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create id generator: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := migrate(cfg, logger); err != nil {
			return nil, err
		}
	}

	dbPool, err := connectDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	rdb, err := connectRedis(ctx, cfg, logger)
	if err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	publisher, err := connectEvents(cfg, logger)
	if err != nil {
		_ = rdb.Close()
		dbPool.Close()
		return nil, fmt.Errorf("failed to connect to events broker: %w", err)
	}

	// Setup application dependencies
	store := links.NewRetryingStore(
		links.NewPostgresStore(dbPool, &links.PostgresStoreConfig{BatchSize: cfg.Links.BatchSize}),
		&links.RetryConfig{
			Attempts: cfg.Links.StoreRetryAttempts,
			Interval: cfg.Links.StoreRetryInterval,
			Logger:   logger,
		},
	)
	cache := links.NewRedisCache(rdb, cfg.Redis.KeyPrefix)
	paginator := links.NewPaginator(store, cache, &links.PaginatorConfig{
		MaxPageSize:   cfg.Links.MaxPageSize,
		MaxScanRounds: cfg.Links.MaxScanRounds,
		Logger:        logger,
	})
	svc := links.NewService(store, cache, &links.ServiceConfig{
		Paginator:        paginator,
		IDGenerator:      ids,
		Publisher:        publisher,
		Logger:           logger,
		MaxWriteAttempts: cfg.Links.MaxWriteAttempts,
	})
	handler := links.NewHandler(links.HandlerConfig{
		Service:         svc,
		Logger:          logger,
		DefaultPageSize: cfg.Links.DefaultPageSize,
	})

	// Create server
	srv := server.New(cfg, logger, handler, map[string]server.HealthCheck{
		"postgres": dbPool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})

	logger.Info("application initialized",
		"addr", cfg.Server.Addr(),
		"events", cfg.Events.Enabled(),
	)

	return &App{
		Config:    cfg,
		Logger:    logger,
		DBPool:    dbPool,
		Redis:     rdb,
		Publisher: publisher,
		Server:    srv,
		Handler:   handler,
	}, nil
}

// Start starts the application server.
func (a *App) Start(ctx context.Context) error {
	a.Logger.Info("server starting",
		"addr", a.Config.Server.Addr(),
		"base_url", a.Config.Server.BaseURL,
	)

	if err := a.Server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	a.Logger.Info("shutting down application")

	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.Warn("failed to close events publisher", "error", err)
		}
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("failed to close redis client", "error", err)
		} else {
			a.Logger.Info("redis connection closed")
		}
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database connection closed")
	}

	return nil
}

// loadEnv loads .env file only in non-production environments.
func loadEnv() error {
	env := os.Getenv("APP_ENV")
	if env == "development" || env == "test" {
		if err := godotenv.Load("../.env"); err != nil {
			log.Println("no .env file found.")
		}
	}
	return nil
}

// setupLogger creates a structured logger based on the log level.
func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

// migrate applies pending schema migrations.
func migrate(cfg *config.Config, logger *slog.Logger) error {
	mg, err := migrations.New(cfg.Database.URL(), logger)
	if err != nil {
		return fmt.Errorf("failed to open migrator: %w", err)
	}
	defer func() {
		if err := mg.Close(); err != nil {
			logger.Warn("failed to close migrator", "error", err)
		}
	}()

	if err := mg.Up(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// connectDatabase establishes a connection to the PostgreSQL database.
func connectDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Set pool configuration
	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established")

	return pool, nil
}

// connectRedis creates the cache tier client. An unreachable server fails
// startup; later outages only degrade listing to the store.
func connectRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	logger.Info("connecting to redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("redis connection established")

	return client, nil
}

// connectEvents returns a NATS publisher, or a no-op one when no broker is
// configured.
func connectEvents(cfg *config.Config, logger *slog.Logger) (events.Publisher, error) {
	if !cfg.Events.Enabled() {
		logger.Info("events publishing disabled")
		return events.NopPublisher{}, nil
	}

	pub, err := events.Connect(cfg.Events.NATSURL, cfg.Events.Subject, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("events publisher connected", "subject", cfg.Events.Subject)

	return pub, nil
}
