// Command mfa-housekeeper periodically purges expired pending setups,
// stale verification codes and old failed attempts from an MFA store.
//
// Settings come from the environment, optionally seeded from a .env file:
//
//	GOMFA_CONFIG        TOML config file (optional)
//	GOMFA_STORE         redis, postgres or sqlite
//	GOMFA_REDIS_ADDR    redis address, for GOMFA_STORE=redis
//	GOMFA_REDIS_PREFIX  key prefix, for GOMFA_STORE=redis
//	GOMFA_POSTGRES_DSN  connection string, for GOMFA_STORE=postgres
//	GOMFA_SQLITE_PATH   database file, for GOMFA_STORE=sqlite
//
// Run:
//
//	go run ./cmd/mfa-housekeeper -env .env
//	go run ./cmd/mfa-housekeeper -once -dev
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/store/postgres"
	"github.com/MrEthical07/goMFA/store/redisstore"
	"github.com/MrEthical07/goMFA/store/sqlite"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	var (
		envFile = flag.String("env", ".env", "dotenv file to load before reading the environment")
		once    = flag.Bool("once", false, "run a single purge and exit")
		dev     = flag.Bool("dev", false, "human-readable development logging")
	)
	flag.Parse()

	logger, err := newLogger(*dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Fatal("load env file", zap.String("path", *envFile), zap.Error(err))
	}

	settings := settingsFromEnv(os.Getenv)
	cfg := goMFA.DefaultConfig()
	if settings.ConfigPath != "" {
		if cfg, err = goMFA.LoadConfigFile(settings.ConfigPath); err != nil {
			logger.Fatal("load config", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeStore, err := openStore(ctx, settings)
	if err != nil {
		logger.Fatal("open store", zap.String("store", settings.Store), zap.Error(err))
	}
	defer closeStore()

	engine, err := goMFA.New().
		WithConfig(cfg).
		WithStore(backend).
		WithUserDirectory(noUsers{}).
		WithLogger(logger).
		Build()
	if err != nil {
		logger.Fatal("build engine", zap.Error(err))
	}
	defer engine.Close()

	logger.Info("housekeeper started",
		zap.String("store", settings.Store),
		zap.Duration("interval", cfg.Housekeeping.Interval),
		zap.Duration("timeout", cfg.Housekeeping.Timeout),
	)

	if *once {
		if _, err := purgeOnce(ctx, engine, cfg.Housekeeping.Timeout, logger); err != nil {
			os.Exit(1)
		}
		return
	}
	run(ctx, engine, cfg.Housekeeping, logger)
	logger.Info("housekeeper stopped")
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

type purger interface {
	Purge(ctx context.Context) (goMFA.PurgeReport, error)
}

// run purges immediately and then on every tick until ctx is cancelled.
func run(ctx context.Context, p purger, cfg goMFA.HousekeepingConfig, logger *zap.Logger) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_, _ = purgeOnce(ctx, p, cfg.Timeout, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func purgeOnce(ctx context.Context, p purger, timeout time.Duration, logger *zap.Logger) (goMFA.PurgeReport, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	report, err := p.Purge(ctx)
	fields := []zap.Field{
		zap.Int64("pending_setups", report.PendingSetups),
		zap.Int64("codes", report.Codes),
		zap.Int64("failed_attempts", report.FailedAttempts),
		zap.Duration("took", time.Since(start)),
	}
	if err != nil {
		logger.Error("purge failed", append(fields, zap.Error(err))...)
		return report, err
	}
	logger.Info("purge finished", fields...)
	return report, nil
}

type settings struct {
	ConfigPath  string
	Store       string
	RedisAddr   string
	RedisPrefix string
	PostgresDSN string
	SQLitePath  string
}

func settingsFromEnv(getenv func(string) string) settings {
	s := settings{
		ConfigPath:  getenv("GOMFA_CONFIG"),
		Store:       getenv("GOMFA_STORE"),
		RedisAddr:   getenv("GOMFA_REDIS_ADDR"),
		RedisPrefix: getenv("GOMFA_REDIS_PREFIX"),
		PostgresDSN: getenv("GOMFA_POSTGRES_DSN"),
		SQLitePath:  getenv("GOMFA_SQLITE_PATH"),
	}
	if s.Store == "" {
		s.Store = "redis"
	}
	if s.RedisAddr == "" {
		s.RedisAddr = "localhost:6379"
	}
	return s
}

// openStore connects the configured backend. Postgres migrations are
// applied before the pool opens.
func openStore(ctx context.Context, s settings) (goMFA.Store, func(), error) {
	switch s.Store {
	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{s.RedisAddr}})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis %s: %w", s.RedisAddr, err)
		}
		return redisstore.New(client, s.RedisPrefix), func() { _ = client.Close() }, nil
	case "postgres":
		if s.PostgresDSN == "" {
			return nil, nil, errors.New("GOMFA_POSTGRES_DSN is required")
		}
		if err := postgres.Migrate(s.PostgresDSN); err != nil {
			return nil, nil, err
		}
		st, err := postgres.Open(ctx, s.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case "sqlite":
		if s.SQLitePath == "" {
			return nil, nil, errors.New("GOMFA_SQLITE_PATH is required")
		}
		st, err := sqlite.Open(ctx, s.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", s.Store)
	}
}

// noUsers satisfies the engine's user directory. Purging never looks up
// users.
type noUsers struct{}

func (noUsers) GetUser(context.Context, string) (goMFA.User, error) {
	return goMFA.User{}, goMFA.ErrUserNotFound
}
