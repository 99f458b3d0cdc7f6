package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/mcoot/bananaclick/internal/api"
	"github.com/mcoot/bananaclick/internal/config"
	"github.com/mcoot/bananaclick/internal/factory"
	"github.com/mcoot/bananaclick/internal/realtime"
	"github.com/mcoot/bananaclick/internal/services/auth"
	redisstorage "github.com/mcoot/bananaclick/internal/storage/redis"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal outside development
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	cfg, err := config.Load(os.Getenv("BANANA_CONFIG"))
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	factoryCfg := factory.Config{
		Logger:      logger,
		StorageType: cfg.Storage.Backend,
		SQLitePath:  cfg.Storage.SQLitePath,
		AuthConfig: auth.Config{
			Secret:        cfg.Auth.Secret,
			TokenDuration: cfg.Auth.TokenDuration,
			BcryptCost:    cfg.Auth.BcryptCost,
		},
		RankingLimit: cfg.Ranking.Limit,
	}
	if cfg.Storage.Backend == config.BackendRedis {
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.Storage.RedisURL
		redisCfg.KeyPrefix = cfg.Storage.RedisKeyPrefix
		factoryCfg.RedisConfig = &redisCfg
	}
	wsCfg := realtime.DefaultWSConfig()
	wsCfg.CheckOrigin = realtime.AllowOrigins(cfg.CORS.AllowedOrigins)
	factoryCfg.WSConfig = wsCfg

	// Create application factory
	app, err := factory.New(ctx, factoryCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("closing storage", slog.String("error", err.Error()))
		}
	}()

	if err := app.Start(ctx); err != nil {
		return err
	}
	if err := app.UsersService.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		return err
	}

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout
	serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	server := api.NewServer(app.Handler(cfg.CORS.AllowedOrigins, cfg.Server.SecureCookies), serverConfig, logger)
	server.OnShutdown(app.Hub.Close)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		return server.Shutdown(context.Background())
	})

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("storage", cfg.Storage.Backend))

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
}
