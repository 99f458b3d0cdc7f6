package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcoot/bananaclick/internal/api"
	"github.com/mcoot/bananaclick/internal/dependencies/clock"
	"github.com/mcoot/bananaclick/internal/dependencies/random"
	"github.com/mcoot/bananaclick/internal/realtime"
	"github.com/mcoot/bananaclick/internal/services/auth"
	"github.com/mcoot/bananaclick/internal/services/counter"
	"github.com/mcoot/bananaclick/internal/services/game"
	"github.com/mcoot/bananaclick/internal/services/presence"
	"github.com/mcoot/bananaclick/internal/services/ranking"
	"github.com/mcoot/bananaclick/internal/services/users"
	"github.com/mcoot/bananaclick/internal/storage"
	"github.com/mcoot/bananaclick/internal/storage/memory"
	redisstorage "github.com/mcoot/bananaclick/internal/storage/redis"
	"github.com/mcoot/bananaclick/internal/storage/sqlite"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
	StorageTypeSQLite = "sqlite"
)

// How often expired token revocations are forgotten
const revocationCleanupInterval = 10 * time.Minute

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random
	Logger *slog.Logger

	// Services
	AuthService    *auth.Service
	Registry       *presence.Registry
	CounterService *counter.Service
	RankingService *ranking.Service
	UsersService   *users.Service
	GameController *game.Controller

	// Realtime delivery
	Hub        *realtime.Hub
	Dispatcher *realtime.Dispatcher
	Publisher  *ranking.Publisher
	WSHandler  *realtime.WSHandler
	SSEHandler *realtime.SSEHandler
}

// Config holds configuration for the application factory
type Config struct {
	// AuthConfig holds configuration for the auth service (optional)
	// Zero fields default to auth.DefaultConfig()
	AuthConfig auth.Config
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "redis" or "sqlite")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// SQLitePath is the database file (used if StorageType is "sqlite")
	SQLitePath string
	// RankingLimit caps leaderboard length; zero means ranking.DefaultLimit
	RankingLimit int
	// WSConfig tunes websocket connections; zero fields take defaults
	WSConfig realtime.WSConfig
}

// New creates a new application with all dependencies wired
func New(ctx context.Context, cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Create external dependencies
	clk := clock.New()
	rnd := random.New()

	// Zero auth fields fall back to auth.DefaultConfig() inside auth.New
	return newWithDependencies(store, clk, rnd, cfg.AuthConfig, cfg.RankingLimit, cfg.WSConfig, logger), nil
}

func openStorage(ctx context.Context, cfg Config) (storage.Storage, error) {
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		return redisstorage.New(*cfg.RedisConfig)
	case StorageTypeSQLite:
		return sqlite.New(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("invalid StorageType %q: must be 'memory', 'redis' or 'sqlite'", storageType)
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.Storage,
	clk clock.Clock,
	rnd random.Random,
	authCfg auth.Config,
	rankingLimit int,
	wsCfg realtime.WSConfig,
	logger *slog.Logger,
) *App {
	// Create services
	authService := auth.New(store, clk, logger, authCfg)
	registry := presence.NewRegistry(store, clk, logger)
	rankingService := ranking.New(store, logger, rankingLimit)

	// Create realtime delivery
	hub := realtime.NewHub(logger, realtime.DefaultQueueSize)
	dispatcher := realtime.NewDispatcher(hub, clk, logger)
	counterService := counter.New(store, dispatcher, clk, logger)
	publisher := ranking.NewPublisher(rankingService, dispatcher, logger)

	gameController := game.NewController(authService, registry, counterService, rankingService, publisher, dispatcher, logger)
	usersService := users.New(store, authService, counterService, registry, dispatcher, publisher, clk, logger)

	return &App{
		Storage:        store,
		Clock:          clk,
		Random:         rnd,
		Logger:         logger,
		AuthService:    authService,
		Registry:       registry,
		CounterService: counterService,
		RankingService: rankingService,
		UsersService:   usersService,
		GameController: gameController,
		Hub:            hub,
		Dispatcher:     dispatcher,
		Publisher:      publisher,
		WSHandler:      realtime.NewWSHandler(gameController, rnd, logger, wsCfg),
		SSEHandler:     realtime.NewSSEHandler(gameController, rnd, logger),
	}
}

// Start clears presence left over from a previous run and launches the
// background workers. Workers stop when ctx ends or Close is called.
func (a *App) Start(ctx context.Context) error {
	// No connection survives a restart, so every stored active flag is stale
	if err := a.Storage.ResetPresence(ctx); err != nil {
		return fmt.Errorf("reset presence: %w", err)
	}

	go a.Hub.Run()
	go a.Publisher.Run(ctx)
	go a.cleanRevocations(ctx)
	return nil
}

func (a *App) cleanRevocations(ctx context.Context) {
	ticker := time.NewTicker(revocationCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.AuthService.CleanRevokedTokens()
		}
	}
}

// Handler builds the HTTP handler serving the REST API and both realtime transports
func (a *App) Handler(allowedOrigins []string, secureCookies bool) http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:         a.Logger,
		AuthService:    a.AuthService,
		UsersService:   a.UsersService,
		RankingService: a.RankingService,
		Store:          a.Storage,
		Presence:       a.Registry,
		Connections:    a.Dispatcher,
		WSHandler:      a.WSHandler,
		SSEHandler:     a.SSEHandler,
		AllowedOrigins: allowedOrigins,
		SecureCookies:  secureCookies,
	})
}

// Close stops event delivery and releases storage
func (a *App) Close() error {
	a.Hub.Close()
	return a.Storage.Close()
}
