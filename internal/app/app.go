// Package app wires the configured store, Redis and services together for
// the server and the admin CLI.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/somexchange/backend/internal/audit"
	"github.com/somexchange/backend/internal/config"
	"github.com/somexchange/backend/internal/database"
	"github.com/somexchange/backend/internal/handlers"
	"github.com/somexchange/backend/internal/services"
	"github.com/somexchange/backend/internal/store"
)

type App struct {
	Config   *config.Config
	Store    store.Store
	Redis    *redis.Client
	Services handlers.Services
}

// New opens the store and Redis and builds every service. The base currency
// account is created when missing.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	log.Printf("[APP] Using %s store", cfg.Store.Driver)

	redisClient := database.InitRedis(cfg.Redis)

	// a nil *RedisStatsCache must not become a non-nil interface
	var cache services.StatsCache
	if redisClient != nil {
		cache = services.NewRedisStatsCache(redisClient, cfg.Stats.CacheTTL)
	}

	auditLogger := audit.NewLogger()
	editor, err := services.NewLedgerEditor(st, cfg.Ledger, auditLogger)
	if err != nil {
		closeAll(st, redisClient)
		return nil, err
	}
	accounts := services.NewAccountService(st, cfg.Ledger, auditLogger)
	if err := accounts.EnsureBaseAccount(ctx); err != nil {
		closeAll(st, redisClient)
		return nil, fmt.Errorf("ensure base account: %w", err)
	}
	query := services.NewQueryService(st)

	return &App{
		Config: cfg,
		Store:  st,
		Redis:  redisClient,
		Services: handlers.Services{
			Auth:      services.NewAuthService(st, redisClient, cfg.JWT, cfg.Argon2, auditLogger),
			Exchange:  services.NewExchangeService(st, cfg.Ledger, auditLogger),
			Editor:    editor,
			Query:     query,
			Analytics: services.NewAnalyticsService(st, cfg.Ledger, cache),
			Accounts:  accounts,
			Repair:    services.NewRepairService(st, cfg.Ledger, auditLogger),
			Receipts:  services.NewReceiptService(query),
			Location:  cfg.Ledger.Location(),
		},
	}, nil
}

func (a *App) Close() {
	closeAll(a.Store, a.Redis)
}

func closeAll(st store.Store, redisClient *redis.Client) {
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Printf("[APP] Failed to close Redis: %v", err)
		}
	}
	if err := st.Close(); err != nil {
		log.Printf("[APP] Failed to close store: %v", err)
	}
}
