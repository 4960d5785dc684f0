package database

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/somexchange/backend/internal/config"
)

// InitRedis returns a connected client, or nil when Redis is disabled or
// unreachable. Callers treat a nil client as "no cache, no revocation list".
func InitRedis(cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled {
		log.Println("[REDIS] Disabled by configuration")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[REDIS] Connection failed, continuing without Redis: %v", err)
		rdb.Close()
		return nil
	}

	log.Println("[REDIS] Connection established")
	return rdb
}
