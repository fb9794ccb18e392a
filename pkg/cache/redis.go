package cache

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect builds a Redis client from REDIS_URL. Returns nil when the URL is
// empty or the server is unreachable so callers can degrade to cache-less mode.
func Connect(redisURL string) *redis.Client {
	if redisURL == "" {
		log.Println("⚠️ REDIS_URL not set, running without cache")
		return nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("⚠️ Invalid REDIS_URL, running without cache: %v", err)
		return nil
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️ Redis unreachable, running without cache: %v", err)
		return nil
	}

	log.Println("✅ Connected to Redis")
	return client
}
