package main

import (
	"log"

	"anoa.com/playquestrewards/internal/bootstrap"
	"anoa.com/playquestrewards/internal/config"
	"anoa.com/playquestrewards/internal/server"
	"anoa.com/playquestrewards/pkg/cache"
	"anoa.com/playquestrewards/pkg/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db := database.Connect()
	if err := bootstrap.Migrate(db); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	if err := bootstrap.SeedRoles(db); err != nil {
		log.Fatalf("failed to seed roles: %v", err)
	}

	if cfg.AppEnv == "development" {
		if err := bootstrap.SeedAdminUser(db); err != nil {
			log.Fatalf("failed to seed admin user: %v", err)
		}
		if err := bootstrap.SeedPrizepool(db, cfg.PoolLocation()); err != nil {
			log.Fatalf("failed to seed prizepool: %v", err)
		}
	}

	redisClient := cache.Connect(cfg.RedisURL)

	srv := server.NewServer(db, redisClient, cfg)
	defer srv.Shutdown()

	log.Printf("🚀 Server starting on port %s", cfg.Port)
	if err := srv.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
