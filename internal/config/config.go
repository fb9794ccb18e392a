package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string

	RedisURL string

	// Fixed offset (hours from UTC) the prizepool cycle operates in.
	// Settlement day boundaries are computed in this zone.
	PoolTimezoneOffset int

	// Cron specs for the two independent schedules.
	ConclusionCron       string
	LeaderboardCacheCron string

	// TTL of the cached leaderboard blob and per-user entries.
	DailyLeaderboardTTL  time.Duration
	WeeklyLeaderboardTTL time.Duration

	// How many ranked users the cache builder stores. Kept well above the
	// payout slot count so users just outside the money still see themselves.
	LeaderboardCacheLimit int
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),

		RedisURL: os.Getenv("REDIS_URL"),

		ConclusionCron:       getEnv("CONCLUSION_CRON", "10 0 * * *"),
		LeaderboardCacheCron: getEnv("LEADERBOARD_CACHE_CRON", "*/5 * * * *"),
	}

	var err error
	cfg.PoolTimezoneOffset, err = parseInt(getEnv("POOL_TZ_OFFSET_HOURS", "7"))
	if err != nil {
		return nil, fmt.Errorf("invalid POOL_TZ_OFFSET_HOURS: %w", err)
	}

	dailyTTL, err := parseInt(getEnv("DAILY_LEADERBOARD_TTL_MINUTES", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid DAILY_LEADERBOARD_TTL_MINUTES: %w", err)
	}
	cfg.DailyLeaderboardTTL = time.Duration(dailyTTL) * time.Minute

	weeklyTTL, err := parseInt(getEnv("WEEKLY_LEADERBOARD_TTL_MINUTES", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid WEEKLY_LEADERBOARD_TTL_MINUTES: %w", err)
	}
	cfg.WeeklyLeaderboardTTL = time.Duration(weeklyTTL) * time.Minute

	cfg.LeaderboardCacheLimit, err = parseInt(getEnv("LEADERBOARD_CACHE_LIMIT", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid LEADERBOARD_CACHE_LIMIT: %w", err)
	}

	return cfg, nil
}

// PoolLocation returns the fixed time zone the prizepool cycle runs in.
func (c *Config) PoolLocation() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.PoolTimezoneOffset), c.PoolTimezoneOffset*3600)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
