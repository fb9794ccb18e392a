package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"anoa.com/playquestrewards/internal/entity"
	"anoa.com/playquestrewards/internal/modules/leaderboard/dto"
	ledgerRepo "anoa.com/playquestrewards/internal/modules/ledger/repository"
	poolRepo "anoa.com/playquestrewards/internal/modules/prizepool/repository"
	poolService "anoa.com/playquestrewards/internal/modules/prizepool/service"
	userRepo "anoa.com/playquestrewards/internal/modules/user/repository"
	"anoa.com/playquestrewards/pkg/apperror"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func blobKey(cycleType string) string {
	return fmt.Sprintf("leaderboard:%s", cycleType)
}

func userKey(cycleType string, userID uuid.UUID) string {
	return fmt.Sprintf("leaderboard:%s:user:%s", cycleType, userID)
}

// CacheWriter is the narrow write surface of the key-value store the cache
// builder depends on.
type CacheWriter interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type redisCacheWriter struct {
	client *redis.Client
}

// NewRedisCacheWriter returns nil when no client is connected, which the
// builder treats as cache-less operation.
func NewRedisCacheWriter(client *redis.Client) CacheWriter {
	if client == nil {
		return nil
	}
	return &redisCacheWriter{client: client}
}

func (w *redisCacheWriter) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return w.client.SetEx(ctx, key, value, ttl).Err()
}

// CacheBuilderConfig carries the builder's schedule-independent knobs.
type CacheBuilderConfig struct {
	DailyTTL  time.Duration
	WeeklyTTL time.Duration
	// Limit is deliberately larger than the payout slot count so users just
	// outside the money still see their standing.
	Limit int
}

// CacheBuilderService recomputes the ranking and writes the denormalized
// leaderboard cache. It runs on its own schedule, decoupled from conclusion,
// and never mutates distribution state.
type CacheBuilderService interface {
	Build(ctx context.Context, cycleType string) error
}

type cacheBuilderService struct {
	cache         CacheWriter
	pools         poolRepo.PrizepoolRepository
	increments    poolRepo.IncrementLogRepository
	distributions poolRepo.DistributionRepository
	ledger        ledgerRepo.LedgerRepository
	users         userRepo.UserRepository
	cfg           CacheBuilderConfig
	location      *time.Location
	now           func() time.Time
}

func NewCacheBuilderService(
	cache CacheWriter,
	pools poolRepo.PrizepoolRepository,
	increments poolRepo.IncrementLogRepository,
	distributions poolRepo.DistributionRepository,
	ledger ledgerRepo.LedgerRepository,
	users userRepo.UserRepository,
	cfg CacheBuilderConfig,
	location *time.Location,
) CacheBuilderService {
	return &cacheBuilderService{
		cache:         cache,
		pools:         pools,
		increments:    increments,
		distributions: distributions,
		ledger:        ledger,
		users:         users,
		cfg:           cfg,
		location:      location,
		now:           time.Now,
	}
}

func (s *cacheBuilderService) Build(ctx context.Context, cycleType string) error {
	if s.cache == nil {
		return nil
	}

	pool, err := s.pools.FindActive(ctx)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			log.Printf("⚠️ Leaderboard cache build skipped (%s): no active prizepool", cycleType)
			return nil
		}
		return fmt.Errorf("failed to load active prizepool: %w", err)
	}

	now := s.now().In(s.location)
	ttl := s.cfg.WeeklyTTL

	var start, end time.Time
	var poolValue int64
	var weights entity.Weights
	var excluded []uuid.UUID

	switch cycleType {
	case entity.DistributionTypeDaily:
		ttl = s.cfg.DailyTTL
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)
		dp, err := s.pools.FindDailyPercentage(ctx, pool.ID, dayStart, dayStart.Add(24*time.Hour))
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				// No percentage row for today: publish an empty board.
				return s.writeBlob(ctx, dto.CachedLeaderboard{Type: cycleType, GeneratedAt: now}, ttl)
			}
			return err
		}
		start, end = dayStart, dayStart.Add(24*time.Hour)
		available, err := s.availableValue(ctx, pool)
		if err != nil {
			return err
		}
		poolValue = poolService.DailyPoolValue(available, dp.Percentage)
		weights = pool.DailyDistributionWeights
		excluded, err = s.distributions.RecentDailyWinnerIDs(ctx, pool.ID, now.Add(-7*24*time.Hour), dp.ID)
		if err != nil {
			return err
		}

	case entity.DistributionTypeWeekly:
		start, end = pool.StartDate, pool.EndDate
		available, err := s.availableValue(ctx, pool)
		if err != nil {
			return err
		}
		poolValue = available
		weights = pool.WeeklyDistributionWeights
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.location)
		excluded, err = s.distributions.MonthlyWeeklyWinnerIDs(ctx, monthStart, monthStart.AddDate(0, 1, 0), pool.ID)
		if err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown leaderboard cycle type: %s", cycleType)
	}

	ranked, err := s.ledger.Rank(ctx, entity.CurrencyActivityPoint, start, end, excluded, s.cfg.Limit)
	if err != nil {
		return fmt.Errorf("failed to rank users: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.UserID)
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load ranked users: %w", err)
	}
	userMap := make(map[uuid.UUID]entity.User, len(users))
	for _, u := range users {
		userMap[u.ID] = u
	}

	blob := dto.CachedLeaderboard{
		Type:        cycleType,
		PoolValue:   poolValue,
		GeneratedAt: now,
		Entries:     make([]dto.LeaderboardEntry, 0, len(ranked)),
	}
	for i, r := range ranked {
		var distValue int64
		if i < len(weights) {
			distValue = int64(math.Ceil(float64(poolValue) * weights[i]))
		}
		u := userMap[r.UserID]
		blob.Entries = append(blob.Entries, dto.LeaderboardEntry{
			Position:          i + 1,
			UserID:            r.UserID,
			Username:          u.Username,
			AvatarURL:         u.AvatarURL,
			ActivityPoints:    r.TotalValue,
			DistributionValue: distValue,
		})
	}

	if err := s.writeBlob(ctx, blob, ttl); err != nil {
		return err
	}

	// One overlay entry per ranked user so the read path can attach a
	// requester's own standing without re-ranking.
	for _, entry := range blob.Entries {
		position := dto.UserPosition{
			Position:          entry.Position,
			ActivityPoints:    entry.ActivityPoints,
			DistributionValue: entry.DistributionValue,
		}
		payload, err := json.Marshal(position)
		if err != nil {
			continue
		}
		if err := s.cache.Set(ctx, userKey(cycleType, entry.UserID), string(payload), ttl); err != nil {
			log.Printf("⚠️ Failed to cache %s position for user %s: %v", cycleType, entry.UserID, err)
		}
	}

	log.Printf("✅ %s leaderboard cache rebuilt: %d entries, pool value %d", cycleType, len(blob.Entries), poolValue)
	return nil
}

// writeBlob is best-effort: a cache store failure is logged as a warning and
// does not fail the build invocation.
func (s *cacheBuilderService) writeBlob(ctx context.Context, blob dto.CachedLeaderboard, ttl time.Duration) error {
	payload, err := json.Marshal(blob)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, blobKey(blob.Type), string(payload), ttl); err != nil {
		log.Printf("⚠️ Failed to write %s leaderboard cache: %v", blob.Type, err)
	}
	return nil
}

func (s *cacheBuilderService) availableValue(ctx context.Context, pool *entity.Prizepool) (int64, error) {
	incrementTotal, err := s.increments.Total(ctx, pool.ID)
	if err != nil {
		return 0, err
	}
	distributedTotal, err := s.distributions.DistributedTotal(ctx, pool.ID)
	if err != nil {
		return 0, err
	}
	return poolService.AvailableValue(pool.BasePoolValue, incrementTotal, distributedTotal), nil
}
