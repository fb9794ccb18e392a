package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"anoa.com/playquestrewards/internal/entity"
	"anoa.com/playquestrewards/internal/modules/leaderboard/dto"
	poolRepo "anoa.com/playquestrewards/internal/modules/prizepool/repository"
	"anoa.com/playquestrewards/pkg/apperror"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CacheReader is the narrow read surface of the key-value store the
// leaderboard read path depends on.
type CacheReader interface {
	// Get returns the value for key, with found=false on a cache miss.
	Get(ctx context.Context, key string) (value string, found bool, err error)
}

type redisCacheReader struct {
	client *redis.Client
}

func NewRedisCacheReader(client *redis.Client) CacheReader {
	return &redisCacheReader{client: client}
}

func (r *redisCacheReader) Get(ctx context.Context, key string) (string, bool, error) {
	if r.client == nil {
		return "", false, nil
	}
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// LeaderboardService is the user-facing read path. It serves only cached
// data and never performs the ranking computation synchronously: a cold
// cache yields an explicit absent result.
type LeaderboardService interface {
	// GetLeaderboard returns the cached view, or (nil, nil) when the cache
	// has not been built yet.
	GetLeaderboard(ctx context.Context, cycleType string, userID *uuid.UUID) (*dto.LeaderboardView, error)
}

type leaderboardService struct {
	cache         CacheReader
	distributions poolRepo.DistributionRepository
	location      *time.Location
	now           func() time.Time
}

func NewLeaderboardService(cache CacheReader, distributions poolRepo.DistributionRepository, location *time.Location) LeaderboardService {
	return &leaderboardService{
		cache:         cache,
		distributions: distributions,
		location:      location,
		now:           time.Now,
	}
}

func (s *leaderboardService) GetLeaderboard(ctx context.Context, cycleType string, userID *uuid.UUID) (*dto.LeaderboardView, error) {
	if cycleType != entity.DistributionTypeDaily && cycleType != entity.DistributionTypeWeekly {
		return nil, fmt.Errorf("%w: unknown leaderboard type %q", apperror.ErrInvalidInput, cycleType)
	}

	payload, found, err := s.cache.Get(ctx, blobKey(cycleType))
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard cache: %w", err)
	}
	if !found {
		return nil, nil
	}

	var blob dto.CachedLeaderboard
	if err := json.Unmarshal([]byte(payload), &blob); err != nil {
		return nil, fmt.Errorf("corrupt leaderboard cache blob: %w", err)
	}

	view := &dto.LeaderboardView{
		Type:        blob.Type,
		PoolValue:   blob.PoolValue,
		GeneratedAt: blob.GeneratedAt,
		Entries:     blob.Entries,
	}

	if userID == nil {
		return view, nil
	}

	// Overlay composed at read time; the cached blob itself stays untouched.
	if userPayload, found, err := s.cache.Get(ctx, userKey(cycleType, *userID)); err == nil && found {
		var position dto.UserPosition
		if err := json.Unmarshal([]byte(userPayload), &position); err == nil {
			view.AuthPosition = &position
		}
	}
	for i := range view.Entries {
		if view.Entries[i].UserID == *userID {
			view.Entries[i].IsSelf = true
		}
	}

	if win := s.previousWin(ctx, cycleType, *userID); win != nil {
		view.AuthPositionPreviousWinner = win
	}

	return view, nil
}

// previousWin reports the requester's most recent win inside the exclusion
// lookback window, with the date they become eligible to win again.
func (s *leaderboardService) previousWin(ctx context.Context, cycleType string, userID uuid.UUID) *dto.PreviousWin {
	now := s.now().In(s.location)

	var since time.Time
	if cycleType == entity.DistributionTypeDaily {
		since = now.Add(-7 * 24 * time.Hour)
	} else {
		since = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.location)
	}

	row, err := s.distributions.LastWin(ctx, userID, cycleType, since)
	if err != nil {
		return nil
	}

	var eligibleAt time.Time
	if cycleType == entity.DistributionTypeDaily {
		eligibleAt = row.CreatedAt.Add(7 * 24 * time.Hour)
	} else {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.location)
		eligibleAt = monthStart.AddDate(0, 1, 0)
	}

	return &dto.PreviousWin{
		Position:   row.Position,
		WonAt:      row.CreatedAt,
		EligibleAt: eligibleAt,
	}
}
