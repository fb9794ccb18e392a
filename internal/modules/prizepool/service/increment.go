package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"anoa.com/playquestrewards/internal/entity"
	"anoa.com/playquestrewards/internal/modules/prizepool/repository"
	"anoa.com/playquestrewards/pkg/apperror"
	"github.com/google/uuid"
)

const (
	AdKindRewarded     = "rewarded"
	AdKindInterstitial = "interstitial"
)

// ErrNoActivePrizepool signals that no cycle is currently running. Callers
// treat it as recoverable and retry on the next schedule.
var ErrNoActivePrizepool = errors.New("no active prizepool")

type IncrementService interface {
	// RecordAdView appends a pool increment for a watched ad. The increment
	// value comes from the active pool, honoring per-day overrides.
	RecordAdView(ctx context.Context, userID uuid.UUID, sourceID, kind string) (*entity.IncrementLog, error)

	// RecordPurchase appends a pool increment for a completed purchase.
	RecordPurchase(ctx context.Context, userID uuid.UUID, sourceID string) (*entity.IncrementLog, error)

	// Reverse soft-deletes an increment, removing it from the pool total.
	Reverse(ctx context.Context, id uint) error
}

type incrementService struct {
	pools      repository.PrizepoolRepository
	increments repository.IncrementLogRepository
	location   *time.Location
	now        func() time.Time
}

func NewIncrementService(pools repository.PrizepoolRepository, increments repository.IncrementLogRepository, location *time.Location) IncrementService {
	return &incrementService{
		pools:      pools,
		increments: increments,
		location:   location,
		now:        time.Now,
	}
}

func (s *incrementService) RecordAdView(ctx context.Context, userID uuid.UUID, sourceID, kind string) (*entity.IncrementLog, error) {
	pool, err := s.activePool(ctx)
	if err != nil {
		return nil, err
	}

	value := pool.AdsRewardedIncrement
	if kind == AdKindInterstitial {
		value = pool.AdsInterstitialIncrement
	}

	// Per-day override, when today's percentage row carries one.
	dayStart, dayEnd := dayBounds(s.now().In(s.location))
	if dp, err := s.pools.FindDailyPercentage(ctx, pool.ID, dayStart, dayEnd); err == nil {
		switch kind {
		case AdKindInterstitial:
			if dp.AdsInterstitialIncrement != nil {
				value = *dp.AdsInterstitialIncrement
			}
		default:
			if dp.AdsRewardedIncrement != nil {
				value = *dp.AdsRewardedIncrement
			}
		}
	}

	return s.append(ctx, pool.ID, userID, entity.IncrementSourceAds, sourceID, value)
}

func (s *incrementService) RecordPurchase(ctx context.Context, userID uuid.UUID, sourceID string) (*entity.IncrementLog, error) {
	pool, err := s.activePool(ctx)
	if err != nil {
		return nil, err
	}
	return s.append(ctx, pool.ID, userID, entity.IncrementSourcePurchase, sourceID, pool.ValuePerPurchase)
}

func (s *incrementService) Reverse(ctx context.Context, id uint) error {
	return s.increments.Reverse(ctx, id)
}

func (s *incrementService) activePool(ctx context.Context) (*entity.Prizepool, error) {
	pool, err := s.pools.FindActive(ctx)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, ErrNoActivePrizepool
		}
		return nil, err
	}
	return pool, nil
}

func (s *incrementService) append(ctx context.Context, poolID, userID uuid.UUID, source, sourceID string, value int64) (*entity.IncrementLog, error) {
	if value <= 0 {
		return nil, fmt.Errorf("%w: increment value must be positive, got %d", apperror.ErrInvalidInput, value)
	}

	log := &entity.IncrementLog{
		PrizepoolID: poolID,
		UserID:      userID,
		Source:      source,
		SourceID:    sourceID,
		Value:       value,
	}
	if err := s.increments.Append(ctx, log); err != nil {
		return nil, err
	}
	return log, nil
}

// dayBounds returns the [midnight, midnight+24h) window containing t, in t's
// location.
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.Add(24 * time.Hour)
}
