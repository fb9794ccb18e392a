package service

import (
	"context"
	"errors"

	"anoa.com/playquestrewards/internal/modules/prizepool/dto"
	"anoa.com/playquestrewards/internal/modules/prizepool/repository"
	"anoa.com/playquestrewards/pkg/apperror"
)

// PoolQueryService exposes read-only views of the running cycle.
type PoolQueryService interface {
	CurrentPool(ctx context.Context) (*dto.PoolSummary, error)
}

type poolQueryService struct {
	pools         repository.PrizepoolRepository
	increments    repository.IncrementLogRepository
	distributions repository.DistributionRepository
}

func NewPoolQueryService(pools repository.PrizepoolRepository, increments repository.IncrementLogRepository, distributions repository.DistributionRepository) PoolQueryService {
	return &poolQueryService{
		pools:         pools,
		increments:    increments,
		distributions: distributions,
	}
}

func (s *poolQueryService) CurrentPool(ctx context.Context) (*dto.PoolSummary, error) {
	pool, err := s.pools.FindActive(ctx)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, ErrNoActivePrizepool
		}
		return nil, err
	}

	incrementTotal, err := s.increments.Total(ctx, pool.ID)
	if err != nil {
		return nil, err
	}
	distributedTotal, err := s.distributions.DistributedTotal(ctx, pool.ID)
	if err != nil {
		return nil, err
	}

	return &dto.PoolSummary{
		ID:               pool.ID.String(),
		Name:             pool.Name,
		StartDate:        pool.StartDate,
		EndDate:          pool.EndDate,
		BasePoolValue:    pool.BasePoolValue,
		IncrementTotal:   incrementTotal,
		DistributedTotal: distributedTotal,
		AvailableValue:   AvailableValue(pool.BasePoolValue, incrementTotal, distributedTotal),
	}, nil
}
