package scheduler

import (
	"context"
	"errors"

	"anoa.com/playquestrewards/internal/entity"
	leaderboardService "anoa.com/playquestrewards/internal/modules/leaderboard/service"
	poolService "anoa.com/playquestrewards/internal/modules/prizepool/service"
)

// ConclusionJob drives the prizepool cycle transitions on the infrequent
// conclusion schedule.
type ConclusionJob struct {
	service poolService.ConclusionService
	spec    string
}

func NewConclusionJob(service poolService.ConclusionService, spec string) *ConclusionJob {
	return &ConclusionJob{service: service, spec: spec}
}

func (j *ConclusionJob) Name() string     { return "prizepool-conclusion" }
func (j *ConclusionJob) Schedule() string { return j.spec }

func (j *ConclusionJob) Run(ctx context.Context) error {
	_, err := j.service.ConcludeDue(ctx)
	if errors.Is(err, poolService.ErrNoActivePrizepool) {
		// Recoverable: the next scheduled run retries.
		return nil
	}
	return err
}

// LeaderboardCacheJob rebuilds both leaderboard caches on the frequent cache
// schedule, independent of conclusion.
type LeaderboardCacheJob struct {
	service leaderboardService.CacheBuilderService
	spec    string
}

func NewLeaderboardCacheJob(service leaderboardService.CacheBuilderService, spec string) *LeaderboardCacheJob {
	return &LeaderboardCacheJob{service: service, spec: spec}
}

func (j *LeaderboardCacheJob) Name() string     { return "leaderboard-cache" }
func (j *LeaderboardCacheJob) Schedule() string { return j.spec }

func (j *LeaderboardCacheJob) Run(ctx context.Context) error {
	var errs []error
	for _, cycleType := range []string{entity.DistributionTypeDaily, entity.DistributionTypeWeekly} {
		if err := j.service.Build(ctx, cycleType); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
