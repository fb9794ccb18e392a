package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"anoa.com/playquestrewards/internal/entity"
	ledgerRepo "anoa.com/playquestrewards/internal/modules/ledger/repository"
	notifService "anoa.com/playquestrewards/internal/modules/notification/service"
	"anoa.com/playquestrewards/internal/modules/prizepool/repository"
	userRepo "anoa.com/playquestrewards/internal/modules/user/repository"
	"anoa.com/playquestrewards/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// errSettlementBusy aborts a settlement transaction when another run already
// holds the pool's conclusion lock. The caller skips instead of blocking.
var errSettlementBusy = errors.New("settlement already in progress")

// TxManager is the transaction boundary, satisfied by *gorm.DB.
type TxManager interface {
	Transaction(fn func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

// ConclusionService drives the daily/weekly cycle transitions.
type ConclusionService interface {
	// ConcludeDue evaluates the daily and weekly transitions independently
	// and may perform neither, one, or both. Returns true when any
	// transition ran, and ErrNoActivePrizepool when no cycle is active.
	ConcludeDue(ctx context.Context) (bool, error)
}

type conclusionService struct {
	txm           TxManager
	pools         repository.PrizepoolRepository
	increments    repository.IncrementLogRepository
	distributions repository.DistributionRepository
	ledger        ledgerRepo.LedgerRepository
	users         userRepo.UserRepository
	notifier      notifService.NotificationService
	location      *time.Location
	now           func() time.Time
}

func NewConclusionService(
	txm TxManager,
	pools repository.PrizepoolRepository,
	increments repository.IncrementLogRepository,
	distributions repository.DistributionRepository,
	ledger ledgerRepo.LedgerRepository,
	users userRepo.UserRepository,
	notifier notifService.NotificationService,
	location *time.Location,
) ConclusionService {
	return &conclusionService{
		txm:           txm,
		pools:         pools,
		increments:    increments,
		distributions: distributions,
		ledger:        ledger,
		users:         users,
		notifier:      notifier,
		location:      location,
		now:           time.Now,
	}
}

func (s *conclusionService) ConcludeDue(ctx context.Context) (bool, error) {
	pool, err := s.pools.FindActive(ctx)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			log.Println("⚠️ concludeDue: no active prizepool")
			return false, ErrNoActivePrizepool
		}
		return false, fmt.Errorf("failed to load active prizepool: %w", err)
	}

	ran, err := s.concludeDaily(ctx, pool)
	if err != nil {
		return ran, err
	}

	if !s.now().In(s.location).Before(pool.EndDate) {
		weeklyRan, err := s.concludeWeekly(ctx, pool)
		if err != nil {
			return ran || weeklyRan, err
		}
		ran = ran || weeklyRan
	}

	return ran, nil
}

// concludeDaily settles yesterday's percentage row, if the pool has one.
func (s *conclusionService) concludeDaily(ctx context.Context, pool *entity.Prizepool) (bool, error) {
	now := s.now().In(s.location)
	todayStart, _ := dayBounds(now)
	dayStart := todayStart.Add(-24 * time.Hour)
	dayEnd := todayStart

	dp, err := s.pools.FindDailyPercentage(ctx, pool.ID, dayStart, dayEnd)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// Nothing pending for yesterday (e.g. the cycle started today).
			return false, nil
		}
		return false, fmt.Errorf("failed to locate daily percentage: %w", err)
	}

	if err := ValidateWeights(pool.DailyDistributionWeights); err != nil {
		return false, fmt.Errorf("daily settlement aborted: %w", err)
	}

	var payouts []Payout
	err = s.txm.Transaction(func(tx *gorm.DB) error {
		pools := s.pools.WithTx(tx)
		dists := s.distributions.WithTx(tx)
		incs := s.increments.WithTx(tx)
		ledger := s.ledger.WithTx(tx)
		users := s.users.WithTx(tx)

		acquired, err := pools.TryConclusionLock(ctx, pool.ID)
		if err != nil {
			return err
		}
		if !acquired {
			return errSettlementBusy
		}

		excluded, err := dists.RecentDailyWinnerIDs(ctx, pool.ID, now.Add(-7*24*time.Hour), dp.ID)
		if err != nil {
			return err
		}

		winners, err := ledger.Rank(ctx, entity.CurrencyActivityPoint, dayStart, dayEnd, excluded, len(pool.DailyDistributionWeights))
		if err != nil {
			return err
		}

		// Reverse any prior settlement of this day before reading the pool
		// value: the prior payout rows would otherwise shrink the available
		// value and a re-run would commit different amounts.
		if err := s.rollBackPriorSettlement(ctx, users, dists, dp.ID, uuid.Nil); err != nil {
			return err
		}

		// Valuation snapshot: read inside the same transaction that commits
		// the distributions, so racing increment writes cannot be lost or
		// double-counted between read and commit.
		available, err := s.availableValue(ctx, incs, dists, pool)
		if err != nil {
			return err
		}
		dailyPool := DailyPoolValue(available, dp.Percentage)
		payouts = SplitPayouts(dailyPool, pool.DailyDistributionWeights, winners)

		return s.commitPayouts(ctx, users, ledger, dists, pool, &dp.ID, entity.DistributionTypeDaily, payouts)
	})
	if err != nil {
		if errors.Is(err, errSettlementBusy) {
			log.Printf("⏭️ Daily settlement for pool %s skipped, another run holds the lock", pool.ID)
			return false, nil
		}
		return false, fmt.Errorf("daily settlement failed: %w", err)
	}

	s.notifyWinners(ctx, notifService.CodeDailyWinner, pool.ID, payouts)
	log.Printf("✅ Daily settlement for %s committed: %d payouts", dayStart.Format("2006-01-02"), len(payouts))
	return true, nil
}

// concludeWeekly settles the whole cycle, rotates the pool forward by 7 days
// and resets activity points platform-wide.
func (s *conclusionService) concludeWeekly(ctx context.Context, pool *entity.Prizepool) (bool, error) {
	now := s.now().In(s.location)

	if err := ValidateWeights(pool.WeeklyDistributionWeights); err != nil {
		return false, fmt.Errorf("weekly settlement aborted: %w", err)
	}

	dps, err := s.pools.ListDailyPercentages(ctx, pool.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load daily percentages: %w", err)
	}

	var payouts []Payout
	err = s.txm.Transaction(func(tx *gorm.DB) error {
		pools := s.pools.WithTx(tx)
		dists := s.distributions.WithTx(tx)
		incs := s.increments.WithTx(tx)
		ledger := s.ledger.WithTx(tx)
		users := s.users.WithTx(tx)

		acquired, err := pools.TryConclusionLock(ctx, pool.ID)
		if err != nil {
			return err
		}
		if !acquired {
			return errSettlementBusy
		}

		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.location)
		excluded, err := dists.MonthlyWeeklyWinnerIDs(ctx, monthStart, monthStart.AddDate(0, 1, 0), pool.ID)
		if err != nil {
			return err
		}

		winners, err := ledger.Rank(ctx, entity.CurrencyActivityPoint, pool.StartDate, pool.EndDate, excluded, len(pool.WeeklyDistributionWeights))
		if err != nil {
			return err
		}

		if err := s.rollBackPriorSettlement(ctx, users, dists, uuid.Nil, pool.ID); err != nil {
			return err
		}

		// Full pool for the cycle end, no daily percentage applied.
		available, err := s.availableValue(ctx, incs, dists, pool)
		if err != nil {
			return err
		}
		payouts = SplitPayouts(available, pool.WeeklyDistributionWeights, winners)

		if err := s.commitPayouts(ctx, users, ledger, dists, pool, nil, entity.DistributionTypeWeekly, payouts); err != nil {
			return err
		}

		if err := pools.Deactivate(ctx, pool.ID); err != nil {
			return err
		}

		successor := clonePool(pool)
		shifted := cloneDailyPercentages(dps)
		if err := pools.CreateWithDailyPercentages(ctx, successor, shifted); err != nil {
			return err
		}

		return users.ResetActivityPoints(ctx)
	})
	if err != nil {
		if errors.Is(err, errSettlementBusy) {
			log.Printf("⏭️ Weekly settlement for pool %s skipped, another run holds the lock", pool.ID)
			return false, nil
		}
		return false, fmt.Errorf("weekly settlement failed: %w", err)
	}

	s.notifyWinners(ctx, notifService.CodeWeeklyWinner, pool.ID, payouts)
	if s.notifier != nil {
		s.notifier.BroadcastByCode(ctx, notifService.CodeCycleStarted, nil)
	}
	log.Printf("✅ Weekly settlement for pool %s committed: %d payouts, cycle rotated", pool.ID, len(payouts))
	return true, nil
}

func (s *conclusionService) availableValue(ctx context.Context, incs repository.IncrementLogRepository, dists repository.DistributionRepository, pool *entity.Prizepool) (int64, error) {
	incrementTotal, err := incs.Total(ctx, pool.ID)
	if err != nil {
		return 0, err
	}
	distributedTotal, err := dists.DistributedTotal(ctx, pool.ID)
	if err != nil {
		return 0, err
	}
	return AvailableValue(pool.BasePoolValue, incrementTotal, distributedTotal), nil
}

// rollBackPriorSettlement reverses the coin credits of a previously committed
// settlement for the same day (or week) and deletes its rows, so a re-run
// commits exactly once. Exactly one of dailyPercentageID / weeklyPoolID is set.
func (s *conclusionService) rollBackPriorSettlement(ctx context.Context, users userRepo.UserRepository, dists repository.DistributionRepository, dailyPercentageID, weeklyPoolID uuid.UUID) error {
	var existing []entity.Distribution
	var err error
	if dailyPercentageID != uuid.Nil {
		existing, err = dists.FindForDailyPercentage(ctx, dailyPercentageID)
	} else {
		existing, err = dists.FindWeeklyForPool(ctx, weeklyPoolID)
	}
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}

	for _, row := range existing {
		if err := users.CreditCoins(ctx, row.UserID, -row.Value); err != nil {
			return err
		}
	}

	if dailyPercentageID != uuid.Nil {
		return dists.DeleteForDailyPercentage(ctx, dailyPercentageID)
	}
	return dists.DeleteWeeklyForPool(ctx, weeklyPoolID)
}

// commitPayouts inserts the distribution batch, then credits each winner and
// appends the ledger entry in ascending position order.
func (s *conclusionService) commitPayouts(ctx context.Context, users userRepo.UserRepository, ledger ledgerRepo.LedgerRepository, dists repository.DistributionRepository, pool *entity.Prizepool, dailyPercentageID *uuid.UUID, distributionType string, payouts []Payout) error {
	if len(payouts) == 0 {
		return nil
	}

	createdAt := s.now()
	rows := make([]entity.Distribution, 0, len(payouts))
	for _, p := range payouts {
		rows = append(rows, entity.Distribution{
			PrizepoolID:       pool.ID,
			DailyPercentageID: dailyPercentageID,
			UserID:            p.UserID,
			Position:          p.Position,
			Type:              distributionType,
			Value:             p.Value,
			CreatedAt:         createdAt,
		})
	}
	if err := dists.CreateBatch(ctx, rows); err != nil {
		return err
	}

	code := "prizepool_daily"
	if distributionType == entity.DistributionTypeWeekly {
		code = "prizepool_weekly"
	}

	for _, p := range payouts {
		if err := users.CreditCoins(ctx, p.UserID, p.Value); err != nil {
			return err
		}
		extras := fmt.Sprintf(`{"prizepool_id":%q,"position":%d}`, pool.ID, p.Position)
		details := []entity.TransactionDetail{
			{Currency: entity.CurrencyCoin, Type: entity.MovementCredit, Value: p.Value},
		}
		description := fmt.Sprintf("Prizepool %s payout, position %d", distributionType, p.Position)
		if err := ledger.Append(ctx, p.UserID, details, description, code, extras); err != nil {
			return err
		}
	}

	return nil
}

// notifyWinners is post-commit and best-effort: a delivery failure never
// rolls back a settlement.
func (s *conclusionService) notifyWinners(ctx context.Context, code string, poolID uuid.UUID, payouts []Payout) {
	if s.notifier == nil {
		return
	}
	ref := poolID.String()
	for _, p := range payouts {
		err := s.notifier.SendByCode(ctx, code, []interface{}{p.Position, p.Value}, []uuid.UUID{p.UserID}, &ref, "prizepool")
		if err != nil {
			log.Printf("⚠️ Failed to notify winner %s: %v", p.UserID, err)
		}
	}
}

func clonePool(pool *entity.Prizepool) *entity.Prizepool {
	return &entity.Prizepool{
		Name:                      pool.Name,
		BasePoolValue:             pool.BasePoolValue,
		StartDate:                 pool.StartDate.AddDate(0, 0, 7),
		EndDate:                   pool.EndDate.AddDate(0, 0, 7),
		AdsRewardedIncrement:      pool.AdsRewardedIncrement,
		AdsInterstitialIncrement:  pool.AdsInterstitialIncrement,
		ValuePerPurchase:          pool.ValuePerPurchase,
		DailyDistributionWeights:  pool.DailyDistributionWeights,
		WeeklyDistributionWeights: pool.WeeklyDistributionWeights,
		IsActive:                  true,
	}
}

func cloneDailyPercentages(dps []entity.DailyPercentage) []entity.DailyPercentage {
	shifted := make([]entity.DailyPercentage, 0, len(dps))
	for _, dp := range dps {
		shifted = append(shifted, entity.DailyPercentage{
			Date:                     dp.Date.AddDate(0, 0, 7),
			Percentage:               dp.Percentage,
			AdsRewardedIncrement:     dp.AdsRewardedIncrement,
			AdsInterstitialIncrement: dp.AdsInterstitialIncrement,
		})
	}
	return shifted
}
