package repository

import (
	"context"
	"errors"
	"time"

	"anoa.com/playquestrewards/internal/entity"
	"anoa.com/playquestrewards/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DistributionRepository interface {
	WithTx(tx *gorm.DB) DistributionRepository

	// DistributedTotal sums committed payout values for the pool across all
	// settlements in its lifetime.
	DistributedTotal(ctx context.Context, poolID uuid.UUID) (int64, error)

	// RecentDailyWinnerIDs returns users who won a daily distribution of this
	// pool since the given time. Rows for excludeDailyPercentageID are
	// ignored so a settlement re-run does not exclude its own prior output.
	RecentDailyWinnerIDs(ctx context.Context, poolID uuid.UUID, since time.Time, excludeDailyPercentageID uuid.UUID) ([]uuid.UUID, error)

	// MonthlyWeeklyWinnerIDs returns users who won any weekly distribution
	// in [monthStart, monthEnd), across pools, ignoring rows of excludePoolID.
	MonthlyWeeklyWinnerIDs(ctx context.Context, monthStart, monthEnd time.Time, excludePoolID uuid.UUID) ([]uuid.UUID, error)

	// FindForDailyPercentage returns the committed rows of one daily
	// settlement, ascending by position.
	FindForDailyPercentage(ctx context.Context, dailyPercentageID uuid.UUID) ([]entity.Distribution, error)

	FindWeeklyForPool(ctx context.Context, poolID uuid.UUID) ([]entity.Distribution, error)

	DeleteForDailyPercentage(ctx context.Context, dailyPercentageID uuid.UUID) error
	DeleteWeeklyForPool(ctx context.Context, poolID uuid.UUID) error

	CreateBatch(ctx context.Context, rows []entity.Distribution) error

	// LastWin returns the user's most recent distribution of the given type
	// since the given time, or apperror.ErrNotFound.
	LastWin(ctx context.Context, userID uuid.UUID, distributionType string, since time.Time) (*entity.Distribution, error)
}

type distributionRepository struct {
	db *gorm.DB
}

func NewDistributionRepository(db *gorm.DB) DistributionRepository {
	return &distributionRepository{db: db}
}

func (r *distributionRepository) WithTx(tx *gorm.DB) DistributionRepository {
	if tx == nil {
		return r
	}
	return &distributionRepository{db: tx}
}

func (r *distributionRepository) DistributedTotal(ctx context.Context, poolID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&entity.Distribution{}).
		Select("COALESCE(SUM(value), 0)").
		Where("prizepool_id = ?", poolID).
		Scan(&total).Error
	return total, err
}

func (r *distributionRepository) RecentDailyWinnerIDs(ctx context.Context, poolID uuid.UUID, since time.Time, excludeDailyPercentageID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := r.db.WithContext(ctx).
		Model(&entity.Distribution{}).
		Distinct("user_id").
		Where("prizepool_id = ? AND type = ? AND created_at >= ?", poolID, entity.DistributionTypeDaily, since)
	if excludeDailyPercentageID != uuid.Nil {
		query = query.Where("daily_percentage_id <> ?", excludeDailyPercentageID)
	}
	err := query.Pluck("user_id", &ids).Error
	return ids, err
}

func (r *distributionRepository) MonthlyWeeklyWinnerIDs(ctx context.Context, monthStart, monthEnd time.Time, excludePoolID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := r.db.WithContext(ctx).
		Model(&entity.Distribution{}).
		Distinct("user_id").
		Where("type = ? AND created_at >= ? AND created_at < ?", entity.DistributionTypeWeekly, monthStart, monthEnd)
	if excludePoolID != uuid.Nil {
		query = query.Where("prizepool_id <> ?", excludePoolID)
	}
	err := query.Pluck("user_id", &ids).Error
	return ids, err
}

func (r *distributionRepository) FindForDailyPercentage(ctx context.Context, dailyPercentageID uuid.UUID) ([]entity.Distribution, error) {
	var rows []entity.Distribution
	err := r.db.WithContext(ctx).
		Where("daily_percentage_id = ?", dailyPercentageID).
		Order("position asc").
		Find(&rows).Error
	return rows, err
}

func (r *distributionRepository) FindWeeklyForPool(ctx context.Context, poolID uuid.UUID) ([]entity.Distribution, error) {
	var rows []entity.Distribution
	err := r.db.WithContext(ctx).
		Where("prizepool_id = ? AND type = ?", poolID, entity.DistributionTypeWeekly).
		Order("position asc").
		Find(&rows).Error
	return rows, err
}

func (r *distributionRepository) DeleteForDailyPercentage(ctx context.Context, dailyPercentageID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("daily_percentage_id = ?", dailyPercentageID).
		Delete(&entity.Distribution{}).Error
}

func (r *distributionRepository) DeleteWeeklyForPool(ctx context.Context, poolID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("prizepool_id = ? AND type = ?", poolID, entity.DistributionTypeWeekly).
		Delete(&entity.Distribution{}).Error
}

func (r *distributionRepository) CreateBatch(ctx context.Context, rows []entity.Distribution) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *distributionRepository) LastWin(ctx context.Context, userID uuid.UUID, distributionType string, since time.Time) (*entity.Distribution, error) {
	var row entity.Distribution
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND created_at >= ?", userID, distributionType, since).
		Order("created_at desc").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}
