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

type IncrementLogRepository interface {
	WithTx(tx *gorm.DB) IncrementLogRepository

	// Append inserts a new log row. A duplicate (source, source_id) among
	// non-deleted rows returns apperror.ErrConflict.
	Append(ctx context.Context, log *entity.IncrementLog) error

	// Total sums increment_value over non-deleted rows for the pool.
	Total(ctx context.Context, poolID uuid.UUID) (int64, error)

	FindByID(ctx context.Context, id uint) (*entity.IncrementLog, error)

	// Reverse soft-deletes a row, immediately excluding it from Total.
	Reverse(ctx context.Context, id uint) error
}

type incrementLogRepository struct {
	db *gorm.DB
}

func NewIncrementLogRepository(db *gorm.DB) IncrementLogRepository {
	return &incrementLogRepository{db: db}
}

func (r *incrementLogRepository) WithTx(tx *gorm.DB) IncrementLogRepository {
	if tx == nil {
		return r
	}
	return &incrementLogRepository{db: tx}
}

func (r *incrementLogRepository) Append(ctx context.Context, log *entity.IncrementLog) error {
	err := r.db.WithContext(ctx).Create(log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperror.ErrConflict
		}
		return err
	}
	return nil
}

func (r *incrementLogRepository) Total(ctx context.Context, poolID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&entity.IncrementLog{}).
		Select("COALESCE(SUM(increment_value), 0)").
		Where("prizepool_id = ? AND deleted_at IS NULL", poolID).
		Scan(&total).Error
	return total, err
}

func (r *incrementLogRepository) FindByID(ctx context.Context, id uint) (*entity.IncrementLog, error) {
	var log entity.IncrementLog
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return &log, nil
}

func (r *incrementLogRepository) Reverse(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).
		Model(&entity.IncrementLog{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperror.ErrNotFound
	}
	return nil
}
