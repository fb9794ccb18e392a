package repository

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"anoa.com/playquestrewards/internal/entity"
	"anoa.com/playquestrewards/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PrizepoolRepository interface {
	WithTx(tx *gorm.DB) PrizepoolRepository

	// FindActive returns the single active pool, or apperror.ErrNotFound.
	FindActive(ctx context.Context) (*entity.Prizepool, error)

	// FindDailyPercentage returns the pool's percentage row whose date falls
	// in [dayStart, dayEnd), or apperror.ErrNotFound.
	FindDailyPercentage(ctx context.Context, poolID uuid.UUID, dayStart, dayEnd time.Time) (*entity.DailyPercentage, error)

	// ListDailyPercentages returns the pool's per-day rows ordered by date.
	ListDailyPercentages(ctx context.Context, poolID uuid.UUID) ([]entity.DailyPercentage, error)

	Deactivate(ctx context.Context, poolID uuid.UUID) error

	// CreateWithDailyPercentages inserts a pool and its per-day percentage
	// rows in one batch.
	CreateWithDailyPercentages(ctx context.Context, pool *entity.Prizepool, percentages []entity.DailyPercentage) error

	// TryConclusionLock takes a Postgres advisory transaction lock keyed by
	// the pool id. Returns false without blocking when another conclusion run
	// already holds it. Only meaningful inside a transaction.
	TryConclusionLock(ctx context.Context, poolID uuid.UUID) (bool, error)
}

type prizepoolRepository struct {
	db *gorm.DB
}

func NewPrizepoolRepository(db *gorm.DB) PrizepoolRepository {
	return &prizepoolRepository{db: db}
}

func (r *prizepoolRepository) WithTx(tx *gorm.DB) PrizepoolRepository {
	if tx == nil {
		return r
	}
	return &prizepoolRepository{db: tx}
}

func (r *prizepoolRepository) FindActive(ctx context.Context) (*entity.Prizepool, error) {
	var pool entity.Prizepool
	err := r.db.WithContext(ctx).Where("is_active = ?", true).First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return &pool, nil
}

func (r *prizepoolRepository) FindDailyPercentage(ctx context.Context, poolID uuid.UUID, dayStart, dayEnd time.Time) (*entity.DailyPercentage, error) {
	var dp entity.DailyPercentage
	err := r.db.WithContext(ctx).
		Where("prizepool_id = ? AND date >= ? AND date < ?", poolID, dayStart, dayEnd).
		First(&dp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return &dp, nil
}

func (r *prizepoolRepository) ListDailyPercentages(ctx context.Context, poolID uuid.UUID) ([]entity.DailyPercentage, error) {
	var rows []entity.DailyPercentage
	err := r.db.WithContext(ctx).
		Where("prizepool_id = ?", poolID).
		Order("date asc").
		Find(&rows).Error
	return rows, err
}

func (r *prizepoolRepository) Deactivate(ctx context.Context, poolID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&entity.Prizepool{}).
		Where("id = ?", poolID).
		Update("is_active", false).Error
}

func (r *prizepoolRepository) CreateWithDailyPercentages(ctx context.Context, pool *entity.Prizepool, percentages []entity.DailyPercentage) error {
	db := r.db.WithContext(ctx)
	if err := db.Create(pool).Error; err != nil {
		return err
	}
	for i := range percentages {
		percentages[i].PrizepoolID = pool.ID
	}
	if len(percentages) == 0 {
		return nil
	}
	return db.Create(&percentages).Error
}

func (r *prizepoolRepository) TryConclusionLock(ctx context.Context, poolID uuid.UUID) (bool, error) {
	var acquired bool
	err := r.db.WithContext(ctx).
		Raw("SELECT pg_try_advisory_xact_lock(?)", lockKey(poolID)).
		Scan(&acquired).Error
	return acquired, err
}

// lockKey folds the pool uuid into the signed 64-bit key space advisory
// locks use.
func lockKey(poolID uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write([]byte(poolID.String()))
	return int64(h.Sum64())
}
