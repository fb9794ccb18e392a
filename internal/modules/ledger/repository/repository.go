package repository

import (
	"context"
	"time"

	"anoa.com/playquestrewards/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RankedUser is one row of the windowed ranking aggregation.
type RankedUser struct {
	UserID     uuid.UUID `json:"user_id"`
	TotalValue int64     `json:"total_value"`
}

type LedgerRepository interface {
	// WithTx returns a repository bound to the given transaction.
	WithTx(tx *gorm.DB) LedgerRepository

	// Append atomically records a transaction with its currency movements.
	Append(ctx context.Context, userID uuid.UUID, details []entity.TransactionDetail, description, code, extras string) error

	// Rank sums credit movements of the given currency in [start, end),
	// grouped by user, excluding excludedUserIDs, ordered by total descending.
	// Ties on total are broken by ascending user id so results are
	// reproducible.
	Rank(ctx context.Context, currency string, start, end time.Time, excludedUserIDs []uuid.UUID, limit int) ([]RankedUser, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) WithTx(tx *gorm.DB) LedgerRepository {
	if tx == nil {
		return r
	}
	return &ledgerRepository{db: tx}
}

func (r *ledgerRepository) Append(ctx context.Context, userID uuid.UUID, details []entity.TransactionDetail, description, code, extras string) error {
	if extras == "" {
		extras = "{}"
	}
	tx := &entity.Transaction{
		UserID:      userID,
		Description: description,
		Code:        code,
		Extras:      extras,
		Details:     details,
		CreatedAt:   time.Now(),
	}
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *ledgerRepository) Rank(ctx context.Context, currency string, start, end time.Time, excludedUserIDs []uuid.UUID, limit int) ([]RankedUser, error) {
	var results []RankedUser

	query := r.db.WithContext(ctx).
		Model(&entity.TransactionDetail{}).
		Select("transactions.user_id AS user_id, SUM(transaction_details.value) AS total_value").
		Joins("JOIN transactions ON transactions.id = transaction_details.transaction_id").
		Where("transaction_details.currency = ? AND transaction_details.type = ?", currency, entity.MovementCredit).
		Where("transactions.created_at >= ? AND transactions.created_at < ?", start, end)

	if len(excludedUserIDs) > 0 {
		query = query.Where("transactions.user_id NOT IN ?", excludedUserIDs)
	}

	err := query.
		Group("transactions.user_id").
		Order("total_value DESC, transactions.user_id ASC").
		Limit(limit).
		Scan(&results).Error

	return results, err
}
