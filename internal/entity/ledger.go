package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	CurrencyCoin          = "coin"
	CurrencyActivityPoint = "activity_point"
)

const (
	MovementCredit = "credit"
	MovementDebit  = "debit"
)

// Transaction is one append-only ledger record. A transaction groups one or
// more typed currency movements so multi-currency rewards commit atomically.
type Transaction struct {
	ID          uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID           `gorm:"type:uuid;not null;index:idx_tx_user_date,priority:1" json:"user_id"`
	User        User                `gorm:"foreignKey:UserID" json:"-"`
	Description string              `gorm:"type:text" json:"description"`
	Code        string              `gorm:"size:50;not null;index" json:"code"` // e.g. 'quest_reward', 'prizepool_daily', 'prizepool_weekly'
	Extras      string              `gorm:"type:jsonb;default:'{}'" json:"extras"`
	Details     []TransactionDetail `gorm:"foreignKey:TransactionID" json:"details"`
	CreatedAt   time.Time           `gorm:"index:idx_tx_user_date,priority:2;index:idx_tx_date" json:"created_at"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID, err = uuid.NewV7()
	}
	return
}

// TransactionDetail is a single typed currency movement within a transaction.
type TransactionDetail struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TransactionID uuid.UUID `gorm:"type:uuid;not null;index" json:"transaction_id"`
	Currency      string    `gorm:"size:20;not null;index:idx_td_currency_type,priority:1" json:"currency"` // 'coin', 'coupon', 'activity_point'
	Type          string    `gorm:"size:10;not null;index:idx_td_currency_type,priority:2" json:"type"`     // 'credit', 'debit'
	Value         int64     `gorm:"not null" json:"value"`
}
