package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	IncrementSourceAds      = "ads"
	IncrementSourcePurchase = "purchase"
)

const (
	DistributionTypeDaily  = "daily"
	DistributionTypeWeekly = "weekly"
)

// Weights is an ordered list of payout fractions stored as a jsonb column.
// Index i of the list is rank position i+1.
type Weights []float64

func (w Weights) Value() (driver.Value, error) {
	return json.Marshal(w)
}

func (w *Weights) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, w)
	case string:
		return json.Unmarshal([]byte(v), w)
	case nil:
		*w = nil
		return nil
	default:
		return fmt.Errorf("unsupported weights column type %T", value)
	}
}

// Prizepool is one reward cycle. At most one row is active at any instant,
// enforced by a partial unique index on is_active (see bootstrap.Migrate).
type Prizepool struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"size:100;not null" json:"name"`

	BasePoolValue int64     `gorm:"not null" json:"base_pool_value"`
	StartDate     time.Time `gorm:"not null" json:"start_date"`
	EndDate       time.Time `gorm:"not null" json:"end_date"`

	AdsRewardedIncrement     int64 `gorm:"not null;default:0" json:"ads_rewarded_increment"`
	AdsInterstitialIncrement int64 `gorm:"not null;default:0" json:"ads_interstitial_increment"`
	ValuePerPurchase         int64 `gorm:"not null;default:0" json:"value_per_purchase"`

	DailyDistributionWeights  Weights `gorm:"type:jsonb;not null" json:"daily_distribution_weights"`
	WeeklyDistributionWeights Weights `gorm:"type:jsonb;not null" json:"weekly_distribution_weights"`

	IsActive bool `gorm:"not null;default:false;index" json:"is_active"`

	DailyPercentages []DailyPercentage `gorm:"foreignKey:PrizepoolID" json:"daily_percentages,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Prizepool) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID, err = uuid.NewV7()
	}
	return
}

// DailyPercentage allocates a fraction of the available pool value to one
// calendar day of the cycle. Rows are created in a batch alongside the pool
// and are immutable afterwards, except for cloning with dates shifted by 7
// days when the cycle rotates.
type DailyPercentage struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PrizepoolID uuid.UUID `gorm:"type:uuid;not null;index:idx_dp_pool_date,unique,priority:1" json:"prizepool_id"`
	Prizepool   Prizepool `gorm:"foreignKey:PrizepoolID" json:"-"`
	Date        time.Time `gorm:"not null;index:idx_dp_pool_date,unique,priority:2" json:"date"`
	Percentage  float64   `gorm:"not null" json:"percentage"`

	// Optional per-day overrides of the pool ad increments.
	AdsRewardedIncrement     *int64 `json:"ads_rewarded_increment,omitempty"`
	AdsInterstitialIncrement *int64 `json:"ads_interstitial_increment,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (d *DailyPercentage) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == uuid.Nil {
		d.ID, err = uuid.NewV7()
	}
	return
}

// IncrementLog is an append-only record attributing pool-value growth to an
// ad-view or purchase event. Reversals are soft deletes. A partial unique
// index on (source, source_id) where deleted_at is null rejects duplicate
// events (see bootstrap.Migrate).
type IncrementLog struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	PrizepoolID uuid.UUID  `gorm:"type:uuid;not null;index" json:"prizepool_id"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Source      string     `gorm:"size:20;not null" json:"source"`     // 'ads', 'purchase'
	SourceID    string     `gorm:"size:100;not null" json:"source_id"` // originating event id, used for de-duplication
	Value       int64      `gorm:"column:increment_value;not null" json:"increment_value"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt   *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

// Distribution is a committed payout of a share of the pool to one ranked
// user. Rows are inserted in a single batch per settlement and never updated.
type Distribution struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	PrizepoolID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"prizepool_id"`
	DailyPercentageID *uuid.UUID `gorm:"type:uuid;index" json:"daily_percentage_id,omitempty"` // null ⇒ weekly settlement
	UserID            uuid.UUID  `gorm:"type:uuid;not null;index:idx_dist_user_type,priority:1" json:"user_id"`
	User              User       `gorm:"foreignKey:UserID" json:"-"`
	Position          int        `gorm:"not null" json:"position"` // 1-based rank, tied to the weights array index
	Type              string     `gorm:"size:10;not null;index:idx_dist_user_type,priority:2" json:"type"`
	Value             int64      `gorm:"not null" json:"value"`
	CreatedAt         time.Time  `gorm:"index" json:"created_at"`
}
