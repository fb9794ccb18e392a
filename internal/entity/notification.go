package entity

import (
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Code          string    `gorm:"type:varchar(50);not null" json:"code"` // template code, e.g. 'prizepool_daily_winner'
	Message       string    `gorm:"type:text" json:"message"`
	ReferenceID   *string   `gorm:"type:varchar(64)" json:"reference_id,omitempty"`
	ReferenceType string    `gorm:"type:varchar(50)" json:"reference_type"` // 'distribution', 'prizepool'
	IsRead        bool      `gorm:"default:false" json:"is_read"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
