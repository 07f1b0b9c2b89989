package domain

import (
	"time"

	"github.com/google/uuid"
)

// Subscription mirrors a Graph change-notification subscription on a drive root.
// ID is the id Graph assigned.
type Subscription struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	DriveID   uuid.UUID `gorm:"type:uuid;not null;index" json:"drive_id"`
	Drive     *Drive    `gorm:"constraint:OnDelete:CASCADE;foreignKey:DriveID;references:ID" json:"drive,omitempty"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscription" }
