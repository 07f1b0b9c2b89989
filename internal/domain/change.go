package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	// ChangeDeleted is never persisted: deleting a file cascades to its changes.
	ChangeDeleted ChangeKind = "deleted"
)

// Change records one observed modification of a tracked file. It is
// reconciled at most once: Processed flips false to true exactly once.
type Change struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Kind       ChangeKind   `gorm:"type:varchar(16);not null" json:"kind"`
	FileID     uuid.UUID    `gorm:"type:uuid;not null;index" json:"file_id"`
	File       *TrackedFile `gorm:"constraint:OnDelete:CASCADE;foreignKey:FileID;references:ID" json:"file,omitempty"`
	OldContent *string      `gorm:"type:text" json:"old_content,omitempty"`
	NewContent string       `gorm:"type:text;not null" json:"new_content"`
	Processed  bool         `gorm:"not null;default:false;index" json:"processed"`
	CreatedAt  time.Time    `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

func (Change) TableName() string { return "file_change" }

func (c *Change) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{&Drive{}, &Subscription{}, &TrackedFile{}, &Change{}}
}
