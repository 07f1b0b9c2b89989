package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentTypeSharePoint is the index payload documentType of every tracked file.
const DocumentTypeSharePoint = "sharepoint"

// TrackedFile is the local mirror of a remote Word document: its HTML
// rendering, change tag and embedding.
type TrackedFile struct {
	ID        uuid.UUID                  `gorm:"type:uuid;primaryKey" json:"id"`
	DriveID   uuid.UUID                  `gorm:"type:uuid;not null;uniqueIndex:idx_file_drive_item" json:"drive_id"`
	Drive     *Drive                     `gorm:"constraint:OnDelete:CASCADE;foreignKey:DriveID;references:ID" json:"drive,omitempty"`
	ItemID    string                     `gorm:"not null;uniqueIndex:idx_file_drive_item;index" json:"item_id"`
	Name      string                     `gorm:"not null" json:"name"`
	CTag      string                     `gorm:"column:c_tag;not null" json:"c_tag"`
	Content   string                     `gorm:"type:text;not null" json:"content"`
	Embedding datatypes.JSONSlice[float32] `json:"-"`
	// Dirty marks content changed remotely since the last operator write-back.
	Dirty     bool      `gorm:"not null;default:false" json:"dirty"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (TrackedFile) TableName() string { return "tracked_file" }

func (f *TrackedFile) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// IndexPayload is the payload stored with the file's vector.
func (f *TrackedFile) IndexPayload() map[string]any {
	return map[string]any{
		"documentType": DocumentTypeSharePoint,
		"driveId":      f.DriveID.String(),
		"itemId":       f.ItemID,
	}
}
