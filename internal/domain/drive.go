package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Drive is a SharePoint document library opted into sync.
type Drive struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SiteID string    `gorm:"not null;uniqueIndex:idx_drive_site_drive" json:"site_id"`
	// RemoteDriveID is the Graph drive id. It must not be named DriveID:
	// gorm would resolve TrackedFile.Drive and Subscription.Drive against it.
	RemoteDriveID string `gorm:"column:graph_drive_id;not null;uniqueIndex:idx_drive_site_drive" json:"graph_drive_id"`
	SiteName      string `gorm:"not null;default:''" json:"site_name"`
	DriveName     string `gorm:"not null;default:''" json:"drive_name"`
	// DeltaLink is the cursor of the last committed delta; nil means no sync yet.
	DeltaLink *string   `gorm:"column:delta_link" json:"-"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Drive) TableName() string { return "drive" }

func (d *Drive) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Cursor returns the stored delta link or "".
func (d *Drive) Cursor() string {
	if d == nil || d.DeltaLink == nil {
		return ""
	}
	return *d.DeltaLink
}
