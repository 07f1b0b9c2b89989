package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docsync-backend/internal/domain"
)

func SeedDrive(tb testing.TB, ctx context.Context, tx *gorm.DB, siteID, driveID string) *domain.Drive {
	tb.Helper()
	d := &domain.Drive{
		ID:            uuid.New(),
		SiteID:        siteID,
		RemoteDriveID: driveID,
		SiteName:      "site " + siteID,
		DriveName:     "drive " + driveID,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed drive: %v", err)
	}
	return d
}

func SeedSubscription(tb testing.TB, ctx context.Context, tx *gorm.DB, id string, driveID uuid.UUID) *domain.Subscription {
	tb.Helper()
	s := &domain.Subscription{ID: id, DriveID: driveID, ExpiresAt: time.Now().UTC().Add(72 * time.Hour)}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed subscription: %v", err)
	}
	return s
}

func SeedTrackedFile(tb testing.TB, ctx context.Context, tx *gorm.DB, driveID uuid.UUID, itemID, content string, embedding []float32) *domain.TrackedFile {
	tb.Helper()
	f := &domain.TrackedFile{
		ID:        uuid.New(),
		DriveID:   driveID,
		ItemID:    itemID,
		Name:      itemID + ".docx",
		CTag:      "ctag-" + itemID,
		Content:   content,
		Embedding: embedding,
	}
	if err := tx.WithContext(ctx).Create(f).Error; err != nil {
		tb.Fatalf("seed tracked file: %v", err)
	}
	return f
}

func SeedChange(tb testing.TB, ctx context.Context, tx *gorm.DB, fileID uuid.UUID, oldContent *string, newContent string) *domain.Change {
	tb.Helper()
	kind := domain.ChangeUpdated
	if oldContent == nil {
		kind = domain.ChangeCreated
	}
	c := &domain.Change{
		ID:         uuid.New(),
		Kind:       kind,
		FileID:     fileID,
		OldContent: oldContent,
		NewContent: newContent,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed change: %v", err)
	}
	return c
}
