package documents

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docsync-backend/internal/domain"
	"github.com/yungbote/docsync-backend/internal/pkg/dbctx"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

type DriveRepo interface {
	Create(dbc dbctx.Context, drive *domain.Drive) (*domain.Drive, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Drive, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Drive, error)
	GetBySiteDrive(dbc dbctx.Context, siteID, driveID string) (*domain.Drive, error)
	List(dbc dbctx.Context) ([]*domain.Drive, error)
	UpdateCursor(dbc dbctx.Context, id uuid.UUID, deltaLink string) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type driveRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDriveRepo(db *gorm.DB, baseLog *logger.Logger) DriveRepo {
	repoLog := baseLog.With("repo", "DriveRepo")
	return &driveRepo{db: db, log: repoLog}
}

func (r *driveRepo) Create(dbc dbctx.Context, drive *domain.Drive) (*domain.Drive, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if drive == nil {
		return nil, fmt.Errorf("drive is nil")
	}
	if err := transaction.WithContext(dbc.Ctx).Create(drive).Error; err != nil {
		return nil, err
	}
	return drive, nil
}

// GetByID returns nil without error when the drive does not exist.
func (r *driveRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Drive, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Drive
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *driveRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Drive, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Drive
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *driveRepo) GetBySiteDrive(dbc dbctx.Context, siteID, driveID string) (*domain.Drive, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Drive
	if err := transaction.WithContext(dbc.Ctx).
		Where("site_id = ? AND graph_drive_id = ?", siteID, driveID).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *driveRepo) List(dbc dbctx.Context) ([]*domain.Drive, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Drive
	if err := transaction.WithContext(dbc.Ctx).
		Order("site_name ASC, drive_name ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *driveRepo) UpdateCursor(dbc dbctx.Context, id uuid.UUID, deltaLink string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&domain.Drive{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"delta_link": deltaLink,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the drive. Subscriptions, files and their changes go with it.
func (r *driveRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	db := transaction.WithContext(dbc.Ctx)
	// Explicit child deletes keep this correct on stores without FK enforcement.
	fileIDs := db.Model(&domain.TrackedFile{}).Select("id").Where("drive_id = ?", id)
	if err := db.Where("file_id IN (?)", fileIDs).Delete(&domain.Change{}).Error; err != nil {
		return err
	}
	if err := db.Where("drive_id = ?", id).Delete(&domain.TrackedFile{}).Error; err != nil {
		return err
	}
	if err := db.Where("drive_id = ?", id).Delete(&domain.Subscription{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&domain.Drive{}).Error
}
