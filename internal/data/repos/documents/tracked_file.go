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

type TrackedFileRepo interface {
	Create(dbc dbctx.Context, file *domain.TrackedFile) (*domain.TrackedFile, error)
	GetByDriveItem(dbc dbctx.Context, driveID uuid.UUID, itemID string) (*domain.TrackedFile, error)
	GetByItemID(dbc dbctx.Context, itemID string) (*domain.TrackedFile, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.TrackedFile, error)
	ListByDrive(dbc dbctx.Context, driveID uuid.UUID) ([]*domain.TrackedFile, error)
	ListAll(dbc dbctx.Context) ([]*domain.TrackedFile, error)
	Update(dbc dbctx.Context, file *domain.TrackedFile) error
	DeleteWithChanges(dbc dbctx.Context, id uuid.UUID) error
}

type trackedFileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTrackedFileRepo(db *gorm.DB, baseLog *logger.Logger) TrackedFileRepo {
	repoLog := baseLog.With("repo", "TrackedFileRepo")
	return &trackedFileRepo{db: db, log: repoLog}
}

func (r *trackedFileRepo) Create(dbc dbctx.Context, file *domain.TrackedFile) (*domain.TrackedFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if file == nil {
		return nil, fmt.Errorf("tracked file is nil")
	}
	if err := transaction.WithContext(dbc.Ctx).Create(file).Error; err != nil {
		return nil, err
	}
	return file, nil
}

// GetByDriveItem returns nil without error when the item is not tracked.
func (r *trackedFileRepo) GetByDriveItem(dbc dbctx.Context, driveID uuid.UUID, itemID string) (*domain.TrackedFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.TrackedFile
	if err := transaction.WithContext(dbc.Ctx).
		Where("drive_id = ? AND item_id = ?", driveID, itemID).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// GetByItemID looks a file up by its remote item id alone. Graph item ids are
// unique across drives in a tenant.
func (r *trackedFileRepo) GetByItemID(dbc dbctx.Context, itemID string) (*domain.TrackedFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.TrackedFile
	if err := transaction.WithContext(dbc.Ctx).
		Preload("Drive").
		Where("item_id = ?", itemID).
		Order("created_at ASC").
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *trackedFileRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.TrackedFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.TrackedFile
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

func (r *trackedFileRepo) ListByDrive(dbc dbctx.Context, driveID uuid.UUID) ([]*domain.TrackedFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.TrackedFile
	if err := transaction.WithContext(dbc.Ctx).
		Where("drive_id = ?", driveID).
		Order("name ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *trackedFileRepo) ListAll(dbc dbctx.Context) ([]*domain.TrackedFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.TrackedFile
	if err := transaction.WithContext(dbc.Ctx).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// Update writes the mutable columns of an existing file.
func (r *trackedFileRepo) Update(dbc dbctx.Context, file *domain.TrackedFile) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if file == nil {
		return fmt.Errorf("tracked file is nil")
	}
	file.UpdatedAt = time.Now().UTC()
	res := transaction.WithContext(dbc.Ctx).
		Model(file).
		Select("name", "c_tag", "content", "embedding", "dirty", "updated_at").
		Updates(file)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *trackedFileRepo) DeleteWithChanges(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	db := transaction.WithContext(dbc.Ctx)
	if err := db.Where("file_id = ?", id).Delete(&domain.Change{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&domain.TrackedFile{}).Error
}
