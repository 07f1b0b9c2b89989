package documents

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docsync-backend/internal/domain"
	"github.com/yungbote/docsync-backend/internal/pkg/dbctx"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

type ChangeRepo interface {
	Create(dbc dbctx.Context, change *domain.Change) (*domain.Change, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Change, error)
	// MarkProcessed flips processed false to true and returns the row. It
	// returns (nil, nil) when the change is missing or already processed.
	MarkProcessed(dbc dbctx.Context, id uuid.UUID) (*domain.Change, error)
	ListWithFile(dbc dbctx.Context) ([]*domain.Change, error)
	ListByFile(dbc dbctx.Context, fileID uuid.UUID) ([]*domain.Change, error)
}

type changeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChangeRepo(db *gorm.DB, baseLog *logger.Logger) ChangeRepo {
	repoLog := baseLog.With("repo", "ChangeRepo")
	return &changeRepo{db: db, log: repoLog}
}

func (r *changeRepo) Create(dbc dbctx.Context, change *domain.Change) (*domain.Change, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if change == nil {
		return nil, fmt.Errorf("change is nil")
	}
	if err := transaction.WithContext(dbc.Ctx).Create(change).Error; err != nil {
		return nil, err
	}
	return change, nil
}

func (r *changeRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Change, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Change
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

func (r *changeRepo) MarkProcessed(dbc dbctx.Context, id uuid.UUID) (*domain.Change, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	db := transaction.WithContext(dbc.Ctx)
	res := db.Model(&domain.Change{}).
		Where("id = ? AND processed = ?", id, false).
		Update("processed", true)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	var change domain.Change
	if err := db.Where("id = ?", id).First(&change).Error; err != nil {
		return nil, err
	}
	return &change, nil
}

// ListWithFile returns every change with its file and drive, newest first.
func (r *changeRepo) ListWithFile(dbc dbctx.Context) ([]*domain.Change, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Change
	if err := transaction.WithContext(dbc.Ctx).
		Preload("File.Drive").
		Order("created_at DESC").
		Order("id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *changeRepo) ListByFile(dbc dbctx.Context, fileID uuid.UUID) ([]*domain.Change, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Change
	if err := transaction.WithContext(dbc.Ctx).
		Where("file_id = ?", fileID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
