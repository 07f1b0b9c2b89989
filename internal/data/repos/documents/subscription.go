package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docsync-backend/internal/domain"
	"github.com/yungbote/docsync-backend/internal/pkg/dbctx"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

type SubscriptionRepo interface {
	Create(dbc dbctx.Context, subs []*domain.Subscription) ([]*domain.Subscription, error)
	GetByIDs(dbc dbctx.Context, ids []string) ([]*domain.Subscription, error)
	ListByDrive(dbc dbctx.Context, driveID uuid.UUID) ([]*domain.Subscription, error)
	ListExpiringBefore(dbc dbctx.Context, cutoff time.Time) ([]*domain.Subscription, error)
	UpdateExpiry(dbc dbctx.Context, id string, expiresAt time.Time) error
	DeleteByIDs(dbc dbctx.Context, ids []string) error
	DeleteByDrive(dbc dbctx.Context, driveID uuid.UUID) error
}

type subscriptionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubscriptionRepo(db *gorm.DB, baseLog *logger.Logger) SubscriptionRepo {
	repoLog := baseLog.With("repo", "SubscriptionRepo")
	return &subscriptionRepo{db: db, log: repoLog}
}

func (r *subscriptionRepo) Create(dbc dbctx.Context, subs []*domain.Subscription) ([]*domain.Subscription, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(subs) == 0 {
		return []*domain.Subscription{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *subscriptionRepo) GetByIDs(dbc dbctx.Context, ids []string) ([]*domain.Subscription, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Subscription
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

func (r *subscriptionRepo) ListByDrive(dbc dbctx.Context, driveID uuid.UUID) ([]*domain.Subscription, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Subscription
	if err := transaction.WithContext(dbc.Ctx).
		Where("drive_id = ?", driveID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *subscriptionRepo) ListExpiringBefore(dbc dbctx.Context, cutoff time.Time) ([]*domain.Subscription, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Subscription
	if err := transaction.WithContext(dbc.Ctx).
		Preload("Drive").
		Where("expires_at < ?", cutoff).
		Order("expires_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *subscriptionRepo) UpdateExpiry(dbc dbctx.Context, id string, expiresAt time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&domain.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"expires_at": expiresAt.UTC(),
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

func (r *subscriptionRepo) DeleteByIDs(dbc dbctx.Context, ids []string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Delete(&domain.Subscription{}).Error
}

func (r *subscriptionRepo) DeleteByDrive(dbc dbctx.Context, driveID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("drive_id = ?", driveID).
		Delete(&domain.Subscription{}).Error
}
