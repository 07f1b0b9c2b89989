package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/docsync-backend/internal/data/repos/documents"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

type DriveRepo = documents.DriveRepo
type SubscriptionRepo = documents.SubscriptionRepo
type TrackedFileRepo = documents.TrackedFileRepo
type ChangeRepo = documents.ChangeRepo

func NewDriveRepo(db *gorm.DB, baseLog *logger.Logger) DriveRepo {
	return documents.NewDriveRepo(db, baseLog)
}
func NewSubscriptionRepo(db *gorm.DB, baseLog *logger.Logger) SubscriptionRepo {
	return documents.NewSubscriptionRepo(db, baseLog)
}
func NewTrackedFileRepo(db *gorm.DB, baseLog *logger.Logger) TrackedFileRepo {
	return documents.NewTrackedFileRepo(db, baseLog)
}
func NewChangeRepo(db *gorm.DB, baseLog *logger.Logger) ChangeRepo {
	return documents.NewChangeRepo(db, baseLog)
}
