package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/docsync-backend/internal/data/aggregates"
	"github.com/yungbote/docsync-backend/internal/data/repos"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

type Repos struct {
	Tx           aggregates.TxRunner
	Drive        repos.DriveRepo
	Subscription repos.SubscriptionRepo
	TrackedFile  repos.TrackedFileRepo
	Change       repos.ChangeRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Tx:           aggregates.NewGormTxRunner(db),
		Drive:        repos.NewDriveRepo(db, log),
		Subscription: repos.NewSubscriptionRepo(db, log),
		TrackedFile:  repos.NewTrackedFileRepo(db, log),
		Change:       repos.NewChangeRepo(db, log),
	}
}
