package app

import (
	"github.com/yungbote/docsync-backend/internal/data/db"
	httpH "github.com/yungbote/docsync-backend/internal/http/handlers"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

type Handlers struct {
	Webhook    *httpH.WebhookHandler
	Change     *httpH.ChangeHandler
	File       *httpH.FileHandler
	SharePoint *httpH.SharePointHandler
	Health     *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, cfg Config, r Repos, c Clients, s Services, pg *db.PostgresService) Handlers {
	log.Info("Wiring handlers...")
	checks := map[string]httpH.HealthCheck{"postgres": pg.Ping}
	if c.Bus != nil {
		checks["redis"] = c.Bus.Ping
	}
	return Handlers{
		Webhook:    httpH.NewWebhookHandler(log, cfg.ClientState, r.Subscription, s.Dispatcher),
		Change:     httpH.NewChangeHandler(log, s.Reconcile, s.Broadcaster),
		File:       httpH.NewFileHandler(s.Files),
		SharePoint: httpH.NewSharePointHandler(s.Drives),
		Health:     httpH.NewHealthHandler(checks),
	}
}
