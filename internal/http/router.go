package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/docsync-backend/internal/http/handlers"
	httpMW "github.com/yungbote/docsync-backend/internal/http/middleware"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string

	WebhookHandler    *httpH.WebhookHandler
	ChangeHandler     *httpH.ChangeHandler
	FileHandler       *httpH.FileHandler
	SharePointHandler *httpH.SharePointHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api")
	{
		// Graph change notifications
		if cfg.WebhookHandler != nil {
			api.POST("/webhooks/graph", cfg.WebhookHandler.Notify)
		}

		// Changes and reconciliation
		if cfg.ChangeHandler != nil {
			api.GET("/changes", cfg.ChangeHandler.ListChanges)
			api.GET("/changes/stream", cfg.ChangeHandler.StreamChanges)
			api.GET("/changes/:id/stream", cfg.ChangeHandler.StreamCandidates)
			api.POST("/changes/:id/run", cfg.ChangeHandler.RunUpdate)
		}

		// Write-back
		if cfg.FileHandler != nil {
			api.PUT("/files/:itemId", cfg.FileHandler.UpdateFile)
		}

		// Drive onboarding and maintenance
		if cfg.SharePointHandler != nil {
			api.GET("/sharepoint/sites", cfg.SharePointHandler.ListSites)
			api.PUT("/sharepoint/sites", cfg.SharePointHandler.UpdateSites)
			api.POST("/drives/:id/resync", cfg.SharePointHandler.ResyncDrive)
			api.POST("/index/rebuild", cfg.SharePointHandler.RebuildIndex)
		}
	}

	return r
}
