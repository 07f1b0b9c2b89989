package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/docsync-backend/internal/http/response"
	"github.com/yungbote/docsync-backend/internal/modules/drives"
	"github.com/yungbote/docsync-backend/internal/modules/ingestion"
)

type DriveService interface {
	ListSites(ctx context.Context) ([]drives.SiteDrive, error)
	UpdateSynced(ctx context.Context, in []drives.SiteDrive) error
	Resync(ctx context.Context, driveID uuid.UUID) (ingestion.IngestResult, error)
	RebuildIndex(ctx context.Context) (drives.RebuildResult, error)
}

type SharePointHandler struct {
	drives DriveService
}

func NewSharePointHandler(drives DriveService) *SharePointHandler {
	return &SharePointHandler{drives: drives}
}

// GET /api/sharepoint/sites
func (h *SharePointHandler) ListSites(c *gin.Context) {
	sites, err := h.drives.ListSites(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, "list_sites_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"drives": sites})
}

// PUT /api/sharepoint/sites
func (h *SharePointHandler) UpdateSites(c *gin.Context) {
	var req []drives.SiteDrive
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := h.drives.UpdateSynced(c.Request.Context(), req); err != nil {
		response.RespondServiceError(c, "update_sites_failed", err)
		return
	}
	sites, err := h.drives.ListSites(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, "list_sites_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"drives": sites})
}

// POST /api/drives/:id/resync
func (h *SharePointHandler) ResyncDrive(c *gin.Context) {
	driveID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_drive_id", err)
		return
	}
	res, err := h.drives.Resync(c.Request.Context(), driveID)
	if err != nil {
		response.RespondServiceError(c, "resync_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}

// POST /api/index/rebuild
func (h *SharePointHandler) RebuildIndex(c *gin.Context) {
	res, err := h.drives.RebuildIndex(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, "rebuild_index_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}
