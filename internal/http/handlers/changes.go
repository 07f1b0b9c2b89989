package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/docsync-backend/internal/http/response"
	"github.com/yungbote/docsync-backend/internal/modules/reconcile"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
	"github.com/yungbote/docsync-backend/internal/realtime"
)

type ChangeService interface {
	GetChanges(ctx context.Context) ([]reconcile.ChangeView, error)
	RunUpdate(ctx context.Context, changeID uuid.UUID) ([]reconcile.CandidateDiff, error)
}

type ChangeHandler struct {
	log         *logger.Logger
	changes     ChangeService
	broadcaster *realtime.Broadcaster
}

func NewChangeHandler(log *logger.Logger, changes ChangeService, broadcaster *realtime.Broadcaster) *ChangeHandler {
	return &ChangeHandler{log: log.With("handler", "ChangeHandler"), changes: changes, broadcaster: broadcaster}
}

// GET /api/changes
func (h *ChangeHandler) ListChanges(c *gin.Context) {
	changes, err := h.changes.GetChanges(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, "list_changes_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"changes": changes})
}

// POST /api/changes/:id/run
func (h *ChangeHandler) RunUpdate(c *gin.Context) {
	changeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_change_id", err)
		return
	}
	diffs, err := h.changes.RunUpdate(c.Request.Context(), changeID)
	if err != nil {
		response.RespondServiceError(c, "run_update_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"candidates": diffs})
}

// GET /api/changes/stream
func (h *ChangeHandler) StreamChanges(c *gin.Context) {
	sub := h.broadcaster.SubscribeFileChanges()
	defer sub.Close()
	realtime.ServeSSE(c.Writer, c.Request, h.log, realtime.EventFileChange, sub.C())
}

// GET /api/changes/:id/stream
func (h *ChangeHandler) StreamCandidates(c *gin.Context) {
	changeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_change_id", err)
		return
	}
	sub := h.broadcaster.SubscribeCandidates(changeID)
	defer sub.Close()
	realtime.ServeSSE(c.Writer, c.Request, h.log, realtime.EventCandidateProgress, sub.C())
}
