package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/docsync-backend/internal/domain"
	"github.com/yungbote/docsync-backend/internal/http/response"
)

type FileService interface {
	UpdateFile(ctx context.Context, itemID, content string) (*domain.TrackedFile, error)
}

type FileHandler struct {
	files FileService
}

func NewFileHandler(files FileService) *FileHandler {
	return &FileHandler{files: files}
}

type updateFileRequest struct {
	Content string `json:"content"`
}

// PUT /api/files/:itemId
func (h *FileHandler) UpdateFile(c *gin.Context) {
	var req updateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	file, err := h.files.UpdateFile(c.Request.Context(), c.Param("itemId"), req.Content)
	if err != nil {
		response.RespondServiceError(c, "update_file_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"file": file})
}
