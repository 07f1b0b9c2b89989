// Package files pushes operator-approved content back to SharePoint.
package files

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/docsync-backend/internal/data/aggregates"
	"github.com/yungbote/docsync-backend/internal/data/repos"
	"github.com/yungbote/docsync-backend/internal/domain"
	"github.com/yungbote/docsync-backend/internal/pkg/dbctx"
	"github.com/yungbote/docsync-backend/internal/platform/apierr"
	"github.com/yungbote/docsync-backend/internal/platform/embedding"
	"github.com/yungbote/docsync-backend/internal/platform/graph"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
	"github.com/yungbote/docsync-backend/internal/platform/pandoc"
	"github.com/yungbote/docsync-backend/internal/platform/qdrant"
)

type UsecasesDeps struct {
	Log *logger.Logger

	Tx     aggregates.TxRunner
	Drives repos.DriveRepo
	Files  repos.TrackedFileRepo

	Graph     graph.Client
	Converter pandoc.Converter
	Embedder  embedding.Embedder
	Index     qdrant.Index
}

type Usecases struct {
	deps UsecasesDeps
	log  *logger.Logger
}

func New(deps UsecasesDeps) Usecases {
	return Usecases{deps: deps, log: deps.Log.With("service", "FileUsecases")}
}

// UpdateFile renders content as docx using the current remote document as
// style reference, uploads it and stores the result locally.
func (u Usecases) UpdateFile(ctx context.Context, itemID, content string) (*domain.TrackedFile, error) {
	if strings.TrimSpace(itemID) == "" {
		return nil, apierr.InvalidArgument("invalid_item_id", "itemId is required")
	}
	if strings.TrimSpace(content) == "" {
		return nil, apierr.InvalidArgument("invalid_content", "content is required")
	}
	log := u.log.With("item_id", itemID)

	var out *domain.TrackedFile
	err := u.deps.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		file, err := u.deps.Files.GetByItemID(dbc, itemID)
		if err != nil {
			return fmt.Errorf("load file: %w", err)
		}
		if file == nil {
			return apierr.NotFound("file_not_found", "file %s not found", itemID)
		}

		vec, err := u.deps.Embedder.Embed(dbc.Ctx, content)
		if err != nil {
			return apierr.Upstream("upstream_failed", fmt.Errorf("embed content: %w", err))
		}

		drive := file.Drive
		if drive == nil {
			if drive, err = u.deps.Drives.GetByID(dbc, file.DriveID); err != nil {
				return fmt.Errorf("load drive: %w", err)
			}
			if drive == nil {
				return apierr.NotFound("drive_not_found", "drive %s not found", file.DriveID)
			}
		}

		item, err := u.deps.Graph.GetItem(dbc.Ctx, drive.SiteID, drive.RemoteDriveID, itemID)
		if err != nil {
			if errors.Is(err, graph.ErrItemNotFound) || graph.IsNotFound(err) {
				return apierr.NotFound("file_not_found", "remote item %s not found", itemID)
			}
			return apierr.Upstream("upstream_failed", fmt.Errorf("get item: %w", err))
		}
		if item.DownloadURL == "" {
			return apierr.Upstream("upstream_failed", fmt.Errorf("item %s has no download url", itemID))
		}
		reference, err := u.deps.Graph.Download(dbc.Ctx, item.DownloadURL)
		if err != nil {
			return apierr.Upstream("upstream_failed", fmt.Errorf("download reference: %w", err))
		}

		docx, err := u.deps.Converter.HTMLToDocx(dbc.Ctx, content, reference)
		if err != nil {
			return fmt.Errorf("convert html: %w", err)
		}
		uploaded, err := u.deps.Graph.Upload(dbc.Ctx, drive.SiteID, drive.RemoteDriveID, itemID, docx)
		if err != nil {
			return apierr.Upstream("upstream_failed", fmt.Errorf("upload: %w", err))
		}

		file.Content = content
		file.Embedding = vec
		if uploaded.CTag != "" {
			file.CTag = uploaded.CTag
		}
		if uploaded.Name != "" {
			file.Name = uploaded.Name
		}
		file.Dirty = false
		if err := u.deps.Files.Update(dbc, file); err != nil {
			return fmt.Errorf("store file: %w", err)
		}
		out = file
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info("file written back", "file_id", out.ID, "c_tag", out.CTag)

	u.refreshIndex(ctx, out)
	return out, nil
}

// refreshIndex is best-effort; a point missing from the index is re-created.
func (u Usecases) refreshIndex(ctx context.Context, file *domain.TrackedFile) {
	if u.deps.Index == nil {
		return
	}
	log := u.log.With("file_id", file.ID)
	err := u.deps.Index.UpdateVector(ctx, file.ID.String(), file.Embedding)
	if qdrant.IsNotFound(err) {
		err = u.deps.Index.Upsert(ctx, qdrant.Point{
			ID:      file.ID.String(),
			Vector:  file.Embedding,
			Payload: file.IndexPayload(),
		})
	}
	if err != nil {
		log.Warn("index refresh failed", "error", err)
	}
}
