package drives

import (
	"context"
	"fmt"

	"github.com/yungbote/docsync-backend/internal/domain"
	"github.com/yungbote/docsync-backend/internal/pkg/dbctx"
	"github.com/yungbote/docsync-backend/internal/platform/apierr"
	"github.com/yungbote/docsync-backend/internal/platform/qdrant"
)

const rebuildBatchSize = 64

type RebuildResult struct {
	Indexed  int `json:"indexed"`
	Embedded int `json:"embedded"`
}

// RebuildIndex re-projects every tracked file into the similarity index.
// Files without an embedding are embedded first and the vector persisted.
func (u Usecases) RebuildIndex(ctx context.Context) (RebuildResult, error) {
	if err := u.deps.Index.EnsureCollection(ctx); err != nil {
		return RebuildResult{}, apierr.Upstream("upstream_failed", fmt.Errorf("ensure collection: %w", err))
	}
	files, err := u.deps.Files.ListAll(dbctx.Context{Ctx: ctx})
	if err != nil {
		return RebuildResult{}, fmt.Errorf("list files: %w", err)
	}

	var (
		res   RebuildResult
		batch = make([]qdrant.Point, 0, rebuildBatchSize)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := u.deps.Index.Upsert(ctx, batch...); err != nil {
			return apierr.Upstream("upstream_failed", fmt.Errorf("upsert batch: %w", err))
		}
		res.Indexed += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, f := range files {
		if len(f.Embedding) == 0 {
			if err := u.embed(ctx, f); err != nil {
				return res, err
			}
			res.Embedded++
		}
		batch = append(batch, qdrant.Point{ID: f.ID.String(), Vector: f.Embedding, Payload: f.IndexPayload()})
		if len(batch) == rebuildBatchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}
	u.log.Info("index rebuilt", "indexed", res.Indexed, "embedded", res.Embedded)
	return res, nil
}

func (u Usecases) embed(ctx context.Context, f *domain.TrackedFile) error {
	vec, err := u.deps.Embedder.Embed(ctx, f.Content)
	if err != nil {
		return apierr.Upstream("upstream_failed", fmt.Errorf("embed file %s: %w", f.ID, err))
	}
	f.Embedding = vec
	if err := u.deps.Files.Update(dbctx.Context{Ctx: ctx}, f); err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}
	return nil
}
