package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/docsync-backend/internal/data/aggregates"
	"github.com/yungbote/docsync-backend/internal/data/repos"
	"github.com/yungbote/docsync-backend/internal/domain"
	"github.com/yungbote/docsync-backend/internal/observability"
	"github.com/yungbote/docsync-backend/internal/pkg/dbctx"
	"github.com/yungbote/docsync-backend/internal/pkg/pointers"
	"github.com/yungbote/docsync-backend/internal/platform/apierr"
	"github.com/yungbote/docsync-backend/internal/platform/envutil"
	"github.com/yungbote/docsync-backend/internal/platform/htmldiff"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
	"github.com/yungbote/docsync-backend/internal/platform/qdrant"
)

type Config struct {
	TopK             int
	CandidateTimeout time.Duration
	// PartialResults drops failed candidates instead of failing the batch.
	PartialResults bool
}

func ConfigFromEnv() Config {
	return Config{
		TopK:             envutil.Int("RECONCILE_TOP_K", 5),
		CandidateTimeout: envutil.Duration("RECONCILE_CANDIDATE_TIMEOUT", 2*time.Minute),
		PartialResults:   envutil.Bool("RECONCILE_PARTIAL_RESULTS", false),
	}
}

type UsecasesDeps struct {
	Log *logger.Logger
	Cfg Config

	Tx      aggregates.TxRunner
	Changes repos.ChangeRepo
	Files   repos.TrackedFileRepo
	Index   qdrant.Index
	Engine  Evaluator
}

type Usecases struct {
	deps UsecasesDeps
}

func New(deps UsecasesDeps) Usecases {
	if deps.Cfg.TopK <= 0 {
		deps.Cfg.TopK = 5
	}
	if deps.Cfg.CandidateTimeout <= 0 {
		deps.Cfg.CandidateTimeout = 2 * time.Minute
	}
	deps.Log = deps.Log.With("service", "ReconcileUsecases")
	return Usecases{deps: deps}
}

type CandidateDiff struct {
	Candidate *domain.TrackedFile `json:"candidate"`
	Diff      string              `json:"diff"`
}

type ChangeView struct {
	ID         uuid.UUID         `json:"id"`
	Kind       domain.ChangeKind `json:"kind"`
	Processed  bool              `json:"processed"`
	CreatedAt  time.Time         `json:"created_at"`
	OldContent *string           `json:"old_content"`
	NewContent string            `json:"new_content"`
	FileID     uuid.UUID         `json:"file_id"`
	ItemID     string            `json:"item_id"`
	FileName   string            `json:"file_name"`
	DriveID    uuid.UUID         `json:"drive_id"`
	SiteName   string            `json:"site_name"`
	DriveName  string            `json:"drive_name"`
}

func (u Usecases) GetChanges(ctx context.Context) ([]ChangeView, error) {
	rows, err := u.deps.Changes.ListWithFile(dbctx.Context{Ctx: ctx})
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	out := make([]ChangeView, 0, len(rows))
	for _, c := range rows {
		v := ChangeView{
			ID:         c.ID,
			Kind:       c.Kind,
			Processed:  c.Processed,
			CreatedAt:  c.CreatedAt,
			OldContent: c.OldContent,
			NewContent: c.NewContent,
			FileID:     c.FileID,
		}
		if f := c.File; f != nil {
			v.ItemID = f.ItemID
			v.FileName = f.Name
			v.DriveID = f.DriveID
			if d := f.Drive; d != nil {
				v.SiteName = d.SiteName
				v.DriveName = d.DriveName
			}
		}
		out = append(out, v)
	}
	return out, nil
}

// RunUpdate claims the change and evaluates every similar document against
// it. The claim and all reads share one transaction, so any failure leaves
// the change unprocessed and retryable.
func (u Usecases) RunUpdate(ctx context.Context, changeID uuid.UUID) (out []CandidateDiff, err error) {
	ctx, span := observability.StartSpan(ctx, "reconcile.RunUpdate", attribute.String("change_id", changeID.String()))
	defer func() { observability.EndSpan(span, err) }()
	return u.runUpdate(ctx, changeID)
}

func (u Usecases) runUpdate(ctx context.Context, changeID uuid.UUID) ([]CandidateDiff, error) {
	log := u.deps.Log.With("change_id", changeID)
	var out []CandidateDiff

	err := u.deps.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		change, err := u.deps.Changes.MarkProcessed(dbc, changeID)
		if err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		if change == nil {
			return apierr.NotFound("change_not_found", "change %s not found or already processed", changeID)
		}

		files, err := u.deps.Files.GetByIDs(dbc, []uuid.UUID{change.FileID})
		if err != nil {
			return fmt.Errorf("load file: %w", err)
		}
		if len(files) == 0 {
			return apierr.NotFound("file_not_found", "file %s not found", change.FileID)
		}
		base := files[0]

		baseDiff := htmldiff.Diff(pointers.Deref(change.OldContent), change.NewContent)

		candidates, err := u.similar(dbc, base)
		if err != nil {
			return err
		}
		log.Info("evaluating candidates", "count", len(candidates))

		decisions, err := u.evaluate(dbc.Ctx, change.ID, base, baseDiff, candidates)
		if err != nil {
			return err
		}

		out = make([]CandidateDiff, 0, len(decisions))
		for _, d := range decisions {
			if d.Status != StatusUpdated {
				continue
			}
			out = append(out, CandidateDiff{
				Candidate: d.Candidate,
				Diff:      htmldiff.Diff(d.Candidate.Content, d.Content),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info("reconciliation finished", "updated", len(out))
	return out, nil
}

// similar returns the nearest tracked files in index score order. Index hits
// without a relational row are stale projections and are skipped.
func (u Usecases) similar(dbc dbctx.Context, base *domain.TrackedFile) ([]*domain.TrackedFile, error) {
	if len(base.Embedding) == 0 {
		u.deps.Log.Warn("base file has no embedding; no candidates", "file_id", base.ID)
		return nil, nil
	}
	matches, err := u.deps.Index.Search(dbc.Ctx, qdrant.SearchRequest{
		Vector:     base.Embedding,
		Limit:      u.deps.Cfg.TopK,
		Filter:     qdrant.PayloadFilter{Equals: map[string]string{"documentType": domain.DocumentTypeSharePoint}},
		ExcludeIDs: []string{base.ID.String()},
	})
	if err != nil {
		return nil, apierr.Upstream("upstream_failed", fmt.Errorf("similarity search: %w", err))
	}

	ids := make([]uuid.UUID, 0, len(matches))
	for _, m := range matches {
		id, err := uuid.Parse(m.ID)
		if err != nil || id == base.ID {
			continue
		}
		ids = append(ids, id)
	}
	rows, err := u.deps.Files.GetByIDs(dbc, ids)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	byID := make(map[uuid.UUID]*domain.TrackedFile, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	out := make([]*domain.TrackedFile, 0, len(ids))
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			out = append(out, f)
		} else {
			u.deps.Log.Warn("index returned unknown file; skipping", "file_id", id)
		}
	}
	return out, nil
}

func (u Usecases) evaluate(ctx context.Context, changeID uuid.UUID, base *domain.TrackedFile, baseDiff string, candidates []*domain.TrackedFile) ([]Decision, error) {
	results := make([]Decision, len(candidates))
	ok := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, cand := range candidates {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, u.deps.Cfg.CandidateTimeout)
			defer cancel()

			d, err := u.deps.Engine.Evaluate(cctx, EvaluateInput{
				ChangeID:  changeID,
				Base:      base,
				BaseDiff:  baseDiff,
				Candidate: cand,
			})
			if err != nil {
				if u.deps.Cfg.PartialResults && ctx.Err() == nil {
					u.deps.Log.Warn("candidate evaluation failed; dropping", "candidate_id", cand.ID, "error", err)
					return nil
				}
				return fmt.Errorf("candidate %s: %w", cand.ID, err)
			}
			results[i] = d
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var ae *apierr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, apierr.Upstream("upstream_failed", err)
	}

	out := make([]Decision, 0, len(results))
	for i, d := range results {
		if ok[i] {
			out = append(out, d)
		}
	}
	return out, nil
}
