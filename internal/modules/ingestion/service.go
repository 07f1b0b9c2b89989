// Package ingestion mirrors drive deltas into the relational store and the
// similarity index.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/docsync-backend/internal/data/aggregates"
	"github.com/yungbote/docsync-backend/internal/data/repos"
	"github.com/yungbote/docsync-backend/internal/domain"
	"github.com/yungbote/docsync-backend/internal/observability"
	"github.com/yungbote/docsync-backend/internal/pkg/dbctx"
	"github.com/yungbote/docsync-backend/internal/pkg/pointers"
	"github.com/yungbote/docsync-backend/internal/platform/apierr"
	"github.com/yungbote/docsync-backend/internal/platform/embedding"
	"github.com/yungbote/docsync-backend/internal/platform/graph"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
	"github.com/yungbote/docsync-backend/internal/platform/pandoc"
	"github.com/yungbote/docsync-backend/internal/platform/qdrant"
)

type FileChangeNotifier interface {
	PublishFileChange(ctx context.Context)
}

type Deps struct {
	Log *logger.Logger

	Tx            aggregates.TxRunner
	Drives        repos.DriveRepo
	Subscriptions repos.SubscriptionRepo
	Files         repos.TrackedFileRepo
	Changes       repos.ChangeRepo

	Graph     graph.Client
	Converter pandoc.Converter
	Embedder  embedding.Embedder
	Index     qdrant.Index
	Notifier  FileChangeNotifier
}

type IngestOptions struct {
	// RecordCreated emits a "created" change for items seen for the first time.
	RecordCreated bool
}

type IngestResult struct {
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Deleted int    `json:"deleted"`
	Skipped int    `json:"skipped"`
	Cursor  string `json:"-"`
}

func (r IngestResult) Changed() bool {
	return r.Created+r.Updated+r.Deleted > 0
}

type Service struct {
	deps  Deps
	log   *logger.Logger
	locks driveLocks
}

func NewService(deps Deps) *Service {
	return &Service{deps: deps, log: deps.Log.With("service", "IngestionService")}
}

type indexOpKind int

const (
	indexUpsert indexOpKind = iota
	indexDelete
)

type indexOp struct {
	kind  indexOpKind
	point qdrant.Point
}

// IngestDelta applies the drive's pending remote changes. The cursor only
// advances when every entry committed; index writes follow the commit.
func (s *Service) IngestDelta(ctx context.Context, driveID uuid.UUID, opts IngestOptions) (res IngestResult, err error) {
	ctx, span := observability.StartSpan(ctx, "ingestion.IngestDelta", attribute.String("drive_id", driveID.String()))
	defer func() { observability.EndSpan(span, err) }()
	return s.ingestDelta(ctx, driveID, opts)
}

func (s *Service) ingestDelta(ctx context.Context, driveID uuid.UUID, opts IngestOptions) (IngestResult, error) {
	unlock := s.locks.lock(driveID)
	defer unlock()

	drive, err := s.deps.Drives.GetByID(dbctx.Context{Ctx: ctx}, driveID)
	if err != nil {
		return IngestResult{}, fmt.Errorf("load drive: %w", err)
	}
	if drive == nil {
		return IngestResult{}, apierr.NotFound("drive_not_found", "drive %s not found", driveID)
	}
	log := s.log.With("drive_id", drive.ID, "site_id", drive.SiteID)

	page, err := s.deps.Graph.ListDelta(ctx, drive.SiteID, drive.RemoteDriveID, drive.Cursor())
	if err != nil {
		return IngestResult{}, apierr.Upstream("upstream_failed", fmt.Errorf("list delta: %w", err))
	}

	var (
		res IngestResult
		ops []indexOp
	)
	err = s.deps.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		res = IngestResult{}
		ops = ops[:0]
		for _, entry := range page.Entries {
			op, err := s.applyEntry(dbc, drive, entry, opts, &res)
			if err != nil {
				return fmt.Errorf("item %s: %w", entry.ID, err)
			}
			if op != nil {
				ops = append(ops, *op)
			}
		}
		if page.NextCursor != "" {
			if err := s.deps.Drives.UpdateCursor(dbc, drive.ID, page.NextCursor); err != nil {
				return fmt.Errorf("advance cursor: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Warn("ingestion rolled back", "error", err)
		return IngestResult{}, err
	}
	res.Cursor = page.NextCursor

	s.applyIndexOps(ctx, log, ops)
	if res.Changed() && s.deps.Notifier != nil {
		s.deps.Notifier.PublishFileChange(ctx)
	}
	log.Info("ingestion committed",
		"created", res.Created, "updated", res.Updated, "deleted", res.Deleted, "skipped", res.Skipped)
	return res, nil
}

func (s *Service) applyEntry(dbc dbctx.Context, drive *domain.Drive, entry graph.DeltaEntry, opts IngestOptions, res *IngestResult) (*indexOp, error) {
	if entry.Deleted {
		existing, err := s.deps.Files.GetByDriveItem(dbc, drive.ID, entry.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			res.Skipped++
			return nil, nil
		}
		if err := s.deps.Files.DeleteWithChanges(dbc, existing.ID); err != nil {
			return nil, fmt.Errorf("delete file: %w", err)
		}
		res.Deleted++
		return &indexOp{kind: indexDelete, point: qdrant.Point{ID: existing.ID.String()}}, nil
	}

	if !entry.IsTrackedDocument() {
		res.Skipped++
		return nil, nil
	}

	existing, err := s.deps.Files.GetByDriveItem(dbc, drive.ID, entry.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.CTag == entry.CTag {
		res.Skipped++
		return nil, nil
	}

	content, vector, err := s.fetch(dbc.Ctx, drive, entry)
	if errors.Is(err, graph.ErrItemNotFound) {
		// Removed between the delta and the fetch; the next delta reports the deletion.
		res.Skipped++
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if existing == nil {
		file, err := s.deps.Files.Create(dbc, &domain.TrackedFile{
			DriveID:   drive.ID,
			ItemID:    entry.ID,
			Name:      entry.Name,
			CTag:      entry.CTag,
			Content:   content,
			Embedding: vector,
		})
		if err != nil {
			return nil, fmt.Errorf("create file: %w", err)
		}
		if opts.RecordCreated {
			if _, err := s.deps.Changes.Create(dbc, &domain.Change{
				Kind:       domain.ChangeCreated,
				FileID:     file.ID,
				NewContent: content,
			}); err != nil {
				return nil, fmt.Errorf("record created change: %w", err)
			}
		}
		res.Created++
		return upsertOp(file), nil
	}

	if _, err := s.deps.Changes.Create(dbc, &domain.Change{
		Kind:       domain.ChangeUpdated,
		FileID:     existing.ID,
		OldContent: pointers.String(existing.Content),
		NewContent: content,
	}); err != nil {
		return nil, fmt.Errorf("record updated change: %w", err)
	}
	existing.Name = entry.Name
	existing.CTag = entry.CTag
	existing.Content = content
	existing.Embedding = vector
	existing.Dirty = true
	if err := s.deps.Files.Update(dbc, existing); err != nil {
		return nil, fmt.Errorf("update file: %w", err)
	}
	res.Updated++
	return upsertOp(existing), nil
}

// fetch downloads, converts and embeds the current remote content.
func (s *Service) fetch(ctx context.Context, drive *domain.Drive, entry graph.DeltaEntry) (string, []float32, error) {
	url := entry.DownloadURL
	if url == "" {
		item, err := s.deps.Graph.GetItem(ctx, drive.SiteID, drive.RemoteDriveID, entry.ID)
		if err != nil {
			if errors.Is(err, graph.ErrItemNotFound) {
				return "", nil, err
			}
			return "", nil, apierr.Upstream("upstream_failed", fmt.Errorf("get item: %w", err))
		}
		url = item.DownloadURL
	}
	if url == "" {
		return "", nil, apierr.Upstream("upstream_failed", fmt.Errorf("item %s has no download url", entry.ID))
	}

	docx, err := s.deps.Graph.Download(ctx, url)
	if err != nil {
		return "", nil, apierr.Upstream("upstream_failed", fmt.Errorf("download: %w", err))
	}
	html, err := s.deps.Converter.DocxToHTML(ctx, entry.ID, docx)
	if err != nil {
		return "", nil, apierr.Upstream("upstream_failed", fmt.Errorf("convert: %w", err))
	}
	vector, err := s.deps.Embedder.Embed(ctx, html)
	if err != nil {
		return "", nil, apierr.Upstream("upstream_failed", fmt.Errorf("embed: %w", err))
	}
	return html, vector, nil
}

func upsertOp(f *domain.TrackedFile) *indexOp {
	return &indexOp{kind: indexUpsert, point: qdrant.Point{
		ID:      f.ID.String(),
		Vector:  f.Embedding,
		Payload: f.IndexPayload(),
	}}
}

// applyIndexOps is best-effort; the relational row stays authoritative and a
// rebuild re-projects anything missed.
func (s *Service) applyIndexOps(ctx context.Context, log *logger.Logger, ops []indexOp) {
	if s.deps.Index == nil {
		return
	}
	for _, op := range ops {
		var err error
		switch op.kind {
		case indexUpsert:
			err = s.deps.Index.Upsert(ctx, op.point)
		case indexDelete:
			err = s.deps.Index.Delete(ctx, op.point.ID)
		}
		if err != nil {
			log.Warn("index write failed", "point_id", op.point.ID, "error", err)
		}
	}
}

// driveLocks serializes ingestion per drive within this process.
type driveLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*driveLock
}

type driveLock struct {
	mu   sync.Mutex
	refs int
}

func (l *driveLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[uuid.UUID]*driveLock)
	}
	dl, ok := l.locks[id]
	if !ok {
		dl = &driveLock{}
		l.locks[id] = dl
	}
	dl.refs++
	l.mu.Unlock()

	dl.mu.Lock()
	return func() {
		dl.mu.Unlock()
		l.mu.Lock()
		dl.refs--
		if dl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
