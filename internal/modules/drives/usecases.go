// Package drives manages which SharePoint drives are synced and keeps their
// webhook subscriptions and index projection healthy.
package drives

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/yungbote/docsync-backend/internal/data/aggregates"
	"github.com/yungbote/docsync-backend/internal/data/repos"
	"github.com/yungbote/docsync-backend/internal/domain"
	"github.com/yungbote/docsync-backend/internal/modules/ingestion"
	"github.com/yungbote/docsync-backend/internal/pkg/dbctx"
	"github.com/yungbote/docsync-backend/internal/platform/apierr"
	"github.com/yungbote/docsync-backend/internal/platform/embedding"
	"github.com/yungbote/docsync-backend/internal/platform/graph"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
	"github.com/yungbote/docsync-backend/internal/platform/qdrant"
)

type Ingester interface {
	IngestDelta(ctx context.Context, driveID uuid.UUID, opts ingestion.IngestOptions) (ingestion.IngestResult, error)
	IngestAll(ctx context.Context, opts ingestion.IngestOptions) (ingestion.DriveFailures, error)
}

type UsecasesDeps struct {
	Log *logger.Logger

	Tx            aggregates.TxRunner
	Drives        repos.DriveRepo
	Subscriptions repos.SubscriptionRepo
	Files         repos.TrackedFileRepo

	Graph    graph.Client
	Index    qdrant.Index
	Embedder embedding.Embedder
	Ingest   Ingester

	Now func() time.Time
}

type Usecases struct {
	deps UsecasesDeps
	log  *logger.Logger
}

func New(deps UsecasesDeps) Usecases {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return Usecases{deps: deps, log: deps.Log.With("service", "DriveUsecases")}
}

// SiteDrive is one drive as shown to the operator.
type SiteDrive struct {
	SiteID    string `json:"siteId"`
	SiteName  string `json:"siteName"`
	DriveID   string `json:"driveId"`
	DriveName string `json:"driveName"`
	Synced    bool   `json:"synced"`
}

type driveKey struct {
	siteID  string
	driveID string
}

func keyOf(siteID, driveID string) driveKey { return driveKey{siteID: siteID, driveID: driveID} }

// ListSites returns every drive Graph knows about, flagged when synced.
// Synced drives Graph no longer lists are appended so they can be removed.
func (u Usecases) ListSites(ctx context.Context) ([]SiteDrive, error) {
	stored, err := u.deps.Drives.List(dbctx.Context{Ctx: ctx})
	if err != nil {
		return nil, fmt.Errorf("list drives: %w", err)
	}
	synced := make(map[driveKey]*domain.Drive, len(stored))
	for _, d := range stored {
		synced[keyOf(d.SiteID, d.RemoteDriveID)] = d
	}

	sites, err := u.deps.Graph.ListSites(ctx)
	if err != nil {
		return nil, apierr.Upstream("upstream_failed", fmt.Errorf("list sites: %w", err))
	}
	sort.SliceStable(sites, func(i, j int) bool { return sites[i].Title() < sites[j].Title() })

	out := make([]SiteDrive, 0, len(stored))
	listed := mapset.NewThreadUnsafeSet[driveKey]()
	for _, site := range sites {
		drives, err := u.deps.Graph.ListDrives(ctx, site.ID)
		if err != nil {
			return nil, apierr.Upstream("upstream_failed", fmt.Errorf("list drives of site %s: %w", site.ID, err))
		}
		for _, d := range drives {
			k := keyOf(site.ID, d.ID)
			listed.Add(k)
			_, ok := synced[k]
			out = append(out, SiteDrive{
				SiteID:    site.ID,
				SiteName:  site.Title(),
				DriveID:   d.ID,
				DriveName: d.Name,
				Synced:    ok,
			})
		}
	}
	for _, d := range stored {
		if listed.Contains(keyOf(d.SiteID, d.RemoteDriveID)) {
			continue
		}
		out = append(out, SiteDrive{
			SiteID:    d.SiteID,
			SiteName:  d.SiteName,
			DriveID:   d.RemoteDriveID,
			DriveName: d.DriveName,
			Synced:    true,
		})
	}
	return out, nil
}

// UpdateSynced onboards drives flagged synced and tears down drives flagged
// unsynced. Each drive is handled on its own; failures are joined.
func (u Usecases) UpdateSynced(ctx context.Context, in []SiteDrive) error {
	stored, err := u.deps.Drives.List(dbctx.Context{Ctx: ctx})
	if err != nil {
		return fmt.Errorf("list drives: %w", err)
	}
	storedByKey := make(map[driveKey]*domain.Drive, len(stored))
	storedKeys := mapset.NewThreadUnsafeSet[driveKey]()
	for _, d := range stored {
		k := keyOf(d.SiteID, d.RemoteDriveID)
		storedByKey[k] = d
		storedKeys.Add(k)
	}

	want := mapset.NewThreadUnsafeSet[driveKey]()
	unwant := mapset.NewThreadUnsafeSet[driveKey]()
	requested := make(map[driveKey]SiteDrive, len(in))
	for _, sd := range in {
		if sd.SiteID == "" || sd.DriveID == "" {
			return apierr.InvalidArgument("invalid_drive", "siteId and driveId are required")
		}
		k := keyOf(sd.SiteID, sd.DriveID)
		requested[k] = sd
		if sd.Synced {
			want.Add(k)
		} else {
			unwant.Add(k)
		}
	}

	var errs []error
	for _, k := range sortedKeys(want.Difference(storedKeys)) {
		if err := u.addDrive(ctx, requested[k]); err != nil {
			errs = append(errs, err)
		}
	}
	for _, k := range sortedKeys(unwant.Intersect(storedKeys)) {
		if err := u.removeDrive(ctx, storedByKey[k]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (u Usecases) addDrive(ctx context.Context, sd SiteDrive) error {
	log := u.log.With("site_id", sd.SiteID, "graph_drive_id", sd.DriveID)
	var (
		drive   *domain.Drive
		created graph.Subscription
	)
	err := u.deps.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		d, err := u.deps.Drives.Create(dbc, &domain.Drive{
			SiteID:        sd.SiteID,
			RemoteDriveID: sd.DriveID,
			SiteName:      sd.SiteName,
			DriveName:     sd.DriveName,
		})
		if err != nil {
			return fmt.Errorf("create drive: %w", err)
		}
		sub, err := u.deps.Graph.CreateSubscription(dbc.Ctx, sd.SiteID, sd.DriveID)
		if err != nil {
			return apierr.Upstream("upstream_failed", fmt.Errorf("create subscription: %w", err))
		}
		created = sub
		if _, err := u.deps.Subscriptions.Create(dbc, []*domain.Subscription{{
			ID:        sub.ID,
			DriveID:   d.ID,
			ExpiresAt: sub.ExpirationDateTime,
		}}); err != nil {
			return fmt.Errorf("store subscription: %w", err)
		}
		drive = d
		return nil
	})
	if err != nil {
		if created.ID != "" {
			if derr := u.deps.Graph.DeleteSubscription(ctx, created.ID); derr != nil {
				log.Warn("orphaned subscription cleanup failed", "subscription_id", created.ID, "error", derr)
			}
		}
		return fmt.Errorf("onboard drive %s/%s: %w", sd.SiteID, sd.DriveID, err)
	}
	log.Info("drive onboarded", "drive_id", drive.ID, "subscription_id", created.ID)

	// The initial snapshot is the baseline, not a change feed: files present
	// at onboarding get no "created" change.
	if _, err := u.deps.Ingest.IngestDelta(ctx, drive.ID, ingestion.IngestOptions{RecordCreated: false}); err != nil {
		// The drive stays synced; the scheduled resync retries the snapshot.
		log.Warn("initial snapshot failed", "drive_id", drive.ID, "error", err)
	}
	return nil
}

func (u Usecases) removeDrive(ctx context.Context, drive *domain.Drive) error {
	log := u.log.With("drive_id", drive.ID)
	var (
		subIDs  []string
		fileIDs []string
	)
	err := u.deps.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		subs, err := u.deps.Subscriptions.ListByDrive(dbc, drive.ID)
		if err != nil {
			return err
		}
		files, err := u.deps.Files.ListByDrive(dbc, drive.ID)
		if err != nil {
			return err
		}
		for _, s := range subs {
			subIDs = append(subIDs, s.ID)
		}
		for _, f := range files {
			fileIDs = append(fileIDs, f.ID.String())
		}
		return u.deps.Drives.Delete(dbc, drive.ID)
	})
	if err != nil {
		return fmt.Errorf("remove drive %s: %w", drive.ID, err)
	}

	if len(fileIDs) > 0 && u.deps.Index != nil {
		if err := u.deps.Index.Delete(ctx, fileIDs...); err != nil {
			log.Warn("index cleanup failed", "points", len(fileIDs), "error", err)
		}
	}
	for _, id := range subIDs {
		if err := u.deps.Graph.DeleteSubscription(ctx, id); err != nil {
			log.Warn("subscription teardown failed", "subscription_id", id, "error", err)
		}
	}
	log.Info("drive removed", "files", len(fileIDs), "subscriptions", len(subIDs))
	return nil
}

// Resync runs an ingestion for one drive outside the webhook path.
func (u Usecases) Resync(ctx context.Context, driveID uuid.UUID) (ingestion.IngestResult, error) {
	return u.deps.Ingest.IngestDelta(ctx, driveID, ingestion.IngestOptions{RecordCreated: true})
}

// ResyncAll is the self-healing pass for missed notifications.
func (u Usecases) ResyncAll(ctx context.Context) error {
	failures, err := u.deps.Ingest.IngestAll(ctx, ingestion.IngestOptions{RecordCreated: true})
	if err != nil {
		return err
	}
	return failures.Err()
}

func sortedKeys(s mapset.Set[driveKey]) []driveKey {
	keys := s.ToSlice()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].siteID != keys[j].siteID {
			return keys[i].siteID < keys[j].siteID
		}
		return keys[i].driveID < keys[j].driveID
	})
	return keys
}
