package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/docsync-backend/internal/pkg/dbctx"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

const maxConcurrentDrives = 4

// DriveFailures maps a drive to the error its ingestion returned.
type DriveFailures map[uuid.UUID]error

func (f DriveFailures) Err() error {
	if len(f) == 0 {
		return nil
	}
	return fmt.Errorf("%d drive(s) failed to ingest", len(f))
}

// ProcessNotification ingests every drive the subscriptions belong to. A
// failing drive does not stop the others.
func (s *Service) ProcessNotification(ctx context.Context, subscriptionIDs []string) (DriveFailures, error) {
	subs, err := s.deps.Subscriptions.GetByIDs(dbctx.Context{Ctx: ctx}, subscriptionIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve subscriptions: %w", err)
	}
	seen := make(map[uuid.UUID]bool, len(subs))
	driveIDs := make([]uuid.UUID, 0, len(subs))
	for _, sub := range subs {
		if seen[sub.DriveID] {
			continue
		}
		seen[sub.DriveID] = true
		driveIDs = append(driveIDs, sub.DriveID)
	}
	return s.ingestDrives(ctx, driveIDs, IngestOptions{RecordCreated: true}), nil
}

// IngestAll runs a delta for every synced drive.
func (s *Service) IngestAll(ctx context.Context, opts IngestOptions) (DriveFailures, error) {
	drives, err := s.deps.Drives.List(dbctx.Context{Ctx: ctx})
	if err != nil {
		return nil, fmt.Errorf("list drives: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(drives))
	for _, d := range drives {
		ids = append(ids, d.ID)
	}
	return s.ingestDrives(ctx, ids, opts), nil
}

func (s *Service) ingestDrives(ctx context.Context, driveIDs []uuid.UUID, opts IngestOptions) DriveFailures {
	var (
		mu       sync.Mutex
		failures = DriveFailures{}
	)
	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentDrives)
	for _, id := range driveIDs {
		g.Go(func() error {
			if _, err := s.IngestDelta(ctx, id, opts); err != nil {
				s.log.Error("drive ingestion failed", "drive_id", id, "error", err)
				mu.Lock()
				failures[id] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

type notificationProcessor interface {
	ProcessNotification(ctx context.Context, subscriptionIDs []string) (DriveFailures, error)
}

// Dispatcher runs notification processing after the webhook has replied.
type Dispatcher struct {
	log     *logger.Logger
	proc    notificationProcessor
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(log *logger.Logger, proc notificationProcessor, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Dispatcher{log: log.With("service", "NotificationDispatcher"), proc: proc, timeout: timeout}
}

// Dispatch detaches from the request context but keeps its values.
func (d *Dispatcher) Dispatch(ctx context.Context, subscriptionIDs []string) {
	ids := append([]string(nil), subscriptionIDs...)
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		failures, err := d.proc.ProcessNotification(bg, ids)
		if err != nil {
			d.log.Error("notification processing failed", "subscriptions", len(ids), "error", err)
			return
		}
		if len(failures) > 0 {
			d.log.Warn("notification processed with drive failures", "failed", len(failures))
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
