package app

import (
	"fmt"

	"github.com/yungbote/docsync-backend/internal/jobs"
	"github.com/yungbote/docsync-backend/internal/modules/drives"
	"github.com/yungbote/docsync-backend/internal/modules/files"
	"github.com/yungbote/docsync-backend/internal/modules/ingestion"
	"github.com/yungbote/docsync-backend/internal/modules/reconcile"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
	"github.com/yungbote/docsync-backend/internal/realtime"
)

type Services struct {
	Broadcaster *realtime.Broadcaster
	Ingestion   *ingestion.Service
	Dispatcher  *ingestion.Dispatcher
	Reconcile   reconcile.Usecases
	Drives      drives.Usecases
	Files       files.Usecases
	Scheduler   *jobs.Scheduler
}

func wireServices(log *logger.Logger, cfg Config, r Repos, c Clients) (Services, error) {
	log.Info("Wiring services...")

	broadcaster := realtime.NewBroadcaster(log, cfg.ThrottleWindow)

	ingest := ingestion.NewService(ingestion.Deps{
		Log:           log,
		Tx:            r.Tx,
		Drives:        r.Drive,
		Subscriptions: r.Subscription,
		Files:         r.TrackedFile,
		Changes:       r.Change,
		Graph:         c.Graph,
		Converter:     c.Converter,
		Embedder:      c.Embedder,
		Index:         c.Index,
		Notifier:      broadcaster,
	})

	engine, err := reconcile.NewEngine(log, c.OpenAI, c.Model, broadcaster)
	if err != nil {
		return Services{}, fmt.Errorf("init reconcile engine: %w", err)
	}
	rec := reconcile.New(reconcile.UsecasesDeps{
		Log:     log,
		Cfg:     cfg.Reconcile,
		Tx:      r.Tx,
		Changes: r.Change,
		Files:   r.TrackedFile,
		Index:   c.Index,
		Engine:  engine,
	})

	driveUC := drives.New(drives.UsecasesDeps{
		Log:           log,
		Tx:            r.Tx,
		Drives:        r.Drive,
		Subscriptions: r.Subscription,
		Files:         r.TrackedFile,
		Graph:         c.Graph,
		Index:         c.Index,
		Embedder:      c.Embedder,
		Ingest:        ingest,
	})

	fileUC := files.New(files.UsecasesDeps{
		Log:       log,
		Tx:        r.Tx,
		Drives:    r.Drive,
		Files:     r.TrackedFile,
		Graph:     c.Graph,
		Converter: c.Converter,
		Embedder:  c.Embedder,
		Index:     c.Index,
	})

	var scheduler *jobs.Scheduler
	if cfg.JobsEnabled {
		scheduler = jobs.NewScheduler(log)
		for _, j := range []jobs.Job{
			jobs.NewSubscriptionRenewal(cfg.Jobs.RenewSchedule, cfg.Jobs.RenewWindow, driveUC),
			jobs.NewDriveResync(cfg.Jobs.ResyncSchedule, driveUC),
		} {
			if err := scheduler.Register(j); err != nil {
				return Services{}, fmt.Errorf("register job: %w", err)
			}
		}
	}

	return Services{
		Broadcaster: broadcaster,
		Ingestion:   ingest,
		Dispatcher:  ingestion.NewDispatcher(log, ingest, cfg.DispatchTimeout),
		Reconcile:   rec,
		Drives:      driveUC,
		Files:       fileUC,
		Scheduler:   scheduler,
	}, nil
}
