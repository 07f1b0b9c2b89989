package jobs

import (
	"context"
	"time"

	"github.com/yungbote/docsync-backend/internal/modules/drives"
	"github.com/yungbote/docsync-backend/internal/platform/envutil"
)

type Config struct {
	RenewSchedule  string
	RenewWindow    time.Duration
	ResyncSchedule string
}

func ConfigFromEnv() Config {
	return Config{
		RenewSchedule:  envutil.String("JOBS_RENEW_SCHEDULE", "@every 6h"),
		RenewWindow:    envutil.Duration("GRAPH_SUBSCRIPTION_RENEW_WINDOW", 24*time.Hour),
		ResyncSchedule: envutil.String("JOBS_RESYNC_SCHEDULE", "@every 30m"),
	}
}

type SubscriptionRenewer interface {
	RenewSubscriptions(ctx context.Context, window time.Duration) (drives.RenewResult, error)
}

type DriveResyncer interface {
	ResyncAll(ctx context.Context) error
}

type subscriptionRenewal struct {
	schedule string
	window   time.Duration
	renewer  SubscriptionRenewer
}

func NewSubscriptionRenewal(schedule string, window time.Duration, renewer SubscriptionRenewer) Job {
	return &subscriptionRenewal{schedule: schedule, window: window, renewer: renewer}
}

func (j *subscriptionRenewal) Name() string     { return "subscription_renewal" }
func (j *subscriptionRenewal) Schedule() string { return j.schedule }
func (j *subscriptionRenewal) Run(ctx context.Context) error {
	_, err := j.renewer.RenewSubscriptions(ctx, j.window)
	return err
}

type driveResync struct {
	schedule string
	resyncer DriveResyncer
}

func NewDriveResync(schedule string, resyncer DriveResyncer) Job {
	return &driveResync{schedule: schedule, resyncer: resyncer}
}

func (j *driveResync) Name() string     { return "drive_resync" }
func (j *driveResync) Schedule() string { return j.schedule }
func (j *driveResync) Run(ctx context.Context) error {
	return j.resyncer.ResyncAll(ctx)
}
