package drives

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/docsync-backend/internal/domain"
	"github.com/yungbote/docsync-backend/internal/pkg/dbctx"
	"github.com/yungbote/docsync-backend/internal/platform/graph"
)

type RenewResult struct {
	Renewed   int `json:"renewed"`
	Recreated int `json:"recreated"`
	Failed    int `json:"failed"`
}

// RenewSubscriptions extends subscriptions that expire within window. A
// subscription Graph no longer knows is recreated for its drive.
func (u Usecases) RenewSubscriptions(ctx context.Context, window time.Duration) (RenewResult, error) {
	cutoff := u.deps.Now().UTC().Add(window)
	subs, err := u.deps.Subscriptions.ListExpiringBefore(dbctx.Context{Ctx: ctx}, cutoff)
	if err != nil {
		return RenewResult{}, fmt.Errorf("list expiring subscriptions: %w", err)
	}

	var res RenewResult
	for _, sub := range subs {
		log := u.log.With("subscription_id", sub.ID, "drive_id", sub.DriveID)
		renewed, err := u.deps.Graph.RenewSubscription(ctx, sub.ID)
		switch {
		case err == nil:
			if err := u.deps.Subscriptions.UpdateExpiry(dbctx.Context{Ctx: ctx}, sub.ID, renewed.ExpirationDateTime); err != nil {
				log.Error("store renewed expiry failed", "error", err)
				res.Failed++
				continue
			}
			res.Renewed++
		case graph.IsNotFound(err):
			if err := u.recreate(ctx, sub); err != nil {
				log.Error("subscription recreate failed", "error", err)
				res.Failed++
				continue
			}
			res.Recreated++
		default:
			log.Error("subscription renew failed", "error", err)
			res.Failed++
		}
	}
	if res.Renewed+res.Recreated+res.Failed > 0 {
		u.log.Info("subscriptions renewed", "renewed", res.Renewed, "recreated", res.Recreated, "failed", res.Failed)
	}
	return res, nil
}

func (u Usecases) recreate(ctx context.Context, old *domain.Subscription) error {
	drive := old.Drive
	if drive == nil {
		d, err := u.deps.Drives.GetByID(dbctx.Context{Ctx: ctx}, old.DriveID)
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("drive %s missing", old.DriveID)
		}
		drive = d
	}
	sub, err := u.deps.Graph.CreateSubscription(ctx, drive.SiteID, drive.RemoteDriveID)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	err = u.deps.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		if err := u.deps.Subscriptions.DeleteByIDs(dbc, []string{old.ID}); err != nil {
			return err
		}
		_, err := u.deps.Subscriptions.Create(dbc, []*domain.Subscription{{
			ID:        sub.ID,
			DriveID:   drive.ID,
			ExpiresAt: sub.ExpirationDateTime,
		}})
		return err
	})
	if err != nil {
		if derr := u.deps.Graph.DeleteSubscription(ctx, sub.ID); derr != nil {
			u.log.Warn("orphaned subscription cleanup failed", "subscription_id", sub.ID, "error", derr)
		}
		return fmt.Errorf("store subscription: %w", err)
	}
	return nil
}
