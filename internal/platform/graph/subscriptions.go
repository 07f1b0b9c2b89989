package graph

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// CreateSubscription registers a change notification on the drive root. Graph
// validates notificationUrl synchronously before answering.
func (c *client) CreateSubscription(ctx context.Context, siteID, driveID string) (Subscription, error) {
	body := Subscription{
		ChangeType:         "updated",
		NotificationURL:    c.cfg.NotificationURL,
		Resource:           fmt.Sprintf("/sites/%s/drives/%s/root", siteID, driveID),
		ExpirationDateTime: c.expiry(),
		ClientState:        c.cfg.ClientState,
	}
	var out Subscription
	if err := c.sendJSON(ctx, "create_subscription", http.MethodPost, c.url("/subscriptions"), body, &out); err != nil {
		return Subscription{}, err
	}
	return out, nil
}

func (c *client) RenewSubscription(ctx context.Context, subscriptionID string) (Subscription, error) {
	body := map[string]any{"expirationDateTime": c.expiry()}
	var out Subscription
	if err := c.sendJSON(ctx, "renew_subscription", http.MethodPatch, c.url("/subscriptions/"+subscriptionID), body, &out); err != nil {
		return Subscription{}, err
	}
	return out, nil
}

// DeleteSubscription treats an already-gone subscription as deleted.
func (c *client) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	err := c.sendJSON(ctx, "delete_subscription", http.MethodDelete, c.url("/subscriptions/"+subscriptionID), nil, nil)
	if err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}

func (c *client) expiry() time.Time {
	return c.now().UTC().Add(c.cfg.SubscriptionTTL).Truncate(time.Second)
}
