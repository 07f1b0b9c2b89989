package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/docsync-backend/internal/data/repos"
	"github.com/yungbote/docsync-backend/internal/http/response"
	"github.com/yungbote/docsync-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/docsync-backend/internal/pkg/errors"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

const maxWebhookBody = 1 << 20

type NotificationDispatcher interface {
	Dispatch(ctx context.Context, subscriptionIDs []string)
}

type WebhookHandler struct {
	log           *logger.Logger
	clientState   string
	subscriptions repos.SubscriptionRepo
	dispatcher    NotificationDispatcher
}

func NewWebhookHandler(log *logger.Logger, clientState string, subscriptions repos.SubscriptionRepo, dispatcher NotificationDispatcher) *WebhookHandler {
	return &WebhookHandler{
		log:           log.With("handler", "WebhookHandler"),
		clientState:   clientState,
		subscriptions: subscriptions,
		dispatcher:    dispatcher,
	}
}

type notification struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientState    string `json:"clientState"`
	ChangeType     string `json:"changeType"`
	Resource       string `json:"resource"`
}

type notificationBatch struct {
	Value []notification `json:"value"`
}

// POST /api/webhooks/graph
func (h *WebhookHandler) Notify(c *gin.Context) {
	if token, ok := c.GetQuery("validationToken"); ok {
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(token))
		return
	}

	var batch notificationBatch
	dec := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err := dec.Decode(&batch); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_notification", err)
		return
	}
	if len(batch.Value) == 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_notification", errors.New("empty notification batch"))
		return
	}

	ids := make([]string, 0, len(batch.Value))
	seen := make(map[string]struct{}, len(batch.Value))
	for _, n := range batch.Value {
		if !h.validClientState(n.ClientState) {
			h.log.Warn("notification rejected", "subscription_id", n.SubscriptionID)
			response.RespondError(c, http.StatusUnauthorized, "invalid_client_state", fmt.Errorf("%w: invalid clientState", pkgerrors.ErrUnauthorized))
			return
		}
		id := strings.TrimSpace(n.SubscriptionID)
		if id == "" {
			response.RespondError(c, http.StatusBadRequest, "missing_subscription_id", errors.New("subscriptionId is required"))
			return
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	subs, err := h.subscriptions.GetByIDs(dbctx.Context{Ctx: c.Request.Context()}, ids)
	if err != nil {
		response.RespondServiceError(c, "subscription_lookup_failed", err)
		return
	}
	if len(subs) == 0 {
		response.RespondError(c, http.StatusNotFound, "subscription_not_found", errors.New("no matching subscription"))
		return
	}
	matched := make([]string, 0, len(subs))
	for _, s := range subs {
		matched = append(matched, s.ID)
	}

	c.Status(http.StatusAccepted)
	h.dispatcher.Dispatch(c.Request.Context(), matched)
}

func (h *WebhookHandler) validClientState(got string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.clientState)) == 1
}
