// Package graph is a Microsoft Graph client scoped to SharePoint drives,
// drive items and change-notification subscriptions.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/yungbote/docsync-backend/internal/pkg/ctxutil"
	"github.com/yungbote/docsync-backend/internal/pkg/httpx"
	"github.com/yungbote/docsync-backend/internal/platform/envutil"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

// ErrItemNotFound is returned when a drive item no longer exists.
var ErrItemNotFound = errors.New("graph: item not found")

type Client interface {
	ListDelta(ctx context.Context, siteID, driveID, cursor string) (DeltaPage, error)
	GetItem(ctx context.Context, siteID, driveID, itemID string) (DriveItem, error)
	Download(ctx context.Context, url string) ([]byte, error)
	Upload(ctx context.Context, siteID, driveID, itemID string, content []byte) (DriveItem, error)

	CreateSubscription(ctx context.Context, siteID, driveID string) (Subscription, error)
	RenewSubscription(ctx context.Context, subscriptionID string) (Subscription, error)
	DeleteSubscription(ctx context.Context, subscriptionID string) error

	ListSites(ctx context.Context) ([]Site, error)
	ListDrives(ctx context.Context, siteID string) ([]Drive, error)
}

type Config struct {
	TenantID          string
	ClientID          string
	ClientSecret      string
	BaseURL           string
	AuthorityURL      string
	NotificationURL   string
	ClientState       string
	SubscriptionTTL   time.Duration
	RequestsPerSecond float64
	MaxRetries        int
	Timeout           time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		TenantID:          envutil.String("GRAPH_TENANT_ID", ""),
		ClientID:          envutil.String("GRAPH_CLIENT_ID", ""),
		ClientSecret:      envutil.String("GRAPH_CLIENT_SECRET", ""),
		BaseURL:           envutil.String("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"),
		AuthorityURL:      envutil.String("GRAPH_AUTHORITY_URL", "https://login.microsoftonline.com"),
		NotificationURL:   envutil.String("GRAPH_NOTIFICATION_URL", ""),
		ClientState:       envutil.String("GRAPH_CLIENT_STATE", ""),
		SubscriptionTTL:   envutil.Duration("GRAPH_SUBSCRIPTION_TTL", 72*time.Hour),
		RequestsPerSecond: envutil.Float("GRAPH_REQUESTS_PER_SECOND", 10),
		MaxRetries:        envutil.Int("GRAPH_MAX_RETRIES", 4),
		Timeout:           envutil.Duration("GRAPH_TIMEOUT", 60*time.Second),
	}
}

func (c Config) Validate() error {
	var missing []string
	if c.TenantID == "" {
		missing = append(missing, "GRAPH_TENANT_ID")
	}
	if c.ClientID == "" {
		missing = append(missing, "GRAPH_CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "GRAPH_CLIENT_SECRET")
	}
	if c.NotificationURL == "" {
		missing = append(missing, "GRAPH_NOTIFICATION_URL")
	}
	if c.ClientState == "" {
		missing = append(missing, "GRAPH_CLIENT_STATE")
	}
	if len(missing) > 0 {
		return fmt.Errorf("graph config missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

type client struct {
	log      *logger.Logger
	cfg      Config
	baseURL  string
	api      *http.Client
	download *http.Client
	limiter  *rate.Limiter
	backoff  func() backoff.BackOff
	now      func() time.Time
}

// New returns a client authenticated with the OAuth2 client-credentials flow.
// Tokens are fetched lazily and refreshed by the transport.
func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     strings.TrimRight(cfg.AuthorityURL, "/") + "/" + cfg.TenantID + "/oauth2/v2.0/token",
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	api := cc.Client(context.Background())
	api.Timeout = cfg.Timeout
	c := newClient(log, cfg, api, &http.Client{Timeout: cfg.Timeout})
	log.Info("Graph client configured", "base_url", c.baseURL, "tenant_id", cfg.TenantID, "client_id", cfg.ClientID)
	return c, nil
}

func newClient(log *logger.Logger, cfg Config, api, download *http.Client) *client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	if cfg.SubscriptionTTL <= 0 {
		cfg.SubscriptionTTL = 72 * time.Hour
	}
	return &client{
		log:      log.With("client", "Graph"),
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		api:      api,
		download: download,
		limiter:  rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		},
		now: time.Now,
	}
}

type request struct {
	method      string
	url         string
	body        []byte
	contentType string
	httpClient  *http.Client
}

// send performs req with rate limiting and retries on throttling, 5xx and
// transport errors. Non-retryable statuses come back as *Error.
func (c *client) send(ctx context.Context, op string, req request) ([]byte, error) {
	ctx = ctxutil.Default(ctx)
	if req.httpClient == nil {
		req.httpClient = c.api
	}
	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		var body io.Reader
		if req.body != nil {
			body = bytes.NewReader(req.body)
		}
		hr, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if req.contentType != "" {
			hr.Header.Set("Content-Type", req.contentType)
		}
		resp, err := req.httpClient.Do(hr)
		if err != nil {
			if httpx.IsRetryableError(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return raw, nil
		}
		gerr := decodeError(resp.StatusCode, raw)
		if !httpx.IsRetryableHTTPStatus(resp.StatusCode) {
			return nil, backoff.Permanent(gerr)
		}
		if wait := httpx.RetryAfterDuration(resp, 0, 30*time.Second); wait > 0 {
			return nil, fmt.Errorf("%w: %w", gerr, backoff.RetryAfter(int(wait/time.Second)))
		}
		return nil, gerr
	}

	maxTries := c.cfg.MaxRetries + 1
	if maxTries < 1 {
		maxTries = 1
	}
	out, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.backoff()),
		backoff.WithMaxTries(uint(maxTries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("Graph request retrying",
				"op", op,
				"attempt", attempt,
				"sleep", next.String(),
				"error", err.Error(),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("graph %s: %w", op, err)
	}
	return out, nil
}

func (c *client) getJSON(ctx context.Context, op, url string, out any) error {
	raw, err := c.send(ctx, op, request{method: http.MethodGet, url: url})
	if err != nil {
		return err
	}
	return decodeJSON(op, raw, out)
}

func (c *client) sendJSON(ctx context.Context, op, method, url string, in any, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("graph %s: encode: %w", op, err)
		}
		body = b
	}
	raw, err := c.send(ctx, op, request{method: method, url: url, body: body, contentType: "application/json"})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeJSON(op, raw, out)
}

func decodeJSON(op string, raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("graph %s: decode: %w", op, err)
	}
	return nil
}

func decodeError(status int, raw []byte) *Error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	gerr := &Error{StatusCode: status}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Code != "" {
		gerr.Code = envelope.Error.Code
		gerr.Message = envelope.Error.Message
		return gerr
	}
	msg := string(raw)
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	gerr.Message = msg
	return gerr
}

// IsNotFound reports whether err is a Graph 404.
func IsNotFound(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.StatusCode == http.StatusNotFound
}

func (c *client) url(path string) string {
	return c.baseURL + path
}
