package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/yungbote/docsync-backend/internal/pkg/ctxutil"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

const maxErrorBodyBytes = 1024

// Point is one vector in the collection. ID must be a UUID.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

type SearchRequest struct {
	Vector     []float32
	Limit      int
	Filter     PayloadFilter
	ExcludeIDs []string
}

type Match struct {
	ID    string
	Score float64
}

// Index is the similarity index consumed by ingestion and reconciliation.
type Index interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, points ...Point) error
	UpdateVector(ctx context.Context, id string, vector []float32) error
	Delete(ctx context.Context, ids ...string) error
	Search(ctx context.Context, req SearchRequest) ([]Match, error)
}

type index struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
	backoff func() backoff.BackOff
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type qdrantSearchResultItem struct {
	ID    json.RawMessage `json:"id"`
	Score float64         `json:"score"`
}

// NewIndex checks readiness and makes sure the collection exists before returning.
func NewIndex(ctx context.Context, log *logger.Logger, cfg Config) (Index, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg, true); err != nil {
		return nil, err
	}
	s := newIndex(log, cfg, &http.Client{Timeout: 10 * time.Second})
	if err := s.verifyReady(ctx); err != nil {
		return nil, err
	}
	if err := s.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	log.Info(
		"Qdrant index ready",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"vector_dim", cfg.VectorDim,
		"distance", cfg.Distance,
	)
	return s, nil
}

func newIndex(log *logger.Logger, cfg Config, httpClient *http.Client) *index {
	if cfg.Distance == "" {
		cfg.Distance = "Dot"
	}
	return &index{
		log:     log.With("service", "QdrantIndex"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    httpClient,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
}

func (s *index) Upsert(ctx context.Context, points ...Point) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}
	body := make([]map[string]any, 0, len(points))
	for _, p := range points {
		if err := s.validatePoint(op, p.ID, p.Vector); err != nil {
			return err
		}
		payload := map[string]any{}
		for k, v := range p.Payload {
			payload[k] = v
		}
		body = append(body, map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": payload,
		})
	}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": body}, nil)
}

func (s *index) UpdateVector(ctx context.Context, id string, vector []float32) error {
	const op = "update_vectors"
	if err := s.validatePoint(op, id, vector); err != nil {
		return err
	}
	req := map[string]any{
		"points": []map[string]any{{"id": id, "vector": vector}},
	}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points/vectors?wait=true"), req, nil)
}

func (s *index) Delete(ctx context.Context, ids ...string) error {
	const op = "delete"
	seen := make(map[string]struct{}, len(ids))
	pointIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		pointIDs = append(pointIDs, id)
	}
	if len(pointIDs) == 0 {
		return nil
	}
	return s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/delete?wait=true"), map[string]any{"points": pointIDs}, nil)
}

func (s *index) Search(ctx context.Context, in SearchRequest) ([]Match, error) {
	const op = "search"
	if len(in.Vector) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if s.cfg.VectorDim > 0 && len(in.Vector) != s.cfg.VectorDim {
		return nil, opErr(
			op,
			OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(in.Vector)),
			nil,
		)
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}

	req := map[string]any{
		"vector":       in.Vector,
		"limit":        limit,
		"with_payload": false,
		"with_vector":  false,
	}
	if !in.Filter.empty() || len(in.ExcludeIDs) > 0 {
		filter, err := in.Filter.build(in.ExcludeIDs)
		if err != nil {
			s.log.Warn("qdrant search filter rejected", "error", err)
			return nil, opErr(op, OperationErrorValidation, err.Error(), err)
		}
		if len(filter) > 0 {
			req["filter"] = filter
		}
	}

	var raw []qdrantSearchResultItem
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &raw); err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(raw))
	for _, item := range raw {
		id := decodePointID(item.ID)
		if id == "" {
			continue
		}
		out = append(out, Match{ID: id, Score: s.normalizeScore(item.Score)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

// EnsureCollection creates the collection when it is missing and rejects a
// collection whose vector size differs from the configured dimension.
func (s *index) EnsureCollection(ctx context.Context) error {
	const op = "ensure_collection"
	var result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &result)
	var typed *OperationError
	if errors.As(err, &typed) && typed.StatusCode == http.StatusNotFound {
		req := map[string]any{
			"vectors": map[string]any{
				"size":     s.cfg.VectorDim,
				"distance": s.cfg.Distance,
			},
		}
		if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath(""), req, nil); err != nil {
			return err
		}
		s.log.Info("qdrant collection created", "collection", s.cfg.Collection, "vector_dim", s.cfg.VectorDim)
		return nil
	}
	if err != nil {
		return err
	}

	size := result.Config.Params.Vectors.Size
	if size != 0 && size != s.cfg.VectorDim {
		return &OperationError{
			Code:      OperationErrorValidation,
			Operation: op,
			Message: fmt.Sprintf(
				"qdrant collection %q vector size mismatch: expected=%d actual=%d",
				s.cfg.Collection,
				s.cfg.VectorDim,
				size,
			),
		}
	}
	if d := strings.TrimSpace(result.Config.Params.Vectors.Distance); d != "" {
		s.cfg.Distance = d
	}
	return nil
}

func (s *index) verifyReady(ctx context.Context) error {
	const op = "bootstrap_verify"
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", resp.StatusCode),
		}
	}
	return nil
}

func (s *index) validatePoint(op, id string, vector []float32) error {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return opErr(op, OperationErrorValidation, fmt.Sprintf("point id %q is not a uuid", id), err)
	}
	if len(vector) == 0 {
		return opErr(op, OperationErrorValidation, fmt.Sprintf("point %q has empty vector", id), nil)
	}
	if s.cfg.VectorDim > 0 && len(vector) != s.cfg.VectorDim {
		return opErr(
			op,
			OperationErrorValidation,
			fmt.Sprintf("point %q dimension mismatch: expected=%d got=%d", id, s.cfg.VectorDim, len(vector)),
			nil,
		)
	}
	return nil
}

const maxAttempts = 3

// doJSON retries transient failures (timeouts, transport errors, 429 and
// 5xx). Validation and 4xx errors return on the first attempt.
func (s *index) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var payload []byte
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		payload = buf.Bytes()
	}

	ctx = ctxutil.Default(ctx)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.doJSONOnce(ctx, op, method, path, payload, out)
		var typed *OperationError
		if err != nil && !(errors.As(err, &typed) && typed.Retryable()) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(s.backoff()),
		backoff.WithMaxTries(maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Warn("Qdrant request retrying", "op", op, "sleep", next.String(), "error", err.Error())
		}),
	)
	return err
}

func (s *index) doJSONOnce(ctx context.Context, op, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    statusErr,
		}
	}
	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}
	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func decodePointID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var idString string
	if err := json.Unmarshal(raw, &idString); err == nil {
		return strings.TrimSpace(idString)
	}
	var idNumber int64
	if err := json.Unmarshal(raw, &idNumber); err == nil {
		return fmt.Sprintf("%d", idNumber)
	}
	return strings.TrimSpace(string(raw))
}

func (s *index) collectionPath(suffix string) string {
	return "/collections/" + s.cfg.Collection + suffix
}

func (s *index) normalizeScore(score float64) float64 {
	switch strings.ToLower(strings.TrimSpace(s.cfg.Distance)) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1.0 / (1.0 + score)
	default:
		return score
	}
}

// IsNotFound reports whether err is a 404 from Qdrant, e.g. updating a missing point.
func IsNotFound(err error) bool {
	var typed *OperationError
	return errors.As(err, &typed) && typed.StatusCode == http.StatusNotFound
}
