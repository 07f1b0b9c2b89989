package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

const (
	testPointA = "6f1c3a52-8a41-4c1e-9a8e-1f6b0f0d2a01"
	testPointB = "6f1c3a52-8a41-4c1e-9a8e-1f6b0f0d2a02"
)

func TestIndexUpsertRequestShape(t *testing.T) {
	var captured map[string]any
	s := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut {
			t.Fatalf("method: want=%s got=%s", http.MethodPut, r.Method)
		}
		if r.URL.Path != "/collections/docs/points" || r.URL.RawQuery != "wait=true" {
			t.Fatalf("url: got=%s?%s", r.URL.Path, r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	payload := map[string]any{"documentType": "sharepoint"}
	err := s.Upsert(context.Background(), Point{ID: testPointA, Vector: []float32{1, 2, 3}, Payload: payload})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	points, _ := captured["points"].([]any)
	if len(points) != 1 {
		t.Fatalf("points length: want=1 got=%d", len(points))
	}
	first, _ := points[0].(map[string]any)
	if first["id"] != testPointA {
		t.Fatalf("point id: want=%s got=%v", testPointA, first["id"])
	}
	gotPayload, _ := first["payload"].(map[string]any)
	if gotPayload["documentType"] != "sharepoint" {
		t.Fatalf("payload: got=%v", gotPayload)
	}
}

func TestIndexUpsertRejectsBadPoints(t *testing.T) {
	s := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected request %s", r.URL.Path)
		return nil, nil
	})
	cases := []Point{
		{ID: "not-a-uuid", Vector: []float32{1, 2, 3}},
		{ID: testPointA},
		{ID: testPointA, Vector: []float32{1, 2}},
	}
	for _, p := range cases {
		err := s.Upsert(context.Background(), p)
		var opErr *OperationError
		if !errors.As(err, &opErr) || opErr.Code != OperationErrorValidation {
			t.Fatalf("point %+v: want validation error got=%v", p, err)
		}
	}
}

func TestIndexUpdateVectorRequestShape(t *testing.T) {
	s := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut || r.URL.Path != "/collections/docs/points/vectors" {
			t.Fatalf("request: got=%s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Points []struct {
				ID     string    `json:"id"`
				Vector []float32 `json:"vector"`
			} `json:"points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Points) != 1 || body.Points[0].ID != testPointA || len(body.Points[0].Vector) != 3 {
			t.Fatalf("body: got=%+v", body)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})
	if err := s.UpdateVector(context.Background(), testPointA, []float32{1, 0, 0}); err != nil {
		t.Fatalf("UpdateVector: %v", err)
	}
}

func TestIndexSearchExcludesAndSorts(t *testing.T) {
	var captured map[string]any
	s := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/collections/docs/points/search" {
			t.Fatalf("path: got=%s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return okResponse(t, []map[string]any{
			{"id": testPointB, "score": 0.2},
			{"id": testPointA, "score": 0.9},
		}), nil
	})

	matches, err := s.Search(context.Background(), SearchRequest{
		Vector:     []float32{1, 2, 3},
		Limit:      5,
		Filter:     PayloadFilter{Equals: map[string]string{"documentType": "sharepoint"}},
		ExcludeIDs: []string{"6f1c3a52-8a41-4c1e-9a8e-1f6b0f0d2aff"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 || matches[0].ID != testPointA {
		t.Fatalf("matches: got=%+v", matches)
	}
	if captured["limit"] != float64(5) {
		t.Fatalf("limit: want=5 got=%v", captured["limit"])
	}
	filter, _ := captured["filter"].(map[string]any)
	mustNot, _ := filter["must_not"].([]any)
	if len(mustNot) != 1 {
		t.Fatalf("must_not: got=%v", filter)
	}
	hasID, _ := mustNot[0].(map[string]any)["has_id"].([]any)
	if len(hasID) != 1 {
		t.Fatalf("has_id: got=%v", mustNot[0])
	}
	must, _ := filter["must"].([]any)
	if len(must) != 1 {
		t.Fatalf("must: got=%v", filter)
	}
}

func TestIndexDeleteDedupes(t *testing.T) {
	var captured map[string][]string
	s := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/collections/docs/points/delete" {
			t.Fatalf("path: got=%s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})
	if err := s.Delete(context.Background(), testPointA, testPointA, " "); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(captured["points"]) != 1 {
		t.Fatalf("points: want=1 got=%v", captured["points"])
	}
}

func TestEnsureCollectionCreatesWhenMissing(t *testing.T) {
	var created map[string]any
	s := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		switch r.Method {
		case http.MethodGet:
			return &http.Response{
				StatusCode: http.StatusNotFound,
				Header:     make(http.Header),
				Body:       io.NopCloser(bytes.NewBufferString(`{"status":{"error":"Not found"}}`)),
			}, nil
		case http.MethodPut:
			if err := json.NewDecoder(r.Body).Decode(&created); err != nil {
				t.Fatalf("decode: %v", err)
			}
			return okResponse(t, true), nil
		}
		t.Fatalf("unexpected method %s", r.Method)
		return nil, nil
	})
	if err := s.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	vectors, _ := created["vectors"].(map[string]any)
	if vectors["size"] != float64(3) || vectors["distance"] != "Dot" {
		t.Fatalf("create body: got=%v", created)
	}
}

func TestEnsureCollectionDimensionMismatch(t *testing.T) {
	s := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		return okResponse(t, map[string]any{
			"config": map[string]any{"params": map[string]any{"vectors": map[string]any{"size": 1536, "distance": "Dot"}}},
		}), nil
	})
	err := s.EnsureCollection(context.Background())
	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.Code != OperationErrorValidation {
		t.Fatalf("want validation error got=%v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	s := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Header:     make(http.Header),
			Body:       io.NopCloser(bytes.NewBufferString(`{"status":{"error":"No point with id"}}`)),
		}, nil
	})
	err := s.UpdateVector(context.Background(), testPointA, []float32{1, 2, 3})
	if !IsNotFound(err) {
		t.Fatalf("IsNotFound: want=true err=%v", err)
	}
}

func TestIndexRetriesTransientFailures(t *testing.T) {
	calls := 0
	s := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return &http.Response{
				StatusCode: http.StatusServiceUnavailable,
				Header:     make(http.Header),
				Body:       io.NopCloser(bytes.NewBufferString(`{"status":{"error":"overloaded"}}`)),
			}, nil
		}
		body, _ := io.ReadAll(r.Body)
		if len(body) == 0 {
			t.Fatalf("retry sent empty body")
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})
	if err := s.Delete(context.Background(), testPointA); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
}

func TestIndexDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	s := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return &http.Response{
			StatusCode: http.StatusBadRequest,
			Header:     make(http.Header),
			Body:       io.NopCloser(bytes.NewBufferString(`{"status":{"error":"bad"}}`)),
		}, nil
	})
	err := s.Delete(context.Background(), testPointA)
	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("error: got=%v", err)
	}
	if opErr.Retryable() {
		t.Fatalf("400 should not be retryable")
	}
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
}

func TestClassifyHTTPCallErrorTransport(t *testing.T) {
	err := classifyHTTPCallError("search", "transport", fmt.Errorf("boom"))
	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.Code != OperationErrorTransportFailed {
		t.Fatalf("error: got=%v", err)
	}
	err = classifyHTTPCallError("search", "timeout", context.DeadlineExceeded)
	if !errors.As(err, &opErr) || opErr.Code != OperationErrorTimeout {
		t.Fatalf("timeout: got=%v", err)
	}
}

func newTestIndex(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *index {
	t.Helper()
	s := newIndex(newTestLogger(t), Config{
		URL:        "http://qdrant.local",
		Collection: "docs",
		VectorDim:  3,
		Distance:   "Dot",
	}, &http.Client{Transport: roundTripFunc(roundTrip)})
	s.backoff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return s
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
}

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"result": result,
		"status": "ok",
		"time":   0.001,
	})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
