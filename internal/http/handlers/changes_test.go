package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/docsync-backend/internal/domain"
	"github.com/yungbote/docsync-backend/internal/http/response"
	"github.com/yungbote/docsync-backend/internal/modules/reconcile"
	"github.com/yungbote/docsync-backend/internal/platform/apierr"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
	"github.com/yungbote/docsync-backend/internal/realtime"
)

type fakeChanges struct {
	views  []reconcile.ChangeView
	diffs  []reconcile.CandidateDiff
	runErr error
	ran    uuid.UUID
}

func (f *fakeChanges) GetChanges(context.Context) ([]reconcile.ChangeView, error) { return f.views, nil }
func (f *fakeChanges) RunUpdate(_ context.Context, id uuid.UUID) ([]reconcile.CandidateDiff, error) {
	f.ran = id
	return f.diffs, f.runErr
}

func newChangeRouter(svc *fakeChanges, b *realtime.Broadcaster) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewChangeHandler(logger.Nop(), svc, b)
	r := gin.New()
	r.GET("/api/changes", h.ListChanges)
	r.GET("/api/changes/stream", h.StreamChanges)
	r.GET("/api/changes/:id/stream", h.StreamCandidates)
	r.POST("/api/changes/:id/run", h.RunUpdate)
	return r
}

func TestListChanges(t *testing.T) {
	id := uuid.New()
	svc := &fakeChanges{views: []reconcile.ChangeView{{ID: id, Kind: domain.ChangeUpdated, NewContent: "<p>n</p>"}}}
	rec := httptest.NewRecorder()
	newChangeRouter(svc, realtime.NewBroadcaster(logger.Nop(), 0)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/changes", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	var body struct {
		Changes []reconcile.ChangeView `json:"changes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Changes) != 1 || body.Changes[0].ID != id {
		t.Fatalf("changes: got=%+v", body.Changes)
	}
}

func TestRunUpdateStatusMapping(t *testing.T) {
	cases := []struct {
		name     string
		path     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"bad id", "/api/changes/nope/run", nil, http.StatusBadRequest, "invalid_change_id"},
		{"not found", "/api/changes/%s/run", apierr.NotFound("change_not_found", "gone"), http.StatusNotFound, "change_not_found"},
		{"upstream", "/api/changes/%s/run", apierr.Upstream("upstream_failed", fmt.Errorf("llm down")), http.StatusBadGateway, "upstream_failed"},
		{"internal", "/api/changes/%s/run", fmt.Errorf("db closed"), http.StatusInternalServerError, "run_update_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeChanges{runErr: tc.err}
			path := tc.path
			if strings.Contains(path, "%s") {
				path = fmt.Sprintf(path, uuid.New())
			}
			rec := httptest.NewRecorder()
			newChangeRouter(svc, realtime.NewBroadcaster(logger.Nop(), 0)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
			if rec.Code != tc.wantCode {
				t.Fatalf("status: want=%d got=%d", tc.wantCode, rec.Code)
			}
			var env response.ErrorEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if env.Error.Code != tc.wantErr {
				t.Fatalf("code: want=%q got=%q", tc.wantErr, env.Error.Code)
			}
		})
	}
}

func TestRunUpdateReturnsCandidates(t *testing.T) {
	id := uuid.New()
	cand := &domain.TrackedFile{ID: uuid.New(), Name: "b.docx"}
	svc := &fakeChanges{diffs: []reconcile.CandidateDiff{{Candidate: cand, Diff: "<ins>x</ins>"}}}
	rec := httptest.NewRecorder()
	newChangeRouter(svc, realtime.NewBroadcaster(logger.Nop(), 0)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/changes/"+id.String()+"/run", nil))
	if rec.Code != http.StatusOK || svc.ran != id {
		t.Fatalf("status=%d ran=%v", rec.Code, svc.ran)
	}
	var body struct {
		Candidates []reconcile.CandidateDiff `json:"candidates"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Candidates) != 1 || body.Candidates[0].Diff != "<ins>x</ins>" || body.Candidates[0].Candidate.ID != cand.ID {
		t.Fatalf("candidates: got=%+v", body.Candidates)
	}
}

func waitForSubscriber(t *testing.T, b *realtime.Broadcaster) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamChangesSendsSignal(t *testing.T) {
	b := realtime.NewBroadcaster(logger.Nop(), 0)
	r := newChangeRouter(&fakeChanges{}, b)

	ctx, cancel := context.WithCancel(context.Background())
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/changes/stream", nil).WithContext(ctx))
	}()
	waitForSubscriber(t, b)
	b.PublishFileChange(context.Background())
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if !strings.Contains(rec.Body.String(), "event: file_change\n") {
		t.Fatalf("stream body: got=%q", rec.Body.String())
	}
	if b.SubscriberCount() != 0 {
		t.Fatalf("subscription should be closed on disconnect")
	}
}

func TestStreamCandidatesFiltersByChange(t *testing.T) {
	b := realtime.NewBroadcaster(logger.Nop(), 10*time.Millisecond)
	r := newChangeRouter(&fakeChanges{}, b)
	changeID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/changes/"+changeID.String()+"/stream", nil).WithContext(ctx))
	}()
	waitForSubscriber(t, b)
	b.PublishCandidateProgress(context.Background(), realtime.CandidateProgress{ChangeID: uuid.New(), CandidateID: uuid.New(), Diff: "other"})
	b.PublishCandidateProgress(context.Background(), realtime.CandidateProgress{ChangeID: changeID, CandidateID: uuid.New(), Diff: "mine"})
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, "event: candidate_progress\n") || !strings.Contains(body, `"diff":"mine"`) {
		t.Fatalf("stream body: got=%q", body)
	}
	if strings.Contains(body, "other") {
		t.Fatalf("foreign change leaked into stream: %q", body)
	}
}
