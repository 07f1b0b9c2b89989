package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func recv[T any](t *testing.T, ch <-chan T, timeout time.Duration) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for message")
	}
	var zero T
	return zero
}

func TestFileChangeSignalCoalesces(t *testing.T) {
	b := NewBroadcaster(logger.Nop(), 0)
	sub := b.SubscribeFileChanges()
	defer sub.Close()

	ctx := context.Background()
	b.PublishFileChange(ctx)
	b.PublishFileChange(ctx)
	b.PublishFileChange(ctx)

	recv(t, sub.C(), time.Second)
	select {
	case <-sub.C():
		t.Fatalf("pending signal should absorb later ones")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCandidateThrottleDeliversLatestPerWindow(t *testing.T) {
	window := 60 * time.Millisecond
	b := NewBroadcaster(logger.Nop(), window)
	changeID := uuid.New()
	sub := b.SubscribeCandidates(changeID)
	defer sub.Close()

	ctx := context.Background()
	cand := uuid.New()
	start := time.Now()
	for i := 1; i <= 5; i++ {
		b.PublishCandidateProgress(ctx, CandidateProgress{ChangeID: changeID, CandidateID: cand, Diff: fmt.Sprintf("v%d", i)})
	}

	got := recv(t, sub.C(), time.Second)
	if got.Diff != "v5" {
		t.Fatalf("throttled value: want=v5 got=%s", got.Diff)
	}
	if elapsed := time.Since(start); elapsed < window {
		t.Fatalf("delivered before window: elapsed=%v window=%v", elapsed, window)
	}
	select {
	case extra := <-sub.C():
		t.Fatalf("expected one delivery per window, got extra %q", extra.Diff)
	case <-time.After(2 * window):
	}

	b.PublishCandidateProgress(ctx, CandidateProgress{ChangeID: changeID, CandidateID: cand, Diff: "v6"})
	if got := recv(t, sub.C(), time.Second); got.Diff != "v6" {
		t.Fatalf("next window: want=v6 got=%s", got.Diff)
	}
}

func TestCandidateThrottleIsPerCandidate(t *testing.T) {
	b := NewBroadcaster(logger.Nop(), 30*time.Millisecond)
	changeID := uuid.New()
	sub := b.SubscribeCandidates(changeID)
	defer sub.Close()

	ctx := context.Background()
	a, c := uuid.New(), uuid.New()
	b.PublishCandidateProgress(ctx, CandidateProgress{ChangeID: changeID, CandidateID: a, Diff: "a1"})
	b.PublishCandidateProgress(ctx, CandidateProgress{ChangeID: changeID, CandidateID: c, Diff: "c1"})

	seen := map[uuid.UUID]string{}
	for i := 0; i < 2; i++ {
		p := recv(t, sub.C(), time.Second)
		seen[p.CandidateID] = p.Diff
	}
	if seen[a] != "a1" || seen[c] != "c1" {
		t.Fatalf("per-candidate delivery: got=%v", seen)
	}
}

func TestCandidateSubscriptionFiltersByChange(t *testing.T) {
	b := NewBroadcaster(logger.Nop(), 10*time.Millisecond)
	mine := uuid.New()
	sub := b.SubscribeCandidates(mine)
	defer sub.Close()

	b.PublishCandidateProgress(context.Background(), CandidateProgress{ChangeID: uuid.New(), CandidateID: uuid.New(), Diff: "other"})
	select {
	case p := <-sub.C():
		t.Fatalf("unexpected progress for other change: %+v", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseStopsTimersAndDeregisters(t *testing.T) {
	b := NewBroadcaster(logger.Nop(), time.Hour)
	changeID := uuid.New()
	sub := b.SubscribeCandidates(changeID)
	files := b.SubscribeFileChanges()
	if n := b.SubscriberCount(); n != 2 {
		t.Fatalf("SubscriberCount: want=2 got=%d", n)
	}

	b.PublishCandidateProgress(context.Background(), CandidateProgress{ChangeID: changeID, CandidateID: uuid.New()})
	sub.Close()
	sub.Close()
	files.Close()

	if n := b.SubscriberCount(); n != 0 {
		t.Fatalf("SubscriberCount after close: want=0 got=%d", n)
	}
	if _, ok := <-sub.C(); ok {
		t.Fatalf("candidate channel should be closed")
	}
	if _, ok := <-files.C(); ok {
		t.Fatalf("file channel should be closed")
	}
	// Publishing after close must not panic.
	b.PublishCandidateProgress(context.Background(), CandidateProgress{ChangeID: changeID, CandidateID: uuid.New()})
	b.PublishFileChange(context.Background())
}

type failingTransport struct{ forwarded func(Message) }

func (f *failingTransport) Publish(context.Context, Message) error { return errors.New("down") }
func (f *failingTransport) StartForwarder(_ context.Context, onMsg func(Message)) error {
	f.forwarded = onMsg
	return nil
}
func (f *failingTransport) Close() error { return nil }

func TestTransportFailureFallsBackToLocal(t *testing.T) {
	b := NewBroadcaster(logger.Nop(), 0)
	if err := b.UseTransport(context.Background(), &failingTransport{}); err != nil {
		t.Fatalf("UseTransport: %v", err)
	}
	sub := b.SubscribeFileChanges()
	defer sub.Close()

	b.PublishFileChange(context.Background())
	recv(t, sub.C(), time.Second)
}

func TestServeSSEWritesEventsAndStopsOnClose(t *testing.T) {
	ch := make(chan CandidateProgress, 1)
	ch <- CandidateProgress{ItemID: "item-1", Diff: "<ins>x</ins>"}
	close(ch)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := httptest.NewRecorder()
	ServeSSE(rec, req, logger.Nop(), EventCandidateProgress, ch)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type: want=text/event-stream got=%s", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: candidate_progress\n") {
		t.Fatalf("missing event line: %q", body)
	}
	if !strings.Contains(body, `"item_id":"item-1"`) {
		t.Fatalf("missing payload: %q", body)
	}
}

func TestServeSSEStopsOnRequestCancel(t *testing.T) {
	ch := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		ServeSSE(rec, req, logger.Nop(), EventFileChange, ch)
		close(done)
	}()
	cancel()
	recv(t, done, time.Second)
}
