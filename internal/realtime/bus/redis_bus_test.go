package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"github.com/yungbote/docsync-backend/internal/platform/logger"
	"github.com/yungbote/docsync-backend/internal/realtime"
)

func TestRedisBusRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	log := logger.Nop()

	b, err := NewRedisBus(log, Config{Addr: mr.Addr(), Channel: "test"})
	if err != nil {
		t.Fatalf("NewRedisBus: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := b.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	got := make(chan realtime.Message, 1)
	if err := b.StartForwarder(ctx, func(m realtime.Message) { got <- m }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}

	want := realtime.CandidateProgress{ChangeID: uuid.New(), CandidateID: uuid.New(), ItemID: "item", Diff: "<ins>x</ins>"}
	if err := b.Publish(ctx, realtime.Message{Event: realtime.EventCandidateProgress, Candidate: &want}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case m := <-got:
		if m.Event != realtime.EventCandidateProgress || m.Candidate == nil || *m.Candidate != want {
			t.Fatalf("forwarded: want=%+v got=%+v", want, m.Candidate)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for forwarded message")
	}
}

func TestRedisBusFeedsBroadcaster(t *testing.T) {
	mr := miniredis.RunT(t)
	log := logger.Nop()

	b, err := NewRedisBus(log, Config{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisBus: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bc := realtime.NewBroadcaster(log, 10*time.Millisecond)
	if err := bc.UseTransport(ctx, b); err != nil {
		t.Fatalf("UseTransport: %v", err)
	}
	sub := bc.SubscribeFileChanges()
	defer sub.Close()

	bc.PublishFileChange(ctx)
	select {
	case <-sub.C():
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for file change via redis")
	}
}

func TestNewRedisBusRequiresAddr(t *testing.T) {
	if _, err := NewRedisBus(logger.Nop(), Config{}); err == nil {
		t.Fatalf("NewRedisBus: expected error without address")
	}
}
