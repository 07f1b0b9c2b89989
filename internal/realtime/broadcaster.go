package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/docsync-backend/internal/pkg/ctxutil"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

const DefaultThrottleWindow = 150 * time.Millisecond

// Transport moves messages between instances. Every instance, the publisher
// included, receives published messages through its forwarder.
type Transport interface {
	Publish(ctx context.Context, msg Message) error
	StartForwarder(ctx context.Context, onMsg func(m Message)) error
	Close() error
}

type Broadcaster struct {
	log    *logger.Logger
	window time.Duration

	mu        sync.RWMutex
	fileSubs  map[*FileChangeSubscription]struct{}
	candSubs  map[uuid.UUID]map[*CandidateSubscription]struct{}
	transport Transport
}

func NewBroadcaster(log *logger.Logger, window time.Duration) *Broadcaster {
	if window <= 0 {
		window = DefaultThrottleWindow
	}
	return &Broadcaster{
		log:      log.With("component", "Broadcaster"),
		window:   window,
		fileSubs: make(map[*FileChangeSubscription]struct{}),
		candSubs: make(map[uuid.UUID]map[*CandidateSubscription]struct{}),
	}
}

// UseTransport routes publishes through t and starts delivering what it
// forwards. The forwarder runs until ctx is done.
func (b *Broadcaster) UseTransport(ctx context.Context, t Transport) error {
	if t == nil {
		return nil
	}
	if err := t.StartForwarder(ctx, b.Deliver); err != nil {
		return err
	}
	b.mu.Lock()
	b.transport = t
	b.mu.Unlock()
	return nil
}

func (b *Broadcaster) PublishFileChange(ctx context.Context) {
	b.publish(ctx, Message{Event: EventFileChange})
}

func (b *Broadcaster) PublishCandidateProgress(ctx context.Context, p CandidateProgress) {
	b.publish(ctx, Message{Event: EventCandidateProgress, Candidate: &p})
}

// publish never fails the caller. A transport error degrades to local delivery.
func (b *Broadcaster) publish(ctx context.Context, msg Message) {
	b.mu.RLock()
	t := b.transport
	b.mu.RUnlock()
	if t != nil {
		err := t.Publish(ctxutil.Default(ctx), msg)
		if err == nil {
			return
		}
		b.log.Warn("realtime transport publish failed; delivering locally", "event", msg.Event, "error", err)
	}
	b.Deliver(msg)
}

// Deliver fans a message out to this instance's subscribers.
func (b *Broadcaster) Deliver(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	switch msg.Event {
	case EventFileChange:
		for s := range b.fileSubs {
			s.signal()
		}
	case EventCandidateProgress:
		if msg.Candidate == nil {
			return
		}
		for s := range b.candSubs[msg.Candidate.ChangeID] {
			s.offer(*msg.Candidate)
		}
	default:
		b.log.Debug("ignoring unknown realtime event", "event", msg.Event)
	}
}

func (b *Broadcaster) SubscribeFileChanges() *FileChangeSubscription {
	s := &FileChangeSubscription{ch: make(chan struct{}, 1), b: b}
	b.mu.Lock()
	b.fileSubs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *Broadcaster) SubscribeCandidates(changeID uuid.UUID) *CandidateSubscription {
	s := &CandidateSubscription{
		changeID: changeID,
		window:   b.window,
		ch:       make(chan CandidateProgress, 16),
		pending:  make(map[uuid.UUID]CandidateProgress),
		timers:   make(map[uuid.UUID]*time.Timer),
		b:        b,
	}
	b.mu.Lock()
	subs, ok := b.candSubs[changeID]
	if !ok {
		subs = make(map[*CandidateSubscription]struct{})
		b.candSubs[changeID] = subs
	}
	subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *Broadcaster) removeFileSub(s *FileChangeSubscription) {
	b.mu.Lock()
	delete(b.fileSubs, s)
	b.mu.Unlock()
}

func (b *Broadcaster) removeCandidateSub(s *CandidateSubscription) {
	b.mu.Lock()
	if subs, ok := b.candSubs[s.changeID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(b.candSubs, s.changeID)
		}
	}
	b.mu.Unlock()
}

// SubscriberCount reports live subscriptions; used by tests and health output.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.fileSubs)
	for _, subs := range b.candSubs {
		n += len(subs)
	}
	return n
}
