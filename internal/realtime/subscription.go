package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileChangeSubscription carries a payload-less "something changed" signal.
// A pending signal absorbs later ones.
type FileChangeSubscription struct {
	mu     sync.Mutex
	ch     chan struct{}
	closed bool
	b      *Broadcaster
}

func (s *FileChangeSubscription) C() <-chan struct{} { return s.ch }

func (s *FileChangeSubscription) signal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *FileChangeSubscription) Close() {
	s.b.removeFileSub(s)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// CandidateSubscription delivers progress for one change. Each candidate has
// its own trailing-edge throttle: the first event of a window arms a timer
// and the latest event seen when it fires is delivered.
type CandidateSubscription struct {
	changeID uuid.UUID
	window   time.Duration

	mu      sync.Mutex
	ch      chan CandidateProgress
	pending map[uuid.UUID]CandidateProgress
	timers  map[uuid.UUID]*time.Timer
	closed  bool
	b       *Broadcaster
}

func (s *CandidateSubscription) C() <-chan CandidateProgress { return s.ch }

func (s *CandidateSubscription) ChangeID() uuid.UUID { return s.changeID }

func (s *CandidateSubscription) offer(p CandidateProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending[p.CandidateID] = p
	if _, armed := s.timers[p.CandidateID]; armed {
		return
	}
	id := p.CandidateID
	s.timers[id] = time.AfterFunc(s.window, func() { s.flush(id) })
}

func (s *CandidateSubscription) flush(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	p, ok := s.pending[id]
	if !ok {
		delete(s.timers, id)
		return
	}
	select {
	case s.ch <- p:
		delete(s.pending, id)
		delete(s.timers, id)
	default:
		// Reader is behind; keep the latest value and try again next window.
		s.timers[id] = time.AfterFunc(s.window, func() { s.flush(id) })
	}
}

func (s *CandidateSubscription) Close() {
	s.b.removeCandidateSub(s)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	clear(s.pending)
	close(s.ch)
}
