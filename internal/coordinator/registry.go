package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/keeperbot/keeper/internal/fifo"
)

const defaultIdleTTL = 2 * time.Hour

// threadState holds the per-conversation ordering and cancellation state.
// States are created lazily on first use and reaped when idle.
type threadState struct {
	queue fifo.Mutex

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	lastUsed time.Time
}

func (s *threadState) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *threadState) setCancel(c context.CancelFunc) {
	s.mu.Lock()
	s.cancel = c
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *threadState) clearCancel() {
	s.mu.Lock()
	s.cancel = nil
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// interrupt advances the generation and cancels the active turn, if any.
func (s *threadState) interrupt() {
	s.mu.Lock()
	s.gen++
	cancel := s.cancel
	s.cancel = nil
	s.lastUsed = time.Now()
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *threadState) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel == nil && s.lastUsed.Before(cutoff)
}

// registry maps thread ids to their state without any cross-thread lock held
// during turn work.
type registry struct {
	mu      sync.Mutex
	threads map[string]*threadState
	idleTTL time.Duration
}

func newRegistry(idleTTL time.Duration) *registry {
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	return &registry{threads: make(map[string]*threadState), idleTTL: idleTTL}
}

func (r *registry) get(threadID string) *threadState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.threads[threadID]
	if !ok {
		st = &threadState{lastUsed: time.Now()}
		r.threads[threadID] = st
	}
	return st
}

// peek returns the state without creating one.
func (r *registry) peek(threadID string) *threadState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threads[threadID]
}

// reap drops idle thread states. A reaped thread simply gets a fresh state
// (and generation) on its next message.
func (r *registry) reap(now time.Time) int {
	cutoff := now.Add(-r.idleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, st := range r.threads {
		if st.idleSince(cutoff) {
			delete(r.threads, id)
			n++
		}
	}
	return n
}
