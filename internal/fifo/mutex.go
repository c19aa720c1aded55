// Package fifo provides a mutex whose waiters acquire in strict arrival
// order. sync.Mutex makes no fairness promise across goroutines, but turn
// processing must answer messages in the order they arrived.
package fifo

import (
	"context"
	"sync"
)

// Mutex is a context-aware FIFO mutex.
type Mutex struct {
	mu      sync.Mutex
	locked  bool
	waiters []chan struct{}
}

// Acquire blocks until the lock is held or ctx is cancelled. Waiters are
// served strictly in the order Acquire was called.
func (m *Mutex) Acquire(ctx context.Context) error {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	m.waiters = append(m.waiters, ch)
	m.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		for i, w := range m.waiters {
			if w == ch {
				m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
				m.mu.Unlock()
				return ctx.Err()
			}
		}
		m.mu.Unlock()
		// Release raced the cancellation and handed us the lock; pass it on.
		m.Release()
		return ctx.Err()
	}
}

// Release hands the lock to the oldest waiter, or unlocks if none wait.
func (m *Mutex) Release() {
	m.mu.Lock()
	if len(m.waiters) > 0 {
		ch := m.waiters[0]
		m.waiters = m.waiters[1:]
		m.mu.Unlock()
		close(ch)
		return
	}
	m.locked = false
	m.mu.Unlock()
}
