// Package deferred runs one-shot callbacks after a delay, keeping at most
// one pending callback per id.
package deferred

import (
	"sync"
	"time"
)

// Well-known task ids.
const (
	EnableChangeDetection = "enable_change_detection"
	CleanupPlaceholder    = "cleanup_placeholder"
	ExportCycle           = "export_cycle"
)

type task struct {
	timer *time.Timer
	gen   uint64
}

// Scheduler owns a set of pending timers keyed by id.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]task
	gen     uint64
	stopped bool
	wg      sync.WaitGroup
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{pending: make(map[string]task)}
}

// ScheduleOnce runs fn after delay. A pending task with the same id is
// cancelled first. It returns false once the scheduler is stopped.
func (s *Scheduler) ScheduleOnce(id string, delay time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.cancelLocked(id)
	s.gen++
	gen := s.gen
	s.wg.Add(1)
	t := time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		cur, ok := s.pending[id]
		if !ok || cur.gen != gen {
			s.mu.Unlock()
			return
		}
		delete(s.pending, id)
		s.mu.Unlock()
		fn()
	})
	s.pending[id] = task{timer: t, gen: gen}
	return true
}

// Cancel unregisters the pending task for id, reporting whether one existed.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(id)
}

func (s *Scheduler) cancelLocked(id string) bool {
	cur, ok := s.pending[id]
	if !ok {
		return false
	}
	delete(s.pending, id)
	if cur.timer.Stop() {
		s.wg.Done()
	}
	return true
}

// Pending reports whether a task for id is waiting to fire.
func (s *Scheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// Stop cancels every pending task and waits for running callbacks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id := range s.pending {
		s.cancelLocked(id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
