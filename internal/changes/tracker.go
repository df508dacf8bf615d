package changes

import (
	"sync"
	"time"
)

// Tracker holds the listening state of change detection between cycles
// and the progress counters of the running cycle.
type Tracker struct {
	mu        sync.Mutex
	enabled   bool
	dirty     bool
	lastEvent time.Time
	total     int
	remaining int
}

// NewTracker returns a tracker that is listening.
func NewTracker() *Tracker { return &Tracker{enabled: true} }

// Enable resumes listening.
func (t *Tracker) Enable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = true
}

// Disable stops listening. Edits are still recorded while disabled so the
// caller can catch up once listening resumes.
func (t *Tracker) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = false
}

// Enabled reports whether the tracker is listening.
func (t *Tracker) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Notify records an edit of the authoring data. It reports whether the
// tracker was listening; a false result means the edit is only pending.
func (t *Tracker) Notify(at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty = true
	t.lastEvent = at
	return t.enabled
}

// TakeDirty returns and clears the dirty flag.
func (t *Tracker) TakeDirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.dirty
	t.dirty = false
	return d
}

// LastEvent returns the time of the last Notify.
func (t *Tracker) LastEvent() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastEvent
}

// StartExports sets the number of exports the cycle will run.
func (t *Tracker) StartExports(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = total
	t.remaining = total
}

// ExportFinished decrements the remaining count, never below zero.
func (t *Tracker) ExportFinished() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remaining > 0 {
		t.remaining--
	}
}

// Progress returns completed and total exports of the current cycle.
func (t *Tracker) Progress() (done, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total - t.remaining, t.total
}
