// Package progress is a process-wide keyed status store. Each job has at
// most one ProgressState, overwritten on every update and expiring after a
// period of inactivity. Reads never block on pipeline work.
package progress

import (
	"sync"
	"time"

	"github.com/ytget/fetchvideo/types"
)

// DefaultTTL matches the artifact cache TTL; both are configurable
// independently.
const DefaultTTL = 3600 * time.Second

type entry struct {
	state   types.ProgressState
	updated time.Time
}

// Tracker stores the last known ProgressState per job ID.
type Tracker struct {
	mu   sync.RWMutex
	data map[string]entry
	ttl  time.Duration

	now func() time.Time
}

// NewTracker creates a tracker. ttl<=0 uses DefaultTTL.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		data: make(map[string]entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Set overwrites the status for jobID.
func (t *Tracker) Set(jobID string, stage types.Stage, percent int, message string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	now := t.now()
	t.mu.Lock()
	t.data[jobID] = entry{
		state: types.ProgressState{
			Stage:     stage,
			Percent:   percent,
			Message:   message,
			Timestamp: now,
		},
		updated: now,
	}
	t.mu.Unlock()
}

// Get returns the last known status for jobID, or a default unknown status
// when none was recorded or the record has expired.
func (t *Tracker) Get(jobID string) types.ProgressState {
	t.mu.RLock()
	e, ok := t.data[jobID]
	t.mu.RUnlock()
	if !ok || t.now().Sub(e.updated) > t.ttl {
		return types.ProgressState{
			Stage:     types.StageUnknown,
			Percent:   0,
			Message:   "no status recorded",
			Timestamp: t.now(),
		}
	}
	return e.state
}

// Sweep purges entries idle past the TTL. Returns the number removed.
func (t *Tracker) Sweep() int {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, e := range t.data {
		if now.Sub(e.updated) > t.ttl {
			delete(t.data, id)
			removed++
		}
	}
	return removed
}
