package core

import (
	"sort"
	"sync"
	"time"
)

// Timer is a handle to a scheduled callback.
type Timer interface {
	Stop() bool
}

// Clock schedules the coordinator's poll and countdown callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ManualClock only moves when Advance or Set is called. Callbacks due within
// the advanced window run synchronously on the caller's goroutine, in due
// order, including callbacks scheduled by earlier callbacks in the same
// window.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers map[uint64]*manualTimer
}

type manualTimer struct {
	clock *ManualClock
	id    uint64
	due   time.Time
	fn    func()
}

func NewManualClock(start time.Time) *ManualClock {
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	return &ManualClock{now: start, timers: map[uint64]*manualTimer{}}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	c.seq++
	timer := &manualTimer{clock: c, id: c.seq, due: c.now.Add(d), fn: f}
	c.timers[timer.id] = timer
	return timer
}

// Pending returns the number of scheduled callbacks that have not fired or
// been stopped.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *ManualClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

func (c *ManualClock) Set(target time.Time) {
	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			if target.After(c.now) {
				c.now = target
			}
			c.mu.Unlock()
			return
		}
		delete(c.timers, next.id)
		if next.due.After(c.now) {
			c.now = next.due
		}
		c.mu.Unlock()
		next.fn()
	}
}

func (c *ManualClock) nextDueLocked(target time.Time) *manualTimer {
	candidates := make([]*manualTimer, 0, len(c.timers))
	for _, timer := range c.timers {
		if !timer.due.After(target) {
			candidates = append(candidates, timer)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].due.Equal(candidates[j].due) {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].due.Before(candidates[j].due)
	})
	return candidates[0]
}

func (t *manualTimer) Stop() bool {
	if t == nil || t.clock == nil {
		return false
	}
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if _, ok := t.clock.timers[t.id]; !ok {
		return false
	}
	delete(t.clock.timers, t.id)
	return true
}

var (
	_ Clock = SystemClock{}
	_ Clock = (*ManualClock)(nil)
)
