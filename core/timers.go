package core

import (
	"context"
	"time"
)

const countdownStep = time.Second

// syncTimersLocked arms or clears the poll and countdown timers so they match
// the current state. Outside pending no timer survives.
func (c *Coordinator) syncTimersLocked() {
	pending := c.state.Status == FlowStatusPending

	interval := 0
	if c.state.IntervalSeconds != nil {
		interval = *c.state.IntervalSeconds
	}
	switch {
	case !pending || interval <= 0:
		c.stopPollTimerLocked()
	case c.pollTimer == nil,
		c.pollTimer.token.generation != c.generation,
		c.pollTimer.interval != interval:
		c.stopPollTimerLocked()
		c.armPollTimerLocked(interval)
	}

	remaining := 0
	if c.state.ExpiresInSeconds != nil {
		remaining = *c.state.ExpiresInSeconds
	}
	switch {
	case !pending || remaining <= 0:
		c.stopCountdownLocked()
	case c.countdown == nil,
		c.countdown.token.generation != c.generation:
		c.stopCountdownLocked()
		c.armCountdownLocked()
	}
}

func (c *Coordinator) stopTimersLocked() {
	c.stopPollTimerLocked()
	c.stopCountdownLocked()
}

func (c *Coordinator) stopPollTimerLocked() {
	if c.pollTimer == nil {
		return
	}
	if c.pollTimer.timer != nil {
		c.pollTimer.timer.Stop()
	}
	c.pollTimer = nil
}

func (c *Coordinator) stopCountdownLocked() {
	if c.countdown == nil {
		return
	}
	if c.countdown.timer != nil {
		c.countdown.timer.Stop()
	}
	c.countdown = nil
}

func (c *Coordinator) nextTokenLocked() timerToken {
	c.timerSeq++
	return timerToken{generation: c.generation, seq: c.timerSeq}
}

func (c *Coordinator) armPollTimerLocked(interval int) {
	token := c.nextTokenLocked()
	handle := &flowTimer{token: token, interval: interval}
	handle.timer = c.clock.AfterFunc(time.Duration(interval)*time.Second, func() {
		c.onPollTick(token)
	})
	c.pollTimer = handle
}

func (c *Coordinator) armCountdownLocked() {
	token := c.nextTokenLocked()
	handle := &flowTimer{token: token}
	handle.timer = c.clock.AfterFunc(countdownStep, func() {
		c.onCountdownTick(token)
	})
	c.countdown = handle
}

// onPollTick re-arms the next tick before polling so the cadence does not
// drift with request latency.
func (c *Coordinator) onPollTick(token timerToken) {
	c.mu.Lock()
	if c.pollTimer == nil || c.pollTimer.token != token || c.state.Status != FlowStatusPending {
		c.mu.Unlock()
		return
	}
	interval := c.pollTimer.interval
	c.armPollTimerLocked(interval)
	generation := c.generation
	ctx := c.flowCtx
	c.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	c.poll(ctx, generation, true)
}

func (c *Coordinator) onCountdownTick(token timerToken) {
	c.mu.Lock()
	if c.countdown == nil || c.countdown.token != token || c.state.Status != FlowStatusPending {
		c.mu.Unlock()
		return
	}
	c.countdown = nil
	if c.state.ExpiresInSeconds != nil {
		next := *c.state.ExpiresInSeconds - 1
		if next < 0 {
			next = 0
		}
		c.state.ExpiresInSeconds = IntPtr(next)
	}
	snapshot, version := c.commitLocked()
	flowID := c.flowID
	c.mu.Unlock()
	c.notify(snapshot, version)

	if snapshot.ExpiresInSeconds != nil && *snapshot.ExpiresInSeconds == 0 {
		c.logDebug(context.Background(), "flow countdown reached zero", map[string]any{"flow_id": flowID})
	}
}
