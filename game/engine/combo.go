package engine

import "time"

// ComboTracker counts consecutive merges and decays to zero after an idle period
type ComboTracker struct {
	count uint32
	cap   uint32
	idle  time.Duration
	decay *Deferred

	// onDecay runs under the owner's lock after the count drops to zero
	onDecay func()
}

// NewComboTracker creates a tracker whose decay task runs through exec
func NewComboTracker(cap int, idle time.Duration, sched Scheduler, exec func(func())) *ComboTracker {
	return &ComboTracker{
		cap:   uint32(cap),
		idle:  idle,
		decay: NewDeferred(sched, exec),
	}
}

// OnMerge increments the combo and re-arms the idle timer
func (c *ComboTracker) OnMerge() {
	if c.count < c.cap {
		c.count++
	}
	c.arm()
}

func (c *ComboTracker) arm() {
	c.decay.Arm(c.idle, func() {
		c.count = 0
		if c.onDecay != nil {
			c.onDecay()
		}
	})
}

// Reset zeroes the combo and cancels the pending decay
func (c *ComboTracker) Reset() {
	c.count = 0
	c.decay.Cancel()
}

// Current returns the combo count
func (c *ComboTracker) Current() uint32 {
	return c.count
}

// restore sets the count from a snapshot and re-arms decay when non-zero
func (c *ComboTracker) restore(count uint32) {
	c.Reset()
	if count == 0 {
		return
	}
	c.count = min(count, c.cap)
	c.arm()
}
