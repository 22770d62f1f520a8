package engine

import (
	"sync"
	"time"
)

// Timer is a handle to a scheduled callback
type Timer interface {
	Stop() bool
}

// Scheduler runs callbacks after a delay
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// RealScheduler schedules callbacks on the runtime timer
type RealScheduler struct{}

// AfterFunc wraps time.AfterFunc
func (RealScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// ManualScheduler is a virtual clock for deterministic tests and simulations.
// Callbacks only run inside Advance, on the caller's goroutine.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	tasks []*manualTask
}

type manualTask struct {
	s       *ManualScheduler
	at      time.Time
	seq     uint64
	fn      func()
	stopped bool
	fired   bool
}

// NewManualScheduler creates a virtual clock starting at start
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

// Now returns the virtual time
func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// AfterFunc registers fn to run once the clock passes now+d
func (s *ManualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &manualTask{s: s, at: s.now.Add(d), seq: s.seq, fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

// Pending returns the number of scheduled callbacks
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Advance moves the clock forward by d, running every callback that becomes due
// in time order. Callbacks scheduled while advancing run if they fall inside the window.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if len(s.tasks) == 0 || s.tasks[s.earliest()].at.After(target) {
			s.now = target
			s.mu.Unlock()
			return
		}
		i := s.earliest()
		t := s.tasks[i]
		s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
		s.now = t.at
		t.fired = true
		s.mu.Unlock()

		t.fn()
	}
}

func (s *ManualScheduler) earliest() int {
	best := 0
	for i, t := range s.tasks {
		b := s.tasks[best]
		if t.at.Before(b.at) || (t.at.Equal(b.at) && t.seq < b.seq) {
			best = i
		}
	}
	return best
}

func (t *manualTask) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	for i, other := range t.s.tasks {
		if other == t {
			t.s.tasks = append(t.s.tasks[:i], t.s.tasks[i+1:]...)
			break
		}
	}
	return true
}

// Deferred is a single re-armable callback. The exec hook runs the callback
// under the owner's lock; a firing that lost a race with Cancel or Arm is dropped.
type Deferred struct {
	sched Scheduler
	exec  func(func())
	timer Timer
	seq   uint64
}

// NewDeferred creates a deferred task that runs callbacks through exec
func NewDeferred(sched Scheduler, exec func(func())) *Deferred {
	return &Deferred{sched: sched, exec: exec}
}

// Arm cancels any pending callback and schedules fn after delay.
// Must be called with the owner's lock held.
func (d *Deferred) Arm(delay time.Duration, fn func()) {
	d.Cancel()
	seq := d.seq
	d.timer = d.sched.AfterFunc(delay, func() {
		d.exec(func() {
			if d.seq != seq || d.timer == nil {
				return
			}
			d.timer = nil
			fn()
		})
	})
}

// Cancel drops the pending callback, if any
func (d *Deferred) Cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}

// Pending reports whether a callback is scheduled
func (d *Deferred) Pending() bool {
	return d.timer != nil
}
