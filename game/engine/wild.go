package engine

import "time"

// WildMeter accumulates charge from merges. Charge is unbounded above;
// each wild spawn consumes exactly one unit.
type WildMeter struct {
	charge   float64
	interval time.Duration
	retry    *Deferred
	inFlight bool
}

// NewWildMeter creates a meter whose retry task runs through exec
func NewWildMeter(interval time.Duration, sched Scheduler, exec func(func())) *WildMeter {
	return &WildMeter{
		interval: interval,
		retry:    NewDeferred(sched, exec),
	}
}

// Add increases the charge
func (m *WildMeter) Add(amount float64) {
	m.charge += amount
}

// Charge returns the stored charge
func (m *WildMeter) Charge() float64 {
	return m.charge
}

// DisplayRatio returns the progress toward the next wild, capped at 1
func (m *WildMeter) DisplayRatio() float64 {
	return min(1.0, m.charge)
}

// Ready reports whether a spawn can be paid for
func (m *WildMeter) Ready() bool {
	return m.charge >= 1.0
}

// TryConsume pays for one spawn, keeping any overflow
func (m *WildMeter) TryConsume() bool {
	if m.charge < 1.0 {
		return false
	}
	m.charge -= 1.0
	return true
}

// InFlight reports whether a spawn attempt is waiting on a retry
func (m *WildMeter) InFlight() bool {
	return m.inFlight
}

// deferSpawn schedules attempt after the retry interval and marks a spawn in flight
func (m *WildMeter) deferSpawn(attempt func()) {
	m.inFlight = true
	m.retry.Arm(m.interval, func() {
		m.inFlight = false
		attempt()
	})
}

// Cancel drops a pending retry
func (m *WildMeter) Cancel() {
	m.retry.Cancel()
	m.inFlight = false
}

// Reset drops the charge and any pending retry
func (m *WildMeter) Reset() {
	m.Cancel()
	m.charge = 0
}

func (m *WildMeter) restore(charge float64) {
	m.Reset()
	m.charge = charge
}

// pickWildValue chooses the face shown on a wild, avoiding the value it replaced
func pickWildValue(rng Rand, avoid int) int {
	if avoid < MinSpawnValue || avoid > MaxSpawnValue {
		return MinSpawnValue + rng.IntN(MaxSpawnValue)
	}
	v := MinSpawnValue + rng.IntN(MaxSpawnValue-1)
	if v >= avoid {
		v++
	}
	return v
}
