package ricod

import (
	"sync"
	"time"
)

// IntervalTicks derives sale ticks from wall-clock time: base plus the number
// of whole intervals elapsed since anchor. The returned tick never decreases,
// even if the clock steps backwards.
type IntervalTicks struct {
	anchor   time.Time
	base     uint64
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last uint64
}

// NewIntervalTicks builds a tick source. A non-positive interval counts
// seconds.
func NewIntervalTicks(anchor time.Time, base uint64, interval time.Duration) *IntervalTicks {
	if interval <= 0 {
		interval = time.Second
	}
	return &IntervalTicks{anchor: anchor, base: base, interval: interval, now: time.Now, last: base}
}

// CurrentTick implements sale.TickSource.
func (t *IntervalTicks) CurrentTick() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	tick := t.base
	if elapsed := t.now().Sub(t.anchor); elapsed > 0 {
		tick += uint64(elapsed / t.interval)
	}
	if tick < t.last {
		return t.last
	}
	t.last = tick
	return tick
}

// TimeOf returns the wall-clock time at which tick begins.
func (t *IntervalTicks) TimeOf(tick uint64) time.Time {
	if tick <= t.base {
		return t.anchor
	}
	return t.anchor.Add(time.Duration(tick-t.base) * t.interval)
}
