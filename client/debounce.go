package client

import (
	"sync"
	"time"
)

// DefaultDebounceInterval is the quiet period before a search is issued.
const DefaultDebounceInterval = 300 * time.Millisecond

// Debouncer runs only the most recently triggered task, once no new trigger
// has arrived for the interval. Superseded tasks never run.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	timer    *time.Timer
	seq      uint64
}

func NewDebouncer(interval time.Duration) *Debouncer {
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	return &Debouncer{interval: interval}
}

// Trigger schedules fn, discarding whatever was scheduled before.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		current := d.seq == seq
		d.mu.Unlock()
		if current {
			fn()
		}
	})
}

// Stop discards the pending task, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
