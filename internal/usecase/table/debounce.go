package table

import (
	"sync"
	"time"
)

// Debouncer emits the latest pushed value once no newer value has arrived
// for the quiescence window. At most one emission is pending at a time.
type Debouncer struct {
	window time.Duration
	emit   func(string)

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	stopped bool
}

// NewDebouncer creates a debouncer that calls emit after window of quiet.
func NewDebouncer(window time.Duration, emit func(string)) *Debouncer {
	return &Debouncer{window: window, emit: emit}
}

// Push schedules value for emission and discards any pending one.
func (d *Debouncer) Push(value string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() { d.fire(seq, value) })
}

// fire runs on the timer goroutine. A timer that was stopped too late to
// prevent it from firing is recognised by its stale sequence number.
func (d *Debouncer) fire(seq uint64, value string) {
	d.mu.Lock()
	if d.stopped || seq != d.seq {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.emit(value)
}

// Pending reports whether an emission is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels any pending emission. Later pushes are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
