package watch

import "time"

// debouncer coalesces a burst of Trigger calls arriving within window into a
// single fire on its Fired channel: the window resets on every new Trigger
// and fires only after it elapses with no further activity.
type debouncer struct {
	window time.Duration
	timer  *time.Timer
	fired  chan struct{}
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window, fired: make(chan struct{}, 1)}
}

// Trigger (re)starts the debounce window. Call on every matched filesystem
// event.
func (d *debouncer) Trigger() {
	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.fire)
		return
	}
	d.timer.Reset(d.window)
}

func (d *debouncer) fire() {
	select {
	case d.fired <- struct{}{}:
	default:
	}
}

// Fired signals once per settled burst of Trigger calls.
func (d *debouncer) Fired() <-chan struct{} {
	return d.fired
}

// Stop releases the underlying timer.
func (d *debouncer) Stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
}
