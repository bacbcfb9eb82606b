package socketio

import (
	"sync"
	"time"
)

// BroadcastDebouncer collapses rapid change notifications into batched
// broadcasts. Multiple triggers within the window result in a single
// callback per affected type (player state and/or library contents).
type BroadcastDebouncer struct {
	window          time.Duration
	stateCallback   func()
	libraryCallback func()

	mu             sync.Mutex
	pendingState   bool
	pendingLibrary bool
	timer          *time.Timer
	stopped        bool
}

// NewBroadcastDebouncer creates a debouncer with the given window duration.
// stateCallback fires for player state changes, libraryCallback for
// library store changes.
func NewBroadcastDebouncer(window time.Duration, stateCallback, libraryCallback func()) *BroadcastDebouncer {
	return &BroadcastDebouncer{
		window:          window,
		stateCallback:   stateCallback,
		libraryCallback: libraryCallback,
	}
}

// TriggerState records a pending player state broadcast.
func (d *BroadcastDebouncer) TriggerState() {
	d.trigger(func() { d.pendingState = true })
}

// TriggerLibrary records a pending library change broadcast.
func (d *BroadcastDebouncer) TriggerLibrary() {
	d.trigger(func() { d.pendingLibrary = true })
}

func (d *BroadcastDebouncer) trigger(mark func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	mark()

	// Reset the timer
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush fires callbacks for any pending flags and resets them.
func (d *BroadcastDebouncer) flush() {
	d.mu.Lock()
	doState := d.pendingState
	doLibrary := d.pendingLibrary
	d.pendingState = false
	d.pendingLibrary = false
	d.mu.Unlock()

	if doState && d.stateCallback != nil {
		d.stateCallback()
	}
	if doLibrary && d.libraryCallback != nil {
		d.libraryCallback()
	}
}

// Stop prevents any further callbacks from firing.
func (d *BroadcastDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pendingState = false
	d.pendingLibrary = false
}
