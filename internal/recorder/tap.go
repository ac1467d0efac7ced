package recorder

import "time"

// Intent is what a classified button press asks the controller to do.
type Intent int

const (
	IntentNone Intent = iota
	IntentStart
	IntentMark
	IntentStop
)

func (i Intent) String() string {
	switch i {
	case IntentStart:
		return "start"
	case IntentMark:
		return "mark"
	case IntentStop:
		return "stop"
	default:
		return "none"
	}
}

// tapDisambiguator tells a single press (Mark, on window expiry) from a
// double press (Stop, second press inside the window).
//
// It is not safe for concurrent use: every method runs under the owning
// Controller's lock. The expiry callback only carries a generation number;
// the controller re-enters through Expire with the lock held, so a fire
// that lost the race against a second press or a forced stop is discarded.
type tapDisambiguator struct {
	window   time.Duration
	onExpire func(gen uint64)

	armed   bool
	armedAt time.Time
	timer   *time.Timer
	gen     uint64
}

func newTapDisambiguator(window time.Duration, onExpire func(gen uint64)) *tapDisambiguator {
	return &tapDisambiguator{window: window, onExpire: onExpire}
}

// Press advances the state machine. Idle arms a fresh window and returns
// IntentNone; Armed disarms and returns IntentStop.
func (t *tapDisambiguator) Press(now time.Time) Intent {
	if t.armed {
		t.disarm()
		return IntentStop
	}

	t.disarm()
	t.armed = true
	t.armedAt = now
	gen := t.gen
	t.timer = time.AfterFunc(t.window, func() { t.onExpire(gen) })
	return IntentNone
}

// Expire resolves a timer fire. It returns IntentMark when gen still names
// the armed window, IntentNone for a stale fire.
func (t *tapDisambiguator) Expire(gen uint64) Intent {
	if !t.armed || gen != t.gen {
		return IntentNone
	}
	t.disarm()
	return IntentMark
}

// Overdue reports an armed window whose deadline has passed but whose
// timer callback has not been processed yet.
func (t *tapDisambiguator) Overdue(now time.Time) bool {
	return t.armed && now.Sub(t.armedAt) >= t.window
}

// Cancel drops a pending window without emitting anything.
func (t *tapDisambiguator) Cancel() {
	t.disarm()
}

// Armed reports whether a window is open.
func (t *tapDisambiguator) Armed() bool {
	return t.armed
}

// disarm clears the armed flag, stops the timer and invalidates any fire
// already in flight.
func (t *tapDisambiguator) disarm() {
	t.armed = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
}
