package logic

import "time"

// anchor records when the current raw polarity of a slot sensor began.
type anchor struct {
	since   time.Time
	blocked bool
}

// Debouncer turns raw per-slot sensor samples into confirmed transitions.
// Entry and exit use separate hold times: a short one to ride out bounce as
// a car pulls in, a longer one so a dropout does not close a ticket early.
type Debouncer struct {
	entry   time.Duration
	exit    time.Duration
	anchors []anchor
}

// NewDebouncer creates a debouncer for n slots. Every slot starts reading
// clear as of start.
func NewDebouncer(n int, entry, exit time.Duration, start time.Time) *Debouncer {
	anchors := make([]anchor, n)
	for i := range anchors {
		anchors[i] = anchor{since: start}
	}
	return &Debouncer{
		entry:   entry,
		exit:    exit,
		anchors: anchors,
	}
}

// Process takes one raw reading for slot i and the slot's current occupancy
// and returns the confirmed transition, if any.
func (d *Debouncer) Process(i int, raw, occupied bool, now time.Time) Transition {
	a := &d.anchors[i]

	// Polarity changed: elapsed restarts from zero
	if raw != a.blocked {
		a.since = now
		a.blocked = raw
	}

	elapsed := now.Sub(a.since)

	if raw && !occupied && elapsed >= d.entry {
		a.since = now
		return TransitionEntered
	}
	if !raw && occupied && elapsed >= d.exit {
		a.since = now
		return TransitionLeft
	}
	return TransitionNone
}

// Len returns the number of slots tracked.
func (d *Debouncer) Len() int {
	return len(d.anchors)
}
