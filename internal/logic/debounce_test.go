package logic

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func ms(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Millisecond)
}

func newTestDebouncer() *Debouncer {
	return NewDebouncer(3, 300*time.Millisecond, 1000*time.Millisecond, t0)
}

func TestNewDebouncer(t *testing.T) {
	d := newTestDebouncer()
	if d.Len() != 3 {
		t.Fatalf("expected 3 slots, got %d", d.Len())
	}
	for i, a := range d.anchors {
		if a.blocked {
			t.Errorf("slot %d: expected clear polarity at start", i)
		}
		if !a.since.Equal(t0) {
			t.Errorf("slot %d: expected anchor at start time, got %v", i, a.since)
		}
	}
}

func TestEntryConfirmedAfterDebounce(t *testing.T) {
	d := newTestDebouncer()

	for _, at := range []int{0, 100, 200, 299} {
		if got := d.Process(0, true, false, ms(at)); got != TransitionNone {
			t.Fatalf("t=%dms: expected no transition before debounce, got %s", at, got)
		}
	}

	if got := d.Process(0, true, false, ms(301)); got != TransitionEntered {
		t.Fatalf("t=301ms: expected ENTERED, got %s", got)
	}
}

func TestEntryAtExactThreshold(t *testing.T) {
	d := newTestDebouncer()
	d.Process(0, true, false, ms(0))

	if got := d.Process(0, true, false, ms(300)); got != TransitionEntered {
		t.Errorf("expected ENTERED at exactly 300ms, got %s", got)
	}
}

func TestFlickerSuppressed(t *testing.T) {
	d := newTestDebouncer()

	// Blocked at 0, clear again at 100: never long enough
	if got := d.Process(0, true, false, ms(0)); got != TransitionNone {
		t.Fatalf("unexpected %s at 0ms", got)
	}
	if got := d.Process(0, false, false, ms(100)); got != TransitionNone {
		t.Fatalf("unexpected %s at 100ms", got)
	}
	for at := 200; at <= 2000; at += 100 {
		if got := d.Process(0, false, false, ms(at)); got != TransitionNone {
			t.Fatalf("t=%dms: expected no transition after flicker, got %s", at, got)
		}
	}
}

func TestRepeatedFlickerNeverConfirms(t *testing.T) {
	d := newTestDebouncer()

	// Alternate every 200ms for 4s
	for at := 0; at <= 4000; at += 200 {
		raw := (at/200)%2 == 0
		if got := d.Process(0, raw, false, ms(at)); got != TransitionNone {
			t.Fatalf("t=%dms: expected no transition, got %s", at, got)
		}
	}
}

func TestExitNeedsGracePeriod(t *testing.T) {
	d := newTestDebouncer()
	d.Process(0, true, false, ms(0))
	if got := d.Process(0, true, false, ms(300)); got != TransitionEntered {
		t.Fatalf("setup: expected ENTERED, got %s", got)
	}

	// Slot now occupied; sensor clears at 5000
	for _, at := range []int{5000, 5500, 5999} {
		if got := d.Process(0, false, true, ms(at)); got != TransitionNone {
			t.Fatalf("t=%dms: expected no exit within grace, got %s", at, got)
		}
	}
	if got := d.Process(0, false, true, ms(6000)); got != TransitionLeft {
		t.Fatalf("t=6000ms: expected LEFT, got %s", got)
	}
}

func TestDropoutToleratedWhileOccupied(t *testing.T) {
	d := newTestDebouncer()
	d.Process(0, true, false, ms(0))
	d.Process(0, true, false, ms(300))

	// 800ms dropout, then blocked again
	d.Process(0, false, true, ms(1000))
	d.Process(0, false, true, ms(1800))
	if got := d.Process(0, true, true, ms(1850)); got != TransitionNone {
		t.Fatalf("expected no transition on recovery, got %s", got)
	}

	// A second clear restarts the grace window
	d.Process(0, false, true, ms(2000))
	if got := d.Process(0, false, true, ms(2900)); got != TransitionNone {
		t.Fatalf("expected grace window restarted, got %s", got)
	}
	if got := d.Process(0, false, true, ms(3000)); got != TransitionLeft {
		t.Fatalf("expected LEFT after full grace, got %s", got)
	}
}

func TestNoRepeatWhileStable(t *testing.T) {
	d := newTestDebouncer()
	d.Process(0, true, false, ms(0))
	if got := d.Process(0, true, false, ms(300)); got != TransitionEntered {
		t.Fatalf("setup: expected ENTERED, got %s", got)
	}

	for at := 400; at <= 3000; at += 100 {
		if got := d.Process(0, true, true, ms(at)); got != TransitionNone {
			t.Fatalf("t=%dms: expected no transition for stable occupied slot, got %s", at, got)
		}
	}
}

func TestEnteredAnchorIsReset(t *testing.T) {
	d := newTestDebouncer()
	d.Process(0, true, false, ms(0))
	d.Process(0, true, false, ms(500))

	if !d.anchors[0].since.Equal(ms(500)) {
		t.Errorf("expected anchor reset to confirmation time, got %v", d.anchors[0].since)
	}
	if !d.anchors[0].blocked {
		t.Error("expected blocked polarity after ENTERED")
	}
}

func TestSlotsIndependent(t *testing.T) {
	d := newTestDebouncer()

	d.Process(0, true, false, ms(0))
	d.Process(1, false, false, ms(0))
	d.Process(2, true, false, ms(200))

	if got := d.Process(0, true, false, ms(300)); got != TransitionEntered {
		t.Errorf("slot 0: expected ENTERED, got %s", got)
	}
	if got := d.Process(1, false, false, ms(300)); got != TransitionNone {
		t.Errorf("slot 1: expected NONE, got %s", got)
	}
	if got := d.Process(2, true, false, ms(300)); got != TransitionNone {
		t.Errorf("slot 2: expected NONE before its own debounce, got %s", got)
	}
	if got := d.Process(2, true, false, ms(500)); got != TransitionEntered {
		t.Errorf("slot 2: expected ENTERED, got %s", got)
	}
}

func TestOccupiedBlockedNeverEnters(t *testing.T) {
	d := newTestDebouncer()
	d.Process(0, true, true, ms(0))
	if got := d.Process(0, true, true, ms(5000)); got != TransitionNone {
		t.Errorf("expected no ENTERED for an already occupied slot, got %s", got)
	}
}

func TestTransitionString(t *testing.T) {
	tests := []struct {
		tr   Transition
		want string
	}{
		{TransitionNone, "NONE"},
		{TransitionEntered, "ENTERED"},
		{TransitionLeft, "LEFT"},
	}
	for _, tt := range tests {
		if got := tt.tr.String(); got != tt.want {
			t.Errorf("%d: got %q, want %q", tt.tr, got, tt.want)
		}
	}
}
