package logic

import (
	"time"

	"golang.org/x/exp/constraints"
)

// Gate arm angles in degrees.
const (
	AngleClosed = 0
	AngleOpen   = 90
)

// GateView is a read-only view of the gate.
type GateView struct {
	Target        int
	Current       int
	Open          bool
	Moving        bool
	CloseDeadline time.Time // zero when not armed
}

// Gate arbitrates the single gate actuator. It tracks the commanded target,
// the ramped current angle, and the auto-close deadline.
type Gate struct {
	dwell time.Duration
	step  int

	target   int
	current  int
	deadline time.Time
}

// NewGate creates a closed gate. step is the number of degrees the arm
// moves per Tick.
func NewGate(dwell time.Duration, step int) *Gate {
	if step <= 0 {
		step = AngleOpen
	}
	return &Gate{dwell: dwell, step: step}
}

// RequestOpen opens the gate and arms the auto-close deadline. It refuses
// when no slot is free or the gate is already open.
func (g *Gate) RequestOpen(now time.Time, free int) bool {
	if free == 0 || g.IsOpen() {
		return false
	}
	g.target = AngleOpen
	g.deadline = now.Add(g.dwell)
	return true
}

// ForceClose commands the gate closed and disarms the deadline. It reports
// whether the gate was open.
func (g *Gate) ForceClose() bool {
	wasOpen := g.IsOpen()
	g.target = AngleClosed
	g.deadline = time.Time{}
	return wasOpen
}

// Tick applies the auto-close deadline and the capacity interlock, then
// moves the arm one step toward the target. It returns why the gate was
// closed on this tick, or CloseNone.
func (g *Gate) Tick(now time.Time, free int) CloseReason {
	reason := CloseNone

	if !g.deadline.IsZero() && !now.Before(g.deadline) {
		if g.ForceClose() {
			reason = CloseTimeout
		}
	}
	// The capacity interlock overrides any remaining dwell time
	if g.IsOpen() && free == 0 {
		g.ForceClose()
		reason = CloseFull
	}

	g.current = stepToward(g.current, g.target, g.step)
	return reason
}

// IsOpen reports whether the gate is commanded open.
func (g *Gate) IsOpen() bool {
	return g.target == AngleOpen
}

// Angle returns the current arm angle.
func (g *Gate) Angle() int {
	return g.current
}

// Moving reports whether the arm has not reached its target yet.
func (g *Gate) Moving() bool {
	return g.current != g.target
}

// View returns a copy of the gate state.
func (g *Gate) View() GateView {
	return GateView{
		Target:        g.target,
		Current:       g.current,
		Open:          g.IsOpen(),
		Moving:        g.Moving(),
		CloseDeadline: g.deadline,
	}
}

// stepToward moves cur toward target by at most step without overshooting.
func stepToward[T constraints.Integer | constraints.Float](cur, target, step T) T {
	switch {
	case cur < target:
		return min(cur+step, target)
	case cur > target:
		return max(cur-step, target)
	default:
		return cur
	}
}
