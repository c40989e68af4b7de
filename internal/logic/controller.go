package logic

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the control loop tuning.
type Config struct {
	Slots         int
	EntryDebounce time.Duration
	ExitGrace     time.Duration
	OpenDwell     time.Duration
	ServoStep     int
	DetectCM      float64
	RatePerMinute decimal.Decimal
	HistoryLimit  int
	// Recent is how many closed tickets each snapshot carries; 0 means all.
	Recent int
}

// DefaultConfig returns the tuning used on the reference hardware.
func DefaultConfig() Config {
	return Config{
		Slots:         3,
		EntryDebounce: 300 * time.Millisecond,
		ExitGrace:     1000 * time.Millisecond,
		OpenDwell:     2000 * time.Millisecond,
		ServoStep:     50,
		DetectCM:      10,
		RatePerMinute: decimal.RequireFromString("0.5"),
		Recent:        10,
	}
}

// Output is everything a tick produced. It shares no memory with the
// controller.
type Output struct {
	Events []Event
	// Closed holds the tickets closed on this tick, for receipts.
	Closed []Ticket
	Angle  int
	// GateOpen and Full drive the indicator outputs.
	GateOpen bool
	Full     bool
	Snapshot Snapshot
	Gate     GateView
	Counts   EventCounts
}

// Controller runs one control tick at a time over the debouncer, the ledger,
// and the gate. It is owned by a single goroutine.
type Controller struct {
	cfg       Config
	debouncer *Debouncer
	ledger    *Ledger
	gate      *Gate

	approaching   bool
	counts        EventCounts
	startTime     time.Time
	lastHeartbeat time.Time
}

// NewController creates a controller with every slot free and the gate
// closed. The startTime is used for uptime in heartbeat data.
func NewController(cfg Config, startTime time.Time) *Controller {
	return &Controller{
		cfg:           cfg,
		debouncer:     NewDebouncer(cfg.Slots, cfg.EntryDebounce, cfg.ExitGrace, startTime),
		ledger:        NewLedger(cfg.Slots, cfg.RatePerMinute, cfg.HistoryLimit),
		gate:          NewGate(cfg.OpenDwell, cfg.ServoStep),
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Step runs one tick: occupancy, remote commands, proximity, gate, snapshot.
func (c *Controller) Step(in Input) Output {
	now := in.Time
	var out Output

	if len(in.Slots) == c.ledger.Len() {
		for i, raw := range in.Slots {
			name := c.ledger.SlotName(i)
			switch c.debouncer.Process(i, raw, c.ledger.Occupied(i), now) {
			case TransitionEntered:
				id, ok := c.ledger.Occupy(name, now)
				if !ok {
					continue
				}
				c.counts.Entered++
				out.Events = append(out.Events, Event{
					Timestamp: now,
					Type:      EventTicketOpened,
					Slot:      name,
					TicketID:  id,
					Free:      c.ledger.Free(),
				})
			case TransitionLeft:
				t, ok := c.ledger.Vacate(name, now)
				if !ok {
					continue
				}
				c.counts.Left++
				out.Closed = append(out.Closed, t)
				closed := t
				out.Events = append(out.Events, Event{
					Timestamp: now,
					Type:      EventTicketClosed,
					Slot:      name,
					TicketID:  t.ID,
					Ticket:    &closed,
					Free:      c.ledger.Free(),
				})
			}
		}
	}

	free := c.ledger.Free()

	for _, cmd := range in.Commands {
		switch cmd {
		case CommandOpen:
			if !c.open(now, free, "command", &out) && free == 0 {
				c.blocked(now, free, &out)
			}
		case CommandClose:
			if c.gate.ForceClose() {
				c.closed(now, free, CloseCommand, &out)
			}
		}
	}

	// Proximity is edge-triggered for refusals so a car waiting at a full
	// lot reports one GATE_BLOCKED, not one per tick.
	near := in.DistanceCM <= c.cfg.DetectCM
	if near && !c.gate.IsOpen() {
		if !c.open(now, free, "proximity", &out) && !c.approaching {
			c.blocked(now, free, &out)
		}
	}
	c.approaching = near

	if reason := c.gate.Tick(now, free); reason != CloseNone {
		c.closed(now, free, reason, &out)
	}

	out.Angle = c.gate.Angle()
	out.GateOpen = c.gate.IsOpen()
	out.Full = free == 0
	out.Gate = c.gate.View()
	out.Snapshot = c.ledger.Snapshot(now, c.cfg.Recent)
	out.Counts = c.counts
	return out
}

func (c *Controller) open(now time.Time, free int, reason string, out *Output) bool {
	if !c.gate.RequestOpen(now, free) {
		return false
	}
	c.counts.GateOpened++
	out.Events = append(out.Events, Event{
		Timestamp: now,
		Type:      EventGateOpened,
		Reason:    reason,
		Free:      free,
	})
	return true
}

func (c *Controller) blocked(now time.Time, free int, out *Output) {
	c.counts.GateBlocked++
	out.Events = append(out.Events, Event{
		Timestamp: now,
		Type:      EventGateBlocked,
		Reason:    string(CloseFull),
		Free:      free,
	})
}

func (c *Controller) closed(now time.Time, free int, reason CloseReason, out *Output) {
	c.counts.GateClosed++
	out.Events = append(out.Events, Event{
		Timestamp: now,
		Type:      EventGateClosed,
		Reason:    string(reason),
		Free:      free,
	})
}

// Snapshot returns the current ledger view without running a tick.
func (c *Controller) Snapshot(now time.Time) Snapshot {
	return c.ledger.Snapshot(now, c.cfg.Recent)
}

// Gate returns the current gate view.
func (c *Controller) Gate() GateView {
	return c.gate.View()
}

// Counts returns the event counts since startup.
func (c *Controller) Counts() EventCounts {
	return c.counts
}

// CheckInvariants verifies the ledger invariants.
func (c *Controller) CheckInvariants() error {
	return c.ledger.CheckInvariants()
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (c *Controller) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(c.lastHeartbeat) < interval {
		return nil
	}

	c.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(c.startTime),
		Counts:    c.counts,
		Revenue:   c.ledger.Revenue(),
	}
}
