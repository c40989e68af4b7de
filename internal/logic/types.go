// Package logic contains the pure control logic for the parking gate: slot
// debouncing, the ticket ledger, and the gate controller.
// This package has NO hardware, network, or OS dependencies and never sleeps.
// Time is always injectable via time.Time parameters.
package logic

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transition is a confirmed occupancy change reported by the Debouncer.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionEntered
	TransitionLeft
)

func (t Transition) String() string {
	switch t {
	case TransitionEntered:
		return "ENTERED"
	case TransitionLeft:
		return "LEFT"
	default:
		return "NONE"
	}
}

// EventType represents something observable that happened during a tick.
type EventType string

const (
	EventTicketOpened EventType = "TICKET_OPENED"
	EventTicketClosed EventType = "TICKET_CLOSED"
	EventGateOpened   EventType = "GATE_OPENED"
	EventGateClosed   EventType = "GATE_CLOSED"
	EventGateBlocked  EventType = "GATE_BLOCKED"
)

// CloseReason says why the gate was commanded closed.
type CloseReason string

const (
	CloseNone    CloseReason = ""
	CloseTimeout CloseReason = "timeout"
	CloseFull    CloseReason = "full"
	CloseCommand CloseReason = "command"
)

// Command is a remote request for the gate.
type Command string

const (
	CommandOpen   Command = "open"
	CommandClose  Command = "close"
	CommandStatus Command = "status"
)

// Event is a state change to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Slot      string
	TicketID  int
	// Ticket is set for TICKET_CLOSED.
	Ticket *Ticket
	Reason string
	// Free is the free slot count after the event.
	Free int
}

// Input is a single sample of every sensor, taken once per tick.
type Input struct {
	Time time.Time
	// Slots holds one reading per slot (true = blocked). Nil when the
	// slot read failed; occupancy is then left untouched for this tick.
	Slots []bool
	// DistanceCM is the proximity reading; NoEcho when nothing answered.
	DistanceCM float64
	Commands   []Command
}

// NoEcho is the proximity reading used when the sensor timed out.
const NoEcho = 999.0

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Entered     int
	Left        int
	GateOpened  int
	GateClosed  int
	GateBlocked int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
	Revenue   decimal.Decimal
}

// ParseCommand converts a remote command string. Case and surrounding
// whitespace are ignored.
func ParseCommand(s string) (Command, bool) {
	switch c := Command(strings.ToLower(strings.TrimSpace(s))); c {
	case CommandOpen, CommandClose, CommandStatus:
		return c, true
	}
	return "", false
}
