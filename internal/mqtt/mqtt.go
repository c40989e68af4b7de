// Package mqtt provides MQTT publishing and gate command intake with
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/smart-parking/internal/logic"
)

// Topic is the MQTT topic for parking events.
const Topic = "parking/gate/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "parking/gate/system"

// TopicCommand is the MQTT topic the gate listens on for remote commands.
const TopicCommand = "parking/gate/command"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a parking event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CommandSource delivers parsed remote gate commands.
type CommandSource interface {
	Commands() <-chan logic.Command
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "STATUS"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Parking ParkingPayload `json:"parking"`
}

// ParkingPayload contains the parking event details.
type ParkingPayload struct {
	Timestamp       string `json:"timestamp"`
	Event           string `json:"event"`
	Slot            string `json:"slot,omitempty"`
	TicketID        int    `json:"ticket_id,omitempty"`
	DurationMinutes *int   `json:"duration_minutes,omitempty"`
	Fee             string `json:"fee,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Free            int    `json:"free"`
}

// FormatPayload creates the JSON payload for a parking event.
func FormatPayload(event logic.Event) ([]byte, error) {
	p := ParkingPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(event.Type),
		Slot:      event.Slot,
		TicketID:  event.TicketID,
		Reason:    event.Reason,
		Free:      event.Free,
	}
	if t := event.Ticket; t != nil {
		minutes := t.DurationMinutes
		p.DurationMinutes = &minutes
		p.Fee = t.Fee.StringFixed(2)
	}
	return json.Marshal(Payload{Parking: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// commandMessage is the JSON form of a command: {"command":"open"}.
type commandMessage struct {
	Command string `json:"command"`
}

// ParseCommandPayload accepts either a bare command ("open") or a JSON
// object with a "command" field.
func ParseCommandPayload(payload []byte) (logic.Command, bool) {
	var msg commandMessage
	if err := json.Unmarshal(payload, &msg); err == nil && msg.Command != "" {
		return logic.ParseCommand(msg.Command)
	}
	return logic.ParseCommand(string(payload))
}
