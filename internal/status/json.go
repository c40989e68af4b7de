package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/smart-parking/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Parking       ParkingJSON  `json:"parking"`
	Gate          GateJSON     `json:"gate"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ParkingJSON is the lot state.
type ParkingJSON struct {
	Total         int          `json:"total"`
	Free          int          `json:"free"`
	Occupied      int          `json:"occupied"`
	Revenue       string       `json:"revenue"`
	Slots         []SlotJSON   `json:"slots"`
	OpenTickets   []TicketJSON `json:"open_tickets"`
	RecentTickets []TicketJSON `json:"recent_tickets"`
}

// SlotJSON is one slot. ID and ElapsedMinutes are null while the slot is free.
type SlotJSON struct {
	Name           string   `json:"name"`
	Occupied       bool     `json:"occupied"`
	ID             *int     `json:"id"`
	ElapsedMinutes *float64 `json:"elapsed_minutes"`
	Recent         bool     `json:"recent"`
}

// TicketJSON is an open or closed ticket. Closed-only fields are omitted
// for open tickets.
type TicketJSON struct {
	ID              int    `json:"id"`
	Slot            string `json:"slot"`
	TimeIn          string `json:"time_in"`
	TimeOut         string `json:"time_out,omitempty"`
	DurationMinutes *int   `json:"duration_minutes,omitempty"`
	Fee             string `json:"fee,omitempty"`
}

// GateJSON is the barrier state.
type GateJSON struct {
	Open          bool   `json:"open"`
	Angle         int    `json:"angle"`
	Target        int    `json:"target"`
	Moving        bool   `json:"moving"`
	CloseDeadline string `json:"close_deadline,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Entered     int `json:"entered"`
	Left        int `json:"left"`
	GateOpened  int `json:"gate_opened"`
	GateClosed  int `json:"gate_closed"`
	GateBlocked int `json:"gate_blocked"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Slots           int    `json:"slots"`
	PollMs          int64  `json:"poll_ms"`
	EntryDebounceMs int64  `json:"entry_debounce_ms"`
	ExitGraceMs     int64  `json:"exit_grace_ms"`
	OpenDwellMs     int64  `json:"open_dwell_ms"`
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	RatePerMinute   string `json:"rate_per_minute"`
	Broker          string `json:"broker"`
	HTTPAddr        string `json:"http_addr"`
	WSBroker        string `json:"ws_broker,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Ticket converts a ledger ticket to its JSON form.
func Ticket(t logic.Ticket) TicketJSON {
	tj := TicketJSON{
		ID:     t.ID,
		Slot:   t.Slot,
		TimeIn: formatTime(t.TimeIn),
	}
	if t.Closed {
		minutes := t.DurationMinutes
		tj.TimeOut = formatTime(t.TimeOut)
		tj.DurationMinutes = &minutes
		tj.Fee = t.Fee.StringFixed(2)
	}
	return tj
}

// Tickets converts a ticket list, never returning nil so it encodes as [].
func Tickets(ts []logic.Ticket) []TicketJSON {
	out := make([]TicketJSON, 0, len(ts))
	for _, t := range ts {
		out = append(out, Ticket(t))
	}
	return out
}

func buildParking(p logic.Snapshot) ParkingJSON {
	pj := ParkingJSON{
		Total:         p.Total,
		Free:          p.Free,
		Occupied:      p.Occupied,
		Revenue:       p.Revenue.StringFixed(2),
		Slots:         make([]SlotJSON, 0, len(p.Slots)),
		OpenTickets:   Tickets(p.OpenTickets),
		RecentTickets: Tickets(p.RecentClosed),
	}
	for _, s := range p.Slots {
		sj := SlotJSON{Name: s.Name, Occupied: s.Occupied, Recent: s.Recent}
		if s.Occupied {
			id := s.ID
			sj.ID = &id
			if s.ElapsedMinutes != nil {
				m := math.Round(*s.ElapsedMinutes*100) / 100
				sj.ElapsedMinutes = &m
			}
		}
		pj.Slots = append(pj.Slots, sj)
	}
	return pj
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Ready:         snap.Ready,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     formatTime(snap.StartTime),
		Timestamp:     formatTime(snap.Now),
		Parking:       buildParking(snap.Parking),
		Gate: GateJSON{
			Open:   snap.Gate.Open,
			Angle:  snap.Gate.Current,
			Target: snap.Gate.Target,
			Moving: snap.Gate.Moving,
		},
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Entered:     snap.Counts.Entered,
			Left:        snap.Counts.Left,
			GateOpened:  snap.Counts.GateOpened,
			GateClosed:  snap.Counts.GateClosed,
			GateBlocked: snap.Counts.GateBlocked,
		},
		Config: ConfigJSON{
			Slots:           snap.Config.Slots,
			PollMs:          snap.Config.PollMs,
			EntryDebounceMs: snap.Config.EntryDebounceMs,
			ExitGraceMs:     snap.Config.ExitGraceMs,
			OpenDwellMs:     snap.Config.OpenDwellMs,
			HeartbeatMs:     snap.Config.HeartbeatMs,
			RatePerMinute:   snap.Config.RatePerMinute,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
			WSBroker:        snap.Config.WSBroker,
		},
	}
	if !snap.Gate.CloseDeadline.IsZero() {
		inner.Gate.CloseDeadline = formatTime(snap.Gate.CloseDeadline)
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
