// Package status holds the latest daemon state for the dashboard and the
// MQTT status events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/smart-parking/internal/logic"
)

// NetworkInfo is the host network state written by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config is the daemon configuration as shown to operators.
type Config struct {
	Slots           int
	PollMs          int64
	EntryDebounceMs int64
	ExitGraceMs     int64
	OpenDwellMs     int64
	HeartbeatMs     int64
	RatePerMinute   string
	Broker          string
	HTTPAddr        string
	WSBroker        string // Websocket broker URL for browser MQTT (empty = disabled)
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type: the parking snapshot inside it is already a deep copy
// made by the ledger, so it is safe to use after the lock is released.
type Snapshot struct {
	Parking       logic.Snapshot
	Gate          logic.GateView
	Counts        logic.EventCounts
	Ready         bool // at least one tick has completed
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker is the hand-off point between the control loop, which writes once
// per tick, and every reader (HTTP handlers, MQTT status events). Readers
// only ever get copies.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker that is not Ready until the first Update.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{StartTime: startTime, Config: cfg},
		now:  time.Now,
	}
}

// SetClock replaces the clock used to stamp snapshots. For tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

func (t *Tracker) modify(fn func(s *Snapshot)) {
	t.mu.Lock()
	fn(&t.snap)
	t.mu.Unlock()
}

// Update stores the lot, gate and counters produced by a tick.
func (t *Tracker) Update(parking logic.Snapshot, gate logic.GateView, counts logic.EventCounts) {
	t.modify(func(s *Snapshot) {
		s.Parking, s.Gate, s.Counts = parking, gate, counts
		s.Ready = true
	})
}

func (t *Tracker) SetMQTTConnected(connected bool) {
	t.modify(func(s *Snapshot) { s.MQTTConnected = connected })
}

// SetNetwork stores a copy of info; nil clears it.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	var cp *NetworkInfo
	if info != nil {
		v := *info
		cp = &v
	}
	t.modify(func(s *Snapshot) { s.Network = cp })
}

// Snapshot returns a copy of the daemon state stamped with the current time.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s, now := t.snap, t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}
