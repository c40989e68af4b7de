package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweeney/smart-parking/internal/logic"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(reg), reg
}

func TestObserveStepTickets(t *testing.T) {
	m, _ := newTestMetrics(t)

	closed := logic.Ticket{ID: 1, Slot: "S1", Closed: true, DurationMinutes: 3, Fee: decimal.RequireFromString("1.5")}
	out := logic.Output{
		Events: []logic.Event{
			{Type: logic.EventTicketOpened, Slot: "S2", TicketID: 2},
			{Type: logic.EventTicketClosed, Slot: "S1", TicketID: 1, Ticket: &closed},
		},
		Snapshot: logic.Snapshot{Total: 3, Free: 2, Occupied: 1},
		Angle:    40,
	}
	m.ObserveStep(out, 2*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticketsOpened))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticketsClosed))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.revenue))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.slotsFree))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.slotsOccupied))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.gateAngle))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.gateOpen))
}

func TestObserveStepGateEvents(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveStep(logic.Output{
		Events: []logic.Event{
			{Type: logic.EventGateOpened, Reason: "proximity"},
			{Type: logic.EventGateClosed, Reason: "full"},
		},
		GateOpen: true,
	}, 0)
	m.ObserveStep(logic.Output{
		Events: []logic.Event{{Type: logic.EventGateBlocked, Reason: "full"}},
	}, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.gateEvents.WithLabelValues("opened", "proximity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gateEvents.WithLabelValues("closed", "full")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gateEvents.WithLabelValues("blocked", "full")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.gateOpen), "last tick had the gate closed")
}

func TestSensorErrorsAndDrops(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SensorError("slots")
	m.SensorError("slots")
	m.SensorError("distance")
	m.NotificationDropped()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sensorErrors.WithLabelValues("slots")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sensorErrors.WithLabelValues("distance")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationsDropped))
}

func TestRegistryExposition(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.ObserveStep(logic.Output{Snapshot: logic.Snapshot{Free: 3}}, time.Millisecond)

	expected := `
# HELP parking_slots_free Slots currently free.
# TYPE parking_slots_free gauge
parking_slots_free 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "parking_slots_free"))

	count, err := testutil.GatherAndCount(reg, "parking_tick_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
