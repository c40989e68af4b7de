// Package metrics exports Prometheus collectors for the parking controller.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sweeney/smart-parking/internal/logic"
)

// Metrics holds every collector. All methods are safe for concurrent use.
type Metrics struct {
	ticketsOpened        prometheus.Counter
	ticketsClosed        prometheus.Counter
	revenue              prometheus.Counter
	slotsFree            prometheus.Gauge
	slotsOccupied        prometheus.Gauge
	gateAngle            prometheus.Gauge
	gateOpen             prometheus.Gauge
	gateEvents           *prometheus.CounterVec
	stayMinutes          prometheus.Histogram
	tickDuration         prometheus.Histogram
	sensorErrors         *prometheus.CounterVec
	notificationsDropped prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ticketsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "parking_tickets_opened_total",
			Help: "Tickets opened since startup.",
		}),
		ticketsClosed: f.NewCounter(prometheus.CounterOpts{
			Name: "parking_tickets_closed_total",
			Help: "Tickets closed since startup.",
		}),
		revenue: f.NewCounter(prometheus.CounterOpts{
			Name: "parking_revenue_total",
			Help: "Fees charged since startup, in currency units.",
		}),
		slotsFree: f.NewGauge(prometheus.GaugeOpts{
			Name: "parking_slots_free",
			Help: "Slots currently free.",
		}),
		slotsOccupied: f.NewGauge(prometheus.GaugeOpts{
			Name: "parking_slots_occupied",
			Help: "Slots currently occupied.",
		}),
		gateAngle: f.NewGauge(prometheus.GaugeOpts{
			Name: "parking_gate_angle_degrees",
			Help: "Current commanded servo angle.",
		}),
		gateOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "parking_gate_open",
			Help: "1 while the gate is commanded open.",
		}),
		gateEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_gate_events_total",
			Help: "Gate events by type and reason.",
		}, []string{"event", "reason"}),
		stayMinutes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "parking_stay_minutes",
			Help:    "Billed stay length of closed tickets.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 240, 480, 1440},
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "parking_tick_duration_seconds",
			Help:    "Wall time spent in one control tick, including sensor reads.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10),
		}),
		sensorErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_sensor_errors_total",
			Help: "Failed sensor reads by sensor.",
		}, []string{"sensor"}),
		notificationsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "parking_notifications_dropped_total",
			Help: "Receipts dropped because the notification queue was full.",
		}),
	}
}

// ObserveStep records the result of one tick.
func (m *Metrics) ObserveStep(out logic.Output, took time.Duration) {
	for _, e := range out.Events {
		switch e.Type {
		case logic.EventTicketOpened:
			m.ticketsOpened.Inc()
		case logic.EventTicketClosed:
			m.ticketsClosed.Inc()
			if t := e.Ticket; t != nil {
				m.revenue.Add(t.Fee.InexactFloat64())
				m.stayMinutes.Observe(float64(t.DurationMinutes))
			}
		default:
			m.gateEvents.WithLabelValues(gateLabel(e.Type), e.Reason).Inc()
		}
	}

	m.slotsFree.Set(float64(out.Snapshot.Free))
	m.slotsOccupied.Set(float64(out.Snapshot.Occupied))
	m.gateAngle.Set(float64(out.Angle))
	if out.GateOpen {
		m.gateOpen.Set(1)
	} else {
		m.gateOpen.Set(0)
	}
	m.tickDuration.Observe(took.Seconds())
}

// gateLabel turns GATE_OPENED into "opened".
func gateLabel(t logic.EventType) string {
	return strings.ToLower(strings.TrimPrefix(string(t), "GATE_"))
}

// SensorError counts a failed read of sensor ("slots" or "distance").
func (m *Metrics) SensorError(sensor string) {
	m.sensorErrors.WithLabelValues(sensor).Inc()
}

// NotificationDropped counts a receipt lost to a full queue.
func (m *Metrics) NotificationDropped() {
	m.notificationsDropped.Inc()
}
