package internal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sweeney/smart-parking/internal/gpio"
	"github.com/sweeney/smart-parking/internal/logic"
	"github.com/sweeney/smart-parking/internal/mqtt"
	"github.com/sweeney/smart-parking/internal/notify"
	"github.com/sweeney/smart-parking/internal/status"
	"github.com/sweeney/smart-parking/internal/web"
)

var startTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

const pollInterval = 100 * time.Millisecond

// rig simulates the main loop with fakes on both sides of the controller.
type rig struct {
	t       *testing.T
	ctrl    *logic.Controller
	pub     *mqtt.FakePublisher
	act     *gpio.FakeActuator
	tracker *status.Tracker
	now     time.Time
	closed  []logic.Ticket
}

func newRig(t *testing.T, cfg logic.Config) *rig {
	t.Helper()
	tr := status.NewTracker(startTime, status.Config{Slots: cfg.Slots, RatePerMinute: cfg.RatePerMinute.String()})
	return &rig{
		t:       t,
		ctrl:    logic.NewController(cfg, startTime),
		pub:     mqtt.NewFakePublisher(),
		act:     gpio.NewFakeActuator(),
		tracker: tr,
		now:     startTime,
	}
}

// step advances the clock by d and runs one tick.
func (r *rig) step(d time.Duration, s gpio.Sample, cmds ...logic.Command) logic.Output {
	r.t.Helper()
	r.now = r.now.Add(d)
	out := r.ctrl.Step(logic.Input{
		Time:       r.now,
		Slots:      s.Slots,
		DistanceCM: s.DistanceCM,
		Commands:   cmds,
	})
	for _, event := range out.Events {
		if err := r.pub.Publish(event); err != nil {
			r.t.Fatalf("%v: publish error: %v", r.now.Sub(startTime), err)
		}
	}
	r.closed = append(r.closed, out.Closed...)
	r.act.SetAngle(out.Angle)
	r.act.SetIndicators(out.GateOpen, out.Full)
	r.tracker.Update(out.Snapshot, out.Gate, out.Counts)

	if err := r.ctrl.CheckInvariants(); err != nil {
		r.t.Fatalf("%v: invariants violated: %v", r.now.Sub(startTime), err)
	}
	return out
}

// run feeds samples through a FakeReader at the poll interval.
func (r *rig) run(samples []gpio.Sample) {
	r.t.Helper()
	reader := gpio.NewFakeReader(samples)
	for i := range samples {
		slots, err := reader.ReadSlots()
		if err != nil {
			r.t.Fatalf("sample %d: gpio read error: %v", i, err)
		}
		dist, err := reader.ReadDistance()
		if err != nil {
			r.t.Fatalf("sample %d: distance read error: %v", i, err)
		}
		r.step(pollInterval, gpio.Sample{Slots: slots, DistanceCM: dist})
	}
}

func repeat(s gpio.Sample, n int) []gpio.Sample {
	out := make([]gpio.Sample, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func slots(dist float64, blocked ...bool) gpio.Sample {
	return gpio.Sample{Slots: blocked, DistanceCM: dist}
}

func concat(parts ...[]gpio.Sample) []gpio.Sample {
	var out []gpio.Sample
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

type summary struct {
	Type   logic.EventType
	Slot   string
	ID     int
	Reason string
}

func summarize(events []logic.Event) []summary {
	var out []summary
	for _, e := range events {
		out = append(out, summary{Type: e.Type, Slot: e.Slot, ID: e.TicketID, Reason: e.Reason})
	}
	return out
}

func expectEvents(t *testing.T, got []logic.Event, want []summary) {
	t.Helper()
	s := summarize(got)
	if len(s) != len(want) {
		t.Fatalf("expected %d events %v, got %d %v", len(want), want, len(s), s)
	}
	for i := range want {
		if s[i] != want[i] {
			t.Errorf("event %d: expected %+v, got %+v", i, want[i], s[i])
		}
	}
}

// TestIntegrationLowestIDReuse: S1 and S2 fill, S1 leaves, S3 gets S1's ID.
func TestIntegrationLowestIDReuse(t *testing.T) {
	r := newRig(t, logic.DefaultConfig())
	r.run(concat(
		repeat(slots(gpio.NoEcho, true, true, false), 4),   // S1, S2 confirmed at 400ms
		repeat(slots(gpio.NoEcho, false, true, false), 11), // S1 clear for 1s
		repeat(slots(gpio.NoEcho, false, true, true), 4),   // S3 confirmed 300ms later
	))

	expectEvents(t, r.pub.Events, []summary{
		{Type: logic.EventTicketOpened, Slot: "S1", ID: 1},
		{Type: logic.EventTicketOpened, Slot: "S2", ID: 2},
		{Type: logic.EventTicketClosed, Slot: "S1", ID: 1},
		{Type: logic.EventTicketOpened, Slot: "S3", ID: 1},
	})

	snap := r.tracker.Snapshot().Parking
	if snap.Free != 1 || snap.Occupied != 2 {
		t.Errorf("expected 1 free 2 occupied, got %d/%d", snap.Free, snap.Occupied)
	}
	if len(snap.OpenTickets) != 2 || snap.OpenTickets[0].ID != 1 || snap.OpenTickets[0].Slot != "S3" {
		t.Errorf("unexpected open tickets: %+v", snap.OpenTickets)
	}
}

// TestIntegrationDebounceRejectsFlicker: a 100ms blip never opens a ticket
// and a 100ms dropout never closes one.
func TestIntegrationDebounceRejectsFlicker(t *testing.T) {
	r := newRig(t, logic.DefaultConfig())
	r.run(concat(
		[]gpio.Sample{slots(gpio.NoEcho, true, false, false)}, // blip
		repeat(slots(gpio.NoEcho, false, false, false), 3),
		repeat(slots(gpio.NoEcho, true, false, false), 4),    // real car
		[]gpio.Sample{slots(gpio.NoEcho, false, false, false)}, // dropout
		repeat(slots(gpio.NoEcho, true, false, false), 5),
	))

	expectEvents(t, r.pub.Events, []summary{
		{Type: logic.EventTicketOpened, Slot: "S1", ID: 1},
	})
}

// TestIntegrationCapacityInterlock: a full lot refuses the gate until a slot frees.
func TestIntegrationCapacityInterlock(t *testing.T) {
	r := newRig(t, logic.DefaultConfig())
	r.run(concat(
		repeat(slots(gpio.NoEcho, true, true, true), 4), // lot fills at 400ms
		repeat(slots(5, true, true, true), 2),           // car waits at the gate
		repeat(slots(gpio.NoEcho, false, true, true), 11),
		[]gpio.Sample{slots(5, false, true, true)}, // tries again
	))

	expectEvents(t, r.pub.Events, []summary{
		{Type: logic.EventTicketOpened, Slot: "S1", ID: 1},
		{Type: logic.EventTicketOpened, Slot: "S2", ID: 2},
		{Type: logic.EventTicketOpened, Slot: "S3", ID: 3},
		{Type: logic.EventGateBlocked, Reason: "full"},
		{Type: logic.EventTicketClosed, Slot: "S1", ID: 1},
		{Type: logic.EventGateOpened, Reason: "proximity"},
	})

	for i, a := range r.act.Angles[:len(r.act.Angles)-1] {
		if a != logic.AngleClosed {
			t.Fatalf("tick %d: gate at %d while full", i, a)
		}
	}
	if r.act.LastAngle() != 50 {
		t.Errorf("gate should start opening, angle %d", r.act.LastAngle())
	}
	if ind := r.act.Indicators[5]; !ind.Full || ind.GateOpen {
		t.Errorf("full lot indicators: %+v", ind)
	}
}

// TestIntegrationLastSlotClosesOpenGate: the interlock overrides dwell time.
func TestIntegrationLastSlotClosesOpenGate(t *testing.T) {
	cfg := logic.DefaultConfig()
	cfg.Slots = 1
	r := newRig(t, cfg)

	r.run(concat(
		[]gpio.Sample{slots(5, true)}, // car at the gate and in S1 already
		repeat(slots(gpio.NoEcho, true), 3),
	))

	expectEvents(t, r.pub.Events, []summary{
		{Type: logic.EventGateOpened, Reason: "proximity"},
		{Type: logic.EventTicketOpened, Slot: "S1", ID: 1},
		{Type: logic.EventGateClosed, Reason: "full"},
	})
	closedAt := r.pub.Events[2].Timestamp.Sub(startTime)
	if closedAt != 400*time.Millisecond {
		t.Errorf("gate closed at %v, want 400ms (well before the 2.1s deadline)", closedAt)
	}
}

// TestIntegrationRemoteCommands: MQTT payloads drive the gate through the interlock.
func TestIntegrationRemoteCommands(t *testing.T) {
	r := newRig(t, logic.DefaultConfig())
	idle := slots(gpio.NoEcho, false, false, false)

	open, ok := mqtt.ParseCommandPayload([]byte(`{"command":"open"}`))
	if !ok {
		t.Fatal("open payload rejected")
	}
	closeCmd, ok := mqtt.ParseCommandPayload([]byte(" CLOSE\n"))
	if !ok {
		t.Fatal("close payload rejected")
	}
	if _, ok := mqtt.ParseCommandPayload([]byte("lift")); ok {
		t.Error("unknown command accepted")
	}

	r.step(pollInterval, idle, open)
	r.step(pollInterval, idle, open) // already open: no event
	r.step(pollInterval, idle, closeCmd)
	r.step(pollInterval, idle, closeCmd) // already closed: no event

	expectEvents(t, r.pub.Events, []summary{
		{Type: logic.EventGateOpened, Reason: "command"},
		{Type: logic.EventGateClosed, Reason: "command"},
	})
}

type recordingNotifier struct {
	mu       sync.Mutex
	receipts []notify.Receipt
	got      chan struct{}
}

func (n *recordingNotifier) Notify(ctx context.Context, r notify.Receipt) error {
	n.mu.Lock()
	n.receipts = append(n.receipts, r)
	n.mu.Unlock()
	n.got <- struct{}{}
	return nil
}

// TestIntegrationReceiptDelivery: a 91s stay bills 2 minutes and reaches the
// notifier through the dispatcher.
func TestIntegrationReceiptDelivery(t *testing.T) {
	r := newRig(t, logic.DefaultConfig())
	rec := &recordingNotifier{got: make(chan struct{}, 1)}
	d := notify.NewDispatcher(rec, 4, time.Second)
	d.Start(context.Background())

	busy := slots(gpio.NoEcho, true, false, false)
	free := slots(gpio.NoEcho, false, false, false)
	r.step(100*time.Millisecond, busy)
	r.step(300*time.Millisecond, busy) // entered at 0.4s
	r.step(90*time.Second, free)
	out := r.step(time.Second, free) // left at 91.4s

	if len(out.Closed) != 1 {
		t.Fatalf("expected 1 closed ticket, got %d", len(out.Closed))
	}
	for _, tk := range out.Closed {
		if !d.Send(notify.FromTicket(tk)) {
			t.Fatal("receipt dropped")
		}
	}

	select {
	case <-rec.got:
	case <-time.After(2 * time.Second):
		t.Fatal("receipt not delivered")
	}
	d.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.receipts) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(rec.receipts))
	}
	want := "Ticket CLOSED\nID: 1 Slot: S1\nDuration: 2 minutes\nFee: $1.00"
	if got := notify.FormatReceipt(rec.receipts[0]); got != want {
		t.Errorf("receipt text:\ngot  %q\nwant %q", got, want)
	}
	if !r.tracker.Snapshot().Parking.Revenue.Equal(decimal.NewFromInt(1)) {
		t.Errorf("revenue: got %s", r.tracker.Snapshot().Parking.Revenue)
	}
}

// TestIntegrationPayloadFormat verifies every published payload is valid JSON
// with the fields consumers key on.
func TestIntegrationPayloadFormat(t *testing.T) {
	r := newRig(t, logic.DefaultConfig())
	r.run(concat(
		repeat(slots(gpio.NoEcho, true, false, false), 4),
		repeat(slots(gpio.NoEcho, false, false, false), 11),
	))

	if len(r.pub.Payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(r.pub.Payloads))
	}
	for i, payload := range r.pub.Payloads {
		var parsed mqtt.Payload
		if err := json.Unmarshal(payload, &parsed); err != nil {
			t.Fatalf("payload %d: invalid JSON: %v", i, err)
		}
		if parsed.Parking.Timestamp == "" || parsed.Parking.Event == "" {
			t.Errorf("payload %d: missing timestamp or event: %s", i, payload)
		}
	}

	var closed mqtt.Payload
	json.Unmarshal(r.pub.Payloads[1], &closed)
	if closed.Parking.DurationMinutes == nil || *closed.Parking.DurationMinutes != 1 || closed.Parking.Fee != "0.50" {
		t.Errorf("closed payload: %s", r.pub.Payloads[1])
	}
	if closed.Parking.Free != 3 {
		t.Errorf("free after close: got %d", closed.Parking.Free)
	}
}

// TestIntegrationStartupThenShutdown mirrors the lifecycle system events.
func TestIntegrationStartupThenShutdown(t *testing.T) {
	r := newRig(t, logic.DefaultConfig())

	snap := r.tracker.Snapshot()
	r.pub.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	})

	r.run(repeat(slots(gpio.NoEcho, true, false, false), 4))

	snap = r.tracker.Snapshot()
	r.pub.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "SHUTDOWN",
		Reason:     "SIGTERM",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"),
	})

	if names := r.pub.SystemEventNames(); len(names) != 2 || names[0] != "STARTUP" || names[1] != "SHUTDOWN" {
		t.Fatalf("unexpected system events: %v", names)
	}

	var startup, shutdown status.StatusJSON
	if err := json.Unmarshal(r.pub.SystemPayloads[0], &startup); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(r.pub.SystemPayloads[1], &shutdown); err != nil {
		t.Fatal(err)
	}
	if startup.Status.Ready {
		t.Error("STARTUP should not be ready before the first tick")
	}
	if !shutdown.Status.Ready || shutdown.Status.Reason != "SIGTERM" {
		t.Errorf("unexpected shutdown status: %s", r.pub.SystemPayloads[1])
	}
	if shutdown.Status.Parking.Occupied != 1 || len(shutdown.Status.Parking.OpenTickets) != 1 {
		t.Errorf("shutdown should carry the open ticket: %s", r.pub.SystemPayloads[1])
	}
}

// TestIntegrationDashboardJSON reads the state back over HTTP.
func TestIntegrationDashboardJSON(t *testing.T) {
	r := newRig(t, logic.DefaultConfig())
	r.run(repeat(slots(gpio.NoEcho, false, true, false), 4))

	ts := httptest.NewServer(web.New(":0", r.tracker, nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var sj status.StatusJSON
	if err := json.Unmarshal(body, &sj); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, body)
	}
	if sj.Status.Parking.Free != 2 || sj.Status.Counts.Entered != 1 {
		t.Errorf("unexpected parking state: %s", body)
	}
	if !strings.Contains(string(body), `"id": null`) {
		t.Errorf("free slots should report a null id:\n%s", body)
	}
	s2 := sj.Status.Parking.Slots[1]
	if s2.ID == nil || *s2.ID != 1 || s2.ElapsedMinutes == nil {
		t.Errorf("S2 should carry ticket 1 and elapsed time: %+v", s2)
	}
}
