package main

import (
	"log"
	"os"
	"slices"
	"syscall"
	"time"

	"github.com/sweeney/smart-parking/internal/gpio"
	"github.com/sweeney/smart-parking/internal/logic"
	"github.com/sweeney/smart-parking/internal/metrics"
	"github.com/sweeney/smart-parking/internal/mqtt"
	"github.com/sweeney/smart-parking/internal/notify"
	"github.com/sweeney/smart-parking/internal/status"
)

// receiptSender accepts receipts without blocking.
type receiptSender interface {
	Send(r notify.Receipt) bool
}

// loop is everything the control goroutine touches. Only reader, actuator
// and publisher are required.
type loop struct {
	ctrl *logic.Controller
	now  func() time.Time

	reader     gpio.Reader
	actuator   gpio.Actuator
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	commands   <-chan logic.Command
	tracker    *status.Tracker
	metrics    *metrics.Metrics
	receipts   receiptSender
	heartbeat  time.Duration
}

func newLoop(cfg logic.Config, now func() time.Time) *loop {
	return &loop{
		ctrl: logic.NewController(cfg, now()),
		now:  now,
	}
}

func runLoop(l *loop, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			l.shutdown(signalName(s))
			return nil

		case <-tick:
			l.step()
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// step runs one tick: sample, decide, publish, actuate, report.
func (l *loop) step() {
	began := time.Now()
	t := l.now()

	slots, err := l.reader.ReadSlots()
	if err != nil {
		log.Printf("gpio read error: slots: %v", err)
		l.sensorError("slots")
		slots = nil
	}
	dist, err := l.reader.ReadDistance()
	if err != nil {
		log.Printf("gpio read error: distance: %v", err)
		l.sensorError("distance")
		dist = logic.NoEcho
	}
	cmds := l.drainCommands()

	out := l.ctrl.Step(logic.Input{
		Time:       t,
		Slots:      slots,
		DistanceCM: dist,
		Commands:   cmds,
	})

	for _, event := range out.Events {
		logEvent(event)
		if err := l.publisher.Publish(event); err != nil {
			log.Printf("publish error: %v", err)
		}
	}

	for _, ticket := range out.Closed {
		if l.receipts != nil {
			l.receipts.Send(notify.FromTicket(ticket))
		}
	}

	if err := l.actuator.SetAngle(out.Angle); err != nil {
		log.Printf("servo error: %v", err)
	}
	if err := l.actuator.SetIndicators(out.GateOpen, out.Full); err != nil {
		log.Printf("indicator error: %v", err)
	}

	if l.tracker != nil {
		l.tracker.Update(out.Snapshot, out.Gate, out.Counts)
		l.refreshMQTT()
	}
	if l.metrics != nil {
		l.metrics.ObserveStep(out, time.Since(began))
	}

	if slices.Contains(cmds, logic.CommandStatus) {
		l.publishStatus(t)
	}

	if hb := l.ctrl.CheckHeartbeat(t, l.heartbeat); hb != nil {
		log.Printf("heartbeat: uptime=%v entered=%d left=%d opened=%d blocked=%d revenue=%s",
			hb.Uptime, hb.Counts.Entered, hb.Counts.Left, hb.Counts.GateOpened, hb.Counts.GateBlocked, hb.Revenue.StringFixed(2))

		hbEvent := mqtt.SystemEvent{
			Timestamp: hb.Timestamp,
			Event:     "HEARTBEAT",
		}
		if l.tracker != nil {
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				l.tracker.SetNetwork(net)
			}
			hbEvent.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "HEARTBEAT", "")
		}
		if err := l.publisher.PublishSystem(hbEvent); err != nil {
			log.Printf("heartbeat publish error: %v", err)
		}
	}
}

func logEvent(e logic.Event) {
	switch e.Type {
	case logic.EventTicketOpened:
		log.Printf("event: %s slot=%s id=%d free=%d", e.Type, e.Slot, e.TicketID, e.Free)
	case logic.EventTicketClosed:
		log.Printf("event: %s slot=%s id=%d minutes=%d fee=%s free=%d",
			e.Type, e.Slot, e.TicketID, e.Ticket.DurationMinutes, e.Ticket.Fee.StringFixed(2), e.Free)
	default:
		log.Printf("event: %s reason=%s free=%d", e.Type, e.Reason, e.Free)
	}
}

// drainCommands takes whatever commands are waiting without blocking.
func (l *loop) drainCommands() []logic.Command {
	var cmds []logic.Command
	for {
		select {
		case c := <-l.commands:
			cmds = append(cmds, c)
		default:
			return cmds
		}
	}
}

func (l *loop) sensorError(sensor string) {
	if l.metrics != nil {
		l.metrics.SensorError(sensor)
	}
}

func (l *loop) refreshMQTT() {
	if l.tracker != nil && l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

func (l *loop) publishStatus(t time.Time) {
	event := mqtt.SystemEvent{
		Timestamp: t,
		Event:     "STATUS",
		Reason:    "command",
	}
	if l.tracker != nil {
		event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "STATUS", "command")
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Printf("status publish error: %v", err)
	}
}

func (l *loop) shutdown(reason string) {
	event := mqtt.SystemEvent{
		Timestamp: l.now(),
		Event:     "SHUTDOWN",
		Reason:    reason,
		Retained:  true,
	}
	if l.tracker != nil {
		l.refreshMQTT()
		event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "SHUTDOWN", reason)
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}
