package mqtt

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/smart-parking/internal/logic"
)

// DefaultOutboxSize is the number of messages kept while disconnected.
const DefaultOutboxSize = 100

const publishTimeout = 5 * time.Second

// Options configures a RealPublisher.
type Options struct {
	ClientID   string
	OutboxSize int
	// Now is the clock used for RECONNECTED timestamps.
	Now func() time.Time
}

// RealPublisher publishes to an actual MQTT broker and receives gate commands.
// Publishing never blocks the caller: completion is watched in the
// background and messages published while offline wait in the outbox.
type RealPublisher struct {
	client   paho.Client
	outbox   *outbox
	commands chan logic.Command
	now      func() time.Time

	connectedOnce atomic.Bool
}

// NewRealPublisher creates a publisher for the given broker. The connection
// is established in the background with automatic retry; a broker that is
// down at startup does not prevent the daemon from running.
func NewRealPublisher(broker string, o Options) (*RealPublisher, error) {
	if o.ClientID == "" {
		o.ClientID = "smart-parking"
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = DefaultOutboxSize
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	p := &RealPublisher{
		outbox:   newOutbox(o.OutboxSize),
		commands: make(chan logic.Command, 16),
		now:      o.Now,
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: o.Now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			log.Printf("mqtt: connect to %s: %v", broker, err)
		}
	}()

	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	log.Printf("mqtt: connected")

	token := c.Subscribe(TopicCommand, 1, p.onCommand)
	go p.watch(token, "subscribe "+TopicCommand)

	if p.connectedOnce.Swap(true) {
		if payload, err := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"}); err == nil {
			p.send(TopicSystem, 1, false, payload)
		}
	}

	msgs, dropped := p.outbox.drain()
	if dropped > 0 {
		log.Printf("mqtt: %d buffered messages were dropped while offline", dropped)
	}
	if len(msgs) > 0 {
		log.Printf("mqtt: replaying %d buffered messages", len(msgs))
	}
	for _, m := range msgs {
		p.send(m.topic, m.qos, m.retained, m.payload)
	}
}

func (p *RealPublisher) onCommand(_ paho.Client, msg paho.Message) {
	cmd, ok := ParseCommandPayload(msg.Payload())
	if !ok {
		log.Printf("mqtt: ignoring unknown command %q", msg.Payload())
		return
	}
	select {
	case p.commands <- cmd:
	default:
		log.Printf("mqtt: command queue full, dropping %s", cmd)
	}
}

// Commands returns the channel of parsed remote commands.
func (p *RealPublisher) Commands() <-chan logic.Command {
	return p.commands
}

// IsConnected reports whether the client currently has a live connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Publish sends a parking event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 1: ticket events feed billing downstream
	p.enqueue(Topic, 1, false, payload)
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	p.enqueue(TopicSystem, 1, event.Retained, payload)
	return nil
}

func (p *RealPublisher) enqueue(topic string, qos byte, retained bool, payload []byte) {
	if !p.client.IsConnectionOpen() {
		p.outbox.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		return
	}
	p.send(topic, qos, retained, payload)
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) {
	token := p.client.Publish(topic, qos, retained, payload)
	go p.watch(token, "publish "+topic)
}

func (p *RealPublisher) watch(token paho.Token, what string) {
	if !token.WaitTimeout(publishTimeout) {
		log.Printf("mqtt: %s: timeout", what)
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("mqtt: %s: %v", what, err)
	}
}

// Close disconnects from the broker, allowing a short grace period for
// in-flight messages (e.g. SHUTDOWN).
func (p *RealPublisher) Close() error {
	if n := p.outbox.len(); n > 0 {
		log.Printf("mqtt: discarding %d unsent messages", n)
	}
	p.client.Disconnect(1000)
	return nil
}
