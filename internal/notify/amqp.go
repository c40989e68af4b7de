package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultReceiptQueue is the queue receipts are published to.
const DefaultReceiptQueue = "parking.receipts"

// AMQPNotifier publishes receipts as persistent JSON messages on a durable
// queue. The connection is opened on first use and reopened after a failure.
type AMQPNotifier struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPNotifier creates a notifier for the broker at url. An empty queue
// name uses DefaultReceiptQueue.
func NewAMQPNotifier(url, queue string) *AMQPNotifier {
	if queue == "" {
		queue = DefaultReceiptQueue
	}
	return &AMQPNotifier{url: url, queue: queue}
}

// Notify implements Notifier.
func (a *AMQPNotifier) Notify(ctx context.Context, r Receipt) error {
	pub, err := receiptPublishing(r)
	if err != nil {
		return fmt.Errorf("amqp: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ch, err := a.channel()
	if err != nil {
		return err
	}

	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		a.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		a.reset()
		return fmt.Errorf("amqp: publish: %w", err)
	}
	return nil
}

// channel returns the open channel, dialing and declaring the queue if needed.
// Caller holds a.mu.
func (a *AMQPNotifier) channel() (*amqp.Channel, error) {
	if a.ch != nil && !a.ch.IsClosed() {
		return a.ch, nil
	}
	a.reset()

	conn, err := amqp.Dial(a.url)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: channel open: %w", err)
	}

	// Durable so receipts survive broker restarts.
	if _, err := ch.QueueDeclare(
		a.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: queue declare %s: %w", a.queue, err)
	}

	a.conn, a.ch = conn, ch
	return ch, nil
}

func (a *AMQPNotifier) reset() {
	if a.ch != nil {
		_ = a.ch.Close()
		a.ch = nil
	}
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}

// Close releases the broker connection.
func (a *AMQPNotifier) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
	return nil
}

func receiptPublishing(r Receipt) (amqp.Publishing, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal receipt: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    r.MessageID,
		Timestamp:    r.TimeOut.UTC().Truncate(time.Second),
		Type:         "parking.receipt",
		Body:         body,
	}, nil
}
