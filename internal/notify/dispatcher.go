package notify

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultQueueSize is the number of receipts that may wait for delivery.
const DefaultQueueSize = 32

// DefaultSendTimeout bounds a single delivery attempt.
const DefaultSendTimeout = 10 * time.Second

// Dispatcher hands receipts to a Notifier on a single worker goroutine.
// Send never blocks: when the queue is full the receipt is dropped and
// OnDrop is called.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	queue    chan Receipt

	// OnDrop, if set, is called for each receipt that could not be queued.
	// Set it before Start.
	OnDrop func(Receipt)

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewDispatcher creates a Dispatcher. Non-positive size and timeout use the defaults.
func NewDispatcher(n Notifier, size int, timeout time.Duration) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Dispatcher{
		notifier: n,
		timeout:  timeout,
		queue:    make(chan Receipt, size),
		done:     make(chan struct{}),
	}
}

// Start launches the worker. Cancelling ctx aborts the delivery in progress;
// Close drains what is queued.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		defer close(d.done)
		for r := range d.queue {
			sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
			if err := d.notifier.Notify(sendCtx, r); err != nil {
				log.Printf("notify: ticket %d: %v", r.TicketID, err)
			}
			cancel()
		}
	}()
}

// Send queues a receipt. It reports false if the receipt was dropped.
func (d *Dispatcher) Send(r Receipt) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.closed {
		select {
		case d.queue <- r:
			return true
		default:
		}
	}

	log.Printf("notify: queue full, dropping receipt for ticket %d", r.TicketID)
	if d.OnDrop != nil {
		d.OnDrop(r)
	}
	return false
}

// Close stops accepting receipts and waits for the worker to finish the
// queue. Start must have been called.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}
