package mqtt

import (
	"log"
	"sync"
)

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a bounded FIFO that keeps the newest messages while the broker
// is unreachable. Safe for concurrent use: the tick loop pushes while the
// paho connect handler drains.
type outbox struct {
	mu       sync.Mutex
	msgs     []bufferedMsg
	capacity int
	dropped  int // messages lost since the last drain
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{capacity: capacity}
}

func (o *outbox) push(msg bufferedMsg) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.msgs) == o.capacity {
		if o.dropped == 0 {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", o.capacity)
		}
		o.dropped++
		o.msgs = append(o.msgs[:0], o.msgs[1:]...)
	}
	o.msgs = append(o.msgs, msg)
}

// drain returns every queued message oldest first and the number dropped
// since the previous drain.
func (o *outbox) drain() ([]bufferedMsg, int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.msgs) == 0 && o.dropped == 0 {
		return nil, 0
	}
	out := o.msgs
	dropped := o.dropped
	o.msgs = nil
	o.dropped = 0
	return out, dropped
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}
