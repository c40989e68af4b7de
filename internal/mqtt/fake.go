package mqtt

import (
	"github.com/sweeney/smart-parking/internal/logic"
)

// Message is one publish recorded by FakePublisher, in wire form.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// FakePublisher records what would have gone to the broker. It is not safe
// for concurrent use; tests read it after the loop under test has returned.
type FakePublisher struct {
	Events         []logic.Event
	Payloads       [][]byte
	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	// Messages holds every successful publish across both topics, in order.
	Messages []Message

	// PublishError and PublishSystemError make the matching call fail
	// without recording anything.
	PublishError       error
	PublishSystemError error

	Closed    bool
	Connected bool

	// CommandCh feeds Commands; tests send on it directly.
	CommandCh chan logic.Command
}

// NewFakePublisher creates a disconnected FakePublisher with a buffered
// command channel.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{CommandCh: make(chan logic.Command, 16)}
}

func (f *FakePublisher) Publish(event logic.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	f.Messages = append(f.Messages, Message{Topic: Topic, Payload: payload})
	return nil
}

func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	f.Messages = append(f.Messages, Message{Topic: TopicSystem, Payload: payload, Retained: event.Retained})
	return nil
}

func (f *FakePublisher) Commands() <-chan logic.Command { return f.CommandCh }
func (f *FakePublisher) IsConnected() bool             { return f.Connected }

func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// SystemEventNames lists the recorded system events by name, e.g.
// [STARTUP HEARTBEAT SHUTDOWN].
func (f *FakePublisher) SystemEventNames() []string {
	names := make([]string, 0, len(f.SystemEvents))
	for _, e := range f.SystemEvents {
		names = append(names, e.Event)
	}
	return names
}

// Retained returns the payload a broker would still hold for topic: the
// last retained message, or nil.
func (f *FakePublisher) Retained(topic string) []byte {
	var last []byte
	for _, m := range f.Messages {
		if m.Topic == topic && m.Retained {
			last = m.Payload
		}
	}
	return last
}

// Reset forgets everything recorded and clears the injected errors. The
// command channel is kept.
func (f *FakePublisher) Reset() {
	*f = FakePublisher{CommandCh: f.CommandCh}
}
