package types

import "sync"

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// EventSink receives events after the transition that produced them has
// committed.
type EventSink interface {
	AppendEvent(evt *Event)
}

// EventLog is an in-memory EventSink safe for concurrent use.
type EventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *EventLog) AppendEvent(evt *Event) {
	if l == nil || evt == nil {
		return
	}
	attrs := make(map[string]string, len(evt.Attributes))
	for k, v := range evt.Attributes {
		attrs[k] = v
	}
	l.mu.Lock()
	l.events = append(l.events, Event{Type: evt.Type, Attributes: attrs})
	l.mu.Unlock()
}

// Events returns a snapshot of every recorded event.
func (l *EventLog) Events() []Event {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// OfType returns recorded events matching typ.
func (l *EventLog) OfType(typ string) []Event {
	var out []Event
	for _, evt := range l.Events() {
		if evt.Type == typ {
			out = append(out, evt)
		}
	}
	return out
}

// Fanout forwards every event to each sink in order.
type Fanout []EventSink

func (f Fanout) AppendEvent(evt *Event) {
	for _, sink := range f {
		if sink != nil {
			sink.AppendEvent(evt)
		}
	}
}
