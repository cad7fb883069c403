package registry

import "fmt"

// EventType tells which lifecycle change an Event reports
type EventType int

const (
	EventSpawn EventType = iota
	EventDelete
	EventGive
	EventRemove
)

func (t EventType) String() string {
	switch t {
	case EventSpawn:
		return "Spawn"
	case EventDelete:
		return "Delete"
	case EventGive:
		return "Give"
	case EventRemove:
		return "Remove"
	default:
		return "Unknown"
	}
}

// Event is published on the world's event feed. Component is Nil for
// spawn and delete events.
type Event struct {
	Type      EventType
	Entity    Entity
	Component Entity
}

func (e Event) String() string {
	return fmt.Sprintf("Event{Type: %s, Entity: %s, Component: %s}", e.Type, e.Entity, e.Component)
}

// Events returns the lifecycle event feed, or nil if the world was created
// without Options.Events. Events of one goroutine arrive in order. The
// channel is closed by Close after the last pending event was delivered.
//
// A world created with Options.Events needs a reader that drains the feed
// until it is closed. Undelivered events otherwise keep the forwarding
// goroutine alive after Close.
func (w *World) Events() <-chan Event {
	if w.events == nil {
		return nil
	}
	return w.events.Recv()
}

func (w *World) publish(t EventType, e, component Entity) {
	if w.events != nil {
		w.events.Push(Event{Type: t, Entity: e, Component: component})
	}
}
