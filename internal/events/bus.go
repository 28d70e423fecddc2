// Package events carries runtime notifications between the RTSP server,
// the engines, the supervisors and the status API.
package events

import (
	"github.com/kelindar/event"
)

// Bus delivers each event to the subscribers of its concrete type, in
// publish order per type. A nil Bus drops everything.
type Bus struct {
	d *event.Dispatcher
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{d: event.NewDispatcher()}
}

// Subscribe registers fn for events of type T and returns the function
// that removes it.
func Subscribe[T Event](b *Bus, fn func(T)) func() {
	if b == nil {
		return func() {}
	}
	return event.Subscribe(b.d, fn)
}

func publish[T Event](b *Bus, e T) {
	event.Publish(b.d, e)
}

// Publish sends ev to its subscribers. Types outside this package are
// ignored.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case ClientEvent:
		publish(b, e)
	case EngineEvent:
		publish(b, e)
	case PipelineStateEvent:
		publish(b, e)
	case LifecycleEvent:
		publish(b, e)
	case ConfigReloadedEvent:
		publish(b, e)
	}
}

// Subscribe is the untyped form of Subscribe: handler is a func taking one
// of the event types. Any other handler gets a no-op unsubscribe.
func (b *Bus) Subscribe(handler any) func() {
	switch fn := handler.(type) {
	case func(ClientEvent):
		return Subscribe(b, fn)
	case func(EngineEvent):
		return Subscribe(b, fn)
	case func(PipelineStateEvent):
		return Subscribe(b, fn)
	case func(LifecycleEvent):
		return Subscribe(b, fn)
	case func(ConfigReloadedEvent):
		return Subscribe(b, fn)
	}
	return func() {}
}
