// internal/events/handler.go
package events

import "context"

// Handler receives events from the bus. Handle runs on the dispatch
// goroutine, so it should return quickly.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error { return f(ctx, event) }

// Subscription identifies one registered handler.
type Subscription interface {
	// Unsubscribe removes the handler; it receives no further events.
	Unsubscribe()
}

type subscription struct {
	bus *Bus
	typ EventType
	id  uint64
}

func (s *subscription) Unsubscribe() { s.bus.unsubscribe(s.typ, s.id) }
