// internal/events/bus.go
package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Bus fans pipeline events out to subscribed handlers. Publish never blocks
// the hot path: events land on a bounded queue and a single dispatch
// goroutine invokes handlers in publish order, so journal records for a token
// appear in the order the decisions were made.
type Bus struct {
	mu        sync.RWMutex
	listeners map[EventType]map[uint64]Handler
	nextID    atomic.Uint64

	queue  chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		listeners: make(map[EventType]map[uint64]Handler),
		queue:     make(chan Event, bufferSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.Named("events"),
	}
	b.wg.Add(1)
	go b.dispatchLoop()
	return b
}

// Subscribe registers a handler for one event type and returns a handle for
// removing it.
func (b *Bus) Subscribe(t EventType, h Handler) Subscription {
	id := b.nextID.Add(1)

	b.mu.Lock()
	if b.listeners[t] == nil {
		b.listeners[t] = make(map[uint64]Handler)
	}
	b.listeners[t][id] = h
	b.mu.Unlock()

	b.logger.Debug("handler subscribed",
		zap.String("event_type", string(t)),
		zap.Uint64("subscription_id", id))
	return &subscription{bus: b, typ: t, id: id}
}

// SubscribeFunc registers a plain function as a handler.
func (b *Bus) SubscribeFunc(t EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(t, HandlerFunc(fn))
}

// Publish queues the event for asynchronous dispatch. A full queue drops the
// event rather than stalling the publisher.
func (b *Bus) Publish(event Event) error {
	if b.ctx.Err() != nil {
		return fmt.Errorf("event bus is closed")
	}
	select {
	case b.queue <- event:
		return nil
	default:
		b.logger.Warn("event queue full, dropping event",
			zap.String("event_type", string(event.Type())))
		return fmt.Errorf("event queue full")
	}
}

func (b *Bus) dispatchLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			// Deliver whatever was queued before the close.
			for {
				select {
				case event := <-b.queue:
					b.dispatch(context.Background(), event)
				default:
					return
				}
			}
		case event := <-b.queue:
			b.dispatch(b.ctx, event)
		}
	}
}

// dispatch invokes every handler registered for the event's type. Handler
// errors are logged, never propagated: one broken listener must not starve
// the rest.
func (b *Bus) dispatch(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.listeners[event.Type()]))
	for _, h := range b.listeners[event.Type()] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h.Handle(ctx, event); err != nil {
			b.logger.Error("event handler failed",
				zap.String("event_type", string(event.Type())),
				zap.Error(err))
		}
	}
}

func (b *Bus) unsubscribe(t EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.listeners[t]; ok {
		delete(m, id)
		if len(m) == 0 {
			delete(b.listeners, t)
		}
	}
}

// Shutdown stops intake, delivers the events already queued, and waits for
// the dispatch loop to finish or the context to expire.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Debug("event bus stopped")
		return nil
	case <-ctx.Done():
		b.logger.Warn("event bus shutdown timed out")
		return ctx.Err()
	}
}
