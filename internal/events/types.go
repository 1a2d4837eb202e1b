// internal/events/types.go
package events

import (
	"time"

	"github.com/PietroScorza/copytrade-bot/internal/types"
)

// EventType represents the type of event.
type EventType string

const (
	// Pipeline events
	TradeObserved  EventType = "trade.observed"
	ActionDecided  EventType = "action.decided"
	ActionDropped  EventType = "action.dropped"
	BundleAccepted EventType = "bundle.accepted"
	BundleRejected EventType = "bundle.rejected"

	// Feed events
	FeedConnected    EventType = "feed.connected"
	FeedDisconnected EventType = "feed.disconnected"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// NewBaseEvent stamps an event with the current time.
func NewBaseEvent(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// TradeObservedEvent is emitted for every decoded swap by the monitored
// wallet, before any decision is taken.
type TradeObservedEvent struct {
	BaseEvent
	Trade *types.TradeEvent
}

// ActionDecidedEvent is emitted when the decision engine commits an action.
type ActionDecidedEvent struct {
	BaseEvent
	Action types.TradeAction
}

// ActionDroppedEvent is emitted when a decided action is abandoned before
// landing, e.g. a rejected bundle or an exhausted tip cap.
type ActionDroppedEvent struct {
	BaseEvent
	Action types.TradeAction
	Reason string
}

// BundleAcceptedEvent is emitted when the block engine accepts a bundle.
type BundleAcceptedEvent struct {
	BaseEvent
	BundleID      string
	CorrelationID string
	TokenMint     string
	TipLamports   uint64
	Emergency     bool
	Actions       []types.TradeAction
}

// BundleRejectedEvent is emitted when a bundle is rejected or times out and
// will not be retried further.
type BundleRejectedEvent struct {
	BaseEvent
	CorrelationID string
	TokenMint     string
	Reason        string
	Emergency     bool
	Actions       []types.TradeAction
}

// FeedConnectedEvent is emitted when the transaction feed (re)connects.
type FeedConnectedEvent struct {
	BaseEvent
	Endpoint string
}

// FeedDisconnectedEvent is emitted when the transaction feed drops.
type FeedDisconnectedEvent struct {
	BaseEvent
	Endpoint string
	Err      error
}
