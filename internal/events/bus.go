package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTradeOpened     EventType = "TRADE_OPENED"
	EventTradeClosed     EventType = "TRADE_CLOSED"
	EventOrderPlaced     EventType = "ORDER_PLACED"
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventPositionUpdate  EventType = "POSITION_UPDATE"
	EventHedgeOpened     EventType = "HEDGE_OPENED"
	EventHedgeClosed     EventType = "HEDGE_CLOSED"
	EventSniperToggled   EventType = "SNIPER_TOGGLED"
	EventWSReconnected   EventType = "WS_RECONNECTED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Subscribers run on their own
// goroutines so a slow consumer cannot block the publisher.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradeOpened publishes a trade opened event
func (eb *EventBus) PublishTradeOpened(symbol, side, tier string, entryPrice, quantity float64) {
	eb.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"side":        side,
			"tier":        tier,
			"entry_price": entryPrice,
			"quantity":    quantity,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (eb *EventBus) PublishTradeClosed(symbol, reason string, pnl float64) {
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"symbol": symbol,
			"reason": reason,
			"pnl":    pnl,
		},
	})
}

// PublishSignal publishes a signal generated event
func (eb *EventBus) PublishSignal(strategyName, symbol, tier string, price float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"strategy": strategyName,
			"symbol":   symbol,
			"tier":     tier,
			"price":    price,
		},
	})
}

// PublishHedgeOpened publishes a hedge opened event
func (eb *EventBus) PublishHedgeOpened(primarySymbol, hedgeSymbol, reason string, size float64) {
	eb.Publish(Event{
		Type: EventHedgeOpened,
		Data: map[string]interface{}{
			"primary_symbol": primarySymbol,
			"hedge_symbol":   hedgeSymbol,
			"reason":         reason,
			"size":           size,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
