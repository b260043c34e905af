package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventType names an order lifecycle event.
type EventType string

const (
	EventCreated       EventType = "order.created"
	EventStatusChanged EventType = "order.status_changed"
)

// Event is published after an order change is committed.
type Event struct {
	Type       EventType
	OrderID    string
	Number     string
	CustomerID string
	Status     Status
	Previous   Status
	Total      decimal.Decimal
	OccurredAt time.Time
}

// EventPublisher delivers order events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
