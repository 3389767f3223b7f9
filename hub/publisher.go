package hub

import (
	"context"
	"errors"
)

const RoomOrders = "orders"

// Event types
const (
	EventOrderCreated = "order-created"
	EventOrderUpdated = "order-updated"
)

// Publisher delivers an event to whoever currently listens on room. Delivery
// is best effort and at most once.
type Publisher interface {
	Publish(ctx context.Context, room, event string, payload interface{}) error
}

type Message struct {
	Event string      `json:"event"`
	Room  string      `json:"room"`
	Data  interface{} `json:"data"`
}

type Noop struct{}

func (Noop) Publish(context.Context, string, string, interface{}) error { return nil }

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, room, event string, payload interface{}) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, room, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
