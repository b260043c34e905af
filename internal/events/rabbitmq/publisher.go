package rabbitmq

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xenking/storefront/internal/domain/order"
)

const publishTimeout = 5 * time.Second

var _ order.EventPublisher = (*Publisher)(nil)

// Publisher sends order events as persistent JSON messages routed by event
// type.
type Publisher struct {
	pool     *ChannelPool
	exchange string
}

// NewPublisher creates a Publisher on pool's exchange.
func NewPublisher(pool *ChannelPool) *Publisher {
	return &Publisher{pool: pool, exchange: pool.exchange}
}

// Publish implements order.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, e order.Event) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	ch, err := p.pool.Get(ctx)
	if err != nil {
		return errors.Wrap(err, "get channel")
	}
	defer p.pool.Put(ch)

	err = ch.PublishWithContext(ctx,
		p.exchange,
		string(e.Type), // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    e.OrderID + ":" + string(e.Type) + ":" + string(e.Status),
			Timestamp:    e.OccurredAt,
			Type:         string(e.Type),
			Body:         EncodeEvent(e),
		})
	if err != nil {
		// The slot is reopened on the next Get.
		_ = ch.Close()
		return errors.Wrapf(err, "publish %s", e.Type)
	}
	return nil
}

// EncodeEvent renders e as a JSON object.
func EncodeEvent(e order.Event) []byte {
	var w jx.Encoder
	w.ObjStart()
	w.FieldStart("type")
	w.Str(string(e.Type))
	w.FieldStart("order_id")
	w.Str(e.OrderID)
	w.FieldStart("number")
	w.Str(e.Number)
	w.FieldStart("customer_id")
	w.Str(e.CustomerID)
	w.FieldStart("status")
	w.Str(string(e.Status))
	if e.Previous != "" {
		w.FieldStart("previous_status")
		w.Str(string(e.Previous))
	}
	w.FieldStart("total")
	w.Str(e.Total.StringFixed(2))
	w.FieldStart("occurred_at")
	w.Str(e.OccurredAt.UTC().Format(time.RFC3339Nano))
	w.ObjEnd()
	return w.Bytes()
}
