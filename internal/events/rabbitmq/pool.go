// Package rabbitmq publishes order events to a RabbitMQ topic exchange.
package rabbitmq

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	dialTimeout    = 2 * time.Second
	redialInterval = time.Second
)

var (
	// ErrPoolClosed is returned by Get after Close.
	ErrPoolClosed = errors.New("channel pool closed")
	// ErrUnavailable is returned while the broker connection is down and the
	// next redial is not due yet.
	ErrUnavailable = errors.New("rabbitmq unavailable")
)

// Channel is the part of *amqp.Channel the pool and publisher use.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// Connection is a broker connection that hands out channels.
type Connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

// Dialer opens a new broker connection.
type Dialer func() (Connection, error)

type amqpConn struct {
	*amqp.Connection
}

func (c amqpConn) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// ChannelPool shares one connection between a fixed number of channel slots.
// A slot holds either an open channel or nil, in which case the next Get
// reopens it, redialing the connection if the broker dropped it.
type ChannelPool struct {
	dial     Dialer
	channels chan Channel
	exchange string
	lg       *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	conn     Connection
	lastDial time.Time
	closed   bool
}

// NewChannelPool dials url, declares exchange as a durable topic exchange
// and opens size channels.
func NewChannelPool(url, exchange string, size int, lg *zap.Logger) (*ChannelPool, error) {
	dial := func() (Connection, error) {
		conn, err := amqp.DialConfig(url, amqp.Config{
			Heartbeat: 10 * time.Second,
			Locale:    "en_US",
			Dial:      amqp.DefaultDial(dialTimeout),
		})
		if err != nil {
			return nil, err
		}
		return amqpConn{conn}, nil
	}
	return newChannelPool(dial, exchange, size, lg)
}

func newChannelPool(dial Dialer, exchange string, size int, lg *zap.Logger) (*ChannelPool, error) {
	if size <= 0 {
		size = 1
	}
	p := &ChannelPool{
		dial:     dial,
		channels: make(chan Channel, size),
		exchange: exchange,
		lg:       lg,
		now:      time.Now,
	}

	conn, err := dial()
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}
	p.conn = conn
	p.lastDial = p.now()

	for i := 0; i < size; i++ {
		ch, err := p.open()
		if err != nil {
			p.Close()
			return nil, errors.Wrapf(err, "open channel %d", i)
		}
		p.channels <- ch
	}

	lg.Info("RabbitMQ channel pool ready", zap.Int("size", size), zap.String("exchange", exchange))
	return p, nil
}

// open requires p.conn to be set and, after construction, p.mu to be held.
func (p *ChannelPool) open() (Channel, error) {
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(
		p.exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, errors.Wrap(err, "declare exchange")
	}
	return ch, nil
}

// reopen opens a channel for an empty slot, redialing at most once per
// redialInterval when the connection is gone.
func (p *ChannelPool) reopen() (Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if p.conn == nil || p.conn.IsClosed() {
		now := p.now()
		if now.Sub(p.lastDial) < redialInterval {
			return nil, ErrUnavailable
		}
		p.lastDial = now
		conn, err := p.dial()
		if err != nil {
			p.lg.Warn("Redial RabbitMQ", zap.Error(err))
			return nil, errors.Wrap(err, "redial rabbitmq")
		}
		p.conn = conn
		p.lg.Info("RabbitMQ connection restored")
	}
	return p.open()
}

// Get waits for a free slot. A closed or empty slot is reopened; when that
// fails the slot goes back to the pool and the error is returned.
func (p *ChannelPool) Get(ctx context.Context) (Channel, error) {
	select {
	case ch, ok := <-p.channels:
		if !ok {
			return nil, ErrPoolClosed
		}
		if ch != nil && !ch.IsClosed() {
			return ch, nil
		}
		fresh, err := p.reopen()
		if err != nil {
			p.release(nil)
			return nil, err
		}
		return fresh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns a slot to the pool. A closed channel comes back as an empty
// slot.
func (p *ChannelPool) Put(ch Channel) {
	if ch != nil && ch.IsClosed() {
		ch = nil
	}
	p.release(ch)
}

func (p *ChannelPool) release(ch Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		if ch != nil {
			_ = ch.Close()
		}
		return
	}
	select {
	case p.channels <- ch:
	default:
		if ch != nil {
			_ = ch.Close()
		}
	}
}

// Healthy reports whether the connection is open.
func (p *ChannelPool) Healthy(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

// Close closes every channel and the connection.
func (p *ChannelPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true

	close(p.channels)
	for ch := range p.channels {
		if ch != nil {
			_ = ch.Close()
		}
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.lg.Info("RabbitMQ channel pool closed")
}
