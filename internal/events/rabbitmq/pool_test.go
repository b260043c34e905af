package rabbitmq

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
)

type fakeChannel struct {
	mu         sync.Mutex
	closed     bool
	publishErr error
	published  []amqp.Publishing
	keys       []string
}

func (c *fakeChannel) ExchangeDeclare(string, string, bool, bool, bool, bool, amqp.Table) error {
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeConn struct {
	mu       sync.Mutex
	closed   bool
	channels []*fakeChannel
}

func (c *fakeConn) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	ch := &fakeChannel{}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// drop simulates a broker restart: the connection and all its channels die.
func (c *fakeConn) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, ch := range c.channels {
		_ = ch.Close()
	}
}

type fakeBroker struct {
	mu    sync.Mutex
	down  bool
	dials int
	conns []*fakeConn
}

func (b *fakeBroker) dial() (Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	if b.down {
		return nil, errors.New("connection refused")
	}
	c := &fakeConn{}
	b.conns = append(b.conns, c)
	return c, nil
}

func (b *fakeBroker) last() *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conns[len(b.conns)-1]
}

func newTestPool(t *testing.T, size int) (*ChannelPool, *fakeBroker, *time.Time) {
	t.Helper()
	b := &fakeBroker{}
	p, err := newChannelPool(b.dial, "storefront.orders", size, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(p.Close)

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }
	p.lastDial = clock
	return p, b, &clock
}

func TestChannelPool_GetPut(t *testing.T) {
	p, b, _ := newTestPool(t, 2)
	ctx := context.Background()

	ch, err := p.Get(ctx)
	require.NoError(t, err)
	p.Put(ch)

	assert.Len(t, p.channels, 2)
	assert.Equal(t, 1, b.dials)
	require.NoError(t, p.Healthy(ctx))
}

func TestChannelPool_LostConnectionKeepsSlots(t *testing.T) {
	p, b, clock := newTestPool(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	b.last().drop()
	b.mu.Lock()
	b.down = true
	b.mu.Unlock()
	require.Error(t, p.Healthy(ctx))

	// Within the redial interval Get fails fast without dialing.
	for i := 0; i < 5; i++ {
		_, err := p.Get(ctx)
		require.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, 1, b.dials)
	assert.Len(t, p.channels, 2, "failed reopen must give the slot back")

	// Past the interval a failing redial is attempted once and reported.
	*clock = clock.Add(redialInterval)
	_, err := p.Get(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, b.dials)
	assert.Len(t, p.channels, 2)

	// Broker back: the next due redial restores the connection.
	b.mu.Lock()
	b.down = false
	b.mu.Unlock()
	*clock = clock.Add(redialInterval)

	ch, err := p.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ch.IsClosed())
	p.Put(ch)
	require.NoError(t, p.Healthy(ctx))

	// The second slot reuses the restored connection.
	ch2, err := p.Get(ctx)
	require.NoError(t, err)
	ch3, err := p.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ch2.IsClosed())
	assert.False(t, ch3.IsClosed())
	assert.Equal(t, 3, b.dials)
}

func TestChannelPool_Closed(t *testing.T) {
	p, _, _ := newTestPool(t, 1)
	ch, err := p.Get(context.Background())
	require.NoError(t, err)

	p.Close()
	p.Put(ch)
	assert.True(t, ch.IsClosed())

	_, err = p.Get(context.Background())
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestPublisher_Publish(t *testing.T) {
	p, b, _ := newTestPool(t, 1)
	pub := NewPublisher(p)

	err := pub.Publish(context.Background(), order.Event{
		Type:    order.EventCreated,
		OrderID: "o1",
		Status:  order.StatusPending,
		Total:   decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	ch := b.last().channels[0]
	require.Len(t, ch.published, 1)
	assert.Equal(t, []string{"order.created"}, ch.keys)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	assert.Equal(t, "o1:order.created:pending", ch.published[0].MessageId)
}

func TestPublisher_FailedPublishFreesSlot(t *testing.T) {
	p, b, _ := newTestPool(t, 1)
	pub := NewPublisher(p)
	first := b.last().channels[0]
	first.publishErr = errors.New("channel exception")

	err := pub.Publish(context.Background(), order.Event{Type: order.EventCreated, Total: decimal.Zero})
	require.Error(t, err)
	assert.True(t, first.IsClosed())

	require.NoError(t, pub.Publish(context.Background(), order.Event{Type: order.EventCreated, Total: decimal.Zero}))
	conn := b.last()
	require.Len(t, conn.channels, 2)
	assert.Len(t, conn.channels[1].published, 1)
}
