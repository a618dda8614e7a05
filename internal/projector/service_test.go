package projector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkax "github.com/ariefcatur/go-order-saga/internal/kafka"
	"github.com/ariefcatur/go-order-saga/internal/orders"
	"github.com/ariefcatur/go-order-saga/internal/redisx"
)

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDedup) MarkProcessed(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDedup) Forget(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	return nil
}

type memCache struct {
	m   map[int64]redisx.CachedStatus
	err error
}

func (c *memCache) Set(_ context.Context, id int64, st redisx.CachedStatus) error {
	if c.err != nil {
		return c.err
	}
	c.m[id] = st
	return nil
}

type counter map[string]int

func (c counter) Projected(result string) { c[result]++ }

func finalized(t *testing.T, orderID int64, st orders.Status) kafkago.Message {
	t.Helper()
	env, err := orders.NewEnvelope(orders.EventOrderFinalized, "order-service", orderID, orders.OrderFinalizedPayload{
		OrderID: orderID, FinalStatus: st, UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	b, err := kafkax.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{Key: orders.PartitionKey(orderID), Value: b}
}

func newService() (*Service, *memCache, *memDedup, counter) {
	cache := &memCache{m: map[int64]redisx.CachedStatus{}}
	dedup := &memDedup{seen: map[string]bool{}}
	c := counter{}
	return &Service{Dedup: dedup, Cache: cache, Metrics: c}, cache, dedup, c
}

func TestHandleOrderFinalized_ProjectsOnce(t *testing.T) {
	svc, cache, _, c := newService()
	msg := finalized(t, 42, orders.StatusPaymentFailed)

	require.NoError(t, svc.HandleOrderFinalized(context.Background(), msg))
	require.NoError(t, svc.HandleOrderFinalized(context.Background(), msg))

	assert.Equal(t, "PAYMENT_FAILED", cache.m[42].Status)
	assert.Equal(t, 1, c["applied"])
	assert.Equal(t, 1, c["duplicate"])
}

func TestHandleOrderFinalized_IgnoresOtherEvents(t *testing.T) {
	svc, cache, _, c := newService()
	env, err := orders.NewEnvelope(orders.EventOrderPlaced, "order-service", 1, orders.OrderPlacedPayload{OrderID: 1})
	require.NoError(t, err)
	b, err := kafkax.Marshal(env)
	require.NoError(t, err)

	require.NoError(t, svc.HandleOrderFinalized(context.Background(), kafkago.Message{Value: b}))
	require.NoError(t, svc.HandleOrderFinalized(context.Background(), kafkago.Message{Value: []byte("{oops")}))

	assert.Empty(t, cache.m)
	assert.Equal(t, 1, c["ignored"])
	assert.Equal(t, 1, c["malformed"])
}

func TestHandleOrderFinalized_CacheFailureAllowsRetry(t *testing.T) {
	svc, cache, dedup, _ := newService()
	cache.err = errors.New("redis down")
	msg := finalized(t, 7, orders.StatusPlaced)

	require.Error(t, svc.HandleOrderFinalized(context.Background(), msg))
	assert.Empty(t, dedup.seen)

	cache.err = nil
	require.NoError(t, svc.HandleOrderFinalized(context.Background(), msg))
	assert.Equal(t, "PLACED", cache.m[7].Status)
}
