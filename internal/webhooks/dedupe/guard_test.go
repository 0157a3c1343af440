package dedupe

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memStore) IdempotencyKey(scope, id string) string {
	return "bs:idempotency:" + scope + ":" + id
}

func TestGuardLifecycle(t *testing.T) {
	store := newMemStore()
	guard, err := New(store, "paypal-ipn", 96*time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	state, err := guard.Begin(ctx, "8XJ1:Completed")
	require.NoError(t, err)
	assert.Equal(t, Fresh, state)
	key := "bs:idempotency:webhook:paypal-ipn:8XJ1:Completed"
	assert.Equal(t, claimTTL, store.ttls[key])

	state, err = guard.Begin(ctx, "8XJ1:Completed")
	require.NoError(t, err)
	assert.Equal(t, InFlight, state)

	require.NoError(t, guard.Complete(ctx, "8XJ1:Completed"))
	assert.Equal(t, 96*time.Hour, store.ttls[key])

	state, err = guard.Begin(ctx, "8XJ1:Completed")
	require.NoError(t, err)
	assert.Equal(t, Done, state)
}

func TestGuardAbortAllowsRetry(t *testing.T) {
	guard, err := New(newMemStore(), "paypal-ipn", time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = guard.Begin(ctx, "evt")
	require.NoError(t, err)
	require.NoError(t, guard.Abort(ctx, "evt"))

	state, err := guard.Begin(ctx, "evt")
	require.NoError(t, err)
	assert.Equal(t, Fresh, state)
}

func TestGuardScopesByConsumer(t *testing.T) {
	store := newMemStore()
	a, _ := New(store, "paypal-ipn", time.Hour)
	b, _ := New(store, "other", time.Hour)
	ctx := context.Background()

	sa, err := a.Begin(ctx, "evt")
	require.NoError(t, err)
	sb, err := b.Begin(ctx, "evt")
	require.NoError(t, err)
	assert.Equal(t, Fresh, sa)
	assert.Equal(t, Fresh, sb)
}

func TestGuardErrors(t *testing.T) {
	_, err := New(nil, "c", time.Hour)
	assert.Error(t, err)
	_, err = New(newMemStore(), " ", time.Hour)
	assert.Error(t, err)
	_, err = New(newMemStore(), "c", 0)
	assert.Error(t, err)

	store := newMemStore()
	guard, _ := New(store, "c", time.Hour)
	_, err = guard.Begin(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrMissingEventID)

	store.err = errors.New("redis down")
	_, err = guard.Begin(context.Background(), "evt")
	assert.ErrorContains(t, err, "redis down")
}
