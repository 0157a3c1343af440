// Package dedupe drops redelivered webhooks. A delivery is claimed before it
// is processed and marked done after, so a redelivery that races the first
// attempt is told to come back later instead of running twice.
package dedupe

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the slice of the redis client the guard needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// State of a delivery as seen by Begin.
type State int

const (
	// Fresh means the caller now owns the delivery.
	Fresh State = iota
	// InFlight means another attempt holds the claim.
	InFlight
	// Done means the delivery was already processed.
	Done
)

const (
	markProcessing = "processing"
	markDone       = "done"

	// claimTTL outlives the slowest settlement round trip.
	claimTTL = 2 * time.Minute
)

var ErrMissingEventID = errors.New("event id is required")

// Guard scopes marks to one consumer, e.g. "paypal-ipn".
type Guard struct {
	store    Store
	consumer string
	ttl      time.Duration
}

// New returns a guard whose done marks live for ttl. PayPal retries IPN for
// up to four days, so ttl should cover that window.
func New(store Store, consumer string, ttl time.Duration) (*Guard, error) {
	switch {
	case store == nil:
		return nil, errors.New("dedupe store is required")
	case strings.TrimSpace(consumer) == "":
		return nil, errors.New("consumer name is required")
	case ttl <= 0:
		return nil, errors.New("ttl must be positive")
	}
	return &Guard{store: store, consumer: consumer, ttl: ttl}, nil
}

// Begin claims eventID. Only a Fresh result may proceed to processing.
func (g *Guard) Begin(ctx context.Context, eventID string) (State, error) {
	key, err := g.key(eventID)
	if err != nil {
		return InFlight, err
	}
	claimed, err := g.store.SetNX(ctx, key, markProcessing, claimTTL)
	if err != nil {
		return InFlight, err
	}
	if claimed {
		return Fresh, nil
	}

	mark, err := g.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// claim expired between SETNX and GET; let the sender retry
		return InFlight, nil
	case err != nil:
		return InFlight, err
	case mark == markDone:
		return Done, nil
	default:
		return InFlight, nil
	}
}

// Complete records eventID as processed.
func (g *Guard) Complete(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Set(ctx, key, markDone, g.ttl)
}

// Abort drops the claim so a redelivery is processed again.
func (g *Guard) Abort(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(eventID string) (string, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", ErrMissingEventID
	}
	return g.store.IdempotencyKey("webhook:"+g.consumer, eventID), nil
}
