// Package registry knows which topic each outbox event goes to and how to
// decode and sanity-check its payload before the relay publishes it.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	"github.com/angelmondragon/beatstore-backend/pkg/outbox"
	"github.com/angelmondragon/beatstore-backend/pkg/outbox/payloads"
)

// EventDescriptor routes one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string

	decode func(json.RawMessage) (any, uuid.UUID, error)
}

// ResolvedEvent is a row whose envelope and payload decoded cleanly.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will never publish; the relay moves it
// to the dead letter table instead of retrying.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// describe builds a descriptor whose payload decodes into T. aggregate names
// the payload field that must equal the row's aggregate_id.
func describe[T any](event enums.OutboxEventType, agg enums.OutboxAggregateType, topic string, aggregate func(*T) uuid.UUID) EventDescriptor {
	return EventDescriptor{
		EventType:     event,
		AggregateType: agg,
		Topic:         topic,
		decode: func(raw json.RawMessage) (any, uuid.UUID, error) {
			payload := new(T)
			if err := json.Unmarshal(raw, payload); err != nil {
				return nil, uuid.Nil, err
			}
			return payload, aggregate(payload), nil
		},
	}
}

// NewEventRegistry wires every event type to its configured topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	var missing []error
	if cfg.TransactionsTopic == "" {
		missing = append(missing, errors.New("transactions topic is required"))
	}
	if cfg.CheckoutTopic == "" {
		missing = append(missing, errors.New("checkout topic is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	txTopic, checkoutTopic := cfg.TransactionsTopic, cfg.CheckoutTopic
	reg := &EventRegistry{entries: map[enums.OutboxEventType]EventDescriptor{}}
	for _, d := range []EventDescriptor{
		describe(enums.EventCheckoutCreated, enums.AggregateTransaction, checkoutTopic,
			func(p *payloads.CheckoutCreatedEvent) uuid.UUID { return p.TransactionID }),
		describe(enums.EventLicenseDeleted, enums.AggregateLicense, checkoutTopic,
			func(p *payloads.LicenseDeletedEvent) uuid.UUID { return p.LicenseID }),
		describe(enums.EventTransactionSettled, enums.AggregateTransaction, txTopic,
			func(p *payloads.TransactionSettledEvent) uuid.UUID { return p.TransactionID }),
		describe(enums.EventTransactionFailed, enums.AggregateTransaction, txTopic,
			func(p *payloads.TransactionFailedEvent) uuid.UUID { return p.TransactionID }),
		describe(enums.EventSellerPayoutCreated, enums.AggregateTransaction, txTopic,
			func(p *payloads.SellerPayoutCreatedEvent) uuid.UUID { return p.PayoutID }),
	} {
		reg.entries[d.EventType] = d
	}
	return reg, nil
}

// Topics lists the distinct topics events can be routed to.
func (r *EventRegistry) Topics() []string {
	seen := map[string]struct{}{}
	for _, d := range r.entries {
		seen[d.Topic] = struct{}{}
	}
	topics := make([]string, 0, len(seen))
	for t := range seen {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Resolve validates the row and decodes its typed payload. Every failure is
// non-retryable since the row itself is malformed.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if errors.Is(err, outbox.ErrEmptyData) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}
	if err != nil {
		return nil, NewNonRetryableError(err)
	}

	payload, aggregateID, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	if aggregateID != event.AggregateID {
		return nil, NewNonRetryableError(fmt.Errorf("%s payload names %s, row aggregate is %s", event.EventType, aggregateID, event.AggregateID))
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
