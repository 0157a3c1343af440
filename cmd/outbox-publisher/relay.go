package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/metrics"
	"github.com/angelmondragon/beatstore-backend/pkg/outbox"
	"github.com/angelmondragon/beatstore-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type eventStore interface {
	ClaimBatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	MarkFailed(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminal(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type RelayParams struct {
	Outbox      config.OutboxConfig
	Logger      *logger.Logger
	DB          txRunner
	PubSub      pubSubClient
	Events      eventStore
	DeadLetters deadLetterStore
	Registry    resolver
	Metrics     *metrics.OutboxMetrics
	// Publishers overrides topic lookup; tests use it to avoid Pub/Sub.
	Publishers func(topic string) publisher
}

// Relay moves committed outbox rows to Pub/Sub. Rows for one aggregate are
// delivered in creation order: once a row must be retried, later rows for
// the same aggregate wait for the next batch.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	pubsub      pubSubClient
	events      eventStore
	deadLetters deadLetterStore
	registry    resolver
	metrics     *metrics.OutboxMetrics
	publishers  func(topic string) publisher
	closePubs   func()
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

// batchSummary is logged once per non-empty batch.
type batchSummary struct {
	published, retried, deadLettered, held int
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case p.Events == nil:
		return nil, errors.New("outbox repository is required")
	case p.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	}
	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		pubsub:      p.PubSub,
		events:      p.Events,
		deadLetters: p.DeadLetters,
		registry:    p.Registry,
		metrics:     p.Metrics,
		publishers:  p.Publishers,
		batchSize:   positiveOr(p.Outbox.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(p.Outbox.MaxAttempts, defaultMaxAttempts),
		poll:        p.Outbox.PollInterval,
	}
	if r.poll <= 0 {
		r.poll = defaultPoll
	}
	if r.publishers == nil {
		cache := newTopicPublishers(p.PubSub)
		r.publishers = cache.get
		r.closePubs = cache.stop
	}
	return r, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run relays until ctx is canceled. Empty polls sleep for the poll interval;
// failed batches back off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": r.db.Ping, "pubsub": r.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	if r.closePubs != nil {
		defer r.closePubs()
	}

	pace := newPacer(r.poll)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		claimed, err := r.relayBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox batch failed", err)
			wait = pace.failure()
		case claimed == 0:
			wait = pace.idle()
		default:
			pace.reset()
			continue
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// relayBatch claims one batch under row locks and returns how many rows it saw.
func (r *Relay) relayBatch(ctx context.Context) (int, error) {
	var claimed int
	var sum batchSummary
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.events.ClaimBatch(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		claimed = len(rows)

		blocked := map[uuid.UUID]bool{}
		for _, row := range rows {
			outcome := metrics.OutcomeHeld
			if !blocked[row.AggregateID] {
				if outcome, err = r.relayOne(ctx, tx, row); err != nil {
					return err
				}
			}
			if outcome == metrics.OutcomeRetry {
				blocked[row.AggregateID] = true
			}
			sum.add(outcome)
			r.metrics.IncOutcome(string(row.EventType), outcome, row.CreatedAt)
		}
		return nil
	})
	if err != nil {
		return claimed, err
	}
	if claimed > 0 {
		r.metrics.ObserveBatch(claimed)
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"claimed":       claimed,
			"published":     sum.published,
			"retried":       sum.retried,
			"dead_lettered": sum.deadLettered,
			"held":          sum.held,
		}), "outbox batch relayed")
	}
	return claimed, nil
}

func (s *batchSummary) add(outcome string) {
	switch outcome {
	case metrics.OutcomePublished:
		s.published++
	case metrics.OutcomeRetry:
		s.retried++
	case metrics.OutcomeDeadLetter:
		s.deadLettered++
	case metrics.OutcomeHeld:
		s.held++
	}
}

// relayOne publishes a single row and records its outcome in tx. A returned
// error aborts the batch; publish failures are outcomes, not errors.
func (r *Relay) relayOne(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (string, error) {
	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return metrics.OutcomeDeadLetter, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
	}

	logCtx := r.logg.WithFields(ctx, rowFields(row, resolved))
	pubErr := r.publish(ctx, row, resolved)
	switch {
	case pubErr == nil:
		if err := r.events.MarkPublished(tx, row.ID); err != nil {
			return "", fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.logg.Info(logCtx, "outbox event published")
		return metrics.OutcomePublished, nil

	case errors.As(pubErr, new(registry.NonRetryableError)):
		return metrics.OutcomeDeadLetter, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, pubErr)

	case row.AttemptCount+1 >= r.maxAttempts:
		terminal := fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, pubErr)
		return metrics.OutcomeDeadLetter, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts, terminal)
	}

	r.logg.Warn(r.logg.WithField(logCtx, "error", pubErr.Error()), "outbox publish failed; will retry")
	if err := r.events.MarkFailed(tx, row.ID, pubErr); err != nil {
		return "", fmt.Errorf("mark failed %s: %w", row.ID, err)
	}
	return metrics.OutcomeRetry, nil
}

func (r *Relay) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := r.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %q", topic))
	}
	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	res := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:        row.Payload,
		Attributes:  messageAttributes(row, resolved.Envelope),
		OrderingKey: row.AggregateID.String(),
	})
	if res == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher for %q returned no result", topic))
	}
	_, err := res.Get(publishCtx)
	return err
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"outbox_id":    row.ID.String(),
		"event_type":   row.EventType,
		"aggregate_id": row.AggregateID.String(),
		"error_reason": reason,
		"error":        cause.Error(),
	}), "outbox event dead-lettered")

	if err := r.deadLetters.InsertTx(tx, row.DeadLetter(reason, cause)); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := r.events.MarkTerminal(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}

// messageAttributes lets subscribers filter on event type and route by the
// transaction or license the event belongs to without decoding the payload.
func messageAttributes(row models.OutboxEvent, env outbox.PayloadEnvelope) map[string]string {
	attrs := map[string]string{
		"event_id":       env.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"schema_version": fmt.Sprint(env.Version),
		"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if env.Actor != nil {
		attrs["actor_id"] = env.Actor.UserID.String()
		if env.Actor.Source != "" {
			attrs["actor_source"] = env.Actor.Source
		}
	}
	return attrs
}

func rowFields(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	return map[string]any{
		"outbox_id":     row.ID.String(),
		"event_id":      resolved.Envelope.EventID,
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"topic":         resolved.Descriptor.Topic,
		"attempt_count": row.AttemptCount,
	}
}
