package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

const (
	defaultPublishedRetention  = 30 * 24 * time.Hour
	defaultDeadLetterRetention = 90 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedEventPruner interface {
	Purge(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configure pruning of relayed settlement and
// checkout events. Rows that exhausted MaxAttempts are pruned with the
// published ones; their dead letters are kept for DeadLetterRetention.
type OutboxRetentionJobParams struct {
	Logger              *logger.Logger
	DB                  txRunner
	Events              publishedEventPruner
	DeadLetters         deadLetterPruner
	Retention           time.Duration
	DeadLetterRetention time.Duration
	MaxAttempts         int
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Events == nil:
		return nil, errors.New("outbox repository required")
	case params.MaxAttempts <= 0:
		return nil, errors.New("max attempts must be positive")
	}
	job := &outboxRetentionJob{
		logg:          params.Logger,
		db:            params.DB,
		events:        params.Events,
		deadLetters:   params.DeadLetters,
		retention:     params.Retention,
		dlqRetention:  params.DeadLetterRetention,
		terminalAfter: params.MaxAttempts,
		now:           time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultPublishedRetention
	}
	if job.dlqRetention <= 0 {
		job.dlqRetention = defaultDeadLetterRetention
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg          *logger.Logger
	db            txRunner
	events        publishedEventPruner
	deadLetters   deadLetterPruner
	retention     time.Duration
	dlqRetention  time.Duration
	terminalAfter int
	now           func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox_retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	eventCutoff := now.Add(-j.retention)
	dlqCutoff := now.Add(-j.dlqRetention)

	var events, deadLetters int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if events, err = j.events.Purge(ctx, tx, eventCutoff, j.terminalAfter); err != nil {
			return fmt.Errorf("prune outbox events: %w", err)
		}
		if j.deadLetters == nil {
			return nil
		}
		if deadLetters, err = j.deadLetters.DeleteFailedBefore(ctx, tx, dlqCutoff); err != nil {
			return fmt.Errorf("prune dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"event_cutoff":         eventCutoff,
		"dead_letter_cutoff":   dlqCutoff,
		"events_deleted":       events,
		"dead_letters_deleted": deadLetters,
	}), "outbox retention complete")
	return nil
}
