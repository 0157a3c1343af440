package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/beatstore-backend/internal/settlement"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

const defaultAbandonBatch = 100

// AbandonedCheckoutJobParams configure the sweeper for checkouts the buyer
// never completed at the gateway.
type AbandonedCheckoutJobParams struct {
	Logger     *logger.Logger
	Roots      staleRootLister
	Reconciler rootExpirer
	TTL        time.Duration
	BatchSize  int
}

type staleRootLister interface {
	ListStaleRoots(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error)
}

type rootExpirer interface {
	Expire(ctx context.Context, rootID uuid.UUID) (*settlement.Result, error)
}

// NewAbandonedCheckoutJob builds the job that fails roots left in wait or vary
// for longer than TTL. A zero TTL yields no job.
func NewAbandonedCheckoutJob(params AbandonedCheckoutJobParams) (Job, error) {
	if params.TTL <= 0 {
		return nil, nil
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Roots == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultAbandonBatch
	}
	return &abandonedCheckoutJob{
		logg:       params.Logger,
		roots:      params.Roots,
		reconciler: params.Reconciler,
		ttl:        params.TTL,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type abandonedCheckoutJob struct {
	logg       *logger.Logger
	roots      staleRootLister
	reconciler rootExpirer
	ttl        time.Duration
	batch      int
	now        func() time.Time
}

func (j *abandonedCheckoutJob) Name() string { return "abandoned_checkout_sweep" }

// Run expires one batch per cycle. A root that fails to expire stays listed
// and is retried next cycle.
func (j *abandonedCheckoutJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	roots, err := j.roots.ListStaleRoots(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list stale checkouts: %w", err)
	}

	var errs error
	expired := 0
	for _, root := range roots {
		res, err := j.reconciler.Expire(ctx, root.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", root.Code, err))
			continue
		}
		if res != nil && res.Changed {
			expired++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"found":   len(roots),
		"expired": expired,
	})
	j.logg.Info(logCtx, "abandoned checkout sweep complete")
	return errs
}
