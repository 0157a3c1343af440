package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/beatstore-backend/internal/settlement"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

type fakeStaleRoots struct {
	roots      []models.Transaction
	err        error
	lastCutoff time.Time
	lastLimit  int
}

func (f *fakeStaleRoots) ListStaleRoots(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error) {
	f.lastCutoff = cutoff
	f.lastLimit = limit
	return f.roots, f.err
}

type fakeExpirer struct {
	expired []uuid.UUID
	failFor map[uuid.UUID]error
}

func (f *fakeExpirer) Expire(ctx context.Context, rootID uuid.UUID) (*settlement.Result, error) {
	if err := f.failFor[rootID]; err != nil {
		return nil, err
	}
	f.expired = append(f.expired, rootID)
	return &settlement.Result{Changed: true}, nil
}

func newAbandonedJob(t *testing.T, roots *fakeStaleRoots, expirer *fakeExpirer) *abandonedCheckoutJob {
	t.Helper()
	job, err := NewAbandonedCheckoutJob(AbandonedCheckoutJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Roots:      roots,
		Reconciler: expirer,
		TTL:        2 * time.Hour,
	})
	require.NoError(t, err)
	typed, ok := job.(*abandonedCheckoutJob)
	require.True(t, ok)
	return typed
}

func TestAbandonedCheckoutJobDisabledWithoutTTL(t *testing.T) {
	job, err := NewAbandonedCheckoutJob(AbandonedCheckoutJobParams{})
	require.NoError(t, err)
	assert.Nil(t, job)

	s, err := NewScheduler(SchedulerParams{
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Locker: newFakeLocker(),
	})
	require.NoError(t, err)
	s.Every(time.Hour, job)
	assert.Empty(t, s.Jobs())
}

func TestAbandonedCheckoutJobExpiresStaleRoots(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	roots := &fakeStaleRoots{roots: []models.Transaction{
		{ID: uuid.New(), Code: "TX00000001"},
		{ID: uuid.New(), Code: "TX00000005"},
	}}
	expirer := &fakeExpirer{}
	job := newAbandonedJob(t, roots, expirer)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-2*time.Hour), roots.lastCutoff)
	assert.Equal(t, defaultAbandonBatch, roots.lastLimit)
	assert.Equal(t, []uuid.UUID{roots.roots[0].ID, roots.roots[1].ID}, expirer.expired)
}

func TestAbandonedCheckoutJobContinuesPastFailures(t *testing.T) {
	first, second, third := uuid.New(), uuid.New(), uuid.New()
	roots := &fakeStaleRoots{roots: []models.Transaction{
		{ID: first, Code: "TX1"}, {ID: second, Code: "TX2"}, {ID: third, Code: "TX3"},
	}}
	expirer := &fakeExpirer{failFor: map[uuid.UUID]error{
		first: errors.New("locked"),
		third: errors.New("gone"),
	}}
	job := newAbandonedJob(t, roots, expirer)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, []uuid.UUID{second}, expirer.expired)
}

func TestAbandonedCheckoutJobListError(t *testing.T) {
	job := newAbandonedJob(t, &fakeStaleRoots{err: errors.New("db down")}, &fakeExpirer{})
	assert.Error(t, job.Run(context.Background()))
}
