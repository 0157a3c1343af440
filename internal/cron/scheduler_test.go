package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/metrics"
)

type fakeLocker struct {
	held     map[string]string
	released []string
	err      error
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]string{}} }

func (f *fakeLocker) AcquireLock(_ context.Context, name, owner string, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.held[name]; ok {
		return false, nil
	}
	f.held[name] = owner
	return true, nil
}

func (f *fakeLocker) ReleaseLock(_ context.Context, name, owner string) (bool, error) {
	if f.held[name] != owner {
		return false, nil
	}
	delete(f.held, name)
	f.released = append(f.released, name)
	return true, nil
}

type countingJob struct {
	name string
	err  error
	runs int
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(context.Context) error {
	j.runs++
	return j.err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestScheduler(t *testing.T, locker Locker) (*Scheduler, *clock) {
	t.Helper()
	s, err := NewScheduler(SchedulerParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Locker:     locker,
		LockPrefix: "cron:test",
		Tick:       time.Minute,
		Owner:      "worker-1",
	})
	require.NoError(t, err)
	c := &clock{t: time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)}
	s.now = c.now
	return s, c
}

func TestSchedulerRunsEachJobOnItsOwnCadence(t *testing.T) {
	s, c := newTestScheduler(t, newFakeLocker())
	sweep := &countingJob{name: "abandoned_checkout_sweep"}
	retention := &countingJob{name: "outbox_retention"}
	s.Every(15*time.Minute, sweep)
	s.Every(24*time.Hour, retention)
	s.Every(time.Hour, nil)

	assert.Equal(t, []string{"abandoned_checkout_sweep", "outbox_retention"}, s.Jobs())
	assert.Equal(t, 2, s.RunDue(context.Background()))

	c.advance(10 * time.Minute)
	assert.Equal(t, 0, s.RunDue(context.Background()))

	c.advance(5 * time.Minute)
	assert.Equal(t, 1, s.RunDue(context.Background()))
	assert.Equal(t, 2, sweep.runs)
	assert.Equal(t, 1, retention.runs)
}

func TestSchedulerContinuesAfterJobFailure(t *testing.T) {
	locker := newFakeLocker()
	s, _ := newTestScheduler(t, locker)
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	healthy := &countingJob{name: "healthy"}
	s.Every(time.Hour, failing)
	s.Every(time.Hour, healthy)

	assert.Equal(t, 2, s.RunDue(context.Background()))
	assert.Equal(t, 1, healthy.runs)
	assert.ElementsMatch(t, []string{"cron:test:failing", "cron:test:healthy"}, locker.released)
	assert.Empty(t, locker.held)
}

func TestSchedulerSkipsJobLockedElsewhere(t *testing.T) {
	locker := newFakeLocker()
	locker.held["cron:test:abandoned_checkout_sweep"] = "worker-2"
	s, c := newTestScheduler(t, locker)
	job := &countingJob{name: "abandoned_checkout_sweep"}
	s.Every(15*time.Minute, job)

	assert.Equal(t, 0, s.RunDue(context.Background()))
	assert.Equal(t, 0, job.runs)
	assert.Equal(t, "worker-2", locker.held["cron:test:abandoned_checkout_sweep"])

	delete(locker.held, "cron:test:abandoned_checkout_sweep")
	c.advance(time.Minute)
	assert.Equal(t, 0, s.RunDue(context.Background()), "slot already taken by the other instance")

	c.advance(15 * time.Minute)
	assert.Equal(t, 1, s.RunDue(context.Background()))
}

func TestSchedulerRecordsLockErrorsAsFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, _ := newTestScheduler(t, &fakeLocker{err: errors.New("redis down")})
	s.metrics = metrics.NewJobMetrics(reg)
	job := &countingJob{name: "outbox_retention"}
	s.Every(time.Hour, job)

	assert.Equal(t, 0, s.RunDue(context.Background()))
	assert.Equal(t, 0, job.runs)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 2)
}

func TestSchedulerClampsIntervalToTick(t *testing.T) {
	s, c := newTestScheduler(t, newFakeLocker())
	job := &countingJob{name: "fast"}
	s.Every(time.Second, job)

	s.RunDue(context.Background())
	c.advance(30 * time.Second)
	s.RunDue(context.Background())
	assert.Equal(t, 1, job.runs)
}

func TestNewSchedulerValidates(t *testing.T) {
	_, err := NewScheduler(SchedulerParams{Locker: newFakeLocker()})
	assert.Error(t, err)
	_, err = NewScheduler(SchedulerParams{Logger: logger.New(logger.Options{ServiceName: "x", Output: io.Discard})})
	assert.Error(t, err)
}
