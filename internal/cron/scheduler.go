package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/metrics"
)

const (
	defaultTick    = time.Minute
	defaultLockTTL = 10 * time.Minute
)

// Job is one unit of scheduled maintenance.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Locker hands out named, owner-checked leases. The cron worker takes one per
// job run, so replicas never run the same job concurrently but different jobs
// can proceed on different replicas.
type Locker interface {
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) (bool, error)
}

type SchedulerParams struct {
	Logger *logger.Logger
	Locker Locker
	// LockPrefix scopes lock names, usually per environment.
	LockPrefix string
	LockTTL    time.Duration
	// Tick is how often due jobs are checked for.
	Tick    time.Duration
	Metrics *metrics.JobMetrics
	// Owner identifies this process in lock values.
	Owner string
}

// Scheduler runs each registered job on its own cadence.
type Scheduler struct {
	logg       *logger.Logger
	locker     Locker
	lockPrefix string
	lockTTL    time.Duration
	tick       time.Duration
	metrics    *metrics.JobMetrics
	owner      string
	entries    []*entry
	now        func() time.Time
}

type entry struct {
	job   Job
	every time.Duration
	next  time.Time
}

func NewScheduler(params SchedulerParams) (*Scheduler, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Locker == nil {
		return nil, errors.New("locker required")
	}
	s := &Scheduler{
		logg:       params.Logger,
		locker:     params.Locker,
		lockPrefix: params.LockPrefix,
		lockTTL:    params.LockTTL,
		tick:       params.Tick,
		metrics:    params.Metrics,
		owner:      params.Owner,
		now:        time.Now,
	}
	if s.lockPrefix == "" {
		s.lockPrefix = "cron"
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	if s.tick <= 0 {
		s.tick = defaultTick
	}
	if s.owner == "" {
		s.owner = "cron"
	}
	return s, nil
}

// Every registers job to run at most once per interval. A nil job is ignored
// so optional jobs can be passed straight from their constructors. The first
// run is due immediately.
func (s *Scheduler) Every(interval time.Duration, job Job) {
	if job == nil {
		return
	}
	if interval < s.tick {
		interval = s.tick
	}
	s.entries = append(s.entries, &entry{job: job, every: interval})
}

// Jobs lists the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		names = append(names, e.job.Name())
	}
	return names
}

// Run checks for due jobs every tick until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithField(ctx, "jobs", s.Jobs()), "scheduler started")
	s.RunDue(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue runs every job whose slot has come up and returns how many ran here.
// A job whose lock is held elsewhere counts as done for this slot.
func (s *Scheduler) RunDue(ctx context.Context) int {
	ran := 0
	for _, e := range s.entries {
		now := s.now()
		if now.Before(e.next) {
			continue
		}
		e.next = now.Add(e.every)
		if s.runLocked(ctx, e.job) {
			ran++
		}
	}
	return ran
}

func (s *Scheduler) runLocked(ctx context.Context, job Job) bool {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	lockName := fmt.Sprintf("%s:%s", s.lockPrefix, job.Name())
	owner := s.owner + ":" + uuid.NewString()

	acquired, err := s.locker.AcquireLock(jobCtx, lockName, owner, s.lockTTL)
	if err != nil {
		s.logg.Error(jobCtx, "cron lock unavailable", err)
		s.metrics.ObserveRun(job.Name(), 0, err)
		return false
	}
	if !acquired {
		s.logg.Info(jobCtx, "job already running on another instance")
		return false
	}
	defer func() {
		if _, err := s.locker.ReleaseLock(context.WithoutCancel(ctx), lockName, owner); err != nil {
			s.logg.Error(jobCtx, "cron lock release failed", err)
		}
	}()

	started := s.now()
	err = job.Run(jobCtx)
	took := s.now().Sub(started)
	s.metrics.ObserveRun(job.Name(), took, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return true
	}
	s.logg.Info(jobCtx, "job completed")
	return true
}
