// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zipalim/zipalim/internal/events"
	"github.com/zipalim/zipalim/internal/logging"
	"github.com/zipalim/zipalim/internal/models"
	"github.com/zipalim/zipalim/internal/storage"
)

var (
	// ErrCycleInFlight is returned by RunNow while the job's previous cycle
	// is still running. Cycles for one job never overlap.
	ErrCycleInFlight = errors.New("scheduler: cycle already in flight")
	// ErrTooManySchedules is returned when the registry is at capacity.
	ErrTooManySchedules = errors.New("scheduler: schedule limit reached")
	// ErrNotRegistered is returned by RunNow for an unknown job.
	ErrNotRegistered = errors.New("scheduler: schedule not registered")
)

// job is one registered schedule with its armed timer. The timer is re-armed
// only after a cycle finishes, so cycles for one job never overlap.
type job struct {
	schedule models.Schedule
	cron     *CronExpr
	timer    *time.Timer
	running  bool
	// removed marks an unregistered job whose in-flight cycle must finish
	// without re-arming.
	removed bool
}

// Scheduler owns the in-memory job registry. Because the registry lives in
// process memory, Serve re-registers every persisted active schedule before
// the scheduler is considered ready.
type Scheduler struct {
	store    storage.ScheduleStore
	pipeline *Pipeline
	targets  TargetResolver
	events   *events.Broadcaster
	loc      *time.Location
	maxJobs  int

	mu   sync.Mutex
	jobs map[string]*job

	// onJobs is a metrics hook invoked with the registry size after every
	// change, may be nil.
	onJobs func(n int)

	// ctx is the lifetime of the scheduler; cycles inherit it so shutdown
	// does not leave crawls running.
	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup
}

// TargetResolver resolves the complexes a schedule targets. Schedules either
// name complexes directly or follow the user's tracked set.
type TargetResolver func(ctx context.Context, s models.Schedule) ([]string, error)

// ResolveTargets is the default TargetResolver: the schedule's explicit
// complex list, or every tracked complex of the schedule's owner when
// UseFavorites is set.
func ResolveTargets(store storage.ComplexStore) TargetResolver {
	return func(ctx context.Context, s models.Schedule) ([]string, error) {
		if !s.UseFavorites {
			return s.ComplexNos, nil
		}
		complexes, err := store.ListComplexes(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve favorite complexes: %w", err)
		}
		var out []string
		for _, c := range complexes {
			if s.UserID == "" || c.UserID == s.UserID {
				out = append(out, c.ComplexNo)
			}
		}
		return out, nil
	}
}

// New returns a Scheduler. loc is the timezone cron expressions evaluate in;
// maxJobs bounds the registry.
func New(store storage.ScheduleStore, pipeline *Pipeline, targets TargetResolver, broadcaster *events.Broadcaster, loc *time.Location, maxJobs int) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if maxJobs < 1 {
		maxJobs = 50
	}
	return &Scheduler{
		store:    store,
		pipeline: pipeline,
		targets:  targets,
		events:   broadcaster,
		loc:      loc,
		maxJobs:  maxJobs,
		jobs:     make(map[string]*job),
	}
}

// OnJobsChanged registers a callback invoked with the registry size after
// every register and unregister.
func (s *Scheduler) OnJobsChanged(fn func(n int)) {
	s.mu.Lock()
	s.onJobs = fn
	s.mu.Unlock()
}

// notifyJobs must be called with s.mu held.
func (s *Scheduler) notifyJobs() {
	if s.onJobs != nil {
		s.onJobs(len(s.jobs))
	}
}

// Serve loads persisted active schedules, registers them, and blocks until
// ctx is canceled. It satisfies suture's Service interface.
func (s *Scheduler) Serve(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.ctx = runCtx
	s.cancel = cancel
	s.mu.Unlock()

	if err := s.reload(ctx); err != nil {
		cancel()
		return err
	}

	<-ctx.Done()
	s.shutdown()
	return ctx.Err()
}

// reload registers every persisted active schedule. Startup fails if the
// schedules cannot be read; a single bad cron expression only skips that
// schedule.
func (s *Scheduler) reload(ctx context.Context) error {
	schedules, err := s.store.ListActiveSchedules(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: load active schedules: %w", err)
	}
	for _, sched := range schedules {
		if err := s.Register(sched); err != nil {
			logging.Error().Err(err).Str("schedule_id", sched.ID).
				Str("cron", sched.CronExpr).
				Msg("persisted schedule failed to register")
		}
	}
	logging.Info().Int("schedules", len(schedules)).Msg("scheduler ready")
	return nil
}

// shutdown stops all timers and waits for in-flight cycles.
func (s *Scheduler) shutdown() {
	s.mu.Lock()
	for id, j := range s.jobs {
		if j.timer != nil {
			j.timer.Stop()
		}
		j.removed = true
		delete(s.jobs, id)
	}
	s.notifyJobs()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	logging.Info().Msg("scheduler stopped")
}

// Register validates the schedule's cron expression, arms its timer, and
// records the planned next run. Re-registering an existing job replaces its
// timer.
func (s *Scheduler) Register(sched models.Schedule) error {
	cron, err := ParseCron(sched.CronExpr)
	if err != nil {
		return err
	}

	now := time.Now()
	next := cron.Next(now, s.loc)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.jobs[sched.ID]
	if ok {
		if existing.timer != nil {
			existing.timer.Stop()
		}
		existing.removed = true
	} else if len(s.jobs) >= s.maxJobs {
		return fmt.Errorf("%w (%d)", ErrTooManySchedules, s.maxJobs)
	}

	j := &job{schedule: sched, cron: cron}
	j.timer = time.AfterFunc(time.Until(next), func() { s.fire(sched.ID) })
	s.jobs[sched.ID] = j
	s.notifyJobs()

	logging.Info().Str("schedule_id", sched.ID).
		Str("cron", sched.CronExpr).
		Time("next_run", next).
		Msg("schedule registered")

	go s.persistRunTimes(sched.ID, time.Time{}, next)
	return nil
}

// Unregister cancels the job's timer. Idempotent: unknown jobs are a no-op.
// An in-flight cycle runs to completion and does not re-arm.
func (s *Scheduler) Unregister(scheduleID string) {
	s.mu.Lock()
	j, ok := s.jobs[scheduleID]
	if ok {
		if j.timer != nil {
			j.timer.Stop()
		}
		j.removed = true
		delete(s.jobs, scheduleID)
		s.notifyJobs()
	}
	s.mu.Unlock()
	if ok {
		logging.Info().Str("schedule_id", scheduleID).Msg("schedule unregistered")
	}
}

// RunNow triggers the job immediately, outside its cron cadence. The
// no-overlap guarantee holds: a cycle already in flight rejects the trigger.
func (s *Scheduler) RunNow(scheduleID string) error {
	s.mu.Lock()
	j, ok := s.jobs[scheduleID]
	if !ok {
		s.mu.Unlock()
		return ErrNotRegistered
	}
	if j.running {
		s.mu.Unlock()
		return ErrCycleInFlight
	}
	j.running = true
	if j.timer != nil {
		// Suspend the cron timer; runCycle re-arms after the cycle.
		j.timer.Stop()
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCycle(j)
	}()
	return nil
}

// Registered reports whether the job currently has a timer.
func (s *Scheduler) Registered(scheduleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[scheduleID]
	return ok
}

// fire is the timer callback.
func (s *Scheduler) fire(scheduleID string) {
	s.mu.Lock()
	j, ok := s.jobs[scheduleID]
	if !ok || j.running {
		// Unregistered between fire and lock, or RunNow got there first.
		s.mu.Unlock()
		return
	}
	j.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()
	s.runCycle(j)
}

// runCycle executes one cycle for the job and then re-arms its timer. A
// failed cycle still re-arms: one bad cycle never disables the job. The job
// pointer is the one captured at fire time; re-registration replaces the map
// entry, so a lookup by ID here could touch a newer job's state.
func (s *Scheduler) runCycle(j *job) {
	s.mu.Lock()
	sched := j.schedule
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	status := models.CrawlStatusSuccess
	listings := 0
	errMsg := ""

	targets, err := s.targets(ctx, sched)
	if err == nil && len(targets) == 0 {
		err = fmt.Errorf("schedule %s has no target complexes", sched.ID)
	}

	if err == nil {
		s.events.NotifyScheduleStart(sched.ID, sched.Name, len(targets))
		var result CycleResult
		result, err = s.pipeline.Run(ctx, sched.ID, targets)
		listings = result.TotalListings
		if result.Status == models.CrawlStatusPartial {
			status = models.CrawlStatusPartial
		}
	}
	duration := time.Since(start)

	if err != nil {
		status = models.CrawlStatusFailed
		errMsg = err.Error()
		logging.Error().Err(err).Str("schedule_id", sched.ID).
			Dur("duration", duration).
			Msg("schedule cycle failed")
		s.events.NotifyScheduleFailed(sched.ID, sched.Name, errMsg)
	} else {
		logging.Info().Str("schedule_id", sched.ID).
			Int("listings", listings).
			Dur("duration", duration).
			Msg("schedule cycle finished")
		s.events.NotifyScheduleComplete(sched.ID, sched.Name, listings, int(duration.Seconds()))
	}

	if logErr := s.store.AppendScheduleLog(ctx, models.ScheduleLog{
		ScheduleID:    sched.ID,
		Status:        string(status),
		DurationSec:   int(duration.Seconds()),
		ListingsCount: listings,
		ErrorMessage:  errMsg,
		CreatedAt:     time.Now().UTC(),
	}); logErr != nil {
		logging.Error().Err(logErr).Str("schedule_id", sched.ID).
			Msg("append schedule log")
	}

	s.rearm(j, start)
}

// rearm schedules the next fire unless the job was unregistered or replaced
// while the cycle ran. Checking removed on the captured pointer keeps a
// finishing cycle from clearing the running flag or overwriting the timer of
// a job registered under the same ID in the meantime.
func (s *Scheduler) rearm(j *job, firedAt time.Time) {
	s.mu.Lock()
	if j.removed {
		s.mu.Unlock()
		return
	}
	scheduleID := j.schedule.ID
	j.running = false
	next := j.cron.Next(time.Now(), s.loc)
	j.timer = time.AfterFunc(time.Until(next), func() { s.fire(scheduleID) })
	s.mu.Unlock()

	s.persistRunTimes(scheduleID, firedAt, next)
}

// persistRunTimes records last/next run on the schedule row, best effort.
func (s *Scheduler) persistRunTimes(scheduleID string, lastRun, nextRun time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.UpdateScheduleRunTimes(ctx, scheduleID, lastRun, nextRun); err != nil {
		logging.Warn().Err(err).Str("schedule_id", scheduleID).
			Msg("persist schedule run times")
	}
}
