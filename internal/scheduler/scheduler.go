// Package scheduler fires the daily backup and the weekly report on cron
// cadences in a fixed time zone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/davexpro/hybrid-backup/internal/backup"
	"github.com/davexpro/hybrid-backup/internal/db"
	"github.com/davexpro/hybrid-backup/internal/errs"
	"github.com/davexpro/hybrid-backup/internal/metrics"
)

const (
	JobDailyBackup  = "daily-backup"
	JobWeeklyReport = "weekly-report"
)

type State string

// A job moves idle -> triggered -> running -> idle. Triggered covers the
// gap between the cron activation and the hand-off to the run; an
// activation that arrives while the scheduler is stopping ends there.
const (
	StateIdle      State = "idle"
	StateTriggered State = "triggered"
	StateRunning   State = "running"
)

type Backuper interface {
	RunFullBackup(ctx context.Context) (*backup.RunOutcome, error)
}

type Reporter interface {
	Run(ctx context.Context) error
}

// Job is one cadence. Its state is only reported; exclusion between runs is
// the run lock's job.
type Job struct {
	Name     string
	Spec     string
	schedule cron.Schedule
	run      func(ctx context.Context) error
	state    atomic.Value
	log      logrus.FieldLogger
}

func (j *Job) State() State {
	if st, ok := j.state.Load().(State); ok {
		return st
	}
	return StateIdle
}

// Next returns the next activation after from, in loc.
func (j *Job) Next(from time.Time, loc *time.Location) time.Time {
	return j.schedule.Next(from.In(loc))
}

// execute never returns an error: a failed job is logged and the next
// cadence is the retry.
func (j *Job) execute(ctx context.Context) {
	j.state.Store(StateTriggered)
	defer j.state.Store(StateIdle)

	log := j.log.WithField("job", j.Name)
	log.Info("Scheduled job triggered")
	if err := ctx.Err(); err != nil {
		log.WithError(err).Info("Scheduled job dropped, scheduler is stopping")
		return
	}

	j.state.Store(StateRunning)
	start := time.Now()
	err := j.run(ctx)
	log = log.WithField("duration", time.Since(start).Seconds())
	switch {
	case errors.Is(err, errs.ErrAlreadyRunning):
		metrics.RunRejected("schedule")
		log.WithError(err).Info("Scheduled job skipped, backup already running")
	case err != nil:
		log.WithError(err).Error("Scheduled job failed")
	default:
		log.Info("Scheduled job finished")
	}
}

type Scheduler struct {
	cron *cron.Cron
	loc  *time.Location
	log  logrus.FieldLogger
	jobs map[string]*Job
	ctx  context.Context
}

func New(loc *time.Location, log logrus.FieldLogger) *Scheduler {
	log = log.WithField("component", "scheduler")
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		loc:  loc,
		log:  log,
		jobs: map[string]*Job{},
		ctx:  context.Background(),
	}
}

// Add registers fn under a standard five-field cron spec.
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context) error) (*Job, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	j := &Job{Name: name, Spec: spec, schedule: schedule, run: fn, log: s.log}
	s.cron.Schedule(schedule, cron.FuncJob(func() { j.execute(s.ctx) }))
	s.jobs[name] = j
	return j, nil
}

// AddBackup schedules full runs. A run that finishes with status failed is
// reported as a job failure.
func (s *Scheduler) AddBackup(spec string, b Backuper) (*Job, error) {
	return s.Add(JobDailyBackup, spec, func(ctx context.Context) error {
		out, err := b.RunFullBackup(ctx)
		if err != nil {
			return err
		}
		if out.Status == db.StatusFailed {
			return fmt.Errorf("backup run %d failed: %s", out.LogID, out.Error)
		}
		return nil
	})
}

func (s *Scheduler) AddReport(spec string, r Reporter) (*Job, error) {
	return s.Add(JobWeeklyReport, spec, r.Run)
}

func (s *Scheduler) Job(name string) *Job {
	return s.jobs[name]
}

func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// Start runs the cron loop. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	for _, j := range s.jobs {
		s.log.WithFields(logrus.Fields{
			"job":  j.Name,
			"spec": j.Spec,
			"next": j.Next(time.Now(), s.loc).Format(time.RFC3339),
		}).Info("Job scheduled")
	}
}

// Stop halts new activations and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
