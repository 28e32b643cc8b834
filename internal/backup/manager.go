package backup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/davexpro/hybrid-backup/internal/db"
	"github.com/davexpro/hybrid-backup/internal/errs"
	"github.com/davexpro/hybrid-backup/internal/mapper"
	"github.com/davexpro/hybrid-backup/internal/metrics"
	"github.com/davexpro/hybrid-backup/internal/runlock"
	"github.com/davexpro/hybrid-backup/internal/source"
	"github.com/davexpro/hybrid-backup/internal/syncer"
)

// Lock is the run lock as the manager uses it.
type Lock interface {
	Acquire(ctx context.Context, backupType string) (Lease, error)
}

// Lease is a held run lock bound to its running log entry.
type Lease interface {
	LogID() uint
	Release(ctx context.Context, c runlock.Completion) error
}

type durableLock struct {
	lock *runlock.Lock
}

// NewDurableLock exposes a runlock.Lock to the manager.
func NewDurableLock(l *runlock.Lock) Lock {
	return durableLock{lock: l}
}

func (d durableLock) Acquire(ctx context.Context, backupType string) (Lease, error) {
	h, err := d.lock.TryAcquire(ctx, backupType)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Sources are the enumerators of one run, in pipeline order.
type Sources struct {
	Users    source.Enumerator[source.UserAccount]
	Profiles source.Enumerator[source.UserProfile]
	Emotions source.Enumerator[source.EmotionEntry]
	Sessions source.Enumerator[source.CounselingSession]
}

// RunOutcome is the result of one full run.
type RunOutcome struct {
	LogID           uint            `json:"logId"`
	Status          string          `json:"status"`
	DurationSeconds float64         `json:"durationSeconds"`
	Collections     []syncer.Result `json:"collections"`
	Error           string          `json:"error,omitempty"`
}

// Totals sums the per-collection counts.
func (o *RunOutcome) Totals() syncer.Result {
	var total syncer.Result
	for _, c := range o.Collections {
		total.Add(c)
	}
	return total
}

type Manager struct {
	lock    Lock
	dest    syncer.Upserter
	sources Sources
	mapper  *mapper.Mapper
	log     logrus.FieldLogger

	wg sync.WaitGroup
}

func NewManager(lock Lock, dest syncer.Upserter, sources Sources, m *mapper.Mapper, log logrus.FieldLogger) *Manager {
	return &Manager{
		lock:    lock,
		dest:    dest,
		sources: sources,
		mapper:  m,
		log:     log.WithField("component", "backup"),
	}
}

// RunFullBackup acquires the run lock and synchronizes every collection in
// order. It fails fast with errs.ErrAlreadyRunning when another run holds
// the lock. A collection that cannot be enumerated marks the run failed but
// the remaining collections still run; that is reported through
// RunOutcome.Status, not the error. The error is reserved for lock
// acquisition, a recovered panic and a failed audit-log write.
func (m *Manager) RunFullBackup(ctx context.Context) (*RunOutcome, error) {
	lease, err := m.lock.Acquire(ctx, db.TypeFull)
	if err != nil {
		if errors.Is(err, errs.ErrAlreadyRunning) {
			m.log.WithError(err).Info("Backup skipped, another run is in progress")
		}
		return nil, err
	}
	return m.run(ctx, lease)
}

// Trigger starts a run in the background once the lock is held. The run is
// detached from ctx so it outlives the request that started it.
func (m *Manager) Trigger(ctx context.Context) error {
	lease, err := m.lock.Acquire(ctx, db.TypeFull)
	if err != nil {
		if errors.Is(err, errs.ErrAlreadyRunning) {
			metrics.RunRejected("manual")
		}
		return err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if _, err := m.run(context.WithoutCancel(ctx), lease); err != nil {
			m.log.WithError(err).WithField("log_id", lease.LogID()).Error("Triggered backup ended with error")
		}
	}()
	return nil
}

// Wait blocks until every triggered run has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

type pass func(ctx context.Context, log logrus.FieldLogger) (syncer.Result, error)

func (m *Manager) passes() []pass {
	return []pass{
		func(ctx context.Context, log logrus.FieldLogger) (syncer.Result, error) {
			return syncer.Sync(ctx, log, m.sources.Users, syncer.UpsertHandler(m.dest, m.mapper.MapUserAccount))
		},
		func(ctx context.Context, log logrus.FieldLogger) (syncer.Result, error) {
			return syncer.Sync(ctx, log, m.sources.Profiles, syncer.UpsertHandler(m.dest, m.mapper.MapUserProfile))
		},
		func(ctx context.Context, log logrus.FieldLogger) (syncer.Result, error) {
			return syncer.Sync(ctx, log, m.sources.Emotions, syncer.UpsertHandler(m.dest, func(e source.EmotionEntry) (db.EmotionRecord, error) {
				return m.mapper.MapEmotionEntry(e, e.Date)
			}))
		},
		func(ctx context.Context, log logrus.FieldLogger) (syncer.Result, error) {
			return syncer.Sync(ctx, log, m.sources.Sessions, syncer.SessionHandler(m.dest, m.mapper))
		},
	}
}

func (m *Manager) run(ctx context.Context, lease Lease) (out *RunOutcome, err error) {
	start := time.Now()
	out = &RunOutcome{LogID: lease.LogID(), Status: db.StatusRunning}
	log := m.log.WithField("log_id", out.LogID)
	var failures []string

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Backup run panicked")
			failures = append(failures, fmt.Sprintf("panic: %v", r))
			err = fmt.Errorf("backup run %d panicked: %v", out.LogID, r)
		}
		out.Status = db.StatusSuccess
		if len(failures) > 0 {
			out.Status = db.StatusFailed
			out.Error = strings.Join(failures, "; ")
		}
		out.DurationSeconds = time.Since(start).Seconds()

		total := out.Totals()
		relErr := lease.Release(ctx, runlock.Completion{
			Status:         out.Status,
			ErrorMessage:   out.Error,
			ProcessedCount: total.Processed,
			FailedCount:    total.Failed,
		})
		if relErr != nil {
			log.WithError(relErr).Error("Failed to record backup result")
			err = errors.Join(err, relErr)
		}
		metrics.ObserveRun(out.Status, out.DurationSeconds)

		log.WithFields(logrus.Fields{
			"status":    out.Status,
			"duration":  out.DurationSeconds,
			"processed": total.Processed,
			"failed":    total.Failed,
		}).Info("Backup run finished")
	}()

	log.Info("Backup run started")
	for _, p := range m.passes() {
		res, perr := p(ctx, log)
		out.Collections = append(out.Collections, res)
		metrics.ObserveCollection(res.Collection, res.Processed, res.Failed)
		if res.MessagesProcessed+res.MessagesFailed > 0 {
			metrics.ObserveCollection("chat_messages", res.MessagesProcessed, res.MessagesFailed)
		}
		if perr != nil {
			failures = append(failures, perr.Error())
		}
	}
	return out, nil
}
