package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/davexpro/hybrid-backup/internal/db"
	"github.com/davexpro/hybrid-backup/internal/errs"
	"github.com/davexpro/hybrid-backup/internal/metrics"
)

const (
	mysqlDuplicateEntry = 1062
	mysqlDeadlock       = 1213
)

// Lock is the durable single-flight guard. The running row in backup_logs is
// the lock itself, so every process sharing the database sees the same state.
type Lock struct {
	db         *gorm.DB
	staleAfter time.Duration
	log        logrus.FieldLogger
	Now        func() time.Time
}

func New(gdb *gorm.DB, staleAfter time.Duration, log logrus.FieldLogger) *Lock {
	return &Lock{
		db:         gdb,
		staleAfter: staleAfter,
		log:        log.WithField("component", "runlock"),
		Now:        time.Now,
	}
}

// StaleAfter is the age after which a running entry counts as orphaned.
func (l *Lock) StaleAfter() time.Duration {
	return l.staleAfter
}

// Completion is the terminal state written on release.
type Completion struct {
	Status         string
	ErrorMessage   string
	ProcessedCount int
	FailedCount    int
}

// Handle represents a held lock and its running log entry.
type Handle struct {
	Entry     db.BackupLog
	Reclaimed []uint

	lock     *Lock
	released atomic.Bool
}

// TryAcquire writes a new running entry for backupType, or fails fast with
// errs.ErrAlreadyRunning. Running entries older than the staleness threshold
// are marked failed in the same transaction.
func (l *Lock) TryAcquire(ctx context.Context, backupType string) (*Handle, error) {
	now := l.Now().UTC()
	entry := db.BackupLog{
		RunID:      uuid.NewString(),
		BackupType: backupType,
		Status:     db.StatusRunning,
		StartedAt:  now,
	}
	var reclaimed []db.BackupLog

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var running []db.BackupLog
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status = ?", db.StatusRunning).
			Find(&running).Error; err != nil {
			return fmt.Errorf("failed to read running backups: %w", err)
		}

		for _, r := range running {
			if now.Sub(r.StartedAt) < l.staleAfter {
				return errs.NewAlreadyRunning(fmt.Sprintf("backup log %d (%s) running since %s",
					r.ID, r.BackupType, r.StartedAt.Format(time.RFC3339)))
			}
		}

		for _, r := range running {
			msg := fmt.Sprintf("orphaned run reclaimed: no terminal status within %s", l.staleAfter)
			res := tx.Model(&db.BackupLog{}).
				Where("id = ? AND status = ?", r.ID, db.StatusRunning).
				Updates(map[string]any{
					"status":           db.StatusFailed,
					"completed_at":     now,
					"duration_seconds": now.Sub(r.StartedAt).Seconds(),
					"error_message":    msg,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to reclaim orphaned backup log %d: %w", r.ID, res.Error)
			}
			reclaimed = append(reclaimed, r)
		}

		if err := tx.Create(&entry).Error; err != nil {
			if isContention(err) {
				return errs.NewAlreadyRunning("another run acquired the lock concurrently")
			}
			return fmt.Errorf("failed to write running backup log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h := &Handle{Entry: entry, lock: l}
	metrics.OrphansReclaimed(len(reclaimed))
	for _, r := range reclaimed {
		h.Reclaimed = append(h.Reclaimed, r.ID)
		l.log.WithFields(logrus.Fields{
			"log_id":     r.ID,
			"started_at": r.StartedAt,
		}).Warn(errs.NewOrphanedRunReclaimed(r.ID, "stale running entry marked failed").Error())
	}
	l.log.WithFields(logrus.Fields{
		"log_id": entry.ID,
		"run_id": entry.RunID,
		"type":   backupType,
	}).Info("Run lock acquired")
	return h, nil
}

func (h *Handle) LogID() uint {
	return h.Entry.ID
}

// Release writes the single terminal update. Later calls are no-ops. The
// write is detached from ctx cancellation so a shutdown still records the
// outcome.
func (h *Handle) Release(ctx context.Context, c Completion) error {
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}

	now := h.lock.Now().UTC()
	duration := now.Sub(h.Entry.StartedAt).Seconds()
	res := h.lock.db.WithContext(context.WithoutCancel(ctx)).
		Model(&db.BackupLog{}).
		Where("id = ? AND status = ?", h.Entry.ID, db.StatusRunning).
		Updates(map[string]any{
			"status":           c.Status,
			"completed_at":     now,
			"duration_seconds": duration,
			"error_message":    c.ErrorMessage,
			"processed_count":  c.ProcessedCount,
			"failed_count":     c.FailedCount,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to finish backup log %d: %w", h.Entry.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("backup log %d is no longer running, it was reclaimed as orphaned", h.Entry.ID)
	}

	h.Entry.Status = c.Status
	h.Entry.CompletedAt = &now
	h.Entry.DurationSeconds = &duration
	h.Entry.ErrorMessage = c.ErrorMessage
	h.Entry.ProcessedCount = c.ProcessedCount
	h.Entry.FailedCount = c.FailedCount
	return nil
}

// isContention reports a lost race on the running-row unique index. Two
// transactions that both saw no running row collide either on the index or
// on InnoDB's gap lock.
func isContention(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysqldriver.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry || me.Number == mysqlDeadlock
	}
	return false
}
