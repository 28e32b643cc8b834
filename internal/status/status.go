// Package status answers read-only questions about backup_logs for the admin
// surface and the weekly report. Nothing here takes locks, so every query is
// safe while a run is in progress.
package status

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/davexpro/hybrid-backup/internal/db"
)

const (
	DefaultLogLimit = 50
	MaxLogLimit     = 500

	DefaultWindowDays = 7
	MaxWindowDays     = 365

	recentFailureWindow = 24 * time.Hour
)

type Service struct {
	db         *gorm.DB
	staleAfter time.Duration
	Now        func() time.Time
}

func New(gdb *gorm.DB, staleAfter time.Duration) *Service {
	return &Service{db: gdb, staleAfter: staleAfter, Now: time.Now}
}

type Status struct {
	LastSuccessfulBackup *db.BackupLog  `json:"lastSuccessfulBackup"`
	RunningBackups       []db.BackupLog `json:"runningBackups"`
	RecentFailures       []db.BackupLog `json:"recentFailures"`
}

type TypeStats struct {
	TotalRuns          int64      `json:"totalRuns"`
	SuccessfulRuns     int64      `json:"successfulRuns"`
	FailedRuns         int64      `json:"failedRuns"`
	RunningRuns        int64      `json:"runningRuns"`
	SuccessRate        float64    `json:"successRate"`
	AvgDurationSeconds float64    `json:"avgDurationSeconds"`
	LastSuccessAt      *time.Time `json:"lastSuccessAt,omitempty"`
}

type Statistics struct {
	WindowDays  int                  `json:"windowDays"`
	Since       time.Time            `json:"since"`
	ByType      map[string]TypeStats `json:"byType"`
	GeneratedAt time.Time            `json:"generatedAt"`
}

// GetStatus returns the latest success, the live running entries and the
// failures of the last 24 hours. A running entry past the staleness
// threshold is left out; the next lock acquisition reclaims it.
func (s *Service) GetStatus(ctx context.Context) (*Status, error) {
	now := s.Now().UTC()
	q := s.db.WithContext(ctx)
	st := &Status{
		RunningBackups: []db.BackupLog{},
		RecentFailures: []db.BackupLog{},
	}

	var last []db.BackupLog
	if err := q.Where("status = ?", db.StatusSuccess).
		Order("completed_at DESC").
		Limit(1).
		Find(&last).Error; err != nil {
		return nil, fmt.Errorf("failed to query last successful backup: %w", err)
	}
	if len(last) > 0 {
		st.LastSuccessfulBackup = &last[0]
	}

	if err := q.Where("status = ? AND started_at > ?", db.StatusRunning, now.Add(-s.staleAfter)).
		Order("started_at DESC").
		Find(&st.RunningBackups).Error; err != nil {
		return nil, fmt.Errorf("failed to query running backups: %w", err)
	}

	if err := q.Where("status = ? AND completed_at >= ?", db.StatusFailed, now.Add(-recentFailureWindow)).
		Order("completed_at DESC").
		Find(&st.RecentFailures).Error; err != nil {
		return nil, fmt.Errorf("failed to query recent failures: %w", err)
	}
	return st, nil
}

// GetLogs returns up to limit entries, newest first.
func (s *Service) GetLogs(ctx context.Context, limit int) ([]db.BackupLog, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}

	logs := []db.BackupLog{}
	if err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to query backup logs: %w", err)
	}
	return logs, nil
}

// GetStatistics aggregates the trailing window per backup type. The average
// duration only covers finished runs.
func (s *Service) GetStatistics(ctx context.Context, windowDays int) (*Statistics, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if windowDays > MaxWindowDays {
		windowDays = MaxWindowDays
	}
	now := s.Now().UTC()
	since := now.AddDate(0, 0, -windowDays)

	var logs []db.BackupLog
	err := s.db.WithContext(ctx).
		Select("backup_type", "status", "completed_at", "duration_seconds").
		Where("started_at >= ?", since).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query backup statistics: %w", err)
	}

	return &Statistics{
		WindowDays:  windowDays,
		Since:       since,
		ByType:      aggregate(logs),
		GeneratedAt: now,
	}, nil
}

// aggregate folds log entries into per-type counters. SuccessRate is over
// finished runs only.
func aggregate(logs []db.BackupLog) map[string]TypeStats {
	byType := map[string]TypeStats{}
	durations := map[string]float64{}
	finished := map[string]int64{}

	for _, l := range logs {
		ts := byType[l.BackupType]
		ts.TotalRuns++
		switch l.Status {
		case db.StatusSuccess:
			ts.SuccessfulRuns++
			if l.CompletedAt != nil && (ts.LastSuccessAt == nil || l.CompletedAt.After(*ts.LastSuccessAt)) {
				at := *l.CompletedAt
				ts.LastSuccessAt = &at
			}
		case db.StatusFailed:
			ts.FailedRuns++
		case db.StatusRunning:
			ts.RunningRuns++
		}
		if l.Status != db.StatusRunning && l.DurationSeconds != nil {
			durations[l.BackupType] += *l.DurationSeconds
			finished[l.BackupType]++
		}
		byType[l.BackupType] = ts
	}

	for typ, ts := range byType {
		if done := ts.SuccessfulRuns + ts.FailedRuns; done > 0 {
			ts.SuccessRate = float64(ts.SuccessfulRuns) / float64(done)
		}
		if n := finished[typ]; n > 0 {
			ts.AvgDurationSeconds = durations[typ] / float64(n)
		}
		byType[typ] = ts
	}
	return byType
}
