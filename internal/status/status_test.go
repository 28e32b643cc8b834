package status

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davexpro/hybrid-backup/internal/db"
	"github.com/davexpro/hybrid-backup/internal/db/dbtest"
)

var now = time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)

var logColumns = []string{"id", "run_id", "backup_type", "status", "started_at", "completed_at", "duration_seconds", "error_message"}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	gdb, mock := dbtest.New(t)
	s := New(gdb, 2*time.Hour)
	s.Now = func() time.Time { return now }
	return s, mock
}

func TestGetStatus(t *testing.T) {
	s, mock := newTestService(t)
	done := now.Add(-time.Hour)

	mock.ExpectQuery("SELECT \\* FROM `backup_logs` WHERE status = \\? ORDER BY completed_at DESC LIMIT").
		WillReturnRows(sqlmock.NewRows(logColumns).
			AddRow(4, "r4", db.TypeFull, db.StatusSuccess, done.Add(-time.Minute), done, 60.0, ""))
	mock.ExpectQuery("SELECT \\* FROM `backup_logs` WHERE status = \\? AND started_at > \\? ORDER BY started_at DESC").
		WithArgs(db.StatusRunning, now.Add(-2*time.Hour)).
		WillReturnRows(sqlmock.NewRows(logColumns).
			AddRow(6, "r6", db.TypeFull, db.StatusRunning, now.Add(-5*time.Minute), nil, nil, ""))
	mock.ExpectQuery("SELECT \\* FROM `backup_logs` WHERE status = \\? AND completed_at >= \\? ORDER BY completed_at DESC").
		WithArgs(db.StatusFailed, now.Add(-24*time.Hour)).
		WillReturnRows(sqlmock.NewRows(logColumns).
			AddRow(5, "r5", db.TypeFull, db.StatusFailed, done, done, 3.5, "SOURCE_OPEN_ERROR [user_profiles]: cannot open collection"))

	st, err := s.GetStatus(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st.LastSuccessfulBackup)
	assert.Equal(t, uint(4), st.LastSuccessfulBackup.ID)
	require.Len(t, st.RunningBackups, 1)
	assert.Equal(t, uint(6), st.RunningBackups[0].ID)
	assert.Nil(t, st.RunningBackups[0].CompletedAt)
	require.Len(t, st.RecentFailures, 1)
	assert.Contains(t, st.RecentFailures[0].ErrorMessage, "user_profiles")
}

func TestGetStatus_EmptyHistory(t *testing.T) {
	s, mock := newTestService(t)
	for i := 0; i < 3; i++ {
		mock.ExpectQuery("FROM `backup_logs`").WillReturnRows(sqlmock.NewRows(logColumns))
	}

	st, err := s.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st.LastSuccessfulBackup)
	assert.NotNil(t, st.RunningBackups)
	assert.Empty(t, st.RunningBackups)
	assert.NotNil(t, st.RecentFailures)
}

func TestGetLogs_Limits(t *testing.T) {
	for _, tc := range []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, DefaultLogLimit},
		{"negative", -3, DefaultLogLimit},
		{"explicit", 10, 10},
		{"capped", 10000, MaxLogLimit},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newTestService(t)
			mock.ExpectQuery("SELECT \\* FROM `backup_logs` ORDER BY started_at DESC,id DESC LIMIT \\?").
				WithArgs(tc.want).
				WillReturnRows(sqlmock.NewRows(logColumns).
					AddRow(2, "r2", db.TypeFull, db.StatusSuccess, now, now, 1.0, "").
					AddRow(1, "r1", db.TypeFull, db.StatusFailed, now.Add(-time.Hour), now.Add(-time.Hour), 1.0, "boom"))

			logs, err := s.GetLogs(context.Background(), tc.limit)
			require.NoError(t, err)
			require.Len(t, logs, 2)
			assert.Equal(t, uint(2), logs[0].ID)
		})
	}
}

var statColumns = []string{"backup_type", "status", "completed_at", "duration_seconds"}

func TestGetStatistics(t *testing.T) {
	s, mock := newTestService(t)
	first := now.Add(-26 * time.Hour)
	second := now.Add(-2 * time.Hour)

	mock.ExpectQuery("SELECT `backup_type`,`status`,`completed_at`,`duration_seconds` FROM `backup_logs` WHERE started_at >= \\?").
		WithArgs(now.AddDate(0, 0, -7)).
		WillReturnRows(sqlmock.NewRows(statColumns).
			AddRow(db.TypeFull, db.StatusSuccess, second, 45.0).
			AddRow(db.TypeFull, db.StatusSuccess, first, 40.0))

	stats, err := s.GetStatistics(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.WindowDays)

	full, ok := stats.ByType[db.TypeFull]
	require.True(t, ok)
	assert.Equal(t, int64(2), full.TotalRuns)
	assert.Equal(t, int64(2), full.SuccessfulRuns)
	assert.Equal(t, int64(0), full.FailedRuns)
	assert.Equal(t, 1.0, full.SuccessRate)
	assert.Equal(t, 42.5, full.AvgDurationSeconds)
	require.NotNil(t, full.LastSuccessAt)
	assert.True(t, second.Equal(*full.LastSuccessAt))
}

func TestGetStatistics_WindowBounds(t *testing.T) {
	for _, tc := range []struct {
		in, want int
	}{
		{0, DefaultWindowDays},
		{-1, DefaultWindowDays},
		{30, 30},
		{1000, MaxWindowDays},
	} {
		s, mock := newTestService(t)
		mock.ExpectQuery("FROM `backup_logs` WHERE started_at >= \\?").
			WithArgs(now.AddDate(0, 0, -tc.want)).
			WillReturnRows(sqlmock.NewRows(statColumns))

		stats, err := s.GetStatistics(context.Background(), tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, stats.WindowDays)
		assert.Empty(t, stats.ByType)
	}
}

func ptr[T any](v T) *T { return &v }

func TestAggregate(t *testing.T) {
	done := now.Add(-time.Hour)
	earlier := now.Add(-48 * time.Hour)

	stats := aggregate([]db.BackupLog{
		{BackupType: db.TypeFull, Status: db.StatusSuccess, CompletedAt: &earlier, DurationSeconds: ptr(30.0)},
		{BackupType: db.TypeFull, Status: db.StatusFailed, CompletedAt: &done, DurationSeconds: ptr(10.0)},
		{BackupType: db.TypeFull, Status: db.StatusSuccess, CompletedAt: &done, DurationSeconds: ptr(50.0)},
		{BackupType: db.TypeFull, Status: db.StatusRunning},
		{BackupType: "incremental", Status: db.StatusRunning},
	})

	full := stats[db.TypeFull]
	assert.Equal(t, int64(4), full.TotalRuns)
	assert.Equal(t, int64(2), full.SuccessfulRuns)
	assert.Equal(t, int64(1), full.FailedRuns)
	assert.Equal(t, int64(1), full.RunningRuns)
	assert.InDelta(t, 2.0/3.0, full.SuccessRate, 1e-9)
	assert.Equal(t, 30.0, full.AvgDurationSeconds)
	require.NotNil(t, full.LastSuccessAt)
	assert.True(t, done.Equal(*full.LastSuccessAt))

	inc := stats["incremental"]
	assert.Equal(t, int64(1), inc.RunningRuns)
	assert.Zero(t, inc.SuccessRate)
	assert.Zero(t, inc.AvgDurationSeconds)
	assert.Nil(t, inc.LastSuccessAt)
}

func TestAggregate_Empty(t *testing.T) {
	assert.Empty(t, aggregate(nil))
}
