// Package report builds the weekly backup report, sends it to Telegram and
// archives a JSON snapshot to S3-compatible storage.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/davexpro/hybrid-backup/internal/metrics"
	"github.com/davexpro/hybrid-backup/internal/status"
)

const (
	reportWindowDays = 7
	maxListedErrors  = 5
	maxErrorLen      = 200
)

type StatusReader interface {
	GetStatus(ctx context.Context) (*status.Status, error)
	GetStatistics(ctx context.Context, windowDays int) (*status.Statistics, error)
}

type Notifier interface {
	Send(ctx context.Context, message string) error
}

type Archive interface {
	Upload(ctx context.Context, filename string, content io.Reader, size int64, contentType string) error
	EnforceRetention(ctx context.Context, retentionHours int) error
}

// Snapshot is the archived JSON document.
type Snapshot struct {
	GeneratedAt time.Time          `json:"generatedAt"`
	Statistics  *status.Statistics `json:"statistics"`
	Status      *status.Status     `json:"status"`
}

type Reporter struct {
	status         StatusReader
	notifier       Notifier
	archive        Archive
	retentionHours int
	loc            *time.Location
	log            logrus.FieldLogger
	Now            func() time.Time
}

// New builds a Reporter. notifier and archive may be nil to disable a sink.
func New(st StatusReader, notifier Notifier, archive Archive, retentionHours int, loc *time.Location, log logrus.FieldLogger) *Reporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Reporter{
		status:         st,
		notifier:       notifier,
		archive:        archive,
		retentionHours: retentionHours,
		loc:            loc,
		log:            log.WithField("component", "report"),
		Now:            time.Now,
	}
}

// Run builds one report and hands it to every configured sink. A failing
// sink does not stop the others; their errors are joined.
func (r *Reporter) Run(ctx context.Context) (err error) {
	defer func() { metrics.ObserveReport(err) }()

	snap, err := r.Snapshot(ctx)
	if err != nil {
		return err
	}

	var errList []error
	if r.notifier != nil {
		if err := r.notifier.Send(ctx, Render(snap, r.loc)); err != nil {
			r.log.WithError(err).Error("Failed to send telegram notification")
			errList = append(errList, err)
		}
	}

	if r.archive != nil {
		if err := r.upload(ctx, snap); err != nil {
			r.log.WithError(err).Error("Failed to archive report")
			errList = append(errList, err)
		}
		if err := r.archive.EnforceRetention(ctx, r.retentionHours); err != nil {
			r.log.WithError(err).Error("Error enforcing retention policy")
			errList = append(errList, err)
		}
	}

	return errors.Join(errList...)
}

func (r *Reporter) Snapshot(ctx context.Context) (*Snapshot, error) {
	stats, err := r.status.GetStatistics(ctx, reportWindowDays)
	if err != nil {
		return nil, fmt.Errorf("failed to compute statistics: %w", err)
	}
	st, err := r.status.GetStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup status: %w", err)
	}
	return &Snapshot{GeneratedAt: r.Now().In(r.loc), Statistics: stats, Status: st}, nil
}

// Filename is the archive object name for a report generated at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("backup_report_%s.json", t.Format("20060102_150405"))
}

func (r *Reporter) upload(ctx context.Context, snap *Snapshot) error {
	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return r.archive.Upload(ctx, Filename(snap.GeneratedAt), bytes.NewReader(body), int64(len(body)), "application/json")
}

// Render formats the report as plain text for chat delivery.
func Render(snap *Snapshot, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Backup Report [%s]\n", snap.GeneratedAt.In(loc).Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Window: last %d days\n\n", snap.Statistics.WindowDays))

	types := make([]string, 0, len(snap.Statistics.ByType))
	for t := range snap.Statistics.ByType {
		types = append(types, t)
	}
	sort.Strings(types)

	if len(types) == 0 {
		sb.WriteString("No backup runs in this window.\n")
	}
	for _, t := range types {
		ts := snap.Statistics.ByType[t]
		sb.WriteString(fmt.Sprintf("[%s] Total: %d, Success: %d, Fail: %d, Running: %d\n",
			t, ts.TotalRuns, ts.SuccessfulRuns, ts.FailedRuns, ts.RunningRuns))
		sb.WriteString(fmt.Sprintf("Success rate: %.1f%%, Avg duration: %s\n",
			ts.SuccessRate*100, humanizeSeconds(ts.AvgDurationSeconds)))
	}
	sb.WriteString("\n")

	st := snap.Status
	if last := st.LastSuccessfulBackup; last != nil && last.CompletedAt != nil {
		sb.WriteString(fmt.Sprintf("✅ Last success: %s (#%d, %d records)\n",
			last.CompletedAt.In(loc).Format("2006-01-02 15:04"), last.ID, last.ProcessedCount))
	} else {
		sb.WriteString("⚠️ No successful backup recorded\n")
	}
	if n := len(st.RunningBackups); n > 0 {
		sb.WriteString(fmt.Sprintf("⏳ Running now: %d\n", n))
	}

	sb.WriteString(fmt.Sprintf("Failures in last 24h: %d\n", len(st.RecentFailures)))
	for i, f := range st.RecentFailures {
		if i == maxListedErrors {
			sb.WriteString(fmt.Sprintf("... and %d more\n", len(st.RecentFailures)-maxListedErrors))
			break
		}
		sb.WriteString(fmt.Sprintf("❌ #%d %s: %s\n", f.ID, f.StartedAt.In(loc).Format("01-02 15:04"), truncate(f.ErrorMessage, maxErrorLen)))
	}
	return sb.String()
}

func humanizeSeconds(s float64) string {
	if s <= 0 {
		return "n/a"
	}
	return time.Duration(s * float64(time.Second)).Round(100 * time.Millisecond).String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
