package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"

	"github.com/davexpro/hybrid-backup/internal/api"
	"github.com/davexpro/hybrid-backup/internal/db"
	"github.com/davexpro/hybrid-backup/internal/errs"
	"github.com/davexpro/hybrid-backup/internal/pkg/helper"
	"github.com/davexpro/hybrid-backup/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Run one full backup now",
	Action: func(c *cli.Context) error {
		e, err := prepare(c)
		if err != nil {
			return err
		}
		defer e.close()

		if err := db.Migrate(e.gdb); err != nil {
			return err
		}
		m, err := e.manager(c.Context)
		if err != nil {
			return err
		}

		out, err := m.RunFullBackup(c.Context)
		if errors.Is(err, errs.ErrAlreadyRunning) {
			return cli.Exit(err.Error(), 2)
		}
		if out != nil {
			if perr := printJSON(c.App.Writer, out); perr != nil {
				return perr
			}
		}
		if err != nil {
			return fmt.Errorf("backup run failed: %w", err)
		}
		if out.Status == db.StatusFailed {
			return cli.Exit(fmt.Sprintf("backup run %d failed: %s", out.LogID, out.Error), 1)
		}
		return nil
	},
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Run the scheduler and the admin HTTP surface until interrupted",
	Action: func(c *cli.Context) error {
		e, err := prepare(c)
		if err != nil {
			return err
		}
		defer e.close()

		daemon, err := helper.AcquireDaemonLock(e.cfg.Lock.LockFile, e.log)
		if err != nil {
			return fmt.Errorf("could not acquire daemon lock: %w", err)
		}
		defer daemon.Release()

		if err := db.Migrate(e.gdb); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m, err := e.manager(ctx)
		if err != nil {
			return err
		}
		rep, err := e.reporter()
		if err != nil {
			return err
		}

		sched := scheduler.New(e.cfg.Location(), e.log)
		if _, err := sched.AddBackup(e.cfg.Schedule.DailyBackup, m); err != nil {
			return err
		}
		if _, err := sched.AddReport(e.cfg.Schedule.WeeklyReport, rep); err != nil {
			return err
		}
		sched.Start(ctx)

		srv := &http.Server{
			Addr:              e.cfg.HTTP.Addr,
			Handler:           api.NewHandler(m, e.status, e.log).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		srvErr := make(chan error, 1)
		go func() {
			e.log.WithField("addr", srv.Addr).Info("Admin HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srvErr <- err
			}
			close(srvErr)
		}()

		select {
		case <-ctx.Done():
			e.log.Info("Shutting down")
		case err = <-srvErr:
			e.log.WithError(err).Error("Admin HTTP server stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			e.log.WithError(serr).Warn("HTTP shutdown incomplete")
		}
		sched.Stop()
		m.Wait()
		return err
	},
}

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "Print the last success, running backups and recent failures",
	Action: func(c *cli.Context) error {
		e, err := prepare(c)
		if err != nil {
			return err
		}
		defer e.close()

		st, err := e.status.GetStatus(c.Context)
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, st)
	},
}

var logsCommand = &cli.Command{
	Name:  "logs",
	Usage: "Print backup log entries, newest first",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 50, Usage: "Number of entries (max 500)"},
	},
	Action: func(c *cli.Context) error {
		e, err := prepare(c)
		if err != nil {
			return err
		}
		defer e.close()

		logs, err := e.status.GetLogs(c.Context, c.Int("limit"))
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, logs)
	},
}

var statsCommand = &cli.Command{
	Name:  "stats",
	Usage: "Print per-type run statistics over a trailing window",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "window-days", Aliases: []string{"w"}, Value: 7, Usage: "Window size in days (max 365)"},
	},
	Action: func(c *cli.Context) error {
		e, err := prepare(c)
		if err != nil {
			return err
		}
		defer e.close()

		stats, err := e.status.GetStatistics(c.Context, c.Int("window-days"))
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, stats)
	},
}

var reportCommand = &cli.Command{
	Name:  "report",
	Usage: "Build the weekly report once and deliver it",
	Action: func(c *cli.Context) error {
		e, err := prepare(c)
		if err != nil {
			return err
		}
		defer e.close()

		rep, err := e.reporter()
		if err != nil {
			return err
		}
		return rep.Run(c.Context)
	},
}

var migrateCommand = &cli.Command{
	Name:  "migrate",
	Usage: "Create or update the destination schema",
	Action: func(c *cli.Context) error {
		e, err := prepare(c)
		if err != nil {
			return err
		}
		defer e.close()

		if err := db.Migrate(e.gdb); err != nil {
			return err
		}
		e.log.Info("Schema is up to date")
		return nil
	},
}

func printJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
