package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/davexpro/hybrid-backup/internal/backup"
	"github.com/davexpro/hybrid-backup/internal/config"
	"github.com/davexpro/hybrid-backup/internal/db"
	"github.com/davexpro/hybrid-backup/internal/logging"
	"github.com/davexpro/hybrid-backup/internal/mapper"
	"github.com/davexpro/hybrid-backup/internal/pkg/helper"
	"github.com/davexpro/hybrid-backup/internal/report"
	"github.com/davexpro/hybrid-backup/internal/runlock"
	"github.com/davexpro/hybrid-backup/internal/source"
	"github.com/davexpro/hybrid-backup/internal/status"
)

// env carries what every command needs: config, logger and the destination.
type env struct {
	cfg     *config.Config
	log     *logrus.Logger
	gdb     *gorm.DB
	status  *status.Service
	closers []func()
}

func prepare(c *cli.Context) (*env, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(cfg.Log, c.App.ErrWriter)
	if err != nil {
		return nil, err
	}

	gdb, err := db.Open(cfg.MySQL, log)
	if err != nil {
		return nil, err
	}

	e := &env{
		cfg:    cfg,
		log:    log,
		gdb:    gdb,
		status: status.New(gdb, cfg.Lock.StaleAfter),
	}
	e.closers = append(e.closers, func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return e, nil
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// manager connects the document source and builds the orchestrator.
func (e *env) manager(ctx context.Context) (*backup.Manager, error) {
	store, err := source.Connect(ctx, e.cfg.Source)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, func() {
		if err := store.Close(context.Background()); err != nil {
			e.log.WithError(err).Warn("Failed to disconnect from source")
		}
	})

	lock := runlock.New(e.gdb, e.cfg.Lock.StaleAfter, e.log)
	sources := backup.Sources{
		Users:    store.Users(),
		Profiles: store.Profiles(),
		Emotions: store.Emotions(),
		Sessions: store.Sessions(),
	}
	return backup.NewManager(backup.NewDurableLock(lock), db.NewDestination(e.gdb), sources, mapper.New(), e.log), nil
}

// reporter wires the enabled sinks. Archiving needs an endpoint.
func (e *env) reporter() (*report.Reporter, error) {
	notifier := helper.NewTelegramSender(e.cfg.Telegram.BotToken, e.cfg.Telegram.ChatID)
	if !notifier.Enabled() {
		e.log.Info("Telegram is not configured, report will not be sent")
	}

	var archive report.Archive
	if e.cfg.R2.Endpoint != "" {
		store, err := helper.NewStorage(e.cfg.R2, e.log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		archive = store
	}

	return report.New(e.status, notifier, archive, e.cfg.Retention.Hours, e.cfg.Location(), e.log), nil
}
