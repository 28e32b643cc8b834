package helper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

// ErrDaemonRunning means another serve process on this host holds the lock.
var ErrDaemonRunning = errors.New("daemon already running")

// DaemonLock keeps one serve process per host. It does not serialize backup
// runs; backup_logs does that across hosts.
type DaemonLock struct {
	file *flock.Flock
	log  logrus.FieldLogger
}

func AcquireDaemonLock(lockPath string, log logrus.FieldLogger) (*DaemonLock, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	file := flock.New(lockPath)
	locked, err := file.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", file.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s is held by another process", ErrDaemonRunning, file.Path())
	}

	log = log.WithField("lock_file", file.Path())
	log.Info("Daemon lock acquired")
	return &DaemonLock{file: file, log: log}, nil
}

func (l *DaemonLock) Path() string {
	return l.file.Path()
}

// Release is safe to call more than once.
func (l *DaemonLock) Release() {
	if !l.file.Locked() {
		return
	}
	if err := l.file.Unlock(); err != nil {
		l.log.WithError(err).Warn("Failed to release daemon lock")
		return
	}
	l.log.Info("Daemon lock released")
}
