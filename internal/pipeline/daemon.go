package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"songforge/internal/config"
	"songforge/internal/logging"
	"songforge/internal/songs"
	"songforge/internal/stage"
)

// Daemon loops the runner on a poll interval and enforces single-instance
// execution through a lock file.
type Daemon struct {
	cfg    *config.Config
	store  *songs.Store
	logger *slog.Logger
	runner *Runner

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// DaemonStatus reports daemon runtime information.
type DaemonStatus struct {
	Running      bool
	QueueDBPath  string
	LockFilePath string
	Queue        songs.HealthSummary
	Stages       []stage.Health
}

// NewDaemon constructs a daemon with initialized dependencies.
func NewDaemon(cfg *config.Config, store *songs.Store, logger *slog.Logger, runner *Runner) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || runner == nil {
		return nil, errors.New("daemon requires config, store, logger, and runner")
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "songforge.lock")
	return &Daemon{
		cfg:      cfg,
		store:    store,
		logger:   logger.With(logging.String("component", "daemon")),
		runner:   runner,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches the poll loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another songforge instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running.Store(true)
	d.wg.Add(1)
	go d.loop(runCtx)

	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop ends the poll loop, waits for in-flight work, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

func (d *Daemon) loop(ctx context.Context) {
	defer d.wg.Done()

	pollInterval := time.Duration(d.cfg.Workflow.QueuePollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	errorInterval := time.Duration(d.cfg.Workflow.ErrorRetryInterval) * time.Second
	if errorInterval <= 0 {
		errorInterval = pollInterval
	}

	for {
		stats, err := d.runner.RunPass(ctx)
		wait := pollInterval
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			d.logger.Error("queue pass failed", logging.Error(err))
			wait = errorInterval
		case stats.Processed > 0:
			d.logger.Info("queue pass finished",
				logging.Int("processed", stats.Processed),
				logging.Int("completed", stats.Completed),
				logging.Int("failed", stats.Failed),
				logging.Int("retryable", stats.Retryable),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Status reports the daemon's runtime state plus queue and stage health.
func (d *Daemon) Status(ctx context.Context) DaemonStatus {
	status := DaemonStatus{
		Running:      d.running.Load(),
		QueueDBPath:  filepath.Join(d.cfg.Paths.LogDir, "songs.db"),
		LockFilePath: d.lockPath,
	}
	if summary, err := d.store.Health(ctx); err == nil {
		status.Queue = summary
	}
	status.Stages = d.runner.orchestrator.Health(ctx)
	return status
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}
