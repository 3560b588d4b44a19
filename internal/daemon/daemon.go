package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/nats-io/nats.go"

	"lecturebook/internal/config"
	"lecturebook/internal/contracts"
	"lecturebook/internal/events"
	"lecturebook/internal/jobs"
	"lecturebook/internal/logging"
	"lecturebook/internal/pipeline"
)

const lockFileName = "lecturebook.lock"

// Daemon runs the job supervisor as the single long-lived process and feeds
// it from the NATS submit subject and the inbox directory.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	supervisor *jobs.Supervisor
	nc         *nats.Conn
	options    pipeline.Options

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	sub     *nats.Subscription
	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	JobDBPath    string
	LockFilePath string
	InboxDir     string
	NATS         bool
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithNATS subscribes the daemon to job submissions on nc.
func WithNATS(nc *nats.Conn) Option {
	return func(d *Daemon) { d.nc = nc }
}

// WithOptions sets the job options applied to submissions that arrive over
// NATS or through the inbox.
func WithOptions(opts pipeline.Options) Option {
	return func(d *Daemon) { d.options = opts }
}

// LockPath returns the single-instance lock file for cfg.
func LockPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, lockFileName)
}

// TryLock takes the single-instance lock without blocking. The returned
// lock is nil when another process holds it.
func TryLock(cfg *config.Config) (*flock.Flock, error) {
	fl := flock.New(LockPath(cfg))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return fl, nil
}

// New constructs a daemon around a supervisor that has not been started.
func New(cfg *config.Config, supervisor *jobs.Supervisor, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || supervisor == nil {
		return nil, errors.New("daemon requires config and job supervisor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		supervisor: supervisor,
		options:    pipeline.OptionsFromConfig(cfg),
		lockPath:   LockPath(cfg),
		lock:       flock.New(LockPath(cfg)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock, starts the supervisor, and begins
// accepting submissions.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another lecturebook server is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.supervisor.Start(d.ctx); err != nil {
		d.release()
		return fmt.Errorf("start supervisor: %w", err)
	}

	if d.nc != nil {
		sub, err := events.SubscribeSubmissions(d.nc, d.cfg.Events.SubjectPrefix, d.logger, d.submitFromMessage)
		if err != nil {
			d.supervisor.Stop()
			d.release()
			return fmt.Errorf("subscribe submissions: %w", err)
		}
		d.sub = sub
	}

	if strings.TrimSpace(d.cfg.Watch.InboxDir) != "" {
		if err := d.watchInbox(d.ctx); err != nil {
			d.stopIntake()
			d.supervisor.Stop()
			d.release()
			return fmt.Errorf("watch inbox: %w", err)
		}
	}

	d.running.Store(true)
	d.logger.Info("lecturebook daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.Bool("nats", d.sub != nil),
		logging.String("inbox", d.cfg.Watch.InboxDir),
	)
	return nil
}

// Stop stops intake, lets the supervisor record running jobs as
// interrupted, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.stopIntake()
	d.supervisor.Stop()
	d.release()
	d.running.Store(false)
	d.logger.Info("lecturebook daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

func (d *Daemon) stopIntake() {
	if d.sub != nil {
		if err := d.sub.Unsubscribe(); err != nil {
			d.logger.Warn("failed to unsubscribe from submissions",
				logging.Error(err),
				logging.String(logging.FieldEventType, "nats_unsubscribe_failed"),
				logging.String(logging.FieldErrorHint, "the subscription ends with the connection"),
			)
		}
		d.sub = nil
	}
	if d.watcher != nil {
		_ = d.watcher.Close()
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.watcher = nil
}

func (d *Daemon) release() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no server is running"),
		)
	}
	d.ctx = nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		JobDBPath:    d.cfg.Jobs.DBPath,
		LockFilePath: d.lockPath,
		InboxDir:     d.cfg.Watch.InboxDir,
		NATS:         d.sub != nil,
	}
}

func (d *Daemon) submitFromMessage(ctx context.Context, sub events.Submission) (string, error) {
	items := make([]contracts.SourceItem, 0, len(sub.Sources))
	for _, source := range sub.Sources {
		items = append(items, contracts.SourceItem{Source: source})
	}
	return d.supervisor.Submit(ctx, jobs.SubmitRequest{
		Items:   items,
		Title:   sub.Title,
		Speaker: sub.Speaker,
		Options: d.options,
	})
}
