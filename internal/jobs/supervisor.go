package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lecturebook/internal/checkpoint"
	"lecturebook/internal/contracts"
	"lecturebook/internal/events"
	"lecturebook/internal/logging"
	"lecturebook/internal/pipeline"
	"lecturebook/internal/services"
)

const (
	defaultMaxConcurrent = 2
	defaultWaitInterval  = 500 * time.Millisecond
	statusLogTail        = 20
)

// Runner executes one job. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req pipeline.RunRequest) (*pipeline.Result, error)
}

// Supervisor maps jobs onto pipeline runs and tracks them until they finish.
type Supervisor struct {
	store       *Store
	runner      Runner
	checkpoints *checkpoint.Store
	publisher   events.Publisher
	logger      *slog.Logger
	root        *slog.Logger
	jobLogs     jobLogSettings

	sem          chan struct{}
	pollInterval time.Duration
	waitInterval time.Duration
	now          func() time.Time
	newID        func() string

	mu      sync.RWMutex
	active  map[string]*handle
	running bool
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// handle is the in-process registry entry of a dispatched job.
type handle struct {
	cancelled  atomic.Bool
	cancelOnce sync.Once
	cancelCh   chan struct{}
	done       chan struct{}
}

func newHandle() *handle {
	return &handle{cancelCh: make(chan struct{}), done: make(chan struct{})}
}

func (h *handle) requestCancel() {
	h.cancelled.Store(true)
	h.cancelOnce.Do(func() { close(h.cancelCh) })
}

// Option configures optional Supervisor behavior.
type Option func(*Supervisor)

// WithPublisher sends job events to p.
func WithPublisher(p events.Publisher) Option {
	return func(s *Supervisor) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithJobLogs writes each job's records, including its pipeline run, to
// JobLogPath(dir, id) in addition to the main logger.
func WithJobLogs(dir, format, level string) Option {
	return func(s *Supervisor) {
		s.jobLogs = jobLogSettings{dir: strings.TrimSpace(dir), format: format, level: level}
	}
}

// WithMaxConcurrent bounds how many jobs run at once.
func WithMaxConcurrent(n int) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.sem = make(chan struct{}, n)
		}
	}
}

// WithPollInterval makes a started Supervisor pick up jobs queued by other
// processes. Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(s *Supervisor) { s.pollInterval = d }
}

// WithWaitInterval sets how often Wait re-reads jobs it does not own.
func WithWaitInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.waitInterval = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides job id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Supervisor) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// New constructs a Supervisor. checkpoints may be nil when Retry and Purge
// are not needed.
func New(store *Store, runner Runner, checkpoints *checkpoint.Store, logger *slog.Logger, opts ...Option) *Supervisor {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Supervisor{
		store:        store,
		runner:       runner,
		checkpoints:  checkpoints,
		publisher:    events.Nop{},
		logger:       logging.NewComponentLogger(logger, "jobs"),
		root:         logger,
		sem:          make(chan struct{}, defaultMaxConcurrent),
		waitInterval: defaultWaitInterval,
		now:          time.Now,
		newID:        uuid.NewString,
		active:       make(map[string]*handle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start recovers jobs a dead process left running and begins executing
// submitted jobs.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("supervisor already running")
	}
	s.mu.Unlock()

	if err := s.recoverInterrupted(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.running = true
	if s.pollInterval > 0 {
		s.wg.Add(1)
		go s.poll(s.baseCtx)
	}
	s.logger.Info("job supervisor started",
		logging.String(logging.FieldEventType, "supervisor_start"),
		logging.Int("max_concurrent", cap(s.sem)),
		logging.Duration("poll_interval", s.pollInterval),
	)
	return nil
}

// Stop cancels running jobs and waits for them to record their outcome.
// Jobs still waiting for a worker stay queued.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *Supervisor) recoverInterrupted(ctx context.Context) error {
	ids, err := s.store.FailInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted jobs: %w", err)
	}
	for _, id := range ids {
		logging.WarnWithContext(s.logger, "job interrupted by a previous process", "job_interrupted",
			logging.String(logging.FieldJobID, id),
			logging.String(logging.FieldErrorCode, string(services.CauseInterrupted)),
			logging.String(logging.FieldErrorHint, "retry the job to resume from its checkpoints"),
			logging.String(logging.FieldImpact, "job marked failed"),
		)
		s.publish(ctx, events.Event{
			Type:      events.JobFailed,
			JobID:     id,
			Status:    string(StatusFailed),
			ErrorCode: string(services.CauseInterrupted),
			Message:   InterruptedMessage,
		})
	}
	return nil
}

func (s *Supervisor) poll(ctx context.Context) {
	defer s.wg.Done()
	for {
		queued, err := s.store.List(ctx, StatusQueued)
		if err != nil && ctx.Err() == nil {
			s.logger.Error("failed to list queued jobs",
				logging.Error(err),
				logging.String(logging.FieldEventType, "job_poll_failed"),
				logging.String(logging.FieldErrorHint, "check job database access"),
			)
		}
		for _, job := range queued {
			s.dispatch(job)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.pollInterval):
		}
	}
}

// Submit validates and records a new job. A started Supervisor runs it as
// soon as a worker is free; otherwise it stays queued for another process.
func (s *Supervisor) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if len(req.Items) == 0 {
		return "", services.Wrap(services.ErrValidation, "jobs", "submit", "job has no source items", nil)
	}
	items := make([]contracts.SourceItem, len(req.Items))
	for i, item := range req.Items {
		item.Source = strings.TrimSpace(item.Source)
		if item.Source == "" {
			return "", services.Wrap(services.ErrValidation, "jobs", "submit", fmt.Sprintf("item %d has no source", i), nil)
		}
		item.Index = i
		items[i] = item
	}

	job := &Job{
		ID:        s.newID(),
		Status:    StatusQueued,
		Title:     strings.TrimSpace(req.Title),
		Speaker:   strings.TrimSpace(req.Speaker),
		Items:     items,
		Options:   req.Options,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, job); err != nil {
		return "", err
	}
	s.logger.Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("items", len(items)),
	)
	s.publish(ctx, events.Event{Type: events.JobSubmitted, JobID: job.ID, Status: string(StatusQueued)})
	s.dispatch(job)
	return job.ID, nil
}

// Status returns the job with its item progress and the tail of its
// progress log.
func (s *Supervisor) Status(ctx context.Context, id string) (*Snapshot, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.store.Items(ctx, id)
	if err != nil {
		return nil, err
	}
	log, err := s.store.Events(ctx, id, statusLogTail)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Job: job, Items: items, Log: log}, nil
}

// List returns jobs in creation order, optionally filtered by status.
func (s *Supervisor) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	return s.store.List(ctx, statuses...)
}

// Cancel requests cooperative cancellation. Queued jobs are cancelled at once;
// running jobs stop at their next stage boundary, including jobs owned by
// another process.
func (s *Supervisor) Cancel(ctx context.Context, id string) error {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return services.Wrap(services.ErrValidation, "jobs", "cancel", fmt.Sprintf("job %s is already %s", id, job.Status), nil)
	}
	if err := s.store.RequestCancel(ctx, id); err != nil {
		return err
	}

	s.mu.RLock()
	h := s.active[id]
	s.mu.RUnlock()
	if h != nil {
		h.requestCancel()
	}

	if job.Status == StatusQueued {
		cancelled, err := s.store.CancelQueued(ctx, id)
		if err != nil {
			return err
		}
		if cancelled {
			s.logger.Info("queued job cancelled",
				logging.String(logging.FieldEventType, "job_cancelled"),
				logging.String(logging.FieldJobID, id),
			)
			s.publish(ctx, events.Event{Type: events.JobCancelled, JobID: id, Status: string(StatusCancelled), ErrorCode: string(services.CauseCancelled)})
			return nil
		}
	}
	s.logger.Info("job cancellation requested",
		logging.String(logging.FieldEventType, "job_cancel_requested"),
		logging.String(logging.FieldJobID, id),
		logging.Bool("owned", h != nil),
	)
	return nil
}

// Purge deletes a finished job together with its checkpoints.
func (s *Supervisor) Purge(ctx context.Context, id string) error {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		return services.Wrap(services.ErrValidation, "jobs", "purge", fmt.Sprintf("job %s is still %s; cancel it first", id, job.Status), nil)
	}
	if s.checkpoints != nil {
		if err := s.checkpoints.Purge(ctx, id); err != nil {
			return services.Wrap(services.ErrCheckpoint, "jobs", "purge", "remove checkpoints of "+id, err)
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if s.jobLogs.dir != "" {
		if err := os.Remove(JobLogPath(s.jobLogs.dir, id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.WarnWithContext(s.logger, "job log not removed", "job_log_remove_failed",
				logging.String(logging.FieldJobID, id),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "delete the file by hand"),
				logging.String(logging.FieldImpact, "a stale log file remains in the log directory"),
			)
		}
	}
	s.logger.Info("job purged",
		logging.String(logging.FieldEventType, "job_purged"),
		logging.String(logging.FieldJobID, id),
	)
	s.publish(ctx, events.Event{Type: events.JobPurged, JobID: id})
	return nil
}

// Wait blocks until the job reaches a terminal status.
func (s *Supervisor) Wait(ctx context.Context, id string) (*Job, error) {
	for {
		job, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}

		s.mu.RLock()
		h := s.active[id]
		s.mu.RUnlock()
		var finished <-chan struct{}
		if h != nil {
			finished = h.done
		}

		timer := time.NewTimer(s.waitInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-finished:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (s *Supervisor) publish(ctx context.Context, ev events.Event) {
	if ev.Time.IsZero() {
		ev.Time = s.now().UTC()
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Debug("job event not published",
			logging.String("event", string(ev.Type)),
			logging.String(logging.FieldJobID, ev.JobID),
			logging.Error(err),
		)
	}
}
