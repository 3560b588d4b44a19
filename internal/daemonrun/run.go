package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"lecturebook/internal/config"
	"lecturebook/internal/daemon"
	"lecturebook/internal/events"
	"lecturebook/internal/jobs"
	"lecturebook/internal/logging"
	"lecturebook/internal/notifications"
	"lecturebook/internal/pipeline"
	"lecturebook/internal/preflight"
)

const (
	defaultPollInterval = 2 * time.Second
	currentLogName      = "lecturebook.log"
)

// Options configures server process runtime behavior.
type Options struct {
	LogLevel     string
	PollInterval time.Duration
	// Watch overrides cfg.Watch.InboxDir when set.
	Watch string
}

// Run starts the lecturebook server and blocks until ctx is cancelled or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if strings.TrimSpace(opts.Watch) != "" {
		cfg.Watch.InboxDir = opts.Watch
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("lecturebook-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update lecturebook.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "lecturebook-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: cfg.JobLogDir(), Pattern: "*.log"},
	)
	pidPath := filepath.Join(cfg.Paths.DataDir, "lecturebook.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := jobs.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}
	defer store.Close()

	built, err := pipeline.NewFromConfig(signalCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	defer built.Close()

	publishers := events.Fanout{notifications.NewPublisher(cfg.Events)}
	defer publishers.Close()
	var daemonOpts []daemon.Option
	if strings.TrimSpace(cfg.Events.NATSURL) != "" {
		nats, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logger)
		if err != nil {
			logging.WarnWithContext(logger, "nats unavailable; events disabled", "nats_connect_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check events.nats_url"),
				logging.String(logging.FieldImpact, "jobs run without published events or NATS submissions"),
			)
		} else {
			publishers = append(publishers, nats)
			daemonOpts = append(daemonOpts, daemon.WithNATS(nats.Conn()))
		}
	}

	supervisor := jobs.New(store, built.Orchestrator, built.Store, logger,
		jobs.WithMaxConcurrent(cfg.Jobs.MaxConcurrent),
		jobs.WithPollInterval(opts.PollInterval),
		jobs.WithPublisher(publishers),
		jobs.WithJobLogs(cfg.JobLogDir(), cfg.Logging.Format, "debug"),
	)
	d, err := daemon.New(cfg, supervisor, logger, daemonOpts...)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return err
	}
	defer d.Stop()

	<-signalCtx.Done()
	logger.Info("lecturebook server shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// CurrentLogPath returns the link to the log file of the latest serve run.
func CurrentLogPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, currentLogName)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, currentLogName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.String("llm_provider", cfg.LLM.Provider),
		logging.Bool("verse_server_configured", strings.TrimSpace(cfg.Verification.FastPathCommand) != ""),
		logging.Bool("nats_configured", strings.TrimSpace(cfg.Events.NATSURL) != ""),
	}
	for _, b := range preflight.Binaries(cfg) {
		key := strings.ToLower(strings.ReplaceAll(b.Name, " ", "_"))
		attrs = append(attrs, logging.Bool(key+"_available", preflight.CheckBinary(b).Passed))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
