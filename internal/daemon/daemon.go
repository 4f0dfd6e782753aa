package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"scenegen/internal/api"
	"scenegen/internal/config"
	"scenegen/internal/genqueue"
	"scenegen/internal/logging"
	"scenegen/internal/metrics"
	"scenegen/internal/notifications"
	"scenegen/internal/orchestrator"
	"scenegen/internal/preflight"
	"scenegen/internal/store"
	"scenegen/internal/workdir"
)

// staleWorkDirAge bounds how long non-scene scratch directories survive.
const staleWorkDirAge = 24 * time.Hour

// Daemon coordinates the background scene services and enforces
// single-instance execution.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *store.Store
	orchestrator *orchestrator.Manager
	jobs         *genqueue.Queue
	metrics      *metrics.Metrics
	notifier     notifications.Service
	service      *api.Service
	apiSrv       *apiServer
	logPath      string

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
}

// Option customizes optional daemon collaborators.
type Option func(*Daemon)

// WithJobs exposes generation jobs through the API and metrics.
func WithJobs(q *genqueue.Queue) Option {
	return func(d *Daemon) { d.jobs = q }
}

// WithMetrics serves reg on /metrics.
func WithMetrics(reg *metrics.Metrics) Option {
	return func(d *Daemon) { d.metrics = reg }
}

// WithNotifier enables the test notification endpoint.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) {
		if n != nil {
			d.notifier = n
		}
	}
}

// WithLogPath records the daemon log file served to log tail requests.
func WithLogPath(path string) Option {
	return func(d *Daemon) { d.logPath = path }
}

// New constructs a daemon around an already wired orchestrator.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, mgr *orchestrator.Manager, opts ...Option) (*Daemon, error) {
	if cfg == nil || st == nil || mgr == nil {
		return nil, errors.New("daemon requires config, store, and orchestrator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	d := &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		store:        st,
		orchestrator: mgr,
		notifier:     notifications.NewService(nil),
		lockPath:     cfg.LockPath(),
		lock:         flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}

	var jobs api.JobReader
	if d.jobs != nil {
		jobs = d.jobs
	}
	d.service = api.NewService(mgr, st, jobs, cfg.Assembly.DefaultOverlapSeconds)
	d.apiSrv = newAPIServer(cfg.API, d.service, d, d.metrics, logger)
	return d, nil
}

// Service returns the API facade shared with the IPC server.
func (d *Daemon) Service() *api.Service {
	return d.service
}

// Start acquires the daemon lock, reclaims interrupted scenes, and begins
// serving the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scenegen daemon instance is already running")
	}

	d.runPreflight(ctx)
	d.cleanWorkDir(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.orchestrator.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start orchestrator: %w", err)
	}
	if err := d.apiSrv.start(runCtx); err != nil {
		d.orchestrator.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("scenegen daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

// Stop cancels active scene runs, stops the API, and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.apiSrv.stop()
	d.orchestrator.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "next daemon start may report a running instance"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("scenegen daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close stops the daemon and releases the job queue and store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.jobs != nil {
		d.jobs.Close()
	}
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the active daemon log file, if any.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddress returns the bound HTTP address once the API server is listening.
func (d *Daemon) APIAddress() string {
	return d.apiSrv.address()
}

// Status collects runtime information for the CLI and HTTP consumers.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		SocketPath:   d.cfg.SocketPath(),
		APIBind:      d.apiSrv.address(),
		ActiveScenes: d.orchestrator.ActiveScenes(),
		Dependencies: api.FromDependencies(preflight.CheckSystemDeps(d.cfg)),
	}
	if status.ActiveScenes == nil {
		status.ActiveScenes = []int64{}
	}
	if d.jobs != nil {
		status.QueueDepth = d.jobs.Depth()
	}
	if dirs, err := workdir.Usage(d.cfg.Paths.WorkDir); err == nil {
		for _, dir := range dirs {
			status.WorkDirBytes += dir.Size
		}
	}
	stats, err := d.service.SceneStats(ctx)
	if err != nil {
		d.logger.Warn("scene stats unavailable", logging.Error(err))
		stats = api.MergeSceneStats(nil)
	}
	status.SceneStats = stats
	return status
}

// TestNotification publishes a test event through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg.Notifications.NtfyTopic == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "", err
	}
	return true, "test notification sent", nil
}

// refreshGauges updates scrape-time gauges.
func (d *Daemon) refreshGauges() {
	if d.metrics == nil {
		return
	}
	d.metrics.SetActiveScenes(len(d.orchestrator.ActiveScenes()))
	if d.jobs != nil {
		d.metrics.SetQueueDepth(d.jobs.Depth())
	}
}

func (d *Daemon) runPreflight(ctx context.Context) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "scenes that depend on this check will fail"),
			logging.String(logging.FieldErrorHint, "run scenegen preflight for details"),
		)
	}
}

// cleanWorkDir removes work directories left behind by deleted scenes.
func (d *Daemon) cleanWorkDir(ctx context.Context) {
	scenes, err := d.store.ListScenes(ctx)
	if err != nil {
		d.logger.Warn("skipping work directory cleanup", logging.Error(err))
		return
	}
	known := make(map[int64]struct{}, len(scenes))
	for _, scene := range scenes {
		known[scene.ID] = struct{}{}
	}
	result := workdir.CleanOrphaned(ctx, d.cfg.Paths.WorkDir, known, staleWorkDirAge, d.logger)
	if len(result.Removed) > 0 {
		d.logger.Info("work directory cleanup complete",
			logging.Int("removed", len(result.Removed)),
			logging.Int("errors", len(result.Errors)),
		)
	}
}
