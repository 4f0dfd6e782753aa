package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"scenegen/internal/config"
	"scenegen/internal/daemon"
	"scenegen/internal/deps"
	"scenegen/internal/ipc"
	"scenegen/internal/logging"
	"scenegen/internal/store"
)

// keepRunLogs bounds how many per-run log files stay in the log directory.
const keepRunLogs = 10

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the scenegen daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("scenegen-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		Sinks:       []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(logging.LogFilePath(cfg), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update scenegen.log link: %v\n", err)
	}
	pruneRunLogs(logger, cfg.Paths.LogDir, logPath, keepRunLogs)
	logDependencySnapshot(logger, cfg)

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open scene store", logging.Error(err))
		return err
	}

	components, err := Build(signalCtx, cfg, st, logger)
	if err != nil {
		st.Close()
		return err
	}

	d, err := daemon.New(cfg, st, logger, components.Orchestrator,
		daemon.WithJobs(components.Jobs),
		daemon.WithMetrics(components.Metrics),
		daemon.WithNotifier(components.Notifier),
		daemon.WithLogPath(logPath),
	)
	if err != nil {
		components.Jobs.Close()
		st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logging.WarnWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the lock file and scene database access"),
			logging.String(logging.FieldImpact, "scenes will not be generated until the daemon starts"),
		)
	}

	<-signalCtx.Done()
	logger.Info("scenegen daemon shutting down")
	return nil
}

// PIDPath is where the running daemon records its process ID.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, "scenegen.pid")
}

// ReadPID returns the PID recorded by a running daemon.
func ReadPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(PIDPath(cfg))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file: %w", err)
	}
	return pid, nil
}

func ensureCurrentLogPointer(current, target string) error {
	if current == "" || target == "" {
		return nil
	}
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

// pruneRunLogs removes all but the newest keep run logs. Names sort by time.
func pruneRunLogs(logger *slog.Logger, dir, current string, keep int) {
	matches, err := filepath.Glob(filepath.Join(dir, "scenegen-*.log"))
	if err != nil || len(matches) <= keep {
		return
	}
	sort.Strings(matches)
	for _, path := range matches[:len(matches)-keep] {
		if path == current {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Debug("failed to prune run log", logging.String("path", path), logging.Error(err))
		}
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	ffmpegBin := deps.ResolveBinary(cfg.Assembly.FFmpegBinary, "ffmpeg")
	ffprobeBin := deps.ResolveBinary(cfg.Assembly.FFprobeBinary, "ffprobe")
	attrs := []any{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("backend_url", cfg.Backend.URL),
		logging.Bool("backend_token_present", strings.TrimSpace(cfg.Backend.Token) != ""),
		logging.String("scorer_provider", cfg.Scorer.Provider),
		logging.Bool("scorer_key_present", strings.TrimSpace(cfg.Scorer.APIKey) != ""),
		logging.String("storage_backend", cfg.Storage.Backend),
		logging.String("ffmpeg_binary", ffmpegBin),
		logging.String("ffprobe_binary", ffprobeBin),
		logging.Bool("tts_configured", len(cfg.Assembly.TTSCommand) > 0),
	}
	for _, status := range deps.CheckBinaries(deps.MediaRequirements(ffmpegBin, ffprobeBin, cfg.Assembly.TTSCommand)) {
		attrs = append(attrs, logging.Bool(strings.ToLower(status.Name)+"_available", status.Available))
	}
	logger.Info("dependency snapshot", attrs...)
}
