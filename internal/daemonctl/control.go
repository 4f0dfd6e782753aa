package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"scenegen/internal/api"
	"scenegen/internal/config"
	"scenegen/internal/daemonrun"
	"scenegen/internal/ipc"
	"scenegen/internal/preflight"
	"scenegen/internal/store"
)

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

// StartState describes how EnsureStarted reached a running daemon.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
	StartStateRequested      StartState = "start_requested"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	Message  string
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// Launch starts a detached `scenegen daemon run` process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}
	args := []string{"daemon", "run"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for the IPC socket and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon when its socket is absent and asks an
// idle daemon to start its services.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client, err := ipc.Dial(socketPath)
	launched := false
	if err != nil {
		if launchErr := Launch(executablePath, opts); launchErr != nil {
			return StartResult{}, launchErr
		}
		client, err = WaitForClient(socketPath, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		launched = true
	}
	defer client.Close()

	// A freshly launched daemon starts itself; give it a moment.
	deadline := time.Now().Add(waitTimeout)
	for {
		status, statusErr := client.Status()
		if statusErr == nil && status.Running {
			if launched {
				return StartResult{State: StartStateStarted, Launched: true}, nil
			}
			return StartResult{State: StartStateAlreadyRunning}, nil
		}
		if !launched || time.Now().After(deadline) {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}

	resp, err := client.Start()
	if err != nil {
		return StartResult{}, err
	}
	message := strings.TrimSpace(resp.Message)
	if resp.Started {
		return StartResult{State: StartStateStarted, Launched: launched, Message: message}, nil
	}
	if message == "" {
		message = "start request sent"
	}
	return StartResult{State: StartStateRequested, Launched: launched, Message: message}, nil
}

// ProcessInfo reports whether daemon IPC is reachable and the daemon PID.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil {
		return true, 0, err
	}
	return true, status.PID, nil
}

// WaitForExit waits until the daemon socket stops answering.
func WaitForExit(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if alive, _, _ := ProcessInfo(socketPath); !alive {
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return false
}

// StopAndTerminate stops active scene runs over IPC, asks the process to exit
// with SIGTERM, and falls back to SIGKILL after gracePeriod.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	var result StopResult
	if status, statusErr := client.Status(); statusErr == nil {
		result.PID = status.PID
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return result, err
	}
	result.StopAcknowledged = resp.Stopped

	pid := result.PID
	if pid <= 0 && cfg != nil {
		pid, _ = daemonrun.ReadPID(cfg)
	}
	if pid <= 0 {
		return result, fmt.Errorf("unable to determine daemon pid")
	}
	if err := signalProcess(pid, syscall.SIGTERM); err != nil {
		return result, err
	}
	if WaitForExit(socketPath, gracePeriod) {
		return result, nil
	}

	if err := signalProcess(pid, syscall.SIGKILL); err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	result.ForcedKill = true
	_ = os.Remove(socketPath)
	if cfg != nil {
		_ = os.Remove(daemonrun.PIDPath(cfg))
		_ = os.Remove(cfg.LockPath())
	}
	return result, nil
}

func signalProcess(pid int, sig syscall.Signal) error {
	if pid == os.Getpid() {
		return fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	return nil
}

// BuildStatusSnapshot returns the live daemon status, or an offline view built
// from the scene database and local dependency checks when the daemon is down.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*api.DaemonStatus, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	if client, err := ipc.Dial(socketPath); err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil {
			return resp, nil
		}
	}

	status := &api.DaemonStatus{
		DatabasePath: cfg.DatabasePath(),
		LockFilePath: cfg.LockPath(),
		SocketPath:   socketPath,
		ActiveScenes: []int64{},
		SceneStats:   api.MergeSceneStats(nil),
		Dependencies: api.FromDependencies(preflight.CheckSystemDeps(cfg)),
	}
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	st, err := store.Open(cfg)
	if err != nil {
		return status, nil
	}
	defer st.Close()
	if stats, err := st.Stats(queryCtx); err == nil {
		status.SceneStats = api.MergeSceneStats(stats)
	}
	return status, nil
}

// DependencySummary aggregates dependency readiness for status output.
type DependencySummary struct {
	Total           int
	Available       int
	MissingRequired int
	MissingOptional int
	Severity        string
	Detail          string
}

// SummarizeDependencies computes aggregate dependency readiness.
func SummarizeDependencies(deps []api.DependencyStatus) DependencySummary {
	if len(deps) == 0 {
		return DependencySummary{Severity: "info", Detail: "No dependency checks configured"}
	}
	summary := DependencySummary{Total: len(deps)}
	for _, dep := range deps {
		switch {
		case dep.Available:
			summary.Available++
		case dep.Optional:
			summary.MissingOptional++
		default:
			summary.MissingRequired++
		}
	}
	summary.Severity = "ok"
	if summary.MissingRequired > 0 {
		summary.Severity = "error"
	} else if summary.MissingOptional > 0 {
		summary.Severity = "warn"
	}
	summary.Detail = fmt.Sprintf("%d/%d available", summary.Available, summary.Total)
	if missing := summary.MissingRequired + summary.MissingOptional; missing > 0 {
		summary.Detail = fmt.Sprintf("%d/%d available (missing: %d required, %d optional)",
			summary.Available, summary.Total, summary.MissingRequired, summary.MissingOptional)
	}
	return summary
}

func isDaemonUnavailable(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
