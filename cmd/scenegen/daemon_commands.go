package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"scenegen/internal/api"
	"scenegen/internal/daemonctl"
	"scenegen/internal/daemonrun"
	"scenegen/internal/ipc"
	"scenegen/internal/logging"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the scenegen daemon",
	}
	daemonCmd.AddCommand(
		newDaemonRunCommand(ctx),
		newDaemonStartCommand(ctx),
		newDaemonStopCommand(ctx),
		newDaemonStatusCommand(ctx),
		newDaemonLogsCommand(ctx),
	)
	return daemonCmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	return cmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe,
				daemonctl.LaunchOptions{ConfigPath: ctx.configPath(), LogLevel: logLevel},
				10*time.Second)
			if err != nil {
				return err
			}
			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			default:
				fmt.Fprintln(stdout, result.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level for a newly launched daemon")
	return cmd
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon and terminate its process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 10*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and scene status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}
			renderDaemonStatus(cmd, status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func renderDaemonStatus(cmd *cobra.Command, status *api.DaemonStatus) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if status.Running {
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
		if status.APIBind != "" {
			fmt.Fprintln(stdout, renderStatusLine("HTTP API", statusOK, status.APIBind, colorize))
		}
		active := "None"
		if len(status.ActiveScenes) > 0 {
			ids := make([]string, len(status.ActiveScenes))
			for i, id := range status.ActiveScenes {
				ids[i] = fmt.Sprintf("%d", id)
			}
			active = strings.Join(ids, ", ")
		}
		fmt.Fprintln(stdout, renderStatusLine("Active scenes", statusInfo, active, colorize))
		fmt.Fprintln(stdout, renderStatusLine("Queued jobs", statusInfo, fmt.Sprintf("%d", status.QueueDepth), colorize))
		fmt.Fprintln(stdout, renderStatusLine("Work directory", statusInfo, humanize.Bytes(uint64(status.WorkDirBytes)), colorize))
	} else {
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, "Not running (run `scenegen daemon start`)", colorize))
	}
	fmt.Fprintln(stdout, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(stdout, line)
	}
	summary := daemonctl.SummarizeDependencies(status.Dependencies)
	fmt.Fprintln(stdout, renderStatusLine("Summary", statusKindFromSeverity(summary.Severity), summary.Detail, colorize))
	for _, dep := range status.Dependencies {
		switch {
		case dep.Available:
			fmt.Fprintln(stdout, renderStatusLine(dep.Name, statusOK, "Ready (command: "+dep.Command+")", colorize))
		case dep.Optional:
			fmt.Fprintln(stdout, renderStatusLine(dep.Name, statusWarn, dependencyDetail(dep), colorize))
		default:
			fmt.Fprintln(stdout, renderStatusLine(dep.Name, statusError, dependencyDetail(dep), colorize))
		}
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Scenes", colorize) {
		fmt.Fprintln(stdout, line)
	}
	statuses := make([]string, 0, len(status.SceneStats))
	for s := range status.SceneStats {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, []string{s, fmt.Sprintf("%d", status.SceneStats[s])})
	}
	fmt.Fprint(stdout, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func dependencyDetail(dep api.DependencyStatus) string {
	if detail := strings.TrimSpace(dep.Detail); detail != "" {
		return detail
	}
	return "not available"
}

func newDaemonLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var sceneID int64
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon log output",
		RunE: func(cmd *cobra.Command, _ []string) error {
			match := ""
			if sceneID > 0 {
				match = fmt.Sprintf("%s=%d", logging.FieldSceneID, sceneID)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				stdout := cmd.OutOrStdout()
				req := ipc.LogTailRequest{Offset: -1, Limit: lines, Match: match}
				for {
					resp, err := client.LogTail(req)
					if err != nil {
						return err
					}
					for _, line := range resp.Lines {
						fmt.Fprintln(stdout, line)
					}
					if !follow {
						return nil
					}
					if err := cmd.Context().Err(); err != nil {
						return nil
					}
					req = ipc.LogTailRequest{Offset: resp.Offset, Follow: true, WaitMillis: 2000, Match: match}
				}
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().Int64Var(&sceneID, "scene", 0, "Only show lines for this scene ID (console log format)")
	return cmd
}
