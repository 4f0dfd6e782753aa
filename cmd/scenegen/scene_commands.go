package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scenegen/internal/api"
	"scenegen/internal/ipc"
)

func newSceneCommand(ctx *commandContext) *cobra.Command {
	sceneCmd := &cobra.Command{
		Use:   "scene",
		Short: "Create, generate, and inspect scenes",
	}
	sceneCmd.AddCommand(
		newSceneImportCommand(ctx),
		newSceneListCommand(ctx),
		newSceneStartCommand(ctx),
		newSceneStatusCommand(ctx),
		newSceneRetryCommand(ctx),
		newSceneAssembleCommand(ctx),
		newSceneCancelCommand(ctx),
		newSceneAttemptsCommand(ctx),
	)
	return sceneCmd
}

func parseID(kind, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", kind, raw)
	}
	return id, nil
}

func newSceneImportCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "import <manifest.yaml>",
		Short: "Create a scene from a YAML manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve manifest path: %w", err)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SceneImport(path)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created scene %d %q with %d shots (%.1fs target)\n",
					resp.Scene.ID, resp.Scene.Name, resp.Shots, resp.Scene.TargetDuration)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func newSceneListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scenes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SceneList(statuses)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				if len(resp.Scenes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No scenes")
					return nil
				}
				rows := make([][]string, 0, len(resp.Scenes))
				for _, scene := range resp.Scenes {
					rows = append(rows, []string{
						strconv.FormatInt(scene.ID, 10),
						scene.Name,
						scene.Status,
						formatSeconds(scene.TargetDuration),
						scene.UpdatedAt,
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Status", "Target", "Updated"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func newSceneStartCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "start <scene-id>",
		Short: "Generate every remaining shot and assemble the scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sceneID, err := parseID("scene", args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SceneStart(sceneID)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				estimate := time.Duration(resp.EstimatedSeconds) * time.Second
				fmt.Fprintf(cmd.OutOrStdout(), "Scene %d started (run %s): %d shots remaining, about %s\n",
					resp.SceneID, resp.RunID, resp.RemainingShots, estimate)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func newSceneStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status <scene-id>",
		Short: "Show scene progress and per-shot scores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sceneID, err := parseID("scene", args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SceneStatus(sceneID)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				renderSceneStatus(cmd, resp)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func renderSceneStatus(cmd *cobra.Command, status *api.SceneStatus) {
	stdout := cmd.OutOrStdout()
	scene := status.Scene
	fmt.Fprintf(stdout, "Scene %d: %s\n", scene.ID, scene.Name)
	fmt.Fprintf(stdout, "Status:   %s (%d/%d shots)\n", scene.Status, status.Progress.Completed, status.Progress.Total)
	if status.Running {
		line := fmt.Sprintf("Running:  %s %s", status.RunKind, status.RunID)
		if status.ActiveJobID != "" {
			line += " job " + status.ActiveJobID
		}
		fmt.Fprintln(stdout, line)
	}
	if scene.VideoPath != "" {
		fmt.Fprintf(stdout, "Video:    %s (%s, %s)\n", scene.VideoPath, formatSeconds(scene.VideoDuration), scene.AssemblyState)
	}
	if scene.ErrorMessage != "" {
		fmt.Fprintf(stdout, "Error:    %s\n", scene.ErrorMessage)
	}

	rows := make([][]string, 0, len(status.Shots))
	for _, shot := range status.Shots {
		score := "-"
		if shot.Score != nil {
			score = fmt.Sprintf("%.2f", *shot.Score)
		}
		rows = append(rows, []string{
			strconv.Itoa(shot.Number),
			strconv.FormatInt(shot.ID, 10),
			shot.Status,
			formatSeconds(shot.Duration),
			score,
			strconv.Itoa(shot.Attempts),
			truncate(shot.Prompt, 48),
		})
	}
	fmt.Fprint(stdout, renderTable(
		[]string{"#", "Shot ID", "Status", "Duration", "Score", "Attempts", "Prompt"}, rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft}))
}

func newSceneRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <scene-id> <shot-id>",
		Short: "Regenerate a shot and every shot after it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sceneID, err := parseID("scene", args[0])
			if err != nil {
				return err
			}
			shotID, err := parseID("shot", args[1])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ShotRetry(sceneID, shotID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retrying shot %d of scene %d (job %s)\n", resp.ShotID, resp.SceneID, resp.JobID)
				return nil
			})
		},
	}
}

func newSceneAssembleCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "assemble <scene-id>",
		Short: "Assemble the final video from completed shots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sceneID, err := parseID("scene", args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SceneAssemble(sceneID)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				stdout := cmd.OutOrStdout()
				verb := "Assembled"
				if resp.Reused {
					verb = "Reused"
				}
				fmt.Fprintf(stdout, "%s %s (%s, %s)\n", verb, resp.VideoPath, formatSeconds(resp.Duration), resp.State)
				for _, warning := range resp.Warnings {
					fmt.Fprintf(stdout, "warning: %s\n", warning)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func newSceneCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <scene-id>",
		Short: "Cancel the active run of a scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sceneID, err := parseID("scene", args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.SceneCancel(sceneID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancel requested for scene %d\n", sceneID)
				return nil
			})
		},
	}
}

func newSceneAttemptsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "attempts <scene-id> <shot-id>",
		Short: "List generation attempts for a shot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sceneID, err := parseID("scene", args[0])
			if err != nil {
				return err
			}
			shotID, err := parseID("shot", args[1])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ShotAttempts(sceneID, shotID)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				if len(resp.Attempts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No attempts recorded")
					return nil
				}
				rows := make([][]string, 0, len(resp.Attempts))
				for _, a := range resp.Attempts {
					outcome := "failed"
					switch {
					case a.Passed:
						outcome = "passed"
					case a.HardFailure:
						outcome = "hard failure"
					case a.Error == "":
						outcome = "below threshold"
					}
					rows = append(rows, []string{
						strconv.Itoa(a.Number),
						strconv.FormatInt(a.Seed, 10),
						strconv.Itoa(a.Steps),
						fmt.Sprintf("%.2f", a.Score),
						fmt.Sprintf("%.2f", a.Threshold),
						outcome,
						truncate(a.Error, 40),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"#", "Seed", "Steps", "Score", "Threshold", "Outcome", "Error"}, rows,
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 1, 64) + "s"
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
