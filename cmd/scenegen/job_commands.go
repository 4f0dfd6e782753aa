package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scenegen/internal/api"
	"scenegen/internal/ipc"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect generation backend jobs",
	}
	jobCmd.AddCommand(newJobListCommand(ctx), newJobStatusCommand(ctx))
	return jobCmd
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active and recently finished jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobList()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				rows := make([][]string, 0, len(resp.Jobs))
				for _, job := range resp.Jobs {
					rows = append(rows, []string{
						job.ID,
						job.State,
						fmt.Sprintf("%.0f%%", job.Progress),
						job.SubmittedAt,
						truncate(job.Error, 40),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Job", "State", "Progress", "Submitted", "Error"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func newJobStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a single job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				job, err := client.JobStatus(jobID)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, job)
				}
				renderJob(cmd, job)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func renderJob(cmd *cobra.Command, job *api.Job) {
	stdout := cmd.OutOrStdout()
	fmt.Fprintf(stdout, "Job:       %s\n", job.ID)
	if job.BackendID != "" {
		fmt.Fprintf(stdout, "Backend:   %s\n", job.BackendID)
	}
	fmt.Fprintf(stdout, "State:     %s (%.0f%%)\n", job.State, job.Progress)
	if job.SubmittedAt != "" {
		fmt.Fprintf(stdout, "Submitted: %s\n", job.SubmittedAt)
	}
	if job.FinishedAt != "" {
		fmt.Fprintf(stdout, "Finished:  %s\n", job.FinishedAt)
	}
	if job.OutputPath != "" {
		fmt.Fprintf(stdout, "Output:    %s\n", job.OutputPath)
	}
	if job.TimedOut {
		fmt.Fprintln(stdout, "Timed out: yes")
	}
	if job.Error != "" {
		fmt.Fprintf(stdout, "Error:     %s\n", job.Error)
	}
}
