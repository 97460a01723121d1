package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"capstan/internal/api"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Inspect and control DAG runs",
	}
	runCmd.AddCommand(newRunListCommand(ctx))
	runCmd.AddCommand(newRunShowCommand(ctx))
	runCmd.AddCommand(newRunStartCommand(ctx))
	runCmd.AddCommand(newRunPauseCommand(ctx))
	runCmd.AddCommand(newRunResumeCommand(ctx))
	return runCmd
}

func newRunListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List DAG runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			filter := map[string]string{}
			if statusFilter != "" {
				filter["status"] = statusFilter
			}
			runs, err := client.ListRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, runs)
			}
			printRunTable(cmd, runs)
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func printRunTable(cmd *cobra.Command, runs []api.DAGRun) {
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs.")
		return
	}
	colorize := shouldColorize(out)
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.DAGID,
			colorStatus(run.Status, colorize),
			fmt.Sprintf("%d", run.TaskCount),
			formatAge(parseTimestamp(run.StartedAt)),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "DAG", "Status", "Tasks", "Started"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	))
}

func newRunShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one DAG run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			run, err := client.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, run)
		},
	}
}

func newRunStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start <dag-id>",
		Short: "Launch a run of the named DAG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			run, err := client.StartRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started run %s of %s\n", run.ID, run.DAGID)
			return nil
		},
	}
}

func newRunPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <run-id>",
		Short: "Pause a running DAG run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			run, err := client.PauseRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s is now %s\n", run.ID, run.Status)
			return nil
		},
	}
}

func newRunResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Resume a paused DAG run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			run, err := client.ResumeRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s is now %s\n", run.ID, run.Status)
			return nil
		},
	}
}
