package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"capstan/internal/api"
)

func newTaskCommand(ctx *commandContext) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect and manage tasks",
	}

	taskCmd.AddCommand(newTaskListCommand(ctx))
	taskCmd.AddCommand(newTaskShowCommand(ctx))
	taskCmd.AddCommand(newTaskCancelCommand(ctx))
	taskCmd.AddCommand(newTaskRetryCommand(ctx))

	return taskCmd
}

func newTaskListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string
	var agentFilter string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			filter := map[string]string{}
			if statusFilter != "" {
				filter["status"] = statusFilter
			}
			if agentFilter != "" {
				filter["agentId"] = agentFilter
			}
			tasks, err := api.ListTasks(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, tasks)
			}
			printTaskTable(cmd, tasks)
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status")
	cmd.Flags().StringVar(&agentFilter, "agent", "", "Filter by agent id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func printTaskTable(cmd *cobra.Command, tasks []api.Task) {
	out := cmd.OutOrStdout()
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks.")
		return
	}
	colorize := shouldColorize(out)
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, []string{
			task.ID,
			task.Name,
			colorStatus(task.Status, colorize),
			task.AgentID,
			formatAge(parseTimestamp(task.UpdatedAt)),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Name", "Status", "Agent", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	))
}

func newTaskShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			task, err := api.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, task)
			}
			printTaskDetail(cmd, task)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func printTaskDetail(cmd *cobra.Command, task api.Task) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	fmt.Fprintf(out, "Task %s\n", task.ID)
	fmt.Fprintf(out, "  Name:    %s\n", task.Name)
	fmt.Fprintf(out, "  Status:  %s\n", colorStatus(task.Status, colorize))
	if task.AgentID != "" {
		fmt.Fprintf(out, "  Agent:   %s\n", task.AgentID)
	}
	if task.DAGRunID != "" {
		fmt.Fprintf(out, "  Run:     %s\n", task.DAGRunID)
	}
	if task.RetryCount > 0 {
		fmt.Fprintf(out, "  Retries: %d\n", task.RetryCount)
	}
	if task.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:   %s\n", task.ErrorMessage)
	}
	if len(task.Payload) > 0 {
		fmt.Fprintf(out, "  Payload: %s\n", compactJSON(task.Payload))
	}
	if len(task.Result) > 0 {
		fmt.Fprintf(out, "  Result:  %s\n", compactJSON(task.Result))
	}
	if task.CreatedAt != "" {
		fmt.Fprintf(out, "  Created: %s\n", task.CreatedAt)
	}
	if task.CompletedAt != "" {
		fmt.Fprintf(out, "  Done:    %s\n", task.CompletedAt)
	}
}

func newTaskCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a queued or running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			task, err := api.CancelTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now %s\n", task.ID, task.Status)
			return nil
		},
	}
}

func newTaskRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <task-id>",
		Short: "Requeue a failed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			task, err := api.RetryTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s requeued (%s)\n", task.ID, task.Status)
			return nil
		},
	}
}

// newSubmitCommand creates a task and optionally waits for its completion
// over the event stream.
func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var agentID string
	var payloadArg string
	var priority int
	var wait bool
	var waitTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "submit <name>",
		Short: "Submit a new task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := resolvePayload(payloadArg)
			if err != nil {
				return err
			}
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			task, err := apiClient.CreateTask(cmd.Context(), api.CreateTaskRequest{
				Name:     args[0],
				AgentID:  agentID,
				Payload:  payload,
				Priority: priority,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted task %s\n", task.ID)
			if !wait {
				return nil
			}
			return waitForTask(cmd, ctx, task.ID, waitTimeout)
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "Pin the task to an agent")
	cmd.Flags().StringVar(&payloadArg, "payload", "", "Task payload as JSON, or @file to read from disk")
	cmd.Flags().IntVar(&priority, "priority", 0, "Scheduling priority")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the task to complete or fail")
	cmd.Flags().DurationVar(&waitTimeout, "timeout", 10*time.Minute, "How long to wait with --wait")
	return cmd
}

// resolvePayload accepts inline JSON or an @file reference and validates it.
func resolvePayload(arg string) (json.RawMessage, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, nil
	}
	data := []byte(arg)
	if strings.HasPrefix(arg, "@") {
		var err error
		data, err = os.ReadFile(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return data, nil
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}
