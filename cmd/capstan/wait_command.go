package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"capstan/internal/api"
	"capstan/internal/stream"
)

func newWaitCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "wait <task-id>",
		Short: "Block until a task completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return waitForTask(cmd, ctx, args[0], timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "How long to wait")
	return cmd
}

// waitForTask watches the event stream for the terminal event of one task.
// A failed task surfaces as an error so scripts can branch on the exit code.
func waitForTask(cmd *cobra.Command, ctx *commandContext, taskID string, timeout time.Duration) error {
	conn, err := ctx.streamConn()
	if err != nil {
		return err
	}

	if _, err := conn.Subscribe(stream.Selector{
		Events: []string{api.EventTaskCompleted, api.EventTaskFailed},
		Filter: map[string]string{"taskId": taskID},
	}); err != nil {
		return err
	}

	done := make(chan api.Event, 1)
	match := func(event api.Event) {
		var payload map[string]any
		if json.Unmarshal(event.Payload, &payload) != nil {
			return
		}
		if id, _ := payload["taskId"].(string); id != taskID {
			return
		}
		select {
		case done <- event:
		default:
		}
	}
	cancelCompleted := conn.On(api.EventTaskCompleted, match)
	defer cancelCompleted()
	cancelFailed := conn.On(api.EventTaskFailed, match)
	defer cancelFailed()

	if err := conn.Connect(cmd.Context()); err != nil {
		return err
	}
	defer conn.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case event := <-done:
		if event.Type == api.EventTaskFailed {
			return fmt.Errorf("task %s failed: %s", taskID, failureMessage(event))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %s completed\n", taskID)
		return nil
	case <-timer.C:
		return fmt.Errorf("timed out after %s waiting for task %s", timeout, taskID)
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}
}

func failureMessage(event api.Event) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(event.Payload, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return "no error detail"
}
