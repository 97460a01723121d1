package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"capstan/internal/api"
	"capstan/internal/journal"
	"capstan/internal/stream"
)

// newWatchCommand streams live events to the terminal until interrupted.
func newWatchCommand(ctx *commandContext) *cobra.Command {
	var eventsFilter []string
	var taskFilter string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live events to the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			conn, err := ctx.streamConn()
			if err != nil {
				return err
			}

			var store *journal.Store
			if cfg.Journal.Enabled {
				store, err = journal.Open(cfg.Journal.Path)
				if err != nil {
					return err
				}
				defer store.Close()
			}

			selector := stream.Selector{Events: eventsFilter}
			if len(selector.Events) == 0 {
				selector.Events = []string{"*"}
			}
			if taskFilter != "" {
				selector.Filter = map[string]string{"taskId": taskFilter}
			}
			if _, err := conn.Subscribe(selector); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			cancel := conn.On(stream.EventAny, func(event api.Event) {
				if store != nil {
					if _, err := store.Append(cmd.Context(), event); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "journal append failed: %v\n", err)
					}
				}
				if asJSON {
					_ = json.NewEncoder(out).Encode(event)
					return
				}
				printEvent(out, event, colorize)
			})
			defer cancel()

			connStates := conn.OnStateChange(func(s stream.State) {
				fmt.Fprintf(cmd.ErrOrStderr(), "-- connection %s\n", s)
			})
			defer connStates()

			if err := conn.Connect(cmd.Context()); err != nil {
				return err
			}
			defer conn.Close()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sig)
			select {
			case <-sig:
				return nil
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
		},
	}
	cmd.Flags().StringSliceVar(&eventsFilter, "event", nil, "Event types to watch (default: all)")
	cmd.Flags().StringVar(&taskFilter, "task", "", "Only events for this task id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit raw JSON events")
	return cmd
}

func printEvent(out io.Writer, event api.Event, colorize bool) {
	ts := event.Timestamp.Local().Format("15:04:05")
	line := fmt.Sprintf("%s %-18s %s", ts, event.Type, compactJSON(event.Payload))
	if colorize && strings.HasSuffix(event.Type, ".failed") {
		line = ansiRed + line + ansiReset
	}
	fmt.Fprintln(out, line)
}
