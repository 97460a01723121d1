package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"capstan/internal/journal"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var eventType string
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List events recorded in the local journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				return fmt.Errorf("event journal is disabled; enable it under [journal] in the config file")
			}
			store, err := journal.Open(cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), eventType, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, entries)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No recorded events.")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					fmt.Sprintf("%d", entry.Seq),
					entry.Event.Timestamp.Local().Format("Jan 02 15:04:05"),
					entry.Event.Type,
					compactJSON(entry.Event.Payload),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Seq", "Time", "Type", "Payload"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
			))
			total, err := store.Count(cmd.Context())
			if err == nil && total > int64(len(entries)) {
				fmt.Fprintf(out, "Showing %d of %d events.\n", len(entries), total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "Only show events of this type")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of events to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}
