package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAgentCommand(ctx *commandContext) *cobra.Command {
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Inspect registered agents",
	}
	agentCmd.AddCommand(newAgentListCommand(ctx))
	agentCmd.AddCommand(newAgentShowCommand(ctx))
	return agentCmd
}

func newAgentListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			agents, err := api.ListAgents(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, agents)
			}
			out := cmd.OutOrStdout()
			if len(agents) == 0 {
				fmt.Fprintln(out, "No agents registered.")
				return nil
			}
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(agents))
			for _, agent := range agents {
				rows = append(rows, []string{
					agent.ID,
					agent.Name,
					colorStatus(agent.Status, colorize),
					fmt.Sprintf("%d/%d", agent.ActiveTasks, agent.Capacity),
					formatAge(parseTimestamp(agent.LastSeenAt)),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Status", "Load", "Seen"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newAgentShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <agent-id>",
		Short: "Show one agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			agent, err := api.GetAgent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, agent)
		},
	}
}
