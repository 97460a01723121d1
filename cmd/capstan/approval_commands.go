package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"capstan/internal/api"
)

func newApprovalCommand(ctx *commandContext) *cobra.Command {
	approvalCmd := &cobra.Command{
		Use:   "approval",
		Short: "Inspect and resolve approval gates",
	}
	approvalCmd.AddCommand(newApprovalListCommand(ctx))
	approvalCmd.AddCommand(newApprovalResolveCommand(ctx, "approve", true))
	approvalCmd.AddCommand(newApprovalResolveCommand(ctx, "reject", false))
	return approvalCmd
}

func newApprovalListCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending approval gates",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			approvals, err := client.ListApprovals(cmd.Context(), !all)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, approvals)
			}
			out := cmd.OutOrStdout()
			if len(approvals) == 0 {
				fmt.Fprintln(out, "No approvals.")
				return nil
			}
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(approvals))
			for _, approval := range approvals {
				rows = append(rows, []string{
					approval.ID,
					approval.TaskID,
					colorStatus(approval.Status, colorize),
					approval.Reason,
					formatAge(parseTimestamp(approval.RequestedAt)),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Task", "Status", "Reason", "Age"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include resolved approvals")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newApprovalResolveCommand(ctx *commandContext, verb string, approved bool) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   verb + " <approval-id>",
		Short: capitalize(verb) + " a pending approval gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			approval, err := client.ResolveApproval(cmd.Context(), args[0], api.ResolveApprovalRequest{
				Approved: approved,
				Note:     note,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Approval %s is now %s\n", approval.ID, approval.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Note recorded with the decision")
	return cmd
}

func capitalize(value string) string {
	if value == "" {
		return value
	}
	return string(value[0]-'a'+'A') + value[1:]
}
