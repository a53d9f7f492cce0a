package main

import (
	"github.com/spf13/cobra"
)

func summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize stored financial records",
		Long: `Show counts by document type and status with totals per currency.

Reads the database when one is configured, otherwise searches the mailbox
and summarizes what it finds.`,
		RunE: runSummary,
	}

	cmd.Flags().String("account", "", "Mail account to search when no database is configured")
	cmd.Flags().Bool("json", false, "Print the raw result as JSON")

	return cmd
}

func runSummary(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	account, _ := cmd.Flags().GetString("account")
	asJSON, _ := cmd.Flags().GetBool("json")

	a, err := buildApp(ctx, components{mailbox: true, database: true})
	if err != nil {
		return err
	}
	defer a.Close()

	return printResult(cmd.OutOrStdout(), "Financial Summary", a.orch.Summarize(ctx, account), asJSON)
}
