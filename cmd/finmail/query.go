package main

import (
	"github.com/spf13/cobra"
)

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List stored records",
		Long: `List the most recently processed records, optionally filtered.

Examples:
  finmail query --type invoice
  finmail query --status pending_payment --limit 25`,
		RunE: runQuery,
	}

	cmd.Flags().IntP("limit", "l", 10, "Maximum number of records")
	cmd.Flags().String("type", "", "Document type (invoice, order, statement, payment, receipt, other)")
	cmd.Flags().String("status", "", "Status filter")
	cmd.Flags().Bool("json", false, "Print the raw result as JSON")

	return cmd
}

func runQuery(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")
	documentType, _ := cmd.Flags().GetString("type")
	status, _ := cmd.Flags().GetString("status")
	asJSON, _ := cmd.Flags().GetBool("json")

	a, err := buildApp(ctx, components{database: true, required: []string{"database"}})
	if err != nil {
		return err
	}
	defer a.Close()

	return printResult(cmd.OutOrStdout(), "Financial Records", a.orch.Query(ctx, limit, documentType, status), asJSON)
}
