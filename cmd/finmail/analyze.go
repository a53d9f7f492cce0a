package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a single email with the language model",
		Long: `Run the LLM analyzer on one email and print the extracted fields,
anomalies and recommendations.

The body is read from --body, from --file, or from stdin when --file is "-".

Examples:
  finmail analyze --subject "Invoice #88" --body "Amount due: $45.00"
  finmail analyze --subject "Your statement" --file statement.txt --type statement`,
		RunE: runAnalyze,
	}

	cmd.Flags().String("subject", "", "Email subject")
	cmd.Flags().String("body", "", "Email body")
	cmd.Flags().StringP("file", "f", "", "Read the body from a file (- for stdin)")
	cmd.Flags().String("type", "", "Document type hint")
	cmd.Flags().Bool("json", false, "Print the raw result as JSON")

	return cmd
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	subject, _ := cmd.Flags().GetString("subject")
	body, _ := cmd.Flags().GetString("body")
	file, _ := cmd.Flags().GetString("file")
	hint, _ := cmd.Flags().GetString("type")
	asJSON, _ := cmd.Flags().GetBool("json")

	if file != "" {
		text, err := readBody(cmd.InOrStdin(), file)
		if err != nil {
			return err
		}
		body = text
	}
	if strings.TrimSpace(subject) == "" && strings.TrimSpace(body) == "" {
		return fmt.Errorf("either --subject or a body is required")
	}

	a, err := buildApp(ctx, components{llm: true, required: []string{"llm"}})
	if err != nil {
		return err
	}
	defer a.Close()

	return printResult(cmd.OutOrStdout(), "Email Analysis", a.orch.AnalyzeEmail(ctx, subject, body, hint), asJSON)
}

func readBody(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return "", fmt.Errorf("failed to read body file: %w", err)
	}
	return string(data), nil
}
