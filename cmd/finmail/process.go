package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/finmail/internal/cli"
	"github.com/Veraticus/finmail/internal/orchestrator"
)

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Extract financial data from recent emails and save it",
		Long: `Search the mailbox for financial emails, extract their fields, export the
batch to JSON in the output directory and save it to the database.

Examples:
  finmail process                    # Process up to 20 recent emails
  finmail process --max 50           # Look at more messages
  finmail process --account work     # Use the token saved for "work"`,
		RunE: runProcess,
	}

	cmd.Flags().IntP("max", "n", 20, "Maximum number of emails to search")
	cmd.Flags().String("account", "", "Mail account to search")
	cmd.Flags().Bool("json", false, "Print the raw result as JSON")

	return cmd
}

func runProcess(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	maxResults, _ := cmd.Flags().GetInt("max")
	account, _ := cmd.Flags().GetString("account")
	asJSON, _ := cmd.Flags().GetBool("json")

	a, err := buildApp(ctx, components{mailbox: true, database: true, llm: true, required: []string{"mailbox"}})
	if err != nil {
		return err
	}
	defer a.Close()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetDescription("Processing financial emails..."),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	res := a.orch.ProcessEmails(ctx, maxResults, account)
	close(done)
	if err := bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}

	if asJSON {
		return printResult(cmd.OutOrStdout(), "", res, true)
	}
	if err := resultError(res); err != nil {
		return err
	}

	out := res.Value.(orchestrator.ProcessResult)
	w := cmd.OutOrStdout()
	if out.Status != orchestrator.StatusSuccess {
		_, err = fmt.Fprintln(w, cli.FormatInfo(out.Message))
		return err
	}

	body := cli.FormatField("Extracted", fmt.Sprint(out.Count)) + "\n" +
		cli.FormatField("Saved", fmt.Sprint(out.SavedCount)) + "\n" +
		cli.FormatField("Export", out.OutputFile)
	if _, err := fmt.Fprintln(w, cli.RenderBox(cli.MailIcon+" Processing Complete", body)); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, cli.FormatSuccess(out.Message))
	return err
}
