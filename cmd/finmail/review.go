package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/finmail/internal/cli"
	"github.com/Veraticus/finmail/internal/orchestrator"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review extracted records before saving them",
		Long: `Process financial emails into a review session and walk through each
extracted record. Confirm, reject or correct it, and the confirmed records
are saved to the database at the end.

Corrections are entered as field=value lines, for example:
  amount=129.99
  status=paid
  due_date=2024-04-01`,
		RunE: runReview,
	}

	cmd.Flags().String("session", "", "Session id to continue (a new one is generated when empty)")
	cmd.Flags().String("account", "", "Mail account to search")
	cmd.Flags().String("query", "", "Mailbox search query")

	return cmd
}

func runReview(cmd *cobra.Command, _ []string) error {
	sessionID, _ := cmd.Flags().GetString("session")
	account, _ := cmd.Flags().GetString("account")
	query, _ := cmd.Flags().GetString("query")
	w := cmd.OutOrStdout()

	interrupts := cli.NewInterruptHandler(w)
	ctx := interrupts.Watch(cmd.Context())

	a, err := buildApp(ctx, components{
		mailbox:  true,
		database: true,
		llm:      true,
		sessions: true,
		required: []string{"mailbox"},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.orch.ProcessInteractive(ctx, sessionID, account, query)
	if err := resultError(res); err != nil {
		return err
	}
	processed := res.Value.(orchestrator.InteractiveResult)
	sessionID = processed.SessionState.SessionID
	interrupts.SetResumeSession(sessionID)

	if len(processed.ReviewData) == 0 {
		_, err = fmt.Fprintln(w, cli.FormatInfo(processed.Message))
		return err
	}

	if _, err := fmt.Fprintln(w, cli.FormatTitle(processed.Message)); err != nil {
		return err
	}
	if hidden := processed.TotalEmails - len(processed.ReviewData); hidden > 0 {
		if _, err := fmt.Fprintln(w, cli.FormatInfo(fmt.Sprintf("%d more records stay unconfirmed in session %s", hidden, sessionID))); err != nil {
			return err
		}
	}

	prompter := cli.NewPrompter(os.Stdin, w)
	decisions, err := prompter.Review(ctx, processed.ReviewData)
	if err != nil && !errors.Is(err, cli.ErrInputTerminated) {
		if interrupts.WasInterrupted() {
			return nil
		}
		return fmt.Errorf("review failed: %w", err)
	}

	for _, d := range decisions {
		if d.Skipped {
			continue
		}
		confirmed := a.orch.Confirm(ctx, sessionID, d.SourceID, d.Confirmed, d.Modifications)
		if !confirmed.OK() {
			if _, werr := fmt.Fprintln(w, cli.FormatError(confirmed.Error)); werr != nil {
				return werr
			}
		}
	}

	if !a.orch.Capabilities().HasDatabase {
		_, err = fmt.Fprintln(w, cli.FormatWarning("No database configured, confirmations are kept in session "+sessionID))
		return err
	}

	saved := a.orch.Save(ctx, sessionID)
	if err := resultError(saved); err != nil {
		return err
	}
	out := saved.Value.(orchestrator.SaveResult)
	prompter.ShowCompletion(out.SavedCount)
	_, err = fmt.Fprintln(w, cli.FormatSuccess(out.Message))
	return err
}
