package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/finmail/internal/cli"
	"github.com/Veraticus/finmail/internal/config"
	"github.com/Veraticus/finmail/internal/mailbox"
)

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with mail providers",
		Long:  `Authenticate with mail providers that need an interactive login, such as Gmail.`,
	}

	cmd.AddCommand(authGmailCmd())

	return cmd
}

func authGmailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gmail",
		Short: "Authorize read-only access to a Gmail account",
		Long: `Authorize finmail to read a Gmail account.

This command will:
1. Start a local callback server
2. Print a Google consent URL to open in your browser
3. Save the resulting token under the configured token directory

Run it once per account; pass --account to keep tokens for several accounts.`,
		RunE: runAuthGmail,
	}

	cmd.Flags().String("account", "", "account name the token is stored under")

	return cmd
}

func runAuthGmail(cmd *cobra.Command, _ []string) error {
	account, _ := cmd.Flags().GetString("account")

	cfg, err := config.LoadGmailConfig()
	if err != nil {
		return fmt.Errorf("gmail credentials missing, add gmail.client_id and gmail.client_secret to the config file or set GMAIL_CLIENT_ID and GMAIL_CLIENT_SECRET: %w", err)
	}

	slog.Info("Starting Gmail authorization", "account", account, "callback", cfg.CallbackAddr)

	if _, err := mailbox.AuthenticateInteractive(cmd.Context(), *cfg, account); err != nil {
		return fmt.Errorf("gmail authorization failed: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Gmail authorized, token stored at "+cfg.TokenFile(account)))
	return err
}
