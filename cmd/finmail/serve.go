package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/finmail/internal/config"
	"github.com/Veraticus/finmail/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool invocation API over HTTP",
		Long: `Run the HTTP surface: tool invocations, tool listing, health and
readiness probes and Prometheus metrics.

Components that are not configured are left out and the tools that need
them are not registered.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default :8080 or :$PORT)")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load server config: %w", err)
	}

	a, err := buildApp(ctx, components{mailbox: true, database: true, llm: true, sessions: true})
	if err != nil {
		return err
	}
	defer a.Close()

	logger := slog.Default()
	handler := server.NewHandler(a.orch, a.converter, version)
	srv := server.New(*cfg, logger, handler.Router(logger))

	caps := a.orch.Capabilities()
	slog.Info("Starting finmail server",
		"addr", cfg.Addr,
		"email_processor", caps.HasMailbox,
		"database_service", caps.HasDatabase,
		"llm_analyzer", caps.HasLLM,
		"tools", len(a.orch.Registry().List()))

	return srv.Run(ctx)
}
