package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/postindex/internal/logging"
	"github.com/Aman-CERP/postindex/internal/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run an MCP server exposing search, suggest, filter_articles and list_tags",
		Long: `Run a Model Context Protocol server over stdio. stdout carries the
protocol stream, so logs go only to ~/.postindex/logs/mcp.log.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationOwnLogging: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := a.cfg.Logging.Level
			if a.debug {
				level = "debug"
			}
			cleanup, err := logging.SetupMCPMode(level)
			if err != nil {
				return fmt.Errorf("failed to setup MCP logging: %w", err)
			}
			defer cleanup()
			a.logger = slog.Default()

			client, err := a.newClient()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			srv, err := mcp.NewServer(client, mcp.Options{
				SearchIndexURL: a.indexURL(a.cfg.Index.SearchURL),
				FilterIndexURL: a.indexURL(a.cfg.Index.FilterURL),
				Logger:         a.logger,
			})
			if err != nil {
				return err
			}
			return srv.Serve(cmd.Context(), transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "MCP transport (stdio)")
	return cmd
}
