package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/joescharf/reviewctl/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients list, submit and follow code reviews. Configure
the client with:

  {
    "mcpServers": {
      "reviewctl": { "command": "reviewctl", "args": ["mcp"] }
    }
  }

Available tools: review_list, review_get, review_create, review_delete,
review_reanalyze, review_poll, review_stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		srv := mcp.NewServer(s, application.Go, buildVersion)
		if err := srv.ServeStdio(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
