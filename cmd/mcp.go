package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/neotutor/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client ask the current tutor questions and read saved
transcripts. Configure it with:

  {
    "mcpServers": {
      "neotutor": { "command": "neotutor", "args": ["mcp"] }
    }
  }

Available tools: tutor_ask, tutor_whoami, tutor_history, tutor_transcript`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sess, err := requireSession(ctx)
		if err != nil {
			return err
		}
		client, err := getClient(ctx)
		if err != nil {
			return err
		}
		ts, err := getTutors(ctx)
		if err != nil {
			return err
		}
		s, err := getStore()
		if err != nil {
			return err
		}

		srv := mcp.NewServer(sess, client, ts, s, buildVersion)
		return srv.ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
