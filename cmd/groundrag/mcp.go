package main

import (
	"github.com/spf13/cobra"

	"groundrag/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the ask tools over MCP",
	Long: `Starts a Model Context Protocol server on stdio exposing two tools:
ask (answer from the index) and ask_document (answer from a supplied document).

Claude Desktop configuration (claude_desktop_config.json):
  {
    "mcpServers": {
      "groundrag": {
        "command": "/path/to/groundrag",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer closeApp(a)

	server, err := mcp.NewServer(a.Pipeline, a.Log.Named("mcp"))
	if err != nil {
		return err
	}
	return server.Run(cmd.Context())
}
