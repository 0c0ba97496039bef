package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/turnkit/internal/mcp"
	"github.com/apexion-ai/turnkit/internal/tools"
)

func newToolsCmd() *cobra.Command {
	var (
		withMCP    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools available to dispatch",
		Long:  "Lists the built-in tools and, with --mcp, connects every configured MCP server and lists its tools too.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			registry := tools.DefaultRegistry()
			var status map[string]string
			if withMCP {
				cwd, _ := os.Getwd()
				mcpCfg, err := mcp.LoadMCPConfig(cwd, cfg.MCPConfig)
				if err != nil {
					return err
				}
				manager := mcp.NewManager(mcpCfg, slog.Default())
				defer manager.Close()
				for _, err := range manager.ConnectAll(cmd.Context()) {
					slog.Warn("mcp server unavailable", "error", err)
				}
				mcp.RegisterTools(manager, registry)
				status = manager.Status()
			}

			out := cmd.OutOrStdout()
			if wantJSON(out, jsonOutput) {
				payload := map[string]any{"tools": registry.ToSchemas()}
				if status != nil {
					payload["mcp_servers"] = status
				}
				b, err := json.MarshalIndent(payload, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(b))
				return nil
			}
			printTools(out, registry, status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&withMCP, "mcp", false, "connect configured MCP servers and include their tools")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON output (default when stdout is not a terminal)")
	return cmd
}

func printTools(w io.Writer, registry *tools.Registry, status map[string]string) {
	fmt.Fprintf(w, "Tools (%d):\n", registry.Len())
	for _, t := range registry.All() {
		fmt.Fprintf(w, "  %-28s %s\n", t.Name(), t.Description())
	}
	if len(status) == 0 {
		return
	}
	servers := make([]string, 0, len(status))
	for name := range status {
		servers = append(servers, name)
	}
	sort.Strings(servers)
	fmt.Fprintln(w, "MCP servers:")
	for _, name := range servers {
		fmt.Fprintf(w, "  %-16s %s\n", name, status[name])
	}
}
