package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/apexion-ai/turnkit/internal/config"
	"github.com/apexion-ai/turnkit/internal/mcp"
	"github.com/apexion-ai/turnkit/internal/permission"
	"github.com/apexion-ai/turnkit/internal/tools"
)

func newDispatchCmd() *cobra.Command {
	var (
		callsPath string
		allow     []string
		timeout   time.Duration
		noMCP     bool
		strict    bool
	)

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run a batch of tool calls concurrently",
		Long: "Reads a JSON array of tool calls ({id, name, arguments}) and runs them against the built-in " +
			"and MCP tools. Results are printed as JSON in call order.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("allow") {
				cfg.Dispatcher.AllowedTools = allow
			}
			if timeout > 0 {
				cfg.Dispatcher.Timeout = timeout
			}

			calls, err := readCalls(cmd.InOrStdin(), callsPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			logger := slog.Default()
			registry := tools.DefaultRegistry()
			if !noMCP {
				manager, err := attachMCPTools(ctx, cfg, calls, registry, logger)
				if err != nil {
					return err
				}
				if manager != nil {
					defer manager.Close()
				}
			}

			results := runDispatch(ctx, cfg, calls, registry, cfg.AllowList(), logger)

			b, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))

			if strict {
				failed := 0
				for _, r := range results {
					if r.Failed() {
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d/%d tool calls failed", failed, len(results))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&callsPath, "calls", "-", "path to a JSON array of tool calls (- for stdin)")
	cmd.Flags().StringSliceVar(&allow, "allow", nil, "tool allow-list, comma separated; * permits every tool (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-call timeout (default from config)")
	cmd.Flags().BoolVar(&noMCP, "no-mcp", false, "do not connect MCP servers")
	cmd.Flags().BoolVar(&strict, "strict", false, "return non-zero when any call fails")
	return cmd
}

func runDispatch(ctx context.Context, cfg *config.Config, calls []tools.ToolCall, registry *tools.Registry, allow permission.AllowList, logger *slog.Logger) []tools.ToolResult {
	d := tools.NewDispatcher(cfg.DispatcherOptions(logger))
	return d.Dispatch(ctx, calls, registry, allow)
}

// readCalls parses the call batch and assigns an ID to every call that has
// none.
func readCalls(stdin io.Reader, path string) ([]tools.ToolCall, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read calls: %w", err)
	}

	var calls []tools.ToolCall
	if err := json.Unmarshal(data, &calls); err != nil {
		return nil, fmt.Errorf("parse calls: %w", err)
	}
	for i := range calls {
		if strings.TrimSpace(calls[i].Name) == "" {
			return nil, fmt.Errorf("call %d: name is required", i)
		}
		if calls[i].ID == "" {
			calls[i].ID = "call_" + uuid.NewString()
		}
	}
	return calls, nil
}

// attachMCPTools connects only the MCP servers the batch refers to and
// registers their tools. Servers that fail to connect are logged; their
// calls then fail as unregistered. It returns nil when no server is needed.
func attachMCPTools(ctx context.Context, cfg *config.Config, calls []tools.ToolCall, registry *tools.Registry, logger *slog.Logger) (*mcp.Manager, error) {
	seen := make(map[string]bool)
	var servers []string
	for _, c := range calls {
		server, _, ok := mcp.SplitToolName(c.Name)
		if !ok || seen[server] {
			continue
		}
		seen[server] = true
		servers = append(servers, server)
	}
	if len(servers) == 0 {
		return nil, nil
	}

	cwd, _ := os.Getwd()
	mcpCfg, err := mcp.LoadMCPConfig(cwd, cfg.MCPConfig)
	if err != nil {
		return nil, err
	}
	if len(mcpCfg.MCPServers) == 0 {
		logger.Warn("batch calls MCP tools but no MCP servers are configured", "servers", servers)
		return nil, nil
	}

	manager := mcp.NewManager(mcpCfg, logger)
	_, errs := manager.EnsureConnected(ctx, servers)
	if err := errors.Join(errs...); err != nil {
		logger.Warn("some MCP servers are unavailable", "error", err)
	}
	n := mcp.RegisterTools(manager, registry)
	logger.Debug("mcp tools registered", "count", n)
	return manager, nil
}
