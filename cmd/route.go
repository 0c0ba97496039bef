package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/turnkit/internal/config"
	"github.com/apexion-ai/turnkit/internal/history"
	"github.com/apexion-ai/turnkit/internal/router"
)

func newRouteCmd() *cobra.Command {
	var (
		offline    bool
		jsonOutput bool
		record     bool
	)

	cmd := &cobra.Command{
		Use:   "route [text]",
		Short: "Route a user turn to a capability and agent",
		Long:  "Classifies the turn given as arguments, or read from stdin when none are given, and prints the routing result.",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			cfg, err := initConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			rt, err := buildRouter(cfg, offline)
			if err != nil {
				return err
			}

			res := rt.Route(cmd.Context(), input, router.RuntimeSnapshot{
				Provider: cfg.Provider,
				Model:    cfg.ResolveModel(),
			})
			store := openDecisionLog(cfg, record || cfg.History.Record)
			defer store.Close()
			recordDecision(cmd.Context(), store, input, res)
			return printRouting(cmd.OutOrStdout(), res, wantJSON(cmd.OutOrStdout(), jsonOutput))
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "route without a classifier (Tier-1 only, escalations fall back)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON output (default when stdout is not a terminal)")
	cmd.Flags().BoolVar(&record, "record", false, "store the decision in the routing history")
	return cmd
}

// recordDecision appends res to the history. Failures are logged only; the
// routing result is still printed.
func recordDecision(ctx context.Context, store history.Store, input string, res router.RoutingResult) {
	if _, err := store.Add(ctx, input, res); err != nil {
		slog.Warn("recording routing decision failed", "error", err)
	}
}

// openDecisionLog returns the history store, or a NullStore when recording
// is off or the log cannot be opened.
func openDecisionLog(cfg *config.Config, enabled bool) history.Store {
	if !enabled {
		return history.NullStore{}
	}
	store, err := cfg.OpenHistory()
	if err != nil {
		slog.Warn("routing history unavailable", "error", err)
		return history.NullStore{}
	}
	return store
}

// readInput joins args, or reads all of r when args is empty.
func readInput(r io.Reader, args []string) (string, error) {
	var input string
	if len(args) > 0 {
		input = strings.Join(args, " ")
	} else {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		input = string(data)
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("no input: pass text as arguments or on stdin")
	}
	return input, nil
}

func printRouting(w io.Writer, res router.RoutingResult, asJSON bool) error {
	if asJSON {
		b, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	fmt.Fprintf(w, "%s\n", res.Narration)
	fmt.Fprintf(w, "capability: %s\n", res.Capability)
	fmt.Fprintf(w, "agent:      %s\n", res.AgentID)
	fmt.Fprintf(w, "tier:       %s\n", res.Tier)
	fmt.Fprintf(w, "confidence: %.2f\n", res.Confidence)
	return nil
}
