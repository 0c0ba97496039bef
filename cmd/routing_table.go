package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/turnkit/internal/router"
)

type signalView struct {
	Capability router.Capability `json:"capability"`
	Confidence float64           `json:"confidence"`
	Pattern    string            `json:"pattern,omitempty"`
	Keywords   []string          `json:"keywords,omitempty"`
}

type routingTableView struct {
	Threshold float64                      `json:"threshold"`
	Agents    map[router.Capability]string `json:"agents"`
	Signals   []signalView                 `json:"signals,omitempty"`
}

func newRoutingTableCmd() *cobra.Command {
	var (
		jsonOutput  bool
		showSignals bool
	)

	cmd := &cobra.Command{
		Use:   "routing-table",
		Short: "Print the effective capability to agent table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			rt, err := buildRouter(cfg, true)
			if err != nil {
				return err
			}

			view := routingTableView{
				Threshold: rt.Threshold(),
				Agents:    rt.RoutingTable(),
			}
			if showSignals {
				for _, s := range rt.Signals() {
					view.Signals = append(view.Signals, signalView{
						Capability: s.Capability,
						Confidence: s.Confidence,
						Pattern:    s.Pattern,
						Keywords:   s.Keywords,
					})
				}
			}

			out := cmd.OutOrStdout()
			if wantJSON(out, jsonOutput) {
				b, err := json.MarshalIndent(view, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(b))
				return nil
			}
			printRoutingTable(out, view)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON output (default when stdout is not a terminal)")
	cmd.Flags().BoolVar(&showSignals, "signals", false, "also list the Tier-1 signals in match order")
	return cmd
}

func printRoutingTable(w io.Writer, v routingTableView) {
	caps := make([]string, 0, len(v.Agents))
	for c := range v.Agents {
		caps = append(caps, string(c))
	}
	sort.Strings(caps)

	fmt.Fprintf(w, "Escalation threshold: %.2f\n", v.Threshold)
	for _, c := range caps {
		fmt.Fprintf(w, "  %-12s -> %s\n", c, v.Agents[router.Capability(c)])
	}
	if len(v.Signals) == 0 {
		return
	}
	fmt.Fprintf(w, "Signals (%d):\n", len(v.Signals))
	for _, s := range v.Signals {
		fmt.Fprintf(w, "  %-12s %.2f", s.Capability, s.Confidence)
		if s.Pattern != "" {
			fmt.Fprintf(w, "  /%s/", s.Pattern)
		}
		if len(s.Keywords) > 0 {
			kw := s.Keywords
			suffix := ""
			if len(kw) > 6 {
				kw, suffix = kw[:6], fmt.Sprintf(" (+%d)", len(s.Keywords)-6)
			}
			fmt.Fprintf(w, "  [%s]%s", strings.Join(kw, ", "), suffix)
		}
		fmt.Fprintln(w)
	}
}
