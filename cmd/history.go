package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/turnkit/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit      int
		search     string
		exportPath string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded routing decisions",
		Long: "Lists decisions stored by `turnkit route --record`, newest first. " +
			"--export writes them as an eval-routing dataset.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			store, err := cfg.OpenHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			var records []history.Record
			if search != "" {
				records, err = store.Search(ctx, search, limit)
			} else {
				records, err = store.List(ctx, limit)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if exportPath != "" {
				ds := history.ToDataset(time.Now().UTC().Format("2006-01-02"), records)
				b, err := json.MarshalIndent(ds, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(exportPath, append(b, '\n'), 0644); err != nil {
					return fmt.Errorf("write dataset: %w", err)
				}
				fmt.Fprintf(out, "Exported %d cases to %s\n", len(ds.Cases), exportPath)
				return nil
			}

			if wantJSON(out, jsonOutput) {
				if records == nil {
					records = []history.Record{}
				}
				b, err := json.MarshalIndent(records, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(b))
				return nil
			}
			printHistory(out, records)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max decisions to show")
	cmd.Flags().StringVar(&search, "search", "", "only decisions whose input or capability contains this text")
	cmd.Flags().StringVar(&exportPath, "export", "", "write the decisions as an eval-routing dataset to this path")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON output (default when stdout is not a terminal)")
	return cmd
}

func printHistory(w io.Writer, records []history.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No recorded decisions.")
		return
	}
	for _, r := range records {
		input := strings.ReplaceAll(r.Input, "\n", " ")
		if runes := []rune(input); len(runes) > 60 {
			input = string(runes[:57]) + "..."
		}
		fmt.Fprintf(w, "%s  %s  %-12s %-4s %.2f  %-10s %s\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Capability, r.Tier, r.Confidence, r.AgentID, input)
	}
}
