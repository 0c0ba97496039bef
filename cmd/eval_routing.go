package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/turnkit/internal/router"
)

func newEvalRoutingCmd() *cobra.Command {
	var (
		datasetPath string
		jsonOutput  bool
		strict      bool
		online      bool
	)

	cmd := &cobra.Command{
		Use:   "eval-routing",
		Short: "Evaluate intent router quality on an offline dataset",
		Long: "Routes every case of a labeled dataset and reports capability, tier and agent accuracy. " +
			"Runs without a classifier unless --online is set.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := router.LoadEvalDataset(datasetPath)
			if err != nil {
				return err
			}
			cfg, err := initConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			rt, err := buildRouter(cfg, !online)
			if err != nil {
				return err
			}

			summary, results := router.EvaluateDataset(cmd.Context(), rt, ds)

			out := cmd.OutOrStdout()
			if jsonOutput {
				payload := map[string]any{
					"dataset": datasetPath,
					"version": ds.Version,
					"summary": summary,
					"results": results,
				}
				b, _ := json.MarshalIndent(payload, "", "  ")
				fmt.Fprintln(out, string(b))
			} else {
				printEvalSummary(out, datasetPath, ds.Version, summary)
				printEvalFailures(out, results, 12)
			}

			if strict && summary.Fail > 0 {
				return fmt.Errorf("routing evaluation failed: %d/%d cases failed", summary.Fail, summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&datasetPath, "dataset", "docs/routing-eval-dataset.json", "path to evaluation dataset json")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON output")
	cmd.Flags().BoolVar(&strict, "strict", false, "return non-zero when any case fails")
	cmd.Flags().BoolVar(&online, "online", false, "use the configured provider as the Tier-2 classifier")
	return cmd
}

func printEvalSummary(w io.Writer, datasetPath, version string, s router.EvalSummary) {
	fmt.Fprintf(w, "Routing Evaluation\n")
	fmt.Fprintf(w, "Dataset: %s (version=%s)\n", datasetPath, version)
	fmt.Fprintf(w, "Total: %d  Pass: %d  Fail: %d\n", s.Total, s.Pass, s.Fail)
	fmt.Fprintf(w, "Capability: %d/%d (%.1f%%)\n", s.CapabilityCorrect, s.Total, 100*s.CapabilityAccuracy())
	fmt.Fprintf(w, "Tier:       %d/%d (%.1f%%)\n", s.TierCorrect, s.TierChecks, 100*s.TierHitRate())
	fmt.Fprintf(w, "Agent:      %d/%d (%.1f%%)\n", s.AgentCorrect, s.AgentChecks, 100*s.AgentHitRate())
	fmt.Fprintf(w, "Routed:     fast=%d llm=%d\n", s.FastRouted, s.LLMRouted)
}

func printEvalFailures(w io.Writer, results []router.EvalCaseResult, maxLines int) {
	failed := make([]router.EvalCaseResult, 0, len(results))
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		fmt.Fprintln(w, "Failures: 0")
		return
	}

	fmt.Fprintf(w, "Failures: %d\n", len(failed))
	for i, r := range failed {
		if i >= maxLines {
			fmt.Fprintf(w, "... and %d more failures\n", len(failed)-maxLines)
			return
		}
		fmt.Fprintf(w, "- %s\n", r.ID)
		fmt.Fprintf(w, "  expected: %s, actual: %s (%s, %.2f)\n",
			r.ExpectedCapability, r.Result.Capability, r.Result.Tier, r.Result.Confidence)
		for _, fail := range r.Failures {
			fmt.Fprintf(w, "  reason: %s\n", fail)
		}
	}
}
