package router

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestEvaluateDataset(t *testing.T) {
	ds := &EvalDataset{
		Version: "test",
		Cases: []EvalCase{
			{
				ID:                 "review_fast",
				Input:              "please review my code",
				ExpectedCapability: CapabilityCodeReview,
				ExpectedTier:       TierFast,
				ExpectedAgent:      "reviewer",
				MinConfidence:      0.9,
			},
			{
				ID:                 "gibberish_fallback",
				Input:              gibberish,
				ExpectedCapability: CapabilityGeneral,
				ExpectedTier:       TierLLM,
				ExpectedAgent:      DefaultAgentID,
			},
			{
				ID:                 "wrong_on_purpose",
				Input:              "rebase my branch",
				ExpectedCapability: CapabilityDocs,
			},
		},
	}

	summary, results := EvaluateDataset(context.Background(), New(Options{}), ds)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if summary.Pass != 2 || summary.Fail != 1 {
		t.Fatalf("expected 2 pass / 1 fail, got %+v", summary)
	}
	if summary.FastRouted != 2 || summary.LLMRouted != 1 {
		t.Fatalf("unexpected tier counts: %+v", summary)
	}
	if summary.TierHitRate() != 1 || summary.AgentHitRate() != 1 {
		t.Fatalf("unexpected hit rates: %+v", summary)
	}
	if results[2].Passed || len(results[2].Failures) != 1 {
		t.Fatalf("expected capability mismatch on last case, got %+v", results[2])
	}
}

func TestLoadEvalDataset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ds.json")
	data := `{"version":"1","cases":[{"input":"fix this panic","expected_capability":"debug"}]}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	ds, err := LoadEvalDataset(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ds.Cases[0].ID != "case_1" {
		t.Fatalf("expected generated id, got %q", ds.Cases[0].ID)
	}

	if err := os.WriteFile(path, []byte(`{"cases":[{"input":"x"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadEvalDataset(path); err == nil {
		t.Fatal("expected error for case without expected_capability")
	}

	if err := os.WriteFile(path, []byte(`{"cases":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadEvalDataset(path); err == nil {
		t.Fatal("expected error for empty dataset")
	}
}
