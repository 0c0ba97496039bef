package router

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// EvalCase defines one offline routing evaluation sample.
type EvalCase struct {
	ID    string `json:"id"`
	Input string `json:"input"`

	ExpectedCapability Capability `json:"expected_capability"`
	ExpectedTier       Tier       `json:"expected_tier,omitempty"`
	ExpectedAgent      string     `json:"expected_agent,omitempty"`
	// MinConfidence, when set, fails the case if the result is less certain.
	MinConfidence float64 `json:"min_confidence,omitempty"`
}

// EvalDataset is a collection of routing evaluation cases.
type EvalDataset struct {
	Version string     `json:"version"`
	Cases   []EvalCase `json:"cases"`
}

// EvalCaseResult is the evaluated result for one sample.
type EvalCaseResult struct {
	ID     string        `json:"id"`
	Passed bool          `json:"passed"`
	Result RoutingResult `json:"result"`

	ExpectedCapability Capability `json:"expected_capability"`
	Failures           []string   `json:"failures,omitempty"`
}

// EvalSummary aggregates evaluation metrics.
type EvalSummary struct {
	Total int `json:"total"`
	Pass  int `json:"pass"`
	Fail  int `json:"fail"`

	CapabilityCorrect int `json:"capability_correct"`
	TierChecks        int `json:"tier_checks"`
	TierCorrect       int `json:"tier_correct"`
	AgentChecks       int `json:"agent_checks"`
	AgentCorrect      int `json:"agent_correct"`

	FastRouted int `json:"fast_routed"`
	LLMRouted  int `json:"llm_routed"`
}

func (s EvalSummary) CapabilityAccuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.CapabilityCorrect) / float64(s.Total)
}

func (s EvalSummary) TierHitRate() float64 {
	if s.TierChecks == 0 {
		return 0
	}
	return float64(s.TierCorrect) / float64(s.TierChecks)
}

func (s EvalSummary) AgentHitRate() float64 {
	if s.AgentChecks == 0 {
		return 0
	}
	return float64(s.AgentCorrect) / float64(s.AgentChecks)
}

// LoadEvalDataset reads and parses a routing evaluation dataset JSON file.
func LoadEvalDataset(path string) (*EvalDataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var ds EvalDataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	if len(ds.Cases) == 0 {
		return nil, fmt.Errorf("dataset has no cases")
	}
	for i := range ds.Cases {
		if strings.TrimSpace(ds.Cases[i].ID) == "" {
			ds.Cases[i].ID = fmt.Sprintf("case_%d", i+1)
		}
		if ds.Cases[i].ExpectedCapability == "" {
			return nil, fmt.Errorf("case %s: expected_capability is required", ds.Cases[i].ID)
		}
	}
	return &ds, nil
}

// EvaluateDataset routes every case through r and returns metrics.
func EvaluateDataset(ctx context.Context, r *Router, ds *EvalDataset) (EvalSummary, []EvalCaseResult) {
	summary := EvalSummary{Total: len(ds.Cases)}
	results := make([]EvalCaseResult, 0, len(ds.Cases))

	for _, c := range ds.Cases {
		res := r.Route(ctx, c.Input, RuntimeSnapshot{})
		cr := EvalCaseResult{
			ID:                 c.ID,
			Passed:             true,
			Result:             res,
			ExpectedCapability: c.ExpectedCapability,
		}

		switch res.Tier {
		case TierFast:
			summary.FastRouted++
		case TierLLM:
			summary.LLMRouted++
		}

		if res.Capability == c.ExpectedCapability {
			summary.CapabilityCorrect++
		} else {
			cr.Passed = false
			cr.Failures = append(cr.Failures, fmt.Sprintf("capability mismatch: want=%s got=%s", c.ExpectedCapability, res.Capability))
		}

		if c.ExpectedTier != "" {
			summary.TierChecks++
			if res.Tier == c.ExpectedTier {
				summary.TierCorrect++
			} else {
				cr.Passed = false
				cr.Failures = append(cr.Failures, fmt.Sprintf("tier mismatch: want=%s got=%s", c.ExpectedTier, res.Tier))
			}
		}

		if c.ExpectedAgent != "" {
			summary.AgentChecks++
			if res.AgentID == c.ExpectedAgent {
				summary.AgentCorrect++
			} else {
				cr.Passed = false
				cr.Failures = append(cr.Failures, fmt.Sprintf("agent mismatch: want=%s got=%s", c.ExpectedAgent, res.AgentID))
			}
		}

		if c.MinConfidence > 0 && res.Confidence < c.MinConfidence {
			cr.Passed = false
			cr.Failures = append(cr.Failures, fmt.Sprintf("confidence %.2f below %.2f", res.Confidence, c.MinConfidence))
		}

		if cr.Passed {
			summary.Pass++
		} else {
			summary.Fail++
		}
		results = append(results, cr)
	}

	return summary, results
}
