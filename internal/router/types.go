package router

// Capability names a class of user request.
type Capability string

const (
	CapabilityGeneral    Capability = "general"
	CapabilityCodeReview Capability = "code-review"
	CapabilityDebug      Capability = "debug"
	CapabilityTest       Capability = "test"
	CapabilityRefactor   Capability = "refactor"
	CapabilityGit        Capability = "git"
	CapabilityResearch   Capability = "research"
	CapabilityCodebase   Capability = "codebase"
	CapabilitySystem     Capability = "system"
	CapabilityDocs       Capability = "docs"
	CapabilitySecurity   Capability = "security"
)

// Tier is the classification stage that produced a result.
type Tier string

const (
	TierFast Tier = "fast"
	TierLLM  Tier = "llm"
)

// DefaultAgentID is used when a capability has no routing-table entry.
const DefaultAgentID = "default"

// RoutingResult is the outcome of one Route call. Every field is populated.
type RoutingResult struct {
	Capability Capability `json:"capability"`
	Confidence float64    `json:"confidence"`
	Tier       Tier       `json:"tier"`
	AgentID    string     `json:"agent_id"`
	Narration  string     `json:"narration"`
}

// RuntimeSnapshot describes the session state at routing time. It is
// accepted by Route but does not influence capability selection.
type RuntimeSnapshot struct {
	Provider    string
	Model       string
	ActiveAgent string
	TurnCount   int
	HasImage    bool
}

// DefaultRoutingTable returns a fresh copy of the built-in capability to
// agent mapping.
func DefaultRoutingTable() map[Capability]string {
	return map[Capability]string{
		CapabilityCodeReview: "reviewer",
		CapabilityDebug:      "debugger",
		CapabilityTest:       "tester",
		CapabilityRefactor:   "refactorer",
		CapabilityGit:        "git-agent",
		CapabilityResearch:   "researcher",
		CapabilityCodebase:   "navigator",
		CapabilitySystem:     "operator",
		CapabilityDocs:       "writer",
		CapabilitySecurity:   "auditor",
		CapabilityGeneral:    DefaultAgentID,
	}
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
