package router

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchSignals(t *testing.T) {
	signals := []IntentSignal{
		{Pattern: `(unclosed`, Capability: "broken", Confidence: 0.99},
		{Pattern: `\bdeploy\b`, Capability: "deploy", Confidence: 0.80},
		{Capability: "capped", Confidence: 0.98, Keywords: []string{"Ship It"}},
		{Capability: "blank", Confidence: 0.99, Keywords: []string{"", "  "}},
	}

	tests := []struct {
		name    string
		input   string
		want    Capability
		conf    float64
		keyword string
		found   bool
	}{
		{name: "pattern only gets no bonus", input: "please DEPLOY now", want: "deploy", conf: 0.80, found: true},
		{name: "keyword bonus capped at one", input: "ship it today", want: "capped", conf: 1.0, keyword: "ship it", found: true},
		{name: "invalid pattern and blank keywords are inert", input: "(unclosed", found: false},
		{name: "no match", input: "hello there", found: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := MatchSignals(tt.input, signals)
			require.Equal(t, tt.found, ok)
			if !tt.found {
				return
			}
			require.Equal(t, tt.want, m.Capability)
			require.InDelta(t, tt.conf, m.Confidence, 1e-9)
			require.Equal(t, tt.keyword, m.Keyword)
		})
	}
}

func TestMatchSignals_KeywordBeforePattern(t *testing.T) {
	sig, err := NewSignal("ops", 0.70, `restart`, "restart service")
	require.NoError(t, err)

	m, ok := MatchSignals("restart service please", []IntentSignal{sig})
	require.True(t, ok)
	require.InDelta(t, 0.75, m.Confidence, 1e-9)
	require.Equal(t, "restart service", m.Keyword)

	m, ok = MatchSignals("restart the box", []IntentSignal{sig})
	require.True(t, ok)
	require.InDelta(t, 0.70, m.Confidence, 1e-9)
	require.Empty(t, m.Keyword)
}

func TestMatchSignals_FirstSeenWinsTie(t *testing.T) {
	signals := []IntentSignal{
		{Capability: "first", Confidence: 0.8, Keywords: []string{"alpha"}},
		{Capability: "second", Confidence: 0.8, Keywords: []string{"alpha"}},
		{Capability: "lower", Confidence: 0.5, Keywords: []string{"alpha"}},
	}
	m, ok := MatchSignals("ALPHA", signals)
	require.True(t, ok)
	require.Equal(t, Capability("first"), m.Capability)
}

func TestMatchSignals_HighestConfidenceWins(t *testing.T) {
	signals := []IntentSignal{
		{Capability: "low", Confidence: 0.6, Keywords: []string{"alpha"}},
		{Capability: "high", Confidence: 0.9, Pattern: `beta`},
	}
	m, ok := MatchSignals("alpha beta", signals)
	require.True(t, ok)
	require.Equal(t, Capability("high"), m.Capability)
}

func TestBuiltinSignals(t *testing.T) {
	tests := []struct {
		input string
		want  Capability
		conf  float64
	}{
		{"please review my code", CapabilityCodeReview, 0.90},
		{"the build fails with a nil pointer", CapabilityDebug, 0.87},
		{"rebase my feature branch", CapabilityGit, 0.85},
		{"write tests for the parser", CapabilityTest, 0.85},
		{"refactor this handler", CapabilityRefactor, 0.85},
		{"find where ParseConfig is defined", CapabilityCodebase, 0.78},
		{"is there an sql injection here", CapabilitySecurity, 0.93},
		{"compare postgres and mysql", CapabilityResearch, 0.70},
		{"show df output", CapabilitySystem, 0.72},
		{"update the readme", CapabilityDocs, 0.79},
		{"帮我看看这个报错", CapabilityDebug, 0.87},
	}
	signals := BuiltinSignals()
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			m, ok := MatchSignals(tt.input, signals)
			require.True(t, ok)
			require.Equal(t, tt.want, m.Capability)
			require.InDelta(t, tt.conf, m.Confidence, 1e-9)
		})
	}

	_, ok := MatchSignals("asdkjasd completely unrelated gibberish", signals)
	require.False(t, ok)
}

func TestNewSignal_Validation(t *testing.T) {
	_, err := NewSignal("x", 0.5, `([a-z`)
	require.ErrorIs(t, err, ErrInvalidSignal)

	_, err = NewSignal("x", 1.5, "", "kw")
	require.ErrorIs(t, err, ErrInvalidSignal)

	_, err = NewSignal("", 0.5, "", "kw")
	require.ErrorIs(t, err, ErrInvalidSignal)

	_, err = NewSignal("x", 0.5, "", " ", "")
	require.ErrorIs(t, err, ErrInvalidSignal)

	sig, err := NewSignal("x", 0.5, "", " MiXed ")
	require.NoError(t, err)
	require.Equal(t, []string{"mixed"}, sig.Keywords)
}
