package router

import (
	"math"
	"strings"
)

// SignalMatch is the best Tier-1 hit for an input.
type SignalMatch struct {
	Capability Capability
	Confidence float64
	// Keyword is the keyword that hit, or "" for a pattern match.
	Keyword string
}

// MatchSignals scans signals in order against input and returns the
// highest-confidence match. The first signal seen wins exact ties. It never
// fails: signals with an invalid pattern simply do not match.
func MatchSignals(input string, signals []IntentSignal) (SignalMatch, bool) {
	lower := strings.ToLower(input)

	var (
		best  SignalMatch
		found bool
	)
	for i := range signals {
		sig := &signals[i]
		m, ok := matchOne(lower, sig)
		if !ok {
			continue
		}
		if !found || m.Confidence > best.Confidence {
			best, found = m, true
		}
	}
	return best, found
}

func matchOne(lower string, sig *IntentSignal) (SignalMatch, bool) {
	for _, kw := range sig.Keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(lower, kw) {
			return SignalMatch{
				Capability: sig.Capability,
				Confidence: math.Min(1, clamp01(sig.Confidence)+KeywordBonus),
				Keyword:    kw,
			}, true
		}
	}
	if sig.matchPattern(lower) {
		return SignalMatch{Capability: sig.Capability, Confidence: clamp01(sig.Confidence)}, true
	}
	return SignalMatch{}, false
}
