package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/apexion-ai/turnkit/internal/provider"
)

var (
	// ErrMalformedClassification is returned when the classifier reply is not a
	// JSON object with both required fields of the right type.
	ErrMalformedClassification = errors.New("malformed classification")
	// ErrUnknownCapability is returned when the classifier names a capability
	// outside the routing table.
	ErrUnknownCapability = errors.New("unknown capability")
	// ErrClassifierFailed is returned when the adapter errors or answers with
	// anything but text.
	ErrClassifierFailed = errors.New("classifier failed")
)

// maxPromptInput bounds the user text embedded in the classifier prompt.
const maxPromptInput = 4000

const classifierSystemPrompt = `You route user requests for a coding assistant.
Pick exactly one capability from the list that best fits the request.
Reply with a single JSON object and nothing else:
{"capability": "<one of the listed capabilities>", "confidence": <number between 0 and 1>}`

// buildClassifierMessages renders the Tier-2 prompt: every capability in the
// routing table followed by the verbatim input.
func buildClassifierMessages(input string, table map[Capability]string) []provider.Message {
	caps := sortedCapabilities(table)

	var b strings.Builder
	b.WriteString("Capabilities:\n")
	for _, c := range caps {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\nRequest:\n")
	b.WriteString(truncateUTF8(input, maxPromptInput))

	return []provider.Message{
		provider.SystemMessage(classifierSystemPrompt),
		provider.UserMessage(b.String()),
	}
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func sortedCapabilities(table map[Capability]string) []Capability {
	caps := make([]Capability, 0, len(table))
	for c := range table {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// classification is the validated classifier answer.
type classification struct {
	Capability Capability
	Confidence float64
}

// parseClassification validates a classifier reply against the routing
// table. Markdown code fences around the object are tolerated. The returned
// confidence is clamped to [0,1].
func parseClassification(content string, table map[Capability]string) (classification, error) {
	body := stripCodeFence(content)

	var raw struct {
		Capability *string         `json:"capability"`
		Confidence json.RawMessage `json:"confidence"`
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(&raw); err != nil {
		return classification{}, fmt.Errorf("%w: %v", ErrMalformedClassification, err)
	}
	if dec.More() {
		return classification{}, fmt.Errorf("%w: trailing data after object", ErrMalformedClassification)
	}
	if raw.Capability == nil {
		return classification{}, fmt.Errorf("%w: missing capability", ErrMalformedClassification)
	}
	if len(raw.Confidence) == 0 || string(raw.Confidence) == "null" {
		return classification{}, fmt.Errorf("%w: missing confidence", ErrMalformedClassification)
	}
	var conf float64
	if err := json.Unmarshal(raw.Confidence, &conf); err != nil {
		return classification{}, fmt.Errorf("%w: confidence %s is not a number", ErrMalformedClassification, raw.Confidence)
	}

	capability := Capability(strings.TrimSpace(*raw.Capability))
	if _, ok := table[capability]; !ok {
		return classification{}, fmt.Errorf("%w: %q", ErrUnknownCapability, capability)
	}
	return classification{Capability: capability, Confidence: clamp01(conf)}, nil
}

// stripCodeFence removes a surrounding ```json ... ``` fence, if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
