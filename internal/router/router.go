// Package router picks the capability and agent for a user turn. A fast
// keyword/pattern pass (Tier-1) handles confident matches; everything else
// is escalated to a generative classifier (Tier-2) whose answers are cached.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/apexion-ai/turnkit/internal/provider"
)

const (
	// DefaultThreshold is the Tier-1 confidence below which Route escalates.
	DefaultThreshold = 0.75
	// DefaultClassifierMaxTokens bounds the classifier reply.
	DefaultClassifierMaxTokens = 128

	fallbackConfidence = 0.5
)

// Options configures a Router. The zero value is usable: no classifier,
// built-in signals and the default routing table.
type Options struct {
	// Completer is the Tier-2 adapter. Nil means provider.NoCompleter.
	Completer provider.Completer
	// Model, MaxTokens and Temperature are passed to the completer.
	Model       string
	MaxTokens   int
	Temperature float64

	// Threshold overrides DefaultThreshold when positive.
	Threshold float64
	// Agents overlays the default routing table.
	Agents map[Capability]string

	CacheTTL        time.Duration
	CacheMaxEntries int

	// Limiter caps classifier calls. When it denies a call, Route falls back
	// without contacting the model. Nil means unlimited.
	Limiter *rate.Limiter

	Logger *slog.Logger
	// Now is the cache clock; nil means time.Now.
	Now func() time.Time
}

// Router is safe for concurrent use.
type Router struct {
	completer   provider.Completer
	model       string
	maxTokens   int
	temperature float64
	threshold   float64
	table       map[Capability]string
	cache       *classifierCache
	limiter     *rate.Limiter
	logger      *slog.Logger

	regMu   sync.Mutex
	signals atomic.Pointer[[]IntentSignal]
}

// New builds a Router with the built-in signals.
func New(opts Options) *Router {
	completer := opts.Completer
	if completer == nil {
		completer = provider.NoCompleter{}
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultClassifierMaxTokens
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	table := DefaultRoutingTable()
	for c, agent := range opts.Agents {
		if c != "" && agent != "" {
			table[c] = agent
		}
	}

	r := &Router{
		completer:   completer,
		model:       opts.Model,
		maxTokens:   maxTokens,
		temperature: opts.Temperature,
		threshold:   threshold,
		table:       table,
		cache:       newClassifierCache(opts.CacheTTL, opts.CacheMaxEntries, opts.Now),
		limiter:     opts.Limiter,
		logger:      logger.With("component", "router"),
	}
	builtin := BuiltinSignals()
	r.signals.Store(&builtin)
	return r
}

// RegisterSignals prepends signals ahead of the current list so they win
// ties. Every signal is validated first; if any is invalid nothing is
// registered. Duplicates are allowed.
func (r *Router) RegisterSignals(signals ...IntentSignal) error {
	custom := make([]IntentSignal, 0, len(signals))
	for _, s := range signals {
		s.Keywords = normalizeKeywords(s.Keywords)
		if err := s.compile(); err != nil {
			return err
		}
		custom = append(custom, s)
	}

	r.regMu.Lock()
	defer r.regMu.Unlock()
	current := *r.signals.Load()
	next := make([]IntentSignal, 0, len(custom)+len(current))
	next = append(next, custom...)
	next = append(next, current...)
	r.signals.Store(&next)
	return nil
}

// Signals returns a copy of the active signal list in match order.
func (r *Router) Signals() []IntentSignal {
	cur := *r.signals.Load()
	out := make([]IntentSignal, len(cur))
	copy(out, cur)
	return out
}

// RoutingTable returns a copy of the capability to agent mapping.
func (r *Router) RoutingTable() map[Capability]string {
	out := make(map[Capability]string, len(r.table))
	for c, a := range r.table {
		out[c] = a
	}
	return out
}

// Threshold returns the escalation threshold in effect.
func (r *Router) Threshold() float64 { return r.threshold }

// Route classifies input. It always returns a fully populated result; every
// failure degrades to a fallback. The snapshot is accepted for callers that
// track session state but does not affect the decision.
func (r *Router) Route(ctx context.Context, input string, _ RuntimeSnapshot) RoutingResult {
	ctx, span := tracer.Start(ctx, "router.Route",
		trace.WithAttributes(attribute.Int("input_len", len(input))),
	)
	defer span.End()

	hint, hasHint := MatchSignals(input, *r.signals.Load())
	if hasHint && hint.Confidence >= r.threshold {
		res := RoutingResult{
			Capability: hint.Capability,
			Confidence: hint.Confidence,
			Tier:       TierFast,
			AgentID:    r.agentFor(hint.Capability),
			Narration:  fastNarration(hint, r.agentFor(hint.Capability)),
		}
		routeTotal.WithLabelValues(string(TierFast), outcomeMatched).Inc()
		r.logger.Debug("routed by signal",
			"capability", res.Capability, "confidence", res.Confidence, "agent", res.AgentID)
		annotate(span, res, outcomeMatched)
		return res
	}

	key := cacheKey(input)
	if res, ok := r.cache.get(key); ok {
		routeTotal.WithLabelValues(string(res.Tier), outcomeCacheHit).Inc()
		r.logger.Debug("routed from classifier cache", "capability", res.Capability, "agent", res.AgentID)
		annotate(span, res, outcomeCacheHit)
		return res
	}

	var hintPtr *SignalMatch
	if hasHint {
		hintPtr = &hint
	}
	res, outcome := r.classify(ctx, input, hintPtr)
	if ctx.Err() == nil {
		r.cache.put(key, res)
	}
	routeTotal.WithLabelValues(string(res.Tier), outcome).Inc()
	annotate(span, res, outcome)
	return res
}

// classify runs Tier-2 and falls back on any failure.
func (r *Router) classify(ctx context.Context, input string, hint *SignalMatch) (RoutingResult, string) {
	ctx, span := tracer.Start(ctx, "router.classify")
	defer span.End()

	if r.limiter != nil && !r.limiter.Allow() {
		classifierRejectTotal.WithLabelValues("rate_limited").Inc()
		return r.fallback(errors.New("classifier rate limit exceeded"), hint), outcomeFallback
	}

	msgs := buildClassifierMessages(input, r.table)
	start := time.Now()
	sig, err := r.completer.Complete(ctx, msgs, provider.CompletionConfig{
		Model:       r.model,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	classifierLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		reason := "adapter_error"
		if errors.Is(err, provider.ErrNoCompleter) {
			reason = "no_adapter"
		}
		classifierRejectTotal.WithLabelValues(reason).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "classifier failed")
		return r.fallback(fmt.Errorf("%w: %v", ErrClassifierFailed, err), hint), outcomeFallback
	}

	if sig.Type != provider.SignalText {
		classifierRejectTotal.WithLabelValues("non_text").Inc()
		detail := string(sig.Type)
		if sig.Type == provider.SignalError {
			detail = fmt.Sprintf("error %s: %s", sig.Code, sig.Message)
		}
		return r.fallback(fmt.Errorf("%w: %s signal", ErrClassifierFailed, detail), hint), outcomeFallback
	}

	c, err := parseClassification(sig.Content, r.table)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, ErrUnknownCapability) {
			reason = "unknown_capability"
		}
		classifierRejectTotal.WithLabelValues(reason).Inc()
		return r.fallback(err, hint), outcomeFallback
	}

	agent := r.agentFor(c.Capability)
	r.logger.Debug("routed by classifier",
		"capability", c.Capability, "confidence", c.Confidence, "agent", agent)
	return RoutingResult{
		Capability: c.Capability,
		Confidence: c.Confidence,
		Tier:       TierLLM,
		AgentID:    agent,
		Narration:  fmt.Sprintf("Classifier selected %s (confidence %.2f); routing to %s", c.Capability, c.Confidence, agent),
	}, outcomeClassified
}

// fallback resolves to the Tier-1 hint when there was one, else general.
func (r *Router) fallback(cause error, hint *SignalMatch) RoutingResult {
	capability, conf := CapabilityGeneral, fallbackConfidence
	source := "no signal matched"
	if hint != nil {
		capability, conf = hint.Capability, clamp01(hint.Confidence)
		source = "using low-confidence signal match"
	}
	agent := r.agentFor(capability)

	r.logger.Warn("classifier fallback",
		"cause", cause, "capability", capability, "confidence", conf, "agent", agent)
	return RoutingResult{
		Capability: capability,
		Confidence: conf,
		Tier:       TierLLM,
		AgentID:    agent,
		Narration:  fmt.Sprintf("Classifier unavailable (%v); %s, routing %s (confidence %.2f) to %s", cause, source, capability, conf, agent),
	}
}

func (r *Router) agentFor(c Capability) string {
	if agent, ok := r.table[c]; ok {
		return agent
	}
	return DefaultAgentID
}

func fastNarration(m SignalMatch, agent string) string {
	if m.Keyword != "" {
		return fmt.Sprintf("Matched %s keyword %q (confidence %.2f); routing to %s", m.Capability, m.Keyword, m.Confidence, agent)
	}
	return fmt.Sprintf("Matched %s pattern (confidence %.2f); routing to %s", m.Capability, m.Confidence, agent)
}

func annotate(span trace.Span, res RoutingResult, outcome string) {
	span.SetAttributes(
		attribute.String("capability", string(res.Capability)),
		attribute.String("tier", string(res.Tier)),
		attribute.String("agent", res.AgentID),
		attribute.Float64("confidence", res.Confidence),
		attribute.String("outcome", outcome),
	)
}
