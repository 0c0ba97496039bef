package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apexion-ai/turnkit/internal/permission"
)

// DefaultTimeout bounds each tool call.
const DefaultTimeout = 30 * time.Second

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Dispatcher runs the tool calls of one agent turn concurrently. It is
// stateless between batches and safe for concurrent use.
type Dispatcher struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{timeout: timeout, logger: logger.With("component", "dispatcher")}
}

// Timeout returns the per-call timeout.
func (d *Dispatcher) Timeout() time.Duration { return d.timeout }

// Dispatch executes every call concurrently and returns one result per call,
// in input order. Calls not permitted by allow, or absent from registry, are
// rejected without running a handler. Individual failures never abort the
// batch. A nil allow-list permits nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []ToolCall, registry *Registry, allow permission.AllowList) []ToolResult {
	ctx, span := tracer.Start(ctx, "tools.Dispatch",
		trace.WithAttributes(attribute.Int("calls", len(calls))),
	)
	defer span.End()

	if allow == nil {
		allow = permission.Named()
	}

	results := make([]ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call ToolCall) {
			defer wg.Done()
			results[idx] = d.dispatchOne(ctx, call, registry, allow)
		}(i, call)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("failed", failed))
	return results
}

// callOutcome carries a handler's return values across the goroutine
// boundary.
type callOutcome struct {
	output any
	err    error
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call ToolCall, registry *Registry, allow permission.AllowList) ToolResult {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "tools.call",
		trace.WithAttributes(attribute.String("tool", call.Name), attribute.String("call_id", call.ID)),
	)
	defer span.End()

	result := ToolResult{ToolCallID: call.ID, Name: call.Name}
	finish := func(outcome string) ToolResult {
		elapsed := time.Since(start)
		result.DurationMs = elapsed.Milliseconds()
		dispatchCallsTotal.WithLabelValues(outcome).Inc()
		dispatchCallDuration.Observe(elapsed.Seconds())
		span.SetAttributes(attribute.String("outcome", outcome))
		if result.Error != "" {
			span.SetStatus(codes.Error, result.Error)
		}
		return result
	}

	if !allow.Permits(call.Name) {
		result.Error = fmt.Sprintf("tool %q is not in the agent's allowedTools list", call.Name)
		d.logger.Warn("tool call denied", "tool", call.Name, "call_id", call.ID)
		return finish(outcomeDenied)
	}
	tool, ok := registry.Get(call.Name)
	if !ok {
		result.Error = fmt.Sprintf("tool %q is not registered", call.Name)
		d.logger.Warn("tool not registered", "tool", call.Name, "call_id", call.ID)
		return finish(outcomeUnregistered)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	// Buffered so a handler finishing after the timeout never blocks; its
	// value is dropped with the channel.
	done := make(chan callOutcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- callOutcome{err: fmt.Errorf("tool %q panicked: %v", call.Name, rec)}
			}
		}()
		out, err := tool.Execute(callCtx, call.Arguments)
		done <- callOutcome{output: out, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			result.Error = o.err.Error()
			d.logger.Debug("tool call failed", "tool", call.Name, "call_id", call.ID, "error", o.err)
			return finish(outcomeError)
		}
		result.Output = o.output
		d.logger.Debug("tool call completed", "tool", call.Name, "call_id", call.ID,
			"duration", time.Since(start))
		return finish(outcomeOK)

	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			result.Error = fmt.Sprintf("tool %q timed out after %dms", call.Name, d.timeout.Milliseconds())
			d.logger.Warn("tool call timed out", "tool", call.Name, "call_id", call.ID, "timeout", d.timeout)
			return finish(outcomeTimeout)
		}
		result.Error = fmt.Sprintf("tool %q cancelled: %v", call.Name, ctx.Err())
		d.logger.Warn("tool call cancelled", "tool", call.Name, "call_id", call.ID, "error", ctx.Err())
		return finish(outcomeCancelled)
	}
}
