package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/apexion-ai/turnkit/internal/permission"
)

func define(t *testing.T, reg *Registry, name string, h HandlerFunc) {
	t.Helper()
	require.NoError(t, reg.Define(ToolDefinition{Name: name, Handler: h}))
}

func echoHandler(_ context.Context, args map[string]any) (any, error) {
	return args["msg"], nil
}

func TestDispatch_MixedBatch(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the full default timeout")
	}
	reg := NewRegistry()
	define(t, reg, "echo", echoHandler)
	define(t, reg, "secret", echoHandler)
	define(t, reg, "hang", func(ctx context.Context, _ map[string]any) (any, error) {
		select {} // never returns
	})

	d := NewDispatcher(DispatcherOptions{})
	results := d.Dispatch(context.Background(), []ToolCall{
		{ID: "a", Name: "echo", Arguments: map[string]any{"msg": "hi"}},
		{ID: "b", Name: "secret"},
		{ID: "c", Name: "hang"},
	}, reg, permission.Named("echo", "hang"))

	require.Len(t, results, 3)
	require.Equal(t, "hi", results[0].Output)
	require.Empty(t, results[0].Error)
	require.Contains(t, results[1].Error, "not in the agent's allowedTools list")
	require.Nil(t, results[1].Output)
	require.Contains(t, results[2].Error, "30000ms")
	require.GreaterOrEqual(t, results[2].DurationMs, int64(30000))
}

func TestDispatch_TimeoutDiscardsLateCompletion(t *testing.T) {
	reg := NewRegistry()
	var finished atomic.Bool
	define(t, reg, "slow", func(context.Context, map[string]any) (any, error) {
		time.Sleep(80 * time.Millisecond) // ignores cancellation
		finished.Store(true)
		return "late", nil
	})

	d := NewDispatcher(DispatcherOptions{Timeout: 20 * time.Millisecond})
	results := d.Dispatch(context.Background(), []ToolCall{{ID: "1", Name: "slow"}}, reg, permission.Any())

	require.Equal(t, `tool "slow" timed out after 20ms`, results[0].Error)
	require.Nil(t, results[0].Output)
	require.Less(t, results[0].DurationMs, int64(80))

	require.Eventually(t, finished.Load, time.Second, 5*time.Millisecond)
	require.Nil(t, results[0].Output)
}

func TestDispatch_HandlerSeesCancellationOnTimeout(t *testing.T) {
	reg := NewRegistry()
	cancelled := make(chan struct{})
	define(t, reg, "wait", func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})

	d := NewDispatcher(DispatcherOptions{Timeout: 10 * time.Millisecond})
	d.Dispatch(context.Background(), []ToolCall{{ID: "1", Name: "wait"}}, reg, permission.Any())

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("handler context was not cancelled")
	}
}

func TestDispatch_AllowList(t *testing.T) {
	reg := NewRegistry()
	var runs atomic.Int32
	for _, name := range []string{"a", "b", "c"} {
		define(t, reg, name, func(context.Context, map[string]any) (any, error) {
			runs.Add(1)
			return "ok", nil
		})
	}
	calls := []ToolCall{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}, {ID: "3", Name: "c"}}
	d := NewDispatcher(DispatcherOptions{})

	results := d.Dispatch(context.Background(), calls, reg, permission.ParseAllowList([]string{"*"}))
	for _, r := range results {
		require.Empty(t, r.Error)
	}
	require.Equal(t, int32(3), runs.Load())

	runs.Store(0)
	results = d.Dispatch(context.Background(), calls, reg, permission.Named("b"))
	require.Contains(t, results[0].Error, `tool "a" is not in the agent's allowedTools list`)
	require.Empty(t, results[1].Error)
	require.Contains(t, results[2].Error, `tool "c" is not in the agent's allowedTools list`)
	require.Equal(t, int32(1), runs.Load(), "denied handlers never run")

	runs.Store(0)
	results = d.Dispatch(context.Background(), calls, reg, nil)
	for _, r := range results {
		require.Contains(t, r.Error, "not in the agent's allowedTools list")
	}
	require.Zero(t, runs.Load())
}

func TestDispatch_Unregistered(t *testing.T) {
	d := NewDispatcher(DispatcherOptions{})
	results := d.Dispatch(context.Background(), []ToolCall{{ID: "x", Name: "ghost"}}, NewRegistry(), permission.Any())
	require.Equal(t, `tool "ghost" is not registered`, results[0].Error)
	require.Equal(t, "x", results[0].ToolCallID)
	require.Equal(t, "ghost", results[0].Name)

	results = d.Dispatch(context.Background(), []ToolCall{{ID: "y", Name: "ghost"}}, nil, permission.Any())
	require.Contains(t, results[0].Error, "is not registered")
}

func TestDispatch_HandlerFaults(t *testing.T) {
	reg := NewRegistry()
	define(t, reg, "fail", func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("disk on fire")
	})
	define(t, reg, "boom", func(context.Context, map[string]any) (any, error) {
		panic("unexpected nil")
	})

	d := NewDispatcher(DispatcherOptions{})
	results := d.Dispatch(context.Background(), []ToolCall{
		{ID: "1", Name: "fail"},
		{ID: "2", Name: "boom"},
	}, reg, permission.Any())

	require.Equal(t, "disk on fire", results[0].Error)
	require.Nil(t, results[0].Output)
	require.Contains(t, results[1].Error, "panicked: unexpected nil")
}

func TestDispatch_ParentCancellation(t *testing.T) {
	reg := NewRegistry()
	define(t, reg, "wait", func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d := NewDispatcher(DispatcherOptions{Timeout: time.Minute})
	results := d.Dispatch(ctx, []ToolCall{{ID: "1", Name: "wait"}}, reg, permission.Any())

	require.Contains(t, results[0].Error, "cancelled")
	require.NotContains(t, results[0].Error, "timed out")
}

func TestDispatch_FullFanOut(t *testing.T) {
	const n = 8
	reg := NewRegistry()
	var started sync.WaitGroup
	started.Add(n)
	allStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(allStarted)
	}()
	define(t, reg, "barrier", func(ctx context.Context, _ map[string]any) (any, error) {
		started.Done()
		select {
		case <-allStarted:
			return "ok", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	calls := make([]ToolCall, n)
	for i := range calls {
		calls[i] = ToolCall{ID: fmt.Sprint(i), Name: "barrier"}
	}
	d := NewDispatcher(DispatcherOptions{Timeout: 2 * time.Second})
	results := d.Dispatch(context.Background(), calls, reg, permission.Any())
	for _, r := range results {
		require.Empty(t, r.Error, "every call must start before any completes")
	}
}

func TestDispatch_DurationMeasured(t *testing.T) {
	reg := NewRegistry()
	define(t, reg, "sleep", sleepHandler)
	d := NewDispatcher(DispatcherOptions{})

	results := d.Dispatch(context.Background(), []ToolCall{
		{ID: "1", Name: "sleep", Arguments: map[string]any{"ms": float64(30)}},
	}, reg, permission.Any())
	require.Empty(t, results[0].Error)
	require.GreaterOrEqual(t, results[0].DurationMs, int64(30))
}

func TestDispatch_Metrics(t *testing.T) {
	reg := NewRegistry()
	define(t, reg, "echo", echoHandler)
	d := NewDispatcher(DispatcherOptions{})

	ok := dispatchCallsTotal.WithLabelValues(outcomeOK)
	denied := dispatchCallsTotal.WithLabelValues(outcomeDenied)
	unregistered := dispatchCallsTotal.WithLabelValues(outcomeUnregistered)
	okBefore, deniedBefore, unregBefore := testutil.ToFloat64(ok), testutil.ToFloat64(denied), testutil.ToFloat64(unregistered)

	d.Dispatch(context.Background(), []ToolCall{
		{ID: "1", Name: "echo"},
		{ID: "2", Name: "echo"},
		{ID: "3", Name: "nope"},
	}, reg, permission.Named("echo", "nope"))
	d.Dispatch(context.Background(), []ToolCall{{ID: "4", Name: "echo"}}, reg, permission.Named())

	require.Equal(t, okBefore+2, testutil.ToFloat64(ok))
	require.Equal(t, deniedBefore+1, testutil.ToFloat64(denied))
	require.Equal(t, unregBefore+1, testutil.ToFloat64(unregistered))
}

func TestDispatch_PreservesOrderProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	reg := NewRegistry()
	define(t, reg, "jitter", func(ctx context.Context, args map[string]any) (any, error) {
		ms, _ := intArg(args, "ms", 0)
		time.Sleep(time.Duration(ms) * time.Millisecond)
		if fail, _ := boolArg(args, "fail"); fail {
			return nil, errors.New("jitter failed")
		}
		return args["id"], nil
	})
	d := NewDispatcher(DispatcherOptions{Timeout: time.Second})

	properties.Property("N calls yield N results in input order", prop.ForAll(
		func(delays []int, fails []bool, denied []bool) bool {
			calls := make([]ToolCall, len(delays))
			for i, ms := range delays {
				name := "jitter"
				if i < len(denied) && denied[i] {
					name = "forbidden"
				}
				calls[i] = ToolCall{
					ID:   fmt.Sprintf("call-%d", i),
					Name: name,
					Arguments: map[string]any{
						"ms":   float64(ms),
						"fail": i < len(fails) && fails[i],
						"id":   fmt.Sprintf("call-%d", i),
					},
				}
			}
			results := d.Dispatch(context.Background(), calls, reg, permission.Named("jitter"))
			if len(results) != len(calls) {
				return false
			}
			for i, r := range results {
				if r.ToolCallID != calls[i].ID || r.Name != calls[i].Name {
					return false
				}
				if r.Error == "" && r.Output != calls[i].ID {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 5)),
		gen.SliceOf(gen.Bool()),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
