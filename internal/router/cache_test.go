package router

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestClassifierCache_TTL(t *testing.T) {
	clock := newFakeClock()
	c := newClassifierCache(0, 0, clock.Now)
	res := RoutingResult{Capability: CapabilityDebug, Confidence: 0.7, Tier: TierLLM, AgentID: "debugger", Narration: "x"}

	c.put(cacheKey("  Why PANIC "), res)

	got, ok := c.get(cacheKey("why panic"))
	require.True(t, ok)
	require.Equal(t, res, got)

	clock.Advance(DefaultCacheTTL - time.Second)
	_, ok = c.get("why panic")
	require.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.get("why panic")
	require.False(t, ok, "entry must expire exactly at the TTL boundary")
}

func TestClassifierCache_MissSweepsExpired(t *testing.T) {
	clock := newFakeClock()
	c := newClassifierCache(time.Minute, 0, clock.Now)

	for i := 0; i < 5; i++ {
		c.put(fmt.Sprintf("old-%d", i), RoutingResult{})
	}
	clock.Advance(30 * time.Second)
	c.put("fresh", RoutingResult{})
	clock.Advance(45 * time.Second)
	require.Equal(t, 6, c.len())

	_, ok := c.get("absent")
	require.False(t, ok)
	require.Equal(t, 1, c.len(), "only the unexpired entry survives the sweep")

	_, ok = c.get("fresh")
	require.True(t, ok)
}

func TestClassifierCache_Bounded(t *testing.T) {
	c := newClassifierCache(time.Hour, 3, nil)
	for i := 0; i < 5; i++ {
		c.put(fmt.Sprintf("k%d", i), RoutingResult{})
	}
	require.Equal(t, 3, c.len())
	_, ok := c.get("k0")
	require.False(t, ok)
	_, ok = c.get("k4")
	require.True(t, ok)
}
