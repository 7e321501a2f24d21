package lua

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/log/testlog"
)

func testContext(t *testing.T) context.Context {
	return testlog.WithTB(context.Background(), t)
}

func TestCollectRetainsReachableObjects(t *testing.T) {
	l := NewState().(*state)
	OpenLibraries(l)

	l.NewTable()
	l.PushString("kept")
	l.SetField(-2, "key")
	l.SetGlobal("anchor")

	l.collectGarbage(testContext(t))

	l.Global("anchor")
	require.True(t, l.IsTable(-1), "anchored table survived collection")
	l.Field(-1, "key")
	s, ok := l.ToString(-1)
	require.True(t, ok)
	assert.Equal(t, "kept", s)
}

func TestCollectReclaimsUnreachableCycle(t *testing.T) {
	l := NewState().(*state)
	OpenLibraries(l)

	// Two tables that refer to each other but are reachable only through
	// the globals they are about to be cleared from.
	require.NoError(t, DoString(l, `
		local a, b = {}, {}
		a.b = b
		b.a = a
		keep_a, keep_b = a, b
	`))
	l.collectGarbage(testContext(t))
	withCycle := len(l.global.collector.objects)

	require.NoError(t, DoString(l, `keep_a, keep_b = nil, nil`))
	l.collectGarbage(testContext(t))
	withoutCycle := len(l.global.collector.objects)

	assert.GreaterOrEqual(t, withCycle-withoutCycle, 2, "both cycle members collected")
}

func TestCollectGarbageFromScript(t *testing.T) {
	l := NewState().(*state)
	OpenLibraries(l)
	require.NoError(t, DoString(l, `
		local t = {}
		for i = 1, 100 do t[i] = {} end
		t = nil
		collectgarbage()
		local before = collectgarbage("count")
		collectgarbage()
		local after = collectgarbage("count")
		assert(after <= before)
	`))
}

func TestThresholdPolicy(t *testing.T) {
	gc := newCollector()
	assert.Equal(t, gcThresholdFloor, gc.threshold, "initial threshold at floor")

	// An unproductive sweep backs off toward the high factor.
	gc.setThreshold(0, 10000)
	assert.Equal(t, 30000, gc.threshold)

	// A very productive sweep keeps the threshold low.
	gc.setThreshold(10000, 1000)
	low := gc.threshold
	assert.True(t, low < 3000, "productive sweep earns a low factor, got %d", low)

	// The floor always holds.
	gc.setThreshold(100, 10)
	assert.Equal(t, gcThresholdFloor, gc.threshold)
}

func TestCollectionIsNotReentrant(t *testing.T) {
	l := NewState().(*state)
	gc := l.global.collector
	gc.collecting = true
	before := len(gc.objects)
	l.PushString("no collection while collecting")
	l.collectGarbage(testContext(t))
	assert.Equal(t, before+1, len(gc.objects), "re-entrant collection skipped")
	gc.collecting = false
}

func TestPausedCollectorDefersCollection(t *testing.T) {
	l := NewState().(*state)
	gc := l.global.collector
	gc.pause()
	gc.threshold = 0
	assert.False(t, gc.shouldCollect(), "paused collector must not collect")
	gc.resume()
	assert.True(t, gc.shouldCollect(), "resumed collector collects past threshold")
	gc.threshold = gcThresholdFloor
}

func TestSweptStringsLeaveThePool(t *testing.T) {
	l := NewState().(*state)
	OpenLibraries(l)

	require.NoError(t, DoString(l, `transient = ("only" .. " reachable" .. " briefly")`))
	const contents = "only reachable briefly"
	first, interned := l.interned(contents)
	require.True(t, interned, "concat result interned")

	require.NoError(t, DoString(l, `transient = nil`))
	l.collectGarbage(testContext(t))
	_, stillInterned := l.interned(contents)
	require.False(t, stillInterned, "dead string pruned from pool")

	// Re-interning after the sweep yields a fresh, registered object.
	second := l.intern(contents)
	assert.NotSame(t, first, second)
	assert.Equal(t, contents, second.String())
}

func TestMain(m *testing.M) {
	testlog.Main(nil)
	os.Exit(m.Run())
}
