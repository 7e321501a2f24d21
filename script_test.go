package lua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// End-to-end programs exercising the interpreter through the standard print
// path, checked against their exact stdout.
func TestScriptOutput(t *testing.T) {
	tests := []struct {
		name, source, output string
	}{
		{
			"hello",
			`print("hello")`,
			"hello\n",
		},
		{
			"table length and index",
			`local t = {10,20,30}; print(#t, t[2])`,
			"3\t20\n",
		},
		{
			"counter closure",
			`local function mk() local x=0; return function() x=x+1; return x end end
			local f=mk()
			print(f(),f(),f())`,
			"1\t2\t3\n",
		},
		{
			"numeric for",
			`for i=1,3 do print(i*i) end`,
			"1\n4\n9\n",
		},
		{
			"interned string equality",
			`local s1="abc"; local s2="ab".."c"; print(s1==s2, rawequal(s1,s2))`,
			"true\ttrue\n",
		},
		{
			"generic for over ipairs",
			`for i, v in ipairs({"x", "y"}) do print(i, v) end`,
			"1\tx\n2\ty\n",
		},
		{
			"varargs forwarding",
			`local function f(...) print(...) end; f(1, nil, "z")`,
			"1\tnil\tz\n",
		},
	}
	for _, v := range tests {
		t.Run(v.name, func(t *testing.T) {
			l := NewState()
			OpenLibraries(l)
			output := captureOutput(func() {
				require.NoError(t, DoString(l, v.source))
			})
			assert.Equal(t, v.output, output)
		})
	}
}

func TestCycleIsCollectedAfterRootsAreCleared(t *testing.T) {
	l := NewState()
	OpenLibraries(l)
	require.NoError(t, DoString(l, `
		local before = collectgarbage("count")
		do
			local a, b = {}, {}
			a.b = b
			b.a = a
		end
		collectgarbage()
		local after = collectgarbage("count")
		assert(after <= before + 16)
	`))
}

// Returning fewer values than the caller asked for pads with nils; asking
// for all of them preserves the actual count.
func TestReturnCountAdjustment(t *testing.T) {
	l := NewState()
	OpenLibraries(l)

	require.NoError(t, LoadString(l, `return 1, 2`))
	top := l.Top()
	l.Call(0, 4)
	assert.Equal(t, top+3, l.Top(), "two results nil-padded to four")
	assert.True(t, l.IsNil(-1))
	assert.True(t, l.IsNil(-2))
	n, _ := l.ToNumber(-4)
	assert.Equal(t, 1.0, n)
	l.SetTop(0)

	require.NoError(t, LoadString(l, `return 1, 2, 3`))
	l.Call(0, MultipleReturns)
	assert.Equal(t, 3, l.Top(), "all results preserved")
	l.SetTop(0)
}

// Two closures capturing the same stack slot share one upvalue cell, before
// and after the enclosing frame returns.
func TestSharedUpValueIdentity(t *testing.T) {
	l := NewState()
	OpenLibraries(l)
	require.NoError(t, DoString(l, `
		local function make()
			local shared = 0
			local function bump() shared = shared + 1 end
			local function read() return shared end
			return bump, read
		end
		local bump, read = make()
		bump(); bump(); bump()
		assert(read() == 3)
	`))
}

func TestHostAndScriptCallsInterleave(t *testing.T) {
	l := NewState()
	OpenLibraries(l)

	// A host function that calls back into a script-defined function.
	l.PushGoFunction(func(l State) int {
		l.Global("double")
		l.PushValue(1)
		l.Call(1, 1)
		n := CheckNumber(l, -1)
		l.PushNumber(n + 1)
		return 1
	})
	l.SetGlobal("doubleplusone")

	require.NoError(t, DoString(l, `
		function double(n) return n * 2 end
		assert(doubleplusone(5) == 11)
	`))
}
