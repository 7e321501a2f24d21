package lua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternByteEqualStringsShareOneObject(t *testing.T) {
	l := NewState().(*state)
	a := l.intern("shared contents")
	b := l.intern("shared contents")
	assert.Same(t, a, b, "byte-equal strings must be one object")
	assert.Equal(t, a.hash, b.hash)

	c := l.intern("different contents")
	assert.NotSame(t, a, c)
}

func TestInternCrossesConstructionPaths(t *testing.T) {
	l := NewState().(*state)
	OpenLibraries(l)

	// A string built by runtime concatenation must alias the compile-time
	// constant with the same bytes.
	require.NoError(t, DoString(l, `parts = "ab" .. "c"; constant = "abc"`))
	l.Global("parts")
	l.Global("constant")
	parts := l.stack[l.top-2]
	constant := l.stack[l.top-1]
	assert.Equal(t, parts, constant, "same interned object")
	assert.True(t, l.RawEqual(-1, -2))
	l.Pop(2)

	// The same identity must be observable from a script.
	require.NoError(t, DoString(l, `
		local s1 = "abc"
		local s2 = "ab" .. "c"
		assert(s1 == s2)
		assert(rawequal(s1, s2))
	`))
}

func TestInternPoolLookup(t *testing.T) {
	l := NewState().(*state)
	gs := l.intern("pooled")
	found, ok := l.interned("pooled")
	require.True(t, ok)
	assert.Same(t, gs, found)
	_, ok = l.interned("never seen")
	assert.False(t, ok)
}

func TestPushStringInterns(t *testing.T) {
	l := NewState().(*state)
	l.PushString("via api")
	l.PushString("via api")
	assert.True(t, l.RawEqual(-1, -2))
	gs, ok := l.stack[l.top-1].(*gcString)
	require.True(t, ok)
	assert.Equal(t, "via api", gs.String())
	assert.Equal(t, 7, gs.Len())
}

func TestToStringCoercesNumbersInPlace(t *testing.T) {
	l := NewState().(*state)
	l.push(3.5)
	s, ok := l.toString(l.top - 1)
	require.True(t, ok)
	assert.Equal(t, "3.5", s)
	_, isString := l.stack[l.top-1].(*gcString)
	assert.True(t, isString, "number slot replaced with interned string")

	l.push(true)
	_, ok = l.toString(l.top - 1)
	assert.False(t, ok, "booleans do not coerce")
}

func TestNumberParsingStrings(t *testing.T) {
	l := NewState().(*state)
	l.PushString("  not a number")
	_, ok := l.ToNumber(-1)
	assert.False(t, ok)
	l.PushString("12.5")
	n, ok := l.ToNumber(-1)
	require.True(t, ok)
	assert.Equal(t, 12.5, n)
}
