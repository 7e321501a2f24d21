package lua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableArrayHashSplit(t *testing.T) {
	l := NewState().(*state)
	tbl := l.newTable()

	// Integer keys within the array threshold land in the array part.
	tbl.putAtInt(1, 10.0)
	tbl.putAtInt(arrayThreshold, 20.0)
	assert.Equal(t, arrayThreshold, len(tbl.array))
	assert.Equal(t, 10.0, tbl.atInt(1))
	assert.Equal(t, 20.0, tbl.atInt(arrayThreshold))

	// Beyond the threshold keys spill into the hash part.
	tbl.putAtInt(arrayThreshold+1, 30.0)
	assert.Equal(t, arrayThreshold, len(tbl.array))
	assert.Equal(t, 30.0, tbl.atInt(arrayThreshold+1))
	assert.Equal(t, 30.0, tbl.hash[float64(arrayThreshold+1)])
}

func TestTableLengthIsABorder(t *testing.T) {
	l := NewState().(*state)
	tbl := l.newTable()
	assert.Equal(t, 0, tbl.length())

	for i := 1; i <= 5; i++ {
		tbl.putAtInt(i, float64(i))
	}
	assert.Equal(t, 5, tbl.length())

	// Invariant: every index up to the length is non-nil.
	for i := 1; i <= tbl.length(); i++ {
		assert.NotNil(t, tbl.atInt(i))
	}

	// A trailing nil moves the border back.
	tbl.putAtInt(5, nil)
	assert.Equal(t, 4, tbl.length())
}

func TestTableSetNilRemoves(t *testing.T) {
	l := NewState().(*state)
	tbl := l.newTable()
	k := l.stringValue("key")
	tbl.put(l, k, 1.0)
	assert.Equal(t, 1.0, tbl.at(k))
	tbl.put(l, k, nil)
	assert.Nil(t, tbl.at(k))
	_, present := tbl.hash[k]
	assert.False(t, present, "nil assignment removes the hash entry")
}

// Iteration must visit every live entry exactly once and then stop, across
// both the array and hash parts.
func TestNextVisitsEveryEntryOnce(t *testing.T) {
	l := NewState()
	OpenLibraries(l)
	require.NoError(t, DoString(l, `
		local t = {}
		t[1], t[2], t[3] = "a", "b", "c"
		t.x, t.y = 1, 2
		t[100] = "hash"

		local seen = {}
		local count = 0
		for k, v in pairs(t) do
			assert(seen[k] == nil, "key visited twice")
			seen[k] = v
			count = count + 1
		end
		assert(count == 6)
		assert(seen[1] == "a" and seen[2] == "b" and seen[3] == "c")
		assert(seen.x == 1 and seen.y == 2 and seen[100] == "hash")
	`))
}

func TestNextAllowsClearingSeenKeys(t *testing.T) {
	l := NewState()
	OpenLibraries(l)
	require.NoError(t, DoString(l, `
		local t = {a = 1, b = 2, c = 3}
		for k in pairs(t) do
			t[k] = nil
		end
		assert(next(t) == nil)
	`))
}

func TestNextInvalidKeyErrors(t *testing.T) {
	l := NewState()
	OpenLibraries(l)
	require.NoError(t, DoString(l, `
		local ok = pcall(next, {}, "never a key")
		assert(not ok)
	`))
}

func TestTableIndexNilErrors(t *testing.T) {
	l := NewState()
	OpenLibraries(l)
	require.NoError(t, DoString(l, `
		local t = {}
		local ok, err = pcall(function() t[nil] = 1 end)
		assert(not ok)
		assert(string.sub(err, -18) == "table index is nil")
	`))
}

func TestLargeIndexesSpillPastTheBorder(t *testing.T) {
	l := NewState()
	OpenLibraries(l)
	require.NoError(t, DoString(l, `
		local t = {}
		for i = 1, 75 do t[i] = i end
		assert(#t == 50) -- the border stops at the end of the array part
		for i = 1, 75 do assert(t[i] == i) end
	`))
}

// A constructor built from more varargs than the array part holds goes
// through a single bulk store that must spill past the array boundary.
func TestSetListFillsArrayAndSpills(t *testing.T) {
	l := NewState()
	OpenLibraries(l)
	require.NoError(t, DoString(l, `
		local function spread(...) return {...} end
		local args = {}
		for i = 1, 75 do args[i] = i end
		local t = spread(table.unpack(args, 1, 75))
		for i = 1, 75 do assert(t[i] == i) end
	`))
}
