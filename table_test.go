package lua

import "testing"

func TestTableUnpack(t *testing.T) {
	l := NewState()
	OpenLibraries(l)
	LoadString(l, "local x, y = table.unpack({-10,0}); assert(x == -10 and y == 0)")
	l.Call(0, 0)
}

func TestTableLibrary(t *testing.T) {
	testString(t, `
	local t = {3, 1, 2}
	table.sort(t)
	assert(t[1] == 1 and t[2] == 2 and t[3] == 3)
	table.sort(t, function(a, b) return b < a end)
	assert(t[1] == 3 and t[2] == 2 and t[3] == 1)

	table.insert(t, 0)
	assert(#t == 4 and t[4] == 0)
	table.insert(t, 1, 9)
	assert(t[1] == 9 and t[5] == 0)
	table.remove(t, 1)
	assert(t[1] == 3 and #t == 4)

	assert(table.concat({"a", "b", "c"}, "-") == "a-b-c")
	local packed = table.pack(10, 20)
	assert(packed.n == 2 and packed[1] == 10 and packed[2] == 20)
	`)
}
