package lua

import "testing"

func TestMath(t *testing.T) {
	l := NewState()
	OpenLibraries(l)
	if err := LoadFile(l, "fixtures/math.lua", "text"); err != nil {
		t.Fatal(err)
	}
	l.Call(0, 0)
}
