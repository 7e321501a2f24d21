package lua

import "testing"

func TestBit32(t *testing.T) {
	l := NewState()
	OpenLibraries(l)
	if err := LoadFile(l, "fixtures/bitwise.lua", "text"); err != nil {
		t.Fatal(err)
	}
	l.Call(0, 0)
}
