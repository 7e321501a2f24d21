package lua

import (
	"strings"
	"testing"
)

func parseChunk(l State, t *testing.T, source, name string) *luaClosure {
	t.Helper()
	if err := l.Load(strings.NewReader(source), name, "t"); err != nil {
		t.Fatalf("parsing %s failed: %s", name, err.Error())
	}
	return l.(*state).stack[l.(*state).top-1].(*luaClosure)
}

const fibSource = `local function fib(n)
	if n < 2 then
		return n
	end
	return fib(n - 1) + fib(n - 2)
end
assert(fib(10) == 55)
`

func TestParser(t *testing.T) {
	l := NewState()
	OpenLibraries(l)
	closure := parseChunk(l, t, fibSource, "@fib.lua")
	p := closure.prototype
	if p == nil {
		t.Fatal("prototype was nil")
	}
	if p.source != "@fib.lua" {
		t.Errorf("expected source name @fib.lua, found %q", p.source)
	}
	if !p.isVarArg {
		t.Error("expected main function to be var arg, but wasn't")
	}
	if len(closure.upValues) != len(closure.prototype.upValues) {
		t.Error("upvalue count doesn't match", len(closure.upValues), "!=", len(closure.prototype.upValues))
	}
	if len(p.prototypes) != 1 {
		t.Fatalf("expected 1 nested prototype, found %d", len(p.prototypes))
	}
	if nested := &p.prototypes[0]; nested.parameterCount != 1 {
		t.Errorf("expected fib to take 1 parameter, takes %d", nested.parameterCount)
	}
	l.Call(0, 0)
}

func TestEmptyString(t *testing.T) {
	l := NewState()
	if err := LoadString(l, ""); err != nil {
		t.Fatal(err.Error())
	}
	l.Call(0, 0)
}

func TestBinaryChunksAreRejected(t *testing.T) {
	l := NewState()
	err := l.Load(strings.NewReader(Signature+"garbage"), "=binary", "bt")
	if err != SyntaxError {
		t.Fatalf("expected SyntaxError for a binary chunk, got %v", err)
	}
	if msg, _ := l.ToString(-1); msg != "attempt to load a binary chunk" {
		t.Errorf("unexpected message %q", msg)
	}
}
