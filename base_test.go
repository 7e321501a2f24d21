package lua

import (
	"testing"
)

func TestBase(t *testing.T) {
	testString(t, `
	assert(_VERSION == "Lua 5.1")
	assert(_G._G == _G)
	assert(type(print) == "function")
	assert(type(nil) == "nil" and type(0) == "number" and type("") == "string")
	assert(tostring(nil) == "nil" and tostring(true) == "true")
	assert(tonumber("42") == 42 and tonumber("x") == nil)
	assert(tonumber("ff", 16) == 255)
	assert(select("#", 1, 2, 3) == 3)
	assert(select(2, "a", "b", "c") == "b")
	assert(rawequal("x", "x"))
	local t = setmetatable({}, {__index = function() return 7 end})
	assert(t.anything == 7)
	assert(rawget(t, "anything") == nil)
	rawset(t, "k", 1)
	assert(rawlen(t) == 0 and t.k == 1)
	local a, b = unpack({10, 20})
	assert(a == 10 and b == 20)
	`)
}

func TestHello(t *testing.T) {
	l := NewState()
	BaseOpen(l)
	LoadString(l, `print("Hello World!")`)
	l.Run()
}

func TestBaseLoad(t *testing.T) {
	testString(t, `
	local chunk = load("return 1 + 1")
	assert(chunk() == 2)
	local bad, err = load("this is not lua")
	assert(bad == nil and type(err) == "string")
	`)
}

func TestBaseErrorLevels(t *testing.T) {
	l := NewState()
	BaseOpen(l)
	if err := LoadString(l, `error("plain", 0)`); err != nil {
		t.Fatal(err)
	}
	err := l.ProtectedCall(0, 0, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if s, _ := l.ToString(-1); s != "plain" {
		t.Errorf("level 0 error got %q, want %q", s, "plain")
	}
}

func TestPCallStackOverflow(t *testing.T) {
	l := NewState()
	BaseOpen(l)
	LoadString(l, `
		local function recurse(n) return 1 + recurse(n + 1) end
		local ok, err = pcall(recurse, 1)
		assert(not ok)
		assert(type(err) == "string")
	`)
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		t.Fatal(err)
	}
}
