package lua

import (
	"runtime"
	"strings"
	"testing"
)

func testString(t *testing.T, s string) { testStringHelper(t, s) }

func testNoPanicString(t *testing.T, s string) {
	defer func() {
		if rc := recover(); rc != nil {
			var buffer [8192]byte
			t.Errorf("got panic %v; expected none", rc)
			t.Logf("trace:\n%s", buffer[:runtime.Stack(buffer[:], false)])
		}
	}()
	testStringHelper(t, s)
}

func testStringHelper(t *testing.T, s string) {
	l := NewState()
	OpenLibraries(l)
	if err := LoadString(l, s); err != nil {
		t.Fatalf("compiling %q failed: %s", s, err.Error())
	}
	l.Call(0, 0)
}

func TestProtectedCall(t *testing.T) {
	l := NewState()
	OpenLibraries(l)
	SetDebugHook(l, func(ls State, ar *Debug) {
		state := ls.(*state)
		ci := state.callInfo
		if ci.isLua() {
			_ = ci.code[ci.savedPC].String()
		}
	}, MaskCount, 1)
	LoadString(l, "assert(not pcall(bit32.band, {}))")
	l.Call(0, 0)
}

func TestLuaPrograms(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"locals", `
			local a, b = 1, 2
			local c = a + b
			assert(c == 3)
			do local c = 10; assert(c == 10) end
			assert(c == 3)`},
		{"while", `
			local n, sum = 1, 0
			while n <= 10 do sum = sum + n; n = n + 1 end
			assert(sum == 55)`},
		{"repeat", `
			local n = 0
			repeat n = n + 1 until n >= 3
			assert(n == 3)`},
		{"numeric for", `
			local sum = 0
			for i = 1, 5 do sum = sum + i end
			assert(sum == 15)
			sum = 0
			for i = 10, 1, -2 do sum = sum + i end
			assert(sum == 30)`},
		{"generic for", `
			local t = {"a", "b", "c"}
			local s = ""
			for _, v in ipairs(t) do s = s .. v end
			assert(s == "abc")`},
		{"closures", `
			local function counter()
				local n = 0
				return function() n = n + 1; return n end
			end
			local c1, c2 = counter(), counter()
			assert(c1() == 1 and c1() == 2 and c2() == 1)`},
		{"shared upvalues", `
			local function pair()
				local n = 0
				return function() n = n + 1; return n end,
					function() return n end
			end
			local bump, peek = pair()
			bump(); bump()
			assert(peek() == 2)`},
		{"varargs", `
			local function f(...)
				local t = {...}
				return select("#", ...), t[1], t[2]
			end
			local n, a, b = f(10, 20)
			assert(n == 2 and a == 10 and b == 20)
			assert(select("#") == 0)`},
		{"multiple returns", `
			local function three() return 1, 2, 3 end
			local a, b, c, d = three()
			assert(a == 1 and b == 2 and c == 3 and d == nil)
			local t = {three()}
			assert(#t == 3)
			local u = {three(), three()}
			assert(#u == 4)`},
		{"string ops", `
			assert("abc" < "abd")
			assert(#"hello" == 5)
			assert("a" .. "b" .. "c" == "abc")
			assert(1 .. "" == "1")
			assert(string.upper("lua") == "LUA")
			assert(string.sub("hello", 2, 4) == "ell")
			assert(string.rep("ab", 3) == "ababab")`},
		{"arithmetic", `
			assert(7 % 3 == 1)
			assert(-7 % 3 == 2)
			assert(7 % -3 == -2)
			assert(2^10 == 1024)
			assert(7 / 2 == 3.5)
			assert(-(-5) == 5)`},
		{"comparisons", `
			assert(1 < 2 and 2 <= 2 and not (3 <= 2))
			assert("x" == "x" and "x" ~= "y")
			assert(nil == nil and nil ~= false)`},
		{"truthiness", `
			local function truthy(v) if v then return true else return false end end
			assert(truthy(0) and truthy("") and truthy({}))
			assert(not truthy(nil) and not truthy(false))`},
		{"table constructor", `
			local t = {1, 2, 3, x = "y", [10] = true}
			assert(#t == 3 and t.x == "y" and t[10] == true)`},
		{"large index writes spill into hash", `
			local t = {}
			for i = 1, 120 do t[i] = i * i end
			for i = 1, 120 do assert(t[i] == i * i) end`},
		{"goto", `
			local n = 0
			::top::
			n = n + 1
			if n < 3 then goto top end
			assert(n == 3)`},
		{"pcall", `
			local ok, err = pcall(function() error("boom") end)
			assert(not ok)
			assert(string.sub(err, -4) == "boom")
			ok = pcall(function() return 1 end)
			assert(ok)`},
		{"error values", `
			local ok, err = pcall(function() error({code = 42}) end)
			assert(not ok and type(err) == "table" and err.code == 42)`},
		{"metatable __index", `
			local base = {greet = function() return "hi" end}
			local t = setmetatable({}, {__index = base})
			assert(t.greet() == "hi")`},
		{"metatable __newindex", `
			local log = {}
			local t = setmetatable({}, {__newindex = function(t, k, v) log[k] = v end})
			t.a = 1
			assert(rawget(t, "a") == nil and log.a == 1)`},
		{"method call", `
			local account = {balance = 0}
			function account.deposit(self, n) self.balance = self.balance + n end
			account:deposit(10)
			account:deposit(5)
			assert(account.balance == 15)`},
	}
	for _, v := range tests {
		t.Run(v.name, func(t *testing.T) { testString(t, v.source) })
	}
}

// TestTailCallRecursive tests for failures where both the callee and caller are making a tailcall.
func TestTailCallRecursive(t *testing.T) {
	s := `function tailcall(n, m)
			if n > m then return n end
			return tailcall(n + 1, m)
		end
		return tailcall(0, 5)`
	testNoPanicString(t, s)
}

// TestTailCallRecursiveDiffFn tests for failures where only the caller is making a tailcall.
func TestTailCallRecursiveDiffFn(t *testing.T) {
	s := `function tailcall(n) return n+1 end
		return tailcall(5)`
	testNoPanicString(t, s)
}

// TestTailCallSameFn tests for failures where only the callee is making a tailcall.
func TestTailCallSameFn(t *testing.T) {
	s := `function tailcall(n, m)
			if n > m then return n end
			return tailcall(n + 1, m)
		end
		return (tailcall(0, 5))`
	testNoPanicString(t, s)
}

// TestNormalCall tests for failures when neither callee nor caller make a tailcall.
func TestNormalCall(t *testing.T) {
	s := `function notailcall() return 5 end
		return (notailcall())`
	testNoPanicString(t, s)
}

// TestDeepTailCall ensures tail calls reuse the current frame instead of
// growing the call-info chain.
func TestDeepTailCall(t *testing.T) {
	testNoPanicString(t, `
		local function loop(n)
			if n == 0 then return "done" end
			return loop(n - 1)
		end
		assert(loop(100000) == "done")`)
}

func TestVarArgMeta(t *testing.T) {
	s := `function f(t, ...) return t, {...} end
		local a = setmetatable({}, {__call = f})
		local x, y = a(table.unpack{"a", 1})
		assert(#x == 0)
		assert(#y == 2 and y[1] == "a" and y[2] == 1)`
	testString(t, s)
}

func TestCanRemoveNilObjectFromStack(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("failed to remove `nil`, %v", r)
		}
	}()

	l := NewState()
	l.PushString("hello")
	l.Remove(-1)
	l.PushNil()
	l.Remove(-1)
}

func TestTableUserdataEquality(t *testing.T) {
	const s = `return function(x)
		local b = x == {}
		assert(type(b) == "boolean")
		assert(b == false)
		-- reverse
		b = {} == x
		assert(type(b) == "boolean")
		assert(b == false)
	end`

	l := NewState()
	OpenLibraries(l)
	LoadString(l, s)
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		t.Error(err.Error())
	}

	l.PushUserData(5)
	if err := l.ProtectedCall(1, 0, 0); err != nil {
		t.Error(err.Error())
	}
}

func TestUserDataEqualityNil(t *testing.T) {
	const s = `return function(x)
		local b = x == nil
		assert(type(b) == "boolean")
		assert(b == false)
	end`

	l := NewState()
	OpenLibraries(l)
	LoadString(l, s)
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		t.Error(err.Error())
	}

	l.PushUserData(5)
	if err := l.ProtectedCall(1, 0, 0); err != nil {
		t.Error(err.Error())
	}
}

func TestTableEqualityNil(t *testing.T) {
	const s = `local b = {} == nil
	assert(type(b) == "boolean")
	assert(b == false)`

	testString(t, s)
}

func TestTableNext(t *testing.T) {
	l := NewState()
	OpenLibraries(l)
	l.CreateTable(10, 0)
	for i := 1; i <= 4; i++ {
		l.PushInteger(i)
		l.PushValue(-1)
		l.SetTable(-3)
	}
	if length := LengthEx(l, -1); length != 4 {
		t.Errorf("expected table length to be 4, but was %d", length)
	}
	count := 0
	for l.PushNil(); l.Next(-2); count++ {
		if k, v := CheckInteger(l, -2), CheckInteger(l, -1); k != v {
			t.Errorf("key %d != value %d", k, v)
		}
		l.Pop(1)
	}
	if count != 4 {
		t.Errorf("incorrect iteration count %d in Next()", count)
	}
}

func TestError(t *testing.T) {
	l := NewState()
	BaseOpen(l)
	errorHandled := false
	program := "error('error')"
	l.PushGoFunction(func(l State) int {
		if l.Top() == 0 {
			t.Error("error handler received no arguments")
		} else if errorMessage, ok := l.ToString(-1); !ok {
			t.Errorf("error handler received %s instead of string", TypeNameOf(l, -1))
		} else if errorMessage != chunkID(program)+":1: error" {
			t.Errorf("error handler received '%s' instead of 'error'", errorMessage)
		}
		errorHandled = true
		return 1
	})
	LoadString(l, program)
	l.ProtectedCall(0, 0, -2)
	if !errorHandled {
		t.Error("error not handled")
	}
}

func TestErrorf(t *testing.T) {
	l := NewState()
	BaseOpen(l)
	program := "-- script that is bigger than the max ID size\nhelper()\n" + strings.Repeat("--", idSize)
	expectedErrorMessage := chunkID(program) + ":2: error"
	l.PushGoFunction(func(l State) int {
		Errorf(l, "error")
		return 0
	})
	l.SetGlobal("helper")
	errorHandled := false
	l.PushGoFunction(func(l State) int {
		if l.Top() == 0 {
			t.Error("error handler received no arguments")
		} else if errorMessage, ok := l.ToString(-1); !ok {
			t.Errorf("error handler received %s instead of string", TypeNameOf(l, -1))
		} else if errorMessage != expectedErrorMessage {
			t.Errorf("error handler received '%s' instead of '%s'", errorMessage, expectedErrorMessage)
		}
		errorHandled = true
		return 1
	})
	LoadString(l, program)
	l.ProtectedCall(0, 0, -2)
	if !errorHandled {
		t.Error("error not handled")
	}
}

func TestPairsSplit(t *testing.T) {
	testString(t, `
	local t = {}
	-- first two keys go into array
	t[1] = true
	t[2] = true
	-- 16 is within the array threshold, so the array part grows to hold it
	t[16] = true
	-- next key inserted into array
	t[3] = true

	local keys = {}
	for k, v in pairs(t) do
		keys[#keys + 1] = k
	end

	table.sort(keys)
	assert(keys[1] == 1, 'got ' .. tostring(keys[1]) .. '; want 1')
	assert(keys[2] == 2, 'got ' .. tostring(keys[2]) .. '; want 2')
	assert(keys[3] == 3, 'got ' .. tostring(keys[3]) .. '; want 3')
	assert(keys[4] == 16, 'got ' .. tostring(keys[4]) .. '; want 16')
	`)
}

func TestConcurrentNext(t *testing.T) {
	testString(t, `
	t = {}
	t[1], t[2], t[3] = true, true, true

	outer = {}
	for k1 in pairs(t) do
		table.insert(outer, k1)
		inner = {}
		for k2 in pairs(t) do
			table.insert(inner, k2)
		end
		table.sort(inner)
		got = table.concat(inner, '')
		assert(got == '123', 'got ' .. got .. '; want 123')
	end

	table.sort(outer)
	got = table.concat(outer, '')
	assert(got == '123', 'got ' .. got .. '; want 123')
	`)
}

func BenchmarkFibonnaci(b *testing.B) {
	l := NewState()
	s := `return function(n)
			if n == 0 then
				return 0
			elseif n == 1 then
				return 1
			end
			local n0, n1 = 0, 1
			for i = n, 2, -1 do
				local tmp = n0 + n1
				n0 = n1
				n1 = tmp
			end
			return n1
		end`
	LoadString(l, s)
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		b.Error(err.Error())
	}
	l.PushInteger(b.N)
	b.ResetTimer()
	if err := l.ProtectedCall(1, 1, 0); err != nil {
		b.Error(err.Error())
	}
}
