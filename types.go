package lua

import (
	"math"
	"strconv"
)

// value is the tagged union of everything a register, constant or table
// slot can hold: nil, bool, float64, lightUserData, or a pointer to one of
// the collector-owned heap kinds (*gcString, *table, *luaClosure,
// *goClosure, *userData, *state). Dispatch is a type switch; identity of
// the reference kinds is pointer identity.
type value interface{}

// typeNames is indexed by type tag + 1, so TypeNone (-1) lands on the
// first entry.
var typeNames = [...]string{
	"no value", "nil", "boolean", "userdata", "number",
	"string", "table", "function", "userdata", "thread",
}

func isFalse(v value) bool {
	b, isBool := v.(bool)
	return v == nil || isBool && !b
}

// userData wraps an arbitrary host value in a heap object that can carry a
// metatable and an environment table.
type userData struct {
	gcHeader
	metaTable, env *table
	data           interface{}
}

// lightUserData is an opaque host pointer carried by value, distinct from
// userData: it has no metatable, no env table, and is not collector-owned -
// the collector never traces into it since it carries no references into
// this state's heap.
type lightUserData struct {
	p interface{}
}

// stackLocation is the open state of an upvalue: a direct reference to a
// live stack slot of the owning thread.
type stackLocation struct {
	state *state
	index int
}

type localVariable struct {
	name           string
	startPC, endPC pc
}

type upValueDesc struct {
	name    string
	isLocal bool
	index   int
}

// prototype is the immutable result of compiling one function: bytecode,
// constants, nested prototypes, and the metadata the runtime and debug
// surface need. Closures bind a prototype to captured upvalues.
type prototype struct {
	constants                    []value
	code                         []instruction
	prototypes                   []prototype
	lineInfo                     []int32
	localVariables               []localVariable
	upValues                     []upValueDesc
	cache                        *luaClosure
	source                       string
	lineDefined, lastLineDefined int
	parameterCount, maxStackSize int
	isVarArg                     bool
}

// float8 is the "floating point byte" the NEWTABLE size hints use:
// (eeeeexxx) decodes to (1xxx) * 2^(eeeee-1) when the exponent is nonzero,
// plain (xxx) otherwise.
type float8 int

func float8FromInt(x int) float8 {
	if x < 8 {
		return float8(x)
	}
	e := 0
	for ; x >= 0x10; e++ {
		x = (x + 1) >> 1
	}
	return float8(((e + 1) << 3) | (x - 8))
}

func intFromFloat8(x float8) int {
	e := x >> 3 & 0x1f
	if e == 0 {
		return int(x)
	}
	return int(x&7+8) << uint(e-1)
}

// numericArith applies an Arith operator to two numbers. MOD follows the
// Lua rule: the result takes the divisor's sign.
func numericArith(op int, a, b float64) float64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpDiv:
		return a / b
	case OpMod:
		return a - math.Floor(a/b)*b
	case OpPow:
		return math.Pow(a, b)
	case OpUnaryMinus:
		return -a
	}
	panic("not an arithmetic operator")
}

// toNumber coerces a value to a number the way the arithmetic opcodes do:
// numbers pass through, strings parse as decimals.
func toNumber(v value) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case *gcString:
		if n, err := strconv.ParseFloat(v.s, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func (l *state) toNumber(v value) (float64, bool) { return toNumber(v) }

func numberToString(f float64) string {
	return strconv.FormatFloat(f, 'g', 14, 64)
}

// toString reports the string form of a number value; everything else is
// inconvertible here (gcStrings are handled by their own accessors).
func toString(v value) (string, bool) {
	if n, ok := v.(float64); ok {
		return numberToString(n), true
	}
	return "", false
}

func pairAsNumbers(a, b value) (float64, float64, bool) {
	x, ok1 := a.(float64)
	y, ok2 := b.(float64)
	return x, y, ok1 && ok2
}

func pairAsStrings(a, b value) (string, string, bool) {
	x, ok1 := a.(*gcString)
	y, ok2 := b.(*gcString)
	if !ok1 || !ok2 {
		return "", "", false
	}
	return x.s, y.s, true
}
