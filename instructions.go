package lua

import "fmt"

// Instructions are 32-bit words. All three layouts share the opcode in the
// low 6 bits and an 8-bit A field above it; the remaining 18 bits hold
// either two 9-bit operands (C below B), one unsigned 18-bit Bx, or a
// signed sBx stored with a bias of 2^17-1.
type instruction uint32

type opCode uint

const (
	opcodeSize = 6
	aSize      = 8
	cSize      = 9
	bSize      = 9
	bxSize     = bSize + cSize
	axSize     = bxSize + aSize

	aShift  = opcodeSize
	cShift  = aShift + aSize
	bShift  = cShift + cSize
	bxShift = cShift
	axShift = aShift

	maxArgA   = 1<<aSize - 1
	maxArgB   = 1<<bSize - 1
	maxArgC   = 1<<cSize - 1
	maxArgBx  = 1<<bxSize - 1
	maxArgSBx = maxArgBx >> 1 // sBx is signed; this is also its bias
	maxArgAx  = 1<<axSize - 1

	// An RK operand with the high bit set addresses the constant pool by
	// its low 8 bits; with it clear, a register.
	bitRK      = 1 << (bSize - 1)
	maxIndexRK = bitRK - 1

	listItemsPerFlush = 50 // SETLIST batch size (FPF)
)

func isConstant(rk int) bool   { return rk&bitRK != 0 }
func constantIndex(rk int) int { return rk &^ bitRK }
func asConstant(i int) int     { return i | bitRK }

func (i instruction) opCode() opCode { return opCode(i & (1<<opcodeSize - 1)) }
func (i instruction) a() int         { return int(i >> aShift & maxArgA) }
func (i instruction) b() int         { return int(i >> bShift & maxArgB) }
func (i instruction) c() int         { return int(i >> cShift & maxArgC) }
func (i instruction) bx() int        { return int(i >> bxShift & maxArgBx) }
func (i instruction) ax() int        { return int(i >> axShift & maxArgAx) }
func (i instruction) sbx() int       { return i.bx() - maxArgSBx }

func (i *instruction) replaceField(shift, max uint32, arg int) {
	*i = *i&^(instruction(max)<<shift) | (instruction(arg)&instruction(max))<<shift
}

func (i *instruction) setA(arg int)   { i.replaceField(aShift, maxArgA, arg) }
func (i *instruction) setB(arg int)   { i.replaceField(bShift, maxArgB, arg) }
func (i *instruction) setC(arg int)   { i.replaceField(cShift, maxArgC, arg) }
func (i *instruction) setBx(arg int)  { i.replaceField(bxShift, maxArgBx, arg) }
func (i *instruction) setSBx(arg int) { i.replaceField(bxShift, maxArgBx, arg+maxArgSBx) }
func (i *instruction) setOpCode(op opCode) {
	*i = *i&^(1<<opcodeSize-1) | instruction(op)
}

func packABC(op opCode, a, b, c int) instruction {
	return instruction(op) |
		instruction(a)<<aShift |
		instruction(b)<<bShift |
		instruction(c)<<cShift
}

func packABx(op opCode, a, bx int) instruction {
	return instruction(op) | instruction(a)<<aShift | instruction(bx)<<bxShift
}

func packAx(op opCode, ax int) instruction {
	return instruction(op) | instruction(ax)<<axShift
}

const (
	opMove opCode = iota
	opLoadConstant
	opLoadConstantEx
	opLoadBool
	opLoadNil
	opGetUpValue
	opGetTableUp
	opGetTable
	opSetTableUp
	opSetUpValue
	opSetTable
	opNewTable
	opSelf
	opAdd
	opSub
	opMul
	opDiv
	opMod
	opPow
	opUnaryMinus
	opNot
	opLength
	opConcat
	opJump
	opEqual
	opLessThan
	opLessOrEqual
	opTest
	opTestSet
	opCall
	opTailCall
	opReturn
	opForLoop
	opForPrep
	opTForCall
	opTForLoop
	opSetList
	opClosure
	opVarArg
	opExtraArg
)

// Instruction formats.
const (
	iABC = iota
	iABx
	iAsBx
	iAx
)

// Operand classes, used by the code generator's emit-time checks and by
// jump resolution to recognize test instructions.
const (
	opArgN = iota // unused
	opArgU        // used as-is
	opArgR        // register or jump offset
	opArgK        // register/constant (RK)
)

type opInfo struct {
	name   string
	format int  // iABC, iABx, iAsBx or iAx
	b, c   byte // operand classes
	setsA  bool // writes register A
	test   bool // a conditional: the following instruction is its jump
}

var opInfos = [...]opInfo{
	opMove:           {"MOVE", iABC, opArgR, opArgN, true, false},
	opLoadConstant:   {"LOADK", iABx, opArgK, opArgN, true, false},
	opLoadConstantEx: {"LOADKX", iABx, opArgN, opArgN, true, false},
	opLoadBool:       {"LOADBOOL", iABC, opArgU, opArgU, true, false},
	opLoadNil:        {"LOADNIL", iABC, opArgU, opArgN, true, false},
	opGetUpValue:     {"GETUPVAL", iABC, opArgU, opArgN, true, false},
	opGetTableUp:     {"GETTABUP", iABC, opArgU, opArgK, true, false},
	opGetTable:       {"GETTABLE", iABC, opArgR, opArgK, true, false},
	opSetTableUp:     {"SETTABUP", iABC, opArgK, opArgK, false, false},
	opSetUpValue:     {"SETUPVAL", iABC, opArgU, opArgN, false, false},
	opSetTable:       {"SETTABLE", iABC, opArgK, opArgK, false, false},
	opNewTable:       {"NEWTABLE", iABC, opArgU, opArgU, true, false},
	opSelf:           {"SELF", iABC, opArgR, opArgK, true, false},
	opAdd:            {"ADD", iABC, opArgK, opArgK, true, false},
	opSub:            {"SUB", iABC, opArgK, opArgK, true, false},
	opMul:            {"MUL", iABC, opArgK, opArgK, true, false},
	opDiv:            {"DIV", iABC, opArgK, opArgK, true, false},
	opMod:            {"MOD", iABC, opArgK, opArgK, true, false},
	opPow:            {"POW", iABC, opArgK, opArgK, true, false},
	opUnaryMinus:     {"UNM", iABC, opArgR, opArgN, true, false},
	opNot:            {"NOT", iABC, opArgR, opArgN, true, false},
	opLength:         {"LEN", iABC, opArgR, opArgN, true, false},
	opConcat:         {"CONCAT", iABC, opArgR, opArgR, true, false},
	opJump:           {"JMP", iAsBx, opArgR, opArgN, false, false},
	opEqual:          {"EQ", iABC, opArgK, opArgK, false, true},
	opLessThan:       {"LT", iABC, opArgK, opArgK, false, true},
	opLessOrEqual:    {"LE", iABC, opArgK, opArgK, false, true},
	opTest:           {"TEST", iABC, opArgN, opArgU, false, true},
	opTestSet:        {"TESTSET", iABC, opArgR, opArgU, true, true},
	opCall:           {"CALL", iABC, opArgU, opArgU, true, false},
	opTailCall:       {"TAILCALL", iABC, opArgU, opArgU, true, false},
	opReturn:         {"RETURN", iABC, opArgU, opArgN, false, false},
	opForLoop:        {"FORLOOP", iAsBx, opArgR, opArgN, true, false},
	opForPrep:        {"FORPREP", iAsBx, opArgR, opArgN, true, false},
	opTForCall:       {"TFORCALL", iABC, opArgN, opArgU, false, false},
	opTForLoop:       {"TFORLOOP", iAsBx, opArgR, opArgN, true, false},
	opSetList:        {"SETLIST", iABC, opArgU, opArgU, false, false},
	opClosure:        {"CLOSURE", iABx, opArgU, opArgN, true, false},
	opVarArg:         {"VARARG", iABC, opArgU, opArgN, true, false},
	opExtraArg:       {"EXTRAARG", iAx, opArgU, opArgU, false, false},
}

func opMode(op opCode) int      { return opInfos[op].format }
func bMode(op opCode) byte      { return opInfos[op].b }
func cMode(op opCode) byte      { return opInfos[op].c }
func testAMode(op opCode) bool  { return opInfos[op].setsA }
func testTMode(op opCode) bool  { return opInfos[op].test }
func opName(op opCode) string   { return opInfos[op].name }

func (i instruction) String() string {
	op := i.opCode()
	if int(op) >= len(opInfos) {
		return fmt.Sprintf("unknown opcode %d", op)
	}
	switch name := opName(op); opMode(op) {
	case iABx:
		return fmt.Sprintf("%s A=%d Bx=%d", name, i.a(), i.bx())
	case iAsBx:
		return fmt.Sprintf("%s A=%d sBx=%d", name, i.a(), i.sbx())
	case iAx:
		return fmt.Sprintf("%s Ax=%d", name, i.ax())
	default:
		return fmt.Sprintf("%s A=%d B=%d C=%d", name, i.a(), i.b(), i.c())
	}
}
