// Code generation: funcState tracks the function being compiled (its
// growing instruction and constant arrays, register allocator, scope
// blocks and pending jumps), and the emit family appends instructions.
// Expressions move through exprDesc descriptors that defer materializing a
// value into a register for as long as possible.
package lua

import (
	"fmt"
	"math"
)

const (
	oprMinus = iota
	oprNot
	oprLength
	oprNoUnary
)

const (
	noJump            = -1
	noRegister        = maxArgA
	maxLocalVariables = 200
)

const (
	oprAdd = iota
	oprSub
	oprMul
	oprDiv
	oprMod
	oprPow
	oprConcat
	oprEq
	oprLT
	oprLE
	oprNE
	oprGT
	oprGE
	oprAnd
	oprOr
	oprNoBinary
)

const (
	kindVoid = iota // no value
	kindNil
	kindTrue
	kindFalse
	kindConstant       // info = index of constant
	kindNumber         // value = numerical value
	kindNonRelocatable // info = result register
	kindLocal          // info = local register
	kindUpValue        // info = index of upvalue
	kindIndexed        // table = table register/upvalue, index = register/constant index
	kindJump           // info = instruction pc
	kindRelocatable    // info = instruction pc
	kindCall           // info = instruction pc
	kindVarArg         // info = instruction pc
)

// var kinds []string = []string{
// 	"void",
// 	"nil",
// 	"true",
// 	"false",
// 	"constant",
// 	"number",
// 	"nonrelocatable",
// 	"local",
// 	"upvalue",
// 	"indexed",
// 	"jump",
// 	"relocatable",
// 	"call",
// 	"vararg",
// }

type exprDesc struct {
	kind      int
	index     int // register/constant index
	table     int // register or upvalue
	tableType int // whether 'table' is register (kindLocal) or upvalue (kindUpValue)
	info      int
	t, f      int // patch lists for 'exit when true/false'
	value     float64
}

type assignmentTarget struct {
	previous *assignmentTarget
	exprDesc
}

type label struct {
	name                string
	pc, line            int
	activeVariableCount int
}

type block struct {
	previous              *block
	firstLabel, firstGoto int
	activeVariableCount   int
	hasUpValue, isLoop    bool
}

type funcState struct {
	f                      *prototype
	constantLookup         map[value]int
	previous               *funcState
	p                      *parser
	block                  *block
	pc, jumpPC, lastTarget int
	freeRegisterCount      int
	activeVariableCount    int
	firstLocal             int
}

func (f *funcState) openFunction(line int) {
	f.f.prototypes = append(f.f.prototypes, prototype{source: f.p.source, maxStackSize: 2, lineDefined: line})
	f.p.fs = &funcState{f: &f.f.prototypes[len(f.f.prototypes)-1], constantLookup: make(map[value]int), previous: f, p: f.p, jumpPC: noJump, firstLocal: len(f.p.activeVariables)}
	f.p.fs.enterBlock(false)
}

func (f *funcState) closeFunction() exprDesc {
	e := f.previous.toNextRegister(makeExpression(kindRelocatable, f.previous.emitABx(opClosure, 0, len(f.previous.f.prototypes)-1)))
	f.emitReturnNone()
	f.leaveBlock()
	f.assert(f.block == nil)
	f.p.fs = f.previous
	return e
}

func (f *funcState) enterBlock(isLoop bool) {
	// TODO www.lua.org uses a trick here to stack allocate the block, and chain blocks in the stack
	f.block = &block{previous: f.block, firstLabel: len(f.p.activeLabels), firstGoto: len(f.p.pendingGotos), activeVariableCount: f.activeVariableCount, isLoop: isLoop}
	f.assert(f.freeRegisterCount == f.activeVariableCount)
}

func isReserved(name string) bool {
	_, ok := reservedTokens[name]
	return ok
}

func (f *funcState) undefinedGotoError(g label) {
	if isReserved(g.name) {
		f.semanticError(fmt.Sprintf("<%s> at line %d not inside a loop", g.name, g.line))
	} else {
		f.semanticError(fmt.Sprintf("no visible label '%s' for <goto> at line %d", g.name, g.line))
	}
}

func (f *funcState) localVariable(i int) *localVariable {
	index := f.p.activeVariables[f.firstLocal+i]
	return &f.f.localVariables[index]
}

func (f *funcState) activateLocals(n int) {
	for f.activeVariableCount += n; n != 0; n-- {
		f.localVariable(f.activeVariableCount - n).startPC = pc(f.pc)
	}
}

func (f *funcState) deactivateLocals(level int) {
	for i := level; i < f.activeVariableCount; i++ {
		f.localVariable(i).endPC = pc(f.pc)
	}
	f.p.activeVariables = f.p.activeVariables[:len(f.p.activeVariables)-(f.activeVariableCount-level)]
	f.activeVariableCount = level
}

func (f *funcState) declareLocal(name string) {
	r := len(f.f.localVariables)
	f.f.localVariables = append(f.f.localVariables, localVariable{name: name})
	f.p.checkLimit(len(f.p.activeVariables)+1-f.firstLocal, maxLocalVariables, "local variables")
	f.p.activeVariables = append(f.p.activeVariables, r)
}

func (f *funcState) makeGoto(name string, line, pc int) {
	f.p.pendingGotos = append(f.p.pendingGotos, label{name: name, line: line, pc: pc, activeVariableCount: f.activeVariableCount})
	f.findLabel(len(f.p.pendingGotos) - 1)
}

func (f *funcState) makeLabel(name string, line int) int {
	f.p.activeLabels = append(f.p.activeLabels, label{name: name, line: line, pc: f.pc, activeVariableCount: f.activeVariableCount})
	return len(f.p.activeLabels) - 1
}

func (f *funcState) closeGoto(i int, l label) {
	g := f.p.pendingGotos[i]
	if f.assert(g.name == l.name); g.activeVariableCount < l.activeVariableCount {
		f.semanticError(fmt.Sprintf("<goto %s> at line %d jumps into the scope of local '%s'", g.name, g.line, f.localVariable(g.activeVariableCount).name))
	}
	f.patchList(g.pc, l.pc)
	copy(f.p.pendingGotos[i:], f.p.pendingGotos[i+1:])
	f.p.pendingGotos = f.p.pendingGotos[:len(f.p.pendingGotos)-1]
}

func (f *funcState) findLabel(i int) int {
	g, b := f.p.pendingGotos[i], f.block
	for _, l := range f.p.activeLabels[b.firstLabel:] {
		if l.name == g.name {
			if g.activeVariableCount > l.activeVariableCount && (b.hasUpValue || len(f.p.activeLabels) > b.firstLabel) {
				f.patchClose(g.pc, l.activeVariableCount)
			}
			f.closeGoto(i, l)
			return 0
		}
	}
	return 1
}

func (f *funcState) checkRepeatedLabel(name string) {
	for _, l := range f.p.activeLabels[f.block.firstLabel:] {
		if l.name == name {
			f.semanticError(fmt.Sprintf("label '%s' already defined on line %d", name, l.line))
		}
	}
}

func (f *funcState) findGotos(label int) {
	for i, l := f.block.firstGoto, f.p.activeLabels[label]; i < len(f.p.pendingGotos); {
		if f.p.pendingGotos[i].name == l.name {
			f.closeGoto(i, l)
		} else {
			i++
		}
	}
}

func (f *funcState) moveGotosOut(b block) {
	for i := b.firstGoto; i < len(f.p.pendingGotos); i += f.findLabel(i) {
		if f.p.pendingGotos[i].activeVariableCount > b.activeVariableCount {
			if b.hasUpValue {
				f.patchClose(f.p.pendingGotos[i].pc, b.activeVariableCount)
			}
			f.p.pendingGotos[i].activeVariableCount = b.activeVariableCount
		}
	}
}

func (f *funcState) breakLabel() {
	f.findGotos(f.makeLabel("break", 0))
}

func (f *funcState) leaveBlock() {
	b := f.block
	if b.previous != nil && b.hasUpValue { // create a 'jump to here' to close upvalues
		j := f.emitJump()
		f.patchClose(j, b.activeVariableCount)
		f.patchToHere(j)
	}
	if b.isLoop {
		f.breakLabel() // close pending breaks
	}
	f.block = b.previous
	f.deactivateLocals(b.activeVariableCount)
	f.assert(b.activeVariableCount == f.activeVariableCount)
	f.freeRegisterCount = f.activeVariableCount
	f.p.activeLabels = f.p.activeLabels[:b.firstLabel]
	if b.previous != nil { // inner block
		f.moveGotosOut(*b) // update pending gotos to outer block
	} else if b.firstGoto < len(f.p.pendingGotos) { // pending gotos in outer block
		f.undefinedGotoError(f.p.pendingGotos[b.firstGoto])
	}
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func not(b int) int {
	if b == 0 {
		return 1
	}
	return 0
}

func makeExpression(kind, info int) exprDesc {
	return exprDesc{f: noJump, t: noJump, kind: kind, info: info}
}

func (f *funcState) semanticError(message string) {
	f.p.t = 0 // remove "near to" from final message
	f.p.syntaxError(message)
}

func (f *funcState) unreachable()                        { f.assert(false) }
func (f *funcState) assert(cond bool)                    { f.p.l.assert(cond) }
func (f *funcState) instr(e exprDesc) *instruction { return &f.f.code[e.info] }
func (e exprDesc) hasJumps() bool                       { return e.t != e.f }
func (e exprDesc) isNumeral() bool                      { return e.kind == kindNumber && e.t == noJump && e.f == noJump }
func (e exprDesc) isVariable() bool                     { return kindLocal <= e.kind && e.kind <= kindIndexed }
func (e exprDesc) hasMultipleReturns() bool             { return e.kind == kindCall || e.kind == kindVarArg }

func (f *funcState) emit(i instruction) int {
	f.dischargeJumpPC()
	f.f.code = append(f.f.code, i) // TODO check that we always only append
	f.f.lineInfo = append(f.f.lineInfo, int32(f.p.lastLine))
	f.pc++
	return f.pc - 1
}

func (f *funcState) emitABC(op opCode, a, b, c int) int {
	f.assert(opMode(op) == iABC)
	f.assert(bMode(op) != opArgN || b == 0)
	f.assert(cMode(op) != opArgN || c == 0)
	f.assert(a <= maxArgA && b <= maxArgB && c <= maxArgC)
	return f.emit(packABC(op, a, b, c))
}

func (f *funcState) emitABx(op opCode, a, bx int) int {
	f.assert(opMode(op) == iABx || opMode(op) == iAsBx)
	f.assert(cMode(op) == opArgN)
	f.assert(a <= maxArgA && bx <= maxArgBx)
	return f.emit(packABx(op, a, bx))
}

func (f *funcState) emitAsBx(op opCode, a, sbx int) int {
	return f.emitABx(op, a, sbx+maxArgSBx)
}

func (f *funcState) emitExtraArg(a int) int {
	f.assert(a <= maxArgAx)
	return f.emit(packAx(opExtraArg, a))
}

func (f *funcState) emitConstant(r, constant int) int {
	if constant <= maxArgBx {
		return f.emitABx(opLoadConstant, r, constant)
	}
	pc := f.emitABx(opLoadConstant, r, 0)
	f.emitExtraArg(constant)
	return pc
}

func (f *funcState) stringExpr(s string) exprDesc {
	return makeExpression(kindConstant, f.stringConstant(s))
}

// loadNil nils the register range [from, from+n). When the previous
// instruction is an adjacent LOADNIL and no jump lands here, the two ranges
// merge into one widened instruction.
func (f *funcState) loadNil(from, n int) {
	last := from + n - 1
	if f.pc > f.lastTarget {
		if prev := &f.f.code[f.pc-1]; prev.opCode() == opLoadNil {
			pFrom, pLast := prev.a(), prev.a()+prev.b()
			if pFrom <= from && from <= pLast+1 || from <= pFrom && pFrom <= last+1 {
				from = min(from, pFrom)
				last = max(last, pLast)
				prev.setA(from)
				prev.setB(last - from)
				return
			}
		}
	}
	f.emitABC(opLoadNil, from, n-1, 0)
}

func (f *funcState) emitJump() int {
	jumpPC := f.jumpPC
	f.jumpPC = noJump
	return f.concatJumpLists(f.emitAsBx(opJump, 0, noJump), jumpPC)
}

func (f *funcState) jumpTo(target int) {
	f.patchList(f.emitJump(), target)
}

func (f *funcState) emitReturnNone() {
	f.emitABC(opReturn, 0, 1, 0)
}

func (f *funcState) emitReturn(e exprDesc, resultCount int) {
	if e.hasMultipleReturns() {
		if f.setReturns(e, resultCount); e.kind == kindCall && resultCount == 1 {
			f.instr(e).setOpCode(opTailCall)
			f.assert(f.instr(e).a() == f.activeVariableCount)
		}
		f.emitABC(opReturn, f.activeVariableCount, MultipleReturns+1, 0)
	} else if resultCount == 1 {
		f.emitABC(opReturn, f.toAnyRegister(e).info, 1+1, 0)
	} else {
		_ = f.toNextRegister(e)
		f.assert(resultCount == f.freeRegisterCount-f.activeVariableCount)
		f.emitABC(opReturn, f.activeVariableCount, resultCount+1, 0)
	}
}

func (f *funcState) conditionalJump(op opCode, a, b, c int) int {
	f.emitABC(op, a, b, c)
	return f.emitJump()
}

func (f *funcState) fixJump(pc, dest int) {
	f.assert(dest != noJump)
	offset := dest - (pc + 1)
	if abs(offset) > maxArgSBx {
		f.p.syntaxError("control structure too long")
	}
	f.f.code[pc].setSBx(offset)
}

func (f *funcState) here() int {
	f.lastTarget = f.pc
	return f.pc
}

func (f *funcState) jump(pc int) int {
	if offset := f.f.code[pc].sbx(); offset != noJump {
		return pc + 1 + offset
	}
	return noJump
}

func (f *funcState) jumpControl(pc int) *instruction {
	if pc >= 1 && testTMode(f.f.code[pc-1].opCode()) {
		return &f.f.code[pc-1]
	}
	return &f.f.code[pc]
}

func (f *funcState) needValue(list int) bool {
	for ; list != noJump; list = f.jump(list) {
		if f.jumpControl(list).opCode() != opTestSet {
			return true
		}
	}
	return false
}

func (f *funcState) patchTestRegister(node, register int) bool {
	if i := f.jumpControl(node); i.opCode() != opTestSet {
		return false
	} else if register != noRegister && register != i.b() {
		i.setA(register)
	} else {
		*i = packABC(opTest, i.b(), 0, i.c())
	}
	return true
}

func (f *funcState) removeValues(list int) {
	for ; list != noJump; list = f.jump(list) {
		_ = f.patchTestRegister(list, noRegister)
	}
}

func (f *funcState) patchListHelper(list, target, register, defaultTarget int) {
	for list != noJump {
		next := f.jump(list)
		if f.patchTestRegister(list, register) {
			f.fixJump(list, target)
		} else {
			f.fixJump(list, defaultTarget)
		}
		list = next
	}
}

func (f *funcState) dischargeJumpPC() {
	f.patchListHelper(f.jumpPC, f.pc, noRegister, f.pc)
	f.jumpPC = noJump
}

func (f *funcState) patchList(list, target int) {
	if target == f.pc {
		f.patchToHere(list)
	} else {
		f.assert(target < f.pc)
		f.patchListHelper(list, target, noRegister, target)
	}
}

func (f *funcState) patchClose(list, level int) {
	for level, next := level+1, 0; list != noJump; list = next {
		next = f.jump(list)
		f.assert(f.f.code[list].opCode() == opJump && f.f.code[list].a() == 0 || f.f.code[list].a() >= level)
		f.f.code[list].setA(level)
	}
}

func (f *funcState) patchToHere(list int) {
	f.here()
	f.jumpPC = f.concatJumpLists(f.jumpPC, list)
}

func (f *funcState) concatJumpLists(l1, l2 int) int {
	switch {
	case l2 == noJump:
	case l1 == noJump:
		return l2
	default:
		list := l1
		for next := f.jump(list); next != noJump; list, next = next, f.jump(next) {
		}
		f.fixJump(list, l2)
	}
	return l1
}

func (f *funcState) addConstant(k, v value) (index int) {
	if old, ok := f.constantLookup[k]; ok {
		if f.f.constants[old] == v {
			return old
		}
	}
	index = len(f.f.constants)
	f.constantLookup[k] = index
	f.f.constants = append(f.f.constants, v)
	return
}

func (f *funcState) numberConstant(n float64) int {
	if n == 0.0 && math.Signbit(n) {
		return f.addConstant("-0.0", n)
	} else if n == 0.0 {
		return f.addConstant("0.0", n)
	} else if math.IsNaN(n) {
		return f.addConstant("NaN", n)
	}
	return f.addConstant(n, n)
}

func (f *funcState) checkRegisters(n int) {
	if n += f.freeRegisterCount; n >= maxStack {
		f.p.syntaxError("function or expression too complex")
	} else if n > f.f.maxStackSize {
		f.f.maxStackSize = n
	}
}

func (f *funcState) reserveRegisters(n int) {
	f.checkRegisters(n)
	f.freeRegisterCount += n
}

func (f *funcState) freeRegister(r int) {
	if !isConstant(r) && r >= f.activeVariableCount {
		f.freeRegisterCount--
		f.assert(r == f.freeRegisterCount)
	}
}

func (f *funcState) freeExpression(e exprDesc) {
	if e.kind == kindNonRelocatable {
		f.freeRegister(e.info)
	}
}

func (f *funcState) stringConstant(s string) int { return f.addConstant(s, f.p.l.intern(s)) }
func (f *funcState) booleanConstant(b bool) int  { return f.addConstant(b, b) }
func (f *funcState) nilConstant() int            { return f.addConstant(nil, nil) }

func (f *funcState) setReturns(e exprDesc, resultCount int) {
	if e.kind == kindCall {
		f.instr(e).setC(resultCount + 1)
	} else if e.kind == kindVarArg {
		f.instr(e).setB(resultCount + 1)
		f.instr(e).setA(f.freeRegisterCount)
		f.reserveRegisters(1)
	}
}

func (f *funcState) setReturn(e exprDesc) exprDesc {
	if e.kind == kindCall {
		e.kind, e.info = kindNonRelocatable, f.instr(e).a()
	} else if e.kind == kindVarArg {
		f.instr(e).setB(2)
		e.kind = kindRelocatable
	}
	return e
}

func (f *funcState) dischargeVariables(e exprDesc) exprDesc {
	switch e.kind {
	case kindLocal:
		e.kind = kindNonRelocatable
	case kindUpValue:
		e.kind, e.info = kindRelocatable, f.emitABC(opGetUpValue, 0, e.info, 0)
	case kindIndexed:
		if f.freeRegister(e.index); e.tableType == kindLocal {
			f.freeRegister(e.table)
			e.kind, e.info = kindRelocatable, f.emitABC(opGetTable, 0, e.table, e.index)
		} else {
			e.kind, e.info = kindRelocatable, f.emitABC(opGetTableUp, 0, e.table, e.index)
		}
	case kindVarArg, kindCall:
		e = f.setReturn(e)
	}
	return e
}

func (f *funcState) dischargeToRegister(e exprDesc, r int) exprDesc {
	switch e = f.dischargeVariables(e); e.kind {
	case kindNil:
		f.loadNil(r, 1)
	case kindFalse:
		f.emitABC(opLoadBool, r, 0, 0)
	case kindTrue:
		f.emitABC(opLoadBool, r, 1, 0)
	case kindConstant:
		f.emitConstant(r, e.info)
	case kindNumber:
		f.emitConstant(r, f.numberConstant(e.value))
	case kindRelocatable:
		f.instr(e).setA(r)
	case kindNonRelocatable:
		if r != e.info {
			f.emitABC(opMove, r, e.info, 0)
		}
	default:
		f.assert(e.kind == kindVoid || e.kind == kindJump)
		return e
	}
	e.kind, e.info = kindNonRelocatable, r
	return e
}

func (f *funcState) dischargeToAnyRegister(e exprDesc) exprDesc {
	if e.kind != kindNonRelocatable {
		f.reserveRegisters(1)
		e = f.dischargeToRegister(e, f.freeRegisterCount-1)
	}
	return e
}

func (f *funcState) encodeLabel(a, b, jump int) int {
	f.here()
	return f.emitABC(opLoadBool, a, b, jump)
}

func (f *funcState) expressionToRegister(e exprDesc, r int) exprDesc {
	if e = f.dischargeToRegister(e, r); e.kind == kindJump {
		e.t = f.concatJumpLists(e.t, e.info)
	}
	if e.hasJumps() {
		loadFalse, loadTrue := noJump, noJump
		if f.needValue(e.t) || f.needValue(e.f) {
			jump := noJump
			if e.kind != kindJump {
				jump = f.emitJump()
			}
			loadFalse, loadTrue = f.encodeLabel(r, 0, 1), f.encodeLabel(r, 1, 0)
			f.patchToHere(jump)
		}
		end := f.here()
		f.patchListHelper(e.f, end, r, loadFalse)
		f.patchListHelper(e.t, end, r, loadTrue)
	}
	e.f, e.t, e.info, e.kind = noJump, noJump, r, kindNonRelocatable
	return e
}

func (f *funcState) toNextRegister(e exprDesc) exprDesc {
	e = f.dischargeVariables(e)
	f.freeExpression(e)
	f.reserveRegisters(1)
	return f.expressionToRegister(e, f.freeRegisterCount-1)
}

func (f *funcState) toAnyRegister(e exprDesc) exprDesc {
	if e = f.dischargeVariables(e); e.kind == kindNonRelocatable {
		if !e.hasJumps() {
			return e
		}
		if e.info >= f.activeVariableCount {
			return f.expressionToRegister(e, e.info)
		}
	}
	return f.toNextRegister(e)
}

func (f *funcState) toAnyRegisterOrUpValue(e exprDesc) exprDesc {
	if e.kind != kindUpValue || e.hasJumps() {
		e = f.toAnyRegister(e)
	}
	return e
}

func (f *funcState) toValue(e exprDesc) exprDesc {
	if e.hasJumps() {
		return f.toAnyRegister(e)
	}
	return f.dischargeVariables(e)
}

func (f *funcState) toRegisterOrConstant(e exprDesc) (exprDesc, int) {
	switch e = f.toValue(e); e.kind {
	case kindTrue, kindFalse:
		if len(f.f.constants) <= maxIndexRK {
			e.info, e.kind = f.booleanConstant(e.kind == kindTrue), kindConstant
			return e, asConstant(e.info)
		}
	case kindNil:
		if len(f.f.constants) <= maxIndexRK {
			e.info, e.kind = f.nilConstant(), kindConstant
			return e, asConstant(e.info)
		}
	case kindNumber:
		e.info, e.kind = f.numberConstant(e.value), kindConstant
		fallthrough
	case kindConstant:
		if e.info <= maxIndexRK {
			return e, asConstant(e.info)
		}
	}
	e = f.toAnyRegister(e)
	return e, e.info
}

func (f *funcState) storeVariable(v, e exprDesc) {
	switch v.kind {
	case kindLocal:
		f.freeExpression(e)
		f.expressionToRegister(e, v.info)
		return
	case kindUpValue:
		e = f.toAnyRegister(e)
		f.emitABC(opSetUpValue, e.info, v.info, 0)
	case kindIndexed:
		var r int
		e, r = f.toRegisterOrConstant(e)
		if v.tableType == kindLocal {
			f.emitABC(opSetTable, v.table, v.index, r)
		} else {
			f.emitABC(opSetTableUp, v.table, v.index, r)
		}
	default:
		f.unreachable()
	}
	f.freeExpression(e)
}

func (f *funcState) emitSelf(e, key exprDesc) exprDesc {
	e = f.toAnyRegister(e)
	r := e.info
	f.freeExpression(e)
	result := exprDesc{info: f.freeRegisterCount, kind: kindNonRelocatable} // base register for opSelf
	f.reserveRegisters(2)                                                   // function and 'self' produced by opSelf
	key, k := f.toRegisterOrConstant(key)
	f.emitABC(opSelf, result.info, r, k)
	f.freeExpression(key)
	return result
}

func (f *funcState) invertJump(pc int) {
	i := f.jumpControl(pc)
	f.p.l.assert(testTMode(i.opCode()) && i.opCode() != opTestSet && i.opCode() != opTest)
	i.setA(not(i.a()))
}

func (f *funcState) jumpOnCondition(e exprDesc, cond int) int {
	if e.kind == kindRelocatable {
		if i := f.instr(e); i.opCode() == opNot {
			f.pc-- // remove previous opNot
			return f.conditionalJump(opTest, i.b(), 0, not(cond))
		}
	}
	e = f.dischargeToAnyRegister(e)
	f.freeExpression(e)
	return f.conditionalJump(opTestSet, noRegister, e.info, cond)
}

func (f *funcState) goIfTrue(e exprDesc) exprDesc {
	pc := noJump
	switch e = f.dischargeVariables(e); e.kind {
	case kindJump:
		f.invertJump(e.info)
		pc = e.info
	case kindConstant, kindNumber, kindTrue:
	default:
		pc = f.jumpOnCondition(e, 0)
	}
	e.f = f.concatJumpLists(e.f, pc)
	f.patchToHere(e.t)
	e.t = noJump
	return e
}

func (f *funcState) goIfFalse(e exprDesc) exprDesc {
	pc := noJump
	switch e = f.dischargeVariables(e); e.kind {
	case kindJump:
		pc = e.info
	case kindNil, kindFalse:
	default:
		pc = f.jumpOnCondition(e, 1)
	}
	e.t = f.concatJumpLists(e.t, pc)
	f.patchToHere(e.f)
	e.f = noJump
	return e
}

func (f *funcState) encodeNot(e exprDesc) exprDesc {
	switch e = f.dischargeVariables(e); e.kind {
	case kindNil, kindFalse:
		e.kind = kindTrue
	case kindConstant, kindNumber, kindTrue:
		e.kind = kindFalse
	case kindJump:
		f.invertJump(e.info)
	case kindRelocatable, kindNonRelocatable:
		e = f.dischargeToAnyRegister(e)
		f.freeExpression(e)
		e.info, e.kind = f.emitABC(opNot, 0, e.info, 0), kindRelocatable
	default:
		f.unreachable()
	}
	e.f, e.t = e.t, e.f
	f.removeValues(e.f)
	f.removeValues(e.t)
	return e
}

func (f *funcState) indexed(t, k exprDesc) (r exprDesc) {
	f.assert(!t.hasJumps())
	r.table = t.info
	k, r.index = f.toRegisterOrConstant(k)
	if t.kind == kindUpValue {
		r.tableType = kindUpValue
	} else {
		f.assert(t.kind == kindNonRelocatable || t.kind == kindLocal)
		r.tableType = kindLocal
	}
	r.kind = kindIndexed
	return
}

func foldConstants(op opCode, e1, e2 exprDesc) (exprDesc, bool) {
	if !e1.isNumeral() || !e2.isNumeral() {
		return e1, false
	} else if (op == opDiv || op == opMod) && e2.value == 0.0 {
		return e1, false
	}
	e1.value = numericArith(int(op-opAdd)+OpAdd, e1.value, e2.value)
	return e1, true
}

func (f *funcState) encodeArithmetic(op opCode, e1, e2 exprDesc, line int) exprDesc {
	if e, folded := foldConstants(op, e1, e2); folded {
		return e
	}
	o2 := 0
	if op != opUnaryMinus && op != opLength {
		e2, o2 = f.toRegisterOrConstant(e2)
	}
	e1, o1 := f.toRegisterOrConstant(e1)
	if o1 > o2 {
		f.freeExpression(e1)
		f.freeExpression(e2)
	} else {
		f.freeExpression(e2)
		f.freeExpression(e1)
	}
	e1.info, e1.kind = f.emitABC(op, 0, o1, o2), kindRelocatable
	f.fixLine(line)
	return e1
}

func (f *funcState) prefixExpr(op int, e exprDesc, line int) exprDesc {
	switch op {
	case oprMinus:
		if e.isNumeral() {
			e.value = -e.value
			return e
		} else {
			return f.encodeArithmetic(opUnaryMinus, f.toAnyRegister(e), makeExpression(kindNumber, 0), line)
		}
	case oprNot:
		return f.encodeNot(e)
	case oprLength:
		return f.encodeArithmetic(opLength, f.toAnyRegister(e), makeExpression(kindNumber, 0), line)
	}
	panic("unreachable")
}

func (f *funcState) infixExpr(op int, e exprDesc) exprDesc {
	switch op {
	case oprAnd:
		e = f.goIfTrue(e)
	case oprOr:
		e = f.goIfFalse(e)
	case oprConcat:
		e = f.toNextRegister(e)
	case oprAdd, oprSub, oprMul, oprDiv, oprMod, oprPow:
		if !e.isNumeral() {
			e, _ = f.toRegisterOrConstant(e)
		}
	default:
		e, _ = f.toRegisterOrConstant(e)
	}
	return e
}

func (f *funcState) encodeComparison(op opCode, cond int, e1, e2 exprDesc) exprDesc {
	e1, o1 := f.toRegisterOrConstant(e1)
	e2, o2 := f.toRegisterOrConstant(e2)
	f.freeExpression(e2)
	f.freeExpression(e1)
	if cond == 0 && op != opEqual {
		o1, o2, cond = o2, o1, 1
	}
	return makeExpression(kindJump, f.conditionalJump(op, cond, o1, o2))
}

func (f *funcState) postfixExpr(op int, e1, e2 exprDesc, line int) exprDesc {
	switch op {
	case oprAnd:
		f.assert(e1.t == noJump)
		e2 = f.dischargeVariables(e2)
		e2.f = f.concatJumpLists(e2.f, e1.f)
		return e2
	case oprOr:
		f.assert(e1.f == noJump)
		e2 = f.dischargeVariables(e2)
		e2.t = f.concatJumpLists(e2.t, e1.t)
		return e2
	case oprConcat:
		if e2 = f.toValue(e2); e2.kind == kindRelocatable && f.instr(e2).opCode() == opConcat {
			f.assert(e1.info == f.instr(e2).b()-1)
			f.freeExpression(e1)
			f.instr(e2).setB(e1.info)
			e1.kind, e1.info = kindRelocatable, e2.info
		} else {
			e2 = f.toNextRegister(e2)
			e1 = f.encodeArithmetic(opConcat, e1, e2, line)
		}
		return e1
	case oprAdd, oprSub, oprMul, oprDiv, oprMod, oprPow:
		return f.encodeArithmetic(opCode(op-oprAdd)+opAdd, e1, e2, line)
	case oprEq, oprLT, oprLE:
		return f.encodeComparison(opCode(op-oprEq)+opEqual, 1, e1, e2)
	case oprNE, oprGT, oprGE:
		return f.encodeComparison(opCode(op-oprNE)+opEqual, 0, e1, e2)
	}
	panic("unreachable")
}

func (f *funcState) fixLine(line int) {
	f.f.lineInfo[f.pc-1] = int32(line)
}

func (f *funcState) emitSetList(base, elementCount, storeCount int) {
	if f.assert(storeCount != 0); storeCount == MultipleReturns {
		storeCount = 0
	}
	if c := (elementCount-1)/listItemsPerFlush + 1; c <= maxArgC {
		f.emitABC(opSetList, base, storeCount, c)
	} else if c <= maxArgAx {
		f.emitABC(opSetList, base, storeCount, 0)
		f.emitExtraArg(c)
	} else {
		f.p.syntaxError("constructor too long")
	}
	f.freeRegisterCount = base + 1
}

func (f *funcState) checkConflict(t *assignmentTarget, e exprDesc) {
	extra, conflict := f.freeRegisterCount, false
	for ; t != nil; t = t.previous {
		if t.kind == kindIndexed {
			if t.tableType == e.kind && t.table == e.info {
				conflict = true
				t.table, t.tableType = extra, kindLocal
			}
			if e.kind == kindLocal && t.index == e.info {
				conflict = true
				t.index = extra
			}
		}
	}
	if conflict {
		if e.kind == kindLocal {
			f.emitABC(opMove, extra, e.info, 0)
		} else {
			f.emitABC(opGetUpValue, extra, e.info, 0)
		}
		f.reserveRegisters(1)
	}
}

func (f *funcState) adjustAssignment(variableCount, expressionCount int, e exprDesc) {
	if extra := variableCount - expressionCount; e.hasMultipleReturns() {
		if extra++; extra < 0 {
			extra = 0
		}
		if f.setReturns(e, extra); extra > 1 {
			f.reserveRegisters(extra - 1)
		}
	} else {
		if expressionCount > 0 {
			_ = f.toNextRegister(e)
		}
		if extra > 0 {
			r := f.freeRegisterCount
			f.reserveRegisters(extra)
			f.loadNil(r, extra)
		}
	}
}

func (f *funcState) makeUpValue(name string, e exprDesc) int {
	f.p.checkLimit(len(f.f.upValues)+1, maxUpValue, "upvalues")
	f.f.upValues = append(f.f.upValues, upValueDesc{name: name, isLocal: e.kind == kindLocal, index: e.info})
	return len(f.f.upValues) - 1
}

func singleVariableHelper(f *funcState, name string, base bool) (e exprDesc, found bool) {
	owningBlock := func(b *block, level int) *block {
		for b.activeVariableCount > level {
			b = b.previous
		}
		return b
	}
	find := func() (int, bool) {
		for i := f.activeVariableCount - 1; i >= 0; i-- {
			if name == f.localVariable(i).name {
				return i, true
			}
		}
		return 0, false
	}
	findUpValue := func() (int, bool) {
		for i, u := range f.f.upValues {
			if u.name == name {
				return i, true
			}
		}
		return 0, false
	}
	if f == nil {
		return
	}
	var v int
	if v, found = find(); found {
		if e = makeExpression(kindLocal, v); !base {
			owningBlock(f.block, v).hasUpValue = true
		}
		return
	}
	if v, found = findUpValue(); found {
		return makeExpression(kindUpValue, v), true
	}
	if e, found = singleVariableHelper(f.previous, name, false); !found {
		return
	}
	return makeExpression(kindUpValue, f.makeUpValue(name, e)), true
}

func (f *funcState) resolveVariable(name string) (e exprDesc) {
	var found bool
	if e, found = singleVariableHelper(f, name, true); !found {
		e, found = singleVariableHelper(f, "_ENV", true)
		f.assert(found && (e.kind == kindLocal || e.kind == kindUpValue))
		e = f.indexed(e, f.stringExpr(name))
	}
	return
}

func (f *funcState) setMultipleReturns(e exprDesc) { f.setReturns(e, MultipleReturns) }

// activeLocal exposes the debug record of the i-th active local so the
// parser can adjust its scope markers.
func (f *funcState) activeLocal(i int) *localVariable { return f.localVariable(i) }

// openMainFunction prepares the top-level function of a chunk: it gets an
// enclosing block and the implicit _ENV upvalue through which the compiler
// routes every global access.
func (f *funcState) openMainFunction() {
	f.enterBlock(false)
	f.f.upValues = append(f.f.upValues, upValueDesc{name: "_ENV", isLocal: false, index: 0})
}

func (f *funcState) closeMainFunction() *funcState {
	f.emitReturnNone()
	f.leaveBlock()
	f.assert(f.block == nil)
	return f
}

// openForBody emits the loop preparation instruction and brings the
// user-visible control variables into scope.
func (f *funcState) openForBody(base, n int, isNumeric bool) (prep int) {
	if isNumeric {
		prep = f.emitAsBx(opForPrep, base, noJump)
	} else {
		prep = f.emitJump()
	}
	f.activateLocals(n)
	f.reserveRegisters(n)
	return
}

// closeForBody patches the preparation jump and emits the loop-closing
// instruction pair that transfers control back to the body.
func (f *funcState) closeForBody(prep, base, line, n int, isNumeric bool) {
	f.patchToHere(prep)
	var endFor int
	if isNumeric {
		endFor = f.emitAsBx(opForLoop, base, noJump)
	} else {
		f.emitABC(opTForCall, base, 0, n)
		f.fixLine(line)
		endFor = f.emitAsBx(opTForLoop, base+2, noJump)
	}
	f.patchList(endFor, prep+1)
	f.fixLine(line)
}

func (f *funcState) openConstructor() (pc int, t exprDesc) {
	pc = f.emitABC(opNewTable, 0, 0, 0)
	t = f.toNextRegister(makeExpression(kindRelocatable, pc))
	return
}

func (f *funcState) flushFieldToConstructor(tableRegister, freeRegisterCount int, k exprDesc, v func() exprDesc) {
	_, rk := f.toRegisterOrConstant(k)
	_, rv := f.toRegisterOrConstant(v())
	f.emitABC(opSetTable, tableRegister, rk, rv)
	f.freeRegisterCount = freeRegisterCount
}

func (f *funcState) flushToConstructor(tableRegister, pending, arrayCount int, e exprDesc) int {
	f.toNextRegister(e)
	if pending == listItemsPerFlush {
		f.emitSetList(tableRegister, arrayCount, listItemsPerFlush)
		pending = 0
	}
	return pending
}

func (f *funcState) closeConstructor(pc, tableRegister, pending, arrayCount, hashCount int, e exprDesc) {
	if pending != 0 {
		if e.hasMultipleReturns() {
			f.setReturns(e, MultipleReturns)
			f.emitSetList(tableRegister, arrayCount, MultipleReturns)
			arrayCount--
		} else {
			if e.kind != kindVoid {
				f.toNextRegister(e)
			}
			f.emitSetList(tableRegister, arrayCount, pending)
		}
	}
	f.f.code[pc].setB(int(float8FromInt(arrayCount)))
	f.f.code[pc].setC(int(float8FromInt(hashCount)))
}
