package lua

import (
	"fmt"
	"strings"
)

// Runtime value operations shared by the interpreter loop and the
// embedding API. Each falls back to the relevant metamethod when the raw
// operation does not apply; each may therefore run Lua code and move the
// stack, so the interpreter refreshes its register window after calling
// them.

// arithMeta resolves an arithmetic operation whose fast path (two numbers)
// failed: coercible strings still compute numerically, anything else
// consults the operands' metamethods.
func (l *state) arithMeta(a, b value, ev metaEvent) value {
	if x, ok := toNumber(a); ok {
		if y, ok := toNumber(b); ok {
			return numericArith(OpAdd+int(ev-metaAdd), x, y)
		}
	}
	if r, ok := l.binaryMetamethod(a, b, ev); ok {
		return r
	}
	l.arithError(a, b)
	return nil
}

// tableGet is the semantics of t[key]: a raw hit wins, otherwise __index
// chains through at most maxTagLoop handlers.
func (l *state) tableGet(t, key value) value {
	for depth := 0; depth < maxTagLoop; depth++ {
		var handler value
		if tbl, ok := t.(*table); ok {
			if v := tbl.at(key); v != nil {
				return v
			}
			if handler = l.cachedMetamethod(tbl.metaTable, metaIndex); handler == nil {
				return nil
			}
		} else if handler = l.metamethodOf(t, metaIndex); handler == nil {
			l.typeError(t, "index")
		}
		if isCallable(handler) {
			return l.callMetamethod(handler, t, key)
		}
		t = handler // plain __index value: retry the lookup against it
	}
	l.runtimeError("'__index' chain too long; possible loop")
	return nil
}

// tableSet is the semantics of t[key] = v, honoring __newindex.
func (l *state) tableSet(t, key, v value) {
	for depth := 0; depth < maxTagLoop; depth++ {
		var handler value
		if tbl, ok := t.(*table); ok {
			if tbl.tryPut(l, key, v) { // existing entry: metamethod irrelevant
				tbl.invalidateMetaCache()
				return
			}
			if handler = l.cachedMetamethod(tbl.metaTable, metaNewIndex); handler == nil {
				tbl.put(l, key, v)
				tbl.invalidateMetaCache()
				return
			}
		} else if handler = l.metamethodOf(t, metaNewIndex); handler == nil {
			l.typeError(t, "index")
		}
		if isCallable(handler) {
			l.callMetamethodV(handler, t, key, v)
			return
		}
		t = handler
	}
	l.runtimeError("'__newindex' chain too long; possible loop")
}

// lengthOf is the # operator: strings report byte length, tables a border
// of their array part, and __len overrides both for tables and is the only
// option for anything else.
func (l *state) lengthOf(v value) value {
	switch v := v.(type) {
	case *gcString:
		return float64(v.Len())
	case *table:
		if m := l.cachedMetamethod(v.metaTable, metaLen); m != nil {
			return l.callMetamethod(m, v, v)
		}
		return float64(v.length())
	}
	if m := l.metamethodOf(v, metaLen); m != nil {
		return l.callMetamethod(m, v, v)
	}
	l.typeError(v, "get length of")
	return nil
}

// valuesEqual implements ==. Primitive kinds compare by value, reference
// kinds by identity (interning makes content-equal strings identical), and
// two tables or two userdata may appeal to a shared __eq.
func (l *state) valuesEqual(a, b value) bool {
	var handler value
	switch a := a.(type) {
	case *table:
		if a == b {
			return true
		}
		if b, ok := b.(*table); ok {
			handler = l.equalityMetamethod(a.metaTable, b.metaTable)
		}
	case *userData:
		if a == b {
			return true
		}
		if b, ok := b.(*userData); ok {
			handler = l.equalityMetamethod(a.metaTable, b.metaTable)
		}
	default:
		return a == b
	}
	return handler != nil && !isFalse(l.callMetamethod(handler, a, b))
}

// lessThan orders two numbers or two strings; orEqual selects <= over <.
// Everything else needs __lt/__le, with a <= b falling back to not (b < a).
func (l *state) lessThan(left, right value, orEqual bool) bool {
	if x, y, ok := pairAsNumbers(left, right); ok {
		if orEqual {
			return x <= y
		}
		return x < y
	}
	if x, y, ok := pairAsStrings(left, right); ok {
		if orEqual {
			return x <= y
		}
		return x < y
	}
	if !orEqual {
		if r, ok := l.orderMetamethod(left, right, metaLT); ok {
			return r
		}
	} else {
		if r, ok := l.orderMetamethod(left, right, metaLE); ok {
			return r
		}
		if r, ok := l.orderMetamethod(right, left, metaLT); ok {
			return !r
		}
	}
	l.orderError(left, right)
	return false
}

// concat folds the top total stack slots right to left, coercing numbers
// to strings and batching adjacent string runs into one join.
func (l *state) concat(total int) {
	l.assert(total >= 2)
	for total > 1 {
		top := l.top
		second := l.stack[top-2]
		_, secondIsString := second.(*gcString)
		_, secondIsNumber := second.(float64)

		folded := 2 // operands consumed this round
		switch {
		case !secondIsString && !secondIsNumber:
			l.concatViaMetamethod(top)
		default:
			if first, ok := l.toString(top - 1); !ok {
				l.concatViaMetamethod(top)
			} else if first == "" {
				s, _ := l.toString(top - 2)
				l.stack[top-2] = l.stringValue(s)
			} else if s2, ok := l.stack[top-2].(*gcString); ok && s2.Len() == 0 {
				l.stack[top-2] = l.stack[top-1]
			} else {
				// Gather the longest run of coercible operands below.
				parts := []string{first}
				for folded <= total {
					s, ok := l.toString(top - folded)
					if !ok {
						break
					}
					parts = append(parts, s)
					folded++
				}
				folded--
				for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
					parts[i], parts[j] = parts[j], parts[i]
				}
				l.stack[top-folded] = l.stringValue(strings.Join(parts, ""))
			}
		}
		total -= folded - 1
		l.top -= folded - 1
	}
}

func (l *state) concatViaMetamethod(top int) {
	a, b := l.stack[top-2], l.stack[top-1]
	r, ok := l.binaryMetamethod(a, b, metaConcat)
	if !ok {
		l.concatError(a, b)
	}
	l.stack[top-2] = r
}

// traceExecution fires the count/line hooks for the instruction about to
// run.
func (l *state) traceExecution() {
	ci := l.callInfo
	mask := l.hookMask
	countHook := mask&MaskCount != 0 && l.hookCount == 0
	if countHook {
		l.resetHookCount()
	}
	if ci.isCallStatus(callStatusHookYielded) {
		ci.clearCallStatus(callStatusHookYielded)
		return
	}
	if countHook {
		l.hook(HookCount, -1)
	}
	if mask&MaskLine != 0 {
		p := l.prototype(ci)
		npc := ci.savedPC - 1
		newLine := p.lineInfo[npc]
		if npc == 0 || ci.savedPC <= l.oldPC || newLine != p.lineInfo[l.oldPC-1] {
			l.hook(HookLine, int(newLine))
		}
	}
	l.oldPC = ci.savedPC
	if l.shouldYield {
		if countHook {
			l.hookCount = 1
		}
		ci.savedPC--
		ci.setCallStatus(callStatusHookYielded)
		ci.function = l.top - 1
		panic("yield is not supported")
	}
}

// execute runs the Lua frame on top of the call-info chain to completion.
// Calls into further Lua functions stay inside this loop (marked with
// callStatusReentry); calls into Go run synchronously inside preCall; a
// RETURN from the frame this invocation started with leaves the loop.
func (l *state) execute() {
	ci := l.callInfo
	cl := l.stack[ci.function].(*luaClosure)
	frame, constants := ci.frame, cl.prototype.constants

	// reload re-derives the cached view after ci changed frames; sync
	// refreshes only the register window after an operation that may have
	// moved the stack.
	reload := func() {
		ci = l.callInfo
		cl = l.stack[ci.function].(*luaClosure)
		frame, constants = ci.frame, cl.prototype.constants
	}
	sync := func() { frame = ci.frame }

	// rk decodes a B/C operand under the RK convention.
	rk := func(operand int) value {
		if isConstant(operand) {
			return constants[constantIndex(operand)]
		}
		return frame[operand]
	}

	// expect fetches the next instruction, which the compiler guarantees
	// to be of the given opcode.
	expect := func(op opCode) instruction {
		i := ci.step()
		if i.opCode() != op {
			panic(fmt.Sprintf("expected %s, found %s", opName(op), i.String()))
		}
		return i
	}

	// followJump executes the JMP that the compiler emits after every
	// conditional, including its close-upvalues side effect.
	followJump := func() {
		j := expect(opJump)
		if a := j.a(); a > 0 {
			l.close(ci.base() + a - 1)
		}
		ci.jump(j.sbx())
	}

	// condition resolves a comparison opcode's skip-or-jump contract.
	condition := func(passed bool, i instruction) {
		if passed == (i.a() != 0) {
			followJump()
		} else {
			ci.skip()
		}
		sync()
	}

	for {
		if l.hookMask&(MaskLine|MaskCount) != 0 {
			if l.hookCount--; l.hookCount == 0 || l.hookMask&MaskLine != 0 {
				l.traceExecution()
				sync()
			}
		}
		inst := ci.step()
		switch op := inst.opCode(); op {
		case opMove:
			frame[inst.a()] = frame[inst.b()]

		case opLoadConstant:
			frame[inst.a()] = constants[inst.bx()]

		case opLoadConstantEx:
			frame[inst.a()] = constants[expect(opExtraArg).ax()]

		case opLoadBool:
			frame[inst.a()] = inst.b() != 0
			if inst.c() != 0 {
				ci.skip()
			}

		case opLoadNil:
			a := inst.a()
			clear(frame[a : a+inst.b()+1])

		case opGetUpValue:
			frame[inst.a()] = cl.upValue(inst.b())

		case opSetUpValue:
			cl.setUpValue(inst.b(), frame[inst.a()])

		case opGetTableUp:
			v := l.tableGet(cl.upValue(inst.b()), rk(inst.c()))
			sync()
			frame[inst.a()] = v

		case opGetTable:
			v := l.tableGet(frame[inst.b()], rk(inst.c()))
			sync()
			frame[inst.a()] = v

		case opSetTableUp:
			l.tableSet(cl.upValue(inst.a()), rk(inst.b()), rk(inst.c()))
			sync()

		case opSetTable:
			l.tableSet(frame[inst.a()], rk(inst.b()), rk(inst.c()))
			sync()

		case opNewTable:
			a := inst.a()
			if b, c := inst.b(), inst.c(); b != 0 || c != 0 {
				frame[a] = l.newTableWithSize(intFromFloat8(float8(b)), intFromFloat8(float8(c)))
			} else {
				frame[a] = l.newTable()
			}
			clear(frame[a+1:])

		case opSelf:
			a, receiver := inst.a(), frame[inst.b()]
			method := l.tableGet(receiver, rk(inst.c()))
			sync()
			frame[a+1], frame[a] = receiver, method

		case opAdd, opSub, opMul, opDiv, opMod, opPow:
			b, c := rk(inst.b()), rk(inst.c())
			if x, y, ok := pairAsNumbers(b, c); ok {
				frame[inst.a()] = numericArith(OpAdd+int(op-opAdd), x, y)
			} else {
				v := l.arithMeta(b, c, metaAdd+metaEvent(op-opAdd))
				sync()
				frame[inst.a()] = v
			}

		case opUnaryMinus:
			if n, ok := frame[inst.b()].(float64); ok {
				frame[inst.a()] = -n
			} else {
				v := l.arithMeta(frame[inst.b()], frame[inst.b()], metaUnaryMinus)
				sync()
				frame[inst.a()] = v
			}

		case opNot:
			frame[inst.a()] = isFalse(frame[inst.b()])

		case opLength:
			v := l.lengthOf(frame[inst.b()])
			sync()
			frame[inst.a()] = v

		case opConcat:
			a, b, c := inst.a(), inst.b(), inst.c()
			l.top = ci.stackIndex(c + 1) // operands end here
			l.concat(c - b + 1)
			sync()
			frame[a] = frame[b]
			if from := max(a+1, b); from < len(frame) {
				clear(frame[from:]) // drop the consumed temporaries
			}

		case opJump:
			if a := inst.a(); a > 0 {
				l.close(ci.base() + a - 1)
			}
			ci.jump(inst.sbx())

		case opEqual:
			passed := l.valuesEqual(rk(inst.b()), rk(inst.c()))
			condition(passed, inst)

		case opLessThan:
			passed := l.lessThan(rk(inst.b()), rk(inst.c()), false)
			condition(passed, inst)

		case opLessOrEqual:
			passed := l.lessThan(rk(inst.b()), rk(inst.c()), true)
			condition(passed, inst)

		case opTest:
			if isFalse(frame[inst.a()]) == (inst.c() == 0) {
				followJump()
			} else {
				ci.skip()
			}

		case opTestSet:
			b := frame[inst.b()]
			if isFalse(b) == (inst.c() == 0) {
				frame[inst.a()] = b
				followJump()
			} else {
				ci.skip()
			}

		case opCall:
			a, b, c := inst.a(), inst.b(), inst.c()
			if b != 0 {
				l.top = ci.stackIndex(a + b)
			} // otherwise the previous instruction left top open
			if wanted := c - 1; l.preCall(ci.stackIndex(a), wanted) {
				// A Go function ran to completion inside preCall.
				if wanted >= 0 {
					l.top = ci.top
				}
				sync()
			} else {
				// A Lua callee: descend into its frame without leaving
				// this loop.
				l.callInfo.setCallStatus(callStatusReentry)
				reload()
			}

		case opTailCall:
			a, b := inst.a(), inst.b()
			if b != 0 {
				l.top = ci.stackIndex(a + b)
			}
			if l.preCall(ci.stackIndex(a), MultipleReturns) {
				sync()
				break
			}
			// Splice the callee's fresh frame down over the caller's so
			// the chain does not grow.
			callee := l.callInfo
			caller := callee.previous
			callerFn, calleeFn := caller.function, callee.function
			if len(cl.prototype.prototypes) > 0 {
				l.close(caller.base())
			}
			for i, limit := 0, callee.base()+l.stack[calleeFn].(*luaClosure).prototype.parameterCount; calleeFn+i < limit; i++ {
				l.stack[callerFn+i] = l.stack[calleeFn+i]
			}
			shift := calleeFn - callerFn
			caller.base_ = callee.base() - shift
			caller.top = l.top - shift
			caller.frame = l.stack[caller.base_:caller.top]
			caller.savedPC, caller.code = callee.savedPC, callee.code
			caller.setCallStatus(callStatusTail)
			l.top, l.callInfo = caller.top, caller
			reload()

		case opReturn:
			a := inst.a()
			if b := inst.b(); b != 0 {
				l.top = ci.stackIndex(a + b - 1)
			}
			if len(cl.prototype.prototypes) > 0 {
				l.close(ci.base())
			}
			fixedResults := l.postCall(ci.stackIndex(a))
			if !ci.isCallStatus(callStatusReentry) {
				return // this invocation's first frame: back to the host
			}
			reload()
			if fixedResults {
				l.top = ci.top
			}

		case opForPrep:
			a := inst.a()
			start, ok := l.toNumber(frame[a])
			if !ok {
				l.runtimeError("'for' initial value must be a number")
			}
			limit, ok := l.toNumber(frame[a+1])
			if !ok {
				l.runtimeError("'for' limit must be a number")
			}
			step, ok := l.toNumber(frame[a+2])
			if !ok {
				l.runtimeError("'for' step must be a number")
			}
			frame[a], frame[a+1], frame[a+2] = start-step, limit, step
			ci.jump(inst.sbx())

		case opForLoop:
			a := inst.a()
			index := frame[a].(float64) + frame[a+2].(float64)
			limit, step := frame[a+1].(float64), frame[a+2].(float64)
			if step > 0 && index <= limit || step <= 0 && index >= limit {
				ci.jump(inst.sbx())
				frame[a] = index   // internal index
				frame[a+3] = index // the loop variable
			}

		case opTForCall:
			a, base := inst.a(), inst.a()+3
			copy(frame[base:base+3], frame[a:a+3]) // iterator, state, control
			l.top = ci.stackIndex(base) + 3
			l.call(ci.stackIndex(base), inst.c(), true)
			frame, l.top = ci.frame, ci.top
			inst = expect(opTForLoop)
			fallthrough

		case opTForLoop:
			if a := inst.a(); frame[a+1] != nil { // iterator produced a key
				frame[a] = frame[a+1] // it becomes the control variable
				ci.jump(inst.sbx())
			}

		case opSetList:
			a, count, batch := inst.a(), inst.b(), inst.c()
			if count == 0 {
				count = l.top - ci.stackIndex(a) - 1
			}
			if batch == 0 {
				batch = expect(opExtraArg).ax()
			}
			t := frame[a].(*table)
			start := (batch - 1) * listItemsPerFlush
			for i := 1; i <= count; i++ { // indices past the array part spill to the hash part
				t.putAtInt(start+i, frame[a+i])
			}
			l.top = ci.top

		case opClosure:
			a, p := inst.a(), &cl.prototype.prototypes[inst.bx()]
			if reused := cached(p, cl.upValues, ci.base()); reused != nil {
				frame[a] = reused
			} else {
				frame[a] = l.newClosure(p, cl.upValues, ci.base())
			}
			clear(frame[a+1:])

		case opVarArg:
			a, wanted := inst.a(), inst.b()-1
			available := ci.base() - ci.function - cl.prototype.parameterCount - 1
			if wanted < 0 { // copy every vararg and leave top after them
				wanted = available
				l.checkStack(available)
				l.top = ci.base() + a + available
				if ci.top < l.top {
					ci.top = l.top
					ci.frame = l.stack[ci.base():ci.top]
				}
				sync()
			}
			for i := 0; i < wanted; i++ {
				if i < available {
					frame[a+i] = l.stack[ci.base()-available+i]
				} else {
					frame[a+i] = nil
				}
			}

		default:
			l.runtimeError(fmt.Sprintf("cannot execute %s", inst.String()))
		}
	}
}
