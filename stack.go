package lua

func (l *state) push(v value) {
	l.stack[l.top] = v
	l.top++
}

func (l *state) pop() value {
	l.top--
	return l.stack[l.top]
}

type upValue struct {
	gcHeader
	home interface{}
}

type closure interface {
	upValue(i int) value
	setUpValue(i int, v value)
	upValueCount() int
}

type luaClosure struct {
	gcHeader
	prototype *prototype
	upValues  []*upValue
}

// goClosure is a host (C-API style) closure: a Go function plus the upvalues
// it closed over. env is its optional environment table; the collector
// traces it, but no library function or API call reads or sets it.
type goClosure struct {
	gcHeader
	function Function
	upValues []value
	env      *table
}

func (c *luaClosure) upValue(i int) value {
	return c.upValues[i].value()
}

func (c *luaClosure) setUpValue(i int, v value) {
	c.upValues[i].setValue(v)
}

func (c *luaClosure) upValueCount() int {
	return len(c.upValues)
}

func (c *goClosure) upValue(i int) value {
	return c.upValues[i]
}

func (c *goClosure) setUpValue(i int, v value) {
	c.upValues[i] = v
}

func (c *goClosure) upValueCount() int {
	return len(c.upValues)
}

func (l *state) newUpValue() *upValue {
	uv := &upValue{home: nil}
	l.global.collector.register(uv)
	return uv
}

func (uv *upValue) setValue(v value) {
	if home, ok := uv.home.(stackLocation); ok {
		home.state.stack[home.index] = v
	} else {
		uv.home = v
	}
}

func (uv *upValue) value() value {
	if home, ok := uv.home.(stackLocation); ok {
		return home.state.stack[home.index]
	}
	return uv.home
}

func (uv *upValue) close() {
	if home, ok := uv.home.(stackLocation); ok {
		uv.home = home.state.stack[home.index]
	} else {
		panic("attempt to close already-closed up value")
	}
}

func (uv *upValue) isInStackAt(level int) bool {
	if home, ok := uv.home.(stackLocation); ok {
		return home.index == level
	}
	return false
}

func (uv *upValue) isInStackBelow(level int) bool {
	if home, ok := uv.home.(stackLocation); ok {
		return home.index < level
	}
	return false
}

type openUpValue struct {
	upValue *upValue
	next    *openUpValue
}

func (l *state) newUpValueAt(level int) *upValue {
	uv := &upValue{home: stackLocation{state: l, index: level}}
	l.global.collector.register(uv)
	prev := &l.upValues // insert before the first upvalue below level
	for *prev != nil && !(*prev).upValue.isInStackBelow(level) {
		prev = &(*prev).next
	}
	*prev = &openUpValue{upValue: uv, next: *prev}
	return uv
}

// close transitions every open upvalue at or above level to its closed
// state. The open chain is kept sorted by descending stack index, so the
// walk can stop at the first upvalue below level.
func (l *state) close(level int) {
	for e := l.upValues; e != nil; e = e.next {
		if e.upValue.isInStackBelow(level) {
			l.upValues = e
			return
		}
		e.upValue.close()
	}
	l.upValues = nil
}

// callInfo records one active call. Lua and Go frames share the struct: a
// Lua frame carries the register window (frame), instruction stream (code)
// and saved program counter, while a Go frame leaves those nil and uses the
// continuation fields. isLua distinguishes the two.
type callInfo struct {
	frame          []value
	function, top  int
	base_          int
	previous, next *callInfo
	resultCount    int
	callStatus     callStatus
	savedPC        pc
	code           []instruction

	// go-frame continuation state
	context      int
	continuation Function
}

func (ci *callInfo) base() int           { return ci.base_ }
func (ci *callInfo) stackIndex(i int) int { return ci.base_ + i }
func (ci *callInfo) setTop(top int)      { ci.top = top }
func (ci *callInfo) isLua() bool         { return ci.callStatus&callStatusLua != 0 }

func (ci *callInfo) setCallStatus(s callStatus)     { ci.callStatus |= s }
func (ci *callInfo) clearCallStatus(s callStatus)   { ci.callStatus &^= s }
func (ci *callInfo) isCallStatus(s callStatus) bool { return ci.callStatus&s != 0 }

func (ci *callInfo) skip() {
	ci.savedPC++
}

func (ci *callInfo) step() instruction {
	i := ci.code[ci.savedPC]
	ci.savedPC++
	return i
}

func (ci *callInfo) jump(offset int) {
	ci.savedPC += pc(offset)
}

// nextCallInfo advances to (or allocates) the next record in the frame
// chain. Records are reused across calls at the same depth.
func (l *state) nextCallInfo() *callInfo {
	ci := l.callInfo.next
	if ci == nil {
		ci = &callInfo{previous: l.callInfo}
		l.callInfo.next = ci
	}
	l.callInfo = ci
	return ci
}

func (l *state) pushLuaFrame(function, base, resultCount int, p *prototype) *callInfo {
	ci := l.nextCallInfo()
	ci.function, ci.base_, ci.top = function, base, base+p.maxStackSize
	ci.resultCount = resultCount
	ci.callStatus = callStatusLua
	ci.savedPC, ci.code = 0, p.code
	ci.frame = l.stack[base:ci.top]
	ci.continuation = nil
	l.assert(ci.top <= l.stackLast)
	l.top = ci.top
	return ci
}

func (l *state) pushGoFrame(function, resultCount int) {
	ci := l.nextCallInfo()
	ci.function, ci.base_, ci.top = function, function+1, l.top+MinStack
	ci.resultCount = resultCount
	ci.callStatus = 0
	ci.savedPC, ci.code, ci.frame = 0, nil, nil
	l.assert(ci.top <= l.stackLast)
}

func (l *state) newLuaClosure(p *prototype) *luaClosure {
	cl := &luaClosure{prototype: p, upValues: make([]*upValue, len(p.upValues))}
	l.global.collector.register(cl)
	return cl
}

func (l *state) findUpValue(level int) *upValue {
	for e := l.upValues; e != nil; e = e.next {
		if e.upValue.isInStackAt(level) {
			return e.upValue
		}
	}
	return l.newUpValueAt(level)
}

func (l *state) newClosure(p *prototype, upValues []*upValue, base int) value {
	c := l.newLuaClosure(p)
	p.cache = c
	for i, uv := range p.upValues {
		if uv.isLocal { // upValue refers to local variable
			c.upValues[i] = l.findUpValue(base + uv.index)
		} else { // get upValue from enclosing function
			c.upValues[i] = upValues[uv.index]
		}
	}
	return c
}

func cached(p *prototype, upValues []*upValue, base int) *luaClosure {
	c := p.cache
	if c != nil {
		for i, uv := range p.upValues {
			if uv.isLocal && !c.upValues[i].isInStackAt(base+uv.index) {
				return nil
			} else if !uv.isLocal && c.upValues[i].home != upValues[uv.index].home {
				return nil
			}
		}
	}
	return c
}

func (l *state) preCall(function, resultCount int) bool {
	for {
		switch f := l.stack[function].(type) {
		case Function:
			l.checkStack(MinStack)
			l.pushGoFrame(function, resultCount)
			if l.hookMask&MaskCall != 0 {
				l.hook(HookCall, -1)
			}
			n := f(l)
			l.ApiCheckStackSpace(n)
			l.postCall(l.top - n)
			return true
		case *goClosure:
			l.checkStack(MinStack)
			l.pushGoFrame(function, resultCount)
			if l.hookMask&MaskCall != 0 {
				l.hook(HookCall, -1)
			}
			n := f.function(l)
			l.ApiCheckStackSpace(n)
			l.postCall(l.top - n)
			return true
		case *luaClosure:
			p := f.prototype
			l.checkStack(p.maxStackSize)
			for argCount := l.top - function - 1; argCount < p.parameterCount; argCount++ {
				l.stack[l.top] = nil // complete missing arguments
				l.top++
			}
			base := function + 1
			if p.isVarArg {
				base = l.adjustVarArgs(p, l.top-function-1)
			}
			ci := l.pushLuaFrame(function, base, resultCount, p)
			if l.hookMask&MaskCall != 0 {
				l.callHook(ci)
			}
			return false
		default:
			tm := l.metamethodOf(f, metaCall)
			if !isCallable(tm) {
				l.typeError(f, "call")
			}
			// Slide the args + function up 1 slot and poke in the tag method
			for p := l.top; p > function; p-- {
				l.stack[p] = l.stack[p-1]
			}
			l.top++
			l.checkStack(0)
			l.stack[function] = tm
		}
	}
}

func (l *state) callHook(ci *callInfo) {
	ci.savedPC++ // hooks assume 'pc' is already incremented
	if pci := ci.previous; pci.isLua() && pci.code[pci.savedPC-1].opCode() == opTailCall {
		ci.setCallStatus(callStatusTail)
		l.hook(HookTailCall, -1)
	} else {
		l.hook(HookCall, -1)
	}
	ci.savedPC-- // correct 'pc'
}

func (l *state) adjustVarArgs(p *prototype, argCount int) int {
	fixedArgCount := p.parameterCount
	l.assert(argCount >= fixedArgCount)
	// move fixed parameters to final position
	fixed := l.top - argCount // first fixed argument
	base := l.top             // final position of first argument
	fixedArgs := l.stack[fixed : fixed+fixedArgCount]
	copy(l.stack[base:base+fixedArgCount], fixedArgs)
	for i := range fixedArgs {
		fixedArgs[i] = nil
	}
	l.top = base + fixedArgCount
	return base
}

// postCall copies the callee's results down over the slot where the callee
// value sat, padding with nils when fewer results arrived than the caller
// asked for, and pops the frame. It reports whether the caller requested a
// fixed result count (false means "all results", in which case top is left
// at the last actual result).
func (l *state) postCall(firstResult int) bool {
	ci := l.callInfo
	if l.hookMask&MaskReturn != 0 {
		l.hook(HookReturn, -1)
	}
	result, wanted := ci.function, ci.resultCount
	l.callInfo = ci.previous // back to caller
	if l.hookMask&(MaskReturn|MaskLine) != 0 && l.callInfo.isLua() {
		l.oldPC = l.callInfo.savedPC // oldPC for caller function
	}
	actual := l.top - firstResult
	count := wanted
	if count == MultipleReturns {
		count = actual
	}
	copied := actual
	if copied > count {
		copied = count
	}
	copy(l.stack[result:result+copied], l.stack[firstResult:firstResult+copied])
	for i := result + copied; i < result+count; i++ {
		l.stack[i] = nil
	}
	l.top = result + count
	return wanted != MultipleReturns
}

// Call a Go or Lua function. The function to be called is at function.
// The arguments are on the stack, right after the function. On return, all the
// results are on the stack, starting at the original function position.
func (l *state) call(function, resultCount int, allowYield bool) {
	if l.nestedGoCallCount++; l.nestedGoCallCount == maxCallCount {
		l.runtimeError("Go stack overflow")
	} else if l.nestedGoCallCount >= maxCallCount+maxCallCount>>3 {
		l.throw(ErrorError) // error while handling stack error
	}
	if !allowYield {
		l.nonYieldableCallCount++
	}
	if !l.preCall(function, resultCount) { // is a Lua function?
		l.execute() // call it
	}
	if !allowYield {
		l.nonYieldableCallCount--
	}
	l.nestedGoCallCount--
}

// luaError is the panic payload the interpreter unwinds with: a coarse
// classification (one of the package-level error variables) plus the error
// value itself, usually an interned message string.
type luaError struct {
	kind  error
	value value
}

func (e *luaError) Error() string {
	if s, ok := asString(e.value); ok {
		return s
	}
	return e.kind.Error()
}

func (l *state) throw(kind error) {
	var v value
	if l.top > 0 {
		v = l.stack[l.top-1]
	}
	panic(&luaError{kind: kind, value: v})
}

// protectedCall establishes a recovery boundary around f. On an interpreter
// error it restores the frame chain and hook state saved at entry, closes
// every open upvalue above oldTop, leaves the error value as the single
// element above oldTop, and returns the error's classification.
func (l *state) protectedCall(f func(), oldTop, errorFunction int) (err error) {
	oldCallInfo := l.callInfo
	oldAllowHook, oldNonYieldable := l.allowHook, l.nonYieldableCallCount
	oldNestedGoCallCount := l.nestedGoCallCount
	oldErrorFunction := l.errorFunction
	l.errorFunction = errorFunction
	defer func() {
		if rc := recover(); rc != nil {
			e, ok := rc.(*luaError)
			if !ok {
				panic(rc)
			}
			l.close(oldTop)
			v := e.value
			switch e.kind {
			case MemoryError:
				v = l.intern(l.global.memoryErrorMessage)
			case ErrorError:
				v = l.intern("error in error handling")
			}
			l.stack[oldTop] = v
			l.top = oldTop + 1
			l.callInfo = oldCallInfo
			l.allowHook = oldAllowHook
			l.nonYieldableCallCount = oldNonYieldable
			l.nestedGoCallCount = oldNestedGoCallCount
			err = e.kind
		}
		l.errorFunction = oldErrorFunction
	}()
	f()
	return nil
}

func (l *state) ProtectedCall(argCount, resultCount, errorFunction int) error {
	l.checkElementCount(argCount + 1)
	apiCheck(l.status == Ok, "cannot do calls on non-normal thread")
	l.checkResults(argCount, resultCount)
	if errorFunction != 0 {
		apiCheck(!isPseudoIndex(errorFunction), "error handler must be a stack index")
		errorFunction = l.callInfo.function + l.AbsIndex(errorFunction)
	}
	f := l.top - (argCount + 1)
	err := l.protectedCall(func() { l.call(f, resultCount, false) }, f, errorFunction)
	l.adjustResults(resultCount)
	return err
}

func (l *state) hook(event, line int) {
	if l.hooker == nil || !l.allowHook {
		return
	}
	ci := l.callInfo
	top := l.top
	ciTop := ci.top
	ar := Debug{Event: event, CurrentLine: line, callInfo: ci}
	l.checkStack(MinStack)
	ci.top = l.top + MinStack
	l.assert(ci.top <= l.stackLast)
	l.allowHook = false // can't hook calls inside a hook
	ci.setCallStatus(callStatusHooked)
	l.hooker(l, &ar)
	l.assert(!l.allowHook)
	l.allowHook = true
	ci.top = ciTop
	l.top = top
	ci.clearCallStatus(callStatusHooked)
}

func (l *state) initializeStack() {
	l.stack = make([]value, basicStackSize)
	l.stackLast = basicStackSize - extraStack
	l.top++
	ci := &l.baseCallInfo
	ci.top = l.top + MinStack
	l.callInfo = ci
}

func (l *state) checkStack(n int) {
	if l.stackLast-l.top <= n {
		l.growStack(n)
	}
}

func (l *state) reallocStack(newSize int) {
	l.assert(newSize <= maxStack || newSize == errorStackSize)
	l.assert(l.stackLast == len(l.stack)-extraStack)
	l.stack = append(l.stack, make([]value, newSize-len(l.stack))...)
	l.stackLast = len(l.stack) - extraStack
	for ci := l.callInfo; ci != nil; ci = ci.previous {
		if ci.isLua() {
			ci.frame = l.stack[ci.base_:ci.top]
		}
	}
}

func (l *state) growStack(n int) {
	if len(l.stack) > maxStack { // error after extra size?
		l.throw(ErrorError)
	} else {
		needed := l.top + n + extraStack
		newSize := 2 * len(l.stack)
		if newSize > maxStack {
			newSize = maxStack
		}
		if newSize < needed {
			newSize = needed
		}
		if newSize > maxStack { // stack overflow?
			l.reallocStack(errorStackSize)
			l.runtimeError("stack overflow")
		} else {
			l.reallocStack(newSize)
		}
	}
}
