package lua

// metaEvent identifies one metamethod slot. The per-table flags byte caches
// "known absent" bits for the first eight events, so hot paths like table
// indexing skip the hash lookup once a miss has been seen.
type metaEvent int

const (
	metaIndex metaEvent = iota
	metaNewIndex
	metaGC
	metaMode
	metaLen
	metaEq
	metaAdd
	metaSub
	metaMul
	metaDiv
	metaMod
	metaPow
	metaUnaryMinus
	metaLT
	metaLE
	metaConcat
	metaCall
	metaEventCount
)

var metaEventNames = [metaEventCount]string{
	"__index", "__newindex", "__gc", "__mode", "__len", "__eq",
	"__add", "__sub", "__mul", "__div", "__mod", "__pow", "__unm",
	"__lt", "__le", "__concat", "__call",
}

// arithEvent maps an Arith operator constant to its metamethod event.
func arithEvent(op int) metaEvent { return metaAdd + metaEvent(op-OpAdd) }

// metamethod looks name up in the table and records a miss in the flags
// cache.
func (t *table) metamethod(ev metaEvent, name *gcString) value {
	m := t.atString(name)
	if m == nil {
		t.flags |= 1 << uint(ev)
	}
	return m
}

// cachedMetamethod consults mt's flags cache before looking the event up.
// A nil metatable or a cached miss answers immediately.
func (l *state) cachedMetamethod(mt *table, ev metaEvent) value {
	if mt == nil || mt.flags&(1<<uint(ev)) != 0 {
		return nil
	}
	return mt.metamethod(ev, l.global.metamethodNames[ev])
}

// metamethodOf resolves the event for an arbitrary value, falling back to
// the per-type metatables for values that cannot carry their own.
func (l *state) metamethodOf(v value, ev metaEvent) value {
	var mt *table
	switch v := v.(type) {
	case *table:
		mt = v.metaTable
	case *userData:
		mt = v.metaTable
	default:
		mt = l.global.metaTable(v)
	}
	if mt == nil {
		return nil
	}
	return mt.atString(l.global.metamethodNames[ev])
}

// callMetamethod invokes m with two arguments and returns its single
// result.
func (l *state) callMetamethod(m, a, b value) value {
	l.push(m)
	l.push(a)
	l.push(b)
	l.call(l.top-3, 1, l.callInfo.isLua())
	return l.pop()
}

// callMetamethodV invokes m with three arguments, discarding results; the
// __newindex shape.
func (l *state) callMetamethodV(m, a, b, c value) {
	l.push(m)
	l.push(a)
	l.push(b)
	l.push(c)
	l.call(l.top-4, 0, l.callInfo.isLua())
}

// binaryMetamethod tries the event on either operand, left first.
func (l *state) binaryMetamethod(a, b value, ev metaEvent) (value, bool) {
	m := l.metamethodOf(a, ev)
	if m == nil {
		m = l.metamethodOf(b, ev)
	}
	if m == nil {
		return nil, false
	}
	return l.callMetamethod(m, a, b), true
}

// orderMetamethod is binaryMetamethod for comparison events, coercing the
// result to a truth value.
func (l *state) orderMetamethod(a, b value, ev metaEvent) (bool, bool) {
	r, ok := l.binaryMetamethod(a, b, ev)
	return !isFalse(r), ok
}

// equalityMetamethod finds a usable __eq for two values of the same kind:
// both metatables must agree on the handler.
func (l *state) equalityMetamethod(mt1, mt2 *table) value {
	m1 := l.cachedMetamethod(mt1, metaEq)
	if m1 == nil {
		return nil
	}
	if mt1 == mt2 {
		return m1
	}
	m2 := l.cachedMetamethod(mt2, metaEq)
	if m2 == nil || m1 != m2 {
		return nil
	}
	return m1
}

func isCallable(v value) bool {
	switch v.(type) {
	case *luaClosure, *goClosure, Function:
		return true
	}
	return false
}
