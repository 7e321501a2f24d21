package lua

import (
	"fmt"
	"strings"
)

func (l *state) valueTypeName(v value) string {
	switch v.(type) {
	case nil:
		return typeNames[TypeNil+1]
	case bool:
		return typeNames[TypeBoolean+1]
	case lightUserData:
		return typeNames[TypeLightUserData+1]
	case float64:
		return typeNames[TypeNumber+1]
	case *gcString:
		return typeNames[TypeString+1]
	case *table:
		return typeNames[TypeTable+1]
	case Function, *goClosure, *luaClosure:
		return typeNames[TypeFunction+1]
	case *userData:
		return typeNames[TypeUserData+1]
	case *state:
		return typeNames[TypeThread+1]
	}
	return typeNames[0]
}

// prototype returns the function prototype executing in ci, which must be a
// Lua frame.
func (l *state) prototype(ci *callInfo) *prototype {
	return l.stack[ci.function].(*luaClosure).prototype
}

func (l *state) currentLine(ci *callInfo) int {
	p := l.prototype(ci)
	if i := int(ci.savedPC) - 1; 0 <= i && i < len(p.lineInfo) {
		return int(p.lineInfo[i])
	}
	return -1
}

func (l *state) resetHookCount() { l.hookCount = l.baseHookCount }

// shortSource clips a chunk name to idSize characters the way error
// prefixes expect: '=' names are used verbatim, '@' names are file paths
// abbreviated from the front, anything else is quoted source text.
func shortSource(source string) string {
	switch {
	case source == "":
		return "?"
	case source[0] == '=':
		s := source[1:]
		if len(s) > idSize {
			s = s[:idSize]
		}
		return s
	case source[0] == '@':
		s := source[1:]
		if len(s) > idSize-3 {
			s = "..." + s[len(s)-(idSize-3):]
		}
		return s
	}
	s := source
	if i := strings.IndexAny(s, "\n\r"); i >= 0 {
		s = s[:i] + "..."
	}
	if len(s) > idSize-16 {
		s = s[:idSize-16] + "..."
	}
	return `[string "` + s + `"]`
}

// where builds the "chunk:line: " prefix for a runtime error raised at
// call-stack level.
func (l *state) where(level int) string {
	ci := l.callInfo
	for ; level > 0 && ci != &l.baseCallInfo; level, ci = level-1, ci.previous {
	}
	if ci != &l.baseCallInfo && ci.isLua() {
		p := l.prototype(ci)
		if line := l.currentLine(ci); line > 0 {
			return fmt.Sprintf("%s:%d: ", shortSource(p.source), line)
		}
	}
	return ""
}

func (l *state) runtimeError(message string) {
	l.push(l.intern(l.where(1) + message))
	l.errorMessage()
}

func (l *state) typeError(v value, operation string) {
	l.runtimeError(fmt.Sprintf("attempt to %s a %s value", operation, l.valueTypeName(v)))
}

func (l *state) orderError(left, right value) {
	t1, t2 := l.valueTypeName(left), l.valueTypeName(right)
	if t1 == t2 {
		l.runtimeError(fmt.Sprintf("attempt to compare two %s values", t1))
	}
	l.runtimeError(fmt.Sprintf("attempt to compare %s with %s", t1, t2))
}

func (l *state) arithError(v1, v2 value) {
	if _, ok := toNumber(v1); !ok {
		v2 = v1 // first operand is the culprit
	}
	l.typeError(v2, "perform arithmetic on")
}

func (l *state) concatError(v1, v2 value) {
	if _, ok := v1.(*gcString); ok {
		v1 = v2
	} else if _, ok := v1.(float64); ok {
		v1 = v2
	}
	l.typeError(v1, "concatenate")
}

func (l *state) assert(cond bool) {
	if !cond {
		l.runtimeError("assertion failure")
	}
}

// errorMessage routes the error value on top of the stack through the
// active error handler, if one was installed by a protected call, then
// unwinds.
func (l *state) errorMessage() {
	if l.errorFunction != 0 { // is there an error handling function?
		switch l.stack[l.errorFunction].(type) {
		case *luaClosure, *goClosure, Function:
		default:
			l.throw(ErrorError)
		}
		l.stack[l.top] = l.stack[l.top-1]          // move argument
		l.stack[l.top-1] = l.stack[l.errorFunction] // push function
		l.top++
		l.call(l.top-2, 1, false)
	}
	l.throw(RuntimeError)
}

func (l *state) Stack(level int, activationRecord *Debug) (ok bool) {
	if level < 0 {
		return // invalid (negative) level
	}
	callInfo := l.callInfo
	for ; level > 0 && callInfo != &l.baseCallInfo; level, callInfo = level-1, callInfo.previous {
	}
	if level == 0 && callInfo != &l.baseCallInfo { // level found?
		activationRecord.callInfo, ok = callInfo, true
	}
	return
}

func (l *state) functionInfo(d *Debug, f closure) {
	lf, ok := f.(*luaClosure)
	if !ok {
		d.Source, d.ShortSource = "=[Go]", "[Go]"
		d.LineDefined, d.LastLineDefined = -1, -1
		d.What = "Go"
		return
	}
	p := lf.prototype
	d.Source = p.source
	if d.Source == "" {
		d.Source = "=?"
	}
	d.ShortSource = shortSource(d.Source)
	d.LineDefined, d.LastLineDefined = p.lineDefined, p.lastLineDefined
	if d.LineDefined == 0 {
		d.What = "main"
	} else {
		d.What = "Lua"
	}
}

func (l *state) Info(what string, activationRecord *Debug) bool {
	var f closure
	var callInfo *callInfo
	if what[0] == '>' {
		c, ok := l.stack[l.top-1].(closure)
		apiCheck(ok, "function expected")
		f = c
		what = what[1:] // skip the '>'
		l.top--         // pop function
	} else {
		callInfo = activationRecord.callInfo
		c, ok := l.stack[callInfo.function].(closure)
		l.assert(ok)
		f = c
	}
	ok, hasL, hasF := true, false, false
	for _, r := range what {
		switch r {
		case 'S':
			l.functionInfo(activationRecord, f)
		case 'l':
			activationRecord.CurrentLine = -1
			if callInfo != nil && callInfo.isLua() {
				activationRecord.CurrentLine = l.currentLine(callInfo)
			}
		case 'u':
			if f == nil {
				activationRecord.UpValueCount = 0
			} else {
				activationRecord.UpValueCount = f.upValueCount()
			}
			if lf, ok := f.(*luaClosure); !ok {
				activationRecord.IsVarArg = true
				activationRecord.ParameterCount = 0
			} else {
				activationRecord.IsVarArg = lf.prototype.isVarArg
				activationRecord.ParameterCount = lf.prototype.parameterCount
			}
		case 't':
			activationRecord.IsTailCall = callInfo != nil && callInfo.isCallStatus(callStatusTail)
		case 'n':
			activationRecord.Name, activationRecord.NameKind = "", ""
		case 'L':
			hasL = true
		case 'f':
			hasF = true
		default:
			ok = false
		}
	}
	if hasF {
		l.apiPush(f)
	}
	if hasL {
		l.apiPush(nil) // line table not recorded
	}
	return ok
}

// SetDebugHook installs (or, with a nil hook, removes) the debug hook and
// the events it fires on.
func SetDebugHook(l State, f Hook, mask byte, count int) {
	s := l.(*state)
	if f == nil || mask == 0 {
		f, mask = nil, 0
	}
	if s.callInfo.isLua() {
		s.oldPC = s.callInfo.savedPC
	}
	s.hooker = f
	s.baseHookCount = count
	s.resetHookCount()
	s.hookMask = mask
}
