package lua

import (
	"fmt"
	"sort"
)

var tableLibrary = []RegistryFunction{
	{"concat", func(l State) int {
		CheckType(l, 1, TypeTable)
		sep := OptString(l, 2, "")
		i := OptInteger(l, 3, 1)
		var last int
		if l.IsNoneOrNil(4) {
			last = LengthEx(l, 1)
		} else {
			last = CheckInteger(l, 4)
		}
		s := ""
		addField := func() {
			l.RawGetInt(1, i)
			if str, ok := l.ToString(-1); ok {
				s += str
				l.Pop(1)
			} else {
				Errorf(l, fmt.Sprintf("invalid value (%s) at index %d in table for 'concat'", TypeNameOf(l, -1), i))
			}
		}
		for ; i < last; i++ {
			addField()
			s += sep
		}
		if i == last {
			addField()
		}
		l.PushString(s)
		return 1
	}},
	{"insert", func(l State) int {
		CheckType(l, 1, TypeTable)
		e := LengthEx(l, 1) + 1 // First empty element.
		switch l.Top() {
		case 2:
			l.RawSetInt(1, e) // Insert new element at the end.
		case 3:
			pos := CheckInteger(l, 2)
			ArgumentCheck(l, 1 <= pos && pos <= e, 2, "position out of bounds")
			for i := e; i > pos; i-- {
				l.RawGetInt(1, i-1)
				l.RawSetInt(1, i) // t[i] = t[i-1]
			}
			l.RawSetInt(1, pos) // t[pos] = v
		default:
			Errorf(l, "wrong number of arguments to 'insert'")
		}
		return 0
	}},
	{"pack", func(l State) int {
		n := l.Top()
		l.CreateTable(n, 1)
		l.PushInteger(n)
		l.SetField(-2, "n")
		if n > 0 {
			l.PushValue(1)
			l.RawSetInt(-2, 1)
			l.Replace(1)
			for i := n; i >= 2; i-- {
				l.RawSetInt(1, i)
			}
		}
		return 1
	}},
	{"unpack", tableUnpack},
	{"remove", func(l State) int {
		CheckType(l, 1, TypeTable)
		size := LengthEx(l, 1)
		pos := OptInteger(l, 2, size)
		if pos != size {
			ArgumentCheck(l, 1 <= pos && pos <= size+1, 2, "position out of bounds")
		}
		for l.RawGetInt(1, pos); pos < size; pos++ {
			l.RawGetInt(1, pos+1)
			l.RawSetInt(1, pos) // t[pos] = t[pos+1]
		}
		l.PushNil()
		l.RawSetInt(1, pos) // t[pos] = nil
		return 1
	}},
	{"sort", tableSort},
}

type tableSorter struct {
	n          int
	less       func(i, j int) bool
	swapValues func(i, j int)
}

func (s *tableSorter) Len() int           { return s.n }
func (s *tableSorter) Less(i, j int) bool { return s.less(i, j) }
func (s *tableSorter) Swap(i, j int)      { s.swapValues(i, j) }

func tableSort(l State) int {
	CheckType(l, 1, TypeTable)
	n := LengthEx(l, 1)
	hasComparator := !l.IsNoneOrNil(2)
	if hasComparator {
		CheckType(l, 2, TypeFunction)
	}
	s := tableSorter{
		n: n,
		less: func(i, j int) bool {
			l.RawGetInt(1, i+1)
			l.RawGetInt(1, j+1)
			if !hasComparator {
				r := l.Compare(-2, -1, OpLT)
				l.Pop(2)
				return r
			}
			l.PushValue(2)
			l.Insert(-3)
			l.Call(2, 1)
			r := l.ToBoolean(-1)
			l.Pop(1)
			return r
		},
		swapValues: func(i, j int) {
			l.RawGetInt(1, i+1)
			l.RawGetInt(1, j+1)
			l.RawSetInt(1, i+1)
			l.RawSetInt(1, j+1)
		},
	}
	sort.Sort(&s)
	return 0
}

// tableUnpack backs both table.unpack and the 5.1 global unpack.
func tableUnpack(l State) int {
	CheckType(l, 1, TypeTable)
	i := OptInteger(l, 2, 1)
	var e int
	if l.IsNoneOrNil(3) {
		e = LengthEx(l, 1)
	} else {
		e = CheckInteger(l, 3)
	}
	if i > e {
		return 0
	}
	n := e - i + 1
	if n <= 0 || !l.CheckStack(n) {
		Errorf(l, "too many results to unpack")
		panic("unreachable")
	}
	for l.RawGetInt(1, i); i < e; i++ {
		l.RawGetInt(1, i+1)
	}
	return n
}

func TableOpen(l State) int {
	NewLibrary(l, tableLibrary)
	return 1
}
