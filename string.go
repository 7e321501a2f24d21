package lua

import (
	"fmt"
	"strings"
)

// relativePosition converts a 1-based, possibly negative string index into a
// clamped absolute position.
func relativePosition(pos, length int) int {
	if pos >= 0 {
		return pos
	} else if -pos > length {
		return 0
	}
	return length + pos + 1
}

func strByte(l State) int {
	s := CheckString(l, 1)
	i := relativePosition(OptInteger(l, 2, 1), len(s))
	j := relativePosition(OptInteger(l, 3, i), len(s))
	if i < 1 {
		i = 1
	}
	if j > len(s) {
		j = len(s)
	}
	if i > j {
		return 0
	}
	n := j - i + 1
	CheckStackWithMessage(l, n, "string slice too long")
	for k := 0; k < n; k++ {
		l.PushInteger(int(s[i+k-1]))
	}
	return n
}

func strChar(l State) int {
	n := l.Top()
	b := make([]byte, n)
	for i := 1; i <= n; i++ {
		c := CheckInteger(l, i)
		ArgumentCheck(l, int(byte(c)) == c, i, "value out of range")
		b[i-1] = byte(c)
	}
	l.PushString(string(b))
	return 1
}

func strSub(l State) int {
	s := CheckString(l, 1)
	i := relativePosition(CheckInteger(l, 2), len(s))
	j := relativePosition(OptInteger(l, 3, -1), len(s))
	if i < 1 {
		i = 1
	}
	if j > len(s) {
		j = len(s)
	}
	if i > j {
		l.PushString("")
	} else {
		l.PushString(s[i-1 : j])
	}
	return 1
}

// strFormat handles the directives the interpreter's own libraries lean on:
// %d, %i, %u, %f, %g, %e, %s, %q, %x, %X, %c and %%.
func strFormat(l State) int {
	format := CheckString(l, 1)
	var b strings.Builder
	arg := 1
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			b.WriteByte(format[i])
			continue
		}
		i++
		if i >= len(format) {
			Errorf(l, "invalid format string to 'format'")
		}
		arg++
		switch format[i] {
		case '%':
			b.WriteByte('%')
			arg--
		case 'd', 'i':
			b.WriteString(fmt.Sprintf("%d", int(CheckNumber(l, arg))))
		case 'u':
			b.WriteString(fmt.Sprintf("%d", uint(CheckNumber(l, arg))))
		case 'c':
			b.WriteByte(byte(CheckInteger(l, arg)))
		case 'f', 'g', 'e':
			b.WriteString(fmt.Sprintf("%"+string(format[i]), CheckNumber(l, arg)))
		case 'x', 'X':
			b.WriteString(fmt.Sprintf("%"+string(format[i]), int(CheckNumber(l, arg))))
		case 's':
			s, _ := ToStringMeta(l, arg)
			l.Pop(1)
			b.WriteString(s)
		case 'q':
			b.WriteString(fmt.Sprintf("%q", CheckString(l, arg)))
		default:
			Errorf(l, "invalid option '%%%c' to 'format'", rune(format[i]))
		}
	}
	l.PushString(b.String())
	return 1
}

var stringLibrary = []RegistryFunction{
	{"byte", strByte},
	{"char", strChar},
	{"format", strFormat},
	{"len", func(l State) int { l.PushInteger(len(CheckString(l, 1))); return 1 }},
	{"lower", func(l State) int { l.PushString(strings.ToLower(CheckString(l, 1))); return 1 }},
	{"rep", func(l State) int {
		s, n, sep := CheckString(l, 1), CheckInteger(l, 2), OptString(l, 3, "")
		if n <= 0 {
			l.PushString("")
		} else if len(s)+len(sep) < len(s) || len(s)+len(sep) >= maxInt/n {
			Errorf(l, "resulting string too large")
		} else {
			result := s
			for ; n > 1; n-- {
				result += sep + s
			}
			l.PushString(result)
		}
		return 1
	}},
	{"reverse", func(l State) int {
		r := []rune(CheckString(l, 1))
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
		l.PushString(string(r))
		return 1
	}},
	{"sub", strSub},
	{"upper", func(l State) int { l.PushString(strings.ToUpper(CheckString(l, 1))); return 1 }},
}

func StringOpen(l State) int {
	NewLibrary(l, stringLibrary)
	l.CreateTable(0, 1)
	l.PushString("")
	l.PushValue(-2)
	l.SetMetaTable(-2)
	l.Pop(1)
	l.PushValue(-2)
	l.SetField(-2, "__index")
	l.Pop(1)
	return 1
}
