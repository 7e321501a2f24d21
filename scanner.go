package lua

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const firstReserved = 257

const (
	tkAnd = iota + firstReserved
	tkBreak
	tkDo
	tkElse
	tkElseif
	tkEnd
	tkFalse
	tkFor
	tkFunction
	tkGoto
	tkIf
	tkIn
	tkLocal
	tkNil
	tkNot
	tkOr
	tkRepeat
	tkReturn
	tkThen
	tkTrue
	tkUntil
	tkWhile
	tkConcat
	tkDots
	tkEq
	tkGE
	tkLE
	tkNE
	tkDoubleColon
	tkEOS
	tkNumber
	tkName
	tkString
	reservedCount = tkWhile - firstReserved + 1
)

var tokens = []string{
	"and", "break", "do", "else", "elseif",
	"end", "false", "for", "function", "goto", "if",
	"in", "local", "nil", "not", "or", "repeat",
	"return", "then", "true", "until", "while",
	"..", "...", "==", ">=", "<=", "~=", "::", "<eof>",
	"<number>", "<name>", "<string>",
}

var reservedTokens = func() map[string]int {
	m := make(map[string]int, reservedCount)
	for i := 0; i < reservedCount; i++ {
		m[tokens[i]] = firstReserved + i
	}
	return m
}()

const endOfStream rune = -1

type token struct {
	t int
	n float64
	s string
}

type scanner struct {
	l                    *state
	r                    io.ByteReader
	source               string
	buffer               bytes.Buffer
	current              rune
	started              bool
	lineNumber, lastLine int
	token
	lookAheadToken token
}

func (l *scanner) advance() {
	if c, err := l.r.ReadByte(); err != nil {
		l.current = endOfStream
	} else {
		l.current = rune(c)
	}
}

func (l *scanner) saveAndAdvance() {
	l.buffer.WriteByte(byte(l.current))
	l.advance()
}

func isNewLine(c rune) bool { return c == '\n' || c == '\r' }

func isDigit(c rune) bool { return '0' <= c && c <= '9' }

func isHexDigit(c rune) bool {
	return isDigit(c) || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func isNameStart(c rune) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isNameContinuation(c rune) bool { return isNameStart(c) || isDigit(c) }

// incrementLineNumber consumes a newline sequence, folding "\r\n" and
// "\n\r" pairs into a single line.
func (l *scanner) incrementLineNumber() {
	old := l.current
	l.advance()
	if isNewLine(l.current) && l.current != old {
		l.advance()
	}
	l.lineNumber++
	if l.lineNumber >= maxInt {
		l.scanError("chunk has too many lines", 0)
	}
}

func chunkID(source string) string { return shortSource(source) }

func (l *scanner) tokenDescription(t int) string {
	switch {
	case t == tkName || t == tkString:
		return l.buffer.String()
	case t == tkNumber:
		return l.buffer.String()
	case t < firstReserved:
		return string(rune(t))
	}
	return tokens[t-firstReserved]
}

func (l *scanner) describeCurrent() string {
	switch l.t {
	case tkName, tkString:
		return l.s
	case tkNumber:
		return numberToString(l.n)
	case tkEOS:
		return "<eof>"
	case 0:
		return ""
	}
	if l.t < firstReserved {
		return string(rune(l.t))
	}
	return tokens[l.t-firstReserved]
}

func (l *scanner) scanError(message string, t int) {
	s := fmt.Sprintf("%s:%d: %s", chunkID(l.source), l.lineNumber, message)
	if t != 0 {
		s += fmt.Sprintf(" near %s", l.tokenDescription(t))
	}
	l.l.push(l.l.stringValue(s))
	l.l.throw(SyntaxError)
}

func (l *scanner) syntaxError(message string) {
	s := fmt.Sprintf("%s:%d: %s", chunkID(l.source), l.lineNumber, message)
	if near := l.describeCurrent(); near != "" {
		s += fmt.Sprintf(" near %s", near)
	}
	l.l.push(l.l.stringValue(s))
	l.l.throw(SyntaxError)
}

// checkedNumber converts the scanned numeral text, accepting the hexadecimal
// forms (with or without a binary exponent) that strconv alone does not.
func (l *scanner) checkedNumber(s string) float64 {
	if n, ok := parseNumber(s); ok {
		return n
	}
	l.scanError("malformed number", 0)
	return 0
}

func parseNumber(s string) (float64, bool) {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return parseHexNumber(s[2:])
	}
	n, err := strconv.ParseFloat(s, 64)
	return n, err == nil
}

func parseHexNumber(s string) (float64, bool) {
	var mantissa float64
	i, seenDigit := 0, false
	for ; i < len(s) && isHexDigit(rune(s[i])); i++ {
		mantissa = mantissa*16.0 + float64(hexValue(s[i]))
		seenDigit = true
	}
	if i < len(s) && s[i] == '.' {
		i++
		for scale := 1.0 / 16.0; i < len(s) && isHexDigit(rune(s[i])); i++ {
			mantissa += float64(hexValue(s[i])) * scale
			scale /= 16.0
			seenDigit = true
		}
	}
	if !seenDigit {
		return 0, false
	}
	if i == len(s) {
		return mantissa, true
	}
	if s[i] != 'p' && s[i] != 'P' {
		return 0, false
	}
	exponent, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return 0, false
	}
	for ; exponent > 0; exponent-- {
		mantissa *= 2.0
	}
	for ; exponent < 0; exponent++ {
		mantissa /= 2.0
	}
	return mantissa, true
}

func hexValue(c byte) int {
	switch {
	case '0' <= c && c <= '9':
		return int(c - '0')
	case 'a' <= c && c <= 'f':
		return int(c-'a') + 10
	}
	return int(c-'A') + 10
}

func (l *scanner) readNumber() token {
	exponentRunes := "eE"
	if l.current == '0' {
		l.saveAndAdvance()
		if l.current == 'x' || l.current == 'X' {
			exponentRunes = "pP"
			l.saveAndAdvance()
		}
	}
	for {
		if strings.ContainsRune(exponentRunes, l.current) {
			l.saveAndAdvance()
			if l.current == '+' || l.current == '-' {
				l.saveAndAdvance()
			}
			continue
		}
		if isHexDigit(l.current) && exponentRunes == "pP" {
			l.saveAndAdvance()
		} else if isDigit(l.current) || l.current == '.' {
			l.saveAndAdvance()
		} else {
			break
		}
	}
	return token{t: tkNumber, n: l.checkedNumber(l.buffer.String())}
}

// skipSeparator counts the '=' run of a long-bracket opener or closer,
// returning its level, or -1 when the bracket is not long.
func (l *scanner) skipSeparator() int {
	c := l.current
	count := 0
	for l.saveAndAdvance(); l.current == '='; count++ {
		l.saveAndAdvance()
	}
	if l.current == c {
		return count
	}
	return -count - 1
}

func (l *scanner) readLongString(isString bool, level int) token {
	l.saveAndAdvance() // skip 2nd bracket char
	if isNewLine(l.current) {
		l.incrementLineNumber()
	}
	l.buffer.Reset()
	for {
		switch l.current {
		case endOfStream:
			if isString {
				l.scanError("unfinished long string", tkEOS)
			}
			l.scanError("unfinished long comment", tkEOS)
		case ']':
			if l.skipSeparatorInLong(level) {
				l.advance() // skip closing bracket
				if !isString {
					return token{}
				}
				return token{t: tkString, s: l.buffer.String()}
			}
		case '\n', '\r':
			if isString {
				l.buffer.WriteByte('\n')
			}
			l.lineNumber++
			l.advance()
		default:
			if isString {
				l.buffer.WriteByte(byte(l.current))
			}
			l.advance()
		}
	}
}

// skipSeparatorInLong recognizes a closing long bracket of the given level,
// saving consumed characters in case the candidate turns out not to close
// the string.
func (l *scanner) skipSeparatorInLong(level int) bool {
	mark := l.buffer.Len()
	count := 0
	for l.saveAndAdvance(); l.current == '='; count++ {
		l.saveAndAdvance()
	}
	if count == level && l.current == ']' {
		l.buffer.Truncate(mark)
		return true
	}
	return false
}

func (l *scanner) readHexEscape() byte {
	r := 0
	for i := 0; i < 2; i++ {
		l.advance()
		if !isHexDigit(l.current) {
			l.scanError("hexadecimal digit expected", 0)
		}
		r = r*16 + hexValue(byte(l.current))
	}
	return byte(r)
}

func (l *scanner) readDecimalEscape() byte {
	r := 0
	for i := 0; i < 3 && isDigit(l.current); i++ {
		r = r*10 + int(l.current-'0')
		l.advance()
	}
	if r > 255 {
		l.scanError("decimal escape too large", 0)
	}
	return byte(r)
}

func (l *scanner) readString() token {
	delimiter := l.current
	l.buffer.Reset()
	for l.advance(); l.current != delimiter; {
		switch l.current {
		case endOfStream:
			l.scanError("unfinished string", tkEOS)
		case '\n', '\r':
			l.scanError("unfinished string", 0)
		case '\\':
			l.advance()
			switch c := l.current; c {
			case 'a':
				l.buffer.WriteByte('\a')
				l.advance()
			case 'b':
				l.buffer.WriteByte('\b')
				l.advance()
			case 'f':
				l.buffer.WriteByte('\f')
				l.advance()
			case 'n':
				l.buffer.WriteByte('\n')
				l.advance()
			case 'r':
				l.buffer.WriteByte('\r')
				l.advance()
			case 't':
				l.buffer.WriteByte('\t')
				l.advance()
			case 'v':
				l.buffer.WriteByte('\v')
				l.advance()
			case 'x':
				l.buffer.WriteByte(l.readHexEscape())
				l.advance()
			case '\n', '\r':
				l.incrementLineNumber()
				l.buffer.WriteByte('\n')
			case '\\', '"', '\'':
				l.buffer.WriteByte(byte(c))
				l.advance()
			case endOfStream: // will be caught by the loop
			case 'z': // zap following span of spaces
				for l.advance(); l.current == ' ' || l.current == '\t' || isNewLine(l.current); {
					if isNewLine(l.current) {
						l.incrementLineNumber()
					} else {
						l.advance()
					}
				}
			default:
				if !isDigit(c) {
					l.scanError("invalid escape sequence", 0)
				}
				l.buffer.WriteByte(l.readDecimalEscape())
			}
		default:
			l.buffer.WriteByte(byte(l.current))
			l.advance()
		}
	}
	l.advance() // skip closing delimiter
	return token{t: tkString, s: l.buffer.String()}
}

func (l *scanner) scan() token {
	if !l.started {
		l.started = true
		if l.lineNumber == 0 {
			l.lineNumber, l.lastLine = 1, 1
		}
		l.advance()
	}
	l.buffer.Reset()
	for {
		switch c := l.current; c {
		case endOfStream:
			return token{t: tkEOS}
		case '\n', '\r':
			l.incrementLineNumber()
		case ' ', '\t', '\f', '\v':
			l.advance()
		case '-': // '-' or comment
			l.advance()
			if l.current != '-' {
				return token{t: '-'}
			}
			l.advance()
			if l.current == '[' { // long comment?
				if level := l.skipSeparator(); level >= 0 {
					l.readLongString(false, level)
					l.buffer.Reset()
					continue
				}
				l.buffer.Reset()
			}
			for !isNewLine(l.current) && l.current != endOfStream {
				l.advance()
			}
		case '[':
			if level := l.skipSeparator(); level >= 0 {
				return l.readLongString(true, level)
			} else if level == -1 {
				return token{t: '['}
			}
			l.scanError("invalid long string delimiter", 0)
		case '=':
			if l.advance(); l.current != '=' {
				return token{t: '='}
			}
			l.advance()
			return token{t: tkEq}
		case '<':
			if l.advance(); l.current != '=' {
				return token{t: '<'}
			}
			l.advance()
			return token{t: tkLE}
		case '>':
			if l.advance(); l.current != '=' {
				return token{t: '>'}
			}
			l.advance()
			return token{t: tkGE}
		case '~':
			if l.advance(); l.current != '=' {
				return token{t: '~'}
			}
			l.advance()
			return token{t: tkNE}
		case ':':
			if l.advance(); l.current != ':' {
				return token{t: ':'}
			}
			l.advance()
			return token{t: tkDoubleColon}
		case '"', '\'':
			return l.readString()
		case '.':
			l.saveAndAdvance()
			if l.current == '.' {
				l.saveAndAdvance()
				if l.current == '.' {
					l.advance()
					return token{t: tkDots}
				}
				return token{t: tkConcat}
			}
			if !isDigit(l.current) {
				return token{t: '.'}
			}
			return l.readNumber()
		default:
			if isDigit(c) {
				return l.readNumber()
			}
			if isNameStart(c) {
				for l.saveAndAdvance(); isNameContinuation(l.current); {
					l.saveAndAdvance()
				}
				name := l.buffer.String()
				if t, isReserved := reservedTokens[name]; isReserved {
					return token{t: t}
				}
				return token{t: tkName, s: name}
			}
			l.advance()
			return token{t: int(c)}
		}
	}
}

func (l *scanner) next() {
	l.lastLine = l.lineNumber
	if l.lookAheadToken.t != tkEOS {
		l.token = l.lookAheadToken
		l.lookAheadToken.t = tkEOS
	} else {
		l.token = l.scan()
	}
}

func (l *scanner) lookAhead() int {
	l.l.assert(l.lookAheadToken.t == tkEOS)
	l.lookAheadToken = l.scan()
	return l.lookAheadToken.t
}

func (l *scanner) testNext(t int) bool {
	if l.t == t {
		l.next()
		return true
	}
	return false
}

func (l *scanner) errorExpected(t int) {
	l.syntaxError(fmt.Sprintf("'%s' expected", l.tokenDescriptionFor(t)))
}

func (l *scanner) tokenDescriptionFor(t int) string {
	if t < firstReserved {
		return string(rune(t))
	}
	return tokens[t-firstReserved]
}

func (l *scanner) check(t int) {
	if l.t != t {
		l.errorExpected(t)
	}
}

func (l *scanner) checkMatch(what, who, where int) {
	if !l.testNext(what) {
		if where == l.lineNumber {
			l.errorExpected(what)
		} else {
			l.syntaxError(fmt.Sprintf("'%s' expected (to close '%s' at line %d)",
				l.tokenDescriptionFor(what), l.tokenDescriptionFor(who), where))
		}
	}
}
