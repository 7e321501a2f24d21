package lua

import "github.com/zeebo/xxh3"

// gcString is the heap representation of a Lua string value: an immutable
// byte sequence with a precomputed hash, owned by the collector and
// interned by the state that created it. Two gcStrings with equal bytes
// never coexist in one state - intern guarantees that by probing the
// state's hash-keyed pool before allocating.
type gcString struct {
	gcHeader
	s    string
	hash uint64
}

func (s *gcString) String() string { return s.s }
func (s *gcString) Len() int       { return len(s.s) }

// stringPool buckets interned strings by their xxh3 content hash. A bucket
// holds more than one entry only when distinct contents collide on the
// hash, in which case each keeps its own object.
type stringPool map[uint64][]*gcString

func (p stringPool) find(hash uint64, s string) *gcString {
	for _, gs := range p[hash] {
		if gs.s == s {
			return gs
		}
	}
	return nil
}

// intern returns the unique gcString for s within this state, allocating and
// registering a new one only the first time these bytes are seen. Every
// internal construction of a string value - constant-pool loading, GETTABLE
// results, string-library returns, concatenation - routes through here so
// that rawEqual and identity comparisons can trust pointer equality.
func (l *state) intern(s string) *gcString {
	hash := xxh3.HashString(s)
	pool := l.global.strings
	if gs := pool.find(hash, s); gs != nil {
		return gs
	}
	gs := &gcString{s: s, hash: hash}
	pool[hash] = append(pool[hash], gs)
	l.global.collector.register(gs)
	if l.global.collector.shouldCollect() {
		l.collectGarbage(l.context())
	}
	return gs
}

// interned reports whether these bytes are currently in the pool, without
// allocating.
func (l *state) interned(s string) (*gcString, bool) {
	gs := l.global.strings.find(xxh3.HashString(s), s)
	return gs, gs != nil
}

// stringValue interns s and returns it as a value ready to be pushed onto
// the stack or stored in a table.
func (l *state) stringValue(s string) value { return l.intern(s) }

func asString(v value) (string, bool) {
	if gs, ok := v.(*gcString); ok {
		return gs.s, true
	}
	return "", false
}

// toString returns the string at the given stack index, coercing and
// writing back an in-place interned replacement if it holds a number -
// matching real Lua's implicit number-to-string coercion during
// concatenation. Any other type fails.
func (l *state) toString(index int) (string, bool) {
	switch v := l.stack[index].(type) {
	case *gcString:
		return v.s, true
	case float64:
		s := numberToString(v)
		l.stack[index] = l.stringValue(s)
		return s, true
	}
	return "", false
}
