package lua

import (
	"math"
)

// arrayThreshold bounds the dense array part of a table. Integer keys in
// [1, arrayThreshold] live in the array; everything else - including
// integer keys beyond the threshold - lives in the hash part. Real Lua
// grows its array part geometrically without bound; this core fixes the
// threshold so the array/hash split stays a simple, auditable rule instead
// of a rehashing heuristic.
const arrayThreshold = 50

type table struct {
	gcHeader
	array []value
	hash  map[value]value
	// keys records hash-part insertion order so iteration is stable; a key
	// whose entry was assigned nil stays in the ledger as a tombstone until
	// compaction, so next() keeps working for an iterator that just cleared
	// it. keySlot maps each ledger key to its position.
	keys      []value
	keySlot   map[value]int
	metaTable *table
	flags     byte
}

func newTable() *table                     { return &table{hash: make(map[value]value)} }
func (t *table) invalidateMetaCache() { t.flags = 0 }

// newTable and newTableWithSize allocate and register a table with this
// state's collector in one step. Every table reachable from Lua code goes
// through one of these two so the collector's registry stays complete.
func (l *state) newTable() *table {
	t := newTable()
	l.global.collector.register(t)
	return t
}

func (l *state) newTableWithSize(arraySize, hashSize int) *table {
	t := newTableWithSize(arraySize, hashSize)
	l.global.collector.register(t)
	return t
}

func (t *table) atString(s *gcString) value { return t.hash[s] }

func newTableWithSize(arraySize, hashSize int) *table {
	t := new(table)
	if arraySize > 0 {
		if arraySize > arrayThreshold {
			arraySize = arrayThreshold
		}
		t.array = make([]value, arraySize)
	}
	if hashSize > 0 {
		t.hash = make(map[value]value, hashSize)
	} else {
		t.hash = make(map[value]value)
	}
	return t
}

func (t *table) extendArray(last int) {
	if last > arrayThreshold {
		last = arrayThreshold
	}
	if last <= len(t.array) {
		return
	}
	t.array = append(t.array, make([]value, last-len(t.array))...)
}

func (t *table) atInt(k int) value {
	if 0 < k && k <= len(t.array) {
		return t.array[k-1]
	}
	if 0 < k && k <= arrayThreshold {
		return nil
	}
	return t.hash[float64(k)]
}

func (t *table) putAtInt(k int, v value) {
	if 0 < k && k <= arrayThreshold {
		if k > len(t.array) {
			if v == nil {
				return
			}
			t.extendArray(k)
		}
		t.array[k-1] = v
		return
	}
	t.hashPut(float64(k), v)
}

func (t *table) hashPut(k, v value) {
	if v == nil {
		delete(t.hash, k) // ledger keeps a tombstone for in-flight iterators
		return
	}
	if _, ok := t.keySlot[k]; !ok {
		if t.keySlot == nil {
			t.keySlot = make(map[value]int)
		}
		if len(t.keys) >= 16 && len(t.hash) < len(t.keys)/2 {
			t.compactKeys()
		}
		t.keySlot[k] = len(t.keys)
		t.keys = append(t.keys, k)
	}
	t.hash[k] = v
}

// compactKeys drops tombstones from the ledger. Only called while inserting
// a new key, which is already undefined behavior during iteration.
func (t *table) compactKeys() {
	live := t.keys[:0]
	for _, k := range t.keys {
		if _, ok := t.hash[k]; ok {
			t.keySlot[k] = len(live)
			live = append(live, k)
		} else {
			delete(t.keySlot, k)
		}
	}
	for i := len(live); i < len(t.keys); i++ {
		t.keys[i] = nil
	}
	t.keys = live
}

func (t *table) at(k value) value {
	switch k := k.(type) {
	case nil:
		return nil
	case float64:
		if i := int(k); float64(i) == k {
			return t.atInt(i)
		}
	case *gcString:
		return t.atString(k)
	}
	return t.hash[k]
}

func (t *table) put(l *state, k, v value) {
	switch k := k.(type) {
	case nil:
		l.runtimeError("table index is nil")
	case float64:
		if i := int(k); float64(i) == k {
			t.putAtInt(i, v)
		} else if math.IsNaN(k) {
			l.runtimeError("table index is NaN")
		} else {
			t.hashPut(k, v)
		}
	default:
		t.hashPut(k, v)
	}
}

// tryPut updates an existing entry in place without consulting a
// metatable, returning false when the key was previously absent so the
// caller can fall back to checking __newindex.
func (t *table) tryPut(l *state, k, v value) bool {
	if f, ok := k.(float64); ok {
		if i := int(f); float64(i) == f && 0 < i && i <= len(t.array) {
			if t.array[i-1] == nil {
				return false
			}
			t.array[i-1] = v
			return true
		}
	}
	if _, ok := t.hash[k]; !ok {
		return false
	}
	t.hashPut(k, v)
	return true
}

// length returns a border of t: the largest n with array[n] != nil, found
// by scanning back from the end of the array part. It never looks into the
// hash part - callers with integer keys beyond arrayThreshold cannot rely
// on # to see them, matching the design's "border, not cardinality" note.
func (t *table) length() int {
	n := len(t.array)
	for n > 0 && t.array[n-1] == nil {
		n--
	}
	return n
}

func arrayIndex(k value) int {
	if n, ok := k.(float64); ok {
		if i := int(n); float64(i) == n {
			return i
		}
	}
	return -1
}

// next implements the iteration primitive backing pairs: array part first
// (in index order), then the hash part in insertion order via t.keys. This
// sidesteps Go's deliberately randomized map iteration order, which would
// otherwise violate the requirement that one traversal of a table visits
// every live entry exactly once.
func (l *state) next(t *table, key int) bool {
	k := l.stack[key]
	if k == nil {
		return t.firstEntry(l, key)
	}
	if i := arrayIndex(k); 0 < i && i <= len(t.array) {
		return t.entryAfterArrayIndex(l, key, i)
	}
	if _, ok := t.keySlot[k]; !ok {
		l.runtimeError("invalid key to 'next'")
	}
	return t.entryAfterHashKey(l, key, k)
}

func (t *table) firstEntry(l *state, key int) bool {
	for i, v := range t.array {
		if v != nil {
			l.stack[key] = float64(i + 1)
			l.stack[key+1] = v
			return true
		}
	}
	if len(t.keys) > 0 {
		return t.entryAtKeyIndex(l, key, 0)
	}
	return false
}

func (t *table) entryAfterArrayIndex(l *state, key, i int) bool {
	for j := i; j < len(t.array); j++ {
		if t.array[j] != nil {
			l.stack[key] = float64(j + 1)
			l.stack[key+1] = t.array[j]
			return true
		}
	}
	if len(t.keys) > 0 {
		return t.entryAtKeyIndex(l, key, 0)
	}
	return false
}

func (t *table) entryAfterHashKey(l *state, key int, k value) bool {
	return t.entryAtKeyIndex(l, key, t.keySlot[k]+1)
}

func (t *table) entryAtKeyIndex(l *state, key, i int) bool {
	for ; i < len(t.keys); i++ {
		k := t.keys[i]
		if v, ok := t.hash[k]; ok {
			l.stack[key] = k
			l.stack[key+1] = v
			return true
		}
	}
	return false
}
