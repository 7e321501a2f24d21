package lua

import (
	"context"

	"zombiezen.com/go/log"
)

// gcObject is implemented by every heap entity the collector owns: strings,
// tables, closures, userdata, upvalues and threads. Function prototypes are
// traced as part of the closure that owns them rather than registered
// independently, since they are embedded by value in their parent's
// prototype slice and have no stable address until the enclosing closure
// exists.
type gcObject interface {
	gcMarked() bool
	gcSetMarked(bool)
	gcTrace(gc *collector)
	gcFree()
}

// gcHeader is embedded in every heap type to carry the collector's mark bit.
// White (false) means unreached by the current trace; black (true) means
// reached. The collector never distinguishes grey from black explicitly -
// an object is pushed to black the moment gcTrace visits it, and gcTrace
// recurses immediately, which is safe because the object graphs produced by
// this VM are shallow enough not to threaten the Go stack.
type gcHeader struct {
	marked bool
}

func (h *gcHeader) gcMarked() bool     { return h.marked }
func (h *gcHeader) gcSetMarked(m bool) { h.marked = m }

// collector is a stop-the-world mark-sweep garbage collector over a flat
// registry of live objects. It does not itself know the roots: the owning
// thread's collectGarbage marks them through markRoots before sweeping.
type collector struct {
	objects       []gcObject
	threshold     int
	collecting    bool
	paused        int
	totalAllocs   int64
	lastCollected int
	lastLive      int
}

const gcThresholdFloor = 1024

func newCollector() *collector {
	return &collector{threshold: gcThresholdFloor}
}

// register adds a freshly allocated object to the registry. It does not
// trigger collection; callers check shouldCollect separately so a
// collection can run with a consistent view of the roots (the allocation
// that just happened is itself reachable from a register/stack slot by the
// time the caller can observe it).
func (gc *collector) register(o gcObject) {
	gc.objects = append(gc.objects, o)
	gc.totalAllocs++
}

func (gc *collector) shouldCollect() bool {
	return gc.paused == 0 && !gc.collecting && len(gc.objects) > gc.threshold
}

// pause and resume bracket phases - compilation, bytecode loading - during
// which freshly built objects are not yet reachable from any root and a
// collection would reclaim them out from under the builder.
func (gc *collector) pause()  { gc.paused++ }
func (gc *collector) resume() { gc.paused-- }

// mark sets o black and, the first time it is reached, asks it to trace its
// own children. Re-entering mark on an already-black object is a no-op,
// which is what makes cyclic graphs (a table that refers to itself, two
// closures that close over each other's frame) terminate.
func (gc *collector) mark(o gcObject) {
	if o == nil || o.gcMarked() {
		return
	}
	o.gcSetMarked(true)
	o.gcTrace(gc)
}

// markValue marks v if it denotes a heap object; scalars (nil, bool,
// float64, light userdata) are ignored since they carry no outgoing edges
// and are not collector-owned.
func (gc *collector) markValue(v value) {
	switch v := v.(type) {
	case *gcString:
		gc.mark(v)
	case *table:
		gc.mark(v)
	case *luaClosure:
		gc.mark(v)
	case *goClosure:
		gc.mark(v)
	case *userData:
		gc.mark(v)
	case *state:
		gc.mark(v)
	}
}

func (gc *collector) markPrototype(p *prototype) {
	if p == nil {
		return
	}
	for _, k := range p.constants {
		gc.markValue(k)
	}
	for i := range p.prototypes {
		gc.markPrototype(&p.prototypes[i])
	}
}

// sweep unlinks and frees every object that mark did not reach, then resets
// the survivors to white for the next cycle. It reports how many objects
// were collected so the caller can size the next threshold.
func (gc *collector) sweep() (collected, live int) {
	survivors := gc.objects[:0]
	for _, o := range gc.objects {
		if o.gcMarked() {
			o.gcSetMarked(false)
			survivors = append(survivors, o)
		} else {
			o.gcFree()
			collected++
		}
	}
	gc.objects = survivors
	live = len(gc.objects)
	return
}

// setThreshold applies the sweep-efficiency policy from the collector
// design: a highly productive sweep (most objects were garbage) earns a
// low growth factor since the live set is small and cheap to re-scan soon;
// a sweep that collected almost nothing backs off to a high factor so the
// collector doesn't thrash tracing a mostly-live heap over and over.
func (gc *collector) setThreshold(collected, live int) {
	gc.lastCollected, gc.lastLive = collected, live
	total := collected + live
	factor := 3.0
	if total > 0 {
		efficiency := float64(collected) / float64(total)
		factor = 3.0 - 1.5*efficiency // in [1.5, 3.0]
	}
	threshold := int(float64(live) * factor)
	if threshold < gcThresholdFloor {
		threshold = gcThresholdFloor
	}
	gc.threshold = threshold
}

// collectGarbage runs one stop-the-world cycle rooted at l. It is not
// re-entrant: a collection triggered while one is already running (for
// instance from a host function invoked while tracing, which cannot
// actually happen in this single-threaded design but is guarded against
// defensively) is skipped.
func (l *state) collectGarbage(ctx context.Context) {
	gc := l.global.collector
	if gc.collecting {
		return
	}
	gc.collecting = true
	defer func() { gc.collecting = false }()

	l.markRoots(gc)
	// Dead strings must leave the interning pool in the same cycle they are
	// swept, or a later intern of the same bytes would hand back an object
	// the collector no longer tracks.
	pool := l.global.strings
	for hash, bucket := range pool {
		live := bucket[:0]
		for _, gs := range bucket {
			if gs.gcMarked() {
				live = append(live, gs)
			}
		}
		if len(live) == 0 {
			delete(pool, hash)
		} else {
			pool[hash] = live
		}
	}
	collected, live := gc.sweep()
	gc.setThreshold(collected, live)
	log.Debugf(ctx, "gc: collected %d objects, %d live, next threshold %d", collected, live, gc.threshold)
}

// markRoots traces every root this implementation recognizes: the globals
// table, the registry, the main thread, and - for every thread reachable
// from the main thread's bookkeeping - that thread's live stack slots, open
// upvalues and call-info chain. This VM only ever has one live thread (the
// main thread; coroutines run to completion rather than suspending), so in
// practice this walks a single state value, but the structure mirrors the
// general multi-thread case described by the design.
func (l *state) markRoots(gc *collector) {
	g := l.global
	gc.markValue(g.registry)
	gc.markValue(g.mainThread)
}

func (l *state) gcTrace(gc *collector) {
	gc.markValue(l.global.registry)
	for i := 0; i < l.top; i++ {
		gc.markValue(l.stack[i])
	}
	for e := l.upValues; e != nil; e = e.next {
		gc.mark(e.upValue)
	}
	for ci := l.callInfo; ci != nil; ci = ci.previous {
		for _, v := range ci.frame {
			gc.markValue(v)
		}
	}
}

func (l *state) gcFree() {
	// The thread's backing arrays become unreachable Go memory on their own;
	// there is nothing collector-specific to release beyond dropping the
	// reference, which sweep already did by removing l from the registry.
}

func (t *table) gcTrace(gc *collector) {
	if t.metaTable != nil {
		gc.mark(t.metaTable)
	}
	for _, v := range t.array {
		gc.markValue(v)
	}
	for _, k := range t.keys {
		gc.markValue(k)
		gc.markValue(t.hash[k])
	}
}

func (t *table) gcFree() {
	t.array = nil
	t.hash = nil
	t.keys = nil
	t.keySlot = nil
}

func (c *luaClosure) gcTrace(gc *collector) {
	gc.markPrototype(c.prototype)
	for _, uv := range c.upValues {
		if uv != nil {
			gc.mark(uv)
		}
	}
}

func (c *luaClosure) gcFree() {
	c.upValues = nil
}

func (c *goClosure) gcTrace(gc *collector) {
	if c.env != nil {
		gc.mark(c.env)
	}
	for _, v := range c.upValues {
		gc.markValue(v)
	}
}

func (c *goClosure) gcFree() {
	c.upValues = nil
}

func (d *userData) gcTrace(gc *collector) {
	if d.metaTable != nil {
		gc.mark(d.metaTable)
	}
	if d.env != nil {
		gc.mark(d.env)
	}
}

func (d *userData) gcFree() {
	d.data = nil
}

func (uv *upValue) gcTrace(gc *collector) {
	// Open upvalues point into a stack slot the owning thread's scan
	// already covers; only a closed upvalue owns its value.
	if _, open := uv.home.(stackLocation); !open {
		gc.markValue(uv.home)
	}
}

func (uv *upValue) gcFree() {
	uv.home = nil
}

func (s *gcString) gcTrace(gc *collector) {}
func (s *gcString) gcFree()               {}
