package gc

import "luacore/internal/value"

// Phase is one of the collector's five states (spec.md §4.2).
type Phase uint8

const (
	Pause Phase = iota
	Propagate
	SweepString
	Sweep
	Finalize
)

func (p Phase) String() string {
	switch p {
	case Pause:
		return "pause"
	case Propagate:
		return "propagate"
	case SweepString:
		return "sweep-string"
	case Sweep:
		return "sweep"
	case Finalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// Stats are the counters spec's Design Notes / original_source's
// benchmark harness would read: total bytes currently live, cycles
// completed, and objects freed this process lifetime.
type Stats struct {
	TotalBytes     int64
	CyclesComplete int64
	ObjectsFreed   int64
}

// Tracer is the opt-in instrumentation hook replacing the teacher's
// direct `print()` of gctrace lines (runtime/mgc.go's debug.gctrace):
// a collector may be constructed without one and runs silently.
type Tracer interface {
	TraceGC(phase Phase, stats Stats)
}

// Collector implements the tri-color incremental mark-and-sweep
// machine of spec.md §4.2: a five-state machine, alternating current
// white, a gray work-list, a sweep cursor over the global allocation
// list, string-table draining, weak-table clearing, and a finalizer
// queue, all driven by one allocation-proportional pacing schedule.
type Collector struct {
	global *GlobalState
	params Params

	phase        Phase
	currentWhite value.Color

	// allObjects is the head of the global allocation list every
	// heap object is threaded into at creation (spec.md §4.1).
	allObjects value.GCObject

	gray []value.GCObject

	// weakTables collects tables with a weakness bit, registered
	// during Propagate and cleared once at the end of that phase
	// (spec.md §4.2 "Weak tables").
	weakTables []*value.Table

	// sweepCursor is the collector's position in allObjects during
	// SweepString/Sweep; prev tracks the predecessor so the list can
	// be unlinked in place.
	sweepPrev value.GCObject
	sweepCur  value.GCObject

	// stringSweepKeys snapshots the intern table's keys once, at the
	// start of SweepString, so draining can proceed incrementally
	// without iterating a live Go map across steps.
	stringSweepKeys []string
	stringSweepPos  int

	finalizeQueue []*value.UserData

	totalBytes int64
	nextGC     int64
	heapMarked int64

	objectsFreed int64
	cycles       int64

	Tracer Tracer

	// FinalizerRunner invokes a userdata's __gc metamethod. It is a hook
	// rather than a hard dependency on internal/vm (which would create
	// an import cycle: vm depends on gc, not the reverse). Left nil, a
	// finalizer-bearing userdata is still pulled off the dead list and
	// marked done without running anything.
	FinalizerRunner func(ud *value.UserData)
}

func newCollector(g *GlobalState, params Params) *Collector {
	c := &Collector{
		global:       g,
		params:       params,
		phase:        Pause,
		currentWhite: value.White0,
		nextGC:       int64(heapMinimum(params)),
	}
	return c
}

func heapMinimum(p Params) int64 {
	const base = 64 * 1024
	if p.Pause <= 0 {
		return 0
	}
	return base * int64(p.Pause) / 100
}

// otherWhite is the color that identifies survivors of the previous
// cycle as unreachable once a new cycle's current white has been set
// (spec.md §4.2).
func (c *Collector) otherWhite() value.Color {
	if c.currentWhite == value.White0 {
		return value.White1
	}
	return value.White0
}

// Phase reports the collector's current state.
func (c *Collector) Phase() Phase { return c.phase }

// Stats reports the instrumentation counters.
func (c *Collector) Stats() Stats {
	return Stats{
		TotalBytes:     c.totalBytes,
		CyclesComplete: c.cycles,
		ObjectsFreed:   c.objectsFreed,
	}
}

// IsWhite reports whether o is colored with either white, i.e. has not
// yet been reached this cycle.
func (c *Collector) IsWhite(o value.GCObject) bool {
	if o == nil {
		return false
	}
	return value.HeaderOf(o).IsWhite()
}

// IsBlack reports whether o has been fully scanned this cycle.
func (c *Collector) IsBlack(o value.GCObject) bool {
	if o == nil {
		return false
	}
	return value.HeaderOf(o).IsBlack()
}

// IsDead reports whether o is wearing the color that marks it
// unreachable from the just-completed (or in-progress) cycle — i.e.
// the "other white". The sweeper and weak-table clearing test colors
// directly and do not call it.
func (c *Collector) IsDead(o value.GCObject) bool {
	if o == nil {
		return false
	}
	return value.HeaderOf(o).Color() == c.otherWhite()
}

// register threads a freshly allocated object into the global
// allocation list, coloring it the current white and charging its size
// (spec.md §4.1 typed constructors). super-fixed objects created before
// any cycle has run (e.g. the main thread) are still linked so sweep
// logic stays uniform; their Fixed bit keeps the sweeper from freeing
// them.
func (c *Collector) registerObject(o value.GCObject, size uintptr) {
	h := value.HeaderOf(o)
	h.SetColor(c.currentWhite)
	h.SetNext(c.allObjects)
	c.allObjects = o
	c.totalBytes += int64(size)
	c.maybeStep()
}

// maybeStep asks whether an incremental step is due and, if so,
// performs one, per spec.md §4.1 ("Every allocation site first asks
// the GC whether a step is due; if so, one incremental step is
// performed before handing the new object back").
func (c *Collector) maybeStep() {
	if c.params.Pause < 0 {
		return // GC disabled, matching the teacher's GOGC=off convention
	}
	if c.phase == Pause && c.totalBytes < c.nextGC {
		return
	}
	c.Step()
}

// Step advances the state machine by one work quantum
// (stepmul*stepsize "work units", spec.md §4.2 Pacing), or transitions
// to the next state if the current state's work is exhausted.
func (c *Collector) Step() {
	budget := c.params.StepMul * c.params.StepSize
	if budget <= 0 {
		budget = DefaultParams().StepMul * DefaultParams().StepSize
	}
	switch c.phase {
	case Pause:
		c.startCycle()
	case Propagate:
		c.stepPropagate(budget)
	case SweepString:
		c.stepSweepString(budget)
	case Sweep:
		c.stepSweep(budget)
	case Finalize:
		c.stepFinalize(budget)
	}
	if c.Tracer != nil {
		c.Tracer.TraceGC(c.phase, c.Stats())
	}
}

// FullGC runs the collector to completion synchronously (stop-the-
// world), per spec.md §4.2's failure-mode escalation and §6's `GC()`-
// style API. If a cycle is mid-flight it is finished first, then a
// fresh cycle is run so callers get a guaranteed-complete sweep.
func (c *Collector) FullGC() {
	for c.phase != Pause {
		c.runPhaseToCompletion()
	}
	c.startCycle()
	for c.phase != Pause {
		c.runPhaseToCompletion()
	}
}

func (c *Collector) runPhaseToCompletion() {
	const hugeBudget = 1 << 30
	switch c.phase {
	case Propagate:
		c.stepPropagate(hugeBudget)
	case SweepString:
		c.stepSweepString(hugeBudget)
	case Sweep:
		c.stepSweep(hugeBudget)
	case Finalize:
		c.stepFinalize(hugeBudget)
	case Pause:
		c.startCycle()
	}
}

// startCycle begins a new cycle: flips the current white so every
// survivor of the prior cycle becomes "other white" (and therefore
// collectible), marks the roots gray, and transitions to Propagate.
func (c *Collector) startCycle() {
	c.currentWhite = c.otherWhite()
	c.gray = c.gray[:0]
	c.weakTables = c.weakTables[:0]
	c.markRoots()
	c.phase = Propagate
}

// markRoots grays every GC reference reachable directly from
// GlobalState: the registry, every thread the global state owns (the
// main thread and every live coroutine, each in turn owning its
// stack, open upvalues and call-info — spec.md §3 "The global state
// owns the main thread and all other threads"), and the per-kind
// default metatables. This is the collector's root set.
func (c *Collector) markRoots() {
	if c.global == nil {
		return
	}
	c.markObject(c.global.Registry)
	for _, th := range c.global.Threads {
		c.markObject(th)
	}
	for _, m := range c.global.defaultMeta {
		if m != nil {
			c.markObject(m)
		}
	}
}
