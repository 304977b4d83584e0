package gc

import "luacore/internal/value"

// WriteBarrierForward implements the forward (Dijkstra-style) barrier:
// when a mutation is about to store a reference to white child inside
// an already-black parent, the child is grayed immediately so
// Propagate still discovers it even though the parent itself will
// never be rescanned (spec.md §4.2 "Write barriers"). Outside an
// active mark phase this is a no-op: before a cycle starts every
// object is uniformly white-to-be and reachability is settled by the
// next startCycle's root mark; after Propagate ends, blackness no
// longer matters until the next cycle repaints everything.
func (c *Collector) WriteBarrierForward(parent, child value.GCObject) {
	if c.phase != Propagate {
		return
	}
	if parent == nil || child == nil {
		return
	}
	if !value.HeaderOf(parent).IsBlack() {
		return
	}
	c.markObject(child)
}

// WriteBarrierBackward implements the backward barrier: instead of
// graying every new child (expensive for a table mutated in a tight
// loop), the already-black parent itself is pushed back onto the gray
// work-list so Propagate rescans all of its current children next
// step. This is the cheaper option for objects with many, frequently
// replaced references — tables, in this collector, matching the
// upstream Lua convention of using the backward barrier for
// luaH_set-style table writes.
func (c *Collector) WriteBarrierBackward(parent value.GCObject) {
	if c.phase != Propagate {
		return
	}
	if parent == nil {
		return
	}
	h := value.HeaderOf(parent)
	if !h.IsBlack() {
		return
	}
	// Re-enqueue directly: markObject would refuse since the object is
	// not white, but the whole point of the backward barrier is to
	// rescan a black object's children without touching its color.
	c.gray = append(c.gray, parent)
}

// LinkUpvalue applies the barrier needed when an upvalue is attached to
// a thread's open-upvalue list (or re-pointed at a new thread slot)
// while a cycle may already have scanned that thread black. Without
// this, an upvalue created or relinked after its owning thread was
// scanned could be missed entirely, since scanThread (see marker.go)
// only walks the chain once per Propagate visit to the thread. The
// stack value the upvalue refers to is marked here as well, because a
// thread already reached is not rescanned.
func (c *Collector) LinkUpvalue(th *value.Thread, u *value.Upvalue) {
	c.WriteBarrierForward(th, u)
	if c.phase == Propagate && value.HeaderOf(th).IsBlack() && u.Index < len(th.Stack) {
		c.markValue(th.Stack[u.Index])
	}
}
