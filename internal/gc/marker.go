package gc

import "luacore/internal/value"

// markObject records a white object as reached: it is painted Black
// and appended to the gray work-list (spec.md §4.2 Propagate: "marks
// its outgoing references (turning reachable whites to gray)").
// Objects with no children of their own (strings) are not appended,
// since there is nothing to scan.
func (c *Collector) markObject(o value.GCObject) {
	if o == nil {
		return
	}
	h := value.HeaderOf(o)
	if !h.IsWhite() {
		return
	}
	// This collector does not reserve a distinct color bit for gray
	// (spec.md §3: "Gray objects ... sit in a per-collector gray
	// work-list rather than being identified by a bit"); it paints an
	// object Black the moment it is first reached and relies on the
	// gray work-list as the sole record of "reached but not yet
	// scanned". A later markObject call against the same object then
	// sees IsWhite()==false and returns immediately, so an object is
	// never enqueued twice. This is conservative rather than wrong:
	// the forward/backward barriers only need "has this been reached
	// already" to decide whether to act, not strict gray-vs-black.
	h.SetColor(value.Black)
	if _, isString := o.(*value.String); isString {
		return
	}
	if t, ok := o.(*value.Table); ok && t.IsWeak() {
		// Weak tables are not followed through for weak slots during
		// Propagate; register them for the end-of-Propagate sweep
		// instead (spec.md §4.2 "Weak tables").
		c.weakTables = append(c.weakTables, t)
		if !t.WeakKey || !t.WeakValue {
			// A table that is only weak on one axis still needs its
			// strong axis scanned, so it goes on the gray list too.
			c.gray = append(c.gray, o)
		}
		return
	}
	c.gray = append(c.gray, o)
}

// stepPropagate processes gray objects from the work-list until budget
// is exhausted or the list empties, in which case it advances to
// SweepString (spec.md §4.2: "Propagate ... Children of tables ...; of
// closures ...; of upvalues ...; of threads ...").
func (c *Collector) stepPropagate(budget int) {
	work := 0
	for work < budget {
		if len(c.gray) == 0 {
			c.finishPropagate()
			return
		}
		o := c.gray[len(c.gray)-1]
		c.gray = c.gray[:len(c.gray)-1]
		work += c.scanObject(o)
	}
}

// finishPropagate runs the weak-table clearing pass (spec.md §4.2:
// "At the end of Propagate (before Sweep), the collector walks this
// list and clears slots whose weak key and/or weak value is white")
// and then begins sweeping.
func (c *Collector) finishPropagate() {
	c.clearWeakTables()
	c.beginSweepString()
}

// scanObject marks an object's children and returns the "work units"
// charged against the step budget (roughly one unit per reference
// scanned, matching spec.md §4.2's "work units" framing without
// pretending to a precise cost model).
func (c *Collector) scanObject(o value.GCObject) int {
	switch v := o.(type) {
	case *value.Table:
		return c.scanTable(v)
	case *value.Closure:
		return c.scanClosure(v)
	case *value.CClosure:
		return c.scanCClosure(v)
	case *value.Prototype:
		return c.scanPrototype(v)
	case *value.Upvalue:
		return c.scanUpvalue(v)
	case *value.Thread:
		return c.scanThread(v)
	case *value.UserData:
		return c.scanUserData(v)
	default:
		return 1
	}
}

func (c *Collector) scanTable(t *value.Table) int {
	work := 1
	if t.Meta != nil {
		c.markObject(t.Meta)
	}
	skipKeys := t.WeakKey
	skipValues := t.WeakValue
	if !skipValues {
		for _, v := range t.Array() {
			c.markValue(v)
			work++
		}
	}
	if !skipKeys && !skipValues {
		for k, v := range t.Hash() {
			c.markValue(k)
			c.markValue(v)
			work++
		}
	} else if !skipKeys {
		for k := range t.Hash() {
			c.markValue(k)
			work++
		}
	} else if !skipValues {
		for _, v := range t.Hash() {
			c.markValue(v)
			work++
		}
	}
	return work
}

func (c *Collector) scanClosure(cl *value.Closure) int {
	c.markObject(cl.Proto)
	for _, uv := range cl.Upvalues {
		c.markObject(uv)
	}
	return 2 + len(cl.Upvalues)
}

func (c *Collector) scanCClosure(cl *value.CClosure) int {
	for _, uv := range cl.Upvalues {
		c.markObject(uv)
	}
	return 1 + len(cl.Upvalues)
}

func (c *Collector) scanPrototype(p *value.Prototype) int {
	for _, k := range p.Constants {
		c.markValue(k)
	}
	for _, child := range p.Protos {
		c.markObject(child)
	}
	return 1 + len(p.Constants) + len(p.Protos)
}

func (c *Collector) scanUpvalue(u *value.Upvalue) int {
	if u.State == value.UpvalClosed {
		c.markValue(u.Closed)
	} else {
		// An open upvalue's live value lives on its owning thread's
		// stack, which is scanned when that thread is scanned, so
		// marking the thread covers it. (Resolves spec.md §9's
		// luaC_linkupval TODO: see barrier.go's LinkUpvalue, which
		// marks the value itself when the thread was already reached.)
		c.markObject(u.Thread)
	}
	return 1
}

func (c *Collector) scanThread(th *value.Thread) int {
	work := 1
	for i := 0; i < th.Top; i++ {
		c.markValue(th.Stack[i])
		work++
	}
	for i := range th.CallInfo {
		ci := &th.CallInfo[i]
		c.markValue(ci.Func)
		if ci.Closure != nil {
			c.markObject(ci.Closure)
		}
		if ci.CClosure != nil {
			c.markObject(ci.CClosure)
		}
		work++
	}
	for uv := th.OpenUpvalues; uv != nil; uv = uv.OpenNext() {
		c.markObject(uv)
		work++
	}
	return work
}

func (c *Collector) scanUserData(u *value.UserData) int {
	if u.Meta != nil {
		c.markObject(u.Meta)
	}
	return 1
}

// markValue grays the GC reference carried by v, if any; numbers,
// booleans and nil have nothing to mark.
func (c *Collector) markValue(v value.Value) {
	if o := v.GCObject(); o != nil {
		c.markObject(o)
	}
}
