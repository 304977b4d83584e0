package gc

import "luacore/internal/value"

// beginSweepString snapshots the intern table's keys and switches to
// SweepString (spec.md §4.2: "String sweep is separated ... so string
// table buckets can be drained before general objects, because freed
// strings must leave the intern table").
func (c *Collector) beginSweepString() {
	c.stringSweepKeys = c.stringSweepKeys[:0]
	for k := range c.global.strings {
		c.stringSweepKeys = append(c.stringSweepKeys, k)
	}
	c.stringSweepPos = 0
	c.phase = SweepString
}

// stepSweepString drains up to `budget` intern-table buckets, removing
// the intern-table entry for any string still wearing the other white;
// the String object itself is unlinked later by Sweep.
func (c *Collector) stepSweepString(budget int) {
	work := 0
	for work < budget {
		if c.stringSweepPos >= len(c.stringSweepKeys) {
			c.beginSweep()
			return
		}
		key := c.stringSweepKeys[c.stringSweepPos]
		c.stringSweepPos++
		work++
		s, ok := c.global.strings[key]
		if !ok {
			continue
		}
		h := &s.Header
		if h.Fixed() {
			continue
		}
		if h.Color() == c.otherWhite() {
			c.global.deleteString(key)
		}
	}
}

// beginSweep resets the sweep cursor to the head of the global
// allocation list and switches to Sweep.
func (c *Collector) beginSweep() {
	c.sweepPrev = nil
	c.sweepCur = c.allObjects
	c.phase = Sweep
}

// stepSweep advances the cursor along the global object list (spec.md
// §4.2 Sweep). An object wearing the other white is unreachable: if it
// is userdata with a pending finalizer it is pulled into the finalize
// queue instead of being freed outright (spec.md §4.2 Finalize); every
// other otherwise-dead object is unlinked and its bytes released.
// Survivors are repainted to the current white and kept.
func (c *Collector) stepSweep(budget int) {
	work := 0
	for work < budget {
		if c.sweepCur == nil {
			c.beginFinalize()
			return
		}
		h := value.HeaderOf(c.sweepCur)
		next := h.Next()
		work++

		if h.Fixed() {
			h.SetColor(c.currentWhite)
			c.sweepPrev = c.sweepCur
			c.sweepCur = next
			continue
		}

		if h.Color() != c.otherWhite() {
			// Survivor: repaint for the next cycle and move on.
			h.SetColor(c.currentWhite)
			c.sweepPrev = c.sweepCur
			c.sweepCur = next
			continue
		}

		// Dead. Userdata with a pending finalizer is resurrected into
		// the finalize queue rather than freed now.
		if ud, ok := c.sweepCur.(*value.UserData); ok && ud.HasFinalizer(c.global.MetaGC) && h.FinalizerState() == value.FinNone {
			h.SetFinalizerState(value.FinPending)
			h.SetColor(c.currentWhite) // resurrected: reachable again until finalized
			c.finalizeQueue = append(c.finalizeQueue, ud)
			c.sweepPrev = c.sweepCur
			c.sweepCur = next
			continue
		}

		c.unlink(c.sweepPrev, c.sweepCur, next)
		c.totalBytes -= int64(h.Size())
		c.objectsFreed++
		c.sweepCur = next
		// c.sweepPrev unchanged: we removed sweepCur, prev's next now
		// skips it (done by unlink).
	}
}

func (c *Collector) unlink(prev, cur, next value.GCObject) {
	if prev == nil {
		c.allObjects = next
		return
	}
	value.HeaderOf(prev).SetNext(next)
}

// beginFinalize switches to the Finalize state (empty queue just means
// a fast pass-through back to Pause).
func (c *Collector) beginFinalize() {
	c.phase = Finalize
}

// stepFinalize runs up to `budget` queued finalizers (spec.md §4.2
// Finalize: "its finalizer runs in a controlled environment ... runs
// at most once") and, once the queue drains, ends the cycle.
func (c *Collector) stepFinalize(budget int) {
	work := 0
	for work < budget {
		if len(c.finalizeQueue) == 0 {
			c.endCycle()
			return
		}
		ud := c.finalizeQueue[0]
		c.finalizeQueue = c.finalizeQueue[1:]
		work++
		h := &ud.Header
		if h.FinalizerState() != value.FinPending {
			continue
		}
		h.SetFinalizerState(value.FinRunning)
		if c.FinalizerRunner != nil {
			c.FinalizerRunner(ud)
		}
		h.SetFinalizerState(value.FinDone)
	}
}

// endCycle computes the next cycle's trigger threshold from the pause
// percentage (spec.md §4.2 Pacing: "next cycle's threshold is set to
// total_bytes * pause / 100") and returns to Pause.
func (c *Collector) endCycle() {
	c.heapMarked = c.totalBytes
	if c.params.Pause > 0 {
		c.nextGC = c.totalBytes * int64(c.params.Pause) / 100
		if c.nextGC < c.totalBytes {
			c.nextGC = c.totalBytes + 1
		}
	} else {
		c.nextGC = c.totalBytes + 1
	}
	c.cycles++
	c.phase = Pause
}
