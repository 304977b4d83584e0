package gc

import "luacore/internal/value"

// clearWeakTables runs the end-of-Propagate pass over every table
// registered during this cycle's marking (spec.md §4.2 "Weak tables":
// "the collector walks this list and clears slots whose weak key
// and/or weak value is white"). By the time this runs, Propagate has
// exhausted the gray list, so any entry still white here is truly
// unreachable except through the weak reference itself.
func (c *Collector) clearWeakTables() {
	for _, t := range c.weakTables {
		c.clearWeakTable(t)
	}
}

func (c *Collector) clearWeakTable(t *value.Table) {
	weakKey := t.WeakKey
	weakValue := t.WeakValue

	if weakValue {
		arr := t.Array()
		for i, v := range arr {
			if c.valueIsClearable(v) {
				arr[i] = value.Nil
			}
		}
	}

	hash := t.Hash()
	if hash == nil {
		return
	}
	for k, v := range hash {
		clear := false
		if weakKey && c.valueIsClearable(k) {
			clear = true
		}
		if weakValue && c.valueIsClearable(v) {
			clear = true
		}
		if clear {
			delete(hash, k)
		}
	}
}

// valueIsClearable reports whether v carries a GC reference that is
// still white at the end of Propagate, i.e. unreached except through
// weak references.
func (c *Collector) valueIsClearable(v value.Value) bool {
	o := v.GCObject()
	if o == nil {
		return false
	}
	return value.HeaderOf(o).IsWhite()
}
