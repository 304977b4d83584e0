package value

// Table is the sole structured data type: an array part for dense
// 1-based integer keys and a hash part for everything else, per
// spec.md §3. Weakness is recorded on the embedded Header's
// WeakKey/WeakValue bits.
type Table struct {
	Header
	array []Value
	hash  map[Value]Value
	// hashOrder records hash-part keys in first-insertion order, so
	// Next's hash-part walk has a stable sequence to index into instead
	// of a fresh, independently-randomized `range t.hash` on every call
	// (Go re-randomizes a map's range start each time it's ranged over,
	// so two successive Next calls could otherwise observe different
	// orderings of the same key set and either skip or re-visit
	// entries).
	hashOrder []Value
	Meta      *Table
}

func (t *Table) header() *Header { return &t.Header }

// NewTable allocates an empty table. Callers normally go through the
// collector's allocator (Collector.NewTable in internal/gc) rather than constructing a Table
// directly, so the object is threaded into the heap and colored
// consistently.
func NewTable() *Table {
	return &Table{}
}

// arrayIndex reports whether k is a positive integer value usable as an
// array-part index, and the index (0-based into t.array) if so.
func arrayIndex(k Value) (int, bool) {
	if k.Kind() != KindNumber {
		return 0, false
	}
	n := k.AsNumber()
	i := int(n)
	if float64(i) != n || i < 1 {
		return 0, false
	}
	return i - 1, true
}

// Get performs a raw (metamethod-free) lookup.
func (t *Table) Get(k Value) Value {
	if i, ok := arrayIndex(k); ok && i < len(t.array) {
		return t.array[i]
	}
	if t.hash == nil {
		return Nil
	}
	if v, ok := t.hash[normalizeKey(k)]; ok {
		return v
	}
	return Nil
}

// normalizeKey collapses float keys with integral value (e.g. 1.0) onto
// the same hash-map slot as the integer key 1, matching Lua 5.1 table
// semantics where t[1] and t[1.0] name the same slot.
func normalizeKey(k Value) Value {
	if k.Kind() == KindNumber {
		n := k.AsNumber()
		if i := int64(n); float64(i) == n {
			return Number(float64(i))
		}
	}
	return k
}

// Set performs a raw store. Storing nil removes the key. The caller
// (VM or allocator-level accessor) is responsible for invoking the
// write barrier when v carries a GC reference — Table.Set itself never
// touches the collector, matching spec.md §4.2's rule that "every store
// that could install a GC reference ... must consult the barrier" at
// the mutation site, not buried inside the data structure.
func (t *Table) Set(k Value, v Value) {
	if i, ok := arrayIndex(k); ok {
		if i < len(t.array) {
			t.array[i] = v
			return
		}
		if i == len(t.array) && !v.IsNil() {
			t.array = append(t.array, v)
			t.migrateFromHash()
			return
		}
	}
	k = normalizeKey(k)
	if v.IsNil() {
		if _, existed := t.hash[k]; existed {
			delete(t.hash, k)
			t.removeFromOrder(k)
		}
		return
	}
	if t.hash == nil {
		t.hash = make(map[Value]Value)
	}
	if _, existed := t.hash[k]; !existed {
		t.hashOrder = append(t.hashOrder, k)
	}
	t.hash[k] = v
}

// removeFromOrder drops k from hashOrder after a delete. Table deletes
// are rare relative to reads/iteration, so a linear scan here keeps
// Next's hot path (a plain index into hashOrder) simple.
func (t *Table) removeFromOrder(k Value) {
	for i, ok := range t.hashOrder {
		if ok == k {
			t.hashOrder = append(t.hashOrder[:i], t.hashOrder[i+1:]...)
			return
		}
	}
}

// migrateFromHash pulls any hash-part entries that have become
// contiguous with the array part (e.g. after appending index N, check
// for N+1, N+2, ... already present in the hash map) into the array.
func (t *Table) migrateFromHash() {
	if t.hash == nil {
		return
	}
	for {
		next := Number(float64(len(t.array) + 1))
		v, ok := t.hash[next]
		if !ok {
			return
		}
		t.array = append(t.array, v)
		delete(t.hash, next)
		t.removeFromOrder(next)
	}
}

// Len returns a border of the table per spec.md §3 ("# t"): an index n
// such that t[n] is non-nil and t[n+1] is nil (or 0 if t[1] is nil).
// With an array part this is simply its trailing non-nil run.
func (t *Table) Len() int {
	n := len(t.array)
	for n > 0 && t.array[n-1].IsNil() {
		n--
	}
	if n == len(t.array) {
		// The array part might continue into the hash part if it was
		// populated out of append order; walk forward until a hole.
		for {
			v, ok := t.hash[Number(float64(n+1))]
			if !ok || v.IsNil() {
				break
			}
			n++
		}
	}
	return n
}

// Next implements stateless iteration (the `next` builtin's raw
// semantics, and the primitive `pairs` uses): given a key, returns the
// following key/value pair, or ok=false when iteration is exhausted.
// A nil key starts iteration from the beginning.
func (t *Table) Next(k Value) (nk, nv Value, ok bool) {
	start := 0
	if !k.IsNil() {
		if i, isArr := arrayIndex(k); isArr {
			start = i + 1
		} else {
			return t.nextHash(normalizeKey(k), true)
		}
	}
	for i := start; i < len(t.array); i++ {
		if !t.array[i].IsNil() {
			return Number(float64(i + 1)), t.array[i], true
		}
	}
	return t.nextHash(Nil, false)
}

// nextHash walks the hash part in hashOrder — first-insertion order,
// stable across repeated calls unlike a fresh `range t.hash` snapshot
// per call (see hashOrder's doc comment) — which is what makes `next`
// a true stateless iterator: calling it repeatedly with each
// previously-returned key visits every live entry exactly once,
// regardless of how many separate Next calls that takes.
func (t *Table) nextHash(after Value, seekAfter bool) (Value, Value, bool) {
	if t.hash == nil {
		return Nil, Nil, false
	}
	idx := 0
	if seekAfter {
		found := false
		for i, k := range t.hashOrder {
			if k == after {
				idx = i + 1
				found = true
				break
			}
		}
		if !found {
			return Nil, Nil, false
		}
	}
	if idx >= len(t.hashOrder) {
		return Nil, Nil, false
	}
	return t.hashOrder[idx], t.hash[t.hashOrder[idx]], true
}

// Array exposes the array part for the collector's child-marking walk
// (spec.md §4.2 Propagate: "Children of tables: array part, hash part
// keys and values").
func (t *Table) Array() []Value { return t.array }

// Hash exposes the hash part for the same reason.
func (t *Table) Hash() map[Value]Value { return t.hash }

// IsWeak reports whether the table has any weakness bit set.
func (t *Table) IsWeak() bool { return t.WeakKey || t.WeakValue }
