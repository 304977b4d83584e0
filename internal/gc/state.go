package gc

import "luacore/internal/value"

// GlobalState is shared by every thread (coroutine) created under one
// interpreter instance (spec.md §3 "Global state"): the allocator and
// collector live here, along with the string table, the registry, and
// the per-kind default metatables. Different GlobalState instances are
// fully independent (spec.md §5).
type GlobalState struct {
	Collector *Collector

	strings map[string]*value.String

	Registry *value.Table

	// defaultMeta holds the default metatable per value.Kind, indexed
	// by value.Kind. Only non-table/userdata kinds use this in
	// practice (e.g. a shared string metatable), but it is general per
	// spec.md §3.
	defaultMeta [8]*value.Table

	MainThread *value.Thread

	// Threads lists every thread (coroutine) created under this
	// GlobalState, main thread included (spec.md §3 "The global state
	// owns the main thread and all other threads"). The marker walks
	// this to root every thread's stack, not only the main one (spec.md
	// §5 "Shared resources" — coroutines share one allocator and GC).
	Threads []*value.Thread

	// Interned metamethod name values, computed once so lookups never
	// need to intern (and thus never need to allocate) on the hot
	// path. Mirrors the teacher's practice of caching small fixed
	// strings (e.g. runtime's staticuint64s) rather than re-deriving
	// them.
	MetaIndex    value.Value
	MetaNewIndex value.Value
	MetaGC       value.Value
	MetaCall     value.Value
	MetaAdd      value.Value
	MetaSub      value.Value
	MetaMul      value.Value
	MetaDiv      value.Value
	MetaMod      value.Value
	MetaPow      value.Value
	MetaUnm      value.Value
	MetaLen      value.Value
	MetaConcat   value.Value
	MetaEq       value.Value
	MetaLt       value.Value
	MetaLe       value.Value
}

// NewGlobalState constructs a fresh interpreter-wide state with its own
// collector, pre-interns the fixed metamethod names, and installs a
// main thread (fixed: it is never collected, per spec.md §4.2 "Fixed
// objects").
func NewGlobalState(params Params) *GlobalState {
	g := &GlobalState{
		strings: make(map[string]*value.String),
	}
	g.Collector = newCollector(g, params)

	g.MetaIndex = g.InternString("__index")
	g.MetaNewIndex = g.InternString("__newindex")
	g.MetaGC = g.InternString("__gc")
	g.MetaCall = g.InternString("__call")
	g.MetaAdd = g.InternString("__add")
	g.MetaSub = g.InternString("__sub")
	g.MetaMul = g.InternString("__mul")
	g.MetaDiv = g.InternString("__div")
	g.MetaMod = g.InternString("__mod")
	g.MetaPow = g.InternString("__pow")
	g.MetaUnm = g.InternString("__unm")
	g.MetaLen = g.InternString("__len")
	g.MetaConcat = g.InternString("__concat")
	g.MetaEq = g.InternString("__eq")
	g.MetaLt = g.InternString("__lt")
	g.MetaLe = g.InternString("__le")
	for _, v := range []value.Value{g.MetaIndex, g.MetaNewIndex, g.MetaGC, g.MetaCall,
		g.MetaAdd, g.MetaSub, g.MetaMul, g.MetaDiv, g.MetaMod, g.MetaPow,
		g.MetaUnm, g.MetaLen, g.MetaConcat, g.MetaEq, g.MetaLt, g.MetaLe} {
		v.AsString().MarkFixed(false)
	}

	g.Registry = g.Collector.NewTable()
	g.Registry.MarkFixed(true)

	g.MainThread = g.Collector.NewThread()
	g.MainThread.MarkFixed(true)
	g.MainThread.Status = value.StatusRunning
	g.Threads = append(g.Threads, g.MainThread)

	return g
}

// RegisterThread adds a newly created coroutine to Threads so the
// collector roots its stack. Fixed objects (the main thread) are
// registered directly in NewGlobalState instead.
func (g *GlobalState) RegisterThread(th *value.Thread) {
	g.Threads = append(g.Threads, th)
}

// InternString looks up or creates the interned String for s, going
// through the collector's allocator so new strings are threaded into
// the heap and charged against the byte budget (spec.md §4.1 "every
// allocation site first asks the GC whether a step is due").
func (g *GlobalState) InternString(s string) value.Value {
	if existing, ok := g.strings[s]; ok {
		return value.StringValue(existing)
	}
	str := g.Collector.allocateString(s)
	g.strings[s] = str
	return value.StringValue(str)
}

// lookupString returns the interned string object for s without
// allocating, or nil if s has never been interned. Used by the
// collector's sweep to drain dead buckets.
func (g *GlobalState) lookupString(s string) *value.String {
	return g.strings[s]
}

func (g *GlobalState) deleteString(s string) {
	delete(g.strings, s)
}

// DefaultMetatable returns the shared metatable installed for values of
// kind k (e.g. all strings sharing one metatable so `("x"):upper()`
// style method calls resolve), or nil if none was set.
func (g *GlobalState) DefaultMetatable(k value.Kind) *value.Table {
	return g.defaultMeta[k]
}

// SetDefaultMetatable installs the shared metatable for kind k.
func (g *GlobalState) SetDefaultMetatable(k value.Kind, t *value.Table) {
	g.defaultMeta[k] = t
}

// Metatable resolves v's effective metatable: its own (table/userdata)
// or the shared per-kind default.
func (g *GlobalState) Metatable(v value.Value) *value.Table {
	if m := value.Metatable(v); m != nil {
		return m
	}
	return g.DefaultMetatable(v.Kind())
}
