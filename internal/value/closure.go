package value

// UpvalDesc describes, within a Prototype, where one upvalue of a
// nested closure is sourced from: a register of the enclosing function
// (IsLocal true) or an upvalue of the enclosing function (IsLocal
// false), per spec.md §3 "Function (closure) and Prototype".
type UpvalDesc struct {
	Name    string
	IsLocal bool
	Index   int
}

// Instruction is one fixed 32-bit bytecode word; internal/code defines
// its bit layout and the opcode set. Kept as a plain uint32 here so the
// value package has no dependency on internal/code.
type Instruction uint32

// Prototype is the immutable artifact the compiler produces for one
// function body (spec.md §3, §4.3). It is itself a GC object: it is
// allocated through the collector so its constants (which may be
// strings) are reachable and its child prototypes are freed only when
// nothing references them.
type Prototype struct {
	Header

	Name       string
	LineDefined int
	NumParams  int
	NumLocals  int
	IsVararg   bool
	MaxStack   int

	Code      []Instruction
	Lines     []int // source line per instruction, for error reporting
	Constants []Value
	Protos    []*Prototype
	Upvalues  []UpvalDesc
}

func (p *Prototype) header() *Header { return &p.Header }

// Closure pairs a Lua-function prototype with the upvalue references
// captured at closure-creation time, per spec.md §3. Closure
// completeness (len(Upvalues) == len(Prototype.Upvalues)) is an
// invariant the compiler and CLOSURE handler jointly maintain.
type Closure struct {
	Header

	Proto    *Prototype
	Upvalues []*Upvalue
}

func (c *Closure) header() *Header { return &c.Header }

// NativeFunc is a Go-implemented function callable from Lua. It
// receives the calling thread (for argument/stack access) and returns
// results plus an error understood by internal/luaerr.
type NativeFunc func(th *Thread, args []Value) ([]Value, error)

// CClosure is a native function bundled with captured upvalues, the
// "C-closure" of spec.md §3.
type CClosure struct {
	Header

	Fn       NativeFunc
	Name     string
	Upvalues []*Upvalue
}

func (c *CClosure) header() *Header { return &c.Header }

// UpvalState is the open/closed discriminant of an Upvalue (spec.md §3
// "Upvalue"): open points into a live stack slot, closed owns the value
// inline after the slot was popped.
type UpvalState uint8

const (
	UpvalOpen UpvalState = iota
	UpvalClosed
)

// Upvalue is its own heap object so that multiple closures can share
// mutable state through it (spec.md §9 "Mutable Value cells"). While
// open it refers to slot Index of Thread's stack, read and written
// through the stackGet/stackSet accessors internal/vm supplies (it
// owns stack storage); once closed it owns Closed by inline storage.
type Upvalue struct {
	Header

	State  UpvalState
	Thread *Thread // owning thread while open; nil once closed
	Index  int     // stack slot (absolute register index) while open
	Closed Value   // inline storage once closed

	// openNext links this upvalue into its thread's open-upvalues list,
	// kept sorted by descending stack address (spec.md §3). Unexported
	// because only internal/vm's upvalue-lifecycle code may touch the
	// chain; everyone else uses the Thread's accessors.
	openNext *Upvalue
}

func (u *Upvalue) header() *Header { return &u.Header }

// Get dereferences the upvalue through whichever storage is live.
// stackGet is supplied by the VM (it knows how to read a thread's
// register file); for a closed upvalue it is never called.
func (u *Upvalue) Get(stackGet func(th *Thread, idx int) Value) Value {
	if u.State == UpvalOpen {
		return stackGet(u.Thread, u.Index)
	}
	return u.Closed
}

// Set stores through the upvalue. stackSet is supplied by the VM for
// the open case.
func (u *Upvalue) Set(v Value, stackSet func(th *Thread, idx int, v Value)) {
	if u.State == UpvalOpen {
		stackSet(u.Thread, u.Index, v)
		return
	}
	u.Closed = v
}

// Close transitions an open upvalue to closed, copying in the current
// slot value. An upvalue transitions open->closed exactly once
// (spec.md §3 invariant); callers must not call Close twice.
func (u *Upvalue) Close(v Value) {
	u.State = UpvalClosed
	u.Closed = v
	u.Thread = nil
	u.openNext = nil
}

// OpenNext/SetOpenNext expose the open-upvalue chain link to
// internal/vm, which owns the per-thread open-upvalues list.
func (u *Upvalue) OpenNext() *Upvalue     { return u.openNext }
func (u *Upvalue) SetOpenNext(n *Upvalue) { u.openNext = n }

// UserData is an opaque host value with an optional metatable and an
// optional __gc finalizer, tracked via the embedded Header's finalizer
// state.
type UserData struct {
	Header

	Data interface{}
	Meta *Table
}

func (u *UserData) header() *Header { return &u.Header }

// HasFinalizer reports whether the userdata's metatable defines __gc.
// internal/gc consults this during Sweep to decide whether an
// otherwise-unreachable userdata must be routed through Finalize
// instead of being swept directly. gcKey must be the interned "__gc"
// string (callers get it from GlobalState.MetaGC) so the lookup hits
// the metatable's entry by the string-identity semantics spec.md §3
// requires, rather than allocating an uninterned probe key.
func (u *UserData) HasFinalizer(gcKey Value) bool {
	if u.Meta == nil {
		return false
	}
	return !u.Meta.Get(gcKey).IsNil()
}
