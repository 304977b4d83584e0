package gc

import "luacore/internal/value"

// Rough per-object byte accounting used for pacing (spec.md §4.2
// Pacing runs off "total bytes allocated", not exact live-object
// sizes, so these are deliberately approximate — matching the
// teacher's own mspan size-class rounding rather than a precise
// unsafe.Sizeof count).
const (
	sizeString    = 32
	sizeTable     = 64
	sizeClosure   = 48
	sizeCClosure  = 40
	sizePrototype = 96
	sizeUpvalue   = 32
	sizeThread    = 256
	sizeUserData  = 48
)

// allocateString allocates and registers a new interned string object.
// Callers go through GlobalState.InternString, which checks the intern
// table first; this is only reached on a genuine miss.
func (c *Collector) allocateString(s string) *value.String {
	str := &value.String{Bytes: s, Hash: value.HashBytes(s)}
	c.registerObject(str, sizeString+uintptr(len(s)))
	return str
}

// NewTable allocates a fresh, empty table.
func (c *Collector) NewTable() *value.Table {
	t := value.NewTable()
	c.registerObject(t, sizeTable)
	return t
}

// NewClosure allocates a Lua closure over proto, with upvalue slots
// pre-sized to match the prototype's declared upvalue count. Callers
// fill in Upvalues as each is resolved (open by capturing a live stack
// slot, or closed by sharing an enclosing closure's upvalue).
func (c *Collector) NewClosure(proto *value.Prototype) *value.Closure {
	cl := &value.Closure{
		Proto:    proto,
		Upvalues: make([]*value.Upvalue, len(proto.Upvalues)),
	}
	c.registerObject(cl, sizeClosure+uintptr(len(proto.Upvalues))*8)
	return cl
}

// NewCClosure allocates a native closure around fn with nUpvalues
// upvalue slots.
func (c *Collector) NewCClosure(fn value.NativeFunc, name string, nUpvalues int) *value.CClosure {
	cc := &value.CClosure{
		Fn:       fn,
		Name:     name,
		Upvalues: make([]*value.Upvalue, nUpvalues),
	}
	c.registerObject(cc, sizeCClosure+uintptr(nUpvalues)*8)
	return cc
}

// NewPrototype allocates an (initially empty) function prototype. The
// compiler fills in its fields as it finishes compiling the function
// body; it is registered up front so nested-prototype construction
// during compilation is uniformly heap-tracked.
func (c *Collector) NewPrototype() *value.Prototype {
	p := &value.Prototype{}
	c.registerObject(p, sizePrototype)
	return p
}

// NewUpvalue allocates an open upvalue pointing at stack slot idx of
// th. The caller is responsible for linking it into th's open-upvalue
// chain (internal/vm owns that list) and for calling LinkUpvalue
// afterward so the write barrier sees it if th is already black.
func (c *Collector) NewUpvalue(th *value.Thread, idx int) *value.Upvalue {
	u := &value.Upvalue{
		State:  value.UpvalOpen,
		Thread: th,
		Index:  idx,
	}
	c.registerObject(u, sizeUpvalue)
	return u
}

// NewThread allocates a new coroutine with no stack yet; the VM grows
// it on first use via Thread.EnsureStack.
func (c *Collector) NewThread() *value.Thread {
	th := &value.Thread{
		ErrorHandler: -1,
		Status:       value.StatusSuspended,
	}
	c.registerObject(th, sizeThread)
	return th
}

// NewUserData allocates a userdata wrapping an arbitrary host value.
func (c *Collector) NewUserData(data interface{}) *value.UserData {
	ud := &value.UserData{Data: data}
	c.registerObject(ud, sizeUserData)
	return ud
}
