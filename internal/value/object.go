// Package value defines the tagged Value representation and the GC object
// model shared by the compiler, the collector and the execution engine.
package value

// Color is the tri-color mark state of a heap object. Unlike a simple
// black/white/gray enum, "gray" is never stored directly on an object:
// a gray object is identified by sitting in the collector's gray
// work-list (see internal/gc), so Color only ever holds white0, white1
// or black on a live object's header.
type Color uint8

const (
	White0 Color = iota
	White1
	Black
)

// FinalizerState tracks a userdata's __gc lifecycle.
type FinalizerState uint8

const (
	FinNone FinalizerState = iota
	FinPending
	FinRunning
	FinDone
)

// Tag identifies the concrete type a GCObject header belongs to.
type Tag uint8

const (
	TagString Tag = iota
	TagTable
	TagClosure
	TagCClosure
	TagPrototype
	TagUpvalue
	TagThread
	TagUserData
)

// Header is embedded by every heap-allocated object. It carries exactly
// the bookkeeping fields spec.md §3 "GC object header" requires: a type
// tag, color bits, a finalized bit, weak-key/value bits (meaningful only
// on Table), fixed/super-fixed bits, a next-pointer threading the object
// into the global allocation list, a byte size for accounting, and a
// finalizer state.
//
// The teacher (runtime/mheap.go-style object headers) threads objects
// into the heap via raw next-pointers inside a global list; Go pointers
// play that same role here without needing an arena-of-indices, since
// pointer identity already gives us the "index equality" the teacher's
// raw-pointer graph relies on.
type Header struct {
	Tag        Tag
	color      Color
	finalized  bool
	WeakKey    bool
	WeakValue  bool
	fixed      bool
	superFixed bool
	next       GCObject
	size       uintptr
	finState   FinalizerState
}

// GCObject is implemented by every heap-managed type: String, Table,
// Closure, CClosure, Prototype, Upvalue, Thread, UserData.
type GCObject interface {
	header() *Header
}

func (h *Header) header() *Header { return h }

// Color reports the object's current mark color.
func (h *Header) Color() Color { return h.color }

// SetColor repaints the object. The collector is the only caller.
func (h *Header) SetColor(c Color) { h.color = c }

// IsWhite reports whether the object wears either white, i.e. has not
// been reached by the current mark phase.
func (h *Header) IsWhite() bool { return h.color == White0 || h.color == White1 }

// IsBlack reports whether the object has been fully scanned.
func (h *Header) IsBlack() bool { return h.color == Black }

// Fixed reports whether the object is exempt from collection.
func (h *Header) Fixed() bool { return h.fixed || h.superFixed }

// SuperFixed reports whether the object survives collector reinitialization.
func (h *Header) SuperFixed() bool { return h.superFixed }

// MarkFixed pins the object so the sweeper never frees it.
func (h *Header) MarkFixed(super bool) {
	h.fixed = true
	h.superFixed = super
}

// Next returns the header's successor in the global allocation list.
func (h *Header) Next() GCObject { return h.next }

// SetNext relinks the header into the global allocation list.
func (h *Header) SetNext(n GCObject) { h.next = n }

// Size reports the accounted byte size of the object.
func (h *Header) Size() uintptr { return h.size }

// FinalizerState reports the userdata finalizer lifecycle state.
func (h *Header) FinalizerState() FinalizerState { return h.finState }

// SetFinalizerState transitions the finalizer lifecycle. A finalizer may
// only move forward through None -> Pending -> Running -> Done.
func (h *Header) SetFinalizerState(s FinalizerState) { h.finState = s }

// HeaderOf extracts the embedded header from any GC object, for use by
// the collector and the execution engine without a type switch.
func HeaderOf(o GCObject) *Header {
	if o == nil {
		return nil
	}
	return o.header()
}
