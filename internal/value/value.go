package value

import "math"

// Kind is the tag of a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
	KindTable
	KindFunction
	KindUserData
	KindThread
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindTable:
		return "table"
	case KindFunction:
		return "function"
	case KindUserData:
		return "userdata"
	case KindThread:
		return "thread"
	default:
		return "unknown"
	}
}

// Value is the tagged union described by spec.md §3: nil, boolean,
// number, or a GC reference (string/table/function/userdata/thread).
// Numbers are stored inline; everything else is a pointer into the heap
// the collector owns.
type Value struct {
	kind Kind
	num  float64
	b    bool
	gc   GCObject
}

var Nil = Value{kind: KindNil}

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

func fromObject(k Kind, o GCObject) Value { return Value{kind: k, gc: o} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNil() bool { return v.kind == KindNil }

// Truthy implements Lua truthiness: everything except nil and false is
// true.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.b
	default:
		return true
	}
}

func (v Value) AsBool() bool { return v.b }

func (v Value) AsNumber() float64 { return v.num }

// GCObject returns the heap reference carried by the value, or nil for
// nil/boolean/number values.
func (v Value) GCObject() GCObject { return v.gc }

func (v Value) AsString() *String {
	if v.kind != KindString {
		return nil
	}
	return v.gc.(*String)
}

func (v Value) AsTable() *Table {
	if v.kind != KindTable {
		return nil
	}
	return v.gc.(*Table)
}

func (v Value) AsThread() *Thread {
	if v.kind != KindThread {
		return nil
	}
	return v.gc.(*Thread)
}

// Callable returns the value's closure/c-closure, or nil if it is not
// directly callable (a __call metamethod may still apply; that is the
// VM's concern, not the value model's).
func (v Value) Callable() GCObject {
	if v.kind != KindFunction {
		return nil
	}
	return v.gc
}

func StringValue(s *String) Value { return fromObject(KindString, s) }
func TableValue(t *Table) Value   { return fromObject(KindTable, t) }
func ClosureValue(c *Closure) Value { return fromObject(KindFunction, c) }
func CClosureValue(c *CClosure) Value { return fromObject(KindFunction, c) }
func UserDataValue(u *UserData) Value { return fromObject(KindUserData, u) }
func ThreadValue(t *Thread) Value     { return fromObject(KindThread, t) }

// RawEqual implements the equality contract of spec.md §4.1: nil==nil;
// booleans by value; numbers by IEEE equality (NaN != NaN); strings by
// identity (which is byte equality thanks to interning); other GC
// references by identity.
func RawEqual(a, b Value) bool {
	if a.kind != b.kind {
		// Lua treats numbers specially only among themselves; no other
		// cross-kind equality exists in the raw semantics this core
		// implements.
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.num == b.num // NaN != NaN falls out of IEEE comparison
	default:
		return a.gc == b.gc
	}
}

// LessThan implements the raw ordering defined by spec.md §4.1: defined
// only for number-number (IEEE <) and string-string (lexicographic byte
// order). The caller (VM) is responsible for falling back to __lt when
// ok is false.
func LessThan(a, b Value) (result bool, ok bool) {
	if a.kind == KindNumber && b.kind == KindNumber {
		return a.num < b.num, true
	}
	if a.kind == KindString && b.kind == KindString {
		return a.AsString().Bytes < b.AsString().Bytes, true
	}
	return false, false
}

func LessEqual(a, b Value) (result bool, ok bool) {
	if a.kind == KindNumber && b.kind == KindNumber {
		return a.num <= b.num, true
	}
	if a.kind == KindString && b.kind == KindString {
		return a.AsString().Bytes <= b.AsString().Bytes, true
	}
	return false, false
}

// IsNaN reports whether the value is the number NaN.
func (v Value) IsNaN() bool {
	return v.kind == KindNumber && math.IsNaN(v.num)
}
