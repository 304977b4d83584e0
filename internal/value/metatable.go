package value

// Metatable returns the metatable attached to v, if any. Tables and
// userdata carry their own; every other kind gets nil here, and
// GlobalState.Metatable (internal/gc) is what falls back to the
// per-type default metatables (spec.md §3 "Global state ... per-type
// default metatables").
func Metatable(v Value) *Table {
	switch v.Kind() {
	case KindTable:
		return v.AsTable().Meta
	case KindUserData:
		return v.gc.(*UserData).Meta
	default:
		return nil
	}
}

// RawMeta looks up name (an already-interned string value) in v's
// metatable, returning Nil if there is none or the entry is absent.
func RawMeta(v Value, meta *Table, name Value) Value {
	if meta == nil {
		return Nil
	}
	return meta.Get(name)
}
