package value

// String is an immutable byte sequence plus a precomputed hash. The
// global string table (see GlobalState) interns these so that two live
// strings with identical bytes are the same object — spec.md §3
// "String uniqueness".
type String struct {
	Header
	Bytes string
	Hash  uint32
}

func (s *String) header() *Header { return &s.Header }

// fnv1a32 hashes bytes the way the teacher's string table would: a
// cheap, dependency-free hash good enough for intern-table bucketing.
// (Lua's own lstring.c uses a similar step-sampling hash; we hash every
// byte since Lua identifiers and literals in practice are short.)
func fnv1a32(b string) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619
	h := uint32(offset32)
	for i := 0; i < len(b); i++ {
		h ^= uint32(b[i])
		h *= prime32
	}
	return h
}

// HashBytes computes the hash stored in a String's Hash field for a
// byte string, without allocating a String object.
func HashBytes(b string) uint32 { return fnv1a32(b) }
