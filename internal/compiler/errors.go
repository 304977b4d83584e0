package compiler

import "luacore/internal/luaerr"

// newCompileErrorf builds a typed compile-time error (spec.md §4.3.6:
// "register overflow ... constant-pool overflow ... jump offset
// overflow ... too many upvalues ... function-nesting overflow ...
// malformed AST"). Compile errors are Go-side diagnostics, not values
// the running program observes, so they carry no Lua payload.
func newCompileErrorf(format string, args ...interface{}) error {
	return luaerr.Newf(luaerr.KindCompileError, format, args...)
}
