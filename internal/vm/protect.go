package vm

import (
	"luacore/internal/luaerr"
	"luacore/internal/value"
)

// ProtectedCall implements pcall's semantics (spec.md §4.4.3
// "Protected calls"): run fn(args...) and recover any error raised
// during it, rather than propagating it to the caller's caller. It
// returns ok=false and the error's Lua-visible payload on failure.
func (vm *VM) ProtectedCall(th *value.Thread, fn value.Value, args []value.Value) (ok bool, results []value.Value, errValue value.Value) {
	savedCallInfo := len(th.CallInfo)
	savedTop := th.Top
	results, err := vm.Call(th, fn, args)
	if err == nil {
		return true, results, value.Nil
	}
	th.CallInfo = th.CallInfo[:savedCallInfo]
	th.Top = savedTop
	return false, nil, errorValue(err)
}

// XProtectedCall implements xpcall: like ProtectedCall, but on failure
// the supplied message handler runs (with the call-info stack still
// representing the point of failure as closely as Go recursion
// allows) and its result becomes the error payload.
func (vm *VM) XProtectedCall(th *value.Thread, fn, handler value.Value, args []value.Value) (ok bool, results []value.Value, errValue value.Value) {
	savedCallInfo := len(th.CallInfo)
	savedTop := th.Top
	results, err := vm.Call(th, fn, args)
	if err == nil {
		return true, results, value.Nil
	}
	payload := errorValue(err)
	th.CallInfo = th.CallInfo[:savedCallInfo]
	th.Top = savedTop
	handled, herr := vm.Call(th, handler, []value.Value{payload})
	if herr != nil {
		return false, nil, errorValue(herr)
	}
	return false, nil, first(handled)
}

func errorValue(err error) value.Value {
	if le, ok := err.(*luaerr.Error); ok {
		if !le.Value.IsNil() {
			return le.Value
		}
		return value.Nil
	}
	return value.Nil
}

// runFinalizer invokes a userdata's __gc metamethod. Wired onto
// Collector.FinalizerRunner by New, since internal/gc cannot call back
// into internal/vm directly (spec.md §4.2 "Finalization").
func (vm *VM) runFinalizer(ud *value.UserData) {
	if ud.Meta == nil {
		return
	}
	h := ud.Meta.Get(vm.global.MetaGC)
	if h.IsNil() {
		return
	}
	th := vm.global.MainThread
	_, _ = vm.Call(th, h, []value.Value{value.UserDataValue(ud)})
}
