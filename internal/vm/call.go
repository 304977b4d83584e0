package vm

import (
	"luacore/internal/luaerr"
	"luacore/internal/value"
)

// callClosure pushes a new activation frame for cl over args and runs
// it to completion (spec.md §4.4.1 "Call protocol"): fixed parameters
// are copied into the first NumParams registers, any extra arguments
// are retained as the frame's `...` when the prototype is vararg, and
// the remaining declared registers start out nil.
func (vm *VM) callClosure(th *value.Thread, cl *value.Closure, args []value.Value) ([]value.Value, error) {
	proto := cl.Proto
	base := th.Top
	if !th.EnsureStack(proto.MaxStack) {
		return nil, vm.errorf(luaerr.KindStackOverflow, "stack overflow")
	}

	nFixed := proto.NumParams
	for i := 0; i < proto.MaxStack; i++ {
		switch {
		case i < nFixed && i < len(args):
			th.Stack[base+i] = args[i]
		default:
			th.Stack[base+i] = value.Nil
		}
	}

	var varargs []value.Value
	if proto.IsVararg && len(args) > nFixed {
		varargs = append([]value.Value(nil), args[nFixed:]...)
	}

	th.Top = base + proto.MaxStack
	th.CallInfo = append(th.CallInfo, value.CallInfo{
		Func:    value.ClosureValue(cl),
		Closure: cl,
		Base:    base,
		Top:     th.Top,
		Varargs: varargs,
	})

	return vm.execute(th)
}
