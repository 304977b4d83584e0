package vm

import (
	"luacore/internal/value"
)

// stackGet/stackSet are the indirection Upvalue.Get/Set need to reach
// into a thread's register file (spec.md §3 "Upvalue"); internal/value
// knows nothing about how the VM addresses registers, so it takes
// these as callbacks instead.
func stackGet(th *value.Thread, idx int) value.Value { return th.Stack[idx] }
func stackSet(th *value.Thread, idx int, v value.Value) { th.Stack[idx] = v }

func (vm *VM) upvalGet(u *value.Upvalue) value.Value { return u.Get(stackGet) }

func (vm *VM) upvalSet(u *value.Upvalue, v value.Value) { u.Set(v, stackSet) }

// findUpvalue returns the open upvalue already capturing absolute
// stack slot idx on th, or allocates one, keeping th's open-upvalues
// list sorted by descending stack address exactly as spec.md §3
// requires so closeUpvalues can stop at the first slot below a given
// level.
func (vm *VM) findUpvalue(th *value.Thread, idx int) *value.Upvalue {
	var prev *value.Upvalue
	cur := th.OpenUpvalues
	for cur != nil && cur.Index > idx {
		prev = cur
		cur = cur.OpenNext()
	}
	if cur != nil && cur.Index == idx {
		return cur
	}
	u := vm.global.Collector.NewUpvalue(th, idx)
	u.SetOpenNext(cur)
	if prev == nil {
		th.OpenUpvalues = u
	} else {
		prev.SetOpenNext(u)
	}
	vm.global.Collector.LinkUpvalue(th, u)
	return u
}

// closeUpvalues closes every open upvalue at or above absolute stack
// slot level, copying each one's live value out of the stack before
// the frame that owns that slot is popped (spec.md §4.4.1 "closing
// upvalues on return" / §4.3.3 CLOSE).
func (vm *VM) closeUpvalues(th *value.Thread, level int) {
	for th.OpenUpvalues != nil && th.OpenUpvalues.Index >= level {
		u := th.OpenUpvalues
		th.OpenUpvalues = u.OpenNext()
		u.Close(th.Stack[u.Index])
	}
}
