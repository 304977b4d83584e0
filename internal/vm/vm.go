// Package vm implements the execution engine of spec.md §4.4: a
// register-based bytecode interpreter that runs the Prototypes
// internal/compiler produces over the value/gc object model.
package vm

import (
	"fmt"
	"sync"

	"luacore/internal/code"
	"luacore/internal/gc"
	"luacore/internal/luaerr"
	"luacore/internal/value"
)

// maxCallDepth bounds Go recursion (spec.md §4.4.1 "Call protocol":
// calls nest by recursing into Go, so a pathological Lua recursion
// must be caught before it exhausts the Go stack rather than after).
const maxCallDepth = 200

// VM ties one GlobalState to the interpreter loop. Multiple VMs never
// share a GlobalState in this core (spec.md §5), but a VM carries no
// per-call state of its own, so one instance safely drives every
// thread (coroutine) under its GlobalState.
type VM struct {
	global *gc.GlobalState

	// mu guards coroutines, the side-table mapping a coroutine's
	// *value.Thread to its scheduling channels (see coroutine.go). The
	// resume/yield handoff protocol ensures at most one goroutine ever
	// runs Lua code at a time, but NewCoroutine/Resume/Yield themselves
	// can race on the map across independently-scheduled coroutine
	// goroutines parked mid-handoff, so the map itself still needs a
	// lock.
	mu         sync.Mutex
	coroutines map[*value.Thread]*coroutineState
}

// New builds a VM over global and wires it as the collector's
// finalizer runner, since internal/gc cannot import internal/vm
// directly (spec.md §4.2 "Finalization").
func New(global *gc.GlobalState) *VM {
	vm := &VM{global: global, coroutines: make(map[*value.Thread]*coroutineState)}
	global.Collector.FinalizerRunner = vm.runFinalizer
	return vm
}

// Call invokes fn(args...) on th and returns its results. Lua
// closures, native (Go) closures, and values with a __call
// metamethod are all callable (spec.md §4.4.1, §4.1 metamethods).
func (vm *VM) Call(th *value.Thread, fn value.Value, args []value.Value) ([]value.Value, error) {
	th.CCallDepth++
	defer func() { th.CCallDepth-- }()
	if th.CCallDepth > maxCallDepth {
		return nil, luaerr.New(luaerr.KindStackOverflow, vm.global.InternString("stack overflow"))
	}
	switch obj := fn.GCObject().(type) {
	case *value.Closure:
		return vm.callClosure(th, obj, args)
	case *value.CClosure:
		return obj.Fn(th, args)
	}
	if h := vm.metamethod(fn, vm.global.MetaCall); !h.IsNil() {
		callArgs := make([]value.Value, 0, len(args)+1)
		callArgs = append(callArgs, fn)
		callArgs = append(callArgs, args...)
		return vm.Call(th, h, callArgs)
	}
	return nil, vm.errorf(luaerr.KindCallNonCallable, "attempt to call a %s value", fn.Kind())
}

// execute runs the topmost CallInfo's closure to completion, handling
// every opcode of spec.md §4.4.5 / §6. It returns the frame's results
// and pops the frame (and closes any upvalues capturing its
// registers) before returning, success or failure alike.
func (vm *VM) execute(th *value.Thread) ([]value.Value, error) {
	ciIdx := len(th.CallInfo) - 1
	base := th.CallInfo[ciIdx].Base
	cl := th.CallInfo[ciIdx].Closure
	proto := cl.Proto
	ccode := proto.Code

	defer func() {
		vm.closeUpvalues(th, base)
		th.CallInfo = th.CallInfo[:ciIdx]
	}()

	pc := 0
	for {
		ins := ccode[pc]
		line := 0
		if pc < len(proto.Lines) {
			line = proto.Lines[pc]
		}
		pc++
		op := ins.Opcode()

		switch op {
		case code.OpMove:
			th.Stack[base+ins.A()] = th.Stack[base+ins.B()]

		case code.OpLoadK:
			th.Stack[base+ins.A()] = proto.Constants[ins.Bx()]

		case code.OpLoadBool:
			th.Stack[base+ins.A()] = value.Bool(ins.B() != 0)
			if ins.C() != 0 {
				pc++
			}

		case code.OpLoadNil:
			for r := ins.A(); r <= ins.B(); r++ {
				th.Stack[base+r] = value.Nil
			}

		case code.OpGetUpval:
			th.Stack[base+ins.A()] = vm.upvalGet(cl.Upvalues[ins.B()])

		case code.OpSetUpval:
			vm.upvalSet(cl.Upvalues[ins.B()], th.Stack[base+ins.A()])

		case code.OpGetGlobal:
			name := proto.Constants[ins.Bx()]
			v, err := vm.index(th, value.TableValue(vm.globalsTable(cl)), name)
			if err != nil {
				return nil, vm.wrapError(err, proto.Name, line)
			}
			th.Stack[base+ins.A()] = v

		case code.OpSetGlobal:
			name := proto.Constants[ins.Bx()]
			v := th.Stack[base+ins.A()]
			if err := vm.newindex(th, value.TableValue(vm.globalsTable(cl)), name, v); err != nil {
				return nil, vm.wrapError(err, proto.Name, line)
			}

		case code.OpGetTable:
			t := th.Stack[base+ins.B()]
			k := vm.rk(th, base, proto, ins.C())
			v, err := vm.index(th, t, k)
			if err != nil {
				return nil, vm.wrapError(err, proto.Name, line)
			}
			th.Stack[base+ins.A()] = v

		case code.OpSetTable:
			t := th.Stack[base+ins.A()]
			k := vm.rk(th, base, proto, ins.B())
			v := vm.rk(th, base, proto, ins.C())
			if err := vm.newindex(th, t, k, v); err != nil {
				return nil, vm.wrapError(err, proto.Name, line)
			}

		case code.OpNewTable:
			th.Stack[base+ins.A()] = value.TableValue(vm.global.Collector.NewTable())

		case code.OpSelf:
			t := th.Stack[base+ins.B()]
			k := vm.rk(th, base, proto, ins.C())
			v, err := vm.index(th, t, k)
			if err != nil {
				return nil, vm.wrapError(err, proto.Name, line)
			}
			th.Stack[base+ins.A()+1] = t
			th.Stack[base+ins.A()] = v

		case code.OpAdd, code.OpSub, code.OpMul, code.OpDiv, code.OpMod, code.OpPow:
			a := vm.rk(th, base, proto, ins.B())
			b := vm.rk(th, base, proto, ins.C())
			v, err := vm.arith(th, op, a, b)
			if err != nil {
				return nil, vm.wrapError(err, proto.Name, line)
			}
			th.Stack[base+ins.A()] = v

		case code.OpUnm:
			v, err := vm.unm(th, th.Stack[base+ins.B()])
			if err != nil {
				return nil, vm.wrapError(err, proto.Name, line)
			}
			th.Stack[base+ins.A()] = v

		case code.OpNot:
			th.Stack[base+ins.A()] = value.Bool(!th.Stack[base+ins.B()].Truthy())

		case code.OpLen:
			v, err := vm.length(th, th.Stack[base+ins.B()])
			if err != nil {
				return nil, vm.wrapError(err, proto.Name, line)
			}
			th.Stack[base+ins.A()] = v

		case code.OpConcat:
			v, err := vm.concatRange(th, th.Stack[base+ins.B():base+ins.C()+1])
			if err != nil {
				return nil, vm.wrapError(err, proto.Name, line)
			}
			th.Stack[base+ins.A()] = v

		case code.OpJmp:
			pc += ins.SBx()

		case code.OpEq, code.OpLt, code.OpLe:
			a := vm.rk(th, base, proto, ins.B())
			b := vm.rk(th, base, proto, ins.C())
			result, err := vm.compare(th, op, a, b)
			if err != nil {
				return nil, vm.wrapError(err, proto.Name, line)
			}
			if boolToInt(result) == ins.A() {
				pc += ccode[pc].SBx() + 1
			} else {
				pc++
			}

		case code.OpTest:
			if boolToInt(th.Stack[base+ins.A()].Truthy()) == ins.C() {
				pc += ccode[pc].SBx() + 1
			} else {
				pc++
			}

		case code.OpTestSet:
			if boolToInt(th.Stack[base+ins.B()].Truthy()) == ins.C() {
				th.Stack[base+ins.A()] = th.Stack[base+ins.B()]
				pc += ccode[pc].SBx() + 1
			} else {
				pc++
			}

		case code.OpCall, code.OpTailCall:
			fnReg := base + ins.A()
			callArgs := vm.gatherArgs(th, base, fnReg, ins.B())
			results, err := vm.Call(th, th.Stack[fnReg], callArgs)
			if err != nil {
				return nil, vm.wrapError(err, proto.Name, line)
			}
			if op == code.OpTailCall {
				return results, nil
			}
			vm.storeResults(th, fnReg, ins.C(), results, base+proto.MaxStack)

		case code.OpReturn:
			a, b := ins.A(), ins.B()
			if b == 0 {
				return append([]value.Value(nil), th.Stack[base+a:th.Top]...), nil
			}
			return append([]value.Value(nil), th.Stack[base+a:base+a+b-1]...), nil

		case code.OpForPrep:
			a := ins.A()
			idx := th.Stack[base+a].AsNumber()
			step := th.Stack[base+a+2].AsNumber()
			th.Stack[base+a] = value.Number(idx - step)
			pc += ins.SBx()

		case code.OpForLoop:
			a := ins.A()
			step := th.Stack[base+a+2].AsNumber()
			idx := th.Stack[base+a].AsNumber() + step
			limit := th.Stack[base+a+1].AsNumber()
			cont := (step >= 0 && idx <= limit) || (step < 0 && idx >= limit)
			if cont {
				th.Stack[base+a] = value.Number(idx)
				th.Stack[base+a+3] = value.Number(idx)
				pc += ins.SBx()
			}

		case code.OpTForLoop:
			a, c := ins.A(), ins.C()
			iterArgs := []value.Value{th.Stack[base+a+1], th.Stack[base+a+2]}
			results, err := vm.Call(th, th.Stack[base+a], iterArgs)
			if err != nil {
				return nil, vm.wrapError(err, proto.Name, line)
			}
			for i := 0; i < c; i++ {
				if i < len(results) {
					th.Stack[base+a+3+i] = results[i]
				} else {
					th.Stack[base+a+3+i] = value.Nil
				}
			}
			if len(results) == 0 || results[0].IsNil() {
				pc++
			} else {
				th.Stack[base+a+2] = results[0]
			}

		case code.OpSetList:
			a, b, flushFrom := ins.A(), ins.B(), ins.C()
			t := th.Stack[base+a].AsTable()
			if b == 0 {
				b = th.Top - (base + a + 1)
			}
			for i := 0; i < b; i++ {
				t.Set(value.Number(float64(flushFrom+i)), th.Stack[base+a+1+i])
				vm.barrierTable(t, th.Stack[base+a+1+i])
			}

		case code.OpClosure:
			child := proto.Protos[ins.Bx()]
			nc := vm.global.Collector.NewClosure(child)
			for i := range child.Upvalues {
				pseudo := ccode[pc]
				pc++
				if pseudo.Opcode() == code.OpMove {
					nc.Upvalues[i] = vm.findUpvalue(th, base+pseudo.B())
				} else {
					nc.Upvalues[i] = cl.Upvalues[pseudo.B()]
				}
			}
			th.Stack[base+ins.A()] = value.ClosureValue(nc)

		case code.OpClose:
			vm.closeUpvalues(th, base+ins.A())

		case code.OpVararg:
			a, b := ins.A(), ins.B()
			va := th.CallInfo[ciIdx].Varargs
			if b == 0 {
				for i, v := range va {
					th.Stack[base+a+i] = v
				}
				th.Top = base + a + len(va)
			} else {
				for i := 0; i < b-1; i++ {
					if i < len(va) {
						th.Stack[base+a+i] = va[i]
					} else {
						th.Stack[base+a+i] = value.Nil
					}
				}
			}

		default:
			return nil, vm.errorf(luaerr.KindRuntimeError, "unimplemented opcode %s", op)
		}
	}
}

// rk resolves an RK-encoded operand: a constant-pool reference when
// its high bit is set, otherwise a plain register (spec.md §6 "RK
// operands").
func (vm *VM) rk(th *value.Thread, base int, proto *value.Prototype, rk int) value.Value {
	if code.IsConstant(rk) {
		return proto.Constants[code.ConstantIndex(rk)]
	}
	return th.Stack[base+rk]
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// gatherArgs collects CALL's argument window [from+1, from+b), or
// [from+1, th.Top) when b==0 ("all values up to the current stack
// top", spec.md §4.4.2 multi-value forwarding).
func (vm *VM) gatherArgs(th *value.Thread, base, from, b int) []value.Value {
	if b == 0 {
		return append([]value.Value(nil), th.Stack[from+1:th.Top]...)
	}
	return append([]value.Value(nil), th.Stack[from+1:from+b]...)
}

// storeResults writes a call's results back starting at dst, either
// truncating/padding to c-1 values or, when c==0, keeping every result
// and raising th.Top to match (spec.md §4.4.2).
func (vm *VM) storeResults(th *value.Thread, dst, c int, results []value.Value, frameTop int) {
	if c == 0 {
		th.EnsureStack(dst + len(results) - th.Top)
		for i, r := range results {
			th.Stack[dst+i] = r
		}
		th.Top = dst + len(results)
		return
	}
	want := c - 1
	for i := 0; i < want; i++ {
		if i < len(results) {
			th.Stack[dst+i] = results[i]
		} else {
			th.Stack[dst+i] = value.Nil
		}
	}
	th.Top = frameTop
}

// globalsTable returns the table GETGLOBAL/SETGLOBAL resolve against.
// This core keeps one shared globals table on the registry (spec.md
// §3 "Global state"), addressed by a fixed key, mirroring how real Lua
// 5.1 stores _G as a registry entry rather than a dedicated field.
func (vm *VM) globalsTable(cl *value.Closure) *value.Table {
	key := vm.global.InternString("_G")
	g := vm.global.Registry.Get(key)
	if t := g.AsTable(); t != nil {
		return t
	}
	t := vm.global.Collector.NewTable()
	vm.global.Registry.Set(key, value.TableValue(t))
	return t
}

func (vm *VM) barrierTable(t *value.Table, v value.Value) {
	if child := v.GCObject(); child != nil {
		vm.global.Collector.WriteBarrierBackward(t)
	}
}

// wrapError attaches this frame's position and a traceback entry to an
// error unwinding out of a call. Every execute frame it passes through
// on the way up pushes one more entry, innermost first, building the
// frame-description list spec.md §7 calls Traceback — the only place
// in the tree that does (PushTraceback itself is just a plain
// append-and-return helper on luaerr.Error).
func (vm *VM) wrapError(err error, funcName string, line int) error {
	le, ok := err.(*luaerr.Error)
	if !ok {
		return err
	}
	if le.Pos == 0 {
		le = le.WithPos(line)
	}
	if funcName == "" {
		funcName = "?"
	}
	return le.PushTraceback(fmt.Sprintf("in function '%s' (line %d)", funcName, line))
}

func (vm *VM) errorf(kind luaerr.Kind, format string, args ...interface{}) error {
	return luaerr.New(kind, vm.global.InternString(fmt.Sprintf(format, args...)))
}
