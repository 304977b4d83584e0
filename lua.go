// Package luacore is the public façade over the compiler, execution
// engine, and garbage collector: construct a State, Load a chunk's
// AST into a callable closure, and Call it (spec.md §2 "Control
// flow: parser -> compiler produces main Prototype -> execution
// engine instantiates a closure ... and enters the dispatch loop").
package luacore

import (
	"luacore/internal/ast"
	"luacore/internal/compiler"
	"luacore/internal/gc"
	"luacore/internal/luaerr"
	"luacore/internal/value"
	"luacore/internal/vm"
)

// State is one independent interpreter instance: its own GlobalState
// (heap, collector, string pool, registry, default metatables), its
// own main thread, and the VM driving both (spec.md §5 "Different
// GlobalState instances are fully independent").
type State struct {
	Global *gc.GlobalState
	Main   *value.Thread
	vm     *vm.VM
}

// New builds a fresh interpreter instance with the given GC pacing
// parameters.
func New(params gc.Params) *State {
	global := gc.NewGlobalState(params)
	s := &State{
		Global: global,
		Main:   global.MainThread,
		vm:     vm.New(global),
	}
	s.registerCoroutineLibrary()
	return s
}

// Load compiles chunk (already parsed elsewhere; parsing is out of
// scope per spec.md §1) into a Prototype and wraps it in a closure
// ready to Call.
func (s *State) Load(chunk *ast.Block, name string) (value.Value, error) {
	proto, err := compiler.Compile(s.Global, chunk, name)
	if err != nil {
		return value.Nil, err
	}
	cl := s.Global.Collector.NewClosure(proto)
	return value.ClosureValue(cl), nil
}

// Call invokes fn on the main thread with args, per spec.md §4.4.1.
func (s *State) Call(fn value.Value, args ...value.Value) ([]value.Value, error) {
	return s.vm.Call(s.Main, fn, args)
}

// PCall invokes fn protected (spec.md §4.4.3): a runtime error is
// recovered and returned as (false, payload) instead of propagating.
func (s *State) PCall(fn value.Value, args ...value.Value) (bool, []value.Value, value.Value) {
	return s.vm.ProtectedCall(s.Main, fn, args)
}

// Step runs one incremental collector work quantum; FullGC forces a
// complete cycle. Hosts that drive their own allocation loop (a REPL,
// a request handler) call these between chunks; the VM itself does
// not schedule steps beyond what each allocation site already charges
// (spec.md §4.2).
func (s *State) Step()   { s.Global.Collector.Step() }
func (s *State) FullGC() { s.Global.Collector.FullGC() }

// Globals returns the shared global table new top-level chunks read
// and write through GETGLOBAL/SETGLOBAL.
func (s *State) Globals() *value.Table {
	key := s.Global.InternString("_G")
	g := s.Global.Registry.Get(key)
	if t := g.AsTable(); t != nil {
		return t
	}
	t := s.Global.Collector.NewTable()
	s.Global.Registry.Set(key, value.TableValue(t))
	return t
}

// Register installs a native function as a global, the primitive a
// standard-library package (out of scope for this core) would build
// on to expose builtins like print or pairs.
func (s *State) Register(name string, fn value.NativeFunc) {
	cc := s.Global.Collector.NewCClosure(fn, name, 0)
	s.Globals().Set(s.Global.InternString(name), value.CClosureValue(cc))
}

// NewCoroutine creates a new thread running fn as its body, suspended
// until the first Resume (spec.md §5 "Scheduling model").
func (s *State) NewCoroutine(fn value.Value) value.Value {
	return value.ThreadValue(s.vm.NewCoroutine(fn))
}

// Resume transfers control from the host (the main thread) to co,
// which must be a value previously returned by NewCoroutine, running
// it until it yields, returns, or errors (spec.md §5 "Coroutine
// switches are explicit").
func (s *State) Resume(co value.Value, args ...value.Value) (ok bool, results []value.Value) {
	return s.vm.Resume(s.Main, co.AsThread(), args)
}

// CoroutineStatus reports co's run state: "suspended", "running",
// "normal" (resumed another coroutine and is itself waiting), or
// "dead" (finished or errored).
func (s *State) CoroutineStatus(co value.Value) string {
	return vm.StatusName(s.vm.Status(co.AsThread()))
}

// registerCoroutineLibrary installs the coroutine table (create,
// resume, yield, status, wrap) every top-level chunk sees as a global,
// the Lua-visible surface over the VM's Resume/Yield primitives
// (spec.md §5). Mirrors real Lua 5.1's lcorolib.c building its
// coroutine.* functions directly on lua_resume/lua_yield.
func (s *State) registerCoroutineLibrary() {
	lib := s.Global.Collector.NewTable()
	intern := func(n string) value.Value { return s.Global.InternString(n) }
	reg := func(name string, fn value.NativeFunc) {
		lib.Set(intern(name), value.CClosureValue(s.Global.Collector.NewCClosure(fn, name, 0)))
	}

	reg("create", func(th *value.Thread, args []value.Value) ([]value.Value, error) {
		if len(args) == 0 || args[0].Kind() != value.KindFunction {
			return nil, luaerr.New(luaerr.KindTypeError, intern("bad argument #1 to 'create' (function expected)"))
		}
		return []value.Value{s.NewCoroutine(args[0])}, nil
	})

	reg("resume", func(th *value.Thread, args []value.Value) ([]value.Value, error) {
		if len(args) == 0 || args[0].Kind() != value.KindThread {
			return nil, luaerr.New(luaerr.KindTypeError, intern("bad argument #1 to 'resume' (coroutine expected)"))
		}
		ok, results := s.vm.Resume(th, args[0].AsThread(), args[1:])
		out := make([]value.Value, 0, len(results)+1)
		out = append(out, value.Bool(ok))
		return append(out, results...), nil
	})

	reg("yield", func(th *value.Thread, args []value.Value) ([]value.Value, error) {
		return s.vm.Yield(th, args)
	})

	reg("status", func(th *value.Thread, args []value.Value) ([]value.Value, error) {
		if len(args) == 0 || args[0].Kind() != value.KindThread {
			return nil, luaerr.New(luaerr.KindTypeError, intern("bad argument #1 to 'status' (coroutine expected)"))
		}
		return []value.Value{intern(vm.StatusName(s.vm.Status(args[0].AsThread())))}, nil
	})

	reg("wrap", func(th *value.Thread, args []value.Value) ([]value.Value, error) {
		if len(args) == 0 || args[0].Kind() != value.KindFunction {
			return nil, luaerr.New(luaerr.KindTypeError, intern("bad argument #1 to 'wrap' (function expected)"))
		}
		co := s.vm.NewCoroutine(args[0])
		wrapped := func(th2 *value.Thread, wargs []value.Value) ([]value.Value, error) {
			ok, results := s.vm.Resume(th2, co, wargs)
			if !ok {
				msg := value.Nil
				if len(results) > 0 {
					msg = results[0]
				}
				return nil, luaerr.New(luaerr.KindCoroutineError, msg)
			}
			return results, nil
		}
		cc := s.Global.Collector.NewCClosure(wrapped, "wrapped coroutine", 0)
		return []value.Value{value.CClosureValue(cc)}, nil
	})

	s.Globals().Set(intern("coroutine"), value.TableValue(lib))
}
