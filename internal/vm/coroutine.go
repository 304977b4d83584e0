package vm

import (
	"luacore/internal/luaerr"
	"luacore/internal/value"
)

// coroutineState is the scheduling side-channel for one coroutine
// thread (spec.md §5 "Scheduling model"): a dedicated goroutine backs
// the thread's Lua-level execution, parked on resumeCh whenever it is
// suspended and handing its yielded or final values back on yieldCh.
// Because resume/yield hand off control synchronously (the resuming
// side blocks on yieldCh, the resumed side blocks on resumeCh), at
// most one side is ever runnable at a time — the single-executor
// model spec.md §5 requires, without any lock around the Lua state
// itself (only this scheduling bookkeeping needs one, the way
// BuildletPool in the gopool example guards its own pool slice with a
// plain sync.Mutex rather than hand-rolled atomics).
type coroutineState struct {
	body     value.Value
	started  bool
	resumeCh chan []value.Value
	yieldCh  chan coroutineSignal
}

// coroutineSignal is one handoff from a coroutine's goroutine back to
// whichever thread resumed it: either a yield (done=false, the
// goroutine is parked on resumeCh) or the coroutine's final return or
// error (done=true, the goroutine has exited).
type coroutineSignal struct {
	values []value.Value
	err    error
	done   bool
}

// NewCoroutine creates a new thread (spec.md §3 "Thread") whose body is
// fn, suspended until the first Resume. Registered on the GlobalState's
// thread list so it is never collectable while it still might run.
func (vm *VM) NewCoroutine(fn value.Value) *value.Thread {
	th := vm.global.Collector.NewThread()
	vm.global.RegisterThread(th)

	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.coroutines[th] = &coroutineState{
		body:     fn,
		resumeCh: make(chan []value.Value),
		yieldCh:  make(chan coroutineSignal),
	}
	return th
}

func (vm *VM) coroutineState(th *value.Thread) *coroutineState {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.coroutines[th]
}

// Resume transfers control from the calling thread to co (spec.md §5
// "Coroutine switches are explicit"), running or continuing it until
// co next yields, returns, or errors. It never panics: a coroutine
// error surfaces as ok=false, matching coroutine.resume's own
// protected-call-like contract rather than unwinding the resumer.
func (vm *VM) Resume(from *value.Thread, co *value.Thread, args []value.Value) (ok bool, results []value.Value) {
	cs := vm.coroutineState(co)
	if cs == nil {
		return false, []value.Value{vm.global.InternString("cannot resume a non-coroutine thread")}
	}
	switch co.Status {
	case value.StatusDead:
		return false, []value.Value{vm.global.InternString("cannot resume dead coroutine")}
	case value.StatusRunning, value.StatusNormal:
		return false, []value.Value{vm.global.InternString("cannot resume non-suspended coroutine")}
	}

	from.Status = value.StatusNormal
	co.Status = value.StatusRunning

	if !cs.started {
		cs.started = true
		go func() {
			// A panic escaping this goroutine (unlike one in the
			// resumer's own call stack) has no caller left to recover
			// it and would take down the whole process, so it is
			// turned into an ordinary coroutine error instead.
			defer func() {
				if r := recover(); r != nil {
					cs.yieldCh <- coroutineSignal{err: luaerr.Newf(luaerr.KindCoroutineError, "coroutine panicked: %v", r), done: true}
				}
			}()
			results, err := vm.Call(co, cs.body, args)
			cs.yieldCh <- coroutineSignal{values: results, err: err, done: true}
		}()
	} else {
		cs.resumeCh <- args
	}

	sig := <-cs.yieldCh
	from.Status = value.StatusRunning

	if sig.done {
		if sig.err != nil {
			co.Status = value.StatusError
			return false, []value.Value{errorValue(sig.err)}
		}
		co.Status = value.StatusDead
		return true, sig.values
	}
	co.Status = value.StatusSuspended
	return true, sig.values
}

// Yield suspends th (which must be a coroutine started by Resume,
// never the main thread) back to its resumer, returning whatever
// values the next Resume call supplies (spec.md §5 "Suspension
// points"). Calling it from outside a coroutine is a coroutine_error,
// mirroring real Lua's own "attempt to yield from outside a
// coroutine".
func (vm *VM) Yield(th *value.Thread, args []value.Value) ([]value.Value, error) {
	cs := vm.coroutineState(th)
	if cs == nil {
		return nil, vm.errorf(luaerr.KindCoroutineError, "attempt to yield from outside a coroutine")
	}
	cs.yieldCh <- coroutineSignal{values: args, done: false}
	resumeArgs := <-cs.resumeCh
	return resumeArgs, nil
}

// Status reports th's coroutine status, for coroutine.status.
func (vm *VM) Status(th *value.Thread) value.Status {
	return th.Status
}

// StatusName renders a Status the way coroutine.status's Lua-visible
// string does: "suspended", "running", "normal", or "dead" (folding
// StatusError into "dead", matching real Lua — a coroutine that
// errored is just as un-resumable as one that returned normally).
func StatusName(s value.Status) string {
	switch s {
	case value.StatusSuspended:
		return "suspended"
	case value.StatusRunning:
		return "running"
	case value.StatusNormal:
		return "normal"
	default:
		return "dead"
	}
}
