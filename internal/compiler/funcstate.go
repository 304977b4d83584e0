// Package compiler implements the single-pass, register-based
// compiler of spec.md §4.3: it walks an internal/ast tree for one
// function body and produces an internal/value Prototype.
package compiler

import (
	"luacore/internal/code"
	"luacore/internal/gc"
	"luacore/internal/value"
)

// localVar records one active local binding: its name and the
// register it lives in.
type localVar struct {
	name string
	reg  int
}

// scope is one lexical block within a function: the set of locals
// declared in it (as a slice index range into funcState.actives), and
// the pending break-jump list if this scope is a loop body.
type scope struct {
	firstLocal int
	isLoop     bool
	breaks     []int // pending jump instruction indices
}

// pendingUpval mirrors value.UpvalDesc while compilation is still
// building the list, before it is frozen into the Prototype.
type pendingUpval struct {
	name    string
	isLocal bool
	index   int
}

// funcState is the compiler's mutable working state for one function
// body (spec.md §4.3: "per-function: a register stack top, a scope
// manager, a local-variable list, a pending-upvalue list, a constant
// pool ..., child-prototype list, pending break-jump list, and output
// instruction buffer").
type funcState struct {
	parent *funcState

	proto *value.Prototype

	code  []value.Instruction
	lines []int

	freeReg int // first unused register, i.e. the register stack top

	actives []localVar
	scopes  []*scope

	upvals []pendingUpval

	constants    []value.Value
	constIndex   map[value.Value]int

	children []*value.Prototype

	numParams int
	isVararg  bool
}

func newFuncState(collector *gc.Collector, parent *funcState) *funcState {
	return &funcState{
		parent:     parent,
		proto:      collector.NewPrototype(),
		constIndex: make(map[value.Value]int),
	}
}

// openScope pushes a new lexical scope; isLoop marks it as a break
// target.
func (fs *funcState) openScope(isLoop bool) *scope {
	sc := &scope{firstLocal: len(fs.actives), isLoop: isLoop}
	fs.scopes = append(fs.scopes, sc)
	return sc
}

// closeScope pops the current scope, discarding its locals (freeing
// their registers) and returning its pending break list so the caller
// can patch it to the loop-exit PC.
func (fs *funcState) closeScope() *scope {
	sc := fs.scopes[len(fs.scopes)-1]
	fs.scopes = fs.scopes[:len(fs.scopes)-1]
	fs.actives = fs.actives[:sc.firstLocal]
	fs.freeReg = fs.numParams
	if len(fs.actives) > 0 {
		fs.freeReg = fs.actives[len(fs.actives)-1].reg + 1
	}
	return sc
}

// currentLoop returns the nearest enclosing loop scope, for `break`
// resolution, or nil if none is open.
func (fs *funcState) currentLoop() *scope {
	for i := len(fs.scopes) - 1; i >= 0; i-- {
		if fs.scopes[i].isLoop {
			return fs.scopes[i]
		}
	}
	return nil
}

// reserveReg allocates n consecutive registers at the current stack
// top and returns the first one, erroring if the 255-register limit
// (spec.md §4.3.6) is exceeded.
func (fs *funcState) reserveReg(n int) (int, error) {
	r := fs.freeReg
	if r+n > 255 {
		return 0, newCompileErrorf("too many registers (function needs more than 255)")
	}
	fs.freeReg += n
	if fs.proto.MaxStack < fs.freeReg {
		fs.proto.MaxStack = fs.freeReg
	}
	return r, nil
}

// freeTo resets the register top to r, discarding temporaries above
// it. Callers must never free below the top of active locals.
func (fs *funcState) freeTo(r int) {
	if r < fs.freeReg {
		fs.freeReg = r
	}
}

// addLocal binds name to the next free register and activates it
// immediately (Lua 5.1 semantics: a local is visible starting right
// after its own initializer, not before).
func (fs *funcState) addLocal(name string) (int, error) {
	reg, err := fs.reserveReg(1)
	if err != nil {
		return 0, err
	}
	fs.actives = append(fs.actives, localVar{name: name, reg: reg})
	return reg, nil
}

// resolveLocal searches the active-local list innermost-first for
// name, per spec.md §4.3.2 step 1.
func (fs *funcState) resolveLocal(name string) (int, bool) {
	for i := len(fs.actives) - 1; i >= 0; i-- {
		if fs.actives[i].name == name {
			return fs.actives[i].reg, true
		}
	}
	return 0, false
}

// resolveUpval searches this function's existing upvalue list for
// name, or recursively resolves it in the parent and adds a new
// upvalue descriptor (spec.md §4.3.2 step 2).
func (fs *funcState) resolveUpval(name string) (int, bool) {
	for i, u := range fs.upvals {
		if u.name == name {
			return i, true
		}
	}
	if fs.parent == nil {
		return 0, false
	}
	if reg, ok := fs.parent.resolveLocal(name); ok {
		fs.upvals = append(fs.upvals, pendingUpval{name: name, isLocal: true, index: reg})
		return len(fs.upvals) - 1, true
	}
	if idx, ok := fs.parent.resolveUpval(name); ok {
		fs.upvals = append(fs.upvals, pendingUpval{name: name, isLocal: false, index: idx})
		return len(fs.upvals) - 1, true
	}
	return 0, false
}

// addConstant interns v into the constant pool, de-duplicating by raw
// value equality (spec.md §4.3.3, §8 "Constant de-duplication").
func (fs *funcState) addConstant(v value.Value) (int, error) {
	if idx, ok := fs.constIndex[v]; ok {
		return idx, nil
	}
	if len(fs.constants) >= code.MaxArgRegisterOrConstant+1 {
		return 0, newCompileErrorf("too many constants (function needs more than 256)")
	}
	idx := len(fs.constants)
	fs.constants = append(fs.constants, v)
	fs.constIndex[v] = idx
	return idx, nil
}

// emit appends one instruction and its source line, returning the new
// instruction's index (its future PC).
func (fs *funcState) emit(ins value.Instruction, line int) int {
	fs.code = append(fs.code, ins)
	fs.lines = append(fs.lines, line)
	return len(fs.code) - 1
}

func (fs *funcState) emitABC(op code.Opcode, a, b, c, line int) int {
	return fs.emit(code.EncodeABC(op, a, b, c), line)
}

func (fs *funcState) emitABx(op code.Opcode, a, bx, line int) int {
	return fs.emit(code.EncodeABx(op, a, bx), line)
}

func (fs *funcState) emitAsBx(op code.Opcode, a, sbx, line int) int {
	return fs.emit(code.EncodeAsBx(op, a, sbx), line)
}

func (fs *funcState) pc() int { return len(fs.code) }

// finish fills in the Prototype allocated at newFuncState time (it was
// allocated up front, not here, so reserveReg could track MaxStack on
// the live object as compilation proceeded) with the accumulated
// compilation state.
func (fs *funcState) finish(name string, line int) *value.Prototype {
	p := fs.proto
	p.Name = name
	p.LineDefined = line
	p.NumParams = fs.numParams
	p.IsVararg = fs.isVararg
	p.NumLocals = p.MaxStack
	p.Code = fs.code
	p.Lines = fs.lines
	p.Constants = fs.constants
	p.Protos = fs.children
	p.Upvalues = make([]value.UpvalDesc, len(fs.upvals))
	for i, u := range fs.upvals {
		p.Upvalues[i] = value.UpvalDesc{Name: u.name, IsLocal: u.isLocal, Index: u.index}
	}
	return p
}
