package compiler

import (
	"luacore/internal/ast"
	"luacore/internal/code"
	"luacore/internal/gc"
	"luacore/internal/value"
)

// funcCompiler drives compilation of one function body, wrapping the
// per-function bookkeeping (funcState) with the shared GlobalState
// needed to intern strings and allocate heap objects (spec.md §4.3:
// "Purely synchronous; no runtime state touched beyond allocating
// prototype objects").
type funcCompiler struct {
	global *gc.GlobalState
	fs     *funcState
}

// Compile compiles a top-level chunk (an implicit vararg function with
// no parameters) into a Prototype ready for the execution engine to
// instantiate a closure over (spec.md §2 "parser -> compiler produces
// main Prototype").
func Compile(global *gc.GlobalState, chunk *ast.Block, name string) (*value.Prototype, error) {
	c := &funcCompiler{global: global}
	c.fs = newFuncState(global.Collector, nil)
	c.fs.isVararg = true
	if err := c.compileBlock(chunk); err != nil {
		return nil, err
	}
	c.fs.emitABC(code.OpReturn, 0, 1, 0, lastLine(chunk))
	return c.fs.finish(name, 0), nil
}

func lastLine(b *ast.Block) int {
	if len(b.Stmts) == 0 {
		return b.Position().Line
	}
	return b.Stmts[len(b.Stmts)-1].Position().Line
}

// compileFuncExpr compiles a nested function literal into a child
// prototype, emits CLOSURE at the use site, and emits the pseudo-
// instructions describing each upvalue's source (spec.md §4.3.4
// "Function declaration"). Each pseudo-instruction is a MOVE (captured
// from the enclosing function's register B) or a GETUPVAL (captured
// from the enclosing function's upvalue B): the opcode, not A, tells
// the two cases apart, and A is always 0. The execution engine's
// CLOSURE handler consumes exactly len(proto.Upvalues) of them
// immediately following and never dispatches them as ordinary opcodes
// (spec.md §4.4.3).
func (c *funcCompiler) compileFuncExpr(n *ast.FuncExpr, name string) (exprDesc, error) {
	line := n.Position().Line
	child := &funcCompiler{global: c.global, fs: newFuncState(c.global.Collector, c.fs)}
	child.fs.numParams = len(n.Params)
	child.fs.isVararg = n.IsVararg
	child.fs.openScope(false)
	for _, p := range n.Params {
		if _, err := child.fs.addLocal(p); err != nil {
			return exprDesc{}, err
		}
	}
	if err := child.compileBlock(n.Body); err != nil {
		return exprDesc{}, err
	}
	child.fs.emitABC(code.OpReturn, 0, 1, 0, lastLine(n.Body))
	child.fs.closeScope()
	proto := child.fs.finish(name, line)

	c.fs.children = append(c.fs.children, proto)
	protoIdx := len(c.fs.children) - 1

	dst, err := c.fs.reserveReg(1)
	if err != nil {
		return exprDesc{}, err
	}
	c.fs.emitABx(code.OpClosure, dst, protoIdx, line)
	// Lua 5.1's own convention: a MOVE pseudo-instruction means "this
	// upvalue is captured from a local in register B", a GETUPVAL
	// pseudo-instruction means "captured from this function's own
	// upvalue B". The CLOSURE handler reads exactly len(Upvalues) of
	// these and never dispatches them.
	for _, u := range child.fs.upvals {
		if u.isLocal {
			c.fs.emitABC(code.OpMove, 0, u.index, 0, line)
		} else {
			c.fs.emitABC(code.OpGetUpval, 0, u.index, 0, line)
		}
	}
	return exprDesc{kind: exprReg, info: dst}, nil
}

// compileBlock compiles a sequence of statements within a fresh
// (non-loop) lexical scope; callers that need a loop-tagged scope
// (while/for/repeat bodies) open their own scope and call
// compileStmts directly instead.
func (c *funcCompiler) compileBlock(b *ast.Block) error {
	c.fs.openScope(false)
	defer c.fs.closeScope()
	return c.compileStmts(b.Stmts)
}

func (c *funcCompiler) compileStmts(stmts []ast.Stmt) error {
	for _, s := range stmts {
		if err := c.compileStmt(s); err != nil {
			return err
		}
	}
	return nil
}
