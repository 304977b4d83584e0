package compiler

import (
	"luacore/internal/ast"
	"luacore/internal/code"
)

// compileStmt dispatches one statement node (spec.md §4.3.4).
func (c *funcCompiler) compileStmt(s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.ExprStmt:
		return c.compileExprStmt(n)
	case *ast.Block:
		return c.compileBlock(n)
	case *ast.LocalStmt:
		return c.compileLocalStmt(n)
	case *ast.AssignStmt:
		return c.compileAssignStmt(n)
	case *ast.IfStmt:
		return c.compileIfStmt(n)
	case *ast.WhileStmt:
		return c.compileWhileStmt(n)
	case *ast.RepeatStmt:
		return c.compileRepeatStmt(n)
	case *ast.NumericForStmt:
		return c.compileNumericForStmt(n)
	case *ast.GenericForStmt:
		return c.compileGenericForStmt(n)
	case *ast.ReturnStmt:
		return c.compileReturnStmt(n)
	case *ast.BreakStmt:
		return c.compileBreakStmt(n)
	case *ast.FuncStmt:
		return c.compileFuncStmt(n)
	case *ast.DoStmt:
		return c.compileBlock(n.Body)
	default:
		return newCompileErrorf("unsupported statement node at line %d", s.Position().Line)
	}
}

// compileExprStmt compiles an expression evaluated for side effect
// only (almost always a call); any register it allocates is freed
// immediately since nothing consumes the result.
func (c *funcCompiler) compileExprStmt(n *ast.ExprStmt) error {
	line := n.Position().Line
	mark := c.fs.freeReg
	d, err := c.compileExpr(n.X)
	if err != nil {
		return err
	}
	if _, err := c.exp2anyreg(d, line); err != nil {
		return err
	}
	c.fs.freeTo(mark)
	return nil
}

// compileExprList compiles a list of expressions to `want` consecutive
// registers starting at the current free-register top, padding with
// nil or truncating, and forwarding the last expression's full
// multi-return when want < 0 ("all") and it is a call/vararg (spec.md
// §4.3.4 "Local declaration": "compile RHS to consecutive registers,
// padding with nil or absorbing multi-returns").
func (c *funcCompiler) compileExprList(exprs []ast.Expr, want int, line int) (int, error) {
	base := c.fs.freeReg
	if len(exprs) == 0 {
		if want > 0 {
			if _, err := c.fs.reserveReg(want); err != nil {
				return 0, err
			}
			for i := 0; i < want; i++ {
				if err := c.dischargeToReg(exprDesc{kind: exprNil}, base+i, line); err != nil {
					return 0, err
				}
			}
		}
		return base, nil
	}
	for i, e := range exprs {
		last := i == len(exprs)-1
		if last && isMultiExpr(e) && (want < 0 || want > len(exprs)) {
			d, err := c.compileMultiExpr(e)
			if err != nil {
				return 0, err
			}
			if err := c.dischargeMultiToNextReg(d, line); err != nil {
				return 0, err
			}
			if want >= 0 {
				// Truncate/pad the open-ended multi-result down to the
				// exact count the assignment/local binding needs.
				got := want - i
				if got < 1 {
					got = 1
				}
				c.adjustMultiResult(d, got, line)
				c.fs.freeReg = base + want
			}
			continue
		}
		d, err := c.compileExpr(e)
		if err != nil {
			return 0, err
		}
		c.fs.freeTo(base + i)
		if _, err := c.exp2nextreg(d, line); err != nil {
			return 0, err
		}
	}
	if want >= 0 {
		have := c.fs.freeReg - base
		if have < want {
			if _, err := c.fs.reserveReg(want - have); err != nil {
				return 0, err
			}
			for i := have; i < want; i++ {
				if err := c.dischargeToReg(exprDesc{kind: exprNil}, base+i, line); err != nil {
					return 0, err
				}
			}
		} else if have > want {
			c.fs.freeTo(base + want)
		}
	}
	return base, nil
}

// adjustMultiResult pins a multi-value CALL/VARARG's requested count
// to exactly n results instead of "all" (n+1 for CALL's C field, n+1
// for VARARG's B field, matching the B-1/C-1 convention).
func (c *funcCompiler) adjustMultiResult(d exprDesc, n int, line int) {
	switch d.kind {
	case exprCall:
		ins := c.fs.code[d.info]
		c.fs.code[d.info] = code.EncodeABC(code.OpCall, ins.A(), ins.B(), n+1)
	case exprVararg:
		ins := c.fs.code[d.info]
		c.fs.code[d.info] = code.EncodeABC(code.OpVararg, ins.A(), n+1, 0)
	}
}

func (c *funcCompiler) compileLocalStmt(n *ast.LocalStmt) error {
	line := n.Position().Line
	base, err := c.compileExprList(n.Exprs, len(n.Names), line)
	if err != nil {
		return err
	}
	for i, name := range n.Names {
		c.fs.actives = append(c.fs.actives, localVar{name: name, reg: base + i})
	}
	return nil
}

// assignTarget is a resolved store location for an assignment
// (spec.md §4.3.4 "Assignment": "emit the target-appropriate store").
type assignTarget struct {
	kind     exprKind // exprLocal, exprUpval, exprGlobal, or exprIndexed
	reg      int      // exprLocal: register; exprIndexed: table register
	constIdx int      // exprUpval: upvalue index; exprGlobal: constant index
	keyRK    int      // exprIndexed: RK-encoded key
}

func (c *funcCompiler) resolveAssignTarget(e ast.Expr, line int) (assignTarget, error) {
	switch n := e.(type) {
	case *ast.VarExpr:
		if reg, ok := c.fs.resolveLocal(n.Name); ok {
			return assignTarget{kind: exprLocal, reg: reg}, nil
		}
		if idx, ok := c.fs.resolveUpval(n.Name); ok {
			return assignTarget{kind: exprUpval, constIdx: idx}, nil
		}
		idx, err := c.fs.addConstant(c.global.InternString(n.Name))
		if err != nil {
			return assignTarget{}, err
		}
		return assignTarget{kind: exprGlobal, constIdx: idx}, nil
	case *ast.IndexExpr:
		x, err := c.compileExpr(n.X)
		if err != nil {
			return assignTarget{}, err
		}
		xr, err := c.exp2anyreg(x, line)
		if err != nil {
			return assignTarget{}, err
		}
		k, err := c.compileExpr(n.K)
		if err != nil {
			return assignTarget{}, err
		}
		rk, err := c.exp2RK(k, line)
		if err != nil {
			return assignTarget{}, err
		}
		return assignTarget{kind: exprIndexed, reg: xr, keyRK: rk}, nil
	case *ast.MemberExpr:
		x, err := c.compileExpr(n.X)
		if err != nil {
			return assignTarget{}, err
		}
		xr, err := c.exp2anyreg(x, line)
		if err != nil {
			return assignTarget{}, err
		}
		kIdx, err := c.fs.addConstant(c.global.InternString(n.Name))
		if err != nil {
			return assignTarget{}, err
		}
		return assignTarget{kind: exprIndexed, reg: xr, keyRK: code.RKAsConstant(kIdx)}, nil
	default:
		return assignTarget{}, newCompileErrorf("invalid assignment target at line %d", line)
	}
}

func (c *funcCompiler) storeTo(t assignTarget, valueReg, line int) {
	switch t.kind {
	case exprLocal:
		if t.reg != valueReg {
			c.fs.emitABC(code.OpMove, t.reg, valueReg, 0, line)
		}
	case exprUpval:
		c.fs.emitABC(code.OpSetUpval, valueReg, t.constIdx, 0, line)
	case exprGlobal:
		c.fs.emitABx(code.OpSetGlobal, valueReg, t.constIdx, line)
	case exprIndexed:
		c.fs.emitABC(code.OpSetTable, t.reg, t.keyRK, code.RKAsRegister(valueReg), line)
	}
}

// compileAssignStmt resolves every target's addressable components
// first (table bases and RK keys), then compiles the RHS list into
// consecutive registers, then emits the stores — so a target's own
// subexpressions (e.g. `t[i], t[i+1] = ...`) are evaluated before the
// values that will be written to them, matching spec.md §4.3.4.
func (c *funcCompiler) compileAssignStmt(n *ast.AssignStmt) error {
	line := n.Position().Line
	targets := make([]assignTarget, len(n.Targets))
	for i, te := range n.Targets {
		t, err := c.resolveAssignTarget(te, line)
		if err != nil {
			return err
		}
		targets[i] = t
	}
	base, err := c.compileExprList(n.Exprs, len(n.Targets), line)
	if err != nil {
		return err
	}
	for i, t := range targets {
		c.storeTo(t, base+i, line)
	}
	c.fs.freeTo(base)
	return nil
}

// compileIfStmt compiles the condition so its false-jumps skip over
// the then-block (falling through into it on true), with an
// unconditional jump from the end of the then-block over any else
// branch (spec.md §4.3.4 "If statement").
func (c *funcCompiler) compileIfStmt(n *ast.IfStmt) error {
	line := n.Position().Line
	cond, err := c.compileExpr(n.Cond)
	if err != nil {
		return err
	}
	jcond, err := c.toJumpExpr(cond, line)
	if err != nil {
		return err
	}
	falseJumps := c.goIfFalse(jcond)
	if err := c.compileBlock(n.Then); err != nil {
		return err
	}
	if n.Else != nil {
		skipElse := c.fs.emitJump(line)
		c.fs.patchListToHere(falseJumps)
		if err := c.compileStmt(n.Else); err != nil {
			return err
		}
		c.fs.patchJumpToHere(skipElse)
	} else {
		c.fs.patchListToHere(falseJumps)
	}
	return nil
}

// compileWhileStmt: re-test the condition every iteration, falling
// through into the body on true and exiting on false; the body ends
// with an unconditional jump back to the test (spec.md §4.3.4 "While
// statement").
func (c *funcCompiler) compileWhileStmt(n *ast.WhileStmt) error {
	line := n.Position().Line
	testPC := c.fs.pc()
	cond, err := c.compileExpr(n.Cond)
	if err != nil {
		return err
	}
	jcond, err := c.toJumpExpr(cond, line)
	if err != nil {
		return err
	}
	exitJumps := c.goIfFalse(jcond)
	sc := c.fs.openScope(true)
	if err := c.compileStmts(n.Body.Stmts); err != nil {
		return err
	}
	c.fs.closeScope()
	c.fs.patchJumpTo(c.fs.emitJump(line), testPC)
	c.fs.patchListToHere(exitJumps)
	c.fs.patchListToHere(sc.breaks)
	return nil
}

// compileRepeatStmt: the body executes at least once; the condition
// is tested at the end and, crucially, can still see the body's
// locals (spec.md §4.3.4 "Repeat statement"), so the scope stays open
// across the condition test and only closes after it.
func (c *funcCompiler) compileRepeatStmt(n *ast.RepeatStmt) error {
	line := n.Position().Line
	bodyStart := c.fs.pc()
	sc := c.fs.openScope(true)
	if err := c.compileStmts(n.Body.Stmts); err != nil {
		return err
	}
	cond, err := c.compileExpr(n.Cond)
	if err != nil {
		return err
	}
	jcond, err := c.toJumpExpr(cond, line)
	if err != nil {
		return err
	}
	repeatJumps := c.goIfFalse(jcond)
	c.fs.patchListTo(repeatJumps, bodyStart)
	c.fs.closeScope()
	c.fs.patchListToHere(sc.breaks)
	return nil
}

// compileBreakStmt registers a forward jump into the nearest loop
// scope's pending break list, patched once that loop finishes
// compiling (spec.md §4.3.4 "Break statement").
func (c *funcCompiler) compileBreakStmt(n *ast.BreakStmt) error {
	loop := c.fs.currentLoop()
	if loop == nil {
		return newCompileErrorf("break outside a loop at line %d", n.Position().Line)
	}
	loop.breaks = append(loop.breaks, c.fs.emitJump(n.Position().Line))
	return nil
}

// compileNumericForStmt lowers `for i = start, limit[, step] do ... end`
// to FORPREP before the body and FORLOOP after it, over three hidden
// control registers plus the visible loop variable (spec.md §4.3.4
// "Numeric for").
func (c *funcCompiler) compileNumericForStmt(n *ast.NumericForStmt) error {
	line := n.Position().Line
	base, err := c.compileExprList([]ast.Expr{n.Start, n.Limit, stepOrDefault(n.Step, line)}, 3, line)
	if err != nil {
		return err
	}
	sc := c.fs.openScope(true)
	loopVar, err := c.fs.addLocal(n.Var)
	if err != nil {
		return err
	}
	_ = loopVar // always base+3, immediately after the three control regs
	prep := c.fs.emitAsBx(code.OpForPrep, base, 0, line)
	if err := c.compileStmts(n.Body.Stmts); err != nil {
		return err
	}
	loopPC := c.fs.emitAsBx(code.OpForLoop, base, 0, line)
	c.fs.patchJumpTo(prep, loopPC)
	c.fs.patchJumpTo(loopPC, prep+1)
	c.fs.closeScope()
	c.fs.patchListToHere(sc.breaks)
	return nil
}

// stepOrDefault fills in the implicit step of 1 when a numeric for
// loop omits it.
func stepOrDefault(step ast.Expr, line int) ast.Expr {
	if step != nil {
		return step
	}
	return &ast.LiteralExpr{Node: ast.Node{Pos: ast.Pos{Line: line}}, Kind: ast.LiteralNumber, Num: 1}
}

// compileGenericForStmt lowers `for vars in exprs do ... end`: the
// explist evaluates to an iterator function, state, and initial
// control value in three hidden registers, and TFORLOOP drives each
// iteration, storing into the visible loop variables and looping back
// while the first one is non-nil (spec.md §4.3.4 "Generic for").
func (c *funcCompiler) compileGenericForStmt(n *ast.GenericForStmt) error {
	line := n.Position().Line
	base, err := c.compileExprList(n.Exprs, 3, line)
	if err != nil {
		return err
	}
	sc := c.fs.openScope(true)
	for _, name := range n.Names {
		if _, err := c.fs.addLocal(name); err != nil {
			return err
		}
	}
	loopStart := c.fs.emitJump(line)
	bodyStart := c.fs.pc()
	if err := c.compileStmts(n.Body.Stmts); err != nil {
		return err
	}
	c.fs.patchJumpToHere(loopStart)
	c.fs.emitABC(code.OpTForLoop, base, 0, len(n.Names), line)
	jmpBack := c.fs.emitJump(line)
	c.fs.patchJumpTo(jmpBack, bodyStart)
	c.fs.closeScope()
	c.fs.patchListToHere(sc.breaks)
	return nil
}

// compileReturnStmt emits RETURN over the compiled result registers;
// B=0 means "return everything up to the stack top" and is used when
// the last expression is itself a call or `...` (spec.md §4.3.4
// "Return statement", §4.4.2 multi-return forwarding).
func (c *funcCompiler) compileReturnStmt(n *ast.ReturnStmt) error {
	line := n.Position().Line
	mark := c.fs.freeReg
	if len(n.Exprs) == 0 {
		c.fs.emitABC(code.OpReturn, 0, 1, 0, line)
		return nil
	}
	last := n.Exprs[len(n.Exprs)-1]
	if isMultiExpr(last) {
		base, err := c.compileExprList(n.Exprs, -1, line)
		if err != nil {
			return err
		}
		c.fs.emitABC(code.OpReturn, base, 0, 0, line)
		c.fs.freeTo(mark)
		return nil
	}
	base, err := c.compileExprList(n.Exprs, len(n.Exprs), line)
	if err != nil {
		return err
	}
	c.fs.emitABC(code.OpReturn, base, len(n.Exprs)+1, 0, line)
	c.fs.freeTo(mark)
	return nil
}

// compileFuncStmt compiles a function declaration: `function name(...) ... end`
// desugars to assigning a compiled closure to name (or a `.`/`:` chain);
// `function t:m(...)` adds an implicit leading `self` parameter (spec.md
// §4.3.4 "Function declaration").
func (c *funcCompiler) compileFuncStmt(n *ast.FuncStmt) error {
	line := n.Position().Line
	fnExpr := n.Fn
	if n.IsMethod {
		params := make([]string, 0, len(fnExpr.Params)+1)
		params = append(params, "self")
		params = append(params, fnExpr.Params...)
		fnExpr = &ast.FuncExpr{Node: fnExpr.Node, Params: params, IsVararg: fnExpr.IsVararg, Body: fnExpr.Body}
	}
	target, err := c.resolveAssignTarget(n.Target, line)
	if err != nil {
		return err
	}
	d, err := c.compileFuncExpr(fnExpr, funcDeclName(n.Target))
	if err != nil {
		return err
	}
	reg, err := c.exp2anyreg(d, line)
	if err != nil {
		return err
	}
	c.storeTo(target, reg, line)
	return nil
}

// funcDeclName recovers a debug name for a function declaration's
// prototype from its assignment target, for tracebacks.
func funcDeclName(target ast.Expr) string {
	switch t := target.(type) {
	case *ast.VarExpr:
		return t.Name
	case *ast.MemberExpr:
		return t.Name
	default:
		return ""
	}
}
