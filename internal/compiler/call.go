package compiler

import (
	"luacore/internal/ast"
	"luacore/internal/code"
)

// compileCall lowers a call or method-call expression into the
// contiguous register block CALL expects (spec.md §4.3.3: "allocate a
// contiguous register block [R, R+1+n_args), with the function at
// R"). nResults is the number of values the caller wants (2 means "1
// value", matching CALL's own B/C encoding where 0 means "all"); pass
// 0 to request "all returns" (multi-return forwarding).
func (c *funcCompiler) compileCall(n *ast.CallExpr, nResults int) (exprDesc, error) {
	line := n.Position().Line
	base := c.fs.freeReg

	if n.IsMethod {
		self, err := c.compileExpr(n.Fn)
		if err != nil {
			return exprDesc{}, err
		}
		selfReg, err := c.exp2anyreg(self, line)
		if err != nil {
			return exprDesc{}, err
		}
		kIdx, err := c.fs.addConstant(c.global.InternString(n.MethodName))
		if err != nil {
			return exprDesc{}, err
		}
		c.fs.freeTo(base)
		fnReg, err := c.fs.reserveReg(2)
		if err != nil {
			return exprDesc{}, err
		}
		c.fs.emitABC(code.OpSelf, fnReg, selfReg, code.RKAsConstant(kIdx), line)
		base = fnReg
	} else {
		fnExpr, err := c.compileExpr(n.Fn)
		if err != nil {
			return exprDesc{}, err
		}
		c.fs.freeTo(base)
		if _, err := c.exp2nextreg(fnExpr, line); err != nil {
			return exprDesc{}, err
		}
	}

	nargs, multiArgs, err := c.compileArgList(n.Args, line)
	if err != nil {
		return exprDesc{}, err
	}

	b := nargs + 1
	if n.IsMethod {
		b++ // SELF's object sits at base+1 as the implicit first argument
	}
	if multiArgs {
		b = 0
	}
	pc := c.fs.emitABC(code.OpCall, base, b, nResults, line)
	c.fs.freeTo(base + 1)
	return exprDesc{kind: exprCall, info: pc}, nil
}

// compileArgList compiles a call's argument list into consecutive
// registers. If the last argument is itself a call or `...` it is
// compiled in multi-value form so it can forward "all values up to
// top" (spec.md §4.3.3); multiArgs reports whether that happened, in
// which case nargs only counts the fixed-arity prefix.
func (c *funcCompiler) compileArgList(args []ast.Expr, line int) (nargs int, multiArgs bool, err error) {
	start := c.fs.freeReg
	for i, a := range args {
		last := i == len(args)-1
		if last {
			if isMultiExpr(a) {
				d, err := c.compileMultiExpr(a)
				if err != nil {
					return 0, false, err
				}
				if err := c.dischargeMultiToNextReg(d, line); err != nil {
					return 0, false, err
				}
				return i, true, nil
			}
		}
		d, err := c.compileExpr(a)
		if err != nil {
			return 0, false, err
		}
		c.fs.freeTo(start + i)
		if _, err := c.exp2nextreg(d, line); err != nil {
			return 0, false, err
		}
	}
	return len(args), false, nil
}

// isMultiExpr reports whether e can produce more than one value at
// runtime (a call or `...`), relevant only when e is the last entry of
// an expression list (spec.md §4.3.3).
func isMultiExpr(e ast.Expr) bool {
	switch e.(type) {
	case *ast.CallExpr, *ast.VarargExpr:
		return true
	}
	return false
}

// compileMultiExpr compiles a call or vararg expression in a form that
// requests "all values" (B or B2=0) rather than truncating to one.
func (c *funcCompiler) compileMultiExpr(e ast.Expr) (exprDesc, error) {
	switch n := e.(type) {
	case *ast.CallExpr:
		return c.compileCall(n, 0)
	case *ast.VarargExpr:
		pc := c.fs.emitABC(code.OpVararg, 0, 0, 0, n.Position().Line)
		return exprDesc{kind: exprVararg, info: pc}, nil
	}
	return c.compileExpr(e)
}

// dischargeMultiToNextReg finishes wiring a multi-value CALL/VARARG
// already compiled to request "all returns" (C or B2 = 0): a CALL's
// results land starting at its own base register automatically, so
// only VARARG (which has no base of its own) needs its destination
// register pinned to the current free-register top.
func (c *funcCompiler) dischargeMultiToNextReg(e exprDesc, line int) error {
	if e.kind == exprVararg {
		c.fs.code[e.info] = code.EncodeABC(code.OpVararg, c.fs.freeReg, 0, 0)
	}
	return nil
}
