package compiler

import (
	"luacore/internal/ast"
	"luacore/internal/code"
	"luacore/internal/value"
)

// exprKind classifies how an expression's value is currently held,
// mirroring the reference compiler's expdesc discriminant (the
// original source's ExpressionCompiler works the same shape in terms
// of registers/constants rather than materializing everything
// eagerly).
type exprKind uint8

const (
	exprNil exprKind = iota
	exprTrue
	exprFalse
	exprConst   // info = constant-pool index
	exprLocal   // info = register
	exprUpval   // info = upvalue index
	exprGlobal  // info = constant-pool index of the name
	exprIndexed // info = table register, aux = RK key
	exprCall    // info = pc of the CALL instruction
	exprVararg  // info = pc of the VARARG instruction
	exprReg     // info = register already holding the value (temporary)
	exprJump    // a relational/logical expr with pending true/false jump lists
)

// exprDesc describes one not-yet-materialized expression result.
type exprDesc struct {
	kind      exprKind
	info      int
	aux       int
	trueList  []int
	falseList []int
}

func (e exprDesc) hasJumps() bool { return len(e.trueList) > 0 || len(e.falseList) > 0 }

// compileExpr walks one expression node and returns its description
// without necessarily committing it to a register (spec.md §4.3.3).
func (c *funcCompiler) compileExpr(e ast.Expr) (exprDesc, error) {
	line := e.Position().Line
	switch n := e.(type) {
	case *ast.LiteralExpr:
		return c.compileLiteral(n)
	case *ast.VarExpr:
		return c.compileVar(n)
	case *ast.VarargExpr:
		pc := c.fs.emitABC(code.OpVararg, 0, 2, 0, line)
		return exprDesc{kind: exprVararg, info: pc}, nil
	case *ast.UnaryExpr:
		return c.compileUnary(n)
	case *ast.BinaryExpr:
		return c.compileBinary(n)
	case *ast.CallExpr:
		return c.compileCall(n, 2)
	case *ast.TableExpr:
		return c.compileTable(n)
	case *ast.IndexExpr:
		return c.compileIndex(n)
	case *ast.MemberExpr:
		return c.compileMember(n)
	case *ast.FuncExpr:
		return c.compileFuncExpr(n, "")
	default:
		return exprDesc{}, newCompileErrorf("unsupported expression node at line %d", line)
	}
}

func (c *funcCompiler) compileLiteral(n *ast.LiteralExpr) (exprDesc, error) {
	switch n.Kind {
	case ast.LiteralNil:
		return exprDesc{kind: exprNil}, nil
	case ast.LiteralTrue:
		return exprDesc{kind: exprTrue}, nil
	case ast.LiteralFalse:
		return exprDesc{kind: exprFalse}, nil
	case ast.LiteralNumber:
		idx, err := c.fs.addConstant(value.Number(n.Num))
		if err != nil {
			return exprDesc{}, err
		}
		return exprDesc{kind: exprConst, info: idx}, nil
	case ast.LiteralString:
		idx, err := c.fs.addConstant(c.global.InternString(n.Str))
		if err != nil {
			return exprDesc{}, err
		}
		return exprDesc{kind: exprConst, info: idx}, nil
	default:
		return exprDesc{}, newCompileErrorf("unknown literal kind")
	}
}

// compileVar resolves a name per spec.md §4.3.2: local, then upvalue
// (recursively through enclosing functions), then global.
func (c *funcCompiler) compileVar(n *ast.VarExpr) (exprDesc, error) {
	if reg, ok := c.fs.resolveLocal(n.Name); ok {
		return exprDesc{kind: exprLocal, info: reg}, nil
	}
	if idx, ok := c.fs.resolveUpval(n.Name); ok {
		return exprDesc{kind: exprUpval, info: idx}, nil
	}
	idx, err := c.fs.addConstant(c.global.InternString(n.Name))
	if err != nil {
		return exprDesc{}, err
	}
	return exprDesc{kind: exprGlobal, info: idx}, nil
}

// dischargeToReg materializes e's value into register reg.
func (c *funcCompiler) dischargeToReg(e exprDesc, reg int, line int) error {
	switch e.kind {
	case exprNil:
		c.fs.emitABC(code.OpLoadNil, reg, reg, 0, line)
	case exprTrue:
		c.fs.emitABC(code.OpLoadBool, reg, 1, 0, line)
	case exprFalse:
		c.fs.emitABC(code.OpLoadBool, reg, 0, 0, line)
	case exprConst:
		c.fs.emitABx(code.OpLoadK, reg, e.info, line)
	case exprLocal:
		if e.info != reg {
			c.fs.emitABC(code.OpMove, reg, e.info, 0, line)
		}
	case exprUpval:
		c.fs.emitABC(code.OpGetUpval, reg, e.info, 0, line)
	case exprGlobal:
		c.fs.emitABx(code.OpGetGlobal, reg, e.info, line)
	case exprIndexed:
		c.fs.emitABC(code.OpGetTable, reg, e.info, e.aux, line)
	case exprCall:
		ins := c.fs.code[e.info]
		base := ins.A()
		c.fs.code[e.info] = code.EncodeABC(code.OpCall, base, ins.B(), 2)
		if reg != base {
			c.fs.emitABC(code.OpMove, reg, base, 0, line)
		}
	case exprVararg:
		c.fs.code[e.info] = code.EncodeABC(code.OpVararg, reg, 2, 0)
	case exprReg:
		if e.info != reg {
			c.fs.emitABC(code.OpMove, reg, e.info, 0, line)
		}
	case exprJump:
		return c.dischargeJumpToReg(e, reg, line)
	}
	return nil
}

// dischargeJumpToReg materializes a relational/logical expression's
// boolean result into reg using the TEST/TESTSET+JMP+LOADBOOL pattern
// the comparison opcodes rely on (spec.md §4.3.3, §4.4.4).
func (c *funcCompiler) dischargeJumpToReg(e exprDesc, reg int, line int) error {
	loadFalse := c.fs.emitABC(code.OpLoadBool, reg, 0, 1, line)
	loadTrue := c.fs.emitABC(code.OpLoadBool, reg, 1, 0, line)
	c.fs.patchListTo(e.trueList, loadTrue)
	c.fs.patchListTo(e.falseList, loadFalse)
	return nil
}

// exp2nextreg materializes e into a freshly reserved register and
// returns it.
func (c *funcCompiler) exp2nextreg(e exprDesc, line int) (int, error) {
	reg, err := c.fs.reserveReg(1)
	if err != nil {
		return 0, err
	}
	if err := c.dischargeToReg(e, reg, line); err != nil {
		return 0, err
	}
	return reg, nil
}

// exp2anyreg returns a register already holding e's value if one is
// cheaply available (already a local or temporary), otherwise
// materializes it into a new one.
func (c *funcCompiler) exp2anyreg(e exprDesc, line int) (int, error) {
	if e.kind == exprLocal && !e.hasJumps() {
		return e.info, nil
	}
	return c.exp2nextreg(e, line)
}

// exp2RK returns an RK-encoded operand for e: a constant-pool RK
// reference when e is already a constant, otherwise a register.
func (c *funcCompiler) exp2RK(e exprDesc, line int) (int, error) {
	if e.kind == exprConst && e.info <= code.MaxArgRegisterOrConstant {
		return code.RKAsConstant(e.info), nil
	}
	if e.kind == exprNil || e.kind == exprTrue || e.kind == exprFalse {
		reg, err := c.exp2nextreg(e, line)
		if err != nil {
			return 0, err
		}
		return code.RKAsRegister(reg), nil
	}
	reg, err := c.exp2anyreg(e, line)
	if err != nil {
		return 0, err
	}
	return code.RKAsRegister(reg), nil
}

func (c *funcCompiler) compileUnary(n *ast.UnaryExpr) (exprDesc, error) {
	line := n.Position().Line
	operand, err := c.compileExpr(n.X)
	if err != nil {
		return exprDesc{}, err
	}
	reg, err := c.exp2anyreg(operand, line)
	if err != nil {
		return exprDesc{}, err
	}
	dst, err := c.fs.reserveRegIfTemp(reg)
	if err != nil {
		return exprDesc{}, err
	}
	var op code.Opcode
	switch n.Op {
	case ast.UnaryMinus:
		op = code.OpUnm
	case ast.UnaryNot:
		op = code.OpNot
	case ast.UnaryLen:
		op = code.OpLen
	default:
		return exprDesc{}, newCompileErrorf("unknown unary operator at line %d", line)
	}
	c.fs.emitABC(op, dst, reg, 0, line)
	return exprDesc{kind: exprReg, info: dst}, nil
}

// reserveRegIfTemp returns reg itself if it is already at the free-reg
// top (so the unary result overwrites its own operand in place,
// avoiding wasting a register), otherwise reserves a new one.
func (fs *funcState) reserveRegIfTemp(reg int) (int, error) {
	if reg == fs.freeReg-1 {
		return reg, nil
	}
	return fs.reserveReg(1)
}

func (c *funcCompiler) compileBinary(n *ast.BinaryExpr) (exprDesc, error) {
	line := n.Position().Line
	switch n.Op {
	case ast.BinAnd, ast.BinOr:
		return c.compileLogical(n)
	case ast.BinEq, ast.BinNe, ast.BinLt, ast.BinLe, ast.BinGt, ast.BinGe:
		return c.compileComparison(n)
	case ast.BinConcat:
		return c.compileConcat(n)
	default:
		return c.compileArith(n)
	}
}

var arithOp = map[ast.BinaryOp]code.Opcode{
	ast.BinAdd: code.OpAdd,
	ast.BinSub: code.OpSub,
	ast.BinMul: code.OpMul,
	ast.BinDiv: code.OpDiv,
	ast.BinMod: code.OpMod,
	ast.BinPow: code.OpPow,
}

func (c *funcCompiler) compileArith(n *ast.BinaryExpr) (exprDesc, error) {
	line := n.Position().Line
	op, ok := arithOp[n.Op]
	if !ok {
		return exprDesc{}, newCompileErrorf("unknown arithmetic operator at line %d", line)
	}
	l, err := c.compileExpr(n.L)
	if err != nil {
		return exprDesc{}, err
	}
	rkL, err := c.exp2RK(l, line)
	if err != nil {
		return exprDesc{}, err
	}
	r, err := c.compileExpr(n.R)
	if err != nil {
		return exprDesc{}, err
	}
	rkR, err := c.exp2RK(r, line)
	if err != nil {
		return exprDesc{}, err
	}
	dst, err := c.fs.reserveReg(1)
	if err != nil {
		return exprDesc{}, err
	}
	c.fs.emitABC(op, dst, rkL, rkR, line)
	return exprDesc{kind: exprReg, info: dst}, nil
}

// compileComparison emits the {cmp; JMP} test-instruction pair spec.md
// §4.3.3/§4.4.4 describes: the comparison result XORed with A's test
// sense decides whether the following JMP is taken. `!=` and `>`/`>=`
// are synthesized by swapping operands or flipping the sense, matching
// Lua 5.1's own compiler (there is no distinct NE/GT/GE opcode).
func (c *funcCompiler) compileComparison(n *ast.BinaryExpr) (exprDesc, error) {
	line := n.Position().Line
	op, sense, swap := comparisonFor(n.Op)
	left, right := n.L, n.R
	if swap {
		left, right = right, left
	}
	l, err := c.compileExpr(left)
	if err != nil {
		return exprDesc{}, err
	}
	rkL, err := c.exp2RK(l, line)
	if err != nil {
		return exprDesc{}, err
	}
	r, err := c.compileExpr(right)
	if err != nil {
		return exprDesc{}, err
	}
	rkR, err := c.exp2RK(r, line)
	if err != nil {
		return exprDesc{}, err
	}
	c.fs.emitABC(op, sense, rkL, rkR, line)
	jmp := c.fs.emitJump(line)
	return exprDesc{kind: exprJump, trueList: []int{jmp}}, nil
}

func comparisonFor(op ast.BinaryOp) (opcode code.Opcode, sense int, swap bool) {
	switch op {
	case ast.BinEq:
		return code.OpEq, 1, false
	case ast.BinNe:
		return code.OpEq, 0, false
	case ast.BinLt:
		return code.OpLt, 1, false
	case ast.BinLe:
		return code.OpLe, 1, false
	case ast.BinGt:
		return code.OpLt, 1, true
	case ast.BinGe:
		return code.OpLe, 1, true
	}
	return code.OpEq, 1, false
}

// compileLogical implements short-circuit `and`/`or` via pending jump
// lists (spec.md §4.3.3): the left operand is tested; depending on the
// operator, the list of "skip right operand" branches is carried
// forward until the right operand is compiled, at which point the
// lists merge.
func (c *funcCompiler) compileLogical(n *ast.BinaryExpr) (exprDesc, error) {
	line := n.Position().Line
	l, err := c.compileExpr(n.L)
	if err != nil {
		return exprDesc{}, err
	}
	lj, err := c.toJumpExpr(l, line)
	if err != nil {
		return exprDesc{}, err
	}
	// `and` evaluates r only when l is true, so l's false-outcome jumps
	// (inverting any pending true-jumps) carry forward unpatched to
	// short-circuit straight past r; its true-outcome is the implicit
	// fallthrough into r. `or` is the mirror image.
	if n.Op == ast.BinAnd {
		lj = exprDesc{falseList: c.goIfFalse(lj)}
	} else {
		lj = exprDesc{trueList: c.goIfTrue(lj)}
	}
	r, err := c.compileExpr(n.R)
	if err != nil {
		return exprDesc{}, err
	}
	rj, err := c.toJumpExpr(r, line)
	if err != nil {
		return exprDesc{}, err
	}
	rj.trueList = append(rj.trueList, lj.trueList...)
	rj.falseList = append(rj.falseList, lj.falseList...)
	return rj, nil
}

// toJumpExpr converts any expression into test-instruction form (a
// TEST emitting a JMP guarded on truthiness) so it can participate in
// and/or jump-list merging. C=1 means the JMP fires when R(A) is
// truthy, matching the comparison opcodes' convention that a trueList
// entry always fires on a true outcome.
func (c *funcCompiler) toJumpExpr(e exprDesc, line int) (exprDesc, error) {
	if e.kind == exprJump {
		return e, nil
	}
	reg, err := c.exp2anyreg(e, line)
	if err != nil {
		return exprDesc{}, err
	}
	c.fs.emitABC(code.OpTest, reg, 0, 1, line)
	jmp := c.fs.emitJump(line)
	return exprDesc{kind: exprJump, trueList: []int{jmp}}, nil
}

// invertJumps flips the sense of the comparison or test instruction
// immediately preceding each jump in list, so a jump that fired on
// true now fires on false (and vice versa) without changing its
// target once patched. Used to convert a trueList into an equivalent
// falseList (or back) when a condition's polarity needs flipping:
// `and` must skip its right operand when the left is false, `or` must
// skip it when the left is true, and an `if`/`while` condition must
// skip its body when false — all the inverse of what a bare
// comparison or TEST naturally hands back.
func (c *funcCompiler) invertJumps(list []int) []int {
	for _, pc := range list {
		ins := c.fs.code[pc-1]
		switch ins.Opcode() {
		case code.OpEq, code.OpLt, code.OpLe:
			c.fs.code[pc-1] = code.EncodeABC(ins.Opcode(), 1-ins.A(), ins.B(), ins.C())
		case code.OpTest:
			c.fs.code[pc-1] = code.EncodeABC(ins.Opcode(), ins.A(), ins.B(), 1-ins.C())
		}
	}
	return list
}

// goIfFalse returns the jumps of e that fire exactly when e is false,
// inverting any pending true-jumps in place to do so.
func (c *funcCompiler) goIfFalse(e exprDesc) []int {
	return append(e.falseList, c.invertJumps(e.trueList)...)
}

// goIfTrue returns the jumps of e that fire exactly when e is true.
func (c *funcCompiler) goIfTrue(e exprDesc) []int {
	return append(e.trueList, c.invertJumps(e.falseList)...)
}

// compileConcat emits CONCAT over a contiguous register range, folding
// a chain of `..` (right-associative in the AST as nested BinaryExpr)
// into one instruction as spec.md §4.3.3 requires.
func (c *funcCompiler) compileConcat(n *ast.BinaryExpr) (exprDesc, error) {
	line := n.Position().Line
	first := c.fs.freeReg
	if err := c.compileConcatChain(n, line); err != nil {
		return exprDesc{}, err
	}
	last := c.fs.freeReg - 1
	c.fs.freeTo(first)
	dst, err := c.fs.reserveReg(1)
	if err != nil {
		return exprDesc{}, err
	}
	c.fs.emitABC(code.OpConcat, dst, first, last, line)
	return exprDesc{kind: exprReg, info: dst}, nil
}

func (c *funcCompiler) compileConcatChain(e ast.Expr, line int) error {
	if bin, ok := e.(*ast.BinaryExpr); ok && bin.Op == ast.BinConcat {
		if err := c.compileConcatChain(bin.L, line); err != nil {
			return err
		}
		return c.compileConcatChain(bin.R, line)
	}
	mark := c.fs.freeReg
	d, err := c.compileExpr(e)
	if err != nil {
		return err
	}
	c.fs.freeTo(mark)
	_, err = c.exp2nextreg(d, line)
	return err
}

func (c *funcCompiler) compileIndex(n *ast.IndexExpr) (exprDesc, error) {
	line := n.Position().Line
	x, err := c.compileExpr(n.X)
	if err != nil {
		return exprDesc{}, err
	}
	xr, err := c.exp2anyreg(x, line)
	if err != nil {
		return exprDesc{}, err
	}
	k, err := c.compileExpr(n.K)
	if err != nil {
		return exprDesc{}, err
	}
	rk, err := c.exp2RK(k, line)
	if err != nil {
		return exprDesc{}, err
	}
	return exprDesc{kind: exprIndexed, info: xr, aux: rk}, nil
}

func (c *funcCompiler) compileMember(n *ast.MemberExpr) (exprDesc, error) {
	line := n.Position().Line
	x, err := c.compileExpr(n.X)
	if err != nil {
		return exprDesc{}, err
	}
	xr, err := c.exp2anyreg(x, line)
	if err != nil {
		return exprDesc{}, err
	}
	kIdx, err := c.fs.addConstant(c.global.InternString(n.Name))
	if err != nil {
		return exprDesc{}, err
	}
	return exprDesc{kind: exprIndexed, info: xr, aux: code.RKAsConstant(kIdx)}, nil
}
