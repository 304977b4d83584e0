package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luacore/internal/ast"
	"luacore/internal/code"
	"luacore/internal/gc"
)

func num(n float64) ast.Expr {
	return &ast.LiteralExpr{Kind: ast.LiteralNumber, Num: n}
}

func TestCompileReturnArithmetic(t *testing.T) {
	global := gc.NewGlobalState(gc.DefaultParams())
	chunk := &ast.Block{Stmts: []ast.Stmt{
		&ast.ReturnStmt{Exprs: []ast.Expr{
			&ast.BinaryExpr{Op: ast.BinAdd, L: num(1), R: num(2)},
		}},
	}}

	proto, err := Compile(global, chunk, "chunk")
	require.NoError(t, err)
	require.NotEmpty(t, proto.Code)

	last := proto.Code[len(proto.Code)-1]
	assert.Equal(t, code.OpReturn, last.Opcode())

	var sawAdd bool
	for _, ins := range proto.Code {
		if ins.Opcode() == code.OpAdd {
			sawAdd = true
		}
	}
	assert.True(t, sawAdd, "1+2 must lower to an ADD instruction")
}

func TestCompileIfEmitsConditionalJump(t *testing.T) {
	global := gc.NewGlobalState(gc.DefaultParams())
	chunk := &ast.Block{Stmts: []ast.Stmt{
		&ast.LocalStmt{Names: []string{"x"}, Exprs: []ast.Expr{num(1)}},
		&ast.IfStmt{
			Cond: &ast.BinaryExpr{Op: ast.BinLt, L: &ast.VarExpr{Name: "x"}, R: num(10)},
			Then: &ast.Block{Stmts: []ast.Stmt{
				&ast.AssignStmt{
					Targets: []ast.Expr{&ast.VarExpr{Name: "x"}},
					Exprs:   []ast.Expr{num(2)},
				},
			}},
		},
	}}

	proto, err := Compile(global, chunk, "chunk")
	require.NoError(t, err)

	var sawLt, sawJmp bool
	for _, ins := range proto.Code {
		switch ins.Opcode() {
		case code.OpLt:
			sawLt = true
		case code.OpJmp:
			sawJmp = true
		}
	}
	assert.True(t, sawLt, "comparison must lower to LT")
	assert.True(t, sawJmp, "the if must emit a patched jump around the then-block")
}

func TestCompileNumericForLoopShape(t *testing.T) {
	global := gc.NewGlobalState(gc.DefaultParams())
	chunk := &ast.Block{Stmts: []ast.Stmt{
		&ast.NumericForStmt{
			Var:   "i",
			Start: num(1),
			Limit: num(10),
			Body:  &ast.Block{},
		},
	}}

	proto, err := Compile(global, chunk, "chunk")
	require.NoError(t, err)

	var prepIdx, loopIdx = -1, -1
	for i, ins := range proto.Code {
		switch ins.Opcode() {
		case code.OpForPrep:
			prepIdx = i
		case code.OpForLoop:
			loopIdx = i
		}
	}
	require.GreaterOrEqual(t, prepIdx, 0)
	require.GreaterOrEqual(t, loopIdx, 0)
	assert.Less(t, prepIdx, loopIdx)

	prep := proto.Code[prepIdx]
	assert.Equal(t, loopIdx, prepIdx+1+prep.SBx(), "FORPREP must jump exactly to FORLOOP")
}
