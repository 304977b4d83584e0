package luacore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luacore/internal/ast"
	"luacore/internal/gc"
	"luacore/internal/luaerr"
	"luacore/internal/value"
)

func num(n float64) ast.Expr {
	return &ast.LiteralExpr{Kind: ast.LiteralNumber, Num: n}
}

func vr(name string) ast.Expr {
	return &ast.VarExpr{Name: name}
}

// TestClosureSharesUpvalueAcrossCalls builds, by hand, the equivalent of:
//
//	local n = 0
//	local inc = function() n = n + 1; return n end
//	return inc
//
// then calls the returned closure twice and checks the shared upvalue
// persists between calls.
func TestClosureSharesUpvalueAcrossCalls(t *testing.T) {
	incBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.AssignStmt{
			Targets: []ast.Expr{vr("n")},
			Exprs:   []ast.Expr{&ast.BinaryExpr{Op: ast.BinAdd, L: vr("n"), R: num(1)}},
		},
		&ast.ReturnStmt{Exprs: []ast.Expr{vr("n")}},
	}}

	chunk := &ast.Block{Stmts: []ast.Stmt{
		&ast.LocalStmt{Names: []string{"n"}, Exprs: []ast.Expr{num(0)}},
		&ast.LocalStmt{Names: []string{"inc"}, Exprs: []ast.Expr{
			&ast.FuncExpr{Body: incBody},
		}},
		&ast.ReturnStmt{Exprs: []ast.Expr{vr("inc")}},
	}}

	st := New(gc.DefaultParams())
	chunkFn, err := st.Load(chunk, "chunk")
	require.NoError(t, err)

	results, err := st.Call(chunkFn)
	require.NoError(t, err)
	require.Len(t, results, 1)
	inc := results[0]

	r1, err := st.Call(inc)
	require.NoError(t, err)
	require.Len(t, r1, 1)
	assert.Equal(t, float64(1), r1[0].AsNumber())

	r2, err := st.Call(inc)
	require.NoError(t, err)
	require.Len(t, r2, 1)
	assert.Equal(t, float64(2), r2[0].AsNumber(), "the upvalue must persist across separate calls")
}

// TestPCallRecoversRuntimeError exercises PCall around a call that
// indexes a nil value, which the VM must turn into a caught error
// rather than propagating it out of PCall.
func TestPCallRecoversRuntimeError(t *testing.T) {
	badBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.LocalStmt{Names: []string{"t"}, Exprs: []ast.Expr{&ast.LiteralExpr{Kind: ast.LiteralNil}}},
		&ast.ReturnStmt{Exprs: []ast.Expr{&ast.IndexExpr{X: vr("t"), K: num(1)}}},
	}}

	chunk := &ast.Block{Stmts: []ast.Stmt{
		&ast.LocalStmt{Names: []string{"bad"}, Exprs: []ast.Expr{&ast.FuncExpr{Body: badBody}}},
		&ast.ReturnStmt{Exprs: []ast.Expr{vr("bad")}},
	}}

	st := New(gc.DefaultParams())
	chunkFn, err := st.Load(chunk, "chunk")
	require.NoError(t, err)

	results, err := st.Call(chunkFn)
	require.NoError(t, err)
	bad := results[0]

	ok, _, errVal := st.PCall(bad)
	assert.False(t, ok)
	assert.False(t, errVal.IsNil())
}

// TestErrorAccumulatesTracebackAcrossNestedCalls checks that an error
// raised deep inside a call chain carries one traceback frame per
// execute frame it unwound through (innermost first), not just the
// innermost one.
func TestErrorAccumulatesTracebackAcrossNestedCalls(t *testing.T) {
	innerBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.LocalStmt{Names: []string{"t"}, Exprs: []ast.Expr{&ast.LiteralExpr{Kind: ast.LiteralNil}}},
		&ast.ReturnStmt{Exprs: []ast.Expr{&ast.IndexExpr{X: vr("t"), K: num(1)}}},
	}}
	outerBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.ReturnStmt{Exprs: []ast.Expr{&ast.CallExpr{Fn: vr("inner")}}},
	}}

	chunk := &ast.Block{Stmts: []ast.Stmt{
		&ast.LocalStmt{Names: []string{"inner"}, Exprs: []ast.Expr{&ast.FuncExpr{Body: innerBody}}},
		&ast.LocalStmt{Names: []string{"outer"}, Exprs: []ast.Expr{&ast.FuncExpr{Body: outerBody}}},
		&ast.ReturnStmt{Exprs: []ast.Expr{vr("outer")}},
	}}

	st := New(gc.DefaultParams())
	chunkFn, err := st.Load(chunk, "chunk")
	require.NoError(t, err)

	results, err := st.Call(chunkFn)
	require.NoError(t, err)
	outer := results[0]

	_, err = st.Call(outer)
	require.Error(t, err)
	le, ok := err.(*luaerr.Error)
	require.True(t, ok)
	assert.True(t, len(le.Traceback) >= 2, "expected a traceback frame per unwound call, got %v", le.Traceback)
}

// TestCoroutineYieldResumeRoundTrip exercises the Lua-visible
// coroutine.create/resume/yield/status surface end to end: a
// coroutine body (itself a registered native function, since there is
// no parser to compile a Lua-source body with) that yields once, then
// returns, driven entirely through the "coroutine" global table
// registerCoroutineLibrary installs.
func TestCoroutineYieldResumeRoundTrip(t *testing.T) {
	st := New(gc.DefaultParams())
	coroutineLib := st.Globals().Get(st.Global.InternString("coroutine")).AsTable()
	require.NotNil(t, coroutineLib)

	create := coroutineLib.Get(st.Global.InternString("create"))
	resume := coroutineLib.Get(st.Global.InternString("resume"))
	status := coroutineLib.Get(st.Global.InternString("status"))

	body := value.NativeFunc(func(th *value.Thread, args []value.Value) ([]value.Value, error) {
		// Must route through the executing coroutine's own thread (th),
		// not st.Main: yield suspends whichever thread is actually
		// running, and that is co here, not the host's main thread.
		yieldFn := coroutineLib.Get(st.Global.InternString("yield"))
		resumed, err := st.vm.Call(th, yieldFn, []value.Value{value.Number(args[0].AsNumber() + 1)})
		if err != nil {
			return nil, err
		}
		return []value.Value{value.Number(resumed[0].AsNumber() * 10)}, nil
	})
	st.Register("body", body)
	bodyFn := st.Globals().Get(st.Global.InternString("body"))

	createResults, err := st.Call(create, bodyFn)
	require.NoError(t, err)
	co := createResults[0]
	require.Equal(t, value.KindThread, co.Kind())

	statusResults, err := st.Call(status, co)
	require.NoError(t, err)
	assert.Equal(t, "suspended", statusResults[0].AsString().Bytes)

	r1, err := st.Call(resume, co, value.Number(1))
	require.NoError(t, err)
	require.True(t, r1[0].Truthy())
	assert.Equal(t, float64(2), r1[1].AsNumber())

	r2, err := st.Call(resume, co, value.Number(5))
	require.NoError(t, err)
	require.True(t, r2[0].Truthy())
	assert.Equal(t, float64(50), r2[1].AsNumber())

	statusResults, err = st.Call(status, co)
	require.NoError(t, err)
	assert.Equal(t, "dead", statusResults[0].AsString().Bytes)
}

// TestRegisterInstallsCallableGlobal exercises Register/Globals: a
// native Go function installed under a name must be reachable both
// directly and through the interpreter's globals table.
func TestRegisterInstallsCallableGlobal(t *testing.T) {
	st := New(gc.DefaultParams())
	st.Register("double", func(th *value.Thread, args []value.Value) ([]value.Value, error) {
		return []value.Value{value.Number(args[0].AsNumber() * 2)}, nil
	})

	fn := st.Globals().Get(st.Global.InternString("double"))
	require.Equal(t, value.KindFunction, fn.Kind())

	results, err := st.Call(fn, value.Number(21))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, float64(42), results[0].AsNumber())
}
