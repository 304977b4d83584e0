package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luacore/internal/code"
	"luacore/internal/gc"
	"luacore/internal/luaerr"
	"luacore/internal/value"
)

func newTestVM(t *testing.T) (*VM, *gc.GlobalState, *value.Thread) {
	t.Helper()
	g := gc.NewGlobalState(gc.DefaultParams())
	return New(g), g, g.MainThread
}

func TestIndexFallsBackToMetatableFunction(t *testing.T) {
	v, g, th := newTestVM(t)

	tbl := g.Collector.NewTable()
	meta := g.Collector.NewTable()
	indexFn := g.Collector.NewCClosure(func(th *value.Thread, args []value.Value) ([]value.Value, error) {
		return []value.Value{value.Number(42)}, nil
	}, "index", 0)
	meta.Set(g.MetaIndex, value.CClosureValue(indexFn))
	tbl.Meta = meta

	got, err := v.index(th, value.TableValue(tbl), g.InternString("missing"))
	require.NoError(t, err)
	assert.Equal(t, float64(42), got.AsNumber())
}

func TestIndexRawHitSkipsMetatable(t *testing.T) {
	v, g, th := newTestVM(t)
	tbl := g.Collector.NewTable()
	tbl.Set(g.InternString("k"), value.Number(7))

	got, err := v.index(th, value.TableValue(tbl), g.InternString("k"))
	require.NoError(t, err)
	assert.Equal(t, float64(7), got.AsNumber())
}

func TestArithMetamethodFallback(t *testing.T) {
	v, g, th := newTestVM(t)
	ud := g.Collector.NewUserData(nil)
	meta := g.Collector.NewTable()
	meta.Set(g.MetaAdd, value.CClosureValue(g.Collector.NewCClosure(
		func(th *value.Thread, args []value.Value) ([]value.Value, error) {
			return []value.Value{value.Number(100)}, nil
		}, "add", 0)))
	ud.Meta = meta

	got, err := v.arith(th, code.OpAdd, value.UserDataValue(ud), value.Number(1))
	require.NoError(t, err)
	assert.Equal(t, float64(100), got.AsNumber())
}

func TestArithOnNonNumberWithoutMetamethodErrors(t *testing.T) {
	v, g, th := newTestVM(t)
	_, err := v.arith(th, code.OpAdd, value.TableValue(g.Collector.NewTable()), value.Number(1))
	require.Error(t, err)
	le, ok := err.(*luaerr.Error)
	require.True(t, ok)
	assert.Equal(t, luaerr.KindArithError, le.Kind)
}

func TestConcatCoercesNumbers(t *testing.T) {
	v, g, th := newTestVM(t)
	result, err := v.concatRange(th, []value.Value{g.InternString("n="), value.Number(3)})
	require.NoError(t, err)
	assert.Equal(t, "n=3", result.AsString().Bytes)
}

func TestProtectedCallRecoversError(t *testing.T) {
	v, g, th := newTestVM(t)
	boom := g.Collector.NewCClosure(func(th *value.Thread, args []value.Value) ([]value.Value, error) {
		return nil, luaerr.New(luaerr.KindRuntimeError, g.InternString("boom"))
	}, "boom", 0)

	ok, results, errVal := v.ProtectedCall(th, value.CClosureValue(boom), nil)
	assert.False(t, ok)
	assert.Nil(t, results)
	assert.Equal(t, "boom", errVal.AsString().Bytes)
}

func TestCallNonCallableErrors(t *testing.T) {
	v, _, th := newTestVM(t)
	_, err := v.Call(th, value.Number(1), nil)
	require.Error(t, err)
	le, ok := err.(*luaerr.Error)
	require.True(t, ok)
	assert.Equal(t, luaerr.KindCallNonCallable, le.Kind)
}
