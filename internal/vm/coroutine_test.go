package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luacore/internal/luaerr"
	"luacore/internal/value"
)

func TestResumeYieldRoundTrip(t *testing.T) {
	v, g, main := newTestVM(t)

	body := g.Collector.NewCClosure(func(th *value.Thread, args []value.Value) ([]value.Value, error) {
		first := args[0].AsNumber()
		resumed, err := v.Yield(th, []value.Value{value.Number(first + 1)})
		if err != nil {
			return nil, err
		}
		return []value.Value{value.Number(resumed[0].AsNumber() * 10)}, nil
	}, "body", 0)

	co := v.NewCoroutine(value.CClosureValue(body))
	assert.Equal(t, value.StatusSuspended, v.Status(co))

	ok, results := v.Resume(main, co, []value.Value{value.Number(1)})
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, float64(2), results[0].AsNumber())
	assert.Equal(t, value.StatusSuspended, v.Status(co))
	assert.Equal(t, value.StatusRunning, main.Status)

	ok, results = v.Resume(main, co, []value.Value{value.Number(5)})
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, float64(50), results[0].AsNumber())
	assert.Equal(t, value.StatusDead, v.Status(co))
}

func TestResumeDeadCoroutineFails(t *testing.T) {
	v, g, main := newTestVM(t)
	body := g.Collector.NewCClosure(func(th *value.Thread, args []value.Value) ([]value.Value, error) {
		return nil, nil
	}, "body", 0)
	co := v.NewCoroutine(value.CClosureValue(body))

	ok, _ := v.Resume(main, co, nil)
	require.True(t, ok)
	assert.Equal(t, value.StatusDead, v.Status(co))

	ok, results := v.Resume(main, co, nil)
	assert.False(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, "cannot resume dead coroutine", results[0].AsString().Bytes)
}

func TestYieldOutsideCoroutineErrors(t *testing.T) {
	v, _, main := newTestVM(t)
	_, err := v.Yield(main, nil)
	require.Error(t, err)
}

func TestResumeErrorSurfacesAsNotOk(t *testing.T) {
	v, g, main := newTestVM(t)
	boom := g.Collector.NewCClosure(func(th *value.Thread, args []value.Value) ([]value.Value, error) {
		return nil, luaerr.New(luaerr.KindRuntimeError, g.InternString("boom"))
	}, "boom", 0)
	co := v.NewCoroutine(value.CClosureValue(boom))

	ok, results := v.Resume(main, co, nil)
	assert.False(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, "boom", results[0].AsString().Bytes)
	assert.Equal(t, value.StatusError, v.Status(co))
}
