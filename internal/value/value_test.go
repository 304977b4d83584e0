package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRawEqual(t *testing.T) {
	assert.True(t, RawEqual(Nil, Nil))
	assert.True(t, RawEqual(Bool(true), Bool(true)))
	assert.False(t, RawEqual(Bool(true), Bool(false)))
	assert.True(t, RawEqual(Number(1), Number(1)))
	assert.False(t, RawEqual(Number(1), Number(2)))
	assert.False(t, RawEqual(Nil, Bool(false)), "nil and false are distinct per spec.md §4.1")

	nan := Number(nan())
	assert.False(t, RawEqual(nan, nan), "NaN != NaN")
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestLessThanDefinedOnlyForMatchingKinds(t *testing.T) {
	r, ok := LessThan(Number(1), Number(2))
	assert.True(t, ok)
	assert.True(t, r)

	s1 := StringValue(&String{Bytes: "abc"})
	s2 := StringValue(&String{Bytes: "abd"})
	r, ok = LessThan(s1, s2)
	assert.True(t, ok)
	assert.True(t, r)

	_, ok = LessThan(Number(1), s1)
	assert.False(t, ok, "cross-kind ordering is undefined; caller must fall back to __lt")
}

func TestTruthy(t *testing.T) {
	assert.False(t, Nil.Truthy())
	assert.False(t, Bool(false).Truthy())
	assert.True(t, Bool(true).Truthy())
	assert.True(t, Number(0).Truthy(), "0 is truthy in Lua, unlike C/Go-style languages")
}
