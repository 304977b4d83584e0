package vm

import (
	"math"
	"strconv"
	"strings"

	"luacore/internal/code"
	"luacore/internal/luaerr"
	"luacore/internal/value"
)

// maxMetaDepth bounds __index/__newindex chain-walking so a metatable
// cycle raises an error instead of looping forever (spec.md §4.1
// "metamethods"; real Lua imposes the same MAXTAGLOOP bound).
const maxMetaDepth = 100

// metamethod looks up name in v's effective metatable (own, or the
// shared per-kind default), returning Nil if absent.
func (vm *VM) metamethod(v value.Value, name value.Value) value.Value {
	meta := vm.global.Metatable(v)
	if meta == nil {
		return value.Nil
	}
	return meta.Get(name)
}

// index implements GETTABLE/GETGLOBAL/SELF's lookup, including the
// __index chain: a raw table hit wins immediately; otherwise a
// function __index is called, a table __index is walked recursively
// (spec.md §4.1).
func (vm *VM) index(th *value.Thread, t value.Value, k value.Value) (value.Value, error) {
	for depth := 0; depth < maxMetaDepth; depth++ {
		if t.Kind() == value.KindTable {
			raw := t.AsTable().Get(k)
			if !raw.IsNil() {
				return raw, nil
			}
			h := vm.metamethod(t, vm.global.MetaIndex)
			if h.IsNil() {
				return value.Nil, nil
			}
			if h.Kind() == value.KindFunction {
				results, err := vm.Call(th, h, []value.Value{t, k})
				if err != nil {
					return value.Nil, err
				}
				return first(results), nil
			}
			t = h
			continue
		}
		h := vm.metamethod(t, vm.global.MetaIndex)
		if h.IsNil() {
			return value.Nil, vm.errorf(luaerr.KindIndexNil, "attempt to index a %s value", t.Kind())
		}
		if h.Kind() == value.KindFunction {
			results, err := vm.Call(th, h, []value.Value{t, k})
			if err != nil {
				return value.Nil, err
			}
			return first(results), nil
		}
		t = h
	}
	return value.Nil, vm.errorf(luaerr.KindRuntimeError, "'__index' chain too long; possible loop")
}

// newindex implements SETTABLE/SETGLOBAL's store, including the
// __newindex chain (spec.md §4.1).
func (vm *VM) newindex(th *value.Thread, t value.Value, k value.Value, v value.Value) error {
	for depth := 0; depth < maxMetaDepth; depth++ {
		if t.Kind() == value.KindTable {
			tbl := t.AsTable()
			if !tbl.Get(k).IsNil() {
				tbl.Set(k, v)
				vm.barrierTable(tbl, v)
				return nil
			}
			h := vm.metamethod(t, vm.global.MetaNewIndex)
			if h.IsNil() {
				if k.IsNil() {
					return vm.errorf(luaerr.KindTypeError, "table index is nil")
				}
				tbl.Set(k, v)
				vm.barrierTable(tbl, v)
				return nil
			}
			if h.Kind() == value.KindFunction {
				_, err := vm.Call(th, h, []value.Value{t, k, v})
				return err
			}
			t = h
			continue
		}
		h := vm.metamethod(t, vm.global.MetaNewIndex)
		if h.IsNil() {
			return vm.errorf(luaerr.KindIndexNil, "attempt to index a %s value", t.Kind())
		}
		if h.Kind() == value.KindFunction {
			_, err := vm.Call(th, h, []value.Value{t, k, v})
			return err
		}
		t = h
	}
	return vm.errorf(luaerr.KindRuntimeError, "'__newindex' chain too long; possible loop")
}

func first(results []value.Value) value.Value {
	if len(results) == 0 {
		return value.Nil
	}
	return results[0]
}

// arithMeta maps an arithmetic opcode to the metamethod name the VM
// falls back to when an operand isn't coercible to a number.
func (vm *VM) arithMeta(op code.Opcode) value.Value {
	switch op {
	case code.OpAdd:
		return vm.global.MetaAdd
	case code.OpSub:
		return vm.global.MetaSub
	case code.OpMul:
		return vm.global.MetaMul
	case code.OpDiv:
		return vm.global.MetaDiv
	case code.OpMod:
		return vm.global.MetaMod
	case code.OpPow:
		return vm.global.MetaPow
	}
	return value.Nil
}

// arith implements ADD/SUB/MUL/DIV/MOD/POW: arithmetic on numbers (with
// string-to-number coercion, per spec.md §4.1), falling back to the
// matching metamethod when either operand resists coercion.
func (vm *VM) arith(th *value.Thread, op code.Opcode, a, b value.Value) (value.Value, error) {
	na, aok := toNumber(a)
	nb, bok := toNumber(b)
	if aok && bok {
		switch op {
		case code.OpAdd:
			return value.Number(na + nb), nil
		case code.OpSub:
			return value.Number(na - nb), nil
		case code.OpMul:
			return value.Number(na * nb), nil
		case code.OpDiv:
			return value.Number(na / nb), nil
		case code.OpMod:
			return value.Number(na - math.Floor(na/nb)*nb), nil
		case code.OpPow:
			return value.Number(math.Pow(na, nb)), nil
		}
	}
	name := vm.arithMeta(op)
	if h := vm.metamethod(a, name); !h.IsNil() {
		r, err := vm.Call(th, h, []value.Value{a, b})
		return first(r), err
	}
	if h := vm.metamethod(b, name); !h.IsNil() {
		r, err := vm.Call(th, h, []value.Value{a, b})
		return first(r), err
	}
	bad := a
	if aok {
		bad = b
	}
	return value.Nil, vm.errorf(luaerr.KindArithError, "attempt to perform arithmetic on a %s value", bad.Kind())
}

// unm implements UNM: numeric negation, falling back to __unm.
func (vm *VM) unm(th *value.Thread, a value.Value) (value.Value, error) {
	if n, ok := toNumber(a); ok {
		return value.Number(-n), nil
	}
	if h := vm.metamethod(a, vm.global.MetaUnm); !h.IsNil() {
		r, err := vm.Call(th, h, []value.Value{a, a})
		return first(r), err
	}
	return value.Nil, vm.errorf(luaerr.KindArithError, "attempt to perform arithmetic on a %s value", a.Kind())
}

// length implements LEN: string byte length, table border, or __len.
func (vm *VM) length(th *value.Thread, a value.Value) (value.Value, error) {
	switch a.Kind() {
	case value.KindString:
		return value.Number(float64(len(a.AsString().Bytes))), nil
	case value.KindTable:
		if h := vm.metamethod(a, vm.global.MetaLen); !h.IsNil() {
			r, err := vm.Call(th, h, []value.Value{a})
			return first(r), err
		}
		return value.Number(float64(a.AsTable().Len())), nil
	}
	if h := vm.metamethod(a, vm.global.MetaLen); !h.IsNil() {
		r, err := vm.Call(th, h, []value.Value{a})
		return first(r), err
	}
	return value.Nil, vm.errorf(luaerr.KindTypeError, "attempt to get length of a %s value", a.Kind())
}

// concatRange implements CONCAT over a contiguous register range,
// right-to-left, so a single __concat metamethod on an intermediate
// value only needs to combine two operands at a time (spec.md §4.1).
func (vm *VM) concatRange(th *value.Thread, vals []value.Value) (value.Value, error) {
	acc := vals[len(vals)-1]
	for i := len(vals) - 2; i >= 0; i-- {
		var err error
		acc, err = vm.concat2(th, vals[i], acc)
		if err != nil {
			return value.Nil, err
		}
	}
	return acc, nil
}

func (vm *VM) concat2(th *value.Thread, a, b value.Value) (value.Value, error) {
	as, aok := toConcatString(a)
	bs, bok := toConcatString(b)
	if aok && bok {
		return vm.global.InternString(as + bs), nil
	}
	if h := vm.metamethod(a, vm.global.MetaConcat); !h.IsNil() {
		r, err := vm.Call(th, h, []value.Value{a, b})
		return first(r), err
	}
	if h := vm.metamethod(b, vm.global.MetaConcat); !h.IsNil() {
		r, err := vm.Call(th, h, []value.Value{a, b})
		return first(r), err
	}
	bad := a
	if aok {
		bad = b
	}
	return value.Nil, vm.errorf(luaerr.KindConcatError, "attempt to concatenate a %s value", bad.Kind())
}

// compare implements EQ/LT/LE's raw-then-metamethod dispatch.
func (vm *VM) compare(th *value.Thread, op code.Opcode, a, b value.Value) (bool, error) {
	switch op {
	case code.OpEq:
		if value.RawEqual(a, b) {
			return true, nil
		}
		if a.Kind() != b.Kind() || (a.Kind() != value.KindTable && a.Kind() != value.KindUserData) {
			return false, nil
		}
		h := vm.metamethod(a, vm.global.MetaEq)
		if h.IsNil() {
			h = vm.metamethod(b, vm.global.MetaEq)
		}
		if h.IsNil() {
			return false, nil
		}
		r, err := vm.Call(th, h, []value.Value{a, b})
		return first(r).Truthy(), err
	case code.OpLt:
		if r, ok := value.LessThan(a, b); ok {
			return r, nil
		}
		return vm.compareMeta(th, vm.global.MetaLt, a, b)
	case code.OpLe:
		if r, ok := value.LessEqual(a, b); ok {
			return r, nil
		}
		return vm.compareMeta(th, vm.global.MetaLe, a, b)
	}
	return false, vm.errorf(luaerr.KindRuntimeError, "unreachable comparison opcode")
}

func (vm *VM) compareMeta(th *value.Thread, name value.Value, a, b value.Value) (bool, error) {
	h := vm.metamethod(a, name)
	if h.IsNil() {
		h = vm.metamethod(b, name)
	}
	if h.IsNil() {
		return false, vm.errorf(luaerr.KindTypeError, "attempt to compare %s with %s", a.Kind(), b.Kind())
	}
	r, err := vm.Call(th, h, []value.Value{a, b})
	return first(r).Truthy(), err
}

// toNumber coerces a value to a number for arithmetic: numbers pass
// through, strings parse per Lua's usual numeral grammar (spec.md
// §4.1 "string coercion in arithmetic contexts").
func toNumber(v value.Value) (float64, bool) {
	switch v.Kind() {
	case value.KindNumber:
		return v.AsNumber(), true
	case value.KindString:
		s := strings.TrimSpace(v.AsString().Bytes)
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// toConcatString coerces a value to its concatenation text: strings
// pass through, numbers format with Lua's %.14g convention.
func toConcatString(v value.Value) (string, bool) {
	switch v.Kind() {
	case value.KindString:
		return v.AsString().Bytes, true
	case value.KindNumber:
		return formatNumber(v.AsNumber()), true
	}
	return "", false
}

// formatNumber renders a number the way Lua 5.1's tostring does:
// %.14g, with integral values collapsed to their plain decimal form.
func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', 14, 64)
}

