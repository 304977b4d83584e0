package compiler

import (
	"luacore/internal/ast"
	"luacore/internal/code"
)

// listFlushSize bounds how many array-part entries SETLIST commits in
// one instruction (spec.md §4.3.3: "SETLIST for array entries in
// batches of a fixed flush size"), mirroring Lua 5.1's own LFIELDS_PER_FLUSH.
const listFlushSize = 50

// compileTable lowers a table constructor to NEWTABLE followed by
// SETLIST batches for positional fields and SETTABLE for keyed ones
// (spec.md §4.3.3).
func (c *funcCompiler) compileTable(n *ast.TableExpr) (exprDesc, error) {
	line := n.Position().Line
	dst, err := c.fs.reserveReg(1)
	if err != nil {
		return exprDesc{}, err
	}
	arraySize, hashSize := 0, 0
	for _, f := range n.Fields {
		if f.Kind == ast.FieldPositional {
			arraySize++
		} else {
			hashSize++
		}
	}
	c.fs.emitABC(code.OpNewTable, dst, arraySize, hashSize, line)

	lastPositional := -1
	for i, f := range n.Fields {
		if f.Kind == ast.FieldPositional {
			lastPositional = i
		}
	}

	pending := 0
	flushBase := c.fs.freeReg
	flushFrom := 1

	flush := func() error {
		if pending == 0 {
			return nil
		}
		c.fs.emitABC(code.OpSetList, dst, pending, flushFrom, line)
		c.fs.freeTo(flushBase)
		flushFrom += pending
		pending = 0
		return nil
	}

	for i, f := range n.Fields {
		switch f.Kind {
		case ast.FieldPositional:
			last := i == lastPositional
			var d exprDesc
			if last && isMultiExpr(f.Val) {
				if err := flush(); err != nil {
					return exprDesc{}, err
				}
				d, err = c.compileMultiExpr(f.Val)
				if err != nil {
					return exprDesc{}, err
				}
				if err := c.dischargeMultiToNextReg(d, line); err != nil {
					return exprDesc{}, err
				}
				c.fs.emitABC(code.OpSetList, dst, 0, flushFrom, line)
				flushFrom++
				continue
			}
			d, err = c.compileExpr(f.Val)
			if err != nil {
				return exprDesc{}, err
			}
			c.fs.freeTo(flushBase + pending)
			if _, err := c.exp2nextreg(d, line); err != nil {
				return exprDesc{}, err
			}
			pending++
			if pending >= listFlushSize {
				if err := flush(); err != nil {
					return exprDesc{}, err
				}
			}
		case ast.FieldNamed, ast.FieldIndexed:
			if err := flush(); err != nil {
				return exprDesc{}, err
			}
			k, err := c.compileExpr(f.Key)
			if err != nil {
				return exprDesc{}, err
			}
			rkK, err := c.exp2RK(k, line)
			if err != nil {
				return exprDesc{}, err
			}
			v, err := c.compileExpr(f.Val)
			if err != nil {
				return exprDesc{}, err
			}
			rkV, err := c.exp2RK(v, line)
			if err != nil {
				return exprDesc{}, err
			}
			c.fs.emitABC(code.OpSetTable, dst, rkK, rkV, line)
		}
	}
	if err := flush(); err != nil {
		return exprDesc{}, err
	}
	return exprDesc{kind: exprReg, info: dst}, nil
}
