package compiler

import "luacore/internal/code"

// emitJump emits a placeholder JMP and returns its instruction index,
// to be patched once the target PC is known (spec.md §4.3.5 "Forward
// jumps are emitted with placeholder offsets and their instruction
// indices pushed onto a patch list").
func (fs *funcState) emitJump(line int) int {
	return fs.emitAsBx(code.OpJmp, 0, 0, line)
}

// patchJumpToHere rewrites the JMP at pc to target the current PC.
func (fs *funcState) patchJumpToHere(pc int) {
	fs.patchJumpTo(pc, fs.pc())
}

// patchJumpTo rewrites the jump instruction at pc (JMP, FORPREP or
// FORLOOP; its opcode and A are kept) to target the instruction at
// target: "each patch-list entry has its sBx field rewritten to
// target - patch_pc - 1" (spec.md §4.3.5).
func (fs *funcState) patchJumpTo(pc, target int) {
	sbx := target - pc - 1
	ins := fs.code[pc]
	a := ins.A()
	fs.code[pc] = code.EncodeAsBx(ins.Opcode(), a, sbx)
}

// patchListToHere patches every jump instruction index in list to the
// current PC ("lists of jumps ... are patched uniformly to one
// target", spec.md §4.3.5).
func (fs *funcState) patchListToHere(list []int) {
	fs.patchListTo(list, fs.pc())
}

func (fs *funcState) patchListTo(list []int, target int) {
	for _, pc := range list {
		fs.patchJumpTo(pc, target)
	}
}
