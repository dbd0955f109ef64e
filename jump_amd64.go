//go:build amd64

package funchook

import "unsafe"

// Layout constants. These fix the clobber window and the trampoline size and
// must not change independently of each other.
const (
	// initialJumpLen is the length of the movabs/jmp pair overwritten at
	// the entry of a hooked function.
	initialJumpLen = 12

	// jumpSlotLen is the length of a memory-indirect jump or call emitted
	// in a trampoline body. Unlike the entry jump it preserves registers.
	jumpSlotLen = 6

	// clobberedCodeLen bounds the bytes destroyed in a hooked function:
	// the entry jump plus the tail of a partially overwritten final
	// instruction (max x86_64 instruction length is 15).
	clobberedCodeLen = initialJumpLen + 14

	// maxJumps bounds the control transfers a trampoline body can need:
	// the shortest branch instruction is 2 bytes, plus the final jump
	// back to the unclobbered code.
	maxJumps = initialJumpLen/2 + 1

	// trampolineLen is the size of a trampoline code region.
	trampolineLen = clobberedCodeLen + maxJumps*jumpSlotLen
)

// jumpTable hands out 8-byte slots holding absolute branch destinations.
// Trampoline code reaches them with FF 25 / FF 15 rel32, so every control
// transfer in a trampoline body is jumpSlotLen bytes no matter how far the
// destination is.
type jumpTable struct {
	slots []uint64
	next  int
}

// take stores dest in the next free slot and returns the slot's address.
func (j *jumpTable) take(dest uintptr) uintptr {
	j.slots[j.next] = uint64(dest)
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(j.slots))) + uintptr(j.next)*8
	j.next++
	return addr
}

// initialJump emits the entry sequence overwritten onto a hooked function:
//
//	movabs $dest, %rax
//	jmp *%rax
//
// It trashes AX, which the System V ABI treats as scratch at function entry.
func initialJump(o *overlay, dest uintptr) {
	o.emit(0x48, 0xB8)
	o.emitU64(uint64(dest))
	o.emit(0xFF, 0xE0)
}

// tableJump emits jmp *disp32(%rip) through a fresh jump table slot holding
// dest. No registers are touched.
func tableJump(o *overlay, dest uintptr, j *jumpTable) {
	slot := j.take(dest)
	o.emit(0xFF, 0x25)
	o.emitU32(uint32(slot - (o.rip() + 4)))
}

// tableCall is tableJump with CALL m64 instead of JMP m64.
func tableCall(o *overlay, dest uintptr, j *jumpTable) {
	slot := j.take(dest)
	o.emit(0xFF, 0x15)
	o.emitU32(uint32(slot - (o.rip() + 4)))
}

// condBranch rewrites "Jcc dest" as a condition-inverted short branch over a
// table jump:
//
//	j!cc +6
//	jmp *slot(%rip)       ; slot holds dest
//
// The inversion keeps the original semantics without any displacement range
// analysis. shortOp must be a one-byte Jcc opcode (70..7F); callers lifting
// the 0F 80..8F forms subtract 0x10 first.
func condBranch(o *overlay, shortOp byte, dest uintptr, j *jumpTable) {
	o.emit(shortOp^1, jumpSlotLen)
	tableJump(o, dest, j)
}
