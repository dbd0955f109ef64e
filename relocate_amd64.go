//go:build amd64

package funchook

import (
	"fmt"
	"unsafe"

	"github.com/pboyd/funchook/internal/insn"
)

// relocate renders both overlays for hooking the function at fn. The entry
// jump to replacement goes into fov; every prologue instruction it displaces
// is lifted into tov with its relative operands rewritten for the new
// address, followed by a jump back to the first surviving instruction of fn.
//
// Control transfers found in the prologue go through jump table slots taken
// from j, so their reach is unlimited. A branch whose destination lies
// inside the bytes being overwritten cannot be preserved on either side and
// fails the whole operation.
func relocate(fov, tov *overlay, fn, replacement uintptr, j *jumpTable) error {
	initialJump(fov, replacement)
	n := fov.len()
	hazardLimit := fn + uintptr(n)

	code := unsafe.Slice((*byte)(unsafe.Pointer(fn)), clobberedCodeLen+insn.MaxLen)

	checkHazard := func(dest uintptr) error {
		if dest >= fn && dest < hazardLimit {
			return fmt.Errorf("%w: branch to %#x", ErrHazard, dest)
		}
		return nil
	}

	off := 0
	for off < n {
		s, err := insn.Decode(code[off:])
		if err != nil {
			return fmt.Errorf("decode at %#x: %w", fn+uintptr(off), err)
		}
		off += s.Len

		// Branch destinations are relative to the end of the
		// instruction.
		end := int64(fn) + int64(off)

		switch {
		case s.Opcode == 0xCC:
			// Almost certainly a breakpoint planted by a debugger;
			// relocating it would move the trap.
			return fmt.Errorf("%w at %#x", ErrBreakpoint, fn+uintptr(off-1))

		case s.Opcode == 0xE8: // CALL rel32
			dest := uintptr(end + int64(int32(s.Imm)))
			tableCall(tov, dest, j)
			if err := checkHazard(dest); err != nil {
				return err
			}

		case s.Opcode == 0xE9: // JMP rel32
			dest := uintptr(end + int64(int32(s.Imm)))
			tableJump(tov, dest, j)
			if err := checkHazard(dest); err != nil {
				return err
			}

		case s.Opcode == 0xEB: // JMP rel8
			dest := uintptr(end + int64(int8(s.Imm)))
			tableJump(tov, dest, j)
			if err := checkHazard(dest); err != nil {
				return err
			}

		case s.Opcode >= 0xE0 && s.Opcode <= 0xE3:
			// LOOP/LOOPE/LOOPNE and JRCXZ only have a rel8 form, so
			// there is no wide-displacement rewrite for them.
			return fmt.Errorf("%w: rel8-only branch %#x at %#x", ErrUnsupported, s.Opcode, fn+uintptr(off-s.Len))

		case s.Opcode >= 0x70 && s.Opcode <= 0x7F: // Jcc rel8
			dest := uintptr(end + int64(int8(s.Imm)))
			condBranch(tov, s.Opcode, dest, j)
			if err := checkHazard(dest); err != nil {
				return err
			}

		case s.Opcode == 0x0F && s.Opcode2 >= 0x80 && s.Opcode2 <= 0x8F: // Jcc rel32
			dest := uintptr(end + int64(int32(s.Imm)))
			condBranch(tov, s.Opcode2-0x10, dest, j)
			if err := checkHazard(dest); err != nil {
				return err
			}

		case s.RIPRelative():
			if s.Opcode != 0x8D {
				// Rewriting a RIP-relative load or store needs a
				// scratch register, and nothing guarantees one is
				// free here.
				return fmt.Errorf("%w: RIP-relative operand at %#x", ErrUnsupported, fn+uintptr(off-s.Len))
			}
			// LEA reg, [rip+disp32] computes a constant address.
			// Load it as an immediate instead.
			reg := s.Reg
			if s.RexR {
				reg |= 8
			}
			rex := byte(0x48)
			if reg >= 8 {
				rex |= 1 // REX.B
			}
			tov.emit(rex, 0xB8+reg&7)
			tov.emitU64(uint64(end + s.Disp))

		default:
			// Position independent; relocates bytewise. This also
			// covers LOCK/REP prefixed instructions.
			tov.emit(code[off-s.Len : off]...)
		}
	}

	// If the last instruction straddles the clobber window, trap the
	// surviving tail so a stray jump into it cannot execute half an
	// instruction.
	for i := n; i < off; i++ {
		fov.emit(0xCC)
	}

	// Reconnect the trampoline to the first unclobbered instruction.
	tableJump(tov, fn+uintptr(off), j)
	return nil
}
