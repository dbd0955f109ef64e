//go:build amd64

package funchook

// Install patches the function at fn so that every call to it transfers
// control to replacement at its first instruction.
//
// When tr is non-nil the instructions displaced from fn are relocated into
// the trampoline, followed by a jump back to the rest of fn; calling the
// trampoline afterwards behaves as the unhooked fn did. A nil tr means the
// caller does not need the original behavior, but the prologue is still
// analyzed in full so hazards are rejected either way.
//
// Install assumes no other thread is executing inside the first bytes of fn;
// the usual arrangement is to install hooks at startup. The entry jump
// clobbers AX.
func Install(fn, replacement uintptr, tr *Trampoline) error {
	fov := overlay{target: fn}
	var tov overlay
	var j jumpTable

	if tr != nil {
		tov.target = tr.Addr()
		j.slots = tr.table

		// Jump table slots are stored directly, so the arena must be
		// writable for the duration of the render.
		trampolines.BeginMutate()
		defer trampolines.EndMutate()
	} else {
		// Render against throwaway buffers, for hazard detection only.
		tov.target = fn
		j.slots = make([]uint64, maxJumps)
	}

	if err := relocate(&fov, &tov, fn, replacement, &j); err != nil {
		return err
	}

	if debugEnabled {
		debugf("funchook: hook %#x -> %#x\n%s", fn, replacement, disassemble(fov.bytes(), fov.target))
		if tr != nil {
			debugf("funchook: trampoline %#x\n%s", tov.target, disassemble(tov.bytes(), tov.target))
		}
	}

	fd, shared, err := acquireMem()
	if err != nil {
		return err
	}
	if !shared {
		defer releaseMem(fd)
	}

	// The trampoline goes first: it must be whole before the entry jump
	// publishes the hook. A failed or partial write of the entry jump
	// itself leaves fn in an undefined state, which the returned error
	// reports but nothing can repair.
	if tr != nil {
		if err := tov.commit(fd); err != nil {
			return err
		}
	}
	return fov.commit(fd)
}
