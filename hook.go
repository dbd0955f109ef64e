package funchook

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	// ErrBreakpoint means the target's prologue contains an INT3 byte,
	// most likely a breakpoint planted by a debugger.
	ErrBreakpoint = errors.New("breakpoint in function prologue")
	// ErrUnsupported means the prologue contains an instruction that
	// cannot be relocated (LOOP/LOOPcc, JCXZ/JRCXZ, or a RIP-relative
	// operand on anything but LEA).
	ErrUnsupported = errors.New("unsupported instruction in function prologue")
	// ErrHazard means a branch in the prologue targets the bytes being
	// overwritten, so the control flow cannot be preserved.
	ErrHazard = errors.New("branch into clobbered prologue")
	// ErrDoubleHook means the function is already hooked.
	ErrDoubleHook = errors.New("function already hooked")
	// ErrShortFunction means the function body is smaller than the bytes
	// hooking may clobber.
	ErrShortFunction = errors.New("function too short to hook")
)

var (
	mu     sync.RWMutex
	hooked = map[uintptr]*Trampoline{}
)

// Func hooks fn with replacement. An error is returned if fn or replacement
// are not function values or their signatures differ.
//
// Note that if fn has been inlined its call sites are beyond reach and only
// calls through a function value divert. If possible, add a noinline
// directive to work-around this problem:
//
//	//go:noinline
//	func myfunc() {
//		...
//	}
//
// The trampoline for the original prologue is allocated internally; retrieve
// it as a callable with Original.
func Func(fn, replacement any) error {
	fnv := reflect.ValueOf(fn)
	if fnv.Kind() != reflect.Func {
		return fmt.Errorf("not a function, kind: %v", fnv.Kind())
	}
	newFnv := reflect.ValueOf(replacement)
	if newFnv.Kind() != reflect.Func {
		return fmt.Errorf("not a function, kind: %v", newFnv.Kind())
	}
	if err := diffFuncs(fnv, newFnv).Error(); err != nil {
		return fmt.Errorf("function signatures do not match: %w", err)
	}

	entry := fnv.Pointer()
	if length := funcLength(entry); length >= 0 && length < clobberedCodeLen {
		return fmt.Errorf("%w: %d byte body, hooking may clobber %d", ErrShortFunction, length, clobberedCodeLen)
	}

	mu.Lock()
	defer mu.Unlock()

	if _, ok := hooked[entry]; ok {
		return ErrDoubleHook
	}

	tr, err := NewTrampoline()
	if err != nil {
		return err
	}

	if err := Install(entry, newFnv.Pointer(), tr); err != nil {
		tr.Free()
		return err
	}

	hooked[entry] = tr
	return nil
}
