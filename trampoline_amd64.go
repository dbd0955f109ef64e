//go:build amd64

package funchook

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/pboyd/malloc"
)

// Trampoline code lives in a private executable arena rather than in the
// program's text segment. The arena is read-execute at rest and writable
// only inside a BeginMutate/EndMutate window.
type allocator struct {
	*malloc.Arena
	mprotect func(int) error
	mu       sync.Mutex
	initOnce sync.Once
	mutable  bool
}

// arenaSize is the initial arena reservation, enough for a few thousand
// trampolines before the arena has to grow.
const arenaSize = 256 << 10

func (a *allocator) init() error {
	var err error
	a.initOnce.Do(func() {
		be := malloc.MmapBackend(mprotectRX, arenaMmapFlags)
		if protBE, ok := be.(malloc.ProtectedArenaBackend); ok {
			a.mprotect = protBE.Protect
		} else {
			a.mprotect = func(int) error {
				return nil
			}
		}

		a.Arena = malloc.NewArena(uint64(arenaSize), malloc.Backend(be))
		if a.Arena == nil {
			err = errors.New("unable to initialize arena")
			return
		}
		a.mutable = true
	})
	return err
}

func (a *allocator) BeginMutate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// BeginMutate can be called before the initial allocation.

	if a.mprotect == nil || a.mutable {
		return nil
	}

	err := a.mprotect(mprotectRWX)
	if err == nil {
		a.mutable = true
	}
	return err
}

func (a *allocator) EndMutate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.mutable {
		return nil
	}

	err := a.mprotect(mprotectRX)
	if err == nil {
		a.mutable = false
	}
	return err
}

func (a *allocator) AllocateCode(size int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.init()
	if err != nil {
		return nil, fmt.Errorf("error initializing arena: %w", err)
	}

	if !a.mutable {
		panic("AllocateCode called in immutable state")
	}

	return malloc.MallocSlice[byte](a.Arena, size)
}

func (a *allocator) AllocateSlots(n int) ([]uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.init()
	if err != nil {
		return nil, fmt.Errorf("error initializing arena: %w", err)
	}

	if !a.mutable {
		panic("AllocateSlots called in immutable state")
	}

	return malloc.MallocSlice[uint64](a.Arena, n)
}

func (a *allocator) FreeCode(buf []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.mutable {
		panic("FreeCode called in immutable state")
	}

	malloc.FreeSlice(a.Arena, buf)
}

func (a *allocator) FreeSlots(slots []uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.mutable {
		panic("FreeSlots called in immutable state")
	}

	malloc.FreeSlice(a.Arena, slots)
}

var trampolines = &allocator{}

// Trampoline is a reserved code region that Install fills with the relocated
// prologue of a hooked function, plus the jump table its indirect branches
// go through. Until Install runs the code bytes are all INT3, so calling the
// trampoline traps.
type Trampoline struct {
	code  []byte
	table []uint64

	// Keeps the code pointer reachable while a func value built by As is
	// live.
	ref **byte
}

// NewTrampoline reserves a trampoline and its jump table from the arena.
func NewTrampoline() (*Trampoline, error) {
	trampolines.BeginMutate()
	defer trampolines.EndMutate()

	code, err := trampolines.AllocateCode(trampolineLen)
	if err != nil {
		return nil, err
	}
	for i := range code {
		code[i] = 0xCC
	}

	table, err := trampolines.AllocateSlots(maxJumps)
	if err != nil {
		trampolines.FreeCode(code)
		return nil, err
	}

	return &Trampoline{code: code, table: table}, nil
}

// Addr returns the address of the trampoline's first instruction.
func (tr *Trampoline) Addr() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(tr.code)))
}

// Free releases the trampoline's arena memory. The caller must guarantee
// nothing can reach the trampoline anymore; the engine does not unpatch
// hooked functions.
func (tr *Trampoline) Free() {
	trampolines.BeginMutate()
	defer trampolines.EndMutate()

	trampolines.FreeCode(tr.code)
	trampolines.FreeSlots(tr.table)

	tr.code = nil
	tr.table = nil
	if tr.ref != nil {
		*tr.ref = nil
		tr.ref = nil
	}
}

// As converts the trampoline into a callable func value of type T, which
// must be the signature of the hooked function. The conversion convinces Go
// that the trampoline bytes are really a function pointer; calling the
// result executes the original prologue and continues into the unmodified
// body.
func As[T any](tr *Trampoline) T {
	codeData := unsafe.SliceData(tr.code)
	tr.ref = &codeData
	return *(*T)(unsafe.Pointer(uintptr(unsafe.Pointer(&tr.ref))))
}
