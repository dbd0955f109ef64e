//go:build linux

package funchook

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Overlays are committed through /proc/self/mem rather than by flipping page
// protections. Writes through the memory file bypass the write protection on
// text pages, need no page alignment, and leave the segment's protection
// flags exactly as the loader set them.

var (
	memMu sync.Mutex
	memFD = -1
)

// BeginBatch opens the process memory descriptor and keeps it open, so a run
// of Install calls shares one descriptor instead of opening and closing
// their own. No-op if a batch is already active.
func BeginBatch() error {
	memMu.Lock()
	defer memMu.Unlock()

	if memFD != -1 {
		return nil
	}

	fd, err := openMem()
	if err != nil {
		return err
	}
	memFD = fd
	return nil
}

// EndBatch closes the descriptor opened by BeginBatch. Idempotent.
func EndBatch() error {
	memMu.Lock()
	defer memMu.Unlock()

	if memFD == -1 {
		return nil
	}

	err := unix.Close(memFD)
	memFD = -1
	return err
}

func openMem() (int, error) {
	fd, err := unix.Open("/proc/self/mem", unix.O_RDWR, 0)
	if err != nil {
		return -1, fmt.Errorf("open /proc/self/mem: %w", err)
	}
	return fd, nil
}

// acquireMem returns a descriptor for the process memory file and whether it
// is the shared batch descriptor. A non-shared descriptor belongs to the
// caller, who releases it with releaseMem.
func acquireMem() (fd int, shared bool, err error) {
	memMu.Lock()
	defer memMu.Unlock()

	if memFD != -1 {
		return memFD, true, nil
	}
	fd, err = openMem()
	return fd, false, err
}

func releaseMem(fd int) {
	unix.Close(fd)
}

func pwriteMem(fd int, b []byte, addr uintptr) (int, error) {
	return unix.Pwrite(fd, b, int64(addr))
}
