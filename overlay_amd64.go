//go:build amd64

package funchook

import (
	"encoding/binary"
	"fmt"
)

// overlay is an address-aware emit buffer. Code is rendered into it as if it
// were already installed at target, so relative operands can be encoded
// against the address a byte will eventually occupy. The contents are copied
// to target in one write by commit.
type overlay struct {
	target uintptr
	n      int
	buf    [trampolineLen]byte
}

func (o *overlay) len() int {
	return o.n
}

// rip returns the address the next emitted byte will execute at.
func (o *overlay) rip() uintptr {
	return o.target + uintptr(o.n)
}

func (o *overlay) emit(b ...byte) {
	o.n += copy(o.buf[o.n:], b)
}

func (o *overlay) emitU32(v uint32) {
	binary.LittleEndian.PutUint32(o.buf[o.n:], v)
	o.n += 4
}

func (o *overlay) emitU64(v uint64) {
	binary.LittleEndian.PutUint64(o.buf[o.n:], v)
	o.n += 8
}

func (o *overlay) bytes() []byte {
	return o.buf[:o.n]
}

// commit writes the rendered bytes to their target address through the
// process memory descriptor. A short write is an error: the destination is
// live code and a partial update cannot be rolled back.
func (o *overlay) commit(fd int) error {
	n, err := pwriteMem(fd, o.buf[:o.n], o.target)
	if err != nil {
		return fmt.Errorf("write %d bytes at %#x: %w", o.n, o.target, err)
	}
	if n != o.n {
		return fmt.Errorf("write %d bytes at %#x: short write (%d)", o.n, o.target, n)
	}
	return nil
}
