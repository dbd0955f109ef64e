//go:build linux

package funchook

import "syscall"

const (
	mprotectRX  = syscall.PROT_READ | syscall.PROT_EXEC
	mprotectRWX = syscall.PROT_READ | syscall.PROT_WRITE | syscall.PROT_EXEC

	// MAP_32BIT keeps the trampoline arena in the low 2 GiB of the
	// address space, so trampoline code can always reach its jump table
	// with a rel32 operand.
	arenaMmapFlags = syscall.MAP_32BIT
)
