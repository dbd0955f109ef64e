// Package funchook installs inline hooks on x86_64 Linux: it overwrites the
// first bytes of a function with a jump to a replacement, and optionally
// relocates the displaced instructions into a trampoline so the replacement
// can still call the original.
//
// The low-level surface is Install, BeginBatch/EndBatch and Trampoline,
// which work on raw code addresses. Func and Original are reflect-based
// conveniences for hooking Go functions.
//
// Limitations:
//   - Only supports amd64 on Linux.
//   - The entry jump clobbers AX. Under Go's register ABI the first integer
//     argument of a hooked Go function arrives in AX and is lost before the
//     replacement runs; C ABI functions are unaffected.
//   - No unhooking. Once installed, a hook stays.
//   - Hooking is not atomic against threads executing inside the patched
//     prologue; install hooks before the function can run.
//   - A Go function with a stack-growth check in its prologue re-enters the
//     hook if the check fires.
//   - Prologues containing LOOP/LOOPcc, JCXZ/JRCXZ or RIP-relative operands
//     on anything but LEA are rejected.
package funchook
