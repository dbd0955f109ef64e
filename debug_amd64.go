//go:build amd64

package funchook

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"

	"golang.org/x/arch/x86/x86asm"
)

var debugEnabled = false

// SetDebug makes Install print the disassembly of everything it is about to
// write. Useful when a hook misbehaves and the overlay bytes are in doubt.
func SetDebug(on bool) {
	debugEnabled = on
}

func debugf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}

func disassemble(code []byte, addr uintptr) string {
	var buf bytes.Buffer

	for i := 0; i < len(code); {
		inst, err := x86asm.Decode(code[i:], 64)
		if err != nil {
			fmt.Fprintf(&buf, "0x%08x\t%-20s\t?\n", addr+uintptr(i), hex.EncodeToString(code[i:i+1]))
			i++
			continue
		}
		fmt.Fprintf(&buf, "0x%08x\t%-20s\t%s\n", addr+uintptr(i), hex.EncodeToString(code[i:i+inst.Len]), inst.String())

		i += inst.Len
	}

	return buf.String()
}
