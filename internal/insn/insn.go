// Package insn is a length disassembler for 64-bit x86 machine code.
//
// It decodes a single instruction into its structural fields: prefixes, REX
// bits, opcode bytes, ModR/M, SIB, displacement and immediate. It makes no
// attempt to name instructions or model their semantics; callers that need
// that should use golang.org/x/arch/x86/x86asm instead. The point of this
// package is the raw encoding layout, which x86asm does not expose.
//
// Coverage is the instruction set a C/C++ compiler emits in function bodies:
// the full one-byte opcode map, the 0F map, and the 0F 38 / 0F 3A maps for
// length only. VEX, EVEX and XOP encoded instructions are rejected.
package insn

import "errors"

// MaxLen is the architectural limit on x86 instruction length.
const MaxLen = 15

var (
	// ErrTruncated means the input ended mid-instruction.
	ErrTruncated = errors.New("truncated instruction")
	// ErrTooLong means decoding ran past the 15 byte architectural limit.
	ErrTooLong = errors.New("instruction exceeds 15 bytes")
	// ErrInvalid means the bytes do not encode a valid 64-bit mode
	// instruction. This includes VEX/EVEX/XOP prefixed instructions.
	ErrInvalid = errors.New("invalid instruction")
)

// Inst is one decoded instruction.
type Inst struct {
	Len int // total length in bytes, 1..15

	// Legacy prefixes.
	Lock     bool
	Repne    bool // F2
	Rep      bool // F3
	OpSize   bool // 66
	AddrSize bool // 67
	Seg      byte // segment override byte, or 0

	// REX prefix. Rex is the raw byte, or 0 when absent.
	Rex  byte
	RexW bool
	RexR bool
	RexX bool
	RexB bool

	Opcode  byte // primary opcode; 0F for the escape maps
	Opcode2 byte // second opcode byte when Opcode == 0F
	Opcode3 byte // third opcode byte for the 0F 38 / 0F 3A maps

	HasModRM bool
	ModRM    byte
	Mod      byte // ModRM[7:6]
	Reg      byte // ModRM[5:3], not REX extended
	RM       byte // ModRM[2:0], not REX extended

	HasSIB bool
	SIB    byte
	Scale  byte
	Index  byte
	Base   byte

	DispLen int   // 0, 1 or 4
	Disp    int64 // sign extended

	ImmLen int    // 0, 1, 2, 3, 4 or 8
	Imm    uint64 // raw little-endian bits, not sign extended
}

// RIPRelative reports whether the instruction's memory operand is encoded
// relative to the instruction pointer.
func (in *Inst) RIPRelative() bool {
	return in.HasModRM && in.Mod == 0 && in.RM == 5
}

type reader struct {
	code []byte
	pos  int
}

func (r *reader) peek() (byte, error) {
	if r.pos >= MaxLen {
		return 0, ErrTooLong
	}
	if r.pos >= len(r.code) {
		return 0, ErrTruncated
	}
	return r.code[r.pos], nil
}

func (r *reader) byte() (byte, error) {
	b, err := r.peek()
	if err == nil {
		r.pos++
	}
	return b, err
}

// uint reads n little-endian bytes.
func (r *reader) uint(n int) (uint64, error) {
	if r.pos+n > MaxLen {
		return 0, ErrTooLong
	}
	if r.pos+n > len(r.code) {
		return 0, ErrTruncated
	}
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(r.code[r.pos+i]) << (8 * i)
	}
	r.pos += n
	return v, nil
}

// Decode decodes the instruction at the start of code. On error the returned
// Inst holds whatever fields were decoded before the failure.
func Decode(code []byte) (Inst, error) {
	var in Inst
	r := reader{code: code}

	err := decodePrefixes(&in, &r)
	if err != nil {
		return in, err
	}

	attr, err := decodeOpcode(&in, &r)
	if err != nil {
		return in, err
	}
	if attr&opBad != 0 {
		return in, ErrInvalid
	}

	if attr&opModRM != 0 {
		if err := decodeModRM(&in, &r); err != nil {
			return in, err
		}
		// 8F is POP r/m only with /0; any other reg field is an XOP escape.
		if in.Opcode == 0x8F && in.Reg != 0 {
			return in, ErrInvalid
		}
	}

	if in.DispLen > 0 {
		raw, err := r.uint(in.DispLen)
		if err != nil {
			return in, err
		}
		if in.DispLen == 1 {
			in.Disp = int64(int8(raw))
		} else {
			in.Disp = int64(int32(raw))
		}
	}

	in.ImmLen = immSize(&in, attr)
	if in.ImmLen > 0 {
		raw, err := r.uint(in.ImmLen)
		if err != nil {
			return in, err
		}
		in.Imm = raw
	}

	in.Len = r.pos
	return in, nil
}

func decodePrefixes(in *Inst, r *reader) error {
	for {
		b, err := r.peek()
		if err != nil {
			return err
		}
		switch b {
		case 0xF0:
			in.Lock = true
		case 0xF2:
			in.Repne = true
		case 0xF3:
			in.Rep = true
		case 0x66:
			in.OpSize = true
		case 0x67:
			in.AddrSize = true
		case 0x26, 0x2E, 0x36, 0x3E, 0x64, 0x65:
			in.Seg = b
		default:
			if b&0xF0 == 0x40 {
				// REX must be the last prefix; a legacy prefix
				// after it would void it, which no assembler
				// emits, so stop the scan here.
				r.pos++
				in.Rex = b
				in.RexW = b&8 != 0
				in.RexR = b&4 != 0
				in.RexX = b&2 != 0
				in.RexB = b&1 != 0
			}
			return nil
		}
		r.pos++
	}
}

func decodeOpcode(in *Inst, r *reader) (uint16, error) {
	op, err := r.byte()
	if err != nil {
		return 0, err
	}
	in.Opcode = op

	if op != 0x0F {
		return oneByteAttr[op], nil
	}

	op2, err := r.byte()
	if err != nil {
		return 0, err
	}
	in.Opcode2 = op2

	switch op2 {
	case 0x38, 0x3A:
		op3, err := r.byte()
		if err != nil {
			return 0, err
		}
		in.Opcode3 = op3
		if op2 == 0x3A {
			return opModRM | opImm8, nil
		}
		return opModRM, nil
	}
	return twoByteAttr[op2], nil
}

func decodeModRM(in *Inst, r *reader) error {
	b, err := r.byte()
	if err != nil {
		return err
	}
	in.HasModRM = true
	in.ModRM = b
	in.Mod = b >> 6
	in.Reg = b >> 3 & 7
	in.RM = b & 7

	if in.Mod == 3 {
		return nil
	}

	if in.RM == 4 {
		sib, err := r.byte()
		if err != nil {
			return err
		}
		in.HasSIB = true
		in.SIB = sib
		in.Scale = sib >> 6
		in.Index = sib >> 3 & 7
		in.Base = sib & 7
	}

	switch in.Mod {
	case 0:
		if in.RM == 5 || (in.HasSIB && in.Base == 5) {
			in.DispLen = 4
		}
	case 1:
		in.DispLen = 1
	case 2:
		in.DispLen = 4
	}
	return nil
}

func immSize(in *Inst, attr uint16) int {
	if attr&opGroup3 != 0 && in.Reg > 1 {
		// F6/F7 carry an immediate only for TEST (/0 and /1).
		return 0
	}

	switch {
	case attr&opImm8 != 0, attr&opRel8 != 0:
		return 1
	case attr&opImm16 != 0:
		return 2
	case attr&opEnter != 0:
		// ENTER: imm16 frame size, imm8 nesting level.
		return 3
	case attr&opRel32 != 0:
		// Near branch displacement stays 32-bit in 64-bit mode
		// regardless of the operand-size prefix.
		return 4
	case attr&opImmZ != 0:
		if in.OpSize {
			return 2
		}
		return 4
	case attr&opImmV != 0:
		if in.RexW {
			return 8
		}
		if in.OpSize {
			return 2
		}
		return 4
	case attr&opMoffs != 0:
		if in.AddrSize {
			return 4
		}
		return 8
	}
	return 0
}
