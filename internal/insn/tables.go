package insn

// Opcode attributes. Prefix bytes never reach the opcode tables; they are
// consumed by the prefix scan first.
const (
	opModRM  uint16 = 1 << iota // has a ModR/M byte
	opImm8                      // 8-bit immediate
	opImm16                     // 16-bit immediate
	opImmZ                      // 16- or 32-bit immediate by operand size
	opImmV                      // 16-, 32- or 64-bit immediate (B8+r family)
	opMoffs                     // address-size-wide memory offset
	opRel8                      // 8-bit branch displacement
	opRel32                     // 32-bit branch displacement
	opGroup3                    // F6/F7: immediate present only for /0 and /1
	opEnter                     // C8: imm16 + imm8
	opBad                       // not valid in 64-bit mode
)

var (
	oneByteAttr [256]uint16
	twoByteAttr [256]uint16
)

func set(t *[256]uint16, lo, hi int, attr uint16) {
	for i := lo; i <= hi; i++ {
		t[i] = attr
	}
}

func init() {
	t := &oneByteAttr

	// ALU rows: ADD, OR, ADC, SBB, AND, SUB, XOR, CMP.
	for base := 0x00; base <= 0x38; base += 8 {
		set(t, base, base+3, opModRM)
		set(t, base+4, base+4, opImm8)
		set(t, base+5, base+5, opImmZ)
	}
	// 06/07/0E/16/17/1E/1F: segment push/pop, removed in 64-bit mode.
	// 27/2F/37/3F: BCD adjust, removed in 64-bit mode.
	for _, op := range []int{0x06, 0x07, 0x0E, 0x16, 0x17, 0x1E, 0x1F, 0x27, 0x2F, 0x37, 0x3F} {
		t[op] = opBad
	}

	set(t, 0x40, 0x4F, opBad) // REX bytes, never an opcode here
	set(t, 0x50, 0x5F, 0)     // PUSH/POP reg

	set(t, 0x60, 0x62, opBad) // PUSHA/POPA/EVEX
	t[0x63] = opModRM         // MOVSXD
	t[0x68] = opImmZ          // PUSH imm
	t[0x69] = opModRM | opImmZ
	t[0x6A] = opImm8 // PUSH imm8
	t[0x6B] = opModRM | opImm8
	set(t, 0x6C, 0x6F, 0) // INS/OUTS

	set(t, 0x70, 0x7F, opRel8) // Jcc short

	t[0x80] = opModRM | opImm8
	t[0x81] = opModRM | opImmZ
	t[0x82] = opBad
	t[0x83] = opModRM | opImm8
	set(t, 0x84, 0x8F, opModRM)

	set(t, 0x90, 0x9F, 0)
	t[0x9A] = opBad // far CALL, removed in 64-bit mode

	set(t, 0xA0, 0xA3, opMoffs)
	set(t, 0xA4, 0xA7, 0) // MOVS/CMPS
	t[0xA8] = opImm8
	t[0xA9] = opImmZ
	set(t, 0xAA, 0xAF, 0) // STOS/LODS/SCAS

	set(t, 0xB0, 0xB7, opImm8) // MOV r8, imm8
	set(t, 0xB8, 0xBF, opImmV) // MOV r, imm

	t[0xC0] = opModRM | opImm8
	t[0xC1] = opModRM | opImm8
	t[0xC2] = opImm16 // RET imm16
	t[0xC3] = 0
	t[0xC4] = opBad // VEX
	t[0xC5] = opBad // VEX
	t[0xC6] = opModRM | opImm8
	t[0xC7] = opModRM | opImmZ
	t[0xC8] = opEnter
	t[0xC9] = 0
	t[0xCA] = opImm16 // RETF imm16
	t[0xCB] = 0
	t[0xCC] = 0 // INT3
	t[0xCD] = opImm8
	t[0xCE] = opBad // INTO, removed in 64-bit mode
	t[0xCF] = 0

	set(t, 0xD0, 0xD3, opModRM) // shift groups
	set(t, 0xD4, 0xD6, opBad)   // AAM/AAD/SALC
	t[0xD7] = 0
	set(t, 0xD8, 0xDF, opModRM) // x87

	set(t, 0xE0, 0xE3, opRel8) // LOOP/JCXZ
	set(t, 0xE4, 0xE7, opImm8) // IN/OUT imm8
	t[0xE8] = opRel32          // CALL rel32
	t[0xE9] = opRel32          // JMP rel32
	t[0xEA] = opBad            // far JMP, removed in 64-bit mode
	t[0xEB] = opRel8           // JMP short
	set(t, 0xEC, 0xEF, 0)      // IN/OUT dx

	t[0xF1] = 0
	set(t, 0xF4, 0xF5, 0)
	t[0xF6] = opModRM | opImm8 | opGroup3
	t[0xF7] = opModRM | opImmZ | opGroup3
	set(t, 0xF8, 0xFD, 0)
	t[0xFE] = opModRM
	t[0xFF] = opModRM

	u := &twoByteAttr

	set(u, 0x00, 0x03, opModRM)
	u[0x04] = opBad
	set(u, 0x05, 0x09, 0) // SYSCALL, CLTS, SYSRET, INVD, WBINVD
	u[0x0A] = opBad
	u[0x0B] = 0 // UD2
	u[0x0C] = opBad
	u[0x0D] = opModRM // PREFETCH
	u[0x0E] = opBad
	u[0x0F] = opBad

	set(u, 0x10, 0x1F, opModRM) // SSE moves, hint NOPs
	set(u, 0x20, 0x23, opModRM) // MOV cr/dr
	set(u, 0x24, 0x27, opBad)
	set(u, 0x28, 0x2F, opModRM)

	set(u, 0x30, 0x35, 0) // WRMSR, RDTSC, RDMSR, RDPMC, SYSENTER, SYSEXIT
	u[0x36] = opBad
	u[0x37] = 0 // GETSEC
	// 38 and 3A escape to the three-byte maps before the table is consulted.
	u[0x38] = opBad
	u[0x39] = opBad
	u[0x3A] = opBad
	set(u, 0x3B, 0x3F, opBad)

	set(u, 0x40, 0x4F, opModRM) // CMOVcc
	set(u, 0x50, 0x6F, opModRM)

	set(u, 0x70, 0x73, opModRM|opImm8) // PSHUF, shift-by-imm groups
	set(u, 0x74, 0x76, opModRM)
	u[0x77] = 0 // EMMS
	u[0x78] = opModRM
	u[0x79] = opModRM
	u[0x7A] = opBad
	u[0x7B] = opBad
	set(u, 0x7C, 0x7F, opModRM)

	set(u, 0x80, 0x8F, opRel32) // Jcc near
	set(u, 0x90, 0x9F, opModRM) // SETcc

	set(u, 0xA0, 0xA2, 0) // PUSH/POP fs, CPUID
	u[0xA3] = opModRM
	u[0xA4] = opModRM | opImm8 // SHLD imm8
	u[0xA5] = opModRM
	u[0xA6] = opBad
	u[0xA7] = opBad
	set(u, 0xA8, 0xAA, 0) // PUSH/POP gs, RSM
	u[0xAB] = opModRM
	u[0xAC] = opModRM | opImm8 // SHRD imm8
	u[0xAD] = opModRM
	u[0xAE] = opModRM // fence/state groups
	u[0xAF] = opModRM // IMUL

	set(u, 0xB0, 0xB9, opModRM)
	u[0xBA] = opModRM | opImm8 // BT group
	set(u, 0xBB, 0xBF, opModRM)

	u[0xC0] = opModRM
	u[0xC1] = opModRM
	u[0xC2] = opModRM | opImm8 // CMPPS
	u[0xC3] = opModRM
	set(u, 0xC4, 0xC6, opModRM|opImm8) // PINSRW, PEXTRW, SHUFPS
	u[0xC7] = opModRM                  // CMPXCHG8B group
	set(u, 0xC8, 0xCF, 0)              // BSWAP

	set(u, 0xD0, 0xFF, opModRM)
}
