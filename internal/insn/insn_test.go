package insn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"
)

func TestDecodeLength(t *testing.T) {
	cases := []struct {
		name string
		code []byte
		len  int
	}{
		{"push rbp", []byte{0x55}, 1},
		{"push r15", []byte{0x41, 0x57}, 2},
		{"mov rbp, rsp", []byte{0x48, 0x89, 0xE5}, 3},
		{"sub rsp, imm8", []byte{0x48, 0x83, 0xEC, 0x28}, 4},
		{"mov eax, imm32", []byte{0xB8, 0x07, 0x00, 0x00, 0x00}, 5},
		{"mov ax, imm16", []byte{0x66, 0xB8, 0x34, 0x12}, 4},
		{"movabs rax, imm64", []byte{0x48, 0xB8, 1, 2, 3, 4, 5, 6, 7, 8}, 10},
		{"mov rax, [rip+disp32]", []byte{0x48, 0x8B, 0x05, 0x78, 0x56, 0x34, 0x12}, 7},
		{"lea rdi, [rip+disp32]", []byte{0x48, 0x8D, 0x3D, 0x01, 0x00, 0x00, 0x00}, 7},
		{"mov rax, fs:[0x28]", []byte{0x64, 0x48, 0x8B, 0x04, 0x25, 0x28, 0x00, 0x00, 0x00}, 9},
		{"mov dword [rbp-4], imm32", []byte{0xC7, 0x45, 0xFC, 0x01, 0x00, 0x00, 0x00}, 7},
		{"mov rax, imm32 sx", []byte{0x48, 0xC7, 0xC0, 0x2A, 0x00, 0x00, 0x00}, 7},
		{"ret", []byte{0xC3}, 1},
		{"ret imm16", []byte{0xC2, 0x08, 0x00}, 3},
		{"call rel32", []byte{0xE8, 0x10, 0x00, 0x00, 0x00}, 5},
		{"jmp rel32", []byte{0xE9, 0x10, 0x00, 0x00, 0x00}, 5},
		{"jmp short", []byte{0xEB, 0x05}, 2},
		{"je short", []byte{0x74, 0x10}, 2},
		{"je near", []byte{0x0F, 0x84, 0x10, 0x00, 0x00, 0x00}, 6},
		{"jrcxz", []byte{0xE3, 0x05}, 2},
		{"int3", []byte{0xCC}, 1},
		{"test al, imm8", []byte{0xF6, 0xC0, 0x01}, 3},
		{"neg al", []byte{0xF6, 0xD8}, 2},
		{"test edi, imm32", []byte{0xF7, 0xC7, 0x00, 0x00, 0x00, 0x01}, 6},
		{"not rdx", []byte{0x48, 0xF7, 0xD2}, 3},
		{"nop5", []byte{0x0F, 0x1F, 0x44, 0x00, 0x00}, 5},
		{"nop9", []byte{0x66, 0x0F, 0x1F, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00}, 9},
		{"push imm8", []byte{0x6A, 0x08}, 2},
		{"push imm32", []byte{0x68, 0x00, 0x01, 0x00, 0x00}, 5},
		{"enter", []byte{0xC8, 0x10, 0x00, 0x00}, 4},
		{"mov al, moffs64", []byte{0xA0, 1, 2, 3, 4, 5, 6, 7, 8}, 9},
		{"movabs rax, moffs64", []byte{0x48, 0xA1, 1, 2, 3, 4, 5, 6, 7, 8}, 10},
		{"lock cmpxchg", []byte{0xF0, 0x48, 0x0F, 0xB1, 0x0E}, 5},
		{"rep movsb", []byte{0xF3, 0xA4}, 2},
		{"movzx eax, byte [rdi]", []byte{0x0F, 0xB6, 0x07}, 3},
		{"movsxd rax, edi", []byte{0x48, 0x63, 0xC7}, 3},
		{"cmovne rax, rbx", []byte{0x48, 0x0F, 0x45, 0xC3}, 4},
		{"movups xmm0, [rax]", []byte{0x0F, 0x10, 0x00}, 3},
		{"pshufd xmm0, xmm1, 1", []byte{0x66, 0x0F, 0x70, 0xC1, 0x01}, 5},
		{"bt group imm8", []byte{0x0F, 0xBA, 0xE0, 0x04}, 4},
		{"pmulld xmm0, xmm1", []byte{0x66, 0x0F, 0x38, 0x40, 0xC1}, 5},
		{"palignr xmm0, xmm1, 4", []byte{0x66, 0x0F, 0x3A, 0x0F, 0xC1, 0x04}, 6},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, err := Decode(tc.code)
			require.NoError(t, err)
			assert.Equal(t, tc.len, in.Len)
		})
	}
}

func TestDecodeFields(t *testing.T) {
	t.Run("rex bits", func(t *testing.T) {
		in, err := Decode([]byte{0x4C, 0x89, 0xE5}) // mov rbp, r12
		require.NoError(t, err)
		assert.True(t, in.RexW)
		assert.True(t, in.RexR)
		assert.False(t, in.RexX)
		assert.False(t, in.RexB)
		assert.Equal(t, byte(3), in.Mod)
		assert.Equal(t, byte(4), in.Reg)
		assert.Equal(t, byte(5), in.RM)
	})

	t.Run("rip relative", func(t *testing.T) {
		in, err := Decode([]byte{0x48, 0x8D, 0x05, 0xF8, 0xFF, 0xFF, 0xFF})
		require.NoError(t, err)
		assert.True(t, in.RIPRelative())
		assert.Equal(t, 4, in.DispLen)
		assert.Equal(t, int64(-8), in.Disp)
	})

	t.Run("not rip relative when mod 1", func(t *testing.T) {
		in, err := Decode([]byte{0x48, 0x8B, 0x45, 0xF8}) // mov rax, [rbp-8]
		require.NoError(t, err)
		assert.False(t, in.RIPRelative())
		assert.Equal(t, int64(-8), in.Disp)
	})

	t.Run("sib", func(t *testing.T) {
		in, err := Decode([]byte{0x48, 0x8B, 0x44, 0xC8, 0x10}) // mov rax, [rax+rcx*8+0x10]
		require.NoError(t, err)
		require.True(t, in.HasSIB)
		assert.Equal(t, byte(3), in.Scale)
		assert.Equal(t, byte(1), in.Index)
		assert.Equal(t, byte(0), in.Base)
		assert.Equal(t, 1, in.DispLen)
	})

	t.Run("branch immediate", func(t *testing.T) {
		in, err := Decode([]byte{0xE8, 0x10, 0x20, 0x30, 0x40})
		require.NoError(t, err)
		assert.Equal(t, 4, in.ImmLen)
		assert.Equal(t, uint64(0x40302010), in.Imm)
	})

	t.Run("prefixes", func(t *testing.T) {
		in, err := Decode([]byte{0xF0, 0x48, 0x0F, 0xB1, 0x0E})
		require.NoError(t, err)
		assert.True(t, in.Lock)
		assert.Equal(t, byte(0x0F), in.Opcode)
		assert.Equal(t, byte(0xB1), in.Opcode2)
	})
}

func TestDecodeErrors(t *testing.T) {
	t.Run("invalid in 64-bit mode", func(t *testing.T) {
		for _, op := range []byte{0x06, 0x27, 0x60, 0x9A, 0xCE, 0xD4, 0xEA} {
			_, err := Decode([]byte{op, 0, 0, 0, 0, 0, 0, 0})
			assert.ErrorIs(t, err, ErrInvalid, "opcode %#x", op)
		}
	})

	t.Run("vex evex", func(t *testing.T) {
		_, err := Decode([]byte{0xC5, 0xF8, 0x10, 0xC1})
		assert.ErrorIs(t, err, ErrInvalid)
		_, err = Decode([]byte{0xC4, 0xE1, 0x78, 0x10, 0xC1})
		assert.ErrorIs(t, err, ErrInvalid)
		_, err = Decode([]byte{0x62, 0xF1, 0x7C, 0x48, 0x10, 0xC1})
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := Decode([]byte{0x48, 0x8B})
		assert.ErrorIs(t, err, ErrTruncated)
		_, err = Decode([]byte{0xE8, 0x01, 0x02})
		assert.ErrorIs(t, err, ErrTruncated)
		_, err = Decode(nil)
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("too long", func(t *testing.T) {
		code := make([]byte, 20)
		for i := range code {
			code[i] = 0x66
		}
		_, err := Decode(code)
		assert.ErrorIs(t, err, ErrTooLong)
	})
}

// TestDecodeAgainstX86asm cross-checks instruction lengths against the
// reference decoder over typical compiler output.
func TestDecodeAgainstX86asm(t *testing.T) {
	corpus := [][]byte{
		{0x55},
		{0x41, 0x54},
		{0x41, 0x57},
		{0x48, 0x89, 0xE5},
		{0x48, 0x89, 0x7D, 0xE8},
		{0x48, 0x83, 0xEC, 0x28},
		{0x48, 0x81, 0xEC, 0x88, 0x00, 0x00, 0x00},
		{0x49, 0x3B, 0x66, 0x10},
		{0x76, 0x2A},
		{0xB8, 0x07, 0x00, 0x00, 0x00},
		{0x48, 0xB8, 1, 2, 3, 4, 5, 6, 7, 8},
		{0x48, 0x8B, 0x05, 0x78, 0x56, 0x34, 0x12},
		{0x48, 0x8D, 0x3D, 0x01, 0x00, 0x00, 0x00},
		{0x8B, 0x44, 0x24, 0x08},
		{0x89, 0x54, 0x24, 0x10},
		{0xC7, 0x45, 0xFC, 0x01, 0x00, 0x00, 0x00},
		{0xC3},
		{0xC2, 0x08, 0x00},
		{0xE8, 0x10, 0x00, 0x00, 0x00},
		{0xE9, 0x10, 0x00, 0x00, 0x00},
		{0xEB, 0x05},
		{0x74, 0x10},
		{0x0F, 0x84, 0x10, 0x00, 0x00, 0x00},
		{0x0F, 0x85, 0xF0, 0xFF, 0xFF, 0xFF},
		{0xCC},
		{0x0F, 0x1F, 0x44, 0x00, 0x00},
		{0x66, 0x0F, 0x1F, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00},
		{0x31, 0xC0},
		{0x48, 0x85, 0xC0},
		{0x48, 0x63, 0xC7},
		{0x0F, 0xB6, 0x07},
		{0x0F, 0xB7, 0x47, 0x08},
		{0x48, 0x0F, 0x45, 0xC3},
		{0xF3, 0x0F, 0x10, 0x07},
		{0xF2, 0x0F, 0x11, 0x47, 0x08},
		{0x66, 0x0F, 0x70, 0xC1, 0x01},
		{0x6A, 0x08},
		{0x68, 0x00, 0x01, 0x00, 0x00},
		{0xF6, 0xC0, 0x01},
		{0x48, 0xF7, 0xD2},
		{0xF0, 0x48, 0x0F, 0xB1, 0x0E},
	}

	for _, code := range corpus {
		in, err := Decode(code)
		require.NoError(t, err, "decode %#x", code)

		ref, err := x86asm.Decode(code, 64)
		require.NoError(t, err, "x86asm decode %#x", code)
		assert.Equal(t, ref.Len, in.Len, "length mismatch for %#x (%s)", code, ref)
	}
}
