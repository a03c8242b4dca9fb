package x64

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesLinus/c-compiler/internal/elfobj"
)

// fakeWriter is a minimal elfobj.Writer stand-in that just accumulates
// text bytes and records relocations, enough to exercise Encode without
// building a full Object.
type fakeWriter struct {
	text   []byte
	relocs []reloc
	labels map[string]int
}

type reloc struct {
	sym    string
	kind   elfobj.RelocKind
	offset int
	addend int64
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{labels: make(map[string]int)}
}

func (f *fakeWriter) AppendText(b []byte) int {
	off := len(f.text)
	f.text = append(f.text, b...)
	return off
}
func (f *fakeWriter) AppendRodata(b []byte) int { return 0 }
func (f *fakeWriter) AppendData(b []byte) int    { return 0 }
func (f *fakeWriter) AddRelocText(sym string, kind elfobj.RelocKind, textOffset int, addend int64) {
	f.relocs = append(f.relocs, reloc{sym, kind, textOffset, addend})
}
func (f *fakeWriter) TextDisplacement(sym string, fieldOffset int) int32 {
	if target, ok := f.labels[sym]; ok {
		return int32(target - (fieldOffset + 4))
	}
	return 0
}

func TestEncodeIsDeterministic(t *testing.T) {
	ins := Instruction{Op: MOVABS, Dst: Reg(RAX), Src: Imm64(0x12345678)}
	w1, w2 := newFakeWriter(), newFakeWriter()
	b1, err1 := NewEncoder(w1).Encode(ins)
	b2, err2 := NewEncoder(w2).Encode(ins)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, b1, b2)
}

func TestMovImm64(t *testing.T) {
	w := newFakeWriter()
	b, err := NewEncoder(w).Encode(Instruction{Op: MOVABS, Dst: Reg(RAX), Src: Imm64(0x12345678)})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x48, 0xc7, 0xc0, 0x78, 0x56, 0x34, 0x12}, b)
}

func TestRet(t *testing.T) {
	w := newFakeWriter()
	b, err := NewEncoder(w).Encode(Instruction{Op: RET})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xc3}, b)
}

func TestRepMovsq(t *testing.T) {
	w := newFakeWriter()
	b, err := NewEncoder(w).Encode(Instruction{Op: REPMOVSQ})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xf3, 0x48, 0xa5}, b)
}

func TestAddRegReg(t *testing.T) {
	w := newFakeWriter()
	b, err := NewEncoder(w).Encode(Instruction{Op: ADD, Width: 8, Dst: Reg(RDI), Src: Reg(RSI)})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x48, 0x01, 0xf7}, b)
}

func TestAddImmRegSelectsImm8(t *testing.T) {
	w := newFakeWriter()
	b, err := NewEncoder(w).Encode(Instruction{Op: ADD, Width: 8, Dst: Reg(RAX), Src: Imm32(5)})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x48, 0x83, 0xc0, 0x05}, b)
}

func TestAddImmRegSelectsImm32(t *testing.T) {
	w := newFakeWriter()
	b, err := NewEncoder(w).Encode(Instruction{Op: ADD, Width: 8, Dst: Reg(RAX), Src: Imm32(70000)})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x48, 0x81, 0xc0, 0x70, 0x11, 0x01, 0x00}, b)
}

func TestAddImmMem(t *testing.T) {
	w := newFakeWriter()
	b, err := NewEncoder(w).Encode(Instruction{Op: ADD, Width: 8, Dst: Mem(RBP, -8), Src: Imm32(1)})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x48, 0x83, 0x45, 0xf8, 0x01}, b)
}

func TestShrAndSarDiffer(t *testing.T) {
	w := newFakeWriter()
	shr, err := NewEncoder(w).Encode(Instruction{Op: SHR, Width: 8, Dst: Reg(RAX), Src: Imm32(3)})
	require.NoError(t, err)
	sar, err := NewEncoder(w).Encode(Instruction{Op: SAR, Width: 8, Dst: Reg(RAX), Src: Imm32(3)})
	require.NoError(t, err)
	assert.NotEqual(t, shr, sar)
	assert.Equal(t, []byte{0x48, 0xc1, 0xe8, 0x03}, shr)
	assert.Equal(t, []byte{0x48, 0xc1, 0xf8, 0x03}, sar)
}

func TestNotOnByteRegisterEmitsRex(t *testing.T) {
	w := newFakeWriter()
	b, err := NewEncoder(w).Encode(Instruction{Op: NOT, Width: 1, Dst: Reg(RDI)})
	require.NoError(t, err)
	require.Len(t, b, 3)
	assert.Equal(t, byte(0x40), b[0]&0xf0)
}

func TestDirectCallRegistersPC32Relocation(t *testing.T) {
	w := newFakeWriter()
	// A prior instruction occupies the first 10 bytes of .text.
	w.text = make([]byte, 10)
	b, err := NewEncoder(w).Encode(Instruction{Op: CALL, Dst: Sym("printf", false)})
	require.NoError(t, err)
	assert.Equal(t, byte(0xe8), b[0])
	require.Len(t, w.relocs, 1)
	assert.Equal(t, "printf", w.relocs[0].sym)
	assert.Equal(t, elfobj.R_X86_64_PC32, w.relocs[0].kind)
	assert.Equal(t, 11, w.relocs[0].offset) // textOffset(10) + 1 byte opcode
	assert.Equal(t, int64(-4), w.relocs[0].addend)
}

func TestJumpOffsetInvariant(t *testing.T) {
	w := newFakeWriter()
	w.labels["L"] = 0 // backward label already at offset 0
	w.text = make([]byte, 20)
	b, err := NewEncoder(w).Encode(Instruction{Op: JMP, Dst: Sym("L", false)})
	require.NoError(t, err)
	// jump field is the last 4 bytes; F (field start) = 20+1, so the
	// written displacement must equal L - (F+4).
	fieldStart := 20 + 1
	want := int32(0 - (fieldStart + 4))
	got := int32(b[1]) | int32(b[2])<<8 | int32(b[3])<<16 | int32(b[4])<<24
	assert.Equal(t, want, got)
}

func TestJccUsesTwoByteOpcode(t *testing.T) {
	w := newFakeWriter()
	w.labels["done"] = 100
	b, err := NewEncoder(w).Encode(Instruction{Op: JCC, CC: CondE, Dst: Sym("done", false)})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0f, 0x84}, b[:2])
	assert.Len(t, b, 6)
}

func TestMovapsRegToReg(t *testing.T) {
	w := newFakeWriter()
	b, err := NewEncoder(w).Encode(Instruction{Op: MOVAPS, Dst: Reg(RAX), Src: Reg(RCX)})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0f, 0x28, 0xc1}, b)
}

func TestLeaRipRelativeRegistersReloc(t *testing.T) {
	w := newFakeWriter()
	b, err := NewEncoder(w).Encode(Instruction{Op: LEA, Dst: Reg(RAX), Src: Sym("msg", true)})
	require.NoError(t, err)
	require.Len(t, b, 7) // REX + 8D + modrm + disp32
	require.Len(t, w.relocs, 1)
	assert.Equal(t, "msg", w.relocs[0].sym)
	assert.Equal(t, int64(-4), w.relocs[0].addend)
}
