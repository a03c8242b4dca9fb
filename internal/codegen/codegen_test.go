package codegen

import (
	"bytes"
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesLinus/c-compiler/internal/elfobj"
	"github.com/JamesLinus/c-compiler/internal/ir"
	"github.com/JamesLinus/c-compiler/internal/parser"
	"github.com/JamesLinus/c-compiler/internal/symtab"
	"github.com/JamesLinus/c-compiler/internal/token"
	"github.com/JamesLinus/c-compiler/internal/types"
)

func compile(t *testing.T, src string) []byte {
	t.Helper()
	arena := types.NewArena()
	p := parser.NewParser(token.NewLexer("t.c", []byte(src)), arena)
	defs := p.Parse()

	obj := elfobj.NewObject()
	require.NoError(t, New(obj).Compile(defs))
	out, err := obj.Bytes()
	require.NoError(t, err)
	return out
}

func TestLayoutFrameAssignsDistinctAlignedSlots(t *testing.T) {
	a := types.NewArena()
	ch := a.Init(types.TY_SIGNED, 1)
	ints := a.Init(types.TY_SIGNED, 4)
	long := a.Init(types.TY_SIGNED, 8)

	def := &ir.Definition{Symbol: &symtab.Symbol{Name: "f"}, IsFunc: true}
	s1 := &symtab.Symbol{Name: "c", Type: ch}
	s2 := &symtab.Symbol{Name: "i", Type: ints}
	s3 := &symtab.Symbol{Name: "l", Type: long}
	def.AddLocal(s1)
	def.AddLocal(s2)
	def.AddLocal(s3)

	frame := layoutFrame(def)
	require.Contains(t, frame.offsets, s1)
	require.Contains(t, frame.offsets, s2)
	require.Contains(t, frame.offsets, s3)

	off1, off2, off3 := frame.offsets[s1], frame.offsets[s2], frame.offsets[s3]
	assert.NotEqual(t, off1, off2)
	assert.NotEqual(t, off2, off3)
	assert.True(t, off1 < 0 && off2 < 0 && off3 < 0, "rbp-relative locals sit below the frame pointer")
	assert.Equal(t, int32(0), frame.size%16, "frame size must satisfy System V 16-byte stack alignment")
	assert.Equal(t, int32(0), off3%8, "an 8-byte long must land at an 8-byte-aligned offset")
}

func TestCompileAddFunctionProducesValidObject(t *testing.T) {
	out := compile(t, "int add(int a, int b) { return a + b; }")

	require.Equal(t, []byte{0x7f, 'E', 'L', 'F'}, out[:4])
	f, err := elf.NewFile(bytes.NewReader(out))
	require.NoError(t, err)

	sym, err := f.Symbols()
	require.NoError(t, err)
	var found *elf.Symbol
	for i := range sym {
		if sym[i].Name == "add" {
			found = &sym[i]
		}
	}
	require.NotNil(t, found, "add must appear in .symtab")
	assert.Equal(t, elf.STT_FUNC, elf.ST_TYPE(found.Info))
	assert.Equal(t, elf.STB_GLOBAL, elf.ST_BIND(found.Info))

	text := f.Section(".text")
	require.NotNil(t, text)
	assert.True(t, text.Size > 0)
}

func TestCompileStringLiteralRoutesToRodata(t *testing.T) {
	out := compile(t, `char *s = "hello";`)

	f, err := elf.NewFile(bytes.NewReader(out))
	require.NoError(t, err)

	rodata := f.Section(".rodata")
	require.NotNil(t, rodata)
	assert.EqualValues(t, 6, rodata.Size) // "hello" + NUL terminator

	data := f.Section(".data")
	require.NotNil(t, data)
	assert.True(t, data.Size > 0) // s itself: one 8-byte pointer slot
}

func TestCompileStaticFunctionIsLocalSymbol(t *testing.T) {
	out := compile(t, "static int helper(void) { return 0; }")

	f, err := elf.NewFile(bytes.NewReader(out))
	require.NoError(t, err)
	syms, err := f.Symbols()
	require.NoError(t, err)
	var found *elf.Symbol
	for i := range syms {
		if syms[i].Name == "helper" {
			found = &syms[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, elf.STB_LOCAL, elf.ST_BIND(found.Info))
}
