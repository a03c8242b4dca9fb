package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesLinus/c-compiler/internal/abi"
	"github.com/JamesLinus/c-compiler/internal/ir"
	"github.com/JamesLinus/c-compiler/internal/symtab"
	"github.com/JamesLinus/c-compiler/internal/token"
	"github.com/JamesLinus/c-compiler/internal/types"
)

func parse(t *testing.T, src string) ([]*ir.Definition, *Parser) {
	t.Helper()
	arena := types.NewArena()
	lex := token.NewLexer("t.c", []byte(src))
	p := NewParser(lex, arena)
	defs := p.Parse()
	return defs, p
}

func findDef(defs []*ir.Definition, name string) *ir.Definition {
	for _, d := range defs {
		if d.Symbol.Name == name {
			return d
		}
	}
	return nil
}

// Scenario 1: int add(int a, int b) { return a + b; }
func TestAddFunction(t *testing.T) {
	defs, _ := parse(t, "int add(int a, int b) { return a + b; }")
	def := findDef(defs, "add")
	require.NotNil(t, def)
	assert.True(t, def.IsFunc)
	assert.Equal(t, symtab.DEFINITION, def.Symbol.Kind)
	// The entry block, plus the block opened after `return` that receives
	// the implicit fall-off return.
	require.Len(t, def.Blocks, 2)

	entry := def.Blocks[0]
	var adds, loads int
	for _, op := range entry.Code {
		switch op.Opcode {
		case ir.OP_ADD:
			adds++
		case ir.OP_LOAD:
			loads++
		}
	}
	assert.Equal(t, 1, adds)
	assert.Equal(t, ir.TERM_RETURN, entry.Terminator.Kind)
	require.NotNil(t, entry.Terminator.Expr)

	require.Len(t, def.Params, 2)
	argTypes := []*types.Type{def.Params[0].Type, def.Params[1].Type}
	cls := abi.ClassifyCall(argTypes, def.Params[0].Type)
	require.Len(t, cls.Args, 2)
	assert.Equal(t, []abi.Class{abi.INTEGER}, cls.Args[0].Classes)
	assert.Equal(t, []abi.Class{abi.INTEGER}, cls.Args[1].Classes)
	assert.Equal(t, []abi.Register{abi.DI}, cls.Args[0].Regs)
	assert.Equal(t, []abi.Register{abi.SI}, cls.Args[1].Regs)
	assert.False(t, cls.ReturnInMemory)
	assert.Len(t, cls.ReturnRegs, 1) // a single-eightbyte INTEGER return
	_ = loads
}

// Scenario 2: struct P { int x; char y; }; -> size 8, align 4, offsets 0, 4.
func TestStructLayout(t *testing.T) {
	_, p := parse(t, "struct P { int x; char y; };")
	sym := p.tags.Lookup("P")
	require.NotNil(t, sym)
	st := types.Unwrap(sym.Type)
	require.Len(t, st.Members, 2)
	assert.Equal(t, 0, st.Members[0].Offset)
	assert.Equal(t, 4, st.Members[1].Offset)
	assert.Equal(t, 8, types.SizeOf(st))
	assert.Equal(t, 4, types.Alignment(st))
}

// Scenario 3: char *s = "hello"; -> anonymous char[6] string-value symbol,
// s's initializer is the string's address.
func TestStringLiteralInitializer(t *testing.T) {
	defs, p := parse(t, `char *s = "hello";`)
	sym := p.idents.Lookup("s")
	require.NotNil(t, sym)
	def := findDef(defs, "s")
	require.NotNil(t, def)
	require.Len(t, def.Inits, 1)
	assert.Equal(t, ir.ADDRESS, def.Inits[0].Value.Kind)

	strSym := def.Inits[0].Value.Symbol
	require.NotNil(t, strSym)
	assert.Equal(t, symtab.STRING_VALUE, strSym.Kind)
	arrTy := types.Unwrap(strSym.Type)
	assert.Equal(t, types.TY_ARRAY, arrTy.Kind)
	assert.Equal(t, 6, arrTy.ArrayLen)

	strDef := findDef(defs, strSym.Name)
	require.NotNil(t, strDef)
	assert.Equal(t, "hello", string(leafBytes(strDef.Inits)))
}

func leafBytes(inits []ir.Init) []byte {
	out := make([]byte, len(inits)-1) // drop trailing NUL terminator leaf
	for _, in := range inits {
		if in.Offset < len(out) {
			out[in.Offset] = byte(in.Value.ImmInt)
		}
	}
	return out
}

// Scenario 4: enum { A = 1, B, C = 10, D }; -> A=1, B=2, C=10, D=11, type int.
func TestEnumSequentialAndOverriddenValues(t *testing.T) {
	_, p := parse(t, "enum { A = 1, B, C = 10, D };")
	want := map[string]int64{"A": 1, "B": 2, "C": 10, "D": 11}
	for name, val := range want {
		sym := p.idents.Lookup(name)
		require.NotNil(t, sym, "missing enumerator %q", name)
		assert.Equal(t, val, sym.EnumValue)
		assert.Equal(t, types.TY_SIGNED, types.Unwrap(sym.Type).Kind)
		assert.Equal(t, 4, types.SizeOf(sym.Type))
	}
}

// Scenario 5: int a[] = {1,2,3}; -> a's type becomes int[3].
func TestIncompleteArrayFromInitializer(t *testing.T) {
	_, p := parse(t, "int a[] = {1,2,3};")
	sym := p.idents.Lookup("a")
	require.NotNil(t, sym)
	arrTy := types.Unwrap(sym.Type)
	assert.Equal(t, types.TY_ARRAY, arrTy.Kind)
	assert.Equal(t, 3, arrTy.ArrayLen)
}

func TestIfElseProducesBranchingBlocks(t *testing.T) {
	defs, _ := parse(t, `
		int f(int a) {
			if (a) {
				return 1;
			} else {
				return 2;
			}
		}
	`)
	def := findDef(defs, "f")
	require.NotNil(t, def)
	require.Len(t, def.Entry.Code, 2) // load `a`, then compare it against 0
	assert.Equal(t, ir.TERM_BRANCH, def.Entry.Terminator.Kind)

	var returns int
	for _, blk := range def.Blocks {
		if blk.Terminator.Kind == ir.TERM_RETURN {
			returns++
		}
	}
	// The two explicit returns, plus the implicit fall-off return in the
	// (unreachable) merge block.
	assert.Equal(t, 3, returns)
}

func TestWhileLoopBackEdge(t *testing.T) {
	defs, _ := parse(t, `
		int f(int n) {
			int i;
			i = 0;
			while (i < n) {
				i = i + 1;
			}
			return i;
		}
	`)
	def := findDef(defs, "f")
	require.NotNil(t, def)

	var branches int
	for _, blk := range def.Blocks {
		if blk.Terminator.Kind == ir.TERM_BRANCH {
			branches++
		}
	}
	assert.Equal(t, 1, branches)
}
