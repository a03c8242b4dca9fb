package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesLinus/c-compiler/internal/types"
)

func TestScalarClassification(t *testing.T) {
	a := types.NewArena()
	ints := a.Init(types.TY_SIGNED, 4)
	long := a.Init(types.TY_SIGNED, 8)
	dbl := a.Init(types.TY_REAL, 8)
	ptr := a.InitPointer(ints)

	assert.Equal(t, []Class{INTEGER}, Classify(ints))
	assert.Equal(t, []Class{INTEGER}, Classify(long))
	assert.Equal(t, []Class{SSE}, Classify(dbl))
	assert.Equal(t, []Class{INTEGER}, Classify(ptr))
}

func TestVectorLengthInvariant(t *testing.T) {
	a := types.NewArena()
	ints := a.Init(types.TY_SIGNED, 4)
	long := a.Init(types.TY_SIGNED, 8)

	// struct P { int x; char y; } -> size 8, one eight-byte, not MEMORY.
	ch := a.Init(types.TY_SIGNED, 1)
	st := a.Init(types.TY_STRUCT, 0)
	st.AddMember("x", ints)
	st.AddMember("y", ch)
	classes := Classify(st)
	require.NotEqual(t, MEMORY, classes[0])
	wantLen := (types.SizeOf(st) + 7) / 8
	assert.Equal(t, wantLen, len(classes))

	// five-eight-byte aggregate always collapses to MEMORY.
	big := a.Init(types.TY_STRUCT, 0)
	for i := 0; i < 5; i++ {
		big.AddMember("f", long)
	}
	classesBig := Classify(big)
	assert.Equal(t, []Class{MEMORY}, classesBig)
	assert.Len(t, classesBig, 1)
}

func TestMisalignedMemberForcesMemory(t *testing.T) {
	a := types.NewArena()
	ints := a.Init(types.TY_SIGNED, 4)
	// Hand-construct a struct with a member at an unnatural offset,
	// bypassing AddMember's own layout so the classifier's own check is
	// exercised independent of the layout engine.
	st := &types.Type{Kind: types.TY_STRUCT, Size: 8}
	st.Members = []types.Member{{Name: "a", Type: ints, Offset: 1}}
	assert.Equal(t, []Class{MEMORY}, Classify(st))
}

func TestClassifyCallAddExample(t *testing.T) {
	// int add(int a, int b) { return a + b; } -> both params INTEGER,
	// both fit in DI/SI, return stays in registers (not MEMORY).
	a := types.NewArena()
	ints := a.Init(types.TY_SIGNED, 4)

	cc := ClassifyCall([]*types.Type{ints, ints}, ints)
	assert.False(t, cc.ReturnInMemory)
	require.Len(t, cc.Args, 2)
	assert.Equal(t, []Register{DI}, cc.Args[0].Regs)
	assert.Equal(t, []Register{SI}, cc.Args[1].Regs)
	assert.False(t, cc.Args[0].InMemory)
	assert.False(t, cc.Args[1].InMemory)
}

func TestClassifyCallMemoryReturnReservesHiddenPointer(t *testing.T) {
	a := types.NewArena()
	long := a.Init(types.TY_SIGNED, 8)
	big := a.Init(types.TY_STRUCT, 0)
	for i := 0; i < 5; i++ {
		big.AddMember("f", long)
	}
	ints := a.Init(types.TY_SIGNED, 4)

	cc := ClassifyCall([]*types.Type{ints}, big)
	require.True(t, cc.ReturnInMemory)
	assert.Equal(t, DI, cc.HiddenPointer)
	require.Len(t, cc.Args, 1)
	assert.Equal(t, []Register{SI}, cc.Args[0].Regs)
}

func TestClassifyCallSpillsWhenRegistersExhausted(t *testing.T) {
	a := types.NewArena()
	long := a.Init(types.TY_SIGNED, 8)
	// A four-eight-byte INTEGER aggregate (32 bytes, all int fields)
	// needs 4 integer registers; the first one takes DI..CX, leaving only
	// R8/R9, so the second one cannot fit and must spill whole.
	agg := a.Init(types.TY_STRUCT, 0)
	for i := 0; i < 4; i++ {
		agg.AddMember("f", long)
	}
	cc := ClassifyCall([]*types.Type{agg, agg}, nil)
	require.Len(t, cc.Args, 2)
	assert.False(t, cc.Args[0].InMemory)
	assert.Len(t, cc.Args[0].Regs, 4)
	assert.True(t, cc.Args[1].InMemory)
	assert.Empty(t, cc.Args[1].Regs)
}
