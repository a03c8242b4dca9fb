package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func basicInts(a *Arena) (char, short, ints, long *Type) {
	char = a.Init(TY_SIGNED, 1)
	short = a.Init(TY_SIGNED, 2)
	ints = a.Init(TY_SIGNED, 4)
	long = a.Init(TY_SIGNED, 8)
	return
}

func TestStructLayoutAlignmentInvariant(t *testing.T) {
	a := NewArena()
	_, _, ints, long := basicInts(a)
	ch := a.Init(TY_SIGNED, 1)

	st := a.Init(TY_STRUCT, 0)
	st.AddMember("x", ints)
	st.AddMember("y", ch)
	st.AddMember("z", long)

	for _, m := range st.Members {
		align := Alignment(m.Type)
		assert.Equalf(t, 0, m.Offset%align, "member %q offset %d not aligned to %d", m.Name, m.Offset, align)
	}
	assert.Equal(t, 0, SizeOf(st)%Alignment(st))
}

func TestStructPOffsets(t *testing.T) {
	// struct P { int x; char y; }; -> size 8, align 4, offsets 0 and 4.
	a := NewArena()
	_, _, ints, _ := basicInts(a)
	ch := a.Init(TY_SIGNED, 1)
	st := a.Init(TY_STRUCT, 0)
	st.AddMember("x", ints)
	st.AddMember("y", ch)

	require.Len(t, st.Members, 2)
	assert.Equal(t, 0, st.Members[0].Offset)
	assert.Equal(t, 4, st.Members[1].Offset)
	assert.Equal(t, 8, st.Size)
	assert.Equal(t, 4, Alignment(st))
}

func TestUnionSizeIsMax(t *testing.T) {
	a := NewArena()
	_, _, ints, long := basicInts(a)
	un := a.Init(TY_UNION, 0)
	un.AddMember("i", ints)
	un.AddMember("l", long)
	assert.Equal(t, 8, un.Size)
	for _, m := range un.Members {
		assert.Equal(t, 0, m.Offset)
	}
}

func TestEqualReflexiveSymmetric(t *testing.T) {
	a := NewArena()
	_, _, ints, _ := basicInts(a)
	ptr := a.InitPointer(ints)
	arr := a.InitArray(ints, 4)

	for _, ty := range []*Type{ints, ptr, arr} {
		assert.True(t, Equal(ty, ty))
	}

	ints2 := a.Init(TY_SIGNED, 4)
	assert.True(t, Equal(ints, ints2))
	assert.True(t, Equal(ints2, ints))
	assert.Equal(t, Equal(ints, ints2), IsCompatible(ints, ints2))
}

func TestTaggedEqualityByDefinitionIdentity(t *testing.T) {
	a := NewArena()
	def := a.Init(TY_STRUCT, 0)
	tag1 := a.TaggedCopy(def, "Point")
	tag2 := a.TaggedCopy(def, "Point")
	assert.True(t, Equal(tag1, tag2))

	other := a.Init(TY_STRUCT, 0)
	tagOther := a.TaggedCopy(other, "Other")
	assert.False(t, Equal(tag1, tagOther))
}

func TestIncompleteArrayCompletion(t *testing.T) {
	// int a[] = {1,2,3}; -> rewritten to int[3]
	a := NewArena()
	_, _, ints, _ := basicInts(a)
	arr := a.InitArray(ints, 0)
	assert.False(t, IsComplete(arr))
	arr.SetArrayLen(3)
	assert.True(t, IsComplete(arr))
	assert.Equal(t, 12, arr.Size)
}

func TestUsualArithmeticConversion(t *testing.T) {
	a := NewArena()
	char, short, ints, long := basicInts(a)
	uShort := a.Init(TY_UNSIGNED, 2)
	uInt := a.Init(TY_UNSIGNED, 4)

	assert.True(t, Equal(UsualArithmeticConversion(char, char, ints, uInt), ints))
	assert.True(t, Equal(UsualArithmeticConversion(uShort, ints, ints, uInt), ints))
	assert.True(t, Equal(UsualArithmeticConversion(uInt, long, ints, uInt), long))

	// ties on width favor the unsigned operand
	tied := UsualArithmeticConversion(uInt, ints, ints, uInt)
	assert.True(t, Equal(tied, uInt))
	_ = short
}

func TestVariadicFunctionMember(t *testing.T) {
	a := NewArena()
	_, _, ints, _ := basicInts(a)
	fn := a.Init(TY_FUNCTION, 0)
	fn.Next = ints
	fn.AddMember("fmt", a.InitPointer(ints))
	fn.AddMember(VariadicName, nil)
	assert.True(t, IsVararg(fn))
	assert.Equal(t, 1, NMembers(fn))
}

func TestArrayParamDecaysToPointer(t *testing.T) {
	a := NewArena()
	_, _, ints, _ := basicInts(a)
	fn := a.Init(TY_FUNCTION, 0)
	fn.Next = ints
	arrParam := a.InitArray(ints, 4)
	fn.AddMember("buf", arrParam)
	require.Len(t, fn.Members, 1)
	assert.Equal(t, TY_POINTER, fn.Members[0].Type.Kind)
}
