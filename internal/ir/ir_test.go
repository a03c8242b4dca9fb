package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesLinus/c-compiler/internal/symtab"
)

func TestBlocksOwnedByCurrentDefinition(t *testing.T) {
	b := NewBuilder()
	def := b.StartDefinition(&symtab.Symbol{Name: "add"}, true)
	blk1 := b.NewBlock()
	blk2 := b.NewBlock()
	require.Len(t, def.Blocks, 2)
	assert.Same(t, blk1, def.Blocks[0])
	assert.Same(t, blk2, def.Blocks[1])

	b.FinishDefinition(def)
	assert.Nil(t, b.Current())

	got, ok := b.Pop()
	require.True(t, ok)
	assert.Same(t, def, got)

	_, ok = b.Pop()
	assert.False(t, ok)
}

func TestFallbackOwnerOutsideDefinition(t *testing.T) {
	b := NewBuilder()
	blk := b.NewBlock()
	assert.NotNil(t, blk)
	assert.Equal(t, 0, b.Pending()) // fallback blocks are never buffered
}

func TestResumeRestoresEnclosingDefinition(t *testing.T) {
	b := NewBuilder()
	outer := b.StartDefinition(&symtab.Symbol{Name: "main"}, true)
	outerBlk := b.NewBlock()
	require.Same(t, outer, b.Current())

	enclosing := b.Current()
	inner := b.StartDefinition(&symtab.Symbol{Name: ".LC1"}, false)
	b.NewBlock() // owned by inner, not outer
	b.FinishDefinition(inner)
	assert.Nil(t, b.Current())
	b.Resume(enclosing)

	assert.Same(t, outer, b.Current())
	laterBlk := b.NewBlock()
	require.Len(t, outer.Blocks, 2)
	assert.Same(t, outerBlk, outer.Blocks[0])
	assert.Same(t, laterBlk, outer.Blocks[1])
	require.Len(t, inner.Blocks, 1)
}

func TestBranchTerminatorShape(t *testing.T) {
	b := NewBuilder()
	def := b.StartDefinition(&symtab.Symbol{Name: "f"}, true)
	then := b.NewBlock()
	els := b.NewBlock()
	head := b.NewBlock()
	head.Terminator = Terminator{Kind: TERM_BRANCH, Then: then, Else: els}
	b.FinishDefinition(def)

	assert.Equal(t, TERM_BRANCH, head.Terminator.Kind)
	assert.Same(t, then, head.Terminator.Then)
	assert.Same(t, els, head.Terminator.Else)
}
