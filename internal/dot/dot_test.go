package dot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JamesLinus/c-compiler/internal/ir"
	"github.com/JamesLinus/c-compiler/internal/symtab"
)

func TestRenderBranchLabelsTrueFalse(t *testing.T) {
	b := ir.NewBuilder()
	def := b.StartDefinition(&symtab.Symbol{Name: "f"}, true)
	then := b.NewBlock()
	els := b.NewBlock()
	head := b.NewBlock()
	head.Terminator = ir.Terminator{Kind: ir.TERM_BRANCH, Then: then, Else: els}
	then.Terminator = ir.Terminator{Kind: ir.TERM_RETURN_VOID}
	els.Terminator = ir.Terminator{Kind: ir.TERM_RETURN_VOID}
	b.FinishDefinition(def)

	out := Render(def)
	assert.Contains(t, out, "digraph f {")
	assert.Contains(t, out, "[label=true]")
	assert.Contains(t, out, "[label=false]")
}

func TestRenderUnnamedDefinitionFallsBackToPlaceholder(t *testing.T) {
	def := &ir.Definition{}
	out := Render(def)
	assert.Contains(t, out, "digraph definition {")
}
