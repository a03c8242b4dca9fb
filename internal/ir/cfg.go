package ir

import "github.com/JamesLinus/c-compiler/internal/symtab"

// Builder owns CFG construction for one compilation: it allocates blocks
// into whichever definition is currently being parsed, and buffers
// completed definitions for the driver to consume one at a time via Pop,
// mirroring the teacher's single append-only definitions buffer freed
// piecewise as parse() results are drained (spec.md §3 Lifecycle).
type Builder struct {
	buffered []*Definition
	current  *Definition

	// fallback is the block owner used when a constant-expression
	// evaluator instantiates blocks outside any function — e.g. the
	// compile-time evaluation inside `enum { A = 1 } x;`. It is never
	// buffered for the driver to consume; its blocks are simply
	// discarded once the constant value has been read out.
	fallback *Definition
}

// NewBuilder returns a ready-to-use CFG builder with its fallback
// definition initialized.
func NewBuilder() *Builder {
	return &Builder{fallback: &Definition{}}
}

// StartDefinition opens a new definition, owned by sym, and makes it the
// current block owner until FinishDefinition is called.
func (b *Builder) StartDefinition(sym *symtab.Symbol, isFunc bool) *Definition {
	def := &Definition{Symbol: sym, IsFunc: isFunc}
	b.current = def
	return def
}

// FinishDefinition buffers def for later consumption and clears the
// current owner.
func (b *Builder) FinishDefinition(def *Definition) {
	b.buffered = append(b.buffered, def)
	b.current = nil
}

// Resume restores def as the current block owner. It exists for definitions
// started and finished while another definition is already under
// construction — a string literal evaluated inside a function body, say —
// so the enclosing definition's StartDefinition/FinishDefinition bracket
// still nests correctly around the inner one.
func (b *Builder) Resume(def *Definition) {
	b.current = def
}

// NewBlock allocates a block owned by the definition currently under
// construction, or by the fallback owner when called outside
// StartDefinition/FinishDefinition (constant-expression evaluation at file
// scope). The returned block's Label is left empty; callers that need a
// debuggable label call symtab.Table.CreateLabel themselves.
func (b *Builder) NewBlock() *Block {
	owner := b.current
	if owner == nil {
		owner = b.fallback
	}
	blk := &Block{}
	owner.Blocks = append(owner.Blocks, blk)
	return blk
}

// Current returns the definition currently under construction, or nil.
func (b *Builder) Current() *Definition {
	return b.current
}

// Pop removes and returns the oldest buffered definition (FIFO), for the
// driver's parse() to consume and release one at a time. The second
// result is false once the buffer is empty.
func (b *Builder) Pop() (*Definition, bool) {
	if len(b.buffered) == 0 {
		return nil, false
	}
	def := b.buffered[0]
	b.buffered = b.buffered[1:]
	return def, true
}

// Pending reports how many completed definitions are buffered and not yet
// consumed.
func (b *Builder) Pending() int {
	return len(b.buffered)
}
