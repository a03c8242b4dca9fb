// Package ir is the three-address IR and per-function CFG: vars, basic
// blocks with terminators, operations, and function/object definitions.
package ir

import (
	"github.com/JamesLinus/c-compiler/internal/symtab"
	"github.com/JamesLinus/c-compiler/internal/types"
)

// VarKind is one of the four IR operand kinds.
type VarKind int

const (
	IMMEDIATE VarKind = iota // compile-time constant value
	DIRECT                   // named lvalue: the symbol itself
	DEREF                    // pointer-indirect lvalue: *(symbol + offset)
	ADDRESS                  // address-of computation result
)

// Var is an IR operand: a tagged union over VarKind sharing a common
// (symbol, offset, type, lvalue) tail, per spec.md §9's sum-type guidance.
type Var struct {
	Kind    VarKind
	Type    *types.Type
	Symbol  *symtab.Symbol
	Offset  int64
	LValue  bool
	ImmInt  int64   // payload when Kind == IMMEDIATE and Type is integer/pointer
	ImmReal float64 // payload when Kind == IMMEDIATE and Type is TY_REAL
}

// Opcode enumerates three-address operations.
type Opcode int

const (
	OP_ADD Opcode = iota
	OP_SUB
	OP_MUL
	OP_DIV
	OP_MOD
	OP_AND
	OP_OR
	OP_XOR
	OP_SHL
	OP_SHR
	OP_NEG
	OP_NOT  // bitwise complement
	OP_LNOT // logical negation, produces 0/1

	OP_EQ // comparisons producing 0/1 of type int
	OP_NE
	OP_LT
	OP_LE
	OP_GT
	OP_GE

	OP_CONVERT // truncate/extend/reinterpret A to the target's type

	OP_LOAD  // read through a DEREF/DIRECT lvalue operand
	OP_STORE // write A into the target lvalue
	OP_ADDR  // address-of: target = &A

	OP_CALL  // target = call A (function value), preceded by OP_PARAM pushes
	OP_PARAM // push A as the next call argument, left to right
)

// Op is a single three-address operation: a target plus one or two
// operands (B is nil for unary ops).
type Op struct {
	Target *Var
	Opcode Opcode
	A, B   *Var
	// Callee carries the callee's symbol for OP_CALL, so the instruction
	// encoder does not need to chase through A when the callee is a
	// statically-known function (as opposed to a computed function
	// pointer stored in A).
	Callee *symtab.Symbol
}

// TermKind classifies a block's terminator.
type TermKind int

const (
	TERM_JUMP TermKind = iota
	TERM_BRANCH
	TERM_RETURN
	TERM_RETURN_VOID
)

// Terminator ends a block's control flow.
type Terminator struct {
	Kind       TermKind
	Expr       *Var   // branch condition, or return value
	Target     *Block // TERM_JUMP
	Then, Else *Block // TERM_BRANCH
}

// Block is a labeled sequence of operations plus a terminator.
type Block struct {
	Label      string
	Code       []Op
	Terminator Terminator
}

// Emit appends op to the block's code.
func (b *Block) Emit(op Op) {
	b.Code = append(b.Code, op)
}

// Definition is a function or object symbol plus, for functions, its CFG.
type Definition struct {
	Symbol *symtab.Symbol
	IsFunc bool

	Entry  *Block
	Blocks []*Block // all blocks, owning storage, in creation order

	Params []*symtab.Symbol
	Locals []*symtab.Symbol // includes compiler-generated temporaries

	// VaRegSave is non-nil for a variadic function: a compiler-synthesized
	// 48-byte local (one eightbyte per DI/SI/DX/CX/R8/R9) that the backend
	// spills the incoming integer argument registers into on entry, giving
	// __builtin_va_start/__builtin_va_arg a real reg_save_area to point at.
	VaRegSave *symtab.Symbol

	// VaOverflowBase is non-nil alongside VaRegSave: a sentinel symbol the
	// backend never allocates stack space for, instead fixing its frame
	// offset at +16(%rbp) — the first stack-passed incoming argument in the
	// standard push-rbp/mov-rbp,rsp prologue (8 bytes of saved rbp, 8 of
	// return address) — so overflow_arg_area points at the caller's actual
	// stack-passed arguments instead of borrowed scratch memory.
	VaOverflowBase *symtab.Symbol

	// Inits holds an object definition's file-scope initializer, one entry
	// per scalar leaf (after struct/array/union flattening), each giving
	// the byte offset within the object and the constant value to place
	// there. Unset for function definitions and for tentative/uninitialized
	// objects, which the backend zero-fills in .data instead.
	Inits []Init
}

// Init is one constant leaf of an object's file-scope initializer: Value
// is either an IMMEDIATE (the common case) or an ADDRESS (a pointer
// initialized from another symbol's address, e.g. `char *s = "hello"` or
// `int *p = &x`).
type Init struct {
	Offset int
	Value  *Var
}

// AddLocal appends a local symbol (parameter or temporary) to the
// definition's local list, used for stack-frame layout in the backend.
func (d *Definition) AddLocal(sym *symtab.Symbol) {
	d.Locals = append(d.Locals, sym)
}
