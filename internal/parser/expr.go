package parser

import (
	"fmt"

	"github.com/JamesLinus/c-compiler/internal/abi"
	"github.com/JamesLinus/c-compiler/internal/diag"
	"github.com/JamesLinus/c-compiler/internal/ir"
	"github.com/JamesLinus/c-compiler/internal/symtab"
	"github.com/JamesLinus/c-compiler/internal/token"
	"github.com/JamesLinus/c-compiler/internal/types"
)

func (p *Parser) emit(op ir.Op) { p.cur.Emit(op) }

// newTemp allocates a fresh temporary symbol and registers it as a local
// of the definition currently under construction, if any.
func (p *Parser) newTemp(ty *types.Type) *ir.Var {
	sym := p.idents.CreateTmp(ty)
	if def := p.cfg.Current(); def != nil {
		def.AddLocal(sym)
	}
	return &ir.Var{Kind: ir.DIRECT, Symbol: sym, Type: ty, LValue: true}
}

func (p *Parser) immInt(v int64, ty *types.Type) *ir.Var {
	return &ir.Var{Kind: ir.IMMEDIATE, Type: ty, ImmInt: v}
}

// decay turns an array lvalue into a pointer-to-element rvalue; arrays have
// no runtime representation of their own, only the address of element zero.
func (p *Parser) decay(v *ir.Var) *ir.Var {
	if v == nil || types.Unwrap(v.Type).Kind != types.TY_ARRAY {
		return v
	}
	elem := types.Unwrap(v.Type).Next
	ptrTy := p.arena.InitPointer(elem)
	if v.Kind == ir.DIRECT || v.Kind == ir.DEREF {
		return &ir.Var{Kind: ir.ADDRESS, Symbol: v.Symbol, Offset: v.Offset, Type: ptrTy}
	}
	return v
}

// rvalue applies array decay, then loads through any remaining lvalue via
// an explicit OP_LOAD; a non-lvalue operand (already a computed value) is
// returned unchanged.
func (p *Parser) rvalue(v *ir.Var) *ir.Var {
	if v == nil {
		return v
	}
	if types.Unwrap(v.Type).Kind == types.TY_ARRAY {
		return p.decay(v)
	}
	if !v.LValue {
		return v
	}
	t := p.newTemp(v.Type)
	t.LValue = false
	p.emit(ir.Op{Target: t, Opcode: ir.OP_LOAD, A: v})
	return t
}

// materializeToSymbol returns a symbol holding v's value: v's own symbol if
// it is already a plain named value, else a fresh temp stored with v.
func (p *Parser) materializeToSymbol(v *ir.Var) *symtab.Symbol {
	if v.Kind == ir.DIRECT {
		return v.Symbol
	}
	tmp := p.newTemp(v.Type)
	p.emit(ir.Op{Target: tmp, Opcode: ir.OP_STORE, A: v})
	return tmp.Symbol
}

func isUnsignedType(t *types.Type) bool { return types.Unwrap(t).Kind == types.TY_UNSIGNED }

func truncateInt(v int64, size int, unsigned bool) int64 {
	switch size {
	case 1:
		if unsigned {
			return int64(uint8(v))
		}
		return int64(int8(v))
	case 2:
		if unsigned {
			return int64(uint16(v))
		}
		return int64(int16(v))
	case 4:
		if unsigned {
			return int64(uint32(v))
		}
		return int64(int32(v))
	default:
		return v
	}
}

// convert loads v if needed, then emits (or folds) an OP_CONVERT to target.
func (p *Parser) convert(v *ir.Var, target *types.Type) *ir.Var {
	v = p.rvalue(v)
	if types.Equal(v.Type, target) {
		return v
	}
	if v.Kind == ir.IMMEDIATE && types.IsInteger(target) {
		return &ir.Var{Kind: ir.IMMEDIATE, Type: target, ImmInt: truncateInt(v.ImmInt, types.SizeOf(target), isUnsignedType(target))}
	}
	t := p.newTemp(target)
	t.LValue = false
	p.emit(ir.Op{Target: t, Opcode: ir.OP_CONVERT, A: v})
	return t
}

func (p *Parser) foldInts(a, b *ir.Var) (int64, int64, bool) {
	if a.Kind == ir.IMMEDIATE && b.Kind == ir.IMMEDIATE && types.IsInteger(a.Type) && types.IsInteger(b.Type) {
		return a.ImmInt, b.ImmInt, true
	}
	return 0, 0, false
}

func foldIntOp(op ir.Opcode, a, b int64) int64 {
	switch op {
	case ir.OP_ADD:
		return a + b
	case ir.OP_SUB:
		return a - b
	case ir.OP_MUL:
		return a * b
	case ir.OP_DIV:
		if b != 0 {
			return a / b
		}
		return 0
	case ir.OP_MOD:
		if b != 0 {
			return a % b
		}
		return 0
	case ir.OP_AND:
		return a & b
	case ir.OP_OR:
		return a | b
	case ir.OP_XOR:
		return a ^ b
	case ir.OP_SHL:
		return a << uint(b)
	case ir.OP_SHR:
		return a >> uint(b)
	default:
		return 0
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func foldCompare(op ir.Opcode, a, b int64) bool {
	switch op {
	case ir.OP_EQ:
		return a == b
	case ir.OP_NE:
		return a != b
	case ir.OP_LT:
		return a < b
	case ir.OP_LE:
		return a <= b
	case ir.OP_GT:
		return a > b
	case ir.OP_GE:
		return a >= b
	default:
		return false
	}
}

// binaryOp applies the usual arithmetic conversions, folds constants when
// both operands are immediates, else emits op into a fresh temp.
func (p *Parser) binaryOp(op ir.Opcode, a, b *ir.Var) *ir.Var {
	a = p.rvalue(a)
	b = p.rvalue(b)
	resultTy := a.Type
	if types.IsInteger(a.Type) && types.IsInteger(b.Type) {
		resultTy = types.UsualArithmeticConversion(a.Type, b.Type, p.intTy, p.uintTy)
		a = p.convert(a, resultTy)
		b = p.convert(b, resultTy)
	}
	if av, bv, ok := p.foldInts(a, b); ok {
		return &ir.Var{Kind: ir.IMMEDIATE, Type: resultTy, ImmInt: foldIntOp(op, av, bv)}
	}
	t := p.newTemp(resultTy)
	t.LValue = false
	p.emit(ir.Op{Target: t, Opcode: op, A: a, B: b})
	return t
}

func (p *Parser) compareOp(op ir.Opcode, a, b *ir.Var) *ir.Var {
	a = p.rvalue(a)
	b = p.rvalue(b)
	if types.IsInteger(a.Type) && types.IsInteger(b.Type) {
		common := types.UsualArithmeticConversion(a.Type, b.Type, p.intTy, p.uintTy)
		a = p.convert(a, common)
		b = p.convert(b, common)
	}
	if av, bv, ok := p.foldInts(a, b); ok {
		return &ir.Var{Kind: ir.IMMEDIATE, Type: p.intTy, ImmInt: boolToInt(foldCompare(op, av, bv))}
	}
	t := p.newTemp(p.intTy)
	t.LValue = false
	p.emit(ir.Op{Target: t, Opcode: op, A: a, B: b})
	return t
}

func (p *Parser) toBool(v *ir.Var) *ir.Var {
	v = p.rvalue(v)
	if v.Kind == ir.IMMEDIATE {
		return p.immInt(boolToInt(v.ImmInt != 0), p.intTy)
	}
	t := p.newTemp(p.intTy)
	t.LValue = false
	p.emit(ir.Op{Target: t, Opcode: ir.OP_NE, A: v, B: p.immInt(0, v.Type)})
	return t
}

// ptrOffset scales idx by the pointee size and adds (or subtracts) it from
// ptr, used both by pointer +/- int and by array subscripting.
func (p *Parser) ptrOffset(ptr, idx *ir.Var, isAdd bool) *ir.Var {
	elemSize := int64(types.SizeOf(types.Unwrap(ptr.Type).Next))
	idx = p.convert(idx, p.longTy)
	scaled := idx
	if elemSize != 1 {
		scaled = p.binaryOp(ir.OP_MUL, idx, p.immInt(elemSize, p.longTy))
	}
	op := ir.OP_ADD
	if !isAdd {
		op = ir.OP_SUB
	}
	t := p.newTemp(ptr.Type)
	t.LValue = false
	p.emit(ir.Op{Target: t, Opcode: op, A: ptr, B: scaled})
	return t
}

func (p *Parser) pointerAwareAdditive(lhs, rhs *ir.Var, isAdd bool) *ir.Var {
	a := p.rvalue(lhs)
	b := p.rvalue(rhs)
	aPtr := types.Unwrap(a.Type).Kind == types.TY_POINTER
	bPtr := types.Unwrap(b.Type).Kind == types.TY_POINTER
	switch {
	case aPtr && bPtr && !isAdd:
		elemSize := int64(types.SizeOf(types.Unwrap(a.Type).Next))
		diff := p.binaryOp(ir.OP_SUB, a, b)
		if elemSize > 1 {
			diff = p.binaryOp(ir.OP_DIV, diff, p.immInt(elemSize, p.longTy))
		}
		return diff
	case aPtr:
		return p.ptrOffset(a, b, isAdd)
	case bPtr && isAdd:
		return p.ptrOffset(b, a, true)
	default:
		op := ir.OP_ADD
		if !isAdd {
			op = ir.OP_SUB
		}
		return p.binaryOp(op, a, b)
	}
}

// expression parses the comma operator: expr , expr , ...
func (p *Parser) expression() *ir.Var {
	v := p.assignment()
	for p.atPunct(',') {
		p.next()
		v = p.assignment()
	}
	return v
}

func compoundOpcode(k token.Kind) ir.Opcode {
	switch k {
	case token.ADD_ASSIGN:
		return ir.OP_ADD
	case token.SUB_ASSIGN:
		return ir.OP_SUB
	case token.MUL_ASSIGN:
		return ir.OP_MUL
	case token.DIV_ASSIGN:
		return ir.OP_DIV
	case token.MOD_ASSIGN:
		return ir.OP_MOD
	case token.AND_ASSIGN:
		return ir.OP_AND
	case token.OR_ASSIGN:
		return ir.OP_OR
	case token.XOR_ASSIGN:
		return ir.OP_XOR
	case token.SHL_ASSIGN:
		return ir.OP_SHL
	case token.SHR_ASSIGN:
		return ir.OP_SHR
	default:
		return ir.OP_ADD
	}
}

func isAssignOp(k token.Kind) bool {
	switch k {
	case token.Kind('='), token.ADD_ASSIGN, token.SUB_ASSIGN, token.MUL_ASSIGN, token.DIV_ASSIGN,
		token.MOD_ASSIGN, token.AND_ASSIGN, token.OR_ASSIGN, token.XOR_ASSIGN, token.SHL_ASSIGN, token.SHR_ASSIGN:
		return true
	default:
		return false
	}
}

func (p *Parser) assignment() *ir.Var {
	lhs := p.conditional()
	if isAssignOp(p.peek().Kind) {
		opTok := p.next().Kind
		rhs := p.assignment()
		return p.evalAssign(lhs, opTok, rhs)
	}
	return lhs
}

// evalAssign implements assignment conversion: the right side is converted
// to the left side's type (after computing the compound op, if any) before
// being stored; spec.md §4.3 calls this eval_assign.
func (p *Parser) evalAssign(lhs *ir.Var, opTok token.Kind, rhs *ir.Var) *ir.Var {
	if !lhs.LValue {
		p.errorf("left side of assignment is not an lvalue")
		return p.rvalue(rhs)
	}
	var value *ir.Var
	switch {
	case opTok == token.Kind('='):
		value = p.rvalue(rhs)
	case types.Unwrap(lhs.Type).Kind == types.TY_POINTER && (opTok == token.ADD_ASSIGN || opTok == token.SUB_ASSIGN):
		value = p.pointerAwareAdditive(p.rvalue(lhs), rhs, opTok == token.ADD_ASSIGN)
	default:
		value = p.binaryOp(compoundOpcode(opTok), p.rvalue(lhs), rhs)
	}
	value = p.convert(value, lhs.Type)
	p.emit(ir.Op{Target: lhs, Opcode: ir.OP_STORE, A: value})
	return value
}

// conditional implements ?: by splicing a branch/merge diamond into the
// CFG: both arms store their (converted) result into one shared temp
// before jumping to a merge block.
func (p *Parser) conditional() *ir.Var {
	cond := p.logicalOr()
	if !p.atPunct('?') {
		return cond
	}
	p.next()
	condR := p.toBool(cond)
	thenBlk := p.cfg.NewBlock()
	elseBlk := p.cfg.NewBlock()
	mergeBlk := p.cfg.NewBlock()
	p.cur.Terminator = ir.Terminator{Kind: ir.TERM_BRANCH, Expr: condR, Then: thenBlk, Else: elseBlk}

	p.cur = thenBlk
	thenVal := p.rvalue(p.expression())
	p.expectPunct(':')
	thenExit := p.cur

	p.cur = elseBlk
	elseVal := p.rvalue(p.conditional())
	elseExit := p.cur

	resultTy := thenVal.Type
	if !types.Equal(thenVal.Type, elseVal.Type) && types.IsInteger(thenVal.Type) && types.IsInteger(elseVal.Type) {
		resultTy = types.UsualArithmeticConversion(thenVal.Type, elseVal.Type, p.intTy, p.uintTy)
	}
	result := p.newTemp(resultTy)

	thenExit.Emit(ir.Op{Target: result, Opcode: ir.OP_STORE, A: p.convert(thenVal, resultTy)})
	thenExit.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: mergeBlk}
	elseExit.Emit(ir.Op{Target: result, Opcode: ir.OP_STORE, A: p.convert(elseVal, resultTy)})
	elseExit.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: mergeBlk}

	p.cur = mergeBlk
	return p.rvalue(result)
}

func (p *Parser) logicalOr() *ir.Var {
	lhs := p.logicalAnd()
	for p.atKind(token.OROR) {
		p.next()
		cond := p.toBool(lhs)
		result := p.newTemp(p.intTy)
		trueBlk := p.cfg.NewBlock()
		evalBlk := p.cfg.NewBlock()
		mergeBlk := p.cfg.NewBlock()
		p.cur.Terminator = ir.Terminator{Kind: ir.TERM_BRANCH, Expr: cond, Then: trueBlk, Else: evalBlk}

		trueBlk.Emit(ir.Op{Target: result, Opcode: ir.OP_STORE, A: p.immInt(1, p.intTy)})
		trueBlk.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: mergeBlk}

		p.cur = evalBlk
		rcond := p.toBool(p.logicalAnd())
		p.cur.Emit(ir.Op{Target: result, Opcode: ir.OP_STORE, A: rcond})
		p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: mergeBlk}

		p.cur = mergeBlk
		lhs = p.rvalue(result)
	}
	return lhs
}

func (p *Parser) logicalAnd() *ir.Var {
	lhs := p.bitOr()
	for p.atKind(token.ANDAND) {
		p.next()
		cond := p.toBool(lhs)
		result := p.newTemp(p.intTy)
		falseBlk := p.cfg.NewBlock()
		evalBlk := p.cfg.NewBlock()
		mergeBlk := p.cfg.NewBlock()
		p.cur.Terminator = ir.Terminator{Kind: ir.TERM_BRANCH, Expr: cond, Then: evalBlk, Else: falseBlk}

		falseBlk.Emit(ir.Op{Target: result, Opcode: ir.OP_STORE, A: p.immInt(0, p.intTy)})
		falseBlk.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: mergeBlk}

		p.cur = evalBlk
		rcond := p.toBool(p.bitOr())
		p.cur.Emit(ir.Op{Target: result, Opcode: ir.OP_STORE, A: rcond})
		p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: mergeBlk}

		p.cur = mergeBlk
		lhs = p.rvalue(result)
	}
	return lhs
}

func (p *Parser) bitOr() *ir.Var {
	lhs := p.bitXor()
	for p.atPunct('|') {
		p.next()
		lhs = p.binaryOp(ir.OP_OR, lhs, p.bitXor())
	}
	return lhs
}

func (p *Parser) bitXor() *ir.Var {
	lhs := p.bitAnd()
	for p.atPunct('^') {
		p.next()
		lhs = p.binaryOp(ir.OP_XOR, lhs, p.bitAnd())
	}
	return lhs
}

func (p *Parser) bitAnd() *ir.Var {
	lhs := p.equality()
	for p.atPunct('&') {
		p.next()
		lhs = p.binaryOp(ir.OP_AND, lhs, p.equality())
	}
	return lhs
}

func (p *Parser) equality() *ir.Var {
	lhs := p.relational()
	for p.atKind(token.EQ) || p.atKind(token.NE) {
		op := ir.OP_EQ
		if p.atKind(token.NE) {
			op = ir.OP_NE
		}
		p.next()
		lhs = p.compareOp(op, lhs, p.relational())
	}
	return lhs
}

func (p *Parser) relational() *ir.Var {
	lhs := p.shift()
	for {
		var op ir.Opcode
		switch {
		case p.atPunct('<'):
			op = ir.OP_LT
		case p.atPunct('>'):
			op = ir.OP_GT
		case p.atKind(token.LE):
			op = ir.OP_LE
		case p.atKind(token.GE):
			op = ir.OP_GE
		default:
			return lhs
		}
		p.next()
		lhs = p.compareOp(op, lhs, p.shift())
	}
}

func (p *Parser) shift() *ir.Var {
	lhs := p.additive()
	for p.atKind(token.SHL) || p.atKind(token.SHR) {
		op := ir.OP_SHL
		if p.atKind(token.SHR) {
			op = ir.OP_SHR
		}
		p.next()
		lhs = p.binaryOp(op, lhs, p.additive())
	}
	return lhs
}

func (p *Parser) additive() *ir.Var {
	lhs := p.multiplicative()
	for p.atPunct('+') || p.atPunct('-') {
		isAdd := p.atPunct('+')
		p.next()
		lhs = p.pointerAwareAdditive(lhs, p.multiplicative(), isAdd)
	}
	return lhs
}

func (p *Parser) multiplicative() *ir.Var {
	lhs := p.castExpr()
	for p.atPunct('*') || p.atPunct('/') || p.atPunct('%') {
		var op ir.Opcode
		switch {
		case p.atPunct('*'):
			op = ir.OP_MUL
		case p.atPunct('/'):
			op = ir.OP_DIV
		default:
			op = ir.OP_MOD
		}
		p.next()
		lhs = p.binaryOp(op, lhs, p.castExpr())
	}
	return lhs
}

// startsTypeName reports whether the upcoming token can begin a
// declaration-specifiers list, used to disambiguate `(` type-name `)` from
// a plain parenthesized expression with a single token of lookahead.
func (p *Parser) startsTypeName() bool {
	switch p.peek().Kind {
	case token.VOID, token.CHAR, token.SHORT, token.INT, token.LONG, token.FLOAT,
		token.DOUBLE, token.SIGNED, token.UNSIGNED, token.STRUCT, token.UNION,
		token.ENUM, token.CONST, token.VOLATILE:
		return true
	case token.IDENTIFIER:
		_, ok := p.isTypedefName(p.peek().Str)
		return ok
	default:
		return false
	}
}

func (p *Parser) typeName() *types.Type {
	base, _ := p.declSpecifiers(false)
	_, ty := p.declarator(base)
	return ty
}

// castExpr is cast-expression: unary-expression, or `(` type-name `)`
// cast-expression. A plain parenthesized expression is also recognized
// here (not just in primary) so the one-token-lookahead disambiguation
// against a type-name only has to happen once per `(`.
func (p *Parser) castExpr() *ir.Var {
	if p.atPunct('(') {
		p.next()
		if p.startsTypeName() {
			ty := p.typeName()
			p.expectPunct(')')
			return p.convert(p.castExpr(), ty)
		}
		v := p.expression()
		p.expectPunct(')')
		return p.postfixTail(v)
	}
	return p.unary()
}

func (p *Parser) incDelta(ty *types.Type) *ir.Var {
	if types.Unwrap(ty).Kind == types.TY_POINTER {
		return p.immInt(int64(types.SizeOf(types.Unwrap(ty).Next)), p.longTy)
	}
	return p.immInt(1, ty)
}

func (p *Parser) prefixIncDec(v *ir.Var, isInc bool) *ir.Var {
	if !v.LValue {
		p.errorf("operand of ++/-- must be an lvalue")
		return p.rvalue(v)
	}
	old := p.rvalue(v)
	op := ir.OP_ADD
	if !isInc {
		op = ir.OP_SUB
	}
	newVal := p.convert(p.binaryOp(op, old, p.incDelta(v.Type)), v.Type)
	p.emit(ir.Op{Target: v, Opcode: ir.OP_STORE, A: newVal})
	return p.rvalue(v)
}

func (p *Parser) postfixIncDec(v *ir.Var, isInc bool) *ir.Var {
	if !v.LValue {
		p.errorf("operand of ++/-- must be an lvalue")
		return p.rvalue(v)
	}
	old := p.rvalue(v)
	op := ir.OP_ADD
	if !isInc {
		op = ir.OP_SUB
	}
	newVal := p.convert(p.binaryOp(op, old, p.incDelta(v.Type)), v.Type)
	p.emit(ir.Op{Target: v, Opcode: ir.OP_STORE, A: newVal})
	return old
}

func (p *Parser) evalDeref(v *ir.Var) *ir.Var {
	v = p.rvalue(v)
	if types.Unwrap(v.Type).Kind != types.TY_POINTER {
		p.errorf("cannot dereference a non-pointer value")
		return v
	}
	pointee := types.Unwrap(v.Type).Next
	sym := p.materializeToSymbol(v)
	return &ir.Var{Kind: ir.DEREF, Symbol: sym, Type: pointee, LValue: true}
}

func (p *Parser) evalAddr(v *ir.Var) *ir.Var {
	if !v.LValue {
		p.errorf("cannot take the address of a non-lvalue")
		return v
	}
	switch v.Kind {
	case ir.DIRECT:
		return &ir.Var{Kind: ir.ADDRESS, Symbol: v.Symbol, Offset: v.Offset, Type: p.arena.InitPointer(v.Type)}
	case ir.DEREF:
		base := p.rvalue(&ir.Var{Kind: ir.DIRECT, Symbol: v.Symbol, Type: p.arena.InitPointer(v.Type), LValue: true})
		if v.Offset == 0 {
			return base
		}
		t := p.newTemp(base.Type)
		t.LValue = false
		p.emit(ir.Op{Target: t, Opcode: ir.OP_ADD, A: base, B: p.immInt(v.Offset, p.longTy)})
		return t
	default:
		p.errorf("cannot take the address of this expression")
		return v
	}
}

func (p *Parser) evalSizeof() *ir.Var {
	var sz int
	if p.atPunct('(') {
		p.next()
		if p.startsTypeName() {
			ty := p.typeName()
			p.expectPunct(')')
			sz = types.SizeOf(ty)
		} else {
			v := p.expression()
			p.expectPunct(')')
			sz = types.SizeOf(v.Type)
		}
	} else {
		v := p.unary()
		sz = types.SizeOf(v.Type)
	}
	return &ir.Var{Kind: ir.IMMEDIATE, Type: p.ulongTy, ImmInt: int64(sz)}
}

// unary is unary-expression: the full set of prefix operators, falling
// through to postfix-expression.
func (p *Parser) unary() *ir.Var {
	switch {
	case p.atPunct('+'):
		p.next()
		return p.rvalue(p.castExpr())
	case p.atPunct('-'):
		p.next()
		v := p.rvalue(p.castExpr())
		if v.Kind == ir.IMMEDIATE {
			return &ir.Var{Kind: ir.IMMEDIATE, Type: v.Type, ImmInt: -v.ImmInt, ImmReal: -v.ImmReal}
		}
		t := p.newTemp(v.Type)
		t.LValue = false
		p.emit(ir.Op{Target: t, Opcode: ir.OP_NEG, A: v})
		return t
	case p.atPunct('!'):
		p.next()
		v := p.rvalue(p.castExpr())
		t := p.newTemp(p.intTy)
		t.LValue = false
		p.emit(ir.Op{Target: t, Opcode: ir.OP_LNOT, A: v})
		return t
	case p.atPunct('~'):
		p.next()
		v := p.rvalue(p.castExpr())
		t := p.newTemp(v.Type)
		t.LValue = false
		p.emit(ir.Op{Target: t, Opcode: ir.OP_NOT, A: v})
		return t
	case p.atPunct('*'):
		p.next()
		return p.evalDeref(p.castExpr())
	case p.atPunct('&'):
		p.next()
		return p.evalAddr(p.castExpr())
	case p.atKind(token.INC):
		p.next()
		return p.prefixIncDec(p.unary(), true)
	case p.atKind(token.DEC):
		p.next()
		return p.prefixIncDec(p.unary(), false)
	case p.atKind(token.SIZEOF):
		p.next()
		return p.evalSizeof()
	default:
		return p.postfix()
	}
}

func (p *Parser) postfix() *ir.Var { return p.postfixTail(p.primary()) }

func (p *Parser) postfixTail(v *ir.Var) *ir.Var {
	for {
		switch {
		case p.atPunct('['):
			p.next()
			idx := p.expression()
			p.expectPunct(']')
			v = p.evalDeref(p.pointerAwareAdditive(v, idx, true))
		case p.atPunct('('):
			p.next()
			v = p.evalCall(v)
		case p.atPunct('.'):
			p.next()
			name := p.expectKind(token.IDENTIFIER).Str
			v = p.evalMember(v, name, false)
		case p.atKind(token.ARROW):
			p.next()
			name := p.expectKind(token.IDENTIFIER).Str
			v = p.evalMember(v, name, true)
		case p.atKind(token.INC):
			p.next()
			v = p.postfixIncDec(v, true)
		case p.atKind(token.DEC):
			p.next()
			v = p.postfixIncDec(v, false)
		default:
			return v
		}
	}
}

func (p *Parser) evalMember(v *ir.Var, name string, viaPointer bool) *ir.Var {
	var structTy *types.Type
	var baseSym *symtab.Symbol
	var baseKind ir.VarKind
	var baseOffset int64

	if viaPointer {
		v = p.rvalue(v)
		structTy = types.Unwrap(v.Type).Next
		baseSym = p.materializeToSymbol(v)
		baseKind = ir.DEREF
	} else {
		structTy = v.Type
		if v.Kind != ir.DIRECT && v.Kind != ir.DEREF {
			p.errorf("member access on a non-addressable value")
			return v
		}
		baseSym, baseKind, baseOffset = v.Symbol, v.Kind, v.Offset
	}

	m := types.GetMember(structTy, name)
	if m == nil {
		p.errorf("no member named %q", name)
		return v
	}
	return &ir.Var{Kind: baseKind, Symbol: baseSym, Offset: baseOffset + int64(m.Offset), Type: m.Type, LValue: true}
}

func (p *Parser) evalCall(callee *ir.Var) *ir.Var {
	var args []*ir.Var
	if !p.atPunct(')') {
		for {
			args = append(args, p.rvalue(p.assignment()))
			if !p.atPunct(',') {
				break
			}
			p.next()
		}
	}
	p.expectPunct(')')

	fnTy := types.Unwrap(callee.Type)
	retTy := p.intTy
	if fnTy.Kind == types.TY_FUNCTION {
		retTy = fnTy.Next
	}
	for i, a := range args {
		if i < len(fnTy.Members) {
			a = p.convert(a, fnTy.Members[i].Type)
		}
		p.emit(ir.Op{Opcode: ir.OP_PARAM, A: a})
	}

	op := ir.Op{Opcode: ir.OP_CALL, A: callee}
	if callee.Kind == ir.DIRECT && callee.Symbol != nil {
		op.Callee = callee.Symbol
	}
	if retTy == nil || types.Unwrap(retTy).Kind == types.TY_VOID {
		p.emit(op)
		return &ir.Var{Kind: ir.IMMEDIATE, Type: p.voidTy}
	}
	result := p.newTemp(retTy)
	result.LValue = false
	op.Target = result
	p.emit(op)
	return result
}

// stringLiteral registers a string literal as its own STRING_VALUE symbol
// and buffers a Definition for it the same way a file-scope `char[]`
// initializer would be, so it rides the usual Definition pipeline into
// Parser.Parse()'s result: the backend never needs a separate string pool,
// only the one symtab.STRING_VALUE check that routes it to .rodata.
func (p *Parser) stringLiteral(s string) *ir.Var {
	p.stringCounter++
	name := fmt.Sprintf(".LC%d", p.stringCounter)
	arrTy := p.arena.InitArray(p.charTy, len(s)+1)
	sym := p.idents.Add(&symtab.Symbol{
		Name: name, Kind: symtab.STRING_VALUE, Type: arrTy,
		StringValue: s, Linkage: symtab.LINK_INTERN,
	})

	var inits []ir.Init
	for i := 0; i < len(s); i++ {
		inits = append(inits, ir.Init{Offset: i, Value: p.immInt(int64(s[i]), p.charTy)})
	}
	inits = append(inits, ir.Init{Offset: len(s), Value: p.immInt(0, p.charTy)})

	// A string literal may be evaluated while a function's own definition
	// is already under construction (e.g. inside a call argument); save and
	// restore it around the nested string definition so the enclosing
	// function keeps allocating blocks into itself afterward.
	enclosing := p.cfg.Current()
	def := p.cfg.StartDefinition(sym, false)
	def.Inits = inits
	p.cfg.FinishDefinition(def)
	if enclosing != nil {
		p.cfg.Resume(enclosing)
	}

	return &ir.Var{Kind: ir.ADDRESS, Symbol: sym, Type: p.arena.InitPointer(p.charTy)}
}

func (p *Parser) lookupIdentifier(name string) *ir.Var {
	sym := p.idents.Lookup(name)
	if sym == nil {
		p.errorf("undeclared identifier %q", name)
		return &ir.Var{Kind: ir.IMMEDIATE, Type: p.intTy}
	}
	if sym.Kind == symtab.ENUM_CONSTANT {
		return &ir.Var{Kind: ir.IMMEDIATE, Type: p.intTy, ImmInt: sym.EnumValue}
	}
	isFunc := types.Unwrap(sym.Type).Kind == types.TY_FUNCTION
	return &ir.Var{Kind: ir.DIRECT, Symbol: sym, Type: sym.Type, LValue: !isFunc}
}

// evalVaStart lowers __builtin_va_start(ap, last) to direct stores into the
// va_list's gp_offset/fp_offset/overflow_arg_area/reg_save_area fields (the
// System V layout spec.md names), pointing reg_save_area at the enclosing
// variadic function's own register-save local (def.VaRegSave, spilled by
// internal/codegen's prologue) and computing gp_offset from how many of the
// named parameters' integer registers internal/abi's classifier already
// spent.
func (p *Parser) evalVaStart() *ir.Var {
	pos := p.pos()
	p.next()
	p.expectPunct('(')
	ap := p.rvalue(p.assignment())
	p.expectPunct(',')
	p.assignment() // last named parameter: only its position matters, and that's implicit in the enclosing function's own parameter list
	p.expectPunct(')')

	def := p.cfg.Current()
	if def == nil || def.VaRegSave == nil {
		diag.Fatalf(pos, "__builtin_va_start used outside a variadic function")
	}

	paramTypes := make([]*types.Type, len(def.Params))
	for i, s := range def.Params {
		paramTypes[i] = s.Type
	}
	cc := abi.ClassifyCall(paramTypes, types.Unwrap(def.Symbol.Type).Next)
	gpUsed := 0
	if cc.ReturnInMemory {
		gpUsed++ // the hidden return pointer itself occupies DI
	}
	for _, a := range cc.Args {
		gpUsed += len(a.Regs)
	}

	apSym := p.materializeToSymbol(ap)
	bytePtrTy := p.arena.InitPointer(p.charTy)
	store := func(offset int64, ty *types.Type, val *ir.Var) {
		p.emit(ir.Op{Target: &ir.Var{Kind: ir.DEREF, Symbol: apSym, Type: ty, LValue: true, Offset: offset}, Opcode: ir.OP_STORE, A: val})
	}

	store(0, p.uintTy, p.immInt(int64(gpUsed*8), p.uintTy))
	store(4, p.uintTy, p.immInt(48, p.uintTy)) // no SSE argument registers are ever spilled; see internal/codegen
	store(8, bytePtrTy, &ir.Var{Kind: ir.ADDRESS, Symbol: def.VaOverflowBase, Offset: 0, Type: bytePtrTy})
	store(16, bytePtrTy, &ir.Var{Kind: ir.ADDRESS, Symbol: def.VaRegSave, Offset: 0, Type: bytePtrTy})

	return &ir.Var{Kind: ir.IMMEDIATE, Type: p.voidTy}
}

// evalVaArg lowers __builtin_va_arg(ap, type) to a branch on the va_list's
// gp_offset: while it still sits inside the 48-byte reg_save_area the next
// argument lives there and gp_offset advances by one eightbyte; once it has
// spilled past that, the value comes from overflow_arg_area instead, which
// likewise advances. Only INTEGER-class operand types (integers, pointers)
// are supported: internal/codegen never spills or loads SSE argument
// registers, so va_arg has nothing to read a float back out of either.
func (p *Parser) evalVaArg() *ir.Var {
	pos := p.pos()
	p.next()
	p.expectPunct('(')
	ap := p.rvalue(p.assignment())
	p.expectPunct(',')
	ty := p.typeName()
	p.expectPunct(')')

	if cls := abi.Classify(ty); len(cls) != 1 || cls[0] != abi.INTEGER {
		diag.Fatalf(pos, "__builtin_va_arg only supports integer and pointer types")
	}

	def := p.cfg.Current()
	if def == nil || def.VaRegSave == nil {
		diag.Fatalf(pos, "__builtin_va_arg used outside a variadic function")
	}

	apSym := p.materializeToSymbol(ap)
	bytePtrTy := p.arena.InitPointer(p.charTy)

	gp := p.rvalue(&ir.Var{Kind: ir.DEREF, Symbol: apSym, Type: p.uintTy, LValue: true})
	cond := p.compareOp(ir.OP_LT, gp, p.immInt(48, p.uintTy))

	regBlk := p.cfg.NewBlock()
	memBlk := p.cfg.NewBlock()
	mergeBlk := p.cfg.NewBlock()
	p.cur.Terminator = ir.Terminator{Kind: ir.TERM_BRANCH, Expr: cond, Then: regBlk, Else: memBlk}

	slot := p.newTemp(p.arena.InitPointer(ty))

	p.cur = regBlk
	regBase := p.rvalue(&ir.Var{Kind: ir.DEREF, Symbol: apSym, Type: bytePtrTy, LValue: true, Offset: 16})
	p.emit(ir.Op{Target: slot, Opcode: ir.OP_STORE, A: p.convert(p.ptrOffset(regBase, gp, true), slot.Type)})
	p.emit(ir.Op{Target: &ir.Var{Kind: ir.DEREF, Symbol: apSym, Type: p.uintTy, LValue: true}, Opcode: ir.OP_STORE,
		A: p.binaryOp(ir.OP_ADD, gp, p.immInt(8, p.uintTy))})
	p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: mergeBlk}

	p.cur = memBlk
	overflow := p.rvalue(&ir.Var{Kind: ir.DEREF, Symbol: apSym, Type: bytePtrTy, LValue: true, Offset: 8})
	p.emit(ir.Op{Target: slot, Opcode: ir.OP_STORE, A: p.convert(overflow, slot.Type)})
	p.emit(ir.Op{Target: &ir.Var{Kind: ir.DEREF, Symbol: apSym, Type: bytePtrTy, LValue: true, Offset: 8}, Opcode: ir.OP_STORE,
		A: p.ptrOffset(overflow, p.immInt(8, p.longTy), true)})
	p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: mergeBlk}

	p.cur = mergeBlk
	return p.rvalue(p.evalDeref(slot))
}

func (p *Parser) primary() *ir.Var {
	tok := p.peek()
	switch tok.Kind {
	case token.NUMBER:
		p.next()
		ty := p.intTy
		if tok.IsReal {
			ty = p.doubleTy
		}
		return &ir.Var{Kind: ir.IMMEDIATE, Type: ty, ImmInt: tok.Num, ImmReal: float64(tok.Num)}
	case token.CHARCONST:
		p.next()
		return &ir.Var{Kind: ir.IMMEDIATE, Type: p.charTy, ImmInt: tok.Num}
	case token.STRING:
		p.next()
		return p.stringLiteral(tok.Str)
	case token.IDENTIFIER:
		p.next()
		return p.lookupIdentifier(tok.Str)
	case token.Kind('('):
		p.next()
		v := p.expression()
		p.expectPunct(')')
		return v
	case token.BUILTIN_VA_START:
		return p.evalVaStart()
	case token.BUILTIN_VA_ARG:
		return p.evalVaArg()
	default:
		p.errorf("unexpected token %s in expression", tok.String())
		p.next()
		return &ir.Var{Kind: ir.IMMEDIATE, Type: p.intTy}
	}
}
