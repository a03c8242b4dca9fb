package parser

import (
	"github.com/JamesLinus/c-compiler/internal/ir"
	"github.com/JamesLinus/c-compiler/internal/symtab"
	"github.com/JamesLinus/c-compiler/internal/token"
	"github.com/JamesLinus/c-compiler/internal/types"
)

// memberVar rebuilds an lvalue Var over the same underlying storage as
// base but at an additional byte offset and a (possibly different) leaf
// type, used to address one scalar leaf of a local aggregate initializer
// without needing a separate symbol per member.
func memberVar(base *ir.Var, extraOffset int64, ty *types.Type) *ir.Var {
	return &ir.Var{Kind: base.Kind, Symbol: base.Symbol, Offset: base.Offset + extraOffset, Type: ty, LValue: true}
}

func terminated(b *ir.Block) bool {
	return b.Terminator != (ir.Terminator{})
}

// compoundStatement parses `{ block-item* }`, pushing a fresh identifier
// scope for the duration (tags share the translation-unit-wide table, per
// spec.md; only ordinary identifiers are block-scoped here).
func (p *Parser) compoundStatement() {
	p.expectPunct('{')
	p.idents.PushScope()
	for !p.atPunct('}') {
		p.blockItem()
	}
	p.expectPunct('}')
	p.idents.PopScope()
}

func (p *Parser) blockItem() {
	if p.startsDeclaration() {
		p.localDeclaration()
		return
	}
	p.statement()
}

// startsDeclaration reports whether the upcoming tokens begin a
// declaration rather than a statement, used to interleave declarations
// and statements freely within a compound statement.
func (p *Parser) startsDeclaration() bool {
	switch p.peek().Kind {
	case token.TYPEDEF, token.EXTERN, token.STATIC, token.AUTO, token.REGISTER,
		token.VOID, token.CHAR, token.SHORT, token.INT, token.LONG, token.FLOAT,
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

// localDeclaration parses one block-scope declaration: a typedef, or one
// or more comma-separated object declarators each with an optional
// runtime initializer.
func (p *Parser) localDeclaration() {
	specTy, storage := p.declSpecifiers(true)
	if p.atPunct(';') {
		p.next()
		return
	}
	for {
		name, ty := p.declarator(specTy)
		if storage == token.TYPEDEF {
			p.idents.Add(&symtab.Symbol{Name: name, Kind: symtab.TYPEDEF, Type: ty})
		} else {
			linkage := symtab.LINK_NONE
			kind := symtab.DEFINITION
			if storage == token.STATIC {
				linkage = symtab.LINK_INTERN
			} else if storage == token.EXTERN {
				kind = symtab.DECLARATION
				linkage = symtab.LINK_EXTERN
			}
			sym := p.idents.Add(&symtab.Symbol{Name: name, Kind: kind, Type: ty, Linkage: linkage})
			if storage != token.EXTERN {
				if def := p.cfg.Current(); def != nil {
					def.AddLocal(sym)
				}
			}
			if p.atPunct('=') {
				p.next()
				if storage == token.EXTERN {
					p.errorf("'extern' local %q cannot have an initializer", name)
				}
				target := &ir.Var{Kind: ir.DIRECT, Symbol: sym, Type: ty, LValue: true}
				p.localInitializerList(target)
			}
		}
		if !p.atPunct(',') {
			break
		}
		p.next()
	}
	p.expectPunct(';')
}

// localInitializerList parses one (possibly braced, possibly nested)
// runtime initializer and emits the stores needed to fill target, the
// local-variable analogue of fileScopeInitializer's constant-folding walk.
func (p *Parser) localInitializerList(target *ir.Var) {
	u := types.Unwrap(target.Type)
	switch u.Kind {
	case types.TY_ARRAY:
		p.localArrayInitializer(target)
	case types.TY_STRUCT:
		p.localStructInitializer(target)
	case types.TY_UNION:
		p.localUnionInitializer(target)
	default:
		if p.atPunct('{') {
			p.next()
			rhs := p.assignment()
			if p.atPunct(',') {
				p.next()
			}
			p.expectPunct('}')
			p.evalAssign(target, token.Kind('='), rhs)
			return
		}
		rhs := p.assignment()
		p.evalAssign(target, token.Kind('='), rhs)
	}
}

func (p *Parser) localArrayInitializer(target *ir.Var) {
	u := types.Unwrap(target.Type)
	elem := u.Next
	elemSize := int64(types.SizeOf(elem))

	if p.atKind(token.STRING) && types.SizeOf(elem) == 1 {
		tok := p.next()
		for i := 0; i < len(tok.Str); i++ {
			leaf := memberVar(target, int64(i), elem)
			p.evalAssign(leaf, token.Kind('='), p.immInt(int64(tok.Str[i]), p.charTy))
		}
		leaf := memberVar(target, int64(len(tok.Str)), elem)
		p.evalAssign(leaf, token.Kind('='), p.immInt(0, p.charTy))
		if u.ArrayLen == 0 {
			target.Type.SetArrayLen(len(tok.Str) + 1)
		}
		return
	}

	p.expectPunct('{')
	count := int64(0)
	for !p.atPunct('}') {
		leaf := memberVar(target, count*elemSize, elem)
		p.localInitializerList(leaf)
		count++
		if u.ArrayLen > 0 && int(count) >= u.ArrayLen {
			break
		}
		if !p.atPunct(',') {
			break
		}
		p.next()
		if p.atPunct('}') {
			break
		}
	}
	p.expectPunct('}')
	if u.ArrayLen == 0 {
		target.Type.SetArrayLen(int(count))
	}
}

func (p *Parser) localStructInitializer(target *ir.Var) {
	u := types.Unwrap(target.Type)
	p.expectPunct('{')
	idx := 0
	for !p.atPunct('}') && idx < len(u.Members) {
		m := u.Members[idx]
		leaf := memberVar(target, int64(m.Offset), m.Type)
		p.localInitializerList(leaf)
		idx++
		if !p.atPunct(',') {
			break
		}
		p.next()
		if p.atPunct('}') {
			break
		}
	}
	p.expectPunct('}')
}

func (p *Parser) localUnionInitializer(target *ir.Var) {
	u := types.Unwrap(target.Type)
	p.expectPunct('{')
	if len(u.Members) > 0 && !p.atPunct('}') {
		leaf := memberVar(target, 0, u.Members[0].Type)
		p.localInitializerList(leaf)
	}
	if p.atPunct(',') {
		p.next()
	}
	p.expectPunct('}')
}

// statement dispatches on the next token to one of the statement forms.
// Labeled statements need two tokens of lookahead (IDENTIFIER then ':'),
// which the one-token token.Stream doesn't offer directly; we consume the
// identifier ourselves and push it back when it turns out to start an
// expression instead of a label.
func (p *Parser) statement() {
	switch {
	case p.atPunct('{'):
		p.compoundStatement()
	case p.atKind(token.IF):
		p.ifStatement()
	case p.atKind(token.WHILE):
		p.whileStatement()
	case p.atKind(token.DO):
		p.doWhileStatement()
	case p.atKind(token.FOR):
		p.forStatement()
	case p.atKind(token.SWITCH):
		p.switchStatement()
	case p.atKind(token.CASE):
		p.caseStatement()
	case p.atKind(token.DEFAULT):
		p.defaultStatement()
	case p.atKind(token.BREAK):
		p.next()
		p.expectPunct(';')
		p.breakStatement()
	case p.atKind(token.CONTINUE):
		p.next()
		p.expectPunct(';')
		p.continueStatement()
	case p.atKind(token.GOTO):
		p.gotoStatement()
	case p.atKind(token.RETURN):
		p.returnStatement()
	case p.atPunct(';'):
		p.next()
	case p.atKind(token.IDENTIFIER):
		tok := p.next()
		if p.atPunct(':') {
			p.next()
			p.labeledStatementBody(tok.Str)
			return
		}
		p.pushback(tok)
		p.expression()
		p.expectPunct(';')
	default:
		p.expression()
		p.expectPunct(';')
	}
}

func (p *Parser) labelBlock(name string) *ir.Block {
	if blk, ok := p.gotoLabels[name]; ok {
		return blk
	}
	blk := p.cfg.NewBlock()
	blk.Label = name
	if p.gotoLabels == nil {
		p.gotoLabels = map[string]*ir.Block{}
	}
	p.gotoLabels[name] = blk
	return blk
}

func (p *Parser) labeledStatementBody(name string) {
	blk := p.labelBlock(name)
	if !terminated(p.cur) {
		p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: blk}
	}
	p.cur = blk
	p.statement()
}

func (p *Parser) gotoStatement() {
	p.next()
	name := p.expectKind(token.IDENTIFIER).Str
	p.expectPunct(';')
	blk := p.labelBlock(name)
	p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: blk}
	p.cur = p.cfg.NewBlock()
}

func (p *Parser) ifStatement() {
	p.next()
	p.expectPunct('(')
	cond := p.toBool(p.expression())
	p.expectPunct(')')

	thenBlk := p.cfg.NewBlock()
	elseBlk := p.cfg.NewBlock()
	mergeBlk := p.cfg.NewBlock()

	p.cur.Terminator = ir.Terminator{Kind: ir.TERM_BRANCH, Expr: cond, Then: thenBlk, Else: elseBlk}

	p.cur = thenBlk
	p.statement()
	if !terminated(p.cur) {
		p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: mergeBlk}
	}

	p.cur = elseBlk
	if p.atKind(token.ELSE) {
		p.next()
		p.statement()
	}
	if !terminated(p.cur) {
		p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: mergeBlk}
	}

	p.cur = mergeBlk
}

func (p *Parser) whileStatement() {
	p.next()
	headBlk := p.cfg.NewBlock()
	bodyBlk := p.cfg.NewBlock()
	contBlk := p.cfg.NewBlock()

	p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: headBlk}
	p.cur = headBlk
	p.expectPunct('(')
	cond := p.toBool(p.expression())
	p.expectPunct(')')
	headBlk.Terminator = ir.Terminator{Kind: ir.TERM_BRANCH, Expr: cond, Then: bodyBlk, Else: contBlk}

	p.cur = bodyBlk
	p.loops = append(p.loops, loopCtx{Break: contBlk, Continue: headBlk})
	p.statement()
	p.loops = p.loops[:len(p.loops)-1]
	if !terminated(p.cur) {
		p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: headBlk}
	}

	p.cur = contBlk
}

func (p *Parser) doWhileStatement() {
	p.next()
	bodyBlk := p.cfg.NewBlock()
	condBlk := p.cfg.NewBlock()
	contBlk := p.cfg.NewBlock()

	p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: bodyBlk}
	p.cur = bodyBlk
	p.loops = append(p.loops, loopCtx{Break: contBlk, Continue: condBlk})
	p.statement()
	p.loops = p.loops[:len(p.loops)-1]
	if !terminated(p.cur) {
		p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: condBlk}
	}

	p.cur = condBlk
	p.expectKind(token.WHILE)
	p.expectPunct('(')
	cond := p.toBool(p.expression())
	p.expectPunct(')')
	p.expectPunct(';')
	condBlk.Terminator = ir.Terminator{Kind: ir.TERM_BRANCH, Expr: cond, Then: bodyBlk, Else: contBlk}

	p.cur = contBlk
}

// forStatement handles the parse-order/execution-order mismatch of its
// step expression (written before the body but run after it) by parsing
// the step's tokens right after the second ';' while p.cur is temporarily
// pointed at its own block, then switching to the body block for the
// loop's statement.
func (p *Parser) forStatement() {
	p.next()
	p.expectPunct('(')
	p.idents.PushScope()
	if !p.atPunct(';') {
		p.expression()
	}
	p.expectPunct(';')

	headBlk := p.cfg.NewBlock()
	bodyBlk := p.cfg.NewBlock()
	stepBlk := p.cfg.NewBlock()
	contBlk := p.cfg.NewBlock()

	p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: headBlk}
	p.cur = headBlk
	var cond *ir.Var
	if !p.atPunct(';') {
		cond = p.toBool(p.expression())
	} else {
		cond = p.immInt(1, p.intTy)
	}
	p.expectPunct(';')
	headBlk.Terminator = ir.Terminator{Kind: ir.TERM_BRANCH, Expr: cond, Then: bodyBlk, Else: contBlk}

	p.cur = stepBlk
	if !p.atPunct(')') {
		p.expression()
	}
	stepBlk.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: headBlk}
	p.expectPunct(')')

	p.cur = bodyBlk
	p.loops = append(p.loops, loopCtx{Break: contBlk, Continue: stepBlk})
	p.statement()
	p.loops = p.loops[:len(p.loops)-1]
	if !terminated(p.cur) {
		p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: stepBlk}
	}

	p.idents.PopScope()
	p.cur = contBlk
}

func (p *Parser) switchStatement() {
	p.next()
	p.expectPunct('(')
	tag := p.rvalue(p.expression())
	p.expectPunct(')')
	tagSym := p.materializeToSymbol(tag)
	tagVar := &ir.Var{Kind: ir.DIRECT, Symbol: tagSym, Type: tag.Type, LValue: true}

	headBlk := p.cur
	bodyBlk := p.cfg.NewBlock()
	contBlk := p.cfg.NewBlock()

	ctx := &switchCtx{Tag: tagVar}
	p.switches = append(p.switches, ctx)
	var enclosingContinue *ir.Block
	if n := len(p.loops); n > 0 {
		enclosingContinue = p.loops[n-1].Continue
	}
	p.loops = append(p.loops, loopCtx{Break: contBlk, Continue: enclosingContinue})

	p.cur = bodyBlk
	p.statement()
	if !terminated(p.cur) {
		p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: contBlk}
	}

	p.loops = p.loops[:len(p.loops)-1]
	p.switches = p.switches[:len(p.switches)-1]

	defaultTarget := contBlk
	for _, c := range ctx.Cases {
		if c.IsDefault {
			defaultTarget = c.Block
		}
	}

	tagLoad := p.newTemp(tagVar.Type)
	tagLoad.LValue = false
	headBlk.Emit(ir.Op{Target: tagLoad, Opcode: ir.OP_LOAD, A: tagVar})

	prev := headBlk
	for _, c := range ctx.Cases {
		if c.IsDefault {
			continue
		}
		testBlk := p.cfg.NewBlock()
		nextBlk := p.cfg.NewBlock()
		cmp := p.newTemp(p.intTy)
		cmp.LValue = false
		testBlk.Emit(ir.Op{Target: cmp, Opcode: ir.OP_EQ, A: tagLoad, B: p.immInt(c.Value, tagVar.Type)})
		testBlk.Terminator = ir.Terminator{Kind: ir.TERM_BRANCH, Expr: cmp, Then: c.Block, Else: nextBlk}
		prev.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: testBlk}
		prev = nextBlk
	}
	prev.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: defaultTarget}

	p.cur = contBlk
}

func (p *Parser) caseStatement() {
	p.next()
	val := p.constIntExpr()
	p.expectPunct(':')
	if len(p.switches) == 0 {
		p.errorf("'case' label not within a switch statement")
		p.statement()
		return
	}
	ctx := p.switches[len(p.switches)-1]
	blk := p.cfg.NewBlock()
	if !terminated(p.cur) {
		p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: blk}
	}
	p.cur = blk
	ctx.Cases = append(ctx.Cases, switchCase{Value: val, Block: blk})
	p.statement()
}

func (p *Parser) defaultStatement() {
	p.next()
	p.expectPunct(':')
	if len(p.switches) == 0 {
		p.errorf("'default' label not within a switch statement")
		p.statement()
		return
	}
	ctx := p.switches[len(p.switches)-1]
	blk := p.cfg.NewBlock()
	if !terminated(p.cur) {
		p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: blk}
	}
	p.cur = blk
	ctx.Cases = append(ctx.Cases, switchCase{IsDefault: true, Block: blk})
	p.statement()
}

func (p *Parser) breakStatement() {
	if len(p.loops) == 0 {
		p.errorf("'break' not within a loop or switch statement")
		return
	}
	blk := p.loops[len(p.loops)-1].Break
	p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: blk}
	p.cur = p.cfg.NewBlock()
}

func (p *Parser) continueStatement() {
	if len(p.loops) == 0 || p.loops[len(p.loops)-1].Continue == nil {
		p.errorf("'continue' not within a loop")
		return
	}
	blk := p.loops[len(p.loops)-1].Continue
	p.cur.Terminator = ir.Terminator{Kind: ir.TERM_JUMP, Target: blk}
	p.cur = p.cfg.NewBlock()
}

func (p *Parser) returnStatement() {
	p.next()
	if p.atPunct(';') {
		p.next()
		p.cur.Terminator = ir.Terminator{Kind: ir.TERM_RETURN_VOID}
	} else {
		v := p.rvalue(p.expression())
		p.expectPunct(';')
		p.cur.Terminator = ir.Terminator{Kind: ir.TERM_RETURN, Expr: v}
	}
	p.cur = p.cfg.NewBlock()
}
