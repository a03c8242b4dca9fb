package parser

import (
	"github.com/JamesLinus/c-compiler/internal/ir"
	"github.com/JamesLinus/c-compiler/internal/symtab"
	"github.com/JamesLinus/c-compiler/internal/token"
	"github.com/JamesLinus/c-compiler/internal/types"
)

// constIntExpr evaluates a constant-integer-expression (array bound,
// enumerator value, case label) by running the normal expression grammar
// into a throwaway block — the CFG builder's fallback owner makes this
// safe even before any definition has been opened — then requiring the
// folded result to be an integer IMMEDIATE.
func (p *Parser) constIntExpr() int64 {
	saved := p.cur
	p.cur = p.cfg.NewBlock()
	v := p.rvalue(p.conditional())
	p.cur = saved
	if v.Kind != ir.IMMEDIATE || !types.IsInteger(v.Type) {
		p.errorf("expression is not an integer constant")
		return 0
	}
	return v.ImmInt
}

// externalDeclaration parses one top-level declaration: a lone
// struct/union/enum tag declaration, a typedef, a function definition, or
// one or more comma-separated object declarators.
func (p *Parser) externalDeclaration() {
	if p.atPunct(';') {
		p.next()
		return
	}

	specTy, storage := p.declSpecifiers(true)

	if p.atPunct(';') {
		p.next() // struct/union/enum tag declaration with no declarator
		return
	}

	name, ty := p.declarator(specTy)

	if storage == token.TYPEDEF {
		p.idents.Add(&symtab.Symbol{Name: name, Kind: symtab.TYPEDEF, Type: ty})
		for p.atPunct(',') {
			p.next()
			n, t := p.declarator(specTy)
			p.idents.Add(&symtab.Symbol{Name: n, Kind: symtab.TYPEDEF, Type: t})
		}
		p.expectPunct(';')
		return
	}

	if types.Unwrap(ty).Kind == types.TY_FUNCTION && p.atPunct('{') {
		p.functionDefinition(name, ty, storage)
		return
	}

	for {
		p.fileScopeObject(name, ty, storage)
		if !p.atPunct(',') {
			break
		}
		p.next()
		name, ty = p.declarator(specTy)
	}
	p.expectPunct(';')
}

// fileScopeObject registers one object declarator at file scope and, when
// it has an initializer (or no 'extern'/function type at all), buffers a
// Definition for the backend to lay out storage for.
func (p *Parser) fileScopeObject(name string, ty *types.Type, storage token.Kind) {
	if types.Unwrap(ty).Kind == types.TY_FUNCTION {
		linkage := symtab.LINK_EXTERN
		if storage == token.STATIC {
			linkage = symtab.LINK_INTERN
		}
		sym := p.declareOrReuse(name, ty, symtab.DECLARATION, linkage)
		sym.Type = ty
		return
	}

	linkage := symtab.LINK_EXTERN
	kind := symtab.TENTATIVE
	if storage == token.STATIC {
		linkage = symtab.LINK_INTERN
	} else if storage == token.EXTERN {
		kind = symtab.DECLARATION
	}

	sym := p.declareOrReuse(name, ty, kind, linkage)

	var inits []ir.Init
	if p.atPunct('=') {
		p.next()
		if storage == token.EXTERN {
			p.errorf("'extern' object %q cannot have an initializer", name)
		}
		finalTy, leaves := p.fileScopeInitializer(ty)
		sym.Type = finalTy
		sym.Kind = symtab.DEFINITION
		inits = leaves
	}

	if sym.Kind != symtab.DECLARATION {
		def := p.cfg.StartDefinition(sym, false)
		def.Inits = inits
		p.cfg.FinishDefinition(def)
	}
}

// declareOrReuse returns the existing file-scope binding for name if one
// already exists (the common case for a forward `extern` declaration
// later completed by a definition), otherwise adds a fresh one.
func (p *Parser) declareOrReuse(name string, ty *types.Type, kind symtab.Kind, linkage symtab.Linkage) *symtab.Symbol {
	if existing := p.idents.LookupCurrentScope(name); existing != nil {
		if kind == symtab.DEFINITION || existing.Kind == symtab.DECLARATION {
			existing.Kind = kind
		}
		existing.Type = ty
		return existing
	}
	return p.idents.Add(&symtab.Symbol{Name: name, Kind: kind, Type: ty, Linkage: linkage})
}

// functionDefinition parses a function body, synthesizing the entry block,
// parameter bindings, and __func__, and falls off the end with an implicit
// return matching the function's return type.
func (p *Parser) functionDefinition(name string, ty *types.Type, storage token.Kind) {
	linkage := symtab.LINK_EXTERN
	if storage == token.STATIC {
		linkage = symtab.LINK_INTERN
	}
	sym := p.declareOrReuse(name, ty, symtab.DEFINITION, linkage)
	sym.Kind = symtab.DEFINITION

	def := p.cfg.StartDefinition(sym, true)
	p.gotoLabels = nil

	p.idents.PushScope()

	entry := p.cfg.NewBlock()
	def.Entry = entry
	p.cur = entry

	fnTy := types.Unwrap(ty)
	for _, m := range fnTy.Members {
		if m.Name == "" {
			continue
		}
		psym := p.idents.Add(&symtab.Symbol{Name: m.Name, Kind: symtab.DEFINITION, Type: m.Type})
		def.Params = append(def.Params, psym)
		def.AddLocal(psym)
	}

	if fnTy.Variadic {
		regSave := &symtab.Symbol{Name: ".va_reg_save", Kind: symtab.DEFINITION, Type: p.arena.InitArray(p.charTy, 48)}
		def.AddLocal(regSave)
		def.VaRegSave = regSave
		def.VaOverflowBase = &symtab.Symbol{Name: ".va_overflow_base", Kind: symtab.DEFINITION, Type: p.arena.InitPointer(p.charTy)}
	}

	funcStr := name
	funcArr := p.arena.InitArray(p.charTy, len(funcStr)+1)
	funcSym := p.idents.Add(&symtab.Symbol{
		Name: "__func__", Kind: symtab.STRING_VALUE, Type: funcArr,
		StringValue: funcStr, Linkage: symtab.LINK_INTERN, IsFunc: true,
	})
	_ = funcSym

	p.compoundStatement()

	if !terminated(p.cur) {
		if fnTy.Next == nil || types.Unwrap(fnTy.Next).Kind == types.TY_VOID {
			p.cur.Terminator = ir.Terminator{Kind: ir.TERM_RETURN_VOID}
		} else {
			p.cur.Terminator = ir.Terminator{Kind: ir.TERM_RETURN, Expr: p.immInt(0, fnTy.Next)}
		}
	}

	p.idents.PopScope()
	p.cfg.FinishDefinition(def)
}

// fileScopeInitializer parses a file-scope object's constant initializer,
// returning the (possibly now-sized, for an incomplete array) type and the
// flattened list of scalar leaves the backend places into .data/.rodata.
func (p *Parser) fileScopeInitializer(ty *types.Type) (*types.Type, []ir.Init) {
	var out []ir.Init
	newTy := p.constInitializerList(ty, 0, &out)
	return newTy, out
}

func (p *Parser) constInitializerList(ty *types.Type, offset int, out *[]ir.Init) *types.Type {
	u := types.Unwrap(ty)
	switch u.Kind {
	case types.TY_ARRAY:
		return p.constArrayInitializer(ty, offset, out)
	case types.TY_STRUCT:
		return p.constStructInitializer(ty, offset, out)
	case types.TY_UNION:
		return p.constUnionInitializer(ty, offset, out)
	default:
		if p.atPunct('{') {
			p.next()
			v := p.constantLeaf(ty)
			if p.atPunct(',') {
				p.next()
			}
			p.expectPunct('}')
			*out = append(*out, ir.Init{Offset: offset, Value: v})
			return ty
		}
		v := p.constantLeaf(ty)
		*out = append(*out, ir.Init{Offset: offset, Value: v})
		return ty
	}
}

func (p *Parser) constArrayInitializer(ty *types.Type, offset int, out *[]ir.Init) *types.Type {
	u := types.Unwrap(ty)
	elem := u.Next
	elemSize := types.SizeOf(elem)

	if p.atKind(token.STRING) && types.SizeOf(elem) == 1 {
		tok := p.next()
		for i := 0; i < len(tok.Str); i++ {
			*out = append(*out, ir.Init{Offset: offset + i, Value: p.immInt(int64(tok.Str[i]), p.charTy)})
		}
		*out = append(*out, ir.Init{Offset: offset + len(tok.Str), Value: p.immInt(0, p.charTy)})
		if u.ArrayLen == 0 {
			ty.SetArrayLen(len(tok.Str) + 1)
		}
		return ty
	}

	p.expectPunct('{')
	count := 0
	for !p.atPunct('}') {
		p.constInitializerList(elem, offset+count*elemSize, out)
		count++
		if u.ArrayLen > 0 && count >= u.ArrayLen {
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
		ty.SetArrayLen(count)
	}
	return ty
}

func (p *Parser) constStructInitializer(ty *types.Type, offset int, out *[]ir.Init) *types.Type {
	u := types.Unwrap(ty)
	p.expectPunct('{')
	idx := 0
	for !p.atPunct('}') && idx < len(u.Members) {
		m := u.Members[idx]
		p.constInitializerList(m.Type, offset+m.Offset, out)
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
	return ty
}

func (p *Parser) constUnionInitializer(ty *types.Type, offset int, out *[]ir.Init) *types.Type {
	u := types.Unwrap(ty)
	p.expectPunct('{')
	if len(u.Members) > 0 && !p.atPunct('}') {
		p.constInitializerList(u.Members[0].Type, offset, out)
	}
	if p.atPunct(',') {
		p.next()
	}
	p.expectPunct('}')
	return ty
}

// constantLeaf evaluates one scalar initializer expression, enforcing the
// file-scope rule that it fold to a compile-time constant: an integer
// IMMEDIATE, or an ADDRESS (a string literal or `&`-of-static-storage,
// itself already a link-time constant).
func (p *Parser) constantLeaf(ty *types.Type) *ir.Var {
	saved := p.cur
	p.cur = p.cfg.NewBlock()
	v := p.assignment()
	p.cur = saved

	switch v.Kind {
	case ir.ADDRESS:
		return &ir.Var{Kind: ir.ADDRESS, Symbol: v.Symbol, Offset: v.Offset, Type: ty}
	case ir.IMMEDIATE:
		if types.IsInteger(ty) {
			return &ir.Var{Kind: ir.IMMEDIATE, Type: ty, ImmInt: truncateInt(v.ImmInt, types.SizeOf(ty), isUnsignedType(ty))}
		}
		return &ir.Var{Kind: ir.IMMEDIATE, Type: ty, ImmInt: v.ImmInt, ImmReal: v.ImmReal}
	default:
		p.errorf("initializer element is not constant")
		return &ir.Var{Kind: ir.IMMEDIATE, Type: ty}
	}
}
