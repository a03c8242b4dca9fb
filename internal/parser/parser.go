// Package parser is the declaration, expression, and statement parser: it
// consumes a token.Stream and drives symtab/ir/types to build one
// translation unit's worth of definitions.
package parser

import (
	"github.com/JamesLinus/c-compiler/internal/diag"
	"github.com/JamesLinus/c-compiler/internal/ir"
	"github.com/JamesLinus/c-compiler/internal/symtab"
	"github.com/JamesLinus/c-compiler/internal/token"
	"github.com/JamesLinus/c-compiler/internal/types"
)

// holeType is a unique sentinel used only by identity comparison while
// splicing a parenthesized declarator's nested type back onto the outer
// suffix chain; it is never returned to a caller as a real type.
var holeType = &types.Type{}

// loopCtx is one entry in the break/continue stacks; switch statements
// only populate Break (no continue target of their own).
type loopCtx struct {
	Break    *ir.Block
	Continue *ir.Block
}

// switchCase records one case/default label collected while parsing a
// switch body, resolved into a dispatch chain once the body is complete.
type switchCase struct {
	Value   int64
	IsDefault bool
	Block   *ir.Block
}

type switchCtx struct {
	Tag   *ir.Var
	Cases []switchCase
}

// Parser holds all shared state across the expression, declaration, and
// statement parsers in this package.
type Parser struct {
	toks  token.Stream
	arena *types.Arena

	idents *symtab.Table
	tags   *symtab.Table

	cfg *ir.Builder

	cur *ir.Block // block currently receiving emitted ops

	pushed *token.Token // one-token pushback, for label-vs-expression lookahead

	loops      []loopCtx
	switches   []*switchCtx
	gotoLabels map[string]*ir.Block

	stringCounter int

	voidTy, charTy, ucharTy                 *types.Type
	shortTy, ushortTy, intTy, uintTy         *types.Type
	longTy, ulongTy, floatTy, doubleTy       *types.Type
}

// NewParser returns a parser reading toks, allocating types from arena.
func NewParser(toks token.Stream, arena *types.Arena) *Parser {
	p := &Parser{
		toks:   toks,
		arena:  arena,
		idents: symtab.NewTable("t"),
		tags:   symtab.NewTable("tag"),
		cfg:    ir.NewBuilder(),
	}
	p.voidTy = arena.Init(types.TY_VOID, 0)
	p.charTy = arena.Init(types.TY_SIGNED, 1)
	p.ucharTy = arena.Init(types.TY_UNSIGNED, 1)
	p.shortTy = arena.Init(types.TY_SIGNED, 2)
	p.ushortTy = arena.Init(types.TY_UNSIGNED, 2)
	p.intTy = arena.Init(types.TY_SIGNED, 4)
	p.uintTy = arena.Init(types.TY_UNSIGNED, 4)
	p.longTy = arena.Init(types.TY_SIGNED, 8)
	p.ulongTy = arena.Init(types.TY_UNSIGNED, 8)
	p.floatTy = arena.Init(types.TY_REAL, 4)
	p.doubleTy = arena.Init(types.TY_REAL, 8)
	return p
}

func (p *Parser) pos() diag.Pos {
	tok := p.toks.Peek()
	return diag.Pos{File: tok.Pos.File, Line: tok.Pos.Line, Col: tok.Pos.Col}
}

// errorf raises a fatal diagnostic at the current position. There is no
// error recovery: the first one thrown unwinds all the way out of Parse,
// matching spec.md's "the first error is fatal".
func (p *Parser) errorf(format string, args ...interface{}) {
	diag.Fatalf(p.pos(), format, args...)
}

func (p *Parser) peek() token.Token {
	if p.pushed != nil {
		return *p.pushed
	}
	return p.toks.Peek()
}

func (p *Parser) next() token.Token {
	if p.pushed != nil {
		tok := *p.pushed
		p.pushed = nil
		return tok
	}
	return p.toks.Next()
}

// pushback re-queues a single already-consumed token, used to recover from
// one-token lookahead ambiguity (e.g. identifier-then-colon for a label)
// without needing a multi-token buffer.
func (p *Parser) pushback(tok token.Token) {
	p.pushed = &tok
}

func (p *Parser) atKind(k token.Kind) bool { return p.peek().Kind == k }
func (p *Parser) atPunct(ch rune) bool     { return p.peek().Kind == token.Kind(ch) }

func (p *Parser) expectKind(k token.Kind) token.Token {
	if p.pushed != nil {
		tok := *p.pushed
		if tok.Kind != k {
			diag.Fatalf(p.pos(), "unexpected token")
		}
		p.pushed = nil
		return tok
	}
	return p.toks.Consume(k)
}

func (p *Parser) expectPunct(ch rune) token.Token {
	return p.expectKind(token.Kind(ch))
}

// qualify returns a fresh node identical to base but with q folded into
// its Qualifier bitset, never mutating the shared singleton base refers
// to (base is usually one of the builtin basic-type nodes, shared across
// the whole translation unit).
func (p *Parser) qualify(base *types.Type, q types.Qualifier) *types.Type {
	if q == 0 {
		return base
	}
	cp := p.arena.Init(base.Kind, base.Size)
	*cp = *base
	cp.Qualifier |= q
	return cp
}

func (p *Parser) typeQualifierList() types.Qualifier {
	var q types.Qualifier
	for {
		switch p.peek().Kind {
		case token.CONST:
			p.next()
			if q&types.QUAL_CONST != 0 {
				p.errorf("duplicate 'const'")
			}
			q |= types.QUAL_CONST
		case token.VOLATILE:
			p.next()
			if q&types.QUAL_VOLATILE != 0 {
				p.errorf("duplicate 'volatile'")
			}
			q |= types.QUAL_VOLATILE
		default:
			return q
		}
	}
}

// isTypedefName reports whether name is bound as a typedef in the
// identifier namespace, and returns its type.
func (p *Parser) isTypedefName(name string) (*types.Type, bool) {
	sym := p.idents.Lookup(name)
	if sym != nil && sym.Kind == symtab.TYPEDEF {
		return sym.Type, true
	}
	return nil, false
}

// declSpecifiers accumulates specifier/qualifier/storage-class tokens per
// spec: duplicate storage classes, specifier-bitset/user-type mixing, and
// qualifier duplication are all errors, reported through p.errorf and
// therefore fatal (internal/diag's Fatalf panics; parsing does not go on).
func (p *Parser) declSpecifiers(allowStorage bool) (*types.Type, token.Kind) {
	var voidN, charN, shortN, intN, longN, floatN, doubleN, signedN, unsignedN int
	var qual types.Qualifier
	var storage token.Kind
	var userType *types.Type

	basicCount := func() int {
		return voidN + charN + shortN + intN + longN + floatN + doubleN + signedN + unsignedN
	}

loop:
	for {
		tok := p.peek()
		switch tok.Kind {
		case token.CONST:
			p.next()
			if qual&types.QUAL_CONST != 0 {
				p.errorf("duplicate 'const'")
			}
			qual |= types.QUAL_CONST
		case token.VOLATILE:
			p.next()
			if qual&types.QUAL_VOLATILE != 0 {
				p.errorf("duplicate 'volatile'")
			}
			qual |= types.QUAL_VOLATILE
		case token.TYPEDEF, token.EXTERN, token.STATIC, token.AUTO, token.REGISTER:
			p.next()
			if !allowStorage {
				p.errorf("storage class specifier not allowed here")
			} else if storage != 0 {
				p.errorf("duplicate storage class specifier")
			}
			storage = tok.Kind
		case token.VOID:
			p.next()
			voidN++
		case token.CHAR:
			p.next()
			charN++
		case token.SHORT:
			p.next()
			shortN++
		case token.INT:
			p.next()
			intN++
		case token.LONG:
			p.next()
			longN++
		case token.FLOAT:
			p.next()
			floatN++
		case token.DOUBLE:
			p.next()
			doubleN++
		case token.SIGNED:
			p.next()
			signedN++
		case token.UNSIGNED:
			p.next()
			unsignedN++
		case token.STRUCT, token.UNION:
			if userType != nil || basicCount() > 0 {
				p.errorf("cannot combine struct/union with other type specifiers")
			}
			userType = p.structOrUnionSpecifier(tok.Kind)
		case token.ENUM:
			if userType != nil || basicCount() > 0 {
				p.errorf("cannot combine enum with other type specifiers")
			}
			userType = p.enumSpecifier()
		case token.IDENTIFIER:
			if userType != nil || basicCount() > 0 {
				break loop
			}
			if ty, ok := p.isTypedefName(tok.Str); ok {
				p.next()
				userType = ty
			} else {
				break loop
			}
		default:
			break loop
		}
	}

	var base *types.Type
	switch {
	case userType != nil:
		base = userType
	case doubleN > 0:
		base = p.doubleTy
	case floatN > 0:
		base = p.floatTy
	case charN > 0:
		if unsignedN > 0 {
			base = p.ucharTy
		} else {
			base = p.charTy
		}
	case shortN > 0:
		if unsignedN > 0 {
			base = p.ushortTy
		} else {
			base = p.shortTy
		}
	case longN > 0:
		if unsignedN > 0 {
			base = p.ulongTy
		} else {
			base = p.longTy
		}
	case unsignedN > 0:
		base = p.uintTy
	default:
		base = p.intTy
	}

	return p.qualify(base, qual), storage
}

// declarator parses `pointer* direct-declarator` and returns the declared
// name (empty for an abstract declarator) and its full type.
func (p *Parser) declarator(base *types.Type) (string, *types.Type) {
	head := base
	for p.atPunct('*') {
		p.next()
		q := p.typeQualifierList()
		ptr := p.arena.InitPointer(head)
		ptr.Qualifier = q
		head = ptr
	}
	return p.directDeclarator(base, head)
}

type declSuffix struct {
	isFunc   bool
	arrayLen int
	params   []types.Member
	variadic bool
}

// startsDeclarator reports whether the upcoming token can begin a
// (possibly abstract) declarator, used to disambiguate a `(` that opens a
// nested declarator from one that opens a function's parameter list.
func (p *Parser) startsDeclarator() bool {
	switch p.peek().Kind {
	case token.Kind('*'), token.Kind('('), token.IDENTIFIER:
		return true
	default:
		return false
	}
}

// directDeclarator parses the identifier-or-nested-declarator core plus
// any trailing array/function suffixes, then splices them together: a
// nested declarator's hole (see holeType) is replaced by the suffix chain
// built on top of base, matching the teacher-independent, standard C
// declarator construction algorithm (spec.md §4.4).
func (p *Parser) directDeclarator(base, head *types.Type) (string, *types.Type) {
	var name string
	var nested *types.Type

	if p.atPunct('(') {
		p.next()
		if p.startsDeclarator() {
			n, ty2 := p.declarator(holeType)
			p.expectPunct(')')
			name, nested = n, ty2
		} else {
			// No nested declarator: this '(' is actually the function
			// suffix for an abstract declarator with base as its return
			// type directly (e.g. a parameter `int (*)()` already
			// consumed its own parens above; this branch covers plain
			// `int ()` in a parameter list).
			fn := p.arena.Init(types.TY_FUNCTION, 8)
			fn.Next = head
			p.parameterList(fn)
			p.expectPunct(')')
			return "", p.trailingSuffixes(fn)
		}
	} else if p.atKind(token.IDENTIFIER) {
		name = p.next().Str
	}

	var suffixes []declSuffix
	for {
		switch {
		case p.atPunct('['):
			p.next()
			s := declSuffix{}
			if !p.atPunct(']') {
				s.arrayLen = int(p.constIntExpr())
			}
			p.expectPunct(']')
			suffixes = append(suffixes, s)
		case p.atPunct('('):
			p.next()
			fn := p.arena.Init(types.TY_FUNCTION, 8)
			p.parameterList(fn)
			p.expectPunct(')')
			suffixes = append(suffixes, declSuffix{isFunc: true, params: fn.Members, variadic: fn.Variadic})
		default:
			goto done
		}
	}
done:
	ty := head
	for i := len(suffixes) - 1; i >= 0; i-- {
		s := suffixes[i]
		if s.isFunc {
			fn := p.arena.Init(types.TY_FUNCTION, 8)
			fn.Next = ty
			for _, m := range s.params {
				fn.AddMember(m.Name, m.Type)
			}
			if s.variadic {
				fn.AddMember(types.VariadicName, nil)
			}
			ty = fn
		} else {
			ty = p.arena.InitArray(ty, s.arrayLen)
		}
	}

	if nested == nil {
		return name, ty
	}
	n := nested
	for n.Next != holeType {
		n = n.Next
	}
	n.Next = ty
	return name, nested
}

// trailingSuffixes applies any array suffixes that follow an already-built
// function type fn; a further function suffix is not parsed here.
func (p *Parser) trailingSuffixes(fn *types.Type) *types.Type {
	ty := fn
	for {
		switch {
		case p.atPunct('['):
			p.next()
			n := 0
			if !p.atPunct(']') {
				n = int(p.constIntExpr())
			}
			p.expectPunct(']')
			ty = p.arena.InitArray(ty, n)
		default:
			return ty
		}
	}
}

// parameterList reads specifier+declarator pairs until ')'. `int f(void)`
// yields zero members; a trailing `...` sets fn.Variadic.
func (p *Parser) parameterList(fn *types.Type) {
	if p.atPunct(')') {
		return
	}
	for {
		if p.atKind(token.DOTS) {
			p.next()
			fn.Variadic = true
			break
		}
		specTy, _ := p.declSpecifiers(false)
		name, ty := p.declarator(specTy)
		if len(fn.Members) == 0 && types.Unwrap(ty).Kind == types.TY_VOID && name == "" && p.atPunct(')') {
			break
		}
		fn.AddMember(name, ty)
		if !p.atPunct(',') {
			break
		}
		p.next()
	}
}

// structOrUnionSpecifier parses `struct|union [tag] [{ member-decl* }]`.
func (p *Parser) structOrUnionSpecifier(kind token.Kind) *types.Type {
	p.next() // consume struct/union
	wantKind := types.TY_STRUCT
	if kind == token.UNION {
		wantKind = types.TY_UNION
	}

	var tagName string
	if p.atKind(token.IDENTIFIER) {
		tagName = p.next().Str
	}

	hasBody := p.atPunct('{')
	var def *types.Type

	if tagName != "" {
		if existing := p.tags.Lookup(tagName); existing != nil {
			if existing.Type.Kind != wantKind {
				p.errorf("%q previously declared as a different tag kind", tagName)
			}
			def = existing.Type
			if hasBody && len(def.Members) > 0 {
				p.errorf("redefinition of %q", tagName)
			}
		} else {
			def = p.arena.Init(wantKind, 0)
			p.tags.Add(&symtab.Symbol{Name: tagName, Kind: symtab.DECLARATION, Type: def})
		}
	} else {
		def = p.arena.Init(wantKind, 0)
	}

	if hasBody {
		p.next() // '{'
		for !p.atPunct('}') {
			memTy, _ := p.declSpecifiers(false)
			for {
				name, ty := p.declarator(memTy)
				def.AddMember(name, ty)
				if !p.atPunct(',') {
					break
				}
				p.next()
			}
			p.expectPunct(';')
		}
		p.expectPunct('}')
	}

	if tagName == "" {
		return def
	}
	return p.arena.TaggedCopy(def, tagName)
}

// enumSpecifier parses `enum [tag] [{ enumerator-list }]`; the enclosing
// type is always int, and enumerators become identifier-namespace symbols
// with sequential values starting at zero unless overridden.
func (p *Parser) enumSpecifier() *types.Type {
	p.next() // consume 'enum'
	if p.atKind(token.IDENTIFIER) {
		p.next() // the tag name is skipped: enum tags are not recorded in
		// the tag namespace, so duplicate enum tags are not diagnosed.
	}
	if p.atPunct('{') {
		p.next()
		next := int64(0)
		for !p.atPunct('}') {
			nameTok := p.expectKind(token.IDENTIFIER)
			val := next
			if p.atPunct('=') {
				p.next()
				val = p.constIntExpr()
			}
			p.idents.Add(&symtab.Symbol{
				Name: nameTok.Str, Kind: symtab.ENUM_CONSTANT, Type: p.intTy, EnumValue: val,
			})
			next = val + 1
			if p.atPunct(',') {
				p.next()
				continue
			}
			break
		}
		p.expectPunct('}')
	}
	return p.intTy
}

// Parse consumes the whole token stream as a sequence of external
// declarations and returns every definition buffered along the way.
func (p *Parser) Parse() []*ir.Definition {
	for !p.atKind(token.END) {
		p.externalDeclaration()
	}
	var defs []*ir.Definition
	for {
		def, ok := p.cfg.Pop()
		if !ok {
			break
		}
		defs = append(defs, def)
	}
	return defs
}
