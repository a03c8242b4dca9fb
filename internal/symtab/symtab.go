// Package symtab implements the two C89 namespaces (identifiers and tags)
// as stacks of scopes, returning pointer-stable symbols that IR and types
// can reference for the symbol's whole lifetime.
package symtab

import (
	"fmt"

	"github.com/JamesLinus/c-compiler/internal/types"
)

// Kind classifies a symbol binding.
type Kind int

const (
	DECLARATION Kind = iota
	TENTATIVE
	DEFINITION
	TYPEDEF
	STRING_VALUE
	ENUM_CONSTANT
	LABEL
	TEMPORARY
)

// Linkage classifies a symbol's linkage.
type Linkage int

const (
	LINK_NONE Linkage = iota
	LINK_INTERN
	LINK_EXTERN
)

// Symbol is a named, scoped binding. The pointer returned by Add remains
// stable for the symbol's lifetime: IR operands and type nodes hold onto
// it directly rather than a copy or an index.
type Symbol struct {
	Name    string
	Kind    Kind
	Linkage Linkage
	Depth   int
	Type    *types.Type

	StringValue string // payload for STRING_VALUE
	EnumValue   int64  // payload for ENUM_CONSTANT
	IsFunc      bool   // __func__ payload marker
}

type scope struct {
	depth   int
	symbols []*Symbol
}

// Table is one namespace: a stack of scopes searched innermost-first.
type Table struct {
	scopes       []scope
	currentDepth int
	tmpCounter   int
	labelCounter int
	namePrefix   string // shared by CreateTmp and CreateLabel names (".<prefix><n>")
}

// NewTable returns a namespace with one file-scope (depth 0) already open.
func NewTable(namePrefix string) *Table {
	t := &Table{namePrefix: namePrefix}
	t.scopes = append(t.scopes, scope{depth: 0})
	return t
}

// PushScope opens a new, nested scope.
func (t *Table) PushScope() {
	t.currentDepth++
	t.scopes = append(t.scopes, scope{depth: t.currentDepth})
}

// PopScope discards every binding introduced at the current depth.
func (t *Table) PopScope() {
	t.scopes = t.scopes[:len(t.scopes)-1]
	t.currentDepth--
}

// Depth returns the current scope nesting number (0 at file scope).
func (t *Table) Depth() int {
	return t.currentDepth
}

// Add inserts sym at the current scope and returns it unchanged, so callers
// can write `sym := tab.Add(&Symbol{...})`.
func (t *Table) Add(sym *Symbol) *Symbol {
	sym.Depth = t.currentDepth
	top := &t.scopes[len(t.scopes)-1]
	top.symbols = append(top.symbols, sym)
	return sym
}

// Lookup returns the most recent binding of name across all live scopes,
// searching innermost-first, or nil if none exists.
func (t *Table) Lookup(name string) *Symbol {
	for i := len(t.scopes) - 1; i >= 0; i-- {
		syms := t.scopes[i].symbols
		for j := len(syms) - 1; j >= 0; j-- {
			if syms[j].Name == name {
				return syms[j]
			}
		}
	}
	return nil
}

// LookupCurrentScope returns a binding of name introduced at the current
// scope only, used to find an existing binding to reuse when a name is
// declared again in the same scope.
func (t *Table) LookupCurrentScope(name string) *Symbol {
	top := &t.scopes[len(t.scopes)-1]
	for j := len(top.symbols) - 1; j >= 0; j-- {
		if top.symbols[j].Name == name {
			return top.symbols[j]
		}
	}
	return nil
}

// CreateTmp generates and inserts a fresh anonymous temporary of ty at the
// current scope.
func (t *Table) CreateTmp(ty *types.Type) *Symbol {
	t.tmpCounter++
	return t.Add(&Symbol{
		Name: fmt.Sprintf(".%s%d", t.namePrefix, t.tmpCounter),
		Kind: TEMPORARY,
		Type: ty,
	})
}

// CreateLabel generates a fresh block label name, without inserting a
// binding (block labels are tracked by the IR package, not a namespace).
func (t *Table) CreateLabel() string {
	t.labelCounter++
	return fmt.Sprintf(".%s%d", t.namePrefix, t.labelCounter)
}
