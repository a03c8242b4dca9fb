// Package dot renders a Definition's CFG as a Graphviz digraph, for the
// driver's --dot debug output.
package dot

import (
	"fmt"
	"strings"

	"github.com/JamesLinus/c-compiler/internal/ir"
	"github.com/JamesLinus/c-compiler/internal/types"
)

// Render writes one `digraph` describing def: one node per block, labeled
// with its operations and terminator, one edge per CFG successor labeled
// true/false for branch terminators.
func Render(def *ir.Definition) string {
	var b strings.Builder
	name := "definition"
	if def.Symbol != nil {
		name = def.Symbol.Name
	}
	fmt.Fprintf(&b, "digraph %s {\n", quoteIdent(name))
	b.WriteString("\tnode [shape=box fontname=monospace];\n")

	index := make(map[*ir.Block]int)
	for i, blk := range def.Blocks {
		index[blk] = i
	}

	for i, blk := range def.Blocks {
		fmt.Fprintf(&b, "\tb%d [label=%q];\n", i, blockLabel(blk))
	}
	for i, blk := range def.Blocks {
		switch blk.Terminator.Kind {
		case ir.TERM_JUMP:
			if t, ok := index[blk.Terminator.Target]; ok {
				fmt.Fprintf(&b, "\tb%d -> b%d;\n", i, t)
			}
		case ir.TERM_BRANCH:
			if t, ok := index[blk.Terminator.Then]; ok {
				fmt.Fprintf(&b, "\tb%d -> b%d [label=true];\n", i, t)
			}
			if t, ok := index[blk.Terminator.Else]; ok {
				fmt.Fprintf(&b, "\tb%d -> b%d [label=false];\n", i, t)
			}
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func blockLabel(blk *ir.Block) string {
	var lines []string
	if blk.Label != "" {
		lines = append(lines, blk.Label+":")
	}
	for _, op := range blk.Code {
		lines = append(lines, opString(op))
	}
	lines = append(lines, termString(blk.Terminator))
	return strings.Join(lines, "\\l") + "\\l"
}

func opString(op ir.Op) string {
	s := fmt.Sprintf("%s = %s %s", varString(op.Target), opcodeName(op.Opcode), varString(op.A))
	if op.B != nil {
		s += ", " + varString(op.B)
	}
	if op.Callee != nil {
		s += " @" + op.Callee.Name
	}
	return s
}

func termString(t ir.Terminator) string {
	switch t.Kind {
	case ir.TERM_JUMP:
		return "jump"
	case ir.TERM_BRANCH:
		return fmt.Sprintf("branch %s", varString(t.Expr))
	case ir.TERM_RETURN:
		return fmt.Sprintf("return %s", varString(t.Expr))
	case ir.TERM_RETURN_VOID:
		return "return"
	default:
		return "?"
	}
}

func varString(v *ir.Var) string {
	if v == nil {
		return "-"
	}
	switch v.Kind {
	case ir.IMMEDIATE:
		if v.Type != nil && types.Unwrap(v.Type).Kind == types.TY_REAL {
			return fmt.Sprintf("%g", v.ImmReal)
		}
		return fmt.Sprintf("%d", v.ImmInt)
	case ir.DIRECT:
		if v.Symbol != nil {
			return v.Symbol.Name
		}
		return "?"
	case ir.DEREF:
		if v.Symbol != nil {
			return fmt.Sprintf("*(%s+%d)", v.Symbol.Name, v.Offset)
		}
		return "*(?)"
	case ir.ADDRESS:
		if v.Symbol != nil {
			return "&" + v.Symbol.Name
		}
		return "&?"
	default:
		return "?"
	}
}

var opcodeNames = map[ir.Opcode]string{
	ir.OP_ADD: "add", ir.OP_SUB: "sub", ir.OP_MUL: "mul", ir.OP_DIV: "div",
	ir.OP_MOD: "mod", ir.OP_AND: "and", ir.OP_OR: "or", ir.OP_XOR: "xor",
	ir.OP_SHL: "shl", ir.OP_SHR: "shr", ir.OP_NEG: "neg", ir.OP_NOT: "not",
	ir.OP_LNOT: "lnot", ir.OP_EQ: "eq", ir.OP_NE: "ne", ir.OP_LT: "lt",
	ir.OP_LE: "le", ir.OP_GT: "gt", ir.OP_GE: "ge", ir.OP_CONVERT: "convert",
	ir.OP_LOAD: "load", ir.OP_STORE: "store", ir.OP_ADDR: "addr",
	ir.OP_CALL: "call", ir.OP_PARAM: "param",
}

func opcodeName(op ir.Opcode) string {
	if n, ok := opcodeNames[op]; ok {
		return n
	}
	return "?"
}

func quoteIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "def"
	}
	return b.String()
}
