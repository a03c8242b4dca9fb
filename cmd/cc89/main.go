// Command cc89 drives the compiler core end to end: lex, parse into a CFG,
// lower to x86-64, and write an ELF64 relocatable object.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/JamesLinus/c-compiler/internal/codegen"
	"github.com/JamesLinus/c-compiler/internal/diag"
	"github.com/JamesLinus/c-compiler/internal/dot"
	"github.com/JamesLinus/c-compiler/internal/elfobj"
	"github.com/JamesLinus/c-compiler/internal/ir"
	"github.com/JamesLinus/c-compiler/internal/parser"
	"github.com/JamesLinus/c-compiler/internal/token"
	"github.com/JamesLinus/c-compiler/internal/types"
)

type options struct {
	emitAsm     bool // -S: write a CFG dot dump in place of an object file
	emitObj     bool // -c: compile only (the default output is already an object)
	preprocess  bool // -E: preprocess only
	output      string
	includeDirs []string
	defines     []string
	undefines   []string
	dotDump     bool // --dot: also write a dot dump alongside the object
	verbose     bool
}

func main() {
	var opt options

	root := &cobra.Command{
		Use:   "cc89 [flags] file.c",
		Short: "a C89 compiler core: lex, parse, lower to x86-64, emit ELF64",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], opt)
		},
		SilenceUsage: true,
	}

	flags := root.Flags()
	flags.BoolVarP(&opt.emitAsm, "S", "S", false, "write a CFG dot dump instead of an object file")
	flags.BoolVarP(&opt.emitObj, "c", "c", false, "compile to a relocatable object, do not link")
	flags.BoolVarP(&opt.preprocess, "E", "E", false, "preprocess only")
	flags.StringVarP(&opt.output, "o", "o", "", "output path")
	flags.StringArrayVarP(&opt.includeDirs, "I", "I", nil, "add a directory to the include search path")
	flags.StringArrayVarP(&opt.defines, "D", "D", nil, "define a preprocessor macro name[=value]")
	flags.StringArrayVarP(&opt.undefines, "U", "U", nil, "undefine a preprocessor macro")
	flags.BoolVar(&opt.dotDump, "dot", false, "also write a CFG dot dump alongside the object file")
	flags.BoolVarP(&opt.verbose, "v", "v", false, "trace compilation phases")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string, opt options) error {
	log := diag.NewLogger(opt.verbose)

	// -E and -I/-D/-U all belong to a preprocessor. spec.md §6 names a
	// token stream as this core's input (the preprocessor's output), and
	// internal/token's lexer is explicitly a preprocessor-free stand-in
	// (SPEC_FULL.md §4.1-4.7) with no macro table or #include search to
	// feed these flags to. -E's honest behavior given that is to echo the
	// source unchanged; -I/-D/-U are accepted for CLI-surface completeness
	// and otherwise unused.
	src, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading source")
	}
	if opt.preprocess {
		_, err := os.Stdout.Write(src)
		return err
	}

	log.Debug().Str("file", path).Msg("lexing and parsing")
	lex := token.NewLexer(path, src)
	arena := types.NewArena()
	defer arena.Release()

	p := parser.NewParser(lex, arena)
	defs, ferr := parse(p)
	if ferr != nil {
		fmt.Fprintln(os.Stderr, ferr.Error())
		os.Exit(1)
	}
	log.Debug().Int("definitions", len(defs)).Msg("parsed")

	if opt.emitAsm {
		return writeDotDump(defaultOutput(path, opt.output, ".dot"), defs)
	}
	if opt.dotDump {
		if err := writeDotDump(defaultOutput(path, "", ".dot"), defs); err != nil {
			return errors.Wrap(err, "writing dot dump")
		}
	}

	log.Debug().Msg("lowering to x86-64")
	obj := elfobj.NewObject()
	gen := codegen.New(obj)
	if err := gen.Compile(defs); err != nil {
		return errors.Wrap(err, "lowering to x86-64")
	}

	out, err := obj.Bytes()
	if err != nil {
		return errors.Wrap(err, "emitting object file")
	}

	outPath := defaultOutput(path, opt.output, ".o")
	log.Debug().Str("output", outPath).Msg("writing object")
	if err := os.WriteFile(outPath, out, 0644); err != nil {
		return errors.Wrap(err, "writing object file")
	}
	return nil
}

// parse runs the parser to completion, turning a kind-1/2 diag.Fatal panic
// (the first and only diagnostic there ever is, since nothing recovers one
// and keeps going) into a returned error. Any other panic is a kind-3
// internal invariant violation, not ours to handle, and propagates
// unchanged.
func parse(p *parser.Parser) (defs []*ir.Definition, ferr *diag.Fatal) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		f, ok := r.(*diag.Fatal)
		if !ok {
			panic(r)
		}
		ferr = f
	}()
	return p.Parse(), nil
}

func defaultOutput(srcPath, explicit, ext string) string {
	if explicit != "" {
		return explicit
	}
	base := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	return base + ext
}

func writeDotDump(path string, defs []*ir.Definition) error {
	var b strings.Builder
	for _, def := range defs {
		if !def.IsFunc {
			continue
		}
		b.WriteString(dot.Render(def))
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}
