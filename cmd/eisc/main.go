// Package main implements the Eis compiler entry point.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/eis-lang/eisc/internal/ast"
	"github.com/eis-lang/eisc/internal/config"
	"github.com/eis-lang/eisc/internal/diag"
	"github.com/eis-lang/eisc/internal/lexer"
	"github.com/eis-lang/eisc/internal/parser"
	"github.com/eis-lang/eisc/internal/sema"
	"github.com/eis-lang/eisc/internal/token"
)

// Compiler flags
var (
	emitTokens = flag.Bool("emit-tokens", false, "Output token stream")
	emitAST    = flag.Bool("emit-ast", false, "Output AST (before resolution)")
	version    = flag.Bool("version", false, "Print version")
)

// Version information
const Version = "0.1.0-dev"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Eis Compiler %s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: eisc [options] <file.eis>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *version {
		fmt.Printf("eisc version %s\n", Version)
		fmt.Printf("go version %s\n", runtime.Version())
		os.Exit(0)
	}

	filename, err := resolveInput(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(filename))
}

// resolveInput turns the command line into a source file path. With no
// argument (or a directory argument) the eis.toml manifest names the
// entry module.
func resolveInput(args []string) (string, error) {
	if len(args) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return entryFromManifest(wd)
	}

	arg := args[0]
	if fi, err := os.Stat(arg); err == nil && fi.IsDir() {
		return entryFromManifest(arg)
	}
	return arg, nil
}

func entryFromManifest(dir string) (string, error) {
	cfg, configPath, err := config.FindAndLoad(dir)
	if err != nil {
		return "", err
	}
	if configPath == "" {
		return "", fmt.Errorf("no input file and no eis.toml found in or above %s", dir)
	}
	return filepath.Join(config.ProjectRoot(configPath), cfg.Project.Entry), nil
}

// run compiles one module and returns the process exit code.
func run(filename string) int {
	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	moduleName := filepath.Base(filename)

	rep := diag.New(os.Stderr)
	rep.SetSource(source)
	rep.SetModuleName(moduleName)

	toks := lexer.New(source, rep).Scan()

	if *emitTokens {
		printTokens(toks)
	}

	mod := ast.NewModule(moduleName, filepath.Dir(filename))
	reg := ast.NewRegistry()

	stmts := parser.New(toks, mod, 0, reg, rep).Program()

	if *emitAST {
		ast.Fprint(os.Stdout, stmts)
	}

	sema.New(mod, reg, rep).Check(stmts)
	reg.Add(mod, 0)

	if rep.HadError {
		return 1
	}
	return 0
}

// printTokens prints all tokens with positions.
func printTokens(toks []token.Token) {
	fmt.Printf("%-8s %-14s %s\n", "LINE", "KIND", "LEXEME")
	for _, t := range toks {
		lexeme := t.Lexeme
		if t.Kind == token.END_OF_LINE {
			lexeme = "\\n"
		}
		fmt.Printf("%-8d %-14s %s\n", t.Line, t.Kind, lexeme)
	}
}
