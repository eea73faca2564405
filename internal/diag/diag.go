// Package diag implements the diagnostics engine shared by every
// phase of the front end. Messages are emitted immediately, in order,
// anchored at a token's byte span within the current module source.
package diag

import (
	"fmt"
	"io"
	"strings"

	"github.com/eis-lang/eisc/internal/token"
)

// Reporter formats and emits diagnostics. One Reporter is shared by the
// scanner, the parser and the resolver; the import loader swaps the
// source and module name around nested parses and restores them after.
type Reporter struct {
	out        io.Writer
	source     []byte
	moduleName string

	// Sticky flags. HadError gates the process exit code; HadRuntimeError
	// exists for the evaluator and is never set by the front end itself.
	HadError        bool
	HadRuntimeError bool
}

// New creates a Reporter writing to out.
func New(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// SetSource installs the source text diagnostics are excerpted from.
func (r *Reporter) SetSource(src []byte) { r.source = src }

// Source returns the currently installed source text.
func (r *Reporter) Source() []byte { return r.source }

// SetModuleName installs the module name used as the message prefix.
func (r *Reporter) SetModuleName(name string) { r.moduleName = name }

// ModuleName returns the currently installed module name.
func (r *Reporter) ModuleName() string { return r.moduleName }

// Warning emits a warning anchored at where.
func (r *Reporter) Warning(msg string, where token.Token) {
	r.emit("warning", msg, where)
}

// Error emits an error anchored at where and sets HadError.
func (r *Reporter) Error(msg string, where token.Token) {
	r.HadError = true
	r.emit("error", msg, where)
}

// RuntimeError emits a runtime error anchored at where and sets
// HadRuntimeError. The front end never calls this; it belongs to the
// same engine so later phases report through one sink.
func (r *Reporter) RuntimeError(msg string, where token.Token) {
	r.HadRuntimeError = true
	r.emit("runtime error", msg, where)
}

// Note attaches an indented note to the last emitted diagnostic.
func (r *Reporter) Note(msg string) {
	fmt.Fprintf(r.out, "  note: %s\n", msg)
}

func (r *Reporter) emit(severity, msg string, where token.Token) {
	line, col := r.locate(where)
	fmt.Fprintf(r.out, "%s:%d:%d: %s: %s\n", r.moduleName, line, col, severity, msg)
	r.excerpt(where)
}

// locate derives (line, column) from the token's byte span. The token
// already records its line; the column is recomputed against the source
// so synthetic tokens with clamped spans still point somewhere sane.
func (r *Reporter) locate(where token.Token) (line, col int) {
	line = where.Line
	if line < 1 {
		line = 1
	}
	start := where.Start
	if start > len(r.source) {
		start = len(r.source)
	}
	lineStart := strings.LastIndexByte(string(r.source[:start]), '\n') + 1
	return line, start - lineStart + 1
}

// excerpt prints the offending source line with a caret underline
// covering the token's span.
func (r *Reporter) excerpt(where token.Token) {
	start, end := where.Start, where.End
	if start >= len(r.source) || start < 0 {
		return
	}
	if end > len(r.source) {
		end = len(r.source)
	}
	lineStart := strings.LastIndexByte(string(r.source[:start]), '\n') + 1
	lineEnd := lineStart
	for lineEnd < len(r.source) && r.source[lineEnd] != '\n' {
		lineEnd++
	}
	text := string(r.source[lineStart:lineEnd])
	if strings.TrimSpace(text) == "" {
		return
	}

	fmt.Fprintf(r.out, "  | %s\n", text)

	var b strings.Builder
	for i := lineStart; i < start; i++ {
		if r.source[i] == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	width := end - start
	if width < 1 {
		width = 1
	}
	if start+width > lineEnd {
		width = lineEnd - start
		if width < 1 {
			width = 1
		}
	}
	b.WriteString(strings.Repeat("^", width))
	fmt.Fprintf(r.out, "  | %s\n", b.String())
}
