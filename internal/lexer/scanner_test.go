package lexer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/eis-lang/eisc/internal/diag"
	"github.com/eis-lang/eisc/internal/token"
)

func scan(t *testing.T, src string) ([]token.Token, *diag.Reporter, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	rep := diag.New(&out)
	rep.SetSource([]byte(src))
	rep.SetModuleName("test.eis")
	return New([]byte(src), rep).Scan(), rep, &out
}

func TestScanTokens(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		kinds []token.Kind
		lits  []string
	}{
		// Identifiers and keywords
		{"ident", "foo", []token.Kind{token.IDENTIFIER, token.END_OF_LINE, token.END_OF_FILE}, []string{"foo", "\n", ""}},
		{"ident_underscore", "_bar", []token.Kind{token.IDENTIFIER, token.END_OF_LINE, token.END_OF_FILE}, []string{"_bar", "\n", ""}},
		{"ident_mixed", "foo123", []token.Kind{token.IDENTIFIER, token.END_OF_LINE, token.END_OF_FILE}, []string{"foo123", "\n", ""}},
		{"kw_var", "var", []token.Kind{token.VAR, token.END_OF_FILE}, []string{"var", ""}},
		{"kw_fn", "fn", []token.Kind{token.FN, token.END_OF_FILE}, []string{"fn", ""}},
		{"kw_class", "class", []token.Kind{token.CLASS, token.END_OF_FILE}, []string{"class", ""}},
		{"kw_and", "and", []token.Kind{token.AND, token.END_OF_FILE}, []string{"and", ""}},
		{"kw_not", "not", []token.Kind{token.NOT, token.END_OF_FILE}, []string{"not", ""}},
		{"kw_typeof", "typeof", []token.Kind{token.TYPEOF, token.END_OF_FILE}, []string{"typeof", ""}},

		// Numbers
		{"int", "123", []token.Kind{token.INT_VALUE, token.END_OF_LINE, token.END_OF_FILE}, []string{"123", "\n", ""}},
		{"float", "3.14", []token.Kind{token.FLOAT_VALUE, token.END_OF_LINE, token.END_OF_FILE}, []string{"3.14", "\n", ""}},
		{"int_then_dot", "3.", []token.Kind{token.INT_VALUE, token.DOT, token.END_OF_FILE}, []string{"3", ".", ""}},
		{"range_not_float", "1..5", []token.Kind{token.INT_VALUE, token.DOT_DOT, token.INT_VALUE, token.END_OF_LINE, token.END_OF_FILE}, []string{"1", "..", "5", "\n", ""}},

		// Strings (decoded content)
		{"string", `"hello"`, []token.Kind{token.STRING_VALUE, token.END_OF_LINE, token.END_OF_FILE}, []string{"hello", "\n", ""}},
		{"string_empty", `""`, []token.Kind{token.STRING_VALUE, token.END_OF_LINE, token.END_OF_FILE}, []string{"", "\n", ""}},
		{"string_escapes", `"a\n\t\\\""`, []token.Kind{token.STRING_VALUE, token.END_OF_LINE, token.END_OF_FILE}, []string{"a\n\t\\\"", "\n", ""}},
		{"adjacent_strings", `"he" "llo"`, []token.Kind{token.STRING_VALUE, token.STRING_VALUE, token.END_OF_LINE, token.END_OF_FILE}, []string{"he", "llo", "\n", ""}},

		// Operators, maximal munch
		{"eq", "==", []token.Kind{token.EQUAL_EQUAL, token.END_OF_FILE}, []string{"==", ""}},
		{"assign", "=", []token.Kind{token.EQUAL, token.END_OF_FILE}, []string{"=", ""}},
		{"arrow_over_minus", "->", []token.Kind{token.ARROW, token.END_OF_FILE}, []string{"->", ""}},
		{"range_eq_over_range", "..=", []token.Kind{token.DOT_DOT_EQUAL, token.END_OF_FILE}, []string{"..=", ""}},
		{"range", "..", []token.Kind{token.DOT_DOT, token.END_OF_FILE}, []string{"..", ""}},
		{"shift", "<< >>", []token.Kind{token.LSHIFT, token.RSHIFT, token.END_OF_FILE}, []string{"<<", ">>", ""}},
		{"inc_dec", "++ --", []token.Kind{token.PLUS_PLUS, token.MINUS_MINUS, token.END_OF_FILE}, []string{"++", "--", ""}},
		{"compound", "+= -= *= /=", []token.Kind{token.PLUS_EQUAL, token.MINUS_EQUAL, token.STAR_EQUAL, token.SLASH_EQUAL, token.END_OF_FILE}, []string{"+=", "-=", "*=", "/=", ""}},
		{"scope", "::", []token.Kind{token.COLON_COLON, token.END_OF_FILE}, []string{"::", ""}},
		{"colon", ":", []token.Kind{token.COLON, token.END_OF_FILE}, []string{":", ""}},

		// Comments
		{"line_comment", "x // trailing\n", []token.Kind{token.IDENTIFIER, token.END_OF_LINE, token.END_OF_FILE}, []string{"x", "\n", ""}},
		{"comment_only", "// nothing here\n", []token.Kind{token.END_OF_FILE}, []string{""}},

		// Newline heuristics
		{"newline_after_expr", "x\n", []token.Kind{token.IDENTIFIER, token.END_OF_LINE, token.END_OF_FILE}, []string{"x", "\n", ""}},
		{"newline_collapse", "x\n\n\ny", []token.Kind{token.IDENTIFIER, token.END_OF_LINE, token.IDENTIFIER, token.END_OF_LINE, token.END_OF_FILE}, []string{"x", "\n", "y", "\n", ""}},
		{"newline_after_operator", "x +\ny", []token.Kind{token.IDENTIFIER, token.PLUS, token.IDENTIFIER, token.END_OF_LINE, token.END_OF_FILE}, []string{"x", "+", "y", "\n", ""}},
		{"newline_after_rparen", "f()\ng", []token.Kind{token.IDENTIFIER, token.LPAREN, token.RPAREN, token.END_OF_LINE, token.IDENTIFIER, token.END_OF_LINE, token.END_OF_FILE}, []string{"f", "(", ")", "\n", "g", "\n", ""}},
		{"newline_after_keyword_type", "var x: int\n", []token.Kind{token.VAR, token.IDENTIFIER, token.COLON, token.INT, token.END_OF_LINE, token.END_OF_FILE}, []string{"var", "x", ":", "int", "\n", ""}},
		{"no_newline_after_lbrace", "{\nx", []token.Kind{token.LBRACE, token.IDENTIFIER, token.END_OF_LINE, token.END_OF_FILE}, []string{"{", "x", "\n", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, rep, _ := scan(t, tt.src)
			if rep.HadError {
				t.Fatalf("unexpected scan errors for %q", tt.src)
			}
			if len(toks) != len(tt.kinds) {
				t.Fatalf("got %d tokens, want %d: %v", len(toks), len(tt.kinds), toks)
			}
			for i, tok := range toks {
				if tok.Kind != tt.kinds[i] {
					t.Errorf("token %d: got kind %s, want %s", i, tok.Kind, tt.kinds[i])
				}
				if tok.Lexeme != tt.lits[i] {
					t.Errorf("token %d: got lexeme %q, want %q", i, tok.Lexeme, tt.lits[i])
				}
			}
		})
	}
}

func TestScanErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown_byte", "var x = @", "Unrecognized character"},
		{"bare_bang", "!x", "logical not is spelt 'not'"},
		{"unterminated_string", `"abc`, "Unterminated string"},
		{"bad_escape", `"a\qb"`, "Unrecognized escape sequence"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rep, out := scan(t, tt.src)
			if !rep.HadError {
				t.Fatalf("expected a scan error for %q", tt.src)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("diagnostics %q do not mention %q", out.String(), tt.want)
			}
		})
	}
}

// Scanning continues after an unrecognized byte.
func TestScanRecovery(t *testing.T) {
	toks, rep, _ := scan(t, "a @ b")
	if !rep.HadError {
		t.Fatal("expected a scan error")
	}
	want := []token.Kind{token.IDENTIFIER, token.IDENTIFIER, token.END_OF_LINE, token.END_OF_FILE}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d: got %s, want %s", i, toks[i].Kind, k)
		}
	}
}

// Every scan ends with exactly one END_OF_FILE.
func TestScanEOF(t *testing.T) {
	for _, src := range []string{"", "x", "x\n", ";", "// c"} {
		toks, _, _ := scan(t, src)
		eofs := 0
		for _, tok := range toks {
			if tok.Kind == token.END_OF_FILE {
				eofs++
			}
		}
		if eofs != 1 {
			t.Errorf("%q: got %d END_OF_FILE tokens, want 1", src, eofs)
		}
		if toks[len(toks)-1].Kind != token.END_OF_FILE {
			t.Errorf("%q: last token is %s, want END_OF_FILE", src, toks[len(toks)-1].Kind)
		}
	}
}

// Non-synthetic token spans partition the source: their total width is
// the source length minus whitespace and comment bytes.
func TestScanSpansPartitionSource(t *testing.T) {
	src := "var x = 1 + 23 // note\nvar s = \"ab\"\n"
	toks, rep, _ := scan(t, src)
	if rep.HadError {
		t.Fatal("unexpected scan errors")
	}

	covered := 0
	for _, tok := range toks {
		if tok.Kind == token.END_OF_LINE || tok.Kind == token.END_OF_FILE {
			continue
		}
		if tok.Start >= tok.End {
			t.Errorf("token %v has empty span [%d,%d)", tok, tok.Start, tok.End)
		}
		covered += tok.End - tok.Start
	}

	skipped := 0
	inComment := false
	for i := 0; i < len(src); i++ {
		switch {
		case inComment:
			if src[i] == '\n' {
				inComment = false
			}
			skipped++
		case src[i] == '/' && i+1 < len(src) && src[i+1] == '/':
			inComment = true
			skipped++
		case src[i] == ' ' || src[i] == '\t' || src[i] == '\r' || src[i] == '\n':
			skipped++
		}
	}

	if covered != len(src)-skipped {
		t.Errorf("token spans cover %d bytes, want %d", covered, len(src)-skipped)
	}
}

func TestScanLineNumbers(t *testing.T) {
	toks, _, _ := scan(t, "a\nb\n\nc")
	byLexeme := map[string]int{}
	for _, tok := range toks {
		if tok.Kind == token.IDENTIFIER {
			byLexeme[tok.Lexeme] = tok.Line
		}
	}
	want := map[string]int{"a": 1, "b": 2, "c": 4}
	for lex, line := range want {
		if byLexeme[lex] != line {
			t.Errorf("%q on line %d, want %d", lex, byLexeme[lex], line)
		}
	}
}
