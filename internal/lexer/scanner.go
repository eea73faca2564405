// Package lexer implements lexical analysis for Eis source files.
package lexer

import (
	"strings"

	"github.com/eis-lang/eisc/internal/diag"
	"github.com/eis-lang/eisc/internal/token"
)

// Scanner turns source bytes into a token vector in a single
// deterministic pass. The vector is always terminated by exactly one
// END_OF_FILE token; statement-terminating newlines are surfaced as
// END_OF_LINE tokens.
type Scanner struct {
	src []byte
	rep *diag.Reporter

	start int // start offset of the token being scanned
	cur   int // current offset
	line  int // current line, 1-based

	// nlsemi is set after tokens that can end a statement, so that the
	// next newline is surfaced as END_OF_LINE. Consecutive newlines
	// collapse to a single END_OF_LINE.
	nlsemi bool

	toks []token.Token
}

// New creates a Scanner over src reporting errors through rep.
func New(src []byte, rep *diag.Reporter) *Scanner {
	return &Scanner{src: src, rep: rep, line: 1}
}

// Scan consumes the entire source and returns the token vector.
func (s *Scanner) Scan() []token.Token {
	for !s.atEnd() {
		s.start = s.cur
		s.next()
	}
	if s.nlsemi {
		s.nlsemi = false
		s.toks = append(s.toks, token.Token{
			Kind: token.END_OF_LINE, Lexeme: "\n",
			Line: s.line, Start: len(s.src), End: len(s.src),
		})
	}
	s.toks = append(s.toks, token.Token{
		Kind: token.END_OF_FILE,
		Line: s.line, Start: len(s.src), End: len(s.src),
	})
	return s.toks
}

func (s *Scanner) atEnd() bool { return s.cur >= len(s.src) }

func (s *Scanner) advance() byte {
	b := s.src[s.cur]
	s.cur++
	return b
}

func (s *Scanner) peek() byte {
	if s.atEnd() {
		return 0
	}
	return s.src[s.cur]
}

func (s *Scanner) peekNext() byte {
	if s.cur+1 >= len(s.src) {
		return 0
	}
	return s.src[s.cur+1]
}

// match consumes the next byte if it equals b.
func (s *Scanner) match(b byte) bool {
	if s.atEnd() || s.src[s.cur] != b {
		return false
	}
	s.cur++
	return true
}

// next scans one token (or skips whitespace/comments) starting at s.start.
func (s *Scanner) next() {
	switch b := s.advance(); b {
	case ' ', '\t', '\r':
		// discarded

	case '\n':
		if s.nlsemi {
			s.nlsemi = false
			s.toks = append(s.toks, token.Token{
				Kind: token.END_OF_LINE, Lexeme: "\n",
				Line: s.line, Start: s.start, End: s.cur,
			})
		}
		s.line++

	case '(':
		s.emit(token.LPAREN)
	case ')':
		s.emit(token.RPAREN)
	case '[':
		s.emit(token.LBRACKET)
	case ']':
		s.emit(token.RBRACKET)
	case '{':
		s.emit(token.LBRACE)
	case '}':
		s.emit(token.RBRACE)
	case ',':
		s.emit(token.COMMA)
	case ';':
		s.emit(token.SEMICOLON)
	case '?':
		s.emit(token.QUESTION)
	case '~':
		s.emit(token.BIT_NOT)
	case '^':
		s.emit(token.BIT_XOR)
	case '&':
		s.emit(token.BIT_AND)
	case '|':
		s.emit(token.BIT_OR)
	case '%':
		s.emit(token.MODULO)

	case ':':
		if s.match(':') {
			s.emit(token.COLON_COLON)
		} else {
			s.emit(token.COLON)
		}

	case '.':
		if s.match('.') {
			if s.match('=') {
				s.emit(token.DOT_DOT_EQUAL)
			} else {
				s.emit(token.DOT_DOT)
			}
		} else {
			s.emit(token.DOT)
		}

	case '+':
		switch {
		case s.match('+'):
			s.emit(token.PLUS_PLUS)
		case s.match('='):
			s.emit(token.PLUS_EQUAL)
		default:
			s.emit(token.PLUS)
		}

	case '-':
		switch {
		case s.match('>'):
			s.emit(token.ARROW)
		case s.match('-'):
			s.emit(token.MINUS_MINUS)
		case s.match('='):
			s.emit(token.MINUS_EQUAL)
		default:
			s.emit(token.MINUS)
		}

	case '*':
		if s.match('=') {
			s.emit(token.STAR_EQUAL)
		} else {
			s.emit(token.STAR)
		}

	case '/':
		switch {
		case s.match('/'):
			for !s.atEnd() && s.peek() != '\n' {
				s.cur++
			}
		case s.match('='):
			s.emit(token.SLASH_EQUAL)
		default:
			s.emit(token.SLASH)
		}

	case '=':
		if s.match('=') {
			s.emit(token.EQUAL_EQUAL)
		} else {
			s.emit(token.EQUAL)
		}

	case '!':
		if s.match('=') {
			s.emit(token.NOT_EQUAL)
		} else {
			s.errorHere("Unexpected character '!', logical not is spelt 'not'")
		}

	case '<':
		switch {
		case s.match('<'):
			s.emit(token.LSHIFT)
		case s.match('='):
			s.emit(token.LESS_EQUAL)
		default:
			s.emit(token.LESS)
		}

	case '>':
		switch {
		case s.match('>'):
			s.emit(token.RSHIFT)
		case s.match('='):
			s.emit(token.GREATER_EQUAL)
		default:
			s.emit(token.GREATER)
		}

	case '"':
		s.scanString()

	default:
		switch {
		case isDigit(b):
			s.scanNumber()
		case isLetter(b):
			s.scanIdent()
		default:
			s.errorHere("Unrecognized character in source")
		}
	}
}

// emit appends a token covering [start, cur) with the raw lexeme.
func (s *Scanner) emit(kind token.Kind) {
	s.emitLexeme(kind, string(s.src[s.start:s.cur]))
}

// emitLexeme appends a token covering [start, cur) with an explicit
// lexeme (decoded content for string literals).
func (s *Scanner) emitLexeme(kind token.Kind, lexeme string) {
	s.toks = append(s.toks, token.Token{
		Kind: kind, Lexeme: lexeme,
		Line: s.line, Start: s.start, End: s.cur,
	})
	s.nlsemi = endsExpression(kind)
}

// endsExpression reports whether a newline after kind terminates a
// statement.
func endsExpression(kind token.Kind) bool {
	switch kind {
	case token.IDENTIFIER, token.INT_VALUE, token.FLOAT_VALUE, token.STRING_VALUE,
		token.TRUE, token.FALSE, token.NULL, token.THIS, token.SUPER,
		token.BREAK, token.CONTINUE, token.RETURN,
		token.INT, token.FLOAT, token.STRING, token.BOOL,
		token.RPAREN, token.RBRACKET, token.RBRACE:
		return true
	}
	return false
}

func (s *Scanner) errorHere(msg string) {
	s.rep.Error(msg, token.Token{
		Kind: token.NONE, Lexeme: string(s.src[s.start:s.cur]),
		Line: s.line, Start: s.start, End: s.cur,
	})
}

func (s *Scanner) scanIdent() {
	for isLetter(s.peek()) || isDigit(s.peek()) {
		s.cur++
	}
	word := string(s.src[s.start:s.cur])
	s.emitLexeme(token.LookupKeyword(word), word)
}

// scanNumber scans [0-9]+ or [0-9]+ '.' [0-9]+. The dot is consumed
// only when a digit follows, so ranges like 1..5 lex as INT DOT_DOT INT.
func (s *Scanner) scanNumber() {
	for isDigit(s.peek()) {
		s.cur++
	}
	kind := token.INT_VALUE
	if s.peek() == '.' && isDigit(s.peekNext()) {
		kind = token.FLOAT_VALUE
		s.cur++
		for isDigit(s.peek()) {
			s.cur++
		}
	}
	s.emit(kind)
}

// scanString scans a double-quoted string literal, decoding escape
// sequences. The token's span covers the quotes; its lexeme is the
// decoded content.
func (s *Scanner) scanString() {
	var b strings.Builder
	for {
		if s.atEnd() || s.peek() == '\n' {
			s.errorHere("Unterminated string literal")
			s.emitLexeme(token.STRING_VALUE, b.String())
			return
		}
		c := s.advance()
		if c == '"' {
			s.emitLexeme(token.STRING_VALUE, b.String())
			return
		}
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if s.atEnd() {
			continue
		}
		switch e := s.advance(); e {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '0':
			b.WriteByte(0)
		case '\\':
			b.WriteByte('\\')
		case '"':
			b.WriteByte('"')
		default:
			s.errorHere("Unrecognized escape sequence in string literal")
		}
	}
}

func isLetter(b byte) bool {
	return 'a' <= b && b <= 'z' || 'A' <= b && b <= 'Z' || b == '_'
}

func isDigit(b byte) bool {
	return '0' <= b && b <= '9'
}
