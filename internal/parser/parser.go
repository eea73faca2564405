// Package parser implements syntax analysis for Eis modules.
//
// Expressions are parsed with a Pratt table of prefix/infix handlers
// keyed by token kind; statements and declarations are parsed by
// recursive descent. Import statements load, parse and resolve the
// imported module in place through a nested parser.
package parser

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/eis-lang/eisc/internal/ast"
	"github.com/eis-lang/eisc/internal/diag"
	"github.com/eis-lang/eisc/internal/lexer"
	"github.com/eis-lang/eisc/internal/sema"
	"github.com/eis-lang/eisc/internal/token"
)

// precedence levels, lowest to highest.
type precedence int

const (
	precNone precedence = iota
	precComma
	precAssignment
	precTernary
	precLogicOr
	precLogicAnd
	precBitOr
	precBitXor
	precBitAnd
	precEquality
	precOrdering
	precShift
	precRange
	precSum
	precProduct
	precUnary
	precCall
	precPrimary
)

type prefixFn func(p *Parser, canAssign bool) ast.Expr
type infixFn func(p *Parser, canAssign bool, left ast.Expr) ast.Expr

type parseRule struct {
	prefix prefixFn
	infix  infixFn
	prec   precedence
}

// rules is the Pratt table indexed by token kind. Kinds without an
// entry have no expression role.
var rules [token.KindCount]parseRule

func init() {
	rules = [token.KindCount]parseRule{
		token.COMMA:         {nil, (*Parser).comma, precComma},
		token.QUESTION:      {nil, (*Parser).ternary, precTernary},
		token.OR:            {nil, (*Parser).logicalOr, precLogicOr},
		token.AND:           {nil, (*Parser).logicalAnd, precLogicAnd},
		token.BIT_OR:        {nil, (*Parser).binary, precBitOr},
		token.BIT_XOR:       {nil, (*Parser).binary, precBitXor},
		token.BIT_AND:       {nil, (*Parser).binary, precBitAnd},
		token.EQUAL_EQUAL:   {nil, (*Parser).binary, precEquality},
		token.NOT_EQUAL:     {nil, (*Parser).binary, precEquality},
		token.LESS:          {nil, (*Parser).binary, precOrdering},
		token.LESS_EQUAL:    {nil, (*Parser).binary, precOrdering},
		token.GREATER:       {nil, (*Parser).binary, precOrdering},
		token.GREATER_EQUAL: {nil, (*Parser).binary, precOrdering},
		token.LSHIFT:        {nil, (*Parser).binary, precShift},
		token.RSHIFT:        {nil, (*Parser).binary, precShift},
		token.DOT_DOT:       {nil, (*Parser).binary, precRange},
		token.DOT_DOT_EQUAL: {nil, (*Parser).binary, precRange},
		token.PLUS:          {(*Parser).unary, (*Parser).binary, precSum},
		token.MINUS:         {(*Parser).unary, (*Parser).binary, precSum},
		token.STAR:          {nil, (*Parser).binary, precProduct},
		token.SLASH:         {nil, (*Parser).binary, precProduct},
		token.MODULO:        {nil, (*Parser).binary, precProduct},
		token.NOT:           {(*Parser).unary, nil, precUnary},
		token.BIT_NOT:       {(*Parser).unary, nil, precUnary},
		token.PLUS_PLUS:     {(*Parser).unary, nil, precUnary},
		token.MINUS_MINUS:   {(*Parser).unary, nil, precUnary},
		token.DOT:           {nil, (*Parser).dot, precCall},
		token.LPAREN:        {(*Parser).grouping, (*Parser).call, precCall},
		token.LBRACKET:      {(*Parser).list, (*Parser).index, precCall},
		token.LBRACE:        {(*Parser).tuple, nil, precNone},
		token.COLON_COLON:   {nil, (*Parser).scopeAccess, precPrimary},
		token.IDENTIFIER:    {(*Parser).variable, nil, precNone},
		token.INT:           {(*Parser).variable, nil, precNone},
		token.FLOAT:         {(*Parser).variable, nil, precNone},
		token.STRING:        {(*Parser).variable, nil, precNone},
		token.BOOL:          {(*Parser).variable, nil, precNone},
		token.INT_VALUE:     {(*Parser).literal, nil, precNone},
		token.FLOAT_VALUE:   {(*Parser).literal, nil, precNone},
		token.STRING_VALUE:  {(*Parser).literal, nil, precNone},
		token.TRUE:          {(*Parser).literal, nil, precNone},
		token.FALSE:         {(*Parser).literal, nil, precNone},
		token.NULL:          {(*Parser).literal, nil, precNone},
		token.THIS:          {(*Parser).thisExpr, nil, precNone},
		token.SUPER:         {(*Parser).superExpr, nil, precNone},
	}
}

// bail aborts the current declaration; it is recovered at the
// declaration boundary, which then synchronizes.
type bail struct{}

// Parser holds the token cursor and the lexical-context state that
// statement parsing depends on.
type Parser struct {
	toks []token.Token
	cur  int

	rep *diag.Reporter
	reg *ast.Registry

	mod   *ast.Module
	depth int // import depth of mod

	scopeDepth int
	inClass    bool
	inFunction bool
	inLoop     bool
	inSwitch   bool

	currentMethods   *[]ast.ClassMethod
	currentClassName string
}

// New creates a Parser over toks, parsing into mod at the given import
// depth. The registry records every parsed module; imports are resolved
// against and appended to it.
func New(toks []token.Token, mod *ast.Module, depth int, reg *ast.Registry, rep *diag.Reporter) *Parser {
	return &Parser{toks: toks, mod: mod, depth: depth, reg: reg, rep: rep}
}

// ----------------------------------------------------------------------------
// Token navigation

func (p *Parser) atEnd() bool { return p.cur >= len(p.toks) }

func (p *Parser) previous() token.Token { return p.toks[p.cur-1] }

func (p *Parser) peek() token.Token {
	if p.atEnd() {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.cur]
}

// advance consumes one token. Running off the end of the vector is the
// fatal error case: it aborts the current declaration.
func (p *Parser) advance() token.Token {
	if p.atEnd() {
		p.rep.Error("Found unexpected EOF while parsing", p.previous())
		panic(bail{})
	}
	p.cur++
	return p.previous()
}

func (p *Parser) check(kind token.Kind) bool { return p.peek().Kind == kind }

// match consumes the next token if its kind is one of kinds.
func (p *Parser) match(kinds ...token.Kind) bool {
	for _, k := range kinds {
		if p.check(k) {
			p.advance()
			return true
		}
	}
	return false
}

// consume requires the next token to be one of kinds, anchoring the
// error at the offending token.
func (p *Parser) consume(msg string, kinds ...token.Kind) {
	if !p.match(kinds...) {
		p.throwError(msg, p.peek())
	}
}

// consumeAt is consume with an explicit anchor token.
func (p *Parser) consumeAt(msg string, where token.Token, kinds ...token.Kind) {
	if !p.match(kinds...) {
		p.throwError(msg, where)
	}
}

// throwError reports and aborts the current declaration.
func (p *Parser) throwError(msg string, where token.Token) {
	p.rep.Error(msg, where)
	panic(bail{})
}

// skipNewlines discards END_OF_LINE tokens.
func (p *Parser) skipNewlines() {
	for p.check(token.END_OF_LINE) {
		p.cur++
	}
}

// ----------------------------------------------------------------------------
// Scoped state guards
//
// Parsing state is restored on every exit path, including bail
// unwinding, by deferring the returned restore function.

func (p *Parser) setFlag(flag *bool) func() {
	prev := *flag
	*flag = true
	return func() { *flag = prev }
}

func (p *Parser) enterScope() func() {
	p.scopeDepth++
	return func() { p.scopeDepth-- }
}

// ----------------------------------------------------------------------------
// Error recovery

// synchronize discards tokens until the previous token is a statement
// terminator or the next token begins a declaration or statement.
// It never consumes past a terminator already behind the cursor, so a
// declaration that failed right after its closing brace does not eat
// the brace of the enclosing construct.
func (p *Parser) synchronize() {
	for p.cur > 0 && !p.atEnd() && p.peek().Kind != token.END_OF_FILE {
		switch p.previous().Kind {
		case token.SEMICOLON, token.END_OF_LINE, token.RBRACE:
			return
		}
		switch p.peek().Kind {
		case token.BREAK, token.CONTINUE, token.CLASS, token.FN, token.FOR,
			token.IF, token.IMPORT, token.PRIVATE, token.PROTECTED,
			token.PUBLIC, token.RETURN, token.TYPE, token.CONST,
			token.VAR, token.WHILE:
			return
		}
		p.cur++
	}
}

// ----------------------------------------------------------------------------
// Program

// Program parses the whole token vector into the module's statement
// list. Failed declarations are dropped; the reporter's HadError flag
// records that the result is not usable.
func (p *Parser) Program() []ast.Stmt {
	var stmts []ast.Stmt
	for !p.atEnd() && p.peek().Kind != token.END_OF_FILE {
		if p.match(token.END_OF_LINE) {
			continue
		}
		if s := p.declaration(); s != nil {
			stmts = append(stmts, s)
		}
	}
	p.match(token.END_OF_FILE)
	p.mod.Statements = stmts
	return stmts
}

// declaration parses one declaration or statement, recovering from any
// error inside it.
func (p *Parser) declaration() (stmt ast.Stmt) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bail); !ok {
				panic(r)
			}
			p.synchronize()
			stmt = nil
		}
	}()

	switch {
	case p.match(token.CLASS):
		return p.classDeclaration()
	case p.match(token.FN):
		return p.functionDeclaration(false)
	case p.match(token.IMPORT):
		return p.importStatement()
	case p.match(token.TYPE):
		return p.typeDeclaration()
	case p.match(token.VAR, token.CONST, token.REF):
		return p.variableDeclaration()
	default:
		return p.statement()
	}
}

// ----------------------------------------------------------------------------
// Expression parsing

func ruleFor(kind token.Kind) parseRule { return rules[kind] }

// parsePrecedence parses an expression with binding power at least prec.
func (p *Parser) parsePrecedence(prec precedence) ast.Expr {
	p.advance()

	rule := ruleFor(p.previous().Kind)
	if rule.prefix == nil {
		spelling := p.previous().Lexeme
		if p.previous().Kind == token.END_OF_LINE {
			spelling = "\\n' (newline"
		}
		hadError := p.rep.HadError
		p.rep.Error("Unexpected token in expression '"+spelling+"'", p.previous())
		if hadError {
			p.rep.Note("This may occur because of previous errors leading to the parser being confused")
		}
		panic(bail{})
	}

	canAssign := prec <= precAssignment
	left := rule.prefix(p, canAssign)

	for !p.atEnd() && prec <= ruleFor(p.peek().Kind).prec {
		oper := p.advance()
		infix := ruleFor(oper.Kind).infix
		if infix == nil {
			p.rep.Error("'"+oper.Lexeme+"' cannot occur in an infix/postfix expression", oper)
			switch oper.Kind {
			case token.PLUS_PLUS:
				p.rep.Note("Postfix increment is not supported")
			case token.MINUS_MINUS:
				p.rep.Note("Postfix decrement is not supported")
			}
			panic(bail{})
		}
		left = infix(p, canAssign, left)
	}

	if canAssign && p.match(token.EQUAL, token.PLUS_EQUAL, token.MINUS_EQUAL,
		token.STAR_EQUAL, token.SLASH_EQUAL) {
		p.throwError("Invalid assignment target", p.previous())
	}

	return left
}

// expression parses a full expression, comma operator included.
func (p *Parser) expression() ast.Expr {
	return p.parsePrecedence(precComma)
}

// assignment parses a single expression without the comma operator, as
// used for call arguments and list/tuple elements.
func (p *Parser) assignment() ast.Expr {
	return p.parsePrecedence(precAssignment)
}

func (p *Parser) binary(_ bool, left ast.Expr) ast.Expr {
	oper := p.previous()
	right := p.parsePrecedence(ruleFor(oper.Kind).prec + 1)
	node := &ast.BinaryExpr{Left: left, Right: right}
	node.OpTok = oper
	return node
}

func (p *Parser) logicalAnd(_ bool, left ast.Expr) ast.Expr {
	oper := p.previous()
	right := p.parsePrecedence(precLogicAnd)
	node := &ast.LogicalExpr{Left: left, Right: right}
	node.OpTok = oper
	return node
}

func (p *Parser) logicalOr(_ bool, left ast.Expr) ast.Expr {
	oper := p.previous()
	right := p.parsePrecedence(precLogicOr)
	node := &ast.LogicalExpr{Left: left, Right: right}
	node.OpTok = oper
	return node
}

func (p *Parser) ternary(_ bool, cond ast.Expr) ast.Expr {
	question := p.previous()
	middle := p.parsePrecedence(precLogicOr)
	p.consume("Expected colon in ternary expression", token.COLON)
	// Right operand at the same precedence makes ?: right-associative.
	right := p.parsePrecedence(precTernary)
	node := &ast.TernaryExpr{Cond: cond, Then: middle, Else: right}
	node.OpTok = question
	return node
}

func (p *Parser) comma(_ bool, left ast.Expr) ast.Expr {
	oper := p.previous()
	exprs := []ast.Expr{left}
	for {
		exprs = append(exprs, p.assignment())
		if !p.match(token.COMMA) {
			break
		}
	}
	node := &ast.CommaExpr{Exprs: exprs}
	node.OpTok = oper
	return node
}

func (p *Parser) unary(_ bool) ast.Expr {
	oper := p.previous()
	right := p.parsePrecedence(precUnary)
	node := &ast.UnaryExpr{Oper: oper, Right: right}
	node.OpTok = oper
	return node
}

func (p *Parser) grouping(_ bool) ast.Expr {
	lparen := p.previous()
	expr := p.expression()
	p.consume("Expected ')' after parenthesized expression", token.RPAREN)
	node := &ast.GroupingExpr{Expr: expr}
	node.OpTok = lparen
	return node
}

// list parses a list literal. A trailing comma before ']' is accepted.
func (p *Parser) list(_ bool) ast.Expr {
	bracket := p.previous()
	var elements []ast.Element
	if !p.check(token.RBRACKET) {
		for {
			elements = append(elements, ast.Element{Value: p.assignment()})
			if !p.match(token.COMMA) || p.check(token.RBRACKET) {
				break
			}
		}
	}
	p.consumeAt("Expected ']' after list expression", p.peek(), token.RBRACKET)
	node := &ast.ListExpr{Elements: elements}
	node.OpTok = bracket
	return node
}

func (p *Parser) tuple(_ bool) ast.Expr {
	brace := p.previous()
	var elements []ast.Element
	for !p.atEnd() && !p.check(token.RBRACE) && !p.check(token.END_OF_FILE) {
		elements = append(elements, ast.Element{Value: p.assignment()})
		p.match(token.COMMA)
	}
	p.consume("Expected '}' after tuple expression", token.RBRACE)
	node := &ast.TupleExpr{Elements: elements}
	node.OpTok = brace
	return node
}

// literal parses literal tokens. Adjacent string literals concatenate
// into one value.
func (p *Parser) literal(_ bool) ast.Expr {
	tok := p.previous()
	node := &ast.LiteralExpr{}
	node.OpTok = tok

	switch tok.Kind {
	case token.INT_VALUE:
		v, err := strconv.ParseInt(tok.Lexeme, 10, 64)
		if err != nil {
			p.throwError("Integer literal does not fit in 64 bits", tok)
		}
		node.Value = ast.IntValue(v)
		node.Type = &ast.PrimitiveType{TypeData: ast.TypeData{Prim: ast.PrimInt, IsConst: true}}

	case token.FLOAT_VALUE:
		v, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			p.throwError("Malformed float literal", tok)
		}
		node.Value = ast.FloatValue(v)
		node.Type = &ast.PrimitiveType{TypeData: ast.TypeData{Prim: ast.PrimFloat, IsConst: true}}

	case token.STRING_VALUE:
		value := tok.Lexeme
		for p.match(token.STRING_VALUE) {
			value += p.previous().Lexeme
		}
		node.Value = ast.StringValue(value)
		node.Type = &ast.PrimitiveType{TypeData: ast.TypeData{Prim: ast.PrimString, IsConst: true}}

	case token.TRUE, token.FALSE:
		node.Value = ast.BoolValue(tok.Kind == token.TRUE)
		node.Type = &ast.PrimitiveType{TypeData: ast.TypeData{Prim: ast.PrimBool, IsConst: true}}

	case token.NULL:
		node.Value = ast.NullValue()
		node.Type = &ast.PrimitiveType{TypeData: ast.TypeData{Prim: ast.PrimNull, IsConst: true}}

	default:
		p.throwError("Unexpected token kind passed to literal parser", tok)
	}

	return node
}

func (p *Parser) variable(canAssign bool) ast.Expr {
	name := p.previous()
	if canAssign && p.match(token.EQUAL, token.PLUS_EQUAL, token.MINUS_EQUAL,
		token.STAR_EQUAL, token.SLASH_EQUAL) {
		oper := p.previous()
		value := p.assignment()
		node := &ast.AssignExpr{Target: name, Value: value}
		node.OpTok = oper
		return node
	}
	if p.check(token.COLON_COLON) {
		node := &ast.ScopeNameExpr{Name: name}
		node.OpTok = name
		return node
	}
	node := &ast.VariableExpr{Name: name}
	node.OpTok = name
	return node
}

// dot parses member access. A FLOAT_VALUE after '.' means a chained
// tuple access like x.2.0 was scanned as one float token; its lexeme is
// split at the dot into two integer components.
func (p *Parser) dot(canAssign bool, left ast.Expr) ast.Expr {
	var components []token.Token
	if p.check(token.FLOAT_VALUE) {
		num := p.peek()
		cut := strings.IndexByte(num.Lexeme, '.')
		if cut < 0 {
			p.advance()
			p.throwError("Use of float literal in member access", p.previous())
		}
		components = append(components,
			token.Token{Kind: token.INT_VALUE, Lexeme: num.Lexeme[:cut],
				Line: num.Line, Start: num.Start, End: num.Start + cut},
			token.Token{Kind: token.INT_VALUE, Lexeme: num.Lexeme[cut+1:],
				Line: num.Line, Start: num.Start + cut + 1, End: num.End})
		p.advance()
	} else {
		p.consume("Expected identifier or integer literal after '.'",
			token.IDENTIFIER, token.INT_VALUE)
	}

	name := p.previous()
	if len(components) > 0 {
		// x.2.0 becomes Get(Get(x, "2"), "0").
		inner := &ast.GetExpr{Object: left, Name: components[0]}
		inner.OpTok = components[0]
		left = inner
		name = components[1]
	}

	if canAssign && p.match(token.EQUAL, token.PLUS_EQUAL, token.MINUS_EQUAL,
		token.STAR_EQUAL, token.SLASH_EQUAL) {
		oper := p.previous()
		value := p.assignment()
		node := &ast.SetExpr{Object: left, Name: name, Value: value}
		node.OpTok = oper
		return node
	}
	node := &ast.GetExpr{Object: left, Name: name}
	node.OpTok = name
	return node
}

// call parses the argument list. Trailing commas are not accepted in
// call arguments.
func (p *Parser) call(_ bool, callee ast.Expr) ast.Expr {
	paren := p.previous()
	var args []ast.Element
	if !p.check(token.RPAREN) {
		for {
			args = append(args, ast.Element{Value: p.assignment()})
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	p.consume("Expected ')' after function call", token.RPAREN)
	node := &ast.CallExpr{Callee: callee, Args: args}
	node.OpTok = paren
	return node
}

func (p *Parser) index(canAssign bool, object ast.Expr) ast.Expr {
	bracket := p.previous()
	idx := p.expression()
	p.consume("Expected ']' after array subscript index", token.RBRACKET)
	indexed := ast.IndexExpr{Object: object, Index: idx}
	indexed.OpTok = bracket

	if canAssign && p.match(token.EQUAL, token.PLUS_EQUAL, token.MINUS_EQUAL,
		token.STAR_EQUAL, token.SLASH_EQUAL) {
		oper := p.previous()
		value := p.assignment()
		node := &ast.ListAssignExpr{List: indexed, Value: value}
		node.OpTok = oper
		return node
	}
	node := indexed
	return &node
}

func (p *Parser) scopeAccess(_ bool, left ast.Expr) ast.Expr {
	colons := p.previous()
	p.consume("Expected identifier to be accessed after scope name", token.IDENTIFIER)
	node := &ast.ScopeAccessExpr{Scope: left, Name: p.previous()}
	node.OpTok = colons
	return node
}

func (p *Parser) thisExpr(_ bool) ast.Expr {
	if !(p.inClass && p.inFunction) {
		p.throwError("Cannot use 'this' keyword outside a class method", p.previous())
	}
	node := &ast.ThisExpr{Keyword: p.previous()}
	node.OpTok = p.previous()
	return node
}

func (p *Parser) superExpr(_ bool) ast.Expr {
	if !(p.inClass && p.inFunction) {
		p.throwError("Cannot use super expression outside a class", p.previous())
	}
	keyword := p.previous()
	p.consume("Expected '.' after 'super' keyword", token.DOT)
	p.consume("Expected name after '.' in super expression", token.IDENTIFIER)
	node := &ast.SuperExpr{Keyword: keyword, Name: p.previous()}
	node.OpTok = keyword
	return node
}

// ----------------------------------------------------------------------------
// Type parsing

func (p *Parser) typeExpr() ast.TypeNode {
	isConst := p.match(token.CONST)
	isRef := p.match(token.REF)

	switch {
	case p.match(token.BOOL):
		return &ast.PrimitiveType{TypeData: ast.TypeData{Prim: ast.PrimBool, IsConst: isConst, IsRef: isRef}}
	case p.match(token.INT):
		return &ast.PrimitiveType{TypeData: ast.TypeData{Prim: ast.PrimInt, IsConst: isConst, IsRef: isRef}}
	case p.match(token.FLOAT):
		return &ast.PrimitiveType{TypeData: ast.TypeData{Prim: ast.PrimFloat, IsConst: isConst, IsRef: isRef}}
	case p.match(token.STRING):
		return &ast.PrimitiveType{TypeData: ast.TypeData{Prim: ast.PrimString, IsConst: isConst, IsRef: isRef}}
	case p.match(token.NULL):
		return &ast.PrimitiveType{TypeData: ast.TypeData{Prim: ast.PrimNull, IsConst: isConst, IsRef: isRef}}
	case p.match(token.IDENTIFIER):
		return &ast.UserDefinedType{
			TypeData: ast.TypeData{Prim: ast.PrimClass, IsConst: isConst, IsRef: isRef},
			Name:     p.previous(),
		}
	case p.match(token.LBRACKET):
		return p.listType(isConst, isRef)
	case p.match(token.LBRACE):
		return p.tupleType(isConst, isRef)
	case p.match(token.TYPEOF):
		return &ast.TypeofType{
			TypeData: ast.TypeData{Prim: ast.PrimTypeof, IsConst: isConst, IsRef: isRef},
			Expr:     p.parsePrecedence(precLogicOr),
		}
	default:
		p.rep.Error("Unexpected token in type specifier", p.peek())
		p.rep.Note("The type needs to be one of: bool, int, float, string, an identifier or an array type")
		panic(bail{})
	}
}

func (p *Parser) listType(isConst, isRef bool) ast.TypeNode {
	contained := p.typeExpr()
	var size ast.Expr
	if p.match(token.COMMA) {
		size = p.expression()
	}
	p.consume("Expected ']' after array declaration", token.RBRACKET)
	return &ast.ListType{
		TypeData:  ast.TypeData{Prim: ast.PrimList, IsConst: isConst, IsRef: isRef},
		Contained: contained,
		Size:      size,
	}
}

func (p *Parser) tupleType(isConst, isRef bool) ast.TypeNode {
	var elems []ast.TypeNode
	for !p.atEnd() && !p.check(token.RBRACE) && !p.check(token.END_OF_FILE) {
		elems = append(elems, p.typeExpr())
		p.match(token.COMMA)
	}
	p.consume("Expected '}' after tuple type", token.RBRACE)
	return &ast.TupleType{
		TypeData: ast.TypeData{Prim: ast.PrimTuple, IsConst: isConst, IsRef: isRef},
		Elems:    elems,
	}
}

// ----------------------------------------------------------------------------
// Declarations

func (p *Parser) classDeclaration() ast.Stmt {
	p.consume("Expected class name after 'class' keyword", token.IDENTIFIER)
	if _, exists := p.mod.Classes[p.previous().Lexeme]; exists {
		p.throwError("Class already defined", p.previous())
	}

	name := p.previous()
	class := &ast.ClassStmt{Name: name}

	prevMethods, prevName := p.currentMethods, p.currentClassName
	p.currentMethods, p.currentClassName = &class.Methods, name.Lexeme
	defer func() { p.currentMethods, p.currentClassName = prevMethods, prevName }()

	p.consume("Expected '{' after class name", token.LBRACE)
	defer p.setFlag(&p.inClass)()

	for !p.atEnd() && !p.check(token.RBRACE) && !p.check(token.END_OF_FILE) {
		if p.match(token.END_OF_LINE) {
			continue
		}
		p.consume("Expected 'public', 'private' or 'protected' modifier before member declaration",
			token.PRIVATE, token.PUBLIC, token.PROTECTED)

		var visibility ast.Visibility
		switch p.previous().Kind {
		case token.PUBLIC:
			visibility = ast.VisPublic
		case token.PRIVATE:
			visibility = ast.VisPrivate
		default:
			visibility = ast.VisProtected
		}

		switch {
		case p.match(token.VAR, token.CONST, token.REF):
			p.classSection(func() {
				member := p.variableDeclaration().(*ast.VarStmt)
				class.Members = append(class.Members, ast.ClassMember{Var: member, Visibility: visibility})
			})

		case p.match(token.FN):
			p.classSection(func() {
				foundDtor := p.match(token.BIT_NOT)
				if foundDtor && p.peek().Lexeme != name.Lexeme {
					p.advance()
					p.throwError("The name of the destructor has to be the same as the name of the class", p.previous())
				}

				method := p.functionDeclaration(foundDtor)
				methodName := method.Name

				if strings.TrimPrefix(methodName.Lexeme, "~") == name.Lexeme {
					if foundDtor {
						if class.Dtor != nil {
							p.throwError("Cannot declare constructors or destructors more than once", methodName)
						}
						class.Dtor = method
					} else {
						if class.Ctor != nil {
							p.throwError("Cannot declare constructors or destructors more than once", methodName)
						}
						class.Ctor = method
					}
				}
				class.Methods = append(class.Methods, ast.ClassMethod{Fn: method, Visibility: visibility})
			})

		default:
			p.throwError("Expected either member or method declaration in class", p.peek())
		}
	}

	p.consume("Expected '}' at the end of class declaration", token.RBRACE)
	p.mod.Classes[name.Lexeme] = class
	return class
}

// classSection runs one member/method parse, recovering locally so the
// rest of the class body is still parsed after an error.
func (p *Parser) classSection(parse func()) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bail); !ok {
				panic(r)
			}
			p.synchronize()
		}
	}()
	parse()
}

// functionDeclaration parses a function after the 'fn' keyword has been
// consumed. isDtor renames the function to ~Name and is set only from
// class bodies.
func (p *Parser) functionDeclaration(isDtor bool) *ast.FunctionStmt {
	p.consume("Expected function name after 'fn' keyword", token.IDENTIFIER)
	name := p.previous()
	if isDtor {
		name.Lexeme = "~" + name.Lexeme
	}

	if !p.inClass {
		if _, exists := p.mod.Functions[name.Lexeme]; exists {
			p.throwError("Function already defined", p.previous())
		}
	} else if p.currentMethods != nil && strings.TrimPrefix(name.Lexeme, "~") != p.currentClassName {
		for _, m := range *p.currentMethods {
			if m.Fn.Name.Lexeme == name.Lexeme {
				p.throwError("Method already defined", p.previous())
			}
		}
	}

	outerDepth := p.scopeDepth
	p.consume("Expected '(' after function name", token.LPAREN)

	fn := &ast.FunctionStmt{Name: name}
	func() {
		defer p.enterScope()()

		if !p.check(token.RPAREN) {
			for {
				p.consume("Expected parameter name", token.IDENTIFIER)
				paramName := p.previous()
				p.consume("Expected ':' after function parameter name", token.COLON)
				paramType := p.typeExpr()
				fn.Params = append(fn.Params, ast.Param{Name: paramName, Type: paramType})
				if !p.match(token.COMMA) {
					break
				}
			}
		}
		p.consume("Expected ')' after function parameters", token.RPAREN)

		// The scanner can emit end of lines between ')' and '->'.
		p.skipNewlines()

		p.consume("Expected '->' after ')' to specify type", token.ARROW)
		fn.ReturnType = p.typeExpr()
		p.consume("Expected '{' after function return type", token.LBRACE)

		defer p.setFlag(&p.inFunction)()
		fn.Body = p.blockStatement()
		fn.ScopeDepth = outerDepth
	}()

	if !p.inClass && outerDepth == 0 {
		p.mod.Functions[name.Lexeme] = fn
	}
	return fn
}

// importStatement loads the referenced module: reads the file, scans,
// parses and type-resolves it with a nested parser, and registers it.
// Modules already in the registry are reused, with their depths raised
// when reached through a deeper chain.
func (p *Parser) importStatement() ast.Stmt {
	keyword := p.previous()
	p.consume("Expected path to module after 'import' keyword", token.STRING_VALUE)
	imported := p.previous()
	p.consumeAt("Expected ';' or newline after imported file", p.previous(),
		token.SEMICOLON, token.END_OF_LINE)

	path := imported.Lexeme
	if path == "" {
		p.rep.Error("Empty module path in import", imported)
		return nil
	}
	if path[0] != '/' {
		path = filepath.Join(p.mod.Dir, path)
	}
	moduleName := filepath.Base(imported.Lexeme)

	if moduleName == p.mod.Name {
		p.rep.Error("Cannot import module with the same name as the current one", imported)
		return nil
	}

	// Reuse an already parsed module, raising depths when this import
	// chain is deeper than the one it was first reached through.
	if idx, ok := p.reg.Find(moduleName); ok {
		if p.reg.Depth(idx) < p.depth+1 {
			p.reg.RaiseDepth(idx, p.depth+1)
		}
		p.mod.Imported = append(p.mod.Imported, idx)
		return &ast.ImportStmt{Keyword: keyword, Path: imported, ModuleIndex: idx}
	}

	if !p.reg.BeginLoad(moduleName) {
		p.rep.Error("Circular import of module '"+moduleName+"'", imported)
		return nil
	}
	defer p.reg.EndLoad(moduleName)

	source, err := os.ReadFile(path)
	if err != nil {
		p.rep.Error("Unable to open module '"+moduleName+"'", imported)
		return nil
	}

	importedModule := ast.NewModule(moduleName, filepath.Dir(path))

	prevSource := p.rep.Source()
	prevName := p.rep.ModuleName()
	defer func() {
		p.rep.SetSource(prevSource)
		p.rep.SetModuleName(prevName)
	}()

	p.rep.SetSource(source)
	p.rep.SetModuleName(moduleName)

	toks := lexer.New(source, p.rep).Scan()
	nested := New(toks, importedModule, p.depth+1, p.reg, p.rep)
	nested.Program()
	sema.New(importedModule, p.reg, p.rep).Check(importedModule.Statements)

	idx := p.reg.Add(importedModule, p.depth+1)
	p.mod.Imported = append(p.mod.Imported, idx)
	return &ast.ImportStmt{Keyword: keyword, Path: imported, ModuleIndex: idx}
}

func (p *Parser) typeDeclaration() ast.Stmt {
	p.consumeAt("Expected type name after 'type' keyword", p.previous(), token.IDENTIFIER)
	name := p.previous()
	p.consume("Expected '=' after type name", token.EQUAL)
	aliased := p.typeExpr()
	p.consume("Expected ';' or newline after type alias", token.SEMICOLON, token.END_OF_LINE)
	return &ast.TypeStmt{Name: name, Aliased: aliased}
}

func (p *Parser) variableDeclaration() ast.Stmt {
	keyword := p.previous()
	msg := "Expected variable name after '" + keyword.Lexeme + "' keyword"
	p.consumeAt(msg, p.peek(), token.IDENTIFIER)
	name := p.previous()

	var varType ast.TypeNode
	if p.match(token.COLON) {
		varType = p.typeExpr()
	}
	var initializer ast.Expr
	if p.match(token.EQUAL) {
		initializer = p.expression()
	}
	p.consume("Expected ';' or newline after variable initializer",
		token.SEMICOLON, token.END_OF_LINE)

	return &ast.VarStmt{Keyword: keyword, Name: name, Type: varType, Initializer: initializer}
}

// ----------------------------------------------------------------------------
// Statements

func (p *Parser) statement() ast.Stmt {
	switch {
	case p.match(token.LBRACE):
		return p.blockStatement()
	case p.match(token.BREAK):
		return p.breakStatement()
	case p.match(token.CONTINUE):
		return p.continueStatement()
	case p.match(token.FOR):
		return p.forStatement()
	case p.match(token.IF):
		return p.ifStatement()
	case p.match(token.RETURN):
		return p.returnStatement()
	case p.match(token.SWITCH):
		return p.switchStatement()
	case p.match(token.WHILE):
		return p.whileStatement()
	default:
		return p.expressionStatement()
	}
}

func (p *Parser) blockStatement() *ast.BlockStmt {
	block := &ast.BlockStmt{}
	defer p.enterScope()()

	for !p.atEnd() && !p.check(token.RBRACE) && !p.check(token.END_OF_FILE) {
		if p.match(token.END_OF_LINE) {
			continue
		}
		if p.match(token.VAR, token.CONST, token.REF) {
			block.Stmts = append(block.Stmts, p.variableDeclaration())
		} else {
			block.Stmts = append(block.Stmts, p.statement())
		}
	}

	p.consume("Expected '}' after block", token.RBRACE)
	return block
}

func (p *Parser) breakStatement() ast.Stmt {
	if !(p.inLoop || p.inSwitch) {
		p.throwError("Cannot use 'break' outside a loop or switch", p.previous())
	}
	keyword := p.previous()
	p.consume("Expected ';' or newline after 'break' keyword",
		token.SEMICOLON, token.END_OF_LINE)
	return &ast.BreakStmt{Keyword: keyword}
}

func (p *Parser) continueStatement() ast.Stmt {
	if !p.inLoop {
		p.throwError("Cannot use 'continue' outside a loop", p.previous())
	}
	keyword := p.previous()
	p.consume("Expected ';' or newline after 'continue' keyword",
		token.SEMICOLON, token.END_OF_LINE)
	return &ast.ContinueStmt{Keyword: keyword}
}

func (p *Parser) expressionStatement() ast.Stmt {
	expr := p.expression()
	p.consume("Expected ';' or newline after expression",
		token.SEMICOLON, token.END_OF_LINE)
	return &ast.ExpressionStmt{Expr: expr}
}

// forStatement desugars for (init; cond; inc) { body } into
// Block{init, While(cond, body, increment=inc)}. Attaching the
// increment to the While keeps continue executing it.
func (p *Parser) forStatement() ast.Stmt {
	keyword := p.previous()
	p.consume("Expected '(' after 'for' keyword", token.LPAREN)
	defer p.enterScope()()

	var initializer ast.Stmt
	if p.match(token.VAR, token.CONST, token.REF) {
		initializer = p.variableDeclaration()
	} else if !p.match(token.SEMICOLON) {
		initializer = p.expressionStatement()
	}

	var condition ast.Expr
	if !p.check(token.SEMICOLON) {
		condition = p.expression()
	}
	p.consume("Expected ';' after loop condition", token.SEMICOLON)

	var increment ast.Stmt
	if !p.check(token.RPAREN) {
		increment = &ast.ExpressionStmt{Expr: p.expression()}
	}
	p.consume("Expected ')' after for loop header", token.RPAREN)
	p.skipNewlines()

	defer p.setFlag(&p.inLoop)()

	p.consume("Expected '{' after for-loop header", token.LBRACE)
	loop := &ast.WhileStmt{
		Keyword:   keyword,
		Cond:      condition,
		Body:      p.blockStatement(),
		Increment: increment,
	}

	block := &ast.BlockStmt{}
	if initializer != nil {
		block.Stmts = append(block.Stmts, initializer)
	}
	block.Stmts = append(block.Stmts, loop)
	return block
}

func (p *Parser) ifStatement() ast.Stmt {
	keyword := p.previous()
	condition := p.expression()
	p.skipNewlines()

	p.consume("Expected '{' after if statement condition", token.LBRACE)
	thenBranch := p.blockStatement()

	node := &ast.IfStmt{Keyword: keyword, Cond: condition, Then: thenBranch}
	if p.match(token.ELSE) {
		if p.match(token.IF) {
			node.Else = p.ifStatement()
		} else {
			p.consume("Expected '{' after else keyword", token.LBRACE)
			node.Else = p.blockStatement()
		}
	}
	return node
}

func (p *Parser) returnStatement() ast.Stmt {
	if !p.inFunction {
		p.throwError("Cannot use 'return' keyword outside a function", p.previous())
	}
	keyword := p.previous()

	var value ast.Expr
	if !p.check(token.SEMICOLON) && !p.check(token.END_OF_LINE) {
		value = p.expression()
	}

	p.consume("Expected ';' or newline after return statement",
		token.SEMICOLON, token.END_OF_LINE)
	return &ast.ReturnStmt{Keyword: keyword, Value: value}
}

func (p *Parser) switchStatement() ast.Stmt {
	condition := p.expression()
	p.skipNewlines()

	node := &ast.SwitchStmt{Cond: condition}
	p.consume("Expected '{' after switch statement condition", token.LBRACE)

	defer p.setFlag(&p.inSwitch)()

	for !p.atEnd() && !p.check(token.RBRACE) && !p.check(token.END_OF_FILE) {
		if p.match(token.END_OF_LINE) {
			continue
		}
		if p.match(token.DEFAULT) {
			if node.Default != nil {
				p.throwError("Cannot have more than one default case in a switch", p.previous())
			}
			p.consume("Expected '->' after 'default'", token.ARROW)
			node.Default = p.statement()
		} else {
			expr := p.expression()
			p.consume("Expected '->' after case expression", token.ARROW)
			node.Cases = append(node.Cases, ast.SwitchCase{Value: expr, Body: p.statement()})
		}
	}

	p.consume("Expected '}' at the end of switch statement", token.RBRACE)
	return node
}

func (p *Parser) whileStatement() ast.Stmt {
	keyword := p.previous()
	condition := p.expression()
	p.skipNewlines()

	defer p.setFlag(&p.inLoop)()
	p.consume("Expected '{' after while-loop header", token.LBRACE)
	body := p.blockStatement()

	return &ast.WhileStmt{Keyword: keyword, Cond: condition, Body: body}
}
