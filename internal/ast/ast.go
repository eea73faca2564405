// Package ast defines the syntax tree of the Eis language: expression,
// statement and type nodes, literal values, and the module registry.
//
// Nodes are tagged variants: each variant is its own struct and the
// Expr/Stmt/TypeNode interfaces restrict the set to this package.
// Expression nodes carry a resolved-type slot that starts out nil and
// is filled in place by the resolver; the resolver never rewrites the
// tree structure.
package ast

import "github.com/eis-lang/eisc/internal/token"

// PrimKind enumerates the primitive type categories.
type PrimKind uint8

const (
	PrimBool PrimKind = iota
	PrimInt
	PrimFloat
	PrimString
	PrimClass
	PrimList
	PrimTuple
	PrimTypeof
	PrimNull
)

var primNames = [...]string{
	PrimBool:   "bool",
	PrimInt:    "int",
	PrimFloat:  "float",
	PrimString: "string",
	PrimClass:  "class",
	PrimList:   "list",
	PrimTuple:  "tuple",
	PrimTypeof: "typeof",
	PrimNull:   "null",
}

func (k PrimKind) String() string { return primNames[k] }

// NumericConversion marks an implicit numeric widening or narrowing
// recorded by the resolver on the node that needs it.
type NumericConversion uint8

const (
	ConvNone NumericConversion = iota
	ConvIntToFloat
	ConvFloatToInt
)

// Visibility of a class member or method.
type Visibility uint8

const (
	VisPrivate Visibility = iota
	VisProtected
	VisPublic
)

var visNames = [...]string{
	VisPrivate:   "private",
	VisProtected: "protected",
	VisPublic:    "public",
}

func (v Visibility) String() string { return visNames[v] }

// IdentifierKind records what a VariableExpr resolved to.
type IdentifierKind uint8

const (
	IdentVariable IdentifierKind = iota
	IdentFunction
	IdentClass
)

// ----------------------------------------------------------------------------
// Literal values

// LiteralKind tags a LiteralValue.
type LiteralKind uint8

const (
	LitInt LiteralKind = iota
	LitFloat
	LitString
	LitBool
	LitNull
)

// LiteralValue is the tagged union over int | float | string | bool | null.
type LiteralValue struct {
	Kind  LiteralKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

func IntValue(v int64) LiteralValue      { return LiteralValue{Kind: LitInt, Int: v} }
func FloatValue(v float64) LiteralValue  { return LiteralValue{Kind: LitFloat, Float: v} }
func StringValue(v string) LiteralValue  { return LiteralValue{Kind: LitString, Str: v} }
func BoolValue(v bool) LiteralValue      { return LiteralValue{Kind: LitBool, Bool: v} }
func NullValue() LiteralValue            { return LiteralValue{Kind: LitNull} }

// ----------------------------------------------------------------------------
// Type nodes

// TypeData holds the qualifiers shared by every type node.
type TypeData struct {
	Prim    PrimKind
	IsConst bool
	IsRef   bool
}

// TypeNode is the interface for type expression nodes.
type TypeNode interface {
	Data() *TypeData
	aType()
}

func (d *TypeData) Data() *TypeData { return d }
func (*TypeData) aType()            {}

// PrimitiveType is one of bool, int, float, string, null.
type PrimitiveType struct {
	TypeData
}

// UserDefinedType names a class or type alias.
type UserDefinedType struct {
	TypeData
	Name token.Token
}

// ListType is [elem] or [elem, size].
type ListType struct {
	TypeData
	Contained TypeNode
	Size      Expr
}

// TupleType is {t1 t2 ...}.
type TupleType struct {
	TypeData
	Elems []TypeNode
}

// TypeofType is typeof expr; the resolver replaces it with the
// expression's resolved type.
type TypeofType struct {
	TypeData
	Expr Expr
}

// ----------------------------------------------------------------------------
// Resolved type information

// TypeInfo is the resolved-type slot attached to every expression node.
// Type is the value type; Func and Class are set when the expression
// names or yields a function or class, and a class instance carries both
// Type and Class. Tok anchors diagnostics that refer back to the
// expression.
type TypeInfo struct {
	Type        TypeNode      // resolved value type (may be shared between nodes)
	Func        *FunctionStmt // when the expression names a function or method
	Class       *ClassStmt    // when the expression names a class
	ModuleIndex int           // registry index when the expression names a module, else -1
	Tok         token.Token
}

// ----------------------------------------------------------------------------
// Expression nodes

// Expr is the interface for all expression nodes.
type Expr interface {
	// Tok returns the token anchoring the node (operator, name, ...).
	Tok() token.Token
	// Info returns the resolved-type slot, nil before resolution.
	Info() *TypeInfo
	// SetInfo fills the resolved-type slot.
	SetInfo(*TypeInfo)
	aExpr()
}

// exprBase is embedded in every expression node.
type exprBase struct {
	OpTok    token.Token
	Resolved *TypeInfo
}

func (e *exprBase) Tok() token.Token     { return e.OpTok }
func (e *exprBase) Info() *TypeInfo      { return e.Resolved }
func (e *exprBase) SetInfo(ti *TypeInfo) { e.Resolved = ti }
func (*exprBase) aExpr()                 {}

// Element is a call argument or list/tuple element with its recorded
// numeric conversion.
type Element struct {
	Value      Expr
	Conversion NumericConversion
}

// LiteralExpr carries a literal value and the primitive type the parser
// assigned it.
type LiteralExpr struct {
	exprBase
	Value LiteralValue
	Type  TypeNode
}

// VariableExpr references a name; Ident records what it resolved to.
type VariableExpr struct {
	exprBase
	Name  token.Token
	Ident IdentifierKind
}

// ScopeNameExpr is the head of a scope access: the Name in Name::x.
type ScopeNameExpr struct {
	exprBase
	Name token.Token
}

// ScopeAccessExpr is Scope::Name.
type ScopeAccessExpr struct {
	exprBase
	Scope Expr
	Name  token.Token
}

// AssignExpr assigns Value to the named binding. OpTok is the
// assignment operator (=, +=, -=, *=, /=).
type AssignExpr struct {
	exprBase
	Target     token.Token
	Value      Expr
	Conversion NumericConversion
}

// BinaryExpr is Left op Right; OpTok is the operator. Conversion marks
// the promotion applied to the INT side when the operands mix int and
// float.
type BinaryExpr struct {
	exprBase
	Left       Expr
	Right      Expr
	Conversion NumericConversion
}

// LogicalExpr is Left and/or Right.
type LogicalExpr struct {
	exprBase
	Left  Expr
	Right Expr
}

// UnaryExpr is op Right.
type UnaryExpr struct {
	exprBase
	Oper  token.Token
	Right Expr
}

// TernaryExpr is Cond ? Then : Else.
type TernaryExpr struct {
	exprBase
	Cond Expr
	Then Expr
	Else Expr
}

// GroupingExpr is (Expr).
type GroupingExpr struct {
	exprBase
	Expr Expr
}

// CallExpr is Callee(Args...). IsNative marks calls to builtin
// functions.
type CallExpr struct {
	exprBase
	Callee   Expr
	Args     []Element
	IsNative bool
}

// IndexExpr is Object[Index].
type IndexExpr struct {
	exprBase
	Object Expr
	Index  Expr
}

// ListAssignExpr is List[Index] op= Value.
type ListAssignExpr struct {
	exprBase
	List       IndexExpr
	Value      Expr
	Conversion NumericConversion
}

// ListExpr is [e1, e2, ...].
type ListExpr struct {
	exprBase
	Elements []Element
}

// TupleExpr is {e1, e2, ...}.
type TupleExpr struct {
	exprBase
	Elements []Element
}

// GetExpr is Object.Name.
type GetExpr struct {
	exprBase
	Object Expr
	Name   token.Token
}

// SetExpr is Object.Name op= Value.
type SetExpr struct {
	exprBase
	Object     Expr
	Name       token.Token
	Value      Expr
	Conversion NumericConversion
}

// SuperExpr is super.Name.
type SuperExpr struct {
	exprBase
	Keyword token.Token
	Name    token.Token
}

// ThisExpr is the this keyword.
type ThisExpr struct {
	exprBase
	Keyword token.Token
}

// CommaExpr is e1, e2, ...; its value is the last expression's.
type CommaExpr struct {
	exprBase
	Exprs []Expr
}

// ----------------------------------------------------------------------------
// Statement nodes

// Stmt is the interface for all statement nodes.
type Stmt interface {
	aStmt()
}

type stmtBase struct{}

func (stmtBase) aStmt() {}

// BlockStmt is { stmts... }.
type BlockStmt struct {
	stmtBase
	Stmts []Stmt
}

// BreakStmt is break.
type BreakStmt struct {
	stmtBase
	Keyword token.Token
}

// ContinueStmt is continue.
type ContinueStmt struct {
	stmtBase
	Keyword token.Token
}

// ExpressionStmt wraps an expression used as a statement.
type ExpressionStmt struct {
	stmtBase
	Expr Expr
}

// Param is one function parameter.
type Param struct {
	Name token.Token
	Type TypeNode
}

// FunctionStmt is a function or method declaration.
type FunctionStmt struct {
	stmtBase
	Name       token.Token
	ReturnType TypeNode
	Params     []Param
	Body       *BlockStmt
	Returns    []*ReturnStmt // collected by the resolver
	ScopeDepth int
}

// ClassMember is a member declaration with its visibility.
type ClassMember struct {
	Var        *VarStmt
	Visibility Visibility
}

// ClassMethod is a method declaration with its visibility.
type ClassMethod struct {
	Fn         *FunctionStmt
	Visibility Visibility
}

// ClassStmt is a class declaration. Ctor and Dtor, when present, are
// also reachable through Methods; a destructor's name lexeme is the
// class name prefixed with '~'.
type ClassStmt struct {
	stmtBase
	Name    token.Token
	Ctor    *FunctionStmt
	Dtor    *FunctionStmt
	Members []ClassMember
	Methods []ClassMethod
}

// IfStmt is if Cond { Then } else { Else }.
type IfStmt struct {
	stmtBase
	Keyword token.Token
	Cond    Expr
	Then    Stmt
	Else    Stmt
}

// ImportStmt records a successful import; ModuleIndex addresses the
// registry.
type ImportStmt struct {
	stmtBase
	Keyword     token.Token
	Path        token.Token
	ModuleIndex int
}

// ReturnStmt is return [Value]. Function is the enclosing function,
// filled by the resolver.
type ReturnStmt struct {
	stmtBase
	Keyword  token.Token
	Value    Expr
	Function *FunctionStmt
}

// SwitchCase is one case arm.
type SwitchCase struct {
	Value Expr
	Body  Stmt
}

// SwitchStmt is switch Cond { cases... default -> stmt }.
type SwitchStmt struct {
	stmtBase
	Cond    Expr
	Cases   []SwitchCase
	Default Stmt
}

// TypeStmt declares a type alias.
type TypeStmt struct {
	stmtBase
	Name    token.Token
	Aliased TypeNode
}

// VarStmt is var|const|ref Name [: Type] [= Initializer].
type VarStmt struct {
	stmtBase
	Keyword     token.Token // var, const or ref
	Name        token.Token
	Type        TypeNode
	Initializer Expr
	Conversion  NumericConversion
}

// WhileStmt is a while loop. Increment is non-nil only for loops
// desugared from for statements; it runs after the body on every
// iteration, including iterations cut short by continue.
type WhileStmt struct {
	stmtBase
	Keyword   token.Token
	Cond      Expr
	Body      Stmt
	Increment Stmt
}
