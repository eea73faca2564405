// Package sema implements the type resolver: a single pass over the
// AST that resolves names, checks types and fills the resolved-type
// slot of every expression node in place. Failures are reported through
// the diagnostics engine and resolution continues.
package sema

import (
	"github.com/eis-lang/eisc/internal/ast"
	"github.com/eis-lang/eisc/internal/diag"
	"github.com/eis-lang/eisc/internal/token"
)

// binding is one in-scope value: a local, parameter or class member.
type binding struct {
	lexeme string
	typ    ast.TypeNode
	depth  int
	class  *ast.ClassStmt // non-nil when typ is a class instance
}

// Resolver holds the name environment and the lexical context flags
// the resolution rules depend on.
type Resolver struct {
	mod *ast.Module
	reg *ast.Registry
	rep *diag.Reporter

	values  []binding
	aliases map[string]ast.TypeNode

	inCtor     bool
	inDtor     bool
	inClass    bool
	inFunction bool
	inLoop     bool
	inSwitch   bool

	currentClass    *ast.ClassStmt
	currentFunction *ast.FunctionStmt
	scopeDepth      int
}

// New creates a Resolver for the module, resolving cross-module scope
// accesses against reg.
func New(mod *ast.Module, reg *ast.Registry, rep *diag.Reporter) *Resolver {
	return &Resolver{
		mod:     mod,
		reg:     reg,
		rep:     rep,
		aliases: make(map[string]ast.TypeNode),
	}
}

// Check resolves the module's statements in order.
func (r *Resolver) Check(stmts []ast.Stmt) {
	for _, s := range stmts {
		r.resolveStmt(s)
	}
}

// ----------------------------------------------------------------------------
// Scope discipline

func (r *Resolver) beginScope() { r.scopeDepth++ }

// endScope drops every binding declared at the closing depth.
func (r *Resolver) endScope() {
	for len(r.values) > 0 && r.values[len(r.values)-1].depth == r.scopeDepth {
		r.values = r.values[:len(r.values)-1]
	}
	r.scopeDepth--
}

// setFlag sets a context flag, returning the restore function to defer.
func (r *Resolver) setFlag(flag *bool) func() {
	prev := *flag
	*flag = true
	return func() { *flag = prev }
}

// findValue returns the innermost binding with the given name.
func (r *Resolver) findValue(name string) *binding {
	for i := len(r.values) - 1; i >= 0; i-- {
		if r.values[i].lexeme == name {
			return &r.values[i]
		}
	}
	return nil
}

// declare pushes a binding at the current depth, rejecting duplicates
// within the same scope.
func (r *Resolver) declare(name token.Token, typ ast.TypeNode) {
	for i := len(r.values) - 1; i >= 0 && r.values[i].depth == r.scopeDepth; i-- {
		if r.values[i].lexeme == name.Lexeme {
			r.rep.Error("'"+name.Lexeme+"' has already been declared in this scope", name)
			return
		}
	}
	r.values = append(r.values, binding{
		lexeme: name.Lexeme,
		typ:    typ,
		depth:  r.scopeDepth,
		class:  r.classFor(typ),
	})
}

// newInfo starts a resolved-type slot anchored at tok.
func newInfo(tok token.Token) *ast.TypeInfo {
	return &ast.TypeInfo{ModuleIndex: -1, Tok: tok}
}

// ----------------------------------------------------------------------------
// Statements

func (r *Resolver) resolveStmt(s ast.Stmt) {
	switch s := s.(type) {
	case nil:
		// Dropped by parser error recovery.

	case *ast.BlockStmt:
		r.beginScope()
		for _, inner := range s.Stmts {
			r.resolveStmt(inner)
		}
		r.endScope()

	case *ast.BreakStmt:
		if !(r.inLoop || r.inSwitch) {
			r.rep.Error("Cannot use 'break' outside a loop or switch", s.Keyword)
		}

	case *ast.ContinueStmt:
		if !r.inLoop {
			r.rep.Error("Cannot use 'continue' outside a loop", s.Keyword)
		}

	case *ast.ExpressionStmt:
		r.resolveExpr(s.Expr)

	case *ast.FunctionStmt:
		r.resolveFunction(s)

	case *ast.ClassStmt:
		r.resolveClass(s)

	case *ast.IfStmt:
		condInfo := r.resolveExpr(s.Cond)
		if condInfo.Type != nil && !isBool(condInfo.Type) {
			r.rep.Error("Condition of if statement must be a boolean", condInfo.Tok)
		}
		r.resolveStmt(s.Then)
		if s.Else != nil {
			r.resolveStmt(s.Else)
		}

	case *ast.ImportStmt:
		// The import already materialized an independently resolved
		// module in the registry.

	case *ast.ReturnStmt:
		r.resolveReturn(s)

	case *ast.SwitchStmt:
		r.resolveSwitch(s)

	case *ast.TypeStmt:
		if _, exists := r.aliases[s.Name.Lexeme]; exists {
			r.rep.Error("Type alias '"+s.Name.Lexeme+"' has already been defined", s.Name)
			return
		}
		if _, exists := r.mod.Classes[s.Name.Lexeme]; exists {
			r.rep.Error("'"+s.Name.Lexeme+"' is already the name of a class", s.Name)
			return
		}
		if aliased := r.resolveTypeNode(s.Aliased); aliased != nil {
			r.aliases[s.Name.Lexeme] = aliased
		}

	case *ast.VarStmt:
		r.resolveVar(s)

	case *ast.WhileStmt:
		r.resolveWhile(s)

	default:
		// Every statement variant is handled above.
	}
}

func (r *Resolver) resolveVar(s *ast.VarStmt) {
	var declared ast.TypeNode
	if s.Type != nil {
		declared = r.resolveTypeNode(s.Type)
	}

	var initInfo *ast.TypeInfo
	if s.Initializer != nil {
		initInfo = r.resolveExpr(s.Initializer)
	}

	switch {
	case declared == nil && initInfo == nil:
		r.rep.Error("Variable declared without a type or an initializer", s.Name)
		return

	case declared == nil:
		if initInfo.Type == nil {
			if initInfo.Func != nil || initInfo.Class != nil {
				r.rep.Error("Functions and classes cannot be stored in variables", initInfo.Tok)
			}
			return
		}
		declared = copyType(initInfo.Type)

	case initInfo != nil:
		if initInfo.Type == nil {
			return
		}
		ok, conv := r.convertible(declared, initInfo.Type)
		if !ok {
			r.rep.Error("Cannot initialize variable of type "+typeName(declared)+
				" with a value of type "+typeName(initInfo.Type), initInfo.Tok)
			return
		}
		s.Conversion = conv
	}

	// The leading keyword qualifies the binding.
	d := declared.Data()
	switch s.Keyword.Kind {
	case token.CONST:
		d.IsConst = true
	case token.REF:
		d.IsRef = true
	case token.VAR:
		d.IsConst = false
	}

	r.declare(s.Name, declared)
}

func (r *Resolver) resolveFunction(fn *ast.FunctionStmt) {
	prevFn := r.currentFunction
	r.currentFunction = fn
	defer func() { r.currentFunction = prevFn }()
	defer r.setFlag(&r.inFunction)()

	fn.ReturnType = r.resolveTypeNode(fn.ReturnType)

	r.beginScope()
	for i := range fn.Params {
		fn.Params[i].Type = r.resolveTypeNode(fn.Params[i].Type)
		r.declare(fn.Params[i].Name, fn.Params[i].Type)
	}
	if fn.Body != nil {
		for _, s := range fn.Body.Stmts {
			r.resolveStmt(s)
		}
	}
	r.endScope()

	if fn.ReturnType != nil && fn.ReturnType.Data().Prim != ast.PrimNull &&
		fn.Body != nil && !blockMustReturn(fn.Body.Stmts) {
		r.rep.Error("Function '"+fn.Name.Lexeme+"' does not return a value on every path", fn.Name)
	}
}

func (r *Resolver) resolveClass(class *ast.ClassStmt) {
	prevClass := r.currentClass
	r.currentClass = class
	defer func() { r.currentClass = prevClass }()
	defer r.setFlag(&r.inClass)()

	r.beginScope()

	// Members first, so method bodies can reference member types.
	for _, m := range class.Members {
		r.resolveStmt(m.Var)
	}

	for _, m := range class.Methods {
		switch m.Fn {
		case class.Ctor:
			func() {
				defer r.setFlag(&r.inCtor)()
				r.resolveFunction(m.Fn)
			}()
		case class.Dtor:
			if len(m.Fn.Params) > 0 {
				r.rep.Error("Destructor cannot take any parameters", m.Fn.Name)
			}
			if m.Fn.ReturnType != nil && m.Fn.ReturnType.Data().Prim != ast.PrimNull {
				r.rep.Error("Destructor must return null", m.Fn.Name)
			}
			func() {
				defer r.setFlag(&r.inDtor)()
				r.resolveFunction(m.Fn)
			}()
		default:
			r.resolveFunction(m.Fn)
		}
	}

	r.endScope()
}

func (r *Resolver) resolveReturn(s *ast.ReturnStmt) {
	if !r.inFunction || r.currentFunction == nil {
		r.rep.Error("Cannot use 'return' outside a function", s.Keyword)
		return
	}
	s.Function = r.currentFunction
	r.currentFunction.Returns = append(r.currentFunction.Returns, s)

	declared := r.currentFunction.ReturnType
	if s.Value == nil {
		if declared != nil && declared.Data().Prim != ast.PrimNull {
			r.rep.Error("Function '"+r.currentFunction.Name.Lexeme+"' must return a value", s.Keyword)
		}
		return
	}

	valueInfo := r.resolveExpr(s.Value)
	if valueInfo.Type == nil || declared == nil {
		return
	}
	if ok, _ := r.convertible(declared, valueInfo.Type); !ok {
		r.rep.Error("Cannot return a value of type "+typeName(valueInfo.Type)+
			" from a function declared to return "+typeName(declared), valueInfo.Tok)
	}
}

func (r *Resolver) resolveSwitch(s *ast.SwitchStmt) {
	condInfo := r.resolveExpr(s.Cond)

	defer r.setFlag(&r.inSwitch)()
	r.beginScope()
	defer r.endScope()

	for _, c := range s.Cases {
		caseInfo := r.resolveExpr(c.Value)
		if condInfo.Type != nil && caseInfo.Type != nil {
			if ok, _ := r.convertible(condInfo.Type, caseInfo.Type); !ok {
				r.rep.Error("Case expression type "+typeName(caseInfo.Type)+
					" does not match the switch condition type "+typeName(condInfo.Type), caseInfo.Tok)
			}
		}
		r.resolveStmt(c.Body)
	}
	if s.Default != nil {
		r.resolveStmt(s.Default)
	}
}

func (r *Resolver) resolveWhile(s *ast.WhileStmt) {
	if s.Cond != nil {
		condInfo := r.resolveExpr(s.Cond)
		if condInfo.Type != nil && !isBool(condInfo.Type) {
			r.rep.Error("Condition of while loop must be a boolean", condInfo.Tok)
		}
	}

	defer r.setFlag(&r.inLoop)()
	r.resolveStmt(s.Body)
	if s.Increment != nil {
		r.resolveStmt(s.Increment)
	}
}

// ----------------------------------------------------------------------------
// Return-path analysis

// blockMustReturn reports whether every control path through the list
// ends in a return. Loops are treated as possibly skipped entirely.
func blockMustReturn(stmts []ast.Stmt) bool {
	for _, s := range stmts {
		if stmtMustReturn(s) {
			return true
		}
	}
	return false
}

func stmtMustReturn(s ast.Stmt) bool {
	switch s := s.(type) {
	case *ast.ReturnStmt:
		return true
	case *ast.BlockStmt:
		return blockMustReturn(s.Stmts)
	case *ast.IfStmt:
		if s.Else == nil {
			return false
		}
		return stmtMustReturn(s.Then) && stmtMustReturn(s.Else)
	case *ast.SwitchStmt:
		if s.Default == nil {
			return false
		}
		for _, c := range s.Cases {
			if !stmtMustReturn(c.Body) {
				return false
			}
		}
		return stmtMustReturn(s.Default)
	}
	return false
}
