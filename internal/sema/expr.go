package sema

import (
	"strconv"

	"github.com/eis-lang/eisc/internal/ast"
	"github.com/eis-lang/eisc/internal/token"
)

// resolveExpr resolves one expression, fills its resolved-type slot and
// returns the slot. On failure the slot's Type stays nil; the error has
// already been reported.
func (r *Resolver) resolveExpr(e ast.Expr) *ast.TypeInfo {
	if e == nil {
		return &ast.TypeInfo{ModuleIndex: -1}
	}

	info := newInfo(e.Tok())

	switch e := e.(type) {
	case *ast.LiteralExpr:
		info.Type = e.Type

	case *ast.VariableExpr:
		r.resolveVariable(e, info)

	case *ast.ScopeNameExpr:
		// Module names carry the file extension; the scope head is an
		// identifier, so "util" also finds the module "util.eis".
		name := e.Name.Lexeme
		if idx, ok := r.reg.Find(name); ok {
			info.ModuleIndex = idx
		} else if idx, ok := r.reg.Find(name + ".eis"); ok {
			info.ModuleIndex = idx
		} else if class, ok := r.mod.Classes[name]; ok {
			info.Class = class
		} else {
			r.rep.Error("No module or class named '"+name+"'", e.Name)
		}

	case *ast.ScopeAccessExpr:
		r.resolveScopeAccess(e, info)

	case *ast.AssignExpr:
		r.resolveAssign(e, info)

	case *ast.BinaryExpr:
		r.resolveBinary(e, info)

	case *ast.LogicalExpr:
		leftInfo := r.resolveExpr(e.Left)
		rightInfo := r.resolveExpr(e.Right)
		if leftInfo.Type != nil && !isBool(leftInfo.Type) {
			r.rep.Error("Left operand of '"+e.OpTok.Lexeme+"' must be a boolean", leftInfo.Tok)
		}
		if rightInfo.Type != nil && !isBool(rightInfo.Type) {
			r.rep.Error("Right operand of '"+e.OpTok.Lexeme+"' must be a boolean", rightInfo.Tok)
		}
		info.Type = newPrim(ast.PrimBool, false, false)

	case *ast.UnaryExpr:
		r.resolveUnary(e, info)

	case *ast.TernaryExpr:
		r.resolveTernary(e, info)

	case *ast.GroupingExpr:
		inner := r.resolveExpr(e.Expr)
		info.Type = inner.Type
		info.Func = inner.Func
		info.Class = inner.Class

	case *ast.CallExpr:
		r.resolveCall(e, info)

	case *ast.IndexExpr:
		r.resolveIndex(e, info)

	case *ast.ListAssignExpr:
		r.resolveListAssign(e, info)

	case *ast.ListExpr:
		r.resolveList(e, info)

	case *ast.TupleExpr:
		elems := make([]ast.TypeNode, len(e.Elements))
		for i := range e.Elements {
			elems[i] = r.resolveExpr(e.Elements[i].Value).Type
		}
		info.Type = &ast.TupleType{
			TypeData: ast.TypeData{Prim: ast.PrimTuple},
			Elems:    elems,
		}

	case *ast.GetExpr:
		r.resolveGet(e, info)

	case *ast.SetExpr:
		r.resolveSet(e, info)

	case *ast.SuperExpr:
		className := "<class>"
		if r.currentClass != nil {
			className = r.currentClass.Name.Lexeme
		}
		r.rep.Error("Cannot use 'super': class '"+className+"' has no superclass", e.Keyword)

	case *ast.ThisExpr:
		if !(r.inClass && r.inFunction) || r.currentClass == nil {
			r.rep.Error("Cannot use 'this' outside a class method", e.Keyword)
		} else {
			info.Class = r.currentClass
			info.Type = classInstanceType(r.currentClass)
		}

	case *ast.CommaExpr:
		for _, inner := range e.Exprs {
			last := r.resolveExpr(inner)
			info.Type = last.Type
		}
	}

	e.SetInfo(info)
	return info
}

func (r *Resolver) resolveVariable(e *ast.VariableExpr, info *ast.TypeInfo) {
	name := e.Name.Lexeme
	if b := r.findValue(name); b != nil {
		e.Ident = ast.IdentVariable
		info.Type = b.typ
		info.Class = b.class
		return
	}
	if fn, ok := r.mod.Functions[name]; ok {
		e.Ident = ast.IdentFunction
		info.Func = fn
		return
	}
	if class, ok := r.mod.Classes[name]; ok {
		e.Ident = ast.IdentClass
		info.Class = class
		return
	}
	r.rep.Error("Undefined name '"+name+"'", e.Name)
}

func (r *Resolver) resolveScopeAccess(e *ast.ScopeAccessExpr, info *ast.TypeInfo) {
	scopeInfo := r.resolveExpr(e.Scope)
	name := e.Name.Lexeme

	switch {
	case scopeInfo.ModuleIndex >= 0:
		m := r.reg.Module(scopeInfo.ModuleIndex)
		if fn, ok := m.Functions[name]; ok {
			info.Func = fn
			return
		}
		if class, ok := m.Classes[name]; ok {
			info.Class = class
			return
		}
		r.rep.Error("Module '"+m.Name+"' has no function or class named '"+name+"'", e.Name)

	case scopeInfo.Class != nil:
		class := scopeInfo.Class
		for _, m := range class.Methods {
			if m.Fn.Name.Lexeme == name {
				if m.Visibility != ast.VisPublic && r.currentClass != class {
					r.rep.Error("'"+name+"' is not a public method of class '"+class.Name.Lexeme+"'", e.Name)
					return
				}
				info.Func = m.Fn
				return
			}
		}
		r.rep.Error("Class '"+class.Name.Lexeme+"' has no method named '"+name+"'", e.Name)

	default:
		r.rep.Error("Only modules and classes can appear before '::'", e.Name)
	}
}

func (r *Resolver) resolveAssign(e *ast.AssignExpr, info *ast.TypeInfo) {
	valueInfo := r.resolveExpr(e.Value)

	b := r.findValue(e.Target.Lexeme)
	if b == nil {
		r.rep.Error("Cannot assign to undefined name '"+e.Target.Lexeme+"'", e.Target)
		return
	}
	if b.typ == nil {
		return
	}
	if b.typ.Data().IsConst {
		r.rep.Error("Cannot assign to '"+e.Target.Lexeme+"': it is declared 'const'", e.Target)
		return
	}

	if e.OpTok.Kind != token.EQUAL {
		if !r.checkCompound(e.OpTok, b.typ, valueInfo) {
			return
		}
	}

	if valueInfo.Type != nil {
		ok, conv := r.convertible(b.typ, valueInfo.Type)
		if !ok {
			r.rep.Error("Cannot assign a value of type "+typeName(valueInfo.Type)+
				" to '"+e.Target.Lexeme+"' of type "+typeName(b.typ), valueInfo.Tok)
			return
		}
		e.Conversion = conv
	}
	info.Type = b.typ
	info.Class = b.class
}

// checkCompound validates the operand kinds of a compound assignment
// operator: '+=' takes numbers or strings, the rest take numbers.
func (r *Resolver) checkCompound(oper token.Token, target ast.TypeNode, value *ast.TypeInfo) bool {
	if value.Type == nil {
		return false
	}
	if oper.Kind == token.PLUS_EQUAL && isString(target) && isString(value.Type) {
		return true
	}
	if isNumeric(target) && isNumeric(value.Type) {
		return true
	}
	r.rep.Error("Cannot use '"+oper.Lexeme+"' on operands of type "+
		typeName(target)+" and "+typeName(value.Type), oper)
	return false
}

func (r *Resolver) resolveBinary(e *ast.BinaryExpr, info *ast.TypeInfo) {
	leftInfo := r.resolveExpr(e.Left)
	rightInfo := r.resolveExpr(e.Right)
	lt, rt := leftInfo.Type, rightInfo.Type
	if lt == nil || rt == nil {
		return
	}

	fail := func() {
		r.rep.Error("Cannot use operator '"+e.OpTok.Lexeme+"' on operands of type "+
			typeName(lt)+" and "+typeName(rt), e.OpTok)
	}

	switch e.OpTok.Kind {
	case token.PLUS:
		if isString(lt) && isString(rt) {
			info.Type = newPrim(ast.PrimString, false, false)
			return
		}
		fallthrough
	case token.MINUS, token.STAR, token.SLASH, token.MODULO:
		if !isNumeric(lt) || !isNumeric(rt) {
			fail()
			return
		}
		info.Type = r.numericResult(e, lt, rt)

	case token.EQUAL_EQUAL, token.NOT_EQUAL:
		ok := typeEquals(lt, rt) ||
			(isNumeric(lt) && isNumeric(rt)) ||
			isNull(lt) || isNull(rt)
		if !ok {
			fail()
			return
		}
		r.recordPromotion(e, lt, rt)
		info.Type = newPrim(ast.PrimBool, false, false)

	case token.LESS, token.LESS_EQUAL, token.GREATER, token.GREATER_EQUAL:
		if !isNumeric(lt) || !isNumeric(rt) {
			fail()
			return
		}
		r.recordPromotion(e, lt, rt)
		info.Type = newPrim(ast.PrimBool, false, false)

	case token.BIT_AND, token.BIT_OR, token.BIT_XOR, token.LSHIFT, token.RSHIFT:
		if !isInt(lt) || !isInt(rt) {
			fail()
			return
		}
		info.Type = newPrim(ast.PrimInt, false, false)

	case token.DOT_DOT, token.DOT_DOT_EQUAL:
		if !isInt(lt) || !isInt(rt) {
			fail()
			return
		}
		// A range is consumed as a sequence of ints.
		info.Type = &ast.ListType{
			TypeData:  ast.TypeData{Prim: ast.PrimList},
			Contained: newPrim(ast.PrimInt, false, false),
		}
	}
}

// numericResult computes the type of a mixed arithmetic operation and
// records the int side's promotion on the node.
func (r *Resolver) numericResult(e *ast.BinaryExpr, lt, rt ast.TypeNode) ast.TypeNode {
	if isFloat(lt) || isFloat(rt) {
		r.recordPromotion(e, lt, rt)
		return newPrim(ast.PrimFloat, false, false)
	}
	return newPrim(ast.PrimInt, false, false)
}

// recordPromotion marks the int side of an int/float operand pair.
func (r *Resolver) recordPromotion(e *ast.BinaryExpr, lt, rt ast.TypeNode) {
	if isInt(lt) && isFloat(rt) || isFloat(lt) && isInt(rt) {
		e.Conversion = ast.ConvIntToFloat
	}
}

func (r *Resolver) resolveUnary(e *ast.UnaryExpr, info *ast.TypeInfo) {
	operand := r.resolveExpr(e.Right)
	if operand.Type == nil {
		return
	}

	switch e.Oper.Kind {
	case token.MINUS, token.PLUS:
		if !isNumeric(operand.Type) {
			r.rep.Error("Operand of unary '"+e.Oper.Lexeme+"' must be a number", operand.Tok)
			return
		}
		info.Type = operand.Type

	case token.NOT:
		if !isBool(operand.Type) {
			r.rep.Error("Operand of 'not' must be a boolean", operand.Tok)
			return
		}
		info.Type = newPrim(ast.PrimBool, false, false)

	case token.BIT_NOT:
		if !isInt(operand.Type) {
			r.rep.Error("Operand of '~' must be an integer", operand.Tok)
			return
		}
		info.Type = newPrim(ast.PrimInt, false, false)

	case token.PLUS_PLUS, token.MINUS_MINUS:
		if !r.isMutableLvalue(e.Right) || !isNumeric(operand.Type) {
			r.rep.Error("Operand of '"+e.Oper.Lexeme+"' must be a mutable numeric value", operand.Tok)
			return
		}
		info.Type = operand.Type
	}
}

// isMutableLvalue reports whether an expression designates storage that
// can be written through.
func (r *Resolver) isMutableLvalue(e ast.Expr) bool {
	switch e := e.(type) {
	case *ast.VariableExpr:
		b := r.findValue(e.Name.Lexeme)
		return b != nil && b.typ != nil && !b.typ.Data().IsConst
	case *ast.GetExpr, *ast.IndexExpr:
		info := e.Info()
		return info != nil && info.Type != nil && !info.Type.Data().IsConst
	case *ast.GroupingExpr:
		return r.isMutableLvalue(e.Expr)
	}
	return false
}

func (r *Resolver) resolveTernary(e *ast.TernaryExpr, info *ast.TypeInfo) {
	condInfo := r.resolveExpr(e.Cond)
	if condInfo.Type != nil && !isBool(condInfo.Type) {
		r.rep.Error("Condition of a ternary expression must be a boolean", condInfo.Tok)
	}

	thenInfo := r.resolveExpr(e.Then)
	elseInfo := r.resolveExpr(e.Else)
	tt, et := thenInfo.Type, elseInfo.Type
	if tt == nil || et == nil {
		return
	}

	switch {
	case typeEquals(tt, et):
		info.Type = tt
	case isNull(tt) && (et.Data().IsRef || et.Data().Prim == ast.PrimClass):
		info.Type = et
	case isNull(et) && (tt.Data().IsRef || tt.Data().Prim == ast.PrimClass):
		info.Type = tt
	default:
		r.rep.Error("Branches of a ternary expression must have the same type, got "+
			typeName(tt)+" and "+typeName(et), e.OpTok)
	}
}

func (r *Resolver) resolveCall(e *ast.CallExpr, info *ast.TypeInfo) {
	// Builtin calls bypass name resolution unless the name is shadowed
	// by a local binding.
	if v, ok := e.Callee.(*ast.VariableExpr); ok {
		if b, isBuiltin := builtins[v.Name.Lexeme]; isBuiltin && r.findValue(v.Name.Lexeme) == nil {
			r.resolveNativeCall(e, v, b, info)
			return
		}
	}

	calleeInfo := r.resolveExpr(e.Callee)

	var fn *ast.FunctionStmt
	var resultType ast.TypeNode

	switch {
	case calleeInfo.Func != nil:
		fn = calleeInfo.Func
		resultType = fn.ReturnType

	case calleeInfo.Class != nil:
		// Calling a class name constructs an instance.
		fn = calleeInfo.Class.Ctor
		resultType = classInstanceType(calleeInfo.Class)
		if fn == nil {
			if len(e.Args) > 0 {
				r.rep.Error("Class '"+calleeInfo.Class.Name.Lexeme+
					"' has no constructor taking arguments", e.OpTok)
				return
			}
			info.Type = resultType
			info.Class = calleeInfo.Class
			return
		}

	default:
		r.rep.Error("Can only call functions, methods and class constructors", e.OpTok)
		return
	}

	if len(e.Args) != len(fn.Params) {
		r.rep.Error("Function '"+fn.Name.Lexeme+"' takes "+strconv.Itoa(len(fn.Params))+
			" argument(s) but was called with "+strconv.Itoa(len(e.Args)), e.OpTok)
		return
	}

	for i := range e.Args {
		argInfo := r.resolveExpr(e.Args[i].Value)
		if argInfo.Type == nil || fn.Params[i].Type == nil {
			continue
		}
		ok, conv := r.convertible(fn.Params[i].Type, argInfo.Type)
		if !ok {
			r.rep.Error("Argument "+strconv.Itoa(i+1)+" to '"+fn.Name.Lexeme+
				"' has type "+typeName(argInfo.Type)+", expected "+
				typeName(fn.Params[i].Type), argInfo.Tok)
			continue
		}
		e.Args[i].Conversion = conv
	}

	info.Func = fn
	info.Type = resultType
	if calleeInfo.Class != nil {
		info.Class = calleeInfo.Class
	}
}

func (r *Resolver) resolveIndex(e *ast.IndexExpr, info *ast.TypeInfo) {
	objInfo := r.resolveExpr(e.Object)
	idxInfo := r.resolveExpr(e.Index)

	if idxInfo.Type != nil && !isInt(idxInfo.Type) {
		r.rep.Error("Array subscript index must be an integer", idxInfo.Tok)
	}
	if objInfo.Type == nil {
		return
	}
	list, ok := objInfo.Type.(*ast.ListType)
	if !ok {
		r.rep.Error("Can only index into a list, not "+typeName(objInfo.Type), e.OpTok)
		return
	}
	info.Type = list.Contained
}

func (r *Resolver) resolveListAssign(e *ast.ListAssignExpr, info *ast.TypeInfo) {
	elemInfo := r.resolveExpr(&e.List)
	valueInfo := r.resolveExpr(e.Value)

	objInfo := e.List.Object.Info()
	if objInfo != nil && objInfo.Type != nil && objInfo.Type.Data().IsConst {
		r.rep.Error("Cannot assign to an element of a const list", e.OpTok)
		return
	}
	if elemInfo.Type == nil || valueInfo.Type == nil {
		return
	}

	if e.OpTok.Kind != token.EQUAL && !r.checkCompound(e.OpTok, elemInfo.Type, valueInfo) {
		return
	}

	ok, conv := r.convertible(elemInfo.Type, valueInfo.Type)
	if !ok {
		r.rep.Error("Cannot assign a value of type "+valueTypeName(valueInfo.Type)+
			" to a list element of type "+typeName(elemInfo.Type), valueInfo.Tok)
		return
	}
	e.Conversion = conv
	info.Type = elemInfo.Type
}

func (r *Resolver) resolveList(e *ast.ListExpr, info *ast.TypeInfo) {
	if len(e.Elements) == 0 {
		r.rep.Error("Cannot infer the type of an empty list literal", e.OpTok)
		return
	}

	elemType := r.resolveExpr(e.Elements[0].Value).Type
	if elemType == nil {
		return
	}
	// Any float element makes an int/float mix a float list.
	for i := 1; i < len(e.Elements); i++ {
		t := r.resolveExpr(e.Elements[i].Value).Type
		if isFloat(t) && isInt(elemType) {
			elemType = t
		}
	}

	for i := range e.Elements {
		elInfo := e.Elements[i].Value.Info()
		if elInfo == nil || elInfo.Type == nil {
			continue
		}
		ok, conv := r.convertible(elemType, elInfo.Type)
		if !ok {
			r.rep.Error("List element "+strconv.Itoa(i+1)+" has type "+
				typeName(elInfo.Type)+", expected "+typeName(elemType), elInfo.Tok)
			continue
		}
		e.Elements[i].Conversion = conv
	}

	info.Type = &ast.ListType{
		TypeData:  ast.TypeData{Prim: ast.PrimList},
		Contained: elemType,
	}
}

func (r *Resolver) resolveGet(e *ast.GetExpr, info *ast.TypeInfo) {
	objInfo := r.resolveExpr(e.Object)
	if objInfo.Type == nil {
		return
	}

	switch objType := objInfo.Type.(type) {
	case *ast.UserDefinedType:
		class := objInfo.Class
		if class == nil {
			class = r.classFor(objType)
		}
		if class == nil {
			r.rep.Error("Unknown class '"+objType.Name.Lexeme+"'", e.Name)
			return
		}
		r.resolveMemberAccess(class, e.Name, info)

	case *ast.TupleType:
		if e.Name.Kind != token.INT_VALUE {
			r.rep.Error("Tuples are accessed with an integer index", e.Name)
			return
		}
		idx, err := strconv.Atoi(e.Name.Lexeme)
		if err != nil || idx < 0 || idx >= len(objType.Elems) {
			r.rep.Error("Tuple index "+e.Name.Lexeme+" is out of range for "+
				typeName(objType), e.Name)
			return
		}
		info.Type = objType.Elems[idx]

	default:
		r.rep.Error("Only class instances and tuples have properties", e.Name)
	}
}

// resolveMemberAccess finds a visible member or method of class.
func (r *Resolver) resolveMemberAccess(class *ast.ClassStmt, name token.Token, info *ast.TypeInfo) {
	for _, m := range class.Members {
		if m.Var.Name.Lexeme != name.Lexeme {
			continue
		}
		if !r.visible(m.Visibility, class) {
			r.rep.Error("'"+name.Lexeme+"' is declared "+m.Visibility.String()+
				" in class '"+class.Name.Lexeme+"'", name)
			return
		}
		info.Type = r.resolveTypeNode(m.Var.Type)
		if info.Type == nil && m.Var.Initializer != nil {
			if init := m.Var.Initializer.Info(); init != nil {
				info.Type = init.Type
			}
		}
		info.Class = r.classFor(info.Type)
		return
	}
	for _, m := range class.Methods {
		if m.Fn.Name.Lexeme != name.Lexeme {
			continue
		}
		if !r.visible(m.Visibility, class) {
			r.rep.Error("'"+name.Lexeme+"' is declared "+m.Visibility.String()+
				" in class '"+class.Name.Lexeme+"'", name)
			return
		}
		info.Func = m.Fn
		return
	}
	r.rep.Error("Class '"+class.Name.Lexeme+"' has no member named '"+name.Lexeme+"'", name)
}

// visible reports whether a member with the given visibility can be
// accessed from the current context. public is visible anywhere;
// private and protected only within the declaring class (there is no
// inheritance, so protected collapses to private).
func (r *Resolver) visible(v ast.Visibility, class *ast.ClassStmt) bool {
	return v == ast.VisPublic || r.currentClass == class
}

func (r *Resolver) resolveSet(e *ast.SetExpr, info *ast.TypeInfo) {
	objInfo := r.resolveExpr(e.Object)
	valueInfo := r.resolveExpr(e.Value)
	if objInfo.Type == nil {
		return
	}

	objType, ok := objInfo.Type.(*ast.UserDefinedType)
	if !ok {
		r.rep.Error("Can only assign to members of class instances", e.Name)
		return
	}
	class := objInfo.Class
	if class == nil {
		class = r.classFor(objType)
	}
	if class == nil {
		r.rep.Error("Unknown class '"+objType.Name.Lexeme+"'", e.Name)
		return
	}

	memberInfo := newInfo(e.Name)
	r.resolveMemberAccess(class, e.Name, memberInfo)
	if memberInfo.Func != nil {
		r.rep.Error("Cannot assign to a method", e.Name)
		return
	}
	if memberInfo.Type == nil {
		return
	}
	if memberInfo.Type.Data().IsConst {
		r.rep.Error("Cannot assign to '"+e.Name.Lexeme+"': it is declared 'const'", e.Name)
		return
	}

	if valueInfo.Type == nil {
		return
	}
	if e.OpTok.Kind != token.EQUAL && !r.checkCompound(e.OpTok, memberInfo.Type, valueInfo) {
		return
	}
	okConv, conv := r.convertible(memberInfo.Type, valueInfo.Type)
	if !okConv {
		r.rep.Error("Cannot assign a value of type "+valueTypeName(valueInfo.Type)+
			" to member '"+e.Name.Lexeme+"' of type "+typeName(memberInfo.Type), valueInfo.Tok)
		return
	}
	e.Conversion = conv
	info.Type = memberInfo.Type
}
