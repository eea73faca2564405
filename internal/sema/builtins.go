package sema

import (
	"strconv"

	"github.com/eis-lang/eisc/internal/ast"
)

// builtinFn is one native function pre-declared by the front end.
// check validates the resolved argument slots and returns the call's
// result type, or nil after reporting an error.
type builtinFn struct {
	arity int
	check func(r *Resolver, call *ast.CallExpr, args []*ast.TypeInfo) ast.TypeNode
}

var builtins = map[string]builtinFn{
	"print":   {1, checkPrint},
	"println": {1, checkPrint},
	"size":    {1, checkSize},
	"int":     {1, checkIntCast},
	"float":   {1, checkFloatCast},
}

// resolveNativeCall type-checks a call to a builtin function.
func (r *Resolver) resolveNativeCall(e *ast.CallExpr, callee *ast.VariableExpr, b builtinFn, info *ast.TypeInfo) {
	e.IsNative = true
	callee.Ident = ast.IdentFunction
	callee.SetInfo(newInfo(callee.Name))

	if len(e.Args) != b.arity {
		r.rep.Error("Native function '"+callee.Name.Lexeme+"' takes "+
			strconv.Itoa(b.arity)+" argument(s) but was called with "+
			strconv.Itoa(len(e.Args)), e.OpTok)
		return
	}

	args := make([]*ast.TypeInfo, len(e.Args))
	for i := range e.Args {
		args[i] = r.resolveExpr(e.Args[i].Value)
	}

	info.Type = b.check(r, e, args)
}

func checkPrint(r *Resolver, call *ast.CallExpr, args []*ast.TypeInfo) ast.TypeNode {
	if args[0].Type == nil {
		r.rep.Error("Argument to print must have a value", args[0].Tok)
		return nil
	}
	return newPrim(ast.PrimNull, false, false)
}

func checkSize(r *Resolver, call *ast.CallExpr, args []*ast.TypeInfo) ast.TypeNode {
	t := args[0].Type
	if t == nil {
		return nil
	}
	if _, ok := t.(*ast.ListType); !ok && !isString(t) {
		r.rep.Error("Argument to size must be a list or a string", args[0].Tok)
		return nil
	}
	return newPrim(ast.PrimInt, false, false)
}

func checkIntCast(r *Resolver, call *ast.CallExpr, args []*ast.TypeInfo) ast.TypeNode {
	t := args[0].Type
	if t == nil {
		return nil
	}
	if !isNumeric(t) && !isBool(t) {
		r.rep.Error("Cannot convert "+typeName(t)+" to int", args[0].Tok)
		return nil
	}
	if isFloat(t) {
		call.Args[0].Conversion = ast.ConvFloatToInt
	}
	return newPrim(ast.PrimInt, false, false)
}

func checkFloatCast(r *Resolver, call *ast.CallExpr, args []*ast.TypeInfo) ast.TypeNode {
	t := args[0].Type
	if t == nil {
		return nil
	}
	if !isNumeric(t) {
		r.rep.Error("Cannot convert "+typeName(t)+" to float", args[0].Tok)
		return nil
	}
	if isInt(t) {
		call.Args[0].Conversion = ast.ConvIntToFloat
	}
	return newPrim(ast.PrimFloat, false, false)
}
