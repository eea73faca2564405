package sema

import (
	"github.com/eis-lang/eisc/internal/ast"
)

// newPrim synthesizes a primitive type node.
func newPrim(kind ast.PrimKind, isConst, isRef bool) *ast.PrimitiveType {
	return &ast.PrimitiveType{TypeData: ast.TypeData{Prim: kind, IsConst: isConst, IsRef: isRef}}
}

// copyType duplicates a type node. List size expressions are shared,
// not copied; they are never mutated after parsing.
func copyType(t ast.TypeNode) ast.TypeNode {
	switch t := t.(type) {
	case *ast.PrimitiveType:
		c := *t
		return &c
	case *ast.UserDefinedType:
		c := *t
		return &c
	case *ast.ListType:
		c := *t
		c.Contained = copyType(t.Contained)
		return &c
	case *ast.TupleType:
		c := *t
		c.Elems = make([]ast.TypeNode, len(t.Elems))
		for i, el := range t.Elems {
			c.Elems[i] = copyType(el)
		}
		return &c
	case *ast.TypeofType:
		c := *t
		return &c
	}
	return t
}

func isInt(t ast.TypeNode) bool {
	return t != nil && t.Data().Prim == ast.PrimInt
}

func isFloat(t ast.TypeNode) bool {
	return t != nil && t.Data().Prim == ast.PrimFloat
}

func isNumeric(t ast.TypeNode) bool {
	return isInt(t) || isFloat(t)
}

func isString(t ast.TypeNode) bool {
	return t != nil && t.Data().Prim == ast.PrimString
}

func isBool(t ast.TypeNode) bool {
	return t != nil && t.Data().Prim == ast.PrimBool
}

func isNull(t ast.TypeNode) bool {
	return t != nil && t.Data().Prim == ast.PrimNull
}

// typeEquals reports structural equality of two types, ignoring const
// and ref qualifiers.
func typeEquals(a, b ast.TypeNode) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Data().Prim != b.Data().Prim {
		return false
	}
	switch a := a.(type) {
	case *ast.UserDefinedType:
		bu, ok := b.(*ast.UserDefinedType)
		return ok && a.Name.Lexeme == bu.Name.Lexeme
	case *ast.ListType:
		bl, ok := b.(*ast.ListType)
		return ok && typeEquals(a.Contained, bl.Contained)
	case *ast.TupleType:
		bt, ok := b.(*ast.TupleType)
		if !ok || len(a.Elems) != len(bt.Elems) {
			return false
		}
		for i := range a.Elems {
			if !typeEquals(a.Elems[i], bt.Elems[i]) {
				return false
			}
		}
		return true
	}
	return true
}

// convertible reports whether a value of type src can be bound to a
// target of type dst, and the numeric conversion that binding needs.
// int widens to float; null binds to class instances and references.
func (r *Resolver) convertible(dst, src ast.TypeNode) (bool, ast.NumericConversion) {
	if dst == nil || src == nil {
		return false, ast.ConvNone
	}
	if typeEquals(dst, src) {
		return true, ast.ConvNone
	}
	if isFloat(dst) && isInt(src) {
		return true, ast.ConvIntToFloat
	}
	if isNull(src) {
		if _, ok := dst.(*ast.UserDefinedType); ok {
			return true, ast.ConvNone
		}
		if dst.Data().IsRef {
			return true, ast.ConvNone
		}
	}
	return false, ast.ConvNone
}

// resolveTypeNode validates a declared type and returns the type it
// denotes, expanding aliases and typeof expressions. The AST node
// itself is not rewritten.
func (r *Resolver) resolveTypeNode(t ast.TypeNode) ast.TypeNode {
	switch t := t.(type) {
	case nil:
		return nil

	case *ast.PrimitiveType:
		return t

	case *ast.UserDefinedType:
		if aliased, ok := r.aliases[t.Name.Lexeme]; ok {
			expanded := copyType(aliased)
			d := expanded.Data()
			d.IsConst = d.IsConst || t.IsConst
			d.IsRef = d.IsRef || t.IsRef
			return expanded
		}
		if _, ok := r.mod.Classes[t.Name.Lexeme]; !ok {
			r.rep.Error("Unknown type name '"+t.Name.Lexeme+"'", t.Name)
		}
		return t

	case *ast.ListType:
		if t.Size != nil {
			sizeInfo := r.resolveExpr(t.Size)
			if sizeInfo.Type != nil && !isInt(sizeInfo.Type) {
				r.rep.Error("Array size must be an integer", sizeInfo.Tok)
			}
		}
		contained := r.resolveTypeNode(t.Contained)
		if contained == t.Contained {
			return t
		}
		c := *t
		c.Contained = contained
		return &c

	case *ast.TupleType:
		changed := false
		elems := make([]ast.TypeNode, len(t.Elems))
		for i, el := range t.Elems {
			elems[i] = r.resolveTypeNode(el)
			changed = changed || elems[i] != el
		}
		if !changed {
			return t
		}
		c := *t
		c.Elems = elems
		return &c

	case *ast.TypeofType:
		info := r.resolveExpr(t.Expr)
		if info.Type == nil {
			r.rep.Error("Cannot take the type of an expression with no value", info.Tok)
			return nil
		}
		expanded := copyType(info.Type)
		d := expanded.Data()
		d.IsConst = d.IsConst || t.IsConst
		d.IsRef = d.IsRef || t.IsRef
		return expanded
	}
	return t
}

// classFor returns the class declaration behind a class-instance type.
func (r *Resolver) classFor(t ast.TypeNode) *ast.ClassStmt {
	if udt, ok := t.(*ast.UserDefinedType); ok {
		return r.mod.Classes[udt.Name.Lexeme]
	}
	return nil
}

// classInstanceType synthesizes the instance type of a class.
func classInstanceType(class *ast.ClassStmt) *ast.UserDefinedType {
	return &ast.UserDefinedType{
		TypeData: ast.TypeData{Prim: ast.PrimClass},
		Name:     class.Name,
	}
}

// typeName renders a type for diagnostics.
func typeName(t ast.TypeNode) string {
	if t == nil {
		return "<error>"
	}
	return ast.TypeString(t)
}

// valueTypeName renders the type of an assigned value for diagnostics,
// leaving out the const qualifier that literal values carry.
func valueTypeName(t ast.TypeNode) string {
	if t == nil {
		return typeName(t)
	}
	c := copyType(t)
	c.Data().IsConst = false
	return typeName(c)
}
