package expr

import (
	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

func evalSize(operand value.Value, ctx *Context) (value.Value, error) {
	v, err := evalOne("$size", operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if v.Kind != value.KindArray {
		return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "$size requires an array operand")
	}
	return value.Int32(int32(len(v.Arr))), nil
}

func evalArrayElemAt(operand value.Value, ctx *Context) (value.Value, error) {
	operands, err := evalOperands(operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if len(operands) != 2 {
		return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "$arrayElemAt requires exactly 2 operands")
	}
	if operands[0].Kind != value.KindArray {
		return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "$arrayElemAt requires an array operand")
	}
	arr := operands[0].Arr
	idxF, _ := operands[1].AsFloat64()
	idx := int(idxF)
	if idx < 0 {
		idx += len(arr)
	}
	if idx < 0 || idx >= len(arr) {
		return value.Value{}, nil
	}
	return arr[idx], nil
}

func evalIn(operand value.Value, ctx *Context) (value.Value, error) {
	operands, err := evalOperands(operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if len(operands) != 2 {
		return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "$in requires exactly 2 operands")
	}
	if operands[1].Kind != value.KindArray {
		return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "$in requires an array as its second operand")
	}
	for _, elem := range operands[1].Arr {
		if value.Equal(operands[0], elem) {
			return value.Bool(true), nil
		}
	}
	return value.Bool(false), nil
}

func evalMap(operand value.Value, ctx *Context) (value.Value, error) {
	doc, err := operandDoc("$map", operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	input, err := Eval(doc.Get("input"), ctx)
	if err != nil {
		return value.Value{}, err
	}
	if nullOrMissing(input) {
		return value.Null(), nil
	}
	if input.Kind != value.KindArray {
		return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "$map requires an array input")
	}
	as := doc.Get("as")
	varName := "this"
	if as.Kind == value.KindString {
		varName = as.Str
	}
	inExpr := doc.Get("in")
	out := make([]value.Value, len(input.Arr))
	for i, elem := range input.Arr {
		sub := ctx.WithVar(varName, elem)
		v, err := Eval(inExpr, sub)
		if err != nil {
			return value.Value{}, err
		}
		out[i] = v
	}
	return value.FromArray(out), nil
}

func evalFilter(operand value.Value, ctx *Context) (value.Value, error) {
	doc, err := operandDoc("$filter", operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	input, err := Eval(doc.Get("input"), ctx)
	if err != nil {
		return value.Value{}, err
	}
	if nullOrMissing(input) {
		return value.Null(), nil
	}
	if input.Kind != value.KindArray {
		return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "$filter requires an array input")
	}
	as := doc.Get("as")
	varName := "this"
	if as.Kind == value.KindString {
		varName = as.Str
	}
	cond := doc.Get("cond")
	var out []value.Value
	for _, elem := range input.Arr {
		sub := ctx.WithVar(varName, elem)
		v, err := Eval(cond, sub)
		if err != nil {
			return value.Value{}, err
		}
		if v.Truthy() {
			out = append(out, elem)
		}
	}
	return value.FromArray(out), nil
}

func evalReduce(operand value.Value, ctx *Context) (value.Value, error) {
	doc, err := operandDoc("$reduce", operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	input, err := Eval(doc.Get("input"), ctx)
	if err != nil {
		return value.Value{}, err
	}
	if nullOrMissing(input) {
		return value.Null(), nil
	}
	if input.Kind != value.KindArray {
		return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "$reduce requires an array input")
	}
	acc, err := Eval(doc.Get("initialValue"), ctx)
	if err != nil {
		return value.Value{}, err
	}
	inExpr := doc.Get("in")
	for _, elem := range input.Arr {
		sub := ctx.WithVar("value", acc).WithVar("this", elem)
		acc, err = Eval(inExpr, sub)
		if err != nil {
			return value.Value{}, err
		}
	}
	return acc, nil
}
