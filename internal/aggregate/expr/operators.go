package expr

import (
	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

func evalOperator(op string, operand value.Value, ctx *Context) (value.Value, error) {
	switch op {
	case "$add":
		return evalArith(op, operand, ctx, func(a, b float64) float64 { return a + b }, 0)
	case "$subtract":
		return evalSubtract(operand, ctx)
	case "$multiply":
		return evalArith(op, operand, ctx, func(a, b float64) float64 { return a * b }, 1)
	case "$divide":
		return evalDivide(operand, ctx)
	case "$mod":
		return evalMod(operand, ctx)

	case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte":
		return evalCompare(op, operand, ctx)
	case "$cmp":
		return evalCmp(operand, ctx)

	case "$and":
		return evalAnd(operand, ctx)
	case "$or":
		return evalOr(operand, ctx)
	case "$not":
		return evalNot(operand, ctx)

	case "$cond":
		return evalCond(operand, ctx)
	case "$ifNull":
		return evalIfNull(operand, ctx)
	case "$switch":
		return evalSwitch(op, operand, ctx)

	case "$type":
		return evalType(operand, ctx)
	case "$toString":
		return evalToString(operand, ctx)
	case "$toInt":
		return evalToInt(operand, ctx)
	case "$toLong":
		return evalToLong(operand, ctx)
	case "$toDouble":
		return evalToDouble(operand, ctx)
	case "$toBool":
		return evalToBool(operand, ctx)
	case "$toDate":
		return evalToDate(operand, ctx)

	case "$concat":
		return evalConcat(operand, ctx)
	case "$substr", "$substrBytes":
		return evalSubstr(operand, ctx)
	case "$toLower":
		return evalToLower(operand, ctx)
	case "$toUpper":
		return evalToUpper(operand, ctx)
	case "$split":
		return evalSplit(operand, ctx)

	case "$size":
		return evalSize(operand, ctx)
	case "$arrayElemAt":
		return evalArrayElemAt(operand, ctx)
	case "$in":
		return evalIn(operand, ctx)
	case "$map":
		return evalMap(operand, ctx)
	case "$filter":
		return evalFilter(operand, ctx)
	case "$reduce":
		return evalReduce(operand, ctx)

	case "$year":
		return evalDatePart(op, operand, ctx)
	case "$month":
		return evalDatePart(op, operand, ctx)
	case "$dayOfMonth":
		return evalDatePart(op, operand, ctx)
	case "$hour":
		return evalDatePart(op, operand, ctx)
	case "$minute":
		return evalDatePart(op, operand, ctx)
	case "$second":
		return evalDatePart(op, operand, ctx)

	default:
		return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "unsupported expression operator %q", op)
	}
}

func evalArith(op string, operand value.Value, ctx *Context, combine func(a, b float64) float64, identity float64) (value.Value, error) {
	operands, err := evalOperands(operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	acc := identity
	allInt := true
	for _, o := range operands {
		if nullOrMissing(o) {
			return value.Null(), nil
		}
		f, ok := o.AsFloat64()
		if !ok {
			return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "%s requires numeric operands", op)
		}
		if o.Kind == value.KindDouble || o.Kind == value.KindDecimal128 {
			allInt = false
		}
		acc = combine(acc, f)
	}
	return numericOut(acc, allInt), nil
}

func numericOut(f float64, allInt bool) value.Value {
	if allInt && f == float64(int64(f)) {
		return value.Int64(int64(f))
	}
	return value.Double(f)
}

func evalSubtract(operand value.Value, ctx *Context) (value.Value, error) {
	operands, err := evalOperands(operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if len(operands) != 2 {
		return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "$subtract requires exactly 2 operands")
	}
	a, b := operands[0], operands[1]
	if nullOrMissing(a) || nullOrMissing(b) {
		return value.Null(), nil
	}
	if a.Kind == value.KindDateTime && b.Kind == value.KindDateTime {
		return value.Int64(a.DateTimeMS - b.DateTimeMS), nil
	}
	af, aok := a.AsFloat64()
	bf, bok := b.AsFloat64()
	if !aok || !bok {
		return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "$subtract requires numeric or date operands")
	}
	allInt := a.Kind != value.KindDouble && a.Kind != value.KindDecimal128 && b.Kind != value.KindDouble && b.Kind != value.KindDecimal128
	return numericOut(af-bf, allInt), nil
}

func evalDivide(operand value.Value, ctx *Context) (value.Value, error) {
	operands, err := evalOperands(operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if len(operands) != 2 {
		return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "$divide requires exactly 2 operands")
	}
	if nullOrMissing(operands[0]) || nullOrMissing(operands[1]) {
		return value.Null(), nil
	}
	a, aok := operands[0].AsFloat64()
	b, bok := operands[1].AsFloat64()
	if !aok || !bok {
		return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "$divide requires numeric operands")
	}
	if b == 0 {
		return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "$divide by zero")
	}
	return value.Double(a / b), nil
}

func evalMod(operand value.Value, ctx *Context) (value.Value, error) {
	operands, err := evalOperands(operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if len(operands) != 2 {
		return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "$mod requires exactly 2 operands")
	}
	if nullOrMissing(operands[0]) || nullOrMissing(operands[1]) {
		return value.Null(), nil
	}
	a, aok := operands[0].AsFloat64()
	b, bok := operands[1].AsFloat64()
	if !aok || !bok {
		return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "$mod requires numeric operands")
	}
	if b == 0 {
		return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "$mod by zero")
	}
	allInt := operands[0].Kind != value.KindDouble && operands[1].Kind != value.KindDouble
	r := float64(int64(a) % int64(b))
	if !allInt {
		r = float64(int64(a)%int64(b)) // mod on floats treated as integral, matches Mongo's common usage here
	}
	return numericOut(r, allInt), nil
}

func evalCompare(op string, operand value.Value, ctx *Context) (value.Value, error) {
	operands, err := evalOperands(operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if len(operands) != 2 {
		return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "%s requires exactly 2 operands", op)
	}
	c := value.Compare(operands[0], operands[1])
	switch op {
	case "$eq":
		return value.Bool(c == 0), nil
	case "$ne":
		return value.Bool(c != 0), nil
	case "$gt":
		return value.Bool(c > 0), nil
	case "$gte":
		return value.Bool(c >= 0), nil
	case "$lt":
		return value.Bool(c < 0), nil
	case "$lte":
		return value.Bool(c <= 0), nil
	}
	return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "unreachable comparison operator %q", op)
}

func evalCmp(operand value.Value, ctx *Context) (value.Value, error) {
	operands, err := evalOperands(operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if len(operands) != 2 {
		return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "$cmp requires exactly 2 operands")
	}
	return value.Int32(int32(value.Compare(operands[0], operands[1]))), nil
}

func evalAnd(operand value.Value, ctx *Context) (value.Value, error) {
	operands, err := evalOperands(operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	for _, o := range operands {
		if !o.Truthy() {
			return value.Bool(false), nil
		}
	}
	return value.Bool(true), nil
}

func evalOr(operand value.Value, ctx *Context) (value.Value, error) {
	operands, err := evalOperands(operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	for _, o := range operands {
		if o.Truthy() {
			return value.Bool(true), nil
		}
	}
	return value.Bool(false), nil
}

func evalNot(operand value.Value, ctx *Context) (value.Value, error) {
	operands, err := evalOperands(operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if len(operands) != 1 {
		return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "$not requires exactly 1 operand")
	}
	return value.Bool(!operands[0].Truthy()), nil
}

func evalCond(operand value.Value, ctx *Context) (value.Value, error) {
	var ifE, thenE, elseE value.Value
	if operand.Kind == value.KindArray {
		if len(operand.Arr) != 3 {
			return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "$cond array form requires exactly 3 elements")
		}
		ifE, thenE, elseE = operand.Arr[0], operand.Arr[1], operand.Arr[2]
	} else if operand.Kind == value.KindDocument {
		ifE = operand.Doc.Get("if")
		thenE = operand.Doc.Get("then")
		elseE = operand.Doc.Get("else")
	} else {
		return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "$cond requires an array or document operand")
	}
	cond, err := Eval(ifE, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if cond.Truthy() {
		return Eval(thenE, ctx)
	}
	return Eval(elseE, ctx)
}

func evalIfNull(operand value.Value, ctx *Context) (value.Value, error) {
	var raw []value.Value
	if operand.Kind == value.KindArray {
		raw = operand.Arr
	} else {
		raw = []value.Value{operand}
	}
	if len(raw) < 2 {
		return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "$ifNull requires at least 2 operands")
	}
	for _, r := range raw[:len(raw)-1] {
		v, err := Eval(r, ctx)
		if err != nil {
			return value.Value{}, err
		}
		if !nullOrMissing(v) {
			return v, nil
		}
	}
	return Eval(raw[len(raw)-1], ctx)
}

func evalSwitch(op string, operand value.Value, ctx *Context) (value.Value, error) {
	doc, err := operandDoc(op, operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	branches := doc.Get("branches")
	if branches.Kind == value.KindArray {
		for _, b := range branches.Arr {
			if b.Kind != value.KindDocument {
				continue
			}
			caseVal, err := Eval(b.Doc.Get("case"), ctx)
			if err != nil {
				return value.Value{}, err
			}
			if caseVal.Truthy() {
				return Eval(b.Doc.Get("then"), ctx)
			}
		}
	}
	def := doc.Get("default")
	if def.IsMissing() {
		return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "$switch had no matching branch and no default")
	}
	return Eval(def, ctx)
}
