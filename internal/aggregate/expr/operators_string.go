package expr

import (
	"strings"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

func evalConcat(operand value.Value, ctx *Context) (value.Value, error) {
	operands, err := evalOperands(operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	var b strings.Builder
	for _, o := range operands {
		if nullOrMissing(o) {
			return value.Null(), nil
		}
		if o.Kind != value.KindString {
			return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "$concat requires string operands")
		}
		b.WriteString(o.Str)
	}
	return value.String(b.String()), nil
}

func evalSubstr(operand value.Value, ctx *Context) (value.Value, error) {
	operands, err := evalOperands(operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if len(operands) != 3 {
		return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "$substr requires exactly 3 operands")
	}
	if operands[0].Kind != value.KindString {
		return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "$substr requires a string operand")
	}
	s := operands[0].Str
	start, _ := operands[1].AsFloat64()
	length, _ := operands[2].AsFloat64()
	runes := []rune(s)
	si := clampIndex(int(start), len(runes))
	li := int(length)
	if li < 0 {
		li = len(runes) - si
	}
	ei := clampIndex(si+li, len(runes))
	if ei < si {
		ei = si
	}
	return value.String(string(runes[si:ei])), nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func evalToLower(operand value.Value, ctx *Context) (value.Value, error) {
	v, err := evalOne("$toLower", operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if nullOrMissing(v) {
		return value.String(""), nil
	}
	if v.Kind != value.KindString {
		return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "$toLower requires a string operand")
	}
	return value.String(strings.ToLower(v.Str)), nil
}

func evalToUpper(operand value.Value, ctx *Context) (value.Value, error) {
	v, err := evalOne("$toUpper", operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if nullOrMissing(v) {
		return value.String(""), nil
	}
	if v.Kind != value.KindString {
		return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "$toUpper requires a string operand")
	}
	return value.String(strings.ToUpper(v.Str)), nil
}

func evalSplit(operand value.Value, ctx *Context) (value.Value, error) {
	operands, err := evalOperands(operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if len(operands) != 2 {
		return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "$split requires exactly 2 operands")
	}
	if operands[0].Kind != value.KindString || operands[1].Kind != value.KindString {
		return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "$split requires string operands")
	}
	parts := strings.Split(operands[0].Str, operands[1].Str)
	out := make([]value.Value, len(parts))
	for i, p := range parts {
		out[i] = value.String(p)
	}
	return value.FromArray(out), nil
}
