package expr

import (
	"fmt"
	"time"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

func evalOne(op string, operand value.Value, ctx *Context) (value.Value, error) {
	operands, err := evalOperands(operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if len(operands) != 1 {
		return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "%s requires exactly 1 operand", op)
	}
	return operands[0], nil
}

// typeName is the BSON type name string $type returns, matching Mongo's
// own `bsonType` vocabulary.
func typeName(k value.Kind) string {
	switch k {
	case value.KindInvalid:
		return "missing"
	case value.KindMinKey:
		return "minKey"
	case value.KindMaxKey:
		return "maxKey"
	case value.KindNull:
		return "null"
	case value.KindUndefined:
		return "undefined"
	case value.KindInt32:
		return "int"
	case value.KindInt64:
		return "long"
	case value.KindDouble:
		return "double"
	case value.KindDecimal128:
		return "decimal"
	case value.KindString:
		return "string"
	case value.KindDocument:
		return "object"
	case value.KindArray:
		return "array"
	case value.KindBinary:
		return "binData"
	case value.KindObjectID:
		return "objectId"
	case value.KindBoolean:
		return "bool"
	case value.KindDateTime:
		return "date"
	case value.KindTimestamp:
		return "timestamp"
	case value.KindRegex:
		return "regex"
	case value.KindDBPointer:
		return "dbPointer"
	case value.KindJavaScript:
		return "javascript"
	case value.KindSymbol:
		return "symbol"
	case value.KindCodeWithScope:
		return "javascriptWithScope"
	default:
		return "unknown"
	}
}

func evalType(operand value.Value, ctx *Context) (value.Value, error) {
	v, err := evalOne("$type", operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	return value.String(typeName(v.Kind)), nil
}

func evalToString(operand value.Value, ctx *Context) (value.Value, error) {
	v, err := evalOne("$toString", operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if nullOrMissing(v) {
		return value.Null(), nil
	}
	return value.String(stringify(v)), nil
}

func stringify(v value.Value) string {
	switch v.Kind {
	case value.KindString:
		return v.Str
	case value.KindInt32:
		return fmt.Sprintf("%d", v.I32)
	case value.KindInt64:
		return fmt.Sprintf("%d", v.I64)
	case value.KindDouble:
		return fmt.Sprintf("%g", v.F64)
	case value.KindBoolean:
		return fmt.Sprintf("%t", v.Bool)
	case value.KindDateTime:
		return time.UnixMilli(v.DateTimeMS).UTC().Format(time.RFC3339)
	case value.KindObjectID:
		return v.OID.Hex()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func evalToInt(operand value.Value, ctx *Context) (value.Value, error) {
	v, err := evalOne("$toInt", operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if nullOrMissing(v) {
		return value.Null(), nil
	}
	f, ok := v.AsFloat64()
	if !ok {
		return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "$toInt requires a numeric operand")
	}
	return value.Int32(int32(f)), nil
}

func evalToLong(operand value.Value, ctx *Context) (value.Value, error) {
	v, err := evalOne("$toLong", operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if nullOrMissing(v) {
		return value.Null(), nil
	}
	f, ok := v.AsFloat64()
	if !ok {
		return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "$toLong requires a numeric operand")
	}
	return value.Int64(int64(f)), nil
}

func evalToDouble(operand value.Value, ctx *Context) (value.Value, error) {
	v, err := evalOne("$toDouble", operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if nullOrMissing(v) {
		return value.Null(), nil
	}
	f, ok := v.AsFloat64()
	if !ok {
		return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "$toDouble requires a numeric operand")
	}
	return value.Double(f), nil
}

func evalToBool(operand value.Value, ctx *Context) (value.Value, error) {
	v, err := evalOne("$toBool", operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	return value.Bool(v.Truthy()), nil
}

func evalToDate(operand value.Value, ctx *Context) (value.Value, error) {
	v, err := evalOne("$toDate", operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	switch v.Kind {
	case value.KindDateTime:
		return v, nil
	case value.KindString:
		t, perr := time.Parse(time.RFC3339, v.Str)
		if perr != nil {
			return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "$toDate could not parse %q", v.Str)
		}
		return value.DateTime(t.UnixMilli()), nil
	default:
		return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "$toDate requires a date or ISO-8601 string operand")
	}
}
