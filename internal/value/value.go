// Package value implements the canonical document value model: the closed
// tagged union of BSON value types, ordered documents, and the comparison
// relation used by sorts, index keys, and group-key equality.
package value

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Kind identifies which member of the tagged union a Value holds.
type Kind int

const (
	KindInvalid Kind = iota
	KindMinKey
	KindNull
	KindInt32
	KindInt64
	KindDouble
	KindDecimal128
	KindString
	KindDocument
	KindArray
	KindBinary
	KindObjectID
	KindBoolean
	KindDateTime
	KindTimestamp
	KindRegex
	KindDBPointer
	KindJavaScript
	KindSymbol
	KindCodeWithScope
	KindUndefined
	KindMaxKey
)

// Binary is the BSON binary subtype + payload.
type Binary struct {
	Subtype byte
	Data    []byte
}

// DBPointer is the deprecated BSON dbpointer value.
type DBPointer struct {
	DB  string
	ID  bson.ObjectID
}

// CodeWithScope pairs JavaScript source with a scope document.
type CodeWithScope struct {
	Code  string
	Scope *Document
}

// Value is a single document value drawn from the closed BSON type union.
// Only the field(s) matching Kind are meaningful.
type Value struct {
	Kind Kind

	I32        int32
	I64        int64
	F64        float64
	Dec128     bson.Decimal128
	Str        string // String, JavaScript, Symbol
	Bin        Binary
	OID        bson.ObjectID
	Bool       bool
	DateTimeMS int64 // milliseconds since epoch
	Ts         bson.Timestamp
	Regex      bson.Regex
	DBPtr      DBPointer
	CWS        CodeWithScope
	Doc        *Document
	Arr        []Value
}

func Null() Value      { return Value{Kind: KindNull} }
func Undefined() Value { return Value{Kind: KindUndefined} }
func MinKey() Value    { return Value{Kind: KindMinKey} }
func MaxKey() Value    { return Value{Kind: KindMaxKey} }

func Int32(v int32) Value   { return Value{Kind: KindInt32, I32: v} }
func Int64(v int64) Value   { return Value{Kind: KindInt64, I64: v} }
func Double(v float64) Value { return Value{Kind: KindDouble, F64: v} }
func String(v string) Value { return Value{Kind: KindString, Str: v} }
func Bool(v bool) Value     { return Value{Kind: KindBoolean, Bool: v} }
func ObjectID(v bson.ObjectID) Value {
	return Value{Kind: KindObjectID, OID: v}
}
func DateTime(ms int64) Value { return Value{Kind: KindDateTime, DateTimeMS: ms} }
func FromDocument(d *Document) Value {
	return Value{Kind: KindDocument, Doc: d}
}
func FromArray(a []Value) Value { return Value{Kind: KindArray, Arr: a} }

// IsMissing reports whether v represents "field not present" -- the value
// model uses the zero Value (KindInvalid) for this, distinct from KindNull.
func (v Value) IsMissing() bool { return v.Kind == KindInvalid }

// IsNumeric reports whether v is one of the four numeric kinds.
func (v Value) IsNumeric() bool {
	switch v.Kind {
	case KindInt32, KindInt64, KindDouble, KindDecimal128:
		return true
	default:
		return false
	}
}

// AsFloat64 coerces a numeric value to float64. Non-numeric values return
// (0, false).
func (v Value) AsFloat64() (float64, bool) {
	switch v.Kind {
	case KindInt32:
		return float64(v.I32), true
	case KindInt64:
		return float64(v.I64), true
	case KindDouble:
		return v.F64, true
	case KindDecimal128:
		f, ok := decimal128ToFloat(v.Dec128)
		return f, ok
	default:
		return 0, false
	}
}

// Truthy implements MongoDB's notion of truthiness for $cond/$filter/etc:
// everything except false, null, undefined, and missing is truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindInvalid, KindNull, KindUndefined:
		return false
	case KindBoolean:
		return v.Bool
	default:
		return true
	}
}
