package value

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// FromBSON converts a decoded bson.D into a Document, recursively.
func FromBSON(d bson.D) *Document {
	doc := NewDocument()
	for _, e := range d {
		doc.Set(e.Key, FromBSONValue(e.Value))
	}
	return doc
}

// FromBSONValue converts a single decoded Go value (as produced by
// bson.Unmarshal into `any`, or a bson.RawValue's .Interface()) into a
// Value.
func FromBSONValue(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case bson.Undefined:
		return Undefined()
	case bson.MinKey:
		return MinKey()
	case bson.MaxKey:
		return MaxKey()
	case int32:
		return Int32(x)
	case int64:
		return Int64(x)
	case int:
		return Int64(int64(x))
	case float64:
		return Double(x)
	case bson.Decimal128:
		return Value{Kind: KindDecimal128, Dec128: x}
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case bson.ObjectID:
		return ObjectID(x)
	case bson.DateTime:
		return DateTime(int64(x))
	case bson.Timestamp:
		return Value{Kind: KindTimestamp, Ts: x}
	case bson.Regex:
		return Value{Kind: KindRegex, Regex: x}
	case bson.Binary:
		return Value{Kind: KindBinary, Bin: Binary{Subtype: x.Subtype, Data: x.Data}}
	case bson.DBPointer:
		return Value{Kind: KindDBPointer, DBPtr: DBPointer{DB: x.DB, ID: x.ObjectID}}
	case bson.JavaScript:
		return Value{Kind: KindJavaScript, Str: string(x)}
	case bson.Symbol:
		return Value{Kind: KindSymbol, Str: string(x)}
	case bson.CodeWithScope:
		return Value{Kind: KindCodeWithScope, CWS: CodeWithScope{Code: string(x.Code), Scope: FromBSON(docOf(x.Scope))}}
	case bson.D:
		return FromDocument(FromBSON(x))
	case bson.M:
		return FromDocument(fromBSONM(x))
	case bson.A:
		arr := make([]Value, len(x))
		for i, e := range x {
			arr[i] = FromBSONValue(e)
		}
		return FromArray(arr)
	case []any:
		arr := make([]Value, len(x))
		for i, e := range x {
			arr[i] = FromBSONValue(e)
		}
		return FromArray(arr)
	default:
		// Unsupported/unknown driver type: best-effort string fallback
		// rather than silently dropping the field.
		return String(fmt.Sprintf("%v", x))
	}
}

func docOf(d bson.D) bson.D { return d }

func fromBSONM(m bson.M) *Document {
	doc := NewDocument()
	for k, v := range m {
		doc.Set(k, FromBSONValue(v))
	}
	return doc
}

// ToBSON converts a Document back to bson.D, recursively, for wire
// encoding.
func ToBSON(d *Document) bson.D {
	if d == nil {
		return bson.D{}
	}
	out := make(bson.D, 0, d.Len())
	d.Range(func(k string, v Value) bool {
		out = append(out, bson.E{Key: k, Value: ToBSONValue(v)})
		return true
	})
	return out
}

// ToBSONValue converts a single Value into a representation the driver's
// bson package can marshal.
func ToBSONValue(v Value) any {
	switch v.Kind {
	case KindInvalid, KindNull:
		return nil
	case KindUndefined:
		return bson.Undefined{}
	case KindMinKey:
		return bson.MinKey{}
	case KindMaxKey:
		return bson.MaxKey{}
	case KindInt32:
		return v.I32
	case KindInt64:
		return v.I64
	case KindDouble:
		return v.F64
	case KindDecimal128:
		return v.Dec128
	case KindString:
		return v.Str
	case KindBoolean:
		return v.Bool
	case KindObjectID:
		return v.OID
	case KindDateTime:
		return bson.DateTime(v.DateTimeMS)
	case KindTimestamp:
		return v.Ts
	case KindRegex:
		return v.Regex
	case KindBinary:
		return bson.Binary{Subtype: v.Bin.Subtype, Data: v.Bin.Data}
	case KindDBPointer:
		return bson.DBPointer{DB: v.DBPtr.DB, ObjectID: v.DBPtr.ID}
	case KindJavaScript:
		return bson.JavaScript(v.Str)
	case KindSymbol:
		return bson.Symbol(v.Str)
	case KindCodeWithScope:
		return bson.CodeWithScope{Code: bson.JavaScript(v.CWS.Code), Scope: ToBSON(v.CWS.Scope)}
	case KindDocument:
		return ToBSON(v.Doc)
	case KindArray:
		arr := make(bson.A, len(v.Arr))
		for i, e := range v.Arr {
			arr[i] = ToBSONValue(e)
		}
		return arr
	default:
		return nil
	}
}

// MarshalDocument encodes a Document as raw BSON bytes.
func MarshalDocument(d *Document) ([]byte, error) {
	return bson.Marshal(ToBSON(d))
}

// UnmarshalDocument decodes raw BSON bytes into a Document.
func UnmarshalDocument(raw []byte) (*Document, error) {
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return FromBSON(d), nil
}
