package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fcoury/oxidedb-sub001/internal/value"
)

func doc(pairs ...value.Pair) *value.Document { return value.DocumentFromPairs(pairs...) }

func TestEvalFieldReferenceAndAdd(t *testing.T) {
	ctx := NewContext(doc(value.Pair{Key: "v", Value: value.Int32(2)}))
	add := value.FromDocument(doc(value.Pair{Key: "$add", Value: value.FromArray([]value.Value{value.String("$v"), value.Int32(3)})}))
	v, err := Eval(add, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.I64)
}

func TestEvalToStringAndIfNull(t *testing.T) {
	ctxA := NewContext(doc(value.Pair{Key: "v", Value: value.Int32(2)}))
	s := value.FromDocument(doc(value.Pair{Key: "$toString", Value: value.String("$v")}))
	v, err := Eval(s, ctxA)
	require.NoError(t, err)
	assert.Equal(t, "2", v.Str)

	ifNull := value.FromDocument(doc(value.Pair{Key: "$ifNull", Value: value.FromArray([]value.Value{value.String("$x"), value.String("fb")})}))
	v, err = Eval(ifNull, ctxA)
	require.NoError(t, err)
	assert.Equal(t, "fb", v.Str)

	ctxB := NewContext(doc(value.Pair{Key: "x", Value: value.String("present")}))
	v, err = Eval(ifNull, ctxB)
	require.NoError(t, err)
	assert.Equal(t, "present", v.Str)
}

func TestEvalCondAndCompare(t *testing.T) {
	ctx := NewContext(doc(value.Pair{Key: "v", Value: value.Int32(10)}))
	cond := value.FromDocument(doc(value.Pair{Key: "$cond", Value: value.FromArray([]value.Value{
		value.FromDocument(doc(value.Pair{Key: "$gte", Value: value.FromArray([]value.Value{value.String("$v"), value.Int32(5)})})),
		value.String("big"),
		value.String("small"),
	})}))
	v, err := Eval(cond, ctx)
	require.NoError(t, err)
	assert.Equal(t, "big", v.Str)
}

func TestEvalMapFilterReduce(t *testing.T) {
	ctx := NewContext(doc(value.Pair{Key: "arr", Value: value.FromArray([]value.Value{value.Int32(1), value.Int32(2), value.Int32(3)})}))
	mapExpr := value.FromDocument(doc(value.Pair{Key: "$map", Value: value.FromDocument(doc(
		value.Pair{Key: "input", Value: value.String("$arr")},
		value.Pair{Key: "in", Value: value.FromDocument(doc(value.Pair{Key: "$multiply", Value: value.FromArray([]value.Value{value.String("$$this"), value.Int32(2)})}))},
	))}))
	v, err := Eval(mapExpr, ctx)
	require.NoError(t, err)
	require.Len(t, v.Arr, 3)
	assert.Equal(t, int64(2), v.Arr[0].I64)
	assert.Equal(t, int64(6), v.Arr[2].I64)

	reduceExpr := value.FromDocument(doc(value.Pair{Key: "$reduce", Value: value.FromDocument(doc(
		value.Pair{Key: "input", Value: value.String("$arr")},
		value.Pair{Key: "initialValue", Value: value.Int32(0)},
		value.Pair{Key: "in", Value: value.FromDocument(doc(value.Pair{Key: "$add", Value: value.FromArray([]value.Value{value.String("$$value"), value.String("$$this")})}))},
	))}))
	v, err = Eval(reduceExpr, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), v.I64)
}

func TestEvalRemoveSentinelDropsField(t *testing.T) {
	ctx := NewContext(doc())
	projected := value.FromDocument(doc(value.Pair{Key: "kept", Value: value.Int32(1)}, value.Pair{Key: "dropped", Value: value.String("$$REMOVE")}))
	v, err := Eval(projected, ctx)
	require.NoError(t, err)
	assert.True(t, v.Doc.Has("kept"))
	assert.False(t, v.Doc.Has("dropped"))
}
