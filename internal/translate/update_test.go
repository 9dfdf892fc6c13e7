package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fcoury/oxidedb-sub001/internal/value"
)

func TestApplyUpdateSetAndInc(t *testing.T) {
	doc := docFromPairs(
		value.Pair{Key: "_id", Value: value.Int32(1)},
		value.Pair{Key: "count", Value: value.Int32(5)},
	)
	update := docFromPairs(
		value.Pair{Key: "$set", Value: value.FromDocument(docFromPairs(value.Pair{Key: "name", Value: value.String("x")}))},
		value.Pair{Key: "$inc", Value: value.FromDocument(docFromPairs(value.Pair{Key: "count", Value: value.Int32(3)}))},
	)
	out, err := ApplyUpdate(doc, update)
	require.NoError(t, err)
	assert.Equal(t, "x", out.Get("name").Str)
	assert.Equal(t, int64(8), out.Get("count").I64)
}

func TestApplyUpdateReplacementKeepsID(t *testing.T) {
	doc := docFromPairs(value.Pair{Key: "_id", Value: value.Int32(1)}, value.Pair{Key: "a", Value: value.Int32(1)})
	replacement := docFromPairs(value.Pair{Key: "b", Value: value.Int32(2)})
	out, err := ApplyUpdate(doc, replacement)
	require.NoError(t, err)
	assert.Equal(t, int32(1), out.Get("_id").I32)
	assert.True(t, out.Get("a").IsMissing())
	assert.Equal(t, int32(2), out.Get("b").I32)
}

func TestApplyUpdateRenameCollisionSelfTarget(t *testing.T) {
	doc := docFromPairs(value.Pair{Key: "_id", Value: value.String("x")}, value.Pair{Key: "a", Value: value.FromDocument(docFromPairs(value.Pair{Key: "b", Value: value.Int32(1)}))}, value.Pair{Key: "c", Value: value.Int32(2)})

	rename1 := docFromPairs(value.Pair{Key: "$rename", Value: value.FromDocument(docFromPairs(value.Pair{Key: "a", Value: value.String("a")}))})
	_, err := ApplyUpdate(doc, rename1)
	require.Error(t, err)

	rename2 := docFromPairs(value.Pair{Key: "$rename", Value: value.FromDocument(docFromPairs(value.Pair{Key: "a", Value: value.String("a.b")}))})
	_, err = ApplyUpdate(doc, rename2)
	require.Error(t, err)

	rename3 := docFromPairs(value.Pair{Key: "$rename", Value: value.FromDocument(docFromPairs(
		value.Pair{Key: "a", Value: value.String("z")},
		value.Pair{Key: "c", Value: value.String("z")},
	))})
	_, err = ApplyUpdate(doc, rename3)
	require.Error(t, err)
}

func TestApplyUpdatePushAndPull(t *testing.T) {
	doc := docFromPairs(value.Pair{Key: "tags", Value: value.FromArray([]value.Value{value.String("a"), value.String("b")})})
	push := docFromPairs(value.Pair{Key: "$push", Value: value.FromDocument(docFromPairs(value.Pair{Key: "tags", Value: value.String("c")}))})
	out, err := ApplyUpdate(doc, push)
	require.NoError(t, err)
	assert.Len(t, out.Get("tags").Arr, 3)

	pull := docFromPairs(value.Pair{Key: "$pull", Value: value.FromDocument(docFromPairs(value.Pair{Key: "tags", Value: value.String("a")}))})
	out, err = ApplyUpdate(out, pull)
	require.NoError(t, err)
	assert.Len(t, out.Get("tags").Arr, 2)
}
