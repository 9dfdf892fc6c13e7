package aggregate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

func doc(pairs ...value.Pair) *value.Document { return value.DocumentFromPairs(pairs...) }

func stageSpec(op string, body value.Value) *value.Document {
	return doc(value.Pair{Key: op, Value: body})
}

func run(t *testing.T, specs []*value.Document, env *Env, docs []*value.Document) []*value.Document {
	t.Helper()
	p, err := BuildPipeline(specs, env)
	require.NoError(t, err)
	out, err := p.Run(context.Background(), docs)
	require.NoError(t, err)
	return out
}

func TestGroupSumLiteralVsFieldTyping(t *testing.T) {
	docs := []*value.Document{
		doc(value.Pair{Key: "_id", Value: value.Int32(1)}, value.Pair{Key: "g", Value: value.String("a")}, value.Pair{Key: "i", Value: value.Int32(2)}),
		doc(value.Pair{Key: "_id", Value: value.Int32(2)}, value.Pair{Key: "g", Value: value.String("a")}, value.Pair{Key: "i", Value: value.Int32(3)}),
		doc(value.Pair{Key: "_id", Value: value.Int32(3)}, value.Pair{Key: "g", Value: value.String("b")}, value.Pair{Key: "i", Value: value.Int32(5)}),
	}
	spec := stageSpec("$group", value.FromDocument(doc(
		value.Pair{Key: "_id", Value: value.String("$g")},
		value.Pair{Key: "c", Value: value.FromDocument(doc(value.Pair{Key: "$sum", Value: value.Int32(1)}))},
		value.Pair{Key: "s", Value: value.FromDocument(doc(value.Pair{Key: "$sum", Value: value.String("$i")}))},
	)))
	out := run(t, []*value.Document{spec}, nil, docs)
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, "a", first.Get("_id").Str)
	assert.Equal(t, value.KindInt32, first.Get("c").Kind)
	assert.EqualValues(t, 2, first.Get("c").I32)
	assert.Equal(t, value.KindDouble, first.Get("s").Kind)
	assert.EqualValues(t, 5, first.Get("s").F64)

	second := out[1]
	assert.Equal(t, "b", second.Get("_id").Str)
	assert.EqualValues(t, 1, second.Get("c").I32)
}

func TestGroupPreservesFirstOccurrenceOrder(t *testing.T) {
	docs := []*value.Document{
		doc(value.Pair{Key: "g", Value: value.String("z")}),
		doc(value.Pair{Key: "g", Value: value.String("a")}),
		doc(value.Pair{Key: "g", Value: value.String("z")}),
		doc(value.Pair{Key: "g", Value: value.String("m")}),
	}
	spec := stageSpec("$group", value.FromDocument(doc(value.Pair{Key: "_id", Value: value.String("$g")})))
	out := run(t, []*value.Document{spec}, nil, docs)
	require.Len(t, out, 3)
	assert.Equal(t, "z", out[0].Get("_id").Str)
	assert.Equal(t, "a", out[1].Get("_id").Str)
	assert.Equal(t, "m", out[2].Get("_id").Str)
}

func TestUnwindIncludeArrayIndexSurvivesSort(t *testing.T) {
	docs := []*value.Document{
		doc(value.Pair{Key: "k", Value: value.Int32(1)}, value.Pair{Key: "tags", Value: value.FromArray([]value.Value{value.String("c"), value.String("a"), value.String("b")})}),
	}
	unwindSpec := stageSpec("$unwind", value.FromDocument(doc(
		value.Pair{Key: "path", Value: value.String("$tags")},
		value.Pair{Key: "includeArrayIndex", Value: value.String("idx")},
	)))
	sortSpec := stageSpec("$sort", value.FromDocument(doc(value.Pair{Key: "tags", Value: value.Int32(1)})))
	out := run(t, []*value.Document{unwindSpec, sortSpec}, nil, docs)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].Get("tags").Str)
	assert.EqualValues(t, 1, out[0].Get("idx").I32)
	assert.Equal(t, "b", out[1].Get("tags").Str)
	assert.EqualValues(t, 2, out[1].Get("idx").I32)
	assert.Equal(t, "c", out[2].Get("tags").Str)
	assert.EqualValues(t, 0, out[2].Get("idx").I32)
}

func TestUnwindPreserveNullAndEmptyArraysCoversThreeShapes(t *testing.T) {
	docs := []*value.Document{
		doc(value.Pair{Key: "k", Value: value.Int32(1)}, value.Pair{Key: "tags", Value: value.FromArray(nil)}),
		doc(value.Pair{Key: "k", Value: value.Int32(2)}),
		doc(value.Pair{Key: "k", Value: value.Int32(3)}, value.Pair{Key: "tags", Value: value.Null()}),
	}
	spec := stageSpec("$unwind", value.FromDocument(doc(
		value.Pair{Key: "path", Value: value.String("$tags")},
		value.Pair{Key: "preserveNullAndEmptyArrays", Value: value.Bool(true)},
	)))
	out := run(t, []*value.Document{spec}, nil, docs)
	require.Len(t, out, 3)
	for _, d := range out {
		assert.Equal(t, value.KindNull, d.Get("tags").Kind)
	}
}

func TestSampleRejectsNonPositiveSize(t *testing.T) {
	spec := stageSpec("$sample", value.FromDocument(doc(value.Pair{Key: "size", Value: value.Int32(0)})))
	_, err := BuildPipeline([]*value.Document{spec}, nil)
	require.Error(t, err)
}

func TestSamplePassesThroughWhenBatchSmallerThanSize(t *testing.T) {
	docs := []*value.Document{doc(value.Pair{Key: "k", Value: value.Int32(1)}), doc(value.Pair{Key: "k", Value: value.Int32(2)})}
	spec := stageSpec("$sample", value.FromDocument(doc(value.Pair{Key: "size", Value: value.Int32(5)})))
	out := run(t, []*value.Document{spec}, nil, docs)
	assert.Len(t, out, 2)
}

func TestSortByCountOrdersDescendingPreservingTieOrder(t *testing.T) {
	docs := []*value.Document{
		doc(value.Pair{Key: "g", Value: value.String("b")}),
		doc(value.Pair{Key: "g", Value: value.String("a")}),
		doc(value.Pair{Key: "g", Value: value.String("a")}),
		doc(value.Pair{Key: "g", Value: value.String("b")}),
		doc(value.Pair{Key: "g", Value: value.String("c")}),
	}
	spec := stageSpec("$sortByCount", value.String("$g"))
	out := run(t, []*value.Document{spec}, nil, docs)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].Get("_id").Str)
	assert.EqualValues(t, 2, out[0].Get("count").I64)
	assert.Equal(t, "b", out[1].Get("_id").Str)
	assert.Equal(t, "c", out[2].Get("_id").Str)
}

func TestFillForwardThenBackward(t *testing.T) {
	docs := []*value.Document{
		doc(value.Pair{Key: "t", Value: value.Int32(1)}, value.Pair{Key: "v", Value: value.Null()}),
		doc(value.Pair{Key: "t", Value: value.Int32(2)}, value.Pair{Key: "v", Value: value.Int32(10)}),
		doc(value.Pair{Key: "t", Value: value.Int32(3)}, value.Pair{Key: "v", Value: value.Null()}),
	}
	spec := stageSpec("$fill", value.FromDocument(doc(
		value.Pair{Key: "sortBy", Value: value.FromDocument(doc(value.Pair{Key: "t", Value: value.Int32(1)}))},
		value.Pair{Key: "output", Value: value.FromDocument(doc(value.Pair{Key: "v", Value: value.FromDocument(doc())}))},
	)))
	out := run(t, []*value.Document{spec}, nil, docs)
	require.Len(t, out, 3)
	assert.EqualValues(t, 10, out[0].Get("v").I32)
	assert.EqualValues(t, 10, out[1].Get("v").I32)
	assert.EqualValues(t, 10, out[2].Get("v").I32)
}

func TestDensifyForwardFillOnly(t *testing.T) {
	docs := []*value.Document{
		doc(value.Pair{Key: "t", Value: value.Int32(1)}, value.Pair{Key: "v", Value: value.Null()}),
		doc(value.Pair{Key: "t", Value: value.Int32(2)}, value.Pair{Key: "v", Value: value.Int32(7)}),
		doc(value.Pair{Key: "t", Value: value.Int32(3)}, value.Pair{Key: "v", Value: value.Null()}),
	}
	spec := stageSpec("$densify", value.FromDocument(doc(
		value.Pair{Key: "output", Value: value.FromDocument(doc(value.Pair{Key: "v", Value: value.FromDocument(doc())}))},
	)))
	out := run(t, []*value.Document{spec}, nil, docs)
	require.Len(t, out, 3)
	byT := map[int32]value.Value{}
	for _, d := range out {
		byT[d.Get("t").I32] = d.Get("v")
	}
	assert.Equal(t, value.KindNull, byT[1].Kind)
	assert.EqualValues(t, 7, byT[2].I32)
	assert.EqualValues(t, 7, byT[3].I32)
}

func TestGeoNearMustBeFirstStage(t *testing.T) {
	matchSpec := stageSpec("$match", value.FromDocument(doc()))
	geoSpec := stageSpec("$geoNear", value.FromDocument(doc(
		value.Pair{Key: "near", Value: value.FromDocument(doc(
			value.Pair{Key: "coordinates", Value: value.FromArray([]value.Value{value.Double(0), value.Double(0)})},
		))},
		value.Pair{Key: "distanceField", Value: value.String("dist")},
	)))
	_, err := BuildPipeline([]*value.Document{matchSpec, geoSpec}, nil)
	require.Error(t, err)
	code, msg := mongoerr.As(err)
	assert.Equal(t, mongoerr.CodeGeoNearNotFirst, code)
	assert.Contains(t, msg, "$geoNear")
}

func TestGeoNearOrdersByAscendingDistance(t *testing.T) {
	docs := []*value.Document{
		doc(value.Pair{Key: "name", Value: value.String("far")}, value.Pair{Key: "location", Value: value.FromDocument(doc(
			value.Pair{Key: "coordinates", Value: value.FromArray([]value.Value{value.Double(10), value.Double(10)})},
		))}),
		doc(value.Pair{Key: "name", Value: value.String("near")}, value.Pair{Key: "location", Value: value.FromDocument(doc(
			value.Pair{Key: "coordinates", Value: value.FromArray([]value.Value{value.Double(0.1), value.Double(0.1)})},
		))}),
	}
	geoSpec := stageSpec("$geoNear", value.FromDocument(doc(
		value.Pair{Key: "near", Value: value.FromDocument(doc(
			value.Pair{Key: "coordinates", Value: value.FromArray([]value.Value{value.Double(0), value.Double(0)})},
		))},
		value.Pair{Key: "distanceField", Value: value.String("dist")},
	)))
	out := run(t, []*value.Document{geoSpec}, nil, docs)
	require.Len(t, out, 2)
	assert.Equal(t, "near", out[0].Get("name").Str)
	assert.Equal(t, "far", out[1].Get("name").Str)
}

func TestReplaceRootRejectsNonDocumentResult(t *testing.T) {
	docs := []*value.Document{doc(value.Pair{Key: "x", Value: value.Int32(1)})}
	spec := stageSpec("$replaceWith", value.String("$x"))
	p, err := BuildPipeline([]*value.Document{spec}, nil)
	require.NoError(t, err)
	_, err = p.Run(context.Background(), docs)
	require.Error(t, err)
}

type fakeLookupSource struct {
	docs map[string][]*value.Document
}

func (f *fakeLookupSource) FetchAll(_ context.Context, db, coll string) ([]*value.Document, error) {
	return f.docs[db+"."+coll], nil
}

func TestLookupHashJoin(t *testing.T) {
	local := []*value.Document{
		doc(value.Pair{Key: "_id", Value: value.Int32(1)}, value.Pair{Key: "ref", Value: value.Int32(100)}),
		doc(value.Pair{Key: "_id", Value: value.Int32(2)}, value.Pair{Key: "ref", Value: value.Int32(200)}),
	}
	foreign := []*value.Document{
		doc(value.Pair{Key: "key", Value: value.Int32(100)}, value.Pair{Key: "label", Value: value.String("a")}),
		doc(value.Pair{Key: "key", Value: value.Int32(100)}, value.Pair{Key: "label", Value: value.String("b")}),
	}
	env := &Env{DB: "test", Lookup: &fakeLookupSource{docs: map[string][]*value.Document{"test.others": foreign}}}
	spec := stageSpec("$lookup", value.FromDocument(doc(
		value.Pair{Key: "from", Value: value.String("others")},
		value.Pair{Key: "localField", Value: value.String("ref")},
		value.Pair{Key: "foreignField", Value: value.String("key")},
		value.Pair{Key: "as", Value: value.String("matched")},
	)))
	out := run(t, []*value.Document{spec}, env, local)
	require.Len(t, out, 2)
	assert.Len(t, out[0].Get("matched").Arr, 2)
	assert.Len(t, out[1].Get("matched").Arr, 0)
}

func TestClassifyPushdownFoldsMatchSortProjectSkipLimit(t *testing.T) {
	matchSpec := stageSpec("$match", value.FromDocument(doc(value.Pair{Key: "a", Value: value.Int32(1)})))
	sortSpec := stageSpec("$sort", value.FromDocument(doc(value.Pair{Key: "b", Value: value.Int32(-1)})))
	projectSpec := stageSpec("$project", value.FromDocument(doc(value.Pair{Key: "a", Value: value.Int32(1)})))
	skipSpec := stageSpec("$skip", value.Int64(5))
	limitSpec := stageSpec("$limit", value.Int64(10))
	groupSpec := stageSpec("$group", value.FromDocument(doc(value.Pair{Key: "_id", Value: value.String("$a")})))

	pd, err := ClassifyPushdown([]*value.Document{matchSpec, sortSpec, projectSpec, skipSpec, limitSpec, groupSpec})
	require.NoError(t, err)
	assert.Equal(t, 5, pd.Consumed)
	assert.EqualValues(t, 5, pd.Skip)
	assert.True(t, pd.HasLimit)
	assert.EqualValues(t, 10, pd.Limit)
	assert.Contains(t, pd.SortSQL, "DESC")
	require.NotNil(t, pd.Projection)
	assert.Contains(t, pd.Projection.Include, "a")
}

func TestClassifyPushdownStopsAtComputedProjection(t *testing.T) {
	matchSpec := stageSpec("$match", value.FromDocument(doc()))
	computedProject := stageSpec("$project", value.FromDocument(doc(
		value.Pair{Key: "s", Value: value.FromDocument(doc(value.Pair{Key: "$add", Value: value.FromArray([]value.Value{value.Int32(1), value.Int32(2)})}))},
	)))
	pd, err := ClassifyPushdown([]*value.Document{matchSpec, computedProject})
	require.NoError(t, err)
	assert.Equal(t, 1, pd.Consumed)
}
