package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fcoury/oxidedb-sub001/internal/value"
)

func insertDoc(t *testing.T, dc *DispatchContext, coll string, doc *value.Document) {
	t.Helper()
	cmd := value.NewDocument()
	cmd.Set("insert", value.String(coll))
	cmd.Set("documents", value.FromArray([]value.Value{value.FromDocument(doc)}))
	reply, err := handleInsert(context.Background(), dc, "testdb", cmd)
	require.NoError(t, err)
	ok, _ := reply.Get("ok").AsFloat64()
	require.Equal(t, float64(1), ok)
}

func TestHandleInsertInsertsDocumentsAndCountsThem(t *testing.T) {
	dc := testDispatchContext(t)
	ctx := context.Background()
	require.NoError(t, dc.Store.EnsureCollection(ctx, "testdb", "widgets"))
	t.Cleanup(func() { _ = dc.Store.DropDatabase(ctx, "testdb") })

	cmd := value.NewDocument()
	cmd.Set("insert", value.String("widgets"))
	d1 := value.NewDocument()
	d1.Set("name", value.String("bolt"))
	d2 := value.NewDocument()
	d2.Set("name", value.String("nut"))
	cmd.Set("documents", value.FromArray([]value.Value{value.FromDocument(d1), value.FromDocument(d2)}))

	reply, err := handleInsert(ctx, dc, "testdb", cmd)
	require.NoError(t, err)
	assert.Equal(t, int32(2), reply.Get("n").I32)
	assert.False(t, reply.Has("writeErrors"))
}

func TestHandleInsertOrderedStopsAtFirstBadDocument(t *testing.T) {
	dc := testDispatchContext(t)
	ctx := context.Background()
	require.NoError(t, dc.Store.EnsureCollection(ctx, "testdb", "widgets"))
	t.Cleanup(func() { _ = dc.Store.DropDatabase(ctx, "testdb") })

	cmd := value.NewDocument()
	cmd.Set("insert", value.String("widgets"))
	cmd.Set("documents", value.FromArray([]value.Value{value.Int32(1)}))

	reply, err := handleInsert(ctx, dc, "testdb", cmd)
	require.NoError(t, err)
	assert.Equal(t, int32(0), reply.Get("n").I32)
	assert.Len(t, reply.Get("writeErrors").Arr, 1)
}

func TestHandleUpdateMatchesAndModifies(t *testing.T) {
	dc := testDispatchContext(t)
	ctx := context.Background()
	require.NoError(t, dc.Store.EnsureCollection(ctx, "testdb", "widgets"))
	t.Cleanup(func() { _ = dc.Store.DropDatabase(ctx, "testdb") })

	doc := value.NewDocument()
	doc.Set("name", value.String("bolt"))
	doc.Set("qty", value.Int32(1))
	insertDoc(t, dc, "widgets", doc)

	cmd := value.NewDocument()
	cmd.Set("update", value.String("widgets"))
	item := value.NewDocument()
	q := value.NewDocument()
	q.Set("name", value.String("bolt"))
	item.Set("q", value.FromDocument(q))
	u := value.NewDocument()
	set := value.NewDocument()
	set.Set("qty", value.Int32(5))
	u.Set("$set", value.FromDocument(set))
	item.Set("u", value.FromDocument(u))
	cmd.Set("updates", value.FromArray([]value.Value{value.FromDocument(item)}))

	reply, err := handleUpdate(ctx, dc, "testdb", cmd)
	require.NoError(t, err)
	assert.Equal(t, int32(1), reply.Get("n").I32)
	assert.Equal(t, int32(1), reply.Get("nModified").I32)
}

func TestHandleUpdateUpsertInsertsWhenNoMatch(t *testing.T) {
	dc := testDispatchContext(t)
	ctx := context.Background()
	require.NoError(t, dc.Store.EnsureCollection(ctx, "testdb", "widgets"))
	t.Cleanup(func() { _ = dc.Store.DropDatabase(ctx, "testdb") })

	cmd := value.NewDocument()
	cmd.Set("update", value.String("widgets"))
	item := value.NewDocument()
	q := value.NewDocument()
	q.Set("name", value.String("gizmo"))
	item.Set("q", value.FromDocument(q))
	u := value.NewDocument()
	set := value.NewDocument()
	set.Set("qty", value.Int32(9))
	u.Set("$set", value.FromDocument(set))
	item.Set("u", value.FromDocument(u))
	item.Set("upsert", value.Bool(true))
	cmd.Set("updates", value.FromArray([]value.Value{value.FromDocument(item)}))

	reply, err := handleUpdate(ctx, dc, "testdb", cmd)
	require.NoError(t, err)
	assert.Equal(t, int32(1), reply.Get("n").I32)
	assert.Len(t, reply.Get("upserted").Arr, 1)
}

func TestHandleDeleteRemovesMatchingDocuments(t *testing.T) {
	dc := testDispatchContext(t)
	ctx := context.Background()
	require.NoError(t, dc.Store.EnsureCollection(ctx, "testdb", "widgets"))
	t.Cleanup(func() { _ = dc.Store.DropDatabase(ctx, "testdb") })

	doc := value.NewDocument()
	doc.Set("name", value.String("bolt"))
	insertDoc(t, dc, "widgets", doc)

	cmd := value.NewDocument()
	cmd.Set("delete", value.String("widgets"))
	item := value.NewDocument()
	q := value.NewDocument()
	q.Set("name", value.String("bolt"))
	item.Set("q", value.FromDocument(q))
	item.Set("limit", value.Int32(1))
	cmd.Set("deletes", value.FromArray([]value.Value{value.FromDocument(item)}))

	reply, err := handleDelete(ctx, dc, "testdb", cmd)
	require.NoError(t, err)
	assert.Equal(t, int32(1), reply.Get("n").I32)
}

func TestHandleFindAndModifyReturnsNewDocumentWhenRequested(t *testing.T) {
	dc := testDispatchContext(t)
	ctx := context.Background()
	require.NoError(t, dc.Store.EnsureCollection(ctx, "testdb", "widgets"))
	t.Cleanup(func() { _ = dc.Store.DropDatabase(ctx, "testdb") })

	doc := value.NewDocument()
	doc.Set("name", value.String("bolt"))
	doc.Set("qty", value.Int32(1))
	insertDoc(t, dc, "widgets", doc)

	cmd := value.NewDocument()
	cmd.Set("findAndModify", value.String("widgets"))
	q := value.NewDocument()
	q.Set("name", value.String("bolt"))
	cmd.Set("query", value.FromDocument(q))
	u := value.NewDocument()
	set := value.NewDocument()
	set.Set("qty", value.Int32(99))
	u.Set("$set", value.FromDocument(set))
	cmd.Set("update", value.FromDocument(u))
	cmd.Set("new", value.Bool(true))

	reply, err := handleFindAndModify(ctx, dc, "testdb", cmd)
	require.NoError(t, err)
	leo := reply.Get("lastErrorObject").Doc
	require.NotNil(t, leo)
	assert.Equal(t, int32(1), leo.Get("n").I32)
	returned := reply.Get("value").Doc
	require.NotNil(t, returned)
	assert.Equal(t, int32(99), returned.Get("qty").I32)
}
