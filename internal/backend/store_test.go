package backend

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("OXIDEDB_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("OXIDEDB_TEST_POSTGRES_URL not set, skipping backend integration test")
	}
	s, err := Open(context.Background(), url, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestEnsureCollectionIsIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureCollection(ctx, "testdb", "widgets"))
	require.NoError(t, s.EnsureCollection(ctx, "testdb", "widgets"))
	t.Cleanup(func() { _ = s.DropDatabase(ctx, "testdb") })

	colls, err := s.ListCollections(ctx, "testdb")
	require.NoError(t, err)
	require.Contains(t, colls, "widgets")
}

func TestInsertOneStrictRejectsDuplicateID(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, "testdb", "dupes"))
	t.Cleanup(func() { _ = s.DropDatabase(ctx, "testdb") })

	id := []byte("\x01\x02\x03")
	require.NoError(t, s.InsertOneStrict(ctx, "testdb", "dupes", id, []byte("bson"), `{"a":1}`))

	err := s.InsertOneStrict(ctx, "testdb", "dupes", id, []byte("bson"), `{"a":1}`)
	require.Error(t, err)
}

func TestCreateIndexRejectsDuplicateName(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, "testdb", "idxed"))
	t.Cleanup(func() { _ = s.DropDatabase(ctx, "testdb") })

	spec := IndexSpec{Name: "age_1", Keys: []IndexKey{{Path: "age", Direction: 1}}}
	require.NoError(t, s.CreateIndex(ctx, "testdb", "idxed", spec))
	require.Error(t, s.CreateIndex(ctx, "testdb", "idxed", spec))
}
