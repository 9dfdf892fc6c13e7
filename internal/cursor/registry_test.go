package cursor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

func docs(n int) []*value.Document {
	out := make([]*value.Document, n)
	for i := range out {
		out[i] = value.DocumentFromPairs(value.Pair{Key: "_id", Value: value.Int32(int32(i))})
	}
	return out
}

func TestOpenAndGetMoreAdvancesBatches(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	c := r.Open("sess1", "db", "coll", docs(5), 2)
	require.NotZero(t, c.ID)

	_, batch, err := r.GetMore("sess1", c.ID)
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	_, batch, err = r.GetMore("sess1", c.ID)
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	_, batch, err = r.GetMore("sess1", c.ID)
	require.NoError(t, err)
	assert.Len(t, batch, 1)
	assert.Equal(t, 0, r.Len())
}

func TestGetMoreFromOtherSessionIsCursorNotFound(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	c := r.Open("sess1", "db", "coll", docs(3), 1)

	_, _, err := r.GetMore("sess2", c.ID)
	require.Error(t, err)
	code, _ := mongoerr.As(err)
	assert.Equal(t, mongoerr.CodeCursorNotFound, code)
}

func TestGetMoreUnknownIDIsCursorNotFound(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	_, _, err := r.GetMore("sess1", 12345)
	require.Error(t, err)
	code, _ := mongoerr.As(err)
	assert.Equal(t, mongoerr.CodeCursorNotFound, code)
}

func TestKillRemovesCursor(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	c := r.Open("sess1", "db", "coll", docs(10), 2)
	require.NoError(t, r.Kill("sess1", c.ID))
	assert.Equal(t, 0, r.Len())

	err := r.Kill("sess1", c.ID)
	require.Error(t, err)
}

func TestKillAllRemovesOnlyOwnedCursors(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	a := r.Open("sess1", "db", "a", docs(10), 2)
	b := r.Open("sess2", "db", "b", docs(10), 2)

	r.KillAll("sess1")
	assert.Equal(t, 1, r.Len())

	_, err := r.Get("sess1", a.ID)
	require.Error(t, err)
	_, err = r.Get("sess2", b.ID)
	require.NoError(t, err)
}

func TestReapOnceEvictsExpiredCursors(t *testing.T) {
	r := NewRegistry(nil, time.Millisecond)
	r.Open("sess1", "db", "coll", docs(10), 2)
	time.Sleep(5 * time.Millisecond)
	r.reapOnce()
	assert.Equal(t, 0, r.Len())
}

func TestMintIDNeverReturnsZero(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	for i := 0; i < 1000; i++ {
		id := r.mintID()
		assert.NotZero(t, id)
	}
}
