package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/fcoury/oxidedb-sub001/internal/cursor"
	"github.com/fcoury/oxidedb-sub001/internal/session"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

func TestBatchSizeOfReadsNestedCursorBatchSize(t *testing.T) {
	cmd := value.NewDocument()
	cursorOpt := value.NewDocument()
	cursorOpt.Set("batchSize", value.Int32(25))
	cmd.Set("cursor", value.FromDocument(cursorOpt))
	assert.Equal(t, int32(25), batchSizeOf(cmd, defaultBatchSize))
}

func TestBatchSizeOfFallsBackWithoutCursorSubdocument(t *testing.T) {
	cmd := value.NewDocument()
	assert.Equal(t, int32(7), batchSizeOf(cmd, 7))
}

func TestTopLevelBatchSizeReadsFlatField(t *testing.T) {
	cmd := value.NewDocument()
	cmd.Set("batchSize", value.Int64(50))
	assert.Equal(t, int32(50), topLevelBatchSize(cmd, defaultBatchSize))
}

func docs(n int) []*value.Document {
	out := make([]*value.Document, n)
	for i := range out {
		d := value.NewDocument()
		d.Set("n", value.Int32(int32(i)))
		out[i] = d
	}
	return out
}

func TestCursorReplySmallResultClosesCursorImmediately(t *testing.T) {
	cursors := cursor.NewRegistry(zap.NewNop(), time.Minute)
	sess := session.New("127.0.0.1:1")
	dc := &DispatchContext{Deps: &Deps{Cursors: cursors, Logger: zaptest.NewLogger(t)}, Session: sess}

	reply := cursorReply(dc, "testdb", "widgets", docs(3), 10)
	cursorDoc := reply.Get("cursor").Doc
	require.NotNil(t, cursorDoc)
	assert.Equal(t, int64(0), cursorDoc.Get("id").I64)
	assert.Equal(t, "testdb.widgets", cursorDoc.Get("ns").Str)
	assert.Len(t, cursorDoc.Get("firstBatch").Arr, 3)
	assert.Empty(t, sess.OutstandingCursors())
}

func TestCursorReplyLargeResultStaysOpenAndTrackedOnSession(t *testing.T) {
	cursors := cursor.NewRegistry(zap.NewNop(), time.Minute)
	sess := session.New("127.0.0.1:1")
	dc := &DispatchContext{Deps: &Deps{Cursors: cursors, Logger: zaptest.NewLogger(t)}, Session: sess}

	reply := cursorReply(dc, "testdb", "widgets", docs(10), 4)
	cursorDoc := reply.Get("cursor").Doc
	require.NotEqual(t, int64(0), cursorDoc.Get("id").I64)
	assert.Len(t, cursorDoc.Get("firstBatch").Arr, 4)
	assert.Len(t, sess.OutstandingCursors(), 1)
}

func TestHandleGetMoreAdvancesBatchAndUntracksOnExhaustion(t *testing.T) {
	cursors := cursor.NewRegistry(zap.NewNop(), time.Minute)
	sess := session.New("127.0.0.1:1")
	dc := &DispatchContext{Deps: &Deps{Cursors: cursors, Logger: zaptest.NewLogger(t)}, Session: sess}

	opened := cursorReply(dc, "testdb", "widgets", docs(5), 2)
	id := opened.Get("cursor").Doc.Get("id").I64
	require.NotEqual(t, int64(0), id)

	cmd := value.NewDocument()
	cmd.Set("getMore", value.Int64(id))
	reply, err := handleGetMore(context.Background(), dc, "testdb", cmd)
	require.NoError(t, err)
	cursorDoc := reply.Get("cursor").Doc
	assert.Len(t, cursorDoc.Get("nextBatch").Arr, 2)

	cmd2 := value.NewDocument()
	cmd2.Set("getMore", value.Int64(id))
	reply2, err := handleGetMore(context.Background(), dc, "testdb", cmd2)
	require.NoError(t, err)
	cursorDoc2 := reply2.Get("cursor").Doc
	assert.Equal(t, int64(0), cursorDoc2.Get("id").I64)
	assert.Empty(t, sess.OutstandingCursors())
}

func TestHandleKillCursorsReportsKilledAndNotFound(t *testing.T) {
	cursors := cursor.NewRegistry(zap.NewNop(), time.Minute)
	sess := session.New("127.0.0.1:1")
	dc := &DispatchContext{Deps: &Deps{Cursors: cursors, Logger: zaptest.NewLogger(t)}, Session: sess}

	opened := cursorReply(dc, "testdb", "widgets", docs(5), 2)
	id := opened.Get("cursor").Doc.Get("id").I64

	cmd := value.NewDocument()
	cmd.Set("cursors", value.FromArray([]value.Value{value.Int64(id), value.Int64(999)}))
	reply, err := handleKillCursors(context.Background(), dc, "testdb", cmd)
	require.NoError(t, err)
	assert.Len(t, reply.Get("cursorsKilled").Arr, 1)
	assert.Len(t, reply.Get("cursorsNotFound").Arr, 1)
}
