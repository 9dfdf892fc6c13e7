package command

import (
	"context"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

func init() {
	register("getMore", handleGetMore)
	register("killCursors", handleKillCursors)
}

// defaultBatchSize is applied when a command's "cursor" sub-document
// omits batchSize; it matches the driver-visible default MongoDB itself
// advertises for find/aggregate's first batch.
const defaultBatchSize = 101

// batchSizeOf reads the batchSize an aggregate/listCollections/listIndexes
// command requested, nested under its "cursor" sub-document, falling
// back to def (0 meaning "every document in one batch").
func batchSizeOf(cmd *value.Document, def int32) int32 {
	cursorOpt := cmd.Get("cursor")
	if cursorOpt.Kind != value.KindDocument {
		return def
	}
	bs := cursorOpt.Doc.Get("batchSize")
	switch bs.Kind {
	case value.KindInt32:
		return bs.I32
	case value.KindInt64:
		return int32(bs.I64)
	case value.KindDouble:
		return int32(bs.F64)
	default:
		return def
	}
}

// topLevelBatchSize reads find's own top-level "batchSize" field (as
// opposed to aggregate/listCollections/listIndexes, which nest it under
// "cursor"), falling back to def.
func topLevelBatchSize(cmd *value.Document, def int32) int32 {
	bs := cmd.Get("batchSize")
	switch bs.Kind {
	case value.KindInt32:
		return bs.I32
	case value.KindInt64:
		return int32(bs.I64)
	case value.KindDouble:
		return int32(bs.F64)
	default:
		return def
	}
}

// cursorReply opens docs behind a new cursor owned by the dispatching
// session, serves its first batch, and renders the {cursor: {id, ns,
// firstBatch}} envelope every cursor-producing command (find, aggregate,
// listCollections, listIndexes) shares. A result that fits in the first
// batch reports cursor id 0 and the cursor is dropped immediately,
// sparing the registry an entry nothing will ever getMore.
func cursorReply(dc *DispatchContext, db, coll string, docs []*value.Document, batchSize int32) *value.Document {
	sessionID := ""
	if dc.Session != nil {
		sessionID = dc.Session.ID
	}
	c := dc.Cursors.Open(sessionID, db, coll, docs, batchSize)
	batch := c.NextBatch()
	ns := c.Namespace()
	id := c.ID
	if c.Exhausted() {
		_ = dc.Cursors.Kill(sessionID, c.ID)
		id = 0
	} else if dc.Session != nil {
		dc.Session.TrackCursor(c.ID)
	}

	reply := okReply()
	cursorDoc := value.NewDocument()
	cursorDoc.Set("id", value.Int64(id))
	cursorDoc.Set("ns", value.String(ns))
	batchVals := make([]value.Value, len(batch))
	for i, d := range batch {
		batchVals[i] = value.FromDocument(d)
	}
	cursorDoc.Set("firstBatch", value.FromArray(batchVals))
	reply.Set("cursor", value.FromDocument(cursorDoc))
	return reply
}

func handleGetMore(_ context.Context, dc *DispatchContext, _ string, cmd *value.Document) (*value.Document, error) {
	idVal := cmd.Get("getMore")
	var cursorID int64
	switch idVal.Kind {
	case value.KindInt64:
		cursorID = idVal.I64
	case value.KindInt32:
		cursorID = int64(idVal.I32)
	default:
		return nil, mongoerr.New(mongoerr.CodeMissingField, "getMore requires an int64 cursor id")
	}
	sessionID := ""
	if dc.Session != nil {
		sessionID = dc.Session.ID
	}
	c, batch, err := dc.Cursors.GetMore(sessionID, cursorID)
	if err != nil {
		return nil, err
	}
	id := c.ID
	if c.Exhausted() {
		id = 0
		if dc.Session != nil {
			dc.Session.UntrackCursor(cursorID)
		}
	}

	reply := okReply()
	cursorDoc := value.NewDocument()
	cursorDoc.Set("id", value.Int64(id))
	cursorDoc.Set("ns", value.String(c.Namespace()))
	batchVals := make([]value.Value, len(batch))
	for i, d := range batch {
		batchVals[i] = value.FromDocument(d)
	}
	cursorDoc.Set("nextBatch", value.FromArray(batchVals))
	reply.Set("cursor", value.FromDocument(cursorDoc))
	return reply, nil
}

func handleKillCursors(_ context.Context, dc *DispatchContext, _ string, cmd *value.Document) (*value.Document, error) {
	idsVal := cmd.Get("cursors")
	if idsVal.Kind != value.KindArray {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "killCursors requires a \"cursors\" array")
	}
	sessionID := ""
	if dc.Session != nil {
		sessionID = dc.Session.ID
	}
	var killed, notFound []value.Value
	for _, v := range idsVal.Arr {
		var id int64
		switch v.Kind {
		case value.KindInt64:
			id = v.I64
		case value.KindInt32:
			id = int64(v.I32)
		default:
			continue
		}
		if err := dc.Cursors.Kill(sessionID, id); err != nil {
			notFound = append(notFound, value.Int64(id))
			continue
		}
		if dc.Session != nil {
			dc.Session.UntrackCursor(id)
		}
		killed = append(killed, value.Int64(id))
	}
	reply := okReply()
	reply.Set("cursorsKilled", value.FromArray(killed))
	reply.Set("cursorsNotFound", value.FromArray(notFound))
	reply.Set("cursorsAlive", value.FromArray(nil))
	reply.Set("cursorsUnknown", value.FromArray(nil))
	return reply, nil
}
