// Package cursor implements the server-side cursor registry (C7):
// find/aggregate/listCollections results that don't fit in one batch are
// materialised once and handed out batch by batch through a numeric
// cursor id, owned by the session that created it and reaped after an
// idle timeout.
package cursor

import (
	"time"

	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// Cursor is one server-side iterator over an already-materialised
// result set. Non-zero ids are live; id 0 means "exhausted", per the
// wire protocol's own convention for the final getMore reply.
type Cursor struct {
	ID        int64
	SessionID string
	DB        string
	Coll      string

	docs []*value.Document
	pos  int

	batchSize    int32
	idleDeadline time.Time
}

// Namespace renders "db.coll" the way cursor replies report it.
func (c *Cursor) Namespace() string { return c.DB + "." + c.Coll }

// Exhausted reports whether every document has already been served.
func (c *Cursor) Exhausted() bool { return c.pos >= len(c.docs) }

// NextBatch returns up to batchSize documents starting at the cursor's
// current position and advances it.
func (c *Cursor) NextBatch() []*value.Document {
	n := int(c.batchSize)
	if n <= 0 {
		n = len(c.docs) - c.pos
	}
	end := c.pos + n
	if end > len(c.docs) {
		end = len(c.docs)
	}
	batch := c.docs[c.pos:end]
	c.pos = end
	return batch
}
