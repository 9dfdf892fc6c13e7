package cursor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// DefaultIdleTimeout is the minimum idle eviction window an unread
// cursor is kept open before the reaper drops it.
const DefaultIdleTimeout = 10 * time.Minute

const shardCount = 16

type shard struct {
	mu      sync.RWMutex
	cursors map[int64]*Cursor
}

// Registry is the process-wide cursor table, sharded by id to keep
// find/getMore traffic from a large session count serialising on one
// lock.
type Registry struct {
	shards      [shardCount]*shard
	idleTimeout time.Duration
	logger      *zap.Logger

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// NewRegistry builds an empty registry. idleTimeout <= 0 falls back to
// DefaultIdleTimeout.
func NewRegistry(logger *zap.Logger, idleTimeout time.Duration) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		idleTimeout: idleTimeout,
		logger:      logger.Named("cursor"),
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for i := range r.shards {
		r.shards[i] = &shard{cursors: make(map[int64]*Cursor)}
	}
	return r
}

func (r *Registry) shardFor(id int64) *shard {
	idx := uint64(id) % uint64(shardCount)
	return r.shards[idx]
}

// mintID returns a non-zero int64 not already in use by any shard.
func (r *Registry) mintID() int64 {
	for {
		r.rndMu.Lock()
		id := r.rnd.Int63()
		r.rndMu.Unlock()
		if id == 0 {
			continue
		}
		s := r.shardFor(id)
		s.mu.RLock()
		_, taken := s.cursors[id]
		s.mu.RUnlock()
		if !taken {
			return id
		}
	}
}

// Open materialises a result set behind a fresh cursor id owned by
// sessionID. If docs fits in a single batchSize-sized batch, the caller
// should still call Open (so NextBatch/Exhausted stay consistent) but
// may immediately observe Exhausted() == true and report cursor id 0 on
// the wire instead of this cursor's id.
func (r *Registry) Open(sessionID, db, coll string, docs []*value.Document, batchSize int32) *Cursor {
	c := &Cursor{
		ID:           r.mintID(),
		SessionID:    sessionID,
		DB:           db,
		Coll:         coll,
		docs:         docs,
		batchSize:    batchSize,
		idleDeadline: time.Now().Add(r.idleTimeout),
	}
	s := r.shardFor(c.ID)
	s.mu.Lock()
	s.cursors[c.ID] = c
	s.mu.Unlock()
	return c
}

// Get looks up a cursor by id, verifying sessionID owns it. A missing id
// or a session mismatch both yield CursorNotFound, treated identically
// so a cursor's existence is never leaked across sessions.
func (r *Registry) Get(sessionID string, id int64) (*Cursor, error) {
	s := r.shardFor(id)
	s.mu.RLock()
	c, ok := s.cursors[id]
	s.mu.RUnlock()
	if !ok || c.SessionID != sessionID {
		return nil, mongoerr.New(mongoerr.CodeCursorNotFound, "cursor id %d not found", id)
	}
	return c, nil
}

// GetMore advances the named cursor and returns its next batch. Once
// the cursor is exhausted it is removed from the registry and the
// caller should report cursor id 0.
func (r *Registry) GetMore(sessionID string, id int64) (*Cursor, []*value.Document, error) {
	c, err := r.Get(sessionID, id)
	if err != nil {
		return nil, nil, err
	}
	batch := c.NextBatch()
	if c.Exhausted() {
		r.remove(id)
	} else {
		c.idleDeadline = time.Now().Add(r.idleTimeout)
	}
	return c, batch, nil
}

// Kill removes a single cursor, owned by sessionID, per killCursors.
func (r *Registry) Kill(sessionID string, id int64) error {
	if _, err := r.Get(sessionID, id); err != nil {
		return err
	}
	r.remove(id)
	return nil
}

// KillAll drops every cursor owned by sessionID, called on session
// close.
func (r *Registry) KillAll(sessionID string) {
	for _, s := range r.shards {
		s.mu.Lock()
		for id, c := range s.cursors {
			if c.SessionID == sessionID {
				delete(s.cursors, id)
			}
		}
		s.mu.Unlock()
	}
}

func (r *Registry) remove(id int64) {
	s := r.shardFor(id)
	s.mu.Lock()
	delete(s.cursors, id)
	s.mu.Unlock()
}

// Run evicts idle cursors on a fixed tick until ctx is cancelled. On
// shutdown cursors are dropped outright rather than drained.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			for _, s := range r.shards {
				s.mu.Lock()
				s.cursors = make(map[int64]*Cursor)
				s.mu.Unlock()
			}
			return
		case <-ticker.C:
			r.reapOnce()
		}
	}
}

func (r *Registry) reapOnce() {
	now := time.Now()
	for _, s := range r.shards {
		s.mu.Lock()
		for id, c := range s.cursors {
			if now.After(c.idleDeadline) {
				delete(s.cursors, id)
				r.logger.Debug("reaped idle cursor", zap.Int64("cursor_id", id), zap.String("ns", c.Namespace()))
			}
		}
		s.mu.Unlock()
	}
}

// Len reports the number of live cursors, for tests and diagnostics.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.cursors)
		s.mu.RUnlock()
	}
	return n
}
