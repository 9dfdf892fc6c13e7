// Package aggregate implements the aggregation pipeline engine: a
// sequence of Stage values built from an `aggregate` command's pipeline
// array, each consuming and producing a slice of documents. The leading
// $match/$sort/$project/$skip/$limit prefix a pipeline can push down
// into C3/C4 is classified separately (see pushdown.go); this package
// always knows how to run every stage purely in memory as well, so
// pushdown is an optimization, never a correctness requirement.
package aggregate

import (
	"context"

	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// Stage transforms a batch of documents into the next stage's input.
type Stage interface {
	Apply(ctx context.Context, docs []*value.Document) ([]*value.Document, error)
}

// CollectionSource resolves a named collection's full document set for
// stages that read a second collection ($lookup).
type CollectionSource interface {
	FetchAll(ctx context.Context, db, coll string) ([]*value.Document, error)
}

// Sink writes a pipeline's final output back to the backend, for $out
// and $merge.
type Sink interface {
	Replace(ctx context.Context, db, coll string, docs []*value.Document) error
	Merge(ctx context.Context, db, coll string, docs []*value.Document) error
}

// Env carries the collaborators a pipeline's stages need beyond the
// documents flowing through it: which database the pipeline runs
// against (for $lookup/$out's default target database) and the
// optional source/sink for cross-collection stages.
type Env struct {
	DB     string
	Lookup CollectionSource
	Sink   Sink
}

// StageFunc adapts a plain function to the Stage interface.
type StageFunc func(ctx context.Context, docs []*value.Document) ([]*value.Document, error)

func (f StageFunc) Apply(ctx context.Context, docs []*value.Document) ([]*value.Document, error) {
	return f(ctx, docs)
}
