package aggregate

import (
	"context"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// outStage implements $out: the pipeline's final output atomically
// replaces the named collection. The actual temp-table-then-rename
// mechanics live behind the Sink interface (internal/backend wires it),
// since this package never talks to the database directly.
type outStage struct {
	db, coll string
	sink     Sink
}

func newOutStage(spec value.Value, env *Env) (Stage, error) {
	coll, db, err := outTarget(spec, env)
	if err != nil {
		return nil, err
	}
	if env.Sink == nil {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "$out is not available without a sink")
	}
	return &outStage{db: db, coll: coll, sink: env.Sink}, nil
}

func outTarget(spec value.Value, env *Env) (coll string, db string, err error) {
	db = env.DB
	switch spec.Kind {
	case value.KindString:
		coll = spec.Str
	case value.KindDocument:
		if d := spec.Doc.Get("db"); d.Kind == value.KindString {
			db = d.Str
		}
		c := spec.Doc.Get("coll")
		if c.Kind != value.KindString {
			return "", "", mongoerr.New(mongoerr.CodeBadFrame, "$out document form requires a string \"coll\"")
		}
		coll = c.Str
	default:
		return "", "", mongoerr.New(mongoerr.CodeBadFrame, "$out requires a string or {db, coll} operand")
	}
	return coll, db, nil
}

func (s *outStage) Apply(ctx context.Context, docs []*value.Document) ([]*value.Document, error) {
	if err := s.sink.Replace(ctx, s.db, s.coll, docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// mergeStage implements a partial $merge: documents are upserted into
// the target collection by _id (whenMatched: replace, whenNotMatched:
// insert). The richer whenMatched pipelines/keep/fail modes are out of
// scope -- this covers the common "materialize a view" use case.
type mergeStage struct {
	db, coll string
	sink     Sink
}

func newMergeStage(spec value.Value, env *Env) (Stage, error) {
	coll, db, err := mergeTarget(spec, env)
	if err != nil {
		return nil, err
	}
	if env.Sink == nil {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "$merge is not available without a sink")
	}
	return &mergeStage{db: db, coll: coll, sink: env.Sink}, nil
}

func mergeTarget(spec value.Value, env *Env) (coll string, db string, err error) {
	db = env.DB
	switch spec.Kind {
	case value.KindString:
		coll = spec.Str
	case value.KindDocument:
		if d := spec.Doc.Get("db"); d.Kind == value.KindString {
			db = d.Str
		}
		into := spec.Doc.Get("into")
		if into.Kind == value.KindString {
			coll = into.Str
		}
	default:
		return "", "", mongoerr.New(mongoerr.CodeBadFrame, "$merge requires a string or document operand")
	}
	if coll == "" {
		return "", "", mongoerr.New(mongoerr.CodeBadFrame, "$merge requires a target collection name")
	}
	return coll, db, nil
}

func (s *mergeStage) Apply(ctx context.Context, docs []*value.Document) ([]*value.Document, error) {
	if err := s.sink.Merge(ctx, s.db, s.coll, docs); err != nil {
		return nil, err
	}
	return docs, nil
}
