package aggregate

import (
	"context"

	"github.com/fcoury/oxidedb-sub001/internal/aggregate/expr"
	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/translate"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

type matchStage struct {
	filter *value.Document
}

func newMatchStage(spec *value.Document) Stage {
	return &matchStage{filter: spec}
}

func (s *matchStage) Apply(_ context.Context, docs []*value.Document) ([]*value.Document, error) {
	out := make([]*value.Document, 0, len(docs))
	for _, d := range docs {
		ok, err := translate.MatchesFilter(d, s.filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// projectStage implements both $project (field selection, possibly with
// computed expressions) and $addFields/$set (merge computed fields into
// the existing document without dropping anything not named).
type projectStage struct {
	spec    *value.Document
	exclude bool // true for $project fields whose literal value is 0/false
	merge   bool // true for $addFields/$set: unspecified fields pass through
}

func newProjectStage(spec *value.Document) Stage {
	return &projectStage{spec: spec}
}

func newAddFieldsStage(spec *value.Document) Stage {
	return &projectStage{spec: spec, merge: true}
}

func newUnsetStage(fields []string) Stage {
	return StageFunc(func(_ context.Context, docs []*value.Document) ([]*value.Document, error) {
		out := make([]*value.Document, len(docs))
		for i, d := range docs {
			c := d.Clone()
			for _, f := range fields {
				c.DeletePath(f)
			}
			out[i] = c
		}
		return out, nil
	})
}

func (s *projectStage) Apply(_ context.Context, docs []*value.Document) ([]*value.Document, error) {
	out := make([]*value.Document, len(docs))
	for i, d := range docs {
		ctx := expr.NewContext(d)
		var base *value.Document
		if s.merge {
			base = d.Clone()
		} else {
			base = value.NewDocument()
			if d.Has("_id") {
				base.Set("_id", d.Get("_id"))
			}
		}
		for _, p := range s.spec.Pairs() {
			if isLiteralZero(p.Value) {
				base.DeletePath(p.Key)
				continue
			}
			if isLiteralOne(p.Value) && !s.merge {
				base.SetPath(p.Key, d.GetPath(p.Key))
				continue
			}
			v, err := expr.Eval(p.Value, ctx)
			if err != nil {
				return nil, err
			}
			if expr.IsRemove(v) {
				base.DeletePath(p.Key)
				continue
			}
			base.SetPath(p.Key, v)
		}
		out[i] = base
	}
	return out, nil
}

func isLiteralZero(v value.Value) bool {
	switch v.Kind {
	case value.KindInt32:
		return v.I32 == 0
	case value.KindInt64:
		return v.I64 == 0
	case value.KindDouble:
		return v.F64 == 0
	case value.KindBoolean:
		return !v.Bool
	default:
		return false
	}
}

func isLiteralOne(v value.Value) bool {
	switch v.Kind {
	case value.KindInt32:
		return v.I32 == 1
	case value.KindInt64:
		return v.I64 == 1
	case value.KindDouble:
		return v.F64 == 1
	case value.KindBoolean:
		return v.Bool
	default:
		return false
	}
}

// replaceRootStage implements $replaceRoot/$replaceWith: the expression
// is evaluated with ROOT == CURRENT == the input document, must yield a
// Document, and $$REMOVE/missing results are rejected.
type replaceRootStage struct {
	newRoot value.Value
}

func newReplaceRootStage(newRoot value.Value) Stage {
	return &replaceRootStage{newRoot: newRoot}
}

func (s *replaceRootStage) Apply(_ context.Context, docs []*value.Document) ([]*value.Document, error) {
	out := make([]*value.Document, len(docs))
	for i, d := range docs {
		ctx := expr.NewContext(d)
		v, err := expr.Eval(s.newRoot, ctx)
		if err != nil {
			return nil, err
		}
		if expr.IsRemove(v) || v.IsMissing() {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$replaceRoot/$replaceWith expression returned a missing value")
		}
		if v.Kind != value.KindDocument {
			return nil, mongoerr.New(mongoerr.CodeTypeMismatch, "$replaceRoot/$replaceWith requires the expression to evaluate to a document")
		}
		out[i] = v.Doc
	}
	return out, nil
}
