package aggregate

import (
	"context"
	"sort"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/translate"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

type sortStage struct {
	keys []translate.SortKey
}

func newSortStage(spec *value.Document) (Stage, error) {
	keys := make([]translate.SortKey, 0, spec.Len())
	for _, p := range spec.Pairs() {
		var dir int
		switch p.Value.Kind {
		case value.KindInt32:
			dir = int(p.Value.I32)
		case value.KindInt64:
			dir = int(p.Value.I64)
		default:
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$sort direction must be 1 or -1")
		}
		if dir != 1 && dir != -1 {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$sort direction must be 1 or -1")
		}
		keys = append(keys, translate.SortKey{Path: p.Key, Direction: dir})
	}
	return &sortStage{keys: keys}, nil
}

func (s *sortStage) Apply(_ context.Context, docs []*value.Document) ([]*value.Document, error) {
	out := append([]*value.Document(nil), docs...)
	sort.SliceStable(out, func(i, j int) bool {
		for _, k := range s.keys {
			c := value.Compare(out[i].GetPath(k.Path), out[j].GetPath(k.Path))
			if c != 0 {
				if k.Direction == 1 {
					return c < 0
				}
				return c > 0
			}
		}
		return false
	})
	return out, nil
}

type limitStage struct{ n int64 }

func newLimitStage(n int64) (Stage, error) {
	if n < 0 {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "$limit value must be non-negative")
	}
	return &limitStage{n: n}, nil
}

func (s *limitStage) Apply(_ context.Context, docs []*value.Document) ([]*value.Document, error) {
	if int64(len(docs)) <= s.n {
		return docs, nil
	}
	return docs[:s.n], nil
}

type skipStage struct{ n int64 }

func newSkipStage(n int64) (Stage, error) {
	if n < 0 {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "$skip value must be non-negative")
	}
	return &skipStage{n: n}, nil
}

func (s *skipStage) Apply(_ context.Context, docs []*value.Document) ([]*value.Document, error) {
	if int64(len(docs)) <= s.n {
		return nil, nil
	}
	return docs[s.n:], nil
}

type countStage struct{ field string }

func newCountStage(field string) (Stage, error) {
	if field == "" {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "$count requires a non-empty field name")
	}
	return &countStage{field: field}, nil
}

func (s *countStage) Apply(_ context.Context, docs []*value.Document) ([]*value.Document, error) {
	out := value.NewDocument()
	out.Set(s.field, value.Int32(int32(len(docs))))
	return []*value.Document{out}, nil
}
