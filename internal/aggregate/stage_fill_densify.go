package aggregate

import (
	"context"
	"sort"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// fillStage implements $fill: an optional sortBy ordering, then for each
// named output field a forward fill followed by a backward fill of any
// remaining missing/null values. partitionBy is accepted for syntactic
// compatibility but not applied -- the corpus's own $fill never
// implements it either, filling across the whole batch instead.
type fillStage struct {
	sortBy []translateSortKeyLite
	fields []string
}

type translateSortKeyLite struct {
	path string
	dir  int
}

func newFillStage(spec *value.Document) (Stage, error) {
	output := spec.Get("output")
	if output.Kind != value.KindDocument {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "$fill requires an \"output\" document")
	}
	fields := make([]string, 0, output.Doc.Len())
	for _, p := range output.Doc.Pairs() {
		fields = append(fields, p.Key)
	}
	var sortBy []translateSortKeyLite
	if sb := spec.Get("sortBy"); sb.Kind == value.KindDocument {
		for _, p := range sb.Doc.Pairs() {
			dir := 1
			if p.Value.Kind == value.KindInt32 && p.Value.I32 < 0 {
				dir = -1
			} else if p.Value.Kind == value.KindInt64 && p.Value.I64 < 0 {
				dir = -1
			}
			sortBy = append(sortBy, translateSortKeyLite{path: p.Key, dir: dir})
		}
	}
	return &fillStage{sortBy: sortBy, fields: fields}, nil
}

func (s *fillStage) Apply(_ context.Context, docs []*value.Document) ([]*value.Document, error) {
	if len(docs) == 0 {
		return docs, nil
	}
	out := append([]*value.Document(nil), docs...)
	if len(s.sortBy) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, k := range s.sortBy {
				c := value.Compare(out[i].Get(k.path), out[j].Get(k.path))
				if c != 0 {
					if k.dir == 1 {
						return c < 0
					}
					return c > 0
				}
			}
			return false
		})
	}
	for _, field := range s.fields {
		var last value.Value
		haveLast := false
		for _, d := range out {
			v := d.Get(field)
			if !v.IsMissing() && v.Kind != value.KindNull {
				last, haveLast = v, true
			} else if haveLast {
				d.Set(field, last)
			}
		}
		haveLast = false
		for i := len(out) - 1; i >= 0; i-- {
			v := out[i].Get(field)
			if !v.IsMissing() && v.Kind != value.KindNull {
				last, haveLast = v, true
			} else if haveLast {
				out[i].Set(field, last)
			}
		}
	}
	return out, nil
}

// densifyStage is the simplified forward-fill-only counterpart to
// $fill: each named output field is forward-filled in input order. It
// does not back-fill leading nulls and does not generate documents for
// gaps in a numeric or date series.
type densifyStage struct {
	fields []string
}

func newDensifyStage(spec *value.Document) (Stage, error) {
	output := spec.Get("output")
	if output.Kind != value.KindDocument {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "$densify requires an \"output\" document")
	}
	fields := make([]string, 0, output.Doc.Len())
	for _, p := range output.Doc.Pairs() {
		fields = append(fields, p.Key)
	}
	return &densifyStage{fields: fields}, nil
}

func (s *densifyStage) Apply(_ context.Context, docs []*value.Document) ([]*value.Document, error) {
	if len(docs) == 0 {
		return docs, nil
	}
	out := append([]*value.Document(nil), docs...)
	for _, field := range s.fields {
		var last value.Value
		haveLast := false
		for _, d := range out {
			v := d.Get(field)
			if !v.IsMissing() && v.Kind != value.KindNull {
				last, haveLast = v, true
			}
			if (v.IsMissing() || v.Kind == value.KindNull) && haveLast {
				d.Set(field, last)
			}
		}
	}
	return out, nil
}
