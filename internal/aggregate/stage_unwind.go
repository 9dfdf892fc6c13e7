package aggregate

import (
	"context"
	"strings"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

type unwindStage struct {
	path             string // dotted path, without leading "$"
	includeIndex     string // field name, empty if not requested
	preserveNullEtc  bool
}

func newUnwindStage(spec value.Value) (Stage, error) {
	u := &unwindStage{}
	switch spec.Kind {
	case value.KindString:
		u.path = strings.TrimPrefix(spec.Str, "$")
	case value.KindDocument:
		p := spec.Doc.Get("path")
		if p.Kind != value.KindString {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$unwind requires a string \"path\"")
		}
		u.path = strings.TrimPrefix(p.Str, "$")
		if idx := spec.Doc.Get("includeArrayIndex"); idx.Kind == value.KindString {
			u.includeIndex = idx.Str
		}
		u.preserveNullEtc = spec.Doc.Get("preserveNullAndEmptyArrays").Truthy()
	default:
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "$unwind requires a string or document operand")
	}
	return u, nil
}

func (s *unwindStage) Apply(_ context.Context, docs []*value.Document) ([]*value.Document, error) {
	var out []*value.Document
	for _, d := range docs {
		v := d.GetPath(s.path)
		if v.Kind != value.KindArray || len(v.Arr) == 0 {
			if !s.preserveNullEtc {
				continue
			}
			c := d.Clone()
			c.SetPath(s.path, value.Null())
			if s.includeIndex != "" {
				c.SetPath(s.includeIndex, value.Null())
			}
			out = append(out, c)
			continue
		}
		for i, elem := range v.Arr {
			c := d.Clone()
			c.SetPath(s.path, elem)
			if s.includeIndex != "" {
				c.SetPath(s.includeIndex, value.Int32(int32(i)))
			}
			out = append(out, c)
		}
	}
	return out, nil
}
