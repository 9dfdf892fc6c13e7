package aggregate

import (
	"context"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// lookupStage implements the equality-join form of $lookup: for each
// input document, collect every document from the foreign collection
// whose foreignField equals the input's localField, appended as an
// array under `as`. The foreign side is hashed once per Apply call (a
// hash join keyed by the smaller, foreign-side count in the common case
// of a lookup narrowing a large primary collection against a small
// reference collection) rather than re-scanned per input document.
type lookupStage struct {
	from         string
	localField   string
	foreignField string
	as           string
	env          *Env
}

func newLookupStage(spec *value.Document, env *Env) (Stage, error) {
	from := spec.Get("from")
	local := spec.Get("localField")
	foreign := spec.Get("foreignField")
	as := spec.Get("as")
	if from.Kind != value.KindString || local.Kind != value.KindString || foreign.Kind != value.KindString || as.Kind != value.KindString {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "$lookup requires string \"from\", \"localField\", \"foreignField\" and \"as\"")
	}
	if env == nil || env.Lookup == nil {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "$lookup is not available without a collection source")
	}
	return &lookupStage{from: from.Str, localField: local.Str, foreignField: foreign.Str, as: as.Str, env: env}, nil
}

func (s *lookupStage) Apply(ctx context.Context, docs []*value.Document) ([]*value.Document, error) {
	foreignDocs, err := s.env.Lookup.FetchAll(ctx, s.env.DB, s.from)
	if err != nil {
		return nil, err
	}
	index := make(map[string][]*value.Document)
	for _, fd := range foreignDocs {
		key, err := groupKey(fd.GetPath(s.foreignField))
		if err != nil {
			return nil, err
		}
		index[key] = append(index[key], fd)
	}
	out := make([]*value.Document, len(docs))
	for i, d := range docs {
		key, err := groupKey(d.GetPath(s.localField))
		if err != nil {
			return nil, err
		}
		matches := index[key]
		arr := make([]value.Value, len(matches))
		for j, m := range matches {
			arr[j] = value.FromDocument(m)
		}
		c := d.Clone()
		c.Set(s.as, value.FromArray(arr))
		out[i] = c
	}
	return out, nil
}
