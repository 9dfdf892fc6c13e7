package translate

import (
	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// Projection is a translated projection: either an inclusion list or an
// exclusion list (never both, except `_id: 0` alongside inclusions), plus
// whether `_id` should be kept.
type Projection struct {
	Include   []string
	Exclude   []string
	IncludeID bool
	HasFields bool // false means "no projection given: return full doc"
}

// ParseProjection validates and classifies a projection document:
// inclusion and exclusion cannot mix, except that `_id: 0` may
// accompany an inclusion list.
func ParseProjection(spec *value.Document) (Projection, error) {
	if spec == nil || spec.Len() == 0 {
		return Projection{IncludeID: true}, nil
	}
	p := Projection{IncludeID: true, HasFields: true}
	var hasInclude, hasExclude bool

	for _, pair := range spec.Pairs() {
		field, v := pair.Key, pair.Value
		included := v.Truthy()
		if f, ok := v.AsFloat64(); ok && f == 0 {
			included = false
		}
		if field == "_id" {
			p.IncludeID = included
			continue
		}
		if included {
			hasInclude = true
			p.Include = append(p.Include, field)
		} else {
			hasExclude = true
			p.Exclude = append(p.Exclude, field)
		}
	}
	if hasInclude && hasExclude {
		return Projection{}, mongoerr.New(mongoerr.CodeBadFrame, "projection cannot mix inclusion and exclusion")
	}
	return p, nil
}

// Apply renders the projection against an already-fetched document (the
// in-memory path; SQL-side projection pushdown is an optimization this
// function's result remains correct without).
func (p Projection) Apply(doc *value.Document) *value.Document {
	if !p.HasFields {
		return doc
	}
	out := value.NewDocument()
	if p.IncludeID && doc.Has("_id") {
		out.Set("_id", doc.Get("_id"))
	}
	if len(p.Include) > 0 {
		for _, path := range p.Include {
			v := doc.GetPath(path)
			if !v.IsMissing() {
				out.SetPath(path, v)
			}
		}
		return out
	}
	// Exclusion: start from a full clone, minus `_id` handling already
	// applied above, then delete excluded paths.
	out = doc.Clone()
	if !p.IncludeID {
		out.Delete("_id")
	} else if !doc.Has("_id") {
		out.Delete("_id")
	}
	for _, path := range p.Exclude {
		out.DeletePath(path)
	}
	return out
}
