package aggregate

import (
	"github.com/fcoury/oxidedb-sub001/internal/translate"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// Pushdown is the leading prefix of a pipeline that C3/C4 can execute
// directly against the backend instead of loading every document and
// running the stage in memory: a single optional $match, then an
// optional $sort, a field-only $project (no computed expressions, since
// C4's projection has no expression evaluator), $skip, and $limit --
// consumed in that order, stopping at the first stage that doesn't fit.
type Pushdown struct {
	Filter     translate.Filter
	SortSQL    string
	Projection *translate.Projection
	Skip       int64
	HasLimit   bool
	Limit      int64
	// Consumed is how many leading stages of the original pipeline were
	// folded into this prefix; the caller should build the remaining
	// in-memory Pipeline from specs[Consumed:].
	Consumed int
}

// ClassifyPushdown inspects the leading stages of specs and returns how
// many it could fold into backend-side execution. It returns an error
// only when translate.TranslateFilter rejects the leading $match filter;
// otherwise a stage it cannot push down (an unsupported filter operator living only
// in translate.Filter.Residual, a $project with a computed expression,
// any stage beyond $skip/$limit) simply stops the prefix there, and the
// caller runs the remainder of the pipeline, unchanged, in memory.
func ClassifyPushdown(specs []*value.Document) (Pushdown, error) {
	var pd Pushdown
	i := 0

	if i < len(specs) {
		if m := singleKey(specs[i], "$match"); m.Kind == value.KindDocument {
			f, err := translate.TranslateFilter(m.Doc)
			if err != nil {
				return pd, err
			}
			if f.Residual == nil {
				pd.Filter = f
				i++
			}
		}
	}

	if i < len(specs) {
		if s := singleKey(specs[i], "$sort"); s.Kind == value.KindDocument {
			keys, ok := sortKeysOf(s.Doc)
			if ok {
				pd.SortSQL = translate.TranslateSort(keys)
				i++
			}
		}
	}

	if i < len(specs) {
		if p := singleKey(specs[i], "$project"); p.Kind == value.KindDocument && isFieldOnlyProjection(p.Doc) {
			proj, err := translate.ParseProjection(p.Doc)
			if err == nil {
				pd.Projection = &proj
				i++
			}
		}
	}

	if i < len(specs) {
		if sk := singleKey(specs[i], "$skip"); !sk.IsMissing() {
			if n, ok := asInt64(sk); ok && n >= 0 {
				pd.Skip = n
				i++
			}
		}
	}

	if i < len(specs) {
		if lim := singleKey(specs[i], "$limit"); !lim.IsMissing() {
			if n, ok := asInt64(lim); ok && n >= 0 {
				pd.Limit = n
				pd.HasLimit = true
				i++
			}
		}
	}

	pd.Consumed = i
	return pd, nil
}

func singleKey(spec *value.Document, name string) value.Value {
	if spec.Len() != 1 {
		return value.Value{}
	}
	pair := spec.Pairs()[0]
	if pair.Key != name {
		return value.Value{}
	}
	return pair.Value
}

func sortKeysOf(spec *value.Document) ([]translate.SortKey, bool) {
	keys := make([]translate.SortKey, 0, spec.Len())
	for _, p := range spec.Pairs() {
		var dir int
		switch p.Value.Kind {
		case value.KindInt32:
			dir = int(p.Value.I32)
		case value.KindInt64:
			dir = int(p.Value.I64)
		default:
			return nil, false
		}
		if dir != 1 && dir != -1 {
			return nil, false
		}
		keys = append(keys, translate.SortKey{Path: p.Key, Direction: dir})
	}
	return keys, true
}

// isFieldOnlyProjection reports whether every field of a $project spec
// is a literal 0/1/true/false -- the only form C4's Projection
// understands. Anything with a computed expression (e.g. {s: {"$add":
// [...]}}) must run in memory instead.
func isFieldOnlyProjection(spec *value.Document) bool {
	for _, p := range spec.Pairs() {
		switch p.Value.Kind {
		case value.KindInt32, value.KindInt64, value.KindDouble, value.KindBoolean:
			continue
		default:
			return false
		}
	}
	return true
}
