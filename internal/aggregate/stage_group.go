package aggregate

import (
	"context"

	"github.com/fcoury/oxidedb-sub001/internal/aggregate/expr"
	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

type groupField struct {
	name string
	op   string
	expr value.Value
}

type groupStage struct {
	idExpr value.Value
	fields []groupField
}

func newGroupStage(spec *value.Document) (Stage, error) {
	if !spec.Has("_id") {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "$group requires an _id expression")
	}
	fields := make([]groupField, 0, spec.Len()-1)
	for _, p := range spec.Pairs() {
		if p.Key == "_id" {
			continue
		}
		if p.Value.Kind != value.KindDocument || p.Value.Doc.Len() != 1 {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$group field %q must name exactly one accumulator", p.Key)
		}
		accPair := p.Value.Doc.Pairs()[0]
		fields = append(fields, groupField{name: p.Key, op: accPair.Key, expr: accPair.Value})
	}
	return &groupStage{idExpr: spec.Get("_id"), fields: fields}, nil
}

type groupState struct {
	id   value.Value
	accs map[string]accumulator
}

func (s *groupStage) Apply(_ context.Context, docs []*value.Document) ([]*value.Document, error) {
	order := make([]string, 0)
	groups := make(map[string]*groupState)
	for _, d := range docs {
		ctx := expr.NewContext(d)
		idVal, err := expr.Eval(s.idExpr, ctx)
		if err != nil {
			return nil, err
		}
		key, err := groupKey(idVal)
		if err != nil {
			return nil, err
		}
		g, ok := groups[key]
		if !ok {
			g = &groupState{id: idVal, accs: make(map[string]accumulator, len(s.fields))}
			for _, f := range s.fields {
				acc, err := newAccumulator(f.op, f.expr)
				if err != nil {
					return nil, err
				}
				g.accs[f.name] = acc
			}
			groups[key] = g
			order = append(order, key)
		}
		for _, f := range s.fields {
			v, err := expr.Eval(f.expr, ctx)
			if err != nil {
				return nil, err
			}
			g.accs[f.name].add(v)
		}
	}
	out := make([]*value.Document, 0, len(order))
	for _, key := range order {
		g := groups[key]
		doc := value.NewDocument()
		doc.Set("_id", g.id)
		for _, f := range s.fields {
			doc.Set(f.name, g.accs[f.name].result())
		}
		out = append(out, doc)
	}
	return out, nil
}

func groupKey(v value.Value) (string, error) {
	wrapped := value.DocumentFromPairs(value.Pair{Key: "k", Value: v})
	b, err := value.MarshalDocument(wrapped)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// accumulator folds one evaluated expression value per input document
// into a running $group field result.
type accumulator interface {
	add(v value.Value)
	result() value.Value
}

// newAccumulator builds the accumulator for a $group field. operandExpr
// is the unevaluated accumulator expression: $sum's result stays
// integral when summing a literal integer constant (the common
// {$sum: 1} counting idiom) and widens to Double once it accumulates
// evaluated field values, matching the type a literal-count $sum
// actually produces on the wire.
func newAccumulator(op string, operandExpr value.Value) (accumulator, error) {
	switch op {
	case "$sum":
		literal := operandExpr.Kind == value.KindInt32 || operandExpr.Kind == value.KindInt64
		return &sumAcc{literalCount: literal}, nil
	case "$avg":
		return &avgAcc{}, nil
	case "$min":
		return &minMaxAcc{wantMin: true}, nil
	case "$max":
		return &minMaxAcc{wantMin: false}, nil
	case "$first":
		return &firstAcc{}, nil
	case "$last":
		return &lastAcc{}, nil
	case "$push":
		return &pushAcc{}, nil
	case "$addToSet":
		return &addToSetAcc{}, nil
	default:
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "unsupported $group accumulator %q", op)
	}
}

type sumAcc struct {
	total        float64
	literalCount bool
}

func (a *sumAcc) add(v value.Value) {
	f, ok := v.AsFloat64()
	if !ok {
		return
	}
	a.total += f
}

func (a *sumAcc) result() value.Value {
	if a.literalCount {
		return value.Int32(int32(a.total))
	}
	return value.Double(a.total)
}

type avgAcc struct {
	total float64
	count int64
}

func (a *avgAcc) add(v value.Value) {
	f, ok := v.AsFloat64()
	if !ok {
		return
	}
	a.total += f
	a.count++
}

func (a *avgAcc) result() value.Value {
	if a.count == 0 {
		return value.Null()
	}
	return value.Double(a.total / float64(a.count))
}

type minMaxAcc struct {
	wantMin bool
	has     bool
	val     value.Value
}

func (a *minMaxAcc) add(v value.Value) {
	if v.IsMissing() {
		return
	}
	if !a.has {
		a.val, a.has = v, true
		return
	}
	c := value.Compare(v, a.val)
	if (a.wantMin && c < 0) || (!a.wantMin && c > 0) {
		a.val = v
	}
}

func (a *minMaxAcc) result() value.Value {
	if !a.has {
		return value.Null()
	}
	return a.val
}

type firstAcc struct {
	has bool
	val value.Value
}

func (a *firstAcc) add(v value.Value) {
	if !a.has {
		a.val, a.has = v, true
	}
}

func (a *firstAcc) result() value.Value {
	if !a.has {
		return value.Null()
	}
	return a.val
}

type lastAcc struct{ val value.Value }

func (a *lastAcc) add(v value.Value)   { a.val = v }
func (a *lastAcc) result() value.Value { return a.val }

type pushAcc struct{ vals []value.Value }

func (a *pushAcc) add(v value.Value)   { a.vals = append(a.vals, v) }
func (a *pushAcc) result() value.Value { return value.FromArray(a.vals) }

type addToSetAcc struct{ vals []value.Value }

func (a *addToSetAcc) add(v value.Value) {
	for _, existing := range a.vals {
		if value.Equal(existing, v) {
			return
		}
	}
	a.vals = append(a.vals, v)
}
func (a *addToSetAcc) result() value.Value { return value.FromArray(a.vals) }
