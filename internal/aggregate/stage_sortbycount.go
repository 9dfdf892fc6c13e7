package aggregate

import (
	"context"
	"sort"

	"github.com/fcoury/oxidedb-sub001/internal/aggregate/expr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// sortByCountStage groups documents by expr, counts each group, and
// returns {_id, count} documents sorted by count descending.
type sortByCountStage struct {
	expr value.Value
}

func newSortByCountStage(spec value.Value) Stage {
	return &sortByCountStage{expr: spec}
}

func (s *sortByCountStage) Apply(_ context.Context, docs []*value.Document) ([]*value.Document, error) {
	order := make([]string, 0)
	ids := make(map[string]value.Value)
	counts := make(map[string]int64)
	for _, d := range docs {
		ctx := expr.NewContext(d)
		v, err := expr.Eval(s.expr, ctx)
		if err != nil {
			return nil, err
		}
		key, err := groupKey(v)
		if err != nil {
			return nil, err
		}
		if _, ok := ids[key]; !ok {
			ids[key] = v
			order = append(order, key)
		}
		counts[key]++
	}
	out := make([]*value.Document, 0, len(order))
	for _, key := range order {
		doc := value.NewDocument()
		doc.Set("_id", ids[key])
		doc.Set("count", value.Int64(counts[key]))
		out = append(out, doc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Get("count").I64 > out[j].Get("count").I64
	})
	return out, nil
}
