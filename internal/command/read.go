package command

import (
	"context"
	"sort"

	"github.com/fcoury/oxidedb-sub001/internal/backend"
	"github.com/fcoury/oxidedb-sub001/internal/translate"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

func init() {
	register("find", handleFind)
	register("count", handleCount)
	register("distinct", handleDistinct)
}

// sortKeysFromDoc converts a sort spec document into translate.SortKey
// in field order, the order a compound ORDER BY must preserve.
func sortKeysFromDoc(doc *value.Document) []translate.SortKey {
	if doc == nil {
		return nil
	}
	keys := make([]translate.SortKey, 0, doc.Len())
	for _, p := range doc.Pairs() {
		dir := 1
		if n, ok := p.Value.AsFloat64(); ok && n < 0 {
			dir = -1
		}
		keys = append(keys, translate.SortKey{Path: p.Key, Direction: dir})
	}
	return keys
}

// queryDocs runs a filter/sort query against a collection, applying the
// translated filter's SQL fragment at the backend and any residual
// predicate in memory once rows are decoded -- the two-stage pushdown
// the find, count and distinct commands share.
func queryDocs(ctx context.Context, dc *DispatchContext, db, coll string, filter *value.Document, sortKeys []translate.SortKey, skip, limit int) ([]*value.Document, error) {
	f, err := translate.TranslateFilter(filter)
	if err != nil {
		return nil, err
	}
	opts := backend.FindDocsOptions{
		FilterSQL:  f.SQL,
		FilterArgs: f.Args,
		OrderBySQL: translate.TranslateSort(sortKeys),
		Skip:       skip,
	}
	if f.Residual == nil {
		opts.Limit = limit
	}
	rows, err := dc.Store.FindDocs(ctx, db, coll, opts)
	if err != nil {
		return nil, err
	}
	docs, err := docsFromRows(rows)
	if err != nil {
		return nil, err
	}
	if f.Residual != nil {
		filtered := docs[:0]
		for _, d := range docs {
			if f.Residual(d) {
				filtered = append(filtered, d)
			}
		}
		docs = filtered
		if limit > 0 && len(docs) > limit {
			docs = docs[:limit]
		}
	}
	return docs, nil
}

func handleFind(ctx context.Context, dc *DispatchContext, db string, cmd *value.Document) (*value.Document, error) {
	coll, err := collectionName(cmd)
	if err != nil {
		return nil, err
	}
	filter, err := optionalDocument(cmd, "filter")
	if err != nil {
		return nil, err
	}
	sortDoc, err := optionalDocument(cmd, "sort")
	if err != nil {
		return nil, err
	}
	projSpec, err := optionalDocument(cmd, "projection")
	if err != nil {
		return nil, err
	}
	proj, err := translate.ParseProjection(projSpec)
	if err != nil {
		return nil, err
	}
	skip := int(optionalInt(cmd, "skip", 0))
	limit := int(optionalInt(cmd, "limit", 0))

	docs, err := queryDocs(ctx, dc, db, coll, filter, sortKeysFromDoc(sortDoc), skip, limit)
	if err != nil {
		return nil, err
	}
	for i, d := range docs {
		docs[i] = proj.Apply(d)
	}

	batchSize := topLevelBatchSize(cmd, defaultBatchSize)
	if cmd.Get("singleBatch").Truthy() {
		batchSize = 0
	}
	return cursorReply(dc, db, coll, docs, batchSize), nil
}

func handleCount(ctx context.Context, dc *DispatchContext, db string, cmd *value.Document) (*value.Document, error) {
	coll, err := collectionName(cmd)
	if err != nil {
		return nil, err
	}
	query, err := optionalDocument(cmd, "query")
	if err != nil {
		return nil, err
	}
	if query == nil {
		query, err = optionalDocument(cmd, "filter")
		if err != nil {
			return nil, err
		}
	}
	skip := int(optionalInt(cmd, "skip", 0))
	limit := int(optionalInt(cmd, "limit", 0))
	docs, err := queryDocs(ctx, dc, db, coll, query, nil, skip, limit)
	if err != nil {
		return nil, err
	}
	reply := okReply()
	reply.Set("n", value.Int64(int64(len(docs))))
	return reply, nil
}

func handleDistinct(ctx context.Context, dc *DispatchContext, db string, cmd *value.Document) (*value.Document, error) {
	coll, err := collectionName(cmd)
	if err != nil {
		return nil, err
	}
	key, err := requireString(cmd, "key")
	if err != nil {
		return nil, err
	}
	query, err := optionalDocument(cmd, "query")
	if err != nil {
		return nil, err
	}
	docs, err := queryDocs(ctx, dc, db, coll, query, nil, 0, 0)
	if err != nil {
		return nil, err
	}

	var distinct []value.Value
	for _, d := range docs {
		v := d.GetPath(key)
		if v.IsMissing() {
			continue
		}
		if !containsValue(distinct, v) {
			distinct = append(distinct, v)
		}
	}
	sort.Slice(distinct, func(i, j int) bool { return value.Compare(distinct[i], distinct[j]) < 0 })

	reply := okReply()
	reply.Set("values", value.FromArray(distinct))
	return reply, nil
}

func containsValue(arr []value.Value, v value.Value) bool {
	for _, elem := range arr {
		if value.Equal(elem, v) {
			return true
		}
	}
	return false
}
