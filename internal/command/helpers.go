package command

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/fcoury/oxidedb-sub001/internal/backend"
	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/translate"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// requireString fetches a required string field off cmd, failing with
// MissingField if absent or the wrong type.
func requireString(cmd *value.Document, field string) (string, error) {
	v := cmd.Get(field)
	if v.Kind != value.KindString {
		return "", mongoerr.New(mongoerr.CodeMissingField, "%q must be a string", field)
	}
	return v.Str, nil
}

// collectionName reads a command's own name field -- the value
// alongside the command keyword itself, e.g. {insert: "coll", ...} --
// which names the target collection.
func collectionName(cmd *value.Document) (string, error) {
	keyword := Keyword(cmd)
	v := cmd.Get(keyword)
	if v.Kind != value.KindString {
		return "", mongoerr.New(mongoerr.CodeMissingField, "command %q requires a string collection name", keyword)
	}
	return v.Str, nil
}

// optionalDocument returns field as a *value.Document, or nil if the
// field is absent; it errors if present but not a document.
func optionalDocument(cmd *value.Document, field string) (*value.Document, error) {
	v := cmd.Get(field)
	if v.IsMissing() {
		return nil, nil
	}
	if v.Kind != value.KindDocument {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "%q must be a document", field)
	}
	return v.Doc, nil
}

// optionalInt reads an integer-ish field, returning def if absent.
func optionalInt(cmd *value.Document, field string, def int64) int64 {
	v := cmd.Get(field)
	switch v.Kind {
	case value.KindInt32:
		return int64(v.I32)
	case value.KindInt64:
		return v.I64
	case value.KindDouble:
		return int64(v.F64)
	default:
		return def
	}
}

// encodeID renders an _id value's canonical binary primary-key
// representation rather than a text form: every write and point-lookup
// path routes an _id through this one function so the stored bytes are
// always comparable.
func encodeID(id value.Value) ([]byte, error) {
	return bson.Marshal(bson.D{{Key: "_id", Value: value.ToBSONValue(id)}})
}

// mintID picks (or mints) the _id value a new document will be stored
// under, returning the value plus its encodeID bytes.
func mintID(doc *value.Document) (value.Value, []byte, error) {
	id := doc.Get("_id")
	if id.IsMissing() {
		id = value.ObjectID(bson.NewObjectID())
		doc.Set("_id", id)
	}
	raw, err := encodeID(id)
	if err != nil {
		return value.Value{}, nil, err
	}
	return id, raw, nil
}

// docsFromRows decodes every row's raw BSON into the document model, in
// the order the backend returned them.
func docsFromRows(rows []backend.Row) ([]*value.Document, error) {
	out := make([]*value.Document, 0, len(rows))
	for _, r := range rows {
		d, err := value.UnmarshalDocument(r.Doc)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// jdocOf renders a document's extended-JSON text for storage in the
// jsonb column, the form every backend write path (insert, update,
// $out/$merge) needs alongside the raw BSON bytes.
func jdocOf(doc *value.Document) (string, error) {
	raw, err := bson.MarshalExtJSON(value.ToBSON(doc), true, false)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// storeCollectionSource adapts *backend.Store to aggregate.CollectionSource
// for $lookup's full-collection reads.
type storeCollectionSource struct {
	store *backend.Store
}

func (s storeCollectionSource) FetchAll(ctx context.Context, db, coll string) ([]*value.Document, error) {
	rows, err := s.store.FindDocs(ctx, db, coll, backend.FindDocsOptions{})
	if err != nil {
		return nil, err
	}
	return docsFromRows(rows)
}

// storeSink adapts *backend.Store to aggregate.Sink for $out/$merge.
type storeSink struct {
	store *backend.Store
}

func (s storeSink) Replace(ctx context.Context, db, coll string, docs []*value.Document) error {
	tmp := coll + "__tmp_out"
	if err := s.store.DropCollection(ctx, db, tmp); err != nil {
		return err
	}
	if err := s.store.EnsureCollection(ctx, db, tmp); err != nil {
		return err
	}
	for _, d := range docs {
		if err := insertInto(ctx, s.store, db, tmp, d); err != nil {
			return err
		}
	}
	if err := s.store.DropCollection(ctx, db, coll); err != nil {
		return err
	}
	return s.store.RenameCollection(ctx, db, tmp, coll)
}

func (s storeSink) Merge(ctx context.Context, db, coll string, docs []*value.Document) error {
	if err := s.store.EnsureCollection(ctx, db, coll); err != nil {
		return err
	}
	for _, d := range docs {
		if err := upsertByID(ctx, s.store, db, coll, d); err != nil {
			return err
		}
	}
	return nil
}

// insertInto inserts a single already-_id-bearing document, minting an
// _id if necessary -- the shared path $out's temp-table load and the
// plain insert command both need.
func insertInto(ctx context.Context, store *backend.Store, db, coll string, doc *value.Document) error {
	_, idBytes, err := mintID(doc)
	if err != nil {
		return err
	}
	raw, err := value.MarshalDocument(doc)
	if err != nil {
		return err
	}
	jdoc, err := jdocOf(doc)
	if err != nil {
		return err
	}
	return store.InsertOneStrict(ctx, db, coll, idBytes, raw, jdoc)
}

// upsertByID implements $merge's upsert-by-_id/replace mode: delete any
// existing row sharing the document's _id, then insert the replacement.
func upsertByID(ctx context.Context, store *backend.Store, db, coll string, doc *value.Document) error {
	_, idBytes, err := mintID(doc)
	if err != nil {
		return err
	}
	if _, err := store.DeleteByFilter(ctx, db, coll, "_id = $1", []any{idBytes}, 0); err != nil {
		return err
	}
	return insertInto(ctx, store, db, coll, doc)
}

// resolvedFilterSQL translates filter and, if any fragment of it could
// only be rendered as a residual in-memory predicate, resolves that
// residual against the candidate rows up front and folds the result
// into an `_id IN (...)` clause. Update/delete's matched/modified
// counts come straight from the backend's row selection, so by the
// time they run, every residual check must already be baked into the
// SQL they receive -- unlike find, which can afford to filter after
// the fact.
func resolvedFilterSQL(ctx context.Context, store *backend.Store, db, coll string, filter *value.Document) (string, []any, error) {
	f, err := translate.TranslateFilter(filter)
	if err != nil {
		return "", nil, err
	}
	if f.Residual == nil {
		return f.SQL, f.Args, nil
	}
	rows, err := store.FindDocs(ctx, db, coll, backend.FindDocsOptions{FilterSQL: f.SQL, FilterArgs: f.Args})
	if err != nil {
		return "", nil, err
	}
	var ids [][]byte
	for _, r := range rows {
		d, derr := value.UnmarshalDocument(r.Doc)
		if derr != nil {
			return "", nil, derr
		}
		if f.Residual(d) {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 {
		return "FALSE", nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	return "_id IN (" + strings.Join(placeholders, ",") + ")", args, nil
}

// firstMatchingRow locates the first row satisfying filter, resolving
// any residual predicate in memory; found is false if nothing matches.
// findAndModify's single-document semantics are built on this.
func firstMatchingRow(ctx context.Context, store *backend.Store, db, coll string, filter *value.Document) (backend.Row, *value.Document, bool, error) {
	f, err := translate.TranslateFilter(filter)
	if err != nil {
		return backend.Row{}, nil, false, err
	}
	opts := backend.FindDocsOptions{FilterSQL: f.SQL, FilterArgs: f.Args}
	if f.Residual == nil {
		opts.Limit = 1
	}
	rows, err := store.FindDocs(ctx, db, coll, opts)
	if err != nil {
		return backend.Row{}, nil, false, err
	}
	for _, r := range rows {
		d, derr := value.UnmarshalDocument(r.Doc)
		if derr != nil {
			return backend.Row{}, nil, false, derr
		}
		if f.Residual != nil && !f.Residual(d) {
			continue
		}
		return r, d, true, nil
	}
	return backend.Row{}, nil, false, nil
}

// baseFromFilterEquality builds the starting document an upsert's
// insert branch is seeded with: every top-level equality condition in
// the query filter, since Mongo folds those fields into the inserted
// document before applying the update operators on top.
func baseFromFilterEquality(filter *value.Document) *value.Document {
	out := value.NewDocument()
	if filter == nil {
		return out
	}
	for _, p := range filter.Pairs() {
		if strings.HasPrefix(p.Key, "$") {
			continue
		}
		if p.Value.Kind == value.KindDocument {
			continue // operator document ({$gt: ...}); not a seedable equality
		}
		out.SetPath(p.Key, p.Value)
	}
	return out
}
