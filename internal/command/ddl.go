package command

import (
	"context"

	"github.com/fcoury/oxidedb-sub001/internal/backend"
	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

func init() {
	register("create", handleCreate)
	register("drop", handleDrop)
	register("dropDatabase", handleDropDatabase)
	register("listDatabases", handleListDatabases)
	register("listCollections", handleListCollections)
	register("createIndexes", handleCreateIndexes)
	register("dropIndexes", handleDropIndexes)
	register("listIndexes", handleListIndexes)
	register("renameCollection", handleRenameCollection)
}

func handleCreate(ctx context.Context, dc *DispatchContext, db string, cmd *value.Document) (*value.Document, error) {
	coll, err := collectionName(cmd)
	if err != nil {
		return nil, err
	}
	if err := dc.Store.EnsureCollection(ctx, db, coll); err != nil {
		return nil, err
	}
	return okReply(), nil
}

func handleDrop(ctx context.Context, dc *DispatchContext, db string, cmd *value.Document) (*value.Document, error) {
	coll, err := collectionName(cmd)
	if err != nil {
		return nil, err
	}
	if err := dc.Store.DropCollection(ctx, db, coll); err != nil {
		return nil, err
	}
	return okReply(), nil
}

func handleDropDatabase(ctx context.Context, dc *DispatchContext, db string, _ *value.Document) (*value.Document, error) {
	if err := dc.Store.DropDatabase(ctx, db); err != nil {
		return nil, err
	}
	return okReply(), nil
}

func handleListDatabases(ctx context.Context, dc *DispatchContext, _ string, cmd *value.Document) (*value.Document, error) {
	names, err := dc.Store.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	nameOnly := cmd.Get("nameOnly").Truthy()
	dbs := make([]value.Value, len(names))
	var totalSize int64
	for i, name := range names {
		entry := value.NewDocument()
		entry.Set("name", value.String(name))
		if !nameOnly {
			entry.Set("sizeOnDisk", value.Int64(0))
			entry.Set("empty", value.Bool(false))
		}
		dbs[i] = value.FromDocument(entry)
	}
	reply := okReply()
	reply.Set("databases", value.FromArray(dbs))
	reply.Set("totalSize", value.Int64(totalSize))
	return reply, nil
}

func handleListCollections(ctx context.Context, dc *DispatchContext, db string, cmd *value.Document) (*value.Document, error) {
	names, err := dc.Store.ListCollections(ctx, db)
	if err != nil {
		return nil, err
	}
	docs := make([]*value.Document, len(names))
	for i, name := range names {
		entry := value.NewDocument()
		entry.Set("name", value.String(name))
		entry.Set("type", value.String("collection"))
		opts := value.NewDocument()
		entry.Set("options", value.FromDocument(opts))
		info := value.NewDocument()
		info.Set("readOnly", value.Bool(false))
		entry.Set("info", value.FromDocument(info))
		docs[i] = entry
	}
	return cursorReply(dc, db, "$cmd.listCollections", docs, batchSizeOf(cmd, 0)), nil
}

func handleCreateIndexes(ctx context.Context, dc *DispatchContext, db string, cmd *value.Document) (*value.Document, error) {
	coll, err := collectionName(cmd)
	if err != nil {
		return nil, err
	}
	specsVal := cmd.Get("indexes")
	if specsVal.Kind != value.KindArray {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "createIndexes requires an \"indexes\" array")
	}
	if err := dc.Store.EnsureCollection(ctx, db, coll); err != nil {
		return nil, err
	}
	created := 0
	for _, specVal := range specsVal.Arr {
		if specVal.Kind != value.KindDocument {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "index specification must be a document")
		}
		spec, err := indexSpecFromDoc(specVal.Doc)
		if err != nil {
			return nil, err
		}
		if err := dc.Store.CreateIndex(ctx, db, coll, spec); err != nil {
			return nil, err
		}
		created++
	}
	reply := okReply()
	reply.Set("numIndexesBefore", value.Int32(0))
	reply.Set("numIndexesAfter", value.Int32(int32(created)))
	reply.Set("createdCollectionAutomatically", value.Bool(false))
	return reply, nil
}

func indexSpecFromDoc(doc *value.Document) (backend.IndexSpec, error) {
	keyDoc := doc.Get("key")
	if keyDoc.Kind != value.KindDocument || keyDoc.Doc.Len() == 0 {
		return backend.IndexSpec{}, mongoerr.New(mongoerr.CodeBadFrame, "index specification requires a non-empty \"key\" document")
	}
	spec := backend.IndexSpec{}
	if n := doc.Get("name"); n.Kind == value.KindString {
		spec.Name = n.Str
	}
	spec.Unique = doc.Get("unique").Truthy()
	spec.Sparse = doc.Get("sparse").Truthy()
	for _, p := range keyDoc.Doc.Pairs() {
		dir := 1
		switch p.Value.Kind {
		case value.KindInt32:
			if p.Value.I32 < 0 {
				dir = -1
			}
		case value.KindInt64:
			if p.Value.I64 < 0 {
				dir = -1
			}
		case value.KindDouble:
			if p.Value.F64 < 0 {
				dir = -1
			}
		}
		spec.Keys = append(spec.Keys, backend.IndexKey{Path: p.Key, Direction: dir})
	}
	return spec, nil
}

func handleDropIndexes(ctx context.Context, dc *DispatchContext, db string, cmd *value.Document) (*value.Document, error) {
	coll, err := collectionName(cmd)
	if err != nil {
		return nil, err
	}
	indexVal := cmd.Get("index")
	reply := okReply()
	if indexVal.Kind == value.KindString && indexVal.Str == "*" {
		names, err := dc.Store.Catalog().ListIndexNames(ctx, db, coll)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if n == "_id_" {
				continue
			}
			if err := dc.Store.DropIndex(ctx, db, coll, n); err != nil {
				return nil, err
			}
		}
		return reply, nil
	}
	names, err := indexNamesFromValue(indexVal)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		if err := dc.Store.DropIndex(ctx, db, coll, n); err != nil {
			return nil, err
		}
	}
	return reply, nil
}

func indexNamesFromValue(v value.Value) ([]string, error) {
	switch v.Kind {
	case value.KindString:
		return []string{v.Str}, nil
	case value.KindArray:
		names := make([]string, 0, len(v.Arr))
		for _, e := range v.Arr {
			if e.Kind != value.KindString {
				return nil, mongoerr.New(mongoerr.CodeBadFrame, "dropIndexes array entries must be strings")
			}
			names = append(names, e.Str)
		}
		return names, nil
	default:
		return nil, mongoerr.New(mongoerr.CodeMissingField, "dropIndexes requires \"index\"")
	}
}

func handleListIndexes(ctx context.Context, dc *DispatchContext, db string, cmd *value.Document) (*value.Document, error) {
	coll, err := collectionName(cmd)
	if err != nil {
		return nil, err
	}
	specs, err := dc.Store.Catalog().ListIndexes(ctx, db, coll)
	if err != nil {
		return nil, err
	}
	docs := make([]*value.Document, 0, len(specs)+1)
	idDoc := value.NewDocument()
	idKey := value.NewDocument()
	idKey.Set("_id", value.Int32(1))
	idDoc.Set("v", value.Int32(2))
	idDoc.Set("key", value.FromDocument(idKey))
	idDoc.Set("name", value.String("_id_"))
	docs = append(docs, idDoc)
	for _, spec := range specs {
		entry := value.NewDocument()
		entry.Set("v", value.Int32(2))
		key := value.NewDocument()
		for _, k := range spec.Keys {
			key.Set(k.Path, value.Int32(int32(k.Direction)))
		}
		entry.Set("key", value.FromDocument(key))
		entry.Set("name", value.String(spec.Name))
		if spec.Unique {
			entry.Set("unique", value.Bool(true))
		}
		if spec.Sparse {
			entry.Set("sparse", value.Bool(true))
		}
		docs = append(docs, entry)
	}
	return cursorReply(dc, db, "$cmd.listIndexes."+coll, docs, batchSizeOf(cmd, 0)), nil
}

func handleRenameCollection(ctx context.Context, dc *DispatchContext, _ string, cmd *value.Document) (*value.Document, error) {
	from, err := requireString(cmd, "renameCollection")
	if err != nil {
		return nil, err
	}
	to, err := requireString(cmd, "to")
	if err != nil {
		return nil, err
	}
	fromDB, fromColl, err := splitNamespace(from)
	if err != nil {
		return nil, err
	}
	toDB, toColl, err := splitNamespace(to)
	if err != nil {
		return nil, err
	}
	if fromDB != toDB {
		return nil, mongoerr.New(mongoerr.CodeCommandNotFound, "renameCollection across databases is not supported")
	}
	if err := dc.Store.RenameCollection(ctx, fromDB, fromColl, toColl); err != nil {
		return nil, err
	}
	return okReply(), nil
}

func splitNamespace(ns string) (db, coll string, err error) {
	for i := 0; i < len(ns); i++ {
		if ns[i] == '.' {
			return ns[:i], ns[i+1:], nil
		}
	}
	return "", "", mongoerr.New(mongoerr.CodeInvalidNamespace, "namespace %q must be \"db.coll\"", ns)
}
