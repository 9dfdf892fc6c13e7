package command

import (
	"context"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/translate"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

func init() {
	register("insert", handleInsert)
	register("update", handleUpdate)
	register("delete", handleDelete)
	register("findAndModify", handleFindAndModify)
	register("findandmodify", handleFindAndModify)
}

// orderedOf reads a batch command's "ordered" flag, defaulting to true
// the way insert/update/delete all do when the field is omitted.
func orderedOf(cmd *value.Document) bool {
	v := cmd.Get("ordered")
	if v.IsMissing() {
		return true
	}
	return v.Truthy()
}

// writeError renders one batch item's failure into the {index, code,
// errmsg} shape insert/update/delete report inside "writeErrors".
func writeError(index int, err error) *value.Document {
	code, msg := mongoerr.As(err)
	d := value.NewDocument()
	d.Set("index", value.Int32(int32(index)))
	d.Set("code", value.Int32(int32(code)))
	d.Set("errmsg", value.String(msg))
	return d
}

func handleInsert(ctx context.Context, dc *DispatchContext, db string, cmd *value.Document) (*value.Document, error) {
	coll, err := collectionName(cmd)
	if err != nil {
		return nil, err
	}
	docsVal := cmd.Get("documents")
	if docsVal.Kind != value.KindArray {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "insert requires a \"documents\" array")
	}
	if err := dc.Store.EnsureCollection(ctx, db, coll); err != nil {
		return nil, err
	}

	ordered := orderedOf(cmd)
	var n int32
	var writeErrors []value.Value
	for i, docVal := range docsVal.Arr {
		if docVal.Kind != value.KindDocument {
			writeErrors = append(writeErrors, value.FromDocument(writeError(i, mongoerr.New(mongoerr.CodeBadFrame, "document at index %d must be a document", i))))
			if ordered {
				break
			}
			continue
		}
		if err := insertInto(ctx, dc.Store, db, coll, docVal.Doc); err != nil {
			writeErrors = append(writeErrors, value.FromDocument(writeError(i, err)))
			if ordered {
				break
			}
			continue
		}
		n++
	}

	reply := okReply()
	reply.Set("n", value.Int32(n))
	if len(writeErrors) > 0 {
		reply.Set("writeErrors", value.FromArray(writeErrors))
	}
	return reply, nil
}

func handleUpdate(ctx context.Context, dc *DispatchContext, db string, cmd *value.Document) (*value.Document, error) {
	coll, err := collectionName(cmd)
	if err != nil {
		return nil, err
	}
	updatesVal := cmd.Get("updates")
	if updatesVal.Kind != value.KindArray {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "update requires an \"updates\" array")
	}
	ordered := orderedOf(cmd)

	var n, modified int32
	var writeErrors, upserted []value.Value
	for i, itemVal := range updatesVal.Arr {
		if itemVal.Kind != value.KindDocument {
			writeErrors = append(writeErrors, value.FromDocument(writeError(i, mongoerr.New(mongoerr.CodeBadFrame, "update at index %d must be a document", i))))
			if ordered {
				break
			}
			continue
		}
		matchedN, modifiedN, upsertedID, err := applyOneUpdate(ctx, dc, db, coll, itemVal.Doc)
		if err != nil {
			writeErrors = append(writeErrors, value.FromDocument(writeError(i, err)))
			if ordered {
				break
			}
			continue
		}
		n += matchedN
		modified += modifiedN
		if upsertedID != nil {
			entry := value.NewDocument()
			entry.Set("index", value.Int32(int32(i)))
			entry.Set("_id", *upsertedID)
			upserted = append(upserted, value.FromDocument(entry))
		}
	}

	reply := okReply()
	reply.Set("n", value.Int32(n))
	reply.Set("nModified", value.Int32(modified))
	if len(upserted) > 0 {
		reply.Set("upserted", value.FromArray(upserted))
	}
	if len(writeErrors) > 0 {
		reply.Set("writeErrors", value.FromArray(writeErrors))
	}
	return reply, nil
}

// applyOneUpdate runs a single {q, u, upsert, multi} update item,
// returning the matched/modified counts and, on an upsert-insert, the
// newly minted _id.
func applyOneUpdate(ctx context.Context, dc *DispatchContext, db, coll string, item *value.Document) (matched, modified int32, upsertedID *value.Value, err error) {
	filter, ferr := optionalDocument(item, "q")
	if ferr != nil {
		return 0, 0, nil, ferr
	}
	updateDoc, uerr := optionalDocument(item, "u")
	if uerr != nil {
		return 0, 0, nil, uerr
	}
	upsert := item.Get("upsert").Truthy()
	multi := item.Get("multi").Truthy()

	sql, args, rerr := resolvedFilterSQL(ctx, dc.Store, db, coll, filter)
	if rerr != nil {
		return 0, 0, nil, rerr
	}
	limit := 1
	if multi {
		limit = 0
	}

	var applyErr error
	m, mod, err := dc.Store.UpdateMatched(ctx, db, coll, sql, args, limit, func(raw []byte) ([]byte, string, bool, error) {
		doc, derr := value.UnmarshalDocument(raw)
		if derr != nil {
			return nil, "", false, derr
		}
		newDoc, aerr := translate.ApplyUpdate(doc, updateDoc)
		if aerr != nil {
			applyErr = aerr
			return raw, "", false, nil
		}
		newRaw, merr := value.MarshalDocument(newDoc)
		if merr != nil {
			return nil, "", false, merr
		}
		newJdoc, jerr := jdocOf(newDoc)
		if jerr != nil {
			return nil, "", false, jerr
		}
		return newRaw, newJdoc, !value.Equal(value.FromDocument(doc), value.FromDocument(newDoc)), nil
	})
	if err != nil {
		return 0, 0, nil, err
	}
	if applyErr != nil {
		return 0, 0, nil, applyErr
	}

	if m == 0 && upsert {
		if err := dc.Store.EnsureCollection(ctx, db, coll); err != nil {
			return 0, 0, nil, err
		}
		base := baseFromFilterEquality(filter)
		newDoc, aerr := translate.ApplyUpdate(base, updateDoc)
		if aerr != nil {
			return 0, 0, nil, aerr
		}
		id, _, merr := mintID(newDoc)
		if merr != nil {
			return 0, 0, nil, merr
		}
		if ierr := insertInto(ctx, dc.Store, db, coll, newDoc); ierr != nil {
			return 0, 0, nil, ierr
		}
		return 1, 0, &id, nil
	}

	return int32(m), int32(mod), nil, nil
}

func handleDelete(ctx context.Context, dc *DispatchContext, db string, cmd *value.Document) (*value.Document, error) {
	coll, err := collectionName(cmd)
	if err != nil {
		return nil, err
	}
	deletesVal := cmd.Get("deletes")
	if deletesVal.Kind != value.KindArray {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "delete requires a \"deletes\" array")
	}
	ordered := orderedOf(cmd)

	var n int32
	var writeErrors []value.Value
	for i, itemVal := range deletesVal.Arr {
		if itemVal.Kind != value.KindDocument {
			writeErrors = append(writeErrors, value.FromDocument(writeError(i, mongoerr.New(mongoerr.CodeBadFrame, "delete at index %d must be a document", i))))
			if ordered {
				break
			}
			continue
		}
		q, qerr := optionalDocument(itemVal.Doc, "q")
		if qerr != nil {
			writeErrors = append(writeErrors, value.FromDocument(writeError(i, qerr)))
			if ordered {
				break
			}
			continue
		}
		limit := int(optionalInt(itemVal.Doc, "limit", 0))
		sql, args, rerr := resolvedFilterSQL(ctx, dc.Store, db, coll, q)
		if rerr != nil {
			writeErrors = append(writeErrors, value.FromDocument(writeError(i, rerr)))
			if ordered {
				break
			}
			continue
		}
		deleted, derr := dc.Store.DeleteByFilter(ctx, db, coll, sql, args, limit)
		if derr != nil {
			writeErrors = append(writeErrors, value.FromDocument(writeError(i, derr)))
			if ordered {
				break
			}
			continue
		}
		n += int32(deleted)
	}

	reply := okReply()
	reply.Set("n", value.Int32(n))
	if len(writeErrors) > 0 {
		reply.Set("writeErrors", value.FromArray(writeErrors))
	}
	return reply, nil
}

func handleFindAndModify(ctx context.Context, dc *DispatchContext, db string, cmd *value.Document) (*value.Document, error) {
	coll, err := collectionName(cmd)
	if err != nil {
		return nil, err
	}
	query, err := optionalDocument(cmd, "query")
	if err != nil {
		return nil, err
	}
	update, err := optionalDocument(cmd, "update")
	if err != nil {
		return nil, err
	}
	fieldsSpec, err := optionalDocument(cmd, "fields")
	if err != nil {
		return nil, err
	}
	proj, err := translate.ParseProjection(fieldsSpec)
	if err != nil {
		return nil, err
	}
	remove := cmd.Get("remove").Truthy()
	returnNew := cmd.Get("new").Truthy()
	upsert := cmd.Get("upsert").Truthy()

	row, doc, found, err := firstMatchingRow(ctx, dc.Store, db, coll, query)
	if err != nil {
		return nil, err
	}

	reply := okReply()
	lastErrorObject := value.NewDocument()

	switch {
	case !found && remove:
		lastErrorObject.Set("n", value.Int32(0))
		reply.Set("lastErrorObject", value.FromDocument(lastErrorObject))
		reply.Set("value", value.Null())

	case found && remove:
		if _, err := dc.Store.DeleteByFilter(ctx, db, coll, "_id = $1", []any{row.ID}, 1); err != nil {
			return nil, err
		}
		lastErrorObject.Set("n", value.Int32(1))
		reply.Set("lastErrorObject", value.FromDocument(lastErrorObject))
		reply.Set("value", value.FromDocument(proj.Apply(doc)))

	case !found && !remove:
		if !upsert {
			lastErrorObject.Set("n", value.Int32(0))
			lastErrorObject.Set("updatedExisting", value.Bool(false))
			reply.Set("lastErrorObject", value.FromDocument(lastErrorObject))
			reply.Set("value", value.Null())
			break
		}
		if err := dc.Store.EnsureCollection(ctx, db, coll); err != nil {
			return nil, err
		}
		base := baseFromFilterEquality(query)
		newDoc, aerr := translate.ApplyUpdate(base, update)
		if aerr != nil {
			return nil, aerr
		}
		id, _, merr := mintID(newDoc)
		if merr != nil {
			return nil, merr
		}
		if ierr := insertInto(ctx, dc.Store, db, coll, newDoc); ierr != nil {
			return nil, ierr
		}
		lastErrorObject.Set("n", value.Int32(1))
		lastErrorObject.Set("updatedExisting", value.Bool(false))
		lastErrorObject.Set("upserted", id)
		reply.Set("lastErrorObject", value.FromDocument(lastErrorObject))
		if returnNew {
			reply.Set("value", value.FromDocument(proj.Apply(newDoc)))
		} else {
			reply.Set("value", value.Null())
		}

	default: // found && !remove
		newDoc, aerr := translate.ApplyUpdate(doc, update)
		if aerr != nil {
			return nil, aerr
		}
		newRaw, merr := value.MarshalDocument(newDoc)
		if merr != nil {
			return nil, merr
		}
		newJdoc, jerr := jdocOf(newDoc)
		if jerr != nil {
			return nil, jerr
		}
		if _, _, err := dc.Store.UpdateMatched(ctx, db, coll, "_id = $1", []any{row.ID}, 1, func([]byte) ([]byte, string, bool, error) {
			return newRaw, newJdoc, true, nil
		}); err != nil {
			return nil, err
		}
		lastErrorObject.Set("n", value.Int32(1))
		lastErrorObject.Set("updatedExisting", value.Bool(true))
		reply.Set("lastErrorObject", value.FromDocument(lastErrorObject))
		if returnNew {
			reply.Set("value", value.FromDocument(proj.Apply(newDoc)))
		} else {
			reply.Set("value", value.FromDocument(proj.Apply(doc)))
		}
	}

	return reply, nil
}
