package backend

import (
	"strings"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
)

const maxIdentBytes = 64

// QuoteIdent renders name as a double-quoted SQL identifier, doubling any
// embedded quote, so it is safe to interpolate into a schema/table/index
// name position (parameters cannot appear there in standard SQL). This is
// the single canonical helper every DDL/DML statement in this package
// routes identifiers through -- no other string-concatenation of a
// caller-supplied db/coll/index name is permitted.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ValidateIdent checks that name is a non-empty, size-bounded identifier
// suitable for use as (part of) a schema/table/index name.
func ValidateIdent(kind, name string) error {
	if name == "" {
		return mongoerr.New(mongoerr.CodeInvalidNamespace, "%s name must not be empty", kind)
	}
	if len(name) > maxIdentBytes {
		return mongoerr.New(mongoerr.CodeInvalidNamespace, "%s name %q exceeds %d bytes", kind, name, maxIdentBytes)
	}
	return nil
}

// dbSchema returns the per-database schema name, mdb_<db>.
func dbSchema(db string) string { return "mdb_" + db }

// qualifiedTable returns the schema-qualified, quoted table name for a
// collection: mdb_<db>."<coll>".
func qualifiedTable(db, coll string) string {
	return QuoteIdent(dbSchema(db)) + "." + QuoteIdent(coll)
}

const metaSchema = "mdb_meta"

func metaTable(name string) string {
	return QuoteIdent(metaSchema) + "." + QuoteIdent(name)
}
