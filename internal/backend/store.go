package backend

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
)

// Store is the C3 backend adapter: a pooled, request-scoped client over the
// SQL store plus the metadata catalog that tracks what exists.
type Store struct {
	pool    *Pool
	catalog *Catalog
	logger  *zap.Logger
}

// Row is one stored document: its encoded _id, its raw BSON bytes and its
// creation time, scanned positionally out of (_id, doc, created_at).
type Row struct {
	ID        []byte
	Doc       []byte // raw BSON
	CreatedAt int64  // unix millis
}

// Open connects to postgresURL and bootstraps the catalog schema.
func Open(ctx context.Context, postgresURL string, logger *zap.Logger) (*Store, error) {
	pool, err := OpenPool(ctx, postgresURL, logger)
	if err != nil {
		return nil, err
	}
	catalog, err := newCatalog(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s := &Store{pool: pool, catalog: catalog, logger: logger.Named("backend.store")}
	if err := catalog.Bootstrap(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases pooled connections.
func (s *Store) Close() { s.pool.Close() }

// Catalog exposes the metadata catalog for read paths (list_databases,
// list_collections, list_index_names) that don't need a Store method of
// their own.
func (s *Store) Catalog() *Catalog { return s.catalog }

// EnsureCollection idempotently creates db's schema, the collection's
// table, and its catalog rows.
func (s *Store) EnsureCollection(ctx context.Context, db, coll string) error {
	if err := ValidateIdent("database", db); err != nil {
		return err
	}
	if err := ValidateIdent("collection", coll); err != nil {
		return err
	}
	return s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+QuoteIdent(dbSchema(db))); err != nil {
			return err
		}
		createTable := `CREATE TABLE IF NOT EXISTS ` + qualifiedTable(db, coll) + ` (
			_id BYTEA PRIMARY KEY,
			doc BYTEA NOT NULL,
			jdoc JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
		if _, err := tx.Exec(ctx, createTable); err != nil {
			return err
		}
		if err := s.catalog.recordDatabase(ctx, tx, db); err != nil {
			return err
		}
		return s.catalog.recordCollection(ctx, tx, db, coll)
	})
}

// DropCollection drops the collection's table and catalog rows
// (including its indexes). Dropping a collection that does not exist is
// not an error.
func (s *Store) DropCollection(ctx context.Context, db, coll string) error {
	return s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS `+qualifiedTable(db, coll)); err != nil {
			return err
		}
		return s.catalog.removeCollection(ctx, tx, db, coll)
	})
}

// DropDatabase drops db's entire schema (cascading over every table and
// index within it) and removes all of its catalog rows.
func (s *Store) DropDatabase(ctx context.Context, db string) error {
	return s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DROP SCHEMA IF EXISTS `+QuoteIdent(dbSchema(db))+` CASCADE`); err != nil {
			return err
		}
		return s.catalog.removeDatabase(ctx, tx, db)
	})
}

// RenameCollection renames a collection's physical table and its
// catalog row in a single transaction, the mechanism $out's
// drop-target/rename-temp sequence and the renameCollection command
// both need.
func (s *Store) RenameCollection(ctx context.Context, db, from, to string) error {
	if err := ValidateIdent("collection", to); err != nil {
		return err
	}
	return s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		stmt := `ALTER TABLE ` + qualifiedTable(db, from) + ` RENAME TO ` + QuoteIdent(to)
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
		if err := s.catalog.removeCollection(ctx, tx, db, from); err != nil {
			return err
		}
		return s.catalog.recordCollection(ctx, tx, db, to)
	})
}

// ListDatabases returns every known database name, ordered.
func (s *Store) ListDatabases(ctx context.Context) ([]string, error) {
	return s.catalog.ListDatabases(ctx)
}

// ListCollections returns every collection name in db, ordered.
func (s *Store) ListCollections(ctx context.Context, db string) ([]string, error) {
	return s.catalog.ListCollections(ctx, db)
}

// InsertOneStrict inserts a single document given its encoded _id, raw
// BSON bytes, and JSONB text representation, failing with a DuplicateKey
// error if _id already exists in the collection.
func (s *Store) InsertOneStrict(ctx context.Context, db, coll string, id, doc []byte, jdoc string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+qualifiedTable(db, coll)+` (_id, doc, jdoc) VALUES ($1, $2, $3::jsonb)`,
		id, doc, jdoc)
	return err
}

// FindByID fetches at most limit documents matching _id (normally 0 or 1,
// but the signature allows callers to request a small batch uniformly
// with FindDocs).
func (s *Store) FindByID(ctx context.Context, db, coll string, id []byte, limit int) ([]Row, error) {
	q := `SELECT _id, doc, extract(epoch from created_at) * 1000 FROM ` + qualifiedTable(db, coll) + ` WHERE _id = $1`
	if limit > 0 {
		q += ` LIMIT ` + strconv.Itoa(limit)
	}
	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

// FindDocsOptions bundles the pushed-down SQL fragments FindDocs composes;
// Filter/Sort are produced by internal/translate and arrive pre-rendered
// with their own placeholder-numbered params.
type FindDocsOptions struct {
	FilterSQL   string // e.g. `jdoc #>> '{age}' > $1`, empty for no filter
	FilterArgs  []any
	OrderBySQL  string // e.g. `ORDER BY (jdoc#>>'{age}')::numeric NULLS LAST`, empty for none
	Limit       int    // 0 means unbounded
	Skip        int
}

// FindDocs runs a pushed-down filter/sort/limit/skip query against a
// collection's table.
func (s *Store) FindDocs(ctx context.Context, db, coll string, opts FindDocsOptions) ([]Row, error) {
	var b strings.Builder
	b.WriteString(`SELECT _id, doc, extract(epoch from created_at) * 1000 FROM `)
	b.WriteString(qualifiedTable(db, coll))
	args := append([]any{}, opts.FilterArgs...)
	if opts.FilterSQL != "" {
		b.WriteString(` WHERE `)
		b.WriteString(opts.FilterSQL)
	}
	if opts.OrderBySQL != "" {
		b.WriteString(` `)
		b.WriteString(opts.OrderBySQL)
	}
	if opts.Limit > 0 {
		b.WriteString(` LIMIT `)
		b.WriteString(strconv.Itoa(opts.Limit))
	}
	if opts.Skip > 0 {
		b.WriteString(` OFFSET `)
		b.WriteString(strconv.Itoa(opts.Skip))
	}
	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

// DeleteByFilter removes every row matched by a pushed-down filter,
// returning the count removed.
func (s *Store) DeleteByFilter(ctx context.Context, db, coll, filterSQL string, args []any, limit int) (int64, error) {
	q := `DELETE FROM ` + qualifiedTable(db, coll)
	if filterSQL != "" {
		q += ` WHERE ` + filterSQL
	}
	if limit > 0 {
		// Postgres has no DELETE ... LIMIT; emulate via ctid subquery.
		q = `DELETE FROM ` + qualifiedTable(db, coll) + ` WHERE ctid IN (SELECT ctid FROM ` + qualifiedTable(db, coll)
		if filterSQL != "" {
			q += ` WHERE ` + filterSQL
		}
		q += ` LIMIT ` + strconv.Itoa(limit) + `)`
	}
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpdateJSONB applies a pre-rendered jsonb_set/jsonb-path expression to
// every row matched by filterSQL, returning the count modified.
func (s *Store) UpdateJSONB(ctx context.Context, db, coll, setSQL, filterSQL string, args []any) (int64, error) {
	q := `UPDATE ` + qualifiedTable(db, coll) + ` SET ` + setSQL
	if filterSQL != "" {
		q += ` WHERE ` + filterSQL
	}
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpdateMatched fetches every row matching filterSQL with FOR UPDATE
// inside one transaction, giving row-level locking for the update's
// duration, and invokes apply on each document's raw BSON
// bytes. apply returns the replacement BSON bytes and JSONB text, and
// changed=false to leave a row as-is (a no-op update still counts
// toward matched, never modified). Rows apply changes are written back
// once every row has been visited. Returns the matched and modified
// counts a MongoDB update reply reports separately.
func (s *Store) UpdateMatched(ctx context.Context, db, coll, filterSQL string, args []any, limit int, apply func(doc []byte) (newDoc []byte, newJdoc string, changed bool, err error)) (matched, modified int64, err error) {
	err = s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		q := `SELECT _id, doc FROM ` + qualifiedTable(db, coll)
		if filterSQL != "" {
			q += ` WHERE ` + filterSQL
		}
		if limit > 0 {
			q += ` LIMIT ` + strconv.Itoa(limit)
		}
		q += ` FOR UPDATE`
		rows, qerr := tx.Query(ctx, q, args...)
		if qerr != nil {
			return qerr
		}
		type pendingUpdate struct {
			id, doc []byte
			jdoc    string
		}
		var updates []pendingUpdate
		for rows.Next() {
			var id, doc []byte
			if serr := rows.Scan(&id, &doc); serr != nil {
				rows.Close()
				return serr
			}
			newDoc, newJdoc, changed, aerr := apply(doc)
			if aerr != nil {
				rows.Close()
				return aerr
			}
			matched++
			if changed {
				modified++
				updates = append(updates, pendingUpdate{id: id, doc: newDoc, jdoc: newJdoc})
			}
		}
		rows.Close()
		if rerr := rows.Err(); rerr != nil {
			return rerr
		}
		for _, u := range updates {
			if _, uerr := tx.Exec(ctx,
				`UPDATE `+qualifiedTable(db, coll)+` SET doc = $1, jdoc = $2::jsonb WHERE _id = $3`,
				u.doc, u.jdoc, u.id); uerr != nil {
				return uerr
			}
		}
		return nil
	})
	return matched, modified, err
}

// CreateIndex records an index in the catalog and creates the matching
// backend expression index (btree over the extracted JSON path(s)).
func (s *Store) CreateIndex(ctx context.Context, db, coll string, spec IndexSpec) error {
	if spec.Name == "" {
		spec.Name = DefaultIndexName(spec.Keys)
	}
	exprs := make([]string, len(spec.Keys))
	for i, k := range spec.Keys {
		dir := "ASC"
		if k.Direction < 0 {
			dir = "DESC"
		}
		exprs[i] = "(jdoc #>> '{" + strings.ReplaceAll(k.Path, ".", ",") + "}') " + dir
	}
	unique := ""
	if spec.Unique {
		unique = "UNIQUE "
	}
	stmt := "CREATE " + unique + "INDEX IF NOT EXISTS " + QuoteIdent(indexBackendName(db, coll, spec.Name)) +
		" ON " + qualifiedTable(db, coll) + " (" + strings.Join(exprs, ", ") + ")"

	return s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		existing, err := s.catalog.ListIndexNames(ctx, db, coll)
		if err != nil {
			return err
		}
		for _, n := range existing {
			if n == spec.Name {
				return mongoerr.New(mongoerr.CodeNamespaceExists, "index %q already exists on %s.%s", spec.Name, db, coll)
			}
		}
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
		return s.catalog.recordIndex(ctx, tx, db, coll, spec)
	})
}

// DropIndex removes an index's backend object and catalog row.
func (s *Store) DropIndex(ctx context.Context, db, coll, name string) error {
	return s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DROP INDEX IF EXISTS `+QuoteIdent(indexBackendName(db, coll, name))); err != nil {
			return err
		}
		return s.catalog.removeIndex(ctx, tx, db, coll, name)
	})
}

// indexBackendName derives the physical backend index name from the
// catalog-level (db, coll, name) triple, since Postgres index names are
// not schema-scoped the way table names are.
func indexBackendName(db, coll, name string) string {
	return db + "__" + coll + "__" + name
}

func scanRows(rows pgx.Rows) ([]Row, error) {
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var r Row
		var createdAtMS float64
		if err := rows.Scan(&r.ID, &r.Doc, &createdAtMS); err != nil {
			return nil, err
		}
		r.CreatedAt = int64(createdAtMS)
		out = append(out, r)
	}
	return out, rows.Err()
}
