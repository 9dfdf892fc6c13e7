package backend

import (
	"context"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5/pgconn"
)

// Catalog is the authoritative record of which databases/collections/
// indexes exist, backed by mdb_meta and mirrored through a reader-majority
// cache invalidated on every DDL operation. Callers must never trust the
// backend's own information_schema in isolation -- mdb_meta is the
// source of truth.
type Catalog struct {
	pool *Pool

	mu      sync.RWMutex
	collCache *lru.Cache[string, []string] // db -> ordered coll names
	idxCache  *lru.Cache[string, []IndexSpec]
}

// IndexSpec is a catalog-recorded index definition.
type IndexSpec struct {
	Name   string
	Keys   []IndexKey
	Unique bool
	Sparse bool
}

// IndexKey is one field of a (possibly compound) index.
type IndexKey struct {
	Path      string
	Direction int // +1 or -1
}

func newCatalog(pool *Pool) (*Catalog, error) {
	collCache, err := lru.New[string, []string](256)
	if err != nil {
		return nil, err
	}
	idxCache, err := lru.New[string, []IndexSpec](256)
	if err != nil {
		return nil, err
	}
	return &Catalog{pool: pool, collCache: collCache, idxCache: idxCache}, nil
}

func idxCacheKey(db, coll string) string { return db + "\x00" + coll }

// Bootstrap creates the mdb_meta schema and its tables if they do not
// already exist.
func (c *Catalog) Bootstrap(ctx context.Context) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + QuoteIdent(metaSchema),
		`CREATE TABLE IF NOT EXISTS ` + metaTable("databases") + ` (db TEXT PRIMARY KEY)`,
		`CREATE TABLE IF NOT EXISTS ` + metaTable("collections") + ` (
			db TEXT NOT NULL, coll TEXT NOT NULL, PRIMARY KEY (db, coll)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + metaTable("indexes") + ` (
			db TEXT NOT NULL, coll TEXT NOT NULL, name TEXT NOT NULL,
			spec_jsonb JSONB NOT NULL,
			PRIMARY KEY (db, coll, name)
		)`,
	}
	for _, s := range stmts {
		if _, err := c.pool.Exec(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// ListDatabases returns every known database name, ordered.
func (c *Catalog) ListDatabases(ctx context.Context) ([]string, error) {
	rows, err := c.pool.Query(ctx, `SELECT db FROM `+metaTable("databases")+` ORDER BY db`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var db string
		if err := rows.Scan(&db); err != nil {
			return nil, err
		}
		out = append(out, db)
	}
	return out, rows.Err()
}

// ListCollections returns every collection name in db, ordered, preferring
// the cache.
func (c *Catalog) ListCollections(ctx context.Context, db string) ([]string, error) {
	if v, ok := c.collCache.Get(db); ok {
		return v, nil
	}
	rows, err := c.pool.Query(ctx, `SELECT coll FROM `+metaTable("collections")+` WHERE db = $1 ORDER BY coll`, db)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var coll string
		if err := rows.Scan(&coll); err != nil {
			return nil, err
		}
		out = append(out, coll)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	c.collCache.Add(db, out)
	return out, nil
}

// CollectionExists reports whether (db, coll) is recorded in the catalog.
func (c *Catalog) CollectionExists(ctx context.Context, db, coll string) (bool, error) {
	colls, err := c.ListCollections(ctx, db)
	if err != nil {
		return false, err
	}
	i := sort.SearchStrings(colls, coll)
	return i < len(colls) && colls[i] == coll, nil
}

// recordDatabase upserts db into mdb_meta.databases.
func (c *Catalog) recordDatabase(ctx context.Context, tx txQuerier, db string) error {
	_, err := tx.Exec(ctx, `INSERT INTO `+metaTable("databases")+` (db) VALUES ($1) ON CONFLICT DO NOTHING`, db)
	return err
}

// recordCollection upserts (db, coll) and invalidates the collection
// cache entry for db.
func (c *Catalog) recordCollection(ctx context.Context, tx txQuerier, db, coll string) error {
	_, err := tx.Exec(ctx, `INSERT INTO `+metaTable("collections")+` (db, coll) VALUES ($1, $2) ON CONFLICT DO NOTHING`, db, coll)
	if err != nil {
		return err
	}
	c.invalidateCollections(db)
	return nil
}

func (c *Catalog) removeCollection(ctx context.Context, tx txQuerier, db, coll string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM `+metaTable("collections")+` WHERE db = $1 AND coll = $2`, db, coll); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM `+metaTable("indexes")+` WHERE db = $1 AND coll = $2`, db, coll); err != nil {
		return err
	}
	c.invalidateCollections(db)
	c.idxCache.Remove(idxCacheKey(db, coll))
	return nil
}

func (c *Catalog) removeDatabase(ctx context.Context, tx txQuerier, db string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM `+metaTable("collections")+` WHERE db = $1`, db); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM `+metaTable("indexes")+` WHERE db = $1`, db); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM `+metaTable("databases")+` WHERE db = $1`, db); err != nil {
		return err
	}
	c.invalidateCollections(db)
	prefix := idxCacheKey(db, "")
	for _, k := range c.idxCache.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.idxCache.Remove(k)
		}
	}
	return nil
}

func (c *Catalog) invalidateCollections(db string) {
	c.collCache.Remove(db)
}

// ListIndexNames returns every index name recorded for (db, coll).
func (c *Catalog) ListIndexNames(ctx context.Context, db, coll string) ([]string, error) {
	specs, err := c.ListIndexes(ctx, db, coll)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names, nil
}

// ListIndexes returns the full recorded specs for (db, coll), preferring
// the cache.
func (c *Catalog) ListIndexes(ctx context.Context, db, coll string) ([]IndexSpec, error) {
	key := idxCacheKey(db, coll)
	if v, ok := c.idxCache.Get(key); ok {
		return v, nil
	}
	rows, err := c.pool.Query(ctx, `SELECT name, spec_jsonb FROM `+metaTable("indexes")+` WHERE db = $1 AND coll = $2 ORDER BY name`, db, coll)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IndexSpec
	for rows.Next() {
		var name string
		var raw []byte
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		spec, err := decodeIndexSpec(name, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	c.idxCache.Add(key, out)
	return out, nil
}

func (c *Catalog) recordIndex(ctx context.Context, tx txQuerier, db, coll string, spec IndexSpec) error {
	raw, err := encodeIndexSpec(spec)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO `+metaTable("indexes")+` (db, coll, name, spec_jsonb) VALUES ($1, $2, $3, $4)`, db, coll, spec.Name, raw)
	if err != nil {
		return err
	}
	c.idxCache.Remove(idxCacheKey(db, coll))
	return nil
}

func (c *Catalog) removeIndex(ctx context.Context, tx txQuerier, db, coll, name string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM `+metaTable("indexes")+` WHERE db = $1 AND coll = $2 AND name = $3`, db, coll, name); err != nil {
		return err
	}
	c.idxCache.Remove(idxCacheKey(db, coll))
	return nil
}

// txQuerier is the subset of pgx.Tx (and *Pool) this package needs; it
// lets catalog helpers run either inside a caller's transaction or
// directly against the pool.
type txQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}
