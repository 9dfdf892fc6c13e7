package backend

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
)

// Pool wraps a pgxpool.Pool, the connection-pooled, request-scoped access
// point every backend operation goes through: acquire, issue parameterised
// SQL, release on scope exit.
type Pool struct {
	pg     *pgxpool.Pool
	logger *zap.Logger
}

// OpenPool connects to postgresURL and verifies connectivity with a
// ping before returning.
func OpenPool(ctx context.Context, postgresURL string, logger *zap.Logger) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(postgresURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Pool{pg: pool, logger: logger.Named("backend.pool")}, nil
}

// Close releases all pooled connections.
func (p *Pool) Close() { p.pg.Close() }

// Exec runs sql with args against the pool, classifying any resulting
// pgconn.PgError into the Mongo error taxonomy.
func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tag, err := p.pg.Exec(ctx, sql, args...)
	if err != nil {
		return tag, classifyPgError(err)
	}
	return tag, nil
}

// Query runs sql with args against the pool, classifying errors the same
// way Exec does.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := p.pg.Query(ctx, sql, args...)
	if err != nil {
		return nil, classifyPgError(err)
	}
	return rows, nil
}

// QueryRow runs sql with args and returns the single-row scanner; scan
// errors surface through Scan itself so no classification happens here.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.pg.QueryRow(ctx, sql, args...)
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error (including a panic re-raised by fn), matching the
// "write commands wrap in a backend transaction" rule.
func (p *Pool) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.pg.Begin(ctx)
	if err != nil {
		return classifyPgError(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			p.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classifyPgError(err)
	}
	return nil
}

// classifyPgError maps a SQLSTATE-bearing error onto the Mongo error
// taxonomy (pgconn.PgError -> mongoerr.Code).
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if ok := asPgError(err, &pgErr); ok {
		switch pgErr.Code {
		case "23505": // unique_violation
			return mongoerr.Wrap(mongoerr.CodeDuplicateKey, err)
		case "42P01", "3F000": // undefined_table, invalid_schema_name
			return mongoerr.Wrap(mongoerr.CodeNamespaceNotFound, err)
		case "42P06": // duplicate_schema
			return mongoerr.Wrap(mongoerr.CodeNamespaceExists, err)
		default:
			return mongoerr.Wrap(mongoerr.CodeInternalError, err)
		}
	}
	return err
}

func asPgError(err error, target **pgconn.PgError) bool {
	for err != nil {
		if e, ok := err.(*pgconn.PgError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
