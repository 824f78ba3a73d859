package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx operations repositories use. Both a
// pooled connection and a transaction satisfy it, so repositories are
// oblivious to whether they run inside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Scope wraps the connection a request's repository calls run against.
// It is carried on the context so the store is injected, never global.
type Scope struct {
	Q Querier

	conn *pgxpool.Conn
}

// Close releases the underlying pooled connection, if any. Transaction
// scopes are closed by InTx's commit/rollback instead.
func (s *Scope) Close() {
	if s.conn != nil {
		s.conn.Release()
		s.conn = nil
	}
}

// Acquire checks out a pooled connection wrapped in a Scope, for
// read-only paths outside a transaction. The returned scope MUST be
// closed with defer scope.Close().
func (db *DB) Acquire(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Scope{Q: conn, conn: conn}, nil
}
