package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Scope wraps a pooled connection held for the duration of one request.
type Scope struct {
	Conn *pgxpool.Conn
}

// Close releases the connection back to the pool.
// Safe to call more than once.
func (s *Scope) Close() {
	if s.Conn == nil {
		return
	}
	s.Conn.Release()
	s.Conn = nil
}

// Acquire takes a connection from the pool.
// The returned Scope MUST be closed with defer scope.Close().
func (db *DB) Acquire(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Scope{Conn: conn}, nil
}
