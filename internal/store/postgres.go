package store

import (
	"context"
	"database/sql"

	"github.com/safar/go-rental-store/internal/database"
)

// Queries implements Repository on top of a pool or an open transaction.
type Queries struct {
	q database.Querier
}

func NewQueries(q database.Querier) *Queries {
	return &Queries{q: q}
}

// Postgres is the production Store. Units of work run serializable and are
// retried on serialization failures and deadlocks.
type Postgres struct {
	*Queries
	db         *sql.DB
	maxRetries int
}

func NewPostgres(db *sql.DB, maxRetries int) *Postgres {
	return &Postgres{
		Queries:    NewQueries(db),
		db:         db,
		maxRetries: maxRetries,
	}
}

func (p *Postgres) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	return database.WithRetry(ctx, p.db, database.BookingTxOptions(p.maxRetries), func(tx *sql.Tx) error {
		return fn(NewQueries(tx))
	})
}

func (p *Postgres) DB() *sql.DB {
	return p.db
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

var _ Store = (*Postgres)(nil)
