// README: Unit of work over one Postgres transaction.
package dispatch

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"plow/internal/modules/job"
	"plow/internal/modules/ledger"
)

type PostgresUoW struct {
	pool   *pgxpool.Pool
	jobs   *job.Store
	ledger *ledger.Store
}

func NewPostgresUoW(pool *pgxpool.Pool) *PostgresUoW {
	return &PostgresUoW{
		pool:   pool,
		jobs:   job.NewStore(pool),
		ledger: ledger.NewStore(pool),
	}
}

// Do runs fn in a read-committed transaction. The operator advisory lock
// taken through Tx.Jobs.LockOperator is held until commit.
func (u *PostgresUoW) Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return pgx.BeginTxFunc(ctx, u.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, Tx{
			Jobs:   u.jobs.WithTx(tx),
			Ledger: u.ledger.WithTx(tx),
		})
	})
}
