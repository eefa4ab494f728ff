package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fxarena/fxarena/internal/domain"
)

// Stores builds a domain.Stores bundle over the given querier. Handing in a
// pgx.Tx binds every store in the bundle to that transaction.
func Stores(q Querier) domain.Stores {
	return domain.Stores{
		Contests:     NewContestStore(q),
		Participants: NewParticipantStore(q),
		Positions:    NewPositionStore(q),
		Orders:       NewOrderStore(q),
		Trades:       NewTradeStore(q),
		Wallets:      NewWalletStore(q),
		Platform:     NewPlatformStore(q),
	}
}

// Runner implements domain.TxRunner over a pgx connection pool. Settlement
// units of work run at serializable isolation: position closes, wallet
// credits, and the contest status flip commit or roll back as one.
type Runner struct {
	pool *pgxpool.Pool
}

// NewRunner creates a Runner backed by the given connection pool.
func NewRunner(pool *pgxpool.Pool) *Runner {
	return &Runner{pool: pool}
}

// RunInTx runs fn against stores bound to a single serializable transaction.
func (r *Runner) RunInTx(ctx context.Context, fn func(domain.Stores) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(Stores(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}
