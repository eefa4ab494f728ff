package postgres

import (
	"context"
	"fmt"

	"github.com/fxarena/fxarena/internal/domain"
)

// PlatformStore implements domain.PlatformStore using PostgreSQL.
type PlatformStore struct {
	q Querier
}

// NewPlatformStore creates a new PlatformStore over the given querier.
func NewPlatformStore(q Querier) *PlatformStore {
	return &PlatformStore{q: q}
}

// Create appends one platform ledger entry.
func (s *PlatformStore) Create(ctx context.Context, tx domain.PlatformTransaction) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO platform_transactions (
			id, contest_id, type, amount, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		tx.ID, tx.ContestID, string(tx.Type), tx.Amount, tx.Reason, tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create platform transaction %s: %w", tx.ID, err)
	}
	return nil
}

// ListByContest returns the platform ledger entries for one contest.
func (s *PlatformStore) ListByContest(ctx context.Context, contestID string) ([]domain.PlatformTransaction, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, contest_id, type, amount, reason, created_at
		 FROM platform_transactions
		 WHERE contest_id = $1
		 ORDER BY created_at ASC`, contestID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list platform transactions for contest %s: %w", contestID, err)
	}
	defer rows.Close()

	var txs []domain.PlatformTransaction
	for rows.Next() {
		var tx domain.PlatformTransaction
		var typ string
		if err := rows.Scan(
			&tx.ID, &tx.ContestID, &typ, &tx.Amount, &tx.Reason, &tx.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan platform transaction: %w", err)
		}
		tx.Type = domain.PlatformTransactionType(typ)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
