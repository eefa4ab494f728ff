package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/fxarena/fxarena/internal/domain"
)

// WalletStore implements domain.WalletStore using PostgreSQL. Wallets are
// the most contended rows during settlement, so every balance mutation is
// expressed as an additive SQL update.
type WalletStore struct {
	q Querier
}

// NewWalletStore creates a new WalletStore over the given querier.
func NewWalletStore(q Querier) *WalletStore {
	return &WalletStore{q: q}
}

// GetByUserID retrieves a user's wallet.
func (s *WalletStore) GetByUserID(ctx context.Context, userID string) (domain.Wallet, error) {
	var w domain.Wallet
	err := s.q.QueryRow(ctx,
		`SELECT id, user_id, credit_balance,
			total_won_from_competitions, total_won_from_challenges,
			created_at, updated_at
		 FROM wallets WHERE user_id = $1`, userID,
	).Scan(
		&w.ID, &w.UserID, &w.CreditBalance,
		&w.TotalWonFromCompetitions, &w.TotalWonFromChallenges,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Wallet{}, domain.ErrNotFound
		}
		return domain.Wallet{}, fmt.Errorf("postgres: get wallet for user %s: %w", userID, err)
	}
	return w, nil
}

// CreditPrize adds amount to the user's wallet, creating it on first win.
// The upsert keeps the mutation additive so two settlements crediting the
// same user serialize on the row instead of losing an update.
func (s *WalletStore) CreditPrize(ctx context.Context, userID string, amount decimal.Decimal, contestType domain.ContestType) (decimal.Decimal, decimal.Decimal, string, error) {
	compWon := decimal.Zero
	chalWon := decimal.Zero
	if contestType == domain.ContestTypeChallenge {
		chalWon = amount
	} else {
		compWon = amount
	}

	var (
		walletID string
		after    decimal.Decimal
	)
	err := s.q.QueryRow(ctx,
		`INSERT INTO wallets (
			id, user_id, credit_balance,
			total_won_from_competitions, total_won_from_challenges,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			credit_balance              = wallets.credit_balance + EXCLUDED.credit_balance,
			total_won_from_competitions = wallets.total_won_from_competitions + EXCLUDED.total_won_from_competitions,
			total_won_from_challenges   = wallets.total_won_from_challenges + EXCLUDED.total_won_from_challenges,
			updated_at                  = NOW()
		RETURNING id, credit_balance`,
		uuid.New().String(), userID, amount, compWon, chalWon,
	).Scan(&walletID, &after)
	if err != nil {
		return decimal.Zero, decimal.Zero, "", fmt.Errorf("postgres: credit prize to user %s: %w", userID, err)
	}

	before := after.Sub(amount)
	return before, after, walletID, nil
}

// CreateTransaction appends one wallet ledger entry.
func (s *WalletStore) CreateTransaction(ctx context.Context, tx domain.WalletTransaction) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO wallet_transactions (
			id, wallet_id, user_id, contest_id, type, amount,
			balance_before, balance_after, description, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tx.ID, tx.WalletID, tx.UserID, tx.ContestID, string(tx.Type),
		tx.Amount, tx.BalanceBefore, tx.BalanceAfter, tx.Description, tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create wallet transaction %s: %w", tx.ID, err)
	}
	return nil
}

// ListTransactionsByContest returns the wallet ledger entries written while
// settling one contest.
func (s *WalletStore) ListTransactionsByContest(ctx context.Context, contestID string) ([]domain.WalletTransaction, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, wallet_id, user_id, contest_id, type, amount,
			balance_before, balance_after, description, created_at
		 FROM wallet_transactions
		 WHERE contest_id = $1
		 ORDER BY created_at ASC`, contestID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wallet transactions for contest %s: %w", contestID, err)
	}
	defer rows.Close()

	var txs []domain.WalletTransaction
	for rows.Next() {
		var tx domain.WalletTransaction
		var typ string
		if err := rows.Scan(
			&tx.ID, &tx.WalletID, &tx.UserID, &tx.ContestID, &typ, &tx.Amount,
			&tx.BalanceBefore, &tx.BalanceAfter, &tx.Description, &tx.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan wallet transaction: %w", err)
		}
		tx.Type = domain.WalletTransactionType(typ)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
