package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ContestStore persists contests.
type ContestStore interface {
	GetByID(ctx context.Context, id string) (Contest, error)
	ListByStatus(ctx context.Context, status ContestStatus) ([]Contest, error)
	// ListDueForFinalization returns active contests whose end time has
	// passed at the given instant.
	ListDueForFinalization(ctx context.Context, now time.Time) ([]Contest, error)
	// ListDueForActivation returns upcoming contests whose start time has
	// passed at the given instant.
	ListDueForActivation(ctx context.Context, now time.Time) ([]Contest, error)
	UpdateStatus(ctx context.Context, id string, from, to ContestStatus) error
	// Complete flips the contest to completed and records the winner and
	// final leaderboard. It only succeeds while the contest is active.
	Complete(ctx context.Context, id string, winnerID *string, leaderboard []LeaderboardEntry, completedAt time.Time) error
	// ListCompletedBefore returns contests completed strictly before the
	// cutoff, for cold-storage archival.
	ListCompletedBefore(ctx context.Context, before time.Time) ([]Contest, error)
}

// ParticipantStore persists contest participants.
type ParticipantStore interface {
	GetByID(ctx context.Context, id string) (Participant, error)
	ListByContest(ctx context.Context, contestID string) ([]Participant, error)
	// UpdateAggregates rewrites the recomputed statistics and status for a
	// participant at finalization.
	UpdateAggregates(ctx context.Context, p Participant) error
	// ApplyTrade additively folds one closed trade into the participant's
	// running statistics (capital, P&L, trade counters) so concurrent
	// writers interleave safely.
	ApplyTrade(ctx context.Context, participantID string, pnl decimal.Decimal) error
	UpdateStatus(ctx context.Context, participantID string, status ParticipantStatus) error
}

// PositionStore persists positions.
type PositionStore interface {
	GetByID(ctx context.Context, id string) (Position, error)
	ListOpenByContest(ctx context.Context, contestID string) ([]Position, error)
	ListOpenByParticipant(ctx context.Context, participantID string) ([]Position, error)
	// CloseTerminal writes the terminal state of a position. The guard on
	// status='open' makes the margin release happen exactly once; it
	// returns ErrAlreadyClosed when the position is already terminal.
	CloseTerminal(ctx context.Context, pos Position) error
}

// OrderStore persists orders.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	ListByContest(ctx context.Context, contestID string) ([]Order, error)
}

// TradeHistoryStore persists the append-only trade audit trail.
type TradeHistoryStore interface {
	Create(ctx context.Context, trade TradeHistory) error
	ListByContest(ctx context.Context, contestID string) ([]TradeHistory, error)
}

// WalletStore persists wallets and their ledger.
type WalletStore interface {
	GetByUserID(ctx context.Context, userID string) (Wallet, error)
	// CreditPrize adds amount to the user's wallet, creating the wallet if
	// it does not exist, and returns the balances before and after. The
	// balance mutation is additive so concurrent settlements interleave
	// safely.
	CreditPrize(ctx context.Context, userID string, amount decimal.Decimal, contestType ContestType) (before, after decimal.Decimal, walletID string, err error)
	CreateTransaction(ctx context.Context, tx WalletTransaction) error
	ListTransactionsByContest(ctx context.Context, contestID string) ([]WalletTransaction, error)
}

// PlatformStore persists platform-side ledger entries.
type PlatformStore interface {
	Create(ctx context.Context, tx PlatformTransaction) error
	ListByContest(ctx context.Context, contestID string) ([]PlatformTransaction, error)
}

// Stores bundles every ledger collection. A Stores value handed to a
// TxRunner callback is bound to that transaction; writes through it commit
// or roll back together.
type Stores struct {
	Contests     ContestStore
	Participants ParticipantStore
	Positions    PositionStore
	Orders       OrderStore
	Trades       TradeHistoryStore
	Wallets      WalletStore
	Platform     PlatformStore
}

// TxRunner executes fn inside one multi-statement transaction. If fn
// returns an error the whole transaction rolls back.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(Stores) error) error
}

// LockManager provides distributed advisory locks keyed by name.
type LockManager interface {
	// Acquire obtains the lock or returns ErrLockHeld. The returned
	// function releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// EventBus publishes settlement events for downstream consumers
// (dashboards, the ws hub). Publishing is fire-and-forget; callers log
// failures and move on.
type EventBus interface {
	Publish(ctx context.Context, stream string, payload []byte) error
}

// BadgeEvaluator re-evaluates a user's achievements after a settlement
// commit. Invoked post-commit only, best-effort.
type BadgeEvaluator interface {
	EvaluateUserBadges(ctx context.Context, userID string) ([]string, error)
}
