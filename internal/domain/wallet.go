package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a user's credit balance. Wallets are the most contended
// resource during settlement (one user may win several contests at once),
// so all balance mutations are additive at the store level.
type Wallet struct {
	ID                       string
	UserID                   string
	CreditBalance            decimal.Decimal
	TotalWonFromCompetitions decimal.Decimal
	TotalWonFromChallenges   decimal.Decimal
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// WalletTransactionType classifies credit movements on a user wallet.
type WalletTransactionType string

const (
	WalletTxDeposit  WalletTransactionType = "deposit"
	WalletTxPrizeWin WalletTransactionType = "prize_win"
)

// WalletTransaction is an immutable ledger entry for one credit movement,
// carrying before/after balances for auditability. Rows are only ever
// created inside a committed settlement transaction.
type WalletTransaction struct {
	ID            string
	WalletID      string
	UserID        string
	ContestID     *string
	Type          WalletTransactionType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Description   string
	CreatedAt     time.Time
}

// PlatformTransactionType classifies platform-side ledger entries.
type PlatformTransactionType string

const (
	PlatformTxFee       PlatformTransactionType = "platform_fee"
	PlatformTxUnclaimed PlatformTransactionType = "unclaimed_pool"
)

// PlatformTransaction records the platform's retained fee or captured
// unclaimed pool for one settled contest. The two are reported separately
// and must never be folded together.
type PlatformTransaction struct {
	ID        string
	ContestID string
	Type      PlatformTransactionType
	Amount    decimal.Decimal
	Reason    string
	CreatedAt time.Time
}
