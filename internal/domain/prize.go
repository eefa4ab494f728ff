package domain

import "github.com/shopspring/decimal"

// UnclaimedReason classifies why part of a prize pool went unpaid.
type UnclaimedReason string

const (
	UnclaimedNoParticipants     UnclaimedReason = "no_participants"
	UnclaimedAllDisqualified    UnclaimedReason = "all_disqualified"
	UnclaimedNoQualifiedWinners UnclaimedReason = "no_qualified_winners"
)

// PrizeDistributionEntry is one winner's computed payout. Entries are
// ephemeral: they are folded into the contest leaderboard and the wallet
// ledger, never persisted on their own.
type PrizeDistributionEntry struct {
	Rank          int
	ParticipantID string
	UserID        string
	GrossShare    decimal.Decimal
	NetPayout     decimal.Decimal
	IsTied        bool
}

// Distribution is the complete result of dividing one contest's pool.
// Invariant: TotalNet + PlatformFee + UnclaimedPool equals the gross pool
// exactly after rounding reconciliation.
type Distribution struct {
	Entries         []PrizeDistributionEntry
	PlatformFee     decimal.Decimal
	UnclaimedPool   decimal.Decimal
	UnclaimedReason *UnclaimedReason
}

// TotalNet sums the net payouts across all entries.
func (d Distribution) TotalNet() decimal.Decimal {
	total := decimal.Zero
	for _, e := range d.Entries {
		total = total.Add(e.NetPayout)
	}
	return total
}
