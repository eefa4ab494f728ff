package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ParticipantStatus tracks a participant's standing within one contest.
type ParticipantStatus string

const (
	ParticipantStatusActive       ParticipantStatus = "active"
	ParticipantStatusDisqualified ParticipantStatus = "disqualified"
	ParticipantStatusLiquidated   ParticipantStatus = "liquidated"
)

// Participant is one user's entry into one contest. Statistics are running
// aggregates maintained by trading activity and rewritten from recomputed
// totals at finalization; the row is immutable once the contest completes.
type Participant struct {
	ID              string
	ContestID       string
	UserID          string
	Status          ParticipantStatus
	StartingCapital decimal.Decimal
	CurrentCapital  decimal.Decimal
	ProfitLoss      decimal.Decimal
	ROI             decimal.Decimal // percentage
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	TotalWinAmount  decimal.Decimal
	TotalLossAmount decimal.Decimal // stored positive
	JoinedAt        time.Time
}

// WinRate returns the percentage of closed trades that were profitable.
func (p Participant) WinRate() decimal.Decimal {
	if p.TotalTrades == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(p.WinningTrades)).
		Div(decimal.NewFromInt(int64(p.TotalTrades))).
		Mul(decimal.NewFromInt(100))
}

// profitFactorCap bounds the profit factor when a participant has wins but
// no losses, keeping downstream arithmetic finite.
var profitFactorCap = decimal.NewFromInt(999)

// ProfitFactor returns totalWinAmount / totalLossAmount, capped at 999 when
// there are wins but no losses.
func (p Participant) ProfitFactor() decimal.Decimal {
	if p.TotalLossAmount.IsZero() {
		if p.TotalWinAmount.IsPositive() {
			return profitFactorCap
		}
		return decimal.Zero
	}
	pf := p.TotalWinAmount.Div(p.TotalLossAmount)
	if pf.GreaterThan(profitFactorCap) {
		return profitFactorCap
	}
	return pf
}
