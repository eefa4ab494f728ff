package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionSide is the direction of a position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// PositionStatus tracks whether a position is open or has reached a
// terminal state. Only the position closer writes the terminal states.
type PositionStatus string

const (
	PositionStatusOpen       PositionStatus = "open"
	PositionStatusClosed     PositionStatus = "closed"
	PositionStatusLiquidated PositionStatus = "liquidated"
)

// CloseReason records why a position left the open state.
type CloseReason string

const (
	CloseReasonManual      CloseReason = "manual"
	CloseReasonTakeProfit  CloseReason = "tp"
	CloseReasonStopLoss    CloseReason = "sl"
	CloseReasonLiquidation CloseReason = "liquidation"
	CloseReasonContestEnd  CloseReason = "competition_end"
)

// ForexContractSize is the number of base-currency units in one standard
// lot. Every P&L computation multiplies by this constant.
var ForexContractSize = decimal.NewFromInt(100_000)

// Position is a simulated leveraged position held by a contest participant.
type Position struct {
	ID            string
	ContestID     string
	ParticipantID string
	Symbol        string
	Side          PositionSide
	Quantity      decimal.Decimal // lots
	EntryPrice    decimal.Decimal
	Leverage      int
	MarginUsed    decimal.Decimal
	TakeProfit    *decimal.Decimal
	StopLoss      *decimal.Decimal
	Status        PositionStatus
	ProfitLoss    decimal.Decimal
	ExitPrice     *decimal.Decimal
	CloseReason   *CloseReason
	OpenedAt      time.Time
	ClosedAt      *time.Time
}

// Terminal reports whether the position has already been closed or
// liquidated.
func (p Position) Terminal() bool {
	return p.Status == PositionStatusClosed || p.Status == PositionStatusLiquidated
}
