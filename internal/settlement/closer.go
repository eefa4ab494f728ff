package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fxarena/fxarena/internal/domain"
)

// Closer is the only writer of a position's terminal state. Given an open
// position and an exit quote it computes realized P&L, writes the closing
// order, flips the position to its terminal status, and appends the trade
// history record.
type Closer struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewCloser creates a Closer.
func NewCloser(logger *slog.Logger) *Closer {
	return &Closer{
		logger: logger.With(slog.String("component", "closer")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// realizedPnL computes the profit for closing the position at exitPrice:
// priceDiff * quantity * contract size, with the price difference
// sign-flipped for shorts.
func realizedPnL(pos domain.Position, exitPrice decimal.Decimal) decimal.Decimal {
	priceDiff := exitPrice.Sub(pos.EntryPrice)
	if pos.Side == domain.PositionSideShort {
		priceDiff = priceDiff.Neg()
	}
	return priceDiff.Mul(pos.Quantity).Mul(domain.ForexContractSize)
}

// closingSide returns the order side that flattens the position.
func closingSide(side domain.PositionSide) domain.OrderSide {
	if side == domain.PositionSideShort {
		return domain.OrderSideBuy
	}
	return domain.OrderSideSell
}

// Close settles one position at the given quote. The writes go through st,
// so when st is bound to a transaction the close participates in it.
//
// A position that is already terminal returns domain.ErrAlreadyClosed;
// callers treat that as a no-op, not a failure.
func (c *Closer) Close(ctx context.Context, st domain.Stores, pos domain.Position, quote domain.Quote, reason domain.CloseReason) (domain.TradeHistory, error) {
	if pos.Terminal() {
		return domain.TradeHistory{}, domain.ErrAlreadyClosed
	}

	now := c.now()
	if quote.Stale(now) {
		return domain.TradeHistory{}, fmt.Errorf("closer: %s quote is stale: %w", pos.Symbol, domain.ErrPriceUnavailable)
	}

	exitPrice := quote.ClosePrice(pos.Side)
	pnl := realizedPnL(pos, exitPrice)

	order := domain.Order{
		ID:            uuid.New().String(),
		ContestID:     pos.ContestID,
		ParticipantID: pos.ParticipantID,
		PositionID:    pos.ID,
		Symbol:        pos.Symbol,
		Side:          closingSide(pos.Side),
		Quantity:      pos.Quantity,
		Price:         exitPrice,
		Status:        domain.OrderStatusFilled,
		CreatedAt:     now,
	}
	if err := st.Orders.Create(ctx, order); err != nil {
		return domain.TradeHistory{}, fmt.Errorf("closer: create closing order for %s: %w", pos.ID, err)
	}

	status := domain.PositionStatusClosed
	if reason == domain.CloseReasonLiquidation {
		status = domain.PositionStatusLiquidated
	}
	pos.Status = status
	pos.ExitPrice = &exitPrice
	pos.ProfitLoss = pnl
	pos.CloseReason = &reason
	pos.ClosedAt = &now

	if err := st.Positions.CloseTerminal(ctx, pos); err != nil {
		return domain.TradeHistory{}, fmt.Errorf("closer: close position %s: %w", pos.ID, err)
	}

	// Realized P&L as a percentage of the margin the position locked.
	pnlPct := decimal.Zero
	if pos.MarginUsed.IsPositive() {
		pnlPct = pnl.Div(pos.MarginUsed).Mul(decimal.NewFromInt(100))
	}

	trade := domain.TradeHistory{
		ID:                    uuid.New().String(),
		ContestID:             pos.ContestID,
		ParticipantID:         pos.ParticipantID,
		PositionID:            pos.ID,
		Symbol:                pos.Symbol,
		Side:                  pos.Side,
		Quantity:              pos.Quantity,
		EntryPrice:            pos.EntryPrice,
		ExitPrice:             exitPrice,
		RealizedPnL:           pnl,
		RealizedPnLPercentage: pnlPct,
		HoldingTimeSeconds:    int64(now.Sub(pos.OpenedAt).Seconds()),
		CloseReason:           reason,
		ClosedAt:              now,
	}
	if err := st.Trades.Create(ctx, trade); err != nil {
		return domain.TradeHistory{}, fmt.Errorf("closer: create trade history for %s: %w", pos.ID, err)
	}

	c.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("reason", string(reason)),
		slog.String("exit_price", exitPrice.String()),
		slog.String("pnl", pnl.String()),
	)

	return trade, nil
}
