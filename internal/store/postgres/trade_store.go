package postgres

import (
	"context"
	"fmt"

	"github.com/fxarena/fxarena/internal/domain"
)

// TradeStore implements domain.TradeHistoryStore using PostgreSQL. The
// trade_history table is the append-only audit trail for reconciliation.
type TradeStore struct {
	q Querier
}

// NewTradeStore creates a new TradeStore over the given querier.
func NewTradeStore(q Querier) *TradeStore {
	return &TradeStore{q: q}
}

// Create appends one closed-trade record.
func (s *TradeStore) Create(ctx context.Context, trade domain.TradeHistory) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO trade_history (
			id, contest_id, participant_id, position_id, symbol, side,
			quantity, entry_price, exit_price, realized_pnl,
			realized_pnl_pct, holding_time_seconds, close_reason, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		trade.ID, trade.ContestID, trade.ParticipantID, trade.PositionID,
		trade.Symbol, string(trade.Side),
		trade.Quantity, trade.EntryPrice, trade.ExitPrice, trade.RealizedPnL,
		trade.RealizedPnLPercentage, trade.HoldingTimeSeconds,
		string(trade.CloseReason), trade.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create trade record %s: %w", trade.ID, err)
	}
	return nil
}

// ListByContest returns the full trade history for one contest.
func (s *TradeStore) ListByContest(ctx context.Context, contestID string) ([]domain.TradeHistory, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, contest_id, participant_id, position_id, symbol, side,
			quantity, entry_price, exit_price, realized_pnl,
			realized_pnl_pct, holding_time_seconds, close_reason, closed_at
		 FROM trade_history
		 WHERE contest_id = $1
		 ORDER BY closed_at ASC`, contestID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for contest %s: %w", contestID, err)
	}
	defer rows.Close()

	var trades []domain.TradeHistory
	for rows.Next() {
		var t domain.TradeHistory
		var side, reason string
		if err := rows.Scan(
			&t.ID, &t.ContestID, &t.ParticipantID, &t.PositionID, &t.Symbol, &side,
			&t.Quantity, &t.EntryPrice, &t.ExitPrice, &t.RealizedPnL,
			&t.RealizedPnLPercentage, &t.HoldingTimeSeconds, &reason, &t.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Side = domain.PositionSide(side)
		t.CloseReason = domain.CloseReason(reason)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
