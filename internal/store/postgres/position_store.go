package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fxarena/fxarena/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	q Querier
}

// NewPositionStore creates a new PositionStore over the given querier.
func NewPositionStore(q Querier) *PositionStore {
	return &PositionStore{q: q}
}

const positionSelectCols = `id, contest_id, participant_id, symbol, side,
	quantity, entry_price, leverage, margin_used, take_profit, stop_loss,
	status, profit_loss, exit_price, close_reason, opened_at, closed_at`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side, status string

	err := row.Scan(
		&p.ID, &p.ContestID, &p.ParticipantID, &p.Symbol, &side,
		&p.Quantity, &p.EntryPrice, &p.Leverage, &p.MarginUsed,
		&p.TakeProfit, &p.StopLoss,
		&status, &p.ProfitLoss, &p.ExitPrice, &p.CloseReason,
		&p.OpenedAt, &p.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.PositionSide(side)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func (s *PositionStore) queryPositions(ctx context.Context, query string, args ...any) ([]domain.Position, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPositionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpenByContest returns all open positions in the given contest.
func (s *PositionStore) ListOpenByContest(ctx context.Context, contestID string) ([]domain.Position, error) {
	positions, err := s.queryPositions(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE contest_id = $1 AND status = 'open'
		 ORDER BY opened_at ASC`, contestID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions for contest %s: %w", contestID, err)
	}
	return positions, nil
}

// ListOpenByParticipant returns all open positions held by one participant.
func (s *PositionStore) ListOpenByParticipant(ctx context.Context, participantID string) ([]domain.Position, error) {
	positions, err := s.queryPositions(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE participant_id = $1 AND status = 'open'
		 ORDER BY opened_at ASC`, participantID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions for participant %s: %w", participantID, err)
	}
	return positions, nil
}

// CloseTerminal writes the terminal state of a position. The guard on
// status='open' makes each position close exactly once; a position already
// in a terminal state yields ErrAlreadyClosed.
func (s *PositionStore) CloseTerminal(ctx context.Context, pos domain.Position) error {
	var reason *string
	if pos.CloseReason != nil {
		r := string(*pos.CloseReason)
		reason = &r
	}

	tag, err := s.q.Exec(ctx,
		`UPDATE positions SET
			status       = $2,
			profit_loss  = $3,
			exit_price   = $4,
			close_reason = $5,
			closed_at    = $6,
			updated_at   = NOW()
		 WHERE id = $1 AND status = 'open'`,
		pos.ID, string(pos.Status), pos.ProfitLoss,
		pos.ExitPrice, reason, pos.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", pos.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if lookupErr := s.q.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM positions WHERE id = $1)`, pos.ID,
		).Scan(&exists); lookupErr != nil {
			return fmt.Errorf("postgres: look up position %s: %w", pos.ID, lookupErr)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyClosed
	}
	return nil
}
