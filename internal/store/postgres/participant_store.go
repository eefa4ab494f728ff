package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/fxarena/fxarena/internal/domain"
)

// ParticipantStore implements domain.ParticipantStore using PostgreSQL.
type ParticipantStore struct {
	q Querier
}

// NewParticipantStore creates a new ParticipantStore over the given querier.
func NewParticipantStore(q Querier) *ParticipantStore {
	return &ParticipantStore{q: q}
}

const participantSelectCols = `id, contest_id, user_id, status,
	starting_capital, current_capital, profit_loss, roi,
	total_trades, winning_trades, losing_trades,
	total_win_amount, total_loss_amount, joined_at`

func scanParticipantRow(row pgx.Row) (domain.Participant, error) {
	var p domain.Participant
	var status string

	err := row.Scan(
		&p.ID, &p.ContestID, &p.UserID, &status,
		&p.StartingCapital, &p.CurrentCapital, &p.ProfitLoss, &p.ROI,
		&p.TotalTrades, &p.WinningTrades, &p.LosingTrades,
		&p.TotalWinAmount, &p.TotalLossAmount, &p.JoinedAt,
	)
	if err != nil {
		return domain.Participant{}, err
	}
	p.Status = domain.ParticipantStatus(status)
	return p, nil
}

// GetByID retrieves a single participant by its ID.
func (s *ParticipantStore) GetByID(ctx context.Context, id string) (domain.Participant, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+participantSelectCols+` FROM participants WHERE id = $1`, id)

	p, err := scanParticipantRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Participant{}, domain.ErrNotFound
		}
		return domain.Participant{}, fmt.Errorf("postgres: get participant %s: %w", id, err)
	}
	return p, nil
}

// ListByContest returns every participant in the given contest.
func (s *ParticipantStore) ListByContest(ctx context.Context, contestID string) ([]domain.Participant, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+participantSelectCols+` FROM participants
		 WHERE contest_id = $1
		 ORDER BY joined_at ASC`, contestID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list participants for contest %s: %w", contestID, err)
	}
	defer rows.Close()

	var participants []domain.Participant
	for rows.Next() {
		p, err := scanParticipantRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// UpdateAggregates rewrites the recomputed statistics for a participant.
func (s *ParticipantStore) UpdateAggregates(ctx context.Context, p domain.Participant) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE participants SET
			status            = $2,
			current_capital   = $3,
			profit_loss       = $4,
			roi               = $5,
			total_trades      = $6,
			winning_trades    = $7,
			losing_trades     = $8,
			total_win_amount  = $9,
			total_loss_amount = $10,
			updated_at        = NOW()
		 WHERE id = $1`,
		p.ID, string(p.Status),
		p.CurrentCapital, p.ProfitLoss, p.ROI,
		p.TotalTrades, p.WinningTrades, p.LosingTrades,
		p.TotalWinAmount, p.TotalLossAmount,
	)
	if err != nil {
		return fmt.Errorf("postgres: update participant %s aggregates: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ApplyTrade additively folds one closed trade into the participant's
// running statistics. The mutation is expressed in SQL so concurrent
// writers interleave without a read-modify-write race.
func (s *ParticipantStore) ApplyTrade(ctx context.Context, participantID string, pnl decimal.Decimal) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE participants SET
			current_capital   = current_capital + $2::numeric,
			profit_loss       = profit_loss + $2::numeric,
			total_trades      = total_trades + 1,
			winning_trades    = winning_trades + CASE WHEN $2::numeric > 0 THEN 1 ELSE 0 END,
			losing_trades     = losing_trades  + CASE WHEN $2::numeric < 0 THEN 1 ELSE 0 END,
			total_win_amount  = total_win_amount  + CASE WHEN $2::numeric > 0 THEN $2::numeric ELSE 0 END,
			total_loss_amount = total_loss_amount + CASE WHEN $2::numeric < 0 THEN -$2::numeric ELSE 0 END,
			updated_at        = NOW()
		 WHERE id = $1`,
		participantID, pnl,
	)
	if err != nil {
		return fmt.Errorf("postgres: apply trade to participant %s: %w", participantID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatus sets the participant's standing within the contest.
func (s *ParticipantStore) UpdateStatus(ctx context.Context, participantID string, status domain.ParticipantStatus) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE participants SET status = $2, updated_at = NOW() WHERE id = $1`,
		participantID, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update participant %s status: %w", participantID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
