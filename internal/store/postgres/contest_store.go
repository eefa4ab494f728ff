package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fxarena/fxarena/internal/domain"
)

// ContestStore implements domain.ContestStore using PostgreSQL.
type ContestStore struct {
	q Querier
}

// NewContestStore creates a new ContestStore over the given querier.
func NewContestStore(q Querier) *ContestStore {
	return &ContestStore{q: q}
}

const contestSelectCols = `id, type, name, status, start_time, end_time,
	gross_prize_pool, platform_fee_pct, prize_table, rules, tie_policy,
	winner_id, leaderboard, created_at, completed_at`

func scanContestRow(row pgx.Row) (domain.Contest, error) {
	var (
		c               domain.Contest
		typ, status     string
		tiePolicy       string
		prizeTableJSON  []byte
		rulesJSON       []byte
		leaderboardJSON []byte
	)

	err := row.Scan(
		&c.ID, &typ, &c.Name, &status, &c.StartTime, &c.EndTime,
		&c.GrossPrizePool, &c.PlatformFeePct,
		&prizeTableJSON, &rulesJSON, &tiePolicy,
		&c.WinnerID, &leaderboardJSON, &c.CreatedAt, &c.CompletedAt,
	)
	if err != nil {
		return domain.Contest{}, err
	}

	c.Type = domain.ContestType(typ)
	c.Status = domain.ContestStatus(status)
	c.TiePolicy = domain.TiePrizePolicy(tiePolicy)

	if len(prizeTableJSON) > 0 {
		if err := json.Unmarshal(prizeTableJSON, &c.PrizeTable); err != nil {
			return domain.Contest{}, fmt.Errorf("decode prize table: %w", err)
		}
	}
	if len(rulesJSON) > 0 {
		if err := json.Unmarshal(rulesJSON, &c.Rules); err != nil {
			return domain.Contest{}, fmt.Errorf("decode rules: %w", err)
		}
	}
	if len(leaderboardJSON) > 0 {
		if err := json.Unmarshal(leaderboardJSON, &c.Leaderboard); err != nil {
			return domain.Contest{}, fmt.Errorf("decode leaderboard: %w", err)
		}
	}
	return c, nil
}

func (s *ContestStore) queryContests(ctx context.Context, query string, args ...any) ([]domain.Contest, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contests []domain.Contest
	for rows.Next() {
		c, err := scanContestRow(rows)
		if err != nil {
			return nil, err
		}
		contests = append(contests, c)
	}
	return contests, rows.Err()
}

// GetByID retrieves a single contest by its ID.
func (s *ContestStore) GetByID(ctx context.Context, id string) (domain.Contest, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+contestSelectCols+` FROM contests WHERE id = $1`, id)

	c, err := scanContestRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Contest{}, domain.ErrNotFound
		}
		return domain.Contest{}, fmt.Errorf("postgres: get contest %s: %w", id, err)
	}
	return c, nil
}

// ListByStatus returns all contests in the given lifecycle state.
func (s *ContestStore) ListByStatus(ctx context.Context, status domain.ContestStatus) ([]domain.Contest, error) {
	contests, err := s.queryContests(ctx,
		`SELECT `+contestSelectCols+` FROM contests
		 WHERE status = $1
		 ORDER BY end_time ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("postgres: list contests by status %s: %w", status, err)
	}
	return contests, nil
}

// ListDueForFinalization returns active contests whose end time has passed.
func (s *ContestStore) ListDueForFinalization(ctx context.Context, now time.Time) ([]domain.Contest, error) {
	contests, err := s.queryContests(ctx,
		`SELECT `+contestSelectCols+` FROM contests
		 WHERE status = 'active' AND end_time <= $1
		 ORDER BY end_time ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list contests due for finalization: %w", err)
	}
	return contests, nil
}

// ListDueForActivation returns upcoming contests whose start time has passed.
func (s *ContestStore) ListDueForActivation(ctx context.Context, now time.Time) ([]domain.Contest, error) {
	contests, err := s.queryContests(ctx,
		`SELECT `+contestSelectCols+` FROM contests
		 WHERE status = 'upcoming' AND start_time <= $1
		 ORDER BY start_time ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list contests due for activation: %w", err)
	}
	return contests, nil
}

// UpdateStatus transitions a contest from one status to another. The guard
// on the previous status makes concurrent transitions race-safe.
func (s *ContestStore) UpdateStatus(ctx context.Context, id string, from, to domain.ContestStatus) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE contests SET status = $3, updated_at = NOW()
		 WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("postgres: update contest %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Complete flips the contest to completed and records the winner and final
// leaderboard. It only succeeds while the contest is active.
func (s *ContestStore) Complete(ctx context.Context, id string, winnerID *string, leaderboard []domain.LeaderboardEntry, completedAt time.Time) error {
	leaderboardJSON, err := json.Marshal(leaderboard)
	if err != nil {
		return fmt.Errorf("postgres: encode leaderboard for %s: %w", id, err)
	}

	tag, err := s.q.Exec(ctx,
		`UPDATE contests SET
			status       = 'completed',
			winner_id    = $2,
			leaderboard  = $3,
			completed_at = $4,
			updated_at   = NOW()
		 WHERE id = $1 AND status = 'active'`,
		id, winnerID, leaderboardJSON, completedAt)
	if err != nil {
		return fmt.Errorf("postgres: complete contest %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		if lookupErr := s.q.QueryRow(ctx,
			`SELECT status FROM contests WHERE id = $1`, id,
		).Scan(&status); lookupErr != nil {
			if errors.Is(lookupErr, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("postgres: look up contest %s: %w", id, lookupErr)
		}
		return domain.ErrContestNotActive
	}
	return nil
}

// ListCompletedBefore returns contests completed strictly before the cutoff.
func (s *ContestStore) ListCompletedBefore(ctx context.Context, before time.Time) ([]domain.Contest, error) {
	contests, err := s.queryContests(ctx,
		`SELECT `+contestSelectCols+` FROM contests
		 WHERE status = 'completed' AND completed_at < $1
		 ORDER BY completed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list completed contests: %w", err)
	}
	return contests, nil
}
