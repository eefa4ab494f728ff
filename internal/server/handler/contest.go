package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fxarena/fxarena/internal/domain"
	"github.com/fxarena/fxarena/internal/settlement"
)

// ContestService defines what the contest handler needs from storage. It is
// declared locally so the handler package does not depend on the concrete
// store implementation.
type ContestService interface {
	GetByID(ctx context.Context, id string) (domain.Contest, error)
	ListByStatus(ctx context.Context, status domain.ContestStatus) ([]domain.Contest, error)
}

// ParticipantService lists the participants of a contest for live
// leaderboard computation.
type ParticipantService interface {
	ListByContest(ctx context.Context, contestID string) ([]domain.Participant, error)
}

// ContestHandler serves contest-related HTTP endpoints.
type ContestHandler struct {
	contests     ContestService
	participants ParticipantService
	logger       *slog.Logger
}

// NewContestHandler creates a ContestHandler with the given services.
func NewContestHandler(contests ContestService, participants ParticipantService, logger *slog.Logger) *ContestHandler {
	return &ContestHandler{
		contests:     contests,
		participants: participants,
		logger:       logger,
	}
}

// contestResponse is the wire representation of a contest.
type contestResponse struct {
	ID             string                    `json:"id"`
	Type           domain.ContestType        `json:"type"`
	Name           string                    `json:"name"`
	Status         domain.ContestStatus      `json:"status"`
	StartTime      time.Time                 `json:"start_time"`
	EndTime        time.Time                 `json:"end_time"`
	GrossPrizePool decimal.Decimal           `json:"gross_prize_pool"`
	PlatformFeePct decimal.Decimal           `json:"platform_fee_pct"`
	PrizeTable     []domain.PrizeTableEntry  `json:"prize_table"`
	Rules          domain.RankingRules       `json:"rules"`
	WinnerID       *string                   `json:"winner_id,omitempty"`
	Leaderboard    []domain.LeaderboardEntry `json:"leaderboard,omitempty"`
	CompletedAt    *time.Time                `json:"completed_at,omitempty"`
}

func toContestResponse(c domain.Contest) contestResponse {
	return contestResponse{
		ID:             c.ID,
		Type:           c.Type,
		Name:           c.Name,
		Status:         c.Status,
		StartTime:      c.StartTime,
		EndTime:        c.EndTime,
		GrossPrizePool: c.GrossPrizePool,
		PlatformFeePct: c.PlatformFeePct,
		PrizeTable:     c.PrizeTable,
		Rules:          c.Rules,
		WinnerID:       c.WinnerID,
		Leaderboard:    c.Leaderboard,
		CompletedAt:    c.CompletedAt,
	}
}

// listContestsResponse wraps the list endpoint output.
type listContestsResponse struct {
	Contests []contestResponse `json:"contests"`
	Total    int               `json:"total"`
}

// ListContests returns contests filtered by lifecycle status.
// GET /api/contests?status=active
func (h *ContestHandler) ListContests(w http.ResponseWriter, r *http.Request) {
	status := domain.ContestStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.ContestStatusActive
	}

	switch status {
	case domain.ContestStatusUpcoming, domain.ContestStatusActive,
		domain.ContestStatusCompleted, domain.ContestStatusCancelled:
	default:
		writeError(w, http.StatusBadRequest, "unknown contest status")
		return
	}

	contests, err := h.contests.ListByStatus(r.Context(), status)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list contests failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list contests")
		return
	}

	resp := listContestsResponse{
		Contests: make([]contestResponse, 0, len(contests)),
		Total:    len(contests),
	}
	for _, c := range contests {
		resp.Contests = append(resp.Contests, toContestResponse(c))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetContest returns a single contest by its ID.
// GET /api/contests/{id}
func (h *ContestHandler) GetContest(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing contest id")
		return
	}

	contest, err := h.contests.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "contest not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get contest failed",
			slog.String("contest_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get contest")
		return
	}

	writeJSON(w, http.StatusOK, toContestResponse(contest))
}

// leaderboardResponse wraps a leaderboard with its provenance: "final" rows
// come from the settled contest document, "live" rows are computed on the
// fly from current participant aggregates.
type leaderboardResponse struct {
	ContestID string                    `json:"contest_id"`
	Kind      string                    `json:"kind"`
	Entries   []domain.LeaderboardEntry `json:"entries"`
}

// GetLeaderboard returns the contest leaderboard. For completed contests it
// is the persisted final leaderboard; for active contests it is computed
// live without qualification filtering.
// GET /api/contests/{id}/leaderboard
func (h *ContestHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing contest id")
		return
	}

	contest, err := h.contests.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "contest not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get contest failed",
			slog.String("contest_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get contest")
		return
	}

	if contest.Status == domain.ContestStatusCompleted {
		writeJSON(w, http.StatusOK, leaderboardResponse{
			ContestID: contest.ID,
			Kind:      "final",
			Entries:   contest.Leaderboard,
		})
		return
	}

	participants, err := h.participants.ListByContest(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list participants failed",
			slog.String("contest_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list participants")
		return
	}

	ranked, err := settlement.Rank(participants, contest.Rules, contest.Status)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: live ranking failed",
			slog.String("contest_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to rank participants")
		return
	}

	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for _, rp := range ranked {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:          rp.Rank,
			ParticipantID: rp.ID,
			UserID:        rp.UserID,
			Metric:        rp.Metric,
			ProfitLoss:    rp.ProfitLoss,
			ROI:           rp.ROI,
			TotalTrades:   rp.TotalTrades,
			Disqualified:  rp.Disqualified,
			IsTied:        rp.IsTied,
		})
	}

	writeJSON(w, http.StatusOK, leaderboardResponse{
		ContestID: contest.ID,
		Kind:      "live",
		Entries:   entries,
	})
}
