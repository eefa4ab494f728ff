package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fxarena/fxarena/internal/domain"
)

// ParticipantDetailService fetches a single participant by its ID.
type ParticipantDetailService interface {
	GetByID(ctx context.Context, id string) (domain.Participant, error)
}

// PositionService reads positions for the detail endpoints.
type PositionService interface {
	GetByID(ctx context.Context, id string) (domain.Position, error)
	ListOpenByParticipant(ctx context.Context, participantID string) ([]domain.Position, error)
}

// ParticipantHandler serves participant and position detail endpoints.
type ParticipantHandler struct {
	participants ParticipantDetailService
	positions    PositionService
	logger       *slog.Logger
}

// NewParticipantHandler creates a ParticipantHandler with the given services.
func NewParticipantHandler(participants ParticipantDetailService, positions PositionService, logger *slog.Logger) *ParticipantHandler {
	return &ParticipantHandler{
		participants: participants,
		positions:    positions,
		logger:       logger,
	}
}

// positionResponse is the wire representation of a position.
type positionResponse struct {
	ID            string                `json:"id"`
	ContestID     string                `json:"contest_id"`
	ParticipantID string                `json:"participant_id"`
	Symbol        string                `json:"symbol"`
	Side          domain.PositionSide   `json:"side"`
	Quantity      decimal.Decimal       `json:"quantity"`
	EntryPrice    decimal.Decimal       `json:"entry_price"`
	Leverage      int                   `json:"leverage"`
	MarginUsed    decimal.Decimal       `json:"margin_used"`
	Status        domain.PositionStatus `json:"status"`
	ProfitLoss    decimal.Decimal       `json:"profit_loss"`
	ExitPrice     *decimal.Decimal      `json:"exit_price,omitempty"`
	CloseReason   *domain.CloseReason   `json:"close_reason,omitempty"`
	OpenedAt      time.Time             `json:"opened_at"`
	ClosedAt      *time.Time            `json:"closed_at,omitempty"`
}

func toPositionResponse(p domain.Position) positionResponse {
	return positionResponse{
		ID:            p.ID,
		ContestID:     p.ContestID,
		ParticipantID: p.ParticipantID,
		Symbol:        p.Symbol,
		Side:          p.Side,
		Quantity:      p.Quantity,
		EntryPrice:    p.EntryPrice,
		Leverage:      p.Leverage,
		MarginUsed:    p.MarginUsed,
		Status:        p.Status,
		ProfitLoss:    p.ProfitLoss,
		ExitPrice:     p.ExitPrice,
		CloseReason:   p.CloseReason,
		OpenedAt:      p.OpenedAt,
		ClosedAt:      p.ClosedAt,
	}
}

// participantResponse is the wire representation of a participant together
// with their open positions and derived statistics.
type participantResponse struct {
	ID              string                   `json:"id"`
	ContestID       string                   `json:"contest_id"`
	UserID          string                   `json:"user_id"`
	Status          domain.ParticipantStatus `json:"status"`
	StartingCapital decimal.Decimal          `json:"starting_capital"`
	CurrentCapital  decimal.Decimal          `json:"current_capital"`
	ProfitLoss      decimal.Decimal          `json:"profit_loss"`
	ROI             decimal.Decimal          `json:"roi"`
	TotalTrades     int                      `json:"total_trades"`
	WinningTrades   int                      `json:"winning_trades"`
	LosingTrades    int                      `json:"losing_trades"`
	WinRate         decimal.Decimal          `json:"win_rate"`
	ProfitFactor    decimal.Decimal          `json:"profit_factor"`
	JoinedAt        time.Time                `json:"joined_at"`
	OpenPositions   []positionResponse       `json:"open_positions"`
}

// GetParticipant returns a participant with their derived statistics and
// current open positions.
// GET /api/participants/{id}
func (h *ParticipantHandler) GetParticipant(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing participant id")
		return
	}

	participant, err := h.participants.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "participant not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get participant failed",
			slog.String("participant_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get participant")
		return
	}

	open, err := h.positions.ListOpenByParticipant(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list open positions failed",
			slog.String("participant_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	resp := participantResponse{
		ID:              participant.ID,
		ContestID:       participant.ContestID,
		UserID:          participant.UserID,
		Status:          participant.Status,
		StartingCapital: participant.StartingCapital,
		CurrentCapital:  participant.CurrentCapital,
		ProfitLoss:      participant.ProfitLoss,
		ROI:             participant.ROI,
		TotalTrades:     participant.TotalTrades,
		WinningTrades:   participant.WinningTrades,
		LosingTrades:    participant.LosingTrades,
		WinRate:         participant.WinRate(),
		ProfitFactor:    participant.ProfitFactor(),
		JoinedAt:        participant.JoinedAt,
		OpenPositions:   make([]positionResponse, 0, len(open)),
	}
	for _, pos := range open {
		resp.OpenPositions = append(resp.OpenPositions, toPositionResponse(pos))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetPosition returns a single position by its ID.
// GET /api/positions/{id}
func (h *ParticipantHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing position id")
		return
	}

	pos, err := h.positions.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}

	writeJSON(w, http.StatusOK, toPositionResponse(pos))
}
