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

// FinalizeService settles contests on demand.
type FinalizeService interface {
	Finalize(ctx context.Context, contestID string) (settlement.FinalizeResult, error)
}

// SweepService runs a margin sweep over all active contests.
type SweepService interface {
	SweepAll(ctx context.Context) (settlement.SweepResult, error)
}

// LedgerService reads the money trail of a settled contest.
type LedgerService interface {
	ListTransactionsByContest(ctx context.Context, contestID string) ([]domain.WalletTransaction, error)
}

// PlatformLedgerService reads the platform's retained fee and unclaimed
// pool entries for a contest.
type PlatformLedgerService interface {
	ListByContest(ctx context.Context, contestID string) ([]domain.PlatformTransaction, error)
}

// SettlementHandler exposes the operator-facing settlement endpoints:
// manual finalization, on-demand margin sweeps, and the ledger audit view.
type SettlementHandler struct {
	finalizer FinalizeService
	monitor   SweepService
	wallets   LedgerService
	platform  PlatformLedgerService
	logger    *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler with the given services.
func NewSettlementHandler(
	finalizer FinalizeService,
	monitor SweepService,
	wallets LedgerService,
	platform PlatformLedgerService,
	logger *slog.Logger,
) *SettlementHandler {
	return &SettlementHandler{
		finalizer: finalizer,
		monitor:   monitor,
		wallets:   wallets,
		platform:  platform,
		logger:    logger,
	}
}

// finalizeResponse is the wire form of a finalization outcome.
type finalizeResponse struct {
	ContestID        string                    `json:"contest_id"`
	AlreadyCompleted bool                      `json:"already_completed"`
	PositionsClosed  int                       `json:"positions_closed"`
	WinnerID         *string                   `json:"winner_id,omitempty"`
	TotalDistributed decimal.Decimal           `json:"total_distributed"`
	PlatformFee      decimal.Decimal           `json:"platform_fee"`
	UnclaimedPool    decimal.Decimal           `json:"unclaimed_pool"`
	Leaderboard      []domain.LeaderboardEntry `json:"leaderboard,omitempty"`
}

// Finalize settles a contest immediately instead of waiting for the
// scheduler. Safe to call on an already-completed contest.
// POST /api/contests/{id}/finalize
func (h *SettlementHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing contest id")
		return
	}

	result, err := h.finalizer.Finalize(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "contest not found")
		case errors.Is(err, domain.ErrContestNotActive):
			writeError(w, http.StatusConflict, "contest is not active")
		case errors.Is(err, domain.ErrPriceUnavailable):
			writeError(w, http.StatusServiceUnavailable, "price feed unavailable, retry later")
		default:
			h.logger.ErrorContext(r.Context(), "handler: finalize failed",
				slog.String("contest_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "finalization failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, finalizeResponse{
		ContestID:        result.ContestID,
		AlreadyCompleted: result.AlreadyCompleted,
		PositionsClosed:  result.PositionsClosed,
		WinnerID:         result.WinnerID,
		TotalDistributed: result.TotalDistributed,
		PlatformFee:      result.PlatformFee,
		UnclaimedPool:    result.UnclaimedPool,
		Leaderboard:      result.Leaderboard,
	})
}

// sweepResponse is the wire form of a margin sweep outcome.
type sweepResponse struct {
	ContestsSwept   int    `json:"contests_swept"`
	PositionsClosed int    `json:"positions_closed"`
	Liquidations    int    `json:"liquidations"`
	MarginCalls     int    `json:"margin_calls"`
	SweptAt         string `json:"swept_at"`
}

// Sweep runs one margin sweep across all active contests immediately.
// POST /api/settlement/sweep
func (h *SettlementHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.monitor.SweepAll(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: sweep failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}

	writeJSON(w, http.StatusOK, sweepResponse{
		ContestsSwept:   result.ContestsSwept,
		PositionsClosed: result.PositionsClosed,
		Liquidations:    result.Liquidations,
		MarginCalls:     result.MarginCalls,
		SweptAt:         time.Now().UTC().Format(time.RFC3339),
	})
}

// walletTxResponse is the wire form of one wallet ledger entry.
type walletTxResponse struct {
	ID            string          `json:"id"`
	WalletID      string          `json:"wallet_id"`
	UserID        string          `json:"user_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}

// platformTxResponse is the wire form of one platform ledger entry.
type platformTxResponse struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ledgerResponse is the full money trail of one contest's settlement.
type ledgerResponse struct {
	ContestID     string               `json:"contest_id"`
	WalletTxs     []walletTxResponse   `json:"wallet_transactions"`
	PlatformTxs   []platformTxResponse `json:"platform_transactions"`
	TotalCredits  decimal.Decimal      `json:"total_credits"`
	TotalRetained decimal.Decimal      `json:"total_retained"`
}

// GetLedger returns every wallet credit and platform ledger entry written
// for a contest, with totals, for settlement auditing.
// GET /api/contests/{id}/ledger
func (h *SettlementHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing contest id")
		return
	}

	walletTxs, err := h.wallets.ListTransactionsByContest(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list wallet transactions failed",
			slog.String("contest_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list wallet transactions")
		return
	}

	platformTxs, err := h.platform.ListByContest(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list platform transactions failed",
			slog.String("contest_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list platform transactions")
		return
	}

	resp := ledgerResponse{
		ContestID:     id,
		WalletTxs:     make([]walletTxResponse, 0, len(walletTxs)),
		PlatformTxs:   make([]platformTxResponse, 0, len(platformTxs)),
		TotalCredits:  decimal.Zero,
		TotalRetained: decimal.Zero,
	}

	for _, tx := range walletTxs {
		resp.WalletTxs = append(resp.WalletTxs, walletTxResponse{
			ID:            tx.ID,
			WalletID:      tx.WalletID,
			UserID:        tx.UserID,
			Type:          string(tx.Type),
			Amount:        tx.Amount,
			BalanceBefore: tx.BalanceBefore,
			BalanceAfter:  tx.BalanceAfter,
			Description:   tx.Description,
			CreatedAt:     tx.CreatedAt,
		})
		resp.TotalCredits = resp.TotalCredits.Add(tx.Amount)
	}

	for _, tx := range platformTxs {
		resp.PlatformTxs = append(resp.PlatformTxs, platformTxResponse{
			ID:        tx.ID,
			Type:      string(tx.Type),
			Amount:    tx.Amount,
			Reason:    tx.Reason,
			CreatedAt: tx.CreatedAt,
		})
		resp.TotalRetained = resp.TotalRetained.Add(tx.Amount)
	}

	writeJSON(w, http.StatusOK, resp)
}
