package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fxarena/fxarena/internal/domain"
)

// Notifier delivers fire-and-forget user/operator notifications. Failures
// are logged by the caller and never propagated.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Monitor periodically sweeps every open position of every active contest,
// classifies margin levels, and force-liquidates breached participants
// through the Closer.
type Monitor struct {
	runner   domain.TxRunner
	st       domain.Stores
	prices   domain.PriceSource
	closer   *Closer
	events   domain.EventBus
	notifier Notifier
	cfg      ConfigProvider
	logger   *slog.Logger
}

// NewMonitor creates a Monitor with all required dependencies.
func NewMonitor(
	runner domain.TxRunner,
	st domain.Stores,
	prices domain.PriceSource,
	closer *Closer,
	events domain.EventBus,
	notifier Notifier,
	cfg ConfigProvider,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		runner:   runner,
		st:       st,
		prices:   prices,
		closer:   closer,
		events:   events,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "margin_monitor")),
	}
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	ContestsSwept   int
	PositionsClosed int
	Liquidations    int
	MarginCalls     int
}

// SweepAll sweeps every active contest. A failure in one contest is logged
// and does not stop the others.
func (m *Monitor) SweepAll(ctx context.Context) (SweepResult, error) {
	contests, err := m.st.Contests.ListByStatus(ctx, domain.ContestStatusActive)
	if err != nil {
		return SweepResult{}, fmt.Errorf("monitor: list active contests: %w", err)
	}

	var total SweepResult
	for _, contest := range contests {
		res, err := m.SweepContest(ctx, contest)
		if err != nil {
			m.logger.ErrorContext(ctx, "contest sweep failed",
				slog.String("contest_id", contest.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		total.ContestsSwept++
		total.PositionsClosed += res.PositionsClosed
		total.Liquidations += res.Liquidations
		total.MarginCalls += res.MarginCalls
	}
	return total, nil
}

// SweepContest checks margin health for every participant with open
// positions in one contest. Prices for all distinct symbols are fetched in
// a single batch call before any position is examined; a missing quote for
// one symbol skips only that symbol's positions and is retried on the
// next sweep.
func (m *Monitor) SweepContest(ctx context.Context, contest domain.Contest) (SweepResult, error) {
	positions, err := m.st.Positions.ListOpenByContest(ctx, contest.ID)
	if err != nil {
		return SweepResult{}, fmt.Errorf("monitor: list open positions for %s: %w", contest.ID, err)
	}
	if len(positions) == 0 {
		return SweepResult{}, nil
	}

	// One batched price fetch for every distinct symbol in the sweep.
	symbolSet := make(map[string]struct{})
	for _, pos := range positions {
		symbolSet[pos.Symbol] = struct{}{}
	}
	symbols := make([]string, 0, len(symbolSet))
	for s := range symbolSet {
		symbols = append(symbols, s)
	}
	quotes, err := m.prices.GetPrices(ctx, symbols)
	if err != nil {
		return SweepResult{}, fmt.Errorf("monitor: batch price fetch: %w", err)
	}

	participants, err := m.st.Participants.ListByContest(ctx, contest.ID)
	if err != nil {
		return SweepResult{}, fmt.Errorf("monitor: list participants for %s: %w", contest.ID, err)
	}
	byID := make(map[string]domain.Participant, len(participants))
	for _, p := range participants {
		byID[p.ID] = p
	}

	open := make(map[string][]domain.Position)
	for _, pos := range positions {
		open[pos.ParticipantID] = append(open[pos.ParticipantID], pos)
	}

	thresholds := m.cfg().Thresholds
	var res SweepResult

	for participantID, posns := range open {
		participant, ok := byID[participantID]
		if !ok {
			m.logger.WarnContext(ctx, "open positions for unknown participant",
				slog.String("participant_id", participantID),
			)
			continue
		}

		level, ok := marginLevel(participant, posns)
		if !ok {
			continue
		}

		switch thresholds.Classify(level) {
		case MarginLiquidation:
			closed, skipped := m.liquidate(ctx, participant, posns, quotes)
			res.Liquidations += closed
			res.PositionsClosed += closed
			if closed > 0 && skipped == 0 {
				if err := m.st.Participants.UpdateStatus(ctx, participantID, domain.ParticipantStatusLiquidated); err != nil {
					m.logger.ErrorContext(ctx, "mark participant liquidated",
						slog.String("participant_id", participantID),
						slog.String("error", err.Error()),
					)
				}
			}
		case MarginCall:
			res.MarginCalls++
			m.emitMarginCall(ctx, participant, level)
		case MarginWarning:
			if thresholds.Noisy(level) {
				m.logger.InfoContext(ctx, "margin level below warning threshold",
					slog.String("participant_id", participantID),
					slog.Float64("margin_level", level),
				)
			}
		}
	}

	return res, nil
}

// marginLevel computes (currentCapital / totalMarginUsed) * 100 for a
// participant's open positions. Returns false when no margin is locked.
func marginLevel(p domain.Participant, positions []domain.Position) (float64, bool) {
	totalMargin := positions[0].MarginUsed
	for _, pos := range positions[1:] {
		totalMargin = totalMargin.Add(pos.MarginUsed)
	}
	if !totalMargin.IsPositive() {
		return 0, false
	}
	level, _ := p.CurrentCapital.Div(totalMargin).Mul(oneHundred).Float64()
	return level, true
}

// liquidate force-closes every open position of a breached participant.
// Each close runs in its own transaction together with the additive
// participant P&L update, so one failure does not poison the rest.
// Positions whose symbol has no fresh quote are skipped and retried on
// the next sweep.
func (m *Monitor) liquidate(ctx context.Context, participant domain.Participant, positions []domain.Position, quotes map[string]domain.Quote) (closed, skipped int) {
	for _, pos := range positions {
		quote, ok := quotes[pos.Symbol]
		if !ok {
			skipped++
			m.logger.WarnContext(ctx, "no quote for symbol, skipping liquidation",
				slog.String("position_id", pos.ID),
				slog.String("symbol", pos.Symbol),
			)
			continue
		}

		var trade domain.TradeHistory
		err := m.runner.RunInTx(ctx, func(st domain.Stores) error {
			var closeErr error
			trade, closeErr = m.closer.Close(ctx, st, pos, quote, domain.CloseReasonLiquidation)
			if closeErr != nil {
				return closeErr
			}
			return st.Participants.ApplyTrade(ctx, participant.ID, trade.RealizedPnL)
		})
		if errors.Is(err, domain.ErrAlreadyClosed) {
			// Lost the race against a manual close or finalization.
			continue
		}
		if err != nil {
			skipped++
			m.logger.ErrorContext(ctx, "liquidation failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		closed++
		m.emitLiquidation(ctx, participant, pos, trade)
	}
	return closed, skipped
}

func (m *Monitor) emitLiquidation(ctx context.Context, participant domain.Participant, pos domain.Position, trade domain.TradeHistory) {
	payload, _ := json.Marshal(map[string]any{
		"event":          "position_liquidated",
		"contest_id":     pos.ContestID,
		"participant_id": participant.ID,
		"position_id":    pos.ID,
		"symbol":         pos.Symbol,
		"realized_pnl":   trade.RealizedPnL.String(),
	})
	if err := m.events.Publish(ctx, "settlement", payload); err != nil {
		m.logger.WarnContext(ctx, "publish liquidation event failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := m.notifier.Notify(ctx, "liquidation",
		"Position liquidated",
		fmt.Sprintf("Position %s (%s) was liquidated with P&L %s", pos.ID, pos.Symbol, trade.RealizedPnL.StringFixed(2)),
	); err != nil {
		m.logger.WarnContext(ctx, "liquidation notification failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Monitor) emitMarginCall(ctx context.Context, participant domain.Participant, level float64) {
	payload, _ := json.Marshal(map[string]any{
		"event":          "margin_call",
		"contest_id":     participant.ContestID,
		"participant_id": participant.ID,
		"margin_level":   level,
	})
	if err := m.events.Publish(ctx, "settlement", payload); err != nil {
		m.logger.WarnContext(ctx, "publish margin call event failed",
			slog.String("participant_id", participant.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := m.notifier.Notify(ctx, "margin_call",
		"Margin call",
		fmt.Sprintf("Margin level %.1f%% for participant %s", level, participant.ID),
	); err != nil {
		m.logger.WarnContext(ctx, "margin call notification failed",
			slog.String("participant_id", participant.ID),
			slog.String("error", err.Error()),
		)
	}
}
