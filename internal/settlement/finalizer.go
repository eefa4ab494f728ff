package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fxarena/fxarena/internal/domain"
)

// Finalizer is the settlement state machine for one contest: close every
// open position, rewrite participant aggregates, rank, distribute the
// prize pool, credit wallets, record platform financials, and flip the
// contest to completed — all inside one transaction. On any failure the
// transaction aborts and the contest stays active for retry on the next
// scheduler tick, which makes Finalize safe to invoke arbitrarily often.
type Finalizer struct {
	runner   domain.TxRunner
	st       domain.Stores
	prices   domain.PriceSource
	closer   *Closer
	events   domain.EventBus
	notifier Notifier
	badges   domain.BadgeEvaluator
	cfg      ConfigProvider
	logger   *slog.Logger
	now      func() time.Time
}

// NewFinalizer creates a Finalizer with all required dependencies.
func NewFinalizer(
	runner domain.TxRunner,
	st domain.Stores,
	prices domain.PriceSource,
	closer *Closer,
	events domain.EventBus,
	notifier Notifier,
	badges domain.BadgeEvaluator,
	cfg ConfigProvider,
	logger *slog.Logger,
) *Finalizer {
	return &Finalizer{
		runner:   runner,
		st:       st,
		prices:   prices,
		closer:   closer,
		events:   events,
		notifier: notifier,
		badges:   badges,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "finalizer")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// FinalizeResult reports what one finalization did.
type FinalizeResult struct {
	ContestID        string
	AlreadyCompleted bool
	PositionsClosed  int
	Leaderboard      []domain.LeaderboardEntry
	WinnerID         *string
	TotalDistributed decimal.Decimal
	PlatformFee      decimal.Decimal
	UnclaimedPool    decimal.Decimal
}

// participantDelta accumulates the effect of the positions closed during
// finalization, in memory, before a single aggregate write per
// participant.
type participantDelta struct {
	pnl     decimal.Decimal
	trades  int
	wins    int
	losses  int
	winAmt  decimal.Decimal
	lossAmt decimal.Decimal
}

// Finalize settles one contest. Calling it on a completed contest is a
// safe no-op; calling it on an upcoming or cancelled contest is a
// structural error.
func (f *Finalizer) Finalize(ctx context.Context, contestID string) (FinalizeResult, error) {
	result := FinalizeResult{ContestID: contestID}
	var (
		contest domain.Contest
		dist    domain.Distribution
	)

	err := f.runner.RunInTx(ctx, func(st domain.Stores) error {
		var err error
		contest, err = st.Contests.GetByID(ctx, contestID)
		if err != nil {
			return fmt.Errorf("finalizer: fetch contest %s: %w", contestID, err)
		}
		if contest.Status == domain.ContestStatusCompleted {
			result.AlreadyCompleted = true
			return nil
		}
		if contest.Status != domain.ContestStatusActive {
			return fmt.Errorf("finalizer: contest %s is %s: %w", contestID, contest.Status, domain.ErrContestNotActive)
		}

		participants, err := st.Participants.ListByContest(ctx, contestID)
		if err != nil {
			return fmt.Errorf("finalizer: list participants: %w", err)
		}

		open, err := st.Positions.ListOpenByContest(ctx, contestID)
		if err != nil {
			return fmt.Errorf("finalizer: list open positions: %w", err)
		}

		// One batched price fetch for every distinct open symbol.
		symbolSet := make(map[string]struct{})
		for _, pos := range open {
			symbolSet[pos.Symbol] = struct{}{}
		}
		symbols := make([]string, 0, len(symbolSet))
		for s := range symbolSet {
			symbols = append(symbols, s)
		}
		var quotes map[string]domain.Quote
		if len(symbols) > 0 {
			quotes, err = f.prices.GetPrices(ctx, symbols)
			if err != nil {
				return fmt.Errorf("finalizer: batch price fetch: %w", err)
			}
		}

		// Close every open position, accumulating per-participant deltas
		// in memory instead of N read-modify-write round trips.
		deltas := make(map[string]*participantDelta)
		for _, pos := range open {
			quote, ok := quotes[pos.Symbol]
			if !ok {
				// Every position must close to settle; abort and retry on
				// the next tick once the feed recovers.
				return fmt.Errorf("finalizer: no quote for %s: %w", pos.Symbol, domain.ErrPriceUnavailable)
			}

			trade, err := f.closer.Close(ctx, st, pos, quote, domain.CloseReasonContestEnd)
			if errors.Is(err, domain.ErrAlreadyClosed) {
				continue
			}
			if err != nil {
				return err
			}
			result.PositionsClosed++

			d := deltas[pos.ParticipantID]
			if d == nil {
				d = &participantDelta{pnl: decimal.Zero, winAmt: decimal.Zero, lossAmt: decimal.Zero}
				deltas[pos.ParticipantID] = d
			}
			d.pnl = d.pnl.Add(trade.RealizedPnL)
			d.trades++
			switch {
			case trade.RealizedPnL.IsPositive():
				d.wins++
				d.winAmt = d.winAmt.Add(trade.RealizedPnL)
			case trade.RealizedPnL.IsNegative():
				d.losses++
				d.lossAmt = d.lossAmt.Add(trade.RealizedPnL.Neg())
			}
		}

		// Merge deltas and write each participant's recomputed aggregates
		// exactly once.
		for i := range participants {
			p := &participants[i]
			if d := deltas[p.ID]; d != nil {
				p.CurrentCapital = p.CurrentCapital.Add(d.pnl)
				p.ProfitLoss = p.ProfitLoss.Add(d.pnl)
				p.TotalTrades += d.trades
				p.WinningTrades += d.wins
				p.LosingTrades += d.losses
				p.TotalWinAmount = p.TotalWinAmount.Add(d.winAmt)
				p.TotalLossAmount = p.TotalLossAmount.Add(d.lossAmt)
			}
			if p.StartingCapital.IsPositive() {
				p.ROI = p.ProfitLoss.Div(p.StartingCapital).Mul(oneHundred)
			}
			if err := st.Participants.UpdateAggregates(ctx, *p); err != nil {
				return fmt.Errorf("finalizer: update aggregates for %s: %w", p.ID, err)
			}
		}

		ranked, err := Rank(participants, contest.Rules, domain.ContestStatusCompleted)
		if err != nil {
			return err
		}

		dist, err = Distribute(ranked, contest.PrizeTable, contest.GrossPrizePool, contest.PlatformFeePct, f.cfg().Precision)
		if err != nil {
			return err
		}

		now := f.now()

		// Credit each winner's wallet and append the ledger entry inside
		// the same transaction as the position closes above.
		for _, entry := range dist.Entries {
			before, after, walletID, err := st.Wallets.CreditPrize(ctx, entry.UserID, entry.NetPayout, contest.Type)
			if err != nil {
				return fmt.Errorf("finalizer: credit wallet for %s: %w", entry.UserID, err)
			}
			if err := st.Wallets.CreateTransaction(ctx, domain.WalletTransaction{
				ID:            uuid.New().String(),
				WalletID:      walletID,
				UserID:        entry.UserID,
				ContestID:     &contestID,
				Type:          domain.WalletTxPrizeWin,
				Amount:        entry.NetPayout,
				BalanceBefore: before,
				BalanceAfter:  after,
				Description:   fmt.Sprintf("Prize for rank %d in %s", entry.Rank, contest.Name),
				CreatedAt:     now,
			}); err != nil {
				return fmt.Errorf("finalizer: wallet transaction for %s: %w", entry.UserID, err)
			}
		}

		if dist.PlatformFee.IsPositive() {
			if err := st.Platform.Create(ctx, domain.PlatformTransaction{
				ID:        uuid.New().String(),
				ContestID: contestID,
				Type:      domain.PlatformTxFee,
				Amount:    dist.PlatformFee,
				CreatedAt: now,
			}); err != nil {
				return fmt.Errorf("finalizer: record platform fee: %w", err)
			}
		}
		if dist.UnclaimedPool.IsPositive() {
			reason := ""
			if dist.UnclaimedReason != nil {
				reason = string(*dist.UnclaimedReason)
			}
			if err := st.Platform.Create(ctx, domain.PlatformTransaction{
				ID:        uuid.New().String(),
				ContestID: contestID,
				Type:      domain.PlatformTxUnclaimed,
				Amount:    dist.UnclaimedPool,
				Reason:    reason,
				CreatedAt: now,
			}); err != nil {
				return fmt.Errorf("finalizer: record unclaimed pool: %w", err)
			}
		}

		leaderboard := buildLeaderboard(ranked, dist)
		var winnerID *string
		for _, r := range ranked {
			if !r.Disqualified && r.Rank == 1 {
				id := r.UserID
				winnerID = &id
				break
			}
		}

		if err := st.Contests.Complete(ctx, contestID, winnerID, leaderboard, now); err != nil {
			return fmt.Errorf("finalizer: complete contest %s: %w", contestID, err)
		}

		result.Leaderboard = leaderboard
		result.WinnerID = winnerID
		result.TotalDistributed = dist.TotalNet()
		result.PlatformFee = dist.PlatformFee
		result.UnclaimedPool = dist.UnclaimedPool
		return nil
	})
	if err != nil {
		return FinalizeResult{ContestID: contestID}, err
	}
	if result.AlreadyCompleted {
		f.logger.InfoContext(ctx, "contest already completed, no-op",
			slog.String("contest_id", contestID),
		)
		return result, nil
	}

	f.logger.InfoContext(ctx, "contest finalized",
		slog.String("contest_id", contestID),
		slog.Int("positions_closed", result.PositionsClosed),
		slog.String("distributed", result.TotalDistributed.String()),
		slog.String("platform_fee", result.PlatformFee.String()),
		slog.String("unclaimed", result.UnclaimedPool.String()),
	)

	// Post-commit side effects are best-effort: failures are logged and
	// never undo the financial commit.
	f.postCommit(ctx, contest, dist)

	return result, nil
}

// postCommit publishes the completion event, notifies winners, and
// re-evaluates badges. Nothing here can fail the settlement.
func (f *Finalizer) postCommit(ctx context.Context, contest domain.Contest, dist domain.Distribution) {
	payload, _ := json.Marshal(map[string]any{
		"event":       "contest_completed",
		"contest_id":  contest.ID,
		"type":        string(contest.Type),
		"distributed": dist.TotalNet().String(),
	})
	if err := f.events.Publish(ctx, "settlement", payload); err != nil {
		f.logger.WarnContext(ctx, "publish completion event failed",
			slog.String("contest_id", contest.ID),
			slog.String("error", err.Error()),
		)
	}

	for _, entry := range dist.Entries {
		if err := f.notifier.Notify(ctx, "prize_win",
			"Contest prize",
			fmt.Sprintf("You won %s credits (rank %d) in %s", entry.NetPayout.StringFixed(2), entry.Rank, contest.Name),
		); err != nil {
			f.logger.WarnContext(ctx, "winner notification failed",
				slog.String("user_id", entry.UserID),
				slog.String("error", err.Error()),
			)
		}

		if f.badges == nil {
			continue
		}
		newBadges, err := f.badges.EvaluateUserBadges(ctx, entry.UserID)
		if err != nil {
			f.logger.WarnContext(ctx, "badge evaluation failed",
				slog.String("user_id", entry.UserID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(newBadges) > 0 {
			f.logger.InfoContext(ctx, "badges awarded",
				slog.String("user_id", entry.UserID),
				slog.Int("count", len(newBadges)),
			)
		}
	}
}

// buildLeaderboard folds the ranking and distribution into the read model
// persisted on the contest.
func buildLeaderboard(ranked []RankedParticipant, dist domain.Distribution) []domain.LeaderboardEntry {
	prizes := make(map[string]decimal.Decimal, len(dist.Entries))
	for _, e := range dist.Entries {
		prizes[e.ParticipantID] = e.NetPayout
	}

	board := make([]domain.LeaderboardEntry, 0, len(ranked))
	for _, r := range ranked {
		prize, ok := prizes[r.ID]
		if !ok {
			prize = decimal.Zero
		}
		board = append(board, domain.LeaderboardEntry{
			Rank:          r.Rank,
			ParticipantID: r.ID,
			UserID:        r.UserID,
			Metric:        r.Metric,
			ProfitLoss:    r.ProfitLoss,
			ROI:           r.ROI,
			TotalTrades:   r.TotalTrades,
			Disqualified:  r.Disqualified,
			IsTied:        r.IsTied,
			Prize:         prize,
		})
	}
	return board
}

// FinalizeDue finalizes every active contest whose end time has passed. A
// failure in one contest is logged and does not block the others; the
// failed contest simply stays active and is retried on the next tick.
func (f *Finalizer) FinalizeDue(ctx context.Context) (int, error) {
	due, err := f.st.Contests.ListDueForFinalization(ctx, f.now())
	if err != nil {
		return 0, fmt.Errorf("finalizer: list due contests: %w", err)
	}

	finalized := 0
	for _, contest := range due {
		if _, err := f.Finalize(ctx, contest.ID); err != nil {
			f.logger.ErrorContext(ctx, "finalization failed",
				slog.String("contest_id", contest.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		finalized++
	}
	return finalized, nil
}

// ActivateDue promotes upcoming contests whose start time has passed.
func (f *Finalizer) ActivateDue(ctx context.Context) (int, error) {
	due, err := f.st.Contests.ListDueForActivation(ctx, f.now())
	if err != nil {
		return 0, fmt.Errorf("finalizer: list contests due for activation: %w", err)
	}

	activated := 0
	for _, contest := range due {
		if err := f.st.Contests.UpdateStatus(ctx, contest.ID, domain.ContestStatusUpcoming, domain.ContestStatusActive); err != nil {
			f.logger.ErrorContext(ctx, "contest activation failed",
				slog.String("contest_id", contest.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		activated++
	}
	return activated, nil
}
