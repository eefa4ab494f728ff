package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fxarena/fxarena/internal/domain"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ---------------------------------------------------------------------------
// In-memory ledger fake. It implements every store interface plus TxRunner
// with snapshot-based rollback, so abort semantics can be asserted.
// ---------------------------------------------------------------------------

type fakeDB struct {
	mu sync.Mutex

	contests     map[string]domain.Contest
	participants map[string]domain.Participant
	positions    map[string]domain.Position
	orders       []domain.Order
	trades       []domain.TradeHistory
	wallets      map[string]domain.Wallet // by user ID
	walletTxs    []domain.WalletTransaction
	platformTxs  []domain.PlatformTransaction

	// failOn makes the named operation return an error, to exercise
	// abort paths. Keys: "credit_prize", "complete", "update_aggregates".
	failOn map[string]error
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		contests:     make(map[string]domain.Contest),
		participants: make(map[string]domain.Participant),
		positions:    make(map[string]domain.Position),
		wallets:      make(map[string]domain.Wallet),
		failOn:       make(map[string]error),
	}
}

func (db *fakeDB) stores() domain.Stores {
	return domain.Stores{
		Contests:     (*fakeContests)(db),
		Participants: (*fakeParticipants)(db),
		Positions:    (*fakePositions)(db),
		Orders:       (*fakeOrders)(db),
		Trades:       (*fakeTrades)(db),
		Wallets:      (*fakeWallets)(db),
		Platform:     (*fakePlatform)(db),
	}
}

type dbSnapshot struct {
	contests     map[string]domain.Contest
	participants map[string]domain.Participant
	positions    map[string]domain.Position
	orders       []domain.Order
	trades       []domain.TradeHistory
	wallets      map[string]domain.Wallet
	walletTxs    []domain.WalletTransaction
	platformTxs  []domain.PlatformTransaction
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (db *fakeDB) snapshot() dbSnapshot {
	return dbSnapshot{
		contests:     copyMap(db.contests),
		participants: copyMap(db.participants),
		positions:    copyMap(db.positions),
		orders:       append([]domain.Order(nil), db.orders...),
		trades:       append([]domain.TradeHistory(nil), db.trades...),
		wallets:      copyMap(db.wallets),
		walletTxs:    append([]domain.WalletTransaction(nil), db.walletTxs...),
		platformTxs:  append([]domain.PlatformTransaction(nil), db.platformTxs...),
	}
}

func (db *fakeDB) restore(s dbSnapshot) {
	db.contests = s.contests
	db.participants = s.participants
	db.positions = s.positions
	db.orders = s.orders
	db.trades = s.trades
	db.wallets = s.wallets
	db.walletTxs = s.walletTxs
	db.platformTxs = s.platformTxs
}

// RunInTx executes fn against the fake stores, rolling every mutation back
// when fn fails.
func (db *fakeDB) RunInTx(_ context.Context, fn func(domain.Stores) error) error {
	db.mu.Lock()
	snap := db.snapshot()
	db.mu.Unlock()

	if err := fn(db.stores()); err != nil {
		db.mu.Lock()
		db.restore(snap)
		db.mu.Unlock()
		return err
	}
	return nil
}

// --- ContestStore ---

type fakeContests fakeDB

func (c *fakeContests) GetByID(_ context.Context, id string) (domain.Contest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	contest, ok := c.contests[id]
	if !ok {
		return domain.Contest{}, domain.ErrNotFound
	}
	return contest, nil
}

func (c *fakeContests) ListByStatus(_ context.Context, status domain.ContestStatus) ([]domain.Contest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Contest
	for _, contest := range c.contests {
		if contest.Status == status {
			out = append(out, contest)
		}
	}
	return out, nil
}

func (c *fakeContests) ListDueForFinalization(_ context.Context, now time.Time) ([]domain.Contest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Contest
	for _, contest := range c.contests {
		if contest.Status == domain.ContestStatusActive && !contest.EndTime.After(now) {
			out = append(out, contest)
		}
	}
	return out, nil
}

func (c *fakeContests) ListDueForActivation(_ context.Context, now time.Time) ([]domain.Contest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Contest
	for _, contest := range c.contests {
		if contest.Status == domain.ContestStatusUpcoming && !contest.StartTime.After(now) {
			out = append(out, contest)
		}
	}
	return out, nil
}

func (c *fakeContests) UpdateStatus(_ context.Context, id string, from, to domain.ContestStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	contest, ok := c.contests[id]
	if !ok || contest.Status != from {
		return domain.ErrNotFound
	}
	contest.Status = to
	c.contests[id] = contest
	return nil
}

func (c *fakeContests) Complete(_ context.Context, id string, winnerID *string, leaderboard []domain.LeaderboardEntry, completedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failOn["complete"]; err != nil {
		return err
	}
	contest, ok := c.contests[id]
	if !ok {
		return domain.ErrNotFound
	}
	if contest.Status != domain.ContestStatusActive {
		return domain.ErrContestNotActive
	}
	contest.Status = domain.ContestStatusCompleted
	contest.WinnerID = winnerID
	contest.Leaderboard = leaderboard
	contest.CompletedAt = &completedAt
	c.contests[id] = contest
	return nil
}

func (c *fakeContests) ListCompletedBefore(_ context.Context, before time.Time) ([]domain.Contest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Contest
	for _, contest := range c.contests {
		if contest.Status == domain.ContestStatusCompleted && contest.CompletedAt != nil && contest.CompletedAt.Before(before) {
			out = append(out, contest)
		}
	}
	return out, nil
}

// --- ParticipantStore ---

type fakeParticipants fakeDB

func (p *fakeParticipants) GetByID(_ context.Context, id string) (domain.Participant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	participant, ok := p.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrNotFound
	}
	return participant, nil
}

func (p *fakeParticipants) ListByContest(_ context.Context, contestID string) ([]domain.Participant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Participant
	for _, participant := range p.participants {
		if participant.ContestID == contestID {
			out = append(out, participant)
		}
	}
	return out, nil
}

func (p *fakeParticipants) UpdateAggregates(_ context.Context, participant domain.Participant) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failOn["update_aggregates"]; err != nil {
		return err
	}
	if _, ok := p.participants[participant.ID]; !ok {
		return domain.ErrNotFound
	}
	p.participants[participant.ID] = participant
	return nil
}

func (p *fakeParticipants) ApplyTrade(_ context.Context, participantID string, pnl decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	participant, ok := p.participants[participantID]
	if !ok {
		return domain.ErrNotFound
	}
	participant.CurrentCapital = participant.CurrentCapital.Add(pnl)
	participant.ProfitLoss = participant.ProfitLoss.Add(pnl)
	participant.TotalTrades++
	switch {
	case pnl.IsPositive():
		participant.WinningTrades++
		participant.TotalWinAmount = participant.TotalWinAmount.Add(pnl)
	case pnl.IsNegative():
		participant.LosingTrades++
		participant.TotalLossAmount = participant.TotalLossAmount.Add(pnl.Neg())
	}
	p.participants[participantID] = participant
	return nil
}

func (p *fakeParticipants) UpdateStatus(_ context.Context, participantID string, status domain.ParticipantStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	participant, ok := p.participants[participantID]
	if !ok {
		return domain.ErrNotFound
	}
	participant.Status = status
	p.participants[participantID] = participant
	return nil
}

// --- PositionStore ---

type fakePositions fakeDB

func (p *fakePositions) GetByID(_ context.Context, id string) (domain.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (p *fakePositions) ListOpenByContest(_ context.Context, contestID string) ([]domain.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Position
	for _, pos := range p.positions {
		if pos.ContestID == contestID && pos.Status == domain.PositionStatusOpen {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (p *fakePositions) ListOpenByParticipant(_ context.Context, participantID string) ([]domain.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Position
	for _, pos := range p.positions {
		if pos.ParticipantID == participantID && pos.Status == domain.PositionStatusOpen {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (p *fakePositions) CloseTerminal(_ context.Context, pos domain.Position) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	existing, ok := p.positions[pos.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if existing.Status != domain.PositionStatusOpen {
		return domain.ErrAlreadyClosed
	}
	p.positions[pos.ID] = pos
	return nil
}

// --- OrderStore / TradeHistoryStore ---

type fakeOrders fakeDB

func (o *fakeOrders) Create(_ context.Context, order domain.Order) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.orders = append(o.orders, order)
	return nil
}

func (o *fakeOrders) ListByContest(_ context.Context, contestID string) ([]domain.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []domain.Order
	for _, ord := range o.orders {
		if ord.ContestID == contestID {
			out = append(out, ord)
		}
	}
	return out, nil
}

type fakeTrades fakeDB

func (t *fakeTrades) Create(_ context.Context, trade domain.TradeHistory) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trades = append(t.trades, trade)
	return nil
}

func (t *fakeTrades) ListByContest(_ context.Context, contestID string) ([]domain.TradeHistory, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.TradeHistory
	for _, trade := range t.trades {
		if trade.ContestID == contestID {
			out = append(out, trade)
		}
	}
	return out, nil
}

// --- WalletStore / PlatformStore ---

type fakeWallets fakeDB

func (w *fakeWallets) GetByUserID(_ context.Context, userID string) (domain.Wallet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	wallet, ok := w.wallets[userID]
	if !ok {
		return domain.Wallet{}, domain.ErrNotFound
	}
	return wallet, nil
}

func (w *fakeWallets) CreditPrize(_ context.Context, userID string, amount decimal.Decimal, contestType domain.ContestType) (decimal.Decimal, decimal.Decimal, string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.failOn["credit_prize"]; err != nil {
		return decimal.Zero, decimal.Zero, "", err
	}
	wallet, ok := w.wallets[userID]
	if !ok {
		wallet = domain.Wallet{
			ID:     "wallet-" + userID,
			UserID: userID,
		}
	}
	before := wallet.CreditBalance
	wallet.CreditBalance = wallet.CreditBalance.Add(amount)
	if contestType == domain.ContestTypeChallenge {
		wallet.TotalWonFromChallenges = wallet.TotalWonFromChallenges.Add(amount)
	} else {
		wallet.TotalWonFromCompetitions = wallet.TotalWonFromCompetitions.Add(amount)
	}
	w.wallets[userID] = wallet
	return before, wallet.CreditBalance, wallet.ID, nil
}

func (w *fakeWallets) CreateTransaction(_ context.Context, tx domain.WalletTransaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.walletTxs = append(w.walletTxs, tx)
	return nil
}

func (w *fakeWallets) ListTransactionsByContest(_ context.Context, contestID string) ([]domain.WalletTransaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []domain.WalletTransaction
	for _, tx := range w.walletTxs {
		if tx.ContestID != nil && *tx.ContestID == contestID {
			out = append(out, tx)
		}
	}
	return out, nil
}

type fakePlatform fakeDB

func (p *fakePlatform) Create(_ context.Context, tx domain.PlatformTransaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.platformTxs = append(p.platformTxs, tx)
	return nil
}

func (p *fakePlatform) ListByContest(_ context.Context, contestID string) ([]domain.PlatformTransaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.PlatformTransaction
	for _, tx := range p.platformTxs {
		if tx.ContestID == contestID {
			out = append(out, tx)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Collaborator fakes
// ---------------------------------------------------------------------------

type fakePrices struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
	err    error
	calls  int
}

func newFakePrices(quotes map[string]domain.Quote) *fakePrices {
	return &fakePrices{quotes: quotes}
}

func (f *fakePrices) GetPrices(_ context.Context, symbols []string) (map[string]domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.Quote, len(symbols))
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

type fakeBus struct {
	mu     sync.Mutex
	events [][]byte
}

func (b *fakeBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, payload)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

type fakeBadges struct {
	mu    sync.Mutex
	users []string
}

func (b *fakeBadges) EvaluateUserBadges(_ context.Context, userID string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users = append(b.users, userID)
	return nil, nil
}

// ---------------------------------------------------------------------------
// Fixture helpers
// ---------------------------------------------------------------------------

func freshQuote(symbol string, bid, ask float64) domain.Quote {
	return domain.Quote{
		Symbol:    symbol,
		Bid:       d(bid),
		Ask:       d(ask),
		Timestamp: time.Now().UTC(),
	}
}

func testConfig() ConfigProvider {
	return func() Config {
		return Config{
			Thresholds: Thresholds{
				Safe:        200,
				Warning:     150,
				Call:        120,
				Liquidation: 100,
			},
			CheckInterval: 15 * time.Second,
			Precision:     2,
		}
	}
}

func openPosition(id, contestID, participantID, symbol string, side domain.PositionSide, lots, entry, margin float64) domain.Position {
	return domain.Position{
		ID:            id,
		ContestID:     contestID,
		ParticipantID: participantID,
		Symbol:        symbol,
		Side:          side,
		Quantity:      d(lots),
		EntryPrice:    d(entry),
		Leverage:      100,
		MarginUsed:    d(margin),
		Status:        domain.PositionStatusOpen,
		OpenedAt:      time.Now().UTC().Add(-time.Hour),
	}
}

func activeParticipant(id, contestID, userID string, capital float64, joined time.Time) domain.Participant {
	return domain.Participant{
		ID:              id,
		ContestID:       contestID,
		UserID:          userID,
		Status:          domain.ParticipantStatusActive,
		StartingCapital: d(capital),
		CurrentCapital:  d(capital),
		ProfitLoss:      decimal.Zero,
		TotalWinAmount:  decimal.Zero,
		TotalLossAmount: decimal.Zero,
		JoinedAt:        joined,
	}
}

var errBoom = fmt.Errorf("boom")
