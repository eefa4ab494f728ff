package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/fxarena/fxarena/internal/domain"
)

func newTestMonitor(db *fakeDB, prices *fakePrices) (*Monitor, *fakeNotifier, *fakeBus) {
	notifier := &fakeNotifier{}
	bus := &fakeBus{}
	monitor := NewMonitor(db, db.stores(), prices, NewCloser(testLogger()), bus, notifier, testConfig(), testLogger())
	return monitor, notifier, bus
}

func activeContest(id string) domain.Contest {
	now := time.Now().UTC()
	return domain.Contest{
		ID:             id,
		Type:           domain.ContestTypeCompetition,
		Name:           "Weekly FX Open",
		Status:         domain.ContestStatusActive,
		StartTime:      now.Add(-24 * time.Hour),
		EndTime:        now.Add(24 * time.Hour),
		GrossPrizePool: d(1000),
		PlatformFeePct: d(0.10),
		PrizeTable: []domain.PrizeTableEntry{
			{Rank: 1, Percentage: d(70)},
			{Rank: 2, Percentage: d(30)},
		},
		Rules: domain.RankingRules{
			Method:      domain.RankByPnL,
			TieBreaker1: domain.TieByROI,
			TieBreaker2: domain.TieByJoinTime,
		},
		TiePolicy: domain.TiePrizeSplitEqually,
		CreatedAt: now.Add(-48 * time.Hour),
	}
}

func TestSweep_LiquidatesBreachedParticipant(t *testing.T) {
	db := newFakeDB()
	contest := activeContest("c1")
	db.contests[contest.ID] = contest

	// Margin level = 900 / 1000 * 100 = 90%, below the 100% liquidation
	// threshold.
	broke := activeParticipant("part1", "c1", "user1", 900, time.Now().UTC())
	db.participants[broke.ID] = broke
	pos := openPosition("p1", "c1", "part1", "EURUSD", domain.PositionSideLong, 1, 1.2000, 1000)
	db.positions[pos.ID] = pos

	// A healthy participant in the same contest must be untouched.
	healthy := activeParticipant("part2", "c1", "user2", 10_000, time.Now().UTC())
	db.participants[healthy.ID] = healthy
	pos2 := openPosition("p2", "c1", "part2", "EURUSD", domain.PositionSideLong, 1, 1.2000, 1000)
	db.positions[pos2.ID] = pos2

	prices := newFakePrices(map[string]domain.Quote{
		"EURUSD": freshQuote("EURUSD", 1.1900, 1.1902),
	})
	monitor, notifier, _ := newTestMonitor(db, prices)

	res, err := monitor.SweepContest(context.Background(), contest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Liquidations != 1 {
		t.Fatalf("want 1 liquidation, got %d", res.Liquidations)
	}
	if got := db.positions["p1"].Status; got != domain.PositionStatusLiquidated {
		t.Errorf("breached position status: want liquidated, got %s", got)
	}
	if reason := db.positions["p1"].CloseReason; reason == nil || *reason != domain.CloseReasonLiquidation {
		t.Errorf("close reason: want liquidation, got %v", reason)
	}
	if got := db.positions["p2"].Status; got != domain.PositionStatusOpen {
		t.Errorf("healthy position must stay open, got %s", got)
	}
	if db.participants["part1"].Status != domain.ParticipantStatusLiquidated {
		t.Errorf("breached participant not marked liquidated")
	}
	// (1.1900 - 1.2000) * 100,000 = -1000 folded into the participant.
	if !db.participants["part1"].CurrentCapital.Equal(d(-100)) {
		t.Errorf("capital after liquidation: want -100, got %s", db.participants["part1"].CurrentCapital)
	}

	foundLiq := false
	for _, e := range notifier.events {
		if e == "liquidation" {
			foundLiq = true
		}
	}
	if !foundLiq {
		t.Errorf("liquidation notification not sent: %v", notifier.events)
	}
}

func TestSweep_SingleBatchPriceFetch(t *testing.T) {
	db := newFakeDB()
	contest := activeContest("c1")
	db.contests[contest.ID] = contest

	p := activeParticipant("part1", "c1", "user1", 50_000, time.Now().UTC())
	db.participants[p.ID] = p
	for i, sym := range []string{"EURUSD", "GBPUSD", "USDJPY", "EURUSD", "GBPUSD"} {
		pos := openPosition(
			"p"+string(rune('1'+i)), "c1", "part1", sym,
			domain.PositionSideLong, 1, 1.2, 1000,
		)
		db.positions[pos.ID] = pos
	}

	prices := newFakePrices(map[string]domain.Quote{
		"EURUSD": freshQuote("EURUSD", 1.2, 1.2002),
		"GBPUSD": freshQuote("GBPUSD", 1.3, 1.3002),
		"USDJPY": freshQuote("USDJPY", 151.2, 151.22),
	})
	monitor, _, _ := newTestMonitor(db, prices)

	if _, err := monitor.SweepContest(context.Background(), contest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prices.calls != 1 {
		t.Errorf("sweep must fetch prices in exactly one batch call, got %d", prices.calls)
	}
}

func TestSweep_MissingQuoteSkipsOnlyThatSymbol(t *testing.T) {
	db := newFakeDB()
	contest := activeContest("c1")
	db.contests[contest.ID] = contest

	// Breached participant with positions in two symbols, only one quoted.
	p := activeParticipant("part1", "c1", "user1", 900, time.Now().UTC())
	db.participants[p.ID] = p
	pos1 := openPosition("p1", "c1", "part1", "EURUSD", domain.PositionSideLong, 1, 1.2, 1000)
	pos2 := openPosition("p2", "c1", "part1", "AUDUSD", domain.PositionSideLong, 1, 0.66, 1000)
	db.positions[pos1.ID] = pos1
	db.positions[pos2.ID] = pos2

	prices := newFakePrices(map[string]domain.Quote{
		"EURUSD": freshQuote("EURUSD", 1.19, 1.1902),
	})
	monitor, _, _ := newTestMonitor(db, prices)

	res, err := monitor.SweepContest(context.Background(), contest)
	if err != nil {
		t.Fatalf("a missing symbol must not abort the sweep: %v", err)
	}

	if res.Liquidations != 1 {
		t.Errorf("quoted position should liquidate, got %d", res.Liquidations)
	}
	if db.positions["p1"].Status != domain.PositionStatusLiquidated {
		t.Errorf("quoted position must close")
	}
	if db.positions["p2"].Status != domain.PositionStatusOpen {
		t.Errorf("unquoted position must stay open for the next sweep")
	}
	// Not all positions closed, so the participant keeps their status.
	if db.participants["part1"].Status != domain.ParticipantStatusActive {
		t.Errorf("participant must not be marked liquidated while positions remain open")
	}
}

func TestSweep_MarginCallNotifiesWithoutClosing(t *testing.T) {
	db := newFakeDB()
	contest := activeContest("c1")
	db.contests[contest.ID] = contest

	// Margin level = 1100 / 1000 * 100 = 110%: between liquidation (100)
	// and call (120).
	p := activeParticipant("part1", "c1", "user1", 1100, time.Now().UTC())
	db.participants[p.ID] = p
	pos := openPosition("p1", "c1", "part1", "EURUSD", domain.PositionSideLong, 1, 1.2, 1000)
	db.positions[pos.ID] = pos

	prices := newFakePrices(map[string]domain.Quote{
		"EURUSD": freshQuote("EURUSD", 1.2, 1.2002),
	})
	monitor, notifier, _ := newTestMonitor(db, prices)

	res, err := monitor.SweepContest(context.Background(), contest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.MarginCalls != 1 || res.Liquidations != 0 {
		t.Errorf("want 1 margin call and no liquidation, got %+v", res)
	}
	if db.positions["p1"].Status != domain.PositionStatusOpen {
		t.Errorf("margin call must leave the position open")
	}
	if len(notifier.events) != 1 || notifier.events[0] != "margin_call" {
		t.Errorf("margin call notification missing: %v", notifier.events)
	}
}

func TestThresholds_Classify(t *testing.T) {
	th := testConfig()().Thresholds
	cases := []struct {
		level float64
		want  MarginClass
	}{
		{250, MarginSafe},
		{200, MarginSafe},
		{199, MarginWarning},
		{180, MarginWarning},
		{150, MarginWarning},
		{121, MarginWarning},
		{120, MarginCall},
		{110, MarginCall},
		{100, MarginLiquidation},
		{40, MarginLiquidation},
	}
	for _, tc := range cases {
		if got := th.Classify(tc.level); got != tc.want {
			t.Errorf("level %.0f: want class %d, got %d", tc.level, tc.want, got)
		}
	}
}

func TestThresholds_Noisy(t *testing.T) {
	th := testConfig()().Thresholds
	cases := []struct {
		level float64
		want  bool
	}{
		{180, false},
		{151, false},
		{150, true},
		{130, true},
	}
	for _, tc := range cases {
		if got := th.Noisy(tc.level); got != tc.want {
			t.Errorf("level %.0f: want noisy=%v, got %v", tc.level, tc.want, got)
		}
	}
}

func TestThresholds_Validate(t *testing.T) {
	if err := (Thresholds{Safe: 200, Warning: 150, Call: 120, Liquidation: 100}).Validate(); err != nil {
		t.Errorf("valid thresholds rejected: %v", err)
	}
	if err := (Thresholds{Safe: 100, Warning: 150, Call: 120, Liquidation: 100}).Validate(); err == nil {
		t.Errorf("unordered thresholds accepted")
	}
}
