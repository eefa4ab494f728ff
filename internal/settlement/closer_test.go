package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fxarena/fxarena/internal/domain"
)

func TestClose_LongProfitAndLoss(t *testing.T) {
	db := newFakeDB()
	closer := NewCloser(testLogger())

	pos := openPosition("p1", "c1", "part1", "EURUSD", domain.PositionSideLong, 1, 1.1000, 1100)
	db.positions[pos.ID] = pos

	// Long closes at the bid: (1.1050 - 1.1000) * 1 lot * 100,000 = 500.
	quote := freshQuote("EURUSD", 1.1050, 1.1052)
	trade, err := closer.Close(context.Background(), db.stores(), pos, quote, domain.CloseReasonManual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !trade.RealizedPnL.Equal(d(500)) {
		t.Errorf("pnl: want 500, got %s", trade.RealizedPnL)
	}
	if !trade.ExitPrice.Equal(d(1.1050)) {
		t.Errorf("long must exit at the bid, got %s", trade.ExitPrice)
	}
	// 500 profit on 1100 margin.
	wantPct := d(500).Div(d(1100)).Mul(d(100))
	if !trade.RealizedPnLPercentage.Equal(wantPct) {
		t.Errorf("pnl pct: want %s, got %s", wantPct, trade.RealizedPnLPercentage)
	}

	stored := db.positions["p1"]
	if stored.Status != domain.PositionStatusClosed {
		t.Errorf("status: want closed, got %s", stored.Status)
	}
	if stored.CloseReason == nil || *stored.CloseReason != domain.CloseReasonManual {
		t.Errorf("close reason not recorded: %v", stored.CloseReason)
	}
	if len(db.orders) != 1 || db.orders[0].Side != domain.OrderSideSell {
		t.Errorf("closing a long must write a filled sell order, got %+v", db.orders)
	}
	if len(db.trades) != 1 {
		t.Errorf("want one trade history record, got %d", len(db.trades))
	}
}

func TestClose_ShortSignFlip(t *testing.T) {
	db := newFakeDB()
	closer := NewCloser(testLogger())

	pos := openPosition("p1", "c1", "part1", "GBPUSD", domain.PositionSideShort, 2, 1.3000, 2600)
	db.positions[pos.ID] = pos

	// Short closes at the ask; price fell so the short profits:
	// (1.3000 - 1.2950) * 2 lots * 100,000 = 1000.
	quote := freshQuote("GBPUSD", 1.2948, 1.2950)
	trade, err := closer.Close(context.Background(), db.stores(), pos, quote, domain.CloseReasonTakeProfit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !trade.RealizedPnL.Equal(d(1000)) {
		t.Errorf("pnl: want 1000, got %s", trade.RealizedPnL)
	}
	if !trade.ExitPrice.Equal(d(1.2950)) {
		t.Errorf("short must exit at the ask, got %s", trade.ExitPrice)
	}
	if db.orders[0].Side != domain.OrderSideBuy {
		t.Errorf("closing a short must write a buy order, got %s", db.orders[0].Side)
	}
}

func TestClose_ContractSizeIsOneHundredThousand(t *testing.T) {
	db := newFakeDB()
	closer := NewCloser(testLogger())

	// 1 pip on 1 lot must be worth 10 units of quote currency, which only
	// holds at a 100,000 contract size.
	pos := openPosition("p1", "c1", "part1", "EURUSD", domain.PositionSideLong, 1, 1.10000, 1100)
	db.positions[pos.ID] = pos

	quote := freshQuote("EURUSD", 1.10010, 1.10012)
	trade, err := closer.Close(context.Background(), db.stores(), pos, quote, domain.CloseReasonManual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !trade.RealizedPnL.Equal(d(10)) {
		t.Errorf("1 pip on 1 lot: want 10, got %s", trade.RealizedPnL)
	}
}

func TestClose_AlreadyTerminalIsNoOp(t *testing.T) {
	db := newFakeDB()
	closer := NewCloser(testLogger())

	pos := openPosition("p1", "c1", "part1", "EURUSD", domain.PositionSideLong, 1, 1.1, 1100)
	pos.Status = domain.PositionStatusClosed
	db.positions[pos.ID] = pos

	_, err := closer.Close(context.Background(), db.stores(), pos, freshQuote("EURUSD", 1.11, 1.1102), domain.CloseReasonManual)
	if !errors.Is(err, domain.ErrAlreadyClosed) {
		t.Fatalf("want ErrAlreadyClosed, got %v", err)
	}
	if len(db.orders) != 0 || len(db.trades) != 0 {
		t.Errorf("no-op close must not write records")
	}
}

func TestClose_StaleQuoteRejected(t *testing.T) {
	db := newFakeDB()
	closer := NewCloser(testLogger())

	pos := openPosition("p1", "c1", "part1", "EURUSD", domain.PositionSideLong, 1, 1.1, 1100)
	db.positions[pos.ID] = pos

	stale := freshQuote("EURUSD", 1.11, 1.1102)
	stale.Timestamp = time.Now().UTC().Add(-10 * time.Minute)

	_, err := closer.Close(context.Background(), db.stores(), pos, stale, domain.CloseReasonManual)
	if !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Fatalf("want ErrPriceUnavailable for stale quote, got %v", err)
	}
}

func TestClose_HoldingTime(t *testing.T) {
	db := newFakeDB()
	closer := NewCloser(testLogger())

	pos := openPosition("p1", "c1", "part1", "EURUSD", domain.PositionSideLong, 1, 1.1, 1100)
	pos.OpenedAt = time.Now().UTC().Add(-90 * time.Minute)
	db.positions[pos.ID] = pos

	trade, err := closer.Close(context.Background(), db.stores(), pos, freshQuote("EURUSD", 1.11, 1.1102), domain.CloseReasonManual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade.HoldingTimeSeconds < 5390 || trade.HoldingTimeSeconds > 5410 {
		t.Errorf("holding time: want ~5400s, got %d", trade.HoldingTimeSeconds)
	}
}
