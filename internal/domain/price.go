package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a bid/ask snapshot for one symbol.
type Quote struct {
	Symbol    string
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Timestamp time.Time
}

// MaxQuoteAge is the staleness cutoff beyond which a quote is treated as
// unavailable.
const MaxQuoteAge = 5 * time.Minute

// Stale reports whether the quote is too old to settle against at the
// given reference time.
func (q Quote) Stale(now time.Time) bool {
	return now.Sub(q.Timestamp) >= MaxQuoteAge
}

// ClosePrice returns the price at which a position on the given side is
// closed: longs sell into the bid, shorts buy back at the ask.
func (q Quote) ClosePrice(side PositionSide) decimal.Decimal {
	if side == PositionSideShort {
		return q.Ask
	}
	return q.Bid
}

// PriceSource supplies best-effort quotes for a set of symbols in one
// batched call. Symbols without a fresh quote are simply absent from the
// result; callers decide how to degrade.
type PriceSource interface {
	GetPrices(ctx context.Context, symbols []string) (map[string]Quote, error)
}
