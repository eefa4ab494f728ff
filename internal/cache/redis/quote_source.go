package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/fxarena/fxarena/internal/domain"
)

// QuoteSource implements domain.PriceSource over Redis hashes written by
// the market data feed. Each symbol's quote lives at "quote:{SYMBOL}" with
// fields "bid", "ask", and "ts" (Unix nanosecond timestamp). Staleness is
// judged by the consumer against Quote.Timestamp, not here.
type QuoteSource struct {
	rdb *redis.Client
}

// NewQuoteSource creates a QuoteSource backed by the given Client.
func NewQuoteSource(c *Client) *QuoteSource {
	return &QuoteSource{rdb: c.Underlying()}
}

func quoteKey(symbol string) string {
	return "quote:" + symbol
}

// SetQuote stores the latest bid/ask for a symbol. Used by the feed
// ingester and by tests.
func (qs *QuoteSource) SetQuote(ctx context.Context, q domain.Quote) error {
	fields := map[string]interface{}{
		"bid": q.Bid.String(),
		"ask": q.Ask.String(),
		"ts":  strconv.FormatInt(q.Timestamp.UnixNano(), 10),
	}
	if err := qs.rdb.HSet(ctx, quoteKey(q.Symbol), fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Symbol, err)
	}
	return nil
}

// GetPrices retrieves quotes for multiple symbols in one pipelined round
// trip. Symbols with no stored quote, or with an unparsable one, are
// omitted from the result map rather than failing the batch.
func (qs *QuoteSource) GetPrices(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	if len(symbols) == 0 {
		return map[string]domain.Quote{}, nil
	}

	pipe := qs.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbols))
	for _, sym := range symbols {
		cmds[sym] = pipe.HGetAll(ctx, quoteKey(sym))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	result := make(map[string]domain.Quote, len(symbols))
	for sym, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}

		quote, err := parseQuote(sym, vals)
		if err != nil {
			continue
		}
		result[sym] = quote
	}

	return result, nil
}

func parseQuote(symbol string, vals map[string]string) (domain.Quote, error) {
	bid, err := decimal.NewFromString(vals["bid"])
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse bid: %w", err)
	}
	ask, err := decimal.NewFromString(vals["ask"])
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse ask: %w", err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse ts: %w", err)
	}

	return domain.Quote{
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		Timestamp: time.Unix(0, tsNano).UTC(),
	}, nil
}

// Compile-time interface check.
var _ domain.PriceSource = (*QuoteSource)(nil)
