package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus is the fill state of an order. Orders created by the
// settlement engine are always written already filled.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusFilled  OrderStatus = "filled"
)

// Order is an immutable append-only record created as the by-product of
// opening or closing a position.
type Order struct {
	ID            string
	ContestID     string
	ParticipantID string
	PositionID    string
	Symbol        string
	Side          OrderSide
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	Status        OrderStatus
	CreatedAt     time.Time
}

// TradeHistory is the audit-trail record written when a position closes.
// It feeds operator reconciliation and external badge evaluation.
type TradeHistory struct {
	ID                    string
	ContestID             string
	ParticipantID         string
	PositionID            string
	Symbol                string
	Side                  PositionSide
	Quantity              decimal.Decimal
	EntryPrice            decimal.Decimal
	ExitPrice             decimal.Decimal
	RealizedPnL           decimal.Decimal
	RealizedPnLPercentage decimal.Decimal
	HoldingTimeSeconds    int64
	CloseReason           CloseReason
	ClosedAt              time.Time
}
