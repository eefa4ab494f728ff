package postgres

import (
	"context"
	"fmt"

	"github.com/fxarena/fxarena/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL. Orders are
// append-only; there is no update path.
type OrderStore struct {
	q Querier
}

// NewOrderStore creates a new OrderStore over the given querier.
func NewOrderStore(q Querier) *OrderStore {
	return &OrderStore{q: q}
}

// Create inserts a new order.
func (s *OrderStore) Create(ctx context.Context, order domain.Order) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO orders (
			id, contest_id, participant_id, position_id, symbol,
			side, quantity, price, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		order.ID, order.ContestID, order.ParticipantID, order.PositionID, order.Symbol,
		string(order.Side), order.Quantity, order.Price, string(order.Status), order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", order.ID, err)
	}
	return nil
}

// ListByContest returns all orders placed within the given contest.
func (s *OrderStore) ListByContest(ctx context.Context, contestID string) ([]domain.Order, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, contest_id, participant_id, position_id, symbol,
			side, quantity, price, status, created_at
		 FROM orders
		 WHERE contest_id = $1
		 ORDER BY created_at ASC`, contestID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders for contest %s: %w", contestID, err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var side, status string
		if err := rows.Scan(
			&o.ID, &o.ContestID, &o.ParticipantID, &o.PositionID, &o.Symbol,
			&side, &o.Quantity, &o.Price, &status, &o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		o.Side = domain.OrderSide(side)
		o.Status = domain.OrderStatus(status)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
