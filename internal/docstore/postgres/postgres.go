// Package postgres backs the docstore capability with Postgres via pgx.
// Orders live in a single table keyed by (customer_id, id); the customer
// half of the key is the partition. Counters use a conditional UPDATE as
// the compare-and-swap.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cafeteria-system/internal/docstore"
	"cafeteria-system/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS counters (
	outlet_id  TEXT PRIMARY KEY,
	last_token INTEGER NOT NULL CHECK (last_token >= 0)
);
CREATE TABLE IF NOT EXISTS orders (
	customer_id  TEXT NOT NULL,
	id           TEXT NOT NULL,
	order_number TEXT NOT NULL,
	token_number INTEGER NOT NULL CHECK (token_number >= 1),
	outlet_id    TEXT NOT NULL,
	items        JSONB NOT NULL,
	total_amount DOUBLE PRECISION NOT NULL CHECK (total_amount >= 0),
	status       TEXT NOT NULL,
	est_wait_mins INTEGER NOT NULL DEFAULT 0,
	client       JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (customer_id, id)
);
`

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

// Bootstrap creates the backing tables when absent.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	return nil
}

func (s *Store) MutateCounter(ctx context.Context, outletID string, fn func(lastToken int) int) (int, error) {
	var last int
	err := s.pool.QueryRow(ctx,
		`SELECT last_token FROM counters WHERE outlet_id = $1`, outletID).Scan(&last)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		next := fn(0)
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO counters (outlet_id, last_token) VALUES ($1, $2)
			 ON CONFLICT (outlet_id) DO NOTHING`, outletID, next)
		if err != nil {
			return 0, fmt.Errorf("init counter %q: %w", outletID, err)
		}
		if tag.RowsAffected() == 0 {
			// Another allocator created the counter between our read and
			// write; this attempt lost.
			return 0, docstore.ErrConflict
		}
		return next, nil
	case err != nil:
		return 0, fmt.Errorf("read counter %q: %w", outletID, err)
	}

	next := fn(last)
	tag, err := s.pool.Exec(ctx,
		`UPDATE counters SET last_token = $2 WHERE outlet_id = $1 AND last_token = $3`,
		outletID, next, last)
	if err != nil {
		return 0, fmt.Errorf("update counter %q: %w", outletID, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, docstore.ErrConflict
	}
	return next, nil
}

func (s *Store) InsertOrder(ctx context.Context, customerID string, order domain.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	client, err := json.Marshal(order.Client)
	if err != nil {
		return fmt.Errorf("marshal client: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO orders
			(customer_id, id, order_number, token_number, outlet_id, items,
			 total_amount, status, est_wait_mins, client, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		customerID, order.ID, order.OrderNumber, order.TokenNumber, order.OutletID,
		items, order.TotalAmount, string(order.Status), order.EstWaitMins, client, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", order.ID, err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, customerID, orderID string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT customer_id, id, order_number, token_number, outlet_id, items,
		       total_amount, status, est_wait_mins, client, created_at
		FROM orders WHERE customer_id = $1 AND id = $2`, customerID, orderID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, docstore.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return order, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, customerID, orderID string, from, to domain.Status) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = $4
		WHERE customer_id = $1 AND id = $2 AND status = $3`,
		customerID, orderID, string(from), string(to))
	if err != nil {
		return fmt.Errorf("update order %s status: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM orders WHERE customer_id = $1 AND id = $2)`,
			customerID, orderID).Scan(&exists); err != nil {
			return fmt.Errorf("check order %s: %w", orderID, err)
		}
		if !exists {
			return docstore.ErrNotFound
		}
		return docstore.ErrConflict
	}
	return nil
}

func (s *Store) Partitions(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT customer_id FROM orders ORDER BY customer_id`)
	if err != nil {
		return nil, fmt.Errorf("enumerate partitions: %w", err)
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		parts = append(parts, id)
	}
	return parts, rows.Err()
}

func (s *Store) QueryPartition(ctx context.Context, customerID, outletID string, statuses []domain.Status) ([]domain.Order, error) {
	query := `
		SELECT customer_id, id, order_number, token_number, outlet_id, items,
		       total_amount, status, est_wait_mins, client, created_at
		FROM orders WHERE customer_id = $1 AND outlet_id = $2`
	args := []any{customerID, outletID}
	if len(statuses) > 0 {
		wanted := make([]string, len(statuses))
		for i, st := range statuses {
			wanted[i] = string(st)
		}
		query += ` AND status = ANY($3)`
		args = append(args, wanted)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query partition %q: %w", customerID, err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan partition %q: %w", customerID, err)
		}
		out = append(out, order)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		order      domain.Order
		customerID string
		status     string
		itemsRaw   []byte
		clientRaw  []byte
	)
	err := row.Scan(&customerID, &order.ID, &order.OrderNumber, &order.TokenNumber,
		&order.OutletID, &itemsRaw, &order.TotalAmount, &status,
		&order.EstWaitMins, &clientRaw, &order.CreatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.Status(status)
	if err := json.Unmarshal(itemsRaw, &order.Items); err != nil {
		return domain.Order{}, fmt.Errorf("unmarshal items: %w", err)
	}
	if err := json.Unmarshal(clientRaw, &order.Client); err != nil {
		return domain.Order{}, fmt.Errorf("unmarshal client: %w", err)
	}
	return order, nil
}
