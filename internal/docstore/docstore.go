// Package docstore declares the backing document-store capability the
// coordinator consumes: an atomic conditional read-modify-write on a
// single record, and a filtered read against a named customer partition.
package docstore

import (
	"context"
	"errors"

	"cafeteria-system/internal/domain"
)

var (
	// ErrNotFound is returned when a requested record doesn't exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write lost the race to a
	// concurrent writer. Callers decide whether to retry.
	ErrConflict = errors.New("write conflict")
)

// CounterStore is the atomic read-increment-write primitive over the
// per-outlet token counter.
type CounterStore interface {
	// MutateCounter runs fn over the outlet's current lastToken (0 when
	// the counter does not exist yet) and commits the returned value as a
	// single atomic unit. Returns the committed value, or ErrConflict
	// when another writer won this attempt.
	MutateCounter(ctx context.Context, outletID string, fn func(lastToken int) int) (int, error)
}

// OrderStore persists orders under the owning customer's partition.
type OrderStore interface {
	InsertOrder(ctx context.Context, customerID string, order domain.Order) error
	GetOrder(ctx context.Context, customerID, orderID string) (domain.Order, error)
	// UpdateOrderStatus writes the new status guarded by the expected
	// previous one; ErrConflict when the stored status moved underneath.
	UpdateOrderStatus(ctx context.Context, customerID, orderID string, from, to domain.Status) error
	// Partitions enumerates every customer partition currently present.
	Partitions(ctx context.Context) ([]string, error)
	// QueryPartition reads one partition filtered by outlet and, when
	// statuses is non-empty, by status.
	QueryPartition(ctx context.Context, customerID, outletID string, statuses []domain.Status) ([]domain.Order, error)
}

// Store is the full capability surface.
type Store interface {
	CounterStore
	OrderStore
}
