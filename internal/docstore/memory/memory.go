// Package memory is an in-process docstore used by tests and by the
// api-service's --dev mode. It keeps the same CAS semantics as the
// Postgres implementation and can inject faults per partition.
package memory

import (
	"context"
	"sort"
	"sync"

	"cafeteria-system/internal/docstore"
	"cafeteria-system/internal/domain"
)

type Store struct {
	mu       sync.Mutex
	counters map[string]int
	// orders[customerID][orderID]
	orders map[string]map[string]domain.Order

	// CounterConflicts forces the next N MutateCounter calls to fail with
	// ErrConflict after applying nothing, simulating lost CAS races.
	counterConflicts int
	// partitionErrs maps customerID to the error QueryPartition returns.
	partitionErrs map[string]error
}

func New() *Store {
	return &Store{
		counters:      make(map[string]int),
		orders:        make(map[string]map[string]domain.Order),
		partitionErrs: make(map[string]error),
	}
}

// InjectCounterConflicts makes the next n counter mutations lose the race.
func (s *Store) InjectCounterConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counterConflicts = n
}

// FailPartition makes reads of the given customer partition return err.
// A nil err clears the fault.
func (s *Store) FailPartition(customerID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.partitionErrs, customerID)
		return
	}
	s.partitionErrs[customerID] = err
}

func (s *Store) MutateCounter(ctx context.Context, outletID string, fn func(lastToken int) int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counterConflicts > 0 {
		s.counterConflicts--
		return 0, docstore.ErrConflict
	}
	next := fn(s.counters[outletID])
	s.counters[outletID] = next
	return next, nil
}

// LastToken reports the committed counter value for assertions.
func (s *Store) LastToken(outletID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[outletID]
}

func (s *Store) InsertOrder(ctx context.Context, customerID string, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	part, ok := s.orders[customerID]
	if !ok {
		part = make(map[string]domain.Order)
		s.orders[customerID] = part
	}
	if _, exists := part[order.ID]; exists {
		return docstore.ErrConflict
	}
	part[order.ID] = order
	return nil
}

func (s *Store) GetOrder(ctx context.Context, customerID, orderID string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[customerID][orderID]
	if !ok {
		return domain.Order{}, docstore.ErrNotFound
	}
	return order, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, customerID, orderID string, from, to domain.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[customerID][orderID]
	if !ok {
		return docstore.ErrNotFound
	}
	if order.Status != from {
		return docstore.ErrConflict
	}
	order.Status = to
	s.orders[customerID][orderID] = order
	return nil
}

func (s *Store) Partitions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := make([]string, 0, len(s.orders))
	for id := range s.orders {
		parts = append(parts, id)
	}
	sort.Strings(parts)
	return parts, nil
}

func (s *Store) QueryPartition(ctx context.Context, customerID, outletID string, statuses []domain.Status) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.partitionErrs[customerID]; ok {
		return nil, err
	}
	wanted := make(map[domain.Status]struct{}, len(statuses))
	for _, st := range statuses {
		wanted[st] = struct{}{}
	}
	var out []domain.Order
	for _, order := range s.orders[customerID] {
		if order.OutletID != outletID {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[order.Status]; !ok {
				continue
			}
		}
		out = append(out, order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
