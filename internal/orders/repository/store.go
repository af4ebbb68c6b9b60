// Package repository is the partitioned order store: orders are persisted
// under the owning customer's partition, and outlet-scoped reads are
// answered by scatter-gathering every partition.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cafeteria-system/internal/common/logger"
	"cafeteria-system/internal/docstore"
	"cafeteria-system/internal/domain"
)

// ErrWriteFailed marks a backing persistence failure; the order must be
// treated as not committed.
var ErrWriteFailed = errors.New("order write failed")

const (
	DefaultScatterConcurrency = 8
	DefaultPartitionTimeout   = 3 * time.Second
)

// OutletOrders is a scatter-gather result: whatever was read successfully
// plus the partitions that failed. Partial failure is not an error.
type OutletOrders struct {
	Orders           []domain.Order
	FailedPartitions []string
}

// Degraded reports whether at least one partition was skipped.
func (o OutletOrders) Degraded() bool { return len(o.FailedPartitions) > 0 }

type Store struct {
	docs             docstore.OrderStore
	lg               *logger.Logger
	concurrency      int
	partitionTimeout time.Duration
}

type Option func(*Store)

func WithScatterConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithPartitionTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.partitionTimeout = d
		}
	}
}

func New(docs docstore.OrderStore, lg *logger.Logger, opts ...Option) *Store {
	s := &Store{
		docs:             docs,
		lg:               lg,
		concurrency:      DefaultScatterConcurrency,
		partitionTimeout: DefaultPartitionTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create writes a new order into its customer's partition.
func (s *Store) Create(ctx context.Context, order domain.Order) error {
	if err := s.docs.InsertOrder(ctx, order.Client.ID, order); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// UpdateStatus loads the order from the given partition, validates the
// transition and writes the result back guarded by the previous status.
// Returns the updated order and the status it moved from.
func (s *Store) UpdateStatus(ctx context.Context, orderID, customerID string, target domain.Status) (domain.Order, domain.Status, error) {
	order, err := s.docs.GetOrder(ctx, customerID, orderID)
	if err != nil {
		return domain.Order{}, "", fmt.Errorf("load order %s: %w", orderID, err)
	}
	updated, err := domain.Transition(order, target)
	if err != nil {
		return domain.Order{}, "", err
	}
	if err := s.docs.UpdateOrderStatus(ctx, customerID, orderID, order.Status, target); err != nil {
		if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrConflict) {
			return domain.Order{}, "", fmt.Errorf("update order %s: %w", orderID, err)
		}
		return domain.Order{}, "", fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return updated, order.Status, nil
}

// ListByOutlet fans the outlet filter out to every customer partition and
// merges the results, ordered by creation time. One slow or broken
// partition degrades the result instead of aborting it.
func (s *Store) ListByOutlet(ctx context.Context, outletID string, statuses []domain.Status) (OutletOrders, error) {
	partitions, err := s.docs.Partitions(ctx)
	if err != nil {
		return OutletOrders{}, fmt.Errorf("enumerate partitions: %w", err)
	}

	var (
		mu     sync.Mutex
		result OutletOrders
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, customerID := range partitions {
		customerID := customerID
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, s.partitionTimeout)
			defer cancel()

			orders, err := s.docs.QueryPartition(pctx, customerID, outletID, statuses)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Keep the good shards; record the bad one.
				result.FailedPartitions = append(result.FailedPartitions, customerID)
				s.lg.Error("partition_read_failed", err, map[string]any{
					"customer_id": customerID, "outlet_id": outletID,
				})
				return nil
			}
			result.Orders = append(result.Orders, orders...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return OutletOrders{}, err
	}

	sort.Slice(result.Orders, func(i, j int) bool {
		return result.Orders[i].CreatedAt.Before(result.Orders[j].CreatedAt)
	})
	sort.Strings(result.FailedPartitions)
	return result, nil
}
