// Package service orchestrates order placement and status advancement.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"cafeteria-system/internal/common/logger"
	"cafeteria-system/internal/config"
	"cafeteria-system/internal/domain"
	"cafeteria-system/internal/orders/repository"
	"cafeteria-system/internal/sequence"
)

// ErrInvalidOrder marks request validation failures.
var ErrInvalidOrder = errors.New("invalid order request")

// EventPublisher pushes lifecycle events out-of-band; publish failures
// never roll back a committed order.
type EventPublisher interface {
	OrderCreated(ctx context.Context, order domain.Order) error
	StatusChanged(ctx context.Context, order domain.Order, old domain.Status) error
}

// OutletDirectory is the externally-owned outlet registry.
type OutletDirectory interface {
	Outlet(id string) (domain.Outlet, bool)
}

type PlaceOrderRequest struct {
	OutletID string             `json:"outlet_id"`
	Client   domain.Client      `json:"client"`
	Items    []domain.OrderItem `json:"items"`
}

type Service struct {
	allocator *sequence.Allocator
	store     *repository.Store
	publisher EventPublisher
	outlets   OutletDirectory
	cfg       config.OrdersConfig
	lg        *logger.Logger
	now       func() time.Time
}

func New(allocator *sequence.Allocator, store *repository.Store, publisher EventPublisher,
	outlets OutletDirectory, cfg config.OrdersConfig, lg *logger.Logger) *Service {
	return &Service{
		allocator: allocator,
		store:     store,
		publisher: publisher,
		outlets:   outlets,
		cfg:       cfg,
		lg:        lg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PlaceOrder validates the request, allocates a token, persists the order
// in the customer's partition and publishes the created event. No order
// is ever written without a token.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (domain.Order, error) {
	if err := s.validate(req); err != nil {
		return domain.Order{}, err
	}

	subtotal := 0.0
	for _, item := range req.Items {
		subtotal += float64(item.Quantity) * item.UnitPrice
	}
	total := subtotal * (1 + s.cfg.TaxRate)

	token, err := s.allocator.Allocate(ctx, req.OutletID)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:          uuid.NewString(),
		OrderNumber: sequence.FormatOrderNumber(s.cfg.TokenPrefix, token),
		TokenNumber: token,
		OutletID:    req.OutletID,
		Items:       req.Items,
		TotalAmount: total,
		Status:      domain.StatusPending,
		EstWaitMins: s.estimateWait(),
		CreatedAt:   s.now(),
		Client:      req.Client,
	}
	if err := s.store.Create(ctx, order); err != nil {
		return domain.Order{}, err
	}
	s.lg.Info("order_placed", map[string]any{
		"order_number": order.OrderNumber,
		"token_number": order.TokenNumber,
		"outlet_id":    order.OutletID,
		"total_amount": order.TotalAmount,
	})

	if err := s.publisher.OrderCreated(ctx, order); err != nil {
		s.lg.Error("event_publish_failed", err, map[string]any{"order_id": order.ID})
	}
	return order, nil
}

// AdvanceStatus applies a validated transition through the partitioned
// store and publishes the change.
func (s *Service) AdvanceStatus(ctx context.Context, orderID, customerID string, target domain.Status) (domain.Order, error) {
	if !target.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, target)
	}
	updated, old, err := s.store.UpdateStatus(ctx, orderID, customerID, target)
	if err != nil {
		return domain.Order{}, err
	}
	s.lg.Info("order_status_changed", map[string]any{
		"order_id": orderID, "from": old, "to": target,
	})
	if err := s.publisher.StatusChanged(ctx, updated, old); err != nil {
		s.lg.Error("event_publish_failed", err, map[string]any{"order_id": orderID})
	}
	return updated, nil
}

// ListByOutlet exposes the partitioned store's outlet view for callers
// outside a staff session.
func (s *Service) ListByOutlet(ctx context.Context, outletID string, activeOnly bool) (repository.OutletOrders, error) {
	var statuses []domain.Status
	if activeOnly {
		statuses = domain.ActiveStatuses
	}
	return s.store.ListByOutlet(ctx, outletID, statuses)
}

func (s *Service) validate(req PlaceOrderRequest) error {
	outlet, ok := s.outlets.Outlet(req.OutletID)
	if !ok {
		return fmt.Errorf("%w: unknown outlet %q", ErrInvalidOrder, req.OutletID)
	}
	if !outlet.Active {
		return fmt.Errorf("%w: outlet %q is not accepting orders", ErrInvalidOrder, req.OutletID)
	}
	if req.Client.ID == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalidOrder)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidOrder)
	}
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return fmt.Errorf("%w: invalid quantity for item %q", ErrInvalidOrder, item.Name)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: invalid price for item %q", ErrInvalidOrder, item.Name)
		}
	}
	return nil
}

// estimateWait mirrors the kitchen's rough heuristic: a base figure with
// up to ten minutes of spread.
func (s *Service) estimateWait() int {
	base := s.cfg.BaseWaitMinutes
	if base <= 0 {
		base = 15
	}
	return base + rand.Intn(10)
}
