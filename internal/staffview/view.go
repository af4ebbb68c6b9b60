// Package staffview maintains the staff-facing near-real-time view of an
// outlet's orders: a polled authoritative snapshot merged with optimistic
// patches for transitions whose writes are still in flight.
package staffview

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cafeteria-system/internal/common/logger"
	"cafeteria-system/internal/docstore"
	"cafeteria-system/internal/domain"
	"cafeteria-system/internal/orders/repository"
)

// StalePolicy decides what happens to an optimistic patch the
// authoritative store still disagrees with after a full refresh cycle.
type StalePolicy string

const (
	// PolicySurface reverts to the authoritative value and reports a
	// conflict in snapshots until a later refresh agrees.
	PolicySurface StalePolicy = "surface"
	// PolicyDrop silently reverts to the authoritative value.
	PolicyDrop StalePolicy = "drop"
	// PolicyRetry reissues the write once, then surfaces.
	PolicyRetry StalePolicy = "retry"
)

func ParsePolicy(s string) (StalePolicy, error) {
	switch StalePolicy(s) {
	case PolicySurface, PolicyDrop, PolicyRetry:
		return StalePolicy(s), nil
	}
	return "", fmt.Errorf("unknown stale policy %q", s)
}

type State string

const (
	StateEmpty      State = "empty"
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateRefreshing State = "refreshing"
	StateClosed     State = "closed"
)

// OrderSource is the slice of the partitioned store a view needs.
type OrderSource interface {
	ListByOutlet(ctx context.Context, outletID string, statuses []domain.Status) (repository.OutletOrders, error)
	UpdateStatus(ctx context.Context, orderID, customerID string, target domain.Status) (domain.Order, domain.Status, error)
}

// Conflict is an optimistic transition the store did not confirm within
// one refresh cycle.
type Conflict struct {
	OrderID       string        `json:"order_id"`
	Local         domain.Status `json:"local"`
	Authoritative domain.Status `json:"authoritative"`
}

// Snapshot is the merged, staff-facing result of a poll cycle.
type Snapshot struct {
	State            State          `json:"state"`
	Orders           []domain.Order `json:"orders"`
	Conflicts        []Conflict     `json:"conflicts,omitempty"`
	FailedPartitions int            `json:"failed_partitions"`
	LastRefresh      time.Time      `json:"last_refresh"`
}

type patch struct {
	status    domain.Status
	appliedAt time.Time
	retried   bool
}

// View is owned exclusively by the staff session that opened it.
type View struct {
	outletID string
	source   OrderSource
	lg       *logger.Logger
	interval time.Duration
	policy   StalePolicy

	mu               sync.Mutex
	state            State
	authoritative    map[string]domain.Order
	patches          map[string]patch
	conflicts        map[string]Conflict
	lastRefreshStart time.Time
	lastRefresh      time.Time
	failedPartitions int

	cancel context.CancelFunc
	done   chan struct{}
}

func newView(outletID string, source OrderSource, lg *logger.Logger, interval time.Duration, policy StalePolicy) *View {
	return &View{
		outletID:      outletID,
		source:        source,
		lg:            lg,
		interval:      interval,
		policy:        policy,
		state:         StateEmpty,
		authoritative: make(map[string]domain.Order),
		patches:       make(map[string]patch),
		conflicts:     make(map[string]Conflict),
		done:          make(chan struct{}),
	}
}

// open performs the initial load and starts the poll loop. On a failed
// initial load no goroutine is started and the view is closed; the caller
// may retry by opening a new view.
func (v *View) open(ctx context.Context) error {
	v.mu.Lock()
	v.state = StateLoading
	v.mu.Unlock()

	if err := v.refresh(ctx); err != nil {
		v.mu.Lock()
		v.state = StateClosed
		v.mu.Unlock()
		close(v.done)
		return fmt.Errorf("initial load for outlet %q: %w", v.outletID, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	go v.run(runCtx)
	return nil
}

func (v *View) run(ctx context.Context) {
	defer close(v.done)
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := v.refresh(ctx); err != nil && ctx.Err() == nil {
				v.lg.Error("view_refresh_failed", err, map[string]any{"outlet_id": v.outletID})
			}
		}
	}
}

// refresh fetches the authoritative outlet view and reconciles it with
// pending optimistic patches.
func (v *View) refresh(ctx context.Context) error {
	v.mu.Lock()
	if v.state == StateClosed {
		v.mu.Unlock()
		return nil
	}
	if v.state == StateReady {
		v.state = StateRefreshing
	}
	prevRefreshStart := v.lastRefreshStart
	v.mu.Unlock()

	refreshStart := time.Now().UTC()
	result, err := v.source.ListByOutlet(ctx, v.outletID, domain.ActiveStatuses)
	if err != nil {
		v.mu.Lock()
		if v.state == StateRefreshing {
			v.state = StateReady // keep serving the previous snapshot
		}
		v.mu.Unlock()
		return err
	}

	fresh := make(map[string]domain.Order, len(result.Orders))
	for _, order := range result.Orders {
		fresh[order.ID] = order
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == StateClosed {
		return nil
	}

	var retries []retryRequest
	for orderID, p := range v.patches {
		auth, present := fresh[orderID]
		switch {
		case !present:
			// The order left the active set (terminal elsewhere); the
			// authoritative store has moved past the patch.
			delete(v.patches, orderID)
			delete(v.conflicts, orderID)
		case domain.Supersedes(auth.Status, p.status):
			// Authoritative reflects or has moved past the optimistic
			// value; it wins.
			delete(v.patches, orderID)
			delete(v.conflicts, orderID)
		case p.appliedAt.After(prevRefreshStart):
			// Write may simply not be visible yet. The patch gets exactly
			// this one cycle of grace.
		default:
			v.resolveStale(orderID, p, auth, &retries)
		}
	}

	v.authoritative = fresh
	v.failedPartitions = len(result.FailedPartitions)
	v.lastRefreshStart = refreshStart
	v.lastRefresh = time.Now().UTC()
	v.state = StateReady

	for _, r := range retries {
		go v.asyncUpdate(r.orderID, r.customerID, r.status)
	}
	return nil
}

type retryRequest struct {
	orderID    string
	customerID string
	status     domain.Status
}

// resolveStale handles a patch the store still disagrees with after a
// full cycle. Caller holds the lock.
func (v *View) resolveStale(orderID string, p patch, auth domain.Order, retries *[]retryRequest) {
	switch {
	case v.policy == PolicyRetry && !p.retried:
		p.retried = true
		p.appliedAt = time.Now().UTC()
		v.patches[orderID] = p
		*retries = append(*retries, retryRequest{orderID: orderID, customerID: auth.Client.ID, status: p.status})
		v.lg.Info("optimistic_patch_retried", map[string]any{
			"order_id": orderID, "status": p.status, "outlet_id": v.outletID,
		})
	case v.policy == PolicyDrop:
		delete(v.patches, orderID)
	default:
		delete(v.patches, orderID)
		v.conflicts[orderID] = Conflict{OrderID: orderID, Local: p.status, Authoritative: auth.Status}
		v.lg.Info("optimistic_patch_stale", map[string]any{
			"order_id": orderID, "local": p.status, "authoritative": auth.Status,
		})
	}
}

// Advance validates the transition against the merged view, applies an
// optimistic patch so the change is visible immediately, and issues the
// backing write asynchronously.
func (v *View) Advance(orderID string, target domain.Status) error {
	v.mu.Lock()
	if v.state == StateClosed {
		v.mu.Unlock()
		return fmt.Errorf("view closed")
	}
	order, ok := v.authoritative[orderID]
	if !ok {
		v.mu.Unlock()
		return fmt.Errorf("order %s: %w", orderID, docstore.ErrNotFound)
	}
	current := order.Status
	if p, patched := v.patches[orderID]; patched {
		current = p.status
	}
	if !domain.CanTransition(current, target) {
		v.mu.Unlock()
		return &domain.InvalidTransitionError{From: current, To: target}
	}
	v.patches[orderID] = patch{status: target, appliedAt: time.Now().UTC()}
	delete(v.conflicts, orderID)
	customerID := order.Client.ID
	v.mu.Unlock()

	go v.asyncUpdate(orderID, customerID, target)
	return nil
}

func (v *View) asyncUpdate(orderID, customerID string, target domain.Status) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, _, err := v.source.UpdateStatus(ctx, orderID, customerID, target); err != nil {
		v.lg.Error("optimistic_write_failed", err, map[string]any{
			"order_id": orderID, "target": target, "outlet_id": v.outletID,
		})
	}
}

// Snapshot returns the merged view: authoritative orders with pending
// patches applied, sorted by token number.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	snap := Snapshot{
		State:            v.state,
		Orders:           make([]domain.Order, 0, len(v.authoritative)),
		FailedPartitions: v.failedPartitions,
		LastRefresh:      v.lastRefresh,
	}
	for id, order := range v.authoritative {
		if p, ok := v.patches[id]; ok {
			order.Status = p.status
		}
		snap.Orders = append(snap.Orders, order)
	}
	sort.Slice(snap.Orders, func(i, j int) bool {
		return snap.Orders[i].TokenNumber < snap.Orders[j].TokenNumber
	})
	for _, c := range v.conflicts {
		snap.Conflicts = append(snap.Conflicts, c)
	}
	sort.Slice(snap.Conflicts, func(i, j int) bool {
		return snap.Conflicts[i].OrderID < snap.Conflicts[j].OrderID
	})
	return snap
}

func (v *View) OutletID() string { return v.outletID }

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Close stops the poll loop and waits for it to exit. Idempotent.
func (v *View) Close() {
	v.mu.Lock()
	if v.state == StateClosed {
		v.mu.Unlock()
		return
	}
	v.state = StateClosed
	cancel := v.cancel
	v.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-v.done
}
