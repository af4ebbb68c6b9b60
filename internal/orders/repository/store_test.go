package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafeteria-system/internal/common/logger"
	"cafeteria-system/internal/docstore"
	"cafeteria-system/internal/docstore/memory"
	"cafeteria-system/internal/domain"
)

func testLogger() *logger.Logger { return logger.NewWithWriter("test", io.Discard) }

func order(id, customerID, outletID string, token int, status domain.Status) domain.Order {
	return domain.Order{
		ID:          id,
		OrderNumber: "DH-0001",
		TokenNumber: token,
		OutletID:    outletID,
		Items:       []domain.OrderItem{{ItemID: "i1", Name: "Masala Dosa", Quantity: 1, UnitPrice: 80}},
		TotalAmount: 84,
		Status:      status,
		CreatedAt:   time.Now().UTC().Add(time.Duration(token) * time.Millisecond),
		Client:      domain.Client{ID: customerID},
	}
}

func TestCreateAndUpdateStatus(t *testing.T) {
	docs := memory.New()
	store := New(docs, testLogger())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, order("o1", "cust-1", "bites", 1, domain.StatusPending)))

	updated, prev, err := store.UpdateStatus(ctx, "o1", "cust-1", domain.StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, prev)
	assert.Equal(t, domain.StatusAccepted, updated.Status)

	stored, err := docs.GetOrder(ctx, "cust-1", "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, stored.Status)
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	docs := memory.New()
	store := New(docs, testLogger())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, order("o1", "cust-1", "bites", 1, domain.StatusPending)))

	_, _, err := store.UpdateStatus(ctx, "o1", "cust-1", domain.StatusReady)
	var ite *domain.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, domain.StatusPending, ite.From)
	assert.Equal(t, domain.StatusReady, ite.To)

	// Order untouched.
	stored, err := docs.GetOrder(ctx, "cust-1", "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	store := New(memory.New(), testLogger())
	_, _, err := store.UpdateStatus(context.Background(), "nope", "cust-1", domain.StatusAccepted)
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestUpdateStatus_WrongPartition(t *testing.T) {
	docs := memory.New()
	store := New(docs, testLogger())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, order("o1", "cust-1", "bites", 1, domain.StatusPending)))

	_, _, err := store.UpdateStatus(ctx, "o1", "cust-2", domain.StatusAccepted)
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestListByOutlet_MergesAcrossPartitions(t *testing.T) {
	docs := memory.New()
	store := New(docs, testLogger())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, order("o1", "cust-1", "bites", 1, domain.StatusPending)))
	require.NoError(t, store.Create(ctx, order("o2", "cust-2", "bites", 2, domain.StatusPreparing)))
	require.NoError(t, store.Create(ctx, order("o3", "cust-3", "juice-bar", 1, domain.StatusPending)))

	result, err := store.ListByOutlet(ctx, "bites", nil)
	require.NoError(t, err)
	assert.False(t, result.Degraded())
	require.Len(t, result.Orders, 2)
	// Ordered by creation time.
	assert.Equal(t, "o1", result.Orders[0].ID)
	assert.Equal(t, "o2", result.Orders[1].ID)
}

func TestListByOutlet_StatusFilter(t *testing.T) {
	docs := memory.New()
	store := New(docs, testLogger())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, order("o1", "cust-1", "bites", 1, domain.StatusCompleted)))
	require.NoError(t, store.Create(ctx, order("o2", "cust-1", "bites", 2, domain.StatusPreparing)))

	result, err := store.ListByOutlet(ctx, "bites", domain.ActiveStatuses)
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)
	assert.Equal(t, "o2", result.Orders[0].ID)
}

func TestListByOutlet_PartialPartitionFailure(t *testing.T) {
	docs := memory.New()
	store := New(docs, testLogger())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, order("o1", "cust-1", "bites", 1, domain.StatusPending)))
	require.NoError(t, store.Create(ctx, order("o2", "cust-2", "bites", 2, domain.StatusPending)))
	require.NoError(t, store.Create(ctx, order("o3", "cust-3", "bites", 3, domain.StatusPending)))

	docs.FailPartition("cust-2", errors.New("shard offline"))

	result, err := store.ListByOutlet(ctx, "bites", nil)
	require.NoError(t, err, "one bad shard must not abort the whole read")
	assert.True(t, result.Degraded())
	assert.Equal(t, []string{"cust-2"}, result.FailedPartitions)

	ids := []string{result.Orders[0].ID, result.Orders[1].ID}
	assert.ElementsMatch(t, []string{"o1", "o3"}, ids)
}

func TestCreate_WriteFailureIsWrapped(t *testing.T) {
	docs := memory.New()
	store := New(docs, testLogger())
	ctx := context.Background()

	o := order("o1", "cust-1", "bites", 1, domain.StatusPending)
	require.NoError(t, store.Create(ctx, o))
	err := store.Create(ctx, o) // duplicate id in the same partition
	require.ErrorIs(t, err, ErrWriteFailed)
}
