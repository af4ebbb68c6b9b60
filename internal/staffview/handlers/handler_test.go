package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafeteria-system/internal/common/logger"
	"cafeteria-system/internal/docstore/memory"
	"cafeteria-system/internal/domain"
	"cafeteria-system/internal/orders/repository"
	"cafeteria-system/internal/staffview"
)

func newTestMux(t *testing.T) (*http.ServeMux, *memory.Store) {
	t.Helper()
	store := memory.New()
	lg := logger.NewWithWriter("test", io.Discard)
	repo := repository.New(store, lg)
	manager := staffview.NewManager(repo, lg, staffview.Config{RefreshInterval: time.Hour})
	t.Cleanup(manager.CloseAll)

	mux := http.NewServeMux()
	Register(mux, New(manager, lg))
	return mux, store
}

func seedOrder(t *testing.T, store *memory.Store, id string, token int, status domain.Status) {
	t.Helper()
	err := store.InsertOrder(context.Background(), "cust-"+id, domain.Order{
		ID:          id,
		TokenNumber: token,
		OutletID:    "bites",
		Status:      status,
		CreatedAt:   time.Now().UTC(),
		Client:      domain.Client{ID: "cust-" + id},
	})
	require.NoError(t, err)
}

func openView(t *testing.T, mux *http.ServeMux) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/staff/views", strings.NewReader(`{"outlet_id":"bites"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		ViewID string `json:"view_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ViewID)
	return resp.ViewID
}

func TestOpenAndSnapshot(t *testing.T) {
	mux, store := newTestMux(t)
	seedOrder(t, store, "o1", 1, domain.StatusPending)
	seedOrder(t, store, "o2", 2, domain.StatusPreparing)

	viewID := openView(t, mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/staff/views/"+viewID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap staffview.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, staffview.StateReady, snap.State)
	require.Len(t, snap.Orders, 2)
	assert.Equal(t, "o1", snap.Orders[0].ID)
}

func TestOpenView_MissingOutlet(t *testing.T) {
	mux, _ := newTestMux(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/staff/views", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdvanceOrder_Optimistic(t *testing.T) {
	mux, store := newTestMux(t)
	seedOrder(t, store, "o1", 1, domain.StatusPending)
	viewID := openView(t, mux)

	body, _ := json.Marshal(map[string]string{"status": "accepted"})
	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/staff/views/"+viewID+"/orders/o1/status", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var snap staffview.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, domain.StatusAccepted, snap.Orders[0].Status,
		"optimistic patch visible in the returned snapshot")

	// The asynchronous write eventually lands in the store.
	require.Eventually(t, func() bool {
		order, err := store.GetOrder(context.Background(), "cust-o1", "o1")
		return err == nil && order.Status == domain.StatusAccepted
	}, time.Second, 5*time.Millisecond)
}

func TestAdvanceOrder_InvalidTransition(t *testing.T) {
	mux, store := newTestMux(t)
	seedOrder(t, store, "o1", 1, domain.StatusPending)
	viewID := openView(t, mux)

	body, _ := json.Marshal(map[string]string{"status": "completed"})
	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/staff/views/"+viewID+"/orders/o1/status", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdvanceOrder_UnknownStatus(t *testing.T) {
	mux, store := newTestMux(t)
	seedOrder(t, store, "o1", 1, domain.StatusPending)
	viewID := openView(t, mux)

	body, _ := json.Marshal(map[string]string{"status": "vaporized"})
	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/staff/views/"+viewID+"/orders/o1/status", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCloseView(t *testing.T) {
	mux, store := newTestMux(t)
	seedOrder(t, store, "o1", 1, domain.StatusPending)
	viewID := openView(t, mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/staff/views/"+viewID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/staff/views/"+viewID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownView(t *testing.T) {
	mux, _ := newTestMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/staff/views/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
