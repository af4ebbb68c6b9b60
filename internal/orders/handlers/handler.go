package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"cafeteria-system/internal/common/httpx"
	"cafeteria-system/internal/common/logger"
	"cafeteria-system/internal/docstore"
	"cafeteria-system/internal/domain"
	"cafeteria-system/internal/orders/repository"
	"cafeteria-system/internal/orders/service"
	"cafeteria-system/internal/sequence"
)

type Handler struct {
	service *service.Service
	lg      *logger.Logger
}

func New(svc *service.Service, lg *logger.Logger) *Handler {
	return &Handler{service: svc, lg: lg}
}

func Register(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("POST /api/v1/orders", h.PlaceOrder)
	mux.HandleFunc("POST /api/v1/orders/{order_id}/status", h.AdvanceStatus)
	mux.HandleFunc("GET /api/v1/outlets/{outlet_id}/orders", h.ListByOutlet)
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req service.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}
	order, err := h.service.PlaceOrder(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, order)
}

func (h *Handler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("order_id")
	var req struct {
		CustomerID string        `json:"customer_id"`
		Status     domain.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}
	if req.CustomerID == "" {
		httpx.WriteProblem(w, http.StatusBadRequest, "missing_customer_id", "customer_id is required")
		return
	}
	order, err := h.service.AdvanceStatus(r.Context(), orderID, req.CustomerID, req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) ListByOutlet(w http.ResponseWriter, r *http.Request) {
	outletID := r.PathValue("outlet_id")
	activeOnly := r.URL.Query().Get("active") == "true"

	result, err := h.service.ListByOutlet(r.Context(), outletID, activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"outlet_id":         outletID,
		"orders":            result.Orders,
		"failed_partitions": result.FailedPartitions,
		"degraded":          result.Degraded(),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var ite *domain.InvalidTransitionError
	switch {
	case errors.As(err, &ite):
		httpx.WriteProblem(w, http.StatusConflict, "invalid_transition", ite.Error())
	case errors.Is(err, service.ErrInvalidOrder):
		httpx.WriteProblem(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, docstore.ErrNotFound):
		httpx.WriteProblem(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, docstore.ErrConflict):
		httpx.WriteProblem(w, http.StatusConflict, "write_conflict", err.Error())
	case errors.Is(err, sequence.ErrAllocationFailed):
		httpx.WriteProblem(w, http.StatusServiceUnavailable, "allocation_failed", err.Error())
	case errors.Is(err, repository.ErrWriteFailed):
		httpx.WriteProblem(w, http.StatusInternalServerError, "write_failed", err.Error())
	default:
		h.lg.Error("request_failed", err, nil)
		httpx.WriteProblem(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
