// Package handlers exposes staff view sessions over HTTP: open a view,
// poll its snapshot, advance orders optimistically, close it.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"cafeteria-system/internal/common/httpx"
	"cafeteria-system/internal/common/logger"
	"cafeteria-system/internal/docstore"
	"cafeteria-system/internal/domain"
	"cafeteria-system/internal/staffview"
)

type Handler struct {
	manager *staffview.Manager
	lg      *logger.Logger
}

func New(manager *staffview.Manager, lg *logger.Logger) *Handler {
	return &Handler{manager: manager, lg: lg}
}

func Register(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("POST /api/v1/staff/views", h.OpenView)
	mux.HandleFunc("GET /api/v1/staff/views/{view_id}", h.GetSnapshot)
	mux.HandleFunc("POST /api/v1/staff/views/{view_id}/orders/{order_id}/status", h.AdvanceOrder)
	mux.HandleFunc("DELETE /api/v1/staff/views/{view_id}", h.CloseView)
}

func (h *Handler) OpenView(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OutletID string `json:"outlet_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}
	if req.OutletID == "" {
		httpx.WriteProblem(w, http.StatusBadRequest, "missing_outlet_id", "outlet_id is required")
		return
	}
	id, view, err := h.manager.Open(r.Context(), req.OutletID)
	if err != nil {
		h.lg.Error("view_open_failed", err, map[string]any{"outlet_id": req.OutletID})
		httpx.WriteProblem(w, http.StatusBadGateway, "initial_load_failed", err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"view_id":  id,
		"snapshot": view.Snapshot(),
	})
}

func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	view, err := h.manager.Get(r.PathValue("view_id"))
	if err != nil {
		httpx.WriteProblem(w, http.StatusNotFound, "view_not_found", err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view.Snapshot())
}

func (h *Handler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	view, err := h.manager.Get(r.PathValue("view_id"))
	if err != nil {
		httpx.WriteProblem(w, http.StatusNotFound, "view_not_found", err.Error())
		return
	}
	var req struct {
		Status domain.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}
	if !req.Status.Valid() {
		httpx.WriteProblem(w, http.StatusBadRequest, "invalid_status", "unknown status "+string(req.Status))
		return
	}
	if err := view.Advance(r.PathValue("order_id"), req.Status); err != nil {
		var ite *domain.InvalidTransitionError
		switch {
		case errors.As(err, &ite):
			httpx.WriteProblem(w, http.StatusConflict, "invalid_transition", ite.Error())
		case errors.Is(err, docstore.ErrNotFound):
			httpx.WriteProblem(w, http.StatusNotFound, "not_found", err.Error())
		default:
			httpx.WriteProblem(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}
	// The snapshot already reflects the optimistic patch.
	httpx.WriteJSON(w, http.StatusAccepted, view.Snapshot())
}

func (h *Handler) CloseView(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Close(r.PathValue("view_id")); err != nil {
		httpx.WriteProblem(w, http.StatusNotFound, "view_not_found", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
