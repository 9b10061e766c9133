package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"wellpath/internal/model"
	"wellpath/internal/service"
	"wellpath/internal/transport/rest/middleware"
)

// CaseHandler handles case endpoints
type CaseHandler struct {
	caseSvc *service.CaseService
}

// NewCaseHandler creates a new case handler
func NewCaseHandler(caseSvc *service.CaseService) *CaseHandler {
	return &CaseHandler{caseSvc: caseSvc}
}

// Create handles POST /v1/cases
func (h *CaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwnerID(r.Context())

	var req model.CreateCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.caseSvc.Create(r.Context(), owner, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

// List handles GET /v1/cases
func (h *CaseHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwnerID(r.Context())

	cases, err := h.caseSvc.List(r.Context(), owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"cases": cases})
}

// Get handles GET /v1/cases/{id}
func (h *CaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwnerID(r.Context())
	id := mux.Vars(r)["id"]

	c, err := h.caseSvc.Get(r.Context(), id, owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// Update handles PUT /v1/cases/{id}
func (h *CaseHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwnerID(r.Context())
	id := mux.Vars(r)["id"]

	var req model.UpdateCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.caseSvc.Update(r.Context(), id, owner, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// Close handles POST /v1/cases/{id}/close
func (h *CaseHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.caseSvc.Close)
}

// Reopen handles POST /v1/cases/{id}/reopen
func (h *CaseHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.caseSvc.Reopen)
}

func (h *CaseHandler) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id, owner string) (*model.Case, error)) {
	owner := middleware.GetOwnerID(r.Context())
	id := mux.Vars(r)["id"]

	c, err := apply(r.Context(), id, owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// Delete handles DELETE /v1/cases/{id}
func (h *CaseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwnerID(r.Context())
	id := mux.Vars(r)["id"]

	if err := h.caseSvc.Delete(r.Context(), id, owner); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Interviews handles GET /v1/cases/{id}/interviews
func (h *CaseHandler) Interviews(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwnerID(r.Context())
	id := mux.Vars(r)["id"]

	list, err := h.caseSvc.Interviews(r.Context(), id, owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"interviews": list})
}
