package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/basket/internal/apperr"
	"github.com/starford/basket/internal/session"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	mgr *session.Manager
}

// NewHandler creates a new Handler.
func NewHandler(mgr *session.Manager) *Handler {
	return &Handler{mgr: mgr}
}

// ListLists handles GET /api/lists.
//
//	@Summary		List all shopping lists
//	@Tags			lists
//	@Produce		json
//	@Success		200	{object}	ListsResponse
//	@Security		BearerAuth
//	@Router			/lists [get]
func (h *Handler) ListLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.mgr.List(r.Context())
	if err != nil {
		writeError(w, "list lists", err)
		return
	}
	writeJSON(w, http.StatusOK, ListsResponse{Lists: lists, Total: len(lists)})
}

// CreateList handles POST /api/lists.
//
//	@Summary		Create a shopping list
//	@Tags			lists
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateListRequest	true	"List to create"
//	@Success		201		{object}	ListDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lists [post]
func (h *Handler) CreateList(w http.ResponseWriter, r *http.Request) {
	var req CreateListRequest
	if !decode(w, r, &req) {
		return
	}
	items := make([]session.NewItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, session.NewItem{CanonicalID: it.CanonicalID, ProductName: it.ProductName, Quantity: it.Quantity})
	}
	s, err := h.mgr.Import(r.Context(), req.Name, req.MaxStores, items)
	if err != nil {
		writeError(w, "create list", err)
		return
	}
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

// GetList handles GET /api/lists/{id}.
//
//	@Summary		Get a shopping list
//	@Tags			lists
//	@Produce		json
//	@Param			id	path		string	true	"List ID"
//	@Success		200	{object}	ListDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lists/{id} [get]
func (h *Handler) GetList(w http.ResponseWriter, r *http.Request) {
	s, ok := h.open(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// UpdateList handles PATCH /api/lists/{id}.
//
//	@Summary		Update list name, store cap or status
//	@Tags			lists
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"List ID"
//	@Param			body	body		UpdateListRequest	true	"Fields to change"
//	@Success		200		{object}	ListDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lists/{id} [patch]
func (h *Handler) UpdateList(w http.ResponseWriter, r *http.Request) {
	var req UpdateListRequest
	if !decode(w, r, &req) {
		return
	}
	s, ok := h.open(w, r)
	if !ok {
		return
	}

	d, err := s.Update(session.ListUpdate{
		Name:         req.Name,
		MaxStores:    req.MaxStores,
		Status:       req.Status,
		ClearChecked: req.ClearChecked,
	})
	if err != nil {
		writeError(w, "update list", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DeleteList handles DELETE /api/lists/{id}.
//
//	@Summary		Delete a shopping list
//	@Tags			lists
//	@Param			id	path	string	true	"List ID"
//	@Success		204	"List deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lists/{id} [delete]
func (h *Handler) DeleteList(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete list", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItem handles POST /api/lists/{id}/items.
//
//	@Summary		Add an item, merging with an existing line for the same product
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"List ID"
//	@Param			body	body		ItemInput	true	"Item to add"
//	@Success		200		{object}	ListDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lists/{id}/items [post]
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req ItemInput
	if !decode(w, r, &req) {
		return
	}
	s, ok := h.open(w, r)
	if !ok {
		return
	}
	d, err := s.AddItem(req.CanonicalID, req.ProductName, req.Quantity)
	if err != nil {
		writeError(w, "add item", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// UpdateItem handles PATCH /api/lists/{id}/items/{canonicalID}.
//
//	@Summary		Change quantity, checked state or display name of an item
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string				true	"List ID"
//	@Param			canonicalID	path		int					true	"Product ID"
//	@Param			body		body		UpdateItemRequest	true	"Fields to change"
//	@Success		200			{object}	ListDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lists/{id}/items/{canonicalID} [patch]
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := canonicalID(w, r)
	if !ok {
		return
	}
	var req UpdateItemRequest
	if !decode(w, r, &req) {
		return
	}
	s, ok := h.open(w, r)
	if !ok {
		return
	}

	d, err := s.UpdateItem(itemID, session.ItemUpdate{
		Quantity:    req.Quantity,
		IsChecked:   req.IsChecked,
		ProductName: req.ProductName,
	})
	if err != nil {
		writeError(w, "update item", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// RemoveItem handles DELETE /api/lists/{id}/items/{canonicalID}.
//
//	@Summary		Remove an item
//	@Tags			items
//	@Produce		json
//	@Param			id			path		string	true	"List ID"
//	@Param			canonicalID	path		int		true	"Product ID"
//	@Success		200			{object}	ListDetail
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lists/{id}/items/{canonicalID} [delete]
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := canonicalID(w, r)
	if !ok {
		return
	}
	s, ok := h.open(w, r)
	if !ok {
		return
	}
	d, err := s.RemoveItem(itemID)
	if err != nil {
		writeError(w, "remove item", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Optimize handles POST /api/lists/{id}/optimize.
//
//	@Summary		Run the store-allocation optimizer for a list
//	@Tags			optimize
//	@Produce		json
//	@Param			id	path		string	true	"List ID"
//	@Success		200	{object}	ListDetail
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lists/{id}/optimize [post]
func (h *Handler) Optimize(w http.ResponseWriter, r *http.Request) {
	s, ok := h.open(w, r)
	if !ok {
		return
	}
	d, err := s.Optimize(r.Context())
	if err != nil {
		writeError(w, "optimize", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// KPIs handles GET /api/lists/{id}/kpis.
//
//	@Summary		Get display metrics derived from the cached optimization
//	@Tags			optimize
//	@Produce		json
//	@Param			id	path		string	true	"List ID"
//	@Success		200	{object}	KPIResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lists/{id}/kpis [get]
func (h *Handler) KPIs(w http.ResponseWriter, r *http.Request) {
	s, ok := h.open(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.KPIs())
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	s, err := h.mgr.Open(r.Context(), id)
	if err != nil {
		writeError(w, "open list", err)
		return nil, false
	}
	return s, true
}

func canonicalID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "canonicalID"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody(codeBadRequest, "canonicalID must be a positive integer"))
		return 0, false
	}
	return id, true
}

type validatable interface {
	Validate() error
}

func decode(w http.ResponseWriter, r *http.Request, dst validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(codeBadRequest, "invalid JSON body"))
		return false
	}
	if err := dst.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(codeBadRequest, err.Error()))
		return false
	}
	return true
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, op string, err error) {
	var rejected *apperr.RejectedError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(codeNotFound, "not found"))
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(codeBadRequest, err.Error()))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody(codeConflict, "already exists"))
	case errors.Is(err, apperr.ErrEmptyList):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(codeEmptyList, "list has no items"))
	case errors.Is(err, apperr.ErrOptimizationInProgress):
		writeJSON(w, http.StatusConflict, errorBody(codeInProgress, "optimization already in progress"))
	case errors.As(err, &rejected):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(codeRejected, rejected.Error()))
	case errors.Is(err, apperr.ErrTransportFailure):
		slog.Warn(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody(codeUnavailable, "optimizer unavailable"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(codeInternal, "internal error"))
	}
}
