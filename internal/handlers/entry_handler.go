package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/somexchange/backend/internal/models"
	"github.com/somexchange/backend/internal/services"
)

type EntryHandler struct {
	query    *services.QueryService
	editor   *services.LedgerEditor
	receipts *services.ReceiptService
	location *time.Location
}

func NewEntryHandler(query *services.QueryService, editor *services.LedgerEditor, receipts *services.ReceiptService, loc *time.Location) *EntryHandler {
	return &EntryHandler{query: query, editor: editor, receipts: receipts, location: loc}
}

// ListEntries lists ledger entries, newest first
// @Summary List entries
// @Tags Entries
// @Produce json
// @Security BearerAuth
// @Param currency query string false "Currency code"
// @Param operation query string false "Purchase, Sale or Deposit"
// @Param from query string false "First day, YYYY-MM-DD"
// @Param to query string false "Last day, YYYY-MM-DD"
// @Param username query string false "Owner (admins only)"
// @Param limit query int false "Maximum number of entries"
// @Success 200 {array} models.LedgerEntry
// @Router /entries [get]
func (h *EntryHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	dateRange, err := parseRange(q, h.location)
	if err != nil {
		writeError(w, err)
		return
	}

	filter := models.EntryFilter{
		CurrencyCode:  strings.ToUpper(q.Get("currency")),
		OperationType: models.OperationType(q.Get("operation")),
		Username:      q.Get("username"),
		Range:         dateRange,
		NewestFirst:   true,
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest,
				&services.ValidationError{Message: "Validation failed", Fields: map[string]string{"limit": "must be an integer"}})
			return
		}
		filter.Limit = n
	}

	entries, err := h.query.ListEntries(r.Context(), actor, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// @Router /entries/{id} [get]
func (h *EntryHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	entry, err := h.query.GetEntry(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// EditEntry replaces an entry and rebalances the affected accounts
// @Summary Edit entry
// @Tags Entries
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Entry ID"
// @Param request body services.EditRequest true "Replacement fields"
// @Success 200 {object} models.LedgerEntry
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /entries/{id} [put]
func (h *EntryHandler) EditEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	var req services.EditRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := h.editor.EditEntry(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// @Router /entries/{id} [delete]
func (h *EntryHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	if err := h.editor.DeleteEntry(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Receipt renders an entry as a QR code
// @Summary Entry receipt
// @Tags Entries
// @Produce png
// @Security BearerAuth
// @Param id path string true "Entry ID"
// @Param size query int false "Image size in pixels (64-1024)"
// @Router /entries/{id}/receipt [get]
func (h *EntryHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	size := 0
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest,
				&services.ValidationError{Message: "Validation failed", Fields: map[string]string{"size": "must be an integer"}})
			return
		}
		size = n
	}

	png, err := h.receipts.Receipt(r.Context(), actor, chi.URLParam(r, "id"), size)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Write(png)
}

// @Router /currencies [get]
func (h *EntryHandler) CurrencyCodes(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	codes, err := h.query.CurrencyCodes(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, codes)
}

// @Router /operation-types [get]
func (h *EntryHandler) OperationTypes(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	types, err := h.query.OperationTypes(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}
