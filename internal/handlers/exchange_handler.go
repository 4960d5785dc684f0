package handlers

import (
	"net/http"

	"github.com/somexchange/backend/internal/services"
)

type ExchangeHandler struct {
	service *services.ExchangeService
}

func NewExchangeHandler(service *services.ExchangeService) *ExchangeHandler {
	return &ExchangeHandler{service: service}
}

// PerformExchange records a purchase or sale of foreign currency
// @Summary Perform exchange
// @Tags Exchange
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.ExchangeRequest true "Exchange request"
// @Success 201 {object} models.LedgerEntry
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /exchanges [post]
func (h *ExchangeHandler) PerformExchange(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	var req services.ExchangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := h.service.PerformExchange(r.Context(), actor, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// Deposit adds base currency to the till
// @Summary Deposit
// @Tags Exchange
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.DepositRequest true "Deposit request"
// @Success 201 {object} models.LedgerEntry
// @Failure 400 {object} services.ErrorResponse
// @Router /deposits [post]
func (h *ExchangeHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	var req services.DepositRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := h.service.Deposit(r.Context(), actor, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
