package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/somexchange/backend/internal/services"
)

type AccountHandler struct {
	service *services.AccountService
}

func NewAccountHandler(service *services.AccountService) *AccountHandler {
	return &AccountHandler{service: service}
}

// @Router /accounts [get]
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	if _, ok := identity(w, r); !ok {
		return
	}

	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// @Router /accounts/{code} [get]
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	if _, ok := identity(w, r); !ok {
		return
	}

	account, err := h.service.GetAccount(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// ProvisionAccount creates a currency account or updates its default rates
// @Summary Provision account
// @Tags Accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param code path string true "Currency code"
// @Param request body services.ProvisionRequest true "Default rates"
// @Success 200 {object} models.Account
// @Failure 403 {object} services.ErrorResponse
// @Router /accounts/{code} [put]
func (h *AccountHandler) ProvisionAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	var req services.ProvisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.service.ProvisionAccount(r.Context(), actor, chi.URLParam(r, "code"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}
