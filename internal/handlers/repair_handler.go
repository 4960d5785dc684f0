package handlers

import (
	"net/http"
	"strconv"

	"github.com/somexchange/backend/internal/services"
)

type RepairHandler struct {
	service *services.RepairService
}

func NewRepairHandler(service *services.RepairService) *RepairHandler {
	return &RepairHandler{service: service}
}

// Repair recomputes account balances from the ledger
// @Summary Repair balances
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param dry_run query bool false "Report drift without writing"
// @Success 200 {object} models.RepairReport
// @Router /admin/repair [post]
func (h *RepairHandler) Repair(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	dryRun := false
	if v := r.URL.Query().Get("dry_run"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest,
				&services.ValidationError{Message: "Validation failed", Fields: map[string]string{"dry_run": "must be a boolean"}})
			return
		}
		dryRun = b
	}

	report, err := h.service.RepairBalances(r.Context(), actor, dryRun)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
