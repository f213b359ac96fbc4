package audit

import (
	"net/http"

	"github.com/hydroventas/pricing-api/internal/common"
)

// Handler exposes administrative audit endpoints.
type Handler struct {
	Store *Store
}

// List handles GET /api/v1/admin/audits.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.RequireOrg(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	records, total, err := h.Store.List(r.Context(), orgID, page, perPage)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       records,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}
