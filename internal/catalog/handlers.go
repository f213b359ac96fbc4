package catalog

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hydroventas/pricing-api/internal/common"
	"github.com/hydroventas/pricing-api/internal/rules"
)

// Handler exposes catalog endpoints.
type Handler struct {
	Service  *Service
	Validate *validator.Validate
}

type productPayload struct {
	Name               string       `json:"name" validate:"required,min=2"`
	Category           string       `json:"category" validate:"required"`
	PricingMode        rules.Mode   `json:"pricingMode" validate:"required"`
	BaseUnitPrice      *rules.Money `json:"baseUnitPrice"`
	AllowSale          bool         `json:"allowSale"`
	AllowRental        bool         `json:"allowRental"`
	AllowConcession    bool         `json:"allowConcession"`
	MinConcessionUnits *int64       `json:"minConcessionUnits"`
	RentalMonthlyFee   *rules.Money `json:"rentalMonthlyFee"`
	Notes              *string      `json:"notes"`
	IsActive           *bool        `json:"isActive"`
}

// List handles GET /api/v1/products.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.RequireOrg(w, r)
	if !ok {
		return
	}
	params := h.Service.ParseListParams(r.URL.Query())
	result, err := h.Service.ListProducts(r.Context(), orgID, params)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": common.Pagination{Page: result.Page, PerPage: result.Limit, TotalItems: int(result.Total)},
	})
}

// Get handles GET /api/v1/products/{productID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.RequireOrg(w, r)
	if !ok {
		return
	}
	id, ok := productID(w, r)
	if !ok {
		return
	}
	product, err := h.Service.GetProduct(r.Context(), orgID, id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": product})
}

// Create handles POST /api/v1/admin/products.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.RequireOrg(w, r)
	if !ok {
		return
	}
	input, ok := h.decodePayload(w, r)
	if !ok {
		return
	}
	product, err := h.Service.CreateProduct(r.Context(), orgID, input)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": product})
}

// Update handles PUT /api/v1/admin/products/{productID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.RequireOrg(w, r)
	if !ok {
		return
	}
	id, ok := productID(w, r)
	if !ok {
		return
	}
	input, ok := h.decodePayload(w, r)
	if !ok {
		return
	}
	product, err := h.Service.UpdateProduct(r.Context(), orgID, id, input)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": product})
}

// Delete handles DELETE /api/v1/admin/products/{productID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.RequireOrg(w, r)
	if !ok {
		return
	}
	id, ok := productID(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteProduct(r.Context(), orgID, id); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodePayload(w http.ResponseWriter, r *http.Request) (ProductInput, bool) {
	var payload productPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return ProductInput{}, false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return ProductInput{}, false
		}
	}
	input := ProductInput{
		Name:               strings.TrimSpace(payload.Name),
		Category:           strings.TrimSpace(payload.Category),
		PricingMode:        payload.PricingMode,
		BaseUnitPrice:      payload.BaseUnitPrice,
		AllowSale:          payload.AllowSale,
		AllowRental:        payload.AllowRental,
		AllowConcession:    payload.AllowConcession,
		MinConcessionUnits: payload.MinConcessionUnits,
		RentalMonthlyFee:   payload.RentalMonthlyFee,
		Notes:              payload.Notes,
		IsActive:           true,
	}
	if payload.IsActive != nil {
		input.IsActive = *payload.IsActive
	}
	return input, true
}

func productID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "productID"))
	id, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return uuid.UUID{}, false
	}
	return id, true
}
