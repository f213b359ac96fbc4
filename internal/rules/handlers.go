package rules

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hydroventas/pricing-api/internal/common"
)

// ProductSource supplies catalog products for rule previews.
type ProductSource interface {
	GetProduct(ctx context.Context, orgID, id uuid.UUID) (Product, error)
}

// RuleStore is the persistence surface the admin endpoints operate on.
type RuleStore interface {
	ListActive(ctx context.Context, orgID uuid.UUID) ([]Rule, error)
	List(ctx context.Context, orgID uuid.UUID, page, perPage int) ([]Rule, int64, error)
	Get(ctx context.Context, orgID, id uuid.UUID) (Rule, error)
	Create(ctx context.Context, orgID uuid.UUID, input RuleInput) (Rule, error)
	Update(ctx context.Context, orgID, id uuid.UUID, input RuleInput) (Rule, error)
	SetActive(ctx context.Context, orgID, id uuid.UUID, active bool) (Rule, error)
	Delete(ctx context.Context, orgID, id uuid.UUID) error
}

// Handler exposes administrative rule management endpoints.
type Handler struct {
	Store           RuleStore
	Cache           *Cache
	Products        ProductSource
	Validate        *validator.Validate
	DefaultPriority int32
}

type rulePayload struct {
	Name        string          `json:"name" validate:"required,min=2"`
	Description *string         `json:"description"`
	Priority    *int32          `json:"priority"`
	Conditions  json.RawMessage `json:"conditions"`
	Effects     json.RawMessage `json:"effects"`
	IsActive    *bool           `json:"isActive"`
}

type previewRequest struct {
	ProductID      uuid.UUID `json:"productId" validate:"required"`
	Quantity       int64     `json:"quantity" validate:"required,gte=1"`
	PricingMode    Mode      `json:"pricingMode" validate:"required"`
	HasContract    bool      `json:"hasContract"`
	ContractMonths *int64    `json:"contractMonths"`
	CoverageZone   *string   `json:"coverageZone"`
	ServiceType    *string   `json:"serviceType"`
	OrderTotal     Money     `json:"orderTotal"`
}

// Create handles POST /api/v1/admin/rules.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.RequireOrg(w, r)
	if !ok {
		return
	}
	input, ok := h.decodePayload(w, r)
	if !ok {
		return
	}
	rule, err := h.Store.Create(r.Context(), orgID, input)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			common.JSONError(w, http.StatusConflict, "CONFLICT", "rule already exists", nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	_ = h.Cache.Invalidate(r.Context(), orgID)
	common.JSON(w, http.StatusCreated, map[string]any{"data": rule})
}

// Update handles PUT /api/v1/admin/rules/{ruleID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.RequireOrg(w, r)
	if !ok {
		return
	}
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	input, ok := h.decodePayload(w, r)
	if !ok {
		return
	}
	rule, err := h.Store.Update(r.Context(), orgID, id, input)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	_ = h.Cache.Invalidate(r.Context(), orgID)
	common.JSON(w, http.StatusOK, map[string]any{"data": rule})
}

// SetActive handles PATCH /api/v1/admin/rules/{ruleID}/active.
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.RequireOrg(w, r)
	if !ok {
		return
	}
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	var body struct {
		IsActive bool `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	rule, err := h.Store.SetActive(r.Context(), orgID, id, body.IsActive)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	_ = h.Cache.Invalidate(r.Context(), orgID)
	common.JSON(w, http.StatusOK, map[string]any{"data": rule})
}

// Delete handles DELETE /api/v1/admin/rules/{ruleID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.RequireOrg(w, r)
	if !ok {
		return
	}
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	if err := h.Store.Delete(r.Context(), orgID, id); err != nil {
		h.writeStoreError(w, err)
		return
	}
	_ = h.Cache.Invalidate(r.Context(), orgID)
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/v1/admin/rules.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.RequireOrg(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	list, total, err := h.Store.List(r.Context(), orgID, page, perPage)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       list,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// Get handles GET /api/v1/admin/rules/{ruleID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.RequireOrg(w, r)
	if !ok {
		return
	}
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	rule, err := h.Store.Get(r.Context(), orgID, id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rule})
}

// Preview handles POST /api/v1/admin/rules/preview: a single dry-run
// evaluation of the organisation's active rules against the given context.
// Line-item pricing goes through the two-pass quote endpoints instead.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.RequireOrg(w, r)
	if !ok {
		return
	}
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	if !req.PricingMode.Valid() {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unsupported pricing mode", nil)
		return
	}
	product, err := h.Products.GetProduct(r.Context(), orgID, req.ProductID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	ruleSet, err := h.Store.ListActive(r.Context(), orgID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	result := Evaluate(ruleSet, Context{
		Product:        product,
		Quantity:       req.Quantity,
		PricingMode:    req.PricingMode,
		HasContract:    req.HasContract,
		ContractMonths: req.ContractMonths,
		CoverageZone:   req.CoverageZone,
		ServiceType:    req.ServiceType,
		OrderTotal:     req.OrderTotal,
	})
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

func (h *Handler) decodePayload(w http.ResponseWriter, r *http.Request) (RuleInput, bool) {
	var payload rulePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return RuleInput{}, false
	}
	payload.Name = strings.TrimSpace(payload.Name)
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return RuleInput{}, false
		}
	}
	input := RuleInput{
		Name:        payload.Name,
		Description: payload.Description,
		Priority:    payload.Priority,
		IsActive:    true,
	}
	if payload.IsActive != nil {
		input.IsActive = *payload.IsActive
	}
	if input.Priority == nil {
		priority := h.DefaultPriority
		if priority == 0 {
			priority = DefaultPriority
		}
		input.Priority = &priority
	}
	if len(payload.Conditions) > 0 {
		_ = json.Unmarshal(payload.Conditions, &input.Conditions)
	}
	if len(payload.Effects) > 0 {
		_ = json.Unmarshal(payload.Effects, &input.Effects)
	}
	return input, true
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "rule not found", nil)
		return
	}
	common.WriteError(w, err)
}

func ruleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "ruleID"))
	id, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid rule id", nil)
		return uuid.UUID{}, false
	}
	return id, true
}
