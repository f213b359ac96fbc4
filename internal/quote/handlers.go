package quote

import (
	"encoding/json"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hydroventas/pricing-api/internal/common"
	"github.com/hydroventas/pricing-api/internal/rules"
)

// Handler exposes the quoting endpoints.
type Handler struct {
	Service  *Service
	Validate *validator.Validate
}

type linePayload struct {
	ProductID      string  `json:"productId" validate:"required,uuid"`
	Quantity       int64   `json:"quantity" validate:"required,gte=1"`
	PricingMode    *string `json:"pricingMode" validate:"omitempty,oneof=venta alquiler concesión"`
	HasContract    bool    `json:"hasContract"`
	ContractMonths *int64  `json:"contractMonths" validate:"omitempty,gte=0"`
	CoverageZone   *string `json:"coverageZone"`
	ServiceType    *string `json:"serviceType"`
	OrderTotal     int64   `json:"orderTotal" validate:"gte=0"`
}

type orderPayload struct {
	Lines      []linePayload `json:"lines" validate:"required,min=1,max=100,dive"`
	OrderTotal int64         `json:"orderTotal" validate:"gte=0"`
}

func (p linePayload) toRequest() (LineRequest, error) {
	productID, err := uuid.Parse(p.ProductID)
	if err != nil {
		return LineRequest{}, common.NewAppError("BAD_REQUEST", "invalid product id", http.StatusBadRequest, err)
	}
	req := LineRequest{
		ProductID:      productID,
		Quantity:       p.Quantity,
		HasContract:    p.HasContract,
		ContractMonths: p.ContractMonths,
		CoverageZone:   p.CoverageZone,
		ServiceType:    p.ServiceType,
		OrderTotal:     rules.Money(p.OrderTotal),
	}
	if p.PricingMode != nil {
		mode := rules.Mode(*p.PricingMode)
		req.PricingMode = &mode
	}
	return req, nil
}

// Line handles POST /api/v1/quotes/line.
func (h *Handler) Line(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.RequireOrg(w, r)
	if !ok {
		return
	}
	var payload linePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "invalid quote request", err.Error())
		return
	}
	req, err := payload.toRequest()
	if err != nil {
		common.WriteError(w, err)
		return
	}
	quote, err := h.Service.QuoteLine(r.Context(), orgID, req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}

// Order handles POST /api/v1/quotes/order.
func (h *Handler) Order(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.RequireOrg(w, r)
	if !ok {
		return
	}
	var payload orderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "invalid order quote request", err.Error())
		return
	}
	req := OrderRequest{OrderTotal: payload.OrderTotal, Lines: make([]OrderLine, 0, len(payload.Lines))}
	for _, line := range payload.Lines {
		lineReq, err := line.toRequest()
		if err != nil {
			common.WriteError(w, err)
			return
		}
		req.Lines = append(req.Lines, OrderLine{
			ProductID:      lineReq.ProductID,
			Quantity:       lineReq.Quantity,
			PricingMode:    lineReq.PricingMode,
			HasContract:    lineReq.HasContract,
			ContractMonths: lineReq.ContractMonths,
			CoverageZone:   lineReq.CoverageZone,
			ServiceType:    lineReq.ServiceType,
		})
	}
	quote, err := h.Service.QuoteOrder(r.Context(), orgID, req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}
