// Package quote prices order lines against an organisation's pricing rules.
//
// Quoting is a two-pass protocol: a line is first evaluated with the order
// total of the other lines, then re-evaluated with that total plus its own
// provisional price, so order-total conditions can see the line they price.
// The second pass is authoritative. Convergence beyond two passes is not
// assumed; two passes is the contract.
package quote

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hydroventas/pricing-api/internal/audit"
	"github.com/hydroventas/pricing-api/internal/catalog"
	"github.com/hydroventas/pricing-api/internal/common"
	"github.com/hydroventas/pricing-api/internal/obs"
	"github.com/hydroventas/pricing-api/internal/rules"
)

// ProductSource yields catalog products for pricing.
type ProductSource interface {
	GetProduct(ctx context.Context, orgID, id uuid.UUID) (rules.Product, error)
}

// RuleSource yields an organisation's active rules in evaluation order.
type RuleSource interface {
	ActiveRules(ctx context.Context, orgID uuid.UUID) ([]rules.Rule, error)
}

// AuditSink receives priced-line audit entries. Recording is best effort.
type AuditSink interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service prices lines and orders.
type Service struct {
	Products ProductSource
	Rules    RuleSource
	Audit    AuditSink
	Logger   zerolog.Logger
}

// LineRequest describes one line to price.
type LineRequest struct {
	ProductID      uuid.UUID   `json:"productId"`
	Quantity       int64       `json:"quantity"`
	PricingMode    *rules.Mode `json:"pricingMode,omitempty"`
	HasContract    bool        `json:"hasContract"`
	ContractMonths *int64      `json:"contractMonths,omitempty"`
	CoverageZone   *string     `json:"coverageZone,omitempty"`
	ServiceType    *string     `json:"serviceType,omitempty"`
	// OrderTotal is the confirmed total of the order's other lines.
	OrderTotal rules.Money `json:"orderTotal"`
}

// LineQuote is the authoritative price for one line.
type LineQuote struct {
	ProductID       uuid.UUID    `json:"productId"`
	Quantity        int64        `json:"quantity"`
	PricingMode     rules.Mode   `json:"pricingMode"`
	UnitPrice       *rules.Money `json:"unitPrice"`
	ConsumptionOnly bool         `json:"consumptionOnly"`
	ExtraCharge     *rules.Money `json:"extraCharge"`
	Total           *rules.Money `json:"total"`
	Benefits        []string     `json:"benefits"`
	Notes           []string     `json:"notes"`
	AppliedRuleIDs  []uuid.UUID  `json:"appliedRuleIds"`
	RuleSnapshot    *rules.Rule  `json:"ruleSnapshot,omitempty"`
}

// OrderRequest prices several lines as one order.
type OrderRequest struct {
	Lines []OrderLine `json:"lines"`
	// OrderTotal seeds the running total, for amounts priced outside
	// this request.
	OrderTotal rules.Money `json:"orderTotal"`
}

// OrderLine is one line of an order quote.
type OrderLine struct {
	ProductID      uuid.UUID   `json:"productId"`
	Quantity       int64       `json:"quantity"`
	PricingMode    *rules.Mode `json:"pricingMode,omitempty"`
	HasContract    bool        `json:"hasContract"`
	ContractMonths *int64      `json:"contractMonths,omitempty"`
	CoverageZone   *string     `json:"coverageZone,omitempty"`
	ServiceType    *string     `json:"serviceType,omitempty"`
}

// OrderQuote is the priced order.
type OrderQuote struct {
	Lines      []LineQuote `json:"lines"`
	OrderTotal rules.Money `json:"orderTotal"`
}

// QuoteLine prices a single line with the two-pass protocol.
func (s *Service) QuoteLine(ctx context.Context, orgID uuid.UUID, req LineRequest) (LineQuote, error) {
	ctx, span := otel.Tracer("quote.Service").Start(ctx, "QuoteService.QuoteLine")
	defer span.End()

	result := "error"
	var mode rules.Mode
	defer func() {
		span.SetAttributes(
			attribute.String("quote.pricing_mode", string(mode)),
			attribute.String("quote.result", result),
		)
		if obs.QuotesTotal != nil {
			obs.QuotesTotal.WithLabelValues(string(mode), result).Inc()
		}
	}()

	quote, err := s.quoteLine(ctx, orgID, req)
	if err != nil {
		return LineQuote{}, err
	}
	mode = quote.PricingMode
	result = "ok"
	return quote, nil
}

// QuoteOrder prices each line in input order, feeding the confirmed totals
// of earlier lines into the running order total of later ones.
func (s *Service) QuoteOrder(ctx context.Context, orgID uuid.UUID, req OrderRequest) (OrderQuote, error) {
	ctx, span := otel.Tracer("quote.Service").Start(ctx, "QuoteService.QuoteOrder")
	defer span.End()
	span.SetAttributes(attribute.Int("quote.lines", len(req.Lines)))

	if len(req.Lines) == 0 {
		return OrderQuote{}, common.NewAppError("VALIDATION", "order must contain at least one line", http.StatusUnprocessableEntity, nil)
	}

	running := req.OrderTotal
	out := OrderQuote{Lines: make([]LineQuote, 0, len(req.Lines))}
	for _, line := range req.Lines {
		quote, err := s.quoteLine(ctx, orgID, LineRequest{
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			PricingMode:    line.PricingMode,
			HasContract:    line.HasContract,
			ContractMonths: line.ContractMonths,
			CoverageZone:   line.CoverageZone,
			ServiceType:    line.ServiceType,
			OrderTotal:     running,
		})
		if err != nil {
			return OrderQuote{}, err
		}
		if quote.Total != nil {
			running += *quote.Total
		}
		if obs.QuotesTotal != nil {
			obs.QuotesTotal.WithLabelValues(string(quote.PricingMode), "ok").Inc()
		}
		out.Lines = append(out.Lines, quote)
	}
	out.OrderTotal = running
	return out, nil
}

func (s *Service) quoteLine(ctx context.Context, orgID uuid.UUID, req LineRequest) (LineQuote, error) {
	if req.Quantity < 1 {
		return LineQuote{}, common.NewAppError("VALIDATION", "quantity must be at least 1", http.StatusUnprocessableEntity, nil)
	}
	product, err := s.Products.GetProduct(ctx, orgID, req.ProductID)
	if err != nil {
		return LineQuote{}, err
	}

	mode := catalog.FallbackPricingMode(product)
	if req.PricingMode != nil {
		mode = *req.PricingMode
		if !mode.Valid() {
			return LineQuote{}, common.NewAppError("VALIDATION", "unknown pricing mode", http.StatusUnprocessableEntity, nil)
		}
	}
	if !catalog.ModeAllowed(product, mode) {
		return LineQuote{}, common.NewAppError("VALIDATION", "pricing mode not allowed for product", http.StatusUnprocessableEntity, nil)
	}

	ruleSet, err := s.Rules.ActiveRules(ctx, orgID)
	if err != nil {
		return LineQuote{}, err
	}

	evalCtx := rules.Context{
		Product:        product,
		Quantity:       req.Quantity,
		PricingMode:    mode,
		HasContract:    req.HasContract,
		ContractMonths: req.ContractMonths,
		CoverageZone:   req.CoverageZone,
		ServiceType:    req.ServiceType,
		OrderTotal:     req.OrderTotal,
	}
	first := rules.Evaluate(ruleSet, evalCtx)

	provisional := rules.Money(0)
	if first.Total != nil {
		provisional = *first.Total
	}
	evalCtx.OrderTotal = req.OrderTotal + provisional
	final := rules.Evaluate(ruleSet, evalCtx)

	if obs.RuleMatchesTotal != nil {
		obs.RuleMatchesTotal.Add(float64(len(final.AppliedRuleIDs)))
	}

	quote := LineQuote{
		ProductID:      product.ID,
		Quantity:       req.Quantity,
		PricingMode:    mode,
		ExtraCharge:    final.ExtraCharge,
		Total:          final.Total,
		Benefits:       final.Benefits,
		Notes:          final.Notes,
		AppliedRuleIDs: final.AppliedRuleIDs,
		RuleSnapshot:   final.FirstRule,
	}
	if final.UnitPrice != nil {
		quote.ConsumptionOnly = final.UnitPrice.ConsumptionOnly
		if !final.UnitPrice.ConsumptionOnly {
			amount := final.UnitPrice.Amount
			quote.UnitPrice = &amount
		}
	}

	s.record(ctx, orgID, quote, evalCtx.OrderTotal)
	return quote, nil
}

func (s *Service) record(ctx context.Context, orgID uuid.UUID, quote LineQuote, orderTotal rules.Money) {
	if s.Audit == nil {
		return
	}
	entry := audit.Entry{
		OrgID:           orgID,
		ProductID:       quote.ProductID,
		Quantity:        quote.Quantity,
		PricingMode:     string(quote.PricingMode),
		UnitPrice:       (*int64)(quote.UnitPrice),
		ConsumptionOnly: quote.ConsumptionOnly,
		ExtraCharge:     (*int64)(quote.ExtraCharge),
		Total:           (*int64)(quote.Total),
		Benefits:        quote.Benefits,
		Notes:           quote.Notes,
		AppliedRuleIDs:  quote.AppliedRuleIDs,
		OrderTotal:      int64(orderTotal),
	}
	if quote.RuleSnapshot != nil {
		if raw, err := json.Marshal(quote.RuleSnapshot); err == nil {
			entry.RuleSnapshot = raw
		}
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.Audit.Record(recordCtx, entry); err != nil {
		s.Logger.Warn().Err(err).Str("product_id", quote.ProductID.String()).Msg("audit record failed")
	}
}
