package quote

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hydroventas/pricing-api/internal/audit"
	"github.com/hydroventas/pricing-api/internal/common"
	"github.com/hydroventas/pricing-api/internal/rules"
)

type fakeProducts struct {
	products map[uuid.UUID]rules.Product
}

func (f fakeProducts) GetProduct(_ context.Context, _ uuid.UUID, id uuid.UUID) (rules.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return rules.Product{}, common.NewAppError("NOT_FOUND", "product not found", 404, nil)
	}
	return p, nil
}

type fakeRules struct {
	ruleSet []rules.Rule
}

func (f fakeRules) ActiveRules(context.Context, uuid.UUID) ([]rules.Rule, error) {
	return f.ruleSet, nil
}

type captureAudit struct {
	entries []audit.Entry
}

func (c *captureAudit) Record(_ context.Context, entry audit.Entry) error {
	c.entries = append(c.entries, entry)
	return nil
}

func i64(v int64) *int64 { return &v }

func money(v rules.Money) *rules.Money { return &v }

func dispenserProduct(base rules.Money) rules.Product {
	return rules.Product{
		ID:            uuid.New(),
		Name:          "Dispensador frío/calor",
		BaseUnitPrice: &base,
		PricingMode:   rules.ModeSale,
		AllowSale:     true,
		AllowRental:   true,
		IsActive:      true,
	}
}

func activeRule(name string, priority int32, cond rules.Conditions, eff rules.Effects) rules.Rule {
	return rules.Rule{
		ID:         uuid.New(),
		OrgID:      uuid.New(),
		Name:       name,
		Priority:   &priority,
		Conditions: cond,
		Effects:    eff,
		IsActive:   true,
	}
}

func newService(products fakeProducts, ruleSource fakeRules, sink *captureAudit) *Service {
	svc := &Service{
		Products: products,
		Rules:    ruleSource,
		Logger:   zerolog.Nop(),
	}
	if sink != nil {
		svc.Audit = sink
	}
	return svc
}

func TestQuoteLineSecondPassSeesOwnProvisionalTotal(t *testing.T) {
	product := dispenserProduct(5000)
	bulkDiscount := activeRule("descuento pedido grande", 10,
		rules.Conditions{OrderTotal: &rules.Range{Min: i64(100000)}},
		rules.Effects{UnitPrice: rules.FlatAmount(4500)},
	)

	svc := newService(
		fakeProducts{products: map[uuid.UUID]rules.Product{product.ID: product}},
		fakeRules{ruleSet: []rules.Rule{bulkDiscount}},
		nil,
	)

	// Other lines total 90000; this line alone trips the 100000 threshold
	// on the second pass.
	quote, err := svc.QuoteLine(context.Background(), uuid.New(), LineRequest{
		ProductID:  product.ID,
		Quantity:   10,
		OrderTotal: 90000,
	})
	require.NoError(t, err)
	require.NotNil(t, quote.UnitPrice)
	require.Equal(t, rules.Money(4500), *quote.UnitPrice)
	require.NotNil(t, quote.Total)
	require.Equal(t, rules.Money(45000), *quote.Total)
	require.Len(t, quote.AppliedRuleIDs, 1)
	require.Equal(t, bulkDiscount.ID, quote.AppliedRuleIDs[0])
}

func TestQuoteLineSecondPassIsAuthoritative(t *testing.T) {
	// A rule that only matches on the first pass must not survive into the
	// reported price: the second pass wins even when it matches less.
	product := dispenserProduct(5000)
	smallOrder := activeRule("recargo pedido chico", 10,
		rules.Conditions{OrderTotal: &rules.Range{Max: i64(10000)}},
		rules.Effects{ExtraCharge: money(2000)},
	)

	svc := newService(
		fakeProducts{products: map[uuid.UUID]rules.Product{product.ID: product}},
		fakeRules{ruleSet: []rules.Rule{smallOrder}},
		nil,
	)

	quote, err := svc.QuoteLine(context.Background(), uuid.New(), LineRequest{
		ProductID:  product.ID,
		Quantity:   3,
		OrderTotal: 0,
	})
	// Pass 1: orderTotal 0 matches, provisional 15000+2000. Pass 2:
	// orderTotal 17000 no longer matches, so the surcharge disappears.
	require.NoError(t, err)
	require.Nil(t, quote.ExtraCharge)
	require.NotNil(t, quote.Total)
	require.Equal(t, rules.Money(15000), *quote.Total)
}

func TestQuoteLineFallsBackToBasePrice(t *testing.T) {
	product := dispenserProduct(7500)
	svc := newService(
		fakeProducts{products: map[uuid.UUID]rules.Product{product.ID: product}},
		fakeRules{},
		nil,
	)

	quote, err := svc.QuoteLine(context.Background(), uuid.New(), LineRequest{
		ProductID: product.ID,
		Quantity:  2,
	})
	require.NoError(t, err)
	require.NotNil(t, quote.UnitPrice)
	require.Equal(t, rules.Money(7500), *quote.UnitPrice)
	require.Equal(t, rules.Money(15000), *quote.Total)
	require.Empty(t, quote.AppliedRuleIDs)
}

func TestQuoteLineConsumptionOnly(t *testing.T) {
	product := dispenserProduct(5000)
	loan := activeRule("comodato", 5,
		rules.Conditions{Quantity: &rules.Range{Min: i64(30)}},
		rules.Effects{UnitPrice: rules.ConsumptionOnly()},
	)
	svc := newService(
		fakeProducts{products: map[uuid.UUID]rules.Product{product.ID: product}},
		fakeRules{ruleSet: []rules.Rule{loan}},
		nil,
	)

	quote, err := svc.QuoteLine(context.Background(), uuid.New(), LineRequest{
		ProductID: product.ID,
		Quantity:  40,
	})
	require.NoError(t, err)
	require.True(t, quote.ConsumptionOnly)
	require.Nil(t, quote.UnitPrice)
	require.NotNil(t, quote.Total)
	require.Equal(t, rules.Money(0), *quote.Total)
}

func TestQuoteLineValidation(t *testing.T) {
	product := dispenserProduct(5000)
	svc := newService(
		fakeProducts{products: map[uuid.UUID]rules.Product{product.ID: product}},
		fakeRules{},
		nil,
	)

	_, err := svc.QuoteLine(context.Background(), uuid.New(), LineRequest{
		ProductID: product.ID,
		Quantity:  0,
	})
	require.Error(t, err)
	require.True(t, common.IsAppError(err))

	concession := rules.ModeConcession
	_, err = svc.QuoteLine(context.Background(), uuid.New(), LineRequest{
		ProductID:   product.ID,
		Quantity:    1,
		PricingMode: &concession,
	})
	require.Error(t, err, "concession is not allowed for this product")

	_, err = svc.QuoteLine(context.Background(), uuid.New(), LineRequest{
		ProductID: uuid.New(),
		Quantity:  1,
	})
	require.Error(t, err, "unknown product")
}

func TestQuoteOrderFeedsRunningTotalForward(t *testing.T) {
	product := dispenserProduct(5000)
	bulkDiscount := activeRule("descuento pedido grande", 10,
		rules.Conditions{OrderTotal: &rules.Range{Min: i64(100000)}},
		rules.Effects{UnitPrice: rules.FlatAmount(4000)},
	)
	svc := newService(
		fakeProducts{products: map[uuid.UUID]rules.Product{product.ID: product}},
		fakeRules{ruleSet: []rules.Rule{bulkDiscount}},
		nil,
	)

	// Line 1: 12×5000=60000, below threshold even after its own pass 2.
	// Line 2 starts from running total 60000; its pass 2 sees
	// 60000+60000=120000 and gets the discount: 12×4000=48000.
	quote, err := svc.QuoteOrder(context.Background(), uuid.New(), OrderRequest{
		Lines: []OrderLine{
			{ProductID: product.ID, Quantity: 12},
			{ProductID: product.ID, Quantity: 12},
		},
	})
	require.NoError(t, err)
	require.Len(t, quote.Lines, 2)
	require.Equal(t, rules.Money(60000), *quote.Lines[0].Total)
	require.Equal(t, rules.Money(48000), *quote.Lines[1].Total)
	require.Equal(t, rules.Money(108000), quote.OrderTotal)
}

func TestQuoteOrderRejectsEmptyOrder(t *testing.T) {
	svc := newService(fakeProducts{}, fakeRules{}, nil)
	_, err := svc.QuoteOrder(context.Background(), uuid.New(), OrderRequest{})
	require.Error(t, err)
	require.True(t, common.IsAppError(err))
}

func TestQuoteLineRecordsAuditEntry(t *testing.T) {
	product := dispenserProduct(5000)
	promo := activeRule("promo invierno", 20,
		rules.Conditions{},
		rules.Effects{Benefits: []string{"instalación gratis"}},
	)
	sink := &captureAudit{}
	svc := newService(
		fakeProducts{products: map[uuid.UUID]rules.Product{product.ID: product}},
		fakeRules{ruleSet: []rules.Rule{promo}},
		sink,
	)
	orgID := uuid.New()

	quote, err := svc.QuoteLine(context.Background(), orgID, LineRequest{
		ProductID: product.ID,
		Quantity:  4,
	})
	require.NoError(t, err)
	require.Len(t, sink.entries, 1)

	entry := sink.entries[0]
	require.Equal(t, orgID, entry.OrgID)
	require.Equal(t, product.ID, entry.ProductID)
	require.Equal(t, int64(4), entry.Quantity)
	require.Equal(t, string(rules.ModeSale), entry.PricingMode)
	require.NotNil(t, entry.Total)
	require.Equal(t, int64(20000), *entry.Total)
	require.Equal(t, []string{"instalación gratis"}, entry.Benefits)
	require.NotEmpty(t, entry.RuleSnapshot)
	require.Equal(t, quote.AppliedRuleIDs, entry.AppliedRuleIDs)
}
