package rules

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hydroventas/pricing-api/internal/common"
)

type memStore struct {
	rules map[uuid.UUID]Rule
}

func newMemStore() *memStore {
	return &memStore{rules: map[uuid.UUID]Rule{}}
}

func (m *memStore) ListActive(_ context.Context, orgID uuid.UUID) ([]Rule, error) {
	var out []Rule
	for _, rule := range m.rules {
		if rule.OrgID == orgID && rule.IsActive {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (m *memStore) List(_ context.Context, orgID uuid.UUID, _, _ int) ([]Rule, int64, error) {
	var out []Rule
	for _, rule := range m.rules {
		if rule.OrgID == orgID {
			out = append(out, rule)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memStore) Get(_ context.Context, orgID, id uuid.UUID) (Rule, error) {
	rule, ok := m.rules[id]
	if !ok || rule.OrgID != orgID {
		return Rule{}, ErrNotFound
	}
	return rule, nil
}

func (m *memStore) Create(_ context.Context, orgID uuid.UUID, input RuleInput) (Rule, error) {
	rule := Rule{
		ID:          uuid.New(),
		OrgID:       orgID,
		Name:        input.Name,
		Description: input.Description,
		Priority:    input.Priority,
		Conditions:  input.Conditions,
		Effects:     input.Effects,
		IsActive:    input.IsActive,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	m.rules[rule.ID] = rule
	return rule, nil
}

func (m *memStore) Update(ctx context.Context, orgID, id uuid.UUID, input RuleInput) (Rule, error) {
	rule, err := m.Get(ctx, orgID, id)
	if err != nil {
		return Rule{}, err
	}
	rule.Name = input.Name
	rule.Description = input.Description
	rule.Priority = input.Priority
	rule.Conditions = input.Conditions
	rule.Effects = input.Effects
	rule.IsActive = input.IsActive
	rule.UpdatedAt = time.Now()
	m.rules[id] = rule
	return rule, nil
}

func (m *memStore) SetActive(ctx context.Context, orgID, id uuid.UUID, active bool) (Rule, error) {
	rule, err := m.Get(ctx, orgID, id)
	if err != nil {
		return Rule{}, err
	}
	rule.IsActive = active
	m.rules[id] = rule
	return rule, nil
}

func (m *memStore) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	if _, err := m.Get(ctx, orgID, id); err != nil {
		return err
	}
	delete(m.rules, id)
	return nil
}

type staticProducts struct {
	product Product
}

func (s staticProducts) GetProduct(context.Context, uuid.UUID, uuid.UUID) (Product, error) {
	return s.product, nil
}

func newRuleHandler(store RuleStore, product Product) *Handler {
	return &Handler{
		Store:    store,
		Products: staticProducts{product: product},
		Validate: validator.New(),
	}
}

func doRequest(h http.HandlerFunc, method, target, body string, orgID uuid.UUID, params map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(common.OrgHeader, orgID.String())
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestRuleCreateAppliesDefaults(t *testing.T) {
	store := newMemStore()
	handler := newRuleHandler(store, Product{})
	orgID := uuid.New()

	body := `{
		"name": "descuento volumen",
		"conditions": {"quantity": {"min": 10}},
		"effects": {"unitPrice": 4500}
	}`
	rec := doRequest(handler.Create, http.MethodPost, "/api/v1/admin/rules", body, orgID, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data Rule `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Priority)
	require.Equal(t, DefaultPriority, *resp.Data.Priority)
	require.True(t, resp.Data.IsActive)
	require.NotNil(t, resp.Data.Conditions.Quantity)
	require.NotNil(t, resp.Data.Effects.UnitPrice)
	require.Equal(t, Money(4500), resp.Data.Effects.UnitPrice.Amount)
}

func TestRuleCreateToleratesMalformedBlobMembers(t *testing.T) {
	store := newMemStore()
	handler := newRuleHandler(store, Product{})
	orgID := uuid.New()

	// A garbage quantity member degrades to unconstrained instead of
	// rejecting the rule.
	body := `{
		"name": "promo",
		"conditions": {"quantity": "lots", "contract": true},
		"effects": {"benefits": ["botellones gratis"]}
	}`
	rec := doRequest(handler.Create, http.MethodPost, "/api/v1/admin/rules", body, orgID, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data Rule `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Data.Conditions.Quantity)
	require.NotNil(t, resp.Data.Conditions.Contract)
	require.Equal(t, []string{"botellones gratis"}, resp.Data.Effects.Benefits)
}

func TestRuleCreateRejectsShortName(t *testing.T) {
	handler := newRuleHandler(newMemStore(), Product{})
	rec := doRequest(handler.Create, http.MethodPost, "/api/v1/admin/rules", `{"name":"x"}`, uuid.New(), nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRuleSetActiveAndGet(t *testing.T) {
	store := newMemStore()
	handler := newRuleHandler(store, Product{})
	orgID := uuid.New()

	rule, err := store.Create(context.Background(), orgID, RuleInput{Name: "promo", IsActive: true})
	require.NoError(t, err)

	rec := doRequest(handler.SetActive, http.MethodPatch, "/api/v1/admin/rules/"+rule.ID.String()+"/active",
		`{"isActive":false}`, orgID, map[string]string{"ruleID": rule.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := store.Get(context.Background(), orgID, rule.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
}

func TestRuleGetUnknownIs404(t *testing.T) {
	handler := newRuleHandler(newMemStore(), Product{})
	id := uuid.New()
	rec := doRequest(handler.Get, http.MethodGet, "/api/v1/admin/rules/"+id.String(), "", uuid.New(),
		map[string]string{"ruleID": id.String()})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRuleDeleteIsScopedToOrg(t *testing.T) {
	store := newMemStore()
	handler := newRuleHandler(store, Product{})
	owner := uuid.New()
	intruder := uuid.New()

	rule, err := store.Create(context.Background(), owner, RuleInput{Name: "promo", IsActive: true})
	require.NoError(t, err)

	rec := doRequest(handler.Delete, http.MethodDelete, "/api/v1/admin/rules/"+rule.ID.String(), "", intruder,
		map[string]string{"ruleID": rule.ID.String()})
	require.Equal(t, http.StatusNotFound, rec.Code)

	_, err = store.Get(context.Background(), owner, rule.ID)
	require.NoError(t, err)
}

func TestRulePreviewEvaluatesActiveRules(t *testing.T) {
	store := newMemStore()
	base := Money(5000)
	product := Product{ID: uuid.New(), BaseUnitPrice: &base, PricingMode: ModeSale, AllowSale: true, IsActive: true}
	handler := newRuleHandler(store, product)
	orgID := uuid.New()

	min := int64(10)
	priority := int32(10)
	_, err := store.Create(context.Background(), orgID, RuleInput{
		Name:       "descuento volumen",
		Priority:   &priority,
		Conditions: Conditions{Quantity: &Range{Min: &min}},
		Effects:    Effects{UnitPrice: FlatAmount(4500)},
		IsActive:   true,
	})
	require.NoError(t, err)

	body := `{"productId":"` + product.ID.String() + `","quantity":12,"pricingMode":"venta"}`
	rec := doRequest(handler.Preview, http.MethodPost, "/api/v1/admin/rules/preview", body, orgID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Total)
	require.Equal(t, Money(54000), *resp.Data.Total)
	require.Len(t, resp.Data.AppliedRuleIDs, 1)
}
