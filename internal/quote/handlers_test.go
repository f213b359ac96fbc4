package quote

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hydroventas/pricing-api/internal/common"
	"github.com/hydroventas/pricing-api/internal/rules"
)

func newHandler(products fakeProducts, ruleSource fakeRules) *Handler {
	return &Handler{
		Service:  newService(products, ruleSource, nil),
		Validate: validator.New(),
	}
}

func TestLineHandler(t *testing.T) {
	product := dispenserProduct(5000)
	handler := newHandler(
		fakeProducts{products: map[uuid.UUID]rules.Product{product.ID: product}},
		fakeRules{},
	)
	orgID := uuid.New()

	t.Run("prices a line", func(t *testing.T) {
		body := `{"productId":"` + product.ID.String() + `","quantity":3}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes/line", strings.NewReader(body))
		req.Header.Set(common.OrgHeader, orgID.String())
		rec := httptest.NewRecorder()

		handler.Line(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data LineQuote `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Data.Total)
		require.Equal(t, rules.Money(15000), *resp.Data.Total)
	})

	t.Run("requires org header", func(t *testing.T) {
		body := `{"productId":"` + product.ID.String() + `","quantity":3}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes/line", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.Line(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes/line", strings.NewReader("{"))
		req.Header.Set(common.OrgHeader, orgID.String())
		rec := httptest.NewRecorder()

		handler.Line(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects zero quantity", func(t *testing.T) {
		body := `{"productId":"` + product.ID.String() + `","quantity":0}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes/line", strings.NewReader(body))
		req.Header.Set(common.OrgHeader, orgID.String())
		rec := httptest.NewRecorder()

		handler.Line(rec, req)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("rejects unknown pricing mode", func(t *testing.T) {
		body := `{"productId":"` + product.ID.String() + `","quantity":1,"pricingMode":"leasing"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes/line", strings.NewReader(body))
		req.Header.Set(common.OrgHeader, orgID.String())
		rec := httptest.NewRecorder()

		handler.Line(rec, req)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestOrderHandler(t *testing.T) {
	product := dispenserProduct(5000)
	handler := newHandler(
		fakeProducts{products: map[uuid.UUID]rules.Product{product.ID: product}},
		fakeRules{},
	)
	orgID := uuid.New()

	t.Run("prices an order", func(t *testing.T) {
		body := `{"lines":[{"productId":"` + product.ID.String() + `","quantity":2},{"productId":"` + product.ID.String() + `","quantity":1}]}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes/order", strings.NewReader(body))
		req.Header.Set(common.OrgHeader, orgID.String())
		rec := httptest.NewRecorder()

		handler.Order(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data OrderQuote `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data.Lines, 2)
		require.Equal(t, rules.Money(15000), resp.Data.OrderTotal)
	})

	t.Run("rejects empty line list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes/order", strings.NewReader(`{"lines":[]}`))
		req.Header.Set(common.OrgHeader, orgID.String())
		rec := httptest.NewRecorder()

		handler.Order(rec, req)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}
