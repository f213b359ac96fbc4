package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/hydroventas/pricing-api/internal/common"
	"github.com/hydroventas/pricing-api/internal/rules"
)

// Service orchestrates product queries and caching. It is the product source
// the quote path and the rule preview consume.
type Service struct {
	store        *Store
	cache        *Cache
	defaultPage  int
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store        *Store
	Cache        *Cache
	DefaultPage  int
	DefaultLimit int
	MaxLimit     int
}

// ProductListResult contains list data and pagination metadata.
type ProductListResult struct {
	Items []rules.Product
	Total int64
	Page  int
	Limit int
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	defaultPage := cfg.DefaultPage
	if defaultPage < 1 {
		defaultPage = 1
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		store:        cfg.Store,
		cache:        cfg.Cache,
		defaultPage:  defaultPage,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// ParseListParams normalises raw query values into typed filters.
func (s *Service) ParseListParams(values url.Values) ListParams {
	params := ListParams{
		Page:    s.defaultPage,
		PerPage: s.defaultLimit,
	}
	params.Category = strings.TrimSpace(values.Get("category"))
	params.ActiveOnly = strings.EqualFold(strings.TrimSpace(values.Get("active")), "true")
	if page := common.AtoiDefault(values.Get("page"), 0); page > 0 {
		params.Page = page
	}
	if limit := common.AtoiDefault(values.Get("limit"), 0); limit > 0 {
		params.PerPage = limit
	}
	if params.PerPage > s.maxLimit {
		params.PerPage = s.maxLimit
	}
	return params
}

// GetProduct returns one product, reading through the cache.
func (s *Service) GetProduct(ctx context.Context, orgID, id uuid.UUID) (rules.Product, error) {
	key := detailCacheKey(orgID, id)
	var cached rules.Product
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	product, err := s.store.Get(ctx, orgID, id)
	if err != nil {
		return rules.Product{}, err
	}
	_ = s.cache.SetJSON(ctx, key, product)
	return product, nil
}

// ListProducts returns a filtered page of products.
func (s *Service) ListProducts(ctx context.Context, orgID uuid.UUID, params ListParams) (ProductListResult, error) {
	items, total, err := s.store.List(ctx, orgID, params)
	if err != nil {
		return ProductListResult{}, err
	}
	return ProductListResult{Items: items, Total: total, Page: params.Page, Limit: params.PerPage}, nil
}

// CreateProduct validates modality flags and inserts the product.
func (s *Service) CreateProduct(ctx context.Context, orgID uuid.UUID, input ProductInput) (rules.Product, error) {
	if err := validateInput(input); err != nil {
		return rules.Product{}, err
	}
	return s.store.Create(ctx, orgID, input)
}

// UpdateProduct validates modality flags, updates, and invalidates the cache.
func (s *Service) UpdateProduct(ctx context.Context, orgID, id uuid.UUID, input ProductInput) (rules.Product, error) {
	if err := validateInput(input); err != nil {
		return rules.Product{}, err
	}
	product, err := s.store.Update(ctx, orgID, id, input)
	if err != nil {
		return rules.Product{}, err
	}
	_ = s.cache.Del(ctx, detailCacheKey(orgID, id))
	return product, nil
}

// DeleteProduct removes a product and invalidates the cache.
func (s *Service) DeleteProduct(ctx context.Context, orgID, id uuid.UUID) error {
	if err := s.store.Delete(ctx, orgID, id); err != nil {
		return err
	}
	return s.cache.Del(ctx, detailCacheKey(orgID, id))
}

func validateInput(input ProductInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return &common.AppError{Code: "VALIDATION_ERROR", Message: "name is required", HTTPStatus: http.StatusUnprocessableEntity}
	}
	if !input.PricingMode.Valid() {
		return &common.AppError{Code: "VALIDATION_ERROR", Message: "unsupported pricing mode", HTTPStatus: http.StatusUnprocessableEntity}
	}
	if !input.AllowSale && !input.AllowRental && !input.AllowConcession {
		return &common.AppError{Code: "VALIDATION_ERROR", Message: "at least one modality must be allowed", HTTPStatus: http.StatusUnprocessableEntity}
	}
	return nil
}

// ModeAllowed reports whether the product permits the given modality.
func ModeAllowed(p rules.Product, mode rules.Mode) bool {
	switch mode {
	case rules.ModeSale:
		return p.AllowSale
	case rules.ModeRental:
		return p.AllowRental
	case rules.ModeConcession:
		return p.AllowConcession
	}
	return false
}

// FallbackPricingMode returns the product's default modality when allowed,
// otherwise the first allowed modality in sale, rental, concession order.
func FallbackPricingMode(p rules.Product) rules.Mode {
	if ModeAllowed(p, p.PricingMode) {
		return p.PricingMode
	}
	for _, mode := range []rules.Mode{rules.ModeSale, rules.ModeRental, rules.ModeConcession} {
		if ModeAllowed(p, mode) {
			return mode
		}
	}
	return rules.ModeSale
}

func detailCacheKey(orgID, id uuid.UUID) string {
	return "catalog:product:" + orgID.String() + ":" + id.String()
}
