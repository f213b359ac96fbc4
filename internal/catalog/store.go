package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hydroventas/pricing-api/internal/common"
	"github.com/hydroventas/pricing-api/internal/rules"
)

// Store persists catalog products in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a product store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const productColumns = `id, org_id, name, category, pricing_mode, base_unit_price,
	allow_sale, allow_rental, allow_concession, min_concession_units,
	rental_monthly_fee, notes, is_active, created_at, updated_at`

// ProductInput captures the mutable fields of a product.
type ProductInput struct {
	Name               string
	Category           string
	PricingMode        rules.Mode
	BaseUnitPrice      *rules.Money
	AllowSale          bool
	AllowRental        bool
	AllowConcession    bool
	MinConcessionUnits *int64
	RentalMonthlyFee   *rules.Money
	Notes              *string
	IsActive           bool
}

// ListParams filters product listings.
type ListParams struct {
	Category   string
	ActiveOnly bool
	Page       int
	PerPage    int
}

// Get fetches a product scoped to the organisation.
func (s *Store) Get(ctx context.Context, orgID, id uuid.UUID) (rules.Product, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE org_id = $1 AND id = $2`, orgID, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rules.Product{}, &common.AppError{Code: "NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound, Err: err}
		}
		return rules.Product{}, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

// List returns a filtered page of products and the total count.
func (s *Store) List(ctx context.Context, orgID uuid.UUID, params ListParams) ([]rules.Product, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PerPage < 1 {
		params.PerPage = 20
	}
	var total int64
	if err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM products
		WHERE org_id = $1
		  AND ($2 = '' OR category = $2)
		  AND (NOT $3 OR is_active)`, orgID, params.Category, params.ActiveOnly).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE org_id = $1
		  AND ($2 = '' OR category = $2)
		  AND (NOT $3 OR is_active)
		ORDER BY name, id
		LIMIT $4 OFFSET $5`,
		orgID, params.Category, params.ActiveOnly, params.PerPage, (params.Page-1)*params.PerPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	out := make([]rules.Product, 0, params.PerPage)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, product)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate products: %w", err)
	}
	return out, total, nil
}

// Create inserts a product and returns the stored row.
func (s *Store) Create(ctx context.Context, orgID uuid.UUID, input ProductInput) (rules.Product, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO products (org_id, name, category, pricing_mode, base_unit_price,
			allow_sale, allow_rental, allow_concession, min_concession_units,
			rental_monthly_fee, notes, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+productColumns,
		orgID, input.Name, input.Category, string(input.PricingMode), input.BaseUnitPrice,
		input.AllowSale, input.AllowRental, input.AllowConcession, input.MinConcessionUnits,
		input.RentalMonthlyFee, input.Notes, input.IsActive)
	product, err := scanProduct(row)
	if err != nil {
		return rules.Product{}, fmt.Errorf("create product: %w", err)
	}
	return product, nil
}

// Update replaces the mutable fields of a product.
func (s *Store) Update(ctx context.Context, orgID, id uuid.UUID, input ProductInput) (rules.Product, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE products
		SET name = $3, category = $4, pricing_mode = $5, base_unit_price = $6,
			allow_sale = $7, allow_rental = $8, allow_concession = $9,
			min_concession_units = $10, rental_monthly_fee = $11, notes = $12,
			is_active = $13, updated_at = now()
		WHERE org_id = $1 AND id = $2
		RETURNING `+productColumns,
		orgID, id, input.Name, input.Category, string(input.PricingMode), input.BaseUnitPrice,
		input.AllowSale, input.AllowRental, input.AllowConcession, input.MinConcessionUnits,
		input.RentalMonthlyFee, input.Notes, input.IsActive)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rules.Product{}, &common.AppError{Code: "NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound, Err: err}
		}
		return rules.Product{}, fmt.Errorf("update product: %w", err)
	}
	return product, nil
}

// Delete removes a product.
func (s *Store) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &common.AppError{Code: "NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound}
	}
	return nil
}

func scanProduct(row pgx.Row) (rules.Product, error) {
	var (
		product rules.Product
		mode    string
	)
	if err := row.Scan(
		&product.ID,
		&product.OrgID,
		&product.Name,
		&product.Category,
		&mode,
		&product.BaseUnitPrice,
		&product.AllowSale,
		&product.AllowRental,
		&product.AllowConcession,
		&product.MinConcessionUnits,
		&product.RentalMonthlyFee,
		&product.Notes,
		&product.IsActive,
		&product.CreatedAt,
		&product.UpdatedAt,
	); err != nil {
		return rules.Product{}, err
	}
	product.PricingMode = rules.Mode(mode)
	return product, nil
}
