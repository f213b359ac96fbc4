package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists audit records in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs an audit store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Insert writes one audit record.
func (s *Store) Insert(ctx context.Context, entry Entry) error {
	ruleIDs := make([]string, 0, len(entry.AppliedRuleIDs))
	for _, id := range entry.AppliedRuleIDs {
		ruleIDs = append(ruleIDs, id.String())
	}
	var snapshot []byte
	if len(entry.RuleSnapshot) > 0 {
		snapshot = entry.RuleSnapshot
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quote_audits (org_id, product_id, quantity, pricing_mode,
			unit_price, consumption_only, extra_charge, total, benefits, notes,
			applied_rule_ids, rule_snapshot, order_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.OrgID, entry.ProductID, entry.Quantity, entry.PricingMode,
		entry.UnitPrice, entry.ConsumptionOnly, entry.ExtraCharge, entry.Total,
		entry.Benefits, entry.Notes, ruleIDs, snapshot, entry.OrderTotal)
	if err != nil {
		return fmt.Errorf("insert quote audit: %w", err)
	}
	return nil
}

// List returns the newest audit records for an organisation.
func (s *Store) List(ctx context.Context, orgID uuid.UUID, page, perPage int) ([]Record, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM quote_audits WHERE org_id = $1`, orgID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count quote audits: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, org_id, product_id, quantity, pricing_mode, unit_price,
			consumption_only, extra_charge, total, benefits, notes,
			applied_rule_ids, rule_snapshot, order_total, created_at
		FROM quote_audits
		WHERE org_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, orgID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list quote audits: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, perPage)
	for rows.Next() {
		var (
			rec     Record
			ruleIDs []string
		)
		if err := rows.Scan(
			&rec.ID, &rec.OrgID, &rec.ProductID, &rec.Quantity, &rec.PricingMode,
			&rec.UnitPrice, &rec.ConsumptionOnly, &rec.ExtraCharge, &rec.Total,
			&rec.Benefits, &rec.Notes, &ruleIDs, &rec.RuleSnapshot, &rec.OrderTotal,
			&rec.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan quote audit: %w", err)
		}
		rec.AppliedRuleIDs = make([]uuid.UUID, 0, len(ruleIDs))
		for _, raw := range ruleIDs {
			if id, err := uuid.Parse(raw); err == nil {
				rec.AppliedRuleIDs = append(rec.AppliedRuleIDs, id)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate quote audits: %w", err)
	}
	return out, total, nil
}
