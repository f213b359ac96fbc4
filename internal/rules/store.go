package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hydroventas/pricing-api/internal/common"
)

// ErrNotFound is returned when a rule does not exist for the organisation.
var ErrNotFound = errors.New("pricing rule not found")

// Store persists pricing rules in Postgres. Conditions and effects are stored
// as jsonb blobs and decoded through the tolerant typed decoders.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a rule store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const ruleColumns = `id, org_id, name, description, priority, conditions, effects, is_active, created_at, updated_at`

// RuleInput captures the mutable fields of a rule.
type RuleInput struct {
	Name        string
	Description *string
	Priority    *int32
	Conditions  Conditions
	Effects     Effects
	IsActive    bool
}

// ListActive returns the organisation's active rules ordered by priority with
// insertion order breaking ties, the order Evaluate expects its input in.
func (s *Store) ListActive(ctx context.Context, orgID uuid.UUID) ([]Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM pricing_rules
		WHERE org_id = $1 AND is_active
		ORDER BY COALESCE(priority, $2), created_at, id`, orgID, DefaultPriority)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

// List returns a page of the organisation's rules together with the total count.
func (s *Store) List(ctx context.Context, orgID uuid.UUID, page, perPage int) ([]Rule, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM pricing_rules WHERE org_id = $1`, orgID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rules: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM pricing_rules
		WHERE org_id = $1
		ORDER BY COALESCE(priority, $2), created_at, id
		LIMIT $3 OFFSET $4`, orgID, DefaultPriority, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()
	list, err := collectRules(rows)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// Get fetches a single rule scoped to the organisation.
func (s *Store) Get(ctx context.Context, orgID, id uuid.UUID) (Rule, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM pricing_rules
		WHERE org_id = $1 AND id = $2`, orgID, id)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrNotFound
		}
		return Rule{}, fmt.Errorf("get rule: %w", err)
	}
	return rule, nil
}

// Create inserts a new rule and returns the stored row.
func (s *Store) Create(ctx context.Context, orgID uuid.UUID, input RuleInput) (Rule, error) {
	conditions, effects, err := encodeBlobs(input)
	if err != nil {
		return Rule{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO pricing_rules (org_id, name, description, priority, conditions, effects, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+ruleColumns,
		orgID, input.Name, input.Description, input.Priority, conditions, effects, input.IsActive)
	rule, err := scanRule(row)
	if err != nil {
		return Rule{}, fmt.Errorf("create rule: %w", err)
	}
	return rule, nil
}

// Update replaces the mutable fields of an existing rule.
func (s *Store) Update(ctx context.Context, orgID, id uuid.UUID, input RuleInput) (Rule, error) {
	conditions, effects, err := encodeBlobs(input)
	if err != nil {
		return Rule{}, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE pricing_rules
		SET name = $3, description = $4, priority = $5, conditions = $6, effects = $7, is_active = $8, updated_at = now()
		WHERE org_id = $1 AND id = $2
		RETURNING `+ruleColumns,
		orgID, id, input.Name, input.Description, input.Priority, conditions, effects, input.IsActive)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrNotFound
		}
		return Rule{}, fmt.Errorf("update rule: %w", err)
	}
	return rule, nil
}

// SetActive toggles a rule without touching its definition.
func (s *Store) SetActive(ctx context.Context, orgID, id uuid.UUID, active bool) (Rule, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE pricing_rules
		SET is_active = $3, updated_at = now()
		WHERE org_id = $1 AND id = $2
		RETURNING `+ruleColumns, orgID, id, active)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrNotFound
		}
		return Rule{}, fmt.Errorf("set rule active: %w", err)
	}
	return rule, nil
}

// Delete removes a rule.
func (s *Store) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pricing_rules WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeBlobs(input RuleInput) ([]byte, []byte, error) {
	conditions, err := json.Marshal(input.Conditions)
	if err != nil {
		return nil, nil, &common.AppError{Code: "BAD_REQUEST", Message: "invalid conditions", HTTPStatus: http.StatusBadRequest, Err: err}
	}
	effects, err := json.Marshal(input.Effects)
	if err != nil {
		return nil, nil, &common.AppError{Code: "BAD_REQUEST", Message: "invalid effects", HTTPStatus: http.StatusBadRequest, Err: err}
	}
	return conditions, effects, nil
}

func collectRules(rows pgx.Rows) ([]Rule, error) {
	out := make([]Rule, 0, 16)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}

func scanRule(row pgx.Row) (Rule, error) {
	var (
		rule       Rule
		conditions []byte
		effects    []byte
	)
	if err := row.Scan(
		&rule.ID,
		&rule.OrgID,
		&rule.Name,
		&rule.Description,
		&rule.Priority,
		&conditions,
		&effects,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return Rule{}, err
	}
	// Tolerant decoders: malformed blobs degrade instead of erroring.
	_ = json.Unmarshal(conditions, &rule.Conditions)
	_ = json.Unmarshal(effects, &rule.Effects)
	return rule, nil
}
