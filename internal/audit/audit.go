// Package audit persists the provenance of priced line items: which rules
// fired, in what order, and the resulting price. Quotes enqueue entries
// asynchronously so the pricing path never blocks on the audit store.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskTypeQuotePriced is the asynq task type carrying one audit entry.
const TaskTypeQuotePriced = "audit:quote_priced"

// Queue is the asynq queue audit tasks are routed to.
const Queue = "audit"

// Entry is one priced-line provenance record.
type Entry struct {
	OrgID           uuid.UUID       `json:"orgId"`
	ProductID       uuid.UUID       `json:"productId"`
	Quantity        int64           `json:"quantity"`
	PricingMode     string          `json:"pricingMode"`
	UnitPrice       *int64          `json:"unitPrice"`
	ConsumptionOnly bool            `json:"consumptionOnly"`
	ExtraCharge     *int64          `json:"extraCharge"`
	Total           *int64          `json:"total"`
	Benefits        []string        `json:"benefits"`
	Notes           []string        `json:"notes"`
	AppliedRuleIDs  []uuid.UUID     `json:"appliedRuleIds"`
	RuleSnapshot    json.RawMessage `json:"ruleSnapshot,omitempty"`
	OrderTotal      int64           `json:"orderTotal"`
}

// Record is a stored entry.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Entry
	CreatedAt time.Time `json:"createdAt"`
}
