package rules

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Money is a monetary value in minor units (CLP has no fractional unit).
type Money = int64

// Mode identifies the commercial modality governing a product line.
type Mode string

const (
	// ModeSale sells the units outright.
	ModeSale Mode = "venta"
	// ModeRental charges a recurring fee for the units.
	ModeRental Mode = "alquiler"
	// ModeConcession loans equipment against a minimum volume commitment.
	ModeConcession Mode = "concesión"
)

// Valid reports whether the mode is one of the supported modalities.
func (m Mode) Valid() bool {
	switch m {
	case ModeSale, ModeRental, ModeConcession:
		return true
	}
	return false
}

// ConsumptionOnlySentinel is the stored representation of a unit price that
// means billing is purely consumption based, with no flat per-unit charge.
const ConsumptionOnlySentinel = "solo_agua_consumida"

// UnitPrice is either a flat amount in minor units or the consumption-only
// sentinel. The zero value (neither set) is not produced by the engine; an
// absent price is represented by a nil *UnitPrice.
type UnitPrice struct {
	Amount          Money
	ConsumptionOnly bool
}

// FlatAmount builds a flat per-unit price.
func FlatAmount(v Money) *UnitPrice {
	return &UnitPrice{Amount: v}
}

// ConsumptionOnly builds the consumption-based sentinel price.
func ConsumptionOnly() *UnitPrice {
	return &UnitPrice{ConsumptionOnly: true}
}

// MarshalJSON renders the price as a number or the sentinel string.
func (u UnitPrice) MarshalJSON() ([]byte, error) {
	if u.ConsumptionOnly {
		return json.Marshal(ConsumptionOnlySentinel)
	}
	return json.Marshal(u.Amount)
}

// UnmarshalJSON accepts a number or the sentinel string.
func (u *UnitPrice) UnmarshalJSON(data []byte) error {
	var amount Money
	if err := json.Unmarshal(data, &amount); err == nil {
		*u = UnitPrice{Amount: amount}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s != ConsumptionOnlySentinel {
		return fmt.Errorf("unit price: unknown sentinel %q", s)
	}
	*u = UnitPrice{ConsumptionOnly: true}
	return nil
}

// Product is the catalog record an evaluation prices against. It is treated
// as immutable for the duration of one evaluation call.
type Product struct {
	ID                 uuid.UUID `json:"id"`
	OrgID              uuid.UUID `json:"orgId"`
	Name               string    `json:"name"`
	Category           string    `json:"category"`
	PricingMode        Mode      `json:"pricingMode"`
	BaseUnitPrice      *Money    `json:"baseUnitPrice"`
	AllowSale          bool      `json:"allowSale"`
	AllowRental        bool      `json:"allowRental"`
	AllowConcession    bool      `json:"allowConcession"`
	MinConcessionUnits *int64    `json:"minConcessionUnits,omitempty"`
	RentalMonthlyFee   *Money    `json:"rentalMonthlyFee,omitempty"`
	Notes              *string   `json:"notes,omitempty"`
	IsActive           bool      `json:"isActive"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Range is an inclusive numeric interval. A nil bound is unconstrained; an
// impossible interval (min > max) never matches anything.
type Range struct {
	Min *int64 `json:"min,omitempty"`
	Max *int64 `json:"max,omitempty"`
}

// Contains reports whether v falls within the interval.
func (r *Range) Contains(v int64) bool {
	if r == nil {
		return true
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// Conditions are the optional constraints of a rule. An absent field matches
// anything.
type Conditions struct {
	ProductID       *string `json:"product,omitempty"`
	ProductCategory *string `json:"productCategory,omitempty"`
	Quantity        *Range  `json:"quantity,omitempty"`
	Contract        *bool   `json:"contract,omitempty"`
	ContractMonths  *int64  `json:"contractMonths,omitempty"`
	Zone            *string `json:"zone,omitempty"`
	ServiceType     *string `json:"serviceType,omitempty"`
	OrderTotal      *Range  `json:"orderTotal,omitempty"`
}

// UnmarshalJSON decodes conditions field by field so that a malformed member
// degrades to "does not constrain" instead of failing the whole rule.
func (c *Conditions) UnmarshalJSON(data []byte) error {
	*c = Conditions{}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	decodeField(raw, "product", &c.ProductID)
	decodeField(raw, "productCategory", &c.ProductCategory)
	decodeField(raw, "quantity", &c.Quantity)
	decodeField(raw, "contract", &c.Contract)
	decodeField(raw, "contractMonths", &c.ContractMonths)
	decodeField(raw, "zone", &c.Zone)
	decodeField(raw, "serviceType", &c.ServiceType)
	decodeField(raw, "orderTotal", &c.OrderTotal)
	return nil
}

// Effects are the optional outcomes of a matched rule, each independently
// applicable.
type Effects struct {
	UnitPrice   *UnitPrice `json:"unitPrice,omitempty"`
	ExtraCharge *Money     `json:"extraCharge,omitempty"`
	Benefits    []string   `json:"benefits,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

// UnmarshalJSON decodes effects with the same tolerance as Conditions: a
// malformed member is dropped rather than surfaced as an error.
func (e *Effects) UnmarshalJSON(data []byte) error {
	*e = Effects{}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	decodeField(raw, "unitPrice", &e.UnitPrice)
	decodeField(raw, "extraCharge", &e.ExtraCharge)
	decodeField(raw, "benefits", &e.Benefits)
	decodeField(raw, "notes", &e.Notes)
	return nil
}

func decodeField[T any](raw map[string]json.RawMessage, key string, dst *T) {
	msg, ok := raw[key]
	if !ok || string(msg) == "null" {
		return
	}
	var v T
	if err := json.Unmarshal(msg, &v); err != nil {
		return
	}
	*dst = v
}

// Rule is one commercial pricing rule. Lower priority evaluates first; a rule
// authored without a priority uses DefaultPriority.
type Rule struct {
	ID          uuid.UUID  `json:"id"`
	OrgID       uuid.UUID  `json:"orgId"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	Priority    *int32     `json:"priority,omitempty"`
	Conditions  Conditions `json:"conditions"`
	Effects     Effects    `json:"effects"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Context carries the inputs of one evaluation.
type Context struct {
	Product        Product
	Quantity       int64
	PricingMode    Mode
	HasContract    bool
	ContractMonths *int64
	CoverageZone   *string
	ServiceType    *string
	OrderTotal     Money
}

// Result is the priced outcome of one evaluation plus its provenance.
type Result struct {
	// UnitPrice is nil when no rule set a price and the product has no base
	// price; callers must supply their own fallback in that case.
	UnitPrice      *UnitPrice  `json:"unitPrice"`
	ExtraCharge    *Money      `json:"extraCharge"`
	Benefits       []string    `json:"benefits"`
	Notes          []string    `json:"notes"`
	AppliedRuleIDs []uuid.UUID `json:"appliedRuleIds"`
	// FirstRule snapshots the first rule that matched, for display and audit.
	FirstRule *Rule  `json:"ruleSnapshot,omitempty"`
	Total     *Money `json:"total"`
}
