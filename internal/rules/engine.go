package rules

import (
	"sort"

	"github.com/google/uuid"
)

// DefaultPriority is the priority assumed for rules authored without one,
// matching the authoring default of the rule admin endpoints.
const DefaultPriority int32 = 100

// Evaluate applies the given rules to the context and returns the priced
// outcome plus provenance. It is pure and deterministic: identical inputs
// always yield identical output, and neither rules nor ctx.Product are
// mutated. Callers re-run it freely as form inputs change and invoke it twice
// per line to resolve order-total conditions (see quote.Service).
func Evaluate(ruleSet []Rule, ctx Context) Result {
	res := Result{
		Benefits:       []string{},
		Notes:          []string{},
		AppliedRuleIDs: []uuid.UUID{},
	}
	if len(ruleSet) == 0 {
		return res
	}

	sorted := make([]Rule, len(ruleSet))
	copy(sorted, ruleSet)
	sort.SliceStable(sorted, func(i, j int) bool {
		return priorityOf(sorted[i]) < priorityOf(sorted[j])
	})

	seen := make(map[string]struct{})
	for i := range sorted {
		rule := &sorted[i]
		if !rule.IsActive {
			continue
		}
		if !Matches(rule, ctx) {
			continue
		}
		res.AppliedRuleIDs = append(res.AppliedRuleIDs, rule.ID)
		if res.FirstRule == nil {
			snapshot := *rule
			res.FirstRule = &snapshot
		}

		eff := rule.Effects
		if eff.UnitPrice != nil {
			// Last matching rule wins.
			price := *eff.UnitPrice
			res.UnitPrice = &price
		}
		if eff.ExtraCharge != nil {
			acc := Money(0)
			if res.ExtraCharge != nil {
				acc = *res.ExtraCharge
			}
			acc += *eff.ExtraCharge
			res.ExtraCharge = &acc
		}
		for _, benefit := range eff.Benefits {
			if _, dup := seen[benefit]; dup {
				continue
			}
			seen[benefit] = struct{}{}
			res.Benefits = append(res.Benefits, benefit)
		}
		if eff.Notes != nil && *eff.Notes != "" {
			res.Notes = append(res.Notes, *eff.Notes)
		}
	}

	if res.UnitPrice == nil && ctx.Product.BaseUnitPrice != nil {
		res.UnitPrice = FlatAmount(*ctx.Product.BaseUnitPrice)
	}

	res.Total = computeTotal(res.UnitPrice, res.ExtraCharge, ctx.Quantity)
	return res
}

// computeTotal derives the line total. The consumption-only sentinel
// contributes zero from the unit price regardless of quantity; an absent
// unit price yields a nil total unless an extra charge accumulated.
func computeTotal(unit *UnitPrice, extra *Money, quantity int64) *Money {
	var total *Money
	if unit != nil {
		t := Money(0)
		if !unit.ConsumptionOnly {
			t = unit.Amount * quantity
		}
		total = &t
	}
	if extra != nil {
		t := *extra
		if total != nil {
			t += *total
		}
		total = &t
	}
	return total
}

// Matches reports whether every condition the rule specifies is satisfied by
// the context. An unspecified condition is vacuously satisfied; comparisons
// are exact equality or inclusive numeric ranges.
func Matches(rule *Rule, ctx Context) bool {
	cond := rule.Conditions
	if cond.ProductID != nil && *cond.ProductID != ctx.Product.ID.String() {
		return false
	}
	if cond.ProductCategory != nil && *cond.ProductCategory != ctx.Product.Category {
		return false
	}
	if !cond.Quantity.Contains(ctx.Quantity) {
		return false
	}
	if cond.Contract != nil && *cond.Contract && !ctx.HasContract {
		return false
	}
	if cond.ContractMonths != nil {
		months := int64(0)
		if ctx.ContractMonths != nil {
			months = *ctx.ContractMonths
		}
		if months < *cond.ContractMonths {
			return false
		}
	}
	if cond.Zone != nil && !equalOptional(*cond.Zone, ctx.CoverageZone) {
		return false
	}
	if cond.ServiceType != nil && !equalOptional(*cond.ServiceType, ctx.ServiceType) {
		return false
	}
	if !cond.OrderTotal.Contains(ctx.OrderTotal) {
		return false
	}
	return true
}

func priorityOf(r Rule) int32 {
	if r.Priority != nil {
		return *r.Priority
	}
	return DefaultPriority
}

func equalOptional(want string, got *string) bool {
	return got != nil && *got == want
}
