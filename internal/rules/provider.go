package rules

import (
	"context"

	"github.com/google/uuid"

	"github.com/hydroventas/pricing-api/internal/obs"
)

// Provider serves active rule lists to the quote path, reading through the
// cache when one is configured.
type Provider struct {
	Store *Store
	Cache *Cache
}

// ActiveRules returns the organisation's active rules in evaluation order.
// Cache failures fall through to the database.
func (p Provider) ActiveRules(ctx context.Context, orgID uuid.UUID) ([]Rule, error) {
	if cached, ok, err := p.Cache.GetActive(ctx, orgID); err == nil && ok {
		cacheLookup("hit")
		return cached, nil
	}
	cacheLookup("miss")
	ruleSet, err := p.Store.ListActive(ctx, orgID)
	if err != nil {
		return nil, err
	}
	_ = p.Cache.SetActive(ctx, orgID, ruleSet)
	return ruleSet, nil
}

func cacheLookup(result string) {
	if obs.RuleCacheTotal != nil {
		obs.RuleCacheTotal.WithLabelValues(result).Inc()
	}
}
