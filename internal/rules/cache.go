package rules

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache keeps the per-organisation active rule list in Redis so the quote
// path avoids a database round trip per keystroke.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a rule cache. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func activeKey(orgID uuid.UUID) string {
	return "rules:active:" + orgID.String()
}

// GetActive returns the cached active rules for the organisation, reporting
// whether the key existed.
func (c *Cache) GetActive(ctx context.Context, orgID uuid.UUID) ([]Rule, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	data, err := c.client.Get(ctx, activeKey(orgID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var cached []Rule
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, err
	}
	return cached, true, nil
}

// SetActive stores the active rule list with the configured TTL.
func (c *Cache) SetActive(ctx context.Context, orgID uuid.UUID, ruleSet []Rule) error {
	if c == nil || c.client == nil || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(ruleSet)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, activeKey(orgID), data, c.ttl).Err()
}

// Invalidate drops the organisation's cached rule list after a write.
func (c *Cache) Invalidate(ctx context.Context, orgID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, activeKey(orgID)).Err()
}
