package repository

import (
	"context"
	"fmt"

	"settlement-service/internal/models"

	"github.com/redis/go-redis/v9"
)

// SeverityCache is the read cache for aggregated severities. Aggregation
// results are immutable, so entries never expire.
type SeverityCache struct {
	client *redis.Client
}

func NewSeverityCache(client *redis.Client) *SeverityCache {
	return &SeverityCache{client: client}
}

func severityKey(season int, region string) string {
	return fmt.Sprintf("severity:%d:%s", season, region)
}

func (c *SeverityCache) Set(ctx context.Context, season int, region string, severity models.Severity) error {
	if err := c.client.Set(ctx, severityKey(season, region), string(severity), 0).Err(); err != nil {
		return fmt.Errorf("failed to cache severity: %w", err)
	}
	return nil
}

// Get returns the cached severity and whether the key was present.
func (c *SeverityCache) Get(ctx context.Context, season int, region string) (models.Severity, bool, error) {
	value, err := c.client.Get(ctx, severityKey(season, region)).Result()
	if err == redis.Nil {
		return models.SeverityDefault, false, nil
	}
	if err != nil {
		return models.SeverityDefault, false, fmt.Errorf("failed to read cached severity: %w", err)
	}
	return models.Severity(value), true, nil
}
