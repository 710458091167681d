package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"program_catalog/internal/domain"
)

type ReportCache struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewReportCache(rdb *redis.Client, prefix string, ttl time.Duration) *ReportCache {
	return &ReportCache{
		rdb: rdb,
		key: prefix + ":sync:last_report",
		ttl: ttl,
	}
}

func (c *ReportCache) SaveReport(ctx context.Context, report *domain.SyncReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key, body, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache report: %w", err)
	}
	return nil
}

func (c *ReportCache) LastReport(ctx context.Context) (*domain.SyncReport, error) {
	body, err := c.rdb.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cached report: %w", err)
	}

	var report domain.SyncReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("decode cached report: %w", err)
	}
	return &report, nil
}
