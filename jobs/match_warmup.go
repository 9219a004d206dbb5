package jobs

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-erp/internal/crm/customers"
	"github.com/meridian-erp/meridian-erp/internal/crm/matching"
	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

const (
	matchCacheKey = "match:normalized"
	matchCacheTTL = 24 * time.Hour
)

// NewMatchCacheWarmupHandler returns the handler for TaskMatchCacheWarmup.
// It normalizes every active company name and stores the result in a Redis
// hash keyed by customer id, so dashboards and ad-hoc tooling can inspect the
// directory without re-running normalization.
func NewMatchCacheWarmupHandler(repo customers.Repository, client *redis.Client, jm *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := jm.Track("match_cache_warmup")

		active, err := repo.ListActive(ctx)
		if err != nil {
			logger.Error("match cache warmup failed", slog.Any("error", err))
			return tracker.End(err)
		}

		fields := make(map[string]interface{}, len(active))
		for _, c := range active {
			fields[strconv.FormatInt(c.ID, 10)] = matching.Normalize(c.CompanyName)
		}

		pipe := client.TxPipeline()
		pipe.Del(ctx, matchCacheKey)
		if len(fields) > 0 {
			pipe.HSet(ctx, matchCacheKey, fields)
			pipe.Expire(ctx, matchCacheKey, matchCacheTTL)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Error("match cache write failed", slog.Any("error", err))
			return tracker.End(err)
		}

		logger.Info("match cache warmed", slog.Int("customers", len(active)))
		return tracker.End(nil)
	}
}
