package redis

import (
	"context"

	"github.com/dkeye/octopresence/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DefaultStatusPrefix = "printer_status:"

// StatusCache invalidates the last-known status the printer agents report.
// Writing it belongs to the status ingestion path, not to this service.
type StatusCache struct {
	client *goredis.Client
	prefix string
}

func NewStatusCache(client *goredis.Client, prefix string) *StatusCache {
	if prefix == "" {
		prefix = DefaultStatusPrefix
	}
	return &StatusCache{client: client, prefix: prefix}
}

func (c *StatusCache) DeleteStatus(ctx context.Context, id domain.PrinterID) error {
	key := c.prefix + string(id)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return domain.NewTransportError("del", key, err)
	}
	log.Info().Str("module", "adapters.redis").Str("printer_id", string(id)).Msg("cached status evicted")
	return nil
}

func (c *StatusCache) Ping(ctx context.Context) error {
	return domain.NewTransportError("ping", "status_cache", c.client.Ping(ctx).Err())
}
