package redis

import (
	"context"
	"fmt"

	"github.com/pscheid92/dashpulse/internal/domain"
	"github.com/pscheid92/dashpulse/internal/ingest"
	goredis "github.com/redis/go-redis/v9"
)

// PublishDashboardEvent is the producer side of the Redis ingest path. A CRUD
// service calls it after committing; every dashpulse process subscribed to channel
// fans the event out to its own connections.
func PublishDashboardEvent(ctx context.Context, rdb *goredis.Client, channel string, event domain.DashboardEvent) error {
	data, err := ingest.Encode(event)
	if err != nil {
		return err
	}
	if err := rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish dashboard event: %w", err)
	}
	return nil
}
