package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/dashpulse/internal/ingest"
	"github.com/pscheid92/dashpulse/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
)

const (
	reconnectInitialBackoff = 500 * time.Millisecond
	reconnectMaxBackoff     = 30 * time.Second
)

// EventSubscriber feeds envelopes published on a Redis channel into a dispatcher.
type EventSubscriber struct {
	rdb        *goredis.Client
	channel    string
	dispatcher *ingest.Dispatcher
	clock      clockwork.Clock
}

func NewEventSubscriber(rdb *goredis.Client, channel string, dispatcher *ingest.Dispatcher, clock clockwork.Clock) *EventSubscriber {
	return &EventSubscriber{rdb: rdb, channel: channel, dispatcher: dispatcher, clock: clock}
}

// Start blocks until ctx is done, resubscribing with backoff whenever the
// subscription is lost.
func (s *EventSubscriber) Start(ctx context.Context) {
	policy := retry.Policy{
		InitialBackoff: reconnectInitialBackoff,
		MaxBackoff:     reconnectMaxBackoff,
		Clock:          s.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			s.dispatcher.Reconnected()
			slog.Warn("Redis subscription lost, retrying", "channel", s.channel, "attempt", attempt, "backoff", backoff, "error", err)
		},
	}

	err := retry.DoVoid(ctx, policy, retry.Always, func() error {
		return s.consume(ctx)
	})
	if err != nil && ctx.Err() == nil {
		slog.Error("Redis subscriber stopped", "channel", s.channel, "error", err)
	}
}

// consume runs one subscription. It returns nil only when ctx is done.
func (s *EventSubscriber) consume(ctx context.Context) error {
	pubsub := s.rdb.Subscribe(ctx, s.channel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	slog.Info("Subscribed to dashboard events", "source", s.dispatcher.Source(), "channel", s.channel)

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription channel %s closed", s.channel)
			}
			s.dispatcher.Dispatch([]byte(msg.Payload))
		case <-ctx.Done():
			return nil
		}
	}
}
