package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/dashpulse/internal/ingest"
	"github.com/pscheid92/dashpulse/internal/platform/retry"
)

const (
	reconnectInitialBackoff = 500 * time.Millisecond
	reconnectMaxBackoff     = 30 * time.Second
	unlistenTimeout         = 2 * time.Second
)

// Listener holds one pooled connection in LISTEN mode and feeds every
// notification payload into a dispatcher.
type Listener struct {
	pool       *pgxpool.Pool
	channel    string
	dispatcher *ingest.Dispatcher
	clock      clockwork.Clock
}

func NewListener(pool *pgxpool.Pool, channel string, dispatcher *ingest.Dispatcher, clock clockwork.Clock) *Listener {
	return &Listener{pool: pool, channel: channel, dispatcher: dispatcher, clock: clock}
}

// Start blocks until ctx is done, re-listening with backoff after connection loss.
func (l *Listener) Start(ctx context.Context) {
	policy := retry.Policy{
		InitialBackoff: reconnectInitialBackoff,
		MaxBackoff:     reconnectMaxBackoff,
		Clock:          l.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			l.dispatcher.Reconnected()
			slog.Warn("Postgres listener lost, retrying", "channel", l.channel, "attempt", attempt, "backoff", backoff, "error", err)
		},
	}

	err := retry.DoVoid(ctx, policy, retry.Always, func() error {
		return l.listen(ctx)
	})
	if err != nil && ctx.Err() == nil {
		slog.Error("Postgres listener stopped", "channel", l.channel, "error", err)
	}
}

// listen runs one LISTEN session. It returns nil only when ctx is done.
func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	defer l.release(conn)

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	slog.Info("Listening for dashboard events", "source", l.dispatcher.Source(), "channel", l.channel)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.dispatcher.Dispatch([]byte(notification.Payload))
	}
}

// release returns the connection to the pool without a lingering LISTEN. A
// connection that cannot be cleaned up is closed instead.
func (l *Listener) release(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), unlistenTimeout)
	defer cancel()

	if _, err := conn.Exec(ctx, "UNLISTEN *"); err != nil {
		_ = conn.Conn().Close(ctx)
	}
	conn.Release()
}
