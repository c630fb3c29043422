package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pscheid92/dashpulse/internal/domain"
	"github.com/pscheid92/dashpulse/internal/ingest"
	"github.com/sony/gobreaker"
)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Notifier is the producer side of the Postgres ingest path. Calling Notify with
// the CRUD transaction delivers the event only if that transaction commits.
type Notifier struct {
	channel string
	cb      *gobreaker.CircuitBreaker
}

// NewNotifier trips after five consecutive failures and probes again after 30s.
func NewNotifier(channel string) *Notifier {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "postgres-notify",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"component", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &Notifier{channel: channel, cb: cb}
}

// Notify encodes event and queues it on the channel through db.
func (n *Notifier) Notify(ctx context.Context, db Execer, event domain.DashboardEvent) error {
	data, err := ingest.Encode(event)
	if err != nil {
		return err
	}

	_, err = n.cb.Execute(func() (interface{}, error) {
		_, err := db.Exec(ctx, "SELECT notify_dashboard_event($1, $2::json)", n.channel, string(data))
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to notify dashboard event: %w", err)
	}
	return nil
}

// State returns the breaker state.
func (n *Notifier) State() gobreaker.State {
	return n.cb.State()
}
