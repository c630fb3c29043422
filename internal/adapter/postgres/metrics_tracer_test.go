package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	"github.com/stretchr/testify/assert"
)

func TestQueryName(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"SELECT notify_dashboard_event($1, $2::json)", "SELECT"},
		{"  listen \"dashboard_events\"", "LISTEN"},
		{"UNLISTEN *", "UNLISTEN"},
		{"", "unknown"},
		{"\n\t", "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, queryName(tt.sql), "sql %q", tt.sql)
	}
}

func TestMetricsTracer_RecordsDurationAndErrors(t *testing.T) {
	m := metrics.NewStoreMetrics(prometheus.NewRegistry())
	tracer := NewMetricsTracer(m)

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})

	ctx = tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "LISTEN x"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("conn closed")})

	assert.Equal(t, 2, testutil.CollectAndCount(m.DBQueryDuration))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.DBErrorsTotal.WithLabelValues("SELECT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DBErrorsTotal.WithLabelValues("LISTEN")))
}

func TestMetricsTracer_IgnoresUntracedContext(t *testing.T) {
	m := metrics.NewStoreMetrics(prometheus.NewRegistry())

	NewMetricsTracer(m).TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{Err: errors.New("x")})

	assert.Equal(t, 0, testutil.CollectAndCount(m.DBErrorsTotal))
}
