package metrics

import "github.com/prometheus/client_golang/prometheus"

// StoreMetrics covers the Redis and Postgres clients used by the ingest paths.
type StoreMetrics struct {
	RedisOpsTotal   *prometheus.CounterVec
	RedisOpDuration *prometheus.HistogramVec
	RedisDialErrors prometheus.Counter
	DBQueryDuration *prometheus.HistogramVec
	DBErrorsTotal   *prometheus.CounterVec
}

// NewStoreMetrics creates and registers store metrics on the given registry.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		RedisOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operations_total",
			Help:      "Redis commands, by command and status.",
		}, []string{"operation", "status"}),
		RedisOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Redis command latency.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}, []string{"operation"}),
		RedisDialErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "dial_errors_total",
			Help:      "Failed Redis connection attempts.",
		}),
		DBQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "postgres",
			Name:      "query_duration_seconds",
			Help:      "Postgres statement latency, by leading keyword.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		DBErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "postgres",
			Name:      "errors_total",
			Help:      "Failed Postgres statements, by leading keyword.",
		}, []string{"query"}),
	}

	reg.MustRegister(m.RedisOpsTotal, m.RedisOpDuration, m.RedisDialErrors, m.DBQueryDuration, m.DBErrorsTotal)
	return m
}
