package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operations tracks state store operations by backend and operation
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopify_state_operations_total",
			Help: "Total number of cursor state operations",
		},
		[]string{"backend", "operation"}, // "memory"|"redis"|"sql", "get"|"set"|"list"
	)

	// Misses tracks reads of resources without saved state
	Misses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopify_state_misses_total",
			Help: "Total number of cursor state reads without saved state",
		},
		[]string{"backend"},
	)

	// Errors tracks failed state store operations
	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopify_state_errors_total",
			Help: "Total number of failed cursor state operations",
		},
		[]string{"backend", "operation"},
	)
)

func observe(backend, operation string, err error) error {
	Operations.WithLabelValues(backend, operation).Inc()
	if err != nil {
		Errors.WithLabelValues(backend, operation).Inc()
	}
	return err
}
