package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// Metrics exports storage activity to Prometheus. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	reclaims   *prometheus.CounterVec
	removed    *prometheus.CounterVec
}

// NewMetrics registers the storage collectors with reg. A nil reg means
// prometheus.DefaultRegisterer. Registering twice against the same registry
// reuses the collectors already present.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storage",
			Name:      "operations_total",
			Help:      "Remote file operations by protocol, operation and outcome.",
		}, []string{"protocol", "operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Latency of remote file operations, including session setup.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"protocol", "operation"}),
		reclaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storage",
			Name:      "cache_reclaims_total",
			Help:      "Staging cache sweeps triggered by resource exhaustion.",
		}, []string{"protocol"}),
		removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storage",
			Name:      "cache_entries_removed_total",
			Help:      "Staging cache entries removed by CleanCache.",
		}, []string{"protocol"}),
	}

	var err error
	if m.operations, err = register(reg, m.operations); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.reclaims, err = register(reg, m.reclaims); err != nil {
		return nil, err
	}
	if m.removed, err = register(reg, m.removed); err != nil {
		return nil, err
	}

	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register storage metric: %w", err)
	}
	return c, nil
}

func (m *Metrics) observe(protocol, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeError
	}
	m.operations.WithLabelValues(protocol, operation, outcome).Inc()
	m.duration.WithLabelValues(protocol, operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) reclaim(protocol string) {
	if m == nil {
		return
	}
	m.reclaims.WithLabelValues(protocol).Inc()
}

func (m *Metrics) entryRemoved(protocol string) {
	if m == nil {
		return
	}
	m.removed.WithLabelValues(protocol).Inc()
}
