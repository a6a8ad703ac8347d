// Package metrics exposes the Prometheus metrics of token operations.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the operation metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	PartialCommits    *prometheus.CounterVec
	SectorsFormatted  prometheus.Counter
	KeyRecoveries     *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mifare_balance_operations_total",
			Help: "Token operations by outcome",
		}, []string{"operation", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mifare_balance_operation_duration_seconds",
			Help:    "Time spent on a single token operation",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		PartialCommits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mifare_balance_partial_commits_total",
			Help: "Operations that left the token and the ledger out of step",
		}, []string{"operation"}),
		SectorsFormatted: factory.NewCounter(prometheus.CounterOpts{
			Name: "mifare_balance_sectors_formatted_total",
			Help: "Sectors restored to the transport configuration",
		}),
		KeyRecoveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mifare_balance_key_recovery_total",
			Help: "Sector key recoveries by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	m.Operations.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) PartialCommit(operation string) {
	m.PartialCommits.WithLabelValues(operation).Inc()
}

func (m *Metrics) SectorFormatted() {
	m.SectorsFormatted.Inc()
}

func (m *Metrics) KeyRecovery(found bool) {
	result := "found"
	if !found {
		result = "not_found"
	}
	m.KeyRecoveries.WithLabelValues(result).Inc()
}

// Gatherer returns the registry holding the metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the metrics in the text exposition format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}

	return nil
}
