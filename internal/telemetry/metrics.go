package telemetry

import (
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/plugbook"
)

// Metrics holds the OpenTelemetry instruments for units of work and exports.
type Metrics struct {
	// Unit of work outcomes
	CommitsTotal   metric.Int64Counter
	RollbacksTotal metric.Int64Counter
	ConflictsTotal metric.Int64Counter
	RetriesTotal   metric.Int64Counter
	ExhaustedTotal metric.Int64Counter

	OperationDuration metric.Float64Histogram

	// Archives
	ArchivedRecordsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the process-wide Metrics bound to the global meter
// provider. Instruments created before InitTelemetry start recording once
// it installs a provider.
func GetMetrics() *Metrics {
	once.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			// the global provider only fails on invalid instrument names
			panic(err)
		}
		metrics = m
	})
	return metrics
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	var (
		m    Metrics
		errs []error
	)
	counter := func(dst *metric.Int64Counter, name, desc, unit string) {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		errs = append(errs, err)
		*dst = c
	}

	counter(&m.CommitsTotal, "plugbook.uow.commits.total", "Total number of committed units of work", "{commit}")
	counter(&m.RollbacksTotal, "plugbook.uow.rollbacks.total", "Total number of units of work rolled back", "{rollback}")
	counter(&m.ConflictsTotal, "plugbook.uow.conflicts.total", "Total number of optimistic concurrency conflicts", "{conflict}")
	counter(&m.RetriesTotal, "plugbook.uow.retries.total", "Total number of operation retries after a retryable failure", "{retry}")
	counter(&m.ExhaustedTotal, "plugbook.uow.exhausted.total", "Total number of units of work refused because the pool was saturated", "{error}")
	counter(&m.ArchivedRecordsTotal, "plugbook.export.records.total", "Total number of records written to archives", "{record}")

	var err error
	m.OperationDuration, err = meter.Float64Histogram(
		"plugbook.operation.duration",
		metric.WithDescription("Duration of service operations including retries"),
		metric.WithUnit("ms"),
	)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &m, nil
}
