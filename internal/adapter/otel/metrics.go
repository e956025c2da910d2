package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "backoffice"

// Metrics holds the back-office metric instruments.
type Metrics struct {
	RowsCreated        metric.Int64Counter
	RowsDeleted        metric.Int64Counter
	PermissionDenials  metric.Int64Counter
	SideEffectFailures metric.Int64Counter
	TasksProcessed     metric.Int64Counter
	RowQueryDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RowsCreated, err = meter.Int64Counter("backoffice.rows.created",
		metric.WithDescription("Number of rows created"))
	if err != nil {
		return nil, err
	}

	m.RowsDeleted, err = meter.Int64Counter("backoffice.rows.deleted",
		metric.WithDescription("Number of rows deleted, cascades included"))
	if err != nil {
		return nil, err
	}

	m.PermissionDenials, err = meter.Int64Counter("backoffice.permission.denials",
		metric.WithDescription("Number of permission checks that denied access"))
	if err != nil {
		return nil, err
	}

	m.SideEffectFailures, err = meter.Int64Counter("backoffice.side_effects.failed",
		metric.WithDescription("Post-commit side effects that failed and were logged"))
	if err != nil {
		return nil, err
	}

	m.TasksProcessed, err = meter.Int64Counter("backoffice.tasks.processed",
		metric.WithDescription("Queue tasks processed, by subject and outcome"))
	if err != nil {
		return nil, err
	}

	m.RowQueryDuration, err = meter.Float64Histogram("backoffice.rows.query_seconds",
		metric.WithDescription("Row listing duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
