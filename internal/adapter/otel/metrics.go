package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "schemabridge"

// Metrics holds all SchemaBridge metric instruments. All Add* methods are
// nil-receiver safe so callers can run without telemetry wired.
type Metrics struct {
	TasksStarted     metric.Int64Counter
	TasksCompleted   metric.Int64Counter
	TasksFailed      metric.Int64Counter
	TasksCancelled   metric.Int64Counter
	VersionsMigrated metric.Int64Counter
	BatchItems       metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TasksStarted, err = meter.Int64Counter("schemabridge.tasks.started",
		metric.WithDescription("Number of tasks started"))
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("schemabridge.tasks.completed",
		metric.WithDescription("Number of tasks completed"))
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("schemabridge.tasks.failed",
		metric.WithDescription("Number of tasks failed"))
	if err != nil {
		return nil, err
	}

	m.TasksCancelled, err = meter.Int64Counter("schemabridge.tasks.cancelled",
		metric.WithDescription("Number of tasks cancelled"))
	if err != nil {
		return nil, err
	}

	m.VersionsMigrated, err = meter.Int64Counter("schemabridge.migration.versions",
		metric.WithDescription("Number of schema versions migrated"))
	if err != nil {
		return nil, err
	}

	m.BatchItems, err = meter.Int64Counter("schemabridge.batch.items",
		metric.WithDescription("Number of batch items processed"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// AddStarted increments the started-task counter.
func (m *Metrics) AddStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.TasksStarted.Add(ctx, 1)
}

// AddCompleted increments the completed-task counter.
func (m *Metrics) AddCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.TasksCompleted.Add(ctx, 1)
}

// AddFailed increments the failed-task counter.
func (m *Metrics) AddFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.TasksFailed.Add(ctx, 1)
}

// AddCancelled increments the cancelled-task counter.
func (m *Metrics) AddCancelled(ctx context.Context) {
	if m == nil {
		return
	}
	m.TasksCancelled.Add(ctx, 1)
}

// AddVersionsMigrated records n schema versions written to a target registry.
func (m *Metrics) AddVersionsMigrated(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.VersionsMigrated.Add(ctx, n)
}

// AddBatchItems records n processed batch items.
func (m *Metrics) AddBatchItems(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.BatchItems.Add(ctx, n)
}
