package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "loom"

// Metrics holds the workspace lifecycle instruments. It satisfies the
// manager's Metrics interface.
type Metrics struct {
	opened       metric.Int64Counter
	openFailed   metric.Int64Counter
	stopped      metric.Int64Counter
	erased       metric.Int64Counter
	openDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.opened, err = meter.Int64Counter("loom.workspaces.opened",
		metric.WithDescription("Number of workspaces opened"))
	if err != nil {
		return nil, err
	}

	m.openFailed, err = meter.Int64Counter("loom.workspaces.open_failed",
		metric.WithDescription("Number of failed workspace opens"))
	if err != nil {
		return nil, err
	}

	m.stopped, err = meter.Int64Counter("loom.workspaces.stopped",
		metric.WithDescription("Number of workspaces stopped"))
	if err != nil {
		return nil, err
	}

	m.erased, err = meter.Int64Counter("loom.workspaces.erased",
		metric.WithDescription("Number of workspaces erased"))
	if err != nil {
		return nil, err
	}

	m.openDuration, err = meter.Float64Histogram("loom.workspace.open.duration_seconds",
		metric.WithDescription("Workspace open duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// WorkspaceOpened records a successful open with its duration.
func (m *Metrics) WorkspaceOpened(ctx context.Context, providerID string, dur time.Duration) {
	attrs := metric.WithAttributes(attribute.String("provider", providerID))
	m.opened.Add(ctx, 1, attrs)
	m.openDuration.Record(ctx, dur.Seconds(), attrs)
}

// WorkspaceOpenFailed records a failed open.
func (m *Metrics) WorkspaceOpenFailed(ctx context.Context) {
	m.openFailed.Add(ctx, 1)
}

// WorkspaceStopped records a stop.
func (m *Metrics) WorkspaceStopped(ctx context.Context) {
	m.stopped.Add(ctx, 1)
}

// WorkspaceErased records an erase.
func (m *Metrics) WorkspaceErased(ctx context.Context) {
	m.erased.Add(ctx, 1)
}
