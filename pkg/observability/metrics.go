package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricOperationsTotal   = "courseplanner.operations.total"
	metricOperationDuration = "courseplanner.operation.duration.seconds"
	metricViolationsTotal   = "courseplanner.prerequisite.violations.total"
	metricRejectedTotal     = "courseplanner.records.rejected.total"
	metricIndexedCourses    = "courseplanner.index.courses"

	attrOp     = "op"
	attrStatus = "status"
	attrSource = "source"

	// StatusOK and StatusError are the values of the status attribute.
	StatusOK    = "ok"
	StatusError = "error"
)

// durationBucketBoundaries covers 10µs to 10s: single lookups are microseconds,
// loading a large catalog from a database takes seconds.
var durationBucketBoundaries = []float64{
	0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10,
}

// IndexMetrics holds the OTel instruments for course index operations.
type IndexMetrics struct {
	operationsTotal   metric.Int64Counter
	operationDuration metric.Float64Histogram
	violationsTotal   metric.Int64Counter
	rejectedTotal     metric.Int64Counter
	indexedCourses    metric.Int64UpDownCounter
}

// NewIndexMetrics creates the index instruments from the given meter.
func NewIndexMetrics(mt metric.Meter) (*IndexMetrics, error) {
	opsTotal, err := mt.Int64Counter(metricOperationsTotal,
		metric.WithDescription("Total number of planner operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOperationsTotal, err)
	}

	opDuration, err := mt.Float64Histogram(metricOperationDuration,
		metric.WithDescription("Planner operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOperationDuration, err)
	}

	violations, err := mt.Int64Counter(metricViolationsTotal,
		metric.WithDescription("Prerequisite references that resolve to no course"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricViolationsTotal, err)
	}

	rejected, err := mt.Int64Counter(metricRejectedTotal,
		metric.WithDescription("Catalog records rejected as malformed or duplicate"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRejectedTotal, err)
	}

	courses, err := mt.Int64UpDownCounter(metricIndexedCourses,
		metric.WithDescription("Number of courses held by the index"),
		metric.WithUnit("{course}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricIndexedCourses, err)
	}

	return &IndexMetrics{
		operationsTotal:   opsTotal,
		operationDuration: opDuration,
		violationsTotal:   violations,
		rejectedTotal:     rejected,
		indexedCourses:    courses,
	}, nil
}

// RecordOperation records a completed operation with its status and duration.
func (im *IndexMetrics) RecordOperation(ctx context.Context, op string, err error, duration time.Duration) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}

	attrs := metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	)

	im.operationsTotal.Add(ctx, 1, attrs)
	im.operationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordViolations counts prerequisite violations found by a validation pass.
func (im *IndexMetrics) RecordViolations(ctx context.Context, count int) {
	if count > 0 {
		im.violationsTotal.Add(ctx, int64(count))
	}
}

// RecordRejected counts records a source produced that never reached the index.
func (im *IndexMetrics) RecordRejected(ctx context.Context, source string, count int) {
	if count > 0 {
		im.rejectedTotal.Add(ctx, int64(count), metric.WithAttributes(attribute.String(attrSource, source)))
	}
}

// AddCourses adjusts the indexed course gauge.
func (im *IndexMetrics) AddCourses(ctx context.Context, delta int) {
	im.indexedCourses.Add(ctx, int64(delta))
}
