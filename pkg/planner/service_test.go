package planner_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/courseplanner/pkg/catalog"
	"github.com/Sumatoshi-tech/courseplanner/pkg/courseindex"
	"github.com/Sumatoshi-tech/courseplanner/pkg/observability"
	"github.com/Sumatoshi-tech/courseplanner/pkg/planner"
)

type staticSource struct {
	batch catalog.Batch
	err   error
}

func (ss staticSource) Name() string { return "static" }

func (ss staticSource) Load(context.Context) (catalog.Batch, error) { return ss.batch, ss.err }

func abcu() staticSource {
	return staticSource{batch: catalog.Batch{
		Records: []courseindex.CourseRecord{
			{ID: "CSCI300", Title: "Introduction to Algorithms", Prerequisites: []string{"CSCI200", "MATH201"}},
			{ID: "CSCI200", Title: "Data Structures", Prerequisites: []string{"CSCI101"}},
			{ID: "MATH201", Title: "Discrete Mathematics"},
			{ID: "CSCI101", Title: "Introduction to Programming in C++", Prerequisites: []string{"CSCI100"}},
			{ID: "CSCI100", Title: "Introduction to Computer Science"},
			{ID: "CSCI100", Title: "Duplicate"},
		},
		Rejections: []catalog.Rejection{{Line: 7, Reason: "has less than 2 parameters", Raw: "CSCI999"}},
	}}
}

type harness struct {
	svc    *planner.Service
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
	logs   *bytes.Buffer
}

func newHarness(t *testing.T) harness {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := observability.NewIndexMetrics(mp.Meter("test"))
	require.NoError(t, err)

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	svc := planner.New(nil,
		planner.WithLogger(logger),
		planner.WithTracer(tp.Tracer("test")),
		planner.WithMetrics(metrics),
	)

	return harness{svc: svc, spans: spans, reader: reader, logs: logs}
}

func (h harness) sum(t *testing.T, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics

	require.NoError(t, h.reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)

			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}

			return total
		}
	}

	return 0
}

func TestLoad(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	result, err := h.svc.Load(context.Background(), abcu())
	require.NoError(t, err)

	assert.Equal(t, "static", result.Source)
	assert.Equal(t, 5, result.Inserted)
	assert.Equal(t, []string{"CSCI100"}, result.Duplicates)
	assert.Len(t, result.Rejections, 1)
	assert.Equal(t, 5, h.svc.Index().Len())

	assert.Contains(t, h.logs.String(), "line skipped")
	assert.Contains(t, h.logs.String(), "duplicate course ignored")

	assert.Equal(t, int64(5), h.sum(t, "courseplanner.index.courses"))
	assert.Equal(t, int64(2), h.sum(t, "courseplanner.records.rejected.total"))

	ended := h.spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "courseplanner.load", ended[0].Name())
}

func TestLoadTwiceKeepsFirstRecords(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Load(ctx, abcu())
	require.NoError(t, err)

	result, err := h.svc.Load(ctx, abcu())
	require.NoError(t, err)

	assert.Zero(t, result.Inserted)
	assert.Len(t, result.Duplicates, 6)
	assert.Equal(t, 5, h.svc.Index().Len())
}

func TestLoadSourceError(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	boom := errors.New("connection refused")

	_, err := h.svc.Load(context.Background(), staticSource{err: boom})
	require.ErrorIs(t, err, boom)

	ended := h.spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "Error", ended[0].Status().Code.String())
	assert.Equal(t, int64(1), h.sum(t, "courseplanner.operations.total"))
}

func TestSchedule(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Load(ctx, abcu())
	require.NoError(t, err)

	records, err := h.svc.Schedule(ctx)
	require.NoError(t, err)

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}

	assert.Equal(t, []string{"CSCI100", "CSCI101", "CSCI200", "CSCI300", "MATH201"}, ids)
}

func TestScheduleWithholdsListingOnViolations(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Load(ctx, staticSource{batch: catalog.Batch{Records: []courseindex.CourseRecord{
		{ID: "CS201", Title: "Data Structures", Prerequisites: []string{"CS101", "MATH100"}},
		{ID: "CS050", Title: "Orientation"},
	}}})
	require.NoError(t, err)

	records, err := h.svc.Schedule(ctx)
	require.Error(t, err)
	assert.Nil(t, records)
	require.ErrorIs(t, err, courseindex.ErrMissingPrerequisite)

	var missing *courseindex.MissingPrerequisiteError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []courseindex.Violation{
		{CourseID: "CS201", MissingID: "CS101"},
		{CourseID: "CS201", MissingID: "MATH100"},
	}, missing.Violations)

	assert.Equal(t, int64(2), h.sum(t, "courseplanner.prerequisite.violations.total"))
}

func TestCourse(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Load(ctx, abcu())
	require.NoError(t, err)

	rec, err := h.svc.Course(ctx, "CSCI300")
	require.NoError(t, err)
	assert.Equal(t, []string{"CSCI200", "MATH201"}, rec.Prerequisites)

	_, err = h.svc.Course(ctx, "ZZZ")
	require.ErrorIs(t, err, planner.ErrCourseNotFound)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	assert.Empty(t, h.svc.Validate(ctx))

	_, err := h.svc.Load(ctx, staticSource{batch: catalog.Batch{Records: []courseindex.CourseRecord{
		{ID: "B", Title: "Beta", Prerequisites: []string{"A"}},
	}}})
	require.NoError(t, err)

	assert.Equal(t, []courseindex.Violation{{CourseID: "B", MissingID: "A"}}, h.svc.Validate(ctx))
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.cpix")

	_, err := h.svc.Load(ctx, abcu())
	require.NoError(t, err)

	size, err := h.svc.SaveSnapshot(ctx, path)
	require.NoError(t, err)
	assert.Positive(t, size)

	restored := newHarness(t)
	require.NoError(t, restored.svc.LoadSnapshot(ctx, path))
	assert.Equal(t, h.svc.Stats().Courses, restored.svc.Stats().Courses)
	assert.Equal(t, h.svc.Stats().BlackHeight, restored.svc.Stats().BlackHeight)

	want, err := h.svc.Schedule(ctx)
	require.NoError(t, err)

	got, err := restored.svc.Schedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Equal(t, int64(5), restored.sum(t, "courseplanner.index.courses"))
}

func TestLoadSnapshotMissingFileKeepsIndex(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Load(ctx, abcu())
	require.NoError(t, err)

	err = h.svc.LoadSnapshot(ctx, filepath.Join(t.TempDir(), "absent.cpix"))
	require.Error(t, err)
	assert.Equal(t, 5, h.svc.Index().Len())
}

func TestTimed(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	elapsed, err := planner.Timed(func() error {
		time.Sleep(time.Millisecond)

		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.GreaterOrEqual(t, elapsed, time.Millisecond)
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	idx := courseindex.New()
	svc := planner.New(idx)

	assert.Same(t, idx, svc.Index())

	_, err := svc.Course(context.Background(), "X")
	require.ErrorIs(t, err, planner.ErrCourseNotFound)
}
