// Package planner is the application service between the presentation layer and the course index.
// It loads catalogs, gates schedule listings on prerequisite validation, and persists snapshots,
// tracing and measuring every operation.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/courseplanner/pkg/catalog"
	"github.com/Sumatoshi-tech/courseplanner/pkg/courseindex"
	"github.com/Sumatoshi-tech/courseplanner/pkg/observability"
)

// ErrCourseNotFound is returned by Course when the ID is not indexed.
var ErrCourseNotFound = errors.New("course not found")

// Operation names used for spans and the op metric attribute.
const (
	OpLoad         = "load"
	OpSchedule     = "schedule"
	OpCourse       = "course"
	OpValidate     = "validate"
	OpSaveSnapshot = "snapshot.save"
	OpLoadSnapshot = "snapshot.load"

	spanPrefix = "courseplanner."

	snapshotDirPerm = 0o750
)

// Service coordinates the course index with its sources, snapshots and telemetry.
// It is not safe for concurrent use.
type Service struct {
	idx     *courseindex.Index
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.IndexMetrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTracer sets the tracer. Defaults to a no-op tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithMetrics sets the metric instruments. Nil disables metrics.
func WithMetrics(metrics *observability.IndexMetrics) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// New creates a service around idx. A nil idx starts from an empty index.
func New(idx *courseindex.Index, opts ...Option) *Service {
	if idx == nil {
		idx = courseindex.New()
	}

	s := &Service{idx: idx}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	if s.tracer == nil {
		s.tracer = nooptrace.NewTracerProvider().Tracer("courseplanner")
	}

	return s
}

// Index returns the underlying index.
func (s *Service) Index() *courseindex.Index {
	return s.idx
}

// Stats returns the index shape statistics.
func (s *Service) Stats() courseindex.Stats {
	return s.idx.Stats()
}

// LoadResult summarizes one Load call.
type LoadResult struct {
	Source     string
	Inserted   int
	Duplicates []string
	Rejections []catalog.Rejection
}

// Load reads a batch from src and inserts it into the index. Malformed records and
// duplicate IDs are reported in the result and logged, they do not fail the load.
func (s *Service) Load(ctx context.Context, src catalog.Source) (result LoadResult, err error) {
	ctx, finish := s.start(ctx, OpLoad, attribute.String("catalog.source", src.Name()))
	defer func() { finish(err) }()

	batch, err := src.Load(ctx)
	if err != nil {
		return LoadResult{}, fmt.Errorf("load %s catalog: %w", src.Name(), err)
	}

	for _, rej := range batch.Rejections {
		s.logger.WarnContext(ctx, "line skipped", "source", src.Name(), "line", rej.Line, "reason", rej.Reason)
	}

	filled := catalog.Fill(s.idx, batch)

	for _, id := range filled.Duplicates {
		s.logger.WarnContext(ctx, "duplicate course ignored", "source", src.Name(), "course", id)
	}

	if s.metrics != nil {
		s.metrics.AddCourses(ctx, filled.Inserted)
		s.metrics.RecordRejected(ctx, src.Name(), len(batch.Rejections)+len(filled.Duplicates))
	}

	s.logger.InfoContext(ctx, "courses loaded",
		"source", src.Name(), "inserted", filled.Inserted,
		"rejected", len(batch.Rejections), "duplicates", len(filled.Duplicates),
		"total", s.idx.Len())

	return LoadResult{
		Source:     src.Name(),
		Inserted:   filled.Inserted,
		Duplicates: filled.Duplicates,
		Rejections: batch.Rejections,
	}, nil
}

// Schedule returns every course in ascending ID order, but only when all prerequisites
// resolve. Otherwise it returns a *courseindex.MissingPrerequisiteError and no records.
func (s *Service) Schedule(ctx context.Context) (records []courseindex.CourseRecord, err error) {
	ctx, finish := s.start(ctx, OpSchedule)
	defer func() { finish(err) }()

	ok, violations := s.idx.ValidatePrerequisites()
	s.recordViolations(ctx, violations)

	if !ok {
		return nil, &courseindex.MissingPrerequisiteError{Violations: violations}
	}

	records = make([]courseindex.CourseRecord, 0, s.idx.Len())
	for rec := range s.idx.InOrder() {
		records = append(records, rec)
	}

	return records, nil
}

// Course looks up one course by ID.
func (s *Service) Course(ctx context.Context, id string) (rec courseindex.CourseRecord, err error) {
	ctx, finish := s.start(ctx, OpCourse, attribute.String("course.id", id))
	defer func() { finish(err) }()

	rec, found := s.idx.Search(id)
	if !found {
		s.logger.DebugContext(ctx, "course lookup missed", "course", id)

		return courseindex.CourseRecord{}, fmt.Errorf("%w: %s", ErrCourseNotFound, id)
	}

	return rec, nil
}

// Validate returns every missing prerequisite reference in the index.
func (s *Service) Validate(ctx context.Context) []courseindex.Violation {
	ctx, finish := s.start(ctx, OpValidate)

	_, violations := s.idx.ValidatePrerequisites()
	s.recordViolations(ctx, violations)

	finish(nil)

	return violations
}

// SaveSnapshot writes the index to path and returns the snapshot size.
func (s *Service) SaveSnapshot(ctx context.Context, path string) (size int64, err error) {
	ctx, finish := s.start(ctx, OpSaveSnapshot, attribute.String("snapshot.path", path))
	defer func() { finish(err) }()

	err = os.MkdirAll(filepath.Dir(path), snapshotDirPerm)
	if err != nil {
		return 0, fmt.Errorf("create snapshot dir: %w", err)
	}

	size, err = s.idx.SaveFile(path)
	if err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}

	s.logger.InfoContext(ctx, "snapshot saved", "path", path, "bytes", size, "courses", s.idx.Len())

	return size, nil
}

// LoadSnapshot replaces the index with the snapshot stored at path.
// On failure the current index is kept.
func (s *Service) LoadSnapshot(ctx context.Context, path string) (err error) {
	ctx, finish := s.start(ctx, OpLoadSnapshot, attribute.String("snapshot.path", path))
	defer func() { finish(err) }()

	idx, err := courseindex.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	if s.metrics != nil {
		s.metrics.AddCourses(ctx, idx.Len()-s.idx.Len())
	}

	s.idx = idx
	s.logger.InfoContext(ctx, "snapshot loaded", "path", path, "courses", idx.Len())

	return nil
}

// start opens a span for op and returns a finisher that ends it and records the
// operation metric.
func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	began := time.Now()

	ctx, span := s.tracer.Start(ctx, spanPrefix+op, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.SetAttributes(attribute.Int("index.courses", s.idx.Len()))
		span.End()

		if s.metrics != nil {
			s.metrics.RecordOperation(ctx, op, err, time.Since(began))
		}
	}
}

func (s *Service) recordViolations(ctx context.Context, violations []courseindex.Violation) {
	if len(violations) == 0 {
		return
	}

	if s.metrics != nil {
		s.metrics.RecordViolations(ctx, len(violations))
	}

	for _, v := range violations {
		s.logger.DebugContext(ctx, "missing prerequisite", "course", v.CourseID, "missing", v.MissingID)
	}
}

// Timed runs fn and reports how long it took.
func Timed(fn func() error) (time.Duration, error) {
	began := time.Now()
	err := fn()

	return time.Since(began), err
}
