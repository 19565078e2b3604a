package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sumatoshi-tech/courseplanner/pkg/courseindex"
)

const (
	createCoursesTable = `CREATE TABLE IF NOT EXISTS courses (
	id            text PRIMARY KEY,
	title         text NOT NULL,
	prerequisites text[] NOT NULL DEFAULT '{}'
)`
	listCourses  = `SELECT id, title, prerequisites FROM courses ORDER BY id`
	insertCourse = `INSERT INTO courses (id, title, prerequisites) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`
)

// pgxConn is the subset of *pgxpool.Pool used by PostgresSource.
type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, batch *pgx.Batch) pgx.BatchResults
}

// PostgresSource reads and writes course records in a PostgreSQL "courses" table.
type PostgresSource struct {
	conn  pgxConn
	close func()
}

// NewPostgresSource connects to the database at dsn and verifies the connection.
func NewPostgresSource(ctx context.Context, dsn string) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()

		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresSource{conn: pool, close: pool.Close}, nil
}

// Name implements Source.
func (ps *PostgresSource) Name() string {
	return "postgres"
}

// Close releases the connection pool.
func (ps *PostgresSource) Close() error {
	if ps.close != nil {
		ps.close()
	}

	return nil
}

// EnsureSchema creates the courses table if it does not exist.
func (ps *PostgresSource) EnsureSchema(ctx context.Context) error {
	_, err := ps.conn.Exec(ctx, createCoursesTable)
	if err != nil {
		return fmt.Errorf("create courses table: %w", err)
	}

	return nil
}

// Load implements Source. Rows are numbered by their position in ID order.
func (ps *PostgresSource) Load(ctx context.Context) (Batch, error) {
	rows, err := ps.conn.Query(ctx, listCourses)
	if err != nil {
		return Batch{}, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	var batch Batch

	for pos := 1; rows.Next(); pos++ {
		var (
			id, title string
			prereqs   []string
		)

		err = rows.Scan(&id, &title, &prereqs)
		if err != nil {
			return Batch{}, fmt.Errorf("scan course row %d: %w", pos, err)
		}

		rec, reason := newRecord(id, title, prereqs)
		if reason != "" {
			batch.Rejections = append(batch.Rejections, Rejection{Line: pos, Reason: reason, Raw: id + ", " + title})

			continue
		}

		batch.Records = append(batch.Records, rec)
	}

	err = rows.Err()
	if err != nil {
		return Batch{}, fmt.Errorf("iterate courses: %w", err)
	}

	return batch, nil
}

// Store inserts records in one batch. Existing IDs are left untouched.
func (ps *PostgresSource) Store(ctx context.Context, records []courseindex.CourseRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := pgx.Batch{}

	for _, rec := range records {
		prereqs := rec.Prerequisites
		if prereqs == nil {
			prereqs = []string{}
		}

		batch.Queue(insertCourse, rec.ID, rec.Title, prereqs)
	}

	err := ps.conn.SendBatch(ctx, &batch).Close()
	if err != nil {
		return fmt.Errorf("insert courses: %w", err)
	}

	return nil
}
