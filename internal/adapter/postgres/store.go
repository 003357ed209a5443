// Package postgres is the record store client: CRUD against the earthquake
// record table plus the LISTEN/NOTIFY change feed its trigger emits. The
// table is the single source of truth for records; everything else in the
// service holds advisory copies at best.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quakewatch/eq-records/internal/domain"
	"github.com/quakewatch/eq-records/internal/observability"
)

//go:embed schema.sql
var schemaSQL string

const recordColumns = "id, date, ts, magnitude, location, depth, latitude, longitude, description, source, created_at"

// StoreError reports a failed store operation, carrying the backend's own
// message so constraint violations read the way the database phrased them.
type StoreError struct {
	Op      string // create, list, update, delete
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Store is the record table client. It is stateless per call; any caching
// lives in the live view, never here.
type Store struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New connects the store and verifies the database is reachable.
func New(ctx context.Context, databaseURL string, logger *slog.Logger, metrics *observability.Metrics) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect record store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping record store: %w", err)
	}
	return &Store{pool: pool, logger: logger, metrics: metrics}, nil
}

// EnsureSchema creates the record table, index, and change-feed trigger if
// they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Ping reports whether the store is reachable, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Create persists a record and returns it with the assigned id and
// created-at stamp. The id is minted here, at create time, and is the one
// field no later operation touches.
func (s *Store) Create(ctx context.Context, rec domain.Record) (domain.Record, error) {
	rec.ID = uuid.NewString()
	if rec.Source == "" {
		rec.Source = domain.SourceManual
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO earthquake_records (id, date, ts, magnitude, location, depth, latitude, longitude, description, source)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at`,
		rec.ID, rec.Date, rec.Timestamp, rec.Magnitude, rec.Location,
		rec.Depth, rec.Latitude, rec.Longitude, rec.Description, rec.Source,
	)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return domain.Record{}, s.fail("create", err)
	}
	return rec, nil
}

// List returns every record ordered by timestamp descending.
func (s *Store) List(ctx context.Context) ([]domain.Record, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+recordColumns+" FROM earthquake_records ORDER BY ts DESC")
	if err != nil {
		return nil, s.fail("list", err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, s.fail("list", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list", err)
	}
	return records, nil
}

// Delete removes the record with the given id. Deleting an id that does not
// exist is whatever the backend says it is: for Postgres, a 0-row no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM earthquake_records WHERE id = $1", id); err != nil {
		return s.fail("delete", err)
	}
	return nil
}

// Update applies a partial update and returns the updated record. Patching
// the date rederives the stored timestamp from it. An empty patch returns
// the current row unchanged.
func (s *Store) Update(ctx context.Context, id string, patch domain.Patch) (domain.Record, error) {
	if patch.IsZero() {
		return s.get(ctx, id)
	}

	set := make([]string, 0, 8)
	args := make([]any, 0, 9)
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Date != nil {
		ts, err := domain.ParseDate(*patch.Date)
		if err != nil {
			return domain.Record{}, &StoreError{Op: "update", Message: "invalid date", Err: err}
		}
		add("date", *patch.Date)
		add("ts", ts)
	}
	if patch.Magnitude != nil {
		add("magnitude", *patch.Magnitude)
	}
	if patch.Location != nil {
		add("location", *patch.Location)
	}
	if patch.Depth != nil {
		add("depth", *patch.Depth)
	}
	if patch.Latitude != nil {
		add("latitude", *patch.Latitude)
	}
	if patch.Longitude != nil {
		add("longitude", *patch.Longitude)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}

	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE earthquake_records SET %s WHERE id = $%d RETURNING %s",
		strings.Join(set, ", "), len(args), recordColumns,
	)

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, &StoreError{Op: "update", Message: "record not found", Err: domain.ErrRecordNotFound}
		}
		return domain.Record{}, s.fail("update", err)
	}
	return rec, nil
}

func (s *Store) get(ctx context.Context, id string) (domain.Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx,
		"SELECT "+recordColumns+" FROM earthquake_records WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, &StoreError{Op: "update", Message: "record not found", Err: domain.ErrRecordNotFound}
		}
		return domain.Record{}, s.fail("update", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (domain.Record, error) {
	var rec domain.Record
	err := row.Scan(
		&rec.ID, &rec.Date, &rec.Timestamp, &rec.Magnitude, &rec.Location,
		&rec.Depth, &rec.Latitude, &rec.Longitude, &rec.Description,
		&rec.Source, &rec.CreatedAt,
	)
	return rec, err
}

// fail wraps a backend error in a StoreError, preferring the database's own
// message text when one exists.
func (s *Store) fail(op string, err error) error {
	s.metrics.StoreErrors.WithLabelValues(op).Inc()

	message := err.Error()
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		message = pgErr.Message
	}
	return &StoreError{Op: op, Message: message, Err: err}
}
